package events

import (
	"context"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/rs/zerolog"
)

// ClickHouseMirror appends every published event to a durable analytics
// table, for querying job/search telemetry after the fact.
type ClickHouseMirror struct {
	conn driver.Conn
	log  zerolog.Logger
}

func NewClickHouseMirror(conn driver.Conn, log zerolog.Logger) *ClickHouseMirror {
	return &ClickHouseMirror{conn: conn, log: log.With().Str("component", "events.clickhouse_mirror").Logger()}
}

// EnsureSchema creates the event_log table if it doesn't already exist.
func (m *ClickHouseMirror) EnsureSchema(ctx context.Context) error {
	return m.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS event_log (
			event_type String,
			occurred_at DateTime64(3),
			archive_id String,
			payload String
		) ENGINE = MergeTree()
		ORDER BY (event_type, occurred_at)
	`)
}

func (m *ClickHouseMirror) Mirror(e Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	archiveID := ""
	if e.ArchiveID != nil {
		archiveID = e.ArchiveID.String()
	}
	err := m.conn.Exec(ctx, `
		INSERT INTO event_log (event_type, occurred_at, archive_id, payload) VALUES ($1, $2, $3, $4)
	`, string(e.EventType), e.OccurredAt, archiveID, string(e.Payload))
	if err != nil {
		m.log.Error().Err(err).Str("event_type", string(e.EventType)).Msg("failed to mirror event to clickhouse")
	}
}
