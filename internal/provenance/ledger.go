// Package provenance records W3C PROV-style edges and activities for note
// revisions, plus spatial/temporal metadata for ingested files (camera
// GPS, capture time ranges). Per policy, every recording failure here is
// logged and dropped rather than propagated: provenance is best-effort
// bookkeeping, never a blocker for the operation that triggered it.
package provenance

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/rs/zerolog"

	"matric/internal/archive"
	"matric/internal/matricerr"
)

// Edge is a PROV-style "used"/"derived from" relation attached to a
// revision: either another note or an external URL.
type Edge struct {
	ID           uuid.UUID
	RevisionID   uuid.UUID
	SourceNoteID *uuid.UUID
	SourceURL    *string
	Relation     string
	CreatedAt    time.Time
}

// Activity is the PROV "activity" that produced a revision: a time span,
// optionally an inference model name, plus free-form metadata.
type Activity struct {
	ID         uuid.UUID
	RevisionID uuid.UUID
	StartedAt  time.Time
	EndedAt    *time.Time
	Model      *string
	Metadata   json.RawMessage
}

// FileRecord is a file's spatial/temporal provenance: where and when it
// was captured, and what kind of event it documents.
type FileRecord struct {
	ID                 uuid.UUID
	AttachmentID        uuid.UUID
	Point               *orb.Point
	LocationConfidence  *float64
	CapturedFrom        *time.Time
	CapturedTo          *time.Time
	CaptureDevice       *string
	EventClass          *string
}

// Ledger is the provenance repository over provenance_edge,
// provenance_activity, and file_provenance.
type Ledger struct {
	sc  *archive.SchemaContext
	log zerolog.Logger
}

func NewLedger(sc *archive.SchemaContext, log zerolog.Logger) *Ledger {
	return &Ledger{sc: sc, log: log.With().Str("component", "provenance").Logger()}
}

// RecordEdge persists a PROV edge. It returns nothing; a failure is logged: per
// policy, provenance recording never fails the caller's parent operation.
func (l *Ledger) RecordEdge(ctx context.Context, revisionID uuid.UUID, sourceNoteID *uuid.UUID, sourceURL *string, relation string) {
	if sourceNoteID == nil && sourceURL == nil {
		l.log.Warn().Str("revision_id", revisionID.String()).Msg("dropping provenance edge with no source")
		return
	}
	_, err := l.sc.Exec(ctx, `
		INSERT INTO provenance_edge (id, revision_id, source_note_id, source_url, relation, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, uuid.Must(uuid.NewV7()), revisionID, sourceNoteID, sourceURL, relation, time.Now().UTC())
	if err != nil {
		l.log.Error().Err(err).Str("revision_id", revisionID.String()).Msg("failed to record provenance edge")
	}
}

// RecordActivity persists a PROV activity. Same log-and-drop policy as
// RecordEdge.
func (l *Ledger) RecordActivity(ctx context.Context, a Activity) {
	if len(a.Metadata) == 0 {
		a.Metadata = json.RawMessage(`{}`)
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.Must(uuid.NewV7())
	}
	_, err := l.sc.Exec(ctx, `
		INSERT INTO provenance_activity (id, revision_id, started_at, ended_at, model, metadata)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, a.ID, a.RevisionID, a.StartedAt, a.EndedAt, a.Model, a.Metadata)
	if err != nil {
		l.log.Error().Err(err).Str("revision_id", a.RevisionID.String()).Msg("failed to record provenance activity")
	}
}

// ListEdges returns every recorded edge for a revision, oldest first.
func (l *Ledger) ListEdges(ctx context.Context, revisionID uuid.UUID) ([]Edge, error) {
	rows, err := l.sc.Query(ctx, `
		SELECT id, revision_id, source_note_id, source_url, relation, created_at
		FROM provenance_edge WHERE revision_id = $1 ORDER BY created_at
	`, revisionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Edge
	for rows.Next() {
		var e Edge
		if err := rows.Scan(&e.ID, &e.RevisionID, &e.SourceNoteID, &e.SourceURL, &e.Relation, &e.CreatedAt); err != nil {
			return nil, matricerr.Database(err, "failed to scan provenance edge")
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// RecordFile inserts a file's spatial/temporal provenance. Recording
// failures here are returned to the caller (unlike edges/activities) since
// file provenance is usually recorded as the primary effect of an
// ingestion job, not a side effect of another operation.
func (l *Ledger) RecordFile(ctx context.Context, f FileRecord) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.Must(uuid.NewV7())
	}
	var lon, lat *float64
	if f.Point != nil {
		lonVal, latVal := f.Point.Lon(), f.Point.Lat()
		lon, lat = &lonVal, &latVal
	}
	_, err := l.sc.Exec(ctx, `
		INSERT INTO file_provenance (id, attachment_id, lon, lat, location_confidence, captured_from, captured_to, capture_device, event_class)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, f.ID, f.AttachmentID, lon, lat, f.LocationConfidence, f.CapturedFrom, f.CapturedTo, f.CaptureDevice, f.EventClass)
	if err != nil {
		return matricerr.Database(err, "failed to record file provenance")
	}
	return nil
}

// FilesNear returns files captured within radiusMeters of center, using a
// bounding-box prefilter in SQL and an exact great-circle distance check
// in Go over the (small) prefiltered result set.
func (l *Ledger) FilesNear(ctx context.Context, center orb.Point, radiusMeters float64) ([]FileRecord, error) {
	bound := geo.NewBoundAroundPoint(center, radiusMeters)
	rows, err := l.sc.Query(ctx, `
		SELECT id, attachment_id, lon, lat, location_confidence, captured_from, captured_to, capture_device, event_class
		FROM file_provenance
		WHERE lon BETWEEN $1 AND $2 AND lat BETWEEN $3 AND $4
	`, bound.Min.Lon(), bound.Max.Lon(), bound.Min.Lat(), bound.Max.Lat())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FileRecord
	for rows.Next() {
		f, err := scanFileRecord(rows)
		if err != nil {
			return nil, err
		}
		if f.Point == nil {
			continue
		}
		if geo.Distance(center, *f.Point) <= radiusMeters {
			out = append(out, f)
		}
	}
	return out, rows.Err()
}

// FilesDuring returns files whose capture window overlaps [start, end].
func (l *Ledger) FilesDuring(ctx context.Context, start, end time.Time) ([]FileRecord, error) {
	rows, err := l.sc.Query(ctx, `
		SELECT id, attachment_id, lon, lat, location_confidence, captured_from, captured_to, capture_device, event_class
		FROM file_provenance
		WHERE captured_from IS NOT NULL AND captured_to IS NOT NULL
		  AND captured_from <= $2 AND captured_to >= $1
		ORDER BY captured_from
	`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []FileRecord
	for rows.Next() {
		f, err := scanFileRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func scanFileRecord(row interface{ Scan(...any) error }) (FileRecord, error) {
	var f FileRecord
	var lon, lat *float64
	if err := row.Scan(&f.ID, &f.AttachmentID, &lon, &lat, &f.LocationConfidence, &f.CapturedFrom, &f.CapturedTo, &f.CaptureDevice, &f.EventClass); err != nil {
		return FileRecord{}, matricerr.Database(err, "failed to scan file provenance row")
	}
	if lon != nil && lat != nil {
		p := orb.Point{*lon, *lat}
		f.Point = &p
	}
	return f, nil
}
