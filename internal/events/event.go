// Package events implements the typed domain-event envelope that decouples
// note/job/link/archive/token lifecycle transitions from whatever else in
// the process (or, optionally, outside it) needs to react to them.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Type is a closed catalog of event kinds; new transitions add a constant
// here rather than accepting arbitrary strings.
type Type string

const (
	NoteCreated     Type = "note.created"
	NoteRevised     Type = "note.revised"
	NoteSoftDeleted Type = "note.soft_deleted"
	JobSucceeded    Type = "job.succeeded"
	JobFailed       Type = "job.failed"
	LinkCreated     Type = "link.created"
	ArchiveCreated  Type = "archive.created"
	ArchiveDropped  Type = "archive.dropped"
	TokenIssued     Type = "token.issued"
	TokenRevoked    Type = "token.revoked"
)

// Event is the envelope published for every lifecycle transition.
type Event struct {
	EventType  Type            `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	ArchiveID  *uuid.UUID      `json:"archive_id,omitempty"`
	Payload    json.RawMessage `json:"payload"`
}

// New builds an Event, marshaling payload and stamping OccurredAt.
func New(eventType Type, archiveID *uuid.UUID, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		EventType:  eventType,
		OccurredAt: time.Now().UTC(),
		ArchiveID:  archiveID,
		Payload:    raw,
	}, nil
}
