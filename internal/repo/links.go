package repo

import (
	"context"
	"time"

	"github.com/google/uuid"

	"matric/internal/archive"
	"matric/internal/matricerr"
)

// Link connects a source note to either another note (target_note_id) or
// an external URL (target_url), tagged with a relation kind and an
// optional relevance score (e.g. from a similarity-derived "related" link).
type Link struct {
	ID           uuid.UUID
	SourceNoteID uuid.UUID
	TargetNoteID *uuid.UUID
	TargetURL    *string
	Kind         string
	Score        float64
	CreatedAt    time.Time
}

type LinkRepo struct {
	sc *archive.SchemaContext
}

func NewLinkRepo(sc *archive.SchemaContext) *LinkRepo {
	return &LinkRepo{sc: sc}
}

func (r *LinkRepo) Create(ctx context.Context, l Link) (Link, error) {
	if l.TargetNoteID == nil && l.TargetURL == nil {
		return Link{}, matricerr.Invalid("link must have a target_note_id or target_url")
	}
	if l.ID == uuid.Nil {
		l.ID = uuid.Must(uuid.NewV7())
	}
	l.CreatedAt = time.Now().UTC()
	row := r.sc.QueryRow(ctx, `
		INSERT INTO link (id, source_note_id, target_note_id, target_url, kind, score, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id, source_note_id, target_note_id, target_url, kind, score, created_at
	`, l.ID, l.SourceNoteID, l.TargetNoteID, l.TargetURL, l.Kind, l.Score, l.CreatedAt)
	return scanLink(row)
}

// FromNote returns every outbound link from a note, newest first.
func (r *LinkRepo) FromNote(ctx context.Context, noteID uuid.UUID) ([]Link, error) {
	rows, err := r.sc.Query(ctx, `
		SELECT id, source_note_id, target_note_id, target_url, kind, score, created_at
		FROM link WHERE source_note_id = $1 ORDER BY created_at DESC
	`, noteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Link
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// ToNote returns every inbound link targeting a note (its backlinks).
func (r *LinkRepo) ToNote(ctx context.Context, noteID uuid.UUID) ([]Link, error) {
	rows, err := r.sc.Query(ctx, `
		SELECT id, source_note_id, target_note_id, target_url, kind, score, created_at
		FROM link WHERE target_note_id = $1 ORDER BY created_at DESC
	`, noteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Link
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *LinkRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.sc.Exec(ctx, `DELETE FROM link WHERE id = $1`, id)
	if err != nil {
		return matricerr.Database(err, "failed to delete link")
	}
	if tag.RowsAffected() == 0 {
		return matricerr.NotFound("link %s not found", id)
	}
	return nil
}

func scanLink(row scannable) (Link, error) {
	var l Link
	if err := row.Scan(&l.ID, &l.SourceNoteID, &l.TargetNoteID, &l.TargetURL, &l.Kind, &l.Score, &l.CreatedAt); err != nil {
		return Link{}, mapNotFound(err, "link not found")
	}
	return l, nil
}
