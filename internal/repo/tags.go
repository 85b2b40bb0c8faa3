package repo

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"matric/internal/archive"
	"matric/internal/matricerr"
)

// Tag is a SKOS concept: a notation plus multilingual preferred/alternate
// labels and broader/related concept links, scoped to an optional scheme.
type Tag struct {
	ID        uuid.UUID
	SchemeID  *uuid.UUID
	Notation  *string
	PrefLabel json.RawMessage
	AltLabels json.RawMessage
	Broader   []uuid.UUID
	Related   []uuid.UUID
	ScopeNote *string
}

type TagRepo struct {
	sc *archive.SchemaContext
}

func NewTagRepo(sc *archive.SchemaContext) *TagRepo {
	return &TagRepo{sc: sc}
}

func (r *TagRepo) Create(ctx context.Context, t Tag) (Tag, error) {
	if t.ID == uuid.Nil {
		t.ID = uuid.Must(uuid.NewV7())
	}
	if len(t.PrefLabel) == 0 {
		t.PrefLabel = json.RawMessage(`{}`)
	}
	if len(t.AltLabels) == 0 {
		t.AltLabels = json.RawMessage(`[]`)
	}
	row := r.sc.QueryRow(ctx, `
		INSERT INTO tag (id, scheme_id, notation, pref_label, alt_labels, broader, related, scope_note)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING id, scheme_id, notation, pref_label, alt_labels, broader, related, scope_note
	`, t.ID, t.SchemeID, t.Notation, t.PrefLabel, t.AltLabels, t.Broader, t.Related, t.ScopeNote)
	return scanTag(row)
}

func (r *TagRepo) Get(ctx context.Context, id uuid.UUID) (Tag, error) {
	row := r.sc.QueryRow(ctx, `
		SELECT id, scheme_id, notation, pref_label, alt_labels, broader, related, scope_note FROM tag WHERE id = $1
	`, id)
	return scanTag(row)
}

// Broader returns the concepts this tag narrows (its transitive-free
// direct broader-concept set), for hierarchy walks.
func (r *TagRepo) Broader(ctx context.Context, id uuid.UUID) ([]Tag, error) {
	t, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make([]Tag, 0, len(t.Broader))
	for _, bid := range t.Broader {
		b, err := r.Get(ctx, bid)
		if err != nil {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

// AttachToNote tags a note with a free-form label (the note_tag table
// stores the literal tag string rather than a tag row id, matching notes
// that carry ad hoc tags with no registered SKOS concept).
func (r *TagRepo) AttachToNote(ctx context.Context, noteID uuid.UUID, tag string) error {
	_, err := r.sc.Exec(ctx, `
		INSERT INTO note_tag (note_id, tag) VALUES ($1,$2) ON CONFLICT DO NOTHING
	`, noteID, tag)
	if err != nil {
		return matricerr.Database(err, "failed to attach tag to note")
	}
	return nil
}

func (r *TagRepo) DetachFromNote(ctx context.Context, noteID uuid.UUID, tag string) error {
	_, err := r.sc.Exec(ctx, `DELETE FROM note_tag WHERE note_id = $1 AND tag = $2`, noteID, tag)
	if err != nil {
		return matricerr.Database(err, "failed to detach tag from note")
	}
	return nil
}

func (r *TagRepo) TagsForNote(ctx context.Context, noteID uuid.UUID) ([]string, error) {
	rows, err := r.sc.Query(ctx, `SELECT tag FROM note_tag WHERE note_id = $1 ORDER BY tag`, noteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, matricerr.Database(err, "failed to scan note tag")
		}
		out = append(out, tag)
	}
	return out, rows.Err()
}

// NotesForTag returns the ids of every note carrying the given tag.
func (r *TagRepo) NotesForTag(ctx context.Context, tag string) ([]uuid.UUID, error) {
	rows, err := r.sc.Query(ctx, `SELECT note_id FROM note_tag WHERE tag = $1`, tag)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, matricerr.Database(err, "failed to scan tagged note id")
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func scanTag(row scannable) (Tag, error) {
	var t Tag
	if err := row.Scan(&t.ID, &t.SchemeID, &t.Notation, &t.PrefLabel, &t.AltLabels, &t.Broader, &t.Related, &t.ScopeNote); err != nil {
		return Tag{}, mapNotFound(err, "tag not found")
	}
	return t, nil
}
