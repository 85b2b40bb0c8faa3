// Package repo implements typed CRUD repositories over the per-tenant
// tables an archive schema clones (see internal/archive/ddl.go), each
// scoped through an archive.SchemaContext's transactions rather than
// operating on a bare pool.
package repo

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"matric/internal/archive"
	"matric/internal/matricerr"
)

// Note is the primary document: title/format/source metadata plus flags
// and an optional owning collection. Body content lives in NoteOriginal
// and, when present, NoteRevised — never mutated in place.
type Note struct {
	ID           uuid.UUID
	Title        *string
	Format       string
	Source       *string
	CollectionID *uuid.UUID
	DocumentType *string
	Metadata     json.RawMessage
	Starred      bool
	Archived     bool
	DeletedAt    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NoteOriginal is the immutable source body of a note, content-addressed
// by a SHA-256 hash for dedup.
type NoteOriginal struct {
	NoteID      uuid.UUID
	Content     string
	ContentHash string
	CreatedAt   time.Time
}

// NoteRevised is an optional, separately-stored revision of a note's body
// (e.g. produced by an LLM cleanup pass). At most one exists per note.
type NoteRevised struct {
	NoteID     uuid.UUID
	Content    string
	RevisedAt  time.Time
	Model      *string
}

// ContentHash computes the dedup hash stored alongside a NoteOriginal.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// NoteRepo is the CRUD surface over note, note_original, and note_revised.
type NoteRepo struct {
	sc *archive.SchemaContext
}

func NewNoteRepo(sc *archive.SchemaContext) *NoteRepo {
	return &NoteRepo{sc: sc}
}

// CreateWithOriginal inserts a note and its Original body in one
// transaction: every note must have exactly one Original the moment it
// exists, so the two inserts are never split across calls.
func (r *NoteRepo) CreateWithOriginal(ctx context.Context, note Note, content string) (Note, error) {
	if note.ID == uuid.Nil {
		note.ID = uuid.Must(uuid.NewV7())
	}
	if note.Format == "" {
		note.Format = "markdown"
	}
	if len(note.Metadata) == 0 {
		note.Metadata = json.RawMessage(`{}`)
	}
	now := time.Now().UTC()
	note.CreatedAt, note.UpdatedAt = now, now

	err := r.sc.Execute(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO note (id, title, format, source, collection_id, document_type, metadata, starred, archived, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$10)
		`, note.ID, note.Title, note.Format, note.Source, note.CollectionID, note.DocumentType, note.Metadata, note.Starred, note.Archived, now); err != nil {
			return matricerr.Database(err, "failed to insert note")
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO note_original (note_id, content, content_hash, created_at)
			VALUES ($1,$2,$3,$4)
		`, note.ID, content, ContentHash(content), now); err != nil {
			return matricerr.Database(err, "failed to insert note original")
		}
		return nil
	})
	if err != nil {
		return Note{}, err
	}
	return note, nil
}

// SetRevised upserts the (at most one) revised body for a note.
func (r *NoteRepo) SetRevised(ctx context.Context, noteID uuid.UUID, content string, model *string) error {
	now := time.Now().UTC()
	err := r.sc.Execute(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO note_revised (note_id, content, revised_at, model)
			VALUES ($1,$2,$3,$4)
			ON CONFLICT (note_id) DO UPDATE SET content = $2, revised_at = $3, model = $4
		`, noteID, content, now, model)
		if err != nil {
			return matricerr.Database(err, "failed to upsert note revision")
		}
		if _, err := tx.Exec(ctx, `UPDATE note SET updated_at = $2 WHERE id = $1`, noteID, now); err != nil {
			return matricerr.Database(err, "failed to touch note updated_at")
		}
		return nil
	})
	return err
}

// Get fetches a note by id. Soft-deleted notes are returned unless
// includeDeleted is false, matching the invariant that a deleted note
// never appears in list/search results but remains individually
// addressable for recovery/audit.
func (r *NoteRepo) Get(ctx context.Context, id uuid.UUID, includeDeleted bool) (Note, error) {
	row := r.sc.QueryRow(ctx, `
		SELECT id, title, format, source, collection_id, document_type, metadata, starred, archived, deleted_at, created_at, updated_at
		FROM note WHERE id = $1
	`, id)
	note, err := scanNote(row)
	if err != nil {
		return Note{}, err
	}
	if note.DeletedAt != nil && !includeDeleted {
		return Note{}, matricerr.NotFound("note %s not found", id)
	}
	return note, nil
}

// GetOriginal fetches a note's immutable source body.
func (r *NoteRepo) GetOriginal(ctx context.Context, noteID uuid.UUID) (NoteOriginal, error) {
	row := r.sc.QueryRow(ctx, `
		SELECT note_id, content, content_hash, created_at FROM note_original WHERE note_id = $1
	`, noteID)
	var o NoteOriginal
	if err := row.Scan(&o.NoteID, &o.Content, &o.ContentHash, &o.CreatedAt); err != nil {
		return NoteOriginal{}, mapNotFound(err, "note original %s", noteID)
	}
	return o, nil
}

// GetRevised fetches a note's revised body, if one exists.
func (r *NoteRepo) GetRevised(ctx context.Context, noteID uuid.UUID) (*NoteRevised, error) {
	row := r.sc.QueryRow(ctx, `
		SELECT note_id, content, revised_at, model FROM note_revised WHERE note_id = $1
	`, noteID)
	var rv NoteRevised
	if err := row.Scan(&rv.NoteID, &rv.Content, &rv.RevisedAt, &rv.Model); err != nil {
		if errIsNoRows(err) {
			return nil, nil
		}
		return nil, matricerr.Database(err, "failed to fetch note revision")
	}
	return &rv, nil
}

// ListFilter narrows List results; zero values mean "no constraint".
type ListFilter struct {
	CollectionID *uuid.UUID
	Starred      *bool
	Archived     *bool
	Limit        int
	Offset       int
}

// List returns notes ordered by updated_at desc, excluding soft-deleted
// rows, applying filter constraints where set.
func (r *NoteRepo) List(ctx context.Context, filter ListFilter) ([]Note, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	query := `
		SELECT id, title, format, source, collection_id, document_type, metadata, starred, archived, deleted_at, created_at, updated_at
		FROM note WHERE deleted_at IS NULL`
	var args []any
	add := func(cond string, val any) {
		args = append(args, val)
		query += cond + " $" + itoa(len(args))
	}
	if filter.CollectionID != nil {
		add(" AND collection_id =", *filter.CollectionID)
	}
	if filter.Starred != nil {
		add(" AND starred =", *filter.Starred)
	}
	if filter.Archived != nil {
		add(" AND archived =", *filter.Archived)
	}
	args = append(args, limit, filter.Offset)
	query += " ORDER BY updated_at DESC LIMIT $" + itoa(len(args)-1) + " OFFSET $" + itoa(len(args))

	rows, err := r.sc.Query(ctx, query, args...)
	if err != nil {
		return nil, matricerr.Database(err, "failed to list notes")
	}
	defer rows.Close()
	var out []Note
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, note)
	}
	return out, rows.Err()
}

// Update applies a partial set of field changes and bumps updated_at.
func (r *NoteRepo) Update(ctx context.Context, id uuid.UUID, fn func(*Note)) (Note, error) {
	note, err := r.Get(ctx, id, true)
	if err != nil {
		return Note{}, err
	}
	fn(&note)
	note.UpdatedAt = time.Now().UTC()
	_, err = r.sc.Exec(ctx, `
		UPDATE note SET title=$2, format=$3, source=$4, collection_id=$5, document_type=$6,
			metadata=$7, starred=$8, archived=$9, updated_at=$10
		WHERE id = $1
	`, note.ID, note.Title, note.Format, note.Source, note.CollectionID, note.DocumentType,
		note.Metadata, note.Starred, note.Archived, note.UpdatedAt)
	if err != nil {
		return Note{}, matricerr.Database(err, "failed to update note")
	}
	return note, nil
}

// SoftDelete marks a note deleted without removing its rows.
func (r *NoteRepo) SoftDelete(ctx context.Context, id uuid.UUID) error {
	now := time.Now().UTC()
	tag, err := r.sc.Exec(ctx, `UPDATE note SET deleted_at=$2, updated_at=$2 WHERE id=$1 AND deleted_at IS NULL`, id, now)
	if err != nil {
		return matricerr.Database(err, "failed to soft-delete note")
	}
	if tag.RowsAffected() == 0 {
		return matricerr.NotFound("note %s not found or already deleted", id)
	}
	return nil
}

// Restore clears deleted_at on a soft-deleted note.
func (r *NoteRepo) Restore(ctx context.Context, id uuid.UUID) error {
	tag, err := r.sc.Exec(ctx, `UPDATE note SET deleted_at=NULL, updated_at=$2 WHERE id=$1`, id, time.Now().UTC())
	if err != nil {
		return matricerr.Database(err, "failed to restore note")
	}
	if tag.RowsAffected() == 0 {
		return matricerr.NotFound("note %s not found", id)
	}
	return nil
}

// HardDelete permanently removes a note and its cascading rows
// (original/revised bodies, embeddings, links, tags) via foreign-key
// ON DELETE CASCADE.
func (r *NoteRepo) HardDelete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.sc.Exec(ctx, `DELETE FROM note WHERE id=$1`, id)
	if err != nil {
		return matricerr.Database(err, "failed to hard-delete note")
	}
	if tag.RowsAffected() == 0 {
		return matricerr.NotFound("note %s not found", id)
	}
	return nil
}

// FindByContentHash locates an existing note by its Original's content
// hash, used to dedup re-ingestion of identical source content.
func (r *NoteRepo) FindByContentHash(ctx context.Context, hash string) (uuid.UUID, bool, error) {
	row := r.sc.QueryRow(ctx, `SELECT note_id FROM note_original WHERE content_hash = $1 LIMIT 1`, hash)
	var id uuid.UUID
	if err := row.Scan(&id); err != nil {
		if errIsNoRows(err) {
			return uuid.Nil, false, nil
		}
		return uuid.Nil, false, matricerr.Database(err, "failed to look up note by content hash")
	}
	return id, true, nil
}

func scanNote(row scannable) (Note, error) {
	var n Note
	if err := row.Scan(&n.ID, &n.Title, &n.Format, &n.Source, &n.CollectionID, &n.DocumentType,
		&n.Metadata, &n.Starred, &n.Archived, &n.DeletedAt, &n.CreatedAt, &n.UpdatedAt); err != nil {
		return Note{}, mapNotFound(err, "note not found")
	}
	return n, nil
}
