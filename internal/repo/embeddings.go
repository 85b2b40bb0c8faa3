package repo

import (
	"context"
	"time"

	"github.com/google/uuid"

	"matric/internal/archive"
	"matric/internal/matricerr"
	"matric/internal/vectormath"
)

// EmbeddingSet describes one embedding configuration (provider, model,
// dimension, chunking parameters) a note's chunks may be embedded under.
// Every Embedding row's vector must match its set's declared dimension.
type EmbeddingSet struct {
	ID           uuid.UUID
	Provider     string
	Model        string
	Dimension    int
	ContentTypes []string
	ChunkSize    int
	ChunkOverlap int
	IsDefault    bool
}

// Embedding is one chunk's vector under a given EmbeddingSet.
type Embedding struct {
	ID             uuid.UUID
	NoteID         uuid.UUID
	EmbeddingSetID uuid.UUID
	ChunkIndex     int
	Text           string
	Vector         []float32
	Model          string
	CreatedAt      time.Time
}

type EmbeddingRepo struct {
	sc *archive.SchemaContext
}

func NewEmbeddingRepo(sc *archive.SchemaContext) *EmbeddingRepo {
	return &EmbeddingRepo{sc: sc}
}

func (r *EmbeddingRepo) CreateSet(ctx context.Context, s EmbeddingSet) (EmbeddingSet, error) {
	if s.ID == uuid.Nil {
		s.ID = uuid.Must(uuid.NewV7())
	}
	row := r.sc.QueryRow(ctx, `
		INSERT INTO embedding_set (id, provider, model, dimension, content_types, chunk_size, chunk_overlap, is_default)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING id, provider, model, dimension, content_types, chunk_size, chunk_overlap, is_default
	`, s.ID, s.Provider, s.Model, s.Dimension, s.ContentTypes, s.ChunkSize, s.ChunkOverlap, s.IsDefault)
	return scanEmbeddingSet(row)
}

func (r *EmbeddingRepo) GetSet(ctx context.Context, id uuid.UUID) (EmbeddingSet, error) {
	row := r.sc.QueryRow(ctx, `
		SELECT id, provider, model, dimension, content_types, chunk_size, chunk_overlap, is_default
		FROM embedding_set WHERE id = $1
	`, id)
	return scanEmbeddingSet(row)
}

func (r *EmbeddingRepo) DefaultSet(ctx context.Context) (EmbeddingSet, error) {
	row := r.sc.QueryRow(ctx, `
		SELECT id, provider, model, dimension, content_types, chunk_size, chunk_overlap, is_default
		FROM embedding_set WHERE is_default LIMIT 1
	`)
	return scanEmbeddingSet(row)
}

// Insert stores one chunk's embedding, validating the vector's length
// against the set's declared dimension before it ever reaches the DB.
func (r *EmbeddingRepo) Insert(ctx context.Context, e Embedding) (Embedding, error) {
	set, err := r.GetSet(ctx, e.EmbeddingSetID)
	if err != nil {
		return Embedding{}, err
	}
	if len(e.Vector) != set.Dimension {
		return Embedding{}, matricerr.Invalid("embedding vector has %d dimensions, set %s declares %d", len(e.Vector), set.ID, set.Dimension)
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.Must(uuid.NewV7())
	}
	e.CreatedAt = time.Now().UTC()
	_, err = r.sc.Exec(ctx, `
		INSERT INTO embedding (id, note_id, embedding_set_id, chunk_index, text, vector, model, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, e.ID, e.NoteID, e.EmbeddingSetID, e.ChunkIndex, e.Text, vectormath.ToPgvectorLiteral(e.Vector), e.Model, e.CreatedAt)
	if err != nil {
		return Embedding{}, matricerr.Database(err, "failed to insert embedding")
	}
	return e, nil
}

// ForNote returns every embedding for a note under the given set, ordered
// by chunk index.
func (r *EmbeddingRepo) ForNote(ctx context.Context, noteID, setID uuid.UUID) ([]Embedding, error) {
	rows, err := r.sc.Query(ctx, `
		SELECT id, note_id, embedding_set_id, chunk_index, text, vector, model, created_at
		FROM embedding WHERE note_id = $1 AND embedding_set_id = $2 ORDER BY chunk_index
	`, noteID, setID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Embedding
	for rows.Next() {
		e, err := scanEmbedding(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteForNote removes every embedding for a note under the given set,
// used before re-embedding after a content revision.
func (r *EmbeddingRepo) DeleteForNote(ctx context.Context, noteID, setID uuid.UUID) error {
	_, err := r.sc.Exec(ctx, `DELETE FROM embedding WHERE note_id = $1 AND embedding_set_id = $2`, noteID, setID)
	if err != nil {
		return matricerr.Database(err, "failed to delete note embeddings")
	}
	return nil
}

func scanEmbeddingSet(row scannable) (EmbeddingSet, error) {
	var s EmbeddingSet
	if err := row.Scan(&s.ID, &s.Provider, &s.Model, &s.Dimension, &s.ContentTypes, &s.ChunkSize, &s.ChunkOverlap, &s.IsDefault); err != nil {
		return EmbeddingSet{}, mapNotFound(err, "embedding set not found")
	}
	return s, nil
}

func scanEmbedding(row scannable) (Embedding, error) {
	var e Embedding
	var vecLiteral string
	if err := row.Scan(&e.ID, &e.NoteID, &e.EmbeddingSetID, &e.ChunkIndex, &e.Text, &vecLiteral, &e.Model, &e.CreatedAt); err != nil {
		return Embedding{}, mapNotFound(err, "embedding not found")
	}
	vec, err := vectormath.FromPgvectorLiteral(vecLiteral)
	if err != nil {
		return Embedding{}, matricerr.Database(err, "failed to parse stored embedding vector")
	}
	e.Vector = vec
	return e, nil
}
