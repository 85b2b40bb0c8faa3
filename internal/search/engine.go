package search

import (
	"context"
	"time"

	"github.com/google/uuid"

	"matric/internal/archive"
	"matric/internal/matricerr"
	"matric/internal/vectormath"
)

// Engine runs the hybrid retrieval path over a single archive: a
// full-text query against note/chunk text, a dense vector query against
// an embedding_set, RRF fusion of the two, an optional ColBERT rerank
// pass, chain deduplication, and a deterministic final ordering,
// grounded on the teacher's postgres_search.go / postgres_vector.go
// query shapes generalized from its single-tenant `documents`/`embeddings`
// tables to Matric's per-archive note/embedding schema.
type Engine struct {
	sc     *archive.SchemaContext
	qdrant *QdrantBackend
	cache  *EmbedCache
}

func NewEngine(sc *archive.SchemaContext) *Engine {
	return &Engine{sc: sc}
}

// WithQdrant attaches an optional ANN vector backend. When set, Search
// prefers it over the in-Postgres pgvector scan.
func (e *Engine) WithQdrant(q *QdrantBackend) *Engine {
	e.qdrant = q
	return e
}

// WithEmbedCache attaches an optional query-embedding cache.
func (e *Engine) WithEmbedCache(c *EmbedCache) *Engine {
	e.cache = c
	return e
}

// QueryOptions bundles one hybrid-search request. QueryTokens is the
// opt-in signal for the ColBERT rerank pass: callers that can supply
// per-token query embeddings get reranked results, everyone else gets
// plain RRF-fused ones.
type QueryOptions struct {
	Text           string
	QueryVector    []float32
	EmbeddingSetID uuid.UUID
	Lang           string
	Limit          int
	Fusion         FusionOptions
	QueryTokens    []TokenEmbedding
}

// Search runs the FTS and vector legs (sequential here for transactional
// simplicity; each leg is already sub-50ms on a properly indexed archive),
// fuses them with RRF, optionally reranks with ColBERT MaxSim, collapses
// each chain down to its best-scoring chunk, and returns results ordered
// by the fixed (score desc, note_id desc, created_at desc) tie-break.
func (e *Engine) Search(ctx context.Context, opt QueryOptions) ([]Fused, error) {
	limit := opt.Limit
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	lang := opt.Lang
	if lang == "" {
		lang = "english"
	}

	lexHits, err := e.lexicalSearch(ctx, opt.Text, lang, limit)
	if err != nil {
		return nil, err
	}

	queryVec := e.resolveQueryVector(ctx, opt)

	var vecHits []VectorHit
	if len(queryVec) > 0 && opt.EmbeddingSetID != uuid.Nil {
		if e.qdrant != nil {
			vecHits, err = e.qdrant.Search(ctx, opt.EmbeddingSetID, queryVec, uint64(limit))
		} else {
			vecHits, err = e.vectorSearch(ctx, queryVec, opt.EmbeddingSetID, limit)
		}
		if err != nil {
			return nil, err
		}
	}

	fused := FuseRRF(lexHits, vecHits, opt.Fusion)

	var rerankScores map[string]float64
	if len(opt.QueryTokens) > 0 {
		rerankScores, err = e.rerankScores(ctx, fused, opt.QueryTokens)
		if err != nil {
			return nil, err
		}
	}

	meta, err := e.noteMetadata(ctx, noteIDsOf(fused))
	if err != nil {
		return nil, err
	}

	return composeResults(fused, rerankScores, meta), nil
}

// resolveQueryVector returns the vector to run the vector leg with: the
// caller-supplied one if present, otherwise a cache hit keyed by embedding
// set and query text. A caller-supplied vector is written back to the
// cache under its query text so a later call can omit it, which is the
// whole point of attaching an EmbedCache to the engine rather than
// leaving it a dead field.
func (e *Engine) resolveQueryVector(ctx context.Context, opt QueryOptions) []float32 {
	if len(opt.QueryVector) > 0 {
		if e.cache != nil && opt.Text != "" && opt.EmbeddingSetID != uuid.Nil {
			_ = e.cache.Set(ctx, opt.EmbeddingSetID.String(), opt.Text, opt.QueryVector)
		}
		return opt.QueryVector
	}
	if e.cache == nil || opt.Text == "" || opt.EmbeddingSetID == uuid.Nil {
		return nil
	}
	cached, ok := e.cache.Get(ctx, opt.EmbeddingSetID.String(), opt.Text)
	if !ok {
		return nil
	}
	return cached
}

// composeResults applies an optional ColBERT rerank, backfills any
// CreatedAt left zero by a metadata-less vector backend, collapses chains
// to their best chunk, and imposes the deterministic final ordering. It
// touches no database handle, which is what makes the composed pipeline
// testable without one.
func composeResults(fused []Fused, rerankScores map[string]float64, meta map[string]noteMeta) []Fused {
	out := make([]Fused, len(fused))
	copy(out, fused)

	for i, r := range out {
		if rerankScores != nil {
			if s, ok := rerankScores[r.NoteID]; ok {
				out[i].Score = s
			}
		}
		if out[i].CreatedAt.IsZero() {
			out[i].CreatedAt = meta[r.NoteID].CreatedAt
		}
	}

	out = DeduplicateChains(out, func(noteID string) string { return meta[noteID].ChainID })
	SortDeterministic(out)
	return out
}

// noteMeta is the per-note data DeduplicateChains and SortDeterministic
// need but neither the lexical nor the vector leg always carries: the
// chain a note belongs to, and (for Qdrant-sourced hits) its created_at.
type noteMeta struct {
	CreatedAt time.Time
	ChainID   string
}

// noteMetadata resolves chain_id (stored in note.metadata, see
// note_chain_id_idx) and created_at for every candidate note in one
// round trip.
func (e *Engine) noteMetadata(ctx context.Context, ids []uuid.UUID) (map[string]noteMeta, error) {
	out := make(map[string]noteMeta, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := e.sc.Query(ctx, `
		SELECT id, created_at, COALESCE(metadata->>'chain_id', '')
		FROM note WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		var m noteMeta
		if err := rows.Scan(&id, &m.CreatedAt, &m.ChainID); err != nil {
			return nil, matricerr.Database(err, "failed to scan note metadata row")
		}
		out[id.String()] = m
	}
	return out, rows.Err()
}

// rerankScores fetches stored per-token embeddings for every fused
// candidate and scores them against query by ColBERT MaxSim. Candidates
// with no token_embedding rows (never chunked with token-level vectors)
// keep their fused RRF score untouched.
func (e *Engine) rerankScores(ctx context.Context, fused []Fused, query []TokenEmbedding) (map[string]float64, error) {
	candidates, err := e.tokenCandidates(ctx, noteIDsOf(fused))
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	scored := Rerank(query, candidates, Config{})
	out := make(map[string]float64, len(scored))
	for _, s := range scored {
		out[s.NoteID] = s.Score
	}
	return out, nil
}

// tokenCandidates loads every stored token_embedding row for the given
// notes, grouped into one Candidate per note ordered by token_position.
func (e *Engine) tokenCandidates(ctx context.Context, ids []uuid.UUID) ([]Candidate, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := e.sc.Query(ctx, `
		SELECT note_id, token_position, vector
		FROM token_embedding
		WHERE note_id = ANY($1)
		ORDER BY note_id, token_position
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var order []string
	byNote := map[string][]TokenEmbedding{}
	for rows.Next() {
		var id uuid.UUID
		var pos int
		var vecLiteral string
		if err := rows.Scan(&id, &pos, &vecLiteral); err != nil {
			return nil, matricerr.Database(err, "failed to scan token embedding row")
		}
		vec, err := vectormath.FromPgvectorLiteral(vecLiteral)
		if err != nil {
			return nil, matricerr.Database(err, "failed to parse stored token embedding vector")
		}
		key := id.String()
		if _, ok := byNote[key]; !ok {
			order = append(order, key)
		}
		byNote[key] = append(byNote[key], TokenEmbedding{Position: pos, Vector: vec})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]Candidate, 0, len(order))
	for _, id := range order {
		out = append(out, Candidate{NoteID: id, Tokens: byNote[id]})
	}
	return out, nil
}

func noteIDsOf(fused []Fused) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(fused))
	for _, r := range fused {
		id, err := uuid.Parse(r.NoteID)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out
}

// lexicalSearch runs a websearch_to_tsquery full-text match over note
// Original bodies; Postgres's websearch_to_tsquery tolerates malformed
// operators in free-form input rather than erroring on them.
func (e *Engine) lexicalSearch(ctx context.Context, query, lang string, limit int) ([]LexicalHit, error) {
	if query == "" {
		return nil, nil
	}
	rows, err := e.sc.Query(ctx, `
		SELECT n.id,
		       ts_rank(to_tsvector(to_regconfig($2), o.content), websearch_to_tsquery(to_regconfig($2), $1)) AS score,
		       n.created_at
		FROM note n
		JOIN note_original o ON o.note_id = n.id
		WHERE n.deleted_at IS NULL
		  AND to_tsvector(to_regconfig($2), o.content) @@ websearch_to_tsquery(to_regconfig($2), $1)
		ORDER BY score DESC
		LIMIT $3
	`, query, lang, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LexicalHit
	for rows.Next() {
		var id uuid.UUID
		var score float64
		var createdAt time.Time
		if err := rows.Scan(&id, &score, &createdAt); err != nil {
			return nil, matricerr.Database(err, "failed to scan lexical search row")
		}
		out = append(out, LexicalHit{NoteID: id.String(), Score: score, CreatedAt: createdAt})
	}
	return out, rows.Err()
}

// vectorSearch runs a pgvector cosine-distance nearest-neighbor query
// against one embedding_set, grounded on the teacher's `<=>` operator
// dispatch in postgres_vector.go, joined back to note for created_at.
func (e *Engine) vectorSearch(ctx context.Context, queryVec []float32, setID uuid.UUID, limit int) ([]VectorHit, error) {
	literal := vectormath.ToPgvectorLiteral(queryVec)
	rows, err := e.sc.Query(ctx, `
		SELECT e.note_id, 1 - (e.vector <=> $1::vector) AS score, n.created_at
		FROM embedding e
		JOIN note n ON n.id = e.note_id
		WHERE e.embedding_set_id = $2
		ORDER BY e.vector <=> $1::vector
		LIMIT $3
	`, literal, setID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []VectorHit
	for rows.Next() {
		var id uuid.UUID
		var score float64
		var createdAt time.Time
		if err := rows.Scan(&id, &score, &createdAt); err != nil {
			return nil, matricerr.Database(err, "failed to scan vector search row")
		}
		out = append(out, VectorHit{NoteID: id.String(), Score: score, CreatedAt: createdAt})
	}
	return out, rows.Err()
}
