package search

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// QdrantBackend is the optional ANN vector backend: when configured, Search
// prefers it over the in-Postgres pgvector `<=>` scan for archives with a
// collection large enough that an approximate index pays for itself,
// grounded on the teacher's qdrant_vector.go client construction and
// collection-ensure dance, generalized from its single global collection to
// one collection per embedding_set.
type QdrantBackend struct {
	client *qdrant.Client
}

// NewQdrantBackend dials Qdrant's gRPC API (default port 6334). dsn may
// carry an api_key query parameter, e.g. "http://localhost:6334?api_key=...".
func NewQdrantBackend(dsn string) (*QdrantBackend, error) {
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse qdrant dsn: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := 6334
	if p := parsed.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid qdrant port: %w", err)
		}
	}
	cfg := &qdrant.Config{Host: host, Port: port, UseTLS: parsed.Scheme == "https"}
	if apiKey := parsed.Query().Get("api_key"); apiKey != "" {
		cfg.APIKey = apiKey
	}
	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}
	return &QdrantBackend{client: client}, nil
}

func (q *QdrantBackend) collectionName(setID uuid.UUID) string {
	return "matric_embedding_set_" + setID.String()
}

// EnsureCollection creates the set's collection if missing, using cosine
// distance to match pgvector's `<=>` operator semantics.
func (q *QdrantBackend) EnsureCollection(ctx context.Context, setID uuid.UUID, dimension int) error {
	name := q.collectionName(setID)
	exists, err := q.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("check collection exists: %w", err)
	}
	if exists {
		return nil
	}
	return q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
}

// Upsert indexes one note chunk's embedding under its note ID, stashed in
// the point payload since Qdrant point IDs must be UUIDs or integers and
// Matric addresses chunks by (note_id, chunk_index).
func (q *QdrantBackend) Upsert(ctx context.Context, setID, noteID uuid.UUID, chunkIndex int, vec []float32) error {
	pointID := uuid.NewSHA1(noteID, []byte(strconv.Itoa(chunkIndex)))
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collectionName(setID),
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDUUID(pointID.String()),
			Vectors: qdrant.NewVectorsDense(vec),
			Payload: qdrant.NewValueMap(map[string]any{
				"note_id":     noteID.String(),
				"chunk_index": chunkIndex,
			}),
		}},
	})
	return err
}

// Search runs an ANN nearest-neighbor query and returns VectorHits in the
// same shape vectorSearch produces from pgvector, so Engine.Search can swap
// backends without touching RRF fusion.
func (q *QdrantBackend) Search(ctx context.Context, setID uuid.UUID, queryVec []float32, limit uint64) ([]VectorHit, error) {
	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collectionName(setID),
		Query:          qdrant.NewQueryDense(queryVec),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant query: %w", err)
	}
	out := make([]VectorHit, 0, len(points))
	for _, p := range points {
		if p.Payload == nil {
			continue
		}
		noteID := p.Payload["note_id"].GetStringValue()
		if noteID == "" {
			continue
		}
		out = append(out, VectorHit{NoteID: noteID, Score: float64(p.Score)})
	}
	return out, nil
}
