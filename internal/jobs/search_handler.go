package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"matric/internal/archive"
	"matric/internal/matricerr"
	"matric/internal/search"
)

// searchPayload is the decoded shape of a search job's payload.
type searchPayload struct {
	Text           string    `json:"text"`
	QueryVector    []float32 `json:"query_vector"`
	EmbeddingSetID string    `json:"embedding_set_id"`
	Lang           string    `json:"lang"`
	Limit          int       `json:"limit"`
}

// SearchHandler runs one hybrid-search query against its job's archive,
// the same claim/execute/complete path as every other job rather than a
// dedicated request-handling surface, and stores the ranked results as
// the job's result payload.
type SearchHandler struct {
	archives *archive.Registry
	qdrant   *search.QdrantBackend
	cache    *search.EmbedCache
}

// NewSearchHandler wires the hybrid search engine's optional backends in
// once, at daemon startup, so every claimed search job reuses the same
// Qdrant connection and embed cache instead of dialing per job.
func NewSearchHandler(archives *archive.Registry, qdrant *search.QdrantBackend, cache *search.EmbedCache) *SearchHandler {
	return &SearchHandler{archives: archives, qdrant: qdrant, cache: cache}
}

func (*SearchHandler) JobType() JobType        { return "search" }
func (*SearchHandler) CanHandle(t JobType) bool { return t == "search" }

func (h *SearchHandler) Execute(jc *Context) (Result, error) {
	if len(jc.Job.Payload) == 0 {
		return Failed("missing search job payload"), nil
	}

	var payload searchPayload
	if err := json.Unmarshal(jc.Job.Payload, &payload); err != nil {
		return Failed(fmt.Sprintf("invalid search job payload: %v", err)), nil
	}

	info, err := h.archives.GetByID(jc.Context, jc.Job.ArchiveID)
	if err != nil {
		return Failed(fmt.Sprintf("resolve archive: %v", err)), nil
	}
	sc, err := h.archives.ForSchema(info.SchemaName)
	if err != nil {
		return Failed(fmt.Sprintf("resolve archive schema: %v", err)), nil
	}

	engine := search.NewEngine(sc)
	if h.qdrant != nil {
		engine = engine.WithQdrant(h.qdrant)
	}
	if h.cache != nil {
		engine = engine.WithEmbedCache(h.cache)
	}

	opt := search.QueryOptions{
		Text:        payload.Text,
		QueryVector: payload.QueryVector,
		Lang:        payload.Lang,
		Limit:       payload.Limit,
	}
	if payload.EmbeddingSetID != "" {
		setID, err := uuid.Parse(payload.EmbeddingSetID)
		if err != nil {
			return Failed(fmt.Sprintf("invalid embedding_set_id: %v", err)), nil
		}
		opt.EmbeddingSetID = setID
	}

	_ = jc.ReportProgress(jc.Context, 10, "Running hybrid search")

	results, err := engine.Search(jc.Context, opt)
	if err != nil {
		return RetryResult(fmt.Sprintf("search failed: %v", err)), nil
	}

	resultJSON, err := json.Marshal(map[string]any{"results": results, "count": len(results)})
	if err != nil {
		return Result{}, matricerr.Internal("marshal search results: %v", err)
	}

	_ = jc.ReportProgress(jc.Context, 100, "Done")
	return Success(resultJSON), nil
}
