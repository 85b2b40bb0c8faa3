package search

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// TestComposeResultsAppliesRerankDedupAndOrder exercises the full
// documented composition order: a ColBERT rerank score overrides the RRF
// score, chain-mates collapse to the best-scoring survivor, and the
// output is sorted deterministically by (score desc, note_id desc,
// created_at desc).
func TestComposeResultsAppliesRerankDedupAndOrder(t *testing.T) {
	now := time.Now()
	fused := []Fused{
		{NoteID: "chunk-1", Score: 0.1},
		{NoteID: "chunk-2", Score: 0.9},
		{NoteID: "standalone", Score: 0.5},
	}
	// ColBERT disagrees with RRF: chunk-1 actually matches better.
	rerankScores := map[string]float64{
		"chunk-1": 0.95,
		"chunk-2": 0.2,
	}
	meta := map[string]noteMeta{
		"chunk-1":    {ChainID: "chain-a", CreatedAt: now},
		"chunk-2":    {ChainID: "chain-a", CreatedAt: now},
		"standalone": {CreatedAt: now.Add(-time.Hour)},
	}

	out := composeResults(fused, rerankScores, meta)

	require.Len(t, out, 2, "chain-a must collapse to its single best survivor")
	require.Equal(t, "chunk-1", out[0].NoteID, "rerank score must win over the stale RRF score")
	require.Equal(t, "chain-a", out[0].ChainID)
	require.Equal(t, "standalone", out[1].NoteID)
}

// TestComposeResultsBackfillsCreatedAtFromMetadata covers the Qdrant path:
// vector hits carry no created_at of their own, so composeResults must
// fill it in from note metadata before the deterministic sort runs.
func TestComposeResultsBackfillsCreatedAtFromMetadata(t *testing.T) {
	older := time.Now().Add(-2 * time.Hour)
	newer := time.Now()
	fused := []Fused{
		{NoteID: "a", Score: 1.0}, // CreatedAt left zero, as a Qdrant-sourced hit would
		{NoteID: "b", Score: 1.0},
	}
	meta := map[string]noteMeta{
		"a": {CreatedAt: older},
		"b": {CreatedAt: newer},
	}

	out := composeResults(fused, nil, meta)

	require.False(t, out[0].CreatedAt.IsZero())
	// Equal score and note_id tie-break ("b" > "a") puts b first regardless
	// of created_at, confirming the fixed precedence of the three keys.
	require.Equal(t, "b", out[0].NoteID)
	require.Equal(t, newer, out[0].CreatedAt)
	require.Equal(t, older, out[1].CreatedAt)
}

// TestComposeResultsNoRerankLeavesFusionScore confirms the rerank stage
// is genuinely opt-in: a nil rerank map must not touch scores at all.
func TestComposeResultsNoRerankLeavesFusionScore(t *testing.T) {
	fused := []Fused{{NoteID: "a", Score: 0.42}}
	out := composeResults(fused, nil, map[string]noteMeta{})
	require.Equal(t, 0.42, out[0].Score)
}

// TestResolveQueryVectorPrefersSuppliedVector confirms a caller-supplied
// vector is used as-is and that resolution degrades to nil (skip the
// vector leg) when no cache is attached and none was supplied.
func TestResolveQueryVectorPrefersSuppliedVector(t *testing.T) {
	e := NewEngine(nil)
	vec := []float32{0.1, 0.2, 0.3}
	opt := QueryOptions{Text: "hello", EmbeddingSetID: uuid.New(), QueryVector: vec}
	require.Equal(t, vec, e.resolveQueryVector(context.Background(), opt))
}

func TestResolveQueryVectorNoCacheNoVectorYieldsNil(t *testing.T) {
	e := NewEngine(nil)
	opt := QueryOptions{Text: "hello", EmbeddingSetID: uuid.New()}
	require.Nil(t, e.resolveQueryVector(context.Background(), opt))
}

func TestNoteIDsOfSkipsUnparseable(t *testing.T) {
	fused := []Fused{
		{NoteID: "550e8400-e29b-41d4-a716-446655440000"},
		{NoteID: "not-a-uuid"},
	}
	ids := noteIDsOf(fused)
	require.Len(t, ids, 1)
	require.Equal(t, "550e8400-e29b-41d4-a716-446655440000", ids[0].String())
}
