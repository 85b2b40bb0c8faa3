package search

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeMaxSimSumsPerTokenMax(t *testing.T) {
	query := []TokenEmbedding{
		{Position: 0, Vector: []float32{1, 0}},
		{Position: 1, Vector: []float32{0, 1}},
	}
	doc := []TokenEmbedding{
		{Position: 0, Vector: []float32{1, 0}}, // matches query token 0 perfectly
		{Position: 1, Vector: []float32{0.6, 0.8}},
	}
	score := computeMaxSim(query, doc)
	// token0: max(cos with [1,0]=1, cos with [0.6,0.8]=0.6) = 1
	// token1: max(cos with [1,0]=0, cos with [0.6,0.8]=0.8) = 0.8
	require.InDelta(t, 1.8, score, 1e-6)
}

func TestRerankSortsDescendingAndAppliesMinScore(t *testing.T) {
	query := []TokenEmbedding{{Vector: []float32{1, 0}}}
	candidates := []Candidate{
		{NoteID: "low", Tokens: []TokenEmbedding{{Vector: []float32{0, 1}}}},
		{NoteID: "high", Tokens: []TokenEmbedding{{Vector: []float32{1, 0}}}},
	}
	out := Rerank(query, candidates, Config{})
	require.Len(t, out, 2)
	require.Equal(t, "high", out[0].NoteID)

	filtered := Rerank(query, candidates, Config{MinScore: 0.5})
	require.Len(t, filtered, 1)
	require.Equal(t, "high", filtered[0].NoteID)
}
