package search

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFuseRRFPrefersItemsInBothLists(t *testing.T) {
	lex := []LexicalHit{{NoteID: "a", Score: 1}, {NoteID: "b", Score: 0.5}}
	vec := []VectorHit{{NoteID: "b", Score: 0.9}, {NoteID: "c", Score: 0.8}}
	fused := FuseRRF(lex, vec, FusionOptions{Alpha: 0.5})

	var byID = map[string]Fused{}
	for _, f := range fused {
		byID[f.NoteID] = f
	}
	require.Contains(t, byID, "a")
	require.Contains(t, byID, "b")
	require.Contains(t, byID, "c")
	// "b" appears in both lists, so it should score higher than "c" (vector-only, rank 2).
	require.Greater(t, byID["b"].Score, byID["c"].Score)
}

func TestDeduplicateChainsKeepsBest(t *testing.T) {
	results := []Fused{
		{NoteID: "chunk1", Score: 0.4},
		{NoteID: "chunk2", Score: 0.9},
		{NoteID: "standalone", Score: 0.3},
	}
	chainOf := func(id string) string {
		if id == "chunk1" || id == "chunk2" {
			return "chain-a"
		}
		return ""
	}
	deduped := DeduplicateChains(results, chainOf)
	require.Len(t, deduped, 2)
	var gotChain, gotStandalone bool
	for _, r := range deduped {
		if r.ChainID == "chain-a" {
			require.Equal(t, "chunk2", r.NoteID)
			gotChain = true
		}
		if r.NoteID == "standalone" {
			gotStandalone = true
		}
	}
	require.True(t, gotChain)
	require.True(t, gotStandalone)
}

func TestSortDeterministicTieBreak(t *testing.T) {
	now := time.Now()
	results := []Fused{
		{NoteID: "b", Score: 1.0, CreatedAt: now},
		{NoteID: "a", Score: 1.0, CreatedAt: now.Add(time.Hour)},
	}
	SortDeterministic(results)
	// Equal score -> higher note_id first.
	require.Equal(t, "b", results[0].NoteID)
}

func TestDiversifyReducesChainDominance(t *testing.T) {
	results := []Fused{
		{NoteID: "1", Score: 1.0, ChainID: "x"},
		{NoteID: "2", Score: 0.9, ChainID: "x"},
		{NoteID: "3", Score: 0.8, ChainID: "y"},
	}
	out := Diversify(results, 2, true)
	require.Len(t, out, 2)
	require.Equal(t, "1", out[0].NoteID)
	// Second pick should favor diversifying away from chain "x" over "2".
	require.Equal(t, "3", out[1].NoteID)
}

func TestDiversifyDisabledReturnsTopK(t *testing.T) {
	results := []Fused{{NoteID: "1", Score: 1}, {NoteID: "2", Score: 0.5}, {NoteID: "3", Score: 0.1}}
	out := Diversify(results, 2, false)
	require.Len(t, out, 2)
	require.Equal(t, "1", out[0].NoteID)
}
