package chunking

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func repeatOverlap(n int) string {
	s := ""
	for len(s) < n {
		s += "0123456789"
	}
	return s[:n]
}

func TestDetectOverlapBasic(t *testing.T) {
	overlap := repeatOverlap(60)
	a := "prefix-part-one-" + overlap
	b := overlap + "-suffix-part-two"
	require.Equal(t, 60, DetectOverlap(a, b))
	require.Equal(t, 0, DetectOverlap("abc", "xyz"))
}

func TestDetectOverlapBelowMinimumIgnored(t *testing.T) {
	// Only a 3-byte coincidental match, well below the 50-byte minimum.
	require.Equal(t, 0, DetectOverlap("hello world foo", "foo bar baz"))
}

func TestChainStitchingThreeChunks(t *testing.T) {
	chain := uuid.Must(uuid.NewV7())
	ov1 := repeatOverlap(60)
	ov2 := repeatOverlap(60)
	chunk0 := "abc-" + ov1
	chunk1 := ov1 + "-mid-" + ov2
	chunk2 := ov2 + "-end"
	notes := []ChunkNote{
		{ChunkSequence: 0, TotalChunks: 3, Content: chunk0, ChainID: chain, Title: "Doc (Part 1/3)"},
		{ChunkSequence: 1, TotalChunks: 3, Content: chunk1, ChainID: chain},
		{ChunkSequence: 2, TotalChunks: 3, Content: chunk2, ChainID: chain},
	}
	result := Reconstruct(notes)
	require.Equal(t, "abc-"+ov1+"-mid-"+ov2+"-end", result.Content)
	require.Equal(t, "Doc", result.Title)
	require.Empty(t, result.Warnings)
}

func TestReconstructSingleChunkNoStitching(t *testing.T) {
	notes := []ChunkNote{{ChunkSequence: 0, TotalChunks: 1, Content: "just one chunk", Title: "Solo"}}
	result := Reconstruct(notes)
	require.Equal(t, "just one chunk", result.Content)
}

func TestReconstructMissingSequenceWarns(t *testing.T) {
	notes := []ChunkNote{
		{ChunkSequence: 0, TotalChunks: 3, Content: "first "},
		{ChunkSequence: 2, TotalChunks: 3, Content: "third"},
	}
	result := Reconstruct(notes)
	require.NotEmpty(t, result.Warnings)
}

func TestReconstructTotalChunksMismatchTakesMax(t *testing.T) {
	notes := []ChunkNote{
		{ChunkSequence: 0, TotalChunks: 2, Content: "a"},
		{ChunkSequence: 1, TotalChunks: 3, Content: "b"},
	}
	result := Reconstruct(notes)
	found := false
	for _, w := range result.Warnings {
		if w == "total_chunks mismatch across chunks in chain" {
			found = true
		}
	}
	require.True(t, found)
}

func TestExtractOriginalTitleIdempotent(t *testing.T) {
	cases := []string{
		"My Document (Part 2/5)",
		"My Document - Part 2 of 5",
		"My Document [2/5]",
		"My Document",
	}
	for _, title := range cases {
		once := ExtractOriginalTitle(title)
		twice := ExtractOriginalTitle(once)
		require.Equal(t, once, twice, title)
	}
	require.Equal(t, "My Document", ExtractOriginalTitle("My Document (Part 2/5)"))
}

func TestReconstructUnionsAndSortsTags(t *testing.T) {
	notes := []ChunkNote{
		{ChunkSequence: 0, TotalChunks: 2, Content: "a", Tags: []string{"zeta", "alpha"}},
		{ChunkSequence: 1, TotalChunks: 2, Content: "a", Tags: []string{"alpha", "beta"}},
	}
	result := Reconstruct(notes)
	require.Equal(t, []string{"alpha", "beta", "zeta"}, result.Tags)
}
