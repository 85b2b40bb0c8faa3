package chunking

import (
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// ChunkNote is the subset of a note's fields reconstruction needs: its
// content, title, tags, and chain position, as encoded in note metadata.
type ChunkNote struct {
	NoteID        uuid.UUID
	Title         string
	Content       string
	Tags          []string
	ChainID       uuid.UUID
	ChunkSequence int
	TotalChunks   int
}

// Reconstructed is the result of stitching a chain back together.
type Reconstructed struct {
	Title    string
	Content  string
	Tags     []string
	Warnings []string
}

const (
	overlapWindow = 500
	minOverlap    = 50
)

// Reconstruct fetches-independent: callers pass every note belonging to a
// chain (already filtered to archived=false); this stitches them in
// chunk_sequence order, strips part-suffixes from the title, and unions
// tags. If total_chunks disagrees across chunks, the maximum observed value
// is used and a warning is emitted (resolves the spec's open question).
func Reconstruct(notes []ChunkNote) Reconstructed {
	if len(notes) == 0 {
		return Reconstructed{}
	}
	sorted := make([]ChunkNote, len(notes))
	copy(sorted, notes)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ChunkSequence < sorted[j].ChunkSequence })

	var warnings []string
	if len(sorted) == 1 {
		return Reconstructed{
			Title:   ExtractOriginalTitle(sorted[0].Title),
			Content: sorted[0].Content,
			Tags:    unionSortedTags(sorted),
		}
	}

	maxTotal := 0
	for _, n := range sorted {
		if n.TotalChunks > maxTotal {
			maxTotal = n.TotalChunks
		}
	}
	for _, n := range sorted {
		if n.TotalChunks != maxTotal {
			warnings = append(warnings, "total_chunks mismatch across chunks in chain")
			break
		}
	}

	expected := 0
	for _, n := range sorted {
		if n.ChunkSequence != expected {
			warnings = append(warnings, "missing chunk sequence in chain; reconstructed with gaps")
		}
		expected = n.ChunkSequence + 1
	}

	var sb strings.Builder
	sb.WriteString(sorted[0].Content)
	accumulated := sorted[0].Content
	for i := 1; i < len(sorted); i++ {
		next := sorted[i].Content
		overlap := DetectOverlap(accumulated, next)
		sb.WriteString(next[overlap:])
		accumulated = sb.String()
	}

	return Reconstructed{
		Title:    ExtractOriginalTitle(sorted[0].Title),
		Content:  sb.String(),
		Tags:     unionSortedTags(sorted),
		Warnings: warnings,
	}
}

func unionSortedTags(notes []ChunkNote) []string {
	set := map[string]struct{}{}
	for _, n := range notes {
		for _, t := range n.Tags {
			set[t] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// DetectOverlap returns the length of the longest suffix of accumulated
// that is also a prefix of next, considering only the last min(len(a),500)
// bytes of accumulated as candidates and requiring at least 50 bytes to
// count as a match (coincidental short matches are ignored).
func DetectOverlap(accumulated, next string) int {
	window := len(accumulated)
	if window > overlapWindow {
		window = overlapWindow
	}
	for length := window; length >= minOverlap; length-- {
		suffix := accumulated[len(accumulated)-length:]
		if strings.HasPrefix(next, suffix) {
			return length
		}
	}
	return 0
}

var titleSuffixPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\s*\(Part \d+/\d+\)\s*$`),
	regexp.MustCompile(`\s*-\s*Part \d+ of \d+\s*$`),
	regexp.MustCompile(`\s*\[\d+/\d+\]\s*$`),
}

// ExtractOriginalTitle strips recognized chunk-part suffixes from the end of
// a title, repeating until none is left. It is idempotent: calling it again
// on its own output is a no-op, since no suffix remains to be removed.
func ExtractOriginalTitle(title string) string {
	out := strings.TrimSpace(title)
	for {
		prev := out
		for _, re := range titleSuffixPatterns {
			out = re.ReplaceAllString(out, "")
		}
		out = strings.TrimSpace(out)
		if out == prev {
			return out
		}
	}
}
