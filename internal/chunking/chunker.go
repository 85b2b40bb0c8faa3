// Package chunking implements the five note-chunking strategies and the
// chain-reconstruction algorithm that stitches chunked notes back into a
// single coherent document.
package chunking

import (
	"math"
	"regexp"
	"strings"

	"matric/internal/matricerr"
)

// Strategy names one of the five chunking algorithms.
type Strategy string

const (
	StrategyParagraph     Strategy = "paragraph"
	StrategySentence      Strategy = "sentence"
	StrategySlidingWindow Strategy = "sliding_window"
	StrategyRecursive     Strategy = "recursive"
	StrategySemantic      Strategy = "semantic"
)

// Config parameterizes chunking. MaxTokens is approximated as MaxTokens*4
// characters, matching the common token-length heuristic used when no
// tokenizer is wired in.
type Config struct {
	Strategy   Strategy
	MaxTokens  int
	Overlap    int // tokens of overlap between consecutive SlidingWindow chunks
	Separators []string // precedence order for Recursive; defaults applied if empty
}

// Chunk is one piece of a chunked document.
type Chunk struct {
	Index     int
	Text      string
	ByteRange [2]int
}

// Chunker splits text into an ordered list of Chunks.
type Chunker interface {
	Chunk(text string, cfg Config) ([]Chunk, error)
}

// SimpleChunker dispatches to one of the five strategies, generalizing the
// single-dispatch-function shape used for the teacher's text/markdown/code
// chunkers.
type SimpleChunker struct {
	// Embedder, when set, backs StrategySemantic. Nil falls back to
	// paragraph-boundary detection (see semanticChunk).
	Embedder SemanticEmbedder
}

// SemanticEmbedder is the narrow capability SimpleChunker needs for
// embedding-based boundary detection in StrategySemantic.
type SemanticEmbedder interface {
	Embed(text string) ([]float32, error)
}

func (c *SimpleChunker) Chunk(text string, cfg Config) ([]Chunk, error) {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 512
	}
	switch cfg.Strategy {
	case StrategyParagraph:
		return paragraphChunk(text, cfg), nil
	case StrategySentence:
		return sentenceChunk(text, cfg), nil
	case StrategySlidingWindow:
		return slidingWindowChunk(text, cfg), nil
	case StrategyRecursive:
		return recursiveChunk(text, cfg), nil
	case StrategySemantic:
		return c.semanticChunk(text, cfg)
	default:
		return nil, matricerr.Invalid("unsupported chunking strategy %q", cfg.Strategy)
	}
}

func targetLen(maxTokens int) int {
	if maxTokens <= 0 {
		maxTokens = 512
	}
	return maxTokens * 4
}

var blankLineRe = regexp.MustCompile(`\n\s*\n+`)

// paragraphChunk splits on blank lines, merging short paragraphs together up
// to the target length.
func paragraphChunk(text string, cfg Config) []Chunk {
	paras := splitKeepDelim(text, blankLineRe)
	return mergeToTarget(text, paras, targetLen(cfg.MaxTokens))
}

var sentenceEndRe = regexp.MustCompile(`(?s)([.!?])\s+`)

// sentenceChunk splits on sentence-ending punctuation followed by
// whitespace, then merges sentences up to the target length. This is a
// script-agnostic heuristic, not full language-aware segmentation.
func sentenceChunk(text string, cfg Config) []Chunk {
	sentences := splitKeepDelim(text, sentenceEndRe)
	return mergeToTarget(text, sentences, targetLen(cfg.MaxTokens))
}

func splitKeepDelim(text string, re *regexp.Regexp) []string {
	locs := re.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return []string{text}
	}
	var out []string
	start := 0
	for _, loc := range locs {
		out = append(out, text[start:loc[1]])
		start = loc[1]
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}

// mergeToTarget packs consecutive pieces into chunks no longer than
// targetChars (a single piece longer than that becomes its own chunk), and
// records each chunk's byte range in the original text. Chunk boundaries
// fall only between pieces; pieces must be contiguous slices of original.
func mergeToTarget(original string, pieces []string, targetChars int) []Chunk {
	var chunks []Chunk
	var cur strings.Builder
	offset := 0
	chunkStart := 0
	flush := func() {
		if cur.Len() == 0 {
			return
		}
		s := cur.String()
		chunks = append(chunks, Chunk{
			Index:     len(chunks),
			Text:      s,
			ByteRange: [2]int{chunkStart, chunkStart + len(s)},
		})
		cur.Reset()
	}
	for _, p := range pieces {
		if cur.Len() > 0 && cur.Len()+len(p) > targetChars {
			flush()
			chunkStart = offset
		}
		if cur.Len() == 0 {
			chunkStart = offset
		}
		cur.WriteString(p)
		offset += len(p)
	}
	flush()
	if len(chunks) == 0 && len(original) > 0 {
		chunks = append(chunks, Chunk{Index: 0, Text: original, ByteRange: [2]int{0, len(original)}})
	}
	return chunks
}

// slidingWindowChunk produces fixed-size, overlapping windows measured in
// approximate tokens (chars/4), snapped to whitespace boundaries.
func slidingWindowChunk(text string, cfg Config) []Chunk {
	windowChars := targetLen(cfg.MaxTokens)
	overlapChars := cfg.Overlap * 4
	if overlapChars >= windowChars {
		overlapChars = windowChars / 2
	}
	var chunks []Chunk
	pos := 0
	for pos < len(text) {
		end := pos + windowChars
		if end > len(text) {
			end = len(text)
		} else {
			end = snapToWhitespace(text, end)
		}
		chunks = append(chunks, Chunk{
			Index:     len(chunks),
			Text:      text[pos:end],
			ByteRange: [2]int{pos, end},
		})
		if end >= len(text) {
			break
		}
		next := end - overlapChars
		if next <= pos {
			next = end
		}
		pos = next
	}
	return chunks
}

func snapToWhitespace(text string, idx int) int {
	if idx >= len(text) {
		return len(text)
	}
	for i := idx; i > 0 && i > idx-40; i-- {
		if text[i] == ' ' || text[i] == '\n' {
			return i
		}
	}
	return idx
}

var defaultSeparators = []string{"\n\n", "\n", ". ", " "}

// recursiveChunk splits hierarchically by separator precedence: it tries
// the first separator, and recurses into any piece still over target using
// the next separator down, falling back to a hard cut at the target length.
func recursiveChunk(text string, cfg Config) []Chunk {
	seps := cfg.Separators
	if len(seps) == 0 {
		seps = defaultSeparators
	}
	target := targetLen(cfg.MaxTokens)
	pieces := recursiveSplit(text, seps, target)
	return mergeToTarget(text, pieces, target)
}

func recursiveSplit(text string, seps []string, target int) []string {
	if len(text) <= target || len(seps) == 0 {
		return hardSplit(text, target)
	}
	parts := strings.Split(text, seps[0])
	var out []string
	for i, p := range parts {
		piece := p
		if i < len(parts)-1 {
			piece += seps[0]
		}
		if len(piece) > target {
			out = append(out, recursiveSplit(piece, seps[1:], target)...)
		} else {
			out = append(out, piece)
		}
	}
	return out
}

func hardSplit(text string, target int) []string {
	if target <= 0 || len(text) <= target {
		return []string{text}
	}
	var out []string
	for len(text) > target {
		out = append(out, text[:target])
		text = text[target:]
	}
	if len(text) > 0 {
		out = append(out, text)
	}
	return out
}

// semanticChunk falls back to paragraph boundaries unless an embedder is
// configured; full embedding-distance boundary detection is a thin layer
// over paragraphChunk's boundaries plus a similarity-based merge pass.
func (c *SimpleChunker) semanticChunk(text string, cfg Config) ([]Chunk, error) {
	paras := splitKeepDelim(text, blankLineRe)
	if c.Embedder == nil || len(paras) <= 1 {
		return mergeToTarget(text, paras, targetLen(cfg.MaxTokens)), nil
	}

	vectors := make([][]float32, len(paras))
	for i, p := range paras {
		v, err := c.Embedder.Embed(p)
		if err != nil {
			return nil, matricerr.Inference(err, "failed to embed paragraph for semantic chunking")
		}
		vectors[i] = v
	}

	const similarityThreshold = 0.55
	var merged []string
	cur := paras[0]
	for i := 1; i < len(paras); i++ {
		if cosine(vectors[i-1], vectors[i]) >= similarityThreshold {
			cur += paras[i]
		} else {
			merged = append(merged, cur)
			cur = paras[i]
		}
	}
	merged = append(merged, cur)
	return mergeToTarget(text, merged, targetLen(cfg.MaxTokens)), nil
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
