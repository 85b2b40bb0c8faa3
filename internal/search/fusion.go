package search

import (
	"sort"
	"time"
)

// LexicalHit is one full-text search result, ranked by the FTS path.
type LexicalHit struct {
	NoteID    string
	Score     float64
	Snippet   string
	CreatedAt time.Time
}

// VectorHit is one dense-vector search result, ranked by cosine distance
// (lower is better; converted to a similarity-style score before fusion).
// CreatedAt is zero when the hit came from a backend (e.g. Qdrant) that
// doesn't carry note metadata; the engine backfills it post-fusion.
type VectorHit struct {
	NoteID    string
	Score     float64
	CreatedAt time.Time
}

// FusionOptions configures Reciprocal Rank Fusion.
type FusionOptions struct {
	Alpha float64 // weight given to the lexical path; vector gets 1-Alpha
	RRFK  int     // RRF denominator constant; defaults to 60 if <= 0
}

// Fused is one note after RRF combination of its lexical and vector ranks.
type Fused struct {
	NoteID     string
	LexRank    int // 1-based; 0 if absent from the lexical list
	VecRank    int // 1-based; 0 if absent from the vector list
	Score      float64
	Snippet    string
	ChainID    string // empty if this note is not part of a chain
	CreatedAt  time.Time
}

// FuseRRF combines lexical and vector hit lists via Reciprocal Rank Fusion:
// contribution(rank) = 1 / (k + rank); score = alpha*lex + (1-alpha)*vec.
func FuseRRF(lex []LexicalHit, vec []VectorHit, opt FusionOptions) []Fused {
	alpha := opt.Alpha
	if alpha < 0 {
		alpha = 0
	}
	if alpha > 1 {
		alpha = 1
	}
	k := opt.RRFK
	if k <= 0 {
		k = 60
	}

	lexPos := make(map[string]int, len(lex))
	lexByID := make(map[string]LexicalHit, len(lex))
	for i, h := range lex {
		lexPos[h.NoteID] = i + 1
		lexByID[h.NoteID] = h
	}
	vecPos := make(map[string]int, len(vec))
	for i, h := range vec {
		vecPos[h.NoteID] = i + 1
	}

	seen := map[string]struct{}{}
	var ids []string
	add := func(id string) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	for _, h := range lex {
		add(h.NoteID)
	}
	for _, h := range vec {
		add(h.NoteID)
	}

	vecByID := make(map[string]VectorHit, len(vec))
	for _, h := range vec {
		vecByID[h.NoteID] = h
	}

	out := make([]Fused, 0, len(ids))
	for _, id := range ids {
		lr, vr := lexPos[id], vecPos[id]
		var lexContrib, vecContrib float64
		if lr > 0 {
			lexContrib = 1.0 / float64(k+lr)
		}
		if vr > 0 {
			vecContrib = 1.0 / float64(k+vr)
		}
		createdAt := lexByID[id].CreatedAt
		if createdAt.IsZero() {
			createdAt = vecByID[id].CreatedAt
		}
		out = append(out, Fused{
			NoteID:    id,
			LexRank:   lr,
			VecRank:   vr,
			Score:     alpha*lexContrib + (1-alpha)*vecContrib,
			Snippet:   lexByID[id].Snippet,
			CreatedAt: createdAt,
		})
	}
	return out
}

// DeduplicateChains keeps only the best-scoring result per chain_id,
// leaving non-chained notes untouched. chainOf resolves a note id to its
// chain id (empty string if the note is not part of a chain).
func DeduplicateChains(results []Fused, chainOf func(noteID string) string) []Fused {
	bestByChain := map[string]int{} // chain id -> index into out
	var out []Fused
	for _, r := range results {
		chain := chainOf(r.NoteID)
		r.ChainID = chain
		if chain == "" {
			out = append(out, r)
			continue
		}
		if idx, ok := bestByChain[chain]; ok {
			if r.Score > out[idx].Score {
				out[idx] = r
			}
			continue
		}
		bestByChain[chain] = len(out)
		out = append(out, r)
	}
	return out
}

// SortDeterministic orders results by (score desc, note_id desc, created_at
// desc), the fixed tie-break the search engine guarantees.
func SortDeterministic(results []Fused) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.NoteID != b.NoteID {
			return a.NoteID > b.NoteID
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
}

// Diversify greedily re-ranks fused results to reduce repeated dominance by
// the same chain, applying a multiplicative penalty as a chain's selected
// count grows, then truncates to k.
func Diversify(results []Fused, k int, enabled bool) []Fused {
	if !enabled || k <= 0 || len(results) <= 1 {
		if k > 0 && k < len(results) {
			return append([]Fused{}, results[:k]...)
		}
		return results
	}
	const lambdaChain = 0.75
	chainCount := map[string]int{}
	used := make([]bool, len(results))
	out := make([]Fused, 0, min(k, len(results)))
	for len(out) < k {
		bestIdx := -1
		bestAdj := -1.0
		for i, r := range results {
			if used[i] {
				continue
			}
			denom := 1.0 + lambdaChain*float64(chainCount[r.ChainID])
			adj := r.Score / denom
			if adj > bestAdj {
				bestAdj = adj
				bestIdx = i
			}
		}
		if bestIdx == -1 {
			break
		}
		used[bestIdx] = true
		out = append(out, results[bestIdx])
		chainCount[results[bestIdx].ChainID]++
		if len(out) == len(results) {
			break
		}
	}
	return out
}
