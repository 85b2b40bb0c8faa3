package search

import "matric/internal/vectormath"

// TokenEmbedding is one per-token vector of a document or query, as stored
// in the token_embedding table (128-dim by convention).
type TokenEmbedding struct {
	Position int
	Vector   []float32
}

// Config tunes the ColBERT rerank stage.
type Config struct {
	MinScore float64 // optional cutoff; 0 disables
}

// Candidate is a document considered for ColBERT reranking.
type Candidate struct {
	NoteID string
	Tokens []TokenEmbedding
}

// Scored is a Candidate after MaxSim scoring.
type Scored struct {
	NoteID string
	Score  float64
}

// Rerank computes MaxSim(query, doc) for every candidate — for each query
// token, the maximum cosine similarity to any document token, summed over
// query tokens — and returns candidates sorted by descending score. A
// candidate is dropped if cfg.MinScore > 0 and its score falls below it.
func Rerank(query []TokenEmbedding, candidates []Candidate, cfg Config) []Scored {
	out := make([]Scored, 0, len(candidates))
	for _, cand := range candidates {
		score := computeMaxSim(query, cand.Tokens)
		if cfg.MinScore > 0 && score < cfg.MinScore {
			continue
		}
		out = append(out, Scored{NoteID: cand.NoteID, Score: score})
	}
	sortScoredDesc(out)
	return out
}

// computeMaxSim implements MaxSim(Q, D) = sum_i max_j cos(q_i, d_j).
func computeMaxSim(query []TokenEmbedding, doc []TokenEmbedding) float64 {
	var total float64
	for _, q := range query {
		best := -1.0
		for _, d := range doc {
			if sim := vectormath.CosineSimilarity(q.Vector, d.Vector); sim > best {
				best = sim
			}
		}
		if best > -1.0 {
			total += best
		}
	}
	return total
}

func sortScoredDesc(s []Scored) {
	// Insertion sort is sufficient: candidate lists are top-K (tens, not
	// thousands) by the time they reach ColBERT rerank.
	for i := 1; i < len(s); i++ {
		j := i
		for j > 0 && s[j-1].Score < s[j].Score {
			s[j-1], s[j] = s[j], s[j-1]
			j--
		}
	}
}
