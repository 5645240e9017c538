package rag

import (
	"math"
	"sort"
)

// CosineSimilarity returns the cosine of the angle between a and b:
// dot(a,b) / (‖a‖·‖b‖). It returns ErrDimensionMismatch when the vectors
// differ in length. A zero-norm operand yields a score of 0 rather than NaN.
// Accumulation is done in float64 so long vectors do not lose precision.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, ErrDimensionMismatch
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// Rank scores every chunk in corpus against query, discards candidates whose
// score is not strictly above minScore, sorts descending by score, and
// truncates to topK. Candidates whose embedding dimensionality disagrees with
// the query are skipped; the rest of the scan continues. Ties keep the
// original corpus order (stable sort), so repeated calls over the same
// snapshot are reproducible.
//
// The thresholds are the caller's policy, not the ranker's: exploratory
// search uses a stricter minScore than QA context assembly.
func Rank(query []float32, corpus []Chunk, minScore float64, topK int) []ScoredChunk {
	scored := make([]ScoredChunk, 0, len(corpus))
	for _, c := range corpus {
		score, err := CosineSimilarity(query, c.Embedding)
		if err != nil {
			// Dimension mismatch — skip this candidate, keep scanning.
			continue
		}
		if score <= minScore {
			continue
		}
		scored = append(scored, ScoredChunk{Chunk: c, Score: score})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if topK > 0 && len(scored) > topK {
		scored = scored[:topK]
	}
	return scored
}
