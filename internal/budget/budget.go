// Package budget provides token budget estimation and context trimming for
// the QA pipeline. Because the service supports multiple LLM backends with
// different tokenizers, this package uses a conservative character-based
// heuristic: 1 token ≈ 4 characters (English prose). This deliberately
// under-estimates token counts to leave headroom for model-specific overhead.
package budget

import (
	"github.com/evidara/paperqa-go/internal/rag"
)

const (
	// charsPerToken is the conservative character-to-token ratio used for
	// estimation. 4 chars/token is standard for English; using 3 would be
	// more aggressive but risks overflowing context windows.
	charsPerToken = 4

	// chunkOverheadTokens accounts for the numbering and source-title
	// framing added around each chunk in the assembled prompt.
	chunkOverheadTokens = 8

	// DefaultMaxContextTokens is the default retrieval context budget in
	// tokens. Conservative enough to fit within 8k-context models while
	// leaving room for the question, instructions, and the answer.
	DefaultMaxContextTokens = 6000
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateChunks returns the estimated token count for a slice of retrieved
// chunks as they will appear in the assembled prompt.
func EstimateChunks(chunks []rag.ScoredChunk) int {
	total := 0
	for _, c := range chunks {
		total += chunkOverheadTokens
		total += Estimate(c.Text)
	}
	return total
}

// TrimChunks drops retrieved chunks lowest-score-first until the estimated
// token count fits within maxTokens. The input must be sorted best-first,
// which is what the ranker produces; trimming removes from the tail. The
// best chunk is always kept, even when it alone exceeds the budget, so the
// model always sees at least one source. A non-positive maxTokens applies
// DefaultMaxContextTokens.
func TrimChunks(ranked []rag.ScoredChunk, maxTokens int) []rag.ScoredChunk {
	if len(ranked) == 0 {
		return ranked
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxContextTokens
	}

	// Linear scan from the tail; retrieval topK is small.
	for len(ranked) > 1 {
		if EstimateChunks(ranked) <= maxTokens {
			break
		}
		ranked = ranked[:len(ranked)-1]
	}
	return ranked
}
