package budget

import (
	"strings"
	"testing"

	"github.com/evidara/paperqa-go/internal/rag"
)

func Test_Estimate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		input string
		want  int
	}{
		{"", 0},
		{"a", 1},        // < 4 chars → 1
		{"abcd", 1},     // exactly 4 chars → 1
		{"abcde", 1},    // 5 chars → 1
		{"abcdefgh", 2}, // 8 chars → 2
		{strings.Repeat("x", 400), 100},
	}
	for _, tc := range cases {
		got := Estimate(tc.input)
		if got != tc.want {
			t.Errorf("Estimate(%q) = %d, want %d", tc.input, got, tc.want)
		}
	}
}

// scored builds a ranked chunk whose text costs exactly tokens under the
// heuristic (before the per-chunk overhead).
func scored(score float64, tokens int) rag.ScoredChunk {
	return rag.ScoredChunk{
		Chunk: rag.Chunk{Text: strings.Repeat("x", tokens*4)},
		Score: score,
	}
}

func Test_EstimateChunks(t *testing.T) {
	t.Parallel()
	chunks := []rag.ScoredChunk{scored(0.9, 100), scored(0.8, 50)}
	// Each chunk: 8 overhead + text tokens. 108 + 58 = 166.
	if got := EstimateChunks(chunks); got != 166 {
		t.Errorf("EstimateChunks = %d, want 166", got)
	}
}

func Test_TrimChunks_NoTrimNeeded(t *testing.T) {
	t.Parallel()
	ranked := []rag.ScoredChunk{scored(0.9, 100), scored(0.8, 100)}
	got := TrimChunks(ranked, DefaultMaxContextTokens)
	if len(got) != 2 {
		t.Errorf("want 2 chunks, got %d", len(got))
	}
}

func Test_TrimChunks_DropsLowestScoreFirst(t *testing.T) {
	t.Parallel()
	// Three chunks at 108 tokens each (100 text + 8 overhead) = 324 total.
	// A budget of 250 fits two (216) but not three; the tail (lowest score)
	// goes first.
	ranked := []rag.ScoredChunk{scored(0.9, 100), scored(0.8, 100), scored(0.7, 100)}
	got := TrimChunks(ranked, 250)
	if len(got) != 2 {
		t.Fatalf("want 2 chunks after trim, got %d", len(got))
	}
	if got[0].Score != 0.9 || got[1].Score != 0.8 {
		t.Errorf("want best two retained, got scores %v %v", got[0].Score, got[1].Score)
	}
}

func Test_TrimChunks_BestChunkAlwaysKept(t *testing.T) {
	t.Parallel()
	// A single oversized chunk must survive even though it blows the budget.
	ranked := []rag.ScoredChunk{scored(0.9, 7000), scored(0.8, 10)}
	got := TrimChunks(ranked, 100)
	if len(got) != 1 {
		t.Fatalf("want 1 chunk, got %d", len(got))
	}
	if got[0].Score != 0.9 {
		t.Errorf("want best chunk retained, got score %v", got[0].Score)
	}
}

func Test_TrimChunks_Empty(t *testing.T) {
	t.Parallel()
	if got := TrimChunks(nil, 100); len(got) != 0 {
		t.Errorf("want empty, got %d", len(got))
	}
}

func Test_TrimChunks_NonPositiveBudgetUsesDefault(t *testing.T) {
	t.Parallel()
	ranked := []rag.ScoredChunk{scored(0.9, 100), scored(0.8, 100)}
	got := TrimChunks(ranked, 0)
	if len(got) != 2 {
		t.Errorf("want default budget to keep both chunks, got %d", len(got))
	}
}
