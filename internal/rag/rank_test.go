package rag

import (
	"math"
	"testing"
)

func Test_CosineSimilarity_SelfSimilarityIsOne(t *testing.T) {
	t.Parallel()

	v := []float32{0.3, -1.2, 4.5, 0.01}
	got, err := CosineSimilarity(v, v)
	if err != nil {
		t.Fatalf("cosine: %v", err)
	}
	if math.Abs(got-1.0) > 1e-9 {
		t.Errorf("self-similarity: want 1.0, got %v", got)
	}
}

func Test_CosineSimilarity_Symmetric(t *testing.T) {
	t.Parallel()

	a := []float32{1, 2, 3}
	b := []float32{-2, 0.5, 7}

	ab, err := CosineSimilarity(a, b)
	if err != nil {
		t.Fatalf("cosine(a,b): %v", err)
	}
	ba, err := CosineSimilarity(b, a)
	if err != nil {
		t.Fatalf("cosine(b,a): %v", err)
	}
	if ab != ba {
		t.Errorf("symmetry: cosine(a,b)=%v, cosine(b,a)=%v", ab, ba)
	}
}

func Test_CosineSimilarity_OppositeVectors(t *testing.T) {
	t.Parallel()

	a := []float32{1, 0}
	b := []float32{-1, 0}
	got, err := CosineSimilarity(a, b)
	if err != nil {
		t.Fatalf("cosine: %v", err)
	}
	if math.Abs(got-(-1.0)) > 1e-9 {
		t.Errorf("opposite vectors: want -1.0, got %v", got)
	}
}

func Test_CosineSimilarity_DimensionMismatch(t *testing.T) {
	t.Parallel()

	_, err := CosineSimilarity([]float32{1, 2}, []float32{1, 2, 3})
	if err != ErrDimensionMismatch {
		t.Errorf("want ErrDimensionMismatch, got %v", err)
	}
}

func Test_CosineSimilarity_ZeroVectorScoresZero(t *testing.T) {
	t.Parallel()

	got, err := CosineSimilarity([]float32{0, 0, 0}, []float32{1, 2, 3})
	if err != nil {
		t.Fatalf("cosine: %v", err)
	}
	if got != 0 {
		t.Errorf("zero vector: want 0, got %v", got)
	}
	if math.IsNaN(got) {
		t.Error("zero vector produced NaN")
	}
}

// corpusOf builds a corpus of single-dimension-varying chunks for Rank tests.
func corpusOf(vectors ...[]float32) []Chunk {
	corpus := make([]Chunk, len(vectors))
	for i, v := range vectors {
		corpus[i] = Chunk{
			ID:        string(rune('a' + i)),
			PaperID:   "paper-1",
			Text:      "chunk",
			Index:     i,
			Embedding: v,
		}
	}
	return corpus
}

func Test_Rank_SortedDescendingAboveThreshold(t *testing.T) {
	t.Parallel()

	query := []float32{1, 0}
	corpus := corpusOf(
		[]float32{0.5, 0.866}, // ~0.5
		[]float32{1, 0},       // 1.0
		[]float32{0.866, 0.5}, // ~0.866
		[]float32{-1, 0},      // -1.0
	)

	got := Rank(query, corpus, 0.6, 10)
	if len(got) != 2 {
		t.Fatalf("want 2 results above 0.6, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Score > got[i-1].Score {
			t.Errorf("not descending: score[%d]=%v > score[%d]=%v", i, got[i].Score, i-1, got[i-1].Score)
		}
	}
	for _, sc := range got {
		if sc.Score <= 0.6 {
			t.Errorf("result at or below minScore: %v", sc.Score)
		}
	}
	if got[0].Index != 1 {
		t.Errorf("best match: want corpus index 1, got %d", got[0].Index)
	}
}

func Test_Rank_ExactThresholdIsDiscarded(t *testing.T) {
	t.Parallel()

	query := []float32{1, 0}
	corpus := corpusOf([]float32{2, 0}) // score exactly 1.0

	if got := Rank(query, corpus, 1.0, 10); len(got) != 0 {
		t.Errorf("score equal to minScore must be discarded, got %d results", len(got))
	}
}

func Test_Rank_SkipsDimensionMismatch(t *testing.T) {
	t.Parallel()

	query := []float32{1, 0}
	corpus := corpusOf(
		[]float32{1, 0, 0}, // wrong dimensionality — skipped
		[]float32{1, 0},
	)

	got := Rank(query, corpus, 0.0, 10)
	if len(got) != 1 {
		t.Fatalf("want 1 result after skipping mismatch, got %d", len(got))
	}
	if got[0].Index != 1 {
		t.Errorf("surviving chunk: want index 1, got %d", got[0].Index)
	}
}

func Test_Rank_TiesKeepScanOrder(t *testing.T) {
	t.Parallel()

	query := []float32{1, 0}
	// Both candidates score exactly 1.0.
	corpus := corpusOf(
		[]float32{3, 0},
		[]float32{7, 0},
	)

	got := Rank(query, corpus, 0.5, 10)
	if len(got) != 2 {
		t.Fatalf("want 2 results, got %d", len(got))
	}
	if got[0].Index != 0 || got[1].Index != 1 {
		t.Errorf("tie order: want scan order [0 1], got [%d %d]", got[0].Index, got[1].Index)
	}
}

func Test_Rank_TruncatesToTopK(t *testing.T) {
	t.Parallel()

	query := []float32{1, 0}
	corpus := corpusOf(
		[]float32{1, 0.1},
		[]float32{1, 0.2},
		[]float32{1, 0.3},
		[]float32{1, 0.4},
	)

	got := Rank(query, corpus, 0.0, 2)
	if len(got) != 2 {
		t.Fatalf("want topK=2 results, got %d", len(got))
	}
}

func Test_Rank_EmptyCorpus(t *testing.T) {
	t.Parallel()

	got := Rank([]float32{1, 0}, nil, 0.6, 5)
	if len(got) != 0 {
		t.Errorf("empty corpus: want 0 results, got %d", len(got))
	}
}
