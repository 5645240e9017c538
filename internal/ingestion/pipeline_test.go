package ingestion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/evidara/paperqa-go/internal/rag"
	"github.com/evidara/paperqa-go/internal/store"
	"github.com/evidara/paperqa-go/internal/vectorstore"
)

// fakeEmbedder embeds every text to a fixed vector, optionally failing after
// a number of successful calls.
type fakeEmbedder struct {
	calls     int
	failAfter int // fail on call number failAfter+1; 0 with fail=false never fails
	fail      bool
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.fail && f.calls > f.failAfter {
		return nil, rag.ErrEmbeddingUnavailable
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func newTestPipeline(t *testing.T, emb *fakeEmbedder) (*Pipeline, *store.SQLiteStore, *vectorstore.Memory) {
	t.Helper()
	meta, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = meta.Close() })

	vectors := vectorstore.NewMemory()
	p, err := NewPipeline(emb, vectors, meta, Config{}, nil)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	return p, meta, vectors
}

func createPaper(t *testing.T, meta *store.SQLiteStore, id, fullText string) store.Paper {
	t.Helper()
	paper := store.Paper{
		ID: id, Title: "A Study", FullText: fullText,
		UploadedAt: time.Now(), Status: store.StatusProcessing,
	}
	if err := meta.CreatePaper(context.Background(), paper); err != nil {
		t.Fatalf("create paper: %v", err)
	}
	return paper
}

func Test_IngestPaper_ChunksEmbeddedAndStored(t *testing.T) {
	t.Parallel()
	emb := &fakeEmbedder{}
	p, meta, vectors := newTestPipeline(t, emb)
	paper := createPaper(t, meta, "p1", "First sentence here. Second sentence here.")

	if err := p.IngestPaper(context.Background(), paper); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	if vectors.Len() == 0 {
		t.Error("no chunks stored")
	}
	got, _ := meta.GetPaper(context.Background(), "p1")
	if got.Status != store.StatusProcessed {
		t.Errorf("want processed, got %s", got.Status)
	}
}

func Test_IngestPaper_EmbedFailureLeavesNoChunks(t *testing.T) {
	t.Parallel()
	// Enough text for several chunks; fail on the second embed call.
	text := ""
	for range 5 {
		text += "This sentence is repeated to pad the text well past the chunk bound so multiple chunks form. " +
			"It keeps going with more words to make each sentence long. " +
			"And more padding sentences follow after it to be safe. "
	}
	emb := &fakeEmbedder{fail: true, failAfter: 1}
	p, meta, vectors := newTestPipeline(t, emb)
	paper := createPaper(t, meta, "p1", text)

	err := p.IngestPaper(context.Background(), paper)
	if !errors.Is(err, rag.ErrEmbeddingUnavailable) {
		t.Fatalf("want ErrEmbeddingUnavailable, got %v", err)
	}
	if vectors.Len() != 0 {
		t.Errorf("failed ingestion must leave no chunks, got %d", vectors.Len())
	}
	got, _ := meta.GetPaper(context.Background(), "p1")
	if got.Status != store.StatusFailed {
		t.Errorf("want failed, got %s", got.Status)
	}
}

func Test_IngestPaper_SequentialEmbedding(t *testing.T) {
	t.Parallel()
	emb := &fakeEmbedder{}
	p, meta, _ := newTestPipeline(t, emb)
	paper := createPaper(t, meta, "p1", "One. Two. Three.")

	if err := p.IngestPaper(context.Background(), paper); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	// One embed call per chunk, each with a single input.
	if emb.calls == 0 {
		t.Fatal("embedder never called")
	}
}

func Test_IngestPaper_EmptyTextStillProcessed(t *testing.T) {
	t.Parallel()
	emb := &fakeEmbedder{}
	p, meta, vectors := newTestPipeline(t, emb)
	paper := createPaper(t, meta, "p1", "")

	if err := p.IngestPaper(context.Background(), paper); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if emb.calls != 0 {
		t.Errorf("embedder must not run for empty text, got %d calls", emb.calls)
	}
	if vectors.Len() != 0 {
		t.Errorf("want no chunks, got %d", vectors.Len())
	}
	got, _ := meta.GetPaper(context.Background(), "p1")
	if got.Status != store.StatusProcessed {
		t.Errorf("want processed, got %s", got.Status)
	}
}
