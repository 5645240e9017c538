package vectorstore

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/evidara/paperqa-go/internal/rag"
)

// chunkFor builds a chunk with a one-hot-ish embedding for test corpora.
func chunkFor(paperID string, idx int, vec []float32) rag.Chunk {
	return rag.Chunk{
		ID:        fmt.Sprintf("%s-%d", paperID, idx),
		PaperID:   paperID,
		Text:      fmt.Sprintf("chunk %d of %s", idx, paperID),
		Index:     idx,
		Embedding: vec,
	}
}

func Test_Memory_UpsertAndSearch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemory()

	if err := m.Upsert(ctx, []rag.Chunk{
		chunkFor("p1", 0, []float32{1, 0}),
		chunkFor("p1", 1, []float32{0, 1}),
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := m.Search(ctx, []float32{1, 0}, 0.5, 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("want 1 result above 0.5, got %d", len(got))
	}
	if got[0].Index != 0 || got[0].PaperID != "p1" {
		t.Errorf("unexpected result: %+v", got[0])
	}
}

func Test_Memory_SearchEmptyStore(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	got, err := m.Search(context.Background(), []float32{1, 0}, 0.6, 5)
	if err != nil {
		t.Fatalf("search on empty store must not error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("want empty result list, got %d", len(got))
	}
}

func Test_Memory_DeleteByPaperRemovesAllChunks(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemory()

	_ = m.Upsert(ctx, []rag.Chunk{
		chunkFor("doomed", 0, []float32{1, 0}),
		chunkFor("doomed", 1, []float32{1, 0}),
		chunkFor("kept", 0, []float32{1, 0}),
	})

	if err := m.DeleteByPaper(ctx, "doomed"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	got, err := m.Search(ctx, []float32{1, 0}, -1, 100)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	for _, sc := range got {
		if sc.PaperID == "doomed" {
			t.Errorf("deleted paper's chunk surfaced: %+v", sc)
		}
	}
	if m.Len() != 1 {
		t.Errorf("want 1 surviving chunk, got %d", m.Len())
	}
}

// Concurrent inserts and deletes must never corrupt a scan. Run with -race.
func Test_Memory_ConcurrentInsertDuringSearch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemory()

	_ = m.Upsert(ctx, []rag.Chunk{chunkFor("base", 0, []float32{1, 0})})

	var wg sync.WaitGroup
	for w := range 4 {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			paper := fmt.Sprintf("writer-%d", w)
			for i := range 50 {
				_ = m.Upsert(ctx, []rag.Chunk{chunkFor(paper, i, []float32{1, 0})})
			}
			_ = m.DeleteByPaper(ctx, paper)
		}(w)
	}

	for range 200 {
		got, err := m.Search(ctx, []float32{1, 0}, 0.5, 1000)
		if err != nil {
			t.Fatalf("search during writes: %v", err)
		}
		for _, sc := range got {
			if len(sc.Embedding) != 2 {
				t.Fatalf("scan observed a corrupt chunk: %+v", sc)
			}
		}
	}
	wg.Wait()

	// The base chunk survives every writer's delete.
	got, _ := m.Search(ctx, []float32{1, 0}, 0.5, 1000)
	found := false
	for _, sc := range got {
		if sc.PaperID == "base" {
			found = true
		}
	}
	if !found {
		t.Error("base chunk missing after concurrent writes")
	}
}
