// Package vectorstore provides the chunk+embedding stores behind the
// rag.VectorStore interface. The in-memory store is the default and the
// reference implementation: a flat collection scanned brute-force at query
// time, sized for corpora of a few thousand chunks. A Qdrant-backed store is
// available for deployments that want the corpus to outlive the process.
package vectorstore

import (
	"context"
	"sync"

	"github.com/evidara/paperqa-go/internal/rag"
)

// Memory is an in-memory rag.VectorStore. It is safe for concurrent use:
// searches rank over a snapshot taken at call time, so inserts and deletes
// never corrupt an in-flight scan (a racing insert may or may not be visible,
// which callers tolerate).
type Memory struct {
	// mu guards chunks.
	mu sync.RWMutex

	// chunks is the flat collection, in insertion order. Deletes replace the
	// slice rather than filtering in place so snapshots handed to readers
	// stay intact.
	chunks []rag.Chunk
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

// Upsert appends the given chunks to the store.
func (m *Memory) Upsert(_ context.Context, chunks []rag.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks = append(m.chunks, chunks...)
	return nil
}

// snapshot returns the current chunk slice. Readers iterate the returned
// slice without holding the lock; writers never mutate elements in place.
func (m *Memory) snapshot() []rag.Chunk {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.chunks
}

// Search ranks every stored chunk against queryVector and returns those
// strictly above minScore, descending by score, truncated to topK.
// Ranking runs outside the lock over a snapshot, so concurrent inserts are
// not blocked by a long scan.
func (m *Memory) Search(_ context.Context, queryVector []float32, minScore float64, topK int) ([]rag.ScoredChunk, error) {
	return rag.Rank(queryVector, m.snapshot(), minScore, topK), nil
}

// DeleteByPaper removes every chunk whose PaperID equals paperID. The
// surviving chunks are copied into a fresh slice so snapshots taken before
// the delete keep seeing the old collection.
func (m *Memory) DeleteByPaper(_ context.Context, paperID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := make([]rag.Chunk, 0, len(m.chunks))
	for _, c := range m.chunks {
		if c.PaperID != paperID {
			kept = append(kept, c)
		}
	}
	m.chunks = kept
	return nil
}

// Len returns the number of stored chunks.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunks)
}

// Close is a no-op for the in-memory store.
func (m *Memory) Close() error { return nil }
