// Package rag defines the core types and interfaces of the retrieval
// pipeline: text chunks with their embeddings, vector storage, similarity
// ranking, and the two external capabilities (embedding and JSON generation).
// Concrete implementations (in-memory store, Qdrant, OpenAI, Ollama, eino
// chat models) satisfy these interfaces so the QA and extraction layers
// never depend on a specific backend.
package rag

import (
	"context"
)

// Chunk is a bounded passage of a paper's text, the unit of retrieval.
type Chunk struct {
	// ID is the unique identifier for this chunk.
	ID string

	// PaperID identifies the paper this chunk belongs to. A chunk belongs to
	// exactly one paper; deleting the paper deletes all its chunks.
	PaperID string

	// Text is the chunk's raw text content.
	Text string

	// Index is the 0-based ordinal of this chunk within its paper. Indexes
	// are contiguous and preserve the original document order.
	Index int

	// Embedding is the dense vector for Text. A chunk is stored only after
	// its embedding is computed; all chunks in a store share one dimensionality.
	Embedding []float32
}

// ScoredChunk pairs a stored chunk with its cosine similarity to a query
// vector. Score is in [-1, 1]; normalized embeddings yield [0, 1] in practice.
type ScoredChunk struct {
	Chunk

	// Score is the cosine similarity between the query vector and this
	// chunk's embedding.
	Score float64
}

// Embedder is the interface for converting text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines and must
// truncate over-long inputs to their backend's ceiling rather than erroring.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorStore is the interface for storing and searching chunk embeddings.
// Implementations must be safe to call from multiple goroutines: inserts may
// race with searches, and a search that misses an in-flight insert is
// acceptable (snapshot-at-call semantics).
type VectorStore interface {
	// Upsert stores a batch of chunks with their pre-computed embeddings.
	Upsert(ctx context.Context, chunks []Chunk) error

	// Search returns the chunks most similar to queryVector, strictly above
	// minScore, descending by score, truncated to topK. Stored vectors whose
	// dimensionality disagrees with the query are skipped, not fatal.
	Search(ctx context.Context, queryVector []float32, minScore float64, topK int) ([]ScoredChunk, error)

	// DeleteByPaper removes every chunk whose PaperID equals paperID.
	DeleteByPaper(ctx context.Context, paperID string) error

	// Close releases any resources held by the store.
	Close() error
}

// Generator is the interface for the JSON-constrained generation capability.
// Implementations must be safe to call from multiple goroutines.
type Generator interface {
	// GenerateJSON sends the system and user prompts to the model and
	// returns the raw bytes of the single JSON object in its reply.
	// It fails with ErrMalformedOutput when no JSON object can be found and
	// with ErrGenerationUnavailable when the backend call itself fails.
	GenerateJSON(ctx context.Context, systemPrompt, userPrompt string) ([]byte, error)
}
