// Package ingestion implements the paper ingestion pipeline: chunk the full
// text, embed each chunk, and upsert the results into the vector store. The
// pipeline is invoked by the paper upload handlers and the `paperqa ingest`
// CLI command.
package ingestion

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/evidara/paperqa-go/internal/chunker"
	"github.com/evidara/paperqa-go/internal/rag"
	"github.com/evidara/paperqa-go/internal/store"
)

// MetadataStore is the slice of the metadata store the pipeline needs.
type MetadataStore interface {
	UpdatePaperStatus(ctx context.Context, id string, status store.Status) error
}

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// MaxChunkSize is the soft character bound per chunk.
	// Defaults to chunker.DefaultMaxChunkSize if zero.
	MaxChunkSize int
}

// Pipeline orchestrates the chunk → embed → upsert flow for a paper.
type Pipeline struct {
	embedder rag.Embedder
	vectors  rag.VectorStore
	meta     MetadataStore
	cfg      Config
	log      *slog.Logger
}

// NewPipeline constructs a Pipeline from the provided dependencies.
func NewPipeline(embedder rag.Embedder, vectors rag.VectorStore, meta MetadataStore, cfg Config, log *slog.Logger) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if vectors == nil {
		return nil, fmt.Errorf("ingestion: vector store must not be nil")
	}
	if meta == nil {
		return nil, fmt.Errorf("ingestion: metadata store must not be nil")
	}
	if cfg.MaxChunkSize <= 0 {
		cfg.MaxChunkSize = chunker.DefaultMaxChunkSize
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{embedder: embedder, vectors: vectors, meta: meta, cfg: cfg, log: log}, nil
}

// IngestPaper chunks and embeds the paper's full text and stores the vectors.
// Chunks are embedded one at a time; each call blocks until the backend
// responds, so ingestion latency scales with chunk count. Nothing is upserted
// until every chunk has embedded: an embedding failure aborts the whole
// paper, marks it failed, and leaves no chunks behind.
func (p *Pipeline) IngestPaper(ctx context.Context, paper store.Paper) error {
	texts := chunker.Chunk(paper.FullText, p.cfg.MaxChunkSize)
	p.log.InfoContext(ctx, "ingesting paper",
		"paper_id", paper.ID, "title", paper.Title, "chunks", len(texts))

	chunks := make([]rag.Chunk, 0, len(texts))
	for i, text := range texts {
		vecs, err := p.embedder.Embed(ctx, []string{text})
		if err != nil {
			p.fail(ctx, paper.ID)
			return fmt.Errorf("ingestion: embed chunk %d of paper %s: %w", i, paper.ID, err)
		}
		if len(vecs) != 1 {
			p.fail(ctx, paper.ID)
			return fmt.Errorf("ingestion: embed chunk %d of paper %s: want 1 vector, got %d: %w",
				i, paper.ID, len(vecs), rag.ErrEmbeddingUnavailable)
		}
		chunks = append(chunks, rag.Chunk{
			ID:        uuid.NewString(),
			PaperID:   paper.ID,
			Text:      text,
			Index:     i,
			Embedding: vecs[0],
		})
	}

	if len(chunks) > 0 {
		if err := p.vectors.Upsert(ctx, chunks); err != nil {
			p.fail(ctx, paper.ID)
			return fmt.Errorf("ingestion: store chunks for paper %s: %w", paper.ID, err)
		}
	}

	if err := p.meta.UpdatePaperStatus(ctx, paper.ID, store.StatusProcessed); err != nil {
		return fmt.Errorf("ingestion: mark paper %s processed: %w", paper.ID, err)
	}
	return nil
}

// fail marks the paper failed, keeping the original error as the one the
// caller sees.
func (p *Pipeline) fail(ctx context.Context, paperID string) {
	if err := p.meta.UpdatePaperStatus(ctx, paperID, store.StatusFailed); err != nil {
		p.log.ErrorContext(ctx, "could not mark paper failed", "paper_id", paperID, "error", err)
	}
}
