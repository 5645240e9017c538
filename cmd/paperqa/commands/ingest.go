package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/evidara/paperqa-go/internal/embedder"
	"github.com/evidara/paperqa-go/internal/ingestion"
	"github.com/evidara/paperqa-go/internal/logging"
	"github.com/evidara/paperqa-go/internal/pdfextract"
	"github.com/evidara/paperqa-go/internal/store"
)

// NewIngestCmd constructs the `paperqa ingest` command, which uploads a paper
// from the local filesystem and runs the ingestion pipeline against it.
func NewIngestCmd() *cobra.Command {
	var title string
	var authors string
	var abstract string

	cmd := &cobra.Command{
		Use:   "ingest [file]",
		Short: "Ingest a paper into the QA index",
		Long: `Chunk, embed, and index a paper so it can be searched and questioned.

The file may be a PDF (text is extracted automatically) or a plain text file.
Paper metadata is stored in the SQLite database at PAPERQA_DB (default
~/.paperqa/papers.db); chunk embeddings go to Qdrant when QDRANT_HOST is set.

Required environment variables:
  MODEL_PROVIDER       Embedding backend: ollama, openai, azure (default: ollama)
  EMBEDDING_*          Provider-specific overrides (see README)

Examples:
  paperqa ingest --title "Metformin in T2D" --authors "Doe et al." paper.pdf
  QDRANT_HOST=localhost paperqa ingest --title "Sleep and memory" notes.txt`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			if strings.TrimSpace(title) == "" {
				return fmt.Errorf("ingest: --title is required")
			}

			fullText, err := readPaperText(args[0])
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			if strings.TrimSpace(fullText) == "" {
				return fmt.Errorf("ingest: %s contains no extractable text", args[0])
			}

			if err := embedder.Validate(log); err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			emb, err := embedder.NewFromEnv()
			if err != nil {
				return fmt.Errorf("ingest: failed to initialise embedder: %w", err)
			}

			meta, err := openMetadataStore()
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer func() { _ = meta.Close() }()

			vectors, err := buildVectorStore(ctx, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer func() { _ = vectors.Close() }()

			pipeline, err := ingestion.NewPipeline(emb, vectors, meta, ingestion.Config{}, log)
			if err != nil {
				return fmt.Errorf("ingest: failed to create pipeline: %w", err)
			}

			paper := store.Paper{
				ID:         uuid.NewString(),
				Title:      title,
				Authors:    authors,
				Abstract:   abstract,
				FullText:   fullText,
				UploadedAt: time.Now(),
				Status:     store.StatusProcessing,
			}
			if err := meta.CreatePaper(ctx, paper); err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			log.Info("starting ingestion",
				slog.String("paper_id", paper.ID),
				slog.String("title", paper.Title),
			)
			if err := pipeline.IngestPaper(ctx, paper); err != nil {
				return fmt.Errorf("ingest: pipeline failed: %w", err)
			}

			log.Info("ingestion complete", slog.String("paper_id", paper.ID))
			fmt.Printf("ingested %q as paper %s\n", paper.Title, paper.ID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&title, "title", "t", "", "Paper title (required)")
	cmd.Flags().StringVarP(&authors, "authors", "a", "", "Paper authors")
	cmd.Flags().StringVar(&abstract, "abstract", "", "Paper abstract")

	return cmd
}

// readPaperText loads the paper's full text from disk, extracting text from
// PDFs and reading anything else verbatim.
func readPaperText(path string) (string, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		f, err := os.Open(path)
		if err != nil {
			return "", fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()
		text, err := pdfextract.ExtractText(f)
		if err != nil {
			return "", fmt.Errorf("extract text from %s: %w", path, err)
		}
		return text, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}
