package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/evidara/paperqa-go/internal/embedder"
	"github.com/evidara/paperqa-go/internal/qa"
	"github.com/evidara/paperqa-go/internal/rag"
	"github.com/evidara/paperqa-go/internal/store"
	"github.com/evidara/paperqa-go/internal/vectorstore"
)

// defaultDBPath returns the default SQLite path (~/.paperqa/papers.db),
// creating the parent directory if needed.
func defaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	dir := filepath.Join(home, ".paperqa")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	return filepath.Join(dir, "papers.db"), nil
}

// openMetadataStore opens the SQLite metadata store at PAPERQA_DB, falling
// back to the default path when unset.
func openMetadataStore() (*store.SQLiteStore, error) {
	path := os.Getenv("PAPERQA_DB")
	if path == "" {
		var err error
		path, err = defaultDBPath()
		if err != nil {
			return nil, err
		}
	}
	s, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open metadata store at %s: %w", path, err)
	}
	return s, nil
}

// buildVectorStore constructs the chunk store. When QDRANT_HOST is set the
// chunks live in Qdrant and survive restarts; otherwise an in-process store
// is used and the index is rebuilt on each run.
func buildVectorStore(ctx context.Context, log *slog.Logger) (rag.VectorStore, error) {
	host := os.Getenv("QDRANT_HOST")
	if host == "" {
		log.Info("vector store: in-memory (set QDRANT_HOST for persistence)")
		return vectorstore.NewMemory(), nil
	}

	embBackend := getEnvOrDefault("EMBEDDING_PROVIDER", getEnvOrDefault("MODEL_PROVIDER", "ollama"))
	port := getEnvInt("QDRANT_PORT", 6334)
	collection := getEnvOrDefault("QDRANT_COLLECTION", "paperqa-chunks")

	qs, err := vectorstore.NewQdrant(ctx, &vectorstore.QdrantConfig{
		Host:       host,
		Port:       port,
		Collection: collection,
		VectorSize: uint64(embedder.DefaultDimensions(embBackend)), //nolint:gosec // dimensions are bounded
		APIKey:     os.Getenv("QDRANT_API_KEY"),
		UseTLS:     os.Getenv("QDRANT_TLS") == "true",
	})
	if err != nil {
		return nil, fmt.Errorf("connect to Qdrant at %s:%d: %w", host, port, err)
	}
	log.Info("vector store: qdrant",
		slog.String("host", host),
		slog.Int("port", port),
		slog.String("collection", collection),
	)
	return qs, nil
}

// retrievalConfigFromEnv builds the retrieval tuning, starting from defaults
// and applying any env overrides.
func retrievalConfigFromEnv() qa.Config {
	cfg := qa.DefaultConfig()
	cfg.SearchMinScore = getEnvFloat("SEARCH_MIN_SCORE", cfg.SearchMinScore)
	cfg.QAMinScore = getEnvFloat("QA_MIN_SCORE", cfg.QAMinScore)
	cfg.SearchTopK = getEnvInt("SEARCH_TOP_K", cfg.SearchTopK)
	cfg.QATopK = getEnvInt("QA_TOP_K", cfg.QATopK)
	cfg.MaxContextTokens = getEnvInt("MAX_CONTEXT_TOKENS", cfg.MaxContextTokens)
	return cfg
}

// getEnvOrDefault returns the env var value or a fallback when unset.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the env var parsed as int, or a fallback when unset or
// unparsable.
func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// getEnvFloat returns the env var parsed as float64, or a fallback when
// unset or unparsable.
func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
