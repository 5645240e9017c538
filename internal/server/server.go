// Package server implements the HTTP server that exposes the paper QA
// service as a REST API: paper upload and ingestion, PICO and entity
// extraction, semantic search, and question answering.
// The server is started by the `paperqa serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/evidara/paperqa-go/internal/logging"
	"github.com/evidara/paperqa-go/internal/rag"
	"github.com/evidara/paperqa-go/internal/store"
)

// defaultMaxUploadBytes caps multipart PDF uploads at 32 MiB.
const defaultMaxUploadBytes = 32 << 20

// New constructs a Server from the provided dependencies and config.
func New(deps Deps, cfg *Config) (*Server, error) {
	if deps.Meta == nil || deps.QA == nil || deps.Extract == nil || deps.Ingest == nil || deps.Chunks == nil {
		return nil, fmt.Errorf("server: all dependencies must be provided")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// Ingestion embeds chunk-by-chunk and QA waits on generation; both
		// can take a while against slow backends.
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New()
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	if cfg.APIKey == "" {
		cfg.Logger.Warn("authentication disabled: no API key configured")
	}

	s := &Server{
		deps:    deps,
		cfg:     cfg,
		log:     cfg.Logger,
		pingers: cfg.Pingers,
		metrics: newServerMetrics(cfg.Registry),
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, cfg.Logger)
	s.stopRL = stopRL

	mux := http.NewServeMux()
	mux.Handle("GET /api/health", s.route("health", http.HandlerFunc(s.handleHealth)))
	mux.Handle("GET /api/ready", s.route("ready", http.HandlerFunc(s.handleReady)))

	protect := func(name string, h http.HandlerFunc) http.Handler {
		return s.route(name, authMiddleware(cfg.APIKey, rl.middleware(h)))
	}
	mux.Handle("GET /api/papers", protect("papers_list", s.handleListPapers))
	mux.Handle("POST /api/papers", protect("papers_create", s.handleCreatePaper))
	mux.Handle("POST /api/papers/upload-pdf", protect("papers_upload_pdf", s.handleUploadPDF))
	mux.Handle("GET /api/papers/{id}", protect("papers_get", s.handleGetPaper))
	mux.Handle("DELETE /api/papers/{id}", protect("papers_delete", s.handleDeletePaper))
	mux.Handle("POST /api/papers/{id}/extract-pico", protect("extract_pico", s.handleExtractPICO))
	mux.Handle("POST /api/papers/{id}/extract-entities", protect("extract_entities", s.handleExtractEntities))
	mux.Handle("GET /api/pico-elements", protect("pico_list", s.handleListPICO))
	mux.Handle("GET /api/entities", protect("entities_list", s.handleListEntities))
	mux.Handle("GET /api/search", protect("search", s.handleSearch))
	mux.Handle("POST /api/qa", protect("qa", s.handleQA))
	mux.Handle("GET /api/conversations", protect("conversations_list", s.handleListConversations))

	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(cfg.Logger, mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Handler returns the server's root handler, for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	defer s.stopRL()

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("paperqa server listening", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// route instruments a handler with per-endpoint request and latency metrics.
func (s *Server) route(name string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rw, r)
		s.metrics.httpRequestsTotal.WithLabelValues(r.Method, name, fmt.Sprintf("%d", rw.status)).Inc()
		s.metrics.httpDurationSeconds.WithLabelValues(r.Method, name).Observe(time.Since(start).Seconds())
	})
}

// respondJSON writes v as the JSON response body with the given status.
func respondJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("response encode error", slog.Any("error", err))
	}
}

// respondError maps an error to a status code and writes the JSON error
// body. Sentinels from the store and RAG layers pick the status; everything
// else is a 500.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, rag.ErrEmbeddingUnavailable), errors.Is(err, rag.ErrGenerationUnavailable):
		status = http.StatusBadGateway
	}

	log := logging.FromContext(r.Context())
	if status >= 500 {
		log.Error("request failed", slog.Int("status", status), slog.Any("error", err))
	} else {
		log.Warn("request rejected", slog.Int("status", status), slog.Any("error", err))
	}
	respondJSON(w, r, status, errorResponse{Error: err.Error()})
}

// badRequest writes a 400 with the given message.
func badRequest(w http.ResponseWriter, r *http.Request, msg string) {
	respondJSON(w, r, http.StatusBadRequest, errorResponse{Error: msg})
}
