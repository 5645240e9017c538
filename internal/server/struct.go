package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/evidara/paperqa-go/internal/qa"
	"github.com/evidara/paperqa-go/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	// Must cover a full QA round trip to the generation backend.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, slog.Default is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// Registry receives the server's Prometheus metrics. If nil a private
	// registry is created; /metrics always serves whichever registry is used.
	Registry *prometheus.Registry
	// MaxUploadBytes caps multipart PDF uploads. Defaults to 32 MiB if zero.
	MaxUploadBytes int64
}

// QAService answers questions and searches the corpus.
// *qa.Service satisfies it; tests inject fakes.
type QAService interface {
	Search(ctx context.Context, query string) ([]qa.SearchResult, error)
	Ask(ctx context.Context, question string) (qa.Answer, error)
}

// Extractor runs structured extraction for a paper.
// *extract.Service satisfies it.
type Extractor interface {
	PICO(ctx context.Context, paperID string) (store.PICOElement, error)
	Entities(ctx context.Context, paperID string) ([]store.Entity, error)
}

// Ingestor chunks, embeds, and stores a paper's text.
// *ingestion.Pipeline satisfies it.
type Ingestor interface {
	IngestPaper(ctx context.Context, paper store.Paper) error
}

// ChunkStore is the vector-store slice the server needs for deletes.
type ChunkStore interface {
	DeleteByPaper(ctx context.Context, paperID string) error
}

// Deps carries the collaborators the server routes requests to.
type Deps struct {
	Meta    store.Store
	QA      QAService
	Extract Extractor
	Ingest  Ingestor
	Chunks  ChunkStore
}

// Server is the HTTP server exposing the paper QA REST API.
type Server struct {
	deps Deps
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus instruments owned by this server.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// createPaperRequest is the JSON body for POST /api/papers.
type createPaperRequest struct {
	Title    string `json:"title"`
	Authors  string `json:"authors"`
	Abstract string `json:"abstract"`
	FullText string `json:"fullText"`
}

// paperResponse is the JSON shape for a paper.
type paperResponse struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Authors    string    `json:"authors"`
	Abstract   string    `json:"abstract"`
	FullText   string    `json:"fullText,omitempty"`
	UploadedAt time.Time `json:"uploadedAt"`
	Status     string    `json:"status"`
}

// picoResponse is the JSON shape for a PICO extraction.
type picoResponse struct {
	PaperID      string          `json:"paperId"`
	Population   store.PICOField `json:"population"`
	Intervention store.PICOField `json:"intervention"`
	Comparison   store.PICOField `json:"comparison"`
	Outcome      store.PICOField `json:"outcome"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// entityResponse is the JSON shape for an extracted entity.
type entityResponse struct {
	ID        string `json:"id"`
	PaperID   string `json:"paperId"`
	Type      string `json:"type"`
	Name      string `json:"name"`
	Frequency int    `json:"frequency"`
}

// qaRequest is the JSON body for POST /api/qa.
type qaRequest struct {
	Question string `json:"question"`
}

// answerResponse is the JSON shape for an unrecorded fallback answer.
type answerResponse struct {
	Answer    string           `json:"answer"`
	Citations []store.Citation `json:"citations"`
}

// conversationResponse is the JSON shape for a recorded Q&A turn.
type conversationResponse struct {
	ID        string           `json:"id"`
	Question  string           `json:"question"`
	Answer    string           `json:"answer"`
	Citations []store.Citation `json:"citations"`
	CreatedAt time.Time        `json:"createdAt"`
}

// errorResponse is the JSON body for all error statuses.
type errorResponse struct {
	Error string `json:"error"`
}
