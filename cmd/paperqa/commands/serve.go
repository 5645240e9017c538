package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/evidara/paperqa-go/internal/embedder"
	"github.com/evidara/paperqa-go/internal/extract"
	"github.com/evidara/paperqa-go/internal/ingestion"
	"github.com/evidara/paperqa-go/internal/logging"
	"github.com/evidara/paperqa-go/internal/provider"
	"github.com/evidara/paperqa-go/internal/qa"
	"github.com/evidara/paperqa-go/internal/server"
	"github.com/evidara/paperqa-go/internal/tracing"
	"github.com/evidara/paperqa-go/internal/vectorstore"
)

// NewServeCmd constructs the `paperqa serve` command, which starts the HTTP
// server exposing the paper QA REST API.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the paper QA HTTP server",
		Long: `Start the paper QA HTTP server on localhost.

The server exposes a REST API for uploading papers, semantic search,
question answering with citations, and PICO/entity extraction.

Examples:
  paperqa serve
  paperqa serve --port 9090
  MODEL_PROVIDER=openai paperqa serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			// Setup Langfuse tracing, opt-in and a no-op if keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			chatModel, err := provider.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("serve: failed to initialise model provider: %w", err)
			}
			gen, err := provider.NewJSONClient(chatModel)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			log.Info("provider initialised", slog.String("provider", getEnvOrDefault("MODEL_PROVIDER", "ollama")))

			if err := embedder.Validate(log); err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			emb, err := embedder.NewFromEnv()
			if err != nil {
				return fmt.Errorf("serve: failed to initialise embedder: %w", err)
			}

			meta, err := openMetadataStore()
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer func() { _ = meta.Close() }()

			vectors, err := buildVectorStore(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer func() { _ = vectors.Close() }()

			qaSvc, err := qa.NewService(emb, vectors, gen, meta, retrievalConfigFromEnv(), log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			extractSvc, err := extract.NewService(gen, meta, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			pipeline, err := ingestion.NewPipeline(emb, vectors, meta, ingestion.Config{}, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			pingers := []server.Pinger{
				server.NewPinger("sqlite", meta.Ping),
			}
			if qs, isQdrant := vectors.(*vectorstore.Qdrant); isQdrant {
				pingers = append(pingers, server.NewQdrantPinger(qs.Client()))
			}

			srv, err := server.New(server.Deps{
				Meta:    meta,
				QA:      qaSvc,
				Extract: extractSvc,
				Ingest:  pipeline,
				Chunks:  vectors,
			}, &server.Config{
				Host:      host,
				Port:      port,
				Logger:    log,
				Pingers:   pingers,
				APIKey:    os.Getenv("PAPERQA_API_KEY"),
				RateLimit: getEnvFloat("PAPERQA_RATE_LIMIT", 0),
				RateBurst: getEnvInt("PAPERQA_RATE_BURST", 0),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}
