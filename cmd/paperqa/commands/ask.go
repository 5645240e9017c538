package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/evidara/paperqa-go/internal/embedder"
	"github.com/evidara/paperqa-go/internal/logging"
	"github.com/evidara/paperqa-go/internal/provider"
	"github.com/evidara/paperqa-go/internal/qa"
)

// NewAskCmd constructs the `paperqa ask` command, which answers a single
// question against the indexed papers and prints the citations.
func NewAskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask [question...]",
		Short: "Ask a question about your indexed papers",
		Long: `Ask a natural language question against the papers in the QA index.

The answer cites the exact passages it draws on. Questions that no indexed
passage can support return a fallback answer with no citations.

A persistent vector store (QDRANT_HOST) is required for ask to see papers
ingested in earlier runs.

Examples:
  paperqa ask "does metformin reduce cardiovascular events?"
  QDRANT_HOST=localhost paperqa ask "what outcomes were measured?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			chatModel, err := provider.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("ask: failed to initialise model provider: %w", err)
			}
			gen, err := provider.NewJSONClient(chatModel)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			emb, err := embedder.NewFromEnv()
			if err != nil {
				return fmt.Errorf("ask: failed to initialise embedder: %w", err)
			}

			meta, err := openMetadataStore()
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer func() { _ = meta.Close() }()

			vectors, err := buildVectorStore(ctx, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer func() { _ = vectors.Close() }()

			svc, err := qa.NewService(emb, vectors, gen, meta, retrievalConfigFromEnv(), log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			// Unquoted questions arrive as one word per argument.
			answer, err := svc.Ask(ctx, strings.Join(args, " "))
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			fmt.Println(answer.Answer)
			if len(answer.Citations) > 0 {
				fmt.Println("\nCitations:")
				for _, c := range answer.Citations {
					fmt.Printf("  [%d] %s: %s\n", c.Index, c.PaperTitle, c.Excerpt)
				}
			}
			return nil
		},
	}

	return cmd
}
