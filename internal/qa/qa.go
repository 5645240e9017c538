// Package qa implements semantic search and retrieval-augmented question
// answering over ingested papers. The answerer embeds the question, ranks
// stored chunks, assembles a numbered excerpt context, asks the generation
// backend for an answer with cited excerpt indices, and maps those indices
// back to literal source excerpts.
package qa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/evidara/paperqa-go/internal/budget"
	"github.com/evidara/paperqa-go/internal/rag"
	"github.com/evidara/paperqa-go/internal/store"
)

// FallbackAnswer is returned when no stored chunk is relevant enough to
// answer from, or when the model's reply carried no usable answer.
const FallbackAnswer = "I couldn't find relevant information in your uploaded papers to answer this question."

const (
	// excerptLimit bounds citation excerpt length in characters.
	excerptLimit = 200
	// truncationMarker is appended to excerpts cut at excerptLimit.
	truncationMarker = "..."
)

// Config holds the retrieval knobs.
type Config struct {
	// SearchMinScore is the similarity floor for user-facing search.
	SearchMinScore float64
	// SearchTopK caps user-facing search results.
	SearchTopK int
	// QAMinScore is the similarity floor for answer context assembly.
	// Looser than search: context is curated further by the model.
	QAMinScore float64
	// QATopK caps the chunks assembled into answer context.
	QATopK int
	// MaxContextTokens bounds the assembled context size.
	MaxContextTokens int
}

// DefaultConfig returns the standard retrieval thresholds.
func DefaultConfig() Config {
	return Config{
		SearchMinScore:   0.7,
		SearchTopK:       10,
		QAMinScore:       0.6,
		QATopK:           5,
		MaxContextTokens: budget.DefaultMaxContextTokens,
	}
}

// MetadataStore is the slice of the metadata store the QA service needs.
type MetadataStore interface {
	GetPaper(ctx context.Context, id string) (store.Paper, error)
	RecordConversation(ctx context.Context, question, answer string, citations []store.Citation) (store.Conversation, error)
}

// SearchResult is one semantic search hit joined with its parent paper.
type SearchResult struct {
	PaperID      string  `json:"paperId"`
	PaperTitle   string  `json:"paperTitle"`
	PaperAuthors string  `json:"paperAuthors"`
	ChunkText    string  `json:"chunkText"`
	ChunkIndex   int     `json:"chunkIndex"`
	Score        float64 `json:"score"`
}

// Answer is a generated answer with its source citations. Recorded turns
// carry the conversation identity; fallback answers leave it zero.
type Answer struct {
	ID        string           `json:"id,omitempty"`
	Question  string           `json:"question,omitempty"`
	Answer    string           `json:"answer"`
	Citations []store.Citation `json:"citations"`
	CreatedAt time.Time        `json:"createdAt,omitzero"`
}

// Service answers questions and searches over the ingested corpus.
type Service struct {
	embedder rag.Embedder
	vectors  rag.VectorStore
	gen      rag.Generator
	meta     MetadataStore
	cfg      Config
	log      *slog.Logger
}

// NewService wires the retrieval pipeline. All collaborators are required.
func NewService(embedder rag.Embedder, vectors rag.VectorStore, gen rag.Generator, meta MetadataStore, cfg Config, log *slog.Logger) (*Service, error) {
	if embedder == nil || vectors == nil || gen == nil || meta == nil {
		return nil, fmt.Errorf("qa: embedder, vector store, generator, and metadata store are required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{embedder: embedder, vectors: vectors, gen: gen, meta: meta, cfg: cfg, log: log}, nil
}

// Search embeds the query and returns ranked chunks joined with their parent
// papers. An empty query returns an empty result list without calling the
// embedder; so does an empty corpus.
func (s *Service) Search(ctx context.Context, query string) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []SearchResult{}, nil
	}

	vec, err := s.embedOne(ctx, query)
	if err != nil {
		return nil, err
	}
	scored, err := s.vectors.Search(ctx, vec, s.cfg.SearchMinScore, s.cfg.SearchTopK)
	if err != nil {
		return nil, fmt.Errorf("qa: search: %w", err)
	}

	results := []SearchResult{}
	papers := map[string]store.Paper{}
	for _, sc := range scored {
		p, ok, err := s.lookupPaper(ctx, papers, sc.PaperID)
		if err != nil {
			return nil, err
		}
		if !ok {
			// Chunk outlived its paper; a concurrent delete raced the scan.
			continue
		}
		results = append(results, SearchResult{
			PaperID:      p.ID,
			PaperTitle:   p.Title,
			PaperAuthors: p.Authors,
			ChunkText:    sc.Text,
			ChunkIndex:   sc.Index,
			Score:        sc.Score,
		})
	}
	return results, nil
}

// answerPayload is the shape requested from the generation backend. Absent
// fields decode to zero values and are defaulted by the caller.
type answerPayload struct {
	Answer       string `json:"answer"`
	CitedIndices []int  `json:"citedIndices"`
}

// Ask answers a question from the ingested corpus and records the turn as a
// Conversation. When nothing relevant is stored, it returns FallbackAnswer
// with no citations, issues no generation call, and records no Conversation
// for the turn. A generation transport
// failure is returned as an error with no Conversation recorded; a malformed
// model reply degrades to field defaults and is still recorded.
func (s *Service) Ask(ctx context.Context, question string) (Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{}, fmt.Errorf("qa: question must not be empty")
	}

	vec, err := s.embedOne(ctx, question)
	if err != nil {
		return Answer{}, err
	}
	scored, err := s.vectors.Search(ctx, vec, s.cfg.QAMinScore, s.cfg.QATopK)
	if err != nil {
		return Answer{}, fmt.Errorf("qa: rank context: %w", err)
	}

	// Join with parent papers, dropping chunks whose paper was deleted
	// mid-flight, then fit the survivors to the context budget.
	papers := map[string]store.Paper{}
	contextChunks := make([]rag.ScoredChunk, 0, len(scored))
	titles := map[string]string{}
	for _, sc := range scored {
		p, ok, err := s.lookupPaper(ctx, papers, sc.PaperID)
		if err != nil {
			return Answer{}, err
		}
		if !ok {
			continue
		}
		contextChunks = append(contextChunks, sc)
		titles[p.ID] = p.Title
	}
	contextChunks = budget.TrimChunks(contextChunks, s.cfg.MaxContextTokens)

	if len(contextChunks) == 0 {
		// Nothing to cite and nothing generated, so no conversation is recorded.
		s.log.InfoContext(ctx, "no relevant context for question, returning fallback")
		return Answer{Answer: FallbackAnswer}, nil
	}

	prompt := buildAnswerPrompt(buildContext(contextChunks, titles), question)
	raw, err := s.gen.GenerateJSON(ctx, answerSystemPrompt, prompt)
	var payload answerPayload
	switch {
	case errors.Is(err, rag.ErrMalformedOutput):
		// Treat an unparsable reply as an empty object; field defaults apply.
		s.log.WarnContext(ctx, "model returned malformed answer payload", "error", err)
	case err != nil:
		return Answer{}, fmt.Errorf("qa: answer: %w", err)
	default:
		if err := json.Unmarshal(raw, &payload); err != nil {
			s.log.WarnContext(ctx, "answer payload decode failed, applying defaults", "error", err)
			payload = answerPayload{}
		}
	}

	answer := strings.TrimSpace(payload.Answer)
	if answer == "" {
		answer = FallbackAnswer
	}
	citations := mapCitations(payload.CitedIndices, contextChunks, papers)
	return s.record(ctx, question, answer, citations)
}

// mapCitations resolves model-cited excerpt numbers (1-based, in rank order)
// to citations. Out-of-range indices are dropped; duplicates are kept so the
// citation list mirrors what the model cited.
func mapCitations(indices []int, context []rag.ScoredChunk, papers map[string]store.Paper) []store.Citation {
	var citations []store.Citation
	for _, idx := range indices {
		if idx < 1 || idx > len(context) {
			continue
		}
		c := context[idx-1]
		citations = append(citations, store.Citation{
			Index:      idx,
			PaperID:    c.PaperID,
			PaperTitle: papers[c.PaperID].Title,
			Excerpt:    excerpt(c.Text),
		})
	}
	return citations
}

// excerpt bounds a chunk text for display, appending a marker when cut.
func excerpt(text string) string {
	if len(text) <= excerptLimit {
		return text
	}
	return text[:excerptLimit] + truncationMarker
}

// record persists the Q&A turn and returns it as an Answer.
func (s *Service) record(ctx context.Context, question, answer string, citations []store.Citation) (Answer, error) {
	conv, err := s.meta.RecordConversation(ctx, question, answer, citations)
	if err != nil {
		return Answer{}, fmt.Errorf("qa: record conversation: %w", err)
	}
	return Answer{
		ID:        conv.ID,
		Question:  conv.Question,
		Answer:    conv.Answer,
		Citations: conv.Citations,
		CreatedAt: conv.CreatedAt,
	}, nil
}

// embedOne embeds a single text.
func (s *Service) embedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("qa: embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("qa: embed query: want 1 vector, got %d: %w", len(vecs), rag.ErrEmbeddingUnavailable)
	}
	return vecs[0], nil
}

// lookupPaper fetches a paper through a per-request cache. The boolean is
// false when the paper does not exist.
func (s *Service) lookupPaper(ctx context.Context, cache map[string]store.Paper, id string) (store.Paper, bool, error) {
	if p, ok := cache[id]; ok {
		return p, true, nil
	}
	p, err := s.meta.GetPaper(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return store.Paper{}, false, nil
	}
	if err != nil {
		return store.Paper{}, false, fmt.Errorf("qa: lookup paper %s: %w", id, err)
	}
	cache[id] = p
	return p, true, nil
}
