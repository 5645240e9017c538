// Package extract derives structured metadata from ingested papers via the
// generation backend: PICO elements (population, intervention, comparison,
// outcome) and named biomedical entities. Extraction is idempotent per
// paper: once results exist they are returned as-is, never recomputed.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/evidara/paperqa-go/internal/rag"
	"github.com/evidara/paperqa-go/internal/store"
)

const (
	// picoFullTextLimit bounds how much body text joins the abstract in the
	// PICO prompt.
	picoFullTextLimit = 2000
	// entityInputLimit bounds the entity prompt input. Tighter than PICO:
	// entity lists degrade faster with long inputs.
	entityInputLimit = 3000
)

// MetadataStore is the slice of the metadata store the extractor needs.
type MetadataStore interface {
	GetPaper(ctx context.Context, id string) (store.Paper, error)
	GetPICO(ctx context.Context, paperID string) (store.PICOElement, error)
	SavePICO(ctx context.Context, e store.PICOElement) (store.PICOElement, error)
	ListEntities(ctx context.Context, paperID string) ([]store.Entity, error)
	ReplaceEntities(ctx context.Context, paperID string, entities []store.Entity) error
}

// Service runs structured extraction against the generation backend.
type Service struct {
	gen  rag.Generator
	meta MetadataStore
	log  *slog.Logger
	// sf collapses concurrent extraction requests for the same paper so the
	// backend sees at most one in-flight call per paper and field kind.
	sf singleflight.Group
}

// NewService wires the extractor. Generator and store are required.
func NewService(gen rag.Generator, meta MetadataStore, log *slog.Logger) (*Service, error) {
	if gen == nil || meta == nil {
		return nil, fmt.Errorf("extract: generator and metadata store are required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{gen: gen, meta: meta, log: log}, nil
}

// picoPayload is the shape requested from the backend. Absent or null fields
// decode to zero values.
type picoPayload struct {
	Population             string  `json:"population"`
	Intervention           string  `json:"intervention"`
	Comparison             string  `json:"comparison"`
	Outcome                string  `json:"outcome"`
	PopulationConfidence   float64 `json:"populationConfidence"`
	InterventionConfidence float64 `json:"interventionConfidence"`
	ComparisonConfidence   float64 `json:"comparisonConfidence"`
	OutcomeConfidence      float64 `json:"outcomeConfidence"`
}

// PICO extracts PICO elements for the paper, or returns the stored result if
// one already exists. A malformed model reply degrades to empty fields and
// zero confidences; a transport failure persists nothing.
func (s *Service) PICO(ctx context.Context, paperID string) (store.PICOElement, error) {
	existing, err := s.meta.GetPICO(ctx, paperID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return store.PICOElement{}, err
	}

	v, err, _ := s.sf.Do("pico:"+paperID, func() (any, error) {
		return s.extractPICO(ctx, paperID)
	})
	if err != nil {
		return store.PICOElement{}, err
	}
	return v.(store.PICOElement), nil
}

func (s *Service) extractPICO(ctx context.Context, paperID string) (store.PICOElement, error) {
	// Re-check under the flight: a concurrent extraction may have landed
	// between the caller's check and here.
	if existing, err := s.meta.GetPICO(ctx, paperID); err == nil {
		return existing, nil
	}

	paper, err := s.meta.GetPaper(ctx, paperID)
	if err != nil {
		return store.PICOElement{}, err
	}

	body := paper.FullText
	if len(body) > picoFullTextLimit {
		body = body[:picoFullTextLimit]
	}
	input := paper.Abstract + "\n\n" + body

	var payload picoPayload
	raw, err := s.gen.GenerateJSON(ctx, picoSystemPrompt, buildPICOPrompt(input))
	switch {
	case errors.Is(err, rag.ErrMalformedOutput):
		s.log.WarnContext(ctx, "malformed PICO payload, applying defaults", "paper_id", paperID, "error", err)
	case err != nil:
		return store.PICOElement{}, fmt.Errorf("extract: pico for %s: %w", paperID, err)
	default:
		if err := json.Unmarshal(raw, &payload); err != nil {
			s.log.WarnContext(ctx, "PICO payload decode failed, applying defaults", "paper_id", paperID, "error", err)
			payload = picoPayload{}
		}
	}

	return s.meta.SavePICO(ctx, store.PICOElement{
		PaperID:      paperID,
		Population:   store.PICOField{Text: payload.Population, Confidence: payload.PopulationConfidence},
		Intervention: store.PICOField{Text: payload.Intervention, Confidence: payload.InterventionConfidence},
		Comparison:   store.PICOField{Text: payload.Comparison, Confidence: payload.ComparisonConfidence},
		Outcome:      store.PICOField{Text: payload.Outcome, Confidence: payload.OutcomeConfidence},
	})
}

// entityPayload is keyed by plural category names; item lists decode to
// empty when absent.
type entityPayload struct {
	Diseases []string `json:"diseases"`
	Drugs    []string `json:"drugs"`
	Proteins []string `json:"proteins"`
	Genes    []string `json:"genes"`
}

// Entities extracts named entities for the paper, or returns the stored set
// if one already exists.
func (s *Service) Entities(ctx context.Context, paperID string) ([]store.Entity, error) {
	existing, err := s.meta.ListEntities(ctx, paperID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return existing, nil
	}

	v, err, _ := s.sf.Do("entities:"+paperID, func() (any, error) {
		return s.extractEntities(ctx, paperID)
	})
	if err != nil {
		return nil, err
	}
	return v.([]store.Entity), nil
}

func (s *Service) extractEntities(ctx context.Context, paperID string) ([]store.Entity, error) {
	if existing, err := s.meta.ListEntities(ctx, paperID); err != nil {
		return nil, err
	} else if len(existing) > 0 {
		return existing, nil
	}

	paper, err := s.meta.GetPaper(ctx, paperID)
	if err != nil {
		return nil, err
	}
	input := paper.Abstract + "\n\n" + paper.FullText

	var payload entityPayload
	raw, err := s.gen.GenerateJSON(ctx, entitySystemPrompt, buildEntityPrompt(input))
	switch {
	case errors.Is(err, rag.ErrMalformedOutput):
		s.log.WarnContext(ctx, "malformed entity payload, applying defaults", "paper_id", paperID, "error", err)
	case err != nil:
		return nil, fmt.Errorf("extract: entities for %s: %w", paperID, err)
	default:
		if err := json.Unmarshal(raw, &payload); err != nil {
			s.log.WarnContext(ctx, "entity payload decode failed, applying defaults", "paper_id", paperID, "error", err)
			payload = entityPayload{}
		}
	}

	entities := flattenEntities(paperID, payload)
	if err := s.meta.ReplaceEntities(ctx, paperID, entities); err != nil {
		return nil, err
	}
	// Read back so callers see the store-assigned IDs.
	return s.meta.ListEntities(ctx, paperID)
}

// flattenEntities turns the per-category payload into entity rows. The
// singular type name is the category key minus its pluralizing suffix.
func flattenEntities(paperID string, payload entityPayload) []store.Entity {
	categories := []struct {
		key   string
		items []string
	}{
		{"diseases", payload.Diseases},
		{"drugs", payload.Drugs},
		{"proteins", payload.Proteins},
		{"genes", payload.Genes},
	}

	var entities []store.Entity
	for _, cat := range categories {
		typ := strings.TrimSuffix(cat.key, "s")
		for _, name := range cat.items {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			entities = append(entities, store.Entity{
				PaperID:   paperID,
				Type:      typ,
				Name:      name,
				Frequency: 1,
			})
		}
	}
	return entities
}
