package server

import (
	"net/http"

	"github.com/evidara/paperqa-go/internal/store"
)

// handleExtractPICO handles POST /api/papers/{id}/extract-pico. Extraction
// is idempotent: repeat calls return the stored result.
func (s *Server) handleExtractPICO(w http.ResponseWriter, r *http.Request) {
	pico, err := s.deps.Extract.PICO(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, toPICOResponse(pico))
}

// handleExtractEntities handles POST /api/papers/{id}/extract-entities.
func (s *Server) handleExtractEntities(w http.ResponseWriter, r *http.Request) {
	entities, err := s.deps.Extract.Entities(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, toEntityResponses(entities))
}

// handleListPICO handles GET /api/pico-elements across all papers.
func (s *Server) handleListPICO(w http.ResponseWriter, r *http.Request) {
	elements, err := s.deps.Meta.ListAllPICO(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	resp := make([]picoResponse, 0, len(elements))
	for _, e := range elements {
		resp = append(resp, toPICOResponse(e))
	}
	respondJSON(w, r, http.StatusOK, resp)
}

// handleListEntities handles GET /api/entities across all papers.
func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	entities, err := s.deps.Meta.ListAllEntities(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, toEntityResponses(entities))
}

func toPICOResponse(e store.PICOElement) picoResponse {
	return picoResponse{
		PaperID:      e.PaperID,
		Population:   e.Population,
		Intervention: e.Intervention,
		Comparison:   e.Comparison,
		Outcome:      e.Outcome,
		CreatedAt:    e.CreatedAt,
	}
}

func toEntityResponses(entities []store.Entity) []entityResponse {
	resp := make([]entityResponse, 0, len(entities))
	for _, e := range entities {
		resp = append(resp, entityResponse{
			ID:        e.ID,
			PaperID:   e.PaperID,
			Type:      e.Type,
			Name:      e.Name,
			Frequency: e.Frequency,
		})
	}
	return resp
}
