package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/evidara/paperqa-go/internal/qa"
	"github.com/evidara/paperqa-go/internal/store"
)

// handleSearch handles GET /api/search?query=... An empty query returns an
// empty list, matching the behavior of an empty corpus.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")

	results, err := s.deps.QA.Search(r.Context(), query)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if results == nil {
		results = []qa.SearchResult{}
	}
	respondJSON(w, r, http.StatusOK, results)
}

// handleQA handles POST /api/qa. The response is the recorded conversation
// turn (id, question, answer, citations, createdAt). Fallback answers are
// never recorded, so they come back as just the answer text with an empty
// citation list.
func (s *Server) handleQA(w http.ResponseWriter, r *http.Request) {
	var req qaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, r, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		badRequest(w, r, "question is required")
		return
	}

	start := time.Now()
	answer, err := s.deps.QA.Ask(r.Context(), req.Question)
	if err != nil {
		s.metrics.questionsTotal.WithLabelValues("error").Inc()
		respondError(w, r, err)
		return
	}

	outcome := "ok"
	if answer.Answer == qa.FallbackAnswer {
		outcome = "no_context"
	}
	s.metrics.questionsTotal.WithLabelValues(outcome).Inc()
	s.metrics.qaDurationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())

	if answer.Citations == nil {
		answer.Citations = []store.Citation{}
	}
	if answer.ID == "" {
		respondJSON(w, r, http.StatusOK, answerResponse{Answer: answer.Answer, Citations: answer.Citations})
		return
	}
	respondJSON(w, r, http.StatusOK, conversationResponse{
		ID:        answer.ID,
		Question:  answer.Question,
		Answer:    answer.Answer,
		Citations: answer.Citations,
		CreatedAt: answer.CreatedAt,
	})
}

// handleListConversations handles GET /api/conversations, newest-first.
func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := s.deps.Meta.ListConversations(r.Context(), 0)
	if err != nil {
		respondError(w, r, err)
		return
	}
	resp := make([]conversationResponse, 0, len(convs))
	for _, c := range convs {
		resp = append(resp, conversationResponse{
			ID:        c.ID,
			Question:  c.Question,
			Answer:    c.Answer,
			Citations: c.Citations,
			CreatedAt: c.CreatedAt,
		})
	}
	respondJSON(w, r, http.StatusOK, resp)
}
