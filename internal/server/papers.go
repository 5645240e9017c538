package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/evidara/paperqa-go/internal/logging"
	"github.com/evidara/paperqa-go/internal/pdfextract"
	"github.com/evidara/paperqa-go/internal/store"
)

// handleListPapers handles GET /api/papers. Full text is omitted from list
// responses.
func (s *Server) handleListPapers(w http.ResponseWriter, r *http.Request) {
	papers, err := s.deps.Meta.ListPapers(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	resp := make([]paperResponse, 0, len(papers))
	for _, p := range papers {
		resp = append(resp, toPaperResponse(p))
	}
	respondJSON(w, r, http.StatusOK, resp)
}

// handleGetPaper handles GET /api/papers/{id}.
func (s *Server) handleGetPaper(w http.ResponseWriter, r *http.Request) {
	paper, err := s.deps.Meta.GetPaper(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, toPaperResponse(paper))
}

// handleCreatePaper handles POST /api/papers: persist the paper, then chunk
// and embed its full text synchronously so the paper is searchable as soon
// as the response returns.
func (s *Server) handleCreatePaper(w http.ResponseWriter, r *http.Request) {
	var req createPaperRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, r, "invalid request body")
		return
	}
	s.createAndIngest(w, r, req)
}

// handleUploadPDF handles POST /api/papers/upload-pdf. The multipart form
// carries the PDF under "pdf" plus title, authors, and abstract fields; the
// full text comes from the PDF itself.
func (s *Server) handleUploadPDF(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		badRequest(w, r, "invalid multipart form")
		return
	}

	file, _, err := r.FormFile("pdf")
	if err != nil {
		badRequest(w, r, "no PDF file provided")
		return
	}
	defer file.Close()

	req := createPaperRequest{
		Title:    r.FormValue("title"),
		Authors:  r.FormValue("authors"),
		Abstract: r.FormValue("abstract"),
	}
	if req.Title == "" || req.Authors == "" || req.Abstract == "" {
		badRequest(w, r, "title, authors, and abstract are required")
		return
	}

	text, err := pdfextract.ExtractText(file)
	if err != nil {
		badRequest(w, r, "could not extract text from PDF")
		return
	}
	req.FullText = text
	s.createAndIngest(w, r, req)
}

// createAndIngest validates the paper, persists it, and runs ingestion.
// The paper row survives an ingestion failure with status "failed" so the
// client can see what happened; no chunks are left behind.
func (s *Server) createAndIngest(w http.ResponseWriter, r *http.Request, req createPaperRequest) {
	if strings.TrimSpace(req.Title) == "" {
		badRequest(w, r, "title is required")
		return
	}
	if strings.TrimSpace(req.FullText) == "" {
		badRequest(w, r, "fullText is required")
		return
	}

	paper := store.Paper{
		ID:         uuid.NewString(),
		Title:      req.Title,
		Authors:    req.Authors,
		Abstract:   req.Abstract,
		FullText:   req.FullText,
		UploadedAt: time.Now(),
		Status:     store.StatusProcessing,
	}
	if err := s.deps.Meta.CreatePaper(r.Context(), paper); err != nil {
		respondError(w, r, err)
		return
	}
	if err := s.deps.Ingest.IngestPaper(r.Context(), paper); err != nil {
		s.metrics.papersIngestedTotal.WithLabelValues("error").Inc()
		respondError(w, r, err)
		return
	}
	paper.Status = store.StatusProcessed

	s.metrics.papersIngestedTotal.WithLabelValues("ok").Inc()
	respondJSON(w, r, http.StatusCreated, toPaperResponse(paper))
}

// handleDeletePaper handles DELETE /api/papers/{id}. Chunks are removed from
// the vector store first so no search can surface a chunk whose paper row is
// already gone.
func (s *Server) handleDeletePaper(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if _, err := s.deps.Meta.GetPaper(r.Context(), id); err != nil {
		respondError(w, r, err)
		return
	}
	if err := s.deps.Chunks.DeleteByPaper(r.Context(), id); err != nil {
		respondError(w, r, err)
		return
	}
	if err := s.deps.Meta.DeletePaper(r.Context(), id); err != nil {
		respondError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("paper deleted", slog.String("paper_id", id))
	respondJSON(w, r, http.StatusOK, map[string]bool{"success": true})
}

func toPaperResponse(p store.Paper) paperResponse {
	return paperResponse{
		ID:         p.ID,
		Title:      p.Title,
		Authors:    p.Authors,
		Abstract:   p.Abstract,
		FullText:   p.FullText,
		UploadedAt: p.UploadedAt,
		Status:     string(p.Status),
	}
}
