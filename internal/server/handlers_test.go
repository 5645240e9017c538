package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/evidara/paperqa-go/internal/qa"
	"github.com/evidara/paperqa-go/internal/rag"
	"github.com/evidara/paperqa-go/internal/store"
	"github.com/evidara/paperqa-go/internal/vectorstore"
)

// fakeQA returns canned search results and answers.
type fakeQA struct {
	results []qa.SearchResult
	answer  qa.Answer
	err     error
	// lastQuery captures the most recent Search or Ask input.
	lastQuery string
}

func (f *fakeQA) Search(_ context.Context, query string) ([]qa.SearchResult, error) {
	f.lastQuery = query
	return f.results, f.err
}

func (f *fakeQA) Ask(_ context.Context, question string) (qa.Answer, error) {
	f.lastQuery = question
	if f.err != nil {
		return qa.Answer{}, f.err
	}
	return f.answer, nil
}

// fakeExtractor returns canned extraction results.
type fakeExtractor struct {
	pico     store.PICOElement
	entities []store.Entity
	err      error
}

func (f *fakeExtractor) PICO(_ context.Context, paperID string) (store.PICOElement, error) {
	if f.err != nil {
		return store.PICOElement{}, f.err
	}
	f.pico.PaperID = paperID
	return f.pico, nil
}

func (f *fakeExtractor) Entities(_ context.Context, _ string) ([]store.Entity, error) {
	return f.entities, f.err
}

// fakeIngestor records ingested papers and can fail on demand.
type fakeIngestor struct {
	err      error
	ingested []store.Paper
}

func (f *fakeIngestor) IngestPaper(_ context.Context, paper store.Paper) error {
	if f.err != nil {
		return f.err
	}
	f.ingested = append(f.ingested, paper)
	return nil
}

// testServer bundles a Server over an in-memory store with injectable fakes.
type testServer struct {
	srv    *Server
	meta   *store.SQLiteStore
	qa     *fakeQA
	ext    *fakeExtractor
	ingest *fakeIngestor
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	meta, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = meta.Close() })

	ts := &testServer{
		meta:   meta,
		qa:     &fakeQA{},
		ext:    &fakeExtractor{},
		ingest: &fakeIngestor{},
	}
	srv, err := New(Deps{
		Meta:    meta,
		QA:      ts.qa,
		Extract: ts.ext,
		Ingest:  ts.ingest,
		Chunks:  vectorstore.NewMemory(),
	}, &Config{})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts.srv = srv
	t.Cleanup(srv.stopRL)
	return ts
}

// do runs a request through the full middleware chain.
func (ts *testServer) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, rd)
	req.RemoteAddr = "127.0.0.1:54321"
	w := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body: %s)", err, w.Body.String())
	}
	return v
}

func Test_CreatePaper_IngestsAndReturnsProcessed(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/papers", createPaperRequest{
		Title: "A Study", Authors: "Doe, J.", Abstract: "abs", FullText: "Full text here.",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("want 201, got %d: %s", w.Code, w.Body.String())
	}
	got := decodeBody[paperResponse](t, w)
	if got.ID == "" || got.Status != string(store.StatusProcessed) {
		t.Errorf("response: %+v", got)
	}
	if len(ts.ingest.ingested) != 1 || ts.ingest.ingested[0].FullText != "Full text here." {
		t.Errorf("pipeline not invoked: %+v", ts.ingest.ingested)
	}

	// The paper row is persisted.
	if _, err := ts.meta.GetPaper(context.Background(), got.ID); err != nil {
		t.Errorf("paper not stored: %v", err)
	}
}

func Test_CreatePaper_Validation(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	cases := []createPaperRequest{
		{Title: "", FullText: "text"},
		{Title: "t", FullText: "  "},
	}
	for _, req := range cases {
		w := ts.do(t, http.MethodPost, "/api/papers", req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%+v: want 400, got %d", req, w.Code)
		}
	}
	if len(ts.ingest.ingested) != 0 {
		t.Errorf("invalid papers must not reach ingestion")
	}
}

func Test_CreatePaper_EmbeddingOutageIsBadGateway(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	ts.ingest.err = fmt.Errorf("embed chunk 0: %w", rag.ErrEmbeddingUnavailable)

	w := ts.do(t, http.MethodPost, "/api/papers", createPaperRequest{Title: "t", FullText: "text."})
	if w.Code != http.StatusBadGateway {
		t.Errorf("want 502, got %d", w.Code)
	}
}

func Test_GetPaper_NotFound(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/api/papers/nope", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("want 404, got %d", w.Code)
	}
	body := decodeBody[errorResponse](t, w)
	if body.Error == "" {
		t.Error("want error message in body")
	}
}

func Test_ListPapers_OmitsFullText(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	seedStorePaper(t, ts.meta, "p1")

	w := ts.do(t, http.MethodGet, "/api/papers", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", w.Code)
	}
	got := decodeBody[[]paperResponse](t, w)
	if len(got) != 1 {
		t.Fatalf("want 1 paper, got %d", len(got))
	}
	if got[0].FullText != "" {
		t.Errorf("list response must omit full text")
	}
}

func Test_DeletePaper_RemovesRow(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	seedStorePaper(t, ts.meta, "p1")

	w := ts.do(t, http.MethodDelete, "/api/papers/p1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d: %s", w.Code, w.Body.String())
	}
	if _, err := ts.meta.GetPaper(context.Background(), "p1"); err == nil {
		t.Error("paper survived delete")
	}
}

func Test_DeletePaper_NotFound(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	w := ts.do(t, http.MethodDelete, "/api/papers/ghost", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("want 404, got %d", w.Code)
	}
}

func Test_Search_PassesQueryParam(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	ts.qa.results = []qa.SearchResult{{PaperID: "p1", PaperTitle: "T", Score: 0.9}}

	w := ts.do(t, http.MethodGet, "/api/search?query=exercise", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", w.Code)
	}
	if ts.qa.lastQuery != "exercise" {
		t.Errorf("query not forwarded: %q", ts.qa.lastQuery)
	}
	got := decodeBody[[]qa.SearchResult](t, w)
	if len(got) != 1 || got[0].PaperID != "p1" {
		t.Errorf("results: %+v", got)
	}
}

func Test_Search_NilResultsRenderAsEmptyArray(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/api/search?query=", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", w.Code)
	}
	if body := strings.TrimSpace(w.Body.String()); body != "[]" {
		t.Errorf("want JSON empty array, got %q", body)
	}
}

func Test_QA_ReturnsAnswer(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	ts.qa.answer = qa.Answer{
		ID:        "conv-1",
		Question:  "Does it work?",
		Answer:    "Yes.",
		Citations: []store.Citation{{Index: 1, PaperID: "p1", PaperTitle: "T", Excerpt: "ex"}},
		CreatedAt: time.Now(),
	}

	w := ts.do(t, http.MethodPost, "/api/qa", qaRequest{Question: "Does it work?"})
	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d: %s", w.Code, w.Body.String())
	}
	got := decodeBody[conversationResponse](t, w)
	if got.Answer != "Yes." || len(got.Citations) != 1 {
		t.Errorf("answer: %+v", got)
	}
	if got.ID != "conv-1" || got.Question != "Does it work?" || got.CreatedAt.IsZero() {
		t.Errorf("recorded turn must come back as the full conversation: %+v", got)
	}
}

func Test_QA_FallbackAnswerHasNoConversationFields(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	ts.qa.answer = qa.Answer{Answer: qa.FallbackAnswer}

	w := ts.do(t, http.MethodPost, "/api/qa", qaRequest{Question: "Anything?"})
	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d: %s", w.Code, w.Body.String())
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(w.Body.Bytes(), &raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := raw["id"]; ok {
		t.Error("fallback response must not carry a conversation id")
	}
	if string(raw["citations"]) != "[]" {
		t.Errorf("want empty citations array, got %s", raw["citations"])
	}
}

func Test_QA_BlankQuestionRejected(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/qa", qaRequest{Question: "  "})
	if w.Code != http.StatusBadRequest {
		t.Errorf("want 400, got %d", w.Code)
	}
}

func Test_QA_GenerationOutageIsBadGateway(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	ts.qa.err = fmt.Errorf("answer: %w", rag.ErrGenerationUnavailable)

	w := ts.do(t, http.MethodPost, "/api/qa", qaRequest{Question: "q?"})
	if w.Code != http.StatusBadGateway {
		t.Errorf("want 502, got %d", w.Code)
	}
}

func Test_ExtractPICO_ReturnsElements(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	ts.ext.pico = store.PICOElement{Population: store.PICOField{Text: "adults", Confidence: 0.9}}

	w := ts.do(t, http.MethodPost, "/api/papers/p1/extract-pico", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", w.Code)
	}
	got := decodeBody[picoResponse](t, w)
	if got.PaperID != "p1" || got.Population.Text != "adults" {
		t.Errorf("pico: %+v", got)
	}
}

func Test_ExtractEntities_ReturnsList(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	ts.ext.entities = []store.Entity{{ID: "e1", PaperID: "p1", Type: "drug", Name: "metformin", Frequency: 1}}

	w := ts.do(t, http.MethodPost, "/api/papers/p1/extract-entities", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", w.Code)
	}
	got := decodeBody[[]entityResponse](t, w)
	if len(got) != 1 || got[0].Name != "metformin" {
		t.Errorf("entities: %+v", got)
	}
}

func Test_ExtractPICO_MissingPaper(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	ts.ext.err = store.ErrNotFound

	w := ts.do(t, http.MethodPost, "/api/papers/ghost/extract-pico", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("want 404, got %d", w.Code)
	}
}

func Test_ListPICOElements_ReadsStore(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	seedStorePaper(t, ts.meta, "p1")
	_, err := ts.meta.SavePICO(context.Background(), store.PICOElement{
		PaperID:    "p1",
		Population: store.PICOField{Text: "adults", Confidence: 0.8},
		CreatedAt:  time.Now(),
	})
	if err != nil {
		t.Fatalf("save pico: %v", err)
	}

	w := ts.do(t, http.MethodGet, "/api/pico-elements", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", w.Code)
	}
	got := decodeBody[[]picoResponse](t, w)
	if len(got) != 1 || got[0].PaperID != "p1" || got[0].Population.Text != "adults" {
		t.Errorf("pico elements: %+v", got)
	}
}

func Test_ListEntities_ReadsStore(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	seedStorePaper(t, ts.meta, "p1")
	err := ts.meta.ReplaceEntities(context.Background(), "p1", []store.Entity{
		{PaperID: "p1", Type: "disease", Name: "diabetes", Frequency: 1},
	})
	if err != nil {
		t.Fatalf("replace entities: %v", err)
	}

	w := ts.do(t, http.MethodGet, "/api/entities", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", w.Code)
	}
	got := decodeBody[[]entityResponse](t, w)
	if len(got) != 1 || got[0].Name != "diabetes" {
		t.Errorf("entities: %+v", got)
	}
}

func Test_Conversations_NewestFirst(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	ctx := context.Background()
	for _, q := range []string{"first?", "second?"} {
		if _, err := ts.meta.RecordConversation(ctx, q, "a", nil); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	w := ts.do(t, http.MethodGet, "/api/conversations", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", w.Code)
	}
	got := decodeBody[[]conversationResponse](t, w)
	if len(got) != 2 || got[0].Question != "second?" {
		t.Errorf("conversations: %+v", got)
	}
}

func seedStorePaper(t *testing.T, meta *store.SQLiteStore, id string) {
	t.Helper()
	err := meta.CreatePaper(context.Background(), store.Paper{
		ID: id, Title: "Seeded", Authors: "A", Abstract: "abs", FullText: "body",
		UploadedAt: time.Now(), Status: store.StatusProcessed,
	})
	if err != nil {
		t.Fatalf("seed paper: %v", err)
	}
}
