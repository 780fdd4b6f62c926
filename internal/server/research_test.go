package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/scour-research/scour/config"
	"github.com/scour-research/scour/internal/research"
)

type fakeGen string

func (g fakeGen) Generate(context.Context, string, int) (string, error) { return string(g), nil }

type fakeSearch struct{}

func (fakeSearch) Search(_ context.Context, query string, _ int, _ []string) ([]research.SearchResult, error) {
	return []research.SearchResult{{Title: query, URL: "https://example.com/" + strings.ReplaceAll(query, " ", "-"), Snippet: "s"}}, nil
}

type fakeExtract struct{}

func (fakeExtract) Extract(_ context.Context, urls []string) ([]research.Extraction, error) {
	var out []research.Extraction
	for _, u := range urls {
		out = append(out, research.Extraction{URL: u, Content: "content of " + u})
	}
	return out, nil
}

const testPlan = `{"axes":[{"id":"axis-1","title":"t","question":"q","keywords":["kw"]}]}`
const testVerdict = `{"coverage_score":90,"sufficient":true,"incomplete_axes":[]}`
const testReport = "# Test Report\n\nSummary paragraph. [1]"

func newTestHandler() (*ResearchHandler, *research.MemoryStore) {
	store := research.NewMemoryStore()
	orch := research.NewOrchestrator(
		research.NewPlanner(fakeGen(testPlan)),
		research.NewCollector(fakeSearch{}, fakeExtract{}, store),
		research.NewJudge(fakeGen(testVerdict)),
		research.NewSynthesizer(fakeGen(testReport)),
		store, store, nil, nil,
	)
	cfg := &config.Config{}
	cfg.Research.ExtractCap = 5
	cfg.Server.RunTimeout = time.Minute
	return NewResearchHandler(cfg, store, store, orch, nil), store
}

func newTestServer(secret []byte) (*echo.Echo, *research.MemoryStore) {
	h, store := newTestHandler()
	e := echo.New()
	h.Register(e.Group("/research"), secret)
	return e, store
}

func doJSON(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func waitForTerminal(t *testing.T, store *research.MemoryStore, runID string) research.Run {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		run, err := store.GetRun(context.Background(), runID)
		if err == nil && (run.Status == research.StatusCompleted || run.Status == research.StatusFailed) {
			return run
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("run %s never reached a terminal state", runID)
	return research.Run{}
}

func TestCreateRunsDetached(t *testing.T) {
	e, store := newTestServer(nil)

	rec := doJSON(e, http.MethodPost, "/research", `{"query":"what is alpha","depth":"quick"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var resp CreateResearchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.RunID == "" || resp.Status != "started" {
		t.Fatalf("response: %+v", resp)
	}

	run := waitForTerminal(t, store, resp.RunID)
	if run.Status != research.StatusCompleted {
		t.Fatalf("expected completed, got %+v", run)
	}
	if !strings.Contains(run.ReportMarkdown, "# Test Report") {
		t.Fatalf("report missing: %q", run.ReportMarkdown)
	}
}

func TestCreateValidation(t *testing.T) {
	e, _ := newTestServer(nil)

	cases := []struct {
		name string
		body string
	}{
		{"missing query", `{"depth":"quick"}`},
		{"blank query", `{"query":"   "}`},
		{"docs mode", `{"query":"q","mode":"docs"}`},
		{"unknown mode", `{"query":"q","mode":"carrier-pigeon"}`},
		{"urls mode without seeds", `{"query":"q","mode":"urls"}`},
		{"unknown depth", `{"query":"q","depth":"bottomless"}`},
	}
	for _, tc := range cases {
		rec := doJSON(e, http.MethodPost, "/research", tc.body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d: %s", tc.name, rec.Code, rec.Body.String())
		}
	}
}

func TestCreateDuplicateRunID(t *testing.T) {
	e, store := newTestServer(nil)

	rec := doJSON(e, http.MethodPost, "/research", `{"run_id":"fixed","query":"q","depth":"quick"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("first create: %d", rec.Code)
	}
	rec = doJSON(e, http.MethodPost, "/research", `{"run_id":"fixed","query":"q","depth":"quick"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate run id must conflict, got %d", rec.Code)
	}
	waitForTerminal(t, store, "fixed")
}

type brokenCreateStore struct {
	*research.MemoryStore
}

func (brokenCreateStore) CreateRun(context.Context, research.Run) error {
	return errors.New("connection refused")
}

func TestCreateStoreFailureIsNotConflict(t *testing.T) {
	h, store := newTestHandler()
	h.Runs = brokenCreateStore{store}
	e := echo.New()
	h.Register(e.Group("/research"), nil)

	rec := doJSON(e, http.MethodPost, "/research", `{"query":"q","depth":"quick"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("store failure must be a 500, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestGetAndEvidence(t *testing.T) {
	e, store := newTestServer(nil)

	rec := doJSON(e, http.MethodGet, "/research/ghost", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown run: %d", rec.Code)
	}

	rec = doJSON(e, http.MethodPost, "/research", `{"run_id":"r1","query":"what is alpha","depth":"quick"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("create: %d", rec.Code)
	}
	waitForTerminal(t, store, "r1")

	rec = doJSON(e, http.MethodGet, "/research/r1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get: %d", rec.Code)
	}
	var run research.Run
	if err := json.Unmarshal(rec.Body.Bytes(), &run); err != nil {
		t.Fatalf("decode run: %v", err)
	}
	if run.Status != research.StatusCompleted || run.Percent != 100 {
		t.Fatalf("run body: %+v", run)
	}

	rec = doJSON(e, http.MethodGet, "/research/r1/evidence", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("evidence: %d", rec.Code)
	}
	var sources []research.EvidenceSource
	if err := json.Unmarshal(rec.Body.Bytes(), &sources); err != nil {
		t.Fatalf("decode evidence: %v", err)
	}
	if len(sources) == 0 {
		t.Fatal("completed run should hold evidence")
	}
}

func TestReport(t *testing.T) {
	e, store := newTestServer(nil)

	rec := doJSON(e, http.MethodPost, "/research", `{"run_id":"r1","query":"q","depth":"quick"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("create: %d", rec.Code)
	}
	waitForTerminal(t, store, "r1")

	rec = doJSON(e, http.MethodGet, "/research/r1/report", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("report: %d", rec.Code)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); !strings.HasPrefix(ct, "text/markdown") {
		t.Fatalf("content type: %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "# Test Report") {
		t.Fatalf("body: %q", rec.Body.String())
	}
}

func TestReportBeforeSynthesis(t *testing.T) {
	h, store := newTestHandler()
	e := echo.New()
	h.Register(e.Group("/research"), nil)
	if err := store.CreateRun(context.Background(), research.Run{ID: "pending-run", Query: "q"}); err != nil {
		t.Fatal(err)
	}

	rec := doJSON(e, http.MethodGet, "/research/pending-run/report", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("pending run has no report, got %d", rec.Code)
	}
}

func TestAuth(t *testing.T) {
	secret := []byte("test-secret")
	e, _ := newTestServer(secret)

	rec := doJSON(e, http.MethodGet, "/research/any", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/research/any", nil)
	req.Header.Set("Authorization", "Bearer not.a.token")
	rr := httptest.NewRecorder()
	e.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token: %d", rr.Code)
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "user-1"})
	signed, err := tok.SignedString(secret)
	if err != nil {
		t.Fatal(err)
	}
	req = httptest.NewRequest(http.MethodGet, "/research/any", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rr = httptest.NewRecorder()
	e.ServeHTTP(rr, req)
	// Authenticated but the run does not exist: auth passed, lookup 404s.
	if rr.Code != http.StatusNotFound {
		t.Fatalf("valid token should reach the handler, got %d", rr.Code)
	}
}
