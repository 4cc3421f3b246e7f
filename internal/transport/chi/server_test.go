package chi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	gochi "github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	dbChromem "github.com/engramlabs/engram/internal/db/chromem"
	"github.com/engramlabs/engram/internal/domain"
	"github.com/engramlabs/engram/internal/metrics"
	eventrepo "github.com/engramlabs/engram/internal/repository/event"
	markerrepo "github.com/engramlabs/engram/internal/repository/marker"
	collectionuc "github.com/engramlabs/engram/internal/usecase/collection"
	healthuc "github.com/engramlabs/engram/internal/usecase/health"
	pruneuc "github.com/engramlabs/engram/internal/usecase/prune"
	searchuc "github.com/engramlabs/engram/internal/usecase/search"
	summarizeuc "github.com/engramlabs/engram/internal/usecase/summarize"
	writeuc "github.com/engramlabs/engram/internal/usecase/write"
)

func TestMain(m *testing.M) {
	metrics.Register()
	os.Exit(m.Run())
}

type stubEmbedder struct{}

func (stubEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	return domain.EmbeddingResult{Embedding: []float32{0.1, 0.2, 0.3, 0.4}}, nil
}

type stubCondenser struct{}

func (stubCondenser) Condense(_ context.Context, text string) (string, error) {
	if len(text) > 40 {
		text = text[:40]
	}
	return "summary: " + text, nil
}

// newTestRouter wires the full service stack over the embedded driver.
func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	logger := zap.NewNop()

	store := dbChromem.NewStore()
	repo := eventrepo.New(store)
	markers := markerrepo.New(dbChromem.NewKV())
	manager := collectionuc.NewManager(repo, 4, logger)

	writeSvc := writeuc.New(repo, manager, stubEmbedder{}, logger)
	searchSvc := searchuc.New(repo, manager, stubEmbedder{}, searchuc.Options{
		TierTimeout:   time.Second,
		MaxQueryChars: 8192,
		MaxK:          100,
	}, logger)
	summarizeSvc := summarizeuc.New(repo, markers, writeSvc, stubCondenser{}, summarizeuc.Options{
		Threshold:        3,
		InputBudgetChars: 4096,
	}, logger)
	pruneSvc := pruneuc.New(repo, manager, pruneuc.Options{
		Threshold: 0.2,
		Retention: 30 * 24 * time.Hour,
	}, logger)
	healthSvc := healthuc.New(store, nil)

	server := NewServer(searchSvc, writeSvc, summarizeSvc, pruneSvc, healthSvc, logger)
	r := gochi.NewRouter()
	server.Routes(r)
	return r
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestCreateEvent(t *testing.T) {
	h := newTestRouter(t)

	rr := doJSON(t, h, "POST", "/v1/events", map[string]any{
		"scope": "global",
		"text":  "prefers tabs over spaces",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want %d (body %s)", rr.Code, http.StatusCreated, rr.Body.String())
	}

	var resp eventResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ID == "" {
		t.Error("expected a generated id")
	}
	if resp.Scope != "global" {
		t.Errorf("scope: got %s, want global", resp.Scope)
	}
	if resp.Importance != 0.5 {
		t.Errorf("default importance: got %f, want 0.5", resp.Importance)
	}
	if resp.Timestamp.IsZero() {
		t.Error("expected a timestamp")
	}
}

func TestCreateEvent_PolicyViolation_422(t *testing.T) {
	h := newTestRouter(t)

	rr := doJSON(t, h, "POST", "/v1/events", map[string]any{
		"scope": "global",
		"text":  "config: API_KEY=sk-proj-abc123def456",
	})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusUnprocessableEntity)
	}

	var errResp errorResponse
	if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if errResp.Code != codePolicyViolation {
		t.Errorf("code: got %s, want %s", errResp.Code, codePolicyViolation)
	}
	if errResp.Detector == "" {
		t.Error("expected the detector name in the response")
	}
}

func TestCreateEvent_MissingScope_400(t *testing.T) {
	h := newTestRouter(t)

	rr := doJSON(t, h, "POST", "/v1/events", map[string]any{"text": "no scope"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}

	var errResp errorResponse
	if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if errResp.Code != codeValidationFailed {
		t.Errorf("code: got %s, want %s", errResp.Code, codeValidationFailed)
	}
}

func TestCreateEvent_MalformedBody_400(t *testing.T) {
	h := newTestRouter(t)

	req := httptest.NewRequest("POST", "/v1/events", bytes.NewBufferString("{not json"))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestSearch_FindsWrittenEvent(t *testing.T) {
	h := newTestRouter(t)

	rr := doJSON(t, h, "POST", "/v1/events", map[string]any{
		"scope": "project",
		"text":  "the deploy pipeline broke on friday",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("write status: got %d (body %s)", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, h, "POST", "/v1/search", map[string]any{
		"query": "deploy pipeline",
		"k":     5,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("search status: got %d (body %s)", rr.Code, rr.Body.String())
	}

	var resp searchResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("results: got %d, want 1", len(resp.Results))
	}
	if resp.Results[0].Text != "the deploy pipeline broke on friday" {
		t.Errorf("unexpected hit text %q", resp.Results[0].Text)
	}
	if resp.Results[0].Scope != "project" {
		t.Errorf("scope: got %s, want project", resp.Results[0].Scope)
	}
}

func TestSearch_UnknownScope_400(t *testing.T) {
	h := newTestRouter(t)

	rr := doJSON(t, h, "POST", "/v1/search", map[string]any{
		"query":  "anything",
		"scopes": []string{"bogus"},
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestSearch_MissingQuery_400(t *testing.T) {
	h := newTestRouter(t)

	rr := doJSON(t, h, "POST", "/v1/search", map[string]any{"k": 5})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestDeleteEvent(t *testing.T) {
	h := newTestRouter(t)

	rr := doJSON(t, h, "POST", "/v1/events", map[string]any{
		"scope": "agent",
		"text":  "short-lived note",
	})
	var created eventResponse
	if err := json.NewDecoder(rr.Body).Decode(&created); err != nil {
		t.Fatalf("decode created: %v", err)
	}

	rr = doJSON(t, h, "DELETE", "/v1/events/"+created.ID, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete status: got %d, want %d", rr.Code, http.StatusNoContent)
	}

	// A second delete finds nothing.
	rr = doJSON(t, h, "DELETE", "/v1/events/"+created.ID, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("repeat delete status: got %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestDeleteEvent_NotFound_404(t *testing.T) {
	h := newTestRouter(t)

	rr := doJSON(t, h, "DELETE", "/v1/events/no-such-id", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusNotFound)
	}

	var errResp errorResponse
	if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if errResp.Code != codeNotFound {
		t.Errorf("code: got %s, want %s", errResp.Code, codeNotFound)
	}
}

func TestSummarize_BelowThreshold_204(t *testing.T) {
	h := newTestRouter(t)

	rr := doJSON(t, h, "POST", "/v1/threads/t1/summarize", nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusNoContent)
	}
}

func TestSummarize_CreatesSummary(t *testing.T) {
	h := newTestRouter(t)

	for _, text := range []string{
		"user asked about retries",
		"agent proposed exponential backoff",
		"user approved the plan",
	} {
		rr := doJSON(t, h, "POST", "/v1/events", map[string]any{
			"scope":     "thread",
			"thread_id": "t1",
			"text":      text,
		})
		if rr.Code != http.StatusCreated {
			t.Fatalf("write status: got %d (body %s)", rr.Code, rr.Body.String())
		}
	}

	rr := doJSON(t, h, "POST", "/v1/threads/t1/summarize", nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("summarize status: got %d, want %d (body %s)", rr.Code, http.StatusCreated, rr.Body.String())
	}

	var summary eventResponse
	if err := json.NewDecoder(rr.Body).Decode(&summary); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !summary.Summary {
		t.Error("expected summary flag")
	}
	if len(summary.SourceIDs) != 3 {
		t.Errorf("source ids: got %d, want 3", len(summary.SourceIDs))
	}

	// No new events since the marker advanced: a repeat call is a no-op.
	rr = doJSON(t, h, "POST", "/v1/threads/t1/summarize", nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("repeat summarize status: got %d, want %d", rr.Code, http.StatusNoContent)
	}
}

func TestSummarizeStatus(t *testing.T) {
	h := newTestRouter(t)

	for i := 0; i < 2; i++ {
		doJSON(t, h, "POST", "/v1/events", map[string]any{
			"scope":     "thread",
			"thread_id": "t2",
			"text":      "observation",
		})
	}

	rr := doJSON(t, h, "GET", "/v1/threads/t2/summarize/status", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}

	var resp summarizeStatusResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Pending != 2 {
		t.Errorf("pending: got %d, want 2", resp.Pending)
	}
	if resp.LastRun != nil {
		t.Error("expected no last_run before the first summarization")
	}
}

func TestPrune_FreshEventsRetained(t *testing.T) {
	h := newTestRouter(t)

	low := 0.05
	doJSON(t, h, "POST", "/v1/events", map[string]any{
		"scope":      "project",
		"text":       "barely worth keeping",
		"importance": low,
	})

	rr := doJSON(t, h, "POST", "/v1/prune", map[string]any{"scope": "project"})
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d (body %s)", rr.Code, http.StatusOK, rr.Body.String())
	}

	var resp pruneResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	// The event is low-importance but younger than the retention window.
	if resp.Archived != 0 {
		t.Errorf("archived: got %d, want 0", resp.Archived)
	}
}

func TestPrune_UnknownScope_400(t *testing.T) {
	h := newTestRouter(t)

	rr := doJSON(t, h, "POST", "/v1/prune", map[string]any{"scope": "everything"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestHealthCheck(t *testing.T) {
	h := newTestRouter(t)

	rr := doJSON(t, h, "GET", "/health", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}

	var resp healthResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("status: got %s, want ok", resp.Status)
	}
	if resp.Checks["store"] != "ok" {
		t.Errorf("store check: got %s, want ok", resp.Checks["store"])
	}
}
