package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/akulikov/regdesk/internal/crud"
	"github.com/akulikov/regdesk/internal/dialogue"
	"github.com/akulikov/regdesk/internal/nlu"
	"github.com/akulikov/regdesk/internal/session"
	"github.com/akulikov/regdesk/internal/store"
)

func newTestServer(t *testing.T) (*httptest.Server, store.Repository) {
	t.Helper()

	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "regdesk.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	sessions := session.NewStore(0)
	engine := dialogue.New(sessions, nlu.NewRuleClassifier(), crud.NewDispatcher(repo, slog.Default()), slog.Default())

	r := chi.NewRouter()
	NewHandler(engine, repo).RegisterRoutes(r)
	NewHealthHandler(repo).RegisterHealth(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, repo
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s failed: %v", url, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestChatAssignsSessionID(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/chat", ChatRequest{Message: "help"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var out ChatResponse
	decodeBody(t, resp, &out)
	if out.SessionID == "" {
		t.Error("expected a generated session_id")
	}
	if out.Response == "" {
		t.Error("expected a non-empty response")
	}
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/chat", ChatRequest{Message: ""})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

func TestChatRejectsMalformedBody(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/chat", "application/json", strings.NewReader("{not json"))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

func TestChatSessionContinuity(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/chat", ChatRequest{Message: "I want to register"})
	var first ChatResponse
	decodeBody(t, resp, &first)
	if !strings.Contains(strings.ToLower(first.Response), "name") {
		t.Fatalf("expected prompt for full name, got %q", first.Response)
	}

	resp = postJSON(t, srv.URL+"/api/chat", ChatRequest{Message: "Jane Smith", SessionID: first.SessionID})
	var second ChatResponse
	decodeBody(t, resp, &second)
	if second.SessionID != first.SessionID {
		t.Errorf("session_id changed between turns: %q vs %q", first.SessionID, second.SessionID)
	}
	if !strings.Contains(strings.ToLower(second.Response), "email") {
		t.Errorf("expected prompt for email, got %q", second.Response)
	}
}

func TestClearResetsConversation(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/chat", ChatRequest{Message: "I want to register"})
	var out ChatResponse
	decodeBody(t, resp, &out)

	resp = postJSON(t, srv.URL+"/api/clear", ClearRequest{SessionID: out.SessionID})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("clear status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	// After clearing, a non-intent utterance is met with the help text
	// rather than a field prompt.
	resp = postJSON(t, srv.URL+"/api/chat", ChatRequest{Message: "Jane Smith", SessionID: out.SessionID})
	var next ChatResponse
	decodeBody(t, resp, &next)
	if !strings.Contains(strings.ToLower(next.Response), "register") {
		t.Errorf("expected fresh-session help reply, got %q", next.Response)
	}
}

func TestClearIsIdempotent(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/clear", ClearRequest{SessionID: "never-seen"})
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
}

func TestClearRequiresSessionID(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/clear", ClearRequest{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

func TestListRegistrations(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)

	// Register one person end to end through the chat API.
	turns := []string{
		"I want to register",
		"Jane Smith",
		"jane@example.com",
		"+14155550100",
		"1990-01-15",
		"42 Elm Street, Springfield",
	}
	sessionID := ""
	for _, msg := range turns {
		resp := postJSON(t, srv.URL+"/api/chat", ChatRequest{Message: msg, SessionID: sessionID})
		var out ChatResponse
		decodeBody(t, resp, &out)
		sessionID = out.SessionID
	}

	resp, err := http.Get(srv.URL + "/api/registrations")
	if err != nil {
		t.Fatalf("GET /api/registrations failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var out struct {
		Count int `json:"count"`
	}
	decodeBody(t, resp, &out)
	if out.Count != 1 {
		t.Errorf("count = %d, want 1", out.Count)
	}

	auditResp, err := http.Get(srv.URL + "/api/audit")
	if err != nil {
		t.Fatalf("GET /api/audit failed: %v", err)
	}
	defer auditResp.Body.Close()
	var audit struct {
		Count int `json:"count"`
	}
	decodeBody(t, auditResp, &audit)
	if audit.Count != 1 {
		t.Errorf("audit count = %d, want 1", audit.Count)
	}
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/health")
	if err != nil {
		t.Fatalf("GET /api/health failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var out struct {
		Status string `json:"status"`
	}
	decodeBody(t, resp, &out)
	if out.Status != "healthy" {
		t.Errorf("status = %q, want %q", out.Status, "healthy")
	}
}

func TestPaginationParams(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		query      string
		wantLimit  int
		wantOffset int
	}{
		{"", 100, 0},
		{"?limit=10", 10, 0},
		{"?limit=10&offset=5", 10, 5},
		{"?limit=-1&offset=-1", 100, 0},
		{"?limit=abc", 100, 0},
	} {
		r := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/registrations%s", tc.query), nil)
		limit, offset := pagination(r, 100)
		if limit != tc.wantLimit || offset != tc.wantOffset {
			t.Errorf("pagination(%q) = (%d, %d), want (%d, %d)", tc.query, limit, offset, tc.wantLimit, tc.wantOffset)
		}
	}
}
