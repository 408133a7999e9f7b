package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sumire/recursiveflow/internal/repository"
	"github.com/sumire/recursiveflow/internal/rpc"
	"github.com/sumire/recursiveflow/internal/service"
	"github.com/sumire/recursiveflow/internal/tools"
)

func newTestRouter(t *testing.T, cfg RouterConfig) *echo.Echo {
	t.Helper()
	svc := service.NewWorkflowService(repository.NewJobStore())
	registry := tools.NewRegistry(svc, nil)
	dispatcher := rpc.NewDispatcher(registry, rpc.ServerInfo{Name: "mcp-recursive-flow-server", Version: "1.0.0"})
	return NewRouter(cfg, NewRPCHandler(dispatcher), NewToolHandler(registry), NewJobHandler(svc))
}

func do(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.RemoteAddr = "192.0.2.10:1234"
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return v
}

type toolEnvelope struct {
	Context struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"context"`
	NextAction *string `json:"nextAction"`
	Message    string  `json:"message"`
	IsError    bool    `json:"isError"`
}

func TestHealth(t *testing.T) {
	e := newTestRouter(t, RouterConfig{})
	rec := do(t, e, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("unexpected health response %d %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get(echo.HeaderXRequestID) == "" {
		t.Fatalf("expected a request id header")
	}
}

func TestToolCallOverREST(t *testing.T) {
	e := newTestRouter(t, RouterConfig{})

	rec := do(t, e, http.MethodPost, "/api/v1/tools/startJob", `{"goal":"ship feature"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	started := decode[toolEnvelope](t, rec)
	if started.Context.Status != "planning" || started.NextAction == nil || *started.NextAction != "setPlan" {
		t.Fatalf("unexpected envelope %s", rec.Body.String())
	}

	rec = do(t, e, http.MethodGet, "/api/v1/jobs/"+started.Context.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	job := decode[struct {
		Data struct {
			Goal string `json:"goal"`
		} `json:"data"`
	}](t, rec)
	if job.Data.Goal != "ship feature" {
		t.Fatalf("unexpected job %s", rec.Body.String())
	}

	rec = do(t, e, http.MethodGet, "/api/v1/jobs", "")
	list := decode[struct {
		Data []json.RawMessage `json:"data"`
	}](t, rec)
	if len(list.Data) != 1 {
		t.Fatalf("expected one job, got %s", rec.Body.String())
	}
}

func TestToolErrorIsEnvelopeNotFault(t *testing.T) {
	e := newTestRouter(t, RouterConfig{})
	rec := do(t, e, http.MethodPost, "/api/v1/tools/finishJob", `{"jobId":"missing"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	env := decode[toolEnvelope](t, rec)
	if !env.IsError || env.Message != "Job not found" {
		t.Fatalf("unexpected envelope %s", rec.Body.String())
	}
}

func TestHTTPErrorMapping(t *testing.T) {
	e := newTestRouter(t, RouterConfig{})

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"unknown job", http.MethodGet, "/api/v1/jobs/nope", "", http.StatusNotFound, "job_not_found"},
		{"unknown tool", http.MethodPost, "/api/v1/tools/launchRockets", `{}`, http.StatusNotFound, "unknown_tool"},
		{"validation", http.MethodPost, "/api/v1/tools/startJob", `{"goal":""}`, http.StatusBadRequest, "validation_error"},
		{"malformed", http.MethodPost, "/api/v1/tools/startJob", `{"goal":`, http.StatusBadRequest, "invalid_input"},
		{"no route", http.MethodGet, "/api/v2/nothing", "", http.StatusNotFound, "Not Found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, e, tt.method, tt.path, tt.body)
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d %s", tt.status, rec.Code, rec.Body.String())
			}
			env := decode[Envelope](t, rec)
			if env.Error == nil || env.Error.Code != tt.code {
				t.Fatalf("expected code %s, got %s", tt.code, rec.Body.String())
			}
		})
	}
}

func TestRPCEndpoint(t *testing.T) {
	e := newTestRouter(t, RouterConfig{})

	rec := do(t, e, http.MethodPost, "/rpc", `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"startJob"`) {
		t.Fatalf("unexpected rpc response %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, e, http.MethodPost, "/rpc", `{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	if rec.Code != http.StatusAccepted || rec.Body.Len() != 0 {
		t.Fatalf("expected empty 202 for notification, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestBodyLimit(t *testing.T) {
	e := newTestRouter(t, RouterConfig{MaxBodyBytes: 64})
	body := `{"goal":"` + strings.Repeat("x", 256) + `"}`
	rec := do(t, e, http.MethodPost, "/api/v1/tools/startJob", body)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestRateLimit(t *testing.T) {
	e := newTestRouter(t, RouterConfig{RateLimit: RateLimitConfig{RPS: 0.001, Burst: 2}})
	for i := 0; i < 2; i++ {
		if rec := do(t, e, http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
		}
	}
	rec := do(t, e, http.MethodGet, "/health", "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
}

func TestRateLimitIgnoresForwardedFor(t *testing.T) {
	e := newTestRouter(t, RouterConfig{RateLimit: RateLimitConfig{RPS: 0.001, Burst: 1}})

	allowed := 0
	for i := 0; i < 20; i++ {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.RemoteAddr = "192.0.2.10:1234"
		req.Header.Set(echo.HeaderXForwardedFor, fmt.Sprintf("198.51.100.%d", i+1))
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		if rec.Code == http.StatusOK {
			allowed++
		}
	}
	if allowed != 1 {
		t.Fatalf("expected one request allowed from a single peer, got %d", allowed)
	}
}

func TestRateLimitDisabled(t *testing.T) {
	if newRateLimiter(RateLimitConfig{}) != nil {
		t.Fatalf("expected zero RPS to disable the limiter")
	}
	var l *rateLimiter
	if !l.allow("k", time.Now()) {
		t.Fatalf("nil limiter must allow")
	}
}
