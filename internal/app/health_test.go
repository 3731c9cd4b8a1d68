package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func TestHealthEndpoint(t *testing.T) {
	svc := newTestService(newFakeStore())
	server := NewHTTPServer(svc, "*", zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}

	var response map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if ok, exists := response["ok"]; !exists || ok != true {
		t.Errorf("expected ok=true, got %v", ok)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Errorf("expected a request id header")
	}
}

func TestReadyEndpoint_Success(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	svc.blobs = &fakeBlobs{}
	server := NewHTTPServer(svc, "*", zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/api/ready", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var response struct {
		OK     bool                      `json:"ok"`
		Status string                    `json:"status"`
		Checks map[string]map[string]any `json:"checks"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if !response.OK || response.Status != "ready" {
		t.Errorf("expected ready, got %+v", response)
	}
	if response.Checks["database"]["status"] != "ok" {
		t.Errorf("expected database ok, got %v", response.Checks["database"])
	}
	if response.Checks["objectStorage"]["status"] != "ok" {
		t.Errorf("expected object storage ok, got %v", response.Checks["objectStorage"])
	}
	if response.Checks["redis"]["status"] != "disabled" {
		t.Errorf("expected redis disabled, got %v", response.Checks["redis"])
	}
}

func TestReadyEndpoint_DatabaseDown(t *testing.T) {
	fs := newFakeStore()
	fs.pingFn = func(context.Context) error { return errors.New("connection refused") }
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*", zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/api/ready", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}

	var response map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if response["status"] != "not_ready" {
		t.Errorf("expected not_ready, got %v", response["status"])
	}
	checks := response["checks"].(map[string]any)
	db := checks["database"].(map[string]any)
	if db["error"] != "connection refused" {
		t.Errorf("expected ping error in checks, got %v", db)
	}
}

func TestReadyEndpoint_RedisDownIsNotFatal(t *testing.T) {
	svc := newTestService(newFakeStore())
	_, mr := withRedisDrafts(t, svc)
	mr.Close()
	server := NewHTTPServer(svc, "*", zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/api/ready", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200 with degraded redis, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestOptionsPreflight(t *testing.T) {
	svc := newTestService(newFakeStore())
	server := NewHTTPServer(svc, "https://board.example", zerolog.Nop())

	req := httptest.NewRequest(http.MethodOptions, "/api/editor/layers", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://board.example" {
		t.Fatalf("unexpected CORS origin %q", got)
	}
}
