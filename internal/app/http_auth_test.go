package app

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"pdfpro/api/internal/auth"
)

func TestSessionLoginReturnsContract(t *testing.T) {
	svc := newTestService(newFakeStore())
	server := NewHTTPServer(svc, "*", zerolog.Nop())

	req := httptest.NewRequest(http.MethodPost, "/api/session/login", bytes.NewBufferString(`{"name":"  Avery  "}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}

	token, _ := payload["token"].(string)
	userName, _ := payload["userName"].(string)
	userID, _ := payload["userId"].(string)

	if token == "" {
		t.Fatalf("expected token")
	}
	if userName != "Avery" {
		t.Fatalf("expected userName Avery, got %q", userName)
	}
	if userID == "" {
		t.Fatalf("expected userId")
	}

	claims, err := auth.ParseToken([]byte("test-secret"), token)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.Sub != userID || claims.Name != "Avery" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestSessionEndpointReportsAuthentication(t *testing.T) {
	svc := newTestService(newFakeStore())
	server := NewHTTPServer(svc, "*", zerolog.Nop())
	token := loginToken(t, server, "Avery")

	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	var anon map[string]any
	_ = json.Unmarshal(rr.Body.Bytes(), &anon)
	if anon["authenticated"] != false {
		t.Fatalf("expected anonymous session, got %v", anon)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr = httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	var authed map[string]any
	_ = json.Unmarshal(rr.Body.Bytes(), &authed)
	if authed["authenticated"] != true || authed["userName"] != "Avery" {
		t.Fatalf("expected authenticated session, got %v", authed)
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	svc := newTestService(newFakeStore())
	server := NewHTTPServer(svc, "*", zerolog.Nop())
	token := loginToken(t, server, "Avery")

	req := httptest.NewRequest(http.MethodPost, "/api/session/logout", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/workspace", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr = httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected revoked token to be rejected, got %d", rr.Code)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	svc := newTestService(newFakeStore())
	server := NewHTTPServer(svc, "*", zerolog.Nop())

	for _, tc := range []struct {
		method, path string
	}{
		{http.MethodGet, "/api/workspace"},
		{http.MethodPost, "/api/editor/layers"},
		{http.MethodGet, "/api/editor/composite.png"},
		{http.MethodGet, "/api/versions"},
	} {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		rr := httptest.NewRecorder()
		server.Handler().ServeHTTP(rr, req)
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: expected 401, got %d", tc.method, tc.path, rr.Code)
		}
	}
}

func TestExpiredTokenIsRejected(t *testing.T) {
	svc := newTestService(newFakeStore())
	server := NewHTTPServer(svc, "*", zerolog.Nop())

	token, err := auth.IssueToken([]byte("test-secret"), auth.Claims{
		Sub:  "user-avery",
		Name: "Avery",
		JTI:  "jti-expired",
		Exp:  time.Now().Add(-time.Minute).Unix(),
		Iat:  time.Now().Add(-time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/workspace", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func loginToken(t *testing.T, server *HTTPServer, name string) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/session/login", bytes.NewBufferString(`{"name":"`+name+`"}`))
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("login: status %d", rr.Code)
	}
	var payload struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse login: %v", err)
	}
	return payload.Token
}
