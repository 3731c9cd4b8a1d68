package app

import (
	"bufio"
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"pdfpro/api/internal/auth"
	"pdfpro/api/internal/search"
	"pdfpro/api/internal/store"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	log        zerolog.Logger
}

func NewHTTPServer(service *Service, corsOrigin string, log zerolog.Logger) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin, log: log}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		ready, checks := s.service.Readiness(ctx)
		status, statusCode := "ready", http.StatusOK
		if !ready {
			status, statusCode = "not_ready", http.StatusServiceUnavailable
		}
		writeJSON(w, statusCode, map[string]any{
			"ok":     ready,
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		token := bearerToken(r)
		if token == "" {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "userName": nil})
			return
		}
		session, err := s.service.SessionFromToken(r.Context(), token)
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "userName": nil})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": true, "userName": session.UserName, "userId": session.UserID})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/login" {
		var body struct {
			Name string `json:"name"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		session, err := s.service.Login(r.Context(), body.Name)
		if err != nil {
			s.log.Error().Err(err).Msg("login failed")
			writeError(w, http.StatusInternalServerError, "LOGIN_FAILED", "Login failed", nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"token":     session.Token,
			"userName":  session.UserName,
			"userId":    session.UserID,
			"expiresAt": session.ExpiresAt.Unix(),
		})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/logout" {
		if token := bearerToken(r); token != "" {
			if session, err := s.service.SessionFromToken(r.Context(), token); err == nil {
				if err := s.service.Logout(r.Context(), session); err != nil {
					s.log.Warn().Err(err).Msg("revoke token")
				}
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 2 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
		return
	}

	switch parts[1] {
	case "workspace":
		if r.Method == http.MethodGet && len(parts) == 2 {
			s.respond(w, r)(s.service.Workspace(r.Context(), session.UserID))
			return
		}
	case "editor":
		s.handleEditor(w, r, session, parts[2:])
		return
	case "export":
		if r.Method == http.MethodGet && len(parts) == 2 {
			s.handleExport(w, r, session)
			return
		}
	case "search":
		if r.Method == http.MethodGet && len(parts) == 2 {
			query := r.URL.Query()
			limit, _ := strconv.Atoi(query.Get("limit"))
			writeJSON(w, http.StatusOK, s.service.Search(r.Context(), session.UserID, query.Get("q"), search.ResultType(query.Get("type")), limit))
			return
		}
	case "versions":
		s.handleVersions(w, r, session, parts[2:])
		return
	case "live":
		if r.Method == http.MethodGet && len(parts) == 2 {
			if err := s.service.ServeLive(w, r, session.UserID); err != nil {
				var domainErr *DomainError
				if errors.As(err, &domainErr) {
					s.writeMappedError(w, r, err)
				}
			}
			return
		}
	}
	writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
}

func (s *HTTPServer) handleEditor(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	ctx := r.Context()
	userID := session.UserID

	if len(parts) == 1 {
		switch {
		case r.Method == http.MethodPost && parts[0] == "layers":
			var body struct {
				Name string `json:"name"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			view, err := s.service.AddLayer(ctx, userID, body.Name)
			s.respondStatus(w, r, http.StatusCreated, view, err)
			return
		case r.Method == http.MethodPut && parts[0] == "tool":
			var body ToolPatch
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			s.respond(w, r)(s.service.SetTool(ctx, userID, body))
			return
		case r.Method == http.MethodPost && parts[0] == "pointer":
			var body PointerInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			s.respond(w, r)(s.service.Pointer(ctx, userID, body))
			return
		case r.Method == http.MethodPost && parts[0] == "undo":
			s.respond(w, r)(s.service.Undo(ctx, userID))
			return
		case r.Method == http.MethodPost && parts[0] == "redo":
			s.respond(w, r)(s.service.Redo(ctx, userID))
			return
		case r.Method == http.MethodPut && parts[0] == "text":
			var body struct {
				Text string `json:"text"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			s.respond(w, r)(s.service.SetText(ctx, userID, body.Text))
			return
		case r.Method == http.MethodPost && parts[0] == "actions":
			var body struct {
				Name string          `json:"name"`
				Args json.RawMessage `json:"args"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			if strings.TrimSpace(body.Name) == "" {
				writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", map[string]any{"available": s.service.ActionNames()})
				return
			}
			s.respond(w, r)(s.service.ExecuteAction(ctx, userID, body.Name, body.Args))
			return
		case r.Method == http.MethodGet && parts[0] == "actions":
			writeJSON(w, http.StatusOK, map[string]any{"actions": s.service.ActionNames()})
			return
		case r.Method == http.MethodPost && parts[0] == "images":
			s.handleUpload(w, r, session)
			return
		case r.Method == http.MethodGet && parts[0] == "images":
			images, err := s.service.ListImages(ctx, userID)
			if err != nil {
				s.writeMappedError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"images": images})
			return
		case r.Method == http.MethodGet && parts[0] == "composite.png":
			s.writePNG(w, r, func(out io.Writer) error { return s.service.CompositePNG(ctx, userID, out) })
			return
		case r.Method == http.MethodGet && parts[0] == "overlay.png":
			s.writePNG(w, r, func(out io.Writer) error { return s.service.OverlayPNG(ctx, userID, out) })
			return
		}
	}

	if len(parts) >= 2 && parts[0] == "layers" {
		layerID := parts[1]
		switch {
		case len(parts) == 2 && r.Method == http.MethodPatch:
			var body LayerPatch
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			s.respond(w, r)(s.service.UpdateLayer(ctx, userID, layerID, body))
			return
		case len(parts) == 2 && r.Method == http.MethodDelete:
			s.respond(w, r)(s.service.RemoveLayer(ctx, userID, layerID))
			return
		case len(parts) == 3 && r.Method == http.MethodPost && parts[2] == "move":
			var body struct {
				Index *int `json:"index"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			if body.Index == nil {
				writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "index is required", nil)
				return
			}
			s.respond(w, r)(s.service.MoveLayer(ctx, userID, layerID, *body.Index))
			return
		case len(parts) == 3 && r.Method == http.MethodPost && parts[2] == "activate":
			s.respond(w, r)(s.service.ActivateLayer(ctx, userID, layerID))
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
}

func (s *HTTPServer) handleUpload(w http.ResponseWriter, r *http.Request, session Session) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes+1<<20)
	up := ImageUpload{ContentType: r.Header.Get("Content-Type")}

	if strings.HasPrefix(up.ContentType, "multipart/") {
		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", "multipart field \"file\" is required", nil)
			return
		}
		defer file.Close()
		up.ContentType = header.Header.Get("Content-Type")
		up.Data, err = io.ReadAll(file)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
	} else {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, http.StatusRequestEntityTooLarge, "TOO_LARGE", "image exceeds 20 MiB", nil)
			return
		}
		up.Data = data
	}

	query := r.URL.Query()
	up.X = queryFloat(query.Get("x"))
	up.Y = queryFloat(query.Get("y"))
	up.Width = queryFloat(query.Get("width"))
	up.Height = queryFloat(query.Get("height"))

	result, err := s.service.UploadImage(r.Context(), session.UserID, up)
	s.respondStatus(w, r, http.StatusCreated, result, err)
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request, session Session) {
	query := r.URL.Query()
	result, err := s.service.Export(r.Context(), session, query.Get("format"), query.Get("title"))
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (s *HTTPServer) handleVersions(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	switch {
	case len(parts) == 0 && r.Method == http.MethodGet:
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		versions, err := s.service.Versions(r.Context(), session.UserID, limit)
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"versions": versions})
		return
	case len(parts) == 0 && r.Method == http.MethodPost:
		var body SaveVersionInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		info, err := s.service.SaveVersion(r.Context(), session, body)
		s.respondStatus(w, r, http.StatusCreated, info, err)
		return
	case len(parts) == 2 && r.Method == http.MethodPost && parts[1] == "restore":
		s.respond(w, r)(s.service.RestoreVersion(r.Context(), session.UserID, parts[0]))
		return
	}
	writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return Session{}, false
		}
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
		return Session{}, false
	}
	return session, true
}

// respond returns a writer for the usual (payload, error) pair of a service
// call.
func (s *HTTPServer) respond(w http.ResponseWriter, r *http.Request) func(any, error) {
	return func(payload any, err error) {
		s.respondStatus(w, r, http.StatusOK, payload, err)
	}
}

func (s *HTTPServer) respondStatus(w http.ResponseWriter, r *http.Request, status int, payload any, err error) {
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, status, payload)
}

func (s *HTTPServer) writeMappedError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.log.Error().Err(err).
			Str("request_id", requestID(r.Context())).
			Str("path", r.URL.Path).
			Msg("request failed")
	}
	writeError(w, status, code, message, details)
}

// writePNG renders into a buffer first so a failed render still gets a JSON
// error instead of a truncated image.
func (s *HTTPServer) writePNG(w http.ResponseWriter, r *http.Request, render func(io.Writer) error) {
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		s.log.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", writer.status).
			Int64("duration_ms", time.Since(started).Milliseconds()).
			Msg("request")
	})
}

type requestIDKey struct{}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets the live feed upgrade through the middleware.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	token, err := auth.BearerToken(r)
	if err != nil {
		return ""
	}
	return token
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func queryFloat(raw string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0
	}
	return v
}

func mapError(err error) (status int, code, message string, details any) {
	err = mapEditorError(err)
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, store.ErrNotFound) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, "TIMEOUT", "Request timed out", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
