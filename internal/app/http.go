package app

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"synkris/api/internal/auth"
	"synkris/api/internal/export"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
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

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}

		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	if strings.HasPrefix(r.URL.Path, "/api/internal/sync/") {
		s.handleSync(w, r)
		return
	}

	parts, err := splitPath(r.URL.EscapedPath())
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_PATH", err.Error(), nil)
		return
	}
	if len(parts) < 2 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, codeNotFound, "Route not found", nil)
		return
	}

	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	switch parts[1] {
	case "me":
		if len(parts) == 2 && r.Method == http.MethodGet {
			writeJSON(w, http.StatusOK, s.service.Me(session))
			return
		}
	case "users":
		if len(parts) == 3 && r.Method == http.MethodGet {
			payload, err := s.service.GetUser(r.Context(), parts[2])
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, payload)
			return
		}
	case "realtime":
		if len(parts) == 3 && parts[2] == "auth" && r.Method == http.MethodPost {
			var body struct {
				Room string `json:"room"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.RealtimeAuth(r.Context(), session, body.Room)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, payload)
			return
		}
	case "documents":
		s.handleDocuments(w, r, session, parts)
		return
	}

	writeError(w, http.StatusNotFound, codeNotFound, "Route not found", nil)
}

func (s *HTTPServer) handleDocuments(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) == 2 {
		switch r.Method {
		case http.MethodGet:
			limit, offset, ok := pagination(w, r)
			if !ok {
				return
			}
			payload, err := s.service.ListDocuments(r.Context(), session, r.URL.Query().Get("search"), limit, offset)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, payload)
			return
		case http.MethodPost:
			var body struct {
				Title   string `json:"title"`
				Content string `json:"content"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.CreateDocument(r.Context(), session, body.Title, body.Content)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, map[string]any{"document": payload})
			return
		}
	}

	if len(parts) == 3 && parts[2] == "shared" && r.Method == http.MethodGet {
		items, err := s.service.SharedDocuments(r.Context(), session)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
		return
	}

	if len(parts) == 3 && parts[2] == "lookup" && r.Method == http.MethodPost {
		var body struct {
			IDs []string `json:"ids"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		items, err := s.service.LookupDocuments(r.Context(), session, body.IDs)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
		return
	}

	if len(parts) < 3 {
		writeError(w, http.StatusNotFound, codeNotFound, "Route not found", nil)
		return
	}
	documentID := parts[2]

	if len(parts) == 3 {
		switch r.Method {
		case http.MethodGet:
			payload, err := s.service.GetDocument(r.Context(), session, documentID)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"document": payload})
			return
		case http.MethodPatch, http.MethodPut:
			var body DocumentUpdate
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.UpdateDocument(r.Context(), session, documentID, body)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"document": payload})
			return
		case http.MethodDelete:
			if err := s.service.DeleteDocument(r.Context(), session, documentID); err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
			return
		}
	}

	switch parts[3] {
	case "auth-info":
		if len(parts) == 4 && r.Method == http.MethodGet {
			payload, err := s.service.AuthInfo(r.Context(), session, documentID)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, payload)
			return
		}
	case "locks":
		s.handleLocks(w, r, session, documentID, parts)
		return
	case "versions":
		s.handleVersions(w, r, session, documentID, parts)
		return
	case "admission":
		if len(parts) == 4 && r.Method == http.MethodPost {
			var body AdmissionRequest
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.CheckAdmission(r.Context(), session, documentID, body)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, payload)
			return
		}
	case "shares":
		s.handleShares(w, r, session, documentID, parts)
		return
	case "leave":
		if len(parts) == 4 && r.Method == http.MethodPost {
			if err := s.service.LeaveDocument(r.Context(), session, documentID); err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
			return
		}
	case "messages":
		s.handleMessages(w, r, session, documentID, parts)
		return
	case "history":
		if r.Method != http.MethodGet {
			break
		}
		if len(parts) == 4 {
			limit := 50
			if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
				if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
					limit = parsed
				}
			}
			payload, err := s.service.History(r.Context(), session, documentID, limit)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, payload)
			return
		}
		if len(parts) == 5 {
			payload, err := s.service.HistoryContent(r.Context(), session, documentID, parts[4])
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, payload)
			return
		}
	case "export":
		if len(parts) == 4 && r.Method == http.MethodGet {
			s.handleExport(w, r, session, documentID)
			return
		}
	}

	writeError(w, http.StatusNotFound, codeNotFound, "Route not found", nil)
}

func (s *HTTPServer) handleLocks(w http.ResponseWriter, r *http.Request, session Session, documentID string, parts []string) {
	if len(parts) == 4 && r.Method == http.MethodGet {
		locks, err := s.service.ListLocks(r.Context(), session, documentID)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"locks": lockListPayload(locks)})
		return
	}

	if len(parts) == 5 && parts[4] == "toggle" && r.Method == http.MethodPost {
		var body struct {
			Position *int `json:"position"`
			Length   *int `json:"length"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if body.Position == nil || body.Length == nil {
			writeError(w, http.StatusUnprocessableEntity, codeValidation, "position and length are required", nil)
			return
		}
		payload, err := s.service.ToggleLock(r.Context(), session, documentID, *body.Position, *body.Length)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if len(parts) == 5 && parts[4] == "stream" && r.Method == http.MethodGet {
		s.handleLockStream(w, r, session, documentID)
		return
	}

	if len(parts) == 5 {
		position, err := strconv.Atoi(parts[4])
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, codeValidation, "position must be an integer", nil)
			return
		}
		switch r.Method {
		case http.MethodGet:
			payload, err := s.service.IsLocked(r.Context(), session, documentID, position)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, payload)
			return
		case http.MethodDelete:
			if err := s.service.ReleaseLock(r.Context(), session, documentID, position); err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
			return
		}
	}

	writeError(w, http.StatusNotFound, codeNotFound, "Route not found", nil)
}

func (s *HTTPServer) handleVersions(w http.ResponseWriter, r *http.Request, session Session, documentID string, parts []string) {
	if len(parts) == 4 && r.Method == http.MethodPost {
		var body struct {
			Position *int   `json:"position"`
			Length   *int   `json:"length"`
			Content  string `json:"content"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if body.Position == nil || body.Length == nil {
			writeError(w, http.StatusUnprocessableEntity, codeValidation, "position and length are required", nil)
			return
		}
		payload, err := s.service.SaveVersion(r.Context(), session, documentID, *body.Position, *body.Length, body.Content)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"version": payload})
		return
	}

	if r.Method != http.MethodGet || len(parts) > 5 || (len(parts) == 5 && parts[4] != "latest") {
		writeError(w, http.StatusNotFound, codeNotFound, "Route not found", nil)
		return
	}
	position, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("position")))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, codeValidation, "position query parameter must be an integer", nil)
		return
	}

	if len(parts) == 5 {
		payload, err := s.service.LatestVersion(r.Context(), session, documentID, position)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"version": payload})
		return
	}

	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil {
			writeError(w, http.StatusUnprocessableEntity, codeValidation, "limit must be an integer", nil)
			return
		}
	}
	items, err := s.service.VersionsByPosition(r.Context(), session, documentID, position, limit)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"versions": items})
}

func (s *HTTPServer) handleShares(w http.ResponseWriter, r *http.Request, session Session, documentID string, parts []string) {
	if len(parts) == 4 {
		switch r.Method {
		case http.MethodGet:
			items, err := s.service.GetShares(r.Context(), session, documentID)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"shares": items})
			return
		case http.MethodPost:
			var body struct {
				Email string `json:"email"`
				Role  string `json:"role"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.ShareDocument(r.Context(), session, documentID, body.Email, body.Role)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, map[string]any{"share": payload})
			return
		}
	}

	if len(parts) == 5 && r.Method == http.MethodDelete {
		if err := s.service.RemoveShare(r.Context(), session, documentID, parts[4]); err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	writeError(w, http.StatusNotFound, codeNotFound, "Route not found", nil)
}

func (s *HTTPServer) handleMessages(w http.ResponseWriter, r *http.Request, session Session, documentID string, parts []string) {
	if len(parts) == 4 {
		switch r.Method {
		case http.MethodGet:
			limit := 0
			if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
				if parsed, err := strconv.Atoi(raw); err == nil {
					limit = parsed
				}
			}
			items, err := s.service.ListMessages(r.Context(), session, documentID, limit)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"messages": items})
			return
		case http.MethodPost:
			var body struct {
				Content string `json:"content"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.SendMessage(r.Context(), session, documentID, body.Content)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, map[string]any{"message": payload})
			return
		}
	}

	if len(parts) == 5 && parts[4] == "unread" && r.Method == http.MethodGet {
		payload, err := s.service.UnreadCount(r.Context(), session, documentID)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if len(parts) == 5 && parts[4] == "read" && r.Method == http.MethodPost {
		payload, err := s.service.MarkMessagesRead(r.Context(), session, documentID)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if len(parts) == 5 && r.Method == http.MethodDelete {
		if err := s.service.DeleteMessage(r.Context(), session, documentID, parts[4]); err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	writeError(w, http.StatusNotFound, codeNotFound, "Route not found", nil)
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request, session Session, documentID string) {
	format, ok := export.ParseFormat(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format"))))
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, codeValidation, "format must be html, pdf or docx", nil)
		return
	}
	includeChat, _ := strconv.ParseBool(r.URL.Query().Get("includeChat"))

	outcome, err := s.service.ExportDocument(r.Context(), session, documentID, format, includeChat)
	if err != nil {
		s.fail(w, err)
		return
	}
	if outcome.URL != "" {
		writeJSON(w, http.StatusOK, map[string]any{
			"url":       outcome.URL,
			"filename":  outcome.Result.Filename,
			"expiresAt": outcome.ExpiresAt.Unix(),
		})
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", outcome.Result.Filename))
	w.Header().Set("Content-Type", outcome.Result.MimeType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(outcome.Result.Data)
}

func (s *HTTPServer) handleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusNotFound, codeNotFound, "Route not found", nil)
		return
	}
	syncToken := strings.TrimSpace(r.Header.Get("X-Synkris-Sync-Token"))
	if syncToken == "" || syncToken != s.service.SyncToken() {
		writeError(w, http.StatusUnauthorized, codeUnauthorized, "Unauthorized", nil)
		return
	}

	switch r.URL.Path {
	case "/api/internal/sync/update":
		var body SyncUpdate
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.HandleSyncUpdate(r.Context(), body)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
	case "/api/internal/sync/session-ended":
		var body SyncSessionEnded
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.HandleSyncSessionEnded(r.Context(), body)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
	default:
		writeError(w, http.StatusNotFound, codeNotFound, "Route not found", nil)
	}
}

func (s *HTTPServer) fail(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	if status == http.StatusInternalServerError {
		log.Printf("request failed: %v", err)
	}
	writeError(w, status, code, message, details)
}

// requireSession accepts the identity token as a bearer header, or as a
// token query parameter on websocket upgrades where browsers cannot set
// headers.
func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" && isWebsocketUpgrade(r) {
		token = strings.TrimSpace(r.URL.Query().Get("token"))
	}
	if token == "" {
		writeError(w, http.StatusUnauthorized, codeUnauthorized, "Unauthorized", nil)
		return Session{}, false
	}
	session, err := s.service.Authenticate(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, codeUnauthorized, "Unauthorized", nil)
			return Session{}, false
		}
		log.Printf("authenticate: %v", err)
		writeError(w, http.StatusInternalServerError, codeServerError, "Session lookup failed", nil)
		return Session{}, false
	}
	return session, true
}

func isWebsocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

func pagination(w http.ResponseWriter, r *http.Request) (limit, offset int, ok bool) {
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, codeValidation, "limit must be an integer", nil)
			return 0, 0, false
		}
		limit = parsed
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("offset")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusUnprocessableEntity, codeValidation, "offset must be a non-negative integer", nil)
			return 0, 0, false
		}
		offset = parsed
	}
	return limit, offset, true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets the websocket upgrader take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID, X-Synkris-Sync-Token")
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
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

// splitPath splits an escaped path and unescapes each segment, so ids that
// contain "/" or "|" survive as single segments when percent-encoded.
func splitPath(escaped string) ([]string, error) {
	trimmed := strings.Trim(escaped, "/")
	if trimmed == "" {
		return nil, nil
	}
	raw := strings.Split(trimmed, "/")
	parts := make([]string, len(raw))
	for i, part := range raw {
		unescaped, err := url.PathUnescape(part)
		if err != nil {
			return nil, fmt.Errorf("invalid path segment %q", part)
		}
		parts[i] = unescaped
	}
	return parts, nil
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, codeNotFound, "Not found", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, codeUnauthorized, "Unauthorized", nil
	}
	return http.StatusInternalServerError, codeServerError, "Server error", nil
}
