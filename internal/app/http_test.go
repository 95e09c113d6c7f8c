package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"synkris/api/internal/auth"
	"synkris/api/internal/export"
	"synkris/api/internal/pubsub"
	"synkris/api/internal/rbac"
)

func issueToken(t *testing.T, subject, org string) string {
	t.Helper()
	token, err := auth.IssueIdentityToken([]byte(testSecret), auth.Identity{
		Subject:        subject,
		Issuer:         testIssuer,
		Name:           subject,
		Email:          subject + "@example.com",
		OrganizationID: org,
	}, time.Hour)
	if err != nil {
		t.Fatalf("IssueIdentityToken() error = %v", err)
	}
	return token
}

func doJSON(t *testing.T, handler http.Handler, method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	var payload map[string]any
	if strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") && rr.Body.Len() > 0 {
		if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
			t.Fatalf("decode response %q: %v", rr.Body.String(), err)
		}
	}
	return rr, payload
}

func TestProtectedRoutesRequireBearer(t *testing.T) {
	server := NewHTTPServer(newTestService(newFakeStore(), nil), "*")

	rr, payload := doJSON(t, server.Handler(), http.MethodGet, "/api/me", "", nil)
	if rr.Code != http.StatusUnauthorized || payload["code"] != codeUnauthorized {
		t.Fatalf("status = %d payload = %+v", rr.Code, payload)
	}

	rr, _ = doJSON(t, server.Handler(), http.MethodGet, "/api/me", "not-a-jwt", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("invalid token status = %d", rr.Code)
	}

	expired, err := auth.IssueIdentityToken([]byte(testSecret), auth.Identity{Subject: "alice", Issuer: testIssuer}, -time.Minute)
	if err != nil {
		t.Fatalf("IssueIdentityToken() error = %v", err)
	}
	rr, _ = doJSON(t, server.Handler(), http.MethodGet, "/api/me", expired, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expired token status = %d", rr.Code)
	}
}

func TestMeMirrorsUser(t *testing.T) {
	fs := newFakeStore()
	server := NewHTTPServer(newTestService(fs, nil), "*")

	rr, payload := doJSON(t, server.Handler(), http.MethodGet, "/api/me", issueToken(t, "alice", ""), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rr.Code, rr.Body.String())
	}
	if payload["tokenIdentifier"] != auth.TokenIdentifier(testIssuer, "alice") {
		t.Fatalf("payload = %+v", payload)
	}
	if _, ok := fs.users[auth.TokenIdentifier(testIssuer, "alice")]; !ok {
		t.Fatal("user was not mirrored")
	}

	escaped := url.PathEscape(auth.TokenIdentifier(testIssuer, "alice"))
	rr, payload = doJSON(t, server.Handler(), http.MethodGet, "/api/users/"+escaped, issueToken(t, "bob", ""), nil)
	if rr.Code != http.StatusOK || payload["name"] != "alice" {
		t.Fatalf("GET user status = %d payload = %+v", rr.Code, payload)
	}
}

func TestDocumentLifecycleOverHTTP(t *testing.T) {
	fs := newFakeStore()
	server := NewHTTPServer(newTestService(fs, nil), "*")
	handler := server.Handler()
	alice := issueToken(t, "alice", "")
	bob := issueToken(t, "bob", "")

	rr, payload := doJSON(t, handler, http.MethodPost, "/api/documents", alice, map[string]any{"title": "Roadmap"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status = %d body = %s", rr.Code, rr.Body.String())
	}
	documentID := payload["document"].(map[string]any)["id"].(string)

	rr, _ = doJSON(t, handler, http.MethodGet, "/api/documents/"+documentID, bob, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("stranger GET status = %d", rr.Code)
	}

	rr, _ = doJSON(t, handler, http.MethodPost, "/api/documents/"+documentID+"/shares", alice, map[string]any{"email": "bob@example.com", "role": "editor"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("share status = %d body = %s", rr.Code, rr.Body.String())
	}

	rr, payload = doJSON(t, handler, http.MethodPost, "/api/documents/"+documentID+"/locks/toggle", bob, map[string]any{"position": 0, "length": 8})
	if rr.Code != http.StatusOK || payload["locked"] != true {
		t.Fatalf("toggle status = %d payload = %+v", rr.Code, payload)
	}

	rr, payload = doJSON(t, handler, http.MethodPost, "/api/documents/"+documentID+"/locks/toggle", alice, map[string]any{"position": 0, "length": 8})
	if rr.Code != http.StatusConflict || payload["code"] != codeLockConflict {
		t.Fatalf("conflict status = %d payload = %+v", rr.Code, payload)
	}

	rr, payload = doJSON(t, handler, http.MethodGet, "/api/documents/"+documentID+"/locks/0", alice, nil)
	if rr.Code != http.StatusOK || payload["locked"] != true {
		t.Fatalf("is-locked status = %d payload = %+v", rr.Code, payload)
	}

	rr, payload = doJSON(t, handler, http.MethodPost, "/api/documents/"+documentID+"/admission", alice, map[string]any{
		"steps": []map[string]any{{"from": 2, "to": 3}},
	})
	if rr.Code != http.StatusLocked || payload["code"] != codeLockedRange {
		t.Fatalf("admission status = %d payload = %+v", rr.Code, payload)
	}

	rr, _ = doJSON(t, handler, http.MethodDelete, "/api/documents/"+documentID+"/locks/0", alice, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("owner unlock status = %d body = %s", rr.Code, rr.Body.String())
	}

	rr, payload = doJSON(t, handler, http.MethodGet, "/api/documents/"+documentID+"/locks", bob, nil)
	if rr.Code != http.StatusOK || len(payload["locks"].([]any)) != 0 {
		t.Fatalf("list locks status = %d payload = %+v", rr.Code, payload)
	}

	rr, _ = doJSON(t, handler, http.MethodPost, "/api/documents/"+documentID+"/versions", bob, map[string]any{"position": 0, "length": 5, "content": "hello"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("save version status = %d body = %s", rr.Code, rr.Body.String())
	}
	rr, payload = doJSON(t, handler, http.MethodGet, "/api/documents/"+documentID+"/versions/latest?position=0", bob, nil)
	if rr.Code != http.StatusOK || payload["version"].(map[string]any)["content"] != "hello" {
		t.Fatalf("latest version status = %d payload = %+v", rr.Code, payload)
	}

	rr, _ = doJSON(t, handler, http.MethodDelete, "/api/documents/"+documentID, bob, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("editor delete status = %d", rr.Code)
	}
	rr, _ = doJSON(t, handler, http.MethodDelete, "/api/documents/"+documentID, alice, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("owner delete status = %d", rr.Code)
	}
	rr, _ = doJSON(t, handler, http.MethodGet, "/api/documents/"+documentID, alice, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("GET after delete status = %d", rr.Code)
	}
}

func TestVersionsRequirePosition(t *testing.T) {
	fs := newFakeStore()
	seedDocument(fs, "doc_1", "alice", "")
	server := NewHTTPServer(newTestService(fs, nil), "*")

	rr, payload := doJSON(t, server.Handler(), http.MethodGet, "/api/documents/doc_1/versions", issueToken(t, "alice", ""), nil)
	if rr.Code != http.StatusUnprocessableEntity || payload["code"] != codeValidation {
		t.Fatalf("status = %d payload = %+v", rr.Code, payload)
	}
}

func TestSyncRoutesRequireToken(t *testing.T) {
	fs := newFakeStore()
	seedDocument(fs, "doc_1", "alice", "")
	server := NewHTTPServer(newTestService(fs, nil), "*")
	body := map[string]any{"documentId": "doc_1", "actor": "alice", "content": "hello", "caret": 0}

	rr, _ := doJSON(t, server.Handler(), http.MethodPost, "/api/internal/sync/update", "", body)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("missing sync token status = %d", rr.Code)
	}

	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/api/internal/sync/update", bytes.NewReader(raw))
	req.Header.Set("X-Synkris-Sync-Token", "sync-token")
	rr = httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("sync update status = %d body = %s", rr.Code, rr.Body.String())
	}
	if fs.documents["doc_1"].Content != "hello" {
		t.Fatalf("content = %q", fs.documents["doc_1"].Content)
	}
}

type fakeExporter struct {
	exportFn func(context.Context, export.Document, export.Format) (*export.Result, error)
}

func (f *fakeExporter) Export(ctx context.Context, doc export.Document, format export.Format) (*export.Result, error) {
	return f.exportFn(ctx, doc, format)
}

type fakeBlob struct {
	putErr error
	keys   []string
}

func (f *fakeBlob) Put(_ context.Context, key string, _ []byte, _, _ string) error {
	if f.putErr != nil {
		return f.putErr
	}
	f.keys = append(f.keys, key)
	return nil
}

func (f *fakeBlob) PresignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	return "https://blob.example.test/" + key + "?ttl=" + ttl.String(), nil
}

func TestExportRoute(t *testing.T) {
	fs := newFakeStore()
	seedDocument(fs, "doc_1", "alice", "")
	var captured export.Document
	exporter := &fakeExporter{exportFn: func(_ context.Context, doc export.Document, format export.Format) (*export.Result, error) {
		captured = doc
		if format == export.FormatDOCX {
			return nil, export.ErrDOCXDependencyMissing
		}
		return &export.Result{Data: []byte("<html></html>"), Filename: "Plan.html", MimeType: "text/html; charset=utf-8"}, nil
	}}
	token := issueToken(t, "alice", "")

	t.Run("inline bytes without blob storage", func(t *testing.T) {
		svc := New(testConfig(), fs, Dependencies{Exporter: exporter})
		rr, _ := doJSON(t, NewHTTPServer(svc, "*").Handler(), http.MethodGet, "/api/documents/doc_1/export?format=html", token, nil)
		if rr.Code != http.StatusOK || rr.Body.String() != "<html></html>" {
			t.Fatalf("status = %d body = %q", rr.Code, rr.Body.String())
		}
		if got := rr.Header().Get("Content-Disposition"); got != `attachment; filename="Plan.html"` {
			t.Fatalf("Content-Disposition = %q", got)
		}
		if captured.OwnerName != "alice" {
			t.Fatalf("owner name = %q", captured.OwnerName)
		}
	})

	t.Run("presigned link with blob storage", func(t *testing.T) {
		store := &fakeBlob{}
		svc := New(testConfig(), fs, Dependencies{Exporter: exporter, Blob: store})
		rr, payload := doJSON(t, NewHTTPServer(svc, "*").Handler(), http.MethodGet, "/api/documents/doc_1/export?format=html", token, nil)
		if rr.Code != http.StatusOK || !strings.HasPrefix(payload["url"].(string), "https://blob.example.test/exports/doc_1/") {
			t.Fatalf("status = %d payload = %+v", rr.Code, payload)
		}
		if len(store.keys) != 1 {
			t.Fatalf("keys = %+v", store.keys)
		}
	})

	t.Run("upload failure falls back to inline", func(t *testing.T) {
		svc := New(testConfig(), fs, Dependencies{Exporter: exporter, Blob: &fakeBlob{putErr: errors.New("bucket gone")}})
		rr, _ := doJSON(t, NewHTTPServer(svc, "*").Handler(), http.MethodGet, "/api/documents/doc_1/export?format=html", token, nil)
		if rr.Code != http.StatusOK || rr.Body.String() != "<html></html>" {
			t.Fatalf("status = %d body = %q", rr.Code, rr.Body.String())
		}
	})

	t.Run("missing runtime dependency", func(t *testing.T) {
		svc := New(testConfig(), fs, Dependencies{Exporter: exporter})
		rr, payload := doJSON(t, NewHTTPServer(svc, "*").Handler(), http.MethodGet, "/api/documents/doc_1/export?format=docx", token, nil)
		if rr.Code != http.StatusServiceUnavailable || payload["code"] != "EXPORT_UNAVAILABLE" {
			t.Fatalf("status = %d payload = %+v", rr.Code, payload)
		}
	})

	t.Run("unknown format", func(t *testing.T) {
		svc := New(testConfig(), fs, Dependencies{Exporter: exporter})
		rr, _ := doJSON(t, NewHTTPServer(svc, "*").Handler(), http.MethodGet, "/api/documents/doc_1/export?format=odt", token, nil)
		if rr.Code != http.StatusUnprocessableEntity {
			t.Fatalf("status = %d", rr.Code)
		}
	})
}

func TestLockStreamPushesChanges(t *testing.T) {
	fs := newFakeStore()
	seedDocument(fs, "doc_1", "alice", "")
	bobSession := testSession("bob", "")
	seedShare(fs, "doc_1", bobSession, rbac.RoleEditor)
	svc := New(testConfig(), fs, Dependencies{Broker: pubsub.NewMemoryBroker()})
	server := httptest.NewServer(NewHTTPServer(svc, "*").Handler())
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/documents/doc_1/locks/stream?token=" + url.QueryEscape(issueToken(t, "alice", ""))
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var initial struct {
		Type  string           `json:"type"`
		Locks []map[string]any `json:"locks"`
	}
	if err := conn.ReadJSON(&initial); err != nil {
		t.Fatalf("read initial frame: %v", err)
	}
	if initial.Type != "locks" || len(initial.Locks) != 0 {
		t.Fatalf("initial frame = %+v", initial)
	}

	if _, err := svc.ToggleLock(context.Background(), bobSession, "doc_1", 4, 3); err != nil {
		t.Fatalf("ToggleLock() error = %v", err)
	}
	var update struct {
		Locks []map[string]any `json:"locks"`
	}
	if err := conn.ReadJSON(&update); err != nil {
		t.Fatalf("read update frame: %v", err)
	}
	if len(update.Locks) != 1 || update.Locks[0]["lockedBy"] != "bob" {
		t.Fatalf("update frame = %+v", update)
	}
}
