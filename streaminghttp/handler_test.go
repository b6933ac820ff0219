package streaminghttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ggoodman/mcp-tracker-go/auth"
	"github.com/ggoodman/mcp-tracker-go/auth/authtest"
	"github.com/ggoodman/mcp-tracker-go/internal/engine"
	"github.com/ggoodman/mcp-tracker-go/internal/jsonrpc"
	"github.com/ggoodman/mcp-tracker-go/mcp"
	"github.com/ggoodman/mcp-tracker-go/sessions"
	"github.com/ggoodman/mcp-tracker-go/sessions/memorystore"
	"github.com/ggoodman/mcp-tracker-go/tracker/trackertest"
)

const (
	adaToken    = "ada-token"
	graceToken  = "grace-token"
	globexToken = "globex-token"
	readerToken = "reader-token"
)

func testAuthenticator() authtest.Static {
	return authtest.Static{
		adaToken:    {Subject: "u-ada", TenantID: trackertest.TenantAcme, ClientName: "ada-cli", Permissions: sessions.AllPermissions},
		graceToken:  {Subject: "u-grace", TenantID: trackertest.TenantAcme, Permissions: sessions.AllPermissions},
		globexToken: {Subject: "u-ada", TenantID: trackertest.TenantGlobex, Permissions: sessions.AllPermissions},
		readerToken: {Subject: "u-grace", TenantID: trackertest.TenantAcme, Permissions: sessions.NewPermissions(sessions.PermissionIssuesRead)},
	}
}

type testServer struct {
	handler *StreamingHTTPHandler
	store   *memorystore.Store
}

func newTestServer(t *testing.T, authn auth.Authenticator, opts ...Option) *testServer {
	t.Helper()
	store := memorystore.New()
	t.Cleanup(func() { _ = store.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng := engine.NewEngine(store, trackertest.Seeded(), engine.WithLogger(log))
	opts = append([]Option{WithLogger(log)}, opts...)
	h, err := New("/mcp", store, eng, authn, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &testServer{handler: h, store: store}
}

type post struct {
	token     string
	sessionID string
	ctype     string
	body      string
}

func (s *testServer) do(t *testing.T, method string, p post) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, "/mcp", strings.NewReader(p.body))
	if p.ctype == "" {
		p.ctype = "application/json"
	}
	req.Header.Set("Content-Type", p.ctype)
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}
	if p.sessionID != "" {
		req.Header.Set(mcpSessionIDHeader, p.sessionID)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

const initializeBody = `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","capabilities":{},"clientInfo":{"name":"http-test","version":"0"}}}`

func (s *testServer) initialize(t *testing.T, token string) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, post{token: token, body: initializeBody})
	if rec.Code != http.StatusOK {
		t.Fatalf("initialize status = %d body=%s", rec.Code, rec.Body.String())
	}
	id := rec.Header().Get(mcpSessionIDHeader)
	if id == "" {
		t.Fatalf("initialize did not return %s", mcpSessionIDHeader)
	}
	return id
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) *jsonrpc.Response {
	t.Helper()
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("content-type = %q", ct)
	}
	var resp jsonrpc.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rec.Body.String())
	}
	return &resp
}

func TestNew_RequiresCollaborators(t *testing.T) {
	store := memorystore.New()
	defer store.Close()
	eng := engine.NewEngine(store, trackertest.Seeded())

	if _, err := New("/mcp", nil, eng, testAuthenticator()); err == nil {
		t.Fatalf("expected error without store")
	}
	if _, err := New("/mcp", store, nil, testAuthenticator()); err == nil {
		t.Fatalf("expected error without engine")
	}
	if _, err := New("/mcp", store, eng, nil); err == nil {
		t.Fatalf("expected error without authenticator")
	}
	if _, err := New("ftp://example.com/mcp", store, eng, testAuthenticator()); err == nil {
		t.Fatalf("expected error for non-http scheme")
	}
}

func TestInitialize_CreatesSession(t *testing.T) {
	s := newTestServer(t, testAuthenticator())

	rec := s.do(t, http.MethodPost, post{token: adaToken, body: initializeBody})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get(mcpProtocolVersionHeader); got != mcp.ProtocolVersion {
		t.Fatalf("protocol version header = %q", got)
	}
	resp := decodeResponse(t, rec)
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}

	sess, err := s.store.GetSession(context.Background(), rec.Header().Get(mcpSessionIDHeader))
	if err != nil {
		t.Fatalf("session not stored: %v", err)
	}
	if sess.TenantID != trackertest.TenantAcme || sess.UserID != "u-ada" {
		t.Fatalf("session = %+v", sess)
	}
	if sess.ClientName != "http-test" {
		t.Fatalf("client name = %q, want value from clientInfo", sess.ClientName)
	}
	if !sess.Can(sessions.PermissionIssuesWrite) {
		t.Fatalf("session permissions = %v", sess.Permissions)
	}
}

func TestInitialize_RequiredWithoutSession(t *testing.T) {
	s := newTestServer(t, testAuthenticator())

	rec := s.do(t, http.MethodPost, post{token: adaToken, body: `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if s.store.Len() != 0 {
		t.Fatalf("no session should have been created")
	}
}

func TestInitialize_InvalidParamsLeavesNoSession(t *testing.T) {
	s := newTestServer(t, testAuthenticator())

	rec := s.do(t, http.MethodPost, post{token: adaToken, body: `{"jsonrpc":"2.0","id":1,"method":"initialize","params":[1,2]}`})
	resp := decodeResponse(t, rec)
	if resp.Error == nil || resp.Error.Code != jsonrpc.ErrorCodeInvalidParams {
		t.Fatalf("expected -32602, got %+v", resp)
	}
	if rec.Header().Get(mcpSessionIDHeader) != "" {
		t.Fatalf("failed initialize must not return a session id")
	}
	if s.store.Len() != 0 {
		t.Fatalf("failed initialize must not leave a session behind")
	}
}

func TestPost_Dispatches(t *testing.T) {
	s := newTestServer(t, testAuthenticator())
	sessID := s.initialize(t, adaToken)

	rec := s.do(t, http.MethodPost, post{token: adaToken, sessionID: sessID, body: `{"jsonrpc":"2.0","id":"r-1","method":"resources/read","params":{"uri":"issue://ORD-123"}}`})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	if resp.ID.String() != "r-1" {
		t.Fatalf("id = %q", resp.ID.String())
	}
	var res mcp.ReadResourceResult
	if err := json.Unmarshal(resp.Result, &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(res.Contents) != 1 || !strings.Contains(res.Contents[0].Text, "ORD-123") {
		t.Fatalf("contents = %+v", res.Contents)
	}
}

func TestPost_SessionPermissionsFromGrant(t *testing.T) {
	s := newTestServer(t, testAuthenticator())
	sessID := s.initialize(t, readerToken)

	rec := s.do(t, http.MethodPost, post{token: readerToken, sessionID: sessID, body: `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"add_comment","arguments":{"issueKey":"ORD-123","body":"hi"}}}`})
	resp := decodeResponse(t, rec)
	if resp.Error == nil || resp.Error.Code != jsonrpc.ErrorCodeServerError || !strings.Contains(resp.Error.Message, "comments:write") {
		t.Fatalf("expected permission error, got %+v", resp)
	}
}

func TestPost_NotificationsAndResponsesAccepted(t *testing.T) {
	s := newTestServer(t, testAuthenticator())
	sessID := s.initialize(t, adaToken)

	for name, body := range map[string]string{
		"notification": `{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		"response":     `{"jsonrpc":"2.0","id":9,"result":{}}`,
	} {
		t.Run(name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, post{token: adaToken, sessionID: sessID, body: body})
			if rec.Code != http.StatusAccepted {
				t.Fatalf("status = %d, want 202", rec.Code)
			}
			if rec.Body.Len() != 0 {
				t.Fatalf("expected empty body, got %q", rec.Body.String())
			}
		})
	}
}

func TestPost_MalformedMessages(t *testing.T) {
	s := newTestServer(t, testAuthenticator())
	sessID := s.initialize(t, adaToken)

	tests := []struct {
		name string
		body string
		code jsonrpc.ErrorCode
		id   string
	}{
		{name: "parse error", body: `{"jsonrpc":"2.0",`, code: jsonrpc.ErrorCodeParseError},
		{name: "wrong version", body: `{"jsonrpc":"1.0","id":3,"method":"tools/list"}`, code: jsonrpc.ErrorCodeInvalidRequest, id: "3"},
		{name: "no method or result", body: `{"jsonrpc":"2.0","id":4}`, code: jsonrpc.ErrorCodeInvalidRequest, id: "4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, post{token: adaToken, sessionID: sessID, body: tt.body})
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			resp := decodeResponse(t, rec)
			if resp.Error == nil || resp.Error.Code != tt.code {
				t.Fatalf("expected %d, got %+v", tt.code, resp)
			}
			if resp.ID.String() != tt.id {
				t.Fatalf("id = %q, want %q", resp.ID.String(), tt.id)
			}
		})
	}

	t.Run("parse error has null id", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, post{token: adaToken, sessionID: sessID, body: `not json`})
		if !bytes.Contains(rec.Body.Bytes(), []byte(`"id":null`)) {
			t.Fatalf("expected null id, got %s", rec.Body.String())
		}
	})
}

func TestPost_BatchRejected(t *testing.T) {
	s := newTestServer(t, testAuthenticator())
	sessID := s.initialize(t, adaToken)

	rec := s.do(t, http.MethodPost, post{token: adaToken, sessionID: sessID, body: ` [{"jsonrpc":"2.0","id":1,"method":"tools/list"}]`})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestPost_ContentType(t *testing.T) {
	s := newTestServer(t, testAuthenticator())

	for _, ct := range []string{"text/plain", "application/x-www-form-urlencoded", "garbage/"} {
		t.Run(ct, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, post{token: adaToken, ctype: ct, body: initializeBody})
			if rec.Code != http.StatusUnsupportedMediaType {
				t.Fatalf("status = %d, want 415", rec.Code)
			}
		})
	}

	rec := s.do(t, http.MethodPost, post{token: adaToken, ctype: "application/json; charset=utf-8", body: initializeBody})
	if rec.Code != http.StatusOK {
		t.Fatalf("charset parameter should be accepted, status = %d", rec.Code)
	}
}

func TestPost_BodyLimit(t *testing.T) {
	s := newTestServer(t, testAuthenticator(), WithMaxBodyBytes(64))

	rec := s.do(t, http.MethodPost, post{token: adaToken, body: initializeBody})
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
}

func TestAuthentication(t *testing.T) {
	s := newTestServer(t, testAuthenticator())

	t.Run("missing token", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, post{body: initializeBody})
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d", rec.Code)
		}
		if got := rec.Header().Get(wwwAuthenticateHeader); got != `Bearer realm="mcp"` {
			t.Fatalf("challenge = %q", got)
		}
	})

	t.Run("invalid token", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, post{token: "nope", body: initializeBody})
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d", rec.Code)
		}
		if got := rec.Header().Get(wwwAuthenticateHeader); !strings.Contains(got, `error="invalid_token"`) {
			t.Fatalf("challenge = %q", got)
		}
	})

	t.Run("authenticator failure", func(t *testing.T) {
		s := newTestServer(t, failingAuth{})
		rec := s.do(t, http.MethodPost, post{token: "x", body: initializeBody})
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d", rec.Code)
		}
	})
}

type failingAuth struct{}

func (failingAuth) CheckAuthentication(context.Context, string) (*auth.Grant, error) {
	return nil, errors.New("issuer unreachable")
}

func TestSessionOwnership(t *testing.T) {
	s := newTestServer(t, testAuthenticator())
	sessID := s.initialize(t, adaToken)
	body := `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`

	for _, tok := range []string{graceToken, globexToken} {
		t.Run(tok, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, post{token: tok, sessionID: sessID, body: body})
			if rec.Code != http.StatusNotFound {
				t.Fatalf("status = %d, want 404", rec.Code)
			}
			rec = s.do(t, http.MethodDelete, post{token: tok, sessionID: sessID})
			if rec.Code != http.StatusNotFound {
				t.Fatalf("delete status = %d, want 404", rec.Code)
			}
		})
	}

	rec := s.do(t, http.MethodPost, post{token: adaToken, sessionID: "no-such-session", body: body})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown session status = %d, want 404", rec.Code)
	}
}

func TestDelete(t *testing.T) {
	s := newTestServer(t, testAuthenticator())
	sessID := s.initialize(t, adaToken)

	if rec := s.do(t, http.MethodDelete, post{token: adaToken}); rec.Code != http.StatusBadRequest {
		t.Fatalf("delete without session id status = %d", rec.Code)
	}
	if rec := s.do(t, http.MethodDelete, post{token: adaToken, sessionID: sessID}); rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	if _, err := s.store.GetSession(context.Background(), sessID); !errors.Is(err, sessions.ErrSessionNotFound) {
		t.Fatalf("session still present: %v", err)
	}
	rec := s.do(t, http.MethodPost, post{token: adaToken, sessionID: sessID, body: `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("post after delete status = %d, want 404", rec.Code)
	}
}

func TestGet_NotAllowed(t *testing.T) {
	s := newTestServer(t, testAuthenticator())

	rec := s.do(t, http.MethodGet, post{token: adaToken})
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
	if allow := rec.Header().Get("Allow"); !strings.Contains(allow, "POST") {
		t.Fatalf("Allow = %q", allow)
	}
}
