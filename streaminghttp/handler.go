package streaminghttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/google/uuid"

	"github.com/ggoodman/mcp-tracker-go/auth"
	"github.com/ggoodman/mcp-tracker-go/internal/engine"
	"github.com/ggoodman/mcp-tracker-go/internal/jsonrpc"
	"github.com/ggoodman/mcp-tracker-go/internal/logctx"
	"github.com/ggoodman/mcp-tracker-go/mcp"
	"github.com/ggoodman/mcp-tracker-go/sessions"
)

var (
	_ http.Handler = (*StreamingHTTPHandler)(nil)
)

var jsonMediaType = contenttype.NewMediaType("application/json")

const (
	mcpSessionIDHeader       = "Mcp-Session-Id"
	mcpProtocolVersionHeader = "Mcp-Protocol-Version"
	wwwAuthenticateHeader    = "WWW-Authenticate"

	// DefaultMaxBodyBytes caps a single POSTed message.
	DefaultMaxBodyBytes int64 = 1 << 20
)

// writeJSONError emits a minimal JSON body for HTTP-layer rejections before a
// JSON-RPC exchange is possible. Shape: {"error":{"code":<httpStatus>,"message":"<reason>"}}
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": status, "message": msg}})
}

// Option configures the StreamingHTTPHandler.
type Option func(*newConfig)

type newConfig struct {
	logger       *slog.Logger
	realm        string
	maxBodyBytes int64
	now          func() time.Time
}

// WithLogger sets the logger used by the handler. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *newConfig) { c.logger = l }
}

// WithRealm sets the realm advertised in WWW-Authenticate challenges.
func WithRealm(realm string) Option {
	return func(c *newConfig) { c.realm = strings.TrimSpace(realm) }
}

// WithMaxBodyBytes overrides DefaultMaxBodyBytes.
func WithMaxBodyBytes(n int64) Option {
	return func(c *newConfig) {
		if n > 0 {
			c.maxBodyBytes = n
		}
	}
}

// WithClock overrides the time source used to stamp new sessions.
func WithClock(now func() time.Time) Option {
	return func(c *newConfig) {
		if now != nil {
			c.now = now
		}
	}
}

// StreamingHTTPHandler implements the streamable HTTP transport of the Model
// Context Protocol in its request/response subset: every POSTed request is
// answered with a single JSON body and no server-initiated stream is offered.
type StreamingHTTPHandler struct {
	mux     *http.ServeMux
	log     *slog.Logger
	auth    auth.Authenticator
	store   sessions.Store
	eng     *engine.Engine
	realm   string
	maxBody int64
	now     func() time.Time
}

// New constructs a StreamingHTTPHandler serving the MCP endpoint at
// publicEndpoint, which may be a full URL or just a path.
//
// Required:
//   - store: where sessions created on initialize are kept
//   - eng: the dispatcher requests are handed to
//   - authenticator: turns bearer tokens into grants
func New(publicEndpoint string, store sessions.Store, eng *engine.Engine, authenticator auth.Authenticator, opts ...Option) (*StreamingHTTPHandler, error) {
	if store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if eng == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if authenticator == nil {
		return nil, fmt.Errorf("authenticator is required")
	}

	mcpURL, err := url.Parse(publicEndpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL %q: %w", publicEndpoint, err)
	}
	if mcpURL.Scheme != "" && mcpURL.Scheme != "https" && mcpURL.Scheme != "http" {
		return nil, fmt.Errorf("server URL must use HTTP or HTTPS scheme, got %q", mcpURL.Scheme)
	}

	cfg := &newConfig{logger: slog.Default(), realm: "mcp", maxBodyBytes: DefaultMaxBodyBytes, now: time.Now}
	for _, opt := range opts {
		opt(cfg)
	}

	log := cfg.logger
	if _, ok := log.Handler().(logctx.Handler); !ok {
		log = slog.New(logctx.Handler{Handler: log.Handler()})
	}

	h := &StreamingHTTPHandler{
		log:     log,
		auth:    authenticator,
		store:   store,
		eng:     eng,
		realm:   cfg.realm,
		maxBody: cfg.maxBodyBytes,
		now:     cfg.now,
	}

	path := pathOnly(mcpURL)
	mux := http.NewServeMux()
	mux.HandleFunc(fmt.Sprintf("POST %s", path), h.handlePostMCP)
	mux.HandleFunc(fmt.Sprintf("GET %s", path), h.handleGetMCP)
	mux.HandleFunc(fmt.Sprintf("DELETE %s", path), h.handleDeleteMCP)
	h.mux = mux
	return h, nil
}

// pathOnly returns just the URL path or "/" if empty.
func pathOnly(u *url.URL) string {
	if u == nil || u.Path == "" {
		return "/"
	}
	return u.Path
}

func (h *StreamingHTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r.WithContext(logctx.WithRequestData(r.Context(), &logctx.RequestData{
		RequestID:  uuid.NewString(),
		Method:     r.Method,
		UserAgent:  r.UserAgent(),
		RemoteAddr: r.RemoteAddr,
		Path:       r.URL.Path,
	})))
}

// handleGetMCP rejects the standalone server-to-client stream. Nothing is
// ever pushed: listChanged and subscribe are advertised as false.
func (h *StreamingHTTPHandler) handleGetMCP(w http.ResponseWriter, r *http.Request) {
	h.log.InfoContext(r.Context(), "http.get.unsupported")
	w.Header().Set("Allow", "POST, DELETE")
	writeJSONError(w, http.StatusMethodNotAllowed, "server does not offer a server-to-client stream")
}

// handleDeleteMCP terminates the session named by the Mcp-Session-Id header.
func (h *StreamingHTTPHandler) handleDeleteMCP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	h.log.InfoContext(ctx, "http.delete.start")

	grant := h.checkAuthentication(r, w)
	if grant == nil {
		return
	}

	sessID := r.Header.Get(mcpSessionIDHeader)
	if sessID == "" {
		h.log.WarnContext(ctx, "delete.missing_session_id")
		writeJSONError(w, http.StatusBadRequest, "missing Mcp-Session-Id header")
		return
	}

	sess, ok := h.loadSession(w, r, sessID, grant)
	if !ok {
		return
	}
	ctx = withSession(ctx, sess)

	if err := h.store.DeleteSession(ctx, sess.ID); err != nil {
		h.log.ErrorContext(ctx, "session.delete.fail", slog.String("err", err.Error()))
		writeJSONError(w, http.StatusInternalServerError, "failed to delete session")
		return
	}

	w.WriteHeader(http.StatusNoContent)
	h.log.InfoContext(ctx, "http.delete.ok", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
}

// handlePostMCP accepts a single JSON-RPC message. Requests are answered
// with a JSON body; notifications and client responses are acknowledged
// with 202. A request without Mcp-Session-Id must be initialize, which
// creates the session.
func (h *StreamingHTTPHandler) handlePostMCP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	h.log.InfoContext(ctx, "http.post.start")

	ctype, err := contenttype.GetMediaType(r)
	if err != nil || !ctype.Matches(jsonMediaType) {
		h.log.WarnContext(ctx, "content_type.unsupported", slog.String("content_type", r.Header.Get("Content-Type")))
		writeJSONError(w, http.StatusUnsupportedMediaType, "content-type must be application/json")
		return
	}

	grant := h.checkAuthentication(r, w)
	if grant == nil {
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.log.WarnContext(ctx, "http.post.too_large", slog.Int64("limit", tooLarge.Limit))
			writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		h.log.WarnContext(ctx, "http.post.read.fail", slog.String("err", err.Error()))
		writeJSONError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '[' {
		h.log.WarnContext(ctx, "jsonrpc.batch.forbidden")
		writeJSONError(w, http.StatusBadRequest, "JSON-RPC batch arrays are not supported")
		return
	}
	if !json.Valid(body) {
		h.log.InfoContext(ctx, "jsonrpc.parse.fail")
		h.writeResponse(w, r, jsonrpc.NewErrorResponse(nil, jsonrpc.ErrorCodeParseError, "Parse error", nil))
		return
	}

	var msg jsonrpc.AnyMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		h.log.InfoContext(ctx, "jsonrpc.message.invalid", slog.String("err", err.Error()))
		h.writeResponse(w, r, jsonrpc.NewErrorResponse(envelopeID(body), jsonrpc.ErrorCodeInvalidRequest, "Invalid Request", err.Error()))
		return
	}

	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{
		Method: msg.Method,
		ID:     msg.ID.String(),
		Type:   msg.Type(),
	})
	r = r.WithContext(ctx)

	sessID := r.Header.Get(mcpSessionIDHeader)
	if sessID == "" {
		h.handleInitialize(w, r, grant, &msg, start)
		return
	}

	sess, ok := h.loadSession(w, r, sessID, grant)
	if !ok {
		return
	}
	ctx = withSession(ctx, sess)

	req := msg.AsRequest()
	if req == nil || req.IsNotification() {
		w.WriteHeader(http.StatusAccepted)
		h.log.InfoContext(ctx, "http.post.accepted", slog.String("type", msg.Type()))
		return
	}

	resp := h.eng.Handle(ctx, sess, req)
	h.writeResponse(w, r.WithContext(ctx), resp)
	h.log.InfoContext(ctx, "http.post.ok", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
}

func (h *StreamingHTTPHandler) handleInitialize(w http.ResponseWriter, r *http.Request, grant *auth.Grant, msg *jsonrpc.AnyMessage, start time.Time) {
	ctx := r.Context()

	req := msg.AsRequest()
	if req == nil || req.IsNotification() || req.Method != string(mcp.InitializeMethod) {
		h.log.InfoContext(ctx, "session.initialize.invalid")
		writeJSONError(w, http.StatusBadRequest, "expected initialize request")
		return
	}

	clientName := grant.ClientName
	var initReq mcp.InitializeRequest
	if len(req.Params) > 0 && json.Unmarshal(req.Params, &initReq) == nil && initReq.ClientInfo.Name != "" {
		clientName = initReq.ClientInfo.Name
	}

	now := h.now().UTC()
	sess := &sessions.Session{
		ID:           uuid.NewString(),
		TenantID:     grant.TenantID,
		UserID:       grant.Subject,
		ClientName:   clientName,
		Permissions:  sessions.NewPermissions(grant.Permissions...),
		CreatedAt:    now,
		LastActiveAt: now,
	}
	if err := h.store.CreateSession(ctx, sess); err != nil {
		h.log.ErrorContext(ctx, "session.create.fail", slog.String("err", err.Error()))
		writeJSONError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	ctx = withSession(ctx, sess)

	resp := h.eng.Handle(ctx, sess, req)
	if resp.Error != nil {
		if err := h.store.DeleteSession(ctx, sess.ID); err != nil {
			h.log.ErrorContext(ctx, "session.delete.fail", slog.String("err", err.Error()))
		}
		h.writeResponse(w, r.WithContext(ctx), resp)
		h.log.InfoContext(ctx, "session.initialize.fail", slog.Int("code", int(resp.Error.Code)))
		return
	}

	w.Header().Set(mcpSessionIDHeader, sess.ID)
	w.Header().Set(mcpProtocolVersionHeader, mcp.ProtocolVersion)
	h.writeResponse(w, r.WithContext(ctx), resp)
	h.log.InfoContext(ctx, "session.initialize.ok", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
}

// loadSession fetches sessID and checks it belongs to the grant's tenant and
// subject. A session owned by someone else is reported as missing.
func (h *StreamingHTTPHandler) loadSession(w http.ResponseWriter, r *http.Request, sessID string, grant *auth.Grant) (*sessions.Session, bool) {
	ctx := r.Context()
	sess, err := h.store.GetSession(ctx, sessID)
	if err != nil {
		if errors.Is(err, sessions.ErrSessionNotFound) {
			h.log.InfoContext(ctx, "session.load.miss", slog.String("session_id", sessID))
			writeJSONError(w, http.StatusNotFound, "session not found")
			return nil, false
		}
		h.log.ErrorContext(ctx, "session.load.fail", slog.String("err", err.Error()))
		writeJSONError(w, http.StatusInternalServerError, "failed to load session")
		return nil, false
	}
	if sess.TenantID != grant.TenantID || sess.UserID != grant.Subject {
		h.log.WarnContext(ctx, "session.load.mismatch", slog.String("session_id", sessID))
		writeJSONError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	return sess, true
}

func (h *StreamingHTTPHandler) writeResponse(w http.ResponseWriter, r *http.Request, resp *jsonrpc.Response) {
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.log.ErrorContext(r.Context(), "http.response.write.fail", slog.String("err", err.Error()))
	}
}

// checkAuthentication verifies the bearer token. On failure the challenge
// has been written and nil is returned.
func (h *StreamingHTTPHandler) checkAuthentication(r *http.Request, w http.ResponseWriter) *auth.Grant {
	ctx := r.Context()

	tok, ok := auth.BearerToken(r)
	if !ok {
		h.log.InfoContext(ctx, "auth.check.missing")
		w.Header().Set(wwwAuthenticateHeader, auth.Challenge(h.realm, auth.ErrMissingToken))
		writeJSONError(w, http.StatusUnauthorized, "bearer token required")
		return nil
	}

	grant, err := h.auth.CheckAuthentication(ctx, tok)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthorized) {
			h.log.InfoContext(ctx, "auth.check.fail", slog.String("err", err.Error()))
			w.Header().Set(wwwAuthenticateHeader, auth.Challenge(h.realm, err))
			writeJSONError(w, http.StatusUnauthorized, "invalid bearer token")
			return nil
		}
		h.log.ErrorContext(ctx, "auth.check.err", slog.String("err", err.Error()))
		writeJSONError(w, http.StatusInternalServerError, "authentication unavailable")
		return nil
	}
	return grant
}

func withSession(ctx context.Context, sess *sessions.Session) context.Context {
	return logctx.WithSessionData(ctx, &logctx.SessionData{
		SessionID:  sess.ID,
		TenantID:   sess.TenantID,
		UserID:     sess.UserID,
		ClientName: sess.ClientName,
	})
}

// envelopeID recovers the id of a structurally invalid message so the error
// can still be correlated. It returns nil when none can be read.
func envelopeID(body []byte) *jsonrpc.RequestID {
	var probe struct {
		ID *jsonrpc.RequestID `json:"id"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil
	}
	return probe.ID
}
