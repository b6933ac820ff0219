package stdio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ggoodman/mcp-tracker-go/internal/engine"
	"github.com/ggoodman/mcp-tracker-go/internal/jsonrpc"
	"github.com/ggoodman/mcp-tracker-go/internal/logctx"
	"github.com/ggoodman/mcp-tracker-go/sessions"
)

// MaxLineBytes bounds a single newline-delimited message.
const MaxLineBytes = 1 << 20

// Identity is the grant a stdio peer runs under. There is no handshake to
// carry credentials, so it comes from configuration.
type Identity struct {
	TenantID    string
	UserID      string
	ClientName  string
	Permissions sessions.Permissions
}

// Handler is a single-connection stdio transport that reads JSON-RPC messages
// from an io.Reader and writes responses to an io.Writer. By default, it uses
// os.Stdin and os.Stdout. When the identity names no user, the peer is
// identified by a UserProvider, which defaults to the current OS user.
type Handler struct {
	eng          *engine.Engine
	store        sessions.Store
	identity     Identity
	r            io.Reader
	w            io.Writer
	l            *slog.Logger
	userProvider UserProvider
	now          func() time.Time

	mu sync.Mutex
}

// NewHandler constructs a stdio Handler with defaults and applies options.
func NewHandler(eng *engine.Engine, store sessions.Store, identity Identity, opts ...Option) *Handler {
	h := &Handler{
		eng:          eng,
		store:        store,
		identity:     identity,
		r:            os.Stdin,
		w:            os.Stdout,
		l:            slog.Default(),
		userProvider: OSUserProvider{},
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	if _, ok := h.l.Handler().(logctx.Handler); !ok {
		h.l = slog.New(logctx.Handler{Handler: h.l.Handler()})
	}
	return h
}

// Serve runs the stdio event loop until EOF on the reader or the context is
// canceled. It creates the peer's session up front and deletes it on exit.
// Requests are handled one at a time in arrival order; notifications and
// client responses are dropped.
func (h *Handler) Serve(ctx context.Context) error {
	sess, err := h.openSession(ctx)
	if err != nil {
		return err
	}
	defer h.closeSession(context.WithoutCancel(ctx), sess)

	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{
		SessionID:  sess.ID,
		TenantID:   sess.TenantID,
		UserID:     sess.UserID,
		ClientName: sess.ClientName,
	})
	h.l.InfoContext(ctx, "stdio.serve.start")

	// Stops the reader when the loop exits early.
	readCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(h.r)
		sc.Buffer(make([]byte, 0, 64*1024), MaxLineBytes)
		for sc.Scan() {
			line := bytes.Clone(sc.Bytes())
			select {
			case lines <- line:
			case <-readCtx.Done():
				return
			}
		}
		readErr <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			h.l.InfoContext(ctx, "stdio.serve.cancel")
			return ctx.Err()
		case err := <-readErr:
			if err != nil {
				h.l.ErrorContext(ctx, "stdio.read.fail", slog.String("err", err.Error()))
				return fmt.Errorf("stdio: read: %w", err)
			}
			h.l.InfoContext(ctx, "stdio.serve.eof")
			return nil
		case line := <-lines:
			if err := h.handleLine(ctx, sess, line); err != nil {
				return err
			}
		}
	}
}

func (h *Handler) handleLine(ctx context.Context, sess *sessions.Session, line []byte) error {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil
	}
	if line[0] == '[' {
		h.l.WarnContext(ctx, "jsonrpc.batch.forbidden")
		return h.write(jsonrpc.NewErrorResponse(nil, jsonrpc.ErrorCodeInvalidRequest, "Invalid Request", "batch arrays are not supported"))
	}
	if !json.Valid(line) {
		h.l.InfoContext(ctx, "jsonrpc.parse.fail")
		return h.write(jsonrpc.NewErrorResponse(nil, jsonrpc.ErrorCodeParseError, "Parse error", nil))
	}

	var msg jsonrpc.AnyMessage
	if err := json.Unmarshal(line, &msg); err != nil {
		h.l.InfoContext(ctx, "jsonrpc.message.invalid", slog.String("err", err.Error()))
		return h.write(jsonrpc.NewErrorResponse(envelopeID(line), jsonrpc.ErrorCodeInvalidRequest, "Invalid Request", err.Error()))
	}

	req := msg.AsRequest()
	if req == nil || req.IsNotification() {
		h.l.DebugContext(ctx, "stdio.message.ignored", slog.String("type", msg.Type()), slog.String("method", msg.Method))
		return nil
	}

	return h.write(h.eng.Handle(ctx, sess, req))
}

func (h *Handler) write(resp *jsonrpc.Response) error {
	b, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("stdio: encode response: %w", err)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, err := h.w.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("stdio: write: %w", err)
	}
	return nil
}

func (h *Handler) openSession(ctx context.Context) (*sessions.Session, error) {
	if h.eng == nil || h.store == nil {
		return nil, errors.New("stdio: engine and session store are required")
	}
	userID := h.identity.UserID
	if userID == "" {
		id, err := h.userProvider.CurrentUserID()
		if err != nil {
			return nil, fmt.Errorf("stdio: resolve user: %w", err)
		}
		userID = id
	}

	now := h.now().UTC()
	sess := &sessions.Session{
		ID:           uuid.NewString(),
		TenantID:     h.identity.TenantID,
		UserID:       userID,
		ClientName:   h.identity.ClientName,
		Permissions:  sessions.NewPermissions(h.identity.Permissions...),
		CreatedAt:    now,
		LastActiveAt: now,
	}
	if err := h.store.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("stdio: create session: %w", err)
	}
	return sess, nil
}

func (h *Handler) closeSession(ctx context.Context, sess *sessions.Session) {
	if err := h.store.DeleteSession(ctx, sess.ID); err != nil {
		h.l.ErrorContext(ctx, "session.delete.fail", slog.String("err", err.Error()))
		return
	}
	h.l.InfoContext(ctx, "stdio.serve.done")
}

// envelopeID recovers the id of a structurally invalid message, or nil.
func envelopeID(line []byte) *jsonrpc.RequestID {
	var probe struct {
		ID *jsonrpc.RequestID `json:"id"`
	}
	if err := json.Unmarshal(line, &probe); err != nil {
		return nil
	}
	return probe.ID
}
