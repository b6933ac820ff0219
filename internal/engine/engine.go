package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/ggoodman/mcp-tracker-go/internal/jsonrpc"
	"github.com/ggoodman/mcp-tracker-go/internal/logctx"
	"github.com/ggoodman/mcp-tracker-go/internal/resources"
	"github.com/ggoodman/mcp-tracker-go/internal/tools"
	"github.com/ggoodman/mcp-tracker-go/mcp"
	"github.com/ggoodman/mcp-tracker-go/sessions"
	"github.com/ggoodman/mcp-tracker-go/tracker"
)

const (
	defaultServerName    = "mcp-tracker"
	defaultServerVersion = "dev"
)

// Engine dispatches JSON-RPC requests issued under an established session
// to the tool registry and resource resolver. It keeps no per-request state
// and is safe for concurrent use; transports own framing and session
// issuance.
type Engine struct {
	store     sessions.Store
	tools     *tools.Registry
	resources *resources.Resolver
	log       *slog.Logger
	info      mcp.ImplementationInfo
	now       func() time.Time

	strictTouch bool
}

func NewEngine(store sessions.Store, tr tracker.Store, opts ...EngineOption) *Engine {
	e := &Engine{
		store:     store,
		tools:     tools.NewRegistry(tr),
		resources: resources.NewResolver(tr),
		log:       slog.Default(),
		info:      mcp.ImplementationInfo{Name: defaultServerName, Version: defaultServerVersion},
		now:       time.Now,
	}

	// Apply options (order matters; later options override earlier ones).
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets a custom logger for the Engine.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithServerInfo sets the name and version reported by initialize.
func WithServerInfo(name, version string) EngineOption {
	return func(e *Engine) {
		if name != "" {
			e.info.Name = name
		}
		if version != "" {
			e.info.Version = version
		}
	}
}

// WithStrictTouch makes a failed session touch fail the request with a
// server error instead of only being logged.
func WithStrictTouch() EngineOption {
	return func(e *Engine) { e.strictTouch = true }
}

// WithClock overrides the time source used for session touches.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// Handle dispatches req under sess and returns its response. It never
// returns nil for a request and never lets a panic escape. Notifications
// are not dispatched; Handle returns nil for them.
func (e *Engine) Handle(ctx context.Context, sess *sessions.Session, req *jsonrpc.Request) (resp *jsonrpc.Response) {
	if req == nil || req.IsNotification() {
		return nil
	}

	start := time.Now()
	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{Method: req.Method, ID: req.ID.String(), Type: "request"})
	if sess != nil {
		ctx = logctx.WithSessionData(ctx, &logctx.SessionData{
			SessionID:  sess.ID,
			TenantID:   sess.TenantID,
			UserID:     sess.UserID,
			ClientName: sess.ClientName,
		})
	}
	log := e.log.With(slog.String("method", req.Method))

	defer func() {
		if r := recover(); r != nil {
			log.ErrorContext(ctx, "engine.handle_request.panic",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
				slog.Int64("dur_ms", time.Since(start).Milliseconds()))
			resp = errorResponse(req.ID, &jsonrpc.Error{Code: jsonrpc.ErrorCodeServerError, Message: internalErrorMessage})
		}
	}()

	if sess == nil {
		log.ErrorContext(ctx, "engine.handle_request.fail", slog.String("err", "no session"))
		return errorResponse(req.ID, &jsonrpc.Error{Code: jsonrpc.ErrorCodeServerError, Message: "Session required"})
	}

	if err := e.store.TouchSession(ctx, sess.ID, e.now()); err != nil {
		log.WarnContext(ctx, "engine.touch.fail", slog.String("err", err.Error()), slog.Bool("strict", e.strictTouch))
		if e.strictTouch {
			return errorResponse(req.ID, errorObject(fmt.Errorf("touch session: %w", err)))
		}
	}

	result, err := e.dispatch(ctx, sess, req)
	if err == nil {
		resp, err = jsonrpc.NewResultResponse(req.ID, result)
	}
	if err != nil {
		rpcErr := errorObject(err)
		level := slog.LevelInfo
		event := "engine.handle_request.invalid"
		if rpcErr.Code == jsonrpc.ErrorCodeServerError {
			level, event = slog.LevelError, "engine.handle_request.fail"
		}
		log.Log(ctx, level, event,
			slog.Int("code", int(rpcErr.Code)),
			slog.String("err", err.Error()),
			slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return errorResponse(req.ID, rpcErr)
	}

	log.InfoContext(ctx, "engine.handle_request.ok", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
	return resp
}

func (e *Engine) dispatch(ctx context.Context, sess *sessions.Session, req *jsonrpc.Request) (any, error) {
	method, ok := mcp.ParseMethod(req.Method)
	if !ok {
		return nil, jsonrpc.NewError(jsonrpc.ErrorCodeMethodNotFound, "Method not found: %s", req.Method)
	}

	switch method {
	case mcp.InitializeMethod:
		return e.handleInitialize(ctx, req)
	case mcp.ToolsListMethod:
		return &mcp.ListToolsResult{Tools: e.tools.List()}, nil
	case mcp.ToolsCallMethod:
		return e.handleToolCall(ctx, sess, req)
	case mcp.ResourcesTemplatesListMethod:
		return &mcp.ListResourceTemplatesResult{ResourceTemplates: resources.Templates()}, nil
	case mcp.ResourcesReadMethod:
		return e.handleResourcesRead(ctx, sess, req)
	}
	return nil, jsonrpc.NewError(jsonrpc.ErrorCodeMethodNotFound, "Method not found: %s", req.Method)
}

func (e *Engine) handleInitialize(ctx context.Context, req *jsonrpc.Request) (*mcp.InitializeResult, error) {
	var params mcp.InitializeRequest
	if err := decodeParams(req.Params, &params); err != nil {
		return nil, err
	}

	e.log.DebugContext(ctx, "engine.initialize",
		slog.String("client_name", params.ClientInfo.Name),
		slog.String("client_version", params.ClientInfo.Version),
		slog.String("client_protocol_version", params.ProtocolVersion))

	return &mcp.InitializeResult{
		ProtocolVersion: mcp.ProtocolVersion,
		ServerInfo:      e.info,
		Capabilities: mcp.ServerCapabilities{
			Tools:     &mcp.ToolsCapability{},
			Resources: &mcp.ResourcesCapability{},
		},
	}, nil
}

func (e *Engine) handleToolCall(ctx context.Context, sess *sessions.Session, req *jsonrpc.Request) (*mcp.CallToolResult, error) {
	var params mcp.CallToolRequestReceived
	if err := decodeParams(req.Params, &params); err != nil {
		return nil, err
	}
	if params.Name == "" {
		return nil, jsonrpc.NewError(jsonrpc.ErrorCodeInvalidParams, "Missing tool name")
	}
	name, ok := tools.Lookup(params.Name)
	if !ok {
		return nil, jsonrpc.NewError(jsonrpc.ErrorCodeInvalidParams, "Unknown tool: %s", params.Name)
	}

	ctx = logctx.WithToolCallData(ctx, &logctx.ToolCallData{ToolName: params.Name})
	res, err := e.tools.Call(ctx, sess, name, params.Arguments)
	if err != nil {
		return nil, err
	}
	if res.IsError {
		e.log.InfoContext(ctx, "engine.tool_call.is_error", slog.String("text", firstText(res)))
	}
	return res, nil
}

func (e *Engine) handleResourcesRead(ctx context.Context, sess *sessions.Session, req *jsonrpc.Request) (*mcp.ReadResourceResult, error) {
	var params mcp.ReadResourceRequest
	if err := decodeParams(req.Params, &params); err != nil {
		return nil, err
	}
	if params.URI == "" {
		return nil, jsonrpc.NewError(jsonrpc.ErrorCodeInvalidParams, "Missing resource URI")
	}

	ctx = logctx.WithResourceData(ctx, &logctx.ResourceData{URI: params.URI})
	return e.resources.Read(ctx, sess, params.URI)
}

// decodeParams unmarshals request params into v. Absent or null params leave
// v at its zero value.
func decodeParams(raw json.RawMessage, v any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &jsonrpc.Error{Code: jsonrpc.ErrorCodeInvalidParams, Message: "Invalid params", Data: err.Error()}
	}
	return nil
}

func firstText(res *mcp.CallToolResult) string {
	if len(res.Content) == 0 {
		return ""
	}
	return res.Content[0].Text
}

func errorResponse(id *jsonrpc.RequestID, rpcErr *jsonrpc.Error) *jsonrpc.Response {
	return jsonrpc.NewErrorResponse(id, rpcErr.Code, rpcErr.Message, rpcErr.Data)
}
