package logctx

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestHandler_AddsContextGroups(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(Handler{Handler: slog.NewJSONHandler(&buf, nil)}).With(slog.String("component", "test"))

	ctx := WithSessionData(context.Background(), &SessionData{SessionID: "s1", TenantID: "org-1", UserID: "u1", ClientName: "cli"})
	ctx = WithRPCMessage(ctx, &RPCMessage{Method: "tools/call", ID: "7", Type: "request"})
	ctx = WithToolCallData(ctx, &ToolCallData{ToolName: "get_issue"})

	log.InfoContext(ctx, "engine.handle_request.ok")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode log record: %v\n%s", err, buf.String())
	}
	if rec["component"] != "test" {
		t.Fatalf("WithAttrs must keep the decorating handler: %v", rec)
	}
	sess, _ := rec["sess"].(map[string]any)
	if sess["tenant_id"] != "org-1" || sess["id"] != "s1" {
		t.Fatalf("sess group = %v", rec["sess"])
	}
	rpc, _ := rec["rpc"].(map[string]any)
	if rpc["method"] != "tools/call" {
		t.Fatalf("rpc group = %v", rec["rpc"])
	}
	tool, _ := rec["tool"].(map[string]any)
	if tool["name"] != "get_issue" {
		t.Fatalf("tool group = %v", rec["tool"])
	}
	if _, ok := rec["req"]; ok {
		t.Fatalf("req group must be absent without request data")
	}
}
