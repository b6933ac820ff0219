package main

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ggoodman/mcp-tracker-go/internal/config"
)

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "server:\n  transport: stdio\nstdio:\n  tenant_id: org-acme\nlog:\n  level: info\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	f, fs, err := parseFlags([]string{"--config", path, "--db", ":memory:", "--log-level", "debug"}, io.Discard)
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	cfg, err := loadConfig(f, fs)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Database.Path != ":memory:" || cfg.Log.Level != "debug" {
		t.Fatalf("flags not applied: %+v %+v", cfg.Database, cfg.Log)
	}
	if cfg.Server.Transport != config.TransportStdio || cfg.Stdio.TenantID != "org-acme" {
		t.Fatalf("file values lost: %+v %+v", cfg.Server, cfg.Stdio)
	}
}

func TestLoadConfig_UnsetFlagsDoNotOverride(t *testing.T) {
	t.Setenv("TRACKER_STDIO_TENANT", "org-acme")
	t.Setenv("TRACKER_DB_PATH", "/tmp/from-env.db")

	f, fs, err := parseFlags(nil, io.Discard)
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	cfg, err := loadConfig(f, fs)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Database.Path != "/tmp/from-env.db" {
		t.Fatalf("db path = %q, want env value", cfg.Database.Path)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	f, fs, err := parseFlags([]string{"--transport", "http"}, io.Discard)
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if _, err := loadConfig(f, fs); err == nil || !strings.Contains(err.Error(), "auth.secret") {
		t.Fatalf("expected missing secret error, got %v", err)
	}
}

func TestParseFlags_RejectsArgs(t *testing.T) {
	if _, _, err := parseFlags([]string{"extra"}, io.Discard); err == nil {
		t.Fatalf("expected error for positional argument")
	}
	if _, _, err := parseFlags([]string{"--bogus"}, io.Discard); err == nil {
		t.Fatalf("expected error for unknown flag")
	}
}

func TestNewLogger_LevelVar(t *testing.T) {
	var buf bytes.Buffer
	level := new(slog.LevelVar)
	log := newLogger(config.LogConfig{Level: "warn", Format: "text"}, level, &buf)

	log.Info("hidden")
	level.Set(slog.LevelInfo)
	log.Info("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Fatalf("level changes not applied: %q", out)
	}
}
