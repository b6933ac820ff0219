package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ggoodman/mcp-tracker-go/sessions"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Transport != TransportStdio || cfg.Sessions.Backend != BackendMemory || cfg.Sessions.TTL != time.Hour {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
server:
  transport: http
  addr: "127.0.0.1:9000"
log:
  level: debug
  format: text
sessions:
  backend: redis
  ttl: 30m
  strict_touch: true
redis:
  addr: "redis:6379"
database:
  path: /tmp/tracker.db
  seed_file: seed.yaml
auth:
  secret: s3cret
  audience: mcp-tracker
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Transport != TransportHTTP || cfg.Server.Addr != "127.0.0.1:9000" {
		t.Fatalf("server = %+v", cfg.Server)
	}
	if cfg.Server.PublicPath != "/mcp" {
		t.Fatalf("unset fields should keep defaults, public_path = %q", cfg.Server.PublicPath)
	}
	if cfg.Sessions.TTL != 30*time.Minute || !cfg.Sessions.StrictTouch {
		t.Fatalf("sessions = %+v", cfg.Sessions)
	}
	if cfg.Database.SeedFile != "seed.yaml" || cfg.Auth.Secret != "s3cret" {
		t.Fatalf("database/auth = %+v %+v", cfg.Database, cfg.Auth)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
server:
  transport: http
log:
  level: debug
`)
	t.Setenv("TRACKER_LOG_LEVEL", "warn")
	t.Setenv("TRACKER_SESSIONS_TTL", "5m")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Log.Level != "warn" {
		t.Fatalf("log level = %q, want env value", cfg.Log.Level)
	}
	if cfg.Sessions.TTL != 5*time.Minute {
		t.Fatalf("ttl = %v", cfg.Sessions.TTL)
	}
	if cfg.Server.Transport != TransportHTTP {
		t.Fatalf("file value lost: %q", cfg.Server.Transport)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
	if _, err := Load(writeConfig(t, "server:\n  transprt: http\n")); err == nil {
		t.Fatalf("expected error for unknown field")
	}
	if _, err := Load(writeConfig(t, "")); err != nil {
		t.Fatalf("empty file should load: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "stdio ok", mutate: func(c *Config) { c.Stdio.TenantID = "org-acme" }},
		{name: "stdio without tenant", mutate: func(c *Config) {}, want: "stdio.tenant_id"},
		{name: "unknown transport", mutate: func(c *Config) { c.Server.Transport = "carrier-pigeon" }, want: "unknown transport"},
		{name: "http without secret", mutate: func(c *Config) { c.Server.Transport = TransportHTTP }, want: "auth.secret"},
		{name: "http bad path", mutate: func(c *Config) {
			c.Server.Transport = TransportHTTP
			c.Auth.Secret = "x"
			c.Server.PublicPath = "mcp"
		}, want: "public_path"},
		{name: "unknown backend", mutate: func(c *Config) {
			c.Stdio.TenantID = "org-acme"
			c.Sessions.Backend = "etcd"
		}, want: "unknown session backend"},
		{name: "bad level", mutate: func(c *Config) {
			c.Stdio.TenantID = "org-acme"
			c.Log.Level = "loud"
		}, want: "unknown log level"},
		{name: "bad format", mutate: func(c *Config) {
			c.Stdio.TenantID = "org-acme"
			c.Log.Format = "xml"
		}, want: "unknown log format"},
		{name: "no database", mutate: func(c *Config) {
			c.Stdio.TenantID = "org-acme"
			c.Database.Path = ""
		}, want: "database.path"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.want == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{"debug": slog.LevelDebug, "INFO": slog.LevelInfo, "warn": slog.LevelWarn, "error": slog.LevelError} {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Fatalf("ParseLevel(%q) = %v, %v", in, got, err)
		}
	}
}

func TestStdioGrants(t *testing.T) {
	if got := (StdioConfig{}).Grants(); len(got) != len(sessions.AllPermissions) {
		t.Fatalf("empty permissions should grant all, got %v", got)
	}
	got := StdioConfig{Permissions: "issues:read, users:read"}.Grants()
	if !got.Has(sessions.PermissionIssuesRead) || !got.Has(sessions.PermissionUsersRead) || got.Has(sessions.PermissionIssuesWrite) {
		t.Fatalf("grants = %v", got)
	}
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, "log:\n  level: info\n")
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	t.Setenv("TRACKER_STDIO_TENANT", "org-acme")

	got := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(c *Config, err error) {
			if err != nil {
				return
			}
			select {
			case got <- c:
			default:
			}
		})
	}()

	// Give the watcher a moment to register before writing.
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case c := <-got:
			if c.Log.Level == "debug" {
				cancel()
				if err := <-done; err != nil {
					t.Fatalf("Watch: %v", err)
				}
				return
			}
		case <-tick.C:
			if err := os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o644); err != nil {
				t.Fatalf("rewrite: %v", err)
			}
		case <-deadline:
			t.Fatalf("no reload observed")
		}
	}
}
