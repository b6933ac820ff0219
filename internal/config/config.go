package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"

	"github.com/ggoodman/mcp-tracker-go/sessions"
)

// Transports and session backends understood by the server.
const (
	TransportHTTP  = "http"
	TransportStdio = "stdio"

	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config is the complete server configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Sessions SessionsConfig `yaml:"sessions"`
	Redis    RedisConfig    `yaml:"redis"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Stdio    StdioConfig    `yaml:"stdio"`
}

// ServerConfig selects and configures the transport.
type ServerConfig struct {
	Transport  string `yaml:"transport" env:"TRACKER_TRANSPORT"`
	Addr       string `yaml:"addr" env:"TRACKER_ADDR"`
	PublicPath string `yaml:"public_path" env:"TRACKER_PUBLIC_PATH"`
	Name       string `yaml:"name" env:"TRACKER_SERVER_NAME"`
	Version    string `yaml:"version" env:"TRACKER_SERVER_VERSION"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level" env:"TRACKER_LOG_LEVEL"`
	Format string `yaml:"format" env:"TRACKER_LOG_FORMAT"`
}

// SessionsConfig selects the session store.
type SessionsConfig struct {
	Backend     string        `yaml:"backend" env:"TRACKER_SESSIONS_BACKEND"`
	TTL         time.Duration `yaml:"ttl" env:"TRACKER_SESSIONS_TTL"`
	StrictTouch bool          `yaml:"strict_touch" env:"TRACKER_SESSIONS_STRICT_TOUCH"`
}

// RedisConfig is used when Sessions.Backend is "redis".
type RedisConfig struct {
	Addr      string `yaml:"addr" env:"TRACKER_REDIS_ADDR"`
	KeyPrefix string `yaml:"key_prefix" env:"TRACKER_REDIS_KEY_PREFIX"`
}

// DatabaseConfig locates the tracker database and its optional seed.
type DatabaseConfig struct {
	Path     string `yaml:"path" env:"TRACKER_DB_PATH"`
	SeedFile string `yaml:"seed_file" env:"TRACKER_DB_SEED"`
}

// AuthConfig configures bearer token verification for the HTTP transport.
type AuthConfig struct {
	Secret   string `yaml:"secret" env:"TRACKER_AUTH_SECRET"`
	Issuer   string `yaml:"issuer" env:"TRACKER_AUTH_ISSUER"`
	Audience string `yaml:"audience" env:"TRACKER_AUTH_AUDIENCE"`
}

// StdioConfig is the identity the stdio peer runs under.
type StdioConfig struct {
	TenantID    string `yaml:"tenant_id" env:"TRACKER_STDIO_TENANT"`
	UserID      string `yaml:"user_id" env:"TRACKER_STDIO_USER"`
	ClientName  string `yaml:"client_name" env:"TRACKER_STDIO_CLIENT"`
	Permissions string `yaml:"permissions" env:"TRACKER_STDIO_PERMISSIONS"`
}

// Grants parses Permissions. An empty value grants every permission.
func (s StdioConfig) Grants() sessions.Permissions {
	if strings.TrimSpace(s.Permissions) == "" {
		return sessions.NewPermissions(sessions.AllPermissions...)
	}
	return sessions.ParsePermissions(s.Permissions)
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Transport:  TransportStdio,
			Addr:       ":8080",
			PublicPath: "/mcp",
			Name:       "mcp-tracker",
			Version:    "dev",
		},
		Log:      LogConfig{Level: "info", Format: "json"},
		Sessions: SessionsConfig{Backend: BackendMemory, TTL: time.Hour},
		Redis:    RedisConfig{Addr: "localhost:6379", KeyPrefix: "mcp:tracker:sessions:"},
		Database: DatabaseConfig{Path: "tracker.db"},
		Stdio:    StdioConfig{ClientName: "stdio"},
	}
}

// Load builds a Config from the defaults, the YAML file at path (skipped
// when path is empty) and TRACKER_* environment variables, in that order.
// The result is not validated; callers apply flag overrides first.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}
	if err := envdecode.Decode(cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decoding environment: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.Server.Transport {
	case TransportHTTP:
		if c.Server.Addr == "" {
			return fmt.Errorf("server.addr is required for the http transport")
		}
		if !strings.HasPrefix(c.Server.PublicPath, "/") {
			return fmt.Errorf("server.public_path must start with '/', got %q", c.Server.PublicPath)
		}
		if c.Auth.Secret == "" {
			return fmt.Errorf("auth.secret is required for the http transport")
		}
	case TransportStdio:
		if c.Stdio.TenantID == "" {
			return fmt.Errorf("stdio.tenant_id is required for the stdio transport")
		}
	default:
		return fmt.Errorf("unknown transport %q", c.Server.Transport)
	}

	switch c.Sessions.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required for the redis session backend")
		}
	default:
		return fmt.Errorf("unknown session backend %q", c.Sessions.Backend)
	}
	if c.Sessions.TTL < 0 {
		return fmt.Errorf("sessions.ttl must not be negative")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}

// ParseLevel maps a level name onto slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("unknown log level %q", s)
	}
	return l, nil
}
