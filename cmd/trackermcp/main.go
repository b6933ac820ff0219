// trackermcp serves the issue tracker to MCP clients over stdio or the
// streamable HTTP transport.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/ggoodman/mcp-tracker-go/auth"
	"github.com/ggoodman/mcp-tracker-go/internal/config"
	"github.com/ggoodman/mcp-tracker-go/internal/engine"
	"github.com/ggoodman/mcp-tracker-go/internal/logctx"
	"github.com/ggoodman/mcp-tracker-go/sessions"
	"github.com/ggoodman/mcp-tracker-go/sessions/memorystore"
	"github.com/ggoodman/mcp-tracker-go/sessions/redisstore"
	"github.com/ggoodman/mcp-tracker-go/stdio"
	"github.com/ggoodman/mcp-tracker-go/streaminghttp"
	"github.com/ggoodman/mcp-tracker-go/tracker/sqlitestore"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type flags struct {
	configPath string
	transport  string
	addr       string
	db         string
	seed       string
	logLevel   string
}

func parseFlags(args []string, stderr io.Writer) (*flags, *pflag.FlagSet, error) {
	var f flags
	fs := pflag.NewFlagSet("trackermcp", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.configPath, "config", "", "path to a YAML config file")
	fs.StringVar(&f.transport, "transport", "", "transport to serve: stdio or http")
	fs.StringVar(&f.addr, "addr", "", "listen address for the http transport")
	fs.StringVar(&f.db, "db", "", "path to the SQLite tracker database (:memory: for a throwaway one)")
	fs.StringVar(&f.seed, "seed", "", "YAML seed file applied to the database on start")
	fs.StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn or error")
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	if fs.NArg() > 0 {
		return nil, nil, fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}
	return &f, fs, nil
}

// loadConfig layers flags that were explicitly set over the file and
// environment configuration.
func loadConfig(f *flags, fs *pflag.FlagSet) (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	if fs.Changed("transport") {
		cfg.Server.Transport = f.transport
	}
	if fs.Changed("addr") {
		cfg.Server.Addr = f.addr
	}
	if fs.Changed("db") {
		cfg.Database.Path = f.db
	}
	if fs.Changed("seed") {
		cfg.Database.SeedFile = f.seed
	}
	if fs.Changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func run(ctx context.Context, args []string, stderr io.Writer) error {
	f, fs, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(f, fs)
	if err != nil {
		return err
	}

	level := new(slog.LevelVar)
	log := newLogger(cfg.Log, level, stderr)

	if f.configPath != "" {
		go watchLogLevel(ctx, f.configPath, fs.Changed("log-level"), level, log)
	}

	store, closeStore, err := openSessionStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	tr, err := sqlitestore.New(cfg.Database.Path, sqlitestore.WithLogger(log))
	if err != nil {
		return err
	}
	defer tr.Close()
	if cfg.Database.SeedFile != "" {
		if err := tr.LoadSeedFile(ctx, cfg.Database.SeedFile); err != nil {
			return err
		}
		log.InfoContext(ctx, "store.seed.ok", slog.String("path", cfg.Database.SeedFile))
	}

	engOpts := []engine.EngineOption{
		engine.WithLogger(log),
		engine.WithServerInfo(cfg.Server.Name, cfg.Server.Version),
	}
	if cfg.Sessions.StrictTouch {
		engOpts = append(engOpts, engine.WithStrictTouch())
	}
	eng := engine.NewEngine(store, tr, engOpts...)

	switch cfg.Server.Transport {
	case config.TransportHTTP:
		return serveHTTP(ctx, cfg, store, eng, log)
	default:
		return serveStdio(ctx, cfg, store, eng, log)
	}
}

func newLogger(cfg config.LogConfig, level *slog.LevelVar, w io.Writer) *slog.Logger {
	l, _ := config.ParseLevel(cfg.Level)
	level.Set(l)
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if cfg.Format == "text" {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(logctx.Handler{Handler: h})
}

// watchLogLevel applies log level changes from the config file. A level
// pinned on the command line is left alone.
func watchLogLevel(ctx context.Context, path string, pinned bool, level *slog.LevelVar, log *slog.Logger) {
	err := config.Watch(ctx, path, func(cfg *config.Config, err error) {
		if err != nil {
			log.WarnContext(ctx, "config.reload.fail", slog.String("err", err.Error()))
			return
		}
		if pinned {
			return
		}
		l, _ := config.ParseLevel(cfg.Log.Level)
		if l != level.Level() {
			level.Set(l)
			log.InfoContext(ctx, "config.reload.log_level", slog.String("level", l.String()))
		}
	})
	if err != nil {
		log.WarnContext(ctx, "config.watch.fail", slog.String("err", err.Error()))
	}
}

func openSessionStore(ctx context.Context, cfg *config.Config) (sessions.Store, func(), error) {
	switch cfg.Sessions.Backend {
	case config.BackendRedis:
		s, err := redisstore.New(ctx, redisstore.Config{
			RedisAddr: cfg.Redis.Addr,
			KeyPrefix: cfg.Redis.KeyPrefix,
			TTL:       cfg.Sessions.TTL,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	default:
		s := memorystore.New(memorystore.WithTTL(cfg.Sessions.TTL))
		return s, func() { _ = s.Close() }, nil
	}
}

func serveHTTP(ctx context.Context, cfg *config.Config, store sessions.Store, eng *engine.Engine, log *slog.Logger) error {
	authn, err := auth.NewHMAC(cfg.Auth.Secret, cfg.Auth.Issuer, cfg.Auth.Audience)
	if err != nil {
		return err
	}
	h, err := streaminghttp.New(cfg.Server.PublicPath, store, eng, authn, streaminghttp.WithLogger(log))
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() {
		log.InfoContext(ctx, "http.listen", slog.String("addr", cfg.Server.Addr), slog.String("path", cfg.Server.PublicPath))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	log.InfoContext(ctx, "http.shutdown")
	return srv.Shutdown(shutdownCtx)
}

func serveStdio(ctx context.Context, cfg *config.Config, store sessions.Store, eng *engine.Engine, log *slog.Logger) error {
	h := stdio.NewHandler(eng, store, stdio.Identity{
		TenantID:    cfg.Stdio.TenantID,
		UserID:      cfg.Stdio.UserID,
		ClientName:  cfg.Stdio.ClientName,
		Permissions: cfg.Stdio.Grants(),
	}, stdio.WithLogger(log))

	err := h.Serve(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
