package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/ggoodman/mcp-tracker-go/tracker"
	_ "modernc.org/sqlite"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Store implements tracker.Store on SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source used for write timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New opens (creating if needed) the SQLite database at path and ensures
// the schema exists. Parent directories are created as needed.
func New(path string, opts ...Option) (*Store, error) {
	s := &Store{
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(slog.String("component", "tracker.sqlite"))

	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "busy_timeout(5000)")
	if path != MemoryPath {
		q.Add("_pragma", "journal_mode(WAL)")
	}
	db, err := sql.Open("sqlite", path+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if path == MemoryPath {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}
	s.db = db

	if err := s.createSchema(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	s.logger.Info("store.sqlite.open", slog.String("path", path))
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS tenants (
			id   TEXT PRIMARY KEY,
			name TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS users (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			email      TEXT NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS memberships (
			tenant_id TEXT NOT NULL REFERENCES tenants(id),
			user_id   TEXT NOT NULL REFERENCES users(id),
			role      TEXT NOT NULL,
			PRIMARY KEY (tenant_id, user_id),
			CHECK (role IN ('owner', 'admin', 'member', 'viewer'))
		);

		CREATE TABLE IF NOT EXISTS projects (
			id          TEXT PRIMARY KEY,
			tenant_id   TEXT NOT NULL REFERENCES tenants(id),
			key         TEXT NOT NULL,
			name        TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			lead_id     TEXT REFERENCES users(id),
			created_at  TEXT NOT NULL,
			UNIQUE (tenant_id, key)
		);

		CREATE TABLE IF NOT EXISTS boards (
			id         TEXT PRIMARY KEY,
			project_id TEXT NOT NULL REFERENCES projects(id),
			name       TEXT NOT NULL,
			kind       TEXT NOT NULL,
			CHECK (kind IN ('scrum', 'kanban'))
		);

		CREATE TABLE IF NOT EXISTS sprints (
			id         TEXT PRIMARY KEY,
			project_id TEXT NOT NULL REFERENCES projects(id),
			name       TEXT NOT NULL,
			goal       TEXT NOT NULL DEFAULT '',
			state      TEXT NOT NULL,
			starts_at  TEXT,
			ends_at    TEXT,
			CHECK (state IN ('planned', 'active', 'closed'))
		);

		CREATE TABLE IF NOT EXISTS issues (
			id          TEXT PRIMARY KEY,
			tenant_id   TEXT NOT NULL REFERENCES tenants(id),
			project_id  TEXT NOT NULL REFERENCES projects(id),
			sprint_id   TEXT REFERENCES sprints(id),
			key         TEXT NOT NULL,
			title       TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			type        TEXT NOT NULL,
			status      TEXT NOT NULL,
			priority    TEXT NOT NULL,
			assignee_id TEXT REFERENCES users(id),
			reporter_id TEXT REFERENCES users(id),
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL,
			UNIQUE (tenant_id, key),
			CHECK (status IN ('todo', 'in_progress', 'in_review', 'done'))
		);

		CREATE INDEX IF NOT EXISTS idx_issues_project ON issues(project_id);
		CREATE INDEX IF NOT EXISTS idx_issues_sprint ON issues(sprint_id);
		CREATE INDEX IF NOT EXISTS idx_issues_assignee ON issues(tenant_id, assignee_id);

		CREATE TABLE IF NOT EXISTS comments (
			id         TEXT PRIMARY KEY,
			issue_id   TEXT NOT NULL REFERENCES issues(id),
			author_id  TEXT REFERENCES users(id),
			body       TEXT NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_comments_issue_created ON comments(issue_id, created_at);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// timeLayout is fixed width so stored timestamps sort correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return tracker.ErrNotFound
	}
	return err
}

var _ tracker.Store = (*Store)(nil)
