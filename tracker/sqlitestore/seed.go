package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/ggoodman/mcp-tracker-go/tracker"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Seed is a fixture document used to populate a database for demos and
// tests. Its YAML form mirrors the struct tags.
type Seed struct {
	Users   []SeedUser   `yaml:"users"`
	Tenants []SeedTenant `yaml:"tenants"`
}

type SeedUser struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
}

type SeedTenant struct {
	ID       string           `yaml:"id"`
	Name     string           `yaml:"name"`
	Members  []SeedMembership `yaml:"members"`
	Projects []SeedProject    `yaml:"projects"`
}

type SeedMembership struct {
	User string       `yaml:"user"`
	Role tracker.Role `yaml:"role"`
}

type SeedProject struct {
	ID          string       `yaml:"id"`
	Key         string       `yaml:"key"`
	Name        string       `yaml:"name"`
	Description string       `yaml:"description"`
	Lead        string       `yaml:"lead"`
	Boards      []SeedBoard  `yaml:"boards"`
	Sprints     []SeedSprint `yaml:"sprints"`
	Issues      []SeedIssue  `yaml:"issues"`
}

type SeedBoard struct {
	ID   string            `yaml:"id"`
	Name string            `yaml:"name"`
	Kind tracker.BoardKind `yaml:"kind"`
}

type SeedSprint struct {
	ID       string              `yaml:"id"`
	Name     string              `yaml:"name"`
	Goal     string              `yaml:"goal"`
	State    tracker.SprintState `yaml:"state"`
	StartsAt *time.Time          `yaml:"startsAt"`
	EndsAt   *time.Time          `yaml:"endsAt"`
}

type SeedIssue struct {
	ID          string            `yaml:"id"`
	Key         string            `yaml:"key"`
	Title       string            `yaml:"title"`
	Description string            `yaml:"description"`
	Type        tracker.IssueType `yaml:"type"`
	Status      tracker.Status    `yaml:"status"`
	Priority    tracker.Priority  `yaml:"priority"`
	Assignee    string            `yaml:"assignee"`
	Reporter    string            `yaml:"reporter"`
	Sprint      string            `yaml:"sprint"`
	Comments    []SeedComment     `yaml:"comments"`
}

type SeedComment struct {
	Author    string     `yaml:"author"`
	Body      string     `yaml:"body"`
	CreatedAt *time.Time `yaml:"createdAt"`
}

// ParseSeed decodes a YAML seed document. Unknown fields are rejected.
func ParseSeed(r io.Reader) (*Seed, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var seed Seed
	if err := dec.Decode(&seed); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decoding seed: %w", err)
	}
	return &seed, nil
}

// LoadSeedFile parses the YAML seed at path and applies it.
func (s *Store) LoadSeedFile(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening seed file: %w", err)
	}
	defer f.Close()

	seed, err := ParseSeed(f)
	if err != nil {
		return err
	}
	if err := s.ApplySeed(ctx, seed); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "store.sqlite.seeded", slog.String("path", path))
	return nil
}

// ApplySeed inserts every entity in seed inside a single transaction.
// Missing ids are generated; missing enumerations take their defaults.
func (s *Store) ApplySeed(ctx context.Context, seed *Seed) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := s.now().UTC()
	ts := formatTime(now)

	for _, u := range seed.Users {
		if _, err := tx.ExecContext(ctx, `INSERT INTO users (id, name, email, created_at) VALUES (?, ?, ?, ?)`,
			u.ID, u.Name, u.Email, ts); err != nil {
			return fmt.Errorf("inserting user %s: %w", u.ID, err)
		}
	}

	for _, t := range seed.Tenants {
		if _, err := tx.ExecContext(ctx, `INSERT INTO tenants (id, name) VALUES (?, ?)`, t.ID, t.Name); err != nil {
			return fmt.Errorf("inserting tenant %s: %w", t.ID, err)
		}
		for _, m := range t.Members {
			role := m.Role
			if role == "" {
				role = tracker.RoleMember
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO memberships (tenant_id, user_id, role) VALUES (?, ?, ?)`,
				t.ID, m.User, string(role)); err != nil {
				return fmt.Errorf("inserting membership %s/%s: %w", t.ID, m.User, err)
			}
		}
		for _, p := range t.Projects {
			if err := seedProject(ctx, tx, t.ID, p, now); err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

func seedProject(ctx context.Context, tx *sql.Tx, tenantID string, p SeedProject, now time.Time) error {
	ts := formatTime(now)
	projectID := idOrNew(p.ID)
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projects (id, tenant_id, key, name, description, lead_id, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		projectID, tenantID, p.Key, p.Name, p.Description, nullString(p.Lead), ts); err != nil {
		return fmt.Errorf("inserting project %s: %w", p.Key, err)
	}

	for _, b := range p.Boards {
		kind := b.Kind
		if kind == "" {
			kind = tracker.BoardKindScrum
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO boards (id, project_id, name, kind) VALUES (?, ?, ?, ?)`,
			idOrNew(b.ID), projectID, b.Name, string(kind)); err != nil {
			return fmt.Errorf("inserting board %s: %w", b.Name, err)
		}
	}

	for _, sp := range p.Sprints {
		state := sp.State
		if state == "" {
			state = tracker.SprintPlanned
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sprints (id, project_id, name, goal, state, starts_at, ends_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			idOrNew(sp.ID), projectID, sp.Name, sp.Goal, string(state), nullTime(sp.StartsAt), nullTime(sp.EndsAt)); err != nil {
			return fmt.Errorf("inserting sprint %s: %w", sp.Name, err)
		}
	}

	for _, iss := range p.Issues {
		issueID := idOrNew(iss.ID)
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO issues (id, tenant_id, project_id, sprint_id, key, title, description, type, status, priority,
				assignee_id, reporter_id, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			issueID, tenantID, projectID, nullString(iss.Sprint), iss.Key, iss.Title, iss.Description,
			string(orDefault(iss.Type, tracker.IssueTypeTask)),
			string(orDefault(iss.Status, tracker.StatusTodo)),
			string(orDefault(iss.Priority, tracker.PriorityMedium)),
			nullString(iss.Assignee), nullString(iss.Reporter), ts, ts); err != nil {
			return fmt.Errorf("inserting issue %s: %w", iss.Key, err)
		}

		for i, c := range iss.Comments {
			created := now.Add(time.Duration(i) * time.Second)
			if c.CreatedAt != nil {
				created = *c.CreatedAt
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO comments (id, issue_id, author_id, body, created_at) VALUES (?, ?, ?, ?, ?)`,
				uuid.NewString(), issueID, nullString(c.Author), c.Body, formatTime(created)); err != nil {
				return fmt.Errorf("inserting comment on %s: %w", iss.Key, err)
			}
		}
	}
	return nil
}

func idOrNew(id string) string {
	if id == "" {
		return uuid.NewString()
	}
	return id
}

func orDefault[T ~string](v, def T) T {
	if v == "" {
		return def
	}
	return v
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}
