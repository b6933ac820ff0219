package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ggoodman/mcp-tracker-go/tracker"
)

const issueColumns = `
	i.id, i.key, i.project_id, i.sprint_id, i.title, i.description, i.type, i.status, i.priority,
	i.assignee_id, a.name, i.reporter_id, r.name, i.created_at, i.updated_at`

const issueFrom = `
	FROM issues i
	LEFT JOIN users a ON a.id = i.assignee_id
	LEFT JOIN users r ON r.id = i.reporter_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func userSummary(id, name sql.NullString) *tracker.UserSummary {
	if !id.Valid {
		return nil
	}
	return &tracker.UserSummary{ID: id.String, Name: name.String}
}

func scanIssue(row rowScanner) (*tracker.Issue, error) {
	var (
		iss                                        tracker.Issue
		sprintID, assigneeID, assignee, reporterID sql.NullString
		reporter                                   sql.NullString
		createdAt, updatedAt                       string
	)
	err := row.Scan(
		&iss.ID, &iss.Key, &iss.ProjectID, &sprintID, &iss.Title, &iss.Description, &iss.Type, &iss.Status, &iss.Priority,
		&assigneeID, &assignee, &reporterID, &reporter, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	iss.SprintID = sprintID.String
	iss.Assignee = userSummary(assigneeID, assignee)
	iss.Reporter = userSummary(reporterID, reporter)
	if iss.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if iss.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &iss, nil
}

func scanIssues(rows *sql.Rows) ([]tracker.Issue, error) {
	defer rows.Close()
	issues := []tracker.Issue{}
	for rows.Next() {
		iss, err := scanIssue(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning issue: %w", err)
		}
		issues = append(issues, *iss)
	}
	return issues, rows.Err()
}

func (s *Store) Issue(ctx context.Context, tenantID, key string) (*tracker.Issue, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+issueColumns+issueFrom+`
		WHERE i.tenant_id = ? AND i.key = ?`, tenantID, key)
	iss, err := scanIssue(row)
	if err != nil {
		return nil, notFound(err)
	}
	return iss, nil
}

func (s *Store) RecentComments(ctx context.Context, tenantID, issueID string, limit int) ([]tracker.Comment, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.issue_id, c.author_id, u.name, c.body, c.created_at
		FROM comments c
		JOIN issues i ON i.id = c.issue_id
		LEFT JOIN users u ON u.id = c.author_id
		WHERE i.tenant_id = ? AND c.issue_id = ?
		ORDER BY c.created_at DESC, c.rowid DESC
		LIMIT ?`, tenantID, issueID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying comments: %w", err)
	}
	defer rows.Close()

	comments := []tracker.Comment{}
	for rows.Next() {
		var (
			c                tracker.Comment
			authorID, author sql.NullString
			createdAt        string
		)
		if err := rows.Scan(&c.ID, &c.IssueID, &authorID, &author, &c.Body, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning comment: %w", err)
		}
		c.Author = userSummary(authorID, author)
		if c.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

const projectSelect = `
	SELECT p.id, p.key, p.name, p.description, p.lead_id, u.name, p.created_at
	FROM projects p
	LEFT JOIN users u ON u.id = p.lead_id`

func scanProject(row rowScanner) (*tracker.Project, error) {
	var (
		p            tracker.Project
		leadID, lead sql.NullString
		createdAt    string
	)
	if err := row.Scan(&p.ID, &p.Key, &p.Name, &p.Description, &leadID, &lead, &createdAt); err != nil {
		return nil, err
	}
	p.Lead = userSummary(leadID, lead)
	var err error
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) Project(ctx context.Context, tenantID, key string) (*tracker.Project, error) {
	row := s.db.QueryRowContext(ctx, projectSelect+` WHERE p.tenant_id = ? AND p.key = ?`, tenantID, key)
	p, err := scanProject(row)
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

func (s *Store) Projects(ctx context.Context, tenantID string) ([]tracker.Project, error) {
	rows, err := s.db.QueryContext(ctx, projectSelect+` WHERE p.tenant_id = ? ORDER BY p.key`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("querying projects: %w", err)
	}
	defer rows.Close()

	projects := []tracker.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning project: %w", err)
		}
		projects = append(projects, *p)
	}
	return projects, rows.Err()
}

func (s *Store) ProjectCounts(ctx context.Context, tenantID, projectID string) (tracker.ProjectCounts, error) {
	var c tracker.ProjectCounts
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM issues WHERE project_id = p.id),
			(SELECT COUNT(*) FROM memberships m
				WHERE m.tenant_id = p.tenant_id AND m.user_id IN (
					SELECT p.lead_id
					UNION SELECT assignee_id FROM issues WHERE project_id = p.id
					UNION SELECT reporter_id FROM issues WHERE project_id = p.id)),
			(SELECT COUNT(*) FROM boards WHERE project_id = p.id)
		FROM projects p
		WHERE p.tenant_id = ? AND p.id = ?`, tenantID, projectID).Scan(&c.Issues, &c.Members, &c.Boards)
	if err != nil {
		return tracker.ProjectCounts{}, notFound(err)
	}
	return c, nil
}

func (s *Store) Board(ctx context.Context, tenantID, id string) (*tracker.Board, error) {
	var b tracker.Board
	err := s.db.QueryRowContext(ctx, `
		SELECT b.id, b.name, b.kind, p.id, p.key, p.name
		FROM boards b
		JOIN projects p ON p.id = b.project_id
		WHERE p.tenant_id = ? AND b.id = ?`, tenantID, id).
		Scan(&b.ID, &b.Name, &b.Kind, &b.Project.ID, &b.Project.Key, &b.Project.Name)
	if err != nil {
		return nil, notFound(err)
	}
	return &b, nil
}

const sprintSelect = `
	SELECT s.id, s.name, s.goal, s.state, s.starts_at, s.ends_at, p.id, p.key, p.name
	FROM sprints s
	JOIN projects p ON p.id = s.project_id`

func scanSprint(row rowScanner) (*tracker.Sprint, error) {
	var (
		sp           tracker.Sprint
		starts, ends sql.NullString
	)
	if err := row.Scan(&sp.ID, &sp.Name, &sp.Goal, &sp.State, &starts, &ends, &sp.Project.ID, &sp.Project.Key, &sp.Project.Name); err != nil {
		return nil, err
	}
	var err error
	if sp.StartsAt, err = parseNullTime(starts); err != nil {
		return nil, err
	}
	if sp.EndsAt, err = parseNullTime(ends); err != nil {
		return nil, err
	}
	return &sp, nil
}

func (s *Store) Sprint(ctx context.Context, tenantID, id string) (*tracker.Sprint, error) {
	sp, err := scanSprint(s.db.QueryRowContext(ctx, sprintSelect+` WHERE p.tenant_id = ? AND s.id = ?`, tenantID, id))
	if err != nil {
		return nil, notFound(err)
	}
	return sp, nil
}

func (s *Store) Sprints(ctx context.Context, tenantID, projectKey string) ([]tracker.Sprint, error) {
	rows, err := s.db.QueryContext(ctx, sprintSelect+`
		WHERE p.tenant_id = ? AND p.key = ?
		ORDER BY s.starts_at IS NULL, s.starts_at, s.name`, tenantID, projectKey)
	if err != nil {
		return nil, fmt.Errorf("querying sprints: %w", err)
	}
	defer rows.Close()

	sprints := []tracker.Sprint{}
	for rows.Next() {
		sp, err := scanSprint(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning sprint: %w", err)
		}
		sprints = append(sprints, *sp)
	}
	return sprints, rows.Err()
}

func (s *Store) SprintIssues(ctx context.Context, tenantID, sprintID string) ([]tracker.Issue, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+issueColumns+issueFrom+`
		WHERE i.tenant_id = ? AND i.sprint_id = ?
		ORDER BY i.key ASC`, tenantID, sprintID)
	if err != nil {
		return nil, fmt.Errorf("querying sprint issues: %w", err)
	}
	return scanIssues(rows)
}

func (s *Store) User(ctx context.Context, id string) (*tracker.User, error) {
	var (
		u         tracker.User
		createdAt string
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, name, email, created_at FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Name, &u.Email, &createdAt)
	if err != nil {
		return nil, notFound(err)
	}
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) Membership(ctx context.Context, tenantID, userID string) (*tracker.Membership, error) {
	m := tracker.Membership{TenantID: tenantID, UserID: userID}
	err := s.db.QueryRowContext(ctx, `SELECT role FROM memberships WHERE tenant_id = ? AND user_id = ?`, tenantID, userID).
		Scan(&m.Role)
	if err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

// maxSearchLimit caps SearchIssues when the filter sets no limit.
const maxSearchLimit = 50

func (s *Store) SearchIssues(ctx context.Context, tenantID string, f tracker.IssueFilter) ([]tracker.Issue, error) {
	where := []string{"i.tenant_id = ?"}
	args := []any{tenantID}

	if f.ProjectKey != "" {
		where = append(where, "i.project_id = (SELECT id FROM projects WHERE tenant_id = ? AND key = ?)")
		args = append(args, tenantID, f.ProjectKey)
	}
	if f.Status != "" {
		where = append(where, "i.status = ?")
		args = append(args, string(f.Status))
	}
	if f.AssigneeID != "" {
		where = append(where, "i.assignee_id = ?")
		args = append(args, f.AssigneeID)
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		where = append(where, `(i.title LIKE ? ESCAPE '\' OR i.description LIKE ? ESCAPE '\' OR i.key = ?)`)
		pattern := "%" + escapeLike(q) + "%"
		args = append(args, pattern, pattern, q)
	}

	limit := f.Limit
	if limit <= 0 || limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, `SELECT `+issueColumns+issueFrom+`
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY i.updated_at DESC, i.key ASC
		LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("searching issues: %w", err)
	}
	return scanIssues(rows)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
