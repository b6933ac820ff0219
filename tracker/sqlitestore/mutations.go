package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ggoodman/mcp-tracker-go/tracker"
	"github.com/google/uuid"
)

// maxCommentLength bounds comment bodies in characters.
const maxCommentLength = 10000

// AddComment appends a comment to the issue identified by c.IssueKey. The
// author must hold a writable membership in the tenant.
func (s *Store) AddComment(ctx context.Context, tenantID string, c tracker.NewComment) (*tracker.Comment, error) {
	body := strings.TrimSpace(c.Body)
	if body == "" {
		return nil, tracker.Invalid("body", "comment body must not be empty")
	}
	if n := len([]rune(body)); n > maxCommentLength {
		return nil, tracker.Invalid("body", "comment body is %d characters; the limit is %d", n, maxCommentLength)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var issueID string
	err = tx.QueryRowContext(ctx, `SELECT id FROM issues WHERE tenant_id = ? AND key = ?`, tenantID, c.IssueKey).Scan(&issueID)
	if err != nil {
		return nil, notFound(err)
	}

	author, err := s.writableMember(ctx, tx, tenantID, c.AuthorID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	comment := &tracker.Comment{
		ID:        uuid.NewString(),
		IssueID:   issueID,
		Author:    author,
		Body:      body,
		CreatedAt: now,
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO comments (id, issue_id, author_id, body, created_at) VALUES (?, ?, ?, ?, ?)`,
		comment.ID, issueID, author.ID, body, formatTime(now)); err != nil {
		return nil, fmt.Errorf("inserting comment: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE issues SET updated_at = ? WHERE id = ?`, formatTime(now), issueID); err != nil {
		return nil, fmt.Errorf("updating issue: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing comment: %w", err)
	}

	s.logger.DebugContext(ctx, "store.sqlite.comment_added",
		slog.String("tenant_id", tenantID),
		slog.String("issue_key", c.IssueKey),
		slog.String("comment_id", comment.ID))
	return comment, nil
}

// TransitionIssue moves an issue to status. Transitioning to the current
// status is a validation error.
func (s *Store) TransitionIssue(ctx context.Context, tenantID, key string, status tracker.Status, actorID string) (*tracker.Issue, error) {
	if !status.Valid() {
		return nil, tracker.Invalid("status", "unknown status %q", status)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var (
		issueID string
		current tracker.Status
	)
	err = tx.QueryRowContext(ctx, `SELECT id, status FROM issues WHERE tenant_id = ? AND key = ?`, tenantID, key).
		Scan(&issueID, &current)
	if err != nil {
		return nil, notFound(err)
	}

	if _, err := s.writableMember(ctx, tx, tenantID, actorID); err != nil {
		return nil, err
	}

	if current == status {
		return nil, tracker.Invalid("status", "issue %s is already %s", key, status)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE issues SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), formatTime(s.now()), issueID); err != nil {
		return nil, fmt.Errorf("updating issue status: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transition: %w", err)
	}

	s.logger.DebugContext(ctx, "store.sqlite.issue_transitioned",
		slog.String("tenant_id", tenantID),
		slog.String("issue_key", key),
		slog.String("from", string(current)),
		slog.String("to", string(status)))
	return s.Issue(ctx, tenantID, key)
}

// writableMember resolves the actor and verifies they may write within the
// tenant.
func (s *Store) writableMember(ctx context.Context, tx *sql.Tx, tenantID, userID string) (*tracker.UserSummary, error) {
	if userID == "" {
		return nil, tracker.ErrPermissionDenied
	}
	var (
		u    tracker.UserSummary
		role tracker.Role
	)
	err := tx.QueryRowContext(ctx, `
		SELECT u.id, u.name, m.role
		FROM memberships m
		JOIN users u ON u.id = m.user_id
		WHERE m.tenant_id = ? AND m.user_id = ?`, tenantID, userID).Scan(&u.ID, &u.Name, &role)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, tracker.ErrPermissionDenied
	}
	if err != nil {
		return nil, fmt.Errorf("loading membership: %w", err)
	}
	if role == tracker.RoleViewer {
		return nil, tracker.ErrPermissionDenied
	}
	return &u, nil
}
