package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when an entity does not exist within the
	// requested tenant. Entities owned by other tenants are indistinguishable
	// from missing ones.
	ErrNotFound = errors.New("not found")
	// ErrPermissionDenied is returned when the actor may not perform a
	// mutation.
	ErrPermissionDenied = errors.New("permission denied")
)

// ValidationError reports a domain rule violation, such as transitioning an
// issue to the status it already has. Its message is safe to show to a
// client.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// Invalid returns a *ValidationError for field.
func Invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Store is the narrow read/write contract the MCP server needs from the
// issue tracker. Every tenant-scoped call takes the tenant id explicitly;
// implementations must apply it inside the lookup itself.
type Store interface {
	Issue(ctx context.Context, tenantID, key string) (*Issue, error)
	// RecentComments returns at most limit comments on the issue, newest
	// first.
	RecentComments(ctx context.Context, tenantID, issueID string, limit int) ([]Comment, error)
	Project(ctx context.Context, tenantID, key string) (*Project, error)
	ProjectCounts(ctx context.Context, tenantID, projectID string) (ProjectCounts, error)
	Board(ctx context.Context, tenantID, id string) (*Board, error)
	Sprint(ctx context.Context, tenantID, id string) (*Sprint, error)
	// SprintIssues returns the sprint's issues ordered by key ascending.
	SprintIssues(ctx context.Context, tenantID, sprintID string) ([]Issue, error)
	// User looks up a profile. Users are global; tenancy is expressed by
	// Membership.
	User(ctx context.Context, id string) (*User, error)
	Membership(ctx context.Context, tenantID, userID string) (*Membership, error)
	SearchIssues(ctx context.Context, tenantID string, filter IssueFilter) ([]Issue, error)
	Projects(ctx context.Context, tenantID string) ([]Project, error)
	Sprints(ctx context.Context, tenantID, projectKey string) ([]Sprint, error)

	AddComment(ctx context.Context, tenantID string, c NewComment) (*Comment, error)
	TransitionIssue(ctx context.Context, tenantID, key string, status Status, actorID string) (*Issue, error)
}

// Status is an issue workflow state.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusInReview   Status = "in_review"
	StatusDone       Status = "done"
)

// Statuses lists the workflow states in board order.
var Statuses = []Status{StatusTodo, StatusInProgress, StatusInReview, StatusDone}

// Valid reports whether s is a known workflow state.
func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusInReview, StatusDone:
		return true
	}
	return false
}

type IssueType string

const (
	IssueTypeBug   IssueType = "bug"
	IssueTypeTask  IssueType = "task"
	IssueTypeStory IssueType = "story"
	IssueTypeEpic  IssueType = "epic"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// UserSummary is the compact form of a user embedded in other entities.
type UserSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ProjectSummary is the compact form of a project embedded in other
// entities.
type ProjectSummary struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Name string `json:"name"`
}

type Issue struct {
	ID          string       `json:"id"`
	Key         string       `json:"key"`
	ProjectID   string       `json:"projectId"`
	SprintID    string       `json:"sprintId,omitempty"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Type        IssueType    `json:"type"`
	Status      Status       `json:"status"`
	Priority    Priority     `json:"priority"`
	Assignee    *UserSummary `json:"assignee"`
	Reporter    *UserSummary `json:"reporter"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

type Comment struct {
	ID        string       `json:"id"`
	IssueID   string       `json:"issueId"`
	Author    *UserSummary `json:"author"`
	Body      string       `json:"body"`
	CreatedAt time.Time    `json:"createdAt"`
}

type Project struct {
	ID          string       `json:"id"`
	Key         string       `json:"key"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Lead        *UserSummary `json:"lead"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// Summary returns the compact form of p.
func (p *Project) Summary() ProjectSummary {
	return ProjectSummary{ID: p.ID, Key: p.Key, Name: p.Name}
}

// ProjectCounts aggregates a project. Members counts the tenant members who
// lead the project or are assigned or reported one of its issues.
type ProjectCounts struct {
	Issues  int `json:"issueCount"`
	Members int `json:"memberCount"`
	Boards  int `json:"boardCount"`
}

type BoardKind string

const (
	BoardKindScrum  BoardKind = "scrum"
	BoardKindKanban BoardKind = "kanban"
)

type Board struct {
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	Kind    BoardKind      `json:"kind"`
	Project ProjectSummary `json:"project"`
}

type SprintState string

const (
	SprintPlanned SprintState = "planned"
	SprintActive  SprintState = "active"
	SprintClosed  SprintState = "closed"
)

type Sprint struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Goal     string         `json:"goal,omitempty"`
	State    SprintState    `json:"state"`
	StartsAt *time.Time     `json:"startsAt"`
	EndsAt   *time.Time     `json:"endsAt"`
	Project  ProjectSummary `json:"project"`
}

type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
	RoleViewer Role = "viewer"
)

// Membership places a user in a tenant with a role.
type Membership struct {
	TenantID string `json:"tenantId"`
	UserID   string `json:"userId"`
	Role     Role   `json:"role"`
}

// IssueFilter narrows SearchIssues. Zero-valued fields do not filter.
type IssueFilter struct {
	ProjectKey string
	Status     Status
	AssigneeID string
	// Query matches issue titles and descriptions, case-insensitively.
	Query string
	Limit int
}

// NewComment is the input to AddComment.
type NewComment struct {
	IssueKey string
	AuthorID string
	Body     string
}
