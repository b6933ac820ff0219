package resources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ggoodman/mcp-tracker-go/mcp"
	"github.com/ggoodman/mcp-tracker-go/sessions"
	"github.com/ggoodman/mcp-tracker-go/tracker"
)

// MimeType is the media type of every resource body.
const MimeType = "application/json"

// recentComments is the number of comments embedded in an issue resource.
const recentComments = 10

// Scheme is a recognized resource URI scheme, including the "://" separator.
type Scheme string

const (
	SchemeIssue   Scheme = "issue://"
	SchemeProject Scheme = "project://"
	SchemeBoard   Scheme = "board://"
	SchemeSprint  Scheme = "sprint://"
	SchemeUser    Scheme = "user://"
)

// schemes is the match order.
var schemes = []Scheme{SchemeIssue, SchemeProject, SchemeBoard, SchemeSprint, SchemeUser}

// ParseURI splits uri into a recognized scheme and its identifier.
func ParseURI(uri string) (Scheme, string, bool) {
	for _, s := range schemes {
		if id, ok := strings.CutPrefix(uri, string(s)); ok {
			return s, id, true
		}
	}
	return "", "", false
}

// permission returns the session permission required to read the scheme.
func (s Scheme) permission() sessions.Permission {
	switch s {
	case SchemeIssue:
		return sessions.PermissionIssuesRead
	case SchemeUser:
		return sessions.PermissionUsersRead
	default:
		return sessions.PermissionProjectsRead
	}
}

var templates = []mcp.ResourceTemplate{
	{
		URITemplate: "board://{id}",
		Name:        "Board",
		Description: "A board and its parent project.",
		MimeType:    MimeType,
	},
	{
		URITemplate: "issue://{key}",
		Name:        "Issue",
		Description: "An issue by key, with its type, status, priority, people and the 10 most recent comments.",
		MimeType:    MimeType,
	},
	{
		URITemplate: "project://{key}",
		Name:        "Project",
		Description: "A project by key, with issue, member and board counts.",
		MimeType:    MimeType,
	},
	{
		URITemplate: "sprint://{id}",
		Name:        "Sprint",
		Description: "A sprint, its parent project, and its issues ordered by key.",
		MimeType:    MimeType,
	},
	{
		URITemplate: "user://{id}",
		Name:        "User",
		Description: "A user profile and their role in the current organization.",
		MimeType:    MimeType,
	},
}

// Templates returns the advertised resource templates. The slice is a copy.
func Templates() []mcp.ResourceTemplate {
	out := make([]mcp.ResourceTemplate, len(templates))
	copy(out, templates)
	return out
}

// Resolver turns resource URIs into tenant-scoped reads against a tracker.
// It holds no per-request state and is safe for concurrent use.
type Resolver struct {
	store tracker.Store
}

func NewResolver(store tracker.Store) *Resolver {
	return &Resolver{store: store}
}

// Read resolves uri within the session's tenant.
//
// An unrecognized scheme or a missing object is reported as *Error. A
// session lacking the scheme's read permission gets a
// *sessions.PermissionError. Other collaborator failures are returned
// wrapped.
func (r *Resolver) Read(ctx context.Context, sess *sessions.Session, uri string) (*mcp.ReadResourceResult, error) {
	scheme, id, ok := ParseURI(uri)
	if !ok {
		return nil, &Error{Kind: KindUnknownScheme, URI: uri}
	}
	if err := sess.Require(scheme.permission()); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, &Error{Kind: KindNotFound, URI: uri}
	}

	var (
		body any
		err  error
	)
	switch scheme {
	case SchemeIssue:
		body, err = r.issue(ctx, sess.TenantID, id)
	case SchemeProject:
		body, err = r.project(ctx, sess.TenantID, id)
	case SchemeBoard:
		body, err = r.store.Board(ctx, sess.TenantID, id)
	case SchemeSprint:
		body, err = r.sprint(ctx, sess.TenantID, id)
	case SchemeUser:
		body, err = r.user(ctx, sess.TenantID, id)
	default:
		return nil, fmt.Errorf("scheme %q has no reader", scheme)
	}
	if err != nil {
		if errors.Is(err, tracker.ErrNotFound) {
			return nil, &Error{Kind: KindNotFound, URI: uri}
		}
		return nil, fmt.Errorf("reading %s: %w", uri, err)
	}

	text, err := json.MarshalIndent(body, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", uri, err)
	}
	return &mcp.ReadResourceResult{
		Contents: []mcp.ResourceContents{{URI: uri, MimeType: MimeType, Text: string(text)}},
	}, nil
}

type issueResource struct {
	tracker.Issue
	Comments []tracker.Comment `json:"comments"`
}

func (r *Resolver) issue(ctx context.Context, tenantID, key string) (*issueResource, error) {
	iss, err := r.store.Issue(ctx, tenantID, key)
	if err != nil {
		return nil, err
	}
	comments, err := r.store.RecentComments(ctx, tenantID, iss.ID, recentComments)
	if err != nil {
		return nil, err
	}
	if comments == nil {
		comments = []tracker.Comment{}
	}
	return &issueResource{Issue: *iss, Comments: comments}, nil
}

type projectResource struct {
	tracker.Project
	tracker.ProjectCounts
}

func (r *Resolver) project(ctx context.Context, tenantID, key string) (*projectResource, error) {
	p, err := r.store.Project(ctx, tenantID, key)
	if err != nil {
		return nil, err
	}
	counts, err := r.store.ProjectCounts(ctx, tenantID, p.ID)
	if err != nil {
		return nil, err
	}
	return &projectResource{Project: *p, ProjectCounts: counts}, nil
}

type sprintResource struct {
	tracker.Sprint
	Issues []tracker.Issue `json:"issues"`
}

func (r *Resolver) sprint(ctx context.Context, tenantID, id string) (*sprintResource, error) {
	sp, err := r.store.Sprint(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	issues, err := r.store.SprintIssues(ctx, tenantID, sp.ID)
	if err != nil {
		return nil, err
	}
	if issues == nil {
		issues = []tracker.Issue{}
	}
	return &sprintResource{Sprint: *sp, Issues: issues}, nil
}

type userResource struct {
	tracker.User
	Role *tracker.Role `json:"role"`
}

// user merges the tenant role into the profile. A user without a membership
// in the tenant is still found; its role is null.
func (r *Resolver) user(ctx context.Context, tenantID, id string) (*userResource, error) {
	u, err := r.store.User(ctx, id)
	if err != nil {
		return nil, err
	}
	res := &userResource{User: *u}
	m, err := r.store.Membership(ctx, tenantID, id)
	switch {
	case errors.Is(err, tracker.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("loading membership: %w", err)
	default:
		res.Role = &m.Role
	}
	return res, nil
}
