package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ggoodman/mcp-tracker-go/mcp"
	"github.com/ggoodman/mcp-tracker-go/sessions"
	"github.com/ggoodman/mcp-tracker-go/tracker"
)

// Name identifies a tool in the closed catalogue.
type Name string

const (
	GetIssue        Name = "get_issue"
	SearchIssues    Name = "search_issues"
	ListProjects    Name = "list_projects"
	ListSprints     Name = "list_sprints"
	AddComment      Name = "add_comment"
	TransitionIssue Name = "transition_issue"
)

// Names lists the catalogue in advertised order.
var Names = []Name{GetIssue, SearchIssues, ListProjects, ListSprints, AddComment, TransitionIssue}

// Lookup resolves a wire name to a catalogue entry.
func Lookup(name string) (Name, bool) {
	switch n := Name(name); n {
	case GetIssue, SearchIssues, ListProjects, ListSprints, AddComment, TransitionIssue:
		return n, true
	}
	return "", false
}

// Permission returns the session permission the tool requires, or "" for a
// name outside the catalogue.
func (n Name) Permission() sessions.Permission {
	switch n {
	case GetIssue, SearchIssues:
		return sessions.PermissionIssuesRead
	case ListProjects, ListSprints:
		return sessions.PermissionProjectsRead
	case AddComment:
		return sessions.PermissionCommentsWrite
	case TransitionIssue:
		return sessions.PermissionIssuesWrite
	}
	return ""
}

// definitions holds the advertised descriptors, built once.
var definitions = []mcp.Tool{
	define[getIssueArgs](GetIssue,
		"Fetch a single issue by key, including its status, priority, assignee, reporter and recent comments."),
	define[searchIssuesArgs](SearchIssues,
		"Search issues in the current organization by project, status, assignee or free text."),
	define[listProjectsArgs](ListProjects,
		"List the projects in the current organization."),
	define[listSprintsArgs](ListSprints,
		"List the sprints of a project."),
	define[addCommentArgs](AddComment,
		"Add a comment to an issue as the session's user."),
	define[transitionIssueArgs](TransitionIssue,
		"Move an issue to another workflow status."),
}

func define[A any](name Name, description string) mcp.Tool {
	return mcp.Tool{
		Name:        string(name),
		Description: description,
		InputSchema: reflectInputSchema[A](),
	}
}

// Registry dispatches tool calls to their handlers. It holds no per-request
// state and is safe for concurrent use.
type Registry struct {
	store tracker.Store
}

func NewRegistry(store tracker.Store) *Registry {
	return &Registry{store: store}
}

// List returns every tool descriptor. The listing does not depend on the
// caller's permissions.
func (r *Registry) List() []mcp.Tool {
	out := make([]mcp.Tool, len(definitions))
	copy(out, definitions)
	return out
}

// Call invokes the named tool.
//
// Argument problems and domain failures (a missing issue, a rejected
// transition) are reported as a result with IsError set. A missing
// permission or a collaborator failure is returned as an error.
func (r *Registry) Call(ctx context.Context, sess *sessions.Session, name Name, arguments json.RawMessage) (*mcp.CallToolResult, error) {
	if _, ok := Lookup(string(name)); !ok {
		return nil, fmt.Errorf("unknown tool %q", string(name))
	}
	if err := sess.Require(name.Permission()); err != nil {
		return nil, err
	}

	switch name {
	case GetIssue:
		return invoke(ctx, sess, arguments, r.getIssue)
	case SearchIssues:
		return invoke(ctx, sess, arguments, r.searchIssues)
	case ListProjects:
		return invoke(ctx, sess, arguments, r.listProjects)
	case ListSprints:
		return invoke(ctx, sess, arguments, r.listSprints)
	case AddComment:
		return invoke(ctx, sess, arguments, r.addComment)
	case TransitionIssue:
		return invoke(ctx, sess, arguments, r.transitionIssue)
	}
	return nil, fmt.Errorf("tool %q has no handler", string(name))
}

// validator is implemented by argument structs with rules beyond the JSON
// shape.
type validator interface {
	validate() error
}

// invoke decodes arguments strictly into A and runs fn. Absent or null
// arguments decode as an empty object.
func invoke[A any](ctx context.Context, sess *sessions.Session, raw json.RawMessage, fn func(context.Context, *sessions.Session, A) (*mcp.CallToolResult, error)) (*mcp.CallToolResult, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		raw = json.RawMessage("{}")
	}

	var a A
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&a); err != nil {
		return mcp.Errorf("Invalid arguments: %v", err), nil
	}
	if v, ok := any(&a).(validator); ok {
		if err := v.validate(); err != nil {
			return mcp.Errorf("Invalid arguments: %v", err), nil
		}
	}
	return fn(ctx, sess, a)
}

// jsonResult renders v as the pretty-printed text of a successful result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding tool result: %w", err)
	}
	return mcp.TextResult(string(b)), nil
}

// domainResult converts a collaborator error into a tool outcome. Not-found
// and validation failures become IsError results; anything else, including
// tracker.ErrPermissionDenied, is returned.
func domainResult(err error, notFound string) (*mcp.CallToolResult, error) {
	var verr *tracker.ValidationError
	switch {
	case errors.Is(err, tracker.ErrNotFound):
		return mcp.Errorf("%s", notFound), nil
	case errors.As(err, &verr):
		return mcp.Errorf("%s", verr.Error()), nil
	}
	return nil, err
}

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s is required", field)
	}
	return nil
}
