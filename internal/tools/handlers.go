package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/ggoodman/mcp-tracker-go/mcp"
	"github.com/ggoodman/mcp-tracker-go/sessions"
	"github.com/ggoodman/mcp-tracker-go/tracker"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 50
	issueComments      = 10
)

type getIssueArgs struct {
	Key string `json:"key" jsonschema:"minLength=1" jsonschema_description:"Issue key, e.g. ORD-123."`
}

func (a *getIssueArgs) validate() error { return required("key", a.Key) }

type issueWithComments struct {
	tracker.Issue
	Comments []tracker.Comment `json:"comments"`
}

func (r *Registry) getIssue(ctx context.Context, sess *sessions.Session, args getIssueArgs) (*mcp.CallToolResult, error) {
	iss, err := r.store.Issue(ctx, sess.TenantID, args.Key)
	if err != nil {
		return domainResult(err, fmt.Sprintf("Issue %s not found", args.Key))
	}
	comments, err := r.store.RecentComments(ctx, sess.TenantID, iss.ID, issueComments)
	if err != nil {
		return nil, err
	}
	if comments == nil {
		comments = []tracker.Comment{}
	}
	return jsonResult(issueWithComments{Issue: *iss, Comments: comments})
}

type searchIssuesArgs struct {
	ProjectKey string `json:"projectKey,omitempty" jsonschema_description:"Only issues in this project."`
	Status     string `json:"status,omitempty" jsonschema:"enum=todo,enum=in_progress,enum=in_review,enum=done" jsonschema_description:"Only issues in this status."`
	AssigneeID string `json:"assigneeId,omitempty" jsonschema_description:"Only issues assigned to this user id."`
	Query      string `json:"query,omitempty" jsonschema_description:"Case-insensitive text matched against titles and descriptions."`
	Limit      *int   `json:"limit,omitempty" jsonschema:"minimum=1,maximum=50,default=20" jsonschema_description:"Maximum number of issues to return."`
}

func (a *searchIssuesArgs) validate() error {
	if a.Status != "" && !tracker.Status(a.Status).Valid() {
		return fmt.Errorf("status must be one of %s", statusList())
	}
	if a.Limit != nil && (*a.Limit < 1 || *a.Limit > maxSearchLimit) {
		return fmt.Errorf("limit must be between 1 and %d", maxSearchLimit)
	}
	return nil
}

type issueList struct {
	Issues []tracker.Issue `json:"issues"`
	Count  int             `json:"count"`
}

func (r *Registry) searchIssues(ctx context.Context, sess *sessions.Session, args searchIssuesArgs) (*mcp.CallToolResult, error) {
	limit := defaultSearchLimit
	if args.Limit != nil {
		limit = *args.Limit
	}
	issues, err := r.store.SearchIssues(ctx, sess.TenantID, tracker.IssueFilter{
		ProjectKey: args.ProjectKey,
		Status:     tracker.Status(args.Status),
		AssigneeID: args.AssigneeID,
		Query:      args.Query,
		Limit:      limit,
	})
	if err != nil {
		return nil, err
	}
	if len(issues) > limit {
		issues = issues[:limit]
	}
	if issues == nil {
		issues = []tracker.Issue{}
	}
	return jsonResult(issueList{Issues: issues, Count: len(issues)})
}

type projectList struct {
	Projects []tracker.Project `json:"projects"`
}

// listProjectsArgs takes no fields. The reflector needs a named type.
type listProjectsArgs struct{}

func (r *Registry) listProjects(ctx context.Context, sess *sessions.Session, _ listProjectsArgs) (*mcp.CallToolResult, error) {
	projects, err := r.store.Projects(ctx, sess.TenantID)
	if err != nil {
		return nil, err
	}
	if projects == nil {
		projects = []tracker.Project{}
	}
	return jsonResult(projectList{Projects: projects})
}

type listSprintsArgs struct {
	ProjectKey string `json:"projectKey" jsonschema:"minLength=1" jsonschema_description:"Key of the project whose sprints to list."`
}

func (a *listSprintsArgs) validate() error { return required("projectKey", a.ProjectKey) }

type sprintList struct {
	Project tracker.ProjectSummary `json:"project"`
	Sprints []tracker.Sprint       `json:"sprints"`
}

func (r *Registry) listSprints(ctx context.Context, sess *sessions.Session, args listSprintsArgs) (*mcp.CallToolResult, error) {
	p, err := r.store.Project(ctx, sess.TenantID, args.ProjectKey)
	if err != nil {
		return domainResult(err, fmt.Sprintf("Project %s not found", args.ProjectKey))
	}
	sprints, err := r.store.Sprints(ctx, sess.TenantID, p.Key)
	if err != nil {
		return nil, err
	}
	if sprints == nil {
		sprints = []tracker.Sprint{}
	}
	return jsonResult(sprintList{Project: p.Summary(), Sprints: sprints})
}

type addCommentArgs struct {
	IssueKey string `json:"issueKey" jsonschema:"minLength=1" jsonschema_description:"Key of the issue to comment on."`
	Body     string `json:"body" jsonschema:"minLength=1" jsonschema_description:"Comment text."`
}

func (a *addCommentArgs) validate() error {
	if err := required("issueKey", a.IssueKey); err != nil {
		return err
	}
	return required("body", a.Body)
}

func (r *Registry) addComment(ctx context.Context, sess *sessions.Session, args addCommentArgs) (*mcp.CallToolResult, error) {
	c, err := r.store.AddComment(ctx, sess.TenantID, tracker.NewComment{
		IssueKey: args.IssueKey,
		AuthorID: sess.UserID,
		Body:     args.Body,
	})
	if err != nil {
		return domainResult(err, fmt.Sprintf("Issue %s not found", args.IssueKey))
	}
	return jsonResult(c)
}

type transitionIssueArgs struct {
	IssueKey string `json:"issueKey" jsonschema:"minLength=1" jsonschema_description:"Key of the issue to transition."`
	Status   string `json:"status" jsonschema:"enum=todo,enum=in_progress,enum=in_review,enum=done" jsonschema_description:"Target status."`
}

func (a *transitionIssueArgs) validate() error {
	if err := required("issueKey", a.IssueKey); err != nil {
		return err
	}
	if !tracker.Status(a.Status).Valid() {
		return fmt.Errorf("status must be one of %s", statusList())
	}
	return nil
}

func (r *Registry) transitionIssue(ctx context.Context, sess *sessions.Session, args transitionIssueArgs) (*mcp.CallToolResult, error) {
	iss, err := r.store.TransitionIssue(ctx, sess.TenantID, args.IssueKey, tracker.Status(args.Status), sess.UserID)
	if err != nil {
		return domainResult(err, fmt.Sprintf("Issue %s not found", args.IssueKey))
	}
	return jsonResult(iss)
}

func statusList() string {
	parts := make([]string, len(tracker.Statuses))
	for i, s := range tracker.Statuses {
		parts[i] = string(s)
	}
	return strings.Join(parts, ", ")
}
