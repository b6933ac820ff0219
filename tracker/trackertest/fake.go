// Package trackertest provides an in-memory tracker.Store for tests.
package trackertest

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ggoodman/mcp-tracker-go/tracker"
)

// Fake is a map-backed tracker.Store. Populate the exported maps before
// use; keys are "<tenant>/<key-or-id>" for tenant-scoped entities. Err, when
// set, is returned from every method.
type Fake struct {
	mu sync.Mutex

	Issues        map[string]*tracker.Issue
	Comments      map[string][]tracker.Comment // by issue id, any order
	ProjectsByKey map[string]*tracker.Project
	Counts        map[string]tracker.ProjectCounts // by "<tenant>/<project id>"
	Boards        map[string]*tracker.Board
	SprintsByID   map[string]*tracker.Sprint
	Users         map[string]*tracker.User
	Memberships   map[string]*tracker.Membership // by "<tenant>/<user id>"

	Err error
	// Panic, when set, is raised from every method.
	Panic any

	// Calls records method names in invocation order.
	Calls []string
}

// New returns an empty Fake.
func New() *Fake {
	return &Fake{
		Issues:        map[string]*tracker.Issue{},
		Comments:      map[string][]tracker.Comment{},
		ProjectsByKey: map[string]*tracker.Project{},
		Counts:        map[string]tracker.ProjectCounts{},
		Boards:        map[string]*tracker.Board{},
		SprintsByID:   map[string]*tracker.Sprint{},
		Users:         map[string]*tracker.User{},
		Memberships:   map[string]*tracker.Membership{},
	}
}

// K builds a tenant-scoped map key.
func K(tenantID, id string) string { return tenantID + "/" + id }

func (f *Fake) enter(method string) error {
	f.Calls = append(f.Calls, method)
	if f.Panic != nil {
		panic(f.Panic)
	}
	return f.Err
}

func (f *Fake) Issue(ctx context.Context, tenantID, key string) (*tracker.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("Issue"); err != nil {
		return nil, err
	}
	iss, ok := f.Issues[K(tenantID, key)]
	if !ok {
		return nil, tracker.ErrNotFound
	}
	c := *iss
	return &c, nil
}

func (f *Fake) RecentComments(ctx context.Context, tenantID, issueID string, limit int) ([]tracker.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("RecentComments"); err != nil {
		return nil, err
	}
	if !f.ownsIssueID(tenantID, issueID) {
		return []tracker.Comment{}, nil
	}
	out := slices.Clone(f.Comments[issueID])
	slices.SortStableFunc(out, func(a, b tracker.Comment) int { return b.CreatedAt.Compare(a.CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	if out == nil {
		out = []tracker.Comment{}
	}
	return out, nil
}

func (f *Fake) ownsIssueID(tenantID, issueID string) bool {
	for k, iss := range f.Issues {
		if iss.ID == issueID && strings.HasPrefix(k, tenantID+"/") {
			return true
		}
	}
	return false
}

func (f *Fake) Project(ctx context.Context, tenantID, key string) (*tracker.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("Project"); err != nil {
		return nil, err
	}
	p, ok := f.ProjectsByKey[K(tenantID, key)]
	if !ok {
		return nil, tracker.ErrNotFound
	}
	c := *p
	return &c, nil
}

func (f *Fake) ProjectCounts(ctx context.Context, tenantID, projectID string) (tracker.ProjectCounts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ProjectCounts"); err != nil {
		return tracker.ProjectCounts{}, err
	}
	c, ok := f.Counts[K(tenantID, projectID)]
	if !ok {
		return tracker.ProjectCounts{}, tracker.ErrNotFound
	}
	return c, nil
}

func (f *Fake) Board(ctx context.Context, tenantID, id string) (*tracker.Board, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("Board"); err != nil {
		return nil, err
	}
	b, ok := f.Boards[K(tenantID, id)]
	if !ok {
		return nil, tracker.ErrNotFound
	}
	c := *b
	return &c, nil
}

func (f *Fake) Sprint(ctx context.Context, tenantID, id string) (*tracker.Sprint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("Sprint"); err != nil {
		return nil, err
	}
	s, ok := f.SprintsByID[K(tenantID, id)]
	if !ok {
		return nil, tracker.ErrNotFound
	}
	c := *s
	return &c, nil
}

func (f *Fake) SprintIssues(ctx context.Context, tenantID, sprintID string) ([]tracker.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("SprintIssues"); err != nil {
		return nil, err
	}
	return f.collectIssues(tenantID, func(iss *tracker.Issue) bool { return iss.SprintID == sprintID }, 0), nil
}

func (f *Fake) collectIssues(tenantID string, keep func(*tracker.Issue) bool, limit int) []tracker.Issue {
	out := []tracker.Issue{}
	for k, iss := range f.Issues {
		if strings.HasPrefix(k, tenantID+"/") && keep(iss) {
			out = append(out, *iss)
		}
	}
	slices.SortFunc(out, func(a, b tracker.Issue) int { return cmp.Compare(a.Key, b.Key) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (f *Fake) User(ctx context.Context, id string) (*tracker.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("User"); err != nil {
		return nil, err
	}
	u, ok := f.Users[id]
	if !ok {
		return nil, tracker.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (f *Fake) Membership(ctx context.Context, tenantID, userID string) (*tracker.Membership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("Membership"); err != nil {
		return nil, err
	}
	m, ok := f.Memberships[K(tenantID, userID)]
	if !ok {
		return nil, tracker.ErrNotFound
	}
	c := *m
	return &c, nil
}

func (f *Fake) SearchIssues(ctx context.Context, tenantID string, filter tracker.IssueFilter) ([]tracker.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("SearchIssues"); err != nil {
		return nil, err
	}
	var projectID string
	if filter.ProjectKey != "" {
		p, ok := f.ProjectsByKey[K(tenantID, filter.ProjectKey)]
		if !ok {
			return []tracker.Issue{}, nil
		}
		projectID = p.ID
	}
	q := strings.ToLower(filter.Query)
	return f.collectIssues(tenantID, func(iss *tracker.Issue) bool {
		switch {
		case projectID != "" && iss.ProjectID != projectID:
			return false
		case filter.Status != "" && iss.Status != filter.Status:
			return false
		case filter.AssigneeID != "" && (iss.Assignee == nil || iss.Assignee.ID != filter.AssigneeID):
			return false
		case q != "" && !strings.Contains(strings.ToLower(iss.Title+" "+iss.Description), q):
			return false
		}
		return true
	}, filter.Limit), nil
}

func (f *Fake) Projects(ctx context.Context, tenantID string) ([]tracker.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("Projects"); err != nil {
		return nil, err
	}
	out := []tracker.Project{}
	for k, p := range f.ProjectsByKey {
		if strings.HasPrefix(k, tenantID+"/") {
			out = append(out, *p)
		}
	}
	slices.SortFunc(out, func(a, b tracker.Project) int { return cmp.Compare(a.Key, b.Key) })
	return out, nil
}

func (f *Fake) Sprints(ctx context.Context, tenantID, projectKey string) ([]tracker.Sprint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("Sprints"); err != nil {
		return nil, err
	}
	out := []tracker.Sprint{}
	for k, s := range f.SprintsByID {
		if strings.HasPrefix(k, tenantID+"/") && s.Project.Key == projectKey {
			out = append(out, *s)
		}
	}
	slices.SortFunc(out, func(a, b tracker.Sprint) int { return cmp.Compare(a.Name, b.Name) })
	return out, nil
}

func (f *Fake) AddComment(ctx context.Context, tenantID string, nc tracker.NewComment) (*tracker.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("AddComment"); err != nil {
		return nil, err
	}
	iss, ok := f.Issues[K(tenantID, nc.IssueKey)]
	if !ok {
		return nil, tracker.ErrNotFound
	}
	if strings.TrimSpace(nc.Body) == "" {
		return nil, tracker.Invalid("body", "comment body must not be empty")
	}
	c := tracker.Comment{
		ID:        fmt.Sprintf("%s-c%d", iss.ID, len(f.Comments[iss.ID])+1),
		IssueID:   iss.ID,
		Author:    &tracker.UserSummary{ID: nc.AuthorID},
		Body:      nc.Body,
		CreatedAt: time.Now().UTC(),
	}
	if u, ok := f.Users[nc.AuthorID]; ok {
		c.Author.Name = u.Name
	}
	f.Comments[iss.ID] = append(f.Comments[iss.ID], c)
	return &c, nil
}

func (f *Fake) TransitionIssue(ctx context.Context, tenantID, key string, status tracker.Status, actorID string) (*tracker.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("TransitionIssue"); err != nil {
		return nil, err
	}
	iss, ok := f.Issues[K(tenantID, key)]
	if !ok {
		return nil, tracker.ErrNotFound
	}
	if iss.Status == status {
		return nil, tracker.Invalid("status", "issue %s is already %s", key, status)
	}
	iss.Status = status
	c := *iss
	return &c, nil
}

var _ tracker.Store = (*Fake)(nil)
