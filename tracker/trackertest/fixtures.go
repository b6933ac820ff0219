package trackertest

import (
	"time"

	"github.com/ggoodman/mcp-tracker-go/tracker"
)

// Tenant ids used by Seeded.
const (
	TenantAcme   = "org-acme"
	TenantGlobex = "org-globex"
)

// Seeded returns a Fake holding a small two-tenant fixture:
//
//	org-acme:   project ORD (p-ord), board b-ord, sprint s-ord-1,
//	            issues ORD-123 (2 comments), ORD-124 (in sprint), ORD-125
//	org-globex: project GLX, issue GLX-1
//	users:      u-ada (acme owner), u-grace (acme member), u-drifter (no membership)
func Seeded() *Fake {
	f := New()
	t0 := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

	ada := &tracker.UserSummary{ID: "u-ada", Name: "Ada Lovelace"}
	grace := &tracker.UserSummary{ID: "u-grace", Name: "Grace Hopper"}

	f.Users["u-ada"] = &tracker.User{ID: "u-ada", Name: "Ada Lovelace", Email: "ada@example.com", CreatedAt: t0}
	f.Users["u-grace"] = &tracker.User{ID: "u-grace", Name: "Grace Hopper", Email: "grace@example.com", CreatedAt: t0}
	f.Users["u-drifter"] = &tracker.User{ID: "u-drifter", Name: "Drifter", Email: "drifter@example.com", CreatedAt: t0}
	f.Memberships[K(TenantAcme, "u-ada")] = &tracker.Membership{TenantID: TenantAcme, UserID: "u-ada", Role: tracker.RoleOwner}
	f.Memberships[K(TenantAcme, "u-grace")] = &tracker.Membership{TenantID: TenantAcme, UserID: "u-grace", Role: tracker.RoleMember}

	ord := &tracker.Project{ID: "p-ord", Key: "ORD", Name: "Orders", Lead: ada, CreatedAt: t0}
	f.ProjectsByKey[K(TenantAcme, "ORD")] = ord
	f.Counts[K(TenantAcme, "p-ord")] = tracker.ProjectCounts{Issues: 3, Members: 2, Boards: 1}
	f.Boards[K(TenantAcme, "b-ord")] = &tracker.Board{ID: "b-ord", Name: "Orders board", Kind: tracker.BoardKindScrum, Project: ord.Summary()}
	f.SprintsByID[K(TenantAcme, "s-ord-1")] = &tracker.Sprint{ID: "s-ord-1", Name: "Sprint 1", State: tracker.SprintActive, Project: ord.Summary()}

	f.Issues[K(TenantAcme, "ORD-124")] = &tracker.Issue{
		ID: "i-124", Key: "ORD-124", ProjectID: "p-ord", SprintID: "s-ord-1", Title: "Refund flow times out",
		Type: tracker.IssueTypeBug, Status: tracker.StatusInProgress, Priority: tracker.PriorityHigh,
		Assignee: grace, Reporter: ada, CreatedAt: t0, UpdatedAt: t0,
	}
	f.Issues[K(TenantAcme, "ORD-123")] = &tracker.Issue{
		ID: "i-123", Key: "ORD-123", ProjectID: "p-ord", SprintID: "s-ord-1", Title: "Checkout button misaligned",
		Type: tracker.IssueTypeBug, Status: tracker.StatusTodo, Priority: tracker.PriorityMedium,
		Assignee: ada, Reporter: grace, CreatedAt: t0, UpdatedAt: t0,
	}
	f.Issues[K(TenantAcme, "ORD-125")] = &tracker.Issue{
		ID: "i-125", Key: "ORD-125", ProjectID: "p-ord", Title: "Export orders as CSV",
		Type: tracker.IssueTypeStory, Status: tracker.StatusDone, Priority: tracker.PriorityLow,
		Reporter: ada, CreatedAt: t0, UpdatedAt: t0,
	}
	f.Comments["i-123"] = []tracker.Comment{
		{ID: "c-1", IssueID: "i-123", Author: grace, Body: "Reproduced on mobile Safari.", CreatedAt: t0.Add(time.Hour)},
		{ID: "c-2", IssueID: "i-123", Author: ada, Body: "Taking this one.", CreatedAt: t0.Add(2 * time.Hour)},
	}

	glx := &tracker.Project{ID: "p-glx", Key: "GLX", Name: "Globex Ops", CreatedAt: t0}
	f.ProjectsByKey[K(TenantGlobex, "GLX")] = glx
	f.Counts[K(TenantGlobex, "p-glx")] = tracker.ProjectCounts{Issues: 1}
	f.Issues[K(TenantGlobex, "GLX-1")] = &tracker.Issue{
		ID: "i-glx-1", Key: "GLX-1", ProjectID: "p-glx", Title: "Rotate credentials",
		Type: tracker.IssueTypeTask, Status: tracker.StatusTodo, Priority: tracker.PriorityMedium, CreatedAt: t0, UpdatedAt: t0,
	}

	return f
}
