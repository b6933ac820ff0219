package trackertest

import (
	"context"
	"errors"
	"testing"

	"github.com/ggoodman/mcp-tracker-go/tracker"
)

func TestSeeded_ProjectsAndSprintsAreTenantScoped(t *testing.T) {
	f := Seeded()
	ctx := context.Background()

	acme, err := f.Projects(ctx, TenantAcme)
	if err != nil {
		t.Fatalf("projects: %v", err)
	}
	if len(acme) != 1 || acme[0].Key != "ORD" {
		t.Fatalf("acme projects = %+v", acme)
	}

	globex, err := f.Projects(ctx, TenantGlobex)
	if err != nil {
		t.Fatalf("projects: %v", err)
	}
	if len(globex) != 1 || globex[0].Key != "GLX" {
		t.Fatalf("globex projects = %+v", globex)
	}

	sprints, err := f.Sprints(ctx, TenantAcme, "ORD")
	if err != nil {
		t.Fatalf("sprints: %v", err)
	}
	if len(sprints) != 1 || sprints[0].ID != "s-ord-1" {
		t.Fatalf("sprints = %+v", sprints)
	}

	if _, err := f.Sprint(ctx, TenantGlobex, "s-ord-1"); !errors.Is(err, tracker.ErrNotFound) {
		t.Fatalf("cross-tenant sprint: expected ErrNotFound, got %v", err)
	}
	if _, err := f.Project(ctx, TenantGlobex, "ORD"); !errors.Is(err, tracker.ErrNotFound) {
		t.Fatalf("cross-tenant project: expected ErrNotFound, got %v", err)
	}
}

func TestFake_ErrAndCalls(t *testing.T) {
	f := New()
	f.Err = errors.New("boom")

	if _, err := f.Projects(context.Background(), TenantAcme); err == nil || err.Error() != "boom" {
		t.Fatalf("expected injected error, got %v", err)
	}
	if len(f.Calls) != 1 || f.Calls[0] != "Projects" {
		t.Fatalf("calls = %v", f.Calls)
	}
}
