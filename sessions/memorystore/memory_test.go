package memorystore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ggoodman/mcp-tracker-go/sessions"
	"github.com/ggoodman/mcp-tracker-go/sessions/storetest"
)

func TestMemoryStore(t *testing.T) {
	storetest.RunStoreTests(t, func(t *testing.T) sessions.Store {
		s := New()
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestMemoryStore_SlidingTTL(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	s := New(WithTTL(time.Minute), WithClock(clock.Now))
	defer s.Close()

	sess := &sessions.Session{ID: "s1", TenantID: "org-1", LastActiveAt: clock.Now()}
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("create: %v", err)
	}

	clock.Advance(45 * time.Second)
	if err := s.TouchSession(ctx, "s1", clock.Now()); err != nil {
		t.Fatalf("touch: %v", err)
	}

	clock.Advance(45 * time.Second)
	if _, err := s.GetSession(ctx, "s1"); err != nil {
		t.Fatalf("expected touched session to survive, got %v", err)
	}

	clock.Advance(2 * time.Minute)
	if _, err := s.GetSession(ctx, "s1"); !errors.Is(err, sessions.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after idle timeout, got %v", err)
	}
	if err := s.TouchSession(ctx, "s1", clock.Now()); !errors.Is(err, sessions.ErrSessionNotFound) {
		t.Fatalf("expected touch on expired session to fail, got %v", err)
	}
	if n := s.Len(); n != 0 {
		t.Fatalf("expected no live sessions, got %d", n)
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	defer s.Close()

	sess := &sessions.Session{ID: "s1", TenantID: "org-1", Permissions: sessions.NewPermissions(sessions.PermissionIssuesRead)}
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("create: %v", err)
	}
	sess.TenantID = "org-2"

	got, err := s.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	got.Permissions[0] = sessions.PermissionIssuesWrite

	again, err := s.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if again.TenantID != "org-1" {
		t.Fatalf("caller mutation leaked into store: tenant=%q", again.TenantID)
	}
	if !again.Can(sessions.PermissionIssuesRead) {
		t.Fatalf("caller mutation leaked into store: permissions=%v", again.Permissions)
	}
}
