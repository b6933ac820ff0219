// Package storetest provides a conformance suite for sessions.Store
// implementations.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ggoodman/mcp-tracker-go/sessions"
)

// StoreFactory creates a new, empty Store instance for testing.
type StoreFactory func(t *testing.T) sessions.Store

// RunStoreTests runs the complete Store test suite against the provided factory.
func RunStoreTests(t *testing.T, factory StoreFactory) {
	t.Run("CreateAndGet", func(t *testing.T) { testCreateAndGet(t, factory) })
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, factory) })
	t.Run("CreateDuplicate", func(t *testing.T) { testCreateDuplicate(t, factory) })
	t.Run("CreateInvalid", func(t *testing.T) { testCreateInvalid(t, factory) })
	t.Run("TouchUpdatesLastActive", func(t *testing.T) { testTouch(t, factory) })
	t.Run("TouchMissing", func(t *testing.T) { testTouchMissing(t, factory) })
	t.Run("DeleteIsIdempotent", func(t *testing.T) { testDelete(t, factory) })
	t.Run("ConcurrentTouch", func(t *testing.T) { testConcurrentTouch(t, factory) })
	t.Run("ConcurrentGetAndTouch", func(t *testing.T) { testConcurrentGetAndTouch(t, factory) })
	t.Run("IsolationBetweenSessions", func(t *testing.T) { testIsolation(t, factory) })
}

func newSession(id string) *sessions.Session {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &sessions.Session{
		ID:           id,
		TenantID:     "org-" + id,
		UserID:       "user-" + id,
		ClientName:   "storetest",
		Permissions:  sessions.NewPermissions(sessions.PermissionIssuesRead, sessions.PermissionProjectsRead),
		CreatedAt:    now,
		LastActiveAt: now,
	}
}

func uniqueID(t *testing.T, suffix string) string {
	return fmt.Sprintf("%s-%d-%s", "storetest", time.Now().UnixNano(), suffix)
}

func testCreateAndGet(t *testing.T, factory StoreFactory) {
	s := factory(t)
	ctx := context.Background()

	want := newSession(uniqueID(t, "a"))
	if err := s.CreateSession(ctx, want); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.GetSession(ctx, want.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != want.ID || got.TenantID != want.TenantID || got.UserID != want.UserID || got.ClientName != want.ClientName {
		t.Fatalf("identity mismatch: got %+v want %+v", got, want)
	}
	if got.Permissions.String() != want.Permissions.String() {
		t.Fatalf("permissions mismatch: got %q want %q", got.Permissions, want.Permissions)
	}
	if !got.CreatedAt.Equal(want.CreatedAt) {
		t.Fatalf("created_at mismatch: got %v want %v", got.CreatedAt, want.CreatedAt)
	}
}

func testGetMissing(t *testing.T, factory StoreFactory) {
	s := factory(t)
	_, err := s.GetSession(context.Background(), uniqueID(t, "missing"))
	if !errors.Is(err, sessions.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func testCreateDuplicate(t *testing.T, factory StoreFactory) {
	s := factory(t)
	ctx := context.Background()

	sess := newSession(uniqueID(t, "dup"))
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.CreateSession(ctx, sess); !errors.Is(err, sessions.ErrSessionExists) {
		t.Fatalf("expected ErrSessionExists, got %v", err)
	}
}

func testCreateInvalid(t *testing.T, factory StoreFactory) {
	s := factory(t)
	ctx := context.Background()

	cases := []struct {
		name string
		sess *sessions.Session
	}{
		{name: "nil", sess: nil},
		{name: "no id", sess: &sessions.Session{TenantID: "org-1"}},
		{name: "no tenant", sess: &sessions.Session{ID: uniqueID(t, "no-tenant")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := s.CreateSession(ctx, tc.sess); !errors.Is(err, sessions.ErrInvalidSession) {
				t.Fatalf("expected ErrInvalidSession, got %v", err)
			}
		})
	}
}

func testTouch(t *testing.T, factory StoreFactory) {
	s := factory(t)
	ctx := context.Background()

	sess := newSession(uniqueID(t, "touch"))
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("create: %v", err)
	}

	at := sess.LastActiveAt.Add(5 * time.Second)
	if err := s.TouchSession(ctx, sess.ID, at); err != nil {
		t.Fatalf("touch: %v", err)
	}

	got, err := s.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.LastActiveAt.Equal(at) {
		t.Fatalf("expected last_active_at %v, got %v", at, got.LastActiveAt)
	}
	if !got.CreatedAt.Equal(sess.CreatedAt) {
		t.Fatalf("touch must not change created_at: got %v want %v", got.CreatedAt, sess.CreatedAt)
	}
}

func testTouchMissing(t *testing.T, factory StoreFactory) {
	s := factory(t)
	err := s.TouchSession(context.Background(), uniqueID(t, "missing"), time.Now())
	if !errors.Is(err, sessions.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func testDelete(t *testing.T, factory StoreFactory) {
	s := factory(t)
	ctx := context.Background()

	sess := newSession(uniqueID(t, "del"))
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.DeleteSession(ctx, sess.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteSession(ctx, sess.ID); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if _, err := s.GetSession(ctx, sess.ID); !errors.Is(err, sessions.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after delete, got %v", err)
	}
}

func testConcurrentTouch(t *testing.T, factory StoreFactory) {
	s := factory(t)
	ctx := context.Background()

	sess := newSession(uniqueID(t, "conc"))
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("create: %v", err)
	}

	const n = 16
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.TouchSession(ctx, sess.ID, sess.LastActiveAt.Add(time.Duration(i+1)*time.Second))
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent touch: %v", err)
		}
	}

	got, err := s.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	// Last write wins; any of the written timestamps is acceptable.
	lo, hi := sess.LastActiveAt.Add(time.Second), sess.LastActiveAt.Add(n*time.Second)
	if got.LastActiveAt.Before(lo) || got.LastActiveAt.After(hi) {
		t.Fatalf("last_active_at %v outside [%v, %v]", got.LastActiveAt, lo, hi)
	}
}

func testConcurrentGetAndTouch(t *testing.T, factory StoreFactory) {
	s := factory(t)
	ctx := context.Background()

	sess := newSession(uniqueID(t, "getouch"))
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("create: %v", err)
	}

	const n = 16
	var wg sync.WaitGroup
	errs := make(chan error, 2*n)
	for i := range n {
		wg.Add(2)
		go func() {
			defer wg.Done()
			errs <- s.TouchSession(ctx, sess.ID, sess.LastActiveAt.Add(time.Duration(i+1)*time.Second))
		}()
		go func() {
			defer wg.Done()
			got, err := s.GetSession(ctx, sess.ID)
			if err == nil && got.ID != sess.ID {
				err = fmt.Errorf("got session %q, want %q", got.ID, sess.ID)
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent get/touch: %v", err)
		}
	}
}

func testIsolation(t *testing.T, factory StoreFactory) {
	s := factory(t)
	ctx := context.Background()

	a, b := newSession(uniqueID(t, "iso-a")), newSession(uniqueID(t, "iso-b"))
	for _, sess := range []*sessions.Session{a, b} {
		if err := s.CreateSession(ctx, sess); err != nil {
			t.Fatalf("create %s: %v", sess.ID, err)
		}
	}
	if err := s.DeleteSession(ctx, a.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, err := s.GetSession(ctx, b.ID)
	if err != nil {
		t.Fatalf("get b: %v", err)
	}
	if got.TenantID != b.TenantID {
		t.Fatalf("expected tenant %q, got %q", b.TenantID, got.TenantID)
	}
}
