package memorystore

import (
	"context"
	"sync"
	"time"

	"github.com/ggoodman/mcp-tracker-go/sessions"
)

// Store is an in-memory implementation of sessions.Store.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*sessions.Session

	ttl time.Duration // 0 = sessions never idle out
	now func() time.Time

	cleanupTicker *time.Ticker
	cleanupDone   chan struct{}
	closeOnce     sync.Once
}

// Option configures the memory store.
type Option func(*Store)

// WithTTL sets the sliding idle timeout. A session expires once
// LastActiveAt + ttl is in the past.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock overrides the time source used for expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a new memory-backed session store.
func New(opts ...Option) *Store {
	s := &Store{
		sessions:    make(map[string]*sessions.Session),
		now:         time.Now,
		cleanupDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.ttl > 0 {
		s.cleanupTicker = time.NewTicker(s.ttl / 4)
		go s.cleanupExpiredSessions()
	}

	return s
}

func (s *Store) CreateSession(ctx context.Context, sess *sessions.Session) error {
	if err := sess.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.sessions[sess.ID]; ok && !s.expired(cur) {
		return sessions.ErrSessionExists
	}
	s.sessions[sess.ID] = sess.Clone()
	return nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (*sessions.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok || s.expired(sess) {
		return nil, sessions.ErrSessionNotFound
	}
	return sess.Clone(), nil
}

func (s *Store) TouchSession(ctx context.Context, sessionID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok || s.expired(sess) {
		return sessions.ErrSessionNotFound
	}
	sess.LastActiveAt = at.UTC()
	return nil
}

func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	return nil
}

// Len reports the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, sess := range s.sessions {
		if !s.expired(sess) {
			n++
		}
	}
	return n
}

// Close stops the background cleanup loop. It is idempotent.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		if s.cleanupTicker != nil {
			s.cleanupTicker.Stop()
		}
		close(s.cleanupDone)
	})
	return nil
}

func (s *Store) expired(sess *sessions.Session) bool {
	if s.ttl <= 0 {
		return false
	}
	return s.now().After(sess.LastActiveAt.Add(s.ttl))
}

func (s *Store) cleanupExpiredSessions() {
	for {
		select {
		case <-s.cleanupTicker.C:
			s.performCleanup()
		case <-s.cleanupDone:
			return
		}
	}
}

func (s *Store) performCleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		if s.expired(sess) {
			delete(s.sessions, id)
		}
	}
}

var _ sessions.Store = (*Store)(nil)
