package sessions

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrSessionNotFound is returned when a session does not exist or has
	// expired.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExists is returned by CreateSession on an id collision.
	ErrSessionExists = errors.New("session already exists")
	// ErrInvalidSession is returned when a session record is missing
	// required fields.
	ErrInvalidSession = errors.New("invalid session")
)

// Store persists session records. Implementations MUST be safe for
// concurrent use. TouchSession is a last-write-wins timestamp update with no
// ordering guarantee between concurrent calls on the same session.
type Store interface {
	CreateSession(ctx context.Context, sess *Session) error
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	TouchSession(ctx context.Context, sessionID string, at time.Time) error
	DeleteSession(ctx context.Context, sessionID string) error
}

// Validate checks the fields every stored session must carry.
func (s *Session) Validate() error {
	switch {
	case s == nil:
		return ErrInvalidSession
	case s.ID == "":
		return errors.Join(ErrInvalidSession, errors.New("missing session id"))
	case s.TenantID == "":
		return errors.Join(ErrInvalidSession, errors.New("missing tenant id"))
	}
	return nil
}
