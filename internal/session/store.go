package session

import (
	"context"
	"errors"
	"time"
)

// DefaultTTL is the sliding expiry window applied on every read.
const DefaultTTL = 24 * time.Hour

var (
	// ErrNotFound is returned for unknown, destroyed or expired sessions.
	ErrNotFound = errors.New("session: not found")
	// ErrUnavailable wraps backend failures. It is the only session error
	// that should fail a request.
	ErrUnavailable = errors.New("session: store unavailable")
)

// Session is server-side state bound to an opaque cookie value. The id
// carries no identity; the bound user is looked up through Values.
type Session struct {
	ID           string
	Values       map[string]string
	CreatedAt    time.Time
	LastAccessAt time.Time
	ExpiresAt    time.Time
}

// Value returns a session-scoped value.
func (s *Session) Value(key string) (string, bool) {
	if s == nil || s.Values == nil {
		return "", false
	}
	v, ok := s.Values[key]
	return v, ok
}

// Store persists sessions outside the process. Writes are per key and
// last-writer-wins; no cross-key transactions are offered. Get slides the
// expiry window.
type Store interface {
	Create(ctx context.Context) (string, error)
	Get(ctx context.Context, sessionID string) (*Session, error)
	Set(ctx context.Context, sessionID, key, value string) error
	Delete(ctx context.Context, sessionID, key string) error
	Destroy(ctx context.Context, sessionID string) error
}

// ExpiringStore is implemented by backends that do not expire entries on
// their own and need a periodic sweep.
type ExpiringStore interface {
	DeleteExpired(ctx context.Context) (int64, error)
}
