// Package lifecycle binds an authenticated identity to a session and
// tears the binding down again.
package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"auth-bridge/internal/auth"
	"auth-bridge/internal/session"
)

// UserKey is the session key holding the JSON-encoded identity.
const UserKey = "user"

type Manager struct {
	store  session.Store
	logger *zap.Logger
}

func New(store session.Store, logger *zap.Logger) *Manager {
	return &Manager{store: store, logger: logger.Named("lifecycle")}
}

// Login moves the session to a fresh id, binds the identity to it and
// returns the new id. The old id stops resolving. Binding a different
// identity replaces the previous one.
func (m *Manager) Login(ctx context.Context, sessionID string, id auth.Identity) (string, error) {
	raw, err := json.Marshal(id)
	if err != nil {
		return "", fmt.Errorf("lifecycle: encode identity: %w", err)
	}

	newID, err := m.rotate(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if err := m.store.Set(ctx, newID, UserKey, string(raw)); err != nil {
		return "", err
	}
	if err := m.store.Destroy(ctx, sessionID); err != nil {
		return "", err
	}

	m.logger.Info("user logged in",
		zap.String("provider", id.Provider),
		zap.String("external_id", id.ExternalID),
	)
	return newID, nil
}

// rotate copies the values of sessionID into a new session. The old one is
// left for the caller to destroy once the new one is complete.
func (m *Manager) rotate(ctx context.Context, sessionID string) (string, error) {
	old, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return "", err
	}

	newID, err := m.store.Create(ctx)
	if err != nil {
		return "", err
	}
	for k, v := range old.Values {
		if k == UserKey {
			continue
		}
		if err := m.store.Set(ctx, newID, k, v); err != nil {
			return "", err
		}
	}
	return newID, nil
}

// Logout clears the user binding and destroys the session. Logging out an
// unknown session is not an error.
func (m *Manager) Logout(ctx context.Context, sessionID string) error {
	if err := m.store.Delete(ctx, sessionID, UserKey); err != nil && !errors.Is(err, session.ErrNotFound) {
		return err
	}
	if err := m.store.Destroy(ctx, sessionID); err != nil && !errors.Is(err, session.ErrNotFound) {
		return err
	}
	return nil
}

// CurrentUser returns the bound identity, or nil for an anonymous,
// unknown or expired session.
func (m *Manager) CurrentUser(ctx context.Context, sessionID string) (*auth.Identity, error) {
	if sessionID == "" {
		return nil, nil
	}

	s, err := m.store.Get(ctx, sessionID)
	if errors.Is(err, session.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	raw, ok := s.Value(UserKey)
	if !ok || raw == "" {
		return nil, nil
	}

	var id auth.Identity
	if err := json.Unmarshal([]byte(raw), &id); err != nil {
		m.logger.Warn("discarding unreadable user binding", zap.Error(err))
		return nil, nil
	}
	return &id, nil
}
