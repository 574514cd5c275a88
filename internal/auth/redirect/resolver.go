// Package redirect decides where a user lands after login. The requested
// destination arrives as attacker-controlled query input, so it is only
// honoured when its origin is allow-listed.
package redirect

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"auth-bridge/internal/session"
)

// SessionKey holds the pending destination between begin-login and callback.
const SessionKey = "return_to"

type Resolver struct {
	store    session.Store
	fallback *url.URL
	allowed  map[string]struct{}
	logger   *zap.Logger
}

// NewResolver builds a resolver. The fallback's own origin is always
// allowed.
func NewResolver(
	store session.Store,
	fallback string,
	allowedOrigins []string,
	logger *zap.Logger,
) (*Resolver, error) {
	fb, err := url.Parse(fallback)
	if err != nil || !isHTTP(fb) || fb.Host == "" {
		return nil, fmt.Errorf("redirect: invalid default destination %q", fallback)
	}

	allowed := map[string]struct{}{origin(fb): {}}
	for _, o := range allowedOrigins {
		u, err := url.Parse(strings.TrimSpace(o))
		if err != nil || !isHTTP(u) || u.Host == "" {
			return nil, fmt.Errorf("redirect: invalid allowed origin %q", o)
		}
		allowed[origin(u)] = struct{}{}
	}

	return &Resolver{
		store:    store,
		fallback: fb,
		allowed:  allowed,
		logger:   logger.Named("redirect"),
	}, nil
}

// Default returns the configured fallback destination.
func (r *Resolver) Default() string {
	return r.fallback.String()
}

// Capture sanitizes a raw redirect parameter. Anything that is not an
// allow-listed absolute http(s) URL or a root-relative path comes back as
// the default destination.
func (r *Resolver) Capture(raw string) string {
	if u, ok := r.sanitize(raw); ok {
		return u
	}
	if raw != "" {
		r.logger.Warn("rejected redirect target", zap.String("target", raw))
	}
	return r.Default()
}

// Allowed reports whether raw would survive Capture unchanged in meaning.
func (r *Resolver) Allowed(raw string) bool {
	_, ok := r.sanitize(raw)
	return ok
}

func (r *Resolver) sanitize(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.ContainsAny(raw, "\\\r\n\t") {
		return "", false
	}

	u, err := url.Parse(raw)
	if err != nil || u.User != nil || u.Opaque != "" {
		return "", false
	}

	if !u.IsAbs() {
		// root-relative only: "/x" but never "//host" (scheme-relative)
		if u.Host != "" || !strings.HasPrefix(u.Path, "/") || strings.HasPrefix(raw, "//") {
			return "", false
		}
		return r.fallback.ResolveReference(u).String(), true
	}

	if !isHTTP(u) || u.Host == "" {
		return "", false
	}
	if _, ok := r.allowed[origin(u)]; !ok {
		return "", false
	}
	return u.String(), true
}

// StoreFor records the destination for the session's pending login.
func (r *Resolver) StoreFor(ctx context.Context, sessionID, target string) error {
	return r.store.Set(ctx, sessionID, SessionKey, target)
}

// Consume returns the pending destination and removes it. A missing,
// unreadable or no-longer-allowed value yields the default.
func (r *Resolver) Consume(ctx context.Context, sessionID string) (string, error) {
	s, err := r.store.Get(ctx, sessionID)
	if errors.Is(err, session.ErrNotFound) {
		return r.Default(), nil
	}
	if err != nil {
		return "", err
	}

	target, ok := s.Value(SessionKey)
	if ok {
		if err := r.store.Delete(ctx, sessionID, SessionKey); err != nil {
			return "", err
		}
	}

	if u, valid := r.sanitize(target); valid {
		return u, nil
	}
	return r.Default(), nil
}

func isHTTP(u *url.URL) bool {
	return u.Scheme == "http" || u.Scheme == "https"
}

// origin is scheme://host[:port] with default ports dropped.
func origin(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (scheme == "https" && port == "443") || (scheme == "http" && port == "80") {
		port = ""
	}
	if port != "" {
		host += ":" + port
	}
	return scheme + "://" + host
}
