// Package flow drives one login attempt from the redirect to the provider
// through the callback to the final redirect back into the application.
package flow

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"auth-bridge/internal/auth"
	"auth-bridge/internal/auth/provider"
	"auth-bridge/internal/auth/redirect"
	"auth-bridge/internal/monitoring"
	"auth-bridge/internal/session"
)

// FailurePath is where every failed login ends up.
const FailurePath = "/auth/failure"

// Pending login state lives in the session between BeginLogin and
// HandleCallback. The return destination is kept under redirect.SessionKey.
const (
	KeyProvider = "oauth_provider"
	KeyState    = "oauth_state"
	KeyVerifier = "oauth_pkce"
)

type State string

const (
	StateIdle                 State = "idle"
	StateRedirectedToProvider State = "redirected_to_provider"
	StateCallbackReceived     State = "callback_received"
	StateAuthenticated        State = "authenticated"
	StateFailed               State = "failed"
)

// Binder attaches an authenticated identity to a session and returns the
// id the session continues under.
type Binder interface {
	Login(ctx context.Context, sessionID string, id auth.Identity) (string, error)
}

// Dispatcher hands an identity to background synchronization.
type Dispatcher interface {
	Dispatch(id auth.Identity)
}

// Deps are shared by the controllers of all providers.
type Deps struct {
	Store     session.Store
	Redirects *redirect.Resolver
	Users     Binder
	Sync      Dispatcher
	Logger    *zap.Logger
}

// Result is the outcome of a callback: where to send the browser and which
// session id it carries from now on.
type Result struct {
	Location  string
	SessionID string
}

type Controller struct {
	provider  provider.OAuthProvider
	store     session.Store
	redirects *redirect.Resolver
	users     Binder
	sync      Dispatcher
	logger    *zap.Logger
}

func New(p provider.OAuthProvider, d Deps) *Controller {
	return &Controller{
		provider:  p,
		store:     d.Store,
		redirects: d.Redirects,
		users:     d.Users,
		sync:      d.Sync,
		logger:    d.Logger.Named("flow").With(zap.String("provider", p.Name())),
	}
}

// NewControllers builds one controller per registered provider.
func NewControllers(reg *provider.Registry, d Deps) map[string]*Controller {
	out := make(map[string]*Controller)
	for _, name := range reg.Names() {
		p, _ := reg.Get(name)
		out[name] = New(p, d)
	}
	return out
}

func (c *Controller) Provider() string {
	return c.provider.Name()
}

// BeginLogin records the pending login in the session and returns the
// provider authorization URL. A non-empty returnTo replaces a destination
// captured earlier; otherwise the captured one is kept.
func (c *Controller) BeginLogin(ctx context.Context, sessionID, returnTo string) (string, error) {
	state, err := generateState()
	if err != nil {
		return "", err
	}
	verifier, challenge := generatePKCE()

	if returnTo != "" {
		if err := c.redirects.StoreFor(ctx, sessionID, c.redirects.Capture(returnTo)); err != nil {
			return "", err
		}
	}

	pending := [][2]string{
		{KeyProvider, c.provider.Name()},
		{KeyState, state},
		{KeyVerifier, verifier},
	}
	for _, kv := range pending {
		if err := c.store.Set(ctx, sessionID, kv[0], kv[1]); err != nil {
			return "", err
		}
	}

	c.transition(StateIdle, StateRedirectedToProvider)
	return c.provider.AuthCodeURL(state, challenge), nil
}

// HandleCallback completes the login. On success the session is rotated
// and the browser goes to the captured destination with name and pic
// appended; otherwise to FailurePath under the unchanged session id. Only
// session store failures are returned as errors.
func (c *Controller) HandleCallback(ctx context.Context, sessionID string, params url.Values) (Result, error) {
	c.transition(StateRedirectedToProvider, StateCallbackReceived)

	pending, err := c.takePending(ctx, sessionID)
	if err != nil {
		return Result{}, err
	}

	if e := params.Get("error"); e != "" {
		return c.fail(ctx, sessionID, fmt.Errorf("%w: %s: %s", auth.ErrProviderDenied, e, params.Get("error_description")))
	}

	got := params.Get("state")
	if got == "" || pending[KeyState] == "" ||
		subtle.ConstantTimeCompare([]byte(got), []byte(pending[KeyState])) != 1 {
		return c.fail(ctx, sessionID, auth.ErrStateMismatch)
	}
	if pending[KeyProvider] != c.provider.Name() {
		return c.fail(ctx, sessionID, fmt.Errorf("%w: login was started with %q", auth.ErrStateMismatch, pending[KeyProvider]))
	}

	code := params.Get("code")
	if code == "" {
		return c.fail(ctx, sessionID, fmt.Errorf("%w: callback carried no code", auth.ErrExchangeFailed))
	}

	raw, err := c.provider.ExchangeCode(ctx, code, pending[KeyVerifier])
	if err != nil {
		return c.fail(ctx, sessionID, err)
	}

	id := auth.Normalize(raw)
	if id.ExternalID == "" {
		return c.fail(ctx, sessionID, fmt.Errorf("%w: provider returned no profile", auth.ErrExchangeFailed))
	}

	newID, err := c.users.Login(ctx, sessionID, id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return c.fail(ctx, sessionID, fmt.Errorf("%w: session expired during login", auth.ErrStateMismatch))
		}
		return Result{}, err
	}

	c.sync.Dispatch(id)

	target, err := c.redirects.Consume(ctx, newID)
	if err != nil {
		return Result{}, err
	}

	c.transition(StateCallbackReceived, StateAuthenticated)
	return Result{Location: withProfile(target, id), SessionID: newID}, nil
}

// takePending reads and removes the pending login keys. A missing session
// yields empty values, which fail the state check.
func (c *Controller) takePending(ctx context.Context, sessionID string) (map[string]string, error) {
	out := map[string]string{}

	s, err := c.store.Get(ctx, sessionID)
	if errors.Is(err, session.ErrNotFound) {
		return out, nil
	}
	if err != nil {
		return nil, err
	}

	for _, k := range []string{KeyProvider, KeyState, KeyVerifier} {
		v, ok := s.Value(k)
		if !ok {
			continue
		}
		out[k] = v
		if err := c.store.Delete(ctx, sessionID, k); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// fail records the failure and discards the pending destination. The
// error detail never reaches the client.
func (c *Controller) fail(ctx context.Context, sessionID string, cause error) (Result, error) {
	c.transition(StateCallbackReceived, StateFailed, zap.Error(cause))

	if errors.Is(cause, auth.ErrExchangeFailed) {
		monitoring.CaptureError(cause, map[string]string{
			"component": "flow",
			"provider":  c.provider.Name(),
		})
	}

	if err := c.store.Delete(ctx, sessionID, redirect.SessionKey); err != nil && errors.Is(err, session.ErrUnavailable) {
		return Result{}, err
	}
	return Result{Location: FailurePath, SessionID: sessionID}, nil
}

func (c *Controller) transition(from, to State, fields ...zap.Field) {
	monitoring.LoginTransition(c.provider.Name(), string(to))

	fields = append(fields, zap.String("from", string(from)), zap.String("to", string(to)))
	if to == StateFailed {
		c.logger.Warn("login failed", fields...)
		return
	}
	c.logger.Info("login transition", fields...)
}

// withProfile appends the display name and avatar to the destination,
// leaving the existing query untouched. The values end up in browser
// history; consumers rely on these parameters.
func withProfile(target string, id auth.Identity) string {
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	extra := url.Values{
		"name": {id.DisplayName},
		"pic":  {id.AvatarURL},
	}.Encode()
	if u.RawQuery == "" {
		u.RawQuery = extra
	} else {
		u.RawQuery += "&" + extra
	}
	u.ForceQuery = false
	return u.String()
}
