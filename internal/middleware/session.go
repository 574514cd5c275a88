package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"auth-bridge/internal/auth"
	"auth-bridge/internal/session"
)

// unexported, collision-proof context keys
type sessionIDContextKeyType struct{}
type userContextKeyType struct{}

var (
	sessionIDKey = sessionIDContextKeyType{}
	userKey      = userContextKeyType{}
)

// SessionIDFromContext returns the session attached by EnsureSession or
// LoadUser.
func SessionIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(sessionIDKey).(string)
	return id, ok && id != ""
}

// UserFromContext returns the identity attached by LoadUser; nil means
// anonymous.
func UserFromContext(ctx context.Context) *auth.Identity {
	u, _ := ctx.Value(userKey).(*auth.Identity)
	return u
}

// UserLookup resolves the identity bound to a session.
type UserLookup interface {
	CurrentUser(ctx context.Context, sessionID string) (*auth.Identity, error)
}

type SessionMiddleware struct {
	Store  session.Store
	Users  UserLookup
	TTL    time.Duration
	Logger *zap.Logger
}

func NewSessionMiddleware(store session.Store, users UserLookup, ttl time.Duration, logger *zap.Logger) *SessionMiddleware {
	return &SessionMiddleware{Store: store, Users: users, TTL: ttl, Logger: logger.Named("session")}
}

// EnsureSession guarantees the request carries a live session, creating
// one when the cookie is missing, unknown or expired. The cookie is
// re-issued to slide its expiry.
func (m *SessionMiddleware) EnsureSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		sid := session.ReadCookie(c.Request)

		if sid != "" {
			_, err := m.Store.Get(ctx, sid)
			switch {
			case errors.Is(err, session.ErrNotFound):
				sid = ""
			case err != nil:
				m.abort(c, err)
				return
			}
		}

		if sid == "" {
			var err error
			if sid, err = m.Store.Create(ctx); err != nil {
				m.abort(c, err)
				return
			}
		}

		session.SetCookie(c.Writer, sid, m.TTL)
		c.Request = c.Request.WithContext(context.WithValue(ctx, sessionIDKey, sid))
		c.Next()
	}
}

// LoadUser attaches the current identity, if any, without creating a
// session. Anonymous requests pass through.
func (m *SessionMiddleware) LoadUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		sid := session.ReadCookie(c.Request)
		if sid == "" {
			c.Next()
			return
		}

		u, err := m.Users.CurrentUser(ctx, sid)
		if err != nil {
			m.abort(c, err)
			return
		}

		ctx = context.WithValue(ctx, sessionIDKey, sid)
		if u != nil {
			session.SetCookie(c.Writer, sid, m.TTL)
			ctx = context.WithValue(ctx, userKey, u)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (m *SessionMiddleware) abort(c *gin.Context, err error) {
	m.Logger.Error("session store failure",
		zap.String("request_id", RequestIDFrom(c)),
		zap.Error(err),
	)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
		"error": "session unavailable",
	})
}
