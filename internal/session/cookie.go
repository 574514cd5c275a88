package session

import (
	"net/http"
	"time"
)

const (
	CookieName = "__Host-session"
)

// cookie is the single source of the session cookie attributes. Set and
// Clear both start from it: browsers ignore a clearing cookie whose Path,
// Secure or SameSite differ from the one that was set.
func cookie(value string) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/", // required for __Host-
		HttpOnly: true,
		Secure:   true,
		// the frontend lives on another site and sends credentials
		SameSite: http.SameSiteNoneMode,
	}
}

// SetCookie issues (or slides) the session cookie.
func SetCookie(w http.ResponseWriter, sessionID string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := cookie(sessionID)
	c.Expires = time.Now().Add(ttl)
	c.MaxAge = int(ttl.Seconds())
	http.SetCookie(w, c)
}

// ClearCookie removes the session cookie from the client.
func ClearCookie(w http.ResponseWriter) {
	c := cookie("")
	c.Expires = time.Unix(0, 0)
	c.MaxAge = -1
	http.SetCookie(w, c)
}

// ReadCookie returns the session id presented by the client, or "".
func ReadCookie(r *http.Request) string {
	c, err := r.Cookie(CookieName)
	if err != nil || !ValidID(c.Value) {
		return ""
	}
	return c.Value
}
