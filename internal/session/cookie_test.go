package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClearCookieMatchesSetAttributes(t *testing.T) {
	set := httptest.NewRecorder()
	SetCookie(set, "abc", 24*time.Hour)
	unset := httptest.NewRecorder()
	ClearCookie(unset)

	issued := set.Result().Cookies()
	cleared := unset.Result().Cookies()
	require.Len(t, issued, 1)
	require.Len(t, cleared, 1)

	a, b := issued[0], cleared[0]
	require.Equal(t, a.Name, b.Name)
	require.Equal(t, a.Path, b.Path)
	require.Equal(t, a.Domain, b.Domain)
	require.Equal(t, a.Secure, b.Secure)
	require.Equal(t, a.HttpOnly, b.HttpOnly)
	require.Equal(t, a.SameSite, b.SameSite)

	require.Equal(t, http.SameSiteNoneMode, a.SameSite)
	require.True(t, a.Secure)
	require.True(t, a.HttpOnly)
	require.Equal(t, 86400, a.MaxAge)
	require.Equal(t, -1, b.MaxAge)
	require.Empty(t, b.Value)
}

func TestReadCookieRejectsMalformed(t *testing.T) {
	id, err := GenerateID()
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: CookieName, Value: id})
	require.Equal(t, id, ReadCookie(r))

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: CookieName, Value: "session:*"})
	require.Empty(t, ReadCookie(r))

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	require.Empty(t, ReadCookie(r))
}
