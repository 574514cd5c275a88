package facebook

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"auth-bridge/internal/auth"
	"auth-bridge/internal/config"
)

var testConfig = config.ProviderConfig{
	ClientID:            "fb-app",
	ClientSecret:        "fb-secret",
	RedirectURL:         "https://auth.example.com/auth/facebook/callback",
	ForceAccountChooser: true,
}

type graphServer struct {
	*httptest.Server
	profileBody   string
	profileStatus int
	gotVerifier   string
}

func newGraphServer(t *testing.T) *graphServer {
	t.Helper()
	gs := &graphServer{profileStatus: http.StatusOK}

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.PostForm.Get("code") != "good-code" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		gs.gotVerifier = r.PostForm.Get("code_verifier")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-1","token_type":"bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-1" ||
			r.URL.Query().Get("appsecret_proof") != appSecretProof("fb-secret", "tok-1") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(gs.profileStatus)
		_, _ = w.Write([]byte(gs.profileBody))
	})

	gs.Server = httptest.NewServer(mux)
	t.Cleanup(gs.Close)
	return gs
}

func (gs *graphServer) provider(t *testing.T) *Provider {
	t.Helper()
	p, err := New(testConfig, zap.NewNop(),
		WithEndpoints(gs.URL+"/dialog/oauth", gs.URL+"/oauth/access_token", gs.URL+"/me"))
	require.NoError(t, err)
	return p
}

func TestAuthCodeURL(t *testing.T) {
	p, err := New(testConfig, zap.NewNop())
	require.NoError(t, err)

	u, err := url.Parse(p.AuthCodeURL("state-9", "challenge-9"))
	require.NoError(t, err)
	q := u.Query()

	require.Equal(t, "www.facebook.com", u.Host)
	require.Equal(t, "fb-app", q.Get("client_id"))
	require.Equal(t, "state-9", q.Get("state"))
	require.Equal(t, "public_profile email", q.Get("scope"))
	require.Equal(t, "challenge-9", q.Get("code_challenge"))
	require.Equal(t, "reauthenticate", q.Get("auth_type"))
}

func TestExchangeCodeReturnsProfile(t *testing.T) {
	gs := newGraphServer(t)
	gs.profileBody = `{"id":"10001","name":"Ada Lovelace","email":"Ada@Example.com",
		"picture":{"data":{"url":"https://cdn.example.com/ada.jpg","is_silhouette":false}}}`

	raw, err := gs.provider(t).ExchangeCode(context.Background(), "good-code", "verifier-1")
	require.NoError(t, err)
	require.Equal(t, "verifier-1", gs.gotVerifier)

	profile, ok := raw.(auth.FacebookProfile)
	require.True(t, ok)
	require.Equal(t, "10001", profile.ID)

	id := auth.Normalize(raw)
	require.Equal(t, "ada@example.com", id.Email)
	require.Equal(t, "https://cdn.example.com/ada.jpg", id.AvatarURL)
	require.Equal(t, "facebook", id.Provider)
}

func TestExchangeCodeWithoutEmail(t *testing.T) {
	gs := newGraphServer(t)
	gs.profileBody = `{"id":"10002","name":"No Mail"}`

	raw, err := gs.provider(t).ExchangeCode(context.Background(), "good-code", "v")
	require.NoError(t, err)
	require.False(t, auth.Normalize(raw).HasEmail())
}

func TestExchangeCodeFailures(t *testing.T) {
	t.Run("bad code", func(t *testing.T) {
		gs := newGraphServer(t)
		_, err := gs.provider(t).ExchangeCode(context.Background(), "bad-code", "v")
		require.True(t, errors.Is(err, auth.ErrExchangeFailed))
	})

	t.Run("graph error", func(t *testing.T) {
		gs := newGraphServer(t)
		gs.profileStatus = http.StatusInternalServerError
		gs.profileBody = `{"error":{"message":"boom"}}`
		_, err := gs.provider(t).ExchangeCode(context.Background(), "good-code", "v")
		require.True(t, errors.Is(err, auth.ErrExchangeFailed))
	})

	t.Run("missing id", func(t *testing.T) {
		gs := newGraphServer(t)
		gs.profileBody = `{"name":"Ghost"}`
		_, err := gs.provider(t).ExchangeCode(context.Background(), "good-code", "v")
		require.True(t, errors.Is(err, auth.ErrExchangeFailed))
	})
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(config.ProviderConfig{ClientID: "x"}, zap.NewNop())
	require.Error(t, err)
}
