package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func setBaseEnv(t *testing.T) {
	t.Setenv("DEFAULT_REDIRECT_URL", "https://app.example.com/")
	t.Setenv("GOOGLE_CLIENT_ID", "google-id")
	t.Setenv("GOOGLE_CLIENT_SECRET", "google-secret")
	t.Setenv("GOOGLE_REDIRECT_URL", "https://auth.example.com/auth/google/callback")
}

func TestLoadDefaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()

	require.NoError(t, err)
	require.Equal(t, "10000", cfg.App.Port)
	require.Equal(t, 24*time.Hour, cfg.Session.TTL)
	require.Equal(t, "redis", cfg.Session.Backend)
	require.Equal(t, "https://app.example.com/", cfg.App.LogoutRedirectURL)
	require.Equal(t, "OAuth", cfg.CRM.MarkerTag)
	require.True(t, cfg.Google.Enabled())
	require.False(t, cfg.Facebook.Enabled())
	require.False(t, cfg.CRM.Enabled())
}

func TestLoadParsesLists(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("REDIRECT_ALLOWED_ORIGINS", "https://app.example.com,https://shop.example.com")

	cfg, err := Load()

	require.NoError(t, err)
	require.Equal(t, []string{"https://app.example.com", "https://shop.example.com"}, cfg.App.AllowedOrigins)
}

func TestLoadRequiresProvider(t *testing.T) {
	t.Setenv("DEFAULT_REDIRECT_URL", "https://app.example.com/")

	_, err := Load()

	require.Error(t, err)
}

func TestLoadRequiresSecretWithClientID(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("FACEBOOK_CLIENT_ID", "fb-id")

	_, err := Load()

	require.Error(t, err)
}

func TestLoadPostgresNeedsDSN(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("SESSION_BACKEND", "postgres")

	_, err := Load()

	require.Error(t, err)
}
