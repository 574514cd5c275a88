package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"auth-bridge/internal/auth"
)

type namedProvider string

func (n namedProvider) Name() string                  { return string(n) }
func (n namedProvider) AuthCodeURL(_, _ string) string { return "" }
func (n namedProvider) ExchangeCode(context.Context, string, string) (auth.RawProfile, error) {
	return nil, nil
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(namedProvider("google"), namedProvider("facebook"))

	p, err := r.Get("google")
	require.NoError(t, err)
	require.Equal(t, "google", p.Name())

	_, err = r.Get("keycloak")
	require.Error(t, err)

	require.Equal(t, []string{"facebook", "google"}, r.Names())
}
