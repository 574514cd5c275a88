package provider

import (
	"context"

	"auth-bridge/internal/auth"
)

// OAuthProvider is the contract every external auth provider implements.
// Implementations return raw profile facts only and make no session or
// user decisions.
type OAuthProvider interface {
	// Name returns the provider identifier used in routes ("google").
	Name() string

	// AuthCodeURL returns the authorization URL. State and the PKCE S256
	// challenge are produced by the caller.
	AuthCodeURL(state string, codeChallenge string) string

	// ExchangeCode trades the authorization code for tokens and fetches
	// the user's profile. Errors wrap auth.ErrExchangeFailed.
	ExchangeCode(
		ctx context.Context,
		code string,
		codeVerifier string,
	) (auth.RawProfile, error)
}
