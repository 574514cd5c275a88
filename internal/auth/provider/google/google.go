package google

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"auth-bridge/internal/auth"
	"auth-bridge/internal/config"
)

const (
	providerName = "google"
	issuer       = "https://accounts.google.com"
)

type Provider struct {
	oauthConfig   *oauth2.Config
	verifier      *oidc.IDTokenVerifier
	chooseAccount bool
	logger        *zap.Logger
}

// New discovers Google's OIDC configuration and builds the provider.
func New(ctx context.Context, cfg config.ProviderConfig, logger *zap.Logger) (*Provider, error) {
	return newWithIssuer(ctx, cfg, issuer, logger)
}

func newWithIssuer(ctx context.Context, cfg config.ProviderConfig, issuerURL string, logger *zap.Logger) (*Provider, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RedirectURL == "" {
		return nil, errors.New("google oauth config missing required fields")
	}

	oidcProvider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to init google oidc provider: %w", err)
	}

	return &Provider{
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     oidcProvider.Endpoint(),
			Scopes: []string{
				oidc.ScopeOpenID,
				"profile",
				"email",
			},
		},
		verifier: oidcProvider.Verifier(&oidc.Config{
			ClientID: cfg.ClientID,
		}),
		chooseAccount: cfg.ForceAccountChooser,
		logger:        logger.Named("google"),
	}, nil
}

// Name returns the provider identifier used by the registry.
func (p *Provider) Name() string {
	return providerName
}

// AuthCodeURL builds the OAuth authorization URL with PKCE parameters.
func (p *Provider) AuthCodeURL(state string, codeChallenge string) string {
	opts := []oauth2.AuthCodeOption{
		oauth2.AccessTypeOnline,
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	}
	if p.chooseAccount {
		opts = append(opts, oauth2.SetAuthURLParam("prompt", "select_account"))
	}
	return p.oauthConfig.AuthCodeURL(state, opts...)
}

// ExchangeCode redeems the code and returns the verified ID token claims.
// Email and picture are optional; only the subject is required.
func (p *Provider) ExchangeCode(
	ctx context.Context,
	code string,
	codeVerifier string,
) (auth.RawProfile, error) {

	token, err := p.oauthConfig.Exchange(ctx, code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		return nil, fmt.Errorf("%w: google token exchange: %w", auth.ErrExchangeFailed, err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, fmt.Errorf("%w: google did not return id_token", auth.ErrExchangeFailed)
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("%w: google id_token verification: %w", auth.ErrExchangeFailed, err)
	}

	var claims auth.GoogleProfile
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: google id_token claims: %w", auth.ErrExchangeFailed, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: google id_token missing subject", auth.ErrExchangeFailed)
	}

	p.logger.Debug("google oidc verified",
		zap.String("issuer", idToken.Issuer),
		zap.Bool("email_present", claims.Email != ""),
		zap.Bool("email_verified", claims.EmailVerified),
		zap.Time("expiry", idToken.Expiry),
	)

	return claims, nil
}
