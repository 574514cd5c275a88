package facebook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	fbendpoint "golang.org/x/oauth2/facebook"

	"auth-bridge/internal/auth"
	"auth-bridge/internal/config"
)

const (
	providerName = "facebook"

	defaultGraphURL = "https://graph.facebook.com/me"
	profileFields   = "id,name,email,first_name,last_name,picture.type(large)"
	graphTimeout    = 10 * time.Second
)

type Provider struct {
	oauthConfig *oauth2.Config
	graphURL    string
	appSecret   string
	reauth      bool
	logger      *zap.Logger
}

// Option overrides a provider default.
type Option func(*Provider)

// WithEndpoints points the provider at alternative OAuth and Graph
// endpoints.
func WithEndpoints(authURL, tokenURL, graphURL string) Option {
	return func(p *Provider) {
		p.oauthConfig.Endpoint = oauth2.Endpoint{
			AuthURL:   authURL,
			TokenURL:  tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		}
		p.graphURL = graphURL
	}
}

func New(cfg config.ProviderConfig, logger *zap.Logger, opts ...Option) (*Provider, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RedirectURL == "" {
		return nil, errors.New("facebook oauth config missing required fields")
	}

	p := &Provider{
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     fbendpoint.Endpoint,
			Scopes:       []string{"public_profile", "email"},
		},
		graphURL:  defaultGraphURL,
		appSecret: cfg.ClientSecret,
		reauth:    cfg.ForceAccountChooser,
		logger:    logger.Named("facebook"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *Provider) Name() string {
	return providerName
}

// AuthCodeURL builds the Facebook login dialog URL with PKCE parameters.
// With account selection forced, Facebook re-prompts for credentials
// instead of silently reusing the browser's logged-in account.
func (p *Provider) AuthCodeURL(state string, codeChallenge string) string {
	opts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	}
	if p.reauth {
		opts = append(opts, oauth2.SetAuthURLParam("auth_type", "reauthenticate"))
	}
	return p.oauthConfig.AuthCodeURL(state, opts...)
}

// ExchangeCode redeems the code and fetches /me. Email is absent when the
// user declined the permission or has no confirmed address.
func (p *Provider) ExchangeCode(
	ctx context.Context,
	code string,
	codeVerifier string,
) (auth.RawProfile, error) {

	token, err := p.oauthConfig.Exchange(ctx, code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		return nil, fmt.Errorf("%w: facebook token exchange: %w", auth.ErrExchangeFailed, err)
	}
	if !token.Valid() {
		return nil, fmt.Errorf("%w: facebook returned an invalid token", auth.ErrExchangeFailed)
	}

	profile, err := p.fetchProfile(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", auth.ErrExchangeFailed, err)
	}
	if profile.ID == "" {
		return nil, fmt.Errorf("%w: facebook profile missing id", auth.ErrExchangeFailed)
	}

	p.logger.Debug("facebook profile fetched",
		zap.Bool("email_present", profile.Email != ""),
		zap.Bool("picture_present", profile.Picture != nil && !profile.Picture.Data.IsSilhouette),
	)

	return profile, nil
}

func (p *Provider) fetchProfile(ctx context.Context, token *oauth2.Token) (auth.FacebookProfile, error) {
	var profile auth.FacebookProfile

	u, err := url.Parse(p.graphURL)
	if err != nil {
		return profile, fmt.Errorf("facebook graph url: %w", err)
	}
	q := u.Query()
	q.Set("fields", profileFields)
	q.Set("appsecret_proof", appSecretProof(p.appSecret, token.AccessToken))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return profile, fmt.Errorf("facebook profile request: %w", err)
	}

	client := p.oauthConfig.Client(ctx, token)
	client.Timeout = graphTimeout

	resp, err := client.Do(req)
	if err != nil {
		return profile, fmt.Errorf("facebook profile request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return profile, fmt.Errorf("facebook profile: status %d: %s", resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return profile, fmt.Errorf("facebook profile decode: %w", err)
	}
	return profile, nil
}

// appSecretProof signs the access token with the app secret, as Graph
// requires when "Require App Secret" is enabled for the app.
func appSecretProof(secret, accessToken string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(accessToken))
	return hex.EncodeToString(mac.Sum(nil))
}
