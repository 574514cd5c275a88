// Package crm is a small client for the Shopify Admin customer API. Only
// the calls needed to upsert a customer by email are implemented.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"auth-bridge/internal/config"
)

const accessTokenHeader = "X-Shopify-Access-Token"

// Customer is the subset of the CRM customer record this service reads and
// writes. Tags travel as one comma-separated string.
type Customer struct {
	ID               int64  `json:"id,omitempty"`
	Email            string `json:"email,omitempty"`
	FirstName        string `json:"first_name,omitempty"`
	LastName         string `json:"last_name,omitempty"`
	Tags             string `json:"tags"`
	VerifiedEmail    bool   `json:"verified_email,omitempty"`
	AcceptsMarketing bool   `json:"accepts_marketing,omitempty"`
}

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("crm: status %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the request may succeed when repeated.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

type Client struct {
	baseURL    string
	version    string
	token      string
	httpClient *http.Client

	maxRetries     uint64
	initialBackoff time.Duration

	logger *zap.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetry sets how often and how soon transient failures are retried.
func WithRetry(maxRetries uint64, initial time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.initialBackoff = initial
	}
}

func New(cfg config.CRMConfig, logger *zap.Logger, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" || cfg.AccessToken == "" {
		return nil, errors.New("crm: base url and access token are required")
	}
	c := &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		version:        cfg.APIVersion,
		token:          cfg.AccessToken,
		httpClient:     &http.Client{Timeout: cfg.Timeout},
		maxRetries:     3,
		initialBackoff: 250 * time.Millisecond,
		logger:         logger.Named("crm"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SearchByEmail returns customers whose email matches exactly, ignoring
// case. The remote search is fuzzy, so results are filtered here.
func (c *Client) SearchByEmail(ctx context.Context, email string) ([]Customer, error) {
	q := url.Values{}
	q.Set("query", "email:"+email)

	var resp struct {
		Customers []Customer `json:"customers"`
	}
	err := c.do(ctx, http.MethodGet, "/customers/search.json?"+q.Encode(), nil, &resp, true)
	if err != nil {
		return nil, err
	}

	matches := resp.Customers[:0]
	for _, cu := range resp.Customers {
		if strings.EqualFold(strings.TrimSpace(cu.Email), email) {
			matches = append(matches, cu)
		}
	}
	return matches, nil
}

// Create adds a new customer. It is only retried when the CRM rejected
// the request outright (429), so a retry can never create a duplicate.
func (c *Client) Create(ctx context.Context, cu Customer) (*Customer, error) {
	var resp struct {
		Customer Customer `json:"customer"`
	}
	body := map[string]Customer{"customer": cu}
	if err := c.do(ctx, http.MethodPost, "/customers.json", body, &resp, false); err != nil {
		return nil, err
	}
	return &resp.Customer, nil
}

// UpdateTags replaces the customer's tag string.
func (c *Client) UpdateTags(ctx context.Context, id int64, tags string) (*Customer, error) {
	var resp struct {
		Customer Customer `json:"customer"`
	}
	body := map[string]Customer{"customer": {ID: id, Tags: tags}}
	path := fmt.Sprintf("/customers/%d.json", id)
	if err := c.do(ctx, http.MethodPut, path, body, &resp, true); err != nil {
		return nil, err
	}
	return &resp.Customer, nil
}

func (c *Client) endpoint(path string) string {
	return fmt.Sprintf("%s/admin/api/%s%s", c.baseURL, c.version, path)
}

// do sends one logical request. idempotent requests are retried on any
// transient failure; others only on 429.
func (c *Client) do(ctx context.Context, method, path string, in, out any, idempotent bool) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("crm: encode request: %w", err)
		}
	}

	attempt := 0
	op := func() error {
		attempt++
		err := c.roundTrip(ctx, method, path, payload, out)
		if err == nil {
			return nil
		}

		var apiErr *APIError
		switch {
		case errors.As(err, &apiErr):
			if apiErr.StatusCode == http.StatusTooManyRequests || (idempotent && apiErr.Retryable()) {
				break
			}
			return backoff.Permanent(err)
		case ctx.Err() != nil:
			return backoff.Permanent(err)
		case !idempotent:
			return backoff.Permanent(err)
		}

		c.logger.Debug("crm request failed, retrying",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		return err
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.initialBackoff
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, c.maxRetries), ctx)

	return backoff.Retry(op, policy)
}

func (c *Client) roundTrip(ctx context.Context, method, path string, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), body)
	if err != nil {
		return fmt.Errorf("crm: build request: %w", err)
	}
	req.Header.Set(accessTokenHeader, c.token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("crm: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("crm: decode response: %w", err)
	}
	return nil
}
