// Package auth supplies bearer credentials for bulk API calls.
//
// A TokenProvider hands out a valid access token on demand and refreshes it
// transparently when it is missing or expired. The credential is the only
// mutable state shared between concurrent pipelines, so refresh is serialized
// by a mutex: many jobs sharing one provider trigger exactly one login.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Common errors returned by the auth package.
var (
	// ErrUnauthorized is returned when a call still fails with 401 after the
	// single transparent token refresh.
	ErrUnauthorized = errors.New("unauthorized after token refresh")
)

// LoginError represents a failed login attempt against the token endpoint.
type LoginError struct {
	StatusCode  int
	Code        string
	Description string
}

// Error implements the error interface.
func (e *LoginError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("login failed (status %d): %s: %s", e.StatusCode, e.Code, e.Description)
	}
	return fmt.Sprintf("login failed (status %d)", e.StatusCode)
}

// TokenProvider supplies a valid bearer token on demand.
type TokenProvider interface {
	// Token returns a valid access token, logging in transparently when no
	// unexpired token is held.
	Token(ctx context.Context) (string, error)

	// Invalidate drops the held token so the next Token call re-authenticates.
	Invalidate()
}

// StaticProvider wraps a fixed, externally managed token.
// Invalidate is a no-op; a rejected static token surfaces as ErrUnauthorized.
type StaticProvider string

// Token returns the fixed token.
func (p StaticProvider) Token(ctx context.Context) (string, error) {
	if p == "" {
		return "", errors.New("static token is empty")
	}
	return string(p), nil
}

// Invalidate is a no-op for static tokens.
func (p StaticProvider) Invalidate() {}

// Config holds credentials and behavior for the password-grant provider.
type Config struct {
	// LoginURL is the base URL of the login host, e.g. https://login.salesforce.com
	LoginURL string

	// ClientID and ClientSecret identify the connected app.
	ClientID     string
	ClientSecret string

	// Username and Password authenticate the integration user.
	Username string
	Password string

	// TokenTTL is the assumed validity of an issued token. The token endpoint
	// does not report a lifetime, so expiry is tracked client-side.
	TokenTTL time.Duration

	// Store optionally shares issued tokens across processes.
	Store *TokenStore

	// HTTPClient used for login calls (default: 30s timeout client).
	HTTPClient *http.Client
}

// DefaultTokenTTL matches the platform's default session timeout.
const DefaultTokenTTL = 2 * time.Hour

// PasswordProvider obtains tokens via the OAuth username-password flow
// and refreshes them on demand.
type PasswordProvider struct {
	config Config
	logger zerolog.Logger

	mu          sync.Mutex
	token       string
	instanceURL string
	expiresAt   time.Time
}

// NewPasswordProvider creates a provider for the given credentials.
func NewPasswordProvider(cfg Config) (*PasswordProvider, error) {
	if cfg.LoginURL == "" {
		return nil, fmt.Errorf("login URL is required")
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("client id is required")
	}
	if cfg.Username == "" || cfg.Password == "" {
		return nil, fmt.Errorf("username and password are required")
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}

	logger := log.With().Str("component", "auth").Logger()

	return &PasswordProvider{
		config: cfg,
		logger: logger,
	}, nil
}

// Token returns a valid access token, refreshing transparently when the held
// token is absent or expired.
func (p *PasswordProvider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token != "" && time.Now().Before(p.expiresAt) {
		return p.token, nil
	}

	// Try the shared store before logging in.
	if p.config.Store != nil {
		entry, err := p.config.Store.Get(ctx, p.storeKey())
		if err != nil && err != ErrTokenMiss {
			p.logger.Warn().Err(err).Msg("Token store get failed, falling back to login")
		}
		if err == nil {
			p.token = entry.AccessToken
			p.instanceURL = entry.InstanceURL
			p.expiresAt = entry.ExpiresAt
			p.logger.Debug().Time("expires_at", entry.ExpiresAt).Msg("Token loaded from store")
			return p.token, nil
		}
	}

	if err := p.login(ctx); err != nil {
		return "", err
	}

	return p.token, nil
}

// Invalidate drops the held token and its store entry so the next Token call
// performs a fresh login.
func (p *PasswordProvider) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.token = ""
	p.expiresAt = time.Time{}

	if p.config.Store != nil {
		if err := p.config.Store.Delete(context.Background(), p.storeKey()); err != nil {
			p.logger.Warn().Err(err).Msg("Token store delete failed")
		}
	}
}

// InstanceURL returns the instance URL reported by the last login.
// Empty until a token has been obtained.
func (p *PasswordProvider) InstanceURL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.instanceURL
}

// tokenResponse is the token endpoint's success payload.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	InstanceURL string `json:"instance_url"`
	TokenType   string `json:"token_type"`
}

// tokenErrorResponse is the token endpoint's failure payload.
type tokenErrorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
}

// login performs the password-grant call. Caller must hold p.mu.
func (p *PasswordProvider) login(ctx context.Context) error {
	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("client_id", p.config.ClientID)
	form.Set("client_secret", p.config.ClientSecret)
	form.Set("username", p.config.Username)
	form.Set("password", p.config.Password)

	endpoint := strings.TrimSuffix(p.config.LoginURL, "/") + "/services/oauth2/token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.config.HTTPClient.Do(req)
	if err != nil {
		loginsTotal.WithLabelValues("network_error").Inc()
		return fmt.Errorf("login request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body tokenErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&body)

		loginsTotal.WithLabelValues("failure").Inc()
		p.logger.Error().
			Int("status", resp.StatusCode).
			Str("error", body.Error).
			Msg("Login rejected")

		return &LoginError{
			StatusCode:  resp.StatusCode,
			Code:        body.Error,
			Description: body.Description,
		}
	}

	var body tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decode token response: %w", err)
	}
	if body.AccessToken == "" {
		return fmt.Errorf("token response missing access_token")
	}

	now := time.Now()
	p.token = body.AccessToken
	p.instanceURL = body.InstanceURL
	p.expiresAt = now.Add(p.config.TokenTTL)

	loginsTotal.WithLabelValues("success").Inc()
	p.logger.Info().
		Str("instance_url", body.InstanceURL).
		Time("expires_at", p.expiresAt).
		Msg("Login succeeded")

	if p.config.Store != nil {
		entry := &TokenEntry{
			AccessToken: body.AccessToken,
			InstanceURL: body.InstanceURL,
			IssuedAt:    now,
			ExpiresAt:   p.expiresAt,
		}
		if err := p.config.Store.Set(ctx, p.storeKey(), entry); err != nil {
			p.logger.Warn().Err(err).Msg("Token store set failed")
		}
	}

	return nil
}

// storeKey identifies the credential in the shared token store.
func (p *PasswordProvider) storeKey() string {
	host := p.config.LoginURL
	if u, err := url.Parse(p.config.LoginURL); err == nil && u.Host != "" {
		host = u.Host
	}
	return p.config.Username + "@" + host
}
