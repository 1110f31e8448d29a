// Package notify holds the OAuth token cache, device-flow registry, and
// email dispatch ("Notifier", C6) the absence pipeline uses to reach
// Microsoft Graph. Ported from the Python ms_auth_cache.py/ms_email.py
// pair: one serializable token per named profile ("absence", "behaviour"),
// a background device-code polling flow, and best-effort send semantics —
// callers must never treat a Send failure as fatal to the caller's own
// operation.
package notify

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/oauth2"
)

// ErrReauthRequired is returned by GetTokenSilent when no cached token
// exists for the profile, or the cached refresh token no longer works.
var ErrReauthRequired = errors.New("notify: reauthentication required")

// TokenCache holds one oauth2.Token per named profile, refreshing
// transparently through the profile's configured oauth2.Config. The
// Load/Save hooks are backed by a Persister (internal/database stores one
// row per profile in the oauth_tokens table); the in-memory map here is the
// hot path both Load and Save flow through.
type TokenCache struct {
	mu      sync.Mutex
	configs map[string]*oauth2.Config
	tokens  map[string]*oauth2.Token
	persist Persister
}

// Persister durably stores/retrieves a profile's refresh token across
// process restarts. Implementations live in internal/database.
type Persister interface {
	SaveToken(ctx context.Context, profile string, token *oauth2.Token) error
	LoadToken(ctx context.Context, profile string) (*oauth2.Token, error)
}

// NewTokenCache constructs an empty TokenCache. Register each profile's
// oauth2.Config with RegisterProfile before use.
func NewTokenCache(persist Persister) *TokenCache {
	return &TokenCache{
		configs: make(map[string]*oauth2.Config),
		tokens:  make(map[string]*oauth2.Token),
		persist: persist,
	}
}

// RegisterProfile associates a named profile (e.g. "absence", "behaviour")
// with the oauth2.Config used to refresh its tokens.
func (c *TokenCache) RegisterProfile(profile string, cfg *oauth2.Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.configs[profile] = cfg
}

// GetTokenSilent returns a valid access token for profile, refreshing via
// the stored refresh token if the cached access token has expired. It
// fails with ErrReauthRequired if the cache is empty or the refresh fails,
// matching get_token_silent's behavior in the Python original.
func (c *TokenCache) GetTokenSilent(ctx context.Context, profile string) (string, error) {
	c.mu.Lock()
	cfg, hasConfig := c.configs[profile]
	token := c.tokens[profile]
	c.mu.Unlock()

	if !hasConfig {
		return "", ErrReauthRequired
	}

	if token == nil {
		loaded, err := c.persist.LoadToken(ctx, profile)
		if err != nil || loaded == nil {
			return "", ErrReauthRequired
		}
		token = loaded
	}

	source := cfg.TokenSource(ctx, token)
	refreshed, err := source.Token()
	if err != nil {
		return "", ErrReauthRequired
	}

	c.mu.Lock()
	c.tokens[profile] = refreshed
	c.mu.Unlock()

	if refreshed.RefreshToken != token.RefreshToken || refreshed.AccessToken != token.AccessToken {
		if err := c.persist.SaveToken(ctx, profile, refreshed); err != nil {
			return "", err
		}
	}

	return refreshed.AccessToken, nil
}

// Store installs token as the cached token for profile and persists it.
func (c *TokenCache) Store(ctx context.Context, profile string, token *oauth2.Token) error {
	c.mu.Lock()
	c.tokens[profile] = token
	c.mu.Unlock()
	return c.persist.SaveToken(ctx, profile, token)
}

// TokenReady reports whether a token is cached for profile without
// attempting a refresh.
func (c *TokenCache) TokenReady(profile string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokens[profile] != nil
}

// Logout discards the cached and persisted token for profile.
func (c *TokenCache) Logout(ctx context.Context, profile string) error {
	c.mu.Lock()
	delete(c.tokens, profile)
	c.mu.Unlock()
	return c.persist.SaveToken(ctx, profile, nil)
}
