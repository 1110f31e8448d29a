package database

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"golang.org/x/oauth2"
)

// ErrTokenNotFound is returned when no token row exists for a profile.
var ErrTokenNotFound = errors.New("database: no stored token for profile")

// OAuthTokenStore implements notify.Persister over a single oauth_tokens
// table, one row per named profile ("absence", "behaviour"), keyed
// globally rather than per-tenant since the Microsoft Graph app
// registration backing notify/drive is shared across tenants in a given
// deployment.
type OAuthTokenStore struct {
	pool *Pool
}

// NewOAuthTokenStore constructs an OAuthTokenStore over pool.
func NewOAuthTokenStore(pool *Pool) *OAuthTokenStore {
	return &OAuthTokenStore{pool: pool}
}

// SaveToken upserts the token for profile.
func (s *OAuthTokenStore) SaveToken(ctx context.Context, profile string, token *oauth2.Token) error {
	raw, err := json.Marshal(token)
	if err != nil {
		return err
	}
	const q = `
		INSERT INTO oauth_tokens (profile, token, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (profile) DO UPDATE SET token = EXCLUDED.token, updated_at = now()`
	_, err = s.pool.Exec(ctx, q, profile, raw)
	return err
}

// LoadToken returns the stored token for profile, or ErrTokenNotFound.
func (s *OAuthTokenStore) LoadToken(ctx context.Context, profile string) (*oauth2.Token, error) {
	const q = `SELECT token FROM oauth_tokens WHERE profile = $1`
	var raw []byte
	err := s.pool.QueryRow(ctx, q, profile).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	var token oauth2.Token
	if err := json.Unmarshal(raw, &token); err != nil {
		return nil, err
	}
	return &token, nil
}
