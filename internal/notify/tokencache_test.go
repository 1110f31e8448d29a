package notify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type memoryPersister struct {
	tokens map[string]*oauth2.Token
}

func newMemoryPersister() *memoryPersister {
	return &memoryPersister{tokens: make(map[string]*oauth2.Token)}
}

func (m *memoryPersister) SaveToken(ctx context.Context, profile string, token *oauth2.Token) error {
	if token == nil {
		delete(m.tokens, profile)
		return nil
	}
	m.tokens[profile] = token
	return nil
}

func (m *memoryPersister) LoadToken(ctx context.Context, profile string) (*oauth2.Token, error) {
	return m.tokens[profile], nil
}

func TestGetTokenSilent_NoConfigFailsReauth(t *testing.T) {
	cache := NewTokenCache(newMemoryPersister())
	_, err := cache.GetTokenSilent(context.Background(), "absence")
	assert.ErrorIs(t, err, ErrReauthRequired)
}

func TestGetTokenSilent_ValidCachedTokenRefreshesCleanly(t *testing.T) {
	persister := newMemoryPersister()
	cache := NewTokenCache(persister)

	// A config with no refresh endpoint configured still round-trips a
	// not-yet-expired token through oauth2's static TokenSource path.
	cfg := &oauth2.Config{}
	cache.RegisterProfile("absence", cfg)

	valid := &oauth2.Token{AccessToken: "tok-1", Expiry: time.Now().Add(time.Hour)}
	require.NoError(t, cache.Store(context.Background(), "absence", valid))

	token, err := cache.GetTokenSilent(context.Background(), "absence")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)
}

func TestTokenReadyAndLogout(t *testing.T) {
	persister := newMemoryPersister()
	cache := NewTokenCache(persister)
	cache.RegisterProfile("absence", &oauth2.Config{})

	assert.False(t, cache.TokenReady("absence"))

	valid := &oauth2.Token{AccessToken: "tok-1", Expiry: time.Now().Add(time.Hour)}
	require.NoError(t, cache.Store(context.Background(), "absence", valid))
	assert.True(t, cache.TokenReady("absence"))

	require.NoError(t, cache.Logout(context.Background(), "absence"))
	assert.False(t, cache.TokenReady("absence"))
}
