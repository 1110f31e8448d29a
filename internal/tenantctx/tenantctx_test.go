package tenantctx

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithTenant_FromContext_RoundTrips(t *testing.T) {
	id := uuid.New()
	ctx := WithTenant(t.Context(), id)

	got, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, id, got)
}

func TestFromContext_MissingReturnsFalse(t *testing.T) {
	_, ok := FromContext(t.Context())
	assert.False(t, ok)
}

func TestRequire_ErrorsWithoutTenant(t *testing.T) {
	_, err := Require(t.Context())
	assert.ErrorIs(t, err, ErrNoTenant)
}

func TestMiddleware_ResolvesFromHeader(t *testing.T) {
	id := uuid.New()
	var resolved uuid.UUID
	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resolved, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("POST", "/external/leave-approvals", nil)
	req.Header.Set(HeaderName, id.String())
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, id, resolved)
}

func TestMiddleware_PassesThroughWithoutTenant(t *testing.T) {
	called := false
	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		_, ok := FromContext(r.Context())
		assert.False(t, ok)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.True(t, called)
}

func TestMiddleware_IgnoresMalformedHeader(t *testing.T) {
	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok := FromContext(r.Context())
		assert.False(t, ok)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(HeaderName, "not-a-uuid")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
}
