package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/barber-booking/internal/identity"
)

type failingResolver struct{}

func (failingResolver) ResolveUser(context.Context, string) (identity.User, error) {
	return identity.User{}, errors.New("jwks fetch timed out")
}

func TestAuthenticateStoresUser(t *testing.T) {
	resolver := identity.NewStaticResolver().Add("tok-1", identity.User{ID: "client-1", Role: identity.RoleClient})
	var got identity.User
	handler := Authenticate(resolver, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ok bool
		got, ok = identity.UserFromContext(r.Context())
		require.True(t, ok)
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/me/points", nil)
	req.Header.Set("Authorization", "Bearer tok-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "client-1", got.ID)
	assert.Equal(t, identity.RoleClient, got.Role)
}

func TestAuthenticateRejects(t *testing.T) {
	resolver := identity.NewStaticResolver().Add("tok-1", identity.User{ID: "client-1", Role: identity.RoleClient})
	cases := []struct {
		name     string
		header   string
		resolver identity.Resolver
		want     int
	}{
		{"missing header", "", resolver, http.StatusUnauthorized},
		{"wrong scheme", "Basic dXNlcjpwYXNz", resolver, http.StatusUnauthorized},
		{"unknown token", "Bearer nope", resolver, http.StatusUnauthorized},
		{"resolver down", "Bearer tok-1", failingResolver{}, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			called := false
			handler := Authenticate(tc.resolver, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			}))
			req := httptest.NewRequest(http.MethodPost, "/appointments", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.False(t, called)
			assert.Equal(t, tc.want, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		})
	}
}
