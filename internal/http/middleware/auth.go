package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/wolfman30/barber-booking/internal/identity"
	"github.com/wolfman30/barber-booking/pkg/logging"
)

// Authenticate resolves the bearer token through resolver and stores the
// caller on the request context. Requests without a valid token get 401.
func Authenticate(resolver identity.Resolver, logger *logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
				unauthorized(w, "missing authorization header")
				return
			}
			user, err := resolver.ResolveUser(r.Context(), strings.TrimPrefix(auth, "Bearer "))
			if errors.Is(err, identity.ErrUnauthenticated) {
				unauthorized(w, "invalid token")
				return
			}
			if err != nil {
				logger.Error("identity lookup failed", "error", err, "path", r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "identity service unavailable"})
				return
			}
			next.ServeHTTP(w, r.WithContext(identity.WithUser(r.Context(), user)))
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="barber-booking"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
