package handlers

import (
	"net/http"
	"strings"

	"restaurant-orders/internal/common/auth"
	"restaurant-orders/internal/domain"
)

// Authenticate puts the bearer token's identity on the request context.
// Requests without a token pass through; the service rejects them as Unauthorized.
func Authenticate(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				writeError(w, domain.Unauthorized("authorization header must be a bearer token"))
				return
			}
			id, err := auth.ParseToken(secret, strings.TrimSpace(token))
			if err != nil {
				writeError(w, domain.Unauthorized("invalid or expired token"))
				return
			}
			next.ServeHTTP(w, r.WithContext(domain.WithIdentity(r.Context(), id)))
		})
	}
}
