package auth

import (
	"net/http"
	"strings"

	"github.com/example/watchsync/internal/platform/api"
	"github.com/example/watchsync/internal/platform/httpserver"
)

// RequireRole gates a route on the role claim RequireUser extracted.
// Matching is case-insensitive; a request without a role always fails.
func RequireRole(role string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, _ := RoleFromContext(r.Context())
			if !strings.EqualFold(strings.TrimSpace(got), role) {
				api.Forbidden(w, "FORBIDDEN", "Insufficient role", httpserver.RequestIDFromContext(r.Context()))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin guards the ops endpoints.
func RequireAdmin(next http.Handler) http.Handler {
	return RequireRole("admin")(next)
}
