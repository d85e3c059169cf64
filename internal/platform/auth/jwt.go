// Package auth verifies the bearer tokens the companion apps mint for
// their users. Verification is HS256 with a shared secret; the daemon
// never issues tokens itself.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/example/watchsync/internal/platform/api"
	"github.com/example/watchsync/internal/platform/httpserver"
)

var errEmptySubject = errors.New("token has no subject")

// Claims is the token payload watchsync understands: the registered
// claims plus a role used to gate the ops endpoints.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// JWTVerifier checks HS256 signatures against a shared secret.
type JWTVerifier struct {
	Secret []byte
}

// Parse validates raw and returns its claims. Signature, expiry and
// algorithm failures all surface as errors; so does an empty subject,
// since every accepted token must name a caller.
func (v JWTVerifier) Parse(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, v.key,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, errEmptySubject
	}
	return claims, nil
}

func (v JWTVerifier) key(*jwt.Token) (any, error) { return v.Secret, nil }

// RequireUser rejects requests without a valid bearer token and stores
// the token's subject (and role, if present) on the request context.
func RequireUser(verifier JWTVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rid := httpserver.RequestIDFromContext(r.Context())

			scheme, raw, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") {
				api.Unauthorized(w, "UNAUTHORIZED", "Bearer token required", rid)
				return
			}
			claims, err := verifier.Parse(strings.TrimSpace(raw))
			if err != nil {
				api.Unauthorized(w, "UNAUTHORIZED", "Invalid or expired token", rid)
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeyUserID{}, claims.Subject)
			if role := strings.TrimSpace(claims.Role); role != "" {
				ctx = context.WithValue(ctx, ctxKeyRole{}, role)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type ctxKeyUserID struct{}
type ctxKeyRole struct{}

// UserIDFromContext returns the subject RequireUser stored, or false
// outside the middleware.
func UserIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ctxKeyUserID{}).(string)
	return v, ok
}

// WithUserID returns a context carrying uid. Handler tests use it to
// bypass the middleware.
func WithUserID(ctx context.Context, uid string) context.Context {
	return context.WithValue(ctx, ctxKeyUserID{}, uid)
}

// RoleFromContext returns the role claim, when the token carried one.
func RoleFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ctxKeyRole{}).(string)
	return v, ok
}
