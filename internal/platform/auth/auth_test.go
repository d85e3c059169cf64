package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

var verifierSecret = []byte("watchsync-shared-secret-0123456789ab")

func signToken(t *testing.T, secret []byte, sub, role string, ttl time.Duration) string {
	t.Helper()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Role: role,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

// ─── Parse ──────────────────────────────────────────────────────────────────

func TestParse_GoodToken(t *testing.T) {
	v := JWTVerifier{Secret: verifierSecret}
	claims, err := v.Parse(signToken(t, verifierSecret, "device-7", "admin", time.Hour))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "device-7" || claims.Role != "admin" {
		t.Fatalf("got subject=%q role=%q", claims.Subject, claims.Role)
	}
}

func TestParse_Rejections(t *testing.T) {
	v := JWTVerifier{Secret: verifierSecret}

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "device-7",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign unsigned token: %v", err)
	}

	cases := []struct {
		name string
		raw  string
	}{
		{"expired", signToken(t, verifierSecret, "device-7", "", -time.Minute)},
		{"wrong secret", signToken(t, []byte("not-the-shared-secret"), "device-7", "", time.Hour)},
		{"no subject", signToken(t, verifierSecret, "", "", time.Hour)},
		{"unsigned algorithm", unsigned},
		{"garbage", "zzz.zzz.zzz"},
		{"empty", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := v.Parse(tc.raw); err == nil {
				t.Fatal("expected parse error")
			}
		})
	}
}

func TestParse_TamperedSignature(t *testing.T) {
	tok := signToken(t, verifierSecret, "device-7", "", time.Hour)
	cut := strings.LastIndex(tok, ".")
	if _, err := (JWTVerifier{Secret: verifierSecret}).Parse(tok[:cut+1] + "AAAA"); err == nil {
		t.Fatal("expected parse error for swapped signature")
	}
}

// ─── RequireUser ────────────────────────────────────────────────────────────

func authRequest(authz string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/v1/resume", nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	return req
}

func TestRequireUser_PassesIdentityThrough(t *testing.T) {
	var gotUID, gotRole string
	h := RequireUser(JWTVerifier{Secret: verifierSecret})(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		gotUID, _ = UserIDFromContext(r.Context())
		gotRole, _ = RoleFromContext(r.Context())
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authRequest("Bearer "+signToken(t, verifierSecret, "device-7", "admin", time.Hour)))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if gotUID != "device-7" || gotRole != "admin" {
		t.Fatalf("context got uid=%q role=%q", gotUID, gotRole)
	}
}

func TestRequireUser_SchemeIsCaseInsensitive(t *testing.T) {
	rr := httptest.NewRecorder()
	RequireUser(JWTVerifier{Secret: verifierSecret})(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
	})).ServeHTTP(rr, authRequest("bearer "+signToken(t, verifierSecret, "device-7", "", time.Hour)))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for lowercase scheme, got %d", rr.Code)
	}
}

func TestRequireUser_Unauthorized(t *testing.T) {
	cases := []struct {
		name  string
		authz string
	}{
		{"no header", ""},
		{"basic scheme", "Basic ZGV2aWNlOnB3"},
		{"bare token", signToken(t, verifierSecret, "device-7", "", time.Hour)},
		{"expired token", "Bearer " + signToken(t, verifierSecret, "device-7", "", -time.Minute)},
		{"subjectless token", "Bearer " + signToken(t, verifierSecret, "", "", time.Hour)},
		{"garbage token", "Bearer nope"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			RequireUser(JWTVerifier{Secret: verifierSecret})(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
				t.Error("handler must not run")
			})).ServeHTTP(rr, authRequest(tc.authz))
			if rr.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rr.Code)
			}
		})
	}
}

// ─── RequireRole / RequireAdmin ─────────────────────────────────────────────

func roleRequest(role string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/v1/ops/sync/flush", nil)
	if role != "" {
		req = req.WithContext(context.WithValue(req.Context(), ctxKeyRole{}, role))
	}
	return req
}

func TestRequireAdmin(t *testing.T) {
	cases := []struct {
		name string
		role string
		want int
	}{
		{"admin", "admin", http.StatusOK},
		{"mixed case", "Admin", http.StatusOK},
		{"viewer", "viewer", http.StatusForbidden},
		{"no role", "", http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			})).ServeHTTP(rr, roleRequest(tc.role))
			if rr.Code != tc.want {
				t.Fatalf("role %q: expected %d, got %d", tc.role, tc.want, rr.Code)
			}
		})
	}
}

func TestRequireRole_CustomRole(t *testing.T) {
	rr := httptest.NewRecorder()
	RequireRole("operator")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})).ServeHTTP(rr, roleRequest("operator"))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
}
