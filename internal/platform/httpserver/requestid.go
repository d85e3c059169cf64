package httpserver

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

type requestIDKey struct{}

// maxRequestIDLen bounds caller-supplied correlation ids so a hostile
// client cannot bloat every log line for the request.
const maxRequestIDLen = 64

// RequestIDFromContext returns the correlation id for the request, or ""
// outside the middleware.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// RequestIDMiddleware adopts the caller's correlation id from header, or
// mints one, then stores it on the context and echoes it back on the
// response.
func RequestIDMiddleware(header string) func(next http.Handler) http.Handler {
	if strings.TrimSpace(header) == "" {
		header = "X-Request-Id"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get(header))
			switch {
			case id == "":
				id = uuid.NewString()
			case len(id) > maxRequestIDLen:
				id = id[:maxRequestIDLen]
			}
			w.Header().Set(header, id)
			ctx := context.WithValue(r.Context(), requestIDKey{}, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
