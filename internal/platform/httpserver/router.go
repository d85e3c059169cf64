package httpserver

import (
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterConfig tunes the shared router setup. The zero value serves.
type RouterConfig struct {
	// ReadyFunc backs /readyz: a non-nil error answers 503 with the
	// error text so probes can see why the daemon is not ready.
	ReadyFunc func() error
	// Middlewares run after the built-in request-id, recovery and CORS
	// chain. chi refuses Use once a route is registered, so they must
	// arrive here.
	Middlewares []func(http.Handler) http.Handler
}

// SetupRouter attaches the base middleware chain and the health
// endpoints. Call it before registering routes.
func SetupRouter(r chi.Router, cfg ...RouterConfig) {
	var rc RouterConfig
	if len(cfg) > 0 {
		rc = cfg[0]
	}

	r.Use(RequestIDMiddleware("X-Request-Id"))
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware())
	for _, mw := range rc.Middlewares {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", readyHandler(rc.ReadyFunc))
}

// corsMiddleware builds the origin allowlist from CORS_ALLOWED_ORIGINS.
// Playback surfaces run inside arbitrary embedding pages, so an empty
// allowlist falls back to wildcard rather than refusing everyone.
func corsMiddleware() func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: parseCORSOrigins(os.Getenv("CORS_ALLOWED_ORIGINS")),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	})
}

func readyHandler(ready func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if ready != nil {
			if err := ready(); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		_, _ = w.Write([]byte("ready"))
	}
}

// parseCORSOrigins splits the comma separated allowlist; empty means any
// origin.
func parseCORSOrigins(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
