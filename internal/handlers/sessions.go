package handlers

import (
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/example/watchsync/internal/engine"
	"github.com/example/watchsync/internal/platform/api"
	"github.com/example/watchsync/internal/platform/httpserver"
	"github.com/example/watchsync/internal/platform/metrics"
	"github.com/example/watchsync/internal/progress"
	"github.com/example/watchsync/internal/session"
	"github.com/example/watchsync/internal/surface"
)

type openSessionReq struct {
	CatalogID   string `json:"catalog_id"`
	Kind        string `json:"kind"`
	Season      int    `json:"season"`
	Episode     int    `json:"episode"`
	Title       string `json:"title"`
	PosterRef   string `json:"poster_ref"`
	BackdropRef string `json:"backdrop_ref"`
}

// OpenSession registers a new playback session for one piece of content and
// returns its id. The surface sends subsequent events against that id.
func OpenSession(reg *session.Registry, eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())

		var req openSessionReq
		if !decodeJSON(w, r, rid, &req) {
			return
		}
		key := progress.ContentKey{
			CatalogID: strings.TrimSpace(req.CatalogID),
			Kind:      progress.MediaKind(strings.TrimSpace(req.Kind)),
			Season:    req.Season,
			Episode:   req.Episode,
		}
		if !key.Valid() {
			api.BadRequest(w, "INVALID_KEY", "catalog_id and kind are required; tv keys need season and episode >= 1", rid, nil)
			return
		}

		id := reg.Open(eng.NewSession(engine.SessionOptions{
			Key:         key,
			Title:       strings.TrimSpace(req.Title),
			PosterRef:   strings.TrimSpace(req.PosterRef),
			BackdropRef: strings.TrimSpace(req.BackdropRef),
		}))
		api.WriteJSON(w, http.StatusCreated, map[string]any{"session_id": id})
	}
}

// CloseSession flushes and drops a playback session. Callers often fire this
// from a pagehide beacon, so an unknown id still answers 204.
func CloseSession(reg *session.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reg.Close(chi.URLParam(r, "session_id"))
		w.WriteHeader(http.StatusNoContent)
	}
}

// IngestEvent feeds one surface message into the session's reconciler.
// Malformed payloads are counted and dropped with 204: nothing the player
// sends here may ever surface as a playback error.
func IngestEvent(reg *session.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())

		sess, ok := reg.Get(chi.URLParam(r, "session_id"))
		if !ok {
			api.NotFound(w, "SESSION_NOT_FOUND", "Unknown or expired session", rid)
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
		if err != nil {
			metrics.EventsDropped.WithLabelValues("malformed").Inc()
			w.WriteHeader(http.StatusNoContent)
			return
		}
		ev, err := surface.Decode(body)
		if err != nil {
			metrics.EventsDropped.WithLabelValues("malformed").Inc()
			w.WriteHeader(http.StatusNoContent)
			return
		}

		sess.HandleEvent(ev)
		w.WriteHeader(http.StatusNoContent)
	}
}
