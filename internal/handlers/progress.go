package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/example/watchsync/internal/engine"
	"github.com/example/watchsync/internal/platform/api"
	"github.com/example/watchsync/internal/platform/httpserver"
	"github.com/example/watchsync/internal/progress"
)

// Resume answers the position a player should seek to before starting
// playback: 0 for unknown or completed content.
func Resume(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())

		key, ok := keyFromQuery(w, r, rid)
		if !ok {
			return
		}
		api.WriteJSON(w, http.StatusOK, map[string]any{
			"key":              key.String(),
			"position_seconds": eng.Resume(key),
		})
	}
}

type continueItem struct {
	Key             string  `json:"key"`
	CatalogID       string  `json:"catalog_id"`
	Kind            string  `json:"kind"`
	Season          int     `json:"season,omitempty"`
	Episode         int     `json:"episode,omitempty"`
	PositionSeconds float64 `json:"position_seconds"`
	DurationSeconds float64 `json:"duration_seconds"`
	Percent         float64 `json:"percent"`
	Completed       bool    `json:"completed"`
	Title           string  `json:"title,omitempty"`
	PosterRef       string  `json:"poster_ref,omitempty"`
	BackdropRef     string  `json:"backdrop_ref,omitempty"`
	UpdatedAtMs     int64   `json:"updated_at_ms"`
}

// ContinueWatching lists the most recently touched records, newest first.
func ContinueWatching(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())

		limit := 0
		if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				api.BadRequest(w, "INVALID_LIMIT", "limit must be a non-negative integer", rid, nil)
				return
			}
			limit = n
		}

		recs := eng.ContinueWatching(limit)
		items := make([]continueItem, 0, len(recs))
		for _, rec := range recs {
			items = append(items, continueItem{
				Key:             rec.Key.String(),
				CatalogID:       rec.Key.CatalogID,
				Kind:            string(rec.Key.Kind),
				Season:          rec.Key.Season,
				Episode:         rec.Key.Episode,
				PositionSeconds: rec.PositionSeconds,
				DurationSeconds: rec.DurationSeconds,
				Percent:         rec.Percent(),
				Completed:       rec.Completed,
				Title:           rec.Title,
				PosterRef:       rec.PosterRef,
				BackdropRef:     rec.BackdropRef,
				UpdatedAtMs:     rec.UpdatedAtMs,
			})
		}
		api.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
	}
}

// RemoveProgress drops one record, the "remove from continue watching"
// action. Removing an absent record is a no-op.
func RemoveProgress(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())

		key, ok := keyFromQuery(w, r, rid)
		if !ok {
			return
		}
		if err := eng.RemoveProgress(key); err != nil {
			api.Internal(w, rid)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ResetCompletion clears the completion latch so the title can be rewatched
// with progress tracking from zero.
func ResetCompletion(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())

		var req contentKeyReq
		if !decodeJSON(w, r, rid, &req) {
			return
		}
		key := req.key()
		if !key.Valid() {
			api.BadRequest(w, "INVALID_KEY", "catalog_id and kind are required; tv keys need season and episode >= 1", rid, nil)
			return
		}

		if err := eng.ResetCompletion(key); err != nil {
			if errors.Is(err, progress.ErrNotFound) {
				api.NotFound(w, "PROGRESS_NOT_FOUND", "No record for that key", rid)
				return
			}
			api.Internal(w, rid)
			return
		}
		api.WriteJSON(w, http.StatusOK, map[string]any{"key": key.String(), "completed": false})
	}
}
