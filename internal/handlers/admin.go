package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/watchsync/internal/platform/api"
	"github.com/example/watchsync/internal/platform/auth"
	"github.com/example/watchsync/internal/session"
	"github.com/example/watchsync/internal/syncer"
)

// OpsHandler exposes operational endpoints for inspecting and nudging the
// sync scheduler. Mounted behind admin auth.
type OpsHandler struct {
	Scheduler *syncer.Scheduler
	Registry  *session.Registry
	Log       *zap.Logger
}

func (h OpsHandler) Register(r chi.Router) {
	r.Get("/sync/status", h.handleStatus)
	r.Post("/sync/flush", h.handleFlush)
}

func (h OpsHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	dirty := h.Scheduler.Dirty()
	keys := make([]string, 0, len(dirty))
	for _, k := range dirty {
		keys = append(keys, k.String())
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{
		"dirty_keys":      keys,
		"active_sessions": h.Registry.Len(),
	})
}

// handleFlush re-triggers every dirty key. Pushes run asynchronously; the
// response reports how many were kicked off, not their outcome.
func (h OpsHandler) handleFlush(w http.ResponseWriter, r *http.Request) {
	dirty := h.Scheduler.Dirty()
	for _, k := range dirty {
		h.Scheduler.Trigger(k)
	}
	if h.Log != nil {
		uid, _ := auth.UserIDFromContext(r.Context())
		h.Log.Info("manual sync flush", zap.String("user", uid), zap.Int("triggered", len(dirty)))
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"triggered": len(dirty)})
}
