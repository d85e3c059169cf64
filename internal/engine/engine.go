// Package engine is the reconciliation core: it turns surface events into
// canonical store updates, detects completion, classifies sync triggers, and
// answers resume queries. All shared services hang off an explicit Engine;
// per-playback state lives in Session objects so concurrent surfaces never
// share scratch state.
package engine

import (
	"time"

	"go.uber.org/zap"

	"github.com/example/watchsync/internal/progress"
)

// Triggerer is the slice of the sync scheduler the engine drives.
type Triggerer interface {
	Observe(rec progress.ProgressRecord)
	Trigger(key progress.ContentKey)
	Forget(key progress.ContentKey)
}

type Config struct {
	Store               progress.Store
	Scheduler           Triggerer
	Log                 *zap.Logger
	MinWatchSeconds     float64
	CompletionThreshold float64
}

type Engine struct {
	store     progress.Store
	sched     Triggerer
	log       *zap.Logger
	minWatch  float64
	threshold float64

	now func() time.Time
}

func New(cfg Config) *Engine {
	if cfg.MinWatchSeconds <= 0 {
		cfg.MinWatchSeconds = progress.DefaultMinWatchSeconds
	}
	if cfg.CompletionThreshold <= 0 {
		cfg.CompletionThreshold = progress.DefaultCompletionThreshold
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	return &Engine{
		store:     cfg.Store,
		sched:     cfg.Scheduler,
		log:       cfg.Log,
		minWatch:  cfg.MinWatchSeconds,
		threshold: cfg.CompletionThreshold,
		now:       time.Now,
	}
}

func (e *Engine) nowMs() int64 { return e.now().UnixMilli() }

// Resume returns the position playback should start from. Completed content
// restarts from the beginning; unknown content starts at zero. Pure store
// read, works offline.
func (e *Engine) Resume(key progress.ContentKey) float64 {
	rec, ok := e.store.Get(key)
	if !ok || rec.Completed {
		return 0
	}
	return rec.PositionSeconds
}

// ContinueWatching returns the most recently updated records, newest first.
func (e *Engine) ContinueWatching(limit int) []progress.ProgressRecord {
	return e.store.ListRecent(limit)
}

// ResetCompletion clears the completion latch and rewinds the record to the
// start, so the next watch behaves like a fresh one. The patch is marked
// authoritative: an explicit user command must not lose a same-millisecond
// timestamp race against the event that latched the record.
func (e *Engine) ResetCompletion(key progress.ContentKey) error {
	cur, ok := e.store.Get(key)
	if !ok {
		return progress.ErrNotFound
	}
	rec, _, err := e.store.Upsert(key, progress.Patch{
		DurationSeconds: cur.DurationSeconds,
		ResetCompleted:  true,
		UpdatedAtMs:     e.nowMs(),
		Authoritative:   true,
	})
	if err != nil {
		return err
	}
	e.sched.Observe(rec)
	return nil
}

// RemoveProgress deletes the record for key (the user-facing "remove from
// continue watching"). Removing an absent key is a no-op.
func (e *Engine) RemoveProgress(key progress.ContentKey) error {
	if err := e.store.Remove(key); err != nil {
		return err
	}
	e.sched.Forget(key)
	return nil
}
