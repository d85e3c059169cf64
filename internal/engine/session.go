package engine

import (
	"sync"

	"go.uber.org/zap"

	"github.com/example/watchsync/internal/platform/metrics"
	"github.com/example/watchsync/internal/progress"
	"github.com/example/watchsync/internal/surface"
)

// SessionOptions are the instantiation defaults for one playback: the content
// the surface was opened for plus its display metadata. Events may override
// the episode identity (and snapshots even the catalog id) per message.
type SessionOptions struct {
	Key         progress.ContentKey
	Title       string
	PosterRef   string
	BackdropRef string
}

// Session is the per-playback context. The engagement latch lives here, not
// on the engine: a new playback attempt must re-prove engagement even when an
// old record for the same key exists.
type Session struct {
	eng *Engine
	def SessionOptions

	mu      sync.Mutex
	engaged map[string]progress.ContentKey
}

func (e *Engine) NewSession(opts SessionOptions) *Session {
	return &Session{
		eng:     e,
		def:     opts,
		engaged: make(map[string]progress.ContentKey),
	}
}

// HandleEvent reconciles one decoded surface message. It never returns an
// error: events that cannot be applied are dropped with a debug log, because
// nothing here may break the surface's host.
func (s *Session) HandleEvent(ev surface.Event) {
	switch ev.Kind {
	case surface.KindLifecycle:
		s.handleLifecycle(ev)
	case surface.KindSnapshot:
		s.handleSnapshot(ev)
	case surface.KindVisibility:
		s.handleVisibility(ev)
	}
}

// Close flushes the session's engaged keys the same way a hidden-tab signal
// does. Called when the surface goes away for good.
func (s *Session) Close() {
	s.flushEngaged()
}

func (s *Session) handleLifecycle(ev surface.Event) {
	key, ok := s.eventKey(ev)
	if !ok {
		metrics.EventsDropped.WithLabelValues("invalid_key").Inc()
		s.eng.log.Debug("event with unusable key dropped", zap.String("key", key.String()))
		return
	}
	ks := key.String()

	if !s.isEngaged(ks) && ev.CurrentTime < s.eng.minWatch {
		metrics.EventsDropped.WithLabelValues("below_min_watch").Inc()
		s.eng.log.Debug("event below engagement threshold dropped",
			zap.String("key", ks), zap.Float64("current_time", ev.CurrentTime))
		return
	}

	before, hadBefore := s.eng.store.Get(key)
	completed := s.wouldComplete(ev.CurrentTime, ev.Duration, before, hadBefore)

	patch := progress.Patch{
		PositionSeconds: ev.CurrentTime,
		DurationSeconds: ev.Duration,
		Completed:       completed,
		Engagement:      true,
		UpdatedAtMs:     s.eng.nowMs(),
	}
	s.applyMetadata(&patch, ev)

	rec, applied, err := s.eng.store.Upsert(key, patch)
	if err != nil {
		// Not latching engaged here: a session whose record never made it
		// to the store must re-prove engagement on the next event.
		s.eng.log.Warn("progress upsert failed", zap.String("key", ks), zap.Error(err))
		return
	}
	s.setEngaged(key)
	if !applied {
		metrics.EventsDropped.WithLabelValues("stale").Inc()
		s.eng.log.Debug("stale event ignored", zap.String("key", ks))
		// Pause and ended mean the user may be leaving; the push carries
		// the latest stored state, which is at least as fresh as this
		// event, so losing the timestamp race does not cancel the trigger.
		if ev.Name == surface.EventPause || ev.Name == surface.EventEnded {
			s.eng.sched.Trigger(key)
		}
		return
	}
	metrics.EventsIngested.WithLabelValues(surface.KindLifecycle).Inc()
	s.eng.sched.Observe(rec)

	flip := completed && !(hadBefore && before.Completed)
	if flip {
		metrics.CompletionFlips.Inc()
	}
	if flip || ev.Name == surface.EventPause || ev.Name == surface.EventEnded {
		s.eng.sched.Trigger(key)
	}
}

// handleSnapshot applies an authoritative full-state report. Snapshots skip
// the engagement gate and the stale-write guard, and may address different
// content than the session default.
func (s *Session) handleSnapshot(ev surface.Event) {
	key, ok := s.eventKey(ev)
	if !ok {
		metrics.EventsDropped.WithLabelValues("invalid_key").Inc()
		s.eng.log.Debug("snapshot with unusable key dropped", zap.String("key", key.String()))
		return
	}
	ks := key.String()

	before, hadBefore := s.eng.store.Get(key)
	completed := s.wouldComplete(ev.CurrentTime, ev.Duration, before, hadBefore)
	engaged := ev.CurrentTime >= s.eng.minWatch

	patch := progress.Patch{
		PositionSeconds: ev.CurrentTime,
		DurationSeconds: ev.Duration,
		Completed:       completed,
		Engagement:      engaged,
		UpdatedAtMs:     s.eng.nowMs(),
		Authoritative:   true,
	}
	s.applyMetadata(&patch, ev)

	rec, _, err := s.eng.store.Upsert(key, patch)
	if err != nil {
		s.eng.log.Warn("snapshot upsert failed", zap.String("key", ks), zap.Error(err))
		return
	}
	metrics.EventsIngested.WithLabelValues(surface.KindSnapshot).Inc()
	if engaged {
		s.setEngaged(key)
	}
	s.eng.sched.Observe(rec)

	if completed && !(hadBefore && before.Completed) {
		metrics.CompletionFlips.Inc()
		s.eng.sched.Trigger(key)
	}
}

// handleVisibility pushes the session's engaged keys when the surface is
// hidden; becoming visible again is a no-op.
func (s *Session) handleVisibility(ev surface.Event) {
	metrics.EventsIngested.WithLabelValues(surface.KindVisibility).Inc()
	if !ev.Hidden {
		return
	}
	s.flushEngaged()
}

func (s *Session) flushEngaged() {
	for _, key := range s.engagedKeys() {
		rec, ok := s.eng.store.Get(key)
		if !ok || !rec.Syncable() {
			continue
		}
		s.eng.sched.Trigger(key)
	}
}

// eventKey resolves the content identity for an event: session defaults,
// overridden by the event's catalog id (snapshots) and season/episode. An
// episodic surface can switch episodes without a new session.
func (s *Session) eventKey(ev surface.Event) (progress.ContentKey, bool) {
	key := s.def.Key
	if ev.CatalogID != "" {
		key.CatalogID = ev.CatalogID
	}
	if key.Episodic() {
		key = key.WithEpisode(ev.Season, ev.Episode)
	}
	return key, key.Valid()
}

// wouldComplete evaluates the completion rule against the effective position
// and duration the patch will produce (a zero event duration falls back to
// the stored one, mirroring the store's retention rule).
func (s *Session) wouldComplete(position, duration float64, before progress.ProgressRecord, hadBefore bool) bool {
	if duration <= 0 && hadBefore {
		duration = before.DurationSeconds
	}
	if duration > 0 && position > duration {
		position = duration
	}
	return progress.Complete(position, duration, s.eng.minWatch, s.eng.threshold)
}

// applyMetadata attaches the session's display metadata unless the event
// addressed different content than the session was opened for.
func (s *Session) applyMetadata(p *progress.Patch, ev surface.Event) {
	if ev.CatalogID != "" && ev.CatalogID != s.def.Key.CatalogID {
		return
	}
	p.Title = s.def.Title
	p.PosterRef = s.def.PosterRef
	p.BackdropRef = s.def.BackdropRef
}

func (s *Session) isEngaged(ks string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.engaged[ks]
	return ok
}

func (s *Session) setEngaged(key progress.ContentKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engaged[key.String()] = key
}

func (s *Session) engagedKeys() []progress.ContentKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]progress.ContentKey, 0, len(s.engaged))
	for _, k := range s.engaged {
		keys = append(keys, k)
	}
	return keys
}
