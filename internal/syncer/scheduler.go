// Package syncer decides when local progress is worth a network write and
// pushes it to the remote progress store. Pushes are serialized per content
// key; triggers arriving while a push is in flight are coalesced, and a newer
// local state supersedes the in-flight payload once it lands. There is no
// retry loop: the local store holds the authoritative state and the next
// natural trigger carries it forward.
package syncer

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/example/watchsync/internal/platform/metrics"
	"github.com/example/watchsync/internal/progress"
	"github.com/example/watchsync/internal/remote"
)

// Pusher is the remote progress store surface the scheduler needs.
type Pusher interface {
	UpdateProgress(ctx context.Context, u remote.ProgressUpdate) error
}

// keyState tracks the local and pushed watermarks for one content key.
type keyState struct {
	key      progress.ContentKey
	localMs  int64
	pushedMs int64
}

// flight is one outstanding push. rerun is set by a trigger that arrived
// while the push was in flight and saw newer local state.
type flight struct {
	sentMs int64
	rerun  bool
}

type Scheduler struct {
	store  progress.Store
	pusher Pusher
	log    *zap.Logger

	mu       sync.Mutex
	states   map[string]*keyState
	inflight map[string]*flight
	wg       sync.WaitGroup
}

func New(store progress.Store, pusher Pusher, log *zap.Logger) *Scheduler {
	return &Scheduler{
		store:    store,
		pusher:   pusher,
		log:      log,
		states:   make(map[string]*keyState),
		inflight: make(map[string]*flight),
	}
}

// Observe records that the local store accepted an update for key. It feeds
// dirty tracking only; whether to push is decided by Trigger.
func (s *Scheduler) Observe(rec progress.ProgressRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(rec.Key)
	if rec.UpdatedAtMs > st.localMs {
		st.localMs = rec.UpdatedAtMs
	}
}

// Trigger requests a push of the latest stored state for key. Records
// without a known duration are never pushed. At most one push per key is in
// flight; a trigger during a push marks it for re-issue if local state is
// newer than the in-flight payload.
func (s *Scheduler) Trigger(key progress.ContentKey) {
	rec, ok := s.store.Get(key)
	if !ok || !rec.Syncable() {
		return
	}
	ks := key.String()

	s.mu.Lock()
	if f, busy := s.inflight[ks]; busy {
		if rec.UpdatedAtMs > f.sentMs {
			f.rerun = true
		}
		metrics.PushesCoalesced.Inc()
		s.mu.Unlock()
		return
	}
	f := &flight{sentMs: rec.UpdatedAtMs}
	s.inflight[ks] = f
	s.wg.Add(1)
	s.mu.Unlock()

	go s.run(key, f, rec)
}

// run owns the in-flight slot for key until it returns.
func (s *Scheduler) run(key progress.ContentKey, f *flight, rec progress.ProgressRecord) {
	defer s.wg.Done()
	ks := key.String()
	for {
		err := s.push(context.Background(), rec)

		s.mu.Lock()
		if err != nil {
			s.log.Warn("progress push failed, awaiting next trigger",
				zap.String("key", ks), zap.Error(err))
			metrics.Pushes.WithLabelValues("error").Inc()
		} else {
			metrics.Pushes.WithLabelValues("ok").Inc()
			st := s.state(key)
			if f.sentMs > st.pushedMs {
				st.pushedMs = f.sentMs
			}
		}
		if !f.rerun {
			delete(s.inflight, ks)
			s.mu.Unlock()
			return
		}
		f.rerun = false
		s.mu.Unlock()

		// A coalesced trigger saw newer state; re-check and supersede.
		cur, ok := s.store.Get(key)

		s.mu.Lock()
		if !ok || !cur.Syncable() || cur.UpdatedAtMs <= f.sentMs {
			delete(s.inflight, ks)
			s.mu.Unlock()
			return
		}
		f.sentMs = cur.UpdatedAtMs
		rec = cur
		s.mu.Unlock()
	}
}

func (s *Scheduler) push(ctx context.Context, rec progress.ProgressRecord) error {
	return s.pusher.UpdateProgress(ctx, remote.ProgressUpdate{
		ContentID:       rec.Key.CatalogID,
		MediaKind:       string(rec.Key.Kind),
		ProgressPercent: rec.Percent(),
		CurrentTime:     rec.PositionSeconds,
		Duration:        rec.DurationSeconds,
		Title:           rec.Title,
		PosterRef:       rec.PosterRef,
		BackdropRef:     rec.BackdropRef,
		Season:          rec.Key.Season,
		Episode:         rec.Key.Episode,
	})
}

// Forget drops the watermarks for key after its record is removed, so the
// key no longer reads as dirty.
func (s *Scheduler) Forget(key progress.ContentKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, key.String())
}

// Dirty returns the keys whose local state is ahead of what the remote has
// acknowledged.
func (s *Scheduler) Dirty() []progress.ContentKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []progress.ContentKey
	for _, st := range s.states {
		if st.localMs > st.pushedMs {
			keys = append(keys, st.key)
		}
	}
	return keys
}

// Shutdown pushes dirty keys best-effort within the context deadline, then
// waits for in-flight pushes to drain. It never blocks past the deadline;
// anything unsent is covered by the local store on next start.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	for _, key := range s.Dirty() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		ks := key.String()

		s.mu.Lock()
		if _, busy := s.inflight[ks]; busy {
			s.mu.Unlock()
			continue
		}
		s.mu.Unlock()

		rec, ok := s.store.Get(key)
		if !ok || !rec.Syncable() {
			continue
		}
		if err := s.push(ctx, rec); err != nil {
			s.log.Warn("final flush failed", zap.String("key", ks), zap.Error(err))
			metrics.Pushes.WithLabelValues("error").Inc()
			continue
		}
		metrics.Pushes.WithLabelValues("ok").Inc()
		s.mu.Lock()
		st := s.state(key)
		if rec.UpdatedAtMs > st.pushedMs {
			st.pushedMs = rec.UpdatedAtMs
		}
		s.mu.Unlock()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// state returns the watermark entry for key, creating it if needed. Caller
// holds s.mu.
func (s *Scheduler) state(key progress.ContentKey) *keyState {
	ks := key.String()
	st, ok := s.states[ks]
	if !ok {
		st = &keyState{key: key}
		s.states[ks] = st
	}
	return st
}
