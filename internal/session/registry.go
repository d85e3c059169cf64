// Package session tracks live playback sessions for the HTTP and NATS
// transports. Sessions that stop reporting are reaped after a TTL, which
// also flushes their progress the same way an explicit close does.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/watchsync/internal/engine"
	"github.com/example/watchsync/internal/platform/metrics"
)

type entry struct {
	sess     *engine.Session
	lastSeen time.Time
}

type Registry struct {
	mu       sync.Mutex
	sessions map[string]*entry
	ttl      time.Duration
	log      *zap.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewRegistry starts the reaper goroutine. ttl is how long a session may go
// without traffic before it is closed; the reaper wakes every interval.
func NewRegistry(ttl, interval time.Duration, log *zap.Logger) *Registry {
	r := &Registry{
		sessions: make(map[string]*entry),
		ttl:      ttl,
		log:      log,
		stopCh:   make(chan struct{}),
	}
	go r.reaper(interval)
	return r
}

// Open registers a session and returns its id.
func (r *Registry) Open(sess *engine.Session) string {
	id := uuid.NewString()
	r.mu.Lock()
	r.sessions[id] = &entry{sess: sess, lastSeen: time.Now()}
	metrics.SessionsActive.Set(float64(len(r.sessions)))
	r.mu.Unlock()
	return id
}

// Get returns the session for id and refreshes its TTL.
func (r *Registry) Get(id string) (*engine.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	e.lastSeen = time.Now()
	return e.sess, true
}

// GetOrOpen returns the session registered under id, creating one with mk
// when absent. Used by transports whose session ids are minted by the
// producer rather than by Open.
func (r *Registry) GetOrOpen(id string, mk func() *engine.Session) *engine.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[id]; ok {
		e.lastSeen = time.Now()
		return e.sess
	}
	sess := mk()
	r.sessions[id] = &entry{sess: sess, lastSeen: time.Now()}
	metrics.SessionsActive.Set(float64(len(r.sessions)))
	return sess
}

// Close removes the session and flushes its progress. Unknown ids report
// false.
func (r *Registry) Close(id string) bool {
	r.mu.Lock()
	e, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
		metrics.SessionsActive.Set(float64(len(r.sessions)))
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	e.sess.Close()
	return true
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Shutdown stops the reaper. Live sessions are left alone; the daemon's
// termination flush covers their dirty state.
func (r *Registry) Shutdown() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

func (r *Registry) reaper(interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			now := time.Now()
			var expired []*entry
			r.mu.Lock()
			for id, e := range r.sessions {
				if now.Sub(e.lastSeen) > r.ttl {
					delete(r.sessions, id)
					expired = append(expired, e)
					r.log.Debug("session expired", zap.String("session_id", id))
				}
			}
			metrics.SessionsActive.Set(float64(len(r.sessions)))
			r.mu.Unlock()

			// Close outside the lock; it may trigger sync pushes.
			for _, e := range expired {
				e.sess.Close()
			}
		case <-r.stopCh:
			return
		}
	}
}
