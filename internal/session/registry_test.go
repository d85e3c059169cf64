package session

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/example/watchsync/internal/engine"
	"github.com/example/watchsync/internal/progress"
)

type noopSched struct{}

func (noopSched) Observe(progress.ProgressRecord) {}
func (noopSched) Trigger(progress.ContentKey)     {}
func (noopSched) Forget(progress.ContentKey)      {}

func newSession(t *testing.T) *engine.Session {
	t.Helper()
	eng := engine.New(engine.Config{
		Store:     progress.NewMemoryStore(progress.DefaultMaxRecords),
		Scheduler: noopSched{},
	})
	return eng.NewSession(engine.SessionOptions{
		Key: progress.ContentKey{CatalogID: "603", Kind: progress.KindMovie},
	})
}

func TestRegistry_OpenGetClose(t *testing.T) {
	r := NewRegistry(time.Minute, time.Minute, zap.NewNop())
	defer r.Shutdown()

	id := r.Open(newSession(t))
	if id == "" {
		t.Fatal("expected a session id")
	}
	if _, ok := r.Get(id); !ok {
		t.Fatal("expected session to be retrievable")
	}
	if r.Len() != 1 {
		t.Fatalf("expected 1 session, got %d", r.Len())
	}

	if !r.Close(id) {
		t.Fatal("expected close to succeed")
	}
	if _, ok := r.Get(id); ok {
		t.Fatal("expected session gone after close")
	}
	if r.Close(id) {
		t.Fatal("expected second close to report unknown id")
	}
}

func TestRegistry_GetUnknown(t *testing.T) {
	r := NewRegistry(time.Minute, time.Minute, zap.NewNop())
	defer r.Shutdown()

	if _, ok := r.Get("nope"); ok {
		t.Fatal("expected unknown id to miss")
	}
}

func TestRegistry_ReapsIdleSessions(t *testing.T) {
	r := NewRegistry(30*time.Millisecond, 10*time.Millisecond, zap.NewNop())
	defer r.Shutdown()

	id := r.Open(newSession(t))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := r.Get(id); !ok {
			return
		}
		// Getting refreshes the TTL, so back off past it.
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("expected idle session to be reaped")
}

func TestRegistry_ActivityKeepsSessionAlive(t *testing.T) {
	r := NewRegistry(60*time.Millisecond, 10*time.Millisecond, zap.NewNop())
	defer r.Shutdown()

	id := r.Open(newSession(t))
	for i := 0; i < 10; i++ {
		time.Sleep(20 * time.Millisecond)
		if _, ok := r.Get(id); !ok {
			t.Fatal("expected active session to survive the reaper")
		}
	}
}
