package syncer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/example/watchsync/internal/progress"
	"github.com/example/watchsync/internal/remote"
)

var testKey = progress.ContentKey{CatalogID: "603", Kind: progress.KindMovie}

// fakePusher records pushes and can gate them on a permit channel to model
// slow network calls.
type fakePusher struct {
	mu        sync.Mutex
	calls     []remote.ProgressUpdate
	errs      []error
	active    int
	maxActive int
	proceed   chan struct{}
}

func (p *fakePusher) UpdateProgress(ctx context.Context, u remote.ProgressUpdate) error {
	p.mu.Lock()
	p.active++
	if p.active > p.maxActive {
		p.maxActive = p.active
	}
	proceed := p.proceed
	p.mu.Unlock()

	if proceed != nil {
		<-proceed
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.active--
	p.calls = append(p.calls, u)
	if len(p.errs) > 0 {
		err := p.errs[0]
		p.errs = p.errs[1:]
		return err
	}
	return nil
}

func (p *fakePusher) snapshot() []remote.ProgressUpdate {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]remote.ProgressUpdate(nil), p.calls...)
}

func seed(t *testing.T, store progress.Store, sched *Scheduler, pos float64, ts int64) progress.ProgressRecord {
	t.Helper()
	rec, applied, err := store.Upsert(testKey, progress.Patch{PositionSeconds: pos, DurationSeconds: 6000, UpdatedAtMs: ts})
	if err != nil || !applied {
		t.Fatalf("seed upsert: applied=%v err=%v", applied, err)
	}
	sched.Observe(rec)
	return rec
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestScheduler_CoalescesAndSupersedes(t *testing.T) {
	store := progress.NewMemoryStore(progress.DefaultMaxRecords)
	pusher := &fakePusher{proceed: make(chan struct{})}
	sched := New(store, pusher, zap.NewNop())

	seed(t, store, sched, 50, 1000)
	sched.Trigger(testKey)

	// Newer state lands while the first push is still in flight; the second
	// trigger must coalesce, not start a concurrent push.
	seed(t, store, sched, 100, 2000)
	sched.Trigger(testKey)

	pusher.proceed <- struct{}{}
	pusher.proceed <- struct{}{}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sched.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	calls := pusher.snapshot()
	if len(calls) != 2 {
		t.Fatalf("expected 2 pushes, got %d", len(calls))
	}
	if calls[0].CurrentTime != 50 || calls[1].CurrentTime != 100 {
		t.Fatalf("expected pushes in 50,100 order, got %v,%v", calls[0].CurrentTime, calls[1].CurrentTime)
	}
	if pusher.maxActive != 1 {
		t.Fatalf("expected at most one in-flight push, saw %d", pusher.maxActive)
	}
	if dirty := sched.Dirty(); len(dirty) != 0 {
		t.Fatalf("expected no dirty keys, got %v", dirty)
	}
}

func TestScheduler_NoImmediateRetryOnFailure(t *testing.T) {
	store := progress.NewMemoryStore(progress.DefaultMaxRecords)
	pusher := &fakePusher{errs: []error{errors.New("backend down")}}
	sched := New(store, pusher, zap.NewNop())

	seed(t, store, sched, 50, 1000)
	sched.Trigger(testKey)

	waitFor(t, func() bool { return len(pusher.snapshot()) == 1 })

	// The failed payload stays dirty but no retry fires on its own.
	time.Sleep(50 * time.Millisecond)
	if got := len(pusher.snapshot()); got != 1 {
		t.Fatalf("expected no retry, got %d pushes", got)
	}
	dirty := sched.Dirty()
	if len(dirty) != 1 || dirty[0] != testKey {
		t.Fatalf("expected %v dirty, got %v", testKey, dirty)
	}

	// The next natural trigger carries the state forward.
	sched.Trigger(testKey)
	waitFor(t, func() bool { return len(pusher.snapshot()) == 2 })
	if dirty := sched.Dirty(); len(dirty) != 0 {
		t.Fatalf("expected clean after successful push, got %v", dirty)
	}
}

func TestScheduler_SupersedeAfterFailedFlight(t *testing.T) {
	store := progress.NewMemoryStore(progress.DefaultMaxRecords)
	pusher := &fakePusher{proceed: make(chan struct{}), errs: []error{errors.New("timeout")}}
	sched := New(store, pusher, zap.NewNop())

	seed(t, store, sched, 50, 1000)
	sched.Trigger(testKey)

	seed(t, store, sched, 100, 2000)
	sched.Trigger(testKey)

	// First push fails; the coalesced trigger still gets its newer payload out.
	pusher.proceed <- struct{}{}
	pusher.proceed <- struct{}{}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sched.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	calls := pusher.snapshot()
	if len(calls) != 2 {
		t.Fatalf("expected 2 pushes, got %d", len(calls))
	}
	if calls[1].CurrentTime != 100 {
		t.Fatalf("expected superseding payload with position 100, got %v", calls[1].CurrentTime)
	}
}

func TestScheduler_TriggerSkipsUnsyncable(t *testing.T) {
	store := progress.NewMemoryStore(progress.DefaultMaxRecords)
	pusher := &fakePusher{}
	sched := New(store, pusher, zap.NewNop())

	// Absent key.
	sched.Trigger(testKey)

	// Known key without duration.
	rec, _, err := store.Upsert(testKey, progress.Patch{PositionSeconds: 30, UpdatedAtMs: 1000})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	sched.Observe(rec)
	sched.Trigger(testKey)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = sched.Shutdown(ctx)

	if got := len(pusher.snapshot()); got != 0 {
		t.Fatalf("expected no pushes, got %d", got)
	}
}

func TestScheduler_ShutdownFlushesDirtyKeys(t *testing.T) {
	store := progress.NewMemoryStore(progress.DefaultMaxRecords)
	pusher := &fakePusher{}
	sched := New(store, pusher, zap.NewNop())

	// Heartbeats update the store without triggering a push.
	seed(t, store, sched, 300, 1000)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sched.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	calls := pusher.snapshot()
	if len(calls) != 1 {
		t.Fatalf("expected final flush push, got %d", len(calls))
	}
	if calls[0].CurrentTime != 300 {
		t.Fatalf("expected position 300, got %v", calls[0].CurrentTime)
	}
	if dirty := sched.Dirty(); len(dirty) != 0 {
		t.Fatalf("expected clean after flush, got %v", dirty)
	}
}

func TestScheduler_ShutdownHonorsDeadline(t *testing.T) {
	store := progress.NewMemoryStore(progress.DefaultMaxRecords)
	pusher := &fakePusher{proceed: make(chan struct{})}
	sched := New(store, pusher, zap.NewNop())
	defer close(pusher.proceed)

	seed(t, store, sched, 50, 1000)
	sched.Trigger(testKey)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := sched.Shutdown(ctx)
	if err == nil {
		t.Fatal("expected deadline error while a push hangs")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("shutdown blocked past deadline: %v", elapsed)
	}
}

func TestScheduler_ForgetClearsDirty(t *testing.T) {
	store := progress.NewMemoryStore(progress.DefaultMaxRecords)
	sched := New(store, &fakePusher{}, zap.NewNop())

	seed(t, store, sched, 50, 1000)
	if len(sched.Dirty()) != 1 {
		t.Fatal("expected dirty key")
	}

	if err := store.Remove(testKey); err != nil {
		t.Fatalf("remove: %v", err)
	}
	sched.Forget(testKey)
	if dirty := sched.Dirty(); len(dirty) != 0 {
		t.Fatalf("expected no dirty keys, got %v", dirty)
	}
}
