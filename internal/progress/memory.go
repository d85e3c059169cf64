package progress

import (
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store used by tests and by hosts that opt out
// of on-disk persistence. Same merge and eviction semantics as BoltStore.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]ProgressRecord
	max     int
}

func NewMemoryStore(maxRecords int) *MemoryStore {
	if maxRecords <= 0 {
		maxRecords = DefaultMaxRecords
	}
	return &MemoryStore{records: make(map[string]ProgressRecord), max: maxRecords}
}

func (s *MemoryStore) Get(key ContentKey) (ProgressRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[key.String()]
	return r, ok
}

func (s *MemoryStore) Upsert(key ContentKey, p Patch) (ProgressRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ks := key.String()
	cur, exists := s.records[ks]
	out, applied := merge(cur, exists, key, p)
	if !applied {
		return cur, false, nil
	}
	s.records[ks] = out
	if !exists {
		s.evictLocked()
	}
	return out, true, nil
}

func (s *MemoryStore) ListRecent(limit int) []ProgressRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ProgressRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	sortRecent(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *MemoryStore) Remove(key ContentKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key.String())
	return nil
}

func (s *MemoryStore) Close() error { return nil }

// evictLocked drops the oldest records once the cap is exceeded.
func (s *MemoryStore) evictLocked() {
	if len(s.records) <= s.max {
		return
	}
	all := make([]ProgressRecord, 0, len(s.records))
	for _, r := range s.records {
		all = append(all, r)
	}
	sortRecent(all)
	for _, r := range all[s.max:] {
		delete(s.records, r.Key.String())
	}
}

// sortRecent orders records by UpdatedAtMs descending, key string as a
// deterministic tiebreak.
func sortRecent(rs []ProgressRecord) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].UpdatedAtMs != rs[j].UpdatedAtMs {
			return rs[i].UpdatedAtMs > rs[j].UpdatedAtMs
		}
		return rs[i].Key.String() > rs[j].Key.String()
	})
}
