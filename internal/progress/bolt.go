package progress

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
)

var bucketProgress = []byte("watch_progress")

// BoltStore persists progress records in a local bbolt file, one JSON value
// per canonical content key. Reads tolerate corrupt values: a record that
// fails to decode is treated as absent and pruned on the next write.
type BoltStore struct {
	db  *bolt.DB
	max int
	log *zap.Logger
}

func OpenBolt(path string, maxRecords int, log *zap.Logger) (*BoltStore, error) {
	if maxRecords <= 0 {
		maxRecords = DefaultMaxRecords
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open progress db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketProgress)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init progress bucket: %w", err)
	}
	return &BoltStore{db: db, max: maxRecords, log: log}, nil
}

func (s *BoltStore) Get(key ContentKey) (ProgressRecord, bool) {
	var rec ProgressRecord
	found := false
	s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketProgress).Get([]byte(key.String()))
		if raw == nil {
			return nil
		}
		if err := json.Unmarshal(raw, &rec); err != nil {
			s.log.Warn("progress record corrupt, ignoring",
				zap.String("key", key.String()), zap.Error(err))
			return nil
		}
		found = true
		return nil
	})
	return rec, found
}

func (s *BoltStore) Upsert(key ContentKey, p Patch) (ProgressRecord, bool, error) {
	var (
		out     ProgressRecord
		applied bool
	)
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProgress)
		ks := []byte(key.String())

		var cur ProgressRecord
		exists := false
		if raw := b.Get(ks); raw != nil {
			if err := json.Unmarshal(raw, &cur); err != nil {
				// Corrupt entry: drop it and treat the patch as a create.
				s.log.Warn("pruning corrupt progress record",
					zap.String("key", key.String()), zap.Error(err))
				if err := b.Delete(ks); err != nil {
					return err
				}
			} else {
				exists = true
			}
		}

		out, applied = merge(cur, exists, key, p)
		if !applied {
			out = cur
			return nil
		}
		raw, err := json.Marshal(out)
		if err != nil {
			return err
		}
		if err := b.Put(ks, raw); err != nil {
			return err
		}
		if !exists {
			return s.evict(b)
		}
		return nil
	})
	if err != nil {
		return ProgressRecord{}, false, fmt.Errorf("upsert progress: %w", err)
	}
	return out, applied, nil
}

func (s *BoltStore) ListRecent(limit int) []ProgressRecord {
	var out []ProgressRecord
	s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketProgress).ForEach(func(k, v []byte) error {
			var rec ProgressRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				s.log.Warn("progress record corrupt, skipping",
					zap.String("key", string(k)), zap.Error(err))
				return nil
			}
			out = append(out, rec)
			return nil
		})
	})
	sortRecent(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *BoltStore) Remove(key ContentKey) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketProgress).Delete([]byte(key.String()))
	})
	if err != nil {
		return fmt.Errorf("remove progress: %w", err)
	}
	return nil
}

func (s *BoltStore) Close() error { return s.db.Close() }

// Ping verifies the database file is still readable. Used by readiness.
func (s *BoltStore) Ping() error {
	return s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketProgress) == nil {
			return errors.New("progress bucket missing")
		}
		return nil
	})
}

// evict removes the oldest records while the bucket holds more than max.
// Corrupt values are counted as oldest and removed first.
func (s *BoltStore) evict(b *bolt.Bucket) error {
	type entry struct {
		key []byte
		ts  int64
	}
	var all []entry
	err := b.ForEach(func(k, v []byte) error {
		var rec ProgressRecord
		ts := int64(-1)
		if err := json.Unmarshal(v, &rec); err == nil {
			ts = rec.UpdatedAtMs
		}
		all = append(all, entry{key: append([]byte(nil), k...), ts: ts})
		return nil
	})
	if err != nil {
		return err
	}
	if len(all) <= s.max {
		return nil
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ts < all[j].ts })
	for _, e := range all[:len(all)-s.max] {
		if err := b.Delete(e.key); err != nil {
			return err
		}
		s.log.Debug("evicted old progress record", zap.String("key", string(e.key)))
	}
	return nil
}

var _ Store = (*MemoryStore)(nil)
var _ Store = (*BoltStore)(nil)
