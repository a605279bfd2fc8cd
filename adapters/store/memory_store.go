package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/clearmesh/agentgate/ports"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

type memoryIndex struct {
	scores    map[string]float64
	expiresAt time.Time
}

// MemoryStore is the in-process fallback implementation of the Store port.
// It has no native TTL machinery, so expiry is re-derived on every read and
// enforced in bulk by Sweep. It is safe for concurrent use within a single
// process only; it cannot be shared across server processes.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	indexes map[string]*memoryIndex

	now func() time.Time
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		indexes: make(map[string]*memoryIndex),
		now:     time.Now,
	}
}

// SetClock overrides the time source. Test hook.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

func (s *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return "", false, nil
	}
	if e.expired(s.now()) {
		delete(s.entries, key)
		return "", false, nil
	}
	return e.value, true, nil
}

func (s *MemoryStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = s.entry(value, ttl)
	return nil
}

func (s *MemoryStore) entry(value string, ttl time.Duration) memoryEntry {
	e := memoryEntry{value: value}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	return e
}

func (s *MemoryStore) Delete(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return false, nil
	}
	delete(s.entries, key)
	return !e.expired(s.now()), nil
}

// Batch applies all ops under a single lock acquisition, so the writes are
// atomic with respect to every other accessor.
func (s *MemoryStore) Batch(ctx context.Context, ops []ports.WriteOp) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, op := range ops {
		switch op.Kind {
		case ports.WriteSet:
			s.entries[op.Key] = s.entry(op.Value, op.TTL)
		case ports.WriteIndexAdd:
			s.indexAddLocked(op.Index, op.Member, op.Score, op.TTL)
		}
	}
	return nil
}

func (s *MemoryStore) indexAddLocked(index, member string, score float64, ttl time.Duration) {
	idx, ok := s.indexes[index]
	if ok && !idx.expiresAt.IsZero() && !s.now().Before(idx.expiresAt) {
		ok = false
	}
	if !ok {
		idx = &memoryIndex{scores: make(map[string]float64)}
		s.indexes[index] = idx
	}
	idx.scores[member] = score
	if ttl > 0 {
		idx.expiresAt = s.now().Add(ttl)
	} else {
		idx.expiresAt = time.Time{}
	}
}

func (s *MemoryStore) IndexAdd(ctx context.Context, index, member string, score float64, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.indexAddLocked(index, member, score, ttl)
	return nil
}

func (s *MemoryStore) liveIndex(index string) *memoryIndex {
	idx, ok := s.indexes[index]
	if !ok {
		return nil
	}
	if !idx.expiresAt.IsZero() && !s.now().Before(idx.expiresAt) {
		delete(s.indexes, index)
		return nil
	}
	return idx
}

func (s *MemoryStore) IndexRange(ctx context.Context, index string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.liveIndex(index)
	if idx == nil {
		return nil, nil
	}
	members := make([]string, 0, len(idx.scores))
	for m := range idx.scores {
		members = append(members, m)
	}
	sort.Slice(members, func(i, j int) bool {
		si, sj := idx.scores[members[i]], idx.scores[members[j]]
		if si != sj {
			return si > sj
		}
		return members[i] > members[j]
	})
	return members, nil
}

func (s *MemoryStore) IndexRemove(ctx context.Context, index string, members ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.liveIndex(index)
	if idx == nil {
		return nil
	}
	for _, m := range members {
		delete(idx.scores, m)
	}
	return nil
}

func (s *MemoryStore) IndexTrimBelow(ctx context.Context, index string, min float64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.liveIndex(index)
	if idx == nil {
		return 0, nil
	}
	removed := 0
	for m, score := range idx.scores {
		if score < min {
			delete(idx.scores, m)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var keys []string
	for k, e := range s.entries {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if e.expired(now) {
			delete(s.entries, k)
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Sweep removes every expired entry and index. Scheduled periodically by the
// composition root since the backend has no passive TTL.
func (s *MemoryStore) Sweep(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for k, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, k)
			removed++
		}
	}
	for name, idx := range s.indexes {
		if !idx.expiresAt.IsZero() && !now.Before(idx.expiresAt) {
			delete(s.indexes, name)
			removed++
		}
	}
	return removed, nil
}
