package store

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/clearmesh/agentgate/ports"
)

// FailoverStore serves from a durable primary and degrades to an in-process
// fallback whenever the primary faults. Backend errors are logged as
// warnings and never surfaced to callers: availability wins over strict
// consistency. Entries written during an outage live only in the fallback,
// which is not shared across processes, and deletes issued during an outage
// are not replayed to the primary on recovery, so a record removed while
// degraded can resurface from the durable store. Operators accept both
// limitations; every record carries a TTL that bounds how long a
// resurfaced copy can live.
type FailoverStore struct {
	primary  ports.Store
	fallback ports.Store
	logger   *slog.Logger

	degraded atomic.Bool
}

// NewFailoverStore composes primary and fallback. The fallback must never
// fault (the MemoryStore qualifies).
func NewFailoverStore(primary, fallback ports.Store, logger *slog.Logger) *FailoverStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FailoverStore{primary: primary, fallback: fallback, logger: logger}
}

// Degraded reports whether the last primary operation faulted.
func (s *FailoverStore) Degraded() bool {
	return s.degraded.Load()
}

func (s *FailoverStore) noteFault(op string, err error) {
	if s.degraded.CompareAndSwap(false, true) {
		s.logger.Warn("store degraded, serving from in-process fallback", "op", op, "error", err)
	}
}

func (s *FailoverStore) noteRecovery() {
	if s.degraded.CompareAndSwap(true, false) {
		s.logger.Info("store primary recovered")
	}
}

func (s *FailoverStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, ok, err := s.primary.Get(ctx, key)
	if err != nil {
		s.noteFault("get", err)
		return s.fallback.Get(ctx, key)
	}
	s.noteRecovery()
	if !ok {
		// The primary may have been down when this key was written.
		return s.fallback.Get(ctx, key)
	}
	return value, ok, nil
}

func (s *FailoverStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.primary.Set(ctx, key, value, ttl); err != nil {
		s.noteFault("set", err)
		return s.fallback.Set(ctx, key, value, ttl)
	}
	s.noteRecovery()
	return nil
}

func (s *FailoverStore) Delete(ctx context.Context, key string) (bool, error) {
	fellback, _ := s.fallback.Delete(ctx, key)
	existed, err := s.primary.Delete(ctx, key)
	if err != nil {
		s.noteFault("delete", err)
		return fellback, nil
	}
	s.noteRecovery()
	return existed || fellback, nil
}

func (s *FailoverStore) Batch(ctx context.Context, ops []ports.WriteOp) error {
	if err := s.primary.Batch(ctx, ops); err != nil {
		s.noteFault("batch", err)
		return s.fallback.Batch(ctx, ops)
	}
	s.noteRecovery()
	return nil
}

func (s *FailoverStore) IndexAdd(ctx context.Context, index, member string, score float64, ttl time.Duration) error {
	if err := s.primary.IndexAdd(ctx, index, member, score, ttl); err != nil {
		s.noteFault("index_add", err)
		return s.fallback.IndexAdd(ctx, index, member, score, ttl)
	}
	s.noteRecovery()
	return nil
}

func (s *FailoverStore) IndexRange(ctx context.Context, index string) ([]string, error) {
	members, err := s.primary.IndexRange(ctx, index)
	if err != nil {
		s.noteFault("index_range", err)
		return s.fallback.IndexRange(ctx, index)
	}
	s.noteRecovery()
	if len(members) == 0 {
		return s.fallback.IndexRange(ctx, index)
	}
	return members, nil
}

func (s *FailoverStore) IndexRemove(ctx context.Context, index string, members ...string) error {
	_ = s.fallback.IndexRemove(ctx, index, members...)
	if err := s.primary.IndexRemove(ctx, index, members...); err != nil {
		s.noteFault("index_remove", err)
		return nil
	}
	s.noteRecovery()
	return nil
}

func (s *FailoverStore) IndexTrimBelow(ctx context.Context, index string, min float64) (int, error) {
	trimmed, _ := s.fallback.IndexTrimBelow(ctx, index, min)
	n, err := s.primary.IndexTrimBelow(ctx, index, min)
	if err != nil {
		s.noteFault("index_trim", err)
		return trimmed, nil
	}
	s.noteRecovery()
	return n + trimmed, nil
}

func (s *FailoverStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	keys, err := s.primary.Keys(ctx, prefix)
	if err != nil {
		s.noteFault("keys", err)
		return s.fallback.Keys(ctx, prefix)
	}
	s.noteRecovery()
	extra, _ := s.fallback.Keys(ctx, prefix)
	return mergeKeys(keys, extra), nil
}

func mergeKeys(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	seen := make(map[string]struct{}, len(a))
	for _, k := range a {
		seen[k] = struct{}{}
	}
	for _, k := range b {
		if _, ok := seen[k]; !ok {
			a = append(a, k)
		}
	}
	return a
}

// Sweep sweeps the fallback; the primary expires keys on its own.
func (s *FailoverStore) Sweep(ctx context.Context) (int, error) {
	return s.fallback.Sweep(ctx)
}
