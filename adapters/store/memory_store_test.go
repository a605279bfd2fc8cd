package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/clearmesh/agentgate/ports"
)

// fakeClock lets tests advance time without sleeping.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestStore() (*MemoryStore, *fakeClock) {
	s := NewMemoryStore()
	clock := newFakeClock()
	s.SetClock(clock.now)
	return s, clock
}

func TestMemoryStoreSetGetDelete(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore()

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Set(ctx, "k", "v", 0))
	value, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v", value)

	existed, err := s.Delete(ctx, "k")
	require.NoError(t, err)
	require.True(t, existed)

	existed, err = s.Delete(ctx, "k")
	require.NoError(t, err)
	require.False(t, existed)
}

func TestMemoryStoreTTL(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore()

	require.NoError(t, s.Set(ctx, "k", "v", time.Minute))

	clock.advance(59 * time.Second)
	_, ok, _ := s.Get(ctx, "k")
	require.True(t, ok)

	clock.advance(2 * time.Second)
	_, ok, _ = s.Get(ctx, "k")
	require.False(t, ok, "expired entry must read as absent")
}

func TestMemoryStoreIndexOrdering(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore()

	require.NoError(t, s.IndexAdd(ctx, "idx", "old", 1, 0))
	require.NoError(t, s.IndexAdd(ctx, "idx", "mid", 2, 0))
	require.NoError(t, s.IndexAdd(ctx, "idx", "new", 3, 0))

	members, err := s.IndexRange(ctx, "idx")
	require.NoError(t, err)
	require.Equal(t, []string{"new", "mid", "old"}, members)

	require.NoError(t, s.IndexRemove(ctx, "idx", "mid"))
	members, _ = s.IndexRange(ctx, "idx")
	require.Equal(t, []string{"new", "old"}, members)

	removed, err := s.IndexTrimBelow(ctx, "idx", 3)
	require.NoError(t, err)
	require.Equal(t, 1, removed)
	members, _ = s.IndexRange(ctx, "idx")
	require.Equal(t, []string{"new"}, members)
}

func TestMemoryStoreBatchAtomicVisibility(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore()

	err := s.Batch(ctx, []ports.WriteOp{
		{Kind: ports.WriteSet, Key: "task:1", Value: "{}", TTL: time.Hour},
		{Kind: ports.WriteIndexAdd, Index: "task-session:s1", Member: "1", Score: 1, TTL: time.Hour},
	})
	require.NoError(t, err)

	_, ok, _ := s.Get(ctx, "task:1")
	require.True(t, ok)
	members, _ := s.IndexRange(ctx, "task-session:s1")
	require.Equal(t, []string{"1"}, members)
}

func TestMemoryStoreKeysPrefix(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore()

	require.NoError(t, s.Set(ctx, "session:a", "1", 0))
	require.NoError(t, s.Set(ctx, "session:b", "2", time.Minute))
	require.NoError(t, s.Set(ctx, "task:c", "3", 0))

	keys, err := s.Keys(ctx, "session:")
	require.NoError(t, err)
	require.Equal(t, []string{"session:a", "session:b"}, keys)

	clock.advance(2 * time.Minute)
	keys, _ = s.Keys(ctx, "session:")
	require.Equal(t, []string{"session:a"}, keys, "expired keys drop out of enumeration")
}

func TestMemoryStoreSweep(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore()

	require.NoError(t, s.Set(ctx, "a", "1", time.Minute))
	require.NoError(t, s.Set(ctx, "b", "2", time.Hour))
	require.NoError(t, s.IndexAdd(ctx, "idx", "m", 1, time.Minute))

	clock.advance(10 * time.Minute)
	removed, err := s.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, removed)

	_, ok, _ := s.Get(ctx, "b")
	require.True(t, ok)
}
