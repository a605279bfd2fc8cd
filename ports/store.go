package ports

import (
	"context"
	"time"
)

// WriteKind discriminates the operations that may appear in a batch.
type WriteKind int

const (
	WriteSet WriteKind = iota
	WriteIndexAdd
)

// WriteOp is one element of an atomic batch. For WriteSet, Key/Value/TTL are
// used; for WriteIndexAdd, Index/Member/Score/TTL.
type WriteOp struct {
	Kind   WriteKind
	Key    string
	Value  string
	Index  string
	Member string
	Score  float64
	TTL    time.Duration
}

// Store is the shared key/value port. Backends must support safe concurrent
// access; multi-key atomicity is only promised through Batch. A TTL of zero
// means no expiry.
type Store interface {
	// Get returns the value for key and whether it exists. The error is a
	// backend fault, never a miss.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set writes key with the given TTL.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete removes key and reports whether it existed.
	Delete(ctx context.Context, key string) (bool, error)

	// Batch applies all ops atomically: either every op is visible or none.
	Batch(ctx context.Context, ops []WriteOp) error

	// IndexAdd inserts member into the named ordered index with the given
	// score, refreshing the index TTL.
	IndexAdd(ctx context.Context, index, member string, score float64, ttl time.Duration) error

	// IndexRange returns all members of the index ordered by descending
	// score (newest first for time-scored indexes).
	IndexRange(ctx context.Context, index string) ([]string, error)

	// IndexRemove removes members from the index.
	IndexRemove(ctx context.Context, index string, members ...string) error

	// IndexTrimBelow removes members whose score is strictly below min and
	// returns how many were removed.
	IndexTrimBelow(ctx context.Context, index string, min float64) (int, error)

	// Keys enumerates keys matching the prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Sweep removes entries past their expiry on backends without native
	// TTL support. TTL-native backends return 0.
	Sweep(ctx context.Context) (int, error)
}
