// Package accountcache speeds up account-by-number resolution. A Lookup
// fronts the store with a bloom filter of known account numbers, a
// single-flight group to collapse concurrent lookups, and a snapshot cache
// (in-memory or Redis). Entries are invalidated after every committed
// transfer, so the engine never prechecks against a balance older than the
// last committed transfer touching the account.
package accountcache

import (
	"context"
	"errors"
	"time"

	"bankledger/pkg/ledger"
)

// ErrNotCached is returned by a Cache when no snapshot is held for a number.
var ErrNotCached = errors.New("accountcache: not cached")

// Cache stores account snapshots keyed by account number.
type Cache interface {
	// Get returns the cached snapshot, or ErrNotCached.
	Get(ctx context.Context, number string) (ledger.Account, error)

	// Set stores a snapshot with the given time-to-live.
	Set(ctx context.Context, number string, account ledger.Account, ttl time.Duration) error

	// Delete drops a snapshot. Deleting an absent entry is not an error.
	Delete(ctx context.Context, number string) error

	// Name identifies the cache backend for logs and metrics.
	Name() string

	// Close releases resources held by the cache.
	Close() error
}
