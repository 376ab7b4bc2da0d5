// Package lock implements DistributedLock (spec.md §4.11): a
// TTL-based mutual-exclusion primitive with at-most-one-winner
// semantics, backed by Redis in production and an in-memory
// implementation for single-process tests.
package lock

import (
	"context"
	"time"
)

// Lock is the distributed mutual-exclusion contract. TryAcquire
// returns (nil, false) — not an error — when another owner currently
// holds the name; callers treat that as "try again later," matching
// CleanseCoordinator.StartAnalysis's "returns nil if already held"
// behavior (spec.md §4.9).
type Lock interface {
	TryAcquire(ctx context.Context, name string, ttl time.Duration) (Handle, bool, error)
}

// Handle represents a held lock. TryRenew and Release both act
// conditionally on (name, owner) so a handle can never affect a lock
// it no longer owns.
type Handle interface {
	Name() string
	Owner() string
	// TryRenew extends the lock's TTL, returning false if another
	// owner now holds it (the renewal lost the CAS race).
	TryRenew(ctx context.Context, ttl time.Duration) (bool, error)
	// Release deletes the lock record conditional on ownership; a
	// no-op, not an error, if the record is already gone or held by
	// someone else.
	Release(ctx context.Context) error
}
