package store

import (
	"context"
	"time"
)

// StoreProvider remembers fingerprints that were already relayed.
type StoreProvider interface {
	// MarkSeen records every fingerprint that is not stored yet, stamping it
	// with seenAt, and reports per input position whether it was new.
	// A fingerprint repeated inside one call is new only at its first position.
	// Entries stamped during the call are never evicted by that same call.
	MarkSeen(ctx context.Context, fingerprints []string, seenAt time.Time) (fresh []bool, err error)

	// DeleteOlderThan removes entries first seen before cutoff.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (removed int, err error)

	Count(ctx context.Context) (int, error)

	// Clear removes every entry and returns how many were removed.
	Clear(ctx context.Context) (int, error)
}
