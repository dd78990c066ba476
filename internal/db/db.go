// Package db defines the counter store that keeps embedding token budgets across restarts.
package db

import (
	"context"
	"time"
)

// Store is the facade owned by the composition root.
type Store interface {
	Pinger
	Counters
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Counters holds integer counters that expire on their own.
type Counters interface {
	// Counter returns the current value. A missing key yields ErrKeyNotFound.
	Counter(ctx context.Context, key string) (int64, error)
	// Add increments key by delta and returns the new value. A positive ttl is set
	// only while the key has no expiry, so later increments do not extend its life.
	Add(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error)
}
