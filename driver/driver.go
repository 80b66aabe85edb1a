// Package driver defines the storage capability surface used by tiercache.
//
// Backends are split into small composable contracts instead of one wide
// interface: StaticStore for durable storage without expiry, DynamicStore
// for TTL-aware storage and Counter for atomic numeric mutation. A concrete
// backend declares which contracts it satisfies; the controller discovers
// optional capabilities by type assertion.
//
// Implementations MUST be byte-for-byte transparent: Get must return exactly
// the same []byte that was previously passed to Store for a (id, realm) pair.
// If a store performs internal transforms (e.g., compression, expiry framing),
// they MUST be fully reversed before returning.
//
// A cache miss is never an error: Get returns (nil, false, nil) and Exists
// returns (false, nil). Errors are reserved for backend/IO failures.
package driver

import (
	"context"
	"time"
)

// Key identifies one cache entry. Within one (tier, realm) the ID is unique;
// last write wins.
type Key struct {
	ID    string
	Realm string
}

// Entry is a pending or materialized cache entry. TTL == 0 means no expiry.
// Autoload marks the entry for bulk preload on backends that support it;
// stores without the concept ignore it.
type Entry struct {
	Key
	Data     []byte
	TTL      time.Duration
	Autoload bool
}

// StaticStore is durable key-value storage without an expiry concept.
type StaticStore interface {
	// Exists reports whether the entry is present. Pure lookup, no side effects.
	Exists(ctx context.Context, id, realm string) (bool, error)

	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	Get(ctx context.Context, id, realm string) ([]byte, bool, error)

	// Store overwrites unconditionally, creating the realm partition if absent.
	Store(ctx context.Context, id string, data []byte, realm string) error

	// Remove deletes the entry. Idempotent; returns false when absent.
	Remove(ctx context.Context, id, realm string) (bool, error)

	// Clear removes all entries in realm; an empty realm clears everything.
	Clear(ctx context.Context, realm string) error
}

// DynamicStore is key-value storage with per-entry TTL. It is the base
// contract for all expiring tiers (relational, volatile).
type DynamicStore interface {
	Exists(ctx context.Context, id, realm string) (bool, error)
	Get(ctx context.Context, id, realm string) ([]byte, bool, error)

	// Store overwrites unconditionally. ttl == 0 means the entry never expires.
	Store(ctx context.Context, id string, data []byte, realm string, ttl time.Duration) error

	Remove(ctx context.Context, id, realm string) (bool, error)
	Clear(ctx context.Context, realm string) error

	// Usage reports the backend's memory figures; -1 for any figure the
	// backend cannot report.
	Usage(ctx context.Context) (Usage, error)

	// Close releases resources. Buffering stores flush here.
	Close(ctx context.Context) error
}

// Counter is the atomic increment/decrement extension. Backends with a native
// atomic primitive implement it directly; others delegate to AddDelta, which
// is best-effort only under concurrent writers from multiple processes.
type Counter interface {
	// Inc adds delta to the numeric value under (id, realm), treating a
	// missing entry as 0, and returns the new value.
	Inc(ctx context.Context, id, realm string, delta int64) (int64, error)

	// Dec subtracts delta and returns the new value.
	Dec(ctx context.Context, id, realm string, delta int64) (int64, error)
}

// Usage is a backend memory report. Figures a backend cannot determine are -1.
type Usage struct {
	Available int64
	Used      int64
	Max       int64
}

// UnknownUsage is the all-unknown report for backends with no introspection.
var UnknownUsage = Usage{Available: -1, Used: -1, Max: -1}
