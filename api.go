package tiercache

import (
	"context"
	"database/sql"

	"github.com/spf13/afero"

	c "github.com/unkn0wn-root/tiercache/codec"
	"github.com/unkn0wn-root/tiercache/driver"
)

const (
	// DefaultRealm partitions entries of callers that never name a realm.
	DefaultRealm = "cot"

	// SystemRealm holds controller-owned state such as the persisted binding
	// mirror. Application code should not write to it.
	SystemRealm = "system"

	// mirrorEntryID is the db-tier entry caching the rebuilt binding mirror.
	mirrorEntryID = "bindings"
)

// Options tune the controller. Dir and DB are required; everything else has
// a sensible default.
type Options struct {
	// Required
	Dir string  // disk tier cache root
	DB  *sql.DB // relational backing store; owned by the caller

	// Drivers are the volatile backend candidates, probed in order at
	// construction. With none available the controller degrades to serving
	// the mem tier from the relational store.
	Drivers []driver.Registration

	// Preferred names the volatile driver to select when its probe
	// succeeded; otherwise the first available registration wins.
	Preferred string

	// AutoloadRealms are bulk-preloaded from the relational tier at
	// construction, in addition to the always-loaded DefaultRealm and
	// SystemRealm.
	AutoloadRealms []string

	Codec  c.Codec[any] // nil => codec.Msgpack[any]
	Logger Logger       // nil => NopLogger
	Hooks  Hooks        // nil => NopHooks
	Fs     afero.Fs     // disk tier filesystem; nil => the OS filesystem
}

// New constructs the controller: disk tier first, then the relational tier
// (schema + expired-row GC + realm preload), then volatile driver selection.
// Tier construction failures are fatal (*InitError).
//
// The caller must arrange for Close to run on every exit path, normally via
// defer; the relational tier's buffered writes are flushed there.
func New(ctx context.Context, opts Options) (*Controller, error) {
	return newController(ctx, opts)
}
