package tiercache

import (
	"context"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/unkn0wn-root/tiercache/driver"
)

// Typed accessors for callers that know the concrete value type of an entry.
// They bypass the controller's Codec[any] and (de)serialize with msgpack
// directly, so they interoperate with the default codec only. With a custom
// Options.Codec, use the untyped tier methods instead.

// Get reads (id, realm) from the given tier and decodes into V.
func Get[V any](ctx context.Context, ctl *Controller, tier driver.Tier, id, realm string) (V, bool, error) {
	var zero V

	var (
		b   []byte
		ok  bool
		err error
	)
	switch tier {
	case driver.TierMem:
		b, ok, err = ctl.mem.Get(ctx, id, realm)
	case driver.TierDisk:
		b, ok, err = ctl.disk.Get(ctx, id, realm)
	case driver.TierDB:
		b, ok, err = ctl.db.Get(ctx, id, realm)
	default:
		return zero, false, fmt.Errorf("tiercache: get: unknown tier %d", tier)
	}
	if err != nil || !ok {
		return zero, false, err
	}

	var v V
	if err := msgpack.Unmarshal(b, &v); err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// Set encodes value with msgpack and stores it in the given tier. The ttl is
// ignored by the static disk tier.
func Set[V any](ctx context.Context, ctl *Controller, tier driver.Tier, id string, value V, realm string, ttl time.Duration) error {
	b, err := msgpack.Marshal(value)
	if err != nil {
		return err
	}
	switch tier {
	case driver.TierMem:
		return ctl.mem.Store(ctx, id, b, realm, ttl)
	case driver.TierDisk:
		return ctl.disk.Store(ctx, id, b, realm)
	case driver.TierDB:
		return ctl.db.Store(ctx, id, b, realm, ttl)
	}
	return fmt.Errorf("tiercache: set: unknown tier %d", tier)
}
