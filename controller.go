package tiercache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	c "github.com/unkn0wn-root/tiercache/codec"
	"github.com/unkn0wn-root/tiercache/driver"
	"github.com/unkn0wn-root/tiercache/driver/disk"
	"github.com/unkn0wn-root/tiercache/driver/sqlstore"
	"github.com/unkn0wn-root/tiercache/driver/writeback"
)

// Controller is the multi-tier cache façade: one static disk driver, one
// write-back buffered relational driver and one volatile driver selected at
// startup, plus the event-binding registry for cross-tier invalidation.
//
// Created once per process and torn down once per process; Close flushes the
// write-back buffer and re-persists the binding mirror, so it must run on
// all exit paths.
type Controller struct {
	disk *disk.Store
	sqls *sqlstore.Store
	db   *writeback.Store
	mem  driver.DynamicStore

	memID    string
	degraded bool

	codec c.Codec[any]
	log   Logger
	hooks Hooks

	// binding mirror; warm after the first rebuild, dirty after mutations
	mu     sync.Mutex
	mirror map[string][]driver.Binding
	warm   bool
	dirty  bool

	closeOnce sync.Once
	closeErr  error
}

func newController(ctx context.Context, opts Options) (*Controller, error) {
	ctl := &Controller{
		codec: opts.Codec,
		log:   coalesce[Logger](opts.Logger, NopLogger{}),
		hooks: coalesce[Hooks](opts.Hooks, NopHooks{}),
	}
	if ctl.codec == nil {
		ctl.codec = c.Msgpack[any]{}
	}

	var err error
	if ctl.disk, err = disk.New(opts.Fs, opts.Dir); err != nil {
		return nil, &InitError{Tier: driver.TierDisk, Err: err}
	}

	if ctl.sqls, err = sqlstore.New(ctx, opts.DB); err != nil {
		return nil, &InitError{Tier: driver.TierDB, Err: err}
	}
	ctl.db = writeback.Wrap(ctl.sqls)

	realms := append([]string{DefaultRealm, SystemRealm}, opts.AutoloadRealms...)
	if n, err := ctl.sqls.LoadAll(ctx, realms...); err != nil {
		return nil, &InitError{Tier: driver.TierDB, Err: err}
	} else if n > 0 {
		ctl.log.Debug("preloaded autoload rows", Fields{"rows": n, "realms": realms})
	}

	ctl.selectVolatile(ctx, opts)
	return ctl, nil
}

// selectVolatile probes the registered drivers once and picks the mem tier:
// the preferred id when available, else the first available registration,
// else the relational tier itself (degraded but correct).
func (ctl *Controller) selectVolatile(ctx context.Context, opts Options) {
	reg := driver.NewRegistry(ctx, opts.Drivers)

	candidates := reg.Available()
	if opts.Preferred != "" && reg.Has(opts.Preferred) {
		candidates = append([]string{opts.Preferred}, candidates...)
	} else if opts.Preferred != "" {
		ctl.log.Warn("preferred volatile driver unavailable", Fields{"preferred": opts.Preferred})
	}

	for _, id := range candidates {
		mem, ok, err := reg.Open(ctx, id)
		if err != nil {
			ctl.log.Warn("volatile driver failed to open", Fields{"driver": id, "err": err})
			continue
		}
		if ok {
			ctl.mem, ctl.memID = mem, id
			ctl.log.Info("volatile driver selected", Fields{"driver": id})
			ctl.hooks.DriverSelected(id, false)
			return
		}
	}

	// no accelerator on this host: serve the mem tier from the relational
	// store, durable and correct but without the latency win
	ctl.mem, ctl.memID, ctl.degraded = ctl.db, "db", true
	ctl.log.Warn("no volatile driver available, mem tier degraded to db", nil)
	ctl.hooks.DriverSelected("db", true)
}

// Backend reports whether a real volatile driver serves the mem tier, and
// its identifier ("db" when degraded).
func (ctl *Controller) Backend() (bool, string) {
	return !ctl.degraded, ctl.memID
}

// Info reports the volatile driver's memory-usage figures.
func (ctl *Controller) Info(ctx context.Context) (driver.Usage, error) {
	return ctl.mem.Usage(ctx)
}

// --- disk tier ---

func (ctl *Controller) DiskGet(ctx context.Context, id, realm string) (any, bool, error) {
	b, ok, err := ctl.disk.Get(ctx, id, realm)
	if err != nil || !ok {
		return nil, false, err
	}
	return ctl.decode(b)
}

func (ctl *Controller) DiskSet(ctx context.Context, id string, value any, realm string) error {
	b, err := ctl.codec.Encode(value)
	if err != nil {
		return err
	}
	return ctl.disk.Store(ctx, id, b, realm)
}

func (ctl *Controller) DiskUnset(ctx context.Context, id, realm string) (bool, error) {
	return ctl.disk.Remove(ctx, id, realm)
}

func (ctl *Controller) DiskIsset(ctx context.Context, id, realm string) (bool, error) {
	return ctl.disk.Exists(ctx, id, realm)
}

// --- db tier (write-back buffered) ---

func (ctl *Controller) DBGet(ctx context.Context, id, realm string) (any, bool, error) {
	b, ok, err := ctl.db.Get(ctx, id, realm)
	if err != nil || !ok {
		return nil, false, err
	}
	return ctl.decode(b)
}

// DBSet buffers the write; it becomes durable at Close. Use DBSetNow when
// another process must observe the entry immediately.
func (ctl *Controller) DBSet(ctx context.Context, id string, value any, realm string, ttl time.Duration) error {
	b, err := ctl.codec.Encode(value)
	if err != nil {
		return err
	}
	return ctl.db.Store(ctx, id, b, realm, ttl)
}

func (ctl *Controller) DBSetNow(ctx context.Context, id string, value any, realm string, ttl time.Duration) error {
	b, err := ctl.codec.Encode(value)
	if err != nil {
		return err
	}
	return ctl.db.StoreNow(ctx, id, b, realm, ttl)
}

func (ctl *Controller) DBUnset(ctx context.Context, id, realm string) (bool, error) {
	return ctl.db.Remove(ctx, id, realm)
}

func (ctl *Controller) DBUnsetNow(ctx context.Context, id, realm string) (bool, error) {
	return ctl.db.RemoveNow(ctx, id, realm)
}

func (ctl *Controller) DBIsset(ctx context.Context, id, realm string) (bool, error) {
	return ctl.db.Exists(ctx, id, realm)
}

// DBLoad bulk-preloads the autoload rows of the given realms into process
// memory and returns the number of rows loaded.
func (ctl *Controller) DBLoad(ctx context.Context, realms ...string) (int, error) {
	return ctl.sqls.LoadAll(ctx, realms...)
}

// --- mem tier (volatile) ---

func (ctl *Controller) MemGet(ctx context.Context, id, realm string) (any, bool, error) {
	b, ok, err := ctl.mem.Get(ctx, id, realm)
	if err != nil || !ok {
		return nil, false, err
	}
	return ctl.decode(b)
}

func (ctl *Controller) MemSet(ctx context.Context, id string, value any, realm string, ttl time.Duration) error {
	b, err := ctl.codec.Encode(value)
	if err != nil {
		return err
	}
	return ctl.mem.Store(ctx, id, b, realm, ttl)
}

func (ctl *Controller) MemUnset(ctx context.Context, id, realm string) (bool, error) {
	return ctl.mem.Remove(ctx, id, realm)
}

func (ctl *Controller) MemIsset(ctx context.Context, id, realm string) (bool, error) {
	return ctl.mem.Exists(ctx, id, realm)
}

// MemInc adds delta to the counter under (id, realm) in the volatile tier,
// preferring the driver's native atomic primitive.
func (ctl *Controller) MemInc(ctx context.Context, id, realm string, delta int64) (int64, error) {
	if cnt, ok := ctl.mem.(driver.Counter); ok {
		return cnt.Inc(ctx, id, realm, delta)
	}
	return driver.AddDelta(ctx, ctl.mem, id, realm, delta)
}

func (ctl *Controller) MemDec(ctx context.Context, id, realm string, delta int64) (int64, error) {
	if cnt, ok := ctl.mem.(driver.Counter); ok {
		return cnt.Dec(ctx, id, realm, delta)
	}
	return driver.AddDelta(ctx, ctl.mem, id, realm, -delta)
}

// --- tier-spanning bulk operations ---

// Clear empties one tier, or all three with TierAll.
func (ctl *Controller) Clear(ctx context.Context, tier driver.Tier) error {
	return ctl.clearRealm(ctx, "", tier)
}

// ClearRealm empties one realm in the selected tier(s).
func (ctl *Controller) ClearRealm(ctx context.Context, realm string, tier driver.Tier) error {
	if realm == "" {
		realm = DefaultRealm
	}
	return ctl.clearRealm(ctx, realm, tier)
}

func (ctl *Controller) clearRealm(ctx context.Context, realm string, tier driver.Tier) error {
	switch tier {
	case driver.TierMem:
		return ctl.mem.Clear(ctx, realm)
	case driver.TierDisk:
		return ctl.disk.Clear(ctx, realm)
	case driver.TierDB:
		return ctl.db.Clear(ctx, realm)
	case driver.TierAll:
		if err := ctl.mem.Clear(ctx, realm); err != nil {
			return err
		}
		if err := ctl.disk.Clear(ctx, realm); err != nil {
			return err
		}
		return ctl.db.Clear(ctx, realm)
	}
	return fmt.Errorf("tiercache: unknown tier %d", tier)
}

// removeFromTier dispatches one entry removal for binding triggers.
// TierAll attempts mem, disk and db in that order; a tier's failure does not
// skip the remaining tiers, so a stale durable copy cannot hide behind a
// volatile error.
func (ctl *Controller) removeFromTier(ctx context.Context, id, realm string, tier driver.Tier) error {
	switch tier {
	case driver.TierMem:
		_, err := ctl.mem.Remove(ctx, id, realm)
		return err
	case driver.TierDisk:
		_, err := ctl.disk.Remove(ctx, id, realm)
		return err
	case driver.TierDB:
		_, err := ctl.db.Remove(ctx, id, realm)
		return err
	case driver.TierAll:
		var errs []error
		if _, err := ctl.mem.Remove(ctx, id, realm); err != nil {
			errs = append(errs, err)
		}
		if _, err := ctl.disk.Remove(ctx, id, realm); err != nil {
			errs = append(errs, err)
		}
		if _, err := ctl.db.Remove(ctx, id, realm); err != nil {
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	}
	return fmt.Errorf("tiercache: unknown tier %d", tier)
}

// Close persists the binding mirror if it changed, flushes the write-back
// buffer and closes the volatile driver. Runs at most once; later calls
// return the first result.
func (ctl *Controller) Close(ctx context.Context) error {
	ctl.closeOnce.Do(func() {
		if err := ctl.persistMirror(ctx); err != nil {
			ctl.log.Error("binding mirror persist failed", Fields{"err": err})
			ctl.closeErr = err
		}

		if err := ctl.db.Close(ctx); err != nil {
			ctl.log.Error("write-back flush failed", Fields{"err": err})
			ctl.hooks.FlushFailed(err)
			if ctl.closeErr == nil {
				ctl.closeErr = err
			}
		}

		if !ctl.degraded {
			if err := ctl.mem.Close(ctx); err != nil && ctl.closeErr == nil {
				ctl.closeErr = err
			}
		}
	})
	return ctl.closeErr
}

func (ctl *Controller) decode(b []byte) (any, bool, error) {
	v, err := ctl.codec.Decode(b)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}
