package tiercache

import (
	"context"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/unkn0wn-root/tiercache/driver"
)

// Bindings tie application event names to cache entries so that a later
// Trigger removes the bound entries from their tier(s). Rows live in the
// relational tier; an in-process mirror (event -> bindings) answers Trigger
// lookups. The mirror is rebuilt from rows when cold and the rebuilt mirror
// is itself cached as a msgpack blob in the system realm, so later process
// starts skip the rebuild.

// Bind persists one binding and marks the mirror dirty. The mirror is
// re-synchronized to the db tier during Close.
func (ctl *Controller) Bind(ctx context.Context, event, id, realm string, tier driver.Tier) error {
	if realm == "" {
		realm = DefaultRealm
	}
	b := driver.Binding{Event: event, ID: id, Realm: realm, Tier: tier}
	if err := ctl.sqls.AddBinding(ctx, b); err != nil {
		return err
	}

	ctl.mu.Lock()
	if ctl.warm {
		ctl.mirror[event] = append(ctl.mirror[event], b)
	}
	ctl.dirty = true
	ctl.mu.Unlock()
	return nil
}

// BindMany persists a batch of bindings and returns the number added.
func (ctl *Controller) BindMany(ctx context.Context, bs []driver.Binding) (int, error) {
	for i := range bs {
		if bs[i].Realm == "" {
			bs[i].Realm = DefaultRealm
		}
	}
	n, err := ctl.sqls.AddBindings(ctx, bs)
	if err != nil {
		return 0, err
	}

	ctl.mu.Lock()
	if ctl.warm {
		for _, b := range bs {
			ctl.mirror[b.Event] = append(ctl.mirror[b.Event], b)
		}
	}
	ctl.dirty = true
	ctl.mu.Unlock()
	return n, nil
}

// Unbind deletes binding rows scoped to realm, optionally narrowed to one
// entry id (empty id matches the whole realm). Returns rows removed. The
// mirror is invalidated and rebuilt lazily on the next Trigger.
func (ctl *Controller) Unbind(ctx context.Context, realm, id string) (int64, error) {
	if realm == "" {
		realm = DefaultRealm
	}
	n, err := ctl.sqls.DeleteBindings(ctx, realm, id)
	if err != nil {
		return 0, err
	}

	ctl.mu.Lock()
	ctl.warm = false
	ctl.mirror = nil
	ctl.dirty = true
	ctl.mu.Unlock()
	return n, nil
}

// Trigger fires an application event: every entry bound to it is removed
// from the tier(s) its binding names (TierAll removes mem, disk, db in that
// order). Returns the number of bindings processed. A failed removal is
// reported through hooks/log and the loop continues; the aggregate comes
// back as *TriggerError.
func (ctl *Controller) Trigger(ctx context.Context, event string) (int, error) {
	if err := ctl.warmMirror(ctx); err != nil {
		return 0, err
	}

	ctl.mu.Lock()
	bound := ctl.mirror[event]
	ctl.mu.Unlock()

	var errs []error
	for _, b := range bound {
		if err := ctl.removeFromTier(ctx, b.ID, b.Realm, b.Tier); err != nil {
			ctl.log.Warn("bound entry removal failed", Fields{
				"event": event, "id": b.ID, "realm": b.Realm, "tier": b.Tier.String(), "err": err,
			})
			ctl.hooks.TriggerRemoveFailed(event, b, err)
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return len(bound), &TriggerError{Event: event, Errs: errs}
	}
	return len(bound), nil
}

// warmMirror ensures the in-process mirror is populated: first from the
// cached blob in the system realm, else rebuilt from the binding rows and
// written back as a blob for the next process.
func (ctl *Controller) warmMirror(ctx context.Context) error {
	ctl.mu.Lock()
	if ctl.warm {
		ctl.mu.Unlock()
		return nil
	}
	ctl.mu.Unlock()

	if blob, ok, err := ctl.db.Get(ctx, mirrorEntryID, SystemRealm); err == nil && ok {
		var mirror map[string][]driver.Binding
		if err := msgpack.Unmarshal(blob, &mirror); err == nil {
			ctl.mu.Lock()
			ctl.mirror = mirror
			ctl.warm = true
			ctl.mu.Unlock()
			ctl.hooks.MirrorRebuilt(len(mirror), "blob")
			return nil
		}
		// corrupt blob: fall through to a row rebuild, which rewrites it
		ctl.log.Warn("binding mirror blob corrupt, rebuilding from rows", nil)
	}

	rows, err := ctl.sqls.AllBindings(ctx)
	if err != nil {
		return err
	}
	mirror := make(map[string][]driver.Binding, len(rows))
	for _, b := range rows {
		mirror[b.Event] = append(mirror[b.Event], b)
	}

	ctl.mu.Lock()
	ctl.mirror = mirror
	ctl.warm = true
	ctl.dirty = true // persist the rebuilt mirror before process end
	ctl.mu.Unlock()

	ctl.hooks.MirrorRebuilt(len(mirror), "rows")
	ctl.log.Debug("binding mirror rebuilt", Fields{"events": len(mirror), "bindings": len(rows)})
	return nil
}

// persistMirror writes the warm mirror back to the db tier when bindings
// changed during this process. Runs during Close.
func (ctl *Controller) persistMirror(ctx context.Context) error {
	ctl.mu.Lock()
	dirty, warm := ctl.dirty, ctl.warm
	mirror := ctl.mirror
	ctl.mu.Unlock()

	if !dirty {
		return nil
	}
	if !warm {
		// bindings changed but the mirror was never built in this process;
		// drop the stale blob so the next process rebuilds from rows
		_, err := ctl.db.RemoveNow(ctx, mirrorEntryID, SystemRealm)
		return err
	}

	blob, err := msgpack.Marshal(mirror)
	if err != nil {
		return err
	}
	if err := ctl.db.StoreNow(ctx, mirrorEntryID, blob, SystemRealm, 0); err != nil {
		return err
	}

	ctl.mu.Lock()
	ctl.dirty = false
	ctl.mu.Unlock()
	return nil
}
