// Package tiercache implements a layered cache controller coordinating three
// storage tiers behind pluggable backend drivers: a durable disk tier
// without expiry, a durable relational tier with write-back buffering, and a
// volatile accelerator tier selected at startup from whichever backends are
// available on the host.
//
// Components:
//   - driver: capability contracts (StaticStore, DynamicStore, Counter) and
//     the probe-once registry of volatile backends.
//   - driver/disk, driver/sqlstore, driver/writeback: the durable tiers.
//   - driver/bigcache, driver/ristretto, driver/redis: volatile backends.
//   - codec: value (de)serialization; msgpack by default.
//
// Entries are addressed by (id, realm), realm being a namespace partition of
// the key space. Writes to the db tier are buffered in-process and flushed
// as one batch when the controller closes; Close must therefore run on every
// exit path:
//
//	ctl, err := tiercache.New(ctx, opts)
//	if err != nil { ... }
//	defer ctl.Close(ctx)
//
// Cross-tier invalidation is event driven: Bind associates an event name
// with an entry and a tier, Trigger removes every entry bound to the event.
// Bindings are durable; an in-process mirror of them is cached in the
// relational tier so process starts stay cheap.
package tiercache
