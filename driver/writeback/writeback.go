// Package writeback wraps a batch-capable dynamic store so that Store and
// Remove are buffered in memory and applied as two batched operations when
// the owning process ends. Batching amortizes round-trip cost for high-churn
// relational or networked backends at the price of a durability window:
// buffered entries are visible through this instance immediately but are not
// durable (or visible to other processes) until Flush.
//
// Program order is preserved per key: a remove queued after a store results
// in eventual deletion, and a store queued after a remove wins. Flush applies
// all pending removals as one batched delete, then all pending stores as one
// batched upsert.
package writeback

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/unkn0wn-root/tiercache/driver"
)

// BatchStore is the inner-store contract: a dynamic store that can apply a
// set of removals and a set of upserts as single batched operations.
type BatchStore interface {
	driver.DynamicStore
	StoreBatch(ctx context.Context, entries []driver.Entry) error
	RemoveBatch(ctx context.Context, keys []driver.Key) error
}

// FlushError reports a failed end-of-life flush. Flush happens at process
// end, so there is no later retry point within this process; the next
// process's startup GC sweeps whatever expired remnants remain.
type FlushError struct {
	RemoveErr error
	StoreErr  error
}

func (e *FlushError) Error() string {
	switch {
	case e.RemoveErr != nil && e.StoreErr != nil:
		return fmt.Sprintf("writeback: flush failed: removals=%v; stores=%v", e.RemoveErr, e.StoreErr)
	case e.RemoveErr != nil:
		return fmt.Sprintf("writeback: flush removals failed: %v", e.RemoveErr)
	case e.StoreErr != nil:
		return fmt.Sprintf("writeback: flush stores failed: %v", e.StoreErr)
	}
	return "writeback: flush failed"
}

func (e *FlushError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.RemoveErr != nil {
		errs = append(errs, e.RemoveErr)
	}
	if e.StoreErr != nil {
		errs = append(errs, e.StoreErr)
	}
	return errs
}

// Store is the buffering decorator. Reads consult the pending batch first so
// the instance observes its own writes before they are durable.
type Store struct {
	inner BatchStore

	mu       sync.Mutex
	pending  []driver.Entry            // ordered; later entries for a key supersede earlier ones
	removals map[driver.Key]struct{}

	flushOnce sync.Once
	flushErr  error
}

var (
	_ driver.DynamicStore = (*Store)(nil)
	_ driver.Counter      = (*Store)(nil)
)

// Wrap decorates inner with write-back buffering.
func Wrap(inner BatchStore) *Store {
	return &Store{
		inner:    inner,
		removals: make(map[driver.Key]struct{}),
	}
}

// Store queues the entry. A pending removal for the same key is cancelled:
// the store was queued later, so it wins.
func (s *Store) Store(_ context.Context, id string, data []byte, realm string, ttl time.Duration) error {
	k := driver.Key{ID: id, Realm: realm}
	s.mu.Lock()
	delete(s.removals, k)
	s.pending = append(s.pending, driver.Entry{Key: k, Data: data, TTL: ttl, Autoload: true})
	s.mu.Unlock()
	return nil
}

// Remove queues the deletion and drops any pending store for the key so a
// reordered flush cannot lose the remove. The return value reports whether
// the entry was visible through this decorator at call time; a key already
// masked by a queued removal reads as absent, so removing it again is a
// no-op returning false.
func (s *Store) Remove(ctx context.Context, id, realm string) (bool, error) {
	k := driver.Key{ID: id, Realm: realm}

	s.mu.Lock()
	if _, queued := s.removals[k]; queued {
		s.mu.Unlock()
		return false, nil
	}
	hadPending := s.dropPending(k)
	s.removals[k] = struct{}{}
	s.mu.Unlock()

	if hadPending {
		return true, nil
	}
	return s.inner.Exists(ctx, id, realm)
}

// StoreNow bypasses the buffer for callers needing immediate durability.
func (s *Store) StoreNow(ctx context.Context, id string, data []byte, realm string, ttl time.Duration) error {
	k := driver.Key{ID: id, Realm: realm}
	s.mu.Lock()
	s.dropPending(k)
	delete(s.removals, k)
	s.mu.Unlock()
	return s.inner.Store(ctx, id, data, realm, ttl)
}

// RemoveNow bypasses the buffer.
func (s *Store) RemoveNow(ctx context.Context, id, realm string) (bool, error) {
	k := driver.Key{ID: id, Realm: realm}
	s.mu.Lock()
	s.dropPending(k)
	delete(s.removals, k)
	s.mu.Unlock()
	return s.inner.Remove(ctx, id, realm)
}

func (s *Store) Exists(ctx context.Context, id, realm string) (bool, error) {
	if _, state := s.pendingState(id, realm); state != pendingNone {
		return state == pendingStore, nil
	}
	return s.inner.Exists(ctx, id, realm)
}

func (s *Store) Get(ctx context.Context, id, realm string) ([]byte, bool, error) {
	if e, state := s.pendingState(id, realm); state != pendingNone {
		if state == pendingRemove {
			return nil, false, nil
		}
		return e.Data, true, nil
	}
	return s.inner.Get(ctx, id, realm)
}

// Clear is not buffered: pending state for the realm is discarded and the
// inner store is cleared immediately.
func (s *Store) Clear(ctx context.Context, realm string) error {
	s.mu.Lock()
	if realm == "" {
		s.pending = nil
		s.removals = make(map[driver.Key]struct{})
	} else {
		kept := s.pending[:0]
		for _, e := range s.pending {
			if e.Realm != realm {
				kept = append(kept, e)
			}
		}
		s.pending = kept
		for k := range s.removals {
			if k.Realm == realm {
				delete(s.removals, k)
			}
		}
	}
	s.mu.Unlock()
	return s.inner.Clear(ctx, realm)
}

func (s *Store) Inc(ctx context.Context, id, realm string, delta int64) (int64, error) {
	return driver.AddDelta(ctx, s, id, realm, delta)
}

func (s *Store) Dec(ctx context.Context, id, realm string, delta int64) (int64, error) {
	return driver.AddDelta(ctx, s, id, realm, -delta)
}

func (s *Store) Usage(ctx context.Context) (driver.Usage, error) {
	return s.inner.Usage(ctx)
}

// Flush applies the pending batches: removals first, then upserts. Runs at
// most once per instance; later calls return the first result. Errors are
// reported but the buffers are dropped either way; there is no retry point
// after process end.
func (s *Store) Flush(ctx context.Context) error {
	s.flushOnce.Do(func() {
		s.mu.Lock()
		removals := make([]driver.Key, 0, len(s.removals))
		for k := range s.removals {
			removals = append(removals, k)
		}
		stores := dedupLastWins(s.pending)
		s.pending = nil
		s.removals = make(map[driver.Key]struct{})
		s.mu.Unlock()

		var fe FlushError
		if len(removals) > 0 {
			fe.RemoveErr = s.inner.RemoveBatch(ctx, removals)
		}
		if len(stores) > 0 {
			fe.StoreErr = s.inner.StoreBatch(ctx, stores)
		}
		if fe.RemoveErr != nil || fe.StoreErr != nil {
			s.flushErr = &fe
		}
	})
	return s.flushErr
}

// Close flushes and closes the inner store. Guaranteed single flush on all
// exit paths as long as the owner defers Close.
func (s *Store) Close(ctx context.Context) error {
	ferr := s.Flush(ctx)
	cerr := s.inner.Close(ctx)
	if ferr != nil {
		return ferr
	}
	return cerr
}

type pendingKind int

const (
	pendingNone pendingKind = iota
	pendingStore
	pendingRemove
)

// pendingState reports how the buffer currently sees (id, realm): served by a
// queued store, masked by a queued remove, or untouched.
func (s *Store) pendingState(id, realm string) (driver.Entry, pendingKind) {
	k := driver.Key{ID: id, Realm: realm}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.removals[k]; ok {
		return driver.Entry{}, pendingRemove
	}
	// scan backwards: the latest queued store for the key is authoritative
	for i := len(s.pending) - 1; i >= 0; i-- {
		if s.pending[i].Key == k {
			return s.pending[i], pendingStore
		}
	}
	return driver.Entry{}, pendingNone
}

// dropPending removes every queued store for k. Caller holds mu.
func (s *Store) dropPending(k driver.Key) bool {
	dropped := false
	kept := s.pending[:0]
	for _, e := range s.pending {
		if e.Key == k {
			dropped = true
			continue
		}
		kept = append(kept, e)
	}
	s.pending = kept
	return dropped
}

// dedupLastWins collapses the ordered pending slice so each key flushes
// exactly one upsert holding its final value.
func dedupLastWins(pending []driver.Entry) []driver.Entry {
	if len(pending) == 0 {
		return nil
	}
	last := make(map[driver.Key]int, len(pending))
	for i, e := range pending {
		last[e.Key] = i
	}
	out := make([]driver.Entry, 0, len(last))
	for i, e := range pending {
		if last[e.Key] == i {
			out = append(out, e)
		}
	}
	return out
}

// String summarizes buffered state for debugging.
func (s *Store) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("writeback{pending=%d removals=%d}", len(s.pending), len(s.removals))
}
