package sqlstore

import (
	"bytes"
	"context"
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/unkn0wn-root/tiercache/driver"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// one shared in-memory database; more connections would each get their own
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestStore(t *testing.T) (*Store, *clock) {
	t.Helper()
	s, err := New(context.Background(), openTestDB(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ck := &clock{t: time.Unix(1_700_000_000, 0)}
	s.now = ck.now
	return s, ck
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestStoreGetTTL(t *testing.T) {
	ctx := context.Background()
	s, ck := newTestStore(t)

	if err := s.Store(ctx, "k", []byte("v"), "r", time.Minute); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if b, ok, err := s.Get(ctx, "k", "r"); err != nil || !ok || !bytes.Equal(b, []byte("v")) {
		t.Fatalf("Get: ok=%v err=%v b=%q", ok, err, b)
	}

	// after the TTL has elapsed the entry must be gone
	ck.advance(2 * time.Minute)
	if _, ok, err := s.Get(ctx, "k", "r"); err != nil || ok {
		t.Fatalf("Get after expiry: ok=%v err=%v", ok, err)
	}
	if ok, _ := s.Exists(ctx, "k", "r"); ok {
		t.Fatalf("Exists after expiry")
	}
}

func TestTTLZeroNeverExpires(t *testing.T) {
	ctx := context.Background()
	s, ck := newTestStore(t)

	if err := s.Store(ctx, "k", []byte("v"), "r", 0); err != nil {
		t.Fatal(err)
	}
	ck.advance(1000 * time.Hour)
	if _, ok, _ := s.Get(ctx, "k", "r"); !ok {
		t.Fatalf("ttl=0 entry expired")
	}
}

func TestUpsertLastWriteWins(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	if err := s.Store(ctx, "k", []byte("v1"), "r", 0); err != nil {
		t.Fatal(err)
	}
	if err := s.Store(ctx, "k", []byte("v2"), "r", 0); err != nil {
		t.Fatal(err)
	}

	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM cache_entries WHERE name = 'k' AND realm = 'r'`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected exactly one row, got %d", n)
	}
	if b, _, _ := s.Get(ctx, "k", "r"); string(b) != "v2" {
		t.Fatalf("last write lost: %q", b)
	}
}

func TestRemoveIdempotent(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	if ok, err := s.Remove(ctx, "missing", "r"); err != nil || ok {
		t.Fatalf("Remove absent: ok=%v err=%v", ok, err)
	}
	if err := s.Store(ctx, "k", []byte("v"), "r", 0); err != nil {
		t.Fatal(err)
	}
	if ok, err := s.Remove(ctx, "k", "r"); err != nil || !ok {
		t.Fatalf("Remove: ok=%v err=%v", ok, err)
	}
	if _, ok, _ := s.Get(ctx, "k", "r"); ok {
		t.Fatalf("entry readable after remove")
	}
}

func TestClearRealmIsolation(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	_ = s.Store(ctx, "a", []byte("1"), "r1", 0)
	_ = s.Store(ctx, "b", []byte("2"), "r2", 0)

	if err := s.Clear(ctx, "r1"); err != nil {
		t.Fatalf("Clear(r1): %v", err)
	}
	if _, ok, _ := s.Get(ctx, "a", "r1"); ok {
		t.Fatalf("r1 survived clear")
	}
	if _, ok, _ := s.Get(ctx, "b", "r2"); !ok {
		t.Fatalf("r2 lost by clearing r1")
	}

	if err := s.Clear(ctx, ""); err != nil {
		t.Fatalf("Clear all: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "b", "r2"); ok {
		t.Fatalf("entry survived full clear")
	}
}

func TestStartupGC(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	s1, err := New(ctx, db)
	if err != nil {
		t.Fatal(err)
	}
	past := time.Now().Add(-time.Hour)
	s1.now = func() time.Time { return past }
	_ = s1.Store(ctx, "stale", []byte("x"), "r", time.Minute) // expires an hour ago
	_ = s1.Store(ctx, "keep", []byte("y"), "r", 0)

	// a new process over the same database sweeps the expired row
	s2, err := New(ctx, db)
	if err != nil {
		t.Fatal(err)
	}
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM cache_entries`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("gc left %d rows, want 1", n)
	}
	if _, ok, _ := s2.Get(ctx, "keep", "r"); !ok {
		t.Fatalf("unexpired row swept")
	}
}

func TestLoadAllHydrates(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	_ = s.Store(ctx, "a", []byte("1"), "boot", 0)
	_ = s.Store(ctx, "b", []byte("2"), "boot", 0)
	_ = s.Store(ctx, "c", []byte("3"), "other", 0)

	n, err := s.LoadAll(ctx, "boot")
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if n != 2 {
		t.Fatalf("LoadAll count = %d, want 2", n)
	}

	if b, ok := s.Loaded("a", "boot"); !ok || string(b) != "1" {
		t.Fatalf("Loaded(a) = %q ok=%v", b, ok)
	}
	if _, ok := s.Loaded("c", "boot"); ok {
		t.Fatalf("other-realm row hydrated into boot")
	}
}

func TestHydratedRealmHonorsTTL(t *testing.T) {
	ctx := context.Background()
	s, ck := newTestStore(t)

	_ = s.Store(ctx, "seed", []byte("s"), "r", 0)
	if _, err := s.LoadAll(ctx, "r"); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}

	// writes to a hydrated realm must still expire
	if err := s.Store(ctx, "k", []byte("v"), "r", time.Minute); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if b, ok, _ := s.Get(ctx, "k", "r"); !ok || !bytes.Equal(b, []byte("v")) {
		t.Fatalf("Get before expiry: ok=%v b=%q", ok, b)
	}

	ck.advance(2 * time.Minute)
	if _, ok, err := s.Get(ctx, "k", "r"); err != nil || ok {
		t.Fatalf("Get after expiry: ok=%v err=%v", ok, err)
	}
	if ok, _ := s.Exists(ctx, "k", "r"); ok {
		t.Fatalf("Exists after expiry")
	}
	if _, ok := s.Loaded("k", "r"); ok {
		t.Fatalf("Loaded served expired entry")
	}
	if b, ok, _ := s.Get(ctx, "seed", "r"); !ok || !bytes.Equal(b, []byte("s")) {
		t.Fatalf("never-expiring hydrated row lost: ok=%v b=%q", ok, b)
	}
}

func TestLoadAllExpiredHydratedRow(t *testing.T) {
	ctx := context.Background()
	s, ck := newTestStore(t)

	_ = s.Store(ctx, "k", []byte("v"), "r", time.Minute)
	if _, err := s.LoadAll(ctx, "r"); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}

	ck.advance(2 * time.Minute)
	if _, ok, _ := s.Get(ctx, "k", "r"); ok {
		t.Fatalf("preloaded row served past its TTL")
	}
}

func TestAutoloadFlagFiltersLoadAll(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	s1, err := New(ctx, db)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_ = s1.Store(ctx, "hot", []byte("h"), "r", 0)
	if err := s1.StoreWithAutoload(ctx, "cold", []byte("c"), "r", 0, false); err != nil {
		t.Fatalf("StoreWithAutoload: %v", err)
	}

	// a fresh store on the same database preloads only the flagged row
	s2, err := New(ctx, db)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if n, err := s2.LoadAll(ctx, "r"); err != nil || n != 1 {
		t.Fatalf("LoadAll: n=%d err=%v", n, err)
	}
	if _, ok := s2.Loaded("cold", "r"); ok {
		t.Fatalf("non-autoload row hydrated")
	}
	if b, ok, _ := s2.Get(ctx, "cold", "r"); !ok || !bytes.Equal(b, []byte("c")) {
		t.Fatalf("non-autoload row lost to point lookup: ok=%v b=%q", ok, b)
	}
}

func TestBatchOps(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	_ = s.Store(ctx, "gone", []byte("x"), "r", 0)

	if err := s.RemoveBatch(ctx, []driver.Key{{ID: "gone", Realm: "r"}}); err != nil {
		t.Fatalf("RemoveBatch: %v", err)
	}
	if err := s.StoreBatch(ctx, []driver.Entry{
		{Key: driver.Key{ID: "a", Realm: "r"}, Data: []byte("1")},
		{Key: driver.Key{ID: "b", Realm: "r"}, Data: []byte("2"), TTL: time.Hour},
	}); err != nil {
		t.Fatalf("StoreBatch: %v", err)
	}

	if _, ok, _ := s.Get(ctx, "gone", "r"); ok {
		t.Fatalf("batched remove did not apply")
	}
	if b, ok, _ := s.Get(ctx, "a", "r"); !ok || string(b) != "1" {
		t.Fatalf("batched store did not apply: ok=%v b=%q", ok, b)
	}
}

func TestCounterComposition(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	if got, err := s.Inc(ctx, "n", "r", 5); err != nil || got != 5 {
		t.Fatalf("Inc: got=%d err=%v", got, err)
	}
	if got, err := s.Dec(ctx, "n", "r", 2); err != nil || got != 3 {
		t.Fatalf("Dec: got=%d err=%v", got, err)
	}
}
