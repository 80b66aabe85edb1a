package bigcache

import (
	"bytes"
	"context"
	"testing"
	"time"
)

func newTestStore(t *testing.T) (*Store, *time.Time) {
	t.Helper()
	s, err := New(context.Background(), Config{LifeWindow: time.Hour})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close(context.Background()) })

	now := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return now }
	return s, &now
}

func TestRoundTripAndTTL(t *testing.T) {
	ctx := context.Background()
	s, now := newTestStore(t)

	if err := s.Store(ctx, "k", []byte("v"), "r", time.Minute); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if b, ok, err := s.Get(ctx, "k", "r"); err != nil || !ok || !bytes.Equal(b, []byte("v")) {
		t.Fatalf("Get: ok=%v err=%v b=%q", ok, err, b)
	}

	// simulated clock past the deadline: entry is gone
	*now = now.Add(2 * time.Minute)
	if _, ok, err := s.Get(ctx, "k", "r"); err != nil || ok {
		t.Fatalf("Get after expiry: ok=%v err=%v", ok, err)
	}
	if ok, _ := s.Exists(ctx, "k", "r"); ok {
		t.Fatalf("Exists after expiry")
	}
}

func TestTTLZeroNeverExpires(t *testing.T) {
	ctx := context.Background()
	s, now := newTestStore(t)

	if err := s.Store(ctx, "k", []byte("v"), "r", 0); err != nil {
		t.Fatal(err)
	}
	*now = now.Add(240 * time.Hour)
	if _, ok, _ := s.Get(ctx, "k", "r"); !ok {
		t.Fatalf("ttl=0 entry expired")
	}
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	if ok, err := s.Remove(ctx, "missing", "r"); err != nil || ok {
		t.Fatalf("Remove absent: ok=%v err=%v", ok, err)
	}
	_ = s.Store(ctx, "k", []byte("v"), "r", 0)
	if ok, err := s.Remove(ctx, "k", "r"); err != nil || !ok {
		t.Fatalf("Remove: ok=%v err=%v", ok, err)
	}
	if _, ok, _ := s.Get(ctx, "k", "r"); ok {
		t.Fatalf("entry readable after remove")
	}
}

func TestClearRealmPrefix(t *testing.T) {
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
		t.Fatalf("entry survived full reset")
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

func TestCorruptEntrySelfHeals(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	// bypass the envelope: write raw bytes straight into the cache
	if err := s.c.Set("r:bad", []byte("not-an-envelope")); err != nil {
		t.Fatal(err)
	}
	if _, ok, err := s.Get(ctx, "bad", "r"); err != nil || ok {
		t.Fatalf("corrupt entry should miss: ok=%v err=%v", ok, err)
	}
	if _, err := s.c.Get("r:bad"); err == nil {
		t.Fatalf("corrupt entry not deleted")
	}
}
