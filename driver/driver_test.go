package driver

import (
	"context"
	"testing"
	"time"
)

// fakeStore is a minimal in-memory DynamicStore for exercising the package
// helpers without a real backend.
type fakeStore struct {
	m map[string][]byte
}

var _ DynamicStore = (*fakeStore)(nil)

func newFakeStore() *fakeStore { return &fakeStore{m: make(map[string][]byte)} }

func (f *fakeStore) key(id, realm string) string { return realm + ":" + id }

func (f *fakeStore) Exists(_ context.Context, id, realm string) (bool, error) {
	_, ok := f.m[f.key(id, realm)]
	return ok, nil
}

func (f *fakeStore) Get(_ context.Context, id, realm string) ([]byte, bool, error) {
	b, ok := f.m[f.key(id, realm)]
	return b, ok, nil
}

func (f *fakeStore) Store(_ context.Context, id string, data []byte, realm string, _ time.Duration) error {
	f.m[f.key(id, realm)] = data
	return nil
}

func (f *fakeStore) Remove(_ context.Context, id, realm string) (bool, error) {
	k := f.key(id, realm)
	_, ok := f.m[k]
	delete(f.m, k)
	return ok, nil
}

func (f *fakeStore) Clear(_ context.Context, realm string) error {
	if realm == "" {
		f.m = make(map[string][]byte)
	}
	return nil
}

func (f *fakeStore) Usage(context.Context) (Usage, error) { return UnknownUsage, nil }
func (f *fakeStore) Close(context.Context) error          { return nil }

func TestAddDeltaRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newFakeStore()

	// absent key reads as 0
	got, err := AddDelta(ctx, s, "hits", "stats", 5)
	if err != nil || got != 5 {
		t.Fatalf("inc on absent key: got=%d err=%v, want 5", got, err)
	}

	got, err = AddDelta(ctx, s, "hits", "stats", -2)
	if err != nil || got != 3 {
		t.Fatalf("dec: got=%d err=%v, want 3", got, err)
	}

	// stored representation is decimal ASCII
	b, ok, _ := s.Get(ctx, "hits", "stats")
	if !ok || string(b) != "3" {
		t.Fatalf("stored counter = %q ok=%v, want \"3\"", b, ok)
	}
}

func TestAddDeltaNonNumeric(t *testing.T) {
	ctx := context.Background()
	s := newFakeStore()
	if err := s.Store(ctx, "k", []byte("not-a-number"), "r", 0); err != nil {
		t.Fatal(err)
	}
	if _, err := AddDelta(ctx, s, "k", "r", 1); err == nil {
		t.Fatalf("expected error on non-numeric value")
	}
}
