package sqlstore

import (
	"context"
	"testing"

	"github.com/unkn0wn-root/tiercache/driver"
)

func TestBindingCRUD(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	if err := s.AddBinding(ctx, driver.Binding{Event: "user.changed", ID: "u1", Realm: "users", Tier: driver.TierMem}); err != nil {
		t.Fatalf("AddBinding: %v", err)
	}

	n, err := s.AddBindings(ctx, []driver.Binding{
		{Event: "user.changed", ID: "u2", Realm: "users", Tier: driver.TierAll},
		{Event: "post.changed", ID: "p1", Realm: "posts", Tier: driver.TierDB},
	})
	if err != nil || n != 2 {
		t.Fatalf("AddBindings: n=%d err=%v", n, err)
	}

	all, err := s.AllBindings(ctx)
	if err != nil {
		t.Fatalf("AllBindings: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("AllBindings len = %d, want 3", len(all))
	}

	// narrow delete by (realm, id)
	removed, err := s.DeleteBindings(ctx, "users", "u1")
	if err != nil || removed != 1 {
		t.Fatalf("DeleteBindings(users, u1): removed=%d err=%v", removed, err)
	}

	// realm-wide delete
	removed, err = s.DeleteBindings(ctx, "users", "")
	if err != nil || removed != 1 {
		t.Fatalf("DeleteBindings(users): removed=%d err=%v", removed, err)
	}

	all, _ = s.AllBindings(ctx)
	if len(all) != 1 || all[0].Event != "post.changed" || all[0].Tier != driver.TierDB {
		t.Fatalf("unexpected remaining bindings: %+v", all)
	}
}
