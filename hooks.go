package tiercache

import "github.com/unkn0wn-root/tiercache/driver"

// Hooks lightweight callbacks for high-signal controller events.
// Implementations MUST be cheap and non-blocking; the controller calls them
// inline.
type Hooks interface {
	// The volatile driver was chosen at startup. degraded is true when no
	// registered driver was available and the relational tier serves mem.
	DriverSelected(id string, degraded bool)

	// The binding mirror was rebuilt. source ∈ {"blob", "rows"}.
	MirrorRebuilt(events int, source string)

	// One bound entry could not be removed during Trigger. The trigger loop
	// continues regardless.
	TriggerRemoveFailed(event string, b driver.Binding, err error)

	// The end-of-life write-back flush failed; nothing is retried in this
	// process lifetime.
	FlushFailed(err error)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) DriverSelected(string, bool)                       {}
func (NopHooks) MirrorRebuilt(int, string)                         {}
func (NopHooks) TriggerRemoveFailed(string, driver.Binding, error) {}
func (NopHooks) FlushFailed(error)                                 {}
