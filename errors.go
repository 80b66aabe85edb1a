package tiercache

import (
	"fmt"

	"github.com/unkn0wn-root/tiercache/driver"
)

// InitError is a fatal tier construction failure (unwritable disk root,
// unreachable database). It aborts New; nothing is retried.
type InitError struct {
	Tier driver.Tier
	Err  error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("tiercache: %s tier init failed: %v", e.Tier, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// TriggerError aggregates per-binding removal failures of one Trigger call.
// Processing never aborts mid-trigger: remaining bindings are still handled,
// and the processed count returned alongside this error includes them.
type TriggerError struct {
	Event string
	Errs  []error
}

func (e *TriggerError) Error() string {
	return fmt.Sprintf("tiercache: trigger %q: %d binding removal(s) failed: %v",
		e.Event, len(e.Errs), e.Errs[0])
}

func (e *TriggerError) Unwrap() []error { return e.Errs }
