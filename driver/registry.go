package driver

import "context"

// Registration describes one volatile backend candidate. Probe answers
// whether the backing capability is present on this host (extension loaded,
// server reachable); Open constructs the driver. Probes run once, at registry
// construction, so availability is fixed for the process lifetime.
type Registration struct {
	ID    string
	Probe func(ctx context.Context) bool
	Open  func(ctx context.Context) (DynamicStore, error)
}

// Registry is the process-wide list of available volatile drivers, built once
// at startup by probing each registration in order. Read-only thereafter.
type Registry struct {
	regs      map[string]Registration
	available []string
}

// NewRegistry probes regs in order and records the identifiers whose probe
// succeeded. A registration with a nil Probe is considered always available.
func NewRegistry(ctx context.Context, regs []Registration) *Registry {
	r := &Registry{regs: make(map[string]Registration, len(regs))}
	for _, reg := range regs {
		if reg.ID == "" || reg.Open == nil {
			continue
		}
		if _, dup := r.regs[reg.ID]; dup {
			continue
		}
		if reg.Probe != nil && !reg.Probe(ctx) {
			continue
		}
		r.regs[reg.ID] = reg
		r.available = append(r.available, reg.ID)
	}
	return r
}

// Available returns the registered identifiers in probe order.
func (r *Registry) Available() []string {
	out := make([]string, len(r.available))
	copy(out, r.available)
	return out
}

// Has reports whether id passed its probe.
func (r *Registry) Has(id string) bool {
	_, ok := r.regs[id]
	return ok
}

// Open constructs the driver registered under id.
func (r *Registry) Open(ctx context.Context, id string) (DynamicStore, bool, error) {
	reg, ok := r.regs[id]
	if !ok {
		return nil, false, nil
	}
	d, err := reg.Open(ctx)
	if err != nil {
		return nil, false, err
	}
	return d, true, nil
}
