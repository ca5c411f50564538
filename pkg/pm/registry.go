package pm

import "fmt"

// Registry holds the registered format adapters and selects one for a
// directory. Adapters register under their canonical name plus any aliases;
// registration order is preserved for the detection fallback scan.
type Registry struct {
	byName map[string]Adapter
	order  []string // canonical names in registration order
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Adapter)}
}

// Register adds an adapter under its name and aliases. Registering the same
// name twice replaces the earlier adapter.
func (r *Registry) Register(a Adapter) {
	name := a.Name()
	if _, exists := r.byName[name]; !exists {
		r.order = append(r.order, name)
	}
	r.byName[name] = a
	for _, alias := range a.Aliases() {
		r.byName[alias] = a
	}
}

// Get returns the adapter registered under name. An unknown name is an
// UnsupportedFormat condition, distinct from detection finding nothing.
func (r *Registry) Get(name string) (Adapter, error) {
	a, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
	}
	return a, nil
}

// Names returns canonical adapter names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Adapters returns all registered adapters in registration order.
func (r *Registry) Adapters() []Adapter {
	out := make([]Adapter, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

// Detect selects the adapter for a directory. The priority list is consulted
// first, in order; any remaining adapters are then scanned in registration
// order. The first adapter whose CanHandle answers true wins. A CanHandle
// panic counts as false rather than propagating.
func (r *Registry) Detect(dir string, priority []string) (Adapter, error) {
	tried := make(map[string]bool, len(priority))
	for _, name := range priority {
		a, ok := r.byName[name]
		if !ok {
			continue
		}
		tried[a.Name()] = true
		if safeCanHandle(a, dir) {
			return a, nil
		}
	}
	for _, name := range r.order {
		if tried[name] {
			continue
		}
		if a := r.byName[name]; safeCanHandle(a, dir) {
			return a, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoAdapter, dir)
}

func safeCanHandle(a Adapter, dir string) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return a.CanHandle(dir)
}
