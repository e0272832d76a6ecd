package invoker

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
)

var (
	ErrBindingNotFound  = errors.New("binding not found")
	ErrDuplicateBinding = errors.New("duplicate binding")
	ErrRegistrySealed   = errors.New("registry is sealed")
	ErrInvalidBinding   = errors.New("invalid binding")
)

// Registry holds every binding known to a run. It has a single writer during discovery;
// after Seal it is read-only and safe for concurrent lookups.
type Registry struct {
	mu       sync.RWMutex
	bindings map[string]*Binding
	sealed   bool
}

func NewRegistry() *Registry {
	return &Registry{bindings: make(map[string]*Binding)}
}

// Register adds a binding under its ID.
func (r *Registry) Register(b *Binding) error {
	if b == nil || b.ID == "" || b.Func == nil {
		return fmt.Errorf("%w: id and func are required", ErrInvalidBinding)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return fmt.Errorf("registering %q: %w", b.ID, ErrRegistrySealed)
	}
	if _, exists := r.bindings[b.ID]; exists {
		return fmt.Errorf("registering %q: %w", b.ID, ErrDuplicateBinding)
	}
	r.bindings[b.ID] = b
	return nil
}

// MustRegister is Register for static setup code; it panics on error.
func (r *Registry) MustRegister(b *Binding) {
	if err := r.Register(b); err != nil {
		panic(err)
	}
}

// Seal ends discovery. Further registrations fail.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
}

func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// Lookup returns the binding registered under id.
func (r *Registry) Lookup(id string) (*Binding, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.bindings[id]
	if !ok {
		return nil, fmt.Errorf("%q: %w", id, ErrBindingNotFound)
	}
	return b, nil
}

// All returns every binding ordered by ID.
func (r *Registry) All() []*Binding {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Binding, 0, len(r.bindings))
	for _, id := range slices.Sorted(maps.Keys(r.bindings)) {
		out = append(out, r.bindings[id])
	}
	return out
}

// ByStyle returns the bindings of one style ordered by ID.
func (r *Registry) ByStyle(style string) []*Binding {
	var out []*Binding
	for _, b := range r.All() {
		if b.Style == style {
			out = append(out, b)
		}
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bindings)
}
