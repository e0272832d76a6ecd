package invoker

import (
	"context"
	"fmt"
)

// Func is the callable bound to a step or hook. instance is whatever the Resolver returned
// for the binding's owner.
type Func func(ctx context.Context, instance any, args Args) error

// Args is the resolved argument bag of a binding.
type Args struct {
	Positional []any
	Named      map[string]any
}

// Len returns the total number of arguments.
func (a Args) Len() int {
	return len(a.Positional) + len(a.Named)
}

// String returns the named argument as a string, or "" when absent.
func (a Args) String(name string) string {
	v, ok := a.Named[name]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Binding associates a leaf node with the func it invokes.
type Binding struct {
	ID string
	// Owner is the identity of the unit declaring Func, handed to the Resolver.
	Owner string
	Name  string
	// Style groups bindings by the discovery that produced them, e.g. "classic" or "bdd".
	Style string
	Func  Func
	Args  Args
}

// Resolver returns the live instance owning a binding.
type Resolver interface {
	ResolveInstance(owner string) (any, error)
}

// ResolverFunc adapts a function to a Resolver.
type ResolverFunc func(owner string) (any, error)

func (f ResolverFunc) ResolveInstance(owner string) (any, error) {
	return f(owner)
}

// Instances is a Resolver over a fixed set of instances. The empty owner resolves to nil
// so free funcs need no entry.
type Instances map[string]any

func (m Instances) ResolveInstance(owner string) (any, error) {
	if owner == "" {
		return nil, nil
	}
	inst, ok := m[owner]
	if !ok {
		return nil, fmt.Errorf("no instance registered for %q", owner)
	}
	return inst, nil
}
