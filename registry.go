package fncall

import (
	"fmt"
	"slices"
)

// Registry maps function names to functions. It is built once by NewRegistry and never
// changes afterwards, so it is safe for concurrent use.
type Registry struct {
	byName map[string]Function
	order  []Function
}

// NewRegistry builds a Registry from functions, applying any WithMiddleware options to each.
// It returns an error wrapping ErrDuplicateFunction if two functions share a name.
func NewRegistry(functions []Function, opts ...RegistryOption) (*Registry, error) {
	var o registryOptions
	for _, opt := range opts {
		opt(&o)
	}
	r := &Registry{
		byName: make(map[string]Function, len(functions)),
		order:  make([]Function, 0, len(functions)),
	}
	for i, f := range functions {
		if f == nil {
			return nil, fmt.Errorf("function at index %d is nil", i)
		}
		name := f.Schema().Name
		if name == "" {
			return nil, fmt.Errorf("function at index %d has an empty name", i)
		}
		if _, dup := r.byName[name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateFunction, name)
		}
		for j := len(o.middlewares) - 1; j >= 0; j-- {
			f = o.middlewares[j](f)
		}
		r.byName[name] = f
		r.order = append(r.order, f)
	}
	return r, nil
}

// MustNewRegistry is like NewRegistry but panics on error. Intended for static setups.
func MustNewRegistry(functions []Function, opts ...RegistryOption) *Registry {
	r, err := NewRegistry(functions, opts...)
	if err != nil {
		panic("fncall: " + err.Error())
	}
	return r
}

// Lookup returns the function registered under name (after middlewares are applied).
func (r *Registry) Lookup(name string) (Function, bool) {
	if r == nil {
		return nil, false
	}
	f, ok := r.byName[name]
	return f, ok
}

// Functions returns the registered functions in registration order.
func (r *Registry) Functions() []Function {
	if r == nil {
		return nil
	}
	return slices.Clone(r.order)
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, len(r.order))
	for i, f := range r.order {
		names[i] = f.Schema().Name
	}
	return names
}

// Len returns the number of registered functions.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.order)
}
