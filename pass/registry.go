package pass

import (
	"slices"

	"github.com/wippyai/wasm-post/errors"
)

// Registry maps pass names to passes.
type Registry struct {
	passes map[string]Pass
}

// NewRegistry creates a registry holding the built-in passes.
func NewRegistry() *Registry {
	r := &Registry{passes: make(map[string]Pass)}
	r.Register(ExportIndirectTable{})
	return r
}

// Register adds p under its name, replacing any pass already registered
// under that name.
func (r *Registry) Register(p Pass) {
	r.passes[p.Name()] = p
}

// Lookup returns the pass registered under name.
func (r *Registry) Lookup(name string) (Pass, bool) {
	p, ok := r.passes[name]
	return p, ok
}

// Names returns the registered pass names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.passes))
	for name := range r.passes {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Pipeline resolves names into a pipeline, in the given order.
func (r *Registry) Pipeline(names ...string) (Pipeline, error) {
	p := make(Pipeline, 0, len(names))
	for _, name := range names {
		ps, ok := r.Lookup(name)
		if !ok {
			return nil, errors.NotFound(errors.PhasePass, "pass", name)
		}
		p = append(p, ps)
	}
	return p, nil
}
