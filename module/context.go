package module

import (
	"strconv"

	"github.com/wippyai/wasm-post/binding"
)

// RawSection is a section carried through unchanged. After records the id
// of the last known section that preceded it in the input so custom sections
// keep their relative position.
type RawSection struct {
	Name    string // custom section name
	Payload []byte // section contents after the name, if any
	ID      byte
	After   byte
}

// Context is a decoded module. It exclusively owns every entity; entities
// hold no reference back to it. A Context is not safe for concurrent use
// and is never shared between processing runs.
type Context struct {
	Start       *uint32
	Types       []FuncType
	Passthrough []RawSection
	Functions   Section[Function]
	Tables      Section[Table]
	Memories    Section[Memory]
	Globals     Section[Global]
}

// New returns an empty context.
func New() *Context {
	return &Context{}
}

// EntityRef names one entity by kind and index.
type EntityRef struct {
	Kind  Kind
	Index uint32
}

func (r EntityRef) String() string {
	return r.Kind.String() + " " + strconv.FormatUint(uint64(r.Index), 10)
}

// ExportRef is an exported entity.
type ExportRef struct {
	Name string
	EntityRef
}

// ImportRef is an imported entity.
type ImportRef struct {
	Module string
	Name   string
	EntityRef
}

// Entity returns the bindable entity at ref.
func (c *Context) Entity(ref EntityRef) (binding.Bindable, bool) {
	switch ref.Kind {
	case KindFunction:
		return at(&c.Functions, ref.Index)
	case KindTable:
		return at(&c.Tables, ref.Index)
	case KindMemory:
		return at(&c.Memories, ref.Index)
	case KindGlobal:
		return at(&c.Globals, ref.Index)
	}
	return nil, false
}

func at[T any, P interface {
	*T
	binding.Bindable
}](s *Section[T], i uint32) (binding.Bindable, bool) {
	v, ok := s.At(i)
	if !ok {
		return nil, false
	}
	return P(v), true
}

// Bindings iterates every entity in kind order, then index order.
func (c *Context) Bindings(yield func(EntityRef, binding.Bindable) bool) {
	if !each(&c.Functions, KindFunction, yield) {
		return
	}
	if !each(&c.Tables, KindTable, yield) {
		return
	}
	if !each(&c.Memories, KindMemory, yield) {
		return
	}
	each(&c.Globals, KindGlobal, yield)
}

func each[T any, P interface {
	*T
	binding.Bindable
}](s *Section[T], kind Kind, yield func(EntityRef, binding.Bindable) bool) bool {
	for i, v := range s.All() {
		if !yield(EntityRef{Kind: kind, Index: i}, P(v)) {
			return false
		}
	}
	return true
}

// Exports lists exported entities in kind order, then index order.
func (c *Context) Exports() []ExportRef {
	var out []ExportRef
	for ref, e := range c.Bindings {
		if name, ok := e.Binding().ExportName(); ok {
			out = append(out, ExportRef{EntityRef: ref, Name: name})
		}
	}
	return out
}

// Imports lists imported entities in kind order, then index order.
func (c *Context) Imports() []ImportRef {
	var out []ImportRef
	for ref, e := range c.Bindings {
		if mod, name, ok := e.Binding().ImportName(); ok {
			out = append(out, ImportRef{EntityRef: ref, Module: mod, Name: name})
		}
	}
	return out
}

// Len returns the size of the index space for kind.
func (c *Context) Len(kind Kind) int {
	switch kind {
	case KindFunction:
		return c.Functions.Len()
	case KindTable:
		return c.Tables.Len()
	case KindMemory:
		return c.Memories.Len()
	case KindGlobal:
		return c.Globals.Len()
	}
	return 0
}
