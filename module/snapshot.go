package module

import (
	"bytes"
	"slices"

	"github.com/wippyai/wasm-post/binding"
)

// Snapshot is a deep copy of a context's observable state: its types, each
// entity's definition and each entity's binding. Snapshots are used to
// check and log what a pass changed.
type Snapshot struct {
	Types   []FuncType
	Start   *uint32
	Raw     []RawSection
	Entries []SnapshotEntry
}

// SnapshotEntry is the state of one entity.
type SnapshotEntry struct {
	Def     definition
	Binding binding.Binding
	Ref     EntityRef
}

type definition struct {
	Body      *Body
	Init      []byte
	Limits    Limits
	TypeIndex uint32
	Global    GlobalType
	Elem      RefType
}

func (d definition) equal(o definition) bool {
	return d.TypeIndex == o.TypeIndex &&
		d.Body.equal(o.Body) &&
		d.Limits.Equal(o.Limits) &&
		d.Elem == o.Elem &&
		d.Global == o.Global &&
		bytes.Equal(d.Init, o.Init)
}

// Snapshot captures the current state of c.
func (c *Context) Snapshot() *Snapshot {
	s := &Snapshot{}
	for _, t := range c.Types {
		s.Types = append(s.Types, FuncType{
			Params:  slices.Clone(t.Params),
			Results: slices.Clone(t.Results),
		})
	}
	if c.Start != nil {
		start := *c.Start
		s.Start = &start
	}
	for _, r := range c.Passthrough {
		r.Payload = bytes.Clone(r.Payload)
		s.Raw = append(s.Raw, r)
	}
	for i, f := range c.Functions.All() {
		s.add(KindFunction, i, f.bind, definition{TypeIndex: f.TypeIndex, Body: f.Body.clone()})
	}
	for i, t := range c.Tables.All() {
		s.add(KindTable, i, t.bind, definition{Elem: t.ElemType, Limits: cloneLimits(t.Limits)})
	}
	for i, m := range c.Memories.All() {
		s.add(KindMemory, i, m.bind, definition{Limits: cloneLimits(m.Limits)})
	}
	for i, g := range c.Globals.All() {
		s.add(KindGlobal, i, g.bind, definition{Global: g.Type, Init: bytes.Clone(g.Init)})
	}
	return s
}

func (s *Snapshot) add(kind Kind, i uint32, b binding.Binding, def definition) {
	s.Entries = append(s.Entries, SnapshotEntry{Ref: EntityRef{Kind: kind, Index: i}, Binding: b, Def: def})
}

func cloneLimits(l Limits) Limits {
	if l.Max != nil {
		m := *l.Max
		l.Max = &m
	}
	return l
}

// Change describes how one entity differs between two snapshots.
// Structural is set when anything other than the binding differs, including
// an entity that exists in only one snapshot.
type Change struct {
	Before     binding.Binding
	After      binding.Binding
	Ref        EntityRef
	Structural bool
}

// Diff lists per-entity differences from s to after. Module-level
// differences (types, start, passthrough sections) are reported by
// SameModuleLevel.
func (s *Snapshot) Diff(after *Snapshot) []Change {
	var out []Change
	n := max(len(s.Entries), len(after.Entries))
	for i := range n {
		switch {
		case i >= len(s.Entries):
			e := after.Entries[i]
			out = append(out, Change{Ref: e.Ref, After: e.Binding, Structural: true})
		case i >= len(after.Entries):
			e := s.Entries[i]
			out = append(out, Change{Ref: e.Ref, Before: e.Binding, Structural: true})
		default:
			a, b := s.Entries[i], after.Entries[i]
			structural := a.Ref != b.Ref || !a.Def.equal(b.Def)
			if structural || !a.Binding.Equal(b.Binding) {
				out = append(out, Change{Ref: b.Ref, Before: a.Binding, After: b.Binding, Structural: structural})
			}
		}
	}
	return out
}

// SameModuleLevel reports whether types, start function and passthrough
// sections are identical in both snapshots.
func (s *Snapshot) SameModuleLevel(o *Snapshot) bool {
	if !slices.EqualFunc(s.Types, o.Types, FuncType.Equal) {
		return false
	}
	if (s.Start == nil) != (o.Start == nil) || (s.Start != nil && *s.Start != *o.Start) {
		return false
	}
	return slices.EqualFunc(s.Raw, o.Raw, func(a, b RawSection) bool {
		return a.ID == b.ID && a.Name == b.Name && a.After == b.After && bytes.Equal(a.Payload, b.Payload)
	})
}
