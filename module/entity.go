package module

import (
	"bytes"

	"github.com/wippyai/wasm-post/binding"
)

// Body is a function's code, opaque to passes. Locals holds the raw
// local declaration vector and Code the raw expression including its
// trailing end opcode.
type Body struct {
	Locals []byte
	Code   []byte
}

func (b *Body) equal(o *Body) bool {
	if b == nil || o == nil {
		return b == nil && o == nil
	}
	return bytes.Equal(b.Locals, o.Locals) && bytes.Equal(b.Code, o.Code)
}

func (b *Body) clone() *Body {
	if b == nil {
		return nil
	}
	return &Body{Locals: bytes.Clone(b.Locals), Code: bytes.Clone(b.Code)}
}

// Function is an entry in the function index space. Imported functions
// have no Body.
type Function struct {
	Body      *Body
	bind      binding.Binding
	TypeIndex uint32
}

// NewFunction creates a function of the given type with an initial binding.
func NewFunction(typeIndex uint32, body *Body, b binding.Binding) *Function {
	return &Function{TypeIndex: typeIndex, Body: body, bind: b}
}

func (f *Function) Binding() binding.Binding     { return f.bind }
func (f *Function) SetBinding(b binding.Binding) { f.bind = b }

// Table is a dispatch table used by call_indirect.
type Table struct {
	bind     binding.Binding
	Limits   Limits
	ElemType RefType
}

// NewTable creates a table with an initial binding.
func NewTable(elem RefType, limits Limits, b binding.Binding) *Table {
	return &Table{ElemType: elem, Limits: limits, bind: b}
}

func (t *Table) Binding() binding.Binding     { return t.bind }
func (t *Table) SetBinding(b binding.Binding) { t.bind = b }

// Memory is a linear memory.
type Memory struct {
	bind   binding.Binding
	Limits Limits
}

// NewMemory creates a memory with an initial binding.
func NewMemory(limits Limits, b binding.Binding) *Memory {
	return &Memory{Limits: limits, bind: b}
}

func (m *Memory) Binding() binding.Binding     { return m.bind }
func (m *Memory) SetBinding(b binding.Binding) { m.bind = b }

// Global is a global variable. Init is the raw constant expression and is
// empty for imported globals.
type Global struct {
	bind binding.Binding
	Init []byte
	Type GlobalType
}

// NewGlobal creates a global with an initial binding.
func NewGlobal(typ GlobalType, init []byte, b binding.Binding) *Global {
	return &Global{Type: typ, Init: init, bind: b}
}

func (g *Global) Binding() binding.Binding     { return g.bind }
func (g *Global) SetBinding(b binding.Binding) { g.bind = b }

var (
	_ binding.Bindable = (*Function)(nil)
	_ binding.Bindable = (*Table)(nil)
	_ binding.Bindable = (*Memory)(nil)
	_ binding.Bindable = (*Global)(nil)
)
