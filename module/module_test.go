package module_test

import (
	"slices"
	"testing"

	"github.com/wippyai/wasm-post/binding"
	"github.com/wippyai/wasm-post/module"
)

func u64(v uint64) *uint64 { return &v }

func sampleContext() *module.Context {
	ctx := module.New()
	ctx.Types = []module.FuncType{
		{},
		{Params: []module.ValType{module.ValI32}, Results: []module.ValType{module.ValI32}},
	}
	ctx.Functions.Append(module.NewFunction(0, nil, binding.Import("env", "abort")))
	ctx.Functions.Append(module.NewFunction(1, &module.Body{Locals: []byte{0x00}, Code: []byte{0x20, 0x00, 0x0b}}, binding.Export("id")))
	ctx.Functions.Append(module.NewFunction(0, &module.Body{Locals: []byte{0x00}, Code: []byte{0x0b}}, binding.Unbound()))
	ctx.Tables.Append(module.NewTable(module.RefFunc, module.Limits{Min: 2, Max: u64(2)}, binding.Unbound()))
	ctx.Memories.Append(module.NewMemory(module.Limits{Min: 1}, binding.Export("memory")))
	ctx.Globals.Append(module.NewGlobal(module.GlobalType{ValType: module.ValI32, Mutable: true}, []byte{0x41, 0x00, 0x0b}, binding.Unbound()))
	return ctx
}

func TestSectionOrder(t *testing.T) {
	var s module.Section[module.Table]
	a := module.NewTable(module.RefFunc, module.Limits{Min: 1}, binding.Unbound())
	b := module.NewTable(module.RefExtern, module.Limits{Min: 2}, binding.Unbound())

	if _, ok := s.First(); ok {
		t.Fatal("First on empty section reported an entry")
	}
	if idx := s.Append(a); idx != 0 {
		t.Fatalf("first Append index = %d", idx)
	}
	if idx := s.Append(b); idx != 1 {
		t.Fatalf("second Append index = %d", idx)
	}
	if got, _ := s.First(); got != a {
		t.Error("First is not the first appended entry")
	}
	if got, ok := s.At(1); !ok || got != b {
		t.Error("At(1) is not the second appended entry")
	}
	if _, ok := s.At(2); ok {
		t.Error("At past end reported an entry")
	}

	var order []uint32
	for i, tbl := range s.All() {
		order = append(order, i)
		if want, _ := s.At(i); want != tbl {
			t.Errorf("All yielded %p at %d, want %p", tbl, i, want)
		}
	}
	if !slices.Equal(order, []uint32{0, 1}) {
		t.Errorf("iteration order = %v", order)
	}
}

func TestSectionAllStopsEarly(t *testing.T) {
	var s module.Section[module.Memory]
	for range 3 {
		s.Append(module.NewMemory(module.Limits{}, binding.Unbound()))
	}
	n := 0
	for range s.All() {
		n++
		break
	}
	if n != 1 {
		t.Errorf("iterated %d entries after break", n)
	}
}

func TestExportsAndImports(t *testing.T) {
	ctx := sampleContext()

	exports := ctx.Exports()
	want := []module.ExportRef{
		{Name: "id", EntityRef: module.EntityRef{Kind: module.KindFunction, Index: 1}},
		{Name: "memory", EntityRef: module.EntityRef{Kind: module.KindMemory, Index: 0}},
	}
	if !slices.Equal(exports, want) {
		t.Errorf("Exports() = %v, want %v", exports, want)
	}

	imports := ctx.Imports()
	if len(imports) != 1 || imports[0].Module != "env" || imports[0].Name != "abort" || imports[0].Kind != module.KindFunction {
		t.Errorf("Imports() = %v", imports)
	}
}

func TestEntity(t *testing.T) {
	ctx := sampleContext()

	for _, kind := range module.Kinds {
		for i := range ctx.Len(kind) {
			ref := module.EntityRef{Kind: kind, Index: uint32(i)}
			if _, ok := ctx.Entity(ref); !ok {
				t.Errorf("Entity(%v) not found", ref)
			}
		}
		ref := module.EntityRef{Kind: kind, Index: uint32(ctx.Len(kind))}
		if _, ok := ctx.Entity(ref); ok {
			t.Errorf("Entity(%v) past end found", ref)
		}
	}

	e, _ := ctx.Entity(module.EntityRef{Kind: module.KindTable})
	e.SetBinding(binding.Export("t"))
	tbl, _ := ctx.Tables.First()
	if !tbl.Binding().Equal(binding.Export("t")) {
		t.Error("Entity did not return the owned table")
	}
}

func TestSnapshotDiffBindingOnly(t *testing.T) {
	ctx := sampleContext()
	before := ctx.Snapshot()

	tbl, _ := ctx.Tables.First()
	tbl.SetBinding(binding.Export("__indirect_function_table"))
	after := ctx.Snapshot()

	changes := before.Diff(after)
	if len(changes) != 1 {
		t.Fatalf("expected 1 change, got %v", changes)
	}
	c := changes[0]
	if c.Ref != (module.EntityRef{Kind: module.KindTable}) || c.Structural {
		t.Errorf("unexpected change %+v", c)
	}
	if !c.Before.IsUnbound() || !c.After.Equal(binding.Export("__indirect_function_table")) {
		t.Errorf("unexpected bindings %v -> %v", c.Before, c.After)
	}
	if !before.SameModuleLevel(after) {
		t.Error("module-level state changed")
	}
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	ctx := sampleContext()
	before := ctx.Snapshot()

	f, _ := ctx.Functions.At(1)
	f.Body.Code[0] = 0x01
	m, _ := ctx.Memories.First()
	m.Limits.Min = 4
	ctx.Types[1].Params[0] = module.ValI64

	after := ctx.Snapshot()
	changes := before.Diff(after)
	if len(changes) != 2 {
		t.Fatalf("expected 2 structural changes, got %v", changes)
	}
	for _, c := range changes {
		if !c.Structural {
			t.Errorf("change %v not structural", c.Ref)
		}
	}
	if before.SameModuleLevel(after) {
		t.Error("type mutation not detected")
	}
}

func TestSnapshotDiffAppended(t *testing.T) {
	ctx := sampleContext()
	before := ctx.Snapshot()
	ctx.Globals.Append(module.NewGlobal(module.GlobalType{ValType: module.ValI64}, []byte{0x42, 0x00, 0x0b}, binding.Unbound()))

	changes := before.Diff(ctx.Snapshot())
	if len(changes) != 1 || !changes[0].Structural || changes[0].Ref.Kind != module.KindGlobal {
		t.Errorf("unexpected changes %v", changes)
	}
}

func TestLimits(t *testing.T) {
	tests := []struct {
		a, b  module.Limits
		equal bool
		str   string
	}{
		{module.Limits{Min: 1}, module.Limits{Min: 1}, true, "1"},
		{module.Limits{Min: 1, Max: u64(4)}, module.Limits{Min: 1, Max: u64(4)}, true, "1..4"},
		{module.Limits{Min: 1, Max: u64(4)}, module.Limits{Min: 1}, false, "1..4"},
		{module.Limits{Min: 1, Max: u64(2), Shared: true}, module.Limits{Min: 1, Max: u64(2)}, false, "1..2 shared"},
	}
	for _, tt := range tests {
		if got := tt.a.Equal(tt.b); got != tt.equal {
			t.Errorf("%v.Equal(%v) = %v", tt.a, tt.b, got)
		}
		if got := tt.a.String(); got != tt.str {
			t.Errorf("String() = %q, want %q", got, tt.str)
		}
	}
}

func TestStrings(t *testing.T) {
	ft := module.FuncType{Params: []module.ValType{module.ValI32, module.ValF64}, Results: []module.ValType{module.ValI64}}
	if got := ft.String(); got != "(i32 f64) -> (i64)" {
		t.Errorf("FuncType.String() = %q", got)
	}
	if got := (module.EntityRef{Kind: module.KindTable, Index: 3}).String(); got != "table 3" {
		t.Errorf("EntityRef.String() = %q", got)
	}
	if got := module.RefFunc.String(); got != "funcref" {
		t.Errorf("RefType.String() = %q", got)
	}
}
