package pass_test

import (
	stderrors "errors"
	"slices"
	"strings"
	"testing"

	"github.com/wippyai/wasm-post/binding"
	"github.com/wippyai/wasm-post/errors"
	"github.com/wippyai/wasm-post/module"
	"github.com/wippyai/wasm-post/pass"
	"github.com/wippyai/wasm-post/wasm"
)

func u64(v uint64) *uint64 { return &v }

// fullContext has one entity of every kind besides the given tables.
func fullContext(tables ...*module.Table) *module.Context {
	ctx := module.New()
	ctx.Types = []module.FuncType{{}, {Params: []module.ValType{module.ValI32}}}
	ctx.Functions.Append(module.NewFunction(1, nil, binding.Import("env", "log")))
	ctx.Functions.Append(module.NewFunction(0, &module.Body{Locals: []byte{0x00}, Code: []byte{0x0b}}, binding.Export("main")))
	ctx.Memories.Append(module.NewMemory(module.Limits{Min: 1, Max: u64(16)}, binding.Export("memory")))
	ctx.Globals.Append(module.NewGlobal(module.GlobalType{ValType: module.ValI32, Mutable: true}, []byte{0x41, 0x00, 0x0b}, binding.Unbound()))
	for _, t := range tables {
		ctx.Tables.Append(t)
	}
	return ctx
}

func funcTable(b binding.Binding) *module.Table {
	return module.NewTable(module.RefFunc, module.Limits{Min: 4, Max: u64(4)}, b)
}

func TestExportIndirectTable(t *testing.T) {
	tests := []struct {
		name  string
		prior binding.Binding
	}{
		{"unbound", binding.Unbound()},
		{"imported", binding.Import("m", "t")},
		{"exported under another name", binding.Export("table")},
		{"already exported", binding.Export(pass.IndirectFunctionTable)},
		{"empty export name", binding.Export("")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := fullContext(funcTable(tt.prior))
			if err := (pass.ExportIndirectTable{}).Run(ctx); err != nil {
				t.Fatalf("Run: %v", err)
			}
			tbl, _ := ctx.Tables.First()
			b := tbl.Binding()
			if !b.Equal(binding.Export(pass.IndirectFunctionTable)) {
				t.Fatalf("table binding = %v", b)
			}
			if _, _, ok := b.ImportName(); ok {
				t.Error("import binding survived the pass")
			}
		})
	}
}

func TestExportIndirectTableLocality(t *testing.T) {
	ctx := fullContext(funcTable(binding.Import("m", "t")))
	before := ctx.Snapshot()

	if err := (pass.ExportIndirectTable{}).Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	after := ctx.Snapshot()
	changes := before.Diff(after)
	if len(changes) != 1 {
		t.Fatalf("expected exactly one change, got %v", changes)
	}
	c := changes[0]
	if c.Ref != (module.EntityRef{Kind: module.KindTable, Index: 0}) {
		t.Errorf("changed %v, want table 0", c.Ref)
	}
	if c.Structural {
		t.Error("table definition changed")
	}
	if !before.SameModuleLevel(after) {
		t.Error("types, start or passthrough sections changed")
	}
}

func TestExportIndirectTableIdempotent(t *testing.T) {
	once := fullContext(funcTable(binding.Unbound()))
	twice := fullContext(funcTable(binding.Unbound()))

	p := pass.ExportIndirectTable{}
	if err := p.Run(once); err != nil {
		t.Fatalf("Run: %v", err)
	}
	for range 2 {
		if err := p.Run(twice); err != nil {
			t.Fatalf("Run: %v", err)
		}
	}

	if changes := once.Snapshot().Diff(twice.Snapshot()); len(changes) != 0 {
		t.Errorf("second run changed state: %v", changes)
	}
}

func TestExportIndirectTableIndexStability(t *testing.T) {
	first := funcTable(binding.Unbound())
	second := module.NewTable(module.RefExtern, module.Limits{Min: 1}, binding.Export("externs"))
	ctx := fullContext(first, second)

	if err := (pass.ExportIndirectTable{}).Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got, _ := ctx.Tables.At(0); got != first {
		t.Error("table 0 is no longer the same entity")
	}
	if got, _ := ctx.Tables.At(1); got != second {
		t.Error("table 1 is no longer the same entity")
	}
	if !second.Binding().Equal(binding.Export("externs")) {
		t.Errorf("table 1 binding = %v", second.Binding())
	}
	if ctx.Tables.Len() != 2 {
		t.Errorf("table count = %d", ctx.Tables.Len())
	}
}

func TestExportIndirectTableNoTable(t *testing.T) {
	ctx := fullContext()
	before := ctx.Snapshot()

	err := (pass.ExportIndirectTable{}).Run(ctx)
	if !stderrors.Is(err, errors.ErrNoTableDeclared) {
		t.Fatalf("expected no table declared, got %v", err)
	}
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Phase != errors.PhasePass {
		t.Errorf("unexpected error shape %#v", err)
	}

	after := ctx.Snapshot()
	if changes := before.Diff(after); len(changes) != 0 {
		t.Errorf("failed pass changed entities: %v", changes)
	}
	if !before.SameModuleLevel(after) {
		t.Error("failed pass changed module-level state")
	}
}

func TestScenarioOnlyExport(t *testing.T) {
	ctx := module.New()
	ctx.Tables.Append(module.NewTable(module.RefFunc, module.Limits{Min: 1}, binding.Unbound()))

	if err := (pass.ExportIndirectTable{}).Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	out, err := wasm.Encode(ctx)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := wasm.Decode(out)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := []module.ExportRef{{Name: pass.IndirectFunctionTable, EntityRef: module.EntityRef{Kind: module.KindTable}}}
	if got := decoded.Exports(); !slices.Equal(got, want) {
		t.Errorf("exports = %v, want %v", got, want)
	}
	if got := decoded.Imports(); len(got) != 0 {
		t.Errorf("unexpected imports %v", got)
	}
}

func TestScenarioDuplicateExportName(t *testing.T) {
	ctx := module.New()
	ctx.Types = []module.FuncType{{}}
	ctx.Functions.Append(module.NewFunction(0, &module.Body{Locals: []byte{0x00}, Code: []byte{0x0b}}, binding.Export(pass.IndirectFunctionTable)))
	ctx.Tables.Append(module.NewTable(module.RefFunc, module.Limits{Min: 1}, binding.Export("table")))

	if err := (pass.ExportIndirectTable{}).Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	_, err := wasm.Encode(ctx)
	if !stderrors.Is(err, errors.ErrDuplicateExportName) {
		t.Fatalf("expected duplicate export name, got %v", err)
	}
	if !strings.Contains(err.Error(), "function 0") || !strings.Contains(err.Error(), "table 0") {
		t.Errorf("error does not name both entities: %v", err)
	}
}

func TestPipelineStopsAtFirstFailure(t *testing.T) {
	var ran []string
	record := func(name string, err error) pass.Pass {
		return pass.Func{Label: name, Fn: func(*module.Context) error {
			ran = append(ran, name)
			return err
		}}
	}
	boom := stderrors.New("boom")
	p := pass.Pipeline{record("a", nil), record("b", boom), record("c", nil)}

	err := p.Run(module.New())
	if !stderrors.Is(err, boom) {
		t.Fatalf("expected wrapped failure, got %v", err)
	}
	if !strings.Contains(err.Error(), "pass b") {
		t.Errorf("error lacks pass name: %v", err)
	}
	if !slices.Equal(ran, []string{"a", "b"}) {
		t.Errorf("ran %v", ran)
	}
}

func TestPipelineWrapsNoTable(t *testing.T) {
	err := pass.Default().Run(module.New())
	if !stderrors.Is(err, errors.ErrNoTableDeclared) {
		t.Fatalf("expected no table declared, got %v", err)
	}
	if !strings.Contains(err.Error(), "export-indirect-table") {
		t.Errorf("error lacks pass name: %v", err)
	}
}

func TestProcess(t *testing.T) {
	in, err := wasm.Encode(fullContext(funcTable(binding.Import("env", "table"))))
	if err != nil {
		t.Fatalf("Encode input: %v", err)
	}

	out, err := pass.Process(in)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	ctx, err := wasm.Decode(out)
	if err != nil {
		t.Fatalf("Decode output: %v", err)
	}

	tbl, _ := ctx.Tables.First()
	if !tbl.Binding().Equal(binding.Export(pass.IndirectFunctionTable)) {
		t.Errorf("table binding = %v", tbl.Binding())
	}
	imports := ctx.Imports()
	if len(imports) != 1 || imports[0].Name != "log" {
		t.Errorf("imports = %v", imports)
	}
	if ctx.Functions.Len() != 2 {
		t.Errorf("function count = %d", ctx.Functions.Len())
	}

	if _, err := pass.Process([]byte("not wasm")); !stderrors.Is(err, errors.ErrMalformedModule) {
		t.Errorf("expected malformed module, got %v", err)
	}
}

func TestRegistry(t *testing.T) {
	r := pass.NewRegistry()

	if got := r.Names(); !slices.Equal(got, []string{"export-indirect-table"}) {
		t.Errorf("Names() = %v", got)
	}
	if _, ok := r.Lookup("export-indirect-table"); !ok {
		t.Error("built-in pass not registered")
	}
	if _, ok := r.Lookup("strip-debug"); ok {
		t.Error("unknown pass resolved")
	}

	r.Register(pass.Func{Label: "noop", Fn: func(*module.Context) error { return nil }})
	p, err := r.Pipeline("noop", "export-indirect-table")
	if err != nil {
		t.Fatalf("Pipeline: %v", err)
	}
	if got := p.Names(); !slices.Equal(got, []string{"noop", "export-indirect-table"}) {
		t.Errorf("pipeline order = %v", got)
	}

	_, err = r.Pipeline("strip-debug")
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Kind != errors.KindNotFound {
		t.Errorf("expected not found, got %v", err)
	}
}
