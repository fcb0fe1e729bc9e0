package pass

import (
	"go.uber.org/zap"

	"github.com/wippyai/wasm-post/binding"
	"github.com/wippyai/wasm-post/errors"
	"github.com/wippyai/wasm-post/module"
)

// IndirectFunctionTable is the export name under which the toolchain's
// JavaScript glue expects the module's function table.
const IndirectFunctionTable = "__indirect_function_table"

// Pass transforms a module context in place.
//
// A pass that fails must leave the context as it found it.
type Pass interface {
	Name() string
	Run(ctx *module.Context) error
}

// Func adapts an ordinary function to the Pass interface.
type Func struct {
	Fn    func(ctx *module.Context) error
	Label string
}

// Name implements Pass.
func (f Func) Name() string { return f.Label }

// Run implements Pass.
func (f Func) Run(ctx *module.Context) error { return f.Fn(ctx) }

// ExportIndirectTable exports table 0 as IndirectFunctionTable.
//
// Any previous binding of the table is replaced, including an import: the
// table becomes a definition with the same element type and limits. No
// other entity is touched. Running the pass twice yields the same context
// as running it once.
type ExportIndirectTable struct{}

// Name implements Pass.
func (ExportIndirectTable) Name() string { return "export-indirect-table" }

// Run implements Pass.
func (p ExportIndirectTable) Run(ctx *module.Context) error {
	table, ok := ctx.Tables.First()
	if !ok {
		return errors.NoTableDeclared(p.Name())
	}
	if n := ctx.Tables.Len(); n > 1 {
		Logger().Warn("module declares multiple tables, exporting table 0",
			zap.Int("tables", n))
	}
	table.SetBinding(binding.Export(IndirectFunctionTable))
	return nil
}
