// Package pass implements module transformations over a module.Context.
//
// The only built-in pass, ExportIndirectTable, makes table 0 reachable by
// the host under the name "__indirect_function_table":
//
//	ctx, _ := wasm.Decode(data)
//	if err := (pass.ExportIndirectTable{}).Run(ctx); err != nil {
//	    // errors.Is(err, errors.ErrNoTableDeclared)
//	}
//	out, err := wasm.Encode(ctx)
//
// Pipeline chains passes and Registry resolves them by name, which is how
// configuration and the command line select what runs:
//
//	p, err := pass.NewRegistry().Pipeline("export-indirect-table")
//	out, err := p.Process(data)
//
// Encoding fails with errors.ErrDuplicateExportName when another entity was
// already exported as "__indirect_function_table"; the pass itself does not
// check names.
package pass
