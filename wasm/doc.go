// Package wasm decodes WebAssembly binaries into a module.Context and
// encodes contexts back to binary.
//
// The codec understands the sections that carry bindable entities (type,
// import, function, table, memory, global, export, start, code). Element,
// data, data count and custom sections are carried through verbatim, custom
// sections keeping their position relative to the known sections.
//
// # Decoding
//
//	data, _ := os.ReadFile("module.wasm")
//	ctx, err := wasm.Decode(data)
//	if err != nil {
//	    // errors.Is(err, errors.ErrMalformedModule)
//	}
//
// Each index space lists imported entities first, then definitions. Every
// export entry becomes the Exported binding of its entity; an entity bound
// twice (exported under two names, or imported and re-exported) cannot be
// represented and is rejected.
//
// Double bindings, exception tags and GC type definitions are valid wasm
// outside the model; they fail with errors.ErrUnsupported rather than
// errors.ErrMalformedModule.
//
// # Encoding
//
//	out, err := wasm.Encode(ctx)
//
// Encode checks, before writing anything:
//   - Export names are unique across all kinds (errors.ErrDuplicateExportName)
//   - Imported entities precede defined ones in each index space
//   - Defined functions have a body and a valid type index
//   - Defined globals have an initializer
//   - 32-bit limits fit in 32 bits and the start function exists
//
// Failures other than duplicate export names match errors.ErrInvalidModule.
//
// The import section is written grouped by kind; export entries are written
// in kind, then index order. Decoding the output yields an equivalent
// context.
package wasm
