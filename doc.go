// Package wasmpost post-processes compiled WebAssembly modules so the host's
// JavaScript glue can reach what it needs.
//
// A module is decoded into a module context, rewritten by passes that only
// change entity bindings, and encoded back to binary. The built-in pass
// exports the module's function table under "__indirect_function_table".
//
// # Architecture Overview
//
//	wasmpost/            Root package (documentation only)
//	├── binding/         Binding model: unbound, imported or exported
//	├── module/          Module context: typed, index-ordered entity sections
//	├── pass/            Passes, pipelines and the pass registry
//	├── wasm/            Binary decoder and encoder
//	├── verify/          Host-load check of encoded output using wazero
//	├── toolchain/       Emscripten discovery and prebuilt package cache
//	├── config/          wasmpost.toml loading
//	├── errors/          Structured error types
//	└── cmd/wasmpost/    Command line interface
//
// # Quick Start
//
// Process a module with the default pipeline:
//
//	out, err := pass.Process(data)
//	if errors.Is(err, wperrors.ErrNoTableDeclared) {
//	    // the module has no table to export
//	}
//
// Or work on the context directly:
//
//	ctx, err := wasm.Decode(data)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := (pass.ExportIndirectTable{}).Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	out, err := wasm.Encode(ctx) // fails on duplicate export names
//
// # Index Stability
//
// Entities are never added, removed or reordered by a pass, so every
// function, table, memory and global keeps its index. Changing a binding
// from imported to exported turns the entity into a definition; the encoder
// refuses contexts where that would shift an index space.
//
// # Thread Safety
//
// A module context is owned by one processing run and is not safe for
// concurrent use. Independent modules may be processed in parallel, each
// with its own context.
package wasmpost
