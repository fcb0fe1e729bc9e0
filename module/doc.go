// Package module holds the in-memory representation of a decoded
// WebAssembly module: its function types and the ordered index spaces of
// functions, tables, memories and globals, each entity carrying its host
// binding.
//
// Index order is the declaration order of the binary, imports first. It is
// the order used by every in-module reference (call, call_indirect,
// global.get, ...) and passes must never reorder or remove entries:
//
//	ctx, err := wasm.Decode(data)
//	table, ok := ctx.Tables.First()
//	if ok {
//	    table.SetBinding(binding.Export("__indirect_function_table"))
//	}
//
// The context does not validate cross references; the decoder and encoder
// own that.
package module
