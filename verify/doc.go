// Package verify checks that processed modules load in a host runtime.
//
// Compile hands the encoded bytes to a fresh wazero runtime. Compilation
// validates the whole module, including the function bodies and element
// segments the codec carries through untouched:
//
//	report, err := verify.Compile(ctx, out, verify.Config{Engine: verify.EngineInterpreter})
//	if err == nil && !report.IndirectTable {
//	    // table 0 is not exported for the JavaScript glue
//	}
package verify
