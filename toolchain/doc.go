// Package toolchain locates or installs the Emscripten toolchain that
// produces the modules wasm-post processes.
//
// On linux/amd64 and linux/386 prebuilt Emscripten and Binaryen archives are
// downloaded into a Cache, checked against their recorded size and SHA-256,
// and extracted once. Elsewhere, or when the system install is requested,
// emcc must be on PATH:
//
//	em, err := toolchain.Initialize(ctx, toolchain.Options{TargetWebAssembly: true})
//	if toolchain.Diagnose(os.Stderr, err) {
//	    os.Exit(toolchain.ExitStatus)
//	}
package toolchain
