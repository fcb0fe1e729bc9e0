package verify

import (
	"context"
	"fmt"
	"slices"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"

	"github.com/wippyai/wasm-post/errors"
	"github.com/wippyai/wasm-post/module"
	"github.com/wippyai/wasm-post/pass"
	"github.com/wippyai/wasm-post/wasm"
)

// Engine names a wazero execution engine.
type Engine string

const (
	EngineAuto        Engine = "auto"
	EngineCompiler    Engine = "compiler"
	EngineInterpreter Engine = "interpreter"
)

// Config holds configuration for host-load checks
type Config struct {
	Engine Engine

	// MemoryLimitPages caps declared memories in pages (64KB each).
	// 0 means the wazero default.
	MemoryLimitPages uint32

	// EnableThreads accepts shared memories and atomic instructions.
	EnableThreads bool
}

// Report describes a module as the host runtime sees it.
type Report struct {
	Functions     []string // exported function names, sorted
	Memories      []string // exported memory names, sorted
	Imports       []string // imported functions as "module.name"
	IndirectTable bool     // table 0 is exported as __indirect_function_table
}

// Compile loads data into a fresh wazero runtime and reports its surface.
// A module the runtime rejects fails with errors.PhaseVerify.
func Compile(ctx context.Context, data []byte, cfg Config) (*Report, error) {
	rtCfg, err := runtimeConfig(cfg)
	if err != nil {
		return nil, err
	}

	rt := wazero.NewRuntimeWithConfig(ctx, rtCfg)
	defer rt.Close(ctx)

	compiled, err := rt.CompileModule(ctx, data)
	if err != nil {
		return nil, errors.New(errors.PhaseVerify, errors.KindInvalidModule).
			Cause(err).
			Detail("host runtime rejected module").
			Build()
	}
	defer compiled.Close(ctx)

	r := &Report{}
	for name := range compiled.ExportedFunctions() {
		r.Functions = append(r.Functions, name)
	}
	for name := range compiled.ExportedMemories() {
		r.Memories = append(r.Memories, name)
	}
	for _, def := range compiled.ImportedFunctions() {
		mod, name, _ := def.Import()
		r.Imports = append(r.Imports, mod+"."+name)
	}
	slices.Sort(r.Functions)
	slices.Sort(r.Memories)

	// wazero does not expose tables on compiled modules
	decoded, err := wasm.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("inspect tables: %w", err)
	}
	r.IndirectTable = slices.Contains(decoded.Exports(), module.ExportRef{
		Name:      pass.IndirectFunctionTable,
		EntityRef: module.EntityRef{Kind: module.KindTable},
	})
	return r, nil
}

func runtimeConfig(cfg Config) (wazero.RuntimeConfig, error) {
	var rc wazero.RuntimeConfig
	switch cfg.Engine {
	case EngineAuto, "":
		rc = wazero.NewRuntimeConfig()
	case EngineCompiler:
		rc = wazero.NewRuntimeConfigCompiler()
	case EngineInterpreter:
		rc = wazero.NewRuntimeConfigInterpreter()
	default:
		return nil, errors.InvalidInput(errors.PhaseVerify, fmt.Sprintf("unknown engine %q", cfg.Engine))
	}
	if cfg.MemoryLimitPages > 0 {
		rc = rc.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	if cfg.EnableThreads {
		rc = rc.WithCoreFeatures(api.CoreFeaturesV2 | experimental.CoreFeaturesThreads)
	}
	return rc, nil
}
