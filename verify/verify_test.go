package verify_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/wasm-post/binding"
	"github.com/wippyai/wasm-post/errors"
	"github.com/wippyai/wasm-post/module"
	"github.com/wippyai/wasm-post/pass"
	"github.com/wippyai/wasm-post/verify"
	"github.com/wippyai/wasm-post/wasm"
)

func encode(t *testing.T, code []byte, runPass bool) []byte {
	t.Helper()
	ctx := module.New()
	ctx.Types = []module.FuncType{{}}
	ctx.Functions.Append(module.NewFunction(0, nil, binding.Import("env", "abort")))
	ctx.Functions.Append(module.NewFunction(0, &module.Body{Locals: []byte{0x00}, Code: code}, binding.Export("_start")))
	ctx.Functions.Append(module.NewFunction(0, &module.Body{Locals: []byte{0x00}, Code: []byte{0x0b}}, binding.Export("helper")))
	ctx.Tables.Append(module.NewTable(module.RefFunc, module.Limits{Min: 1}, binding.Unbound()))
	ctx.Memories.Append(module.NewMemory(module.Limits{Min: 1}, binding.Export("memory")))
	if runPass {
		require.NoError(t, pass.ExportIndirectTable{}.Run(ctx))
	}
	out, err := wasm.Encode(ctx)
	require.NoError(t, err)
	return out
}

func TestCompileReport(t *testing.T) {
	data := encode(t, []byte{0x10, 0x00, 0x0b}, true)

	for _, engine := range []verify.Engine{verify.EngineAuto, verify.EngineInterpreter} {
		t.Run(string(engine), func(t *testing.T) {
			report, err := verify.Compile(context.Background(), data, verify.Config{Engine: engine})
			require.NoError(t, err)

			assert.Equal(t, []string{"_start", "helper"}, report.Functions)
			assert.Equal(t, []string{"memory"}, report.Memories)
			assert.Equal(t, []string{"env.abort"}, report.Imports)
			assert.True(t, report.IndirectTable)
		})
	}
}

func TestCompileWithoutPass(t *testing.T) {
	report, err := verify.Compile(context.Background(), encode(t, []byte{0x0b}, false), verify.Config{})
	require.NoError(t, err)
	assert.False(t, report.IndirectTable)
}

func TestCompileRejected(t *testing.T) {
	// i32.const 0 left on the stack of a function returning nothing
	data := encode(t, []byte{0x41, 0x00, 0x0b}, true)

	_, err := verify.Compile(context.Background(), data, verify.Config{Engine: verify.EngineInterpreter})
	require.Error(t, err)
	assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseVerify, Kind: errors.KindInvalidModule})
}

func TestCompileMemoryLimit(t *testing.T) {
	data := encode(t, []byte{0x0b}, true)

	_, err := verify.Compile(context.Background(), data, verify.Config{Engine: verify.EngineInterpreter, MemoryLimitPages: 1, EnableThreads: true})
	require.NoError(t, err)
}

func TestCompileUnknownEngine(t *testing.T) {
	_, err := verify.Compile(context.Background(), nil, verify.Config{Engine: "jit"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown engine "jit"`)
}
