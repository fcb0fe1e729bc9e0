package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-post/binding"
	"github.com/wippyai/wasm-post/config"
	"github.com/wippyai/wasm-post/module"
	"github.com/wippyai/wasm-post/pass"
	"github.com/wippyai/wasm-post/toolchain"
	"github.com/wippyai/wasm-post/wasm"
)

// sampleModule encodes a module with an exported function, an optional
// table and an exported memory.
func sampleModule(t *testing.T, withTable bool) []byte {
	t.Helper()
	ctx := module.New()
	ctx.Types = []module.FuncType{{}}
	ctx.Functions.Append(module.NewFunction(0, &module.Body{Locals: []byte{0x00}, Code: []byte{0x0b}}, binding.Export("_start")))
	if withTable {
		ctx.Tables.Append(module.NewTable(module.RefFunc, module.Limits{Min: 1}, binding.Unbound()))
	}
	ctx.Memories.Append(module.NewMemory(module.Limits{Min: 1}, binding.Export("memory")))
	data, err := wasm.Encode(ctx)
	require.NoError(t, err)
	return data
}

func writeModule(t *testing.T, dir, name string, withTable bool) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, sampleModule(t, withTable), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cfg := filepath.Join(t.TempDir(), config.FileName)
	require.NoError(t, os.WriteFile(cfg, []byte("[log]\nlevel = \"error\"\n"), 0o644))

	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", cfg, "--color", "off"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func tableBinding(t *testing.T, path string) binding.Binding {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	ctx, err := wasm.Decode(data)
	require.NoError(t, err)
	tbl, ok := ctx.Tables.First()
	require.True(t, ok)
	return tbl.Binding()
}

func TestProcessOutput(t *testing.T) {
	dir := t.TempDir()
	in := writeModule(t, dir, "app.wasm", true)
	out := filepath.Join(dir, "app.post.wasm")

	_, _, err := execute(t, "process", "-o", out, "--verify", in)
	require.NoError(t, err)

	assert.True(t, tableBinding(t, out).Equal(binding.Export(pass.IndirectFunctionTable)))
	assert.True(t, tableBinding(t, in).IsUnbound(), "input modified")

	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}

func TestProcessInPlaceConcurrent(t *testing.T) {
	dir := t.TempDir()
	var files []string
	for _, name := range []string{"a.wasm", "b.wasm", "c.wasm", "d.wasm"} {
		files = append(files, writeModule(t, dir, name, true))
	}

	_, _, err := execute(t, append([]string{"process", "--in-place", "--jobs", "2"}, files...)...)
	require.NoError(t, err)
	for _, f := range files {
		assert.True(t, tableBinding(t, f).Equal(binding.Export(pass.IndirectFunctionTable)), f)
	}
}

func TestProcessOutputDirectory(t *testing.T) {
	dir := t.TempDir()
	outDir := t.TempDir()
	a := writeModule(t, dir, "a.wasm", true)
	b := writeModule(t, dir, "b.wasm", true)

	_, _, err := execute(t, "process", "-o", outDir, a, b)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(outDir, "a.wasm"))
	assert.FileExists(t, filepath.Join(outDir, "b.wasm"))
}

func TestProcessFailures(t *testing.T) {
	dir := t.TempDir()
	good := writeModule(t, dir, "good.wasm", true)
	bare := writeModule(t, dir, "bare.wasm", false)
	for _, sub := range []string{"a", "b", "out"} {
		require.NoError(t, os.Mkdir(filepath.Join(dir, sub), 0o755))
	}
	sameA := writeModule(t, filepath.Join(dir, "a"), "x.wasm", false)
	sameB := writeModule(t, filepath.Join(dir, "b"), "x.wasm", false)

	tests := []struct {
		name string
		args []string
		msg  string
	}{
		{"no table", []string{"process", "--in-place", bare}, "no_table_declared"},
		{"unknown pass", []string{"process", "--in-place", "--pass", "strip-debug", good}, `pass "strip-debug" not found`},
		{"no destination", []string{"process", good}, "specify --output or --in-place"},
		{"both destinations", []string{"process", "--in-place", "-o", dir, good}, "cannot be used together"},
		{"several files to one file", []string{"process", "-o", filepath.Join(dir, "x.wasm"), good, good}, "existing directory"},
		{"missing input", []string{"process", "--in-place", filepath.Join(dir, "nope.wasm")}, "read file"},
		{"same basename into one directory", []string{"process", "-o", filepath.Join(dir, "out"), sameA, sameB}, "would both be written to"},
		{"same file twice in place", []string{"process", "--in-place", good, good}, "would both be written to"},
		{"bad color", []string{"--color", "rainbow", "process", "--in-place", good}, "unknown color mode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}

	assert.True(t, tableBinding(t, good).IsUnbound(), "failed run wrote output")
	assert.NoFileExists(t, filepath.Join(dir, "out", "x.wasm"))
}

func TestProcessEmptyPipeline(t *testing.T) {
	dir := t.TempDir()
	in := writeModule(t, dir, "bare.wasm", false)
	cfg := filepath.Join(dir, config.FileName)
	require.NoError(t, os.WriteFile(cfg, []byte("[passes]\nrun = []\n"), 0o644))

	cmd := newRootCmd()
	cmd.SetArgs([]string{"--config", cfg, "--log-level", "error", "process", "--in-place", in})
	require.NoError(t, cmd.Execute())

	data, err := os.ReadFile(in)
	require.NoError(t, err)
	assert.Equal(t, sampleModule(t, false), data)
}

func TestInspect(t *testing.T) {
	dir := t.TempDir()
	in := writeModule(t, dir, "app.wasm", true)

	stdout, _, err := execute(t, "inspect", in)
	require.NoError(t, err)
	assert.Contains(t, stdout, "ENTITY")
	assert.Contains(t, stdout, "function 0")
	assert.Contains(t, stdout, "type 0 () -> ()")
	assert.Contains(t, stdout, `export "_start"`)
	assert.Contains(t, stdout, "funcref 1")
	assert.NotContains(t, stdout, "\x1b[", "color escapes with --color off")

	lines := strings.Split(stdout, "\n")
	var tableLine string
	for _, l := range lines {
		if strings.HasPrefix(l, "table 0") {
			tableLine = l
		}
	}
	assert.Contains(t, tableLine, "unbound")

	_, _, err = execute(t, "inspect", filepath.Join(dir, "missing.wasm"))
	require.Error(t, err)
}

func TestToolchainNotInstalled(t *testing.T) {
	t.Setenv("PATH", t.TempDir())

	_, stderr, err := execute(t, "toolchain", "--system")
	var ee *exitError
	require.True(t, errors.As(err, &ee), "got %v", err)
	assert.Equal(t, toolchain.ExitStatus, ee.code)
	assert.True(t, ee.silent)
	assert.Contains(t, stderr, "error: you don't have Emscripten installed!")
}

func TestToolchainSystem(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PATH", dir)
	emcc := filepath.Join(dir, "emcc")
	require.NoError(t, os.WriteFile(emcc, []byte("#!/bin/sh\n"), 0o755))

	stdout, _, err := execute(t, "toolchain", "--system")
	require.NoError(t, err)
	assert.Equal(t, "emcc: "+emcc+"\n", stdout)
}

func TestNewLogger(t *testing.T) {
	for _, format := range []string{"console", "json"} {
		log, err := newLogger(config.Log{Level: "debug", Format: format}, false)
		require.NoError(t, err, format)
		assert.True(t, log.Core().Enabled(zap.DebugLevel))
	}
	_, err := newLogger(config.Log{Level: "loud", Format: "json"}, false)
	assert.Error(t, err)
}

func testApp() *app {
	return &app{cfg: config.Default(), log: zap.NewNop(), renderer: lipgloss.NewRenderer(io.Discard)}
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestEditorEditAndSave(t *testing.T) {
	dir := t.TempDir()
	in := writeModule(t, dir, "app.wasm", true)
	out := filepath.Join(dir, "edited.wasm")
	data, err := os.ReadFile(in)
	require.NoError(t, err)
	ctx, err := wasm.Decode(data)
	require.NoError(t, err)

	m, err := newEditorModel(testApp(), in, out, ctx)
	require.NoError(t, err)

	// rows: function 0, table 0, memory 0
	m.Update(key("down"))
	m.Update(key("enter"))
	require.Equal(t, stateEdit, m.state)
	assert.Equal(t, "unbound", m.input.Value())

	m.input.SetValue(`export "table"`)
	m.Update(key("enter"))
	require.Equal(t, stateSelect, m.state)
	assert.True(t, m.dirty)
	tbl, _ := ctx.Tables.First()
	assert.True(t, tbl.Binding().Equal(binding.Export("table")))

	// the configured pipeline overwrites the edit
	m.Update(key("p"))
	require.Equal(t, stateMessage, m.state)
	require.NoError(t, m.err)
	assert.Contains(t, m.View(), "applied export-indirect-table")
	m.Update(key("enter"))

	_, cmd := m.Update(key("w"))
	require.NotNil(t, cmd)
	m.Update(cmd())
	require.NoError(t, m.err)
	assert.False(t, m.dirty)
	assert.True(t, tableBinding(t, out).Equal(binding.Export(pass.IndirectFunctionTable)))
}

func TestEditorRejectsDuplicateExport(t *testing.T) {
	dir := t.TempDir()
	in := writeModule(t, dir, "app.wasm", true)
	data, err := os.ReadFile(in)
	require.NoError(t, err)
	ctx, err := wasm.Decode(data)
	require.NoError(t, err)

	m, err := newEditorModel(testApp(), in, in, ctx)
	require.NoError(t, err)

	m.Update(key("down"))
	m.Update(key("enter"))
	m.input.SetValue(`export "memory"`)
	m.Update(key("enter"))

	_, cmd := m.Update(key("w"))
	m.Update(cmd())
	require.Error(t, m.err)
	assert.Contains(t, m.View(), "duplicate_export_name")
	assert.True(t, m.dirty)
	assert.Equal(t, data, must(os.ReadFile(in)), "failed save touched the file")
}

func TestEditorInvalidBinding(t *testing.T) {
	ctx := module.New()
	ctx.Tables.Append(module.NewTable(module.RefFunc, module.Limits{Min: 1}, binding.Unbound()))
	m, err := newEditorModel(testApp(), "mem", "mem", ctx)
	require.NoError(t, err)

	m.Update(key("enter"))
	m.input.SetValue("exported")
	m.Update(key("enter"))
	require.Equal(t, stateMessage, m.state)
	require.Error(t, m.err)
	m.Update(key("esc"))
	assert.Equal(t, stateSelect, m.state)

	tbl, _ := ctx.Tables.First()
	assert.True(t, tbl.Binding().IsUnbound())
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}
