package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap/zapcore"

	wperrors "github.com/wippyai/wasm-post/errors"
	"github.com/wippyai/wasm-post/pass"
	"github.com/wippyai/wasm-post/verify"
)

// FileName is the configuration file looked up from the working directory.
const FileName = "wasmpost.toml"

// Config is the wasmpost.toml contents.
type Config struct {
	Log       Log       `toml:"log"`
	Toolchain Toolchain `toml:"toolchain"`
	Verify    Verify    `toml:"verify"`
	Passes    Passes    `toml:"passes"`

	// Path is the file the configuration was read from, empty for defaults.
	Path string `toml:"-"`
}

type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // console or json
}

type Passes struct {
	Run []string `toml:"run"`
}

type Toolchain struct {
	CacheDir     string `toml:"cache_dir"`
	UseSystem    bool   `toml:"use_system"`
	TargetWebAsm bool   `toml:"target_webasm"`
}

type Verify struct {
	Compiler string `toml:"compiler"`
	Enabled  bool   `toml:"enabled"`
}

// Default returns the configuration used when no file is found.
func Default() *Config {
	return &Config{
		Log:       Log{Level: "warn", Format: "console"},
		Passes:    Passes{Run: pass.Default().Names()},
		Toolchain: Toolchain{TargetWebAsm: true},
		Verify:    Verify{Compiler: string(verify.EngineAuto)},
	}
}

// Find walks up from startDir to locate wasmpost.toml.
func Find(startDir string) (path string, ok bool, err error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// Discover loads the nearest wasmpost.toml above startDir, or the defaults
// when there is none.
func Discover(startDir string) (*Config, error) {
	path, ok, err := Find(startDir)
	if err != nil {
		return nil, err
	}
	if !ok {
		return Default(), nil
	}
	return Load(path)
}

// Load reads path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, configError(path, "unknown keys: %s", strings.Join(keys, ", "))
	}
	cfg.Path = path
	if cfg.Toolchain.CacheDir != "" && !filepath.IsAbs(cfg.Toolchain.CacheDir) {
		cfg.Toolchain.CacheDir = filepath.Join(filepath.Dir(path), cfg.Toolchain.CacheDir)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that decoding cannot.
func (c *Config) Validate() error {
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return configError(c.Path, "[log].level: %v", err)
	}
	if c.Log.Format != "console" && c.Log.Format != "json" {
		return configError(c.Path, "[log].format must be console or json, got %q", c.Log.Format)
	}

	known := pass.NewRegistry().Names()
	for _, name := range c.Passes.Run {
		if !slices.Contains(known, name) {
			return configError(c.Path, "[passes].run: unknown pass %q (known: %s)", name, strings.Join(known, ", "))
		}
	}

	switch verify.Engine(c.Verify.Compiler) {
	case verify.EngineAuto, verify.EngineCompiler, verify.EngineInterpreter:
	default:
		return configError(c.Path, "[verify].compiler must be auto, compiler or interpreter, got %q", c.Verify.Compiler)
	}
	return nil
}

func configError(path, detail string, args ...any) error {
	b := wperrors.New(wperrors.PhaseConfig, wperrors.KindInvalidInput).Detail(detail, args...)
	if path != "" {
		b.Path(path)
	}
	return b.Build()
}
