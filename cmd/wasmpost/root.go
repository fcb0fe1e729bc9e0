package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"github.com/wippyai/wasm-post/config"
	"github.com/wippyai/wasm-post/pass"
	"github.com/wippyai/wasm-post/toolchain"
	"github.com/wippyai/wasm-post/wasm"
)

// newRootCmd builds the command tree. Subcommands receive the loaded
// configuration through app.
func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "wasmpost",
		Short:         "WebAssembly module post-processor",
		Long:          `wasmpost rewrites the bindings of compiled WebAssembly modules so the host glue can reach them`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}

	root.PersistentFlags().String("config", "", "path to wasmpost.toml (default: search upwards from the working directory)")
	root.PersistentFlags().String("log-level", "", "log level (debug|info|warn|error)")
	root.PersistentFlags().String("color", "auto", "colorize output (auto|on|off)")

	root.AddCommand(newProcessCmd(a))
	root.AddCommand(newInspectCmd(a))
	root.AddCommand(newToolchainCmd(a))
	return root
}

type app struct {
	cfg      *config.Config
	log      *zap.Logger
	renderer *lipgloss.Renderer
	color    bool
}

func (a *app) setup(cmd *cobra.Command) error {
	flags := cmd.Root().PersistentFlags()

	path, err := flags.GetString("config")
	if err != nil {
		return fmt.Errorf("failed to get config flag: %w", err)
	}
	if path != "" {
		a.cfg, err = config.Load(path)
	} else {
		a.cfg, err = config.Discover(".")
	}
	if err != nil {
		return err
	}

	level, err := flags.GetString("log-level")
	if err != nil {
		return fmt.Errorf("failed to get log-level flag: %w", err)
	}
	if level != "" {
		a.cfg.Log.Level = level
		if err := a.cfg.Validate(); err != nil {
			return err
		}
	}

	colorFlag, err := flags.GetString("color")
	if err != nil {
		return fmt.Errorf("failed to get color flag: %w", err)
	}
	switch colorFlag {
	case "on":
		a.color = true
	case "off":
		a.color = false
	case "auto":
		a.color = isTerminal(os.Stdout)
	default:
		return fmt.Errorf("unknown color mode %q (want auto, on or off)", colorFlag)
	}
	color.NoColor = !a.color

	a.log, err = newLogger(a.cfg.Log, isTerminal(os.Stderr) && a.color)
	if err != nil {
		return err
	}
	pass.SetLogger(a.log.Named("pass"))
	wasm.SetLogger(a.log.Named("wasm"))
	toolchain.SetLogger(a.log.Named("toolchain"))

	a.renderer = lipgloss.NewRenderer(cmd.OutOrStdout())
	if a.color {
		a.renderer.SetColorProfile(termenv.ANSI256)
	} else {
		a.renderer.SetColorProfile(termenv.Ascii)
	}
	a.log.Debug("configuration loaded", zap.String("path", a.cfg.Path), zap.Strings("passes", a.cfg.Passes.Run))
	return nil
}

// newLogger builds the process logger. Logs go to stderr so processed
// output on stdout stays clean.
func newLogger(cfg config.Log, colored bool) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	var zc zap.Config
	if cfg.Format == "json" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		if colored {
			zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
		zc.DisableStacktrace = true
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	return zc.Build()
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
