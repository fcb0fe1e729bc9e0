package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/wasm-post/pass"
	"github.com/wippyai/wasm-post/verify"
)

type processOptions struct {
	output  string
	passes  []string
	jobs    int
	inPlace bool
	verify  bool
}

func newProcessCmd(a *app) *cobra.Command {
	opts := &processOptions{}
	cmd := &cobra.Command{
		Use:   "process [flags] <file.wasm>...",
		Short: "Run the configured passes over compiled modules",
		Long: `Decode each module, run the pass pipeline and write the re-encoded result.
Files are processed concurrently; each gets its own module context.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("verify") {
				opts.verify = a.cfg.Verify.Enabled
			}
			if !cmd.Flags().Changed("pass") {
				opts.passes = a.cfg.Passes.Run
			}
			return runProcess(cmd.Context(), a, opts, args)
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file, or directory when processing several files")
	cmd.Flags().BoolVar(&opts.inPlace, "in-place", false, "overwrite the input files")
	cmd.Flags().StringSliceVar(&opts.passes, "pass", nil, "pass to run, in order (repeatable; default from config)")
	cmd.Flags().BoolVar(&opts.verify, "verify", false, "compile the output with wazero before writing it")
	cmd.Flags().IntVar(&opts.jobs, "jobs", 0, "max files processed in parallel (0=auto)")
	return cmd
}

func runProcess(ctx context.Context, a *app, opts *processOptions, files []string) error {
	if opts.inPlace && opts.output != "" {
		return fmt.Errorf("--output and --in-place cannot be used together")
	}
	outputs, err := outputPaths(opts, files)
	if err != nil {
		return err
	}
	pipeline, err := pass.NewRegistry().Pipeline(opts.passes...)
	if err != nil {
		return err
	}

	jobs := opts.jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for i, file := range files {
		g.Go(func() error {
			return processFile(gctx, a, pipeline, file, outputs[i], opts.verify)
		})
	}
	return g.Wait()
}

// outputPaths maps each input to where its result is written.
func outputPaths(opts *processOptions, files []string) ([]string, error) {
	out := make([]string, len(files))
	if opts.inPlace {
		copy(out, files)
		return out, uniqueOutputs(files, out)
	}
	if opts.output == "" {
		return nil, fmt.Errorf("specify --output or --in-place")
	}

	info, err := os.Stat(opts.output)
	isDir := err == nil && info.IsDir()
	if len(files) > 1 && !isDir {
		return nil, fmt.Errorf("--output must be an existing directory when processing %d files", len(files))
	}
	for i, f := range files {
		if isDir {
			out[i] = filepath.Join(opts.output, filepath.Base(f))
		} else {
			out[i] = opts.output
		}
	}
	return out, uniqueOutputs(files, out)
}

// uniqueOutputs rejects two inputs that would be written to the same path.
func uniqueOutputs(files, outputs []string) error {
	seen := make(map[string]string, len(outputs))
	for i, out := range outputs {
		key, err := filepath.Abs(out)
		if err != nil {
			key = filepath.Clean(out)
		}
		if prev, dup := seen[key]; dup {
			return fmt.Errorf("%s and %s would both be written to %s", prev, files[i], out)
		}
		seen[key] = files[i]
	}
	return nil
}

func processFile(ctx context.Context, a *app, p pass.Pipeline, in, out string, check bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := os.ReadFile(in)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	result, err := p.Process(data)
	if err != nil {
		return fmt.Errorf("%s: %w", in, err)
	}

	if check {
		v := a.cfg.Verify
		report, err := verify.Compile(ctx, result, verify.Config{Engine: verify.Engine(v.Compiler)})
		if err != nil {
			return fmt.Errorf("%s: %w", in, err)
		}
		a.log.Debug("verified",
			zap.String("file", in),
			zap.Strings("functions", report.Functions),
			zap.Strings("imports", report.Imports),
			zap.Bool("indirect_table", report.IndirectTable))
	}

	if err := writeAtomic(out, result); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	a.log.Info("processed",
		zap.String("file", in),
		zap.String("output", out),
		zap.Int("bytes_in", len(data)),
		zap.Int("bytes_out", len(result)))
	return nil
}

// writeAtomic replaces path with data via a temporary file in the same
// directory.
func writeAtomic(path string, data []byte) error {
	f, err := os.CreateTemp(filepath.Dir(path), ".wasmpost-*")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())

	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Chmod(0o644); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), path)
}
