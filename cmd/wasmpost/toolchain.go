package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wippyai/wasm-post/toolchain"
)

func newToolchainCmd(a *app) *cobra.Command {
	var system, webasm bool
	cmd := &cobra.Command{
		Use:   "toolchain [flags]",
		Short: "Locate or install the Emscripten toolchain",
		Long: `Resolve the Emscripten toolchain used to build modules. Prebuilt packages
are downloaded and verified on linux/amd64 and linux/386; elsewhere emcc
must be on PATH.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := toolchain.Options{
				UseSystem:         a.cfg.Toolchain.UseSystem,
				TargetWebAssembly: a.cfg.Toolchain.TargetWebAsm,
			}
			if cmd.Flags().Changed("system") {
				opts.UseSystem = system
			}
			if cmd.Flags().Changed("webasm") {
				opts.TargetWebAssembly = webasm
			}
			if dir := a.cfg.Toolchain.CacheDir; dir != "" {
				opts.Cache = &toolchain.Cache{Dir: dir}
			}

			em, err := toolchain.Initialize(cmd.Context(), opts)
			if toolchain.Diagnose(cmd.ErrOrStderr(), err) {
				return &exitError{err: err, code: toolchain.ExitStatus, silent: true}
			}
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "emcc: %s\n", em.Command)
			if em.System {
				return nil
			}
			fmt.Fprintf(w, "emscripten: %s\n", em.EmscriptenPath)
			fmt.Fprintf(w, "llvm: %s\n", em.LLVMPath)
			if em.BinaryenPath != "" {
				fmt.Fprintf(w, "binaryen: %s\n", em.BinaryenPath)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&system, "system", false, "require the emcc already on PATH")
	cmd.Flags().BoolVar(&webasm, "webasm", true, "also install Binaryen for WebAssembly output")
	return cmd
}
