package toolchain

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	wperrors "github.com/wippyai/wasm-post/errors"
)

// Options selects where the toolchain comes from.
type Options struct {
	// Cache holds prebuilt packages. nil means DefaultCache.
	Cache *Cache

	// GOOS and GOARCH pick the prebuilt packages. Empty means the running
	// platform.
	GOOS   string
	GOARCH string

	// UseSystem requires an Emscripten already on PATH.
	UseSystem bool

	// TargetWebAssembly also fetches Binaryen.
	TargetWebAssembly bool
}

// Emscripten locates an Emscripten installation.
//
// A system install only sets Command. A prebuilt install sets the package
// paths; BinaryenPath is empty unless WebAssembly output was requested.
type Emscripten struct {
	Command        string // emcc on PATH, or inside EmscriptenPath
	EmscriptenPath string
	LLVMPath       string // the fastcomp LLVM backend
	BinaryenPath   string
	System         bool
}

// Initialize finds or installs Emscripten. When no prebuilt package exists
// for the platform, or UseSystem is set, emcc must be on PATH; otherwise
// the returned error is a *errors.NotInstalledError carrying install hints.
func Initialize(ctx context.Context, opts Options) (*Emscripten, error) {
	goos, goarch := opts.GOOS, opts.GOARCH
	if goos == "" {
		goos = runtime.GOOS
	}
	if goarch == "" {
		goarch = runtime.GOARCH
	}

	if opts.UseSystem {
		return system(goos)
	}
	emPkg, ok := EmscriptenPackage(goos, goarch)
	if !ok {
		Logger().Debug("no prebuilt emscripten", zap.String("os", goos), zap.String("arch", goarch))
		return system(goos)
	}
	var binPkg *Package
	if opts.TargetWebAssembly {
		p, ok := BinaryenPackage(goos, goarch)
		if !ok {
			return system(goos)
		}
		binPkg = &p
	}

	cache := opts.Cache
	if cache == nil {
		var err error
		if cache, err = DefaultCache(); err != nil {
			return nil, err
		}
	}

	em := &Emscripten{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		root, err := cache.Resolve(gctx, emPkg)
		if err != nil {
			return err
		}
		em.EmscriptenPath = filepath.Join(root, "emscripten")
		em.LLVMPath = filepath.Join(root, "emscripten-fastcomp")
		em.Command = filepath.Join(em.EmscriptenPath, "emcc")
		return nil
	})
	if binPkg != nil {
		g.Go(func() error {
			root, err := cache.Resolve(gctx, *binPkg)
			if err != nil {
				return err
			}
			em.BinaryenPath = filepath.Join(root, "binaryen")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return em, nil
}

func system(goos string) (*Emscripten, error) {
	if cmd, ok := FindCommand(emccNames(goos)...); ok {
		Logger().Debug("using system emscripten", zap.String("command", cmd))
		return &Emscripten{Command: cmd, System: true}, nil
	}
	return nil, wperrors.NewNotInstalled("Emscripten", installHints(goos, exists))
}

func emccNames(goos string) []string {
	if goos == "windows" {
		return []string{"emcc.bat"}
	}
	return []string{"emcc"}
}

// FindCommand returns the first of names found on PATH.
func FindCommand(names ...string) (string, bool) {
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path, true
		}
	}
	return "", false
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

const emsdkURL = "https://s3.amazonaws.com/mozilla-games/emscripten/releases/emsdk-portable.tar.gz"

// installHints lists install instructions for goos. Lines indented by two
// spaces are commands.
func installHints(goos string, exists func(string) bool) []string {
	var hints []string
	switch {
	case exists("/usr/bin/pacman"):
		hints = append(hints, "You can most likely install it like this:", "  sudo pacman -S emscripten")
	case exists("/usr/bin/apt-get"):
		hints = append(hints, "You can most likely install it like this:", "  sudo apt-get install emscripten")
	case goos == "linux":
		hints = append(hints, "You can most likely find it in your distro's repositories.")
	case goos == "windows":
		hints = append(hints, "Download and install emscripten from the official site: http://kripken.github.io/emscripten-site/docs/getting_started/downloads.html")
	}

	if goos == "windows" || goos == "plan9" {
		return hints
	}
	if goos == "linux" {
		hints = append(hints, "If not you can install it manually like this:")
	} else {
		hints = append(hints, "You can install it manually like this:")
	}
	return append(hints,
		"  curl -O "+emsdkURL,
		"  tar -xzf emsdk-portable.tar.gz",
		"  source emsdk-portable/emsdk_env.sh",
		"  emsdk update",
		"  emsdk install sdk-incoming-64bit",
		"  emsdk activate sdk-incoming-64bit",
	)
}
