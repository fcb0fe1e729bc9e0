package toolchain

const (
	release     = "1.38.19-1"
	downloadURL = "https://github.com/koute/emscripten-build/releases/download/emscripten-" + release + "/"
)

// Package describes a prebuilt toolchain archive.
type Package struct {
	Name    string
	Version string
	Arch    string // target triple the archive was built for
	URL     string
	SHA256  string // hex digest of the archive
	Size    int64  // archive size in bytes
}

// Key names the package's install directory.
func (p Package) Key() string {
	return p.Name + "-" + p.Version + "-" + p.Arch
}

type prebuilt struct {
	hash string
	size int64
}

// prebuilts is keyed by package name, then GOARCH. Archives exist only for
// linux.
var prebuilts = map[string]map[string]prebuilt{
	"emscripten": {
		"amd64": {"baab5f1162901bfa220cb009dc628300c5e67b91cf58656ab6bf392d513bff9c", 211505607},
		"386":   {"6d211eb0e9bbf82a1bf0dcc336486aa5191952f3938b7c0cf76b8d6946d4c117", 223770839},
	},
	"binaryen": {
		"amd64": {"af079258c6f13234541d932b873762910951779c4682fc917255716637383dc9", 15818455},
		"386":   {"9fd0e30d1760d29e3c96fa24592a35629876316fadb7ef882b9c6d8b2eafb0d8", 15951181},
	},
}

var triples = map[string]string{
	"amd64": "x86_64-unknown-linux-gnu",
	"386":   "i686-unknown-linux-gnu",
}

// EmscriptenPackage returns the prebuilt Emscripten archive for a platform.
func EmscriptenPackage(goos, goarch string) (Package, bool) {
	return lookup("emscripten", goos, goarch)
}

// BinaryenPackage returns the prebuilt Binaryen archive for a platform.
func BinaryenPackage(goos, goarch string) (Package, bool) {
	return lookup("binaryen", goos, goarch)
}

func lookup(name, goos, goarch string) (Package, bool) {
	if goos != "linux" {
		return Package{}, false
	}
	p, ok := prebuilts[name][goarch]
	if !ok {
		return Package{}, false
	}
	arch := triples[goarch]
	return Package{
		Name:    name,
		Version: release,
		Arch:    arch,
		URL:     downloadURL + name + "-" + release + "-" + arch + ".tgz",
		SHA256:  p.hash,
		Size:    p.size,
	}, true
}
