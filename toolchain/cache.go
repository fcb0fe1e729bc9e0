package toolchain

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	wperrors "github.com/wippyai/wasm-post/errors"
)

// Current schema version - increment when manifest format changes
const manifestSchema uint16 = 1

const manifestName = ".wasmpost-manifest.mp"

// manifest records a completed install inside the package directory.
type manifest struct {
	Installed time.Time
	Name      string
	Version   string
	Arch      string
	SHA256    string
	Size      int64
	Schema    uint16
}

// Cache stores extracted toolchain packages under Dir.
// Safe for concurrent use within one process; distinct packages resolve in
// parallel.
type Cache struct {
	Client *http.Client // nil means http.DefaultClient
	locks  sync.Map     // package key -> *sync.Mutex
	Dir    string
}

// DefaultCache returns the cache under the user cache directory.
func DefaultCache() (*Cache, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		base = filepath.Join(home, ".cache")
	}
	return &Cache{Dir: filepath.Join(base, "wasmpost")}, nil
}

// Path returns where pkg is installed, whether or not it is present.
func (c *Cache) Path(pkg Package) string {
	return filepath.Join(c.Dir, pkg.Key())
}

// Resolve returns the directory holding the extracted pkg, downloading and
// extracting it first when no verified install is present.
func (c *Cache) Resolve(ctx context.Context, pkg Package) (string, error) {
	l, _ := c.locks.LoadOrStore(pkg.Key(), &sync.Mutex{})
	mu := l.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	root := c.Path(pkg)
	if ok, err := c.installed(root, pkg); err != nil {
		return "", err
	} else if ok {
		Logger().Debug("toolchain package cached", zap.String("package", pkg.Key()), zap.String("path", root))
		return root, nil
	}

	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return "", err
	}
	tmp, err := os.MkdirTemp(c.Dir, ".tmp-"+pkg.Key()+"-")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(tmp)

	archive := filepath.Join(tmp, "archive.tgz")
	if err := c.download(ctx, pkg, archive); err != nil {
		return "", err
	}

	staged := filepath.Join(tmp, "root")
	if err := extract(archive, staged); err != nil {
		return "", fmt.Errorf("extract %s: %w", pkg.Key(), err)
	}
	if err := writeManifest(staged, pkg); err != nil {
		return "", err
	}

	// a stale or partial install is replaced wholesale
	if err := os.RemoveAll(root); err != nil {
		return "", err
	}
	if err := os.Rename(staged, root); err != nil {
		return "", err
	}
	Logger().Info("toolchain package installed", zap.String("package", pkg.Key()), zap.String("path", root))
	return root, nil
}

func (c *Cache) installed(root string, pkg Package) (bool, error) {
	f, err := os.Open(filepath.Join(root, manifestName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()

	var m manifest
	if err := msgpack.NewDecoder(f).Decode(&m); err != nil {
		Logger().Warn("ignoring unreadable manifest", zap.String("path", root), zap.Error(err))
		return false, nil
	}
	return m.Schema == manifestSchema && m.SHA256 == pkg.SHA256 && m.Size == pkg.Size, nil
}

func writeManifest(dir string, pkg Package) error {
	f, err := os.Create(filepath.Join(dir, manifestName))
	if err != nil {
		return err
	}
	err = msgpack.NewEncoder(f).Encode(&manifest{
		Schema:    manifestSchema,
		Name:      pkg.Name,
		Version:   pkg.Version,
		Arch:      pkg.Arch,
		SHA256:    pkg.SHA256,
		Size:      pkg.Size,
		Installed: time.Now().UTC(),
	})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}

// download fetches pkg into dst and checks its size, then its digest.
func (c *Cache) download(ctx context.Context, pkg Package, dst string) error {
	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pkg.URL, nil)
	if err != nil {
		return err
	}
	Logger().Info("downloading toolchain package",
		zap.String("package", pkg.Key()),
		zap.String("url", pkg.URL),
		zap.Int64("bytes", pkg.Size))

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", pkg.Key(), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: unexpected status %s", pkg.Key(), resp.Status)
	}

	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer f.Close()

	h := sha256.New()
	// one byte past the expected size is enough to detect an oversized body
	n, err := io.Copy(io.MultiWriter(f, h), io.LimitReader(resp.Body, pkg.Size+1))
	if err != nil {
		return fmt.Errorf("download %s: %w", pkg.Key(), err)
	}
	if n != pkg.Size {
		return wperrors.Integrity(pkg.Key(), "size mismatch: got %d bytes, want %d", n, pkg.Size)
	}
	if sum := hex.EncodeToString(h.Sum(nil)); sum != pkg.SHA256 {
		return wperrors.Integrity(pkg.Key(), "hash mismatch: got %s, want %s", sum, pkg.SHA256)
	}
	return f.Close()
}

// extract unpacks a gzipped tarball into dir. Entries escaping dir, either
// by name or through symlinks already extracted, are rejected.
func extract(archive, dir string) error {
	f, err := os.Open(archive)
	if err != nil {
		return err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer gz.Close()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	root, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return err
	}

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		if _, err := within(root, hdr.Name); err != nil {
			return err
		}
		name := filepath.Clean(filepath.FromSlash(hdr.Name))
		parent, err := resolveIn(root, root, filepath.Dir(name), 0)
		if err != nil {
			return fmt.Errorf("archive entry %q: %w", hdr.Name, err)
		}
		target := filepath.Join(parent, filepath.Base(name))

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeFile(target, tr, hdr.FileInfo().Mode().Perm()); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if filepath.IsAbs(hdr.Linkname) {
				return fmt.Errorf("absolute symlink %s -> %s", hdr.Name, hdr.Linkname)
			}
			if _, err := resolveIn(root, parent, hdr.Linkname, 0); err != nil {
				return fmt.Errorf("symlink %s -> %s: %w", hdr.Name, hdr.Linkname, err)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return err
			}
		default:
			Logger().Debug("skipping archive entry", zap.String("name", hdr.Name), zap.Uint8("type", hdr.Typeflag))
		}
	}
}

func within(dir, name string) (string, error) {
	target := filepath.Join(dir, name)
	rel, err := filepath.Rel(dir, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("archive entry %q escapes destination", name)
	}
	return target, nil
}

// resolveIn walks rel from base, following symlinks present on disk, and
// fails if any step leaves root. A ".." after a component that does not exist
// yet is rejected since that component may later become a symlink.
func resolveIn(root, base, rel string, depth int) (string, error) {
	if depth > 40 {
		return "", fmt.Errorf("too many levels of symbolic links")
	}
	cur := base
	missing := false
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		switch part {
		case "", ".":
			continue
		case "..":
			if missing {
				return "", fmt.Errorf("%q steps out of a path that does not exist", rel)
			}
			cur = filepath.Dir(cur)
		default:
			next := filepath.Join(cur, part)
			if !missing {
				fi, err := os.Lstat(next)
				switch {
				case os.IsNotExist(err):
					missing = true
				case err != nil:
					return "", err
				case fi.Mode()&os.ModeSymlink != 0:
					link, err := os.Readlink(next)
					if err != nil {
						return "", err
					}
					if filepath.IsAbs(link) {
						return "", fmt.Errorf("absolute symlink %s", next)
					}
					if next, err = resolveIn(root, cur, link, depth+1); err != nil {
						return "", err
					}
				}
			}
			cur = next
		}
		if r, err := filepath.Rel(root, cur); err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
			return "", fmt.Errorf("path escapes destination")
		}
	}
	return cur, nil
}

func writeFile(path string, r io.Reader, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm|0o200)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
