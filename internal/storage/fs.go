package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/starford/vaultlens/internal/apperr"
	"github.com/starford/vaultlens/internal/models"
)

// DefaultMetadataDir is the vault-internal directory vaultlens owns.
const DefaultMetadataDir = ".vaultlens"

// FS implements Provider backed by the local file system.
type FS struct {
	root        string // absolute path to vault directory
	fsys        fs.FS
	extensions  []string
	metadataDir string
	exclude     []string
}

// FSOption configures an FS provider.
type FSOption func(*FS)

// WithExtensions sets the eligible file extensions (e.g. ".md").
func WithExtensions(exts ...string) FSOption {
	return func(f *FS) {
		if len(exts) > 0 {
			f.extensions = exts
		}
	}
}

// WithMetadataDir sets the vault-internal directory that is never scanned.
func WithMetadataDir(dir string) FSOption {
	return func(f *FS) {
		if dir != "" {
			f.metadataDir = dir
		}
	}
}

// WithExclude adds doublestar glob patterns matched against relative paths.
func WithExclude(patterns ...string) FSOption {
	return func(f *FS) { f.exclude = append(f.exclude, patterns...) }
}

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist; otherwise apperr.ErrVaultNotFound is
// returned.
func NewFS(root string, opts ...FSOption) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("storage: %s: %w", abs, apperr.ErrVaultNotFound)
		}
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s: %w", abs, apperr.ErrVaultNotFound)
	}
	f := &FS{
		root:        abs,
		fsys:        os.DirFS(abs),
		extensions:  []string{".md"},
		metadataDir: DefaultMetadataDir,
	}
	for _, opt := range opts {
		opt(f)
	}
	for _, p := range f.exclude {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("storage: invalid exclude pattern %q", p)
		}
	}
	return f, nil
}

// Root returns the absolute vault directory.
func (f *FS) Root() string { return f.root }

// MetadataDir returns the absolute path of the vault-internal directory.
func (f *FS) MetadataDir() string { return filepath.Join(f.root, f.metadataDir) }

// safePath resolves a relative path against the vault root and rejects
// any result that escapes it (directory traversal).
func (f *FS) safePath(rel string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("storage: absolute paths not allowed: %s", rel)
	}
	abs, err := filepath.Abs(filepath.Join(f.root, cleaned))
	if err != nil {
		return "", fmt.Errorf("storage: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("storage: path escapes vault root: %s", rel)
	}
	return abs, nil
}

// List walks the vault and returns metadata for every eligible file.
// Hidden directories and the metadata directory are always skipped. A
// directory that cannot be read is reported in Listing.Unreadable and
// skipped; a file that vanished during the walk is left out.
func (f *FS) List() (*Listing, error) {
	out := &Listing{}
	err := fs.WalkDir(f.fsys, ".", func(rel string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if rel == "." {
				return walkErr
			}
			isDir := d != nil && d.IsDir()
			if !errors.Is(walkErr, fs.ErrNotExist) {
				out.Unreadable = append(out.Unreadable, models.FileError{Path: rel, Message: walkErr.Error()})
			}
			if isDir {
				return fs.SkipDir
			}
			return nil
		}
		if rel == "." {
			return nil
		}

		if d.IsDir() {
			if f.SkipDir(rel) {
				return fs.SkipDir
			}
			return nil
		}
		if !f.Eligible(rel) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				out.Unreadable = append(out.Unreadable, models.FileError{Path: rel, Message: err.Error()})
			}
			return nil
		}
		out.Files = append(out.Files, models.FileMetadata{
			Path:       rel,
			Size:       info.Size(),
			ModifiedAt: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	return out, nil
}

// Read returns the raw bytes of a vault file.
func (f *FS) Read(rel string) ([]byte, error) {
	abs, err := f.safePath(rel)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", rel, err)
	}
	return data, nil
}

// SkipDir reports whether the directory at rel (slash separated, relative
// to the root) is never scanned.
func (f *FS) SkipDir(rel string) bool {
	return strings.HasPrefix(path.Base(rel), ".") || rel == f.metadataDir || f.excluded(rel)
}

// Eligible reports whether the file at rel would be listed, ignoring the
// state of its parent directories.
func (f *FS) Eligible(rel string) bool {
	name := path.Base(rel)
	return !strings.HasPrefix(name, ".") && f.eligible(name) && !f.excluded(rel)
}

func (f *FS) eligible(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range f.extensions {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}

func (f *FS) excluded(rel string) bool {
	for _, p := range f.exclude {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}
