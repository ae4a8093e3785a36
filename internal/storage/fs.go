package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/livevars/internal/apperr"
	"github.com/starford/livevars/internal/checksum"
	"github.com/starford/livevars/internal/frontmatter"
	"github.com/starford/livevars/internal/models"
	"github.com/starford/livevars/internal/value"
)

const tmpPrefix = ".livevars-tmp-"

// Option configures an FS.
type Option func(*FS)

// WithReservedDirs sets the directory name prefixes that are never listed.
func WithReservedDirs(dirs []string) Option {
	return func(f *FS) {
		f.reserved = dirs
	}
}

// WithExtensions sets the file extensions treated as documents.
func WithExtensions(exts []string) Option {
	return func(f *FS) {
		if len(exts) > 0 {
			f.exts = exts
		}
	}
}

// FS implements Provider backed by the local file system.
type FS struct {
	root     string // absolute path to vault directory
	reserved []string
	exts     []string
}

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string, opts ...Option) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	f := &FS{
		root:     abs,
		reserved: []string{".obsidian", ".git"},
		exts:     []string{".md"},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Root returns the absolute vault directory.
func (f *FS) Root() string { return f.root }

// Reserved reports whether a directory or file name is hidden from listings.
func (f *FS) Reserved(name string) bool {
	if strings.HasPrefix(name, tmpPrefix) {
		return true
	}
	for _, r := range f.reserved {
		if r != "" && strings.HasPrefix(name, r) {
			return true
		}
	}
	return false
}

// IsDocument reports whether name has a document extension.
func (f *FS) IsDocument(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range f.exts {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}

// safePath resolves a relative path against the vault root and rejects
// any result that escapes it (directory traversal).
func (f *FS) safePath(rel string) (string, error) {
	if rel == "" {
		return f.root, nil
	}
	cleaned := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("storage: absolute paths not allowed: %s: %w", rel, apperr.ErrInvalidPath)
	}
	abs, err := filepath.Abs(filepath.Join(f.root, cleaned))
	if err != nil {
		return "", fmt.Errorf("storage: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) && abs != f.root {
		return "", fmt.Errorf("storage: path escapes vault root: %s: %w", rel, apperr.ErrInvalidPath)
	}
	return abs, nil
}

// Rel converts an absolute path under the vault to a slash-separated
// document id.
func (f *FS) Rel(abs string) (string, error) {
	rel, err := filepath.Rel(f.root, abs)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("storage: %s is outside the vault: %w", abs, apperr.ErrInvalidPath)
	}
	return filepath.ToSlash(rel), nil
}

// walk visits every non-reserved entry under base. Unreadable directories
// are skipped instead of failing the walk.
func (f *FS) walk(base string, fn func(p string, d fs.DirEntry) error) error {
	return filepath.WalkDir(base, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if p == base {
				return walkErr
			}
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if p == base {
			return nil
		}
		if f.Reserved(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		return fn(p, d)
	})
}

// ListTree enumerates every directory and file under the vault in lexical
// order, skipping reserved directories.
func (f *FS) ListTree() ([]models.TreeEntry, error) {
	var out []models.TreeEntry
	err := f.walk(f.root, func(p string, d fs.DirEntry) error {
		rel, err := f.Rel(p)
		if err != nil {
			return err
		}
		out = append(out, models.TreeEntry{Path: rel, IsDir: d.IsDir()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: list tree: %w", err)
	}
	return out, nil
}

// List walks dir (relative to root) and returns metadata for every document.
func (f *FS) List(dir string) ([]models.DocumentMeta, error) {
	base, err := f.safePath(dir)
	if err != nil {
		return nil, err
	}
	var out []models.DocumentMeta
	err = f.walk(base, func(p string, d fs.DirEntry) error {
		if d.IsDir() || !f.IsDocument(d.Name()) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		rel, err := f.Rel(p)
		if err != nil {
			return err
		}
		out = append(out, models.DocumentMeta{
			Path:      rel,
			Checksum:  checksum.Sum(data),
			UpdatedAt: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	return out, nil
}

// Read returns the raw bytes of a vault file. A missing file yields an
// error wrapping apperr.ErrNotFound.
func (f *FS) Read(path string) ([]byte, error) {
	abs, err := f.safePath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("storage: read %s: %w", path, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("storage: read %s: %w", path, err)
	}
	return data, nil
}

// Snapshot returns the parsed front matter of the document at path.
func (f *FS) Snapshot(path string) (*value.Map, error) {
	data, err := f.Read(path)
	if err != nil {
		return nil, err
	}
	return frontmatter.Parse(data), nil
}

// Write atomically writes content: tmp file → fsync → rename.
func (f *FS) Write(path string, content []byte) error {
	abs, err := f.safePath(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, tmpPrefix+"*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	// Keep the mode of the document being replaced.
	if info, err := os.Stat(abs); err == nil {
		_ = os.Chmod(tmpName, info.Mode().Perm())
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}
