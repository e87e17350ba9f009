// Package vfs is the sandboxed filesystem beneath the storage layer.
//
// It resolves /-delimited logical paths against a chrooted root, creating
// intermediate directories on demand, and provides the primitive JSON, text
// and binary file operations every store is built on. Reads of missing files
// report absence instead of failing; malformed JSON degrades to absence as
// well. Only storage-device failures surface as errors.
package vfs

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
)

// FS wraps a sandboxed filesystem rooted at the data directory.
type FS struct {
	fs   billy.Filesystem
	disk string // backing directory when disk-backed, "" for in-memory
}

// Open returns an FS chrooted at dir, creating the directory if needed.
func Open(dir string) (*FS, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &FS{fs: osfs.New(abs), disk: abs}, nil
}

// NewMem returns an in-memory FS. Used by tests and previews; the change
// watcher does not operate on memory-backed stores.
func NewMem() *FS {
	return &FS{fs: memfs.New()}
}

// DiskPath returns the backing directory for disk-backed stores, "" otherwise.
func (f *FS) DiskPath() string {
	return f.disk
}

// Dir resolves a /-delimited logical path to a directory handle, creating
// every missing intermediate segment. Callers that want a file ask only for
// its parent directory.
func (f *FS) Dir(dir string) (billy.Filesystem, error) {
	p := clean(dir)
	if err := f.fs.MkdirAll(p, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	sub, err := f.fs.Chroot(p)
	if err != nil {
		return nil, fmt.Errorf("failed to open directory %s: %w", dir, err)
	}
	return sub, nil
}

// WriteJSON marshals v and fully replaces the file at the given path.
func (f *FS) WriteJSON(p string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", p, err)
	}
	return f.WriteBlob(p, data)
}

// WriteText fully replaces the file at the given path with text content.
func (f *FS) WriteText(p, text string) error {
	return f.WriteBlob(p, []byte(text))
}

// WriteBlob fully replaces the file at the given path: the payload is
// written in one call and the file is closed before returning.
func (f *FS) WriteBlob(p string, data []byte) error {
	cp := clean(p)
	if dir := path.Dir(cp); dir != "." && dir != "/" {
		if err := f.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	if err := util.WriteFile(f.fs, cp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", p, err)
	}
	return nil
}

// ReadJSON unmarshals the file at the given path into v. A missing file
// returns (false, nil). Malformed content is logged and degrades to absence
// so that one corrupt metadata file never breaks a listing.
func (f *FS) ReadJSON(p string, v any) (bool, error) {
	data, ok, err := f.ReadBlob(p)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		slog.Warn("Discarding malformed JSON file", "path", p, "err", err)
		return false, nil
	}
	return true, nil
}

// ReadText returns the text content of a file, with ok=false when absent.
func (f *FS) ReadText(p string) (string, bool, error) {
	data, ok, err := f.ReadBlob(p)
	return string(data), ok, err
}

// ReadBlob returns the raw content of a file, with ok=false when absent.
func (f *FS) ReadBlob(p string) ([]byte, bool, error) {
	data, err := util.ReadFile(f.fs, clean(p))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read %s: %w", p, err)
	}
	return data, true, nil
}

// Exists reports whether a file or directory exists at the given path.
func (f *FS) Exists(p string) bool {
	_, err := f.fs.Stat(clean(p))
	return err == nil
}

// Remove deletes the file at the given path. Removing a missing file is not
// an error.
func (f *FS) Remove(p string) error {
	if err := f.fs.Remove(clean(p)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", p, err)
	}
	return nil
}

// ListFiles returns the sorted names of regular files directly under dir.
// A missing directory yields an empty list.
func (f *FS) ListFiles(dir string) ([]string, error) {
	return f.list(dir, false)
}

// ListDirs returns the sorted names of subdirectories directly under dir.
// A missing directory yields an empty list.
func (f *FS) ListDirs(dir string) ([]string, error) {
	return f.list(dir, true)
}

func (f *FS) list(dir string, dirs bool) ([]string, error) {
	entries, err := f.fs.ReadDir(clean(dir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() == dirs {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// RemoveAll recursively deletes the directory at the given path. Removing a
// missing directory is not an error.
func (f *FS) RemoveAll(dir string) error {
	if err := util.RemoveAll(f.fs, clean(dir)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete directory %s: %w", dir, err)
	}
	return nil
}

// ClearAll deletes everything under the root.
func (f *FS) ClearAll() error {
	entries, err := f.fs.ReadDir("/")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to list root: %w", err)
	}
	var errs []error
	for _, e := range entries {
		if err := util.RemoveAll(f.fs, e.Name()); err != nil {
			errs = append(errs, fmt.Errorf("failed to delete %s: %w", e.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// WalkFiles calls fn for every regular file under dir with its dir-relative
// slash path. A missing directory is a no-op. Used for listings and usage
// accounting, not on any hot path.
func (f *FS) WalkFiles(dir string, fn func(rel string, size int64) error) error {
	root := clean(dir)
	if _, err := f.fs.Stat(root); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to walk %s: %w", dir, err)
	}
	return util.Walk(f.fs, root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel := strings.TrimPrefix(filepath.ToSlash(p), root)
		rel = strings.TrimPrefix(rel, "/")
		return fn(rel, info.Size())
	})
}

// UsageEntry is one (path, size) pair of a storage usage report.
type UsageEntry struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// Usage walks the whole tree and returns the total byte size plus a flat
// list of per-file sizes. Diagnostics only.
func (f *FS) Usage() (int64, []UsageEntry, error) {
	var total int64
	var entries []UsageEntry
	err := f.WalkFiles("/", func(rel string, size int64) error {
		total += size
		entries = append(entries, UsageEntry{Path: "/" + rel, Size: size})
		return nil
	})
	if err != nil {
		return 0, nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return total, entries, nil
}

// clean normalizes a /-delimited logical path for the sandboxed filesystem.
func clean(p string) string {
	cp := path.Clean("/" + p)
	if cp == "/" {
		return "/"
	}
	return strings.TrimPrefix(cp, "/")
}

//

var (
	rootMu      sync.Mutex
	rootDataDir = "data"
	rootHandle  *FS
)

// SetRootDir sets the data directory used by [Root] and drops any cached
// handle. Call before the first Root access.
func SetRootDir(dir string) {
	rootMu.Lock()
	rootDataDir = dir
	rootHandle = nil
	rootMu.Unlock()
}

// Root returns the process-wide root handle, acquiring it lazily on first
// use. The handle lives for the rest of the session; there is no teardown.
func Root() (*FS, error) {
	rootMu.Lock()
	defer rootMu.Unlock()
	if rootHandle == nil {
		f, err := Open(rootDataDir)
		if err != nil {
			return nil, err
		}
		rootHandle = f
	}
	return rootHandle, nil
}

// ResetRoot drops the cached root handle. The next [Root] call reacquires
// it, as a fresh process would.
func ResetRoot() {
	rootMu.Lock()
	rootHandle = nil
	rootMu.Unlock()
}
