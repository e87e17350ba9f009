// Package store is the persistent storage layer of the application: a
// hierarchical, sandboxed file store holding chats, repositories, skills and
// generated images.
//
// Large binary payloads live outside the JSON metadata that describes them,
// as co-located blobs inside each entity's folder. Listing goes through
// per-collection secondary indexes that are caches, never ground truth, and
// can be rebuilt from the entity folders at any time. A single logical
// writer is assumed; callers serialize writes to one entity themselves,
// typically through [Saver].
package store

import (
	"path"
	"time"

	"github.com/maruel/chatdb/internal/vfs"
)

// Collection names. Each is a top-level directory holding one folder per
// entity plus an index.json cache.
const (
	CollectionChats        = "chats"
	CollectionRepositories = "repositories"
	CollectionSkills       = "skills"
	CollectionImages       = "images"
)

const (
	indexFileName = "index.json"

	// legacyBlobDir is the centralized blob store used before blobs were
	// co-located with their owning entity. Kept read-compatible forever;
	// nothing writes to it anymore.
	legacyBlobDir = "blobs"
)

// Store exposes every operation of the storage layer over a sandboxed
// filesystem root.
type Store struct {
	fs *vfs.FS
}

// New returns a Store over the given filesystem root.
func New(fs *vfs.FS) *Store {
	return &Store{fs: fs}
}

// FS returns the underlying sandboxed filesystem.
func (s *Store) FS() *vfs.FS {
	return s.fs
}

// Usage walks the whole tree and returns total bytes plus per-file sizes.
func (s *Store) Usage() (int64, []vfs.UsageEntry, error) {
	return s.fs.Usage()
}

// ClearAll deletes every collection, entity and blob under the root.
func (s *Store) ClearAll() error {
	return s.fs.ClearAll()
}

// entityDir returns the logical folder of an entity within a collection.
func entityDir(collection, id string) string {
	return path.Join(collection, id)
}

// nowUTC is the single clock used for index timestamps.
func nowUTC() time.Time {
	return time.Now().UTC()
}
