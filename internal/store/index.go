// Per-collection secondary indexes: fast listing without scanning every
// entity folder. The index is a cache; RebuildFolderIndex restores it from
// the folders on disk whenever the two drift apart.

package store

import (
	"path"
	"sort"
	"time"

	"github.com/maruel/chatdb/internal/models"
)

// metaFileNames are the per-entity metadata files probed during a folder
// index rebuild, in priority order.
var metaFileNames = []string{"chat.json", "repository.json", "metadata.json", "image.json"}

// ReadIndex returns the index entries of a collection, most recently
// updated first. An absent or corrupt index file yields an empty list,
// never an error.
func (s *Store) ReadIndex(collection string) ([]models.IndexEntry, error) {
	if collection == "" {
		return nil, errCollectionRequired
	}
	var entries []models.IndexEntry
	ok, err := s.fs.ReadJSON(path.Join(collection, indexFileName), &entries)
	if err != nil {
		return nil, err
	}
	if !ok || entries == nil {
		return []models.IndexEntry{}, nil
	}
	return entries, nil
}

// WriteIndex fully replaces the index of a collection.
func (s *Store) WriteIndex(collection string, entries []models.IndexEntry) error {
	if collection == "" {
		return errCollectionRequired
	}
	if entries == nil {
		entries = []models.IndexEntry{}
	}
	sortIndex(entries)
	return s.fs.WriteJSON(path.Join(collection, indexFileName), entries)
}

// UpsertIndexEntry replaces the entry with the same ID or appends a new
// one. Read-modify-write with no locking: the single-writer assumption
// holds at the application level.
func (s *Store) UpsertIndexEntry(collection string, entry models.IndexEntry) error {
	entries, err := s.ReadIndex(collection)
	if err != nil {
		return err
	}
	found := false
	for i := range entries {
		if entries[i].ID == entry.ID {
			entries[i] = entry
			found = true
			break
		}
	}
	if !found {
		entries = append(entries, entry)
	}
	return s.WriteIndex(collection, entries)
}

// RemoveIndexEntry drops the entry with the given ID, if present.
func (s *Store) RemoveIndexEntry(collection, id string) error {
	entries, err := s.ReadIndex(collection)
	if err != nil {
		return err
	}
	kept := entries[:0]
	for _, e := range entries {
		if e.ID != id {
			kept = append(kept, e)
		}
	}
	return s.WriteIndex(collection, kept)
}

// RebuildIndex rebuilds the index of a flat-file collection: every file in
// the collection root except the index itself is loaded and projected
// through extract. Files extract rejects are skipped.
func (s *Store) RebuildIndex(collection string, extract func(data []byte) (models.IndexEntry, bool)) error {
	if collection == "" {
		return errCollectionRequired
	}
	files, err := s.fs.ListFiles(collection)
	if err != nil {
		return err
	}
	entries := []models.IndexEntry{}
	for _, name := range files {
		if name == indexFileName {
			continue
		}
		data, ok, err := s.fs.ReadBlob(path.Join(collection, name))
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if entry, ok := extract(data); ok {
			entries = append(entries, entry)
		}
	}
	return s.WriteIndex(collection, entries)
}

// RebuildFolderIndex rebuilds the index of a folder-per-entity collection
// by scanning its subdirectories. For each folder the known metadata files
// are probed in order; a folder whose metadata is missing or unreadable
// still gets an entry, with the folder name as title and the current time
// as updated, so a partial import never aborts the rebuild.
//
// This is the primary recovery mechanism after an import or any index
// corruption. Once the tree is stable the rebuild is a fixed point.
func (s *Store) RebuildFolderIndex(collection string) error {
	if collection == "" {
		return errCollectionRequired
	}
	dirs, err := s.fs.ListDirs(collection)
	if err != nil {
		return err
	}
	entries := []models.IndexEntry{}
	for _, dir := range dirs {
		entries = append(entries, s.folderIndexEntry(collection, dir))
	}
	return s.WriteIndex(collection, entries)
}

func (s *Store) folderIndexEntry(collection, dir string) models.IndexEntry {
	var meta struct {
		ID      string    `json:"id"`
		Title   string    `json:"title"`
		Name    string    `json:"name"`
		Prompt  string    `json:"prompt"`
		Updated time.Time `json:"updated"`
		Created time.Time `json:"created"`
	}
	for _, name := range metaFileNames {
		ok, err := s.fs.ReadJSON(path.Join(collection, dir, name), &meta)
		if err != nil || !ok {
			continue
		}
		entry := models.IndexEntry{ID: dir, Title: meta.Title, Updated: meta.Updated}
		if entry.Title == "" {
			entry.Title = meta.Name
		}
		if entry.Title == "" {
			entry.Title = meta.Prompt
		}
		if entry.Title == "" {
			entry.Title = dir
		}
		if entry.Updated.IsZero() {
			entry.Updated = meta.Created
		}
		if entry.Updated.IsZero() {
			entry.Updated = nowUTC()
		}
		return entry
	}
	// Unknown or partially written folder: keep it listed rather than lose it.
	return models.IndexEntry{ID: dir, Title: dir, Updated: nowUTC()}
}

// sortIndex orders entries most recently updated first, ID as tiebreaker
// for a stable on-disk encoding.
func sortIndex(entries []models.IndexEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].Updated.Equal(entries[j].Updated) {
			return entries[i].Updated.After(entries[j].Updated)
		}
		return entries[i].ID < entries[j].ID
	})
}
