// Co-located blob storage: binary payloads live under the owning entity's
// folder at blobs/{id}.bin, addressed by a random identifier. The legacy
// centralized /blobs store predates co-location and stays read-compatible;
// lookups fall back to it only when the co-located read misses.

package store

import (
	"path"
	"strings"

	"github.com/google/uuid"
)

// blobRefPrefix marks a blob reference embedded in metadata in place of
// inline data.
const blobRefPrefix = "blob:"

// BlobRef returns the reference string for a blob identifier.
func BlobRef(id string) string {
	return blobRefPrefix + id
}

// ParseBlobRef extracts the blob identifier from a reference string.
func ParseBlobRef(s string) (string, bool) {
	id, ok := strings.CutPrefix(s, blobRefPrefix)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// StoreEntityBlob writes a binary payload into the entity's blobs folder
// under a fresh random identifier and returns that identifier. Identical
// payloads are not deduplicated.
func (s *Store) StoreEntityBlob(collection, entityID string, data []byte) (string, error) {
	if entityID == "" {
		return "", errEntityIDRequired
	}
	id := uuid.NewString()
	if err := s.fs.WriteBlob(blobPath(collection, entityID, id), data); err != nil {
		return "", err
	}
	return id, nil
}

// GetEntityBlob reads a co-located blob, falling back to the legacy
// centralized store for data written before co-location. A missing blob is
// absence, never an error: callers degrade gracefully.
func (s *Store) GetEntityBlob(collection, entityID, blobID string) ([]byte, bool, error) {
	data, ok, err := s.fs.ReadBlob(blobPath(collection, entityID, blobID))
	if err != nil || ok {
		return data, ok, err
	}
	return s.fs.ReadBlob(legacyBlobPath(blobID))
}

// DeleteEntityBlob removes a co-located blob. Deleting a missing blob is
// not an error. Legacy blobs are never deleted.
func (s *Store) DeleteEntityBlob(collection, entityID, blobID string) error {
	return s.fs.Remove(blobPath(collection, entityID, blobID))
}

// ListEntityBlobs returns the identifiers of every blob stored in the
// entity's folder, sorted.
func (s *Store) ListEntityBlobs(collection, entityID string) ([]string, error) {
	files, err := s.fs.ListFiles(path.Join(entityDir(collection, entityID), "blobs"))
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(files))
	for _, name := range files {
		if id, ok := strings.CutSuffix(name, ".bin"); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func blobPath(collection, entityID, blobID string) string {
	return path.Join(entityDir(collection, entityID), "blobs", blobID+".bin")
}

func legacyBlobPath(blobID string) string {
	return path.Join(legacyBlobDir, blobID+".bin")
}
