// Generated image storage: metadata in image.json, image bytes as a
// co-located blob, listed through the images index like any other
// collection.

package store

import (
	"path"

	"github.com/google/uuid"

	"github.com/maruel/chatdb/internal/models"
)

const imageFileName = "image.json"

// SaveImage stores the image bytes as a co-located blob, then writes the
// metadata referencing it and upserts the index entry. The blob write
// completes before the metadata that points at it.
func (s *Store) SaveImage(img *models.GeneratedImage, data []byte) error {
	if img.ID == "" {
		img.ID = uuid.NewString()
	}
	if img.Created.IsZero() {
		img.Created = nowUTC()
	}
	blobID, err := s.StoreEntityBlob(CollectionImages, img.ID, data)
	if err != nil {
		return err
	}
	img.BlobID = blobID
	if err := s.fs.WriteJSON(path.Join(CollectionImages, img.ID, imageFileName), img); err != nil {
		return err
	}
	return s.UpsertIndexEntry(CollectionImages, models.IndexEntry{
		ID:      img.ID,
		Title:   img.Prompt,
		Updated: img.Created,
	})
}

// LoadImage returns the metadata and image bytes. A dangling blob
// reference degrades to empty bytes, same as a missing chat attachment.
func (s *Store) LoadImage(id string) (*models.GeneratedImage, []byte, bool, error) {
	var img models.GeneratedImage
	ok, err := s.fs.ReadJSON(path.Join(CollectionImages, id, imageFileName), &img)
	if err != nil || !ok {
		return nil, nil, false, err
	}
	data, _, err := s.GetEntityBlob(CollectionImages, id, img.BlobID)
	if err != nil {
		return nil, nil, false, err
	}
	return &img, data, true, nil
}

// DeleteImage removes the image folder and its index entry.
func (s *Store) DeleteImage(id string) error {
	if id == "" {
		return errEntityIDRequired
	}
	if err := s.fs.RemoveAll(entityDir(CollectionImages, id)); err != nil {
		return err
	}
	return s.RemoveIndexEntry(CollectionImages, id)
}

// ListImages returns the images index.
func (s *Store) ListImages() ([]models.IndexEntry, error) {
	return s.ReadIndex(CollectionImages)
}
