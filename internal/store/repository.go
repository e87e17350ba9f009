// Repository persistence: per-repository metadata plus per-file metadata,
// extracted text, segment texts and packed embedding vectors.
//
// Embeddings are a single contiguous little-endian float32 buffer: element
// 0 is the vector dimension, followed by segmentCount*dim floats, so
// segment i's vector is buffer[1+i*dim .. 1+(i+1)*dim). The packing must
// round-trip exactly.

package store

import (
	"encoding/binary"
	"fmt"
	"math"
	"path"

	"github.com/maruel/chatdb/internal/models"
)

const (
	repositoryFileName = "repository.json"
	fileMetaName       = "metadata.json"
	fileTextName       = "content.txt"
	fileSegmentsName   = "segments.json"
	fileVectorsName    = "embeddings.bin"
	repositoryFilesDir = "files"
)

// SaveRepository writes repository.json and upserts the index entry.
func (s *Store) SaveRepository(r *models.Repository) error {
	if r.ID == "" {
		return errEntityIDRequired
	}
	if err := s.fs.WriteJSON(path.Join(CollectionRepositories, r.ID, repositoryFileName), r); err != nil {
		return err
	}
	return s.UpsertIndexEntry(CollectionRepositories, models.IndexEntry{
		ID:      r.ID,
		Title:   r.Name,
		Updated: r.Updated,
	})
}

// LoadRepository reads a repository's metadata, ok=false when absent.
func (s *Store) LoadRepository(id string) (*models.Repository, bool, error) {
	var r models.Repository
	ok, err := s.fs.ReadJSON(path.Join(CollectionRepositories, id, repositoryFileName), &r)
	if err != nil || !ok {
		return nil, false, err
	}
	return &r, true, nil
}

// DeleteRepository removes the repository folder, its files subtree
// included, and drops the index entry.
func (s *Store) DeleteRepository(id string) error {
	if id == "" {
		return errEntityIDRequired
	}
	if err := s.fs.RemoveAll(entityDir(CollectionRepositories, id)); err != nil {
		return err
	}
	return s.RemoveIndexEntry(CollectionRepositories, id)
}

// ListRepositories returns the repositories index.
func (s *Store) ListRepositories() ([]models.IndexEntry, error) {
	return s.ReadIndex(CollectionRepositories)
}

// SaveFileMeta writes the per-file metadata of a repository file.
func (s *Store) SaveFileMeta(repoID string, f *models.RepositoryFile) error {
	if f.ID == "" {
		return errEntityIDRequired
	}
	return s.fs.WriteJSON(repoFilePath(repoID, f.ID, fileMetaName), f)
}

// LoadFileMeta reads the per-file metadata, ok=false when absent.
func (s *Store) LoadFileMeta(repoID, fileID string) (*models.RepositoryFile, bool, error) {
	var f models.RepositoryFile
	ok, err := s.fs.ReadJSON(repoFilePath(repoID, fileID, fileMetaName), &f)
	if err != nil || !ok {
		return nil, false, err
	}
	return &f, true, nil
}

// SaveFileText stores the extracted text of a repository file.
func (s *Store) SaveFileText(repoID, fileID, text string) error {
	return s.fs.WriteText(repoFilePath(repoID, fileID, fileTextName), text)
}

// LoadFileText reads the extracted text, ok=false when absent.
func (s *Store) LoadFileText(repoID, fileID string) (string, bool, error) {
	return s.fs.ReadText(repoFilePath(repoID, fileID, fileTextName))
}

// SaveFileSegments stores the ordered segment texts of a repository file.
func (s *Store) SaveFileSegments(repoID, fileID string, segments []string) error {
	return s.fs.WriteJSON(repoFilePath(repoID, fileID, fileSegmentsName), segments)
}

// LoadFileSegments reads the ordered segment texts, ok=false when absent.
func (s *Store) LoadFileSegments(repoID, fileID string) ([]string, bool, error) {
	var segments []string
	ok, err := s.fs.ReadJSON(repoFilePath(repoID, fileID, fileSegmentsName), &segments)
	if err != nil || !ok {
		return nil, false, err
	}
	return segments, true, nil
}

// SaveFileVectors packs the per-segment embedding vectors and stores them
// as embeddings.bin. Every vector must have the same dimension.
func (s *Store) SaveFileVectors(repoID, fileID string, vectors [][]float32) error {
	data, err := packVectors(vectors)
	if err != nil {
		return err
	}
	return s.fs.WriteBlob(repoFilePath(repoID, fileID, fileVectorsName), data)
}

// LoadFileVectors reads and unpacks the embedding vectors, ok=false when
// absent.
func (s *Store) LoadFileVectors(repoID, fileID string) ([][]float32, bool, error) {
	data, ok, err := s.fs.ReadBlob(repoFilePath(repoID, fileID, fileVectorsName))
	if err != nil || !ok {
		return nil, false, err
	}
	vectors, err := unpackVectors(data)
	if err != nil {
		return nil, false, fmt.Errorf("failed to unpack embeddings for %s/%s: %w", repoID, fileID, err)
	}
	return vectors, true, nil
}

// DeleteRepositoryFile removes one file's subtree (metadata, text,
// segments, vectors).
func (s *Store) DeleteRepositoryFile(repoID, fileID string) error {
	return s.fs.RemoveAll(path.Join(CollectionRepositories, repoID, repositoryFilesDir, fileID))
}

// ListRepositoryFiles returns the identifiers of a repository's files.
func (s *Store) ListRepositoryFiles(repoID string) ([]string, error) {
	return s.fs.ListDirs(path.Join(CollectionRepositories, repoID, repositoryFilesDir))
}

func repoFilePath(repoID, fileID, name string) string {
	return path.Join(CollectionRepositories, repoID, repositoryFilesDir, fileID, name)
}

// packVectors encodes [dim, vec0..., vec1..., ...] as little-endian
// float32.
func packVectors(vectors [][]float32) ([]byte, error) {
	dim := 0
	if len(vectors) > 0 {
		dim = len(vectors[0])
	}
	buf := make([]byte, 4*(1+len(vectors)*dim))
	binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(dim)))
	off := 4
	for i, vec := range vectors {
		if len(vec) != dim {
			return nil, fmt.Errorf("vector %d has dimension %d, want %d: %w", i, len(vec), dim, errDimensionMismatch)
		}
		for _, v := range vec {
			binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(v))
			off += 4
		}
	}
	return buf, nil
}

// unpackVectors is the inverse of packVectors.
func unpackVectors(data []byte) ([][]float32, error) {
	if len(data) < 4 || len(data)%4 != 0 {
		return nil, errVectorDataTooShort
	}
	dim := int(math.Float32frombits(binary.LittleEndian.Uint32(data)))
	if dim <= 0 {
		return nil, nil
	}
	floats := len(data)/4 - 1
	if floats%dim != 0 {
		return nil, errVectorDataTooShort
	}
	count := floats / dim
	vectors := make([][]float32, count)
	off := 4
	for i := range vectors {
		vec := make([]float32, dim)
		for j := range vec {
			vec[j] = math.Float32frombits(binary.LittleEndian.Uint32(data[off:]))
			off += 4
		}
		vectors[i] = vec
	}
	return vectors, nil
}
