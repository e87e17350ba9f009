// Artifact file store. Artifacts are real files under the chat's folder,
// not JSON-wrapped blobs: they are frequently large, already text or
// binary, and need normal path semantics for nesting.

package store

import (
	"mime"
	"path"
	"sort"
	"strings"

	"github.com/maruel/chatdb/internal/models"
)

const artifactsDirName = "artifacts"

// artifactMimeTypes maps common artifact extensions to their content type.
// Consulted before the platform mime table so inference does not vary with
// the host's mime.types.
var artifactMimeTypes = map[string]string{
	".ts":   "text/typescript",
	".tsx":  "text/typescript",
	".jsx":  "text/javascript",
	".mjs":  "text/javascript",
	".md":   "text/markdown",
	".yaml": "text/yaml",
	".yml":  "text/yaml",
	".toml": "text/plain",
	".sh":   "text/x-shellscript",
	".py":   "text/x-python",
	".go":   "text/x-go",
	".rs":   "text/x-rust",
	".csv":  "text/csv",
}

// WriteArtifact stores one artifact file. Binary content types carried as
// data URLs are decoded and written raw; everything else is written as
// text. The path may carry a leading slash.
func (s *Store) WriteArtifact(chatID, artifactPath, content, contentType string) error {
	if chatID == "" {
		return errEntityIDRequired
	}
	full := artifactFilePath(chatID, artifactPath)
	if isBinaryContentType(contentType) {
		if _, data, ok := DecodeDataURL(content); ok {
			return s.fs.WriteBlob(full, data)
		}
	}
	return s.fs.WriteText(full, content)
}

// ReadArtifact returns one artifact with its content type inferred from the
// file extension. Binary files come back as data URLs. A missing artifact
// reports ok=false.
func (s *Store) ReadArtifact(chatID, artifactPath string) (*models.ArtifactFile, bool, error) {
	data, ok, err := s.fs.ReadBlob(artifactFilePath(chatID, artifactPath))
	if err != nil || !ok {
		return nil, false, err
	}
	contentType := inferContentType(artifactPath)
	af := &models.ArtifactFile{
		Path:        normalizeArtifactPath(artifactPath),
		ContentType: contentType,
	}
	if isBinaryContentType(contentType) {
		af.Content = EncodeDataURL(contentType, data)
	} else {
		af.Content = string(data)
	}
	return af, true, nil
}

// DeleteArtifact removes one artifact file.
func (s *Store) DeleteArtifact(chatID, artifactPath string) error {
	return s.fs.Remove(artifactFilePath(chatID, artifactPath))
}

// RenameArtifact moves an artifact to a new path within the same chat.
func (s *Store) RenameArtifact(chatID, oldPath, newPath string) error {
	af, ok, err := s.ReadArtifact(chatID, oldPath)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if err := s.WriteArtifact(chatID, newPath, af.Content, af.ContentType); err != nil {
		return err
	}
	return s.DeleteArtifact(chatID, oldPath)
}

// ListArtifacts returns the root-relative, leading-slash-normalized path of
// every artifact file in the chat's workspace, sorted.
func (s *Store) ListArtifacts(chatID string) ([]string, error) {
	var paths []string
	err := s.fs.WalkFiles(artifactsDir(chatID), func(rel string, size int64) error {
		paths = append(paths, "/"+rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

// DeleteArtifactFolder recursively removes a subtree of the artifact
// workspace. An empty or "/" path clears the whole workspace.
func (s *Store) DeleteArtifactFolder(chatID, folder string) error {
	rel := strings.TrimPrefix(folder, "/")
	return s.fs.RemoveAll(path.Join(artifactsDir(chatID), rel))
}

// LoadArtifacts bulk-loads the whole artifact workspace into a path-keyed
// map, the form the artifact editor works against.
func (s *Store) LoadArtifacts(chatID string) (map[string]models.ArtifactFile, error) {
	paths, err := s.ListArtifacts(chatID)
	if err != nil {
		return nil, err
	}
	files := make(map[string]models.ArtifactFile, len(paths))
	for _, p := range paths {
		af, ok, err := s.ReadArtifact(chatID, p)
		if err != nil {
			return nil, err
		}
		if ok {
			files[p] = *af
		}
	}
	return files, nil
}

// SaveArtifacts bulk-stores a path-keyed map of artifacts. Files already on
// disk but absent from the map are left alone; use DeleteArtifactFolder to
// clear first when replace semantics are wanted.
func (s *Store) SaveArtifacts(chatID string, files map[string]models.ArtifactFile) error {
	for p, af := range files {
		if err := s.WriteArtifact(chatID, p, af.Content, af.ContentType); err != nil {
			return err
		}
	}
	return nil
}

// inferContentType maps a file extension to a MIME type via the fixed
// table, then the platform table with any parameters stripped.
func inferContentType(artifactPath string) string {
	ext := strings.ToLower(path.Ext(artifactPath))
	if ct, ok := artifactMimeTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		if i := strings.Index(ct, ";"); i >= 0 {
			ct = strings.TrimSpace(ct[:i])
		}
		return ct
	}
	return "text/plain"
}

// isBinaryContentType reports whether a content type holds binary data that
// must round-trip through a data URL rather than a string.
func isBinaryContentType(contentType string) bool {
	ct := strings.ToLower(contentType)
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = ct[:i]
	}
	switch {
	case ct == "", strings.HasPrefix(ct, "text/"):
		return false
	case ct == "application/json", ct == "application/javascript",
		ct == "application/xml", ct == "image/svg+xml":
		return false
	}
	return true
}

func artifactsDir(chatID string) string {
	return path.Join(entityDir(CollectionChats, chatID), artifactsDirName)
}

func artifactFilePath(chatID, artifactPath string) string {
	return path.Join(artifactsDir(chatID), strings.TrimPrefix(artifactPath, "/"))
}

func normalizeArtifactPath(artifactPath string) string {
	return "/" + strings.TrimPrefix(path.Clean("/"+artifactPath), "/")
}
