// Archive import and export. The directory layout is the wire format, so a
// backup is just a zip of a collection subtree. An import merges into the
// destination and always ends with a folder index rebuild: the index then
// reflects what was actually written, whatever the archive's own index file
// claimed.

package store

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
)

// ExportFolderAsZip serializes a directory subtree into an in-memory zip
// archive. An absent folder yields an empty archive, not an error.
func (s *Store) ExportFolderAsZip(dir string) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	err := s.fs.WalkFiles(dir, func(rel string, size int64) error {
		data, ok, err := s.fs.ReadBlob(path.Join(dir, rel))
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		w, err := zw.Create(rel)
		if err != nil {
			return fmt.Errorf("failed to add %s to archive: %w", rel, err)
		}
		_, err = w.Write(data)
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize archive: %w", err)
	}
	return buf.Bytes(), nil
}

// ImportFolderFromZip unpacks every archive entry into the target path,
// creating directories as needed and merging with existing content. The
// destination collection's folder index is then rebuilt unconditionally so
// an import always leaves the index consistent.
func (s *Store) ImportFolderFromZip(dir string, archive []byte) error {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := path.Clean(strings.ReplaceAll(f.Name, "\\", "/"))
		if name == "." || strings.HasPrefix(name, "../") || strings.HasPrefix(name, "/") {
			slog.Warn("Skipping archive entry with unsafe path", "name", f.Name)
			continue
		}
		data, err := readZipEntry(f)
		if err != nil {
			return fmt.Errorf("failed to read archive entry %s: %w", f.Name, err)
		}
		if err := s.fs.WriteBlob(path.Join(dir, name), data); err != nil {
			return err
		}
	}
	return s.RebuildFolderIndex(dir)
}

func readZipEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
