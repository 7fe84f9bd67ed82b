package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zip"

	"filebox/internal/models"
)

// bundleArchive is a zip built from local files, spooled to a temp file so
// its size is known before the upload starts.
type bundleArchive struct {
	file         *os.File
	size         int64
	constituents []models.Constituent
}

func buildBundle(paths []string) (*bundleArchive, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("bundle requires at least one file")
	}
	tmp, err := os.CreateTemp("", "filebox-bundle-*.zip")
	if err != nil {
		return nil, err
	}
	archive := &bundleArchive{file: tmp}
	if err := archive.write(paths); err != nil {
		_ = archive.Close()
		return nil, err
	}
	return archive, nil
}

func (b *bundleArchive) write(paths []string) error {
	zw := zip.NewWriter(b.file)
	used := make(map[string]bool, len(paths))
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		if info.IsDir() {
			return fmt.Errorf("%s is a directory", path)
		}
		name := uniqueEntryName(filepath.Base(path), used)
		if err := addZipEntry(zw, path, name, info); err != nil {
			return fmt.Errorf("add %s: %w", path, err)
		}
		b.constituents = append(b.constituents, models.Constituent{
			Name:         name,
			OriginalName: filepath.Base(path),
			Size:         info.Size(),
		})
	}
	if err := zw.Close(); err != nil {
		return err
	}
	size, err := b.file.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	b.size = size
	_, err = b.file.Seek(0, io.SeekStart)
	return err
}

func addZipEntry(zw *zip.Writer, path, name string, info os.FileInfo) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = name
	header.Method = zip.Deflate
	header.Modified = info.ModTime().UTC().Truncate(time.Second)
	dst, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	_, err = io.Copy(dst, src)
	return err
}

// uniqueEntryName returns name, or the first free "name (n).ext", and marks
// the result as used.
func uniqueEntryName(name string, used map[string]bool) string {
	candidate := name
	ext := filepath.Ext(name)
	for n := 1; used[candidate]; n++ {
		candidate = fmt.Sprintf("%s (%d)%s", name[:len(name)-len(ext)], n, ext)
	}
	used[candidate] = true
	return candidate
}

func (b *bundleArchive) Read(p []byte) (int, error) {
	return b.file.Read(p)
}

func (b *bundleArchive) Close() error {
	name := b.file.Name()
	err := b.file.Close()
	if removeErr := os.Remove(name); removeErr != nil && err == nil && !os.IsNotExist(removeErr) {
		err = removeErr
	}
	return err
}
