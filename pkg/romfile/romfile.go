// Package romfile loads ROM images from plain files or compressed archives.
package romfile

import (
	"archive/zip"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bodgit/sevenzip"
)

// LoadFile reads a ROM image from path, transparently decompressing
// .zip, .gz and .7z archives. For archives holding several files the
// first .gb/.gbc entry wins, falling back to the first entry.
func LoadFile(path string) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".zip":
		return loadZip(path)
	case ".gz":
		return loadGzip(path)
	case ".7z":
		return load7z(path)
	default:
		return os.ReadFile(path)
	}
}

func isROMName(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".gb", ".gbc":
		return true
	}
	return false
}

func loadZip(path string) ([]byte, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open zip %s: %w", path, err)
	}
	defer r.Close()
	if len(r.File) == 0 {
		return nil, fmt.Errorf("zip %s: empty archive", path)
	}
	entry := r.File[0]
	for _, f := range r.File {
		if isROMName(f.Name) {
			entry = f
			break
		}
	}
	rc, err := entry.Open()
	if err != nil {
		return nil, fmt.Errorf("open zip entry %s: %w", entry.Name, err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func loadGzip(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("open gzip %s: %w", path, err)
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

func load7z(path string) ([]byte, error) {
	r, err := sevenzip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open 7z %s: %w", path, err)
	}
	defer r.Close()
	if len(r.File) == 0 {
		return nil, fmt.Errorf("7z %s: empty archive", path)
	}
	entry := r.File[0]
	for _, f := range r.File {
		if isROMName(f.Name) {
			entry = f
			break
		}
	}
	rc, err := entry.Open()
	if err != nil {
		return nil, fmt.Errorf("open 7z entry %s: %w", entry.Name, err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// stripArchiveExt removes a trailing archive extension so derived paths
// sit next to the archive, named after the ROM inside it.
func stripArchiveExt(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".zip", ".gz", ".7z":
		return strings.TrimSuffix(path, filepath.Ext(path))
	}
	return path
}

// SavePath derives the battery save file path for a ROM path.
func SavePath(romPath string) string {
	p := stripArchiveExt(romPath)
	return strings.TrimSuffix(p, filepath.Ext(p)) + ".sav"
}

// StatePath derives the save-state file path for a ROM path.
func StatePath(romPath string) string {
	p := stripArchiveExt(romPath)
	return strings.TrimSuffix(p, filepath.Ext(p)) + ".state"
}
