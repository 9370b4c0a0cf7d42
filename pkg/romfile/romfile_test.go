package romfile

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"
)

func romImage() []byte {
	rom := make([]byte, 0x8000)
	for i := range rom {
		rom[i] = byte(i * 7)
	}
	return rom
}

func TestLoadFile_RawAndCompressedMatch(t *testing.T) {
	dir := t.TempDir()
	rom := romImage()

	rawPath := filepath.Join(dir, "game.gb")
	if err := os.WriteFile(rawPath, rom, 0644); err != nil {
		t.Fatal(err)
	}

	var zbuf bytes.Buffer
	zw := zip.NewWriter(&zbuf)
	w, err := zw.Create("game.gb")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write(rom); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	zipPath := filepath.Join(dir, "game.zip")
	if err := os.WriteFile(zipPath, zbuf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}

	var gbuf bytes.Buffer
	gw := gzip.NewWriter(&gbuf)
	if _, err := gw.Write(rom); err != nil {
		t.Fatal(err)
	}
	if err := gw.Close(); err != nil {
		t.Fatal(err)
	}
	gzPath := filepath.Join(dir, "game.gb.gz")
	if err := os.WriteFile(gzPath, gbuf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}

	for _, path := range []string{rawPath, zipPath, gzPath} {
		got, err := LoadFile(path)
		if err != nil {
			t.Fatalf("LoadFile(%s): %v", path, err)
		}
		if !bytes.Equal(got, rom) {
			t.Fatalf("LoadFile(%s): bytes differ from original", path)
		}
	}
}

func TestLoadFile_ZipPrefersROMEntry(t *testing.T) {
	dir := t.TempDir()
	rom := romImage()

	var zbuf bytes.Buffer
	zw := zip.NewWriter(&zbuf)
	w, _ := zw.Create("readme.txt")
	w.Write([]byte("not a rom"))
	w, _ = zw.Create("game.gbc")
	w.Write(rom)
	zw.Close()
	zipPath := filepath.Join(dir, "bundle.zip")
	if err := os.WriteFile(zipPath, zbuf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := LoadFile(zipPath)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if !bytes.Equal(got, rom) {
		t.Fatal("zip loader did not pick the .gbc entry")
	}
}

func TestSaveAndStatePaths(t *testing.T) {
	cases := []struct{ in, sav, state string }{
		{"roms/tetris.gb", "roms/tetris.sav", "roms/tetris.state"},
		{"roms/tetris.gb.gz", "roms/tetris.sav", "roms/tetris.state"},
		{"roms/tetris.zip", "roms/tetris.sav", "roms/tetris.state"},
	}
	for _, tc := range cases {
		if got := SavePath(tc.in); got != tc.sav {
			t.Fatalf("SavePath(%s) got %s want %s", tc.in, got, tc.sav)
		}
		if got := StatePath(tc.in); got != tc.state {
			t.Fatalf("StatePath(%s) got %s want %s", tc.in, got, tc.state)
		}
	}
}
