package fsutil

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestMemoryFileSystemRoundTrip(t *testing.T) {
	m := NewMemoryFileSystem()

	if _, err := m.Create("/exports/a.ply"); err == nil {
		t.Fatal("Create should fail before the directory exists")
	}
	if err := m.MkdirAll("/exports", 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	w, err := m.Create("/exports/a.ply")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := io.WriteString(w, "ply\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	if m.Exists("/exports/a.ply") {
		t.Fatal("file visible before Close")
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got, err := m.ReadFile("/exports/a.ply")
	if err != nil || string(got) != "ply\n" {
		t.Fatalf("ReadFile = %q, %v", got, err)
	}
	if files := m.Files("/exports"); len(files) != 1 {
		t.Fatalf("Files = %v", files)
	}

	if err := m.Remove("/exports/a.ply"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := m.ReadFile("/exports/a.ply"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist after Remove, got %v", err)
	}
}

func TestMemoryFileSystemInjectedFailure(t *testing.T) {
	m := NewMemoryFileSystem()
	m.FailWritesAfter = 8
	_ = m.MkdirAll("/out", 0o755)

	w, err := m.Create("/out/big.ply")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := w.Write([]byte("12345")); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if _, err := w.Write([]byte("67890")); !errors.Is(err, ErrInjected) {
		t.Fatalf("expected ErrInjected, got %v", err)
	}
}

func TestOSFileSystem(t *testing.T) {
	var fsys FileSystem = OSFileSystem{}
	dir := filepath.Join(t.TempDir(), "nested", "dir")
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	name := filepath.Join(dir, "f.txt")
	w, err := fsys.Create(name)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	_, _ = io.WriteString(w, "hello")
	_ = w.Close()

	if !fsys.Exists(name) {
		t.Fatal("file should exist")
	}
	b, err := fsys.ReadFile(name)
	if err != nil || string(b) != "hello" {
		t.Fatalf("ReadFile = %q, %v", b, err)
	}
	if err := fsys.Remove(name); err != nil {
		t.Fatalf("Remove: %v", err)
	}
}
