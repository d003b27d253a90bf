package backend

import (
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestLocalBackend_StatFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	os.WriteFile(path, []byte("hello"), 0644)

	b := NewLocalBackend()
	stat, err := b.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if stat.IsDir || !stat.IsFile || stat.Size != 5 {
		t.Errorf("stat = %+v", stat)
	}
}

func TestLocalBackend_StatMissing(t *testing.T) {
	b := NewLocalBackend()
	if _, err := b.Stat("/nonexistent/path"); err == nil {
		t.Fatal("expected error for missing path")
	}
}

func TestLocalBackend_ListDir(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0644)
	os.WriteFile(filepath.Join(dir, "b.txt"), []byte("bb"), 0644)
	os.Mkdir(filepath.Join(dir, "sub"), 0755)

	b := NewLocalBackend()
	entries, err := b.ListDir(dir)
	if err != nil {
		t.Fatalf("ListDir: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
}

func TestLocalBackend_OpenReadWrite(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "source.txt")
	dst := filepath.Join(dir, "nested", "dest.txt")
	os.WriteFile(src, []byte("payload"), 0644)

	b := NewLocalBackend()
	r, err := b.OpenRead(src)
	if err != nil {
		t.Fatalf("OpenRead: %v", err)
	}
	defer r.Close()

	w, err := b.OpenWrite(dst)
	if err != nil {
		t.Fatalf("OpenWrite: %v", err)
	}

	if _, err := io.Copy(w, r); err != nil {
		t.Fatalf("io.Copy: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "payload" {
		t.Errorf("got %q", got)
	}
}

func TestLocalBackend_WriteAtPositional(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "positional.bin")

	b := NewLocalBackend()
	w, err := b.OpenWrite(dst)
	if err != nil {
		t.Fatalf("OpenWrite: %v", err)
	}

	f := w.(*os.File)
	f.Truncate(10)
	if _, err := f.WriteAt([]byte("XY"), 4); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
	w.Close()

	got, _ := os.ReadFile(dst)
	if string(got[4:6]) != "XY" {
		t.Errorf("got %q at offset 4", got[4:6])
	}
}

func TestLocalBackend_CreateDirAll(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "a", "b", "c")

	b := NewLocalBackend()
	if err := b.CreateDirAll(target); err != nil {
		t.Fatalf("CreateDirAll: %v", err)
	}
	info, err := os.Stat(target)
	if err != nil || !info.IsDir() {
		t.Errorf("directory not created: %v", err)
	}
}

func TestLocalBackend_Features(t *testing.T) {
	b := NewLocalBackend()
	f := b.Features()
	if !f.SupportsSeek || !f.SupportsParallel || !f.SupportsPermissions {
		t.Errorf("Features = %+v, want all true", f)
	}
}
