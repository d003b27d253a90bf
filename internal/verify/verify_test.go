package verify

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/flux-transfer/flux/internal/backend"
)

func newLocalEngine() *Engine {
	b := backend.NewLocalBackend()
	return &Engine{Source: b, Dest: b}
}

func TestCompare_AllMatchByContent(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	os.WriteFile(filepath.Join(srcDir, "a.txt"), []byte("identical"), 0644)
	os.WriteFile(filepath.Join(dstDir, "a.txt"), []byte("identical"), 0644)

	e := newLocalEngine()
	report, err := e.Compare(context.Background(), srcDir, dstDir, Options{Recursive: true, Content: true})
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if !report.OK() {
		t.Fatalf("expected OK report, got mismatches: %+v", report.Mismatches())
	}
}

func TestCompare_MissingOnDest(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	os.WriteFile(filepath.Join(srcDir, "only-source.txt"), []byte("x"), 0644)

	e := newLocalEngine()
	report, err := e.Compare(context.Background(), srcDir, dstDir, Options{Recursive: true})
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	mismatches := report.Mismatches()
	if len(mismatches) != 1 || mismatches[0].Status != MissingOnDest || mismatches[0].RelPath != "only-source.txt" {
		t.Fatalf("mismatches = %+v, want one MissingOnDest for only-source.txt", mismatches)
	}
}

func TestCompare_ExtraOnDest(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	os.WriteFile(filepath.Join(dstDir, "only-dest.txt"), []byte("x"), 0644)

	e := newLocalEngine()
	report, err := e.Compare(context.Background(), srcDir, dstDir, Options{Recursive: true})
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	mismatches := report.Mismatches()
	if len(mismatches) != 1 || mismatches[0].Status != ExtraOnDest || mismatches[0].RelPath != "only-dest.txt" {
		t.Fatalf("mismatches = %+v, want one ExtraOnDest for only-dest.txt", mismatches)
	}
}

func TestCompare_SizeMismatch(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	os.WriteFile(filepath.Join(srcDir, "a.txt"), []byte("short"), 0644)
	os.WriteFile(filepath.Join(dstDir, "a.txt"), []byte("a much longer body"), 0644)

	e := newLocalEngine()
	report, err := e.Compare(context.Background(), srcDir, dstDir, Options{Recursive: true})
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	mismatches := report.Mismatches()
	if len(mismatches) != 1 || mismatches[0].Status != SizeMismatch {
		t.Fatalf("mismatches = %+v, want one SizeMismatch", mismatches)
	}
}

func TestCompare_ContentMismatchSameSize(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	os.WriteFile(filepath.Join(srcDir, "a.txt"), []byte("aaaaaaaaaa"), 0644)
	os.WriteFile(filepath.Join(dstDir, "a.txt"), []byte("bbbbbbbbbb"), 0644)

	e := newLocalEngine()
	report, err := e.Compare(context.Background(), srcDir, dstDir, Options{Recursive: true, Content: true})
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	mismatches := report.Mismatches()
	if len(mismatches) != 1 || mismatches[0].Status != ContentMismatch {
		t.Fatalf("mismatches = %+v, want one ContentMismatch", mismatches)
	}
}

func TestCompare_WithoutContentSkipsHashing(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	// Same size, different bytes: without Content, this should read as Match.
	os.WriteFile(filepath.Join(srcDir, "a.txt"), []byte("aaaaaaaaaa"), 0644)
	os.WriteFile(filepath.Join(dstDir, "a.txt"), []byte("bbbbbbbbbb"), 0644)

	e := newLocalEngine()
	report, err := e.Compare(context.Background(), srcDir, dstDir, Options{Recursive: true})
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if !report.OK() {
		t.Fatalf("expected size-only comparison to report Match, got: %+v", report.Mismatches())
	}
}

func TestCompare_RecursiveDescendsSubdirectories(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	os.Mkdir(filepath.Join(srcDir, "sub"), 0755)
	os.Mkdir(filepath.Join(dstDir, "sub"), 0755)
	os.WriteFile(filepath.Join(srcDir, "sub", "nested.txt"), []byte("x"), 0644)
	os.WriteFile(filepath.Join(dstDir, "sub", "nested.txt"), []byte("y"), 0644)

	e := newLocalEngine()
	report, err := e.Compare(context.Background(), srcDir, dstDir, Options{Recursive: true, Content: true})
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	mismatches := report.Mismatches()
	if len(mismatches) != 1 || mismatches[0].RelPath != "sub/nested.txt" {
		t.Fatalf("mismatches = %+v, want one ContentMismatch at sub/nested.txt", mismatches)
	}
}

func TestCompare_NonRecursiveIgnoresSubdirectories(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	os.Mkdir(filepath.Join(srcDir, "sub"), 0755)
	os.WriteFile(filepath.Join(srcDir, "sub", "nested.txt"), []byte("x"), 0644)

	e := newLocalEngine()
	report, err := e.Compare(context.Background(), srcDir, dstDir, Options{Recursive: false})
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if !report.OK() {
		t.Fatalf("expected non-recursive compare to ignore sub/, got: %+v", report.Mismatches())
	}
}
