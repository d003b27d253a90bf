package sync

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/flux-transfer/flux/internal/backend"
)

func newLocalEngine() *Engine {
	b := backend.NewLocalBackend()
	return &Engine{Source: b, Dest: b}
}

func TestPlanCycle_CopyNewWhenDestAbsent(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	os.WriteFile(filepath.Join(srcDir, "a.txt"), []byte("content"), 0644)

	e := newLocalEngine()
	plan, err := e.PlanCycle(context.Background(), srcDir, dstDir, Options{Recursive: true})
	if err != nil {
		t.Fatalf("PlanCycle: %v", err)
	}
	if len(plan.Actions) != 1 || plan.Actions[0].Kind != CopyNew {
		t.Fatalf("plan = %+v, want one CopyNew action", plan.Actions)
	}
}

func TestPlanCycle_UpdateChangedWhenSizeDiffers(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	os.WriteFile(filepath.Join(srcDir, "a.txt"), []byte("new content here"), 0644)
	os.WriteFile(filepath.Join(dstDir, "a.txt"), []byte("old"), 0644)

	e := newLocalEngine()
	plan, err := e.PlanCycle(context.Background(), srcDir, dstDir, Options{Recursive: true})
	if err != nil {
		t.Fatalf("PlanCycle: %v", err)
	}
	if len(plan.Actions) != 1 || plan.Actions[0].Kind != UpdateChanged {
		t.Fatalf("plan = %+v, want one UpdateChanged action", plan.Actions)
	}
}

func TestPlanCycle_SkipWhenIdentical(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	content := []byte("identical")
	os.WriteFile(filepath.Join(srcDir, "a.txt"), content, 0644)
	os.WriteFile(filepath.Join(dstDir, "a.txt"), content, 0644)

	now := time.Now()
	os.Chtimes(filepath.Join(srcDir, "a.txt"), now, now)
	os.Chtimes(filepath.Join(dstDir, "a.txt"), now, now)

	e := newLocalEngine()
	plan, err := e.PlanCycle(context.Background(), srcDir, dstDir, Options{Recursive: true})
	if err != nil {
		t.Fatalf("PlanCycle: %v", err)
	}
	if len(plan.Actions) != 1 || plan.Actions[0].Kind != SkipAction {
		t.Fatalf("plan = %+v, want one Skip action", plan.Actions)
	}
}

func TestPlanCycle_UpdateChangedWhenSourceNewerBeyondTolerance(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	content := []byte("same size!")
	os.WriteFile(filepath.Join(srcDir, "a.txt"), content, 0644)
	os.WriteFile(filepath.Join(dstDir, "a.txt"), content, 0644)

	old := time.Now().Add(-1 * time.Hour)
	recent := time.Now()
	os.Chtimes(filepath.Join(dstDir, "a.txt"), old, old)
	os.Chtimes(filepath.Join(srcDir, "a.txt"), recent, recent)

	e := newLocalEngine()
	plan, err := e.PlanCycle(context.Background(), srcDir, dstDir, Options{Recursive: true})
	if err != nil {
		t.Fatalf("PlanCycle: %v", err)
	}
	if len(plan.Actions) != 1 || plan.Actions[0].Kind != UpdateChanged {
		t.Fatalf("plan = %+v, want one UpdateChanged action", plan.Actions)
	}
}

func TestPlanCycle_DeleteOrphan(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	os.WriteFile(filepath.Join(srcDir, "keep.txt"), []byte("keep"), 0644)
	os.WriteFile(filepath.Join(dstDir, "keep.txt"), []byte("keep"), 0644)
	os.WriteFile(filepath.Join(dstDir, "orphan.txt"), []byte("orphan"), 0644)

	now := time.Now()
	os.Chtimes(filepath.Join(srcDir, "keep.txt"), now, now)
	os.Chtimes(filepath.Join(dstDir, "keep.txt"), now, now)

	e := newLocalEngine()
	plan, err := e.PlanCycle(context.Background(), srcDir, dstDir, Options{Recursive: true, DeleteOrphans: true})
	if err != nil {
		t.Fatalf("PlanCycle: %v", err)
	}

	var sawOrphan bool
	for _, a := range plan.Actions {
		if a.Kind == DeleteOrphan && a.RelPath == "orphan.txt" {
			sawOrphan = true
		}
	}
	if !sawOrphan {
		t.Fatalf("plan = %+v, want a DeleteOrphan action for orphan.txt", plan.Actions)
	}
}

func TestPlanCycle_DeleteOrphansRefusedWithoutForceOnEmptySource(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	os.WriteFile(filepath.Join(dstDir, "orphan.txt"), []byte("orphan"), 0644)

	e := newLocalEngine()
	_, err := e.PlanCycle(context.Background(), srcDir, dstDir, Options{Recursive: true, DeleteOrphans: true})
	if err == nil {
		t.Fatal("expected error refusing delete_orphans on an empty source tree without force")
	}
}

func TestPlanCycle_DeleteOrphansAllowedWithForceOnEmptySource(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	os.WriteFile(filepath.Join(dstDir, "orphan.txt"), []byte("orphan"), 0644)

	e := newLocalEngine()
	plan, err := e.PlanCycle(context.Background(), srcDir, dstDir, Options{Recursive: true, DeleteOrphans: true, Force: true})
	if err != nil {
		t.Fatalf("PlanCycle: %v", err)
	}
	if len(plan.Actions) != 1 || plan.Actions[0].Kind != DeleteOrphan {
		t.Fatalf("plan = %+v, want one DeleteOrphan action", plan.Actions)
	}
}

func TestExecute_CopyNewAndSkipAndDelete(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	os.WriteFile(filepath.Join(srcDir, "new.txt"), []byte("fresh"), 0644)
	os.WriteFile(filepath.Join(dstDir, "orphan.txt"), []byte("stale"), 0644)

	e := newLocalEngine()
	plan, err := e.PlanCycle(context.Background(), srcDir, dstDir, Options{Recursive: true, DeleteOrphans: true, Force: true})
	if err != nil {
		t.Fatalf("PlanCycle: %v", err)
	}

	result := e.Execute(context.Background(), srcDir, dstDir, plan, Options{})
	if result.Copied != 1 {
		t.Fatalf("Copied = %d, want 1", result.Copied)
	}
	if result.Deleted != 1 {
		t.Fatalf("Deleted = %d, want 1", result.Deleted)
	}
	if result.Failed != 0 {
		t.Fatalf("Failed = %d, want 0: %v", result.Failed, result.Errors)
	}

	if _, err := os.Stat(filepath.Join(dstDir, "new.txt")); err != nil {
		t.Fatalf("expected new.txt to be copied: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dstDir, "orphan.txt")); !os.IsNotExist(err) {
		t.Fatalf("expected orphan.txt to be deleted")
	}
}

func TestExecute_SkipProducesNoIO(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	destPath := filepath.Join(dstDir, "a.txt")
	os.WriteFile(destPath, []byte("unchanged"), 0644)

	e := newLocalEngine()
	plan := &Plan{Actions: []Action{{RelPath: "a.txt", Kind: SkipAction}}}
	result := e.Execute(context.Background(), srcDir, dstDir, plan, Options{})
	if result.Skipped != 1 {
		t.Fatalf("Skipped = %d, want 1", result.Skipped)
	}

	info, err := os.Stat(destPath)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Size() != int64(len("unchanged")) {
		t.Fatalf("destination was modified by a Skip action")
	}
}
