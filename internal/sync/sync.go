// Package sync implements Flux's tree-diff sync engine: a plan phase that
// walks source and destination trees to decide per-file actions, an
// execute phase that applies them, and watch/schedule drivers that re-run
// the cycle on a timer or on filesystem events. The plan/execute split and
// the watch loop's debounce follow the teacher's scheduler
// (internal/agent/scheduler.go) and system monitor polling loop
// (internal/agent/monitor.go), generalized from "run one backup job" to
// "reconcile two trees".
package sync

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"

	"github.com/flux-transfer/flux/internal/backend"
	"github.com/flux-transfer/flux/internal/copy"
	"github.com/flux-transfer/flux/internal/ferrors"
	"github.com/flux-transfer/flux/internal/filter"
)

// ActionKind identifies what the plan phase decided to do with one path.
type ActionKind int

const (
	CopyNew ActionKind = iota
	UpdateChanged
	SkipAction
	DeleteOrphan
)

func (k ActionKind) String() string {
	switch k {
	case CopyNew:
		return "CopyNew"
	case UpdateChanged:
		return "UpdateChanged"
	case SkipAction:
		return "Skip"
	case DeleteOrphan:
		return "DeleteOrphan"
	default:
		return "Unknown"
	}
}

// mtimeTolerance absorbs FAT32/network clock drift between source and
// destination (spec §4.6).
const mtimeTolerance = 2 * time.Second

// Action is one planned step against a relative path.
type Action struct {
	RelPath string
	Kind    ActionKind
}

// Plan is the ordered list of actions produced by the plan phase.
type Plan struct {
	Actions []Action
}

// Options configures one sync plan/execute cycle.
type Options struct {
	Recursive     bool
	Filter        *filter.Set
	DeleteOrphans bool
	Force         bool
	Verify        bool
	Conflict      copy.ConflictPolicy
}

// Engine reconciles a source tree onto a destination tree.
type Engine struct {
	Source backend.Backend
	Dest   backend.Backend
	Logger *slog.Logger
}

// ExecuteResult summarizes one execute phase.
type ExecuteResult struct {
	Copied  int
	Updated int
	Skipped int
	Deleted int
	Failed  int
	Errors  []error
}

// PlanCycle walks the source tree (and, if DeleteOrphans is set, the
// destination tree) and returns the actions needed to reconcile them.
func (e *Engine) PlanCycle(ctx context.Context, sourceRoot, destRoot string, opts Options) (*Plan, error) {
	plan := &Plan{}

	sourceFiles, err := e.walkTransferable(e.Source, sourceRoot, opts)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.SyncError, "walking source tree", err)
	}

	for _, relPath := range sourceFiles {
		kind, err := e.planOne(sourceRoot, destRoot, relPath)
		if err != nil {
			return nil, err
		}
		plan.Actions = append(plan.Actions, Action{RelPath: relPath, Kind: kind})
	}

	if opts.DeleteOrphans {
		if len(sourceFiles) == 0 && !opts.Force {
			return nil, ferrors.New(ferrors.SyncError,
				"source tree is empty; refusing delete_orphans without --force").
				WithHint("pass --force if deleting every destination file is intentional")
		}

		destFiles, err := e.walkTransferable(e.Dest, destRoot, opts)
		if err != nil {
			return nil, ferrors.Wrap(ferrors.SyncError, "walking destination tree", err)
		}

		sourceSet := make(map[string]bool, len(sourceFiles))
		for _, p := range sourceFiles {
			sourceSet[p] = true
		}
		for _, relPath := range destFiles {
			if !sourceSet[relPath] {
				plan.Actions = append(plan.Actions, Action{RelPath: relPath, Kind: DeleteOrphan})
			}
		}
	}

	return plan, nil
}

func (e *Engine) planOne(sourceRoot, destRoot, relPath string) (ActionKind, error) {
	srcPath := filepath.Join(sourceRoot, relPath)
	destPath := filepath.Join(destRoot, relPath)

	srcStat, err := e.Source.Stat(srcPath)
	if err != nil {
		return SkipAction, ferrors.Wrap(ferrors.Io, fmt.Sprintf("stat source %s", srcPath), err)
	}

	destStat, err := e.Dest.Stat(destPath)
	if err != nil {
		return CopyNew, nil
	}

	if srcStat.Size != destStat.Size {
		return UpdateChanged, nil
	}

	if srcStat.HasModified && destStat.HasModified {
		if srcStat.Modified.Sub(destStat.Modified) > mtimeTolerance {
			return UpdateChanged, nil
		}
	}

	return SkipAction, nil
}

// walkTransferable returns every file beneath root (relative to root) that
// survives opts.Filter, using the backend's own directory listing so the
// same logic works for every storage kind (spec §4.6/§4.1).
func (e *Engine) walkTransferable(b backend.Backend, root string, opts Options) ([]string, error) {
	var results []string
	var walk func(dir, relDir string) error

	walk = func(dir, relDir string) error {
		entries, err := b.ListDir(dir)
		if err != nil {
			return nil // unreadable directory: skip, matching the teacher's scanner
		}

		for _, entry := range entries {
			name := filepath.Base(entry.Path)
			relPath := name
			if relDir != "" {
				relPath = filepath.Join(relDir, name)
			}

			if entry.Stat.IsDir {
				if opts.Filter != nil && opts.Filter.ShouldPrune(relPath) {
					continue
				}
				if !opts.Recursive {
					continue
				}
				if err := walk(entry.Path, relPath); err != nil {
					return err
				}
				continue
			}

			if opts.Filter != nil && !opts.Filter.Match(relPath, false) {
				continue
			}
			results = append(results, filepath.ToSlash(relPath))
		}
		return nil
	}

	if err := walk(root, ""); err != nil {
		return nil, err
	}
	return results, nil
}

// Execute applies every action in plan, ensuring parent directories exist
// before writes and skipping Skip actions entirely (no I/O).
func (e *Engine) Execute(ctx context.Context, sourceRoot, destRoot string, plan *Plan, opts Options) *ExecuteResult {
	result := &ExecuteResult{}
	engine := &copy.Engine{Source: e.Source, Dest: e.Dest}

	for _, action := range plan.Actions {
		select {
		case <-ctx.Done():
			result.Errors = append(result.Errors, ctx.Err())
			return result
		default:
		}

		srcPath := filepath.Join(sourceRoot, filepath.FromSlash(action.RelPath))
		destPath := filepath.Join(destRoot, filepath.FromSlash(action.RelPath))

		switch action.Kind {
		case SkipAction:
			result.Skipped++

		case CopyNew, UpdateChanged:
			if err := e.Dest.CreateDirAll(filepath.Dir(destPath)); err != nil {
				result.Failed++
				result.Errors = append(result.Errors, ferrors.Wrap(ferrors.Io, fmt.Sprintf("creating parent for %s", destPath), err))
				continue
			}

			_, err := engine.CopyFile(ctx, srcPath, destPath, copy.Options{
				Conflict: opts.Conflict,
				Verify:   opts.Verify,
			})
			if err != nil {
				result.Failed++
				result.Errors = append(result.Errors, err)
				if e.Logger != nil {
					e.Logger.Warn("sync: copy failed", "path", action.RelPath, "error", err)
				}
				continue
			}
			if action.Kind == CopyNew {
				result.Copied++
			} else {
				result.Updated++
			}

		case DeleteOrphan:
			if err := e.deletePath(destPath); err != nil {
				result.Failed++
				result.Errors = append(result.Errors, err)
				continue
			}
			result.Deleted++
		}
	}

	return result
}

func (e *Engine) deletePath(path string) error {
	type remover interface {
		Remove(path string) error
	}
	if r, ok := e.Dest.(remover); ok {
		if err := r.Remove(path); err != nil {
			return ferrors.Wrap(ferrors.Io, fmt.Sprintf("deleting orphan %s", path), err)
		}
		return nil
	}
	return ferrors.New(ferrors.Io, fmt.Sprintf("destination backend does not support deleting %s", path))
}

// WatchOptions configures the filesystem-event-driven cycle driver.
type WatchOptions struct {
	Debounce time.Duration
}

// Watch runs an unconditional initial plan/execute cycle, then re-runs a
// cycle for every batch of filesystem events observed under sourceRoot,
// debounced by ~2s so a burst of writes triggers one cycle instead of many
// (spec §4.6). It returns when ctx is cancelled.
func (e *Engine) Watch(ctx context.Context, sourceRoot, destRoot string, opts Options, watchOpts WatchOptions) error {
	debounce := watchOpts.Debounce
	if debounce <= 0 {
		debounce = 2 * time.Second
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return ferrors.Wrap(ferrors.SyncError, "creating filesystem watcher", err)
	}
	defer watcher.Close()

	if err := addWatchRecursive(watcher, sourceRoot); err != nil {
		return ferrors.Wrap(ferrors.SyncError, "watching source tree", err)
	}

	runCycle := func() {
		plan, err := e.PlanCycle(ctx, sourceRoot, destRoot, opts)
		if err != nil {
			if e.Logger != nil {
				e.Logger.Error("sync: plan phase failed", "error", err)
			}
			return
		}
		result := e.Execute(ctx, sourceRoot, destRoot, plan, opts)
		if e.Logger != nil {
			e.Logger.Info("sync: cycle complete",
				"copied", result.Copied, "updated", result.Updated,
				"skipped", result.Skipped, "deleted", result.Deleted, "failed", result.Failed)
		}
	}

	runCycle()

	var debounceTimer *time.Timer
	var debounceC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Create == fsnotify.Create {
				// Extend the watch to newly-created subdirectories so the
				// debounced cycle picks up files written beneath them.
				addWatchRecursive(watcher, event.Name)
			}
			if debounceTimer == nil {
				debounceTimer = time.NewTimer(debounce)
				debounceC = debounceTimer.C
			} else {
				debounceTimer.Reset(debounce)
			}

		case <-debounceC:
			debounceTimer = nil
			debounceC = nil
			runCycle()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			if e.Logger != nil {
				e.Logger.Warn("sync: watcher error", "error", err)
			}
		}
	}
}

func addWatchRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.Walk(root, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			watcher.Add(path)
		}
		return nil
	})
}

// ScheduleOptions configures the cron-driven cycle driver.
type ScheduleOptions struct {
	CronExpr string
}

// RunSchedule parses a cron expression (accepting the standard 5-field form
// by prepending a leading "0" seconds field) and runs plan/execute cycles
// at each firing, computed in UTC, until ctx is cancelled (spec §4.6).
func (e *Engine) RunSchedule(ctx context.Context, sourceRoot, destRoot string, opts Options, schedOpts ScheduleOptions) error {
	expr := schedOpts.CronExpr
	if len(strings.Fields(expr)) == 5 {
		expr = "0 " + expr
	}

	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(expr)
	if err != nil {
		return ferrors.Wrap(ferrors.Config, fmt.Sprintf("parsing schedule %q", schedOpts.CronExpr), err)
	}

	for {
		now := time.Now().UTC()
		next := schedule.Next(now)
		wait := next.Sub(now)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}

		plan, err := e.PlanCycle(ctx, sourceRoot, destRoot, opts)
		if err != nil {
			if e.Logger != nil {
				e.Logger.Error("sync: plan phase failed", "error", err)
			}
			continue
		}
		result := e.Execute(ctx, sourceRoot, destRoot, plan, opts)
		if e.Logger != nil {
			e.Logger.Info("sync: scheduled cycle complete",
				"copied", result.Copied, "updated", result.Updated,
				"skipped", result.Skipped, "deleted", result.Deleted, "failed", result.Failed)
		}
	}
}
