// Package verify implements the two-tree structural and content equality
// report: walk source and destination, classify every path as Match,
// ContentMismatch, SizeMismatch, MissingOnDest, or ExtraOnDest. It reuses
// internal/filter's matching; its tree walk is its own copy of the sync
// engine's walkTransferable (see walk), not an import of internal/sync.
package verify

import (
	"context"
	"fmt"
	"path"
	"path/filepath"

	"github.com/flux-transfer/flux/internal/backend"
	"github.com/flux-transfer/flux/internal/checksum"
	"github.com/flux-transfer/flux/internal/ferrors"
	"github.com/flux-transfer/flux/internal/filter"
)

// Status classifies one compared path.
type Status int

const (
	Match Status = iota
	ContentMismatch
	SizeMismatch
	MissingOnDest
	ExtraOnDest
)

func (s Status) String() string {
	switch s {
	case Match:
		return "Match"
	case ContentMismatch:
		return "ContentMismatch"
	case SizeMismatch:
		return "SizeMismatch"
	case MissingOnDest:
		return "MissingOnDest"
	case ExtraOnDest:
		return "ExtraOnDest"
	default:
		return "Unknown"
	}
}

// Entry is one path's comparison outcome.
type Entry struct {
	RelPath string
	Status  Status
}

// Report is the full result of comparing two trees.
type Report struct {
	Entries []Entry
}

// Mismatches returns the entries that are not Match, in the order
// encountered.
func (r *Report) Mismatches() []Entry {
	var out []Entry
	for _, e := range r.Entries {
		if e.Status != Match {
			out = append(out, e)
		}
	}
	return out
}

// OK reports whether every compared path matched.
func (r *Report) OK() bool {
	return len(r.Mismatches()) == 0
}

// Options configures one comparison.
type Options struct {
	Recursive bool
	Filter    *filter.Set
	// Content requests a full BLAKE3 comparison in addition to size; when
	// false, only size (and presence) are compared.
	Content bool
}

// Engine compares a source and destination tree.
type Engine struct {
	Source backend.Backend
	Dest   backend.Backend
}

// Compare walks sourceRoot (and destRoot, to find ExtraOnDest entries) and
// classifies every path found on either side.
func (e *Engine) Compare(ctx context.Context, sourceRoot, destRoot string, opts Options) (*Report, error) {
	sourceFiles, err := e.walk(e.Source, sourceRoot, opts)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.Io, "walking source tree for verification", err)
	}
	destFiles, err := e.walk(e.Dest, destRoot, opts)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.Io, "walking destination tree for verification", err)
	}

	destSet := make(map[string]bool, len(destFiles))
	for _, p := range destFiles {
		destSet[p] = true
	}

	report := &Report{}
	for _, relPath := range sourceFiles {
		select {
		case <-ctx.Done():
			return report, ctx.Err()
		default:
		}

		status, err := e.compareOne(sourceRoot, destRoot, relPath, destSet[relPath], opts)
		if err != nil {
			return nil, err
		}
		report.Entries = append(report.Entries, Entry{RelPath: relPath, Status: status})
		delete(destSet, relPath)
	}

	for relPath := range destSet {
		report.Entries = append(report.Entries, Entry{RelPath: relPath, Status: ExtraOnDest})
	}

	return report, nil
}

func (e *Engine) compareOne(sourceRoot, destRoot, relPath string, destExists bool, opts Options) (Status, error) {
	if !destExists {
		return MissingOnDest, nil
	}

	srcPath := joinRel(sourceRoot, relPath)
	destPath := joinRel(destRoot, relPath)

	srcStat, err := e.Source.Stat(srcPath)
	if err != nil {
		return 0, ferrors.Wrap(ferrors.Io, fmt.Sprintf("stat source %s", srcPath), err)
	}
	destStat, err := e.Dest.Stat(destPath)
	if err != nil {
		return 0, ferrors.Wrap(ferrors.Io, fmt.Sprintf("stat destination %s", destPath), err)
	}

	if srcStat.Size != destStat.Size {
		return SizeMismatch, nil
	}

	if !opts.Content {
		return Match, nil
	}

	srcSum, err := hashBackend(e.Source, srcPath)
	if err != nil {
		return 0, ferrors.Wrap(ferrors.Io, fmt.Sprintf("hashing source %s", srcPath), err)
	}
	destSum, err := hashBackend(e.Dest, destPath)
	if err != nil {
		return 0, ferrors.Wrap(ferrors.Io, fmt.Sprintf("hashing destination %s", destPath), err)
	}
	if !checksum.Equal(srcSum, destSum) {
		return ContentMismatch, nil
	}
	return Match, nil
}

func hashBackend(b backend.Backend, path string) (string, error) {
	r, err := b.OpenRead(path)
	if err != nil {
		return "", err
	}
	defer r.Close()
	return checksum.Reader(r)
}

// walk mirrors sync.Engine.walkTransferable; duplicated rather than
// imported to avoid a verify→sync package dependency neither package
// otherwise needs (sync already depends on copy, not the reverse).
func (e *Engine) walk(b backend.Backend, root string, opts Options) ([]string, error) {
	var results []string
	var rec func(dir, relDir string) error

	rec = func(dir, relDir string) error {
		entries, err := b.ListDir(dir)
		if err != nil {
			return nil
		}
		for _, entry := range entries {
			name := baseName(entry.Path)
			relPath := name
			if relDir != "" {
				relPath = joinRel(relDir, name)
			}

			if entry.Stat.IsDir {
				if opts.Filter != nil && opts.Filter.ShouldPrune(relPath) {
					continue
				}
				if !opts.Recursive {
					continue
				}
				if err := rec(entry.Path, relPath); err != nil {
					return err
				}
				continue
			}

			if opts.Filter != nil && !opts.Filter.Match(relPath, false) {
				continue
			}
			results = append(results, relPath)
		}
		return nil
	}

	if err := rec(root, ""); err != nil {
		return nil, err
	}
	return results, nil
}

// joinRel joins a root path with a slash-separated relative path produced
// by walk, converting back to the host's path separator.
func joinRel(root, relPath string) string {
	if relPath == "" {
		return root
	}
	return filepath.Join(root, filepath.FromSlash(relPath))
}

// baseName returns the final path element using slash semantics, since
// entry.Path is backend-reported and not necessarily a host filesystem
// path (e.g. SFTP/WebDAV backends use forward slashes regardless of host).
func baseName(p string) string {
	return path.Base(filepath.ToSlash(p))
}
