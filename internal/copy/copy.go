// Package copy implements Flux's single-file and recursive copy engine:
// conflict resolution, chunked parallel transfer over positional I/O when
// the backend supports it, buffered single-stream transfer otherwise,
// resume via a manifest sidecar, and optional post-transfer verification.
// The parallel/single-stream split and the conflict-rename scheme follow
// the teacher's chunked-upload path in internal/agent/streamer.go and
// internal/server/assembler.go, generalized from a fixed agent→server
// backup flow to an arbitrary backend pair.
package copy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/flux-transfer/flux/internal/backend"
	"github.com/flux-transfer/flux/internal/checksum"
	"github.com/flux-transfer/flux/internal/chunk"
	"github.com/flux-transfer/flux/internal/compress"
	"github.com/flux-transfer/flux/internal/manifest"
	"github.com/flux-transfer/flux/internal/stats"
	"github.com/flux-transfer/flux/internal/throttle"
)

// ConflictPolicy controls what happens when the destination already exists.
type ConflictPolicy int

const (
	Overwrite ConflictPolicy = iota
	Skip
	Rename
	Ask
)

// ParseConflictPolicy maps a config string to a ConflictPolicy.
func ParseConflictPolicy(s string) (ConflictPolicy, error) {
	switch strings.ToLower(s) {
	case "overwrite":
		return Overwrite, nil
	case "skip":
		return Skip, nil
	case "rename":
		return Rename, nil
	case "ask":
		return Ask, nil
	default:
		return 0, fmt.Errorf("copy: unknown conflict policy %q", s)
	}
}

// DefaultParallelThreshold is the file size above which a parallel chunked
// transfer is attempted when the backend supports it (spec §4.5).
const DefaultParallelThreshold = 64 * 1024 * 1024

// SingleStreamBufferSize is the minimum buffer size for the non-parallel
// path (spec §4.5: "≥256 KiB").
const SingleStreamBufferSize = 256 * 1024

// Options configures one copy operation.
type Options struct {
	Recursive         bool
	Conflict          ConflictPolicy
	Verify            bool
	Resume            bool
	Compress          compress.Codec
	ParallelThreshold int64
	IsInteractive     bool // whether Ask may actually prompt
	AskPrompt         func(destPath string) ConflictPolicy
	Progress          func(bytesDone, bytesTotal int64)

	// ThrottleBytesPerSec rate-limits the source read side of a transfer;
	// <= 0 disables throttling (spec's Compression/Throttle component).
	ThrottleBytesPerSec int64
}

// Result summarizes one file copy.
type Result struct {
	SourcePath       string
	DestPath         string
	BytesCopied      int64
	Skipped          bool
	ChecksumVerified bool
}

// Engine runs copy operations against a source and destination backend
// pair, which the caller resolves once up front and keeps for the
// duration of the command (spec §3: "the copy/sync engines exclusively
// own their backends for the duration of a command").
type Engine struct {
	Source backend.Backend
	Dest   backend.Backend
}

// Copy dispatches to CopyFile or CopyTree depending on what srcPath is,
// enforcing that directories require opts.Recursive (spec §4.5).
func (e *Engine) Copy(ctx context.Context, srcPath, destPath string, opts Options) ([]*Result, error) {
	srcStat, err := e.Source.Stat(srcPath)
	if err != nil {
		return nil, fmt.Errorf("copy: stat source %s: %w", srcPath, err)
	}

	resolvedDest := destPath
	if destStat, err := e.Dest.Stat(destPath); err == nil && destStat.IsDir {
		resolvedDest = filepath.Join(destPath, filepath.Base(filepath.Clean(srcPath)))
	}

	if canonicalEqual(srcPath, resolvedDest) {
		return nil, fmt.Errorf("copy: source and destination are the same path: %s", resolvedDest)
	}

	if srcStat.IsDir {
		if !opts.Recursive {
			return nil, fmt.Errorf("copy: %s is a directory; recursive copy required", srcPath)
		}
		return e.CopyTree(ctx, srcPath, resolvedDest, opts)
	}

	result, err := e.CopyFile(ctx, srcPath, resolvedDest, opts)
	if err != nil {
		return nil, err
	}
	return []*Result{result}, nil
}

// CopyTree walks srcDir recursively, copying every file beneath it to the
// equivalent path beneath destDir, creating intermediate directories as
// needed. A per-file error aborts the whole walk; callers that want
// best-effort semantics should use sync.Engine instead, which tracks
// per-file outcomes.
func (e *Engine) CopyTree(ctx context.Context, srcDir, destDir string, opts Options) ([]*Result, error) {
	entries, err := e.Source.ListDir(srcDir)
	if err != nil {
		return nil, fmt.Errorf("copy: listing %s: %w", srcDir, err)
	}

	if err := e.Dest.CreateDirAll(destDir); err != nil {
		return nil, fmt.Errorf("copy: creating %s: %w", destDir, err)
	}

	var results []*Result
	for _, entry := range entries {
		select {
		case <-ctx.Done():
			return results, ctx.Err()
		default:
		}

		name := filepath.Base(entry.Path)
		childDest := filepath.Join(destDir, name)

		if entry.Stat.IsDir {
			sub, err := e.CopyTree(ctx, entry.Path, childDest, opts)
			results = append(results, sub...)
			if err != nil {
				return results, err
			}
			continue
		}

		result, err := e.CopyFile(ctx, entry.Path, childDest, opts)
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}
	return results, nil
}

// CopyFile copies one file from srcPath to destPath, applying conflict
// resolution, resume, and verification per opts.
func (e *Engine) CopyFile(ctx context.Context, srcPath, destPath string, opts Options) (*Result, error) {
	srcStat, err := e.Source.Stat(srcPath)
	if err != nil {
		return nil, fmt.Errorf("copy: stat source %s: %w", srcPath, err)
	}
	if srcStat.IsDir {
		return nil, fmt.Errorf("copy: %s is a directory; recursive copy required", srcPath)
	}

	resolvedDest, policy, err := resolveConflict(e.Dest, destPath, opts)
	if err != nil {
		return nil, err
	}
	if policy == Skip {
		return &Result{SourcePath: srcPath, DestPath: destPath, Skipped: true}, nil
	}

	if err := e.Dest.CreateDirAll(filepath.Dir(resolvedDest)); err != nil {
		return nil, fmt.Errorf("copy: creating parent directories for %s: %w", resolvedDest, err)
	}

	features := e.Source.Features()
	if features.SupportsParallel && e.Dest.Features().SupportsParallel && srcStat.Size >= parallelThreshold(opts) {
		// Pre-flight the destination before committing to a chunked transfer;
		// a non-local backend simply can't be statted for free space and
		// CheckCapacity treats that as "unknown, proceed" rather than fatal.
		if err := stats.CheckCapacity(filepath.Dir(resolvedDest), srcStat.Size); err != nil {
			return nil, err
		}
		return e.copyParallel(ctx, srcPath, resolvedDest, srcStat.Size, opts)
	}
	return e.copySingleStream(ctx, srcPath, resolvedDest, srcStat.Size, opts)
}

func parallelThreshold(opts Options) int64 {
	if opts.ParallelThreshold > 0 {
		return opts.ParallelThreshold
	}
	return DefaultParallelThreshold
}

func resolveConflict(dest backend.Backend, destPath string, opts Options) (string, ConflictPolicy, error) {
	_, err := dest.Stat(destPath)
	if err != nil {
		// Destination absent (or unreachable in a way Stat reports as an
		// error): nothing to resolve, proceed with the original path.
		return destPath, Overwrite, nil
	}

	switch opts.Conflict {
	case Overwrite:
		return destPath, Overwrite, nil
	case Skip:
		return destPath, Skip, nil
	case Rename:
		return renamedPath(dest, destPath), Overwrite, nil
	case Ask:
		if !opts.IsInteractive || opts.AskPrompt == nil {
			return destPath, Skip, nil
		}
		decided := opts.AskPrompt(destPath)
		if decided == Rename {
			return renamedPath(dest, destPath), Overwrite, nil
		}
		return destPath, decided, nil
	default:
		return destPath, Overwrite, nil
	}
}

// canonicalEqual reports whether src and dest refer to the same path once
// cleaned and made absolute. Backends are path-addressed abstractions, not
// necessarily local disks, so this is a syntactic check rather than a
// symlink-resolving one — sufficient to catch the common "copy a file onto
// itself" mistake without assuming either side is a local filesystem.
func canonicalEqual(src, dest string) bool {
	srcAbs, errSrc := filepath.Abs(src)
	destAbs, errDest := filepath.Abs(dest)
	if errSrc != nil || errDest != nil {
		return filepath.Clean(src) == filepath.Clean(dest)
	}
	return srcAbs == destAbs
}

// renamedPath generates "<stem>_N<ext>" for N in 1..9999, falling back to
// an epoch-seconds suffix (spec §4.5).
func renamedPath(dest backend.Backend, destPath string) string {
	dir := filepath.Dir(destPath)
	base := filepath.Base(destPath)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	for n := 1; n <= 9999; n++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, n, ext))
		if _, err := dest.Stat(candidate); err != nil {
			return candidate
		}
	}
	return filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, time.Now().Unix(), ext))
}

func (e *Engine) copySingleStream(ctx context.Context, srcPath, destPath string, size int64, opts Options) (*Result, error) {
	src, err := e.Source.OpenRead(srcPath)
	if err != nil {
		return nil, fmt.Errorf("copy: opening source %s: %w", srcPath, err)
	}
	defer src.Close()

	var reader io.Reader = src
	if opts.ThrottleBytesPerSec > 0 {
		reader = throttle.NewReader(ctx, src, opts.ThrottleBytesPerSec)
	}

	dst, err := e.Dest.OpenWrite(destPath)
	if err != nil {
		return nil, fmt.Errorf("copy: opening destination %s: %w", destPath, err)
	}

	var writer io.Writer = dst
	var compressor io.WriteCloser
	if opts.Compress != compress.None {
		compressor, err = compress.NewWriter(dst, opts.Compress)
		if err != nil {
			dst.Close()
			return nil, fmt.Errorf("copy: preparing %s compressor for %s: %w", opts.Compress, destPath, err)
		}
		writer = compressor
	}

	buf := make([]byte, SingleStreamBufferSize)
	var written int64
	for {
		select {
		case <-ctx.Done():
			dst.Close()
			return nil, ctx.Err()
		default:
		}

		n, readErr := reader.Read(buf)
		if n > 0 {
			if _, err := writer.Write(buf[:n]); err != nil {
				dst.Close()
				return nil, fmt.Errorf("copy: writing to %s: %w", destPath, err)
			}
			written += int64(n)
			if opts.Progress != nil {
				opts.Progress(written, size)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			dst.Close()
			return nil, fmt.Errorf("copy: reading from %s: %w", srcPath, readErr)
		}
	}

	if compressor != nil {
		if err := compressor.Close(); err != nil {
			dst.Close()
			return nil, fmt.Errorf("copy: flushing %s compressor for %s: %w", opts.Compress, destPath, err)
		}
	}
	if err := dst.Close(); err != nil {
		return nil, fmt.Errorf("copy: closing %s: %w", destPath, err)
	}

	result := &Result{SourcePath: srcPath, DestPath: destPath, BytesCopied: written}
	if opts.Verify {
		verified, err := e.verify(srcPath, destPath, opts.Compress)
		if err != nil {
			return result, err
		}
		result.ChecksumVerified = verified
	}
	return result, nil
}

// copyParallel plans N chunks via auto_chunk_count and transfers them
// concurrently over positional I/O, resuming from a manifest sidecar when
// opts.Resume is set and a compatible one exists.
func (e *Engine) copyParallel(ctx context.Context, srcPath, destPath string, size int64, opts Options) (*Result, error) {
	if opts.Compress != compress.None || opts.ThrottleBytesPerSec > 0 {
		// Per-chunk compression produces variable-length output the fixed
		// chunk.Plan offsets this path writes at can't absorb, and N
		// concurrent chunk workers each holding their own token-bucket
		// limiter would multiply the configured rate by concurrency instead
		// of enforcing it. Both features get a meaningful, single-limiter
		// implementation on the single-stream path instead.
		return e.copySingleStream(ctx, srcPath, destPath, size, opts)
	}

	var plans []chunk.Plan
	var m *manifest.Manifest
	resuming := false

	if opts.Resume {
		existing, err := manifest.Load(destPath)
		if err == nil && existing != nil && existing.Compatible(srcPath, size) {
			m = existing
			plans = m.Chunks
			resuming = true
		}
	}

	if m == nil {
		n := chunk.AutoChunkCount(size, runtime.GOMAXPROCS(0))
		plans = chunk.ChunkFile(size, n)
		m = manifest.New(srcPath, destPath, size, plans, opts.Compress.String())
		if opts.Resume {
			if err := m.Save(destPath); err != nil {
				return nil, fmt.Errorf("copy: saving resume manifest: %w", err)
			}
		}
	}

	src, err := e.Source.OpenRead(srcPath)
	if err != nil {
		return nil, fmt.Errorf("copy: opening source %s: %w", srcPath, err)
	}
	defer src.Close()

	var dst backend.ByteSink
	if resuming {
		if resumable, ok := e.Dest.(backend.ResumableBackend); ok {
			dst, err = resumable.OpenWriteResume(destPath)
		} else {
			// Can't reopen without truncating on this backend, so the prior
			// bytes are gone regardless; restart the plan from scratch.
			resuming = false
			for i := range plans {
				plans[i].Completed = false
			}
			m.Chunks = plans
			dst, err = e.Dest.OpenWrite(destPath)
		}
	} else {
		dst, err = e.Dest.OpenWrite(destPath)
	}
	if err != nil {
		return nil, fmt.Errorf("copy: opening destination %s: %w", destPath, err)
	}
	defer dst.Close()

	srcAt, srcOK := src.(io.ReaderAt)
	dstAt, dstOK := dst.(io.WriterAt)
	if !srcOK || !dstOK {
		return e.copySingleStream(ctx, srcPath, destPath, size, opts)
	}

	pending := m.PendingChunks()
	var mu sync.Mutex
	var firstErr error
	var wg sync.WaitGroup
	var done int64

	for _, idx := range pending {
		plan := plans[idx]
		wg.Add(1)
		go func(idx int, plan chunk.Plan) {
			defer wg.Done()

			buf := make([]byte, plan.Length)
			if plan.Length > 0 {
				if _, err := backendReadAtFull(srcAt, buf, plan.Offset); err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = fmt.Errorf("copy: reading chunk %d: %w", idx, err)
					}
					mu.Unlock()
					return
				}
				if _, err := dstAt.WriteAt(buf, plan.Offset); err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = fmt.Errorf("copy: writing chunk %d: %w", idx, err)
					}
					mu.Unlock()
					return
				}
			}

			sum, _ := checksum.Reader(bytes.NewReader(buf))
			mu.Lock()
			m.MarkCompleted(idx, sum)
			if opts.Resume {
				m.Save(destPath)
			}
			done += plan.Length
			if opts.Progress != nil {
				opts.Progress(done, size)
			}
			mu.Unlock()
		}(idx, plan)
	}

	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}

	result := &Result{SourcePath: srcPath, DestPath: destPath, BytesCopied: size}
	if opts.Verify {
		verified, err := e.verify(srcPath, destPath, compress.None)
		if err != nil {
			return result, err
		}
		result.ChecksumVerified = verified
	}

	if opts.Resume {
		manifest.Cleanup(destPath)
	}
	return result, nil
}

func backendReadAtFull(r io.ReaderAt, buf []byte, offset int64) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.ReadAt(buf[total:], offset+int64(total))
		total += n
		if err != nil {
			if err == io.EOF && total == len(buf) {
				return total, nil
			}
			return total, err
		}
		if n == 0 {
			return total, io.ErrNoProgress
		}
	}
	return total, nil
}

// verify hashes srcPath as-is and destPath through codec's decompressor
// (a no-op passthrough when codec is compress.None), since a compressed
// copy stores a transformed byte stream at the destination by design.
func (e *Engine) verify(srcPath, destPath string, codec compress.Codec) (bool, error) {
	srcHash, err := hashBackendFile(e.Source, srcPath)
	if err != nil {
		return false, fmt.Errorf("copy: hashing source for verification: %w", err)
	}
	dstHash, err := hashCompressedBackendFile(e.Dest, destPath, codec)
	if err != nil {
		return false, fmt.Errorf("copy: hashing destination for verification: %w", err)
	}
	if !checksum.Equal(srcHash, dstHash) {
		return false, fmt.Errorf("copy: checksum mismatch for %s: expected %s, got %s", destPath, srcHash, dstHash)
	}
	return true, nil
}

func hashBackendFile(b backend.Backend, path string) (string, error) {
	r, err := b.OpenRead(path)
	if err != nil {
		return "", err
	}
	defer r.Close()
	return checksum.Reader(r)
}

func hashCompressedBackendFile(b backend.Backend, path string, codec compress.Codec) (string, error) {
	r, err := b.OpenRead(path)
	if err != nil {
		return "", err
	}
	defer r.Close()
	dr, err := compress.NewReader(r, codec)
	if err != nil {
		return "", fmt.Errorf("opening %s decompressor: %w", codec, err)
	}
	defer dr.Close()
	return checksum.Reader(dr)
}
