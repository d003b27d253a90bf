// Package stats tracks per-transfer counters and renders human-readable
// completion summaries, grounded on the teacher's internal/agent/progress.go
// and stats_reporter.go (atomic counters, periodic/final rendering) adapted
// from a single backup job's progress bar to copy/sync/peer's
// files+bytes done/failed/skipped bookkeeping.
package stats

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/disk"

	"github.com/flux-transfer/flux/internal/ferrors"
)

// Tracker accumulates counters for one transfer operation (a single copy,
// a sync cycle, or a peer send/receive). All fields are safe for
// concurrent use from parallel chunk workers.
type Tracker struct {
	FilesTotal   atomic.Int64
	FilesDone    atomic.Int64
	FilesFailed  atomic.Int64
	FilesSkipped atomic.Int64
	BytesTotal   atomic.Int64
	BytesDone    atomic.Int64

	// ActiveConns, TrafficIn and BytesWritten track live connection
	// bookkeeping for a peer receiver, mirroring the teacher's
	// Handler.TrafficIn/DiskWrite/ActiveConns atomics.
	ActiveConns  atomic.Int32
	TrafficIn    atomic.Int64
	BytesWritten atomic.Int64

	start time.Time
}

// NewTracker starts a tracker with the given expected totals. Totals may
// be zero when unknown ahead of time (e.g. a directory walk still in
// progress); Summary degrades gracefully in that case.
func NewTracker(filesTotal, bytesTotal int64) *Tracker {
	t := &Tracker{start: time.Now()}
	t.FilesTotal.Store(filesTotal)
	t.BytesTotal.Store(bytesTotal)
	return t
}

// AddBytes records n bytes transferred toward BytesDone.
func (t *Tracker) AddBytes(n int64) {
	t.BytesDone.Add(n)
}

// FileDone marks one file as successfully transferred.
func (t *Tracker) FileDone() {
	t.FilesDone.Add(1)
}

// FileFailed marks one file as failed.
func (t *Tracker) FileFailed() {
	t.FilesFailed.Add(1)
}

// FileSkipped marks one file as skipped (conflict policy Skip, or sync's
// SkipAction).
func (t *Tracker) FileSkipped() {
	t.FilesSkipped.Add(1)
}

// Elapsed returns time since the tracker was created.
func (t *Tracker) Elapsed() time.Duration {
	return time.Since(t.start)
}

// ThroughputBytesPerSec returns bytes_done / elapsed_seconds, 0 before any
// time has meaningfully elapsed.
func (t *Tracker) ThroughputBytesPerSec() float64 {
	elapsed := t.Elapsed().Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(t.BytesDone.Load()) / elapsed
}

// Snapshot is an immutable point-in-time copy of a Tracker's counters,
// convenient for summary rendering and structured logging.
type Snapshot struct {
	FilesTotal   int64
	FilesDone    int64
	FilesFailed  int64
	FilesSkipped int64
	BytesTotal   int64
	BytesDone    int64
	Elapsed      time.Duration
	Throughput   float64
}

// Snapshot captures the tracker's current counters.
func (t *Tracker) Snapshot() Snapshot {
	return Snapshot{
		FilesTotal:   t.FilesTotal.Load(),
		FilesDone:    t.FilesDone.Load(),
		FilesFailed:  t.FilesFailed.Load(),
		FilesSkipped: t.FilesSkipped.Load(),
		BytesTotal:   t.BytesTotal.Load(),
		BytesDone:    t.BytesDone.Load(),
		Elapsed:      t.Elapsed(),
		Throughput:   t.ThroughputBytesPerSec(),
	}
}

// SingleFileSummary renders a one-line human-readable completion summary
// for a single-file transfer. Returns "" when quiet is true, so callers
// can unconditionally print the result.
func SingleFileSummary(path string, bytes int64, elapsed time.Duration, quiet bool) string {
	if quiet {
		return ""
	}
	secs := elapsed.Seconds()
	var throughput float64
	if secs > 0 {
		throughput = float64(bytes) / secs
	}
	return fmt.Sprintf("%s: %s in %s (%s/s)",
		path, formatBytes(bytes), formatDuration(elapsed), formatBytes(int64(throughput)))
}

// MultiFileSummary renders a one-line human-readable completion summary
// for a multi-file copy/sync cycle. Returns "" when quiet is true.
func MultiFileSummary(s Snapshot, quiet bool) string {
	if quiet {
		return ""
	}
	result := fmt.Sprintf("%s files done, %s failed, %s skipped — %s transferred in %s (%s/s)",
		formatNumber(s.FilesDone), formatNumber(s.FilesFailed), formatNumber(s.FilesSkipped),
		formatBytes(s.BytesDone), formatDuration(s.Elapsed), formatBytes(int64(s.Throughput)))
	if s.FilesTotal > 0 {
		result = fmt.Sprintf("%s/%s ", formatNumber(s.FilesDone+s.FilesFailed+s.FilesSkipped), formatNumber(s.FilesTotal)) + result
	}
	return result
}

// DestinationFreeBytes reports free space at path via gopsutil, for the
// copy engine's pre-flight capacity check ahead of a large chunked copy.
// Detection is best-effort: a gopsutil failure is reported as an Io error
// with a hint rather than treated as fatal, since the caller decides
// whether to proceed regardless.
func DestinationFreeBytes(path string) (uint64, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return 0, ferrors.Wrap(ferrors.Io, fmt.Sprintf("checking free space at %s", path), err).
			WithHint("disk usage could not be determined; proceeding without a capacity check")
	}
	return usage.Free, nil
}

// CheckCapacity compares a planned transfer size against free space at
// destPath and returns an Io error if free space looks implausibly small
// (less than the planned size). It never aborts the caller itself — a
// genuine ENOSPC during streaming is handled by the write path, not here.
func CheckCapacity(destPath string, plannedBytes int64) error {
	free, err := DestinationFreeBytes(destPath)
	if err != nil {
		return nil
	}
	if plannedBytes > 0 && free < uint64(plannedBytes) {
		return ferrors.New(ferrors.Io, fmt.Sprintf(
			"destination %s has %s free, less than the %s planned transfer",
			destPath, formatBytes(int64(free)), formatBytes(plannedBytes))).
			WithHint("free up space or choose a different destination")
	}
	return nil
}

func formatBytes(b int64) string {
	switch {
	case b >= 1024*1024*1024:
		return fmt.Sprintf("%.1f GB", float64(b)/(1024*1024*1024))
	case b >= 1024*1024:
		return fmt.Sprintf("%.1f MB", float64(b)/(1024*1024))
	case b >= 1024:
		return fmt.Sprintf("%.1f KB", float64(b)/1024)
	default:
		return fmt.Sprintf("%d B", b)
	}
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func formatNumber(n int64) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var result []byte
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			result = append(result, ',')
		}
		result = append(result, byte(c))
	}
	return string(result)
}
