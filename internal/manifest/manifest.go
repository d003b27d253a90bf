// Package manifest persists the crash-safe resume sidecar for a chunked
// copy: which chunks have completed, so a restarted transfer replays only
// what's missing. Writes follow the teacher's write-temp-then-rename
// pattern (internal/server/storage.go's AtomicWriter), generalized from
// "rotate finished backup archives" to "keep one resume file in sync with
// in-progress chunk state".
package manifest

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/flux-transfer/flux/internal/chunk"
)

// Version is the only manifest format this package understands. A
// mismatch makes the manifest incompatible (spec §3/§6) and the copy
// restarts from scratch rather than guessing at an unknown layout.
const Version = 1

// Manifest is the sidecar persisted at "<dest>.flux-resume.json" while a
// chunked copy is in progress.
type Manifest struct {
	Version      int          `json:"version"`
	Source       string       `json:"source"`
	Dest         string       `json:"dest"`
	TotalSize    int64        `json:"total_size"`
	ChunkCount   int          `json:"chunk_count"`
	Chunks       []chunk.Plan `json:"chunks"`
	Compress     string       `json:"compress"`
	FileChecksum string       `json:"file_checksum,omitempty"`
}

// SidecarPath returns the resume manifest path for a destination file.
func SidecarPath(destPath string) string {
	return destPath + ".flux-resume.json"
}

// New builds a fresh manifest for a transfer about to start.
func New(source, dest string, totalSize int64, chunks []chunk.Plan, compress string) *Manifest {
	return &Manifest{
		Version:    Version,
		Source:     source,
		Dest:       dest,
		TotalSize:  totalSize,
		ChunkCount: len(chunks),
		Chunks:     chunks,
		Compress:   compress,
	}
}

// Save writes the manifest atomically via a temp file + rename, so a crash
// mid-write never leaves a truncated or corrupt sidecar.
func (m *Manifest) Save(destPath string) error {
	path := SidecarPath(destPath)
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("manifest: encoding: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("manifest: writing temp sidecar: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("manifest: renaming sidecar into place: %w", err)
	}
	return nil
}

// Load reads the sidecar for destPath, if present. Returns (nil, nil) when
// no sidecar exists — that's the normal "start fresh" case, not an error.
func Load(destPath string) (*Manifest, error) {
	path := SidecarPath(destPath)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("manifest: reading sidecar: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("manifest: parsing sidecar: %w", err)
	}
	return &m, nil
}

// Cleanup removes the sidecar after a successful transfer. No-op if it
// doesn't exist.
func Cleanup(destPath string) error {
	err := os.Remove(SidecarPath(destPath))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("manifest: removing sidecar: %w", err)
	}
	return nil
}

// Compatible reports whether m can resume a transfer of source with the
// given total size. Per spec §3/§6: a manifest is compatible iff its
// recorded source path and total_size exactly equal the current source's.
func (m *Manifest) Compatible(source string, totalSize int64) bool {
	return m.Version == Version && m.Source == source && m.TotalSize == totalSize
}

// PendingChunks returns the indices of chunks not yet marked completed.
func (m *Manifest) PendingChunks() []int {
	var pending []int
	for _, c := range m.Chunks {
		if !c.Completed {
			pending = append(pending, c.Index)
		}
	}
	return pending
}

// MarkCompleted flags chunk index as done and checksummed, ready for Save.
func (m *Manifest) MarkCompleted(index int, checksum string) {
	for i := range m.Chunks {
		if m.Chunks[i].Index == index {
			m.Chunks[i].Completed = true
			m.Chunks[i].Checksum = checksum
			return
		}
	}
}
