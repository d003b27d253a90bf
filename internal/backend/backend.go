// Package backend abstracts heterogeneous storage (local filesystem, SFTP,
// SMB/UNC, WebDAV) behind one trait, with uniform capability reporting so
// the copy and sync engines never branch on protocol. Dispatch through the
// interface at command boundaries, never by name — generalizing the
// teacher's single hard-coded local-disk AtomicWriter
// (internal/server/storage.go) into a pluggable concrete-per-protocol
// implementation of the same "stat/read/write/mkdir" shape.
package backend

import (
	"io"
	"time"
)

// FileStat describes one path. Exactly one of IsDir/IsFile is true; Size is
// meaningless when IsDir.
type FileStat struct {
	Size           int64
	IsDir          bool
	IsFile         bool
	Modified       time.Time
	HasModified    bool
	Permissions    uint32
	HasPermissions bool
}

// FileEntry is one entry returned by ListDir.
type FileEntry struct {
	Path string
	Stat FileStat
}

// Features reports what a backend implementation supports, so the copy
// engine can choose single-stream vs. chunked-parallel strategy.
type Features struct {
	SupportsSeek        bool
	SupportsParallel    bool
	SupportsPermissions bool
}

// ByteSource is a streaming, seekable read handle. Remote backends whose
// underlying library cannot produce a safely-shareable stream buffer the
// whole file into memory instead; the SFTP and WebDAV backends do this.
type ByteSource interface {
	io.ReadCloser
	io.ReaderAt
}

// ByteSink is a write handle. Exclusive-create semantics are used where the
// backend allows it; remote backends may buffer writes and upload on
// Close.
type ByteSink interface {
	io.WriteCloser
	io.WriterAt
}

// Backend is the uniform storage trait every protocol implements.
type Backend interface {
	Stat(path string) (FileStat, error)
	ListDir(path string) ([]FileEntry, error)
	OpenRead(path string) (ByteSource, error)
	OpenWrite(path string) (ByteSink, error)
	CreateDirAll(path string) error
	Features() Features
	Close() error
}

// ResumableBackend is implemented by backends whose write handle can be
// opened without truncating an existing file. Only these backends can
// honor resume's "skip already-completed chunks" contract for real —
// truncate-on-open would silently erase bytes a prior run already wrote.
// Backends that don't implement this (everything except local disk, since
// only local disk also reports SupportsParallel) fall back to restarting
// the write from an empty file, which is safe because PendingChunks is
// only meaningful once the destination actually holds those bytes.
type ResumableBackend interface {
	Backend
	OpenWriteResume(path string) (ByteSink, error)
}
