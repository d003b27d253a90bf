//go:build windows

package backend

import (
	"fmt"
	"path/filepath"
)

// SMBBackend on Windows maps UNC paths onto the native filesystem APIs:
// \\server\share\path is just another path as far as os.* is concerned.
type SMBBackend struct {
	local *LocalBackend
	unc   string
}

// NewSMBBackend builds the UNC path for server/share and delegates every
// operation to LocalBackend, since Windows resolves UNC paths natively.
func NewSMBBackend(server, share string) *SMBBackend {
	return &SMBBackend{local: NewLocalBackend(), unc: fmt.Sprintf(`\\%s\%s`, server, share)}
}

func (b *SMBBackend) resolve(p string) string {
	return filepath.Join(b.unc, filepath.FromSlash(p))
}

func (b *SMBBackend) Stat(p string) (FileStat, error) { return b.local.Stat(b.resolve(p)) }

func (b *SMBBackend) ListDir(p string) ([]FileEntry, error) { return b.local.ListDir(b.resolve(p)) }

func (b *SMBBackend) OpenRead(p string) (ByteSource, error) { return b.local.OpenRead(b.resolve(p)) }

func (b *SMBBackend) OpenWrite(p string) (ByteSink, error) { return b.local.OpenWrite(b.resolve(p)) }

func (b *SMBBackend) CreateDirAll(p string) error { return b.local.CreateDirAll(b.resolve(p)) }

func (b *SMBBackend) Features() Features { return b.local.Features() }

func (b *SMBBackend) Close() error { return nil }
