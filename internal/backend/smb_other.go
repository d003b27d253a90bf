//go:build !windows

package backend

import "fmt"

// SMBBackend on non-Windows platforms has no native UNC resolution
// available from the standard library; spec §4.3/§9 calls for an
// actionable ProtocolError here rather than a panic. A native-SMB client
// library could be wired in behind this same build tag if that capability
// becomes a requirement.
type SMBBackend struct {
	server string
	share  string
}

// NewSMBBackend returns a backend that fails every operation with a clear
// explanation, since this platform has no native or vendored SMB client.
func NewSMBBackend(server, share string) *SMBBackend {
	return &SMBBackend{server: server, share: share}
}

func (b *SMBBackend) unsupported() error {
	return fmt.Errorf("backend: SMB access to \\\\%s\\%s is only supported on Windows (native UNC); build with a native-SMB feature for this platform", b.server, b.share)
}

func (b *SMBBackend) Stat(string) (FileStat, error)      { return FileStat{}, b.unsupported() }
func (b *SMBBackend) ListDir(string) ([]FileEntry, error) { return nil, b.unsupported() }
func (b *SMBBackend) OpenRead(string) (ByteSource, error) { return nil, b.unsupported() }
func (b *SMBBackend) OpenWrite(string) (ByteSink, error)  { return nil, b.unsupported() }
func (b *SMBBackend) CreateDirAll(string) error           { return b.unsupported() }
func (b *SMBBackend) Features() Features { return Features{} }
func (b *SMBBackend) Close() error       { return nil }
