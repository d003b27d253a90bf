package backend

import (
	"bytes"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/studio-b12/gowebdav"
)

// WebDAVBackend maps stat/list/read/write onto PROPFIND/GET/PUT/MKCOL per
// spec §4.3. gowebdav buffers PUT bodies and GET responses itself, so reads
// and writes here are memory-buffered the same way the SFTP backend's
// borrowed-handle path is.
type WebDAVBackend struct {
	client *gowebdav.Client
}

// DialWebDAV builds a WebDAV backend. If auth carries a password and the
// target URL is plain HTTP, the caller is expected to have already logged
// the insecure-scheme warning described in spec §4.3 (cmd/flux's
// openBackend does this via InsecureSchemeWarning; the backend factory
// itself does not log).
func DialWebDAV(rawURL string, auth Auth) *WebDAVBackend {
	user, pass := "", ""
	if auth.Kind == AuthPassword {
		user, pass = auth.User, auth.Password
	}
	c := gowebdav.NewClient(rawURL, user, pass)
	return &WebDAVBackend{client: c}
}

func (b *WebDAVBackend) Stat(p string) (FileStat, error) {
	info, err := b.client.Stat(p)
	if err != nil {
		return FileStat{}, fmt.Errorf("backend: webdav PROPFIND %s: %w", p, err)
	}
	return fileStatFromWebDAV(info), nil
}

func (b *WebDAVBackend) ListDir(p string) ([]FileEntry, error) {
	infos, err := b.client.ReadDir(p)
	if err != nil {
		return nil, fmt.Errorf("backend: webdav PROPFIND(depth=1) %s: %w", p, err)
	}

	entries := make([]FileEntry, 0, len(infos))
	for _, info := range infos {
		// The self-entry (matching the requested path) is excluded, per
		// spec §4.3; gowebdav's ReadDir already strips it.
		entries = append(entries, FileEntry{
			Path: path.Join(p, info.Name()),
			Stat: fileStatFromWebDAV(info),
		})
	}
	return entries, nil
}

func (b *WebDAVBackend) OpenRead(p string) (ByteSource, error) {
	data, err := b.client.Read(p)
	if err != nil {
		return nil, fmt.Errorf("backend: webdav GET %s: %w", p, err)
	}
	return &memorySource{r: bytes.NewReader(data)}, nil
}

func (b *WebDAVBackend) OpenWrite(p string) (ByteSink, error) {
	return &webdavSink{backend: b, path: p}, nil
}

func (b *WebDAVBackend) CreateDirAll(p string) error {
	if err := b.client.MkdirAll(p, 0755); err != nil {
		return fmt.Errorf("backend: webdav MKCOL %s: %w", p, err)
	}
	return nil
}

func (b *WebDAVBackend) Features() Features {
	return Features{SupportsSeek: false, SupportsParallel: false, SupportsPermissions: false}
}

func (b *WebDAVBackend) Close() error { return nil }

func fileStatFromWebDAV(info interface {
	Size() int64
	IsDir() bool
}) FileStat {
	return FileStat{
		Size:   info.Size(),
		IsDir:  info.IsDir(),
		IsFile: !info.IsDir(),
	}
}

// webdavSink buffers writes and issues a single PUT on Close, since WebDAV
// has no positional-write primitive.
type webdavSink struct {
	backend *WebDAVBackend
	path    string
	buf     bytes.Buffer
}

func (s *webdavSink) Write(p []byte) (int, error) {
	return s.buf.Write(p)
}

func (s *webdavSink) WriteAt(p []byte, off int64) (int, error) {
	data := s.buf.Bytes()
	end := off + int64(len(p))
	if end > int64(len(data)) {
		grown := make([]byte, end)
		copy(grown, data)
		s.buf.Reset()
		s.buf.Write(grown)
		data = s.buf.Bytes()
	}
	copy(data[off:end], p)
	return len(p), nil
}

func (s *webdavSink) Close() error {
	if err := s.backend.client.WriteStream(s.path, io.NopCloser(bytes.NewReader(s.buf.Bytes())), 0644); err != nil {
		return fmt.Errorf("backend: webdav PUT %s: %w", s.path, err)
	}
	return nil
}

// InsecureSchemeWarning returns a non-empty warning message when
// credentials are supplied over plain HTTP, per spec §4.3; callers log it
// at Warn level rather than treating it as a hard failure.
func InsecureSchemeWarning(rawURL string, auth Auth) string {
	if auth.Kind != AuthPassword {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(rawURL), "http://") {
		return fmt.Sprintf("credentials supplied over plain HTTP for %s; traffic is not encrypted", rawURL)
	}
	return ""
}
