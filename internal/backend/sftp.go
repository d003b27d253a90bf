package backend

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path"
	"sync"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// SFTPBackend wraps one SSH connection and SFTP client pair behind a single
// mutex. The sftp.Client's requests borrow from the underlying ssh.Client
// for their lifetime, so the two cannot be split into independently
// lockable pieces — every backend call locks the whole session for its
// duration, per spec §9's "shared mutable libssh2 handle" note.
type SFTPBackend struct {
	mu        sync.Mutex
	sshClient *ssh.Client
	client    *sftp.Client
}

// DialSFTP connects and authenticates with the single method auth.Kind
// names: a private-key file (with optional passphrase) or a password.
// Methods are not tried in turn: ssh-agent auth returns an error, no
// standard key files are searched, and there is no interactive prompt.
// hostKeyCallback implements the known-hosts TOFU check described there;
// callers build it via NewKnownHostsCallback.
func DialSFTP(proto Protocol, auth Auth, hostKeyCallback ssh.HostKeyCallback) (*SFTPBackend, error) {
	methods, err := authMethods(auth)
	if err != nil {
		return nil, err
	}

	cfg := &ssh.ClientConfig{
		User:            proto.User,
		Auth:            methods,
		HostKeyCallback: hostKeyCallback,
	}

	addr := fmt.Sprintf("%s:%d", proto.Host, proto.Port)
	sshClient, err := ssh.Dial("tcp", addr, cfg)
	if err != nil {
		return nil, fmt.Errorf("backend: sftp dial %s: %w", addr, err)
	}

	client, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, fmt.Errorf("backend: sftp handshake with %s: %w", addr, err)
	}

	return &SFTPBackend{sshClient: sshClient, client: client}, nil
}

func authMethods(auth Auth) ([]ssh.AuthMethod, error) {
	switch auth.Kind {
	case AuthAgent:
		return nil, fmt.Errorf("backend: ssh-agent authentication is not supported by DialSFTP; use a key file or password")
	case AuthKeyFile:
		keyBytes, err := os.ReadFile(auth.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("backend: reading private key %s: %w", auth.KeyPath, err)
		}
		var signer ssh.Signer
		if auth.Passphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(keyBytes, []byte(auth.Passphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(keyBytes)
		}
		if err != nil {
			return nil, fmt.Errorf("backend: parsing private key %s: %w", auth.KeyPath, err)
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	case AuthPassword:
		return []ssh.AuthMethod{ssh.Password(auth.Password)}, nil
	default:
		return nil, fmt.Errorf("backend: no authentication method supplied for SFTP")
	}
}

func (b *SFTPBackend) Stat(p string) (FileStat, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	info, err := b.client.Stat(p)
	if err != nil {
		return FileStat{}, fmt.Errorf("backend: sftp stat %s: %w", p, err)
	}
	return FileStat{
		Size:           info.Size(),
		IsDir:          info.IsDir(),
		IsFile:         !info.IsDir(), // spec §9 open question: symlinks/devices surface as IsFile here
		Modified:       info.ModTime(),
		HasModified:    true,
		Permissions:    uint32(info.Mode().Perm()),
		HasPermissions: true,
	}, nil
}

func (b *SFTPBackend) ListDir(p string) ([]FileEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	infos, err := b.client.ReadDir(p)
	if err != nil {
		return nil, fmt.Errorf("backend: sftp list %s: %w", p, err)
	}
	entries := make([]FileEntry, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, FileEntry{
			Path: path.Join(p, info.Name()),
			Stat: FileStat{
				Size:           info.Size(),
				IsDir:          info.IsDir(),
				IsFile:         !info.IsDir(),
				Modified:       info.ModTime(),
				HasModified:    true,
				Permissions:    uint32(info.Mode().Perm()),
				HasPermissions: true,
			},
		})
	}
	return entries, nil
}

// OpenRead buffers the whole file into memory: sftp.File's read methods
// borrow from the client's request pipeline, which in turn borrows from
// the mutex-guarded session, so a handle cannot safely outlive the lock
// that protects the session (spec §9, "remote read/write streams that
// cannot escape a lock").
func (b *SFTPBackend) OpenRead(p string) (ByteSource, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, err := b.client.Open(p)
	if err != nil {
		return nil, fmt.Errorf("backend: sftp open %s: %w", p, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("backend: sftp reading %s: %w", p, err)
	}
	return &memorySource{r: bytes.NewReader(data)}, nil
}

// OpenWrite accumulates written bytes in memory and uploads the whole file
// on Close, for the same borrowing-from-the-lock reason as OpenRead.
func (b *SFTPBackend) OpenWrite(p string) (ByteSink, error) {
	return &sftpMemorySink{backend: b, path: p}, nil
}

func (b *SFTPBackend) CreateDirAll(p string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.client.MkdirAll(p); err != nil {
		return fmt.Errorf("backend: sftp mkdir -p %s: %w", p, err)
	}
	return nil
}

func (b *SFTPBackend) Features() Features {
	return Features{SupportsSeek: true, SupportsParallel: false, SupportsPermissions: true}
}

func (b *SFTPBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.client.Close()
	return b.sshClient.Close()
}

// memorySource adapts a fully-buffered read into ByteSource.
type memorySource struct {
	r *bytes.Reader
}

func (m *memorySource) Read(p []byte) (int, error)              { return m.r.Read(p) }
func (m *memorySource) ReadAt(p []byte, off int64) (int, error) { return m.r.ReadAt(p, off) }
func (m *memorySource) Close() error                            { return nil }

// sftpMemorySink buffers writes and uploads the full file on Close.
type sftpMemorySink struct {
	backend *SFTPBackend
	path    string
	buf     bytes.Buffer
}

func (s *sftpMemorySink) Write(p []byte) (int, error) {
	return s.buf.Write(p)
}

func (s *sftpMemorySink) WriteAt(p []byte, off int64) (int, error) {
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

func (s *sftpMemorySink) Close() error {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()

	f, err := s.backend.client.Create(s.path)
	if err != nil {
		return fmt.Errorf("backend: sftp create %s: %w", s.path, err)
	}
	defer f.Close()

	if _, err := f.Write(s.buf.Bytes()); err != nil {
		return fmt.Errorf("backend: sftp uploading %s: %w", s.path, err)
	}
	return nil
}
