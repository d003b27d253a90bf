package backend

import (
	"fmt"
	"os"
	"path/filepath"
)

// LocalBackend implements Backend directly against the host filesystem.
type LocalBackend struct{}

// NewLocalBackend returns a Backend rooted at the host filesystem.
func NewLocalBackend() *LocalBackend {
	return &LocalBackend{}
}

func (b *LocalBackend) Stat(path string) (FileStat, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileStat{}, fmt.Errorf("backend: %s: %w", path, os.ErrNotExist)
		}
		return FileStat{}, fmt.Errorf("backend: stat %s: %w", path, err)
	}
	return FileStat{
		Size:           info.Size(),
		IsDir:          info.IsDir(),
		IsFile:         !info.IsDir(),
		Modified:       info.ModTime(),
		HasModified:    true,
		Permissions:    uint32(info.Mode().Perm()),
		HasPermissions: true,
	}, nil
}

func (b *LocalBackend) ListDir(path string) ([]FileEntry, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("backend: listing %s: %w", path, err)
	}

	result := make([]FileEntry, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		result = append(result, FileEntry{
			Path: filepath.Join(path, e.Name()),
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
	return result, nil
}

func (b *LocalBackend) OpenRead(path string) (ByteSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("backend: opening %s for read: %w", path, err)
	}
	return f, nil
}

func (b *LocalBackend) OpenWrite(path string) (ByteSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("backend: creating parent directory for %s: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("backend: opening %s for write: %w", path, err)
	}
	return f, nil
}

// OpenWriteResume opens path for positional writes without truncating,
// so a resumed chunked copy can fill in only the chunks it's missing.
func (b *LocalBackend) OpenWriteResume(path string) (ByteSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("backend: creating parent directory for %s: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("backend: opening %s for resumed write: %w", path, err)
	}
	return f, nil
}

func (b *LocalBackend) CreateDirAll(path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("backend: creating directory %s: %w", path, err)
	}
	return nil
}

// Remove deletes the file at path, used by the sync engine's delete_orphans
// execution step.
func (b *LocalBackend) Remove(path string) error {
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("backend: removing %s: %w", path, err)
	}
	return nil
}

func (b *LocalBackend) Features() Features {
	return Features{SupportsSeek: true, SupportsParallel: true, SupportsPermissions: true}
}

func (b *LocalBackend) Close() error { return nil }
