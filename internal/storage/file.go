package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"lms_mirror/internal/domain"
)

// Backend reads and writes whole named documents.
type Backend interface {
	Read(ctx context.Context, name string) ([]byte, error)
	Write(ctx context.Context, name string, data []byte) error
}

// Versioned is implemented by backends that retain past versions of each
// document. Store falls back to them when the current version is corrupt.
type Versioned interface {
	// RevisionNumbers lists the retained revisions of name, newest first.
	RevisionNumbers(ctx context.Context, name string) ([]int64, error)
	ReadRevision(ctx context.Context, name string, revision int64) ([]byte, error)
}

// FileBackend stores each document as a file under dir.
type FileBackend struct {
	fs  afero.Fs
	dir string
}

func NewFileBackend(dir string) *FileBackend {
	return NewFileBackendWithFS(afero.NewOsFs(), dir)
}

func NewFileBackendWithFS(fs afero.Fs, dir string) *FileBackend {
	return &FileBackend{fs: fs, dir: dir}
}

func (b *FileBackend) Dir() string {
	return b.dir
}

// Read returns the document contents, or an error wrapping domain.ErrNotFound
// when it was never written.
func (b *FileBackend) Read(ctx context.Context, name string) ([]byte, error) {
	path := filepath.Join(b.dir, name)

	data, err := afero.ReadFile(b.fs, path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("read %s: %w", path, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w: %w", path, domain.ErrIO, err)
	}
	return data, nil
}

// Write replaces the document. Data goes to a temporary file first and is
// renamed into place so a crash never leaves a half-written document.
func (b *FileBackend) Write(ctx context.Context, name string, data []byte) error {
	if err := b.fs.MkdirAll(b.dir, 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w: %w", b.dir, domain.ErrIO, err)
	}

	path := filepath.Join(b.dir, name)
	tmp := path + ".tmp"

	if err := afero.WriteFile(b.fs, tmp, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w: %w", tmp, domain.ErrIO, err)
	}
	if err := b.fs.Rename(tmp, path); err != nil {
		_ = b.fs.Remove(tmp)
		return fmt.Errorf("rename %s: %w: %w", tmp, domain.ErrIO, err)
	}
	return nil
}
