package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"

	"github.com/phrazzld/agentkit/internal/store"
	"github.com/spf13/afero"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// Backend implements store.Backend on an afero filesystem. Keys are paths
// relative to the backend root.
type Backend struct {
	fs     afero.Fs
	logger *slog.Logger
}

// New creates a Backend rooted at dir on the OS filesystem. The directory
// is created if needed.
func New(dir string, logger *slog.Logger) (*Backend, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: storage directory cannot be empty", store.ErrInvalidKey)
	}
	osFs := afero.NewOsFs()
	if err := osFs.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return NewWithFs(afero.NewBasePathFs(osFs, dir), logger)
}

// NewWithFs creates a Backend on an existing filesystem whose root is the
// storage root. Tests pass afero.NewMemMapFs().
func NewWithFs(fsys afero.Fs, logger *slog.Logger) (*Backend, error) {
	if fsys == nil {
		return nil, fmt.Errorf("filesystem cannot be nil")
	}
	return &Backend{
		fs:     fsys,
		logger: logger.With("component", "filesystem_backend"),
	}, nil
}

// Read implements store.Backend.
func (b *Backend) Read(ctx context.Context, key string) ([]byte, error) {
	name, err := store.CleanKey(key)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(b.fs, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

// Write implements store.Backend. The data is written to a temporary file
// in the same directory and renamed over the target.
func (b *Backend) Write(ctx context.Context, key string, data []byte) error {
	name, err := store.CleanKey(key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := path.Dir(name)
	if err := b.fs.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := afero.TempFile(b.fs, dir, "."+path.Base(name)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	cleanup := func() {
		if rmErr := b.fs.Remove(tmpName); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			b.logger.Warn("failed to remove temp file", "path", tmpName, "error", rmErr)
		}
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := b.fs.Chmod(tmpName, filePerm); err != nil {
		b.logger.Debug("could not set file mode", "path", tmpName, "error", err)
	}
	if err := b.fs.Rename(tmpName, name); err != nil {
		cleanup()
		return fmt.Errorf("failed to replace %s: %w", name, err)
	}
	return nil
}

// Exists implements store.Backend.
func (b *Backend) Exists(ctx context.Context, key string) (bool, error) {
	name, err := store.CleanKey(key)
	if err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return afero.Exists(b.fs, name)
}

// Delete implements store.Backend.
func (b *Backend) Delete(ctx context.Context, key string) error {
	name, err := store.CleanKey(key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.fs.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

var _ store.Backend = (*Backend)(nil)
