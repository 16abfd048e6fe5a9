package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// stores containers on local disk. only valid when a single instance
// serves both the upload and the download
type LocalBlobs struct {
	dir string
}

func NewLocalBlobs(dir string) (*LocalBlobs, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create artifact dir: %w", err)
	}

	return &LocalBlobs{dir: dir}, nil
}

func (b *LocalBlobs) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return "", fmt.Errorf("invalid blob key %q", key)
	}

	return filepath.Join(b.dir, key), nil
}

func (b *LocalBlobs) Put(_ context.Context, key string, body io.Reader, _ int64) error {
	path, err := b.path(key)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600) //nolint:gosec // G304: key validated above
	if err != nil {
		return fmt.Errorf("failed to create blob: %w", err)
	}

	if _, err := io.Copy(f, body); err != nil {
		f.Close()       //nolint:errcheck,gosec // already failing
		os.Remove(path) //nolint:errcheck,gosec // partial blob
		return fmt.Errorf("failed to write blob: %w", err)
	}

	return f.Close()
}

func (b *LocalBlobs) Get(_ context.Context, key string) (io.ReadCloser, error) {
	path, err := b.path(key)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path) //nolint:gosec // G304: key validated above
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}

	return f, err
}

func (b *LocalBlobs) Delete(_ context.Context, key string) error {
	path, err := b.path(key)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	return nil
}
