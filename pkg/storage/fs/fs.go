// Package fs serves an extracted dataset from a local directory.
//
// Layout:
//
//	<root>/root.txt          hash;id;locale;content
//	<root>/listfile.csv      id;path  or  path
//	<root>/install.txt       name;hash;tags (optional)
//	<root>/build.txt         build name (optional)
//	<root>/objects/AB/AB...  raw bytes, one file per hash
package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/marmos91/cascview/pkg/catalog"
	"github.com/marmos91/cascview/pkg/storage"
)

// Config configures the filesystem backend.
type Config struct {
	// Path is the dataset root directory
	Path string
}

// Backend reads objects from disk. It holds no open handles between calls.
type Backend struct {
	*storage.Manifest
	root string
}

var _ storage.Backend = (*Backend)(nil)

// Open loads the manifest under cfg.Path.
//
// Parameters:
//   - ctx: Context for cancellation
//   - cfg: Backend configuration
//
// Returns:
//   - *Backend: Ready backend
//   - error: Missing directory, missing required manifest file, or parse error
func Open(ctx context.Context, cfg Config) (*Backend, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("filesystem backend: path is required")
	}

	info, err := os.Stat(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("filesystem backend: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("filesystem backend: %s is not a directory", cfg.Path)
	}

	b := &Backend{root: cfg.Path}
	m, err := storage.LoadManifest(ctx, b.openManifestFile)
	if err != nil {
		return nil, err
	}
	b.Manifest = m
	return b, nil
}

func (b *Backend) openManifestFile(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return b.open(filepath.Join(b.root, name), name)
}

func (b *Backend) objectPath(hash catalog.Hash) string {
	return filepath.Join(b.root, filepath.FromSlash(storage.ObjectKey(hash)))
}

func (b *Backend) open(path, what string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, mapError(what, err)
	}
	return f, nil
}

func mapError(what string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w", what, storage.ErrNotFound)
	}
	return fmt.Errorf("%s: %v: %w", what, err, storage.ErrBackendUnavailable)
}

func (b *Backend) OpenFile(ctx context.Context, hash catalog.Hash) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return b.open(b.objectPath(hash), "object "+hash.String())
}

func (b *Backend) FileExists(ctx context.Context, hash catalog.Hash) bool {
	if ctx.Err() != nil {
		return false
	}
	info, err := os.Stat(b.objectPath(hash))
	return err == nil && info.Mode().IsRegular()
}

func (b *Backend) GetFileSize(ctx context.Context, hash catalog.Hash) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	info, err := os.Stat(b.objectPath(hash))
	if err != nil {
		return 0, mapError("object "+hash.String(), err)
	}
	return uint64(info.Size()), nil
}

// Close is a no-op; the backend keeps no handles open.
func (b *Backend) Close() error { return nil }
