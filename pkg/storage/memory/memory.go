// Package memory provides an in-memory storage backend.
//
// It is used by tests and for small, programmatically assembled datasets.
// Contents are lost when the process exits.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/marmos91/cascview/pkg/catalog"
	"github.com/marmos91/cascview/pkg/storage"
)

// Backend keeps objects in a map keyed by hash.
//
// Thread Safety:
// Object access is safe for concurrent use. The embedded manifest is
// populated with AddFile before the backend is shared and is read-only
// afterwards.
type Backend struct {
	*storage.Manifest

	mu      sync.RWMutex
	objects map[catalog.Hash][]byte
	closed  bool
}

// New returns an empty backend.
func New() *Backend {
	return &Backend{
		Manifest: storage.NewManifest(),
		objects:  make(map[catalog.Hash][]byte),
	}
}

// AddFile publishes hash with one root entry, an optional numeric id (use a
// negative id for none), an optional path and optional bytes.
func (b *Backend) AddFile(hash catalog.Hash, id int32, path string, entry catalog.RootEntry, data []byte) {
	b.AddRoot(hash, id, entry)
	if path != "" {
		b.AddName(hash, path)
	}
	if data != nil {
		b.Put(hash, data)
	}
}

// Put stores the bytes of hash, replacing previous bytes.
func (b *Backend) Put(hash catalog.Hash, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[hash] = append([]byte(nil), data...)
}

func (b *Backend) get(ctx context.Context, hash catalog.Hash) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("memory backend closed: %w", storage.ErrBackendUnavailable)
	}
	data, ok := b.objects[hash]
	if !ok {
		return nil, fmt.Errorf("object %s: %w", hash, storage.ErrNotFound)
	}
	return data, nil
}

func (b *Backend) OpenFile(ctx context.Context, hash catalog.Hash) (io.ReadCloser, error) {
	data, err := b.get(ctx, hash)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *Backend) FileExists(ctx context.Context, hash catalog.Hash) bool {
	_, err := b.get(ctx, hash)
	return err == nil
}

func (b *Backend) GetFileSize(ctx context.Context, hash catalog.Hash) (uint64, error) {
	data, err := b.get(ctx, hash)
	if err != nil {
		return 0, err
	}
	return uint64(len(data)), nil
}

func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.objects = nil
	return nil
}

var _ storage.Backend = (*Backend)(nil)
