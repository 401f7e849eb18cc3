package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/marmos91/cascview/pkg/catalog"
)

type keyKind int

const (
	keyHash keyKind = iota
	keyID
	keyPath
)

// Key addresses a file by hash, numeric id or logical path.
type Key struct {
	kind keyKind
	hash catalog.Hash
	id   int32
	path string
}

func ByHash(h catalog.Hash) Key { return Key{kind: keyHash, hash: h} }
func ByID(id int32) Key         { return Key{kind: keyID, id: id} }
func ByPath(p string) Key       { return Key{kind: keyPath, path: p} }

func (k Key) String() string {
	switch k.kind {
	case keyID:
		return fmt.Sprintf("id %d", k.id)
	case keyPath:
		return fmt.Sprintf("path %q", k.path)
	default:
		return "hash " + k.hash.String()
	}
}

// Resolve maps k to a hash. Ids need an IDResolver backend; paths use the
// backend's PathResolver, falling back to catalog.HashPath.
func Resolve(b Backend, k Key) (catalog.Hash, error) {
	switch k.kind {
	case keyID:
		ids, ok := b.(IDResolver)
		if !ok {
			return 0, fmt.Errorf("%s: backend has no numeric ids: %w", k, ErrNotFound)
		}
		h, ok := ids.HashOf(k.id)
		if !ok {
			return 0, fmt.Errorf("%s: %w", k, ErrNotFound)
		}
		return h, nil

	case keyPath:
		if paths, ok := b.(PathResolver); ok {
			if h, ok := paths.HashOfPath(k.path); ok {
				return h, nil
			}
		}
		return catalog.HashPath(k.path), nil

	default:
		return k.hash, nil
	}
}

// Open resolves k and opens it.
func Open(ctx context.Context, b Backend, k Key) (io.ReadCloser, error) {
	h, err := Resolve(b, k)
	if err != nil {
		return nil, err
	}
	return b.OpenFile(ctx, h)
}

// Exists resolves k and reports whether it can be opened.
func Exists(ctx context.Context, b Backend, k Key) bool {
	h, err := Resolve(b, k)
	if err != nil {
		return false
	}
	return b.FileExists(ctx, h)
}
