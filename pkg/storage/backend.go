// Package storage defines the backend contract the catalog and resolver
// consume, plus the manifest format shared by the filesystem and S3
// implementations.
//
// A backend is content-addressed: every file is keyed by a catalog.Hash.
// Names, numeric ids and locale/content variants are published separately
// by the manifest. Decoding the game's own archive containers is out of
// scope; backends serve already-extracted objects.
package storage

import (
	"context"
	"io"

	"github.com/marmos91/cascview/pkg/catalog"
)

// Backend provides raw file bytes and the enumerations the catalog is
// built from.
//
// Thread Safety:
// Implementations must be safe for concurrent use.
type Backend interface {
	catalog.Source

	// OpenFile returns the bytes of hash. The caller closes the stream.
	//
	// Returns ErrNotFound when the hash is unknown and ErrBackendUnavailable
	// (wrapped) when the underlying store cannot be reached.
	OpenFile(ctx context.Context, hash catalog.Hash) (io.ReadCloser, error)

	// FileExists reports whether bytes for hash can be opened.
	FileExists(ctx context.Context, hash catalog.Hash) bool

	// Close releases the backend's resources.
	Close() error
}

// IDResolver is implemented by backends whose root format carries numeric
// file ids.
type IDResolver interface {
	// IDOf returns the numeric id of hash
	IDOf(hash catalog.Hash) (int32, bool)

	// HashOf returns the hash published under id
	HashOf(id int32) (catalog.Hash, bool)
}

// PathResolver is implemented by backends that can map a logical path to
// its hash without building a catalog.
type PathResolver interface {
	HashOfPath(path string) (catalog.Hash, bool)
}

// BuildInfo is implemented by backends that know the game build they serve.
type BuildInfo interface {
	BuildName() string
}
