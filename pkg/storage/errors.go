package storage

import "errors"

// Implementations wrap these with context:
//
//	return nil, fmt.Errorf("object %s: %w", hash, storage.ErrNotFound)

var (
	// ErrNotFound indicates the hash, id or path is not published by the backend.
	ErrNotFound = errors.New("not found in storage")

	// ErrBackendUnavailable indicates the underlying store failed to serve a
	// request (I/O error, network failure, throttling). Resolution passes
	// abort on it.
	ErrBackendUnavailable = errors.New("storage backend unavailable")

	// ErrInvalidManifest indicates a malformed manifest line.
	ErrInvalidManifest = errors.New("invalid manifest")
)
