package table

import "errors"

var (
	// ErrInvalidFormat indicates the stream is not a supported table or is truncated
	ErrInvalidFormat = errors.New("invalid table format")

	// ErrUnsupportedStorage indicates a WDC3 field compression this reader does not decode
	ErrUnsupportedStorage = errors.New("unsupported field storage")

	// ErrRowNotFound indicates no row carries the requested key
	ErrRowNotFound = errors.New("row not found")

	// ErrFieldTypeMismatch indicates the requested type differs from the declared one
	ErrFieldTypeMismatch = errors.New("field type mismatch")

	// ErrNoSuchColumn indicates a column index outside the row
	ErrNoSuchColumn = errors.New("no such column")

	// ErrUnresolvableKey indicates a section is encrypted with an unavailable key.
	// Open never returns it; the section's rows are skipped and counted instead.
	ErrUnresolvableKey = errors.New("unresolvable decryption key")
)
