package catalog

import "errors"

// Error represents a domain error from catalog operations.
//
// These are catalog-level conditions (missing path, naming conflict, pass
// in progress) as opposed to backend failures, which surface as wrapped
// storage errors.
type Error struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// Path is the catalog path related to the error (if applicable)
	Path string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Path != "" {
		return e.Message + ": " + e.Path
	}
	return e.Message
}

// ErrorCode represents the category of a catalog error.
type ErrorCode int

const (
	// ErrNotFound indicates the requested path or hash is absent
	ErrNotFound ErrorCode = iota

	// ErrNamingConflict indicates a path segment collides with an existing
	// entry of the other kind (folder vs file). The insertion is dropped.
	ErrNamingConflict

	// ErrReadOnly indicates a mutation was attempted while a resolution
	// pass or rebuild holds the exclusive lock
	ErrReadOnly

	// ErrBusy indicates a query was rejected because the exclusive lock is held
	ErrBusy

	// ErrStaleView indicates a view or folder belongs to a discarded tree
	ErrStaleView

	// ErrInvalidArgument indicates a malformed path, position or option
	ErrInvalidArgument
)

func (c ErrorCode) String() string {
	switch c {
	case ErrNotFound:
		return "NotFound"
	case ErrNamingConflict:
		return "NamingConflict"
	case ErrReadOnly:
		return "ReadOnlyViolation"
	case ErrBusy:
		return "Busy"
	case ErrStaleView:
		return "StaleView"
	case ErrInvalidArgument:
		return "InvalidArgument"
	default:
		return "Unknown"
	}
}

func newError(code ErrorCode, message, path string) *Error {
	return &Error{Code: code, Message: message, Path: path}
}

// CodeOf extracts the ErrorCode of err, reporting false for non-catalog errors.
func CodeOf(err error) (ErrorCode, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code, true
	}
	return 0, false
}

func hasCode(err error, code ErrorCode) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}

func IsNotFound(err error) bool       { return hasCode(err, ErrNotFound) }
func IsNamingConflict(err error) bool { return hasCode(err, ErrNamingConflict) }
func IsReadOnly(err error) bool       { return hasCode(err, ErrReadOnly) }
func IsBusy(err error) bool           { return hasCode(err, ErrBusy) }
func IsStaleView(err error) bool      { return hasCode(err, ErrStaleView) }
