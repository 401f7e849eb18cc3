// Package audit records the naming decisions of resolution passes for later
// manual review.
//
// Every pass gets an id. Within a pass, records are numbered from 1 in the
// order they were appended. Stores never rewrite or drop a record.
package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marmos91/cascview/pkg/catalog"
)

// Kind classifies a record.
type Kind uint32

const (
	// KindCandidate is one entry of the candidate map built before the
	// application pass
	KindCandidate Kind = iota

	// KindRename means a file got its only candidate name
	KindRename

	// KindSplit means a file was materialized at one of several candidate names
	KindSplit

	// KindSniff means a name was derived from the file's own bytes
	KindSniff

	// KindConflict means a candidate could not be applied
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindCandidate:
		return "candidate"
	case KindRename:
		return "rename"
	case KindSplit:
		return "split"
	case KindSniff:
		return "sniff"
	case KindConflict:
		return "conflict"
	default:
		return fmt.Sprintf("kind(%d)", uint32(k))
	}
}

// NoID marks a record whose file has no numeric id.
const NoID int32 = -1

// Record is one (id, inferred-name) decision.
type Record struct {
	PassID string
	Seq    uint64
	Time   time.Time
	Kind   Kind
	ID     int32
	Hash   catalog.Hash
	Name   string
}

// Line renders r the way the review log is written: "id;name", or the bare
// name when the file has no numeric id.
func (r Record) Line() string {
	if r.ID == NoID {
		return r.Name
	}
	return fmt.Sprintf("%d;%s", r.ID, r.Name)
}

// ErrClosed is returned by a store after Close.
var ErrClosed = errors.New("audit log closed")

// Log stores audit records.
//
// Thread Safety:
// Implementations must be safe for concurrent use.
type Log interface {
	// Append stores rec under rec.PassID, assigning the next sequence number
	// and, if rec.Time is zero, the current time. It returns the stored record.
	Append(ctx context.Context, rec Record) (Record, error)

	// Records returns the records of passID in sequence order. An unknown
	// pass has no records.
	Records(ctx context.Context, passID string) ([]Record, error)

	// Passes returns every pass id, oldest first.
	Passes(ctx context.Context) ([]string, error)

	// Close releases the store.
	Close() error
}

// Stamp fills the fields Append assigns.
func Stamp(rec Record, seq uint64, now func() time.Time) Record {
	rec.Seq = seq
	if rec.Time.IsZero() {
		rec.Time = now()
	}
	return rec
}
