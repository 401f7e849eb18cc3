// Package table reads the binary row/column tables used as auxiliary
// lookup metadata.
//
// Two layouts are supported:
//   - WDB2: fixed-size rows, every field stored inline, row key in field 0
//   - WDC3: sectioned rows whose fields may be bit-packed, palletized or
//     stored in a per-field "common data" map keyed by row id; sections may
//     be encrypted with a key the caller may not have
//
// Both are normalized behind Table: lookup by row key, iteration in file
// order, and typed field extraction checked against a caller-declared
// Schema.
package table

import (
	"bytes"
	"fmt"
	"io"
	"iter"

	"github.com/marmos91/cascview/internal/logger"
)

// FieldType is the declared type of a column.
type FieldType int

const (
	FieldInt FieldType = iota
	FieldString
	FieldByte
)

func (t FieldType) String() string {
	switch t {
	case FieldInt:
		return "int"
	case FieldString:
		return "string"
	case FieldByte:
		return "byte"
	default:
		return "unknown"
	}
}

// Schema declares the type of each column by index. Columns beyond the
// schema are read as FieldInt.
type Schema []FieldType

func (s Schema) typeOf(col int) FieldType {
	if col < len(s) {
		return s[col]
	}
	return FieldInt
}

// KeyCheck reports whether the decryption key with the given id is
// available. Sections encrypted with an unavailable key are skipped.
type KeyCheck func(keyID uint64) bool

// Option configures Open.
type Option func(*options)

type options struct {
	hasKey KeyCheck
}

// WithKeyCheck installs the key lookup used for encrypted sections.
func WithKeyCheck(fn KeyCheck) Option {
	return func(o *options) { o.hasKey = fn }
}

// Table is a decoded table held in memory.
type Table struct {
	format string
	schema Schema
	rows   []*Row
	index  map[int32]*Row

	// skipped counts rows dropped because their section key was unavailable
	skipped int
}

// Open decodes the table in r. The stream is consumed fully; the caller may
// close it as soon as Open returns.
//
// Parameters:
//   - r: Table bytes
//   - schema: Declared column types
//   - opts: WithKeyCheck for encrypted sections
//
// Returns:
//   - *Table: Decoded table
//   - error: ErrInvalidFormat, ErrUnsupportedStorage, or a read error
func Open(r io.Reader, schema Schema, opts ...Option) (*Table, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read table: %w", err)
	}
	if len(data) < 4 {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidFormat, len(data))
	}

	t := &Table{schema: schema, index: make(map[int32]*Row)}

	switch magic := string(data[:4]); magic {
	case MagicWDB2:
		t.format = MagicWDB2
		err = t.decodeWDB2(bytes.NewReader(data))
	case MagicWDC3:
		t.format = MagicWDC3
		err = t.decodeWDC3(data, o.hasKey)
	default:
		return nil, fmt.Errorf("%w: magic %q", ErrInvalidFormat, magic)
	}
	if err != nil {
		return nil, err
	}

	if t.skipped > 0 {
		logger.Debug("Table %s: %d rows skipped (unresolvable key)", t.format, t.skipped)
	}
	return t, nil
}

// Format returns the table magic ("WDB2" or "WDC3").
func (t *Table) Format() string { return t.format }

// Len returns the number of decodable rows.
func (t *Table) Len() int { return len(t.rows) }

// Skipped returns the number of rows dropped for unavailable keys.
func (t *Table) Skipped() int { return t.skipped }

// GetRow returns the row with the given key.
func (t *Table) GetRow(key int32) (*Row, error) {
	row, ok := t.index[key]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrRowNotFound, key)
	}
	return row, nil
}

// Rows iterates (key, row) in file order.
func (t *Table) Rows() iter.Seq2[int32, *Row] {
	return func(yield func(int32, *Row) bool) {
		for _, row := range t.rows {
			if !yield(row.ID, row) {
				return
			}
		}
	}
}

// add appends row, keeping the first row for a duplicated key in the index.
func (t *Table) add(row *Row) {
	t.rows = append(t.rows, row)
	if _, exists := t.index[row.ID]; !exists {
		t.index[row.ID] = row
	}
}

// ============================================================================
// Row
// ============================================================================

type value struct {
	typ FieldType
	n   int64
	s   string
}

// Row is one decoded record.
type Row struct {
	ID     int32
	values []value
}

// NumFields returns the number of columns in the row.
func (r *Row) NumFields() int { return len(r.values) }

func (r *Row) field(col int, want FieldType) (value, error) {
	if col < 0 || col >= len(r.values) {
		return value{}, fmt.Errorf("%w: row %d has %d columns, requested %d",
			ErrNoSuchColumn, r.ID, len(r.values), col)
	}
	v := r.values[col]
	if v.typ != want {
		return value{}, fmt.Errorf("%w: row %d column %d is %s, requested %s",
			ErrFieldTypeMismatch, r.ID, col, v.typ, want)
	}
	return v, nil
}

// Int returns column col declared as FieldInt.
func (r *Row) Int(col int) (int32, error) {
	v, err := r.field(col, FieldInt)
	return int32(v.n), err
}

// String returns column col declared as FieldString.
func (r *Row) String(col int) (string, error) {
	v, err := r.field(col, FieldString)
	return v.s, err
}

// Byte returns column col declared as FieldByte.
func (r *Row) Byte(col int) (byte, error) {
	v, err := r.field(col, FieldByte)
	return byte(v.n), err
}

// clone copies r under a new key, for WDC3 copy tables.
func (r *Row) clone(id int32) *Row {
	return &Row{ID: id, values: append([]value(nil), r.values...)}
}
