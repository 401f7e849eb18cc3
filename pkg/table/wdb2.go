package table

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// MagicWDB2 identifies the fixed-row layout.
const MagicWDB2 = "WDB2"

// wdb2IndexBuild is the first build whose WDB2 files carry the id index
// and string length arrays after the header.
const wdb2IndexBuild = 12880

// WDB2Header is the 48-byte header of a WDB2 table.
type WDB2Header struct {
	Magic           [4]byte
	RecordCount     uint32
	FieldCount      uint32
	RecordSize      uint32
	StringTableSize uint32
	TableHash       uint32
	Build           uint32
	Timestamp       uint32
	MinID           int32
	MaxID           int32
	Locale          uint32
	CopyTableSize   uint32
}

// fieldWidth is the inline size of a WDB2 field of type t.
func fieldWidth(t FieldType) int {
	if t == FieldByte {
		return 1
	}
	return 4
}

func (t *Table) decodeWDB2(r *bytes.Reader) error {
	var h WDB2Header
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return fmt.Errorf("%w: read WDB2 header: %v", ErrInvalidFormat, err)
	}

	// Step 1: skip the id index and string length arrays
	if h.MaxID != 0 && h.Build > wdb2IndexBuild {
		if h.MaxID < h.MinID {
			return fmt.Errorf("%w: WDB2 id range %d..%d", ErrInvalidFormat, h.MinID, h.MaxID)
		}
		skip := (int64(h.MaxID) - int64(h.MinID) + 1) * 6
		if _, err := r.Seek(skip, io.SeekCurrent); err != nil {
			return fmt.Errorf("%w: skip WDB2 index: %v", ErrInvalidFormat, err)
		}
	}

	// Step 2: resolve the column layout
	fieldCount := int(h.FieldCount)
	offsets := make([]int, fieldCount)
	pos := 0
	for col := 0; col < fieldCount; col++ {
		offsets[col] = pos
		pos += fieldWidth(t.schema.typeOf(col))
	}
	if fieldCount == 0 || pos > int(h.RecordSize) {
		return fmt.Errorf("%w: WDB2 schema needs %d bytes per record, record size is %d",
			ErrInvalidFormat, pos, h.RecordSize)
	}

	// Step 3: records followed by the string table
	if !fits(r.Len(), uint64(h.RecordCount)*uint64(h.RecordSize), uint64(h.StringTableSize)) {
		return fmt.Errorf("%w: WDB2 declares %d records of %d bytes and %d string bytes, %d bytes remain",
			ErrInvalidFormat, h.RecordCount, h.RecordSize, h.StringTableSize, r.Len())
	}
	records := make([]byte, int(h.RecordCount)*int(h.RecordSize))
	if _, err := io.ReadFull(r, records); err != nil {
		return fmt.Errorf("%w: read WDB2 records: %v", ErrInvalidFormat, err)
	}
	strings := make([]byte, h.StringTableSize)
	if _, err := io.ReadFull(r, strings); err != nil {
		return fmt.Errorf("%w: read WDB2 string table: %v", ErrInvalidFormat, err)
	}

	for i := 0; i < int(h.RecordCount); i++ {
		rec := records[i*int(h.RecordSize) : (i+1)*int(h.RecordSize)]
		row := &Row{values: make([]value, fieldCount)}

		for col := 0; col < fieldCount; col++ {
			typ := t.schema.typeOf(col)
			off := offsets[col]

			switch typ {
			case FieldByte:
				row.values[col] = value{typ: typ, n: int64(rec[off])}
			case FieldString:
				so := binary.LittleEndian.Uint32(rec[off:])
				s, err := cString(strings, int(so))
				if err != nil {
					return fmt.Errorf("row %d column %d: %w", i, col, err)
				}
				row.values[col] = value{typ: typ, s: s}
			default:
				row.values[col] = value{typ: FieldInt, n: int64(int32(binary.LittleEndian.Uint32(rec[off:])))}
			}
		}

		row.ID = int32(row.values[0].n)
		t.add(row)
	}
	return nil
}

// fits reports whether the byte counts sizes add up to at most avail.
// Counts come from 32-bit header fields, so the uint64 sum cannot wrap.
func fits(avail int, sizes ...uint64) bool {
	var total uint64
	for _, n := range sizes {
		total += n
	}
	return total <= uint64(avail)
}

// cString reads the zero-terminated string at off.
func cString(data []byte, off int) (string, error) {
	if off < 0 || off > len(data) {
		return "", fmt.Errorf("%w: string offset %d outside table of %d bytes", ErrInvalidFormat, off, len(data))
	}
	end := bytes.IndexByte(data[off:], 0)
	if end < 0 {
		return string(data[off:]), nil
	}
	return string(data[off : off+end]), nil
}
