// Package tabletest encodes WDB2 and WDC3 tables for tests.
//
// Row values are int32, string or byte, matching the Schema column types.
// Builders panic on values that do not fit the schema.
package tabletest

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/marmos91/cascview/pkg/table"
)

// WDB2 describes a fixed-row table.
type WDB2 struct {
	// Build is written to the header; builds above 12880 get the id index
	// arrays the reader must skip
	Build uint32

	Schema table.Schema

	// Rows hold one value per schema column; column 0 is the row key
	Rows [][]any
}

// Bytes encodes the table.
func (w WDB2) Bytes() []byte {
	strs := newStringTable()
	recordSize := 0
	for _, t := range w.Schema {
		if t == table.FieldByte {
			recordSize++
		} else {
			recordSize += 4
		}
	}

	var records bytes.Buffer
	minID, maxID := int32(0), int32(0)
	for i, row := range w.Rows {
		if len(row) != len(w.Schema) {
			panic(fmt.Sprintf("tabletest: row %d has %d values for %d columns", i, len(row), len(w.Schema)))
		}
		for col, v := range row {
			switch w.Schema[col] {
			case table.FieldByte:
				records.WriteByte(v.(byte))
			case table.FieldString:
				mustWrite(&records, strs.add(v.(string)))
			default:
				mustWrite(&records, v.(int32))
			}
		}

		id := idOf(row)
		if i == 0 || id < minID {
			minID = id
		}
		if i == 0 || id > maxID {
			maxID = id
		}
	}

	h := table.WDB2Header{
		RecordCount:     uint32(len(w.Rows)),
		FieldCount:      uint32(len(w.Schema)),
		RecordSize:      uint32(recordSize),
		StringTableSize: uint32(strs.buf.Len()),
		Build:           w.Build,
		MinID:           minID,
		MaxID:           maxID,
	}
	copy(h.Magic[:], table.MagicWDB2)

	var out bytes.Buffer
	mustWrite(&out, h)
	if maxID != 0 && w.Build > 12880 {
		out.Write(make([]byte, int(maxID-minID+1)*6))
	}
	out.Write(records.Bytes())
	out.Write(strs.buf.Bytes())
	return out.Bytes()
}

func idOf(row []any) int32 {
	if id, ok := row[0].(int32); ok {
		return id
	}
	return 0
}

// WDC3Row is one record of a WDC3 section.
type WDC3Row struct {
	ID     int32
	Values []any
}

// WDC3Section is a run of rows sharing an encryption key.
type WDC3Section struct {
	// TactKey is the section's key id; zero means unencrypted
	TactKey uint64

	Rows []WDC3Row

	// Copies lists (new id, source id) pairs
	Copies [][2]int32
}

// WDC3 describes a sectioned table.
type WDC3 struct {
	Schema table.Schema

	// Common maps column index to the default value of a common-data
	// column. Such columns must be int and are stored out of line.
	Common map[int]uint32

	// InlineIDs stores row ids in column 0 instead of an id list
	InlineIDs bool

	Sections []WDC3Section
}

// Bytes encodes the table.
func (w WDC3) Bytes() []byte {
	fieldCount := len(w.Schema)

	// Step 1: field layout
	storages := make([]table.WDC3FieldStorage, fieldCount)
	structures := make([]table.WDC3FieldStructure, fieldCount)
	common := make([][]uint32, fieldCount)
	recordSize := 0
	for col, t := range w.Schema {
		if def, ok := w.Common[col]; ok {
			storages[col] = table.WDC3FieldStorage{
				OffsetBits:  uint16(recordSize * 8),
				Compression: table.CompressionCommonData,
				Val1:        def,
			}
			structures[col] = table.WDC3FieldStructure{Size: 32, Position: uint16(recordSize)}
			continue
		}

		bits := 32
		if t == table.FieldByte {
			bits = 8
		}
		storages[col] = table.WDC3FieldStorage{
			OffsetBits:  uint16(recordSize * 8),
			SizeBits:    uint16(bits),
			Compression: table.CompressionNone,
		}
		structures[col] = table.WDC3FieldStructure{Size: int16(32 - bits), Position: uint16(recordSize)}
		recordSize += bits / 8
	}

	// Step 2: section payloads
	type payload struct {
		records, strings, ids, copies bytes.Buffer
		rows                          int
	}
	payloads := make([]*payload, len(w.Sections))
	totalRows, totalStrings := 0, 0

	for si, s := range w.Sections {
		p := &payload{rows: len(s.Rows)}
		strs := newStringTable()
		recordsSize := len(s.Rows) * recordSize

		for ri, row := range s.Rows {
			if len(row.Values) != fieldCount {
				panic(fmt.Sprintf("tabletest: section %d row %d has %d values for %d columns", si, ri, len(row.Values), fieldCount))
			}
			for col, v := range row.Values {
				if def, ok := w.Common[col]; ok {
					if u := uint32(v.(int32)); u != def {
						common[col] = append(common[col], uint32(row.ID), u)
					}
					continue
				}
				switch w.Schema[col] {
				case table.FieldByte:
					p.records.WriteByte(v.(byte))
				case table.FieldString:
					fieldPos := ri*recordSize + int(structures[col].Position)
					strPos := recordsSize + int(strs.add(v.(string)))
					mustWrite(&p.records, uint32(strPos-fieldPos))
				default:
					mustWrite(&p.records, v.(int32))
				}
			}
			if !w.InlineIDs {
				mustWrite(&p.ids, row.ID)
			}
		}
		p.strings.Write(strs.buf.Bytes())
		for _, c := range s.Copies {
			mustWrite(&p.copies, c[0])
			mustWrite(&p.copies, c[1])
		}

		payloads[si] = p
		totalRows += p.rows
		totalStrings += p.strings.Len()
	}

	commonSize := 0
	for col := range common {
		storages[col].AdditionalDataSize = uint32(len(common[col]) * 4)
		commonSize += len(common[col]) * 4
	}

	// Step 3: header, directory, field metadata, then sections
	h := table.WDC3Header{
		RecordCount:          uint32(totalRows),
		FieldCount:           uint32(fieldCount),
		RecordSize:           uint32(recordSize),
		StringTableSize:      uint32(totalStrings),
		TotalFieldCount:      uint32(fieldCount),
		FieldStorageInfoSize: uint32(fieldCount * 24),
		CommonDataSize:       uint32(commonSize),
		SectionCount:         uint32(len(w.Sections)),
	}
	copy(h.Magic[:], table.MagicWDC3)

	offset := 72 + 40*len(w.Sections) + 4*fieldCount + 24*fieldCount + commonSize
	headers := make([]table.WDC3SectionHeader, len(w.Sections))
	for si, p := range payloads {
		headers[si] = table.WDC3SectionHeader{
			TactKeyHash:      w.Sections[si].TactKey,
			FileOffset:       uint32(offset),
			RecordCount:      uint32(p.rows),
			StringTableSize:  uint32(p.strings.Len()),
			OffsetRecordsEnd: uint32(offset + p.records.Len()),
			IDListSize:       uint32(p.ids.Len()),
			CopyTableCount:   uint32(p.copies.Len() / 8),
		}
		offset += p.records.Len() + p.strings.Len() + p.ids.Len() + p.copies.Len()
	}

	var out bytes.Buffer
	mustWrite(&out, h)
	mustWrite(&out, headers)
	mustWrite(&out, structures)
	mustWrite(&out, storages)
	for col := range common {
		mustWrite(&out, common[col])
	}
	for _, p := range payloads {
		out.Write(p.records.Bytes())
		out.Write(p.strings.Bytes())
		out.Write(p.ids.Bytes())
		out.Write(p.copies.Bytes())
	}
	return out.Bytes()
}

// ============================================================================
// Helpers
// ============================================================================

type stringTable struct {
	buf     bytes.Buffer
	offsets map[string]uint32
}

func newStringTable() *stringTable {
	st := &stringTable{offsets: map[string]uint32{"": 0}}
	st.buf.WriteByte(0)
	return st
}

func (st *stringTable) add(s string) uint32 {
	if off, ok := st.offsets[s]; ok {
		return off
	}
	off := uint32(st.buf.Len())
	st.buf.WriteString(s)
	st.buf.WriteByte(0)
	st.offsets[s] = off
	return off
}

func mustWrite(buf *bytes.Buffer, v any) {
	if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
		panic("tabletest: " + err.Error())
	}
}
