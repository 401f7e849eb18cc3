package table

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/marmos91/cascview/internal/logger"
)

// MagicWDC3 identifies the sectioned common-data layout.
const MagicWDC3 = "WDC3"

// WDC3Header is the 72-byte header of a WDC3 table.
type WDC3Header struct {
	Magic                [4]byte
	RecordCount          uint32
	FieldCount           uint32
	RecordSize           uint32
	StringTableSize      uint32
	TableHash            uint32
	LayoutHash           uint32
	MinID                int32
	MaxID                int32
	Locale               uint32
	Flags                uint16
	IDIndex              uint16
	TotalFieldCount      uint32
	BitpackedDataOffset  uint32
	LookupColumnCount    uint32
	FieldStorageInfoSize uint32
	CommonDataSize       uint32
	PalletDataSize       uint32
	SectionCount         uint32
}

// WDC3SectionHeader describes one section of rows.
type WDC3SectionHeader struct {
	TactKeyHash          uint64
	FileOffset           uint32
	RecordCount          uint32
	StringTableSize      uint32
	OffsetRecordsEnd     uint32
	IDListSize           uint32
	RelationshipDataSize uint32
	OffsetMapIDCount     uint32
	CopyTableCount       uint32
}

// WDC3FieldStructure gives a field's declared width (32 - size bits) and byte position.
type WDC3FieldStructure struct {
	Size     int16
	Position uint16
}

// WDC3FieldStorage describes how a field's value is stored.
type WDC3FieldStorage struct {
	OffsetBits         uint16
	SizeBits           uint16
	AdditionalDataSize uint32
	Compression        uint32
	Val1               uint32
	Val2               uint32
	Val3               uint32
}

// Field compressions.
const (
	CompressionNone                  uint32 = 0
	CompressionBitpacked             uint32 = 1
	CompressionCommonData            uint32 = 2
	CompressionBitpackedIndexed      uint32 = 3
	CompressionBitpackedIndexedArray uint32 = 4
	CompressionBitpackedSigned       uint32 = 5
)

// wdc3FlagOffsetMap marks sparse tables with variable-size inline records.
const wdc3FlagOffsetMap = 0x1

const wdc3FieldStorageSize = 24

type wdc3Field struct {
	storage WDC3FieldStorage
	pallet  []uint32
	common  map[int32]uint32
}

func (t *Table) decodeWDC3(data []byte, hasKey KeyCheck) error {
	r := bytes.NewReader(data)

	// Step 1: header and section directory
	var h WDC3Header
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return fmt.Errorf("%w: read WDC3 header: %v", ErrInvalidFormat, err)
	}
	if h.Flags&wdc3FlagOffsetMap != 0 {
		return fmt.Errorf("%w: sparse WDC3 tables", ErrUnsupportedStorage)
	}

	if !fits(r.Len(),
		uint64(h.SectionCount)*uint64(binary.Size(WDC3SectionHeader{})),
		uint64(h.TotalFieldCount)*uint64(binary.Size(WDC3FieldStructure{})),
		uint64(h.FieldStorageInfoSize),
		uint64(h.PalletDataSize),
		uint64(h.CommonDataSize)) {
		return fmt.Errorf("%w: WDC3 header declares more metadata than the %d bytes that follow", ErrInvalidFormat, r.Len())
	}

	sections := make([]WDC3SectionHeader, h.SectionCount)
	if err := binary.Read(r, binary.LittleEndian, sections); err != nil {
		return fmt.Errorf("%w: read WDC3 sections: %v", ErrInvalidFormat, err)
	}

	structures := make([]WDC3FieldStructure, h.TotalFieldCount)
	if err := binary.Read(r, binary.LittleEndian, structures); err != nil {
		return fmt.Errorf("%w: read WDC3 field structure: %v", ErrInvalidFormat, err)
	}

	// Step 2: field storage, pallet and common data
	fields := make([]wdc3Field, h.FieldStorageInfoSize/wdc3FieldStorageSize)
	for i := range fields {
		if err := binary.Read(r, binary.LittleEndian, &fields[i].storage); err != nil {
			return fmt.Errorf("%w: read WDC3 field storage: %v", ErrInvalidFormat, err)
		}
	}

	for i := range fields {
		f := &fields[i]
		if f.storage.Compression != CompressionBitpackedIndexed && f.storage.Compression != CompressionBitpackedIndexedArray {
			continue
		}
		if !fits(r.Len(), uint64(f.storage.AdditionalDataSize)) {
			return fmt.Errorf("%w: WDC3 pallet for field %d exceeds the data", ErrInvalidFormat, i)
		}
		f.pallet = make([]uint32, f.storage.AdditionalDataSize/4)
		if err := binary.Read(r, binary.LittleEndian, f.pallet); err != nil {
			return fmt.Errorf("%w: read WDC3 pallet for field %d: %v", ErrInvalidFormat, i, err)
		}
	}

	for i := range fields {
		f := &fields[i]
		if f.storage.Compression != CompressionCommonData {
			continue
		}
		if !fits(r.Len(), uint64(f.storage.AdditionalDataSize)) {
			return fmt.Errorf("%w: WDC3 common data for field %d exceeds the data", ErrInvalidFormat, i)
		}
		pairs := make([]uint32, f.storage.AdditionalDataSize/4)
		if err := binary.Read(r, binary.LittleEndian, pairs); err != nil {
			return fmt.Errorf("%w: read WDC3 common data for field %d: %v", ErrInvalidFormat, i, err)
		}
		f.common = make(map[int32]uint32, len(pairs)/2)
		for j := 0; j+1 < len(pairs); j += 2 {
			f.common[int32(pairs[j])] = pairs[j+1]
		}
	}

	// Step 3: sections
	for i, s := range sections {
		if s.TactKeyHash != 0 && (hasKey == nil || !hasKey(s.TactKeyHash)) {
			t.skipped += int(s.RecordCount)
			logger.Debug("WDC3 section %d: %v", i, fmt.Errorf("%w: key %016X", ErrUnresolvableKey, s.TactKeyHash))
			continue
		}
		if err := t.decodeWDC3Section(data, &h, s, fields); err != nil {
			return fmt.Errorf("section %d: %w", i, err)
		}
	}
	return nil
}

func (t *Table) decodeWDC3Section(data []byte, h *WDC3Header, s WDC3SectionHeader, fields []wdc3Field) error {
	if uint64(s.FileOffset) > uint64(len(data)) || !fits(len(data)-int(s.FileOffset),
		uint64(s.RecordCount)*uint64(h.RecordSize),
		uint64(s.StringTableSize),
		uint64(s.IDListSize),
		uint64(s.CopyTableCount)*8) {
		return fmt.Errorf("%w: WDC3 section at %d with %d records runs past %d bytes",
			ErrInvalidFormat, s.FileOffset, s.RecordCount, len(data))
	}
	if s.IDListSize != 0 && uint64(s.IDListSize) != uint64(s.RecordCount)*4 {
		return fmt.Errorf("%w: WDC3 id list holds %d bytes for %d records",
			ErrInvalidFormat, s.IDListSize, s.RecordCount)
	}
	recordsSize := int(s.RecordCount) * int(h.RecordSize)
	base := int(s.FileOffset)

	// records and strings form one blob: string fields hold an offset
	// relative to their own position within it
	blob := data[base : base+recordsSize+int(s.StringTableSize)]

	ids := make([]int32, s.IDListSize/4)
	idPos := base + recordsSize + int(s.StringTableSize)
	for i := range ids {
		ids[i] = int32(binary.LittleEndian.Uint32(data[idPos+i*4:]))
	}

	sectionRows := make(map[int32]*Row, s.RecordCount)
	for i := 0; i < int(s.RecordCount); i++ {
		recPos := i * int(h.RecordSize)
		rec := blob[recPos : recPos+int(h.RecordSize)]

		var id int32
		if len(ids) > 0 {
			id = ids[i]
		} else {
			if int(h.IDIndex) >= len(fields) {
				return fmt.Errorf("%w: id index %d without field storage", ErrInvalidFormat, h.IDIndex)
			}
			raw, err := readField(rec, fields[h.IDIndex], 0)
			if err != nil {
				return fmt.Errorf("row %d id: %w", i, err)
			}
			id = int32(raw)
		}

		row := &Row{ID: id, values: make([]value, len(fields))}
		for col := range fields {
			raw, err := readField(rec, fields[col], id)
			if err != nil {
				return fmt.Errorf("row %d column %d: %w", id, col, err)
			}

			switch typ := t.schema.typeOf(col); typ {
			case FieldString:
				pos := recPos + int(fields[col].storage.OffsetBits/8) + int(uint32(raw))
				str, err := cString(blob, pos)
				if err != nil {
					return fmt.Errorf("row %d column %d: %w", id, col, err)
				}
				row.values[col] = value{typ: typ, s: str}
			case FieldByte:
				row.values[col] = value{typ: typ, n: int64(uint8(raw))}
			default:
				row.values[col] = value{typ: FieldInt, n: int64(int32(uint32(raw)))}
			}
		}

		t.add(row)
		sectionRows[id] = row
	}

	// copy table: (new id, source id) pairs
	copyPos := idPos + int(s.IDListSize)
	for i := 0; i < int(s.CopyTableCount); i++ {
		newID := int32(binary.LittleEndian.Uint32(data[copyPos+i*8:]))
		srcID := int32(binary.LittleEndian.Uint32(data[copyPos+i*8+4:]))
		src, ok := sectionRows[srcID]
		if !ok {
			logger.Debug("WDC3 copy table: source row %d missing for %d", srcID, newID)
			continue
		}
		t.add(src.clone(newID))
	}
	return nil
}

// readField decodes one field value of the record rec with row id id.
func readField(rec []byte, f wdc3Field, id int32) (uint64, error) {
	st := f.storage

	switch st.Compression {
	case CompressionNone, CompressionBitpacked:
		return readBits(rec, int(st.OffsetBits), int(st.SizeBits))

	case CompressionBitpackedSigned:
		v, err := readBits(rec, int(st.OffsetBits), int(st.SizeBits))
		if err != nil {
			return 0, err
		}
		shift := 64 - uint(st.SizeBits)
		return uint64(int64(v<<shift) >> shift), nil

	case CompressionCommonData:
		if v, ok := f.common[id]; ok {
			return uint64(v), nil
		}
		return uint64(st.Val1), nil

	case CompressionBitpackedIndexed:
		idx, err := readBits(rec, int(st.OffsetBits), int(st.SizeBits))
		if err != nil {
			return 0, err
		}
		if idx >= uint64(len(f.pallet)) {
			return 0, fmt.Errorf("%w: pallet index %d of %d", ErrInvalidFormat, idx, len(f.pallet))
		}
		return uint64(f.pallet[idx]), nil

	default:
		return 0, fmt.Errorf("%w: compression %d", ErrUnsupportedStorage, st.Compression)
	}
}

// readBits extracts count bits starting at bit offset off, little-endian.
func readBits(data []byte, off, count int) (uint64, error) {
	if count == 0 {
		return 0, nil
	}
	if count > 64 || off+count > len(data)*8 {
		return 0, fmt.Errorf("%w: %d bits at bit %d of a %d byte record", ErrInvalidFormat, count, off, len(data))
	}

	var v uint64
	for i := 0; i < count; i++ {
		bit := off + i
		if data[bit/8]&(1<<(bit%8)) != 0 {
			v |= 1 << i
		}
	}
	return v, nil
}
