// Package sniff classifies game asset files by their leading bytes.
//
// A signature table of game formats is consulted first; anything it does
// not recognize falls back to generic MIME detection, so common media
// (ogg, mp3, png, ...) still get an extension.
package sniff

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/gabriel-vasile/mimetype"
)

// HeaderSize is the number of leading bytes Detect inspects.
const HeaderSize = 3072

// ExtM2 is the extension of the model format whose embedded name can be read.
const ExtM2 = ".m2"

// ErrTruncated indicates the data ends before a header field.
var ErrTruncated = errors.New("truncated file")

type signature struct {
	magic string
	ext   string

	// chunk, when set, maps the 4-byte tag at offset 12 to the extension
	// (files sharing a version chunk as their first tag)
	chunk map[string]string
}

var signatures = []signature{
	{magic: "MD21", ext: ExtM2},
	{magic: "MD20", ext: ExtM2},
	{magic: "SKIN", ext: ".skin"},
	{magic: "BLP2", ext: ".blp"},
	{magic: "AFM2", ext: ".anim"},
	{magic: "AFSA", ext: ".anim"},
	{magic: "AFSB", ext: ".anim"},
	{magic: "SYHP", ext: ".phys"},
	{magic: "LDKS", ext: ".skel"},
	{magic: "WDC3", ext: ".db2"},
	{magic: "WDC2", ext: ".db2"},
	{magic: "WDC1", ext: ".db2"},
	{magic: "WDB6", ext: ".db2"},
	{magic: "WDB5", ext: ".db2"},
	{magic: "WDB2", ext: ".db2"},
	{magic: "WCH2", ext: ".dbc"},
	{magic: "WDBC", ext: ".dbc"},
	{magic: "OggS", ext: ".ogg"},
	{magic: "BLSG", ext: ".bls"},
	{magic: "GXBC", ext: ".bls"},
	{magic: "REVM", chunk: map[string]string{
		"DHOM": ".wmo",
		"PGOM": ".wmo",
		"RDHM": ".adt",
		"DHPM": ".wdt",
		"RDHL": ".wdl",
		"XETM": ".adt",
		"DDLM": ".adt",
	}},
}

// Extension classifies header, the leading bytes of a file. It returns the
// extension with its dot, or "" when nothing matched.
func Extension(header []byte) string {
	if len(header) >= 4 {
		magic := string(header[:4])
		for _, s := range signatures {
			if s.magic != magic {
				continue
			}
			if s.chunk == nil {
				return s.ext
			}
			if len(header) >= 16 {
				if ext, ok := s.chunk[string(header[12:16])]; ok {
					return ext
				}
			}
			return ""
		}
	}

	if len(header) == 0 {
		return ""
	}
	mt := mimetype.Detect(header)
	if mt.Is("application/octet-stream") || mt.Is("text/plain") {
		return ""
	}
	return mt.Extension()
}

// Detect reads up to HeaderSize bytes from r and classifies them. The
// bytes read are returned so callers can keep consuming the stream.
func Detect(r io.Reader) (string, []byte, error) {
	header := make([]byte, HeaderSize)
	n, err := io.ReadFull(r, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", nil, fmt.Errorf("read header: %w", err)
	}
	header = header[:n]
	return Extension(header), header, nil
}

// M2Name reads the model name embedded in an M2 file.
//
// The int32 at 0x14 of a chunked (MD21) file is the name offset relative
// to the MD20 block, which starts 8 bytes in. A zero offset means the
// model carries no name; found is false in that case.
func M2Name(data []byte) (name string, found bool, err error) {
	if len(data) < 4 {
		return "", false, ErrTruncated
	}

	nameField, base := 0x14, 8
	if string(data[:4]) == "MD20" {
		nameField, base = 0x0C, 0
	}
	if len(data) < nameField+4 {
		return "", false, ErrTruncated
	}

	offs := int32(binary.LittleEndian.Uint32(data[nameField:]))
	if offs == 0 {
		return "", false, nil
	}

	pos := int(offs) + base
	if offs < 0 || pos >= len(data) {
		return "", false, fmt.Errorf("%w: name offset %d outside %d bytes", ErrTruncated, offs, len(data))
	}
	end := bytes.IndexByte(data[pos:], 0)
	if end < 0 {
		end = len(data) - pos
	}
	return string(data[pos : pos+end]), true, nil
}
