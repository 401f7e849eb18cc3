package preview

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/marmos91/cascview/pkg/sniff"
)

// MaxTextLines caps the body of a text preview.
const MaxTextLines = 200

// hexDumpBytes is how much of a file the hex preview shows.
const hexDumpBytes = 512

// Text shows the leading lines of a text file.
type Text struct{}

func (Text) Name() string { return "text" }

func (Text) Render(_ context.Context, _ string, r io.Reader) (Preview, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Preview{}, err
	}
	if !utf8.Valid(data) {
		data = []byte(strings.ToValidUTF8(string(data), "\uFFFD"))
	}

	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	text = strings.TrimPrefix(text, "\uFEFF")
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")

	p := Preview{MIME: "text/plain"}
	if len(lines) > MaxTextLines {
		lines = lines[:MaxTextLines]
		p.Truncated = true
	}
	p.Lines = lines
	return p, nil
}

// Model shows the name embedded in an M2 model header.
type Model struct{}

func (Model) Name() string { return "model" }

func (Model) Render(_ context.Context, name string, r io.Reader) (Preview, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Preview{}, err
	}

	p := Preview{MIME: "application/octet-stream"}
	embedded, found, err := sniff.M2Name(data)
	switch {
	case err != nil:
		p.Lines = []string{fmt.Sprintf("%s: unreadable model header: %v", name, err)}
	case found:
		p.Lines = []string{fmt.Sprintf("Model: %s", embedded)}
	default:
		p.Lines = []string{fmt.Sprintf("%s: model carries no name", name)}
	}
	p.Lines = append(p.Lines, fmt.Sprintf("Header: %s", humanize.Bytes(uint64(len(data)))))
	return p, nil
}

// Hex is the default handler: detected media type, then a hex dump of
// the first bytes.
type Hex struct{}

func (Hex) Name() string { return "hex" }

func (Hex) Render(_ context.Context, _ string, r io.Reader) (Preview, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Preview{}, err
	}

	p := Preview{MIME: mimetype.Detect(data).String()}
	if ext := sniff.Extension(data); ext != "" {
		p.Lines = append(p.Lines, "Detected: "+ext)
	}

	shown := data
	if len(shown) > hexDumpBytes {
		shown = shown[:hexDumpBytes]
		p.Truncated = true
	}
	dump := strings.TrimRight(hex.Dump(shown), "\n")
	if dump != "" {
		p.Lines = append(p.Lines, strings.Split(dump, "\n")...)
	}
	return p, nil
}
