// Package preview renders a short textual preview of catalog files.
//
// Handlers are tagged with the extensions they understand. Lookup matches
// extensions case-insensitively and falls back to the default handler,
// registered with no extensions, when no tag matches.
package preview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"slices"
	"strings"
	"sync"

	"github.com/marmos91/cascview/internal/logger"
	"github.com/marmos91/cascview/pkg/catalog"
	"github.com/marmos91/cascview/pkg/storage"
)

// MaxPreviewBytes bounds how much of a file a handler is given.
const MaxPreviewBytes = 64 * 1024

// Preview is what a handler produces.
type Preview struct {
	// Handler is the name of the handler that produced the preview
	Handler string

	// MIME is the detected media type, when the handler detects one
	MIME string

	// Lines is the rendered body
	Lines []string

	// Truncated is set when the file was longer than MaxPreviewBytes
	Truncated bool
}

// Handler renders one kind of file.
type Handler interface {
	Name() string

	// Render reads at most MaxPreviewBytes from r. name is the file's
	// base name.
	Render(ctx context.Context, name string, r io.Reader) (Preview, error)
}

// Registry maps extensions to handlers.
//
// Thread Safety:
// Safe for concurrent use; registration normally happens once at startup.
type Registry struct {
	mu       sync.RWMutex
	byExt    map[string]Handler
	fallback Handler
}

// NewRegistry returns a registry with no handlers.
func NewRegistry() *Registry {
	return &Registry{byExt: make(map[string]Handler)}
}

// DefaultRegistry returns a registry with the built-in handlers: text
// formats, models, and a hex dump for everything else.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(Text{}, ".txt", ".xml", ".lua", ".toc", ".ini", ".json", ".htm", ".html", ".wtf", ".xsd", ".sbt")
	r.Register(Model{}, ".m2")
	r.Register(Hex{})
	return r
}

func extKey(ext string) string {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// Register tags h with exts. With no extensions h becomes the default
// handler. A later registration for the same extension replaces the
// earlier one.
func (r *Registry) Register(h Handler, exts ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(exts) == 0 {
		r.fallback = h
		return
	}
	for _, ext := range exts {
		r.byExt[extKey(ext)] = h
	}
}

// Lookup returns the handler for ext, the default handler when none is
// tagged with it, or false when there is no default either.
func (r *Registry) Lookup(ext string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if h, ok := r.byExt[extKey(ext)]; ok {
		return h, true
	}
	if r.fallback != nil {
		return r.fallback, true
	}
	return nil, false
}

// Extensions returns the tagged extensions, sorted.
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exts := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		exts = append(exts, ext)
	}
	slices.Sort(exts)
	return exts
}

// ErrNoHandler is returned when neither a tagged nor a default handler
// exists for a file.
var ErrNoHandler = errors.New("no preview handler")

// Render opens f in b and dispatches it by extension.
func (r *Registry) Render(ctx context.Context, b storage.Backend, f *catalog.File) (Preview, error) {
	name := f.Name()
	ext := path.Ext(name)
	h, ok := r.Lookup(ext)
	if !ok {
		return Preview{}, fmt.Errorf("%s: %w", f.FullPath(), ErrNoHandler)
	}

	rc, err := b.OpenFile(ctx, f.Hash())
	if err != nil {
		return Preview{}, fmt.Errorf("open %s: %w", f.FullPath(), err)
	}
	defer rc.Close()

	lr := &limitedReader{r: rc, n: MaxPreviewBytes}
	p, err := h.Render(ctx, name, lr)
	if err != nil {
		logger.Debug("Preview of %s with %s failed: %v", f.FullPath(), h.Name(), err)
		return Preview{}, fmt.Errorf("preview %s: %w", f.FullPath(), err)
	}
	p.Handler = h.Name()
	p.Truncated = p.Truncated || lr.truncated()
	return p, nil
}

// limitedReader is io.LimitReader that can tell whether bytes were left
// behind.
type limitedReader struct {
	r    io.Reader
	n    int64
	over bool
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.n <= 0 {
		var probe [1]byte
		if n, _ := l.r.Read(probe[:]); n > 0 {
			l.over = true
		}
		return 0, io.EOF
	}
	if int64(len(p)) > l.n {
		p = p[:l.n]
	}
	n, err := l.r.Read(p)
	l.n -= int64(n)
	return n, err
}

func (l *limitedReader) truncated() bool { return l.over }
