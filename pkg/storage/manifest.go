package storage

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"strconv"
	"strings"

	"github.com/marmos91/cascview/internal/logger"
	"github.com/marmos91/cascview/pkg/catalog"
)

// Manifest file names, relative to the backend root.
const (
	RootFile     = "root.txt"
	ListFile     = "listfile.csv"
	InstallFile  = "install.txt"
	BuildFile    = "build.txt"
	ObjectsDir   = "objects"
	noID         = -1
	commentMark  = "#"
	fieldSep     = ";"
	tagSeparator = ","
)

// ObjectKey returns the relative location of the bytes of hash:
// objects/<first two hex digits>/<hash>.
func ObjectKey(hash catalog.Hash) string {
	h := hash.String()
	return ObjectsDir + "/" + h[:2] + "/" + h
}

type rootRow struct {
	hash  catalog.Hash
	entry catalog.RootEntry
}

type nameRow struct {
	hash catalog.Hash
	path string
}

// Manifest holds the enumerations a backend publishes: root entries,
// names, numeric ids and the install manifest.
//
// The manifest is read-only once loaded; backends embed it to satisfy the
// enumeration half of Backend plus IDResolver, PathResolver, BuildInfo
// and catalog.InstallSource.
type Manifest struct {
	build      string
	roots      []rootRow
	entries    map[catalog.Hash][]catalog.RootEntry
	names      []nameRow
	idToHash   map[int32]catalog.Hash
	hashToID   map[catalog.Hash]int32
	pathToHash map[string]catalog.Hash
	install    []catalog.InstallEntry
}

// NewManifest returns an empty manifest.
func NewManifest() *Manifest {
	return &Manifest{
		entries:    make(map[catalog.Hash][]catalog.RootEntry),
		idToHash:   make(map[int32]catalog.Hash),
		hashToID:   make(map[catalog.Hash]int32),
		pathToHash: make(map[string]catalog.Hash),
	}
}

func pathKey(path string) string {
	return strings.ToUpper(catalog.NormalizePath(path))
}

// AddRoot publishes a variant of hash. A negative id means none.
func (m *Manifest) AddRoot(hash catalog.Hash, id int32, entry catalog.RootEntry) {
	m.roots = append(m.roots, rootRow{hash: hash, entry: entry})
	m.entries[hash] = append(m.entries[hash], entry)
	if id >= 0 {
		m.idToHash[id] = hash
		m.hashToID[hash] = id
	}
}

// AddName publishes path for hash.
func (m *Manifest) AddName(hash catalog.Hash, path string) {
	m.names = append(m.names, nameRow{hash: hash, path: path})
	m.pathToHash[pathKey(path)] = hash
}

// AddInstall publishes an install manifest entry.
func (m *Manifest) AddInstall(e catalog.InstallEntry) {
	m.install = append(m.install, e)
}

// SetBuild records the build name.
func (m *Manifest) SetBuild(name string) { m.build = name }

// RootEntries enumerates root entries in manifest order.
func (m *Manifest) RootEntries() iter.Seq2[catalog.Hash, catalog.RootEntry] {
	return func(yield func(catalog.Hash, catalog.RootEntry) bool) {
		for _, r := range m.roots {
			if !yield(r.hash, r.entry) {
				return
			}
		}
	}
}

// Names enumerates names in manifest order.
func (m *Manifest) Names() iter.Seq2[catalog.Hash, string] {
	return func(yield func(catalog.Hash, string) bool) {
		for _, n := range m.names {
			if !yield(n.hash, n.path) {
				return
			}
		}
	}
}

// GetEntries returns every variant of hash.
func (m *Manifest) GetEntries(hash catalog.Hash) []catalog.RootEntry {
	return append([]catalog.RootEntry(nil), m.entries[hash]...)
}

// Contains reports whether hash has at least one root entry.
func (m *Manifest) Contains(hash catalog.Hash) bool {
	return len(m.entries[hash]) > 0
}

func (m *Manifest) IDOf(hash catalog.Hash) (int32, bool) {
	id, ok := m.hashToID[hash]
	return id, ok
}

func (m *Manifest) HashOf(id int32) (catalog.Hash, bool) {
	h, ok := m.idToHash[id]
	return h, ok
}

func (m *Manifest) HashOfPath(path string) (catalog.Hash, bool) {
	h, ok := m.pathToHash[pathKey(path)]
	return h, ok
}

func (m *Manifest) BuildName() string { return m.build }

// InstallEntries returns the install entries carrying every tag in tags
// (case-insensitive). No tags selects all entries.
func (m *Manifest) InstallEntries(tags ...string) []catalog.InstallEntry {
	var out []catalog.InstallEntry
	for _, e := range m.install {
		if hasTags(e.Tags, tags) {
			out = append(out, e)
		}
	}
	return out
}

func hasTags(have, want []string) bool {
	for _, w := range want {
		found := false
		for _, h := range have {
			if strings.EqualFold(h, w) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// ============================================================================
// Parsing
// ============================================================================

// OpenFunc opens a manifest file by name. It must return an error wrapping
// ErrNotFound for a missing file.
type OpenFunc func(ctx context.Context, name string) (io.ReadCloser, error)

// LoadManifest reads root.txt and listfile.csv (required) and install.txt
// and build.txt (optional) through open.
func LoadManifest(ctx context.Context, open OpenFunc) (*Manifest, error) {
	m := NewManifest()

	steps := []struct {
		name     string
		required bool
		parse    func(io.Reader) error
	}{
		{RootFile, true, m.ParseRoot},
		{ListFile, true, m.ParseListfile},
		{InstallFile, false, m.ParseInstall},
		{BuildFile, false, m.parseBuild},
	}

	for _, step := range steps {
		rc, err := open(ctx, step.name)
		if err != nil {
			if !step.required && errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("open %s: %w", step.name, err)
		}
		err = step.parse(rc)
		_ = rc.Close()
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", step.name, err)
		}
	}

	logger.Info("Manifest loaded: %d root entries, %d names, %d install entries, build %q",
		len(m.roots), len(m.names), len(m.install), m.build)
	return m, nil
}

// lines yields the trimmed, non-empty, non-comment lines of r with their
// 1-based line numbers.
func lines(r io.Reader, fn func(n int, line string) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, commentMark) {
			continue
		}
		if err := fn(n, line); err != nil {
			return err
		}
	}
	return sc.Err()
}

// ParseRoot reads "hash;id;locale;content" lines. hash is hexadecimal, id
// is decimal or empty, locale is a number or '|'-separated locale names,
// content is a number.
func (m *Manifest) ParseRoot(r io.Reader) error {
	return lines(r, func(n int, line string) error {
		parts := strings.Split(line, fieldSep)
		if len(parts) != 4 {
			return fmt.Errorf("%w: line %d: want 4 fields, got %d", ErrInvalidManifest, n, len(parts))
		}

		hash, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 16, 64)
		if err != nil {
			return fmt.Errorf("%w: line %d: hash: %v", ErrInvalidManifest, n, err)
		}

		id := int64(noID)
		if s := strings.TrimSpace(parts[1]); s != "" {
			if id, err = strconv.ParseInt(s, 10, 32); err != nil {
				return fmt.Errorf("%w: line %d: id: %v", ErrInvalidManifest, n, err)
			}
		}

		locale, err := parseLocale(strings.TrimSpace(parts[2]))
		if err != nil {
			return fmt.Errorf("%w: line %d: locale: %v", ErrInvalidManifest, n, err)
		}

		content, err := strconv.ParseUint(strings.TrimSpace(parts[3]), 0, 32)
		if err != nil {
			return fmt.Errorf("%w: line %d: content: %v", ErrInvalidManifest, n, err)
		}

		m.AddRoot(catalog.Hash(hash), int32(id), catalog.RootEntry{
			LocaleFlags:  locale,
			ContentFlags: catalog.ContentFlags(content),
		})
		return nil
	})
}

func parseLocale(s string) (catalog.LocaleFlags, error) {
	if v, err := strconv.ParseUint(s, 0, 32); err == nil {
		return catalog.LocaleFlags(v), nil
	}
	return catalog.ParseLocales(strings.ReplaceAll(s, "|", ","))
}

// ParseListfile reads "id;path" or bare "path" lines. An id line names the
// hash published under that id; a bare path is keyed by catalog.HashPath.
// Ids absent from the root are skipped.
func (m *Manifest) ParseListfile(r io.Reader) error {
	skipped := 0
	err := lines(r, func(n int, line string) error {
		idPart, path, hasID := strings.Cut(line, fieldSep)
		if !hasID {
			m.AddName(catalog.HashPath(line), line)
			return nil
		}

		id, err := strconv.ParseInt(strings.TrimSpace(idPart), 10, 32)
		if err != nil {
			return fmt.Errorf("%w: line %d: id: %v", ErrInvalidManifest, n, err)
		}
		hash, ok := m.HashOf(int32(id))
		if !ok {
			skipped++
			return nil
		}
		m.AddName(hash, strings.TrimSpace(path))
		return nil
	})
	if skipped > 0 {
		logger.Debug("Listfile: %d names skipped (id not in root)", skipped)
	}
	return err
}

// ParseInstall reads "name;hash;tag,tag" lines.
func (m *Manifest) ParseInstall(r io.Reader) error {
	return lines(r, func(n int, line string) error {
		parts := strings.Split(line, fieldSep)
		if len(parts) < 2 || len(parts) > 3 {
			return fmt.Errorf("%w: line %d: want 2 or 3 fields, got %d", ErrInvalidManifest, n, len(parts))
		}
		hash, err := strconv.ParseUint(strings.TrimSpace(parts[1]), 16, 64)
		if err != nil {
			return fmt.Errorf("%w: line %d: hash: %v", ErrInvalidManifest, n, err)
		}

		e := catalog.InstallEntry{Name: strings.TrimSpace(parts[0]), Hash: catalog.Hash(hash)}
		if len(parts) == 3 {
			for _, tag := range strings.Split(parts[2], tagSeparator) {
				if tag = strings.TrimSpace(tag); tag != "" {
					e.Tags = append(e.Tags, tag)
				}
			}
		}
		m.AddInstall(e)
		return nil
	})
}

func (m *Manifest) parseBuild(r io.Reader) error {
	return lines(r, func(_ int, line string) error {
		if m.build == "" {
			m.build = line
		}
		return nil
	})
}
