package catalog

import (
	"context"
	"iter"
	"sort"
	"strings"
	"sync"

	"github.com/marmos91/cascview/internal/logger"
)

// Source is the part of the storage backend the catalog consumes.
//
// RootEntries and Names must enumerate in a stable order: when two hashes
// compete for one path with equal priority, the later one wins.
type Source interface {
	// RootEntries enumerates every (hash, variant) association
	RootEntries() iter.Seq2[Hash, RootEntry]

	// Names enumerates the known (hash, full path) associations
	Names() iter.Seq2[Hash, string]

	// GetEntries returns every variant published for hash
	GetEntries(hash Hash) []RootEntry

	// GetFileSize returns the content size for hash
	GetFileSize(ctx context.Context, hash Hash) (uint64, error)
}

// InstallEntry is a file listed by the install manifest.
type InstallEntry struct {
	Name string
	Hash Hash
	Tags []string
}

// InstallSource is implemented by sources that carry an install manifest.
// Its entries are merged into the tree after every build.
type InstallSource interface {
	InstallEntries(tags ...string) []InstallEntry
}

// BuildOptions select which variants the tree exposes.
type BuildOptions struct {
	// Locales keeps root entries whose locale flags intersect this set
	Locales LocaleFlags

	// OverrideArchive lets ContentOverride entries win over normal entries
	// at the same path. When false the normal entry wins.
	OverrideArchive bool

	// PreferHighRes lets ContentHighRes entries win ties between resolution
	// variants of the same path. When false the regular variant wins.
	PreferHighRes bool
}

// rank orders competing hashes at one path. Higher wins; equal ranks are
// settled by enumeration order (last writer wins).
func (o BuildOptions) rank(flags ContentFlags) int {
	r := 0
	if flags.Has(ContentOverride) {
		if o.OverrideArchive {
			r += 2
		} else {
			r -= 2
		}
	}
	if flags.Has(ContentHighRes) {
		if o.PreferHighRes {
			r++
		} else {
			r--
		}
	}
	return r
}

// Counts are the status counters of the current tree.
type Counts struct {
	// Files is the number of File objects in the registry
	Files int

	// Unknown is the number of files still carrying a synthetic name
	Unknown int
}

// Catalog owns the folder/file hierarchy built from a Source.
//
// Thread Safety:
// All methods are safe for concurrent use. A resolution pass takes the
// exclusive lock through Acquire; while it is held, queries fail with
// ErrBusy and public mutations fail with ErrReadOnly. Rebuild holds the
// internal mutex for its whole duration, so concurrent queries wait for it.
//
// Lifecycle:
// The tree is built once per session and rebuilt from scratch whenever the
// build options change. A rebuild bumps the generation; folders and views
// from the previous generation are rejected with ErrStaleView.
type Catalog struct {
	mu        sync.Mutex
	exclusive bool

	source     Source
	opts       BuildOptions
	generation uint64

	root         *Folder
	registry     *Registry
	unknownCount int

	// built holds every hash the registry owned after the last build, plus
	// hashes added since. Verify reports any that lost all their files.
	built map[Hash]struct{}
}

// New builds a catalog over source.
func New(source Source, opts BuildOptions) *Catalog {
	c := &Catalog{source: source}
	c.rebuildLocked(opts)
	return c
}

// Rebuild discards the current tree and derives a new one for opts.
func (c *Catalog) Rebuild(ctx context.Context, opts BuildOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.exclusive {
		return newError(ErrReadOnly, "cannot rebuild while a resolution pass is running", "")
	}

	c.rebuildLocked(opts)
	return nil
}

func (c *Catalog) rebuildLocked(opts BuildOptions) {
	b := &builder{
		gen:      c.generation + 1,
		registry: newRegistry(),
	}
	b.root = newFolder("root", "", b.gen)
	b.build(c.source, opts)

	c.generation = b.gen
	c.opts = opts
	c.root = b.root
	c.registry = b.registry
	c.unknownCount = b.unknown
	c.built = make(map[Hash]struct{}, len(b.registry.files))
	for h := range b.registry.files {
		c.built[h] = struct{}{}
	}

	logger.Info("Catalog built: %d files (%d names missing), locales=%s override=%t highres=%t",
		c.registry.Len(), c.unknownCount, opts.Locales, opts.OverrideArchive, opts.PreferHighRes)
}

// Options returns the options the current tree was built with.
func (c *Catalog) Options() BuildOptions {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opts
}

// Generation identifies the current tree. It changes on every rebuild.
func (c *Catalog) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// Root returns the root folder.
func (c *Catalog) Root() (*Folder, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.readableLocked(); err != nil {
		return nil, err
	}
	return c.root, nil
}

// Counts returns the status counters.
func (c *Catalog) Counts() (Counts, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.readableLocked(); err != nil {
		return Counts{}, err
	}
	return Counts{Files: c.registry.Len(), Unknown: c.unknownCount}, nil
}

// AddFile inserts or renames the file for hash at fullPath.
func (c *Catalog) AddFile(fullPath string, hash Hash) (*File, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.exclusive {
		return nil, newError(ErrReadOnly, "cannot modify the catalog while a resolution pass is running", fullPath)
	}

	return c.placeLocked(fullPath, hash, false)
}

// placeLocked moves the primary file of hash to fullPath, or inserts a new
// one. On a naming conflict the file stays where it was.
func (c *Catalog) placeLocked(fullPath string, hash Hash, unknown bool) (*File, error) {
	prev, existed := c.registry.Lookup(hash)
	if existed {
		return prev, c.moveLocked(prev, fullPath, unknown)
	}

	b := &builder{gen: c.generation, root: c.root, registry: c.registry}
	defer func() { c.unknownCount += b.unknown }()

	folder, name, norm, err := b.prepare(fullPath)
	if err != nil {
		return nil, err
	}
	if err := checkFree(folder, name, norm, nil); err != nil {
		return nil, err
	}

	f := b.registry.upsert(hash, norm, unknown)
	b.attach(folder, name, f)
	c.built[hash] = struct{}{}
	if unknown {
		b.unknown++
	}
	return f, nil
}

// moveLocked re-homes f at fullPath. On failure f stays where it was.
func (c *Catalog) moveLocked(f *File, fullPath string, unknown bool) error {
	b := &builder{gen: c.generation, root: c.root, registry: c.registry}
	defer func() { c.unknownCount += b.unknown }()

	oldParent, oldKey, attached := findParent(c.root, f)
	folder, name, norm, err := b.prepare(fullPath)
	if err != nil {
		return err
	}
	if err := checkFree(folder, name, norm, f); err != nil {
		return err
	}

	if attached {
		delete(oldParent.files, oldKey)
	}
	if f.unknown {
		b.unknown--
	}
	f.fullPath = norm
	f.unknown = unknown
	if unknown {
		b.unknown++
	}
	b.attach(folder, name, f)
	return nil
}

// LookupPath finds the entry at path (case-insensitive).
func (c *Catalog) LookupPath(path string) (Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.readableLocked(); err != nil {
		return nil, err
	}
	return lookupPath(c.root, path)
}

// Snapshot returns every registry File ordered by hash.
func (c *Catalog) Snapshot() ([]*File, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.readableLocked(); err != nil {
		return nil, err
	}
	out := make([]*File, 0, c.registry.Len())
	for f := range c.registry.Files() {
		out = append(out, f)
	}
	return out, nil
}

func (c *Catalog) readableLocked() error {
	if c.exclusive {
		return newError(ErrBusy, "catalog is locked by a running pass", "")
	}
	return nil
}

func (c *Catalog) checkFolderLocked(f *Folder) error {
	if f == nil {
		return newError(ErrInvalidArgument, "nil folder", "")
	}
	if f.gen != c.generation {
		return newError(ErrStaleView, "folder belongs to a discarded tree", f.fullPath)
	}
	return nil
}

func lookupPath(root *Folder, path string) (Entry, error) {
	parts := SplitPath(path)
	if len(parts) == 0 {
		return root, nil
	}

	folder := root
	for _, seg := range parts[:len(parts)-1] {
		sub, ok := folder.Folder(seg)
		if !ok {
			return nil, newError(ErrNotFound, "path not found", path)
		}
		folder = sub
	}

	// a file and a folder may share a name in different case; the exact
	// spelling wins, folders first otherwise
	name := parts[len(parts)-1]
	sub, hasFolder := folder.Folder(name)
	file, hasFile := folder.File(name)
	switch {
	case hasFolder && sub.name == name:
		return sub, nil
	case hasFile && file.Name() == name:
		return file, nil
	case hasFolder:
		return sub, nil
	case hasFile:
		return file, nil
	}
	return nil, newError(ErrNotFound, "path not found", path)
}

// findParent locates the folder and map key holding f.
func findParent(root *Folder, f *File) (*Folder, string, bool) {
	if root == nil {
		return nil, "", false
	}

	parentPath := ""
	if i := strings.LastIndex(f.fullPath, PathSeparator); i >= 0 {
		parentPath = f.fullPath[:i]
	}
	if e, err := lookupPath(root, parentPath); err == nil {
		if folder, ok := e.(*Folder); ok {
			if cur, ok := folder.files[nameKey(f.Name())]; ok && cur == f {
				return folder, nameKey(f.Name()), true
			}
			for key, cur := range folder.files {
				if cur == f {
					return folder, key, true
				}
			}
		}
	}

	var (
		found  *Folder
		keyOut string
	)
	var search func(folder *Folder) bool
	search = func(folder *Folder) bool {
		for key, cur := range folder.files {
			if cur == f {
				found, keyOut = folder, key
				return true
			}
		}
		for _, sub := range folder.folders {
			if search(sub) {
				return true
			}
		}
		return false
	}
	search(root)
	return found, keyOut, found != nil
}

// ============================================================================
// Builder
// ============================================================================

type builder struct {
	gen      uint64
	root     *Folder
	registry *Registry
	unknown  int
}

type pathCandidate struct {
	hash Hash
	path string
	rank int
}

func (b *builder) build(source Source, opts BuildOptions) {
	// Step 1: merge the variants visible under the requested locales
	visible := make(map[Hash]RootEntry)
	for hash, e := range source.RootEntries() {
		if !e.LocaleFlags.Intersects(opts.Locales) {
			continue
		}
		m := visible[hash]
		m.LocaleFlags |= e.LocaleFlags
		m.ContentFlags |= e.ContentFlags
		visible[hash] = m
	}

	// Step 2: one path per hash (the last name seen wins)
	type named struct {
		hash Hash
		path string
	}
	var names []named
	nameIndex := make(map[Hash]int)
	for hash, path := range source.Names() {
		if _, ok := visible[hash]; !ok {
			continue
		}
		norm := NormalizePath(path)
		if norm == "" {
			continue
		}
		if i, ok := nameIndex[hash]; ok {
			names[i].path = norm
			continue
		}
		nameIndex[hash] = len(names)
		names = append(names, named{hash: hash, path: norm})
	}

	// Step 3: one hash per path by priority
	winners := make(map[string]pathCandidate)
	var order []string

	for _, n := range names {
		hash, norm := n.hash, n.path
		flags := visible[hash]

		key := strings.ToLower(norm)
		cand := pathCandidate{hash: hash, path: norm, rank: opts.rank(flags.ContentFlags)}
		cur, exists := winners[key]
		if !exists {
			order = append(order, key)
			winners[key] = cand
			continue
		}
		if cand.rank >= cur.rank {
			winners[key] = cand
		}
	}

	for _, key := range order {
		w := winners[key]
		_, _ = b.insert(w.path, w.hash, false)
	}

	// Step 4: everything visible without a name goes to the unknown folder
	var unnamed []Hash
	for hash := range visible {
		if _, ok := nameIndex[hash]; !ok {
			unnamed = append(unnamed, hash)
		}
	}
	sort.Slice(unnamed, func(i, j int) bool { return unnamed[i] < unnamed[j] })
	for _, hash := range unnamed {
		if _, err := b.insert(UnknownFolderName+PathSeparator+hash.String(), hash, true); err == nil {
			b.unknown++
		}
	}

	// Step 5: install manifest entries not already present
	if install, ok := source.(InstallSource); ok {
		for _, e := range install.InstallEntries() {
			if _, exists := b.registry.Lookup(e.Hash); exists {
				continue
			}
			if _, err := lookupPath(b.root, e.Name); err == nil {
				continue
			}
			_, _ = b.insert(e.Name, e.Hash, false)
		}
	}
}

// insert places hash at fullPath, creating intermediate folders.
//
// A segment colliding with an entry of the other kind under the exact same
// spelling is a naming conflict: it is logged and the insertion is dropped.
func (b *builder) insert(fullPath string, hash Hash, unknown bool) (*File, error) {
	folder, name, norm, err := b.prepare(fullPath)
	if err != nil {
		return nil, err
	}

	file := b.registry.upsert(hash, norm, unknown)
	b.attach(folder, name, file)
	return file, nil
}

// prepare walks fullPath, creating missing folders, and returns the parent
// folder, the base name and the normalized path.
func (b *builder) prepare(fullPath string) (*Folder, string, string, error) {
	parts := SplitPath(fullPath)
	if len(parts) == 0 {
		return nil, "", "", newError(ErrInvalidArgument, "empty path", fullPath)
	}
	norm := strings.Join(parts, PathSeparator)

	folder := b.root
	for i, seg := range parts[:len(parts)-1] {
		if f, ok := folder.files[nameKey(seg)]; ok && f.Name() == seg {
			logger.Warn("Naming conflict: folder %q collides with file %q, dropping %s",
				seg, f.FullPath(), norm)
			return nil, "", "", newError(ErrNamingConflict, "folder segment collides with a file", norm)
		}
		sub, ok := folder.folders[nameKey(seg)]
		if !ok {
			sub = newFolder(seg, strings.Join(parts[:i+1], PathSeparator), b.gen)
			folder.folders[nameKey(seg)] = sub
			folder.children = nil
			folder.expanded = false
		}
		folder = sub
	}

	name := parts[len(parts)-1]
	if sub, ok := folder.folders[nameKey(name)]; ok && sub.name == name {
		logger.Warn("Naming conflict: file %q collides with folder %q, dropping", norm, sub.FullPath())
		return nil, "", "", newError(ErrNamingConflict, "file collides with a folder", norm)
	}
	return folder, name, norm, nil
}

// checkFree fails with ErrNamingConflict when a file other than self
// already holds name in folder. Only the build may displace files.
func checkFree(folder *Folder, name, norm string, self *File) error {
	prev, ok := folder.files[nameKey(name)]
	if !ok || prev == self {
		return nil
	}
	logger.Warn("Naming conflict: %s is held by %s, dropping %s", prev.FullPath(), prev.Hash(), norm)
	return newError(ErrNamingConflict, "path already taken", norm)
}

// attach stores file under name. A different file already stored there is
// displaced and dropped from the registry.
func (b *builder) attach(folder *Folder, name string, file *File) {
	key := nameKey(name)
	if prev, ok := folder.files[key]; ok && prev != file {
		logger.Debug("Replacing %s (%s) with %s", prev.FullPath(), prev.Hash(), file.Hash())
		b.registry.replace(prev, nil)
		if prev.unknown {
			b.unknown--
		}
	}
	folder.files[key] = file
}
