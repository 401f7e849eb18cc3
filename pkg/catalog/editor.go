package catalog

import (
	"strings"
)

// Editor is the exclusive handle a resolution pass mutates the tree through.
//
// While an Editor is held, Catalog queries fail with ErrBusy and Catalog
// mutations fail with ErrReadOnly. Every Editor operation completes or
// fails as a whole before returning, so a pass that aborts half-way leaves
// a consistent, partially resolved tree.
type Editor struct {
	c        *Catalog
	released bool
}

// Acquire takes the exclusive lock. It fails with ErrBusy when another
// pass already holds it.
func (c *Catalog) Acquire() (*Editor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.exclusive {
		return nil, newError(ErrBusy, "another pass holds the catalog", "")
	}
	c.exclusive = true
	return &Editor{c: c}, nil
}

// Release gives the exclusive lock back. Calling it more than once is a no-op.
func (e *Editor) Release() {
	e.c.mu.Lock()
	defer e.c.mu.Unlock()

	if e.released {
		return
	}
	e.released = true
	e.c.exclusive = false
}

func (e *Editor) check() error {
	if e.released {
		return newError(ErrInvalidArgument, "editor already released", "")
	}
	return nil
}

// UnknownFiles returns every file in the unknown folder that still carries
// a synthetic name, in path order.
func (e *Editor) UnknownFiles() []*File {
	e.c.mu.Lock()
	defer e.c.mu.Unlock()

	unknown, ok := e.c.root.Folder(UnknownFolderName)
	if !ok || e.released {
		return nil
	}

	var out []*File
	unknown.walkFiles(func(_ *Folder, f *File) bool {
		if f.unknown {
			out = append(out, f)
		}
		return true
	})
	return out
}

// LookupPath is LookupPath for the lock holder.
func (e *Editor) LookupPath(path string) (Entry, error) {
	e.c.mu.Lock()
	defer e.c.mu.Unlock()

	if err := e.check(); err != nil {
		return nil, err
	}
	return lookupPath(e.c.root, path)
}

// Rename re-homes f at fullPath. A resolved file stops counting as unknown;
// an unresolved one (an extension appended by sniffing) keeps its flag.
//
// The registry owns f, so every position reaching its hash observes the
// new name.
func (e *Editor) Rename(f *File, fullPath string, resolved bool) error {
	e.c.mu.Lock()
	defer e.c.mu.Unlock()

	if err := e.check(); err != nil {
		return err
	}
	if !e.c.ownsLocked(f) {
		return newError(ErrNotFound, "file is not part of the catalog", f.FullPath())
	}
	return e.c.moveLocked(f, fullPath, !resolved)
}

// Split replaces f with one new File per path, all sharing f's hash.
//
// Paths are de-duplicated case-insensitively. A path hitting a naming
// conflict, including a path another file already holds, is dropped and
// returned in dropped. When every path is dropped, f stays untouched and
// the last conflict is returned. On success f is removed from the tree and
// the registry and the new files are returned in path order.
func (e *Editor) Split(f *File, paths []string) (created []*File, dropped []string, err error) {
	c := e.c
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := e.check(); err != nil {
		return nil, nil, err
	}
	if !c.ownsLocked(f) {
		return nil, nil, newError(ErrNotFound, "file is not part of the catalog", f.FullPath())
	}
	if len(paths) == 0 {
		return nil, nil, newError(ErrInvalidArgument, "split needs at least one path", f.FullPath())
	}

	b := &builder{gen: c.generation, root: c.root, registry: c.registry}
	defer func() { c.unknownCount += b.unknown }()

	oldParent, oldKey, attached := findParent(c.root, f)
	if attached {
		delete(oldParent.files, oldKey)
	}

	seen := make(map[string]bool, len(paths))
	created = make([]*File, 0, len(paths))
	var lastErr error
	for _, p := range paths {
		key := strings.ToLower(NormalizePath(p))
		if seen[key] {
			continue
		}
		seen[key] = true

		folder, name, norm, err := b.prepare(p)
		if err == nil {
			err = checkFree(folder, name, norm, nil)
		}
		if err != nil {
			lastErr = err
			dropped = append(dropped, NormalizePath(p))
			continue
		}
		nf := &File{hash: f.hash, fullPath: norm}
		b.attach(folder, name, nf)
		created = append(created, nf)
	}

	if len(created) == 0 {
		if attached {
			oldParent.files[oldKey] = f
		}
		if lastErr == nil {
			lastErr = newError(ErrInvalidArgument, "split produced no file", f.FullPath())
		}
		return nil, dropped, lastErr
	}

	c.registry.replace(f, created)
	if f.unknown {
		b.unknown--
	}
	return created, dropped, nil
}

// ownsLocked reports whether f is still owned by the registry.
func (c *Catalog) ownsLocked(f *File) bool {
	if f == nil {
		return false
	}
	for _, cur := range c.registry.files[f.hash] {
		if cur == f {
			return true
		}
	}
	return false
}
