package catalog

import (
	"iter"
	"sort"
)

// Registry is the single ownership point for File objects, keyed by hash.
//
// A hash normally owns one File. After a split, the same hash owns one File
// per inferred path; the first File in the slice is the primary one.
//
// The Registry is not safe for concurrent use on its own; the Catalog
// guards it.
type Registry struct {
	files map[Hash][]*File
	count int
}

func newRegistry() *Registry {
	return &Registry{files: make(map[Hash][]*File)}
}

// Lookup returns the primary File for hash.
func (r *Registry) Lookup(hash Hash) (*File, bool) {
	files := r.files[hash]
	if len(files) == 0 {
		return nil, false
	}
	return files[0], true
}

// All returns every File sharing hash.
func (r *Registry) All(hash Hash) []*File {
	return append([]*File(nil), r.files[hash]...)
}

// Len returns the number of File objects owned.
func (r *Registry) Len() int { return r.count }

// Files iterates all files ordered by hash, then by position within a hash.
func (r *Registry) Files() iter.Seq[*File] {
	return func(yield func(*File) bool) {
		hashes := make([]Hash, 0, len(r.files))
		for h := range r.files {
			hashes = append(hashes, h)
		}
		sort.Slice(hashes, func(i, j int) bool { return hashes[i] < hashes[j] })

		for _, h := range hashes {
			for _, f := range r.files[h] {
				if !yield(f) {
					return
				}
			}
		}
	}
}

// upsert returns the primary File for hash, creating it when absent. An
// existing File takes the new path (last writer wins).
func (r *Registry) upsert(hash Hash, fullPath string, unknown bool) *File {
	if f, ok := r.Lookup(hash); ok {
		f.fullPath = fullPath
		f.unknown = unknown
		return f
	}
	f := &File{hash: hash, fullPath: fullPath, unknown: unknown}
	r.files[hash] = []*File{f}
	r.count++
	return f
}

// replace swaps old for the given files under old's hash.
func (r *Registry) replace(old *File, with []*File) {
	current := r.files[old.hash]
	next := make([]*File, 0, len(current)-1+len(with))
	for _, f := range current {
		if f != old {
			next = append(next, f)
		}
	}
	next = append(next, with...)
	r.count += len(next) - len(current)

	if len(next) == 0 {
		delete(r.files, old.hash)
		return
	}
	r.files[old.hash] = next
}
