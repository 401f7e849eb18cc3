package catalog

import (
	"sort"
	"strings"
)

// Kind discriminates the two entry shapes.
type Kind int

const (
	KindFolder Kind = iota
	KindFile
)

func (k Kind) String() string {
	if k == KindFolder {
		return "Folder"
	}
	return "File"
}

// Entry is the capability shared by folders and files. Sorting and view
// code only depends on this interface plus Kind.
type Entry interface {
	Name() string
	FullPath() string
	Hash() Hash
	Kind() Kind
}

// nameKey is the case-insensitive key used by both child maps.
func nameKey(name string) string {
	return strings.ToLower(name)
}

// ============================================================================
// Folder
// ============================================================================

// Folder owns its subfolders and references files held by the Registry.
//
// Both maps are keyed case-insensitively. A file and a subfolder may share
// a base name only when their spelling differs in case.
type Folder struct {
	name     string
	fullPath string
	hash     Hash
	gen      uint64

	folders map[string]*Folder
	files   map[string]*File

	// children is the materialized, name-ordered subfolder list. It stays
	// nil until the first ListChildren call; expanded marks that the list
	// is complete.
	children []*Folder
	expanded bool
}

func newFolder(name, fullPath string, gen uint64) *Folder {
	return &Folder{
		name:     name,
		fullPath: fullPath,
		hash:     HashPath(fullPath),
		gen:      gen,
		folders:  make(map[string]*Folder),
		files:    make(map[string]*File),
	}
}

func (f *Folder) Name() string     { return f.name }
func (f *Folder) FullPath() string { return f.fullPath }
func (f *Folder) Hash() Hash       { return f.hash }
func (f *Folder) Kind() Kind       { return KindFolder }

// Expanded reports whether the subfolder list has been materialized. An
// unexpanded folder with subfolders is what a tree view shows with a
// placeholder child.
func (f *Folder) Expanded() bool { return f.expanded }

// HasSubfolders reports whether the folder has at least one subfolder.
func (f *Folder) HasSubfolders() bool { return len(f.folders) > 0 }

// Folder returns the subfolder named name (case-insensitive).
func (f *Folder) Folder(name string) (*Folder, bool) {
	sub, ok := f.folders[nameKey(name)]
	return sub, ok
}

// File returns the file stored under name (case-insensitive).
func (f *Folder) File(name string) (*File, bool) {
	file, ok := f.files[nameKey(name)]
	return file, ok
}

// NumFolders and NumFiles count direct children.
func (f *Folder) NumFolders() int { return len(f.folders) }
func (f *Folder) NumFiles() int   { return len(f.files) }

// subfolders returns the direct subfolders ordered by name.
func (f *Folder) subfolders() []*Folder {
	out := make([]*Folder, 0, len(f.folders))
	for _, sub := range f.folders {
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool {
		return compareNames(out[i].name, out[j].name) < 0
	})
	return out
}

// walkFiles calls fn for every file in the subtree rooted at f, folder by
// folder in name order. Returning false stops the walk.
func (f *Folder) walkFiles(fn func(parent *Folder, file *File) bool) bool {
	names := make([]string, 0, len(f.files))
	for key := range f.files {
		names = append(names, key)
	}
	sort.Strings(names)
	for _, key := range names {
		if !fn(f, f.files[key]) {
			return false
		}
	}
	for _, sub := range f.subfolders() {
		if !sub.walkFiles(fn) {
			return false
		}
	}
	return true
}

// ============================================================================
// File
// ============================================================================

// File is a leaf entry. Files are owned by the Registry; folders hold
// references, so a rename is observed from every position reaching it.
type File struct {
	hash     Hash
	fullPath string

	// unknown is set for files placed under the unknown folder because the
	// name source had no path for their hash. Resolution clears it.
	unknown bool
}

func (f *File) Hash() Hash       { return f.hash }
func (f *File) FullPath() string { return f.fullPath }
func (f *File) Kind() Kind       { return KindFile }

// Name is the last segment of the full path.
func (f *File) Name() string {
	if i := strings.LastIndexAny(f.fullPath, `\/`); i >= 0 {
		return f.fullPath[i+1:]
	}
	return f.fullPath
}

// Unknown reports whether the file still carries a synthetic name.
func (f *File) Unknown() bool { return f.unknown }

// compareNames orders names case-insensitively, falling back to a
// byte-wise comparison so distinct spellings never compare equal.
func compareNames(a, b string) int {
	if c := strings.Compare(strings.ToLower(a), strings.ToLower(b)); c != 0 {
		return c
	}
	return strings.Compare(a, b)
}
