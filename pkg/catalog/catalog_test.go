package catalog

import (
	"context"
	"errors"
	"iter"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Test source
// ============================================================================

type rootRow struct {
	hash  Hash
	entry RootEntry
}

type nameRow struct {
	hash Hash
	path string
}

type fakeSource struct {
	roots   []rootRow
	names   []nameRow
	sizes   map[Hash]uint64
	install []InstallEntry
}

func newFakeSource() *fakeSource {
	return &fakeSource{sizes: make(map[Hash]uint64)}
}

func (s *fakeSource) add(hash Hash, path string, locale LocaleFlags, content ContentFlags) {
	s.roots = append(s.roots, rootRow{hash: hash, entry: RootEntry{LocaleFlags: locale, ContentFlags: content}})
	if path != "" {
		s.names = append(s.names, nameRow{hash: hash, path: path})
	}
}

func (s *fakeSource) RootEntries() iter.Seq2[Hash, RootEntry] {
	return func(yield func(Hash, RootEntry) bool) {
		for _, r := range s.roots {
			if !yield(r.hash, r.entry) {
				return
			}
		}
	}
}

func (s *fakeSource) Names() iter.Seq2[Hash, string] {
	return func(yield func(Hash, string) bool) {
		for _, n := range s.names {
			if !yield(n.hash, n.path) {
				return
			}
		}
	}
}

func (s *fakeSource) GetEntries(hash Hash) []RootEntry {
	var out []RootEntry
	for _, r := range s.roots {
		if r.hash == hash {
			out = append(out, r.entry)
		}
	}
	return out
}

func (s *fakeSource) GetFileSize(_ context.Context, hash Hash) (uint64, error) {
	size, ok := s.sizes[hash]
	if !ok {
		return 0, errors.New("no size")
	}
	return size, nil
}

type installSource struct {
	*fakeSource
}

func (s installSource) InstallEntries(tags ...string) []InstallEntry {
	return s.install
}

var allLocales = BuildOptions{Locales: LocaleAll}

// reachable walks every view from root and returns the full paths of files.
func reachable(t *testing.T, c *Catalog) []string {
	t.Helper()

	root, err := c.Root()
	require.NoError(t, err)

	var paths []string
	var visit func(f *Folder)
	visit = func(f *Folder) {
		view, err := c.FilteredSortedView(context.Background(), f, "", DefaultSorter())
		require.NoError(t, err)
		for _, row := range view.Rows {
			switch e := row.Entry.(type) {
			case *Folder:
				visit(e)
			case *File:
				paths = append(paths, e.FullPath())
			}
		}
	}
	visit(root)
	sort.Strings(paths)
	return paths
}

func mustLookupFile(t *testing.T, c *Catalog, path string) *File {
	t.Helper()
	e, err := c.LookupPath(path)
	require.NoError(t, err)
	f, ok := e.(*File)
	require.True(t, ok, "%s is not a file", path)
	return f
}

// ============================================================================
// Build
// ============================================================================

func TestBuildRoundTrip(t *testing.T) {
	src := newFakeSource()
	paths := []string{
		`World\Maps\Azeroth\Azeroth_32_48.adt`,
		`World\Maps\Azeroth\Azeroth.wdt`,
		`Sound/Music/zone.mp3`,
		`Interface\Icons\inv_axe_01.blp`,
		`readme.txt`,
	}
	for i, p := range paths {
		src.add(Hash(i+1), p, LocaleEnUS, ContentNone)
	}

	c := New(src, allLocales)

	want := make([]string, 0, len(paths))
	for _, p := range paths {
		want = append(want, NormalizePath(p))
	}
	sort.Strings(want)
	assert.Equal(t, want, reachable(t, c))

	counts, err := c.Counts()
	require.NoError(t, err)
	assert.Equal(t, Counts{Files: len(paths), Unknown: 0}, counts)
}

func TestBuildUnknownFolder(t *testing.T) {
	src := newFakeSource()
	src.add(1, `a\named.txt`, LocaleEnUS, ContentNone)
	src.add(0xABCD, "", LocaleEnUS, ContentNone)

	c := New(src, allLocales)

	f := mustLookupFile(t, c, `unknown\000000000000ABCD`)
	assert.True(t, f.Unknown())
	assert.Equal(t, Hash(0xABCD), f.Hash())

	counts, err := c.Counts()
	require.NoError(t, err)
	assert.Equal(t, 2, counts.Files)
	assert.Equal(t, 1, counts.Unknown)
}

func TestBuildNamingConflict(t *testing.T) {
	src := newFakeSource()
	src.add(1, `data\thing`, LocaleEnUS, ContentNone)
	src.add(2, `data\thing\inner.txt`, LocaleEnUS, ContentNone)
	src.add(3, `data\Thing\other.txt`, LocaleEnUS, ContentNone)

	c := New(src, allLocales)

	// exact spelling collides: the later insertion is dropped
	_, err := c.LookupPath(`data\thing\inner.txt`)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	// the case-different folder coexists with the file
	_, err = c.LookupPath(`data\Thing\other.txt`)
	require.NoError(t, err)

	f := mustLookupFile(t, c, `data\thing`)
	assert.Equal(t, Hash(1), f.Hash())
}

func TestInsertConflictErrors(t *testing.T) {
	src := newFakeSource()
	src.add(1, `a\b`, LocaleEnUS, ContentNone)
	src.add(2, "", LocaleEnUS, ContentNone)

	c := New(src, allLocales)

	_, err := c.AddFile(`a\b\c.txt`, 2)
	require.Error(t, err)
	assert.True(t, IsNamingConflict(err))

	// the file kept its synthetic home
	f := mustLookupFile(t, c, `unknown\0000000000000002`)
	assert.True(t, f.Unknown())
}

func TestRebuildLocaleKeepsHashes(t *testing.T) {
	src := newFakeSource()
	src.add(1, `common\shared.txt`, LocaleEnUS|LocaleEnGB, ContentNone)
	src.add(2, `locale\us.txt`, LocaleEnUS, ContentNone)
	src.add(3, `locale\gb.txt`, LocaleEnGB, ContentNone)

	c := New(src, BuildOptions{Locales: LocaleEnUS})
	us := reachable(t, c)
	usHashes := map[string]Hash{}
	for _, p := range us {
		usHashes[p] = mustLookupFile(t, c, p).Hash()
	}

	require.NoError(t, c.Rebuild(context.Background(), BuildOptions{Locales: LocaleEnUS | LocaleEnGB}))
	both := reachable(t, c)

	assert.NotEqual(t, us, both)
	assert.Contains(t, both, `locale\gb.txt`)
	assert.NotContains(t, us, `locale\gb.txt`)

	for p, h := range usHashes {
		assert.Equal(t, h, mustLookupFile(t, c, p).Hash(), p)
	}
}

func TestRebuildOverridePrecedence(t *testing.T) {
	tests := []struct {
		name string
		opts BuildOptions
		want Hash
	}{
		{"override off keeps the normal entry", BuildOptions{Locales: LocaleAll}, 1},
		{"override on prefers the override entry", BuildOptions{Locales: LocaleAll, OverrideArchive: true}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := newFakeSource()
			src.add(1, `creature\orc.m2`, LocaleEnUS, ContentNone)
			src.add(2, `creature\orc.m2`, LocaleEnUS, ContentOverride)

			c := New(src, tt.opts)
			assert.Equal(t, tt.want, mustLookupFile(t, c, `creature\orc.m2`).Hash())
		})
	}
}

func TestRebuildHighResTieBreak(t *testing.T) {
	src := newFakeSource()
	src.add(1, `tex\stone.blp`, LocaleEnUS, ContentHighRes)
	src.add(2, `tex\stone.blp`, LocaleEnUS, ContentNone)

	c := New(src, BuildOptions{Locales: LocaleAll})
	assert.Equal(t, Hash(2), mustLookupFile(t, c, `tex\stone.blp`).Hash())

	require.NoError(t, c.Rebuild(context.Background(), BuildOptions{Locales: LocaleAll, PreferHighRes: true}))
	assert.Equal(t, Hash(1), mustLookupFile(t, c, `tex\stone.blp`).Hash())
}

func TestInstallMerge(t *testing.T) {
	base := newFakeSource()
	base.add(1, `data\a.txt`, LocaleEnUS, ContentNone)
	base.install = []InstallEntry{
		{Name: `Wow.exe`, Hash: 10},
		{Name: `data\a.txt`, Hash: 11},
	}

	c := New(installSource{base}, allLocales)

	assert.Equal(t, Hash(10), mustLookupFile(t, c, `Wow.exe`).Hash())
	assert.Equal(t, Hash(1), mustLookupFile(t, c, `data\a.txt`).Hash())
}

// ============================================================================
// Queries
// ============================================================================

func TestListChildrenIdempotent(t *testing.T) {
	src := newFakeSource()
	src.add(1, `b\x.txt`, LocaleEnUS, ContentNone)
	src.add(2, `a\y.txt`, LocaleEnUS, ContentNone)

	c := New(src, allLocales)
	root, err := c.Root()
	require.NoError(t, err)
	assert.False(t, root.Expanded())

	first, err := c.ListChildren(root)
	require.NoError(t, err)
	assert.True(t, root.Expanded())

	second, err := c.ListChildren(root)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	require.Len(t, first, 2)
	assert.Equal(t, "a", first[0].Name())
	assert.Equal(t, "b", first[1].Name())
}

func TestFilteredSortedView(t *testing.T) {
	src := newFakeSource()
	src.add(1, `d\model.m2`, LocaleEnUS, ContentNone)
	src.add(2, `d\Other.M2`, LocaleEnUS, ContentNone)
	src.add(3, `d\tex.blp`, LocaleEnUS, ContentNone)
	src.add(4, `d\sub\deep.m2`, LocaleEnUS, ContentNone)

	c := New(src, allLocales)
	folder, err := c.LookupPath("d")
	require.NoError(t, err)

	view, err := c.FilteredSortedView(context.Background(), folder.(*Folder), "*.m2", DefaultSorter())
	require.NoError(t, err)

	var names []string
	for _, row := range view.Rows {
		names = append(names, row.Entry.Name())
	}
	// folders are never filtered and come first
	assert.Equal(t, []string{"sub", "model.m2", "Other.M2"}, names)
}

func TestSortDoubleFlip(t *testing.T) {
	src := newFakeSource()
	for i, p := range []string{`x\c.txt`, `x\A.blp`, `x\b.m2`, `x\dir\f`, `x\Dir2\g`} {
		src.add(Hash(i+1), p, LocaleEnUS, ContentNone)
		src.sizes[Hash(i+1)] = uint64(100 - i)
	}

	c := New(src, allLocales)
	e, err := c.LookupPath("x")
	require.NoError(t, err)
	folder := e.(*Folder)

	order := func(s Sorter) []string {
		view, err := c.FilteredSortedView(context.Background(), folder, "", s)
		require.NoError(t, err)
		var out []string
		for _, row := range view.Rows {
			out = append(out, row.Entry.Name())
		}
		return out
	}

	for _, col := range []SortColumn{SortByName, SortByType, SortBySize} {
		s := Sorter{Column: col, Ascending: true}
		original := order(s)

		s.Toggle(col)
		assert.False(t, s.Ascending)
		flipped := order(s)
		assert.NotEqual(t, original, flipped, col.String())

		s.Toggle(col)
		assert.Equal(t, original, order(s), col.String())
	}

	s := Sorter{Column: SortByName, Ascending: false}
	s.Toggle(SortBySize)
	assert.Equal(t, Sorter{Column: SortBySize, Ascending: true}, s)
}

func TestCompareFoldersFirst(t *testing.T) {
	folder := newFolder("zzz", "zzz", 1)
	file := &File{hash: 1, fullPath: "aaa"}

	for _, asc := range []bool{true, false} {
		s := Sorter{Column: SortByName, Ascending: asc}
		assert.Negative(t, s.Compare(Row{Entry: folder}, Row{Entry: file}))
		assert.Positive(t, s.Compare(Row{Entry: file}, Row{Entry: folder}))
	}

	bySize := Sorter{Column: SortBySize, Ascending: true}
	small := &File{hash: 2, fullPath: "b"}
	big := &File{hash: 3, fullPath: "a"}
	assert.Negative(t, bySize.Compare(Row{Entry: small, Size: 10}, Row{Entry: big, Size: 20}))
	// equal sizes fall back to the name
	assert.Positive(t, bySize.Compare(Row{Entry: small, Size: 10}, Row{Entry: big, Size: 10}))
}

func TestResolveEntries(t *testing.T) {
	src := newFakeSource()
	src.add(1, `r\top.txt`, LocaleEnUS, ContentNone)
	src.add(2, `r\sub\one.txt`, LocaleEnUS, ContentNone)
	src.add(3, `r\sub\deeper\two.txt`, LocaleEnUS, ContentNone)

	c := New(src, allLocales)
	e, err := c.LookupPath("r")
	require.NoError(t, err)

	view, err := c.FilteredSortedView(context.Background(), e.(*Folder), "", DefaultSorter())
	require.NoError(t, err)
	require.Equal(t, 2, view.Len())

	all, err := c.ResolveEntries(view, []int{0, 1}, false)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	filesOnly, err := c.ResolveEntries(view, []int{0, 1}, true)
	require.NoError(t, err)
	require.Len(t, filesOnly, 1)
	assert.Equal(t, Hash(1), filesOnly[0].Hash())

	_, err = c.ResolveEntries(view, []int{5}, true)
	require.Error(t, err)

	require.NoError(t, c.Rebuild(context.Background(), allLocales))
	_, err = c.ResolveEntries(view, []int{0}, true)
	assert.True(t, IsStaleView(err))

	_, err = c.ListChildren(e.(*Folder))
	assert.True(t, IsStaleView(err))
}

func TestResolveHashes(t *testing.T) {
	src := newFakeSource()
	src.add(7, `a.txt`, LocaleEnUS, ContentNone)

	c := New(src, allLocales)

	files, err := c.ResolveHashes([]Hash{7})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "a.txt", files[0].FullPath())

	_, err = c.ResolveHashes([]Hash{8})
	assert.True(t, IsNotFound(err))
}

func TestSearch(t *testing.T) {
	view := &View{Rows: []Row{
		{Entry: &File{fullPath: "alpha.txt"}},
		{Entry: &File{fullPath: "Beta.txt"}},
		{Entry: &File{fullPath: "gamma.txt"}},
		{Entry: &File{fullPath: "beta2.txt"}},
	}}

	assert.Equal(t, 1, Search(view, "BETA", -1, false))
	assert.Equal(t, 3, Search(view, "beta", 1, false))
	assert.Equal(t, -1, Search(view, "beta", 3, false))
	assert.Equal(t, 1, Search(view, "beta", 3, true))
	assert.Equal(t, -1, Search(view, "delta", -1, false))
}

func TestTotalSizeAndDescribe(t *testing.T) {
	src := newFakeSource()
	src.add(1, `s\a.blp`, LocaleEnUS, ContentNone)
	src.add(1, `s\a.blp`, LocaleDeDE, ContentHighRes)
	src.add(2, `s\b.blp`, LocaleEnUS, ContentNone)
	src.sizes[1] = 1234567
	src.sizes[2] = 3

	c := New(src, allLocales)
	files, err := c.Snapshot()
	require.NoError(t, err)

	total, err := c.TotalSize(context.Background(), files)
	require.NoError(t, err)
	assert.Equal(t, uint64(1234570), total)

	d := c.Describe(context.Background(), mustLookupFile(t, c, `s\a.blp`))
	assert.Equal(t, "a.blp", d.Name)
	assert.Equal(t, ".blp", d.Type)
	assert.Equal(t, "enUS, deDE", d.Locale)
	assert.Equal(t, "HighResTexture", d.Content)
	assert.Equal(t, "1 234 567", d.Size)

	folder, err := c.LookupPath("s")
	require.NoError(t, err)
	fd := c.Describe(context.Background(), folder)
	assert.Equal(t, "Folder", fd.Type)
	assert.Equal(t, "<DIR>", fd.Size)
}

// ============================================================================
// Editor
// ============================================================================

func TestEditorLocking(t *testing.T) {
	src := newFakeSource()
	src.add(1, `a.txt`, LocaleEnUS, ContentNone)
	c := New(src, allLocales)

	ed, err := c.Acquire()
	require.NoError(t, err)

	_, err = c.Acquire()
	assert.True(t, IsBusy(err))

	_, err = c.Root()
	assert.True(t, IsBusy(err))

	_, err = c.Counts()
	assert.True(t, IsBusy(err))

	_, err = c.AddFile(`b.txt`, 2)
	assert.True(t, IsReadOnly(err))

	err = c.Rebuild(context.Background(), allLocales)
	assert.True(t, IsReadOnly(err))

	ed.Release()
	ed.Release()

	_, err = c.Root()
	assert.NoError(t, err)

	err = ed.Rename(&File{}, "x", true)
	require.Error(t, err)
}

func TestEditorRenameSingle(t *testing.T) {
	src := newFakeSource()
	src.add(0x64, "", LocaleEnUS, ContentNone)
	c := New(src, allLocales)

	ed, err := c.Acquire()
	require.NoError(t, err)

	unknown := ed.UnknownFiles()
	require.Len(t, unknown, 1)

	require.NoError(t, ed.Rename(unknown[0], `unknown\a.ogg`, true))
	assert.Empty(t, ed.UnknownFiles())

	report, err := ed.Verify(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Consistent(), "%+v", report)
	ed.Release()

	f := mustLookupFile(t, c, `unknown\a.ogg`)
	assert.Equal(t, Hash(0x64), f.Hash())
	assert.False(t, f.Unknown())

	counts, err := c.Counts()
	require.NoError(t, err)
	assert.Equal(t, Counts{Files: 1, Unknown: 0}, counts)
}

func TestEditorRenameKeepsUnknownFlag(t *testing.T) {
	src := newFakeSource()
	src.add(5, "", LocaleEnUS, ContentNone)
	c := New(src, allLocales)

	ed, err := c.Acquire()
	require.NoError(t, err)
	defer ed.Release()

	f := ed.UnknownFiles()[0]
	require.NoError(t, ed.Rename(f, f.FullPath()+".blp", false))
	assert.True(t, f.Unknown())
	assert.True(t, strings.HasSuffix(f.FullPath(), ".blp"))
	assert.Len(t, ed.UnknownFiles(), 1)
}

func TestEditorSplit(t *testing.T) {
	src := newFakeSource()
	src.add(0x64, "", LocaleEnUS, ContentNone)
	c := New(src, allLocales)

	ed, err := c.Acquire()
	require.NoError(t, err)

	original := ed.UnknownFiles()[0]
	created, dropped, err := ed.Split(original, []string{`unknown\a_01.ogg`, `unknown\a_02.ogg`, `UNKNOWN\A_01.OGG`})
	require.NoError(t, err)
	assert.Empty(t, dropped)
	require.Len(t, created, 2)
	assert.NotSame(t, created[0], created[1])

	report, err := ed.Verify(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Consistent(), "%+v", report)
	assert.Equal(t, 2, report.Files)

	// the original is gone for good
	assert.Error(t, ed.Rename(original, "x", true))
	ed.Release()

	files, err := c.ResolveHashes([]Hash{0x64})
	require.NoError(t, err)
	require.Len(t, files, 2)
	var got []string
	for _, f := range files {
		assert.Equal(t, Hash(0x64), f.Hash())
		got = append(got, f.FullPath())
	}
	assert.ElementsMatch(t, []string{`unknown\a_01.ogg`, `unknown\a_02.ogg`}, got)

	_, err = c.LookupPath(`unknown\0000000000000064`)
	assert.True(t, IsNotFound(err))

	counts, err := c.Counts()
	require.NoError(t, err)
	assert.Equal(t, Counts{Files: 2, Unknown: 0}, counts)
}

func TestEditorSplitAllConflicting(t *testing.T) {
	src := newFakeSource()
	src.add(1, `unknown\dir`, LocaleEnUS, ContentNone)
	src.add(2, "", LocaleEnUS, ContentNone)
	c := New(src, allLocales)

	ed, err := c.Acquire()
	require.NoError(t, err)
	defer ed.Release()

	f := ed.UnknownFiles()[0]
	_, dropped, err := ed.Split(f, []string{`unknown\dir\a.ogg`, `unknown\dir\b.ogg`})
	require.Error(t, err)
	assert.Len(t, dropped, 2)
	assert.True(t, IsNamingConflict(err))

	e, err := ed.LookupPath(`unknown\0000000000000002`)
	require.NoError(t, err)
	assert.Same(t, f, e)
}

func TestEditorSplitKeepsOccupiedPaths(t *testing.T) {
	src := newFakeSource()
	src.add(0xAA, `sound\x.ogg`, LocaleEnUS, ContentNone)
	src.add(0xBB, "", LocaleEnUS, ContentNone)
	c := New(src, allLocales)

	ed, err := c.Acquire()
	require.NoError(t, err)
	defer ed.Release()

	f := ed.UnknownFiles()[0]
	created, dropped, err := ed.Split(f, []string{`SOUND\X.ogg`, `sound\y.ogg`})
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, `sound\y.ogg`, created[0].FullPath())
	assert.Equal(t, []string{`SOUND\X.ogg`}, dropped)

	e, err := ed.LookupPath(`sound\x.ogg`)
	require.NoError(t, err)
	assert.Equal(t, Hash(0xAA), e.Hash())

	report, err := ed.Verify(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Consistent(), "%+v", report)
	assert.Equal(t, 2, report.Files)

	// every target taken: nothing moves
	g := created[0]
	_, dropped, err = ed.Split(g, []string{`sound\x.ogg`})
	assert.True(t, IsNamingConflict(err))
	assert.Len(t, dropped, 1)
	e, err = ed.LookupPath(`sound\y.ogg`)
	require.NoError(t, err)
	assert.Same(t, g, e)
}

func TestEditorRenameKeepsOccupiedPath(t *testing.T) {
	src := newFakeSource()
	src.add(0xAA, `sound\x.ogg`, LocaleEnUS, ContentNone)
	src.add(0xBB, "", LocaleEnUS, ContentNone)
	c := New(src, allLocales)

	ed, err := c.Acquire()
	require.NoError(t, err)
	defer ed.Release()

	f := ed.UnknownFiles()[0]
	err = ed.Rename(f, `sound\X.OGG`, true)
	assert.True(t, IsNamingConflict(err))

	e, err := ed.LookupPath(`sound\x.ogg`)
	require.NoError(t, err)
	assert.Equal(t, Hash(0xAA), e.Hash())
	e, err = ed.LookupPath(`unknown\00000000000000BB`)
	require.NoError(t, err)
	assert.Same(t, f, e)
}

func TestVerifyReportsLostHashes(t *testing.T) {
	src := newFakeSource()
	src.add(0xAA, `sound\x.ogg`, LocaleEnUS, ContentNone)
	src.add(0xBB, `sound\y.ogg`, LocaleEnUS, ContentNone)
	c := New(src, allLocales)

	ed, err := c.Acquire()
	require.NoError(t, err)
	defer ed.Release()

	// drop 0xBB behind the tree's back
	e, err := ed.LookupPath(`sound\y.ogg`)
	require.NoError(t, err)
	lost := e.(*File)
	parent, key, ok := findParent(c.root, lost)
	require.True(t, ok)
	delete(parent.files, key)
	c.registry.replace(lost, nil)

	report, err := ed.Verify(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Lost)
	assert.Equal(t, 0, report.Unreachable)
	assert.False(t, report.Consistent())
}
