package resolver

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/marmos91/cascview/pkg/audit"
	auditmemory "github.com/marmos91/cascview/pkg/audit/memory"
	"github.com/marmos91/cascview/pkg/catalog"
	"github.com/marmos91/cascview/pkg/storage"
	"github.com/marmos91/cascview/pkg/storage/memory"
	"github.com/marmos91/cascview/pkg/table/tabletest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var enUS = catalog.RootEntry{LocaleFlags: catalog.LocaleEnUS}

type fixture struct {
	backend *memory.Backend
	catalog *catalog.Catalog
	audit   *auditmemory.Log
}

// newFixture builds a backend with one named file plus the unknown files
// added by setup, then a catalog over it.
func newFixture(t *testing.T, setup func(b *memory.Backend)) *fixture {
	t.Helper()
	b := memory.New()
	b.AddFile(0x01, 1, `Interface\Glues\Logo.blp`, enUS, []byte("BLP2"))
	if setup != nil {
		setup(b)
	}
	return &fixture{
		backend: b,
		catalog: catalog.New(b, catalog.BuildOptions{Locales: catalog.LocaleEnUS}),
		audit:   auditmemory.New(),
	}
}

func (f *fixture) resolver(t *testing.T, sources ...CandidateSource) *Resolver {
	t.Helper()
	r, err := New(Config{Backend: f.backend, Catalog: f.catalog, Audit: f.audit, Sources: sources})
	require.NoError(t, err)
	return r
}

func (f *fixture) file(t *testing.T, path string) *catalog.File {
	t.Helper()
	e, err := f.catalog.LookupPath(path)
	require.NoError(t, err, path)
	file, ok := e.(*catalog.File)
	require.True(t, ok, "%s is not a file", path)
	return file
}

func (f *fixture) records(t *testing.T, passID string, kind audit.Kind) []string {
	t.Helper()
	recs, err := f.audit.Records(context.Background(), passID)
	require.NoError(t, err)
	var lines []string
	for _, r := range recs {
		if r.Kind == kind {
			lines = append(lines, r.Line())
		}
	}
	return lines
}

func TestNewValidation(t *testing.T) {
	f := newFixture(t, nil)

	_, err := New(Config{Catalog: f.catalog, Audit: f.audit})
	assert.Error(t, err)
	_, err = New(Config{Backend: f.backend, Audit: f.audit})
	assert.Error(t, err)
	_, err = New(Config{Backend: f.backend, Catalog: f.catalog})
	assert.Error(t, err)
}

func TestRunSingleCandidate(t *testing.T) {
	f := newFixture(t, func(b *memory.Backend) {
		b.AddFile(0xAA, 100, "", enUS, []byte("payload"))
	})

	res, err := f.resolver(t, Static{100: {"a.ogg"}}).Run(context.Background(), nil)
	require.NoError(t, err)

	file := f.file(t, `unknown\a.ogg`)
	assert.Equal(t, catalog.Hash(0xAA), file.Hash())
	assert.False(t, file.Unknown())

	_, err = f.catalog.LookupPath(`unknown\00000000000000AA`)
	assert.True(t, catalog.IsNotFound(err))

	files, err := f.catalog.ResolveHashes([]catalog.Hash{0xAA})
	require.NoError(t, err)
	assert.Len(t, files, 1)

	counts, err := f.catalog.Counts()
	require.NoError(t, err)
	assert.Equal(t, 0, counts.Unknown)

	assert.Equal(t, 1, res.Renamed)
	assert.Equal(t, 0, res.Unresolved)
	assert.True(t, res.Report.Consistent())
	assert.Equal(t, []string{`100;a.ogg`}, f.records(t, res.PassID, audit.KindCandidate))
	assert.Equal(t, []string{`100;unknown\a.ogg`}, f.records(t, res.PassID, audit.KindRename))
}

func TestRunSplit(t *testing.T) {
	f := newFixture(t, func(b *memory.Backend) {
		b.AddFile(0xAA, 100, "", enUS, []byte("payload"))
	})

	res, err := f.resolver(t, Static{100: {"a_01.ogg", "a_02.ogg"}}).Run(context.Background(), nil)
	require.NoError(t, err)

	first := f.file(t, `unknown\a_01.ogg`)
	second := f.file(t, `unknown\a_02.ogg`)
	assert.NotSame(t, first, second)
	assert.Equal(t, catalog.Hash(0xAA), first.Hash())
	assert.Equal(t, catalog.Hash(0xAA), second.Hash())

	_, err = f.catalog.LookupPath(`unknown\00000000000000AA`)
	assert.True(t, catalog.IsNotFound(err))

	files, err := f.catalog.ResolveHashes([]catalog.Hash{0xAA})
	require.NoError(t, err)
	assert.Len(t, files, 2)

	assert.Equal(t, 1, res.Split)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, 0, res.Unresolved)
	assert.Equal(t, []string{`100;unknown\a_01.ogg`, `100;unknown\a_02.ogg`}, f.records(t, res.PassID, audit.KindSplit))
}

func md21(name string) []byte {
	data := make([]byte, 48, 64)
	copy(data, "MD21")
	copy(data[8:], "MD20")
	binary.LittleEndian.PutUint32(data[0x14:], 40) // relative to the MD20 block at 8
	return append(append(data, name...), 0)
}

func TestRunSniff(t *testing.T) {
	f := newFixture(t, func(b *memory.Backend) {
		b.AddFile(0xB1, -1, "", enUS, []byte("OggS\x00\x02 vorbis"))
		b.AddFile(0xB2, 201, "", enUS, md21("Creature_Wolf"))
		b.AddFile(0xB3, 202, "", enUS, append([]byte("MD20"), make([]byte, 32)...))
		b.AddFile(0xB4, 203, "", enUS, []byte{0x00, 0x01, 0x02})
		b.AddFile(0xB5, 204, "", enUS, nil)
	})

	res, err := f.resolver(t).Run(context.Background(), nil)
	require.NoError(t, err)

	ogg := f.file(t, `unknown\00000000000000B1.ogg`)
	assert.True(t, ogg.Unknown(), "an extension alone does not resolve a name")

	wolf := f.file(t, `unknown\Creature_Wolf.m2`)
	assert.False(t, wolf.Unknown())
	assert.Equal(t, catalog.Hash(0xB2), wolf.Hash())

	byID := f.file(t, `unknown\202.m2`)
	assert.Equal(t, catalog.Hash(0xB3), byID.Hash())

	f.file(t, `unknown\00000000000000B4`)
	f.file(t, `unknown\00000000000000B5`)

	assert.Equal(t, 3, res.Sniffed)
	assert.Equal(t, 4, res.Unresolved)
	assert.Contains(t, f.records(t, res.PassID, audit.KindSniff), `201;unknown\Creature_Wolf.m2`)
	assert.Contains(t, f.records(t, res.PassID, audit.KindSniff), `unknown\00000000000000B1.ogg`)
}

func TestRunSniffIsIdempotent(t *testing.T) {
	f := newFixture(t, func(b *memory.Backend) {
		b.AddFile(0xB1, -1, "", enUS, []byte("OggS\x00\x02 vorbis"))
	})
	r := f.resolver(t)

	for i := 0; i < 2; i++ {
		_, err := r.Run(context.Background(), nil)
		require.NoError(t, err)
	}
	f.file(t, `unknown\00000000000000B1.ogg`)
}

func TestRunConflictKeepsFile(t *testing.T) {
	f := newFixture(t, func(b *memory.Backend) {
		b.AddFile(0xB2, 201, "", enUS, md21("Wolf"))
		b.AddFile(0xB3, 202, "", enUS, md21("Wolf"))
	})

	res, err := f.resolver(t).Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, catalog.Hash(0xB2), f.file(t, `unknown\Wolf.m2`).Hash())
	f.file(t, `unknown\00000000000000B3`)
	assert.Equal(t, 1, res.Conflicts)
	assert.Equal(t, []string{`202;unknown\Wolf.m2`}, f.records(t, res.PassID, audit.KindConflict))
}

func TestRunSplitSkipsTakenPath(t *testing.T) {
	f := newFixture(t, func(b *memory.Backend) {
		b.AddFile(0xAA, 100, "", enUS, []byte("first"))
		b.AddFile(0xBB, 200, "", enUS, []byte("second"))
	})

	res, err := f.resolver(t, Static{100: {"x.ogg"}, 200: {"x.ogg", "y.ogg"}}).Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, catalog.Hash(0xAA), f.file(t, `unknown\x.ogg`).Hash())
	assert.Equal(t, catalog.Hash(0xBB), f.file(t, `unknown\y.ogg`).Hash())

	files, err := f.catalog.ResolveHashes([]catalog.Hash{0xAA})
	require.NoError(t, err)
	assert.Len(t, files, 1)

	assert.Equal(t, 1, res.Renamed)
	assert.Equal(t, 1, res.Split)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 1, res.Conflicts)
	assert.Equal(t, []string{`200;unknown\x.ogg`}, f.records(t, res.PassID, audit.KindConflict))
	assert.True(t, res.Report.Consistent(), "%+v", res.Report)
}

func TestRunProgress(t *testing.T) {
	f := newFixture(t, func(b *memory.Backend) {
		b.AddFile(0xC1, 301, "", enUS, nil)
		b.AddFile(0xC2, 302, "", enUS, nil)
		b.AddFile(0xC3, 303, "", enUS, nil)
	})

	var progress []int
	_, err := f.resolver(t).Run(context.Background(), func(p int) { progress = append(progress, p) })
	require.NoError(t, err)
	assert.Equal(t, []int{33, 66, 100}, progress)

	empty := newFixture(t, nil)
	progress = nil
	_, err = empty.resolver(t).Run(context.Background(), func(p int) { progress = append(progress, p) })
	require.NoError(t, err)
	assert.Equal(t, []int{100}, progress)
}

func TestRunIsExclusive(t *testing.T) {
	f := newFixture(t, nil)

	editor, err := f.catalog.Acquire()
	require.NoError(t, err)

	_, err = f.resolver(t).Run(context.Background(), nil)
	assert.True(t, catalog.IsBusy(err))

	editor.Release()
	_, err = f.resolver(t).Run(context.Background(), nil)
	assert.NoError(t, err)
}

func TestRunBackendUnavailable(t *testing.T) {
	f := newFixture(t, func(b *memory.Backend) {
		b.AddFile(0xAA, 100, "", enUS, []byte("payload"))
		b.AddFile(0xBB, 101, "", enUS, []byte("OggS"))
	})
	r := f.resolver(t, Static{100: {"a.ogg"}})
	require.NoError(t, f.backend.Close())

	res, err := r.Run(context.Background(), nil)
	require.Error(t, err)

	var passErr *PassError
	require.True(t, errors.As(err, &passErr))
	assert.ErrorIs(t, err, storage.ErrBackendUnavailable)
	assert.Equal(t, 1, passErr.Processed, "the rename before the failure is committed")
	assert.Equal(t, 2, passErr.Total)
	assert.Equal(t, 1, res.Renamed)

	// the lock is released and the partial result is queryable
	f.file(t, `unknown\a.ogg`)
	f.file(t, `unknown\00000000000000BB`)
}

func TestRunAuditFailureAborts(t *testing.T) {
	f := newFixture(t, func(b *memory.Backend) {
		b.AddFile(0xAA, 100, "", enUS, []byte("payload"))
	})
	require.NoError(t, f.audit.Close())

	_, err := f.resolver(t, Static{100: {"a.ogg"}}).Run(context.Background(), nil)
	assert.ErrorIs(t, err, audit.ErrClosed)
}

func TestRunCancelled(t *testing.T) {
	f := newFixture(t, func(b *memory.Backend) {
		b.AddFile(0xAA, 100, "", enUS, nil)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.resolver(t).Run(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = f.catalog.Counts()
	assert.NoError(t, err)
}

func TestCandidateMapAppends(t *testing.T) {
	m := NewCandidateMap()
	ctx := context.Background()

	require.NoError(t, Static{500: {"a.ogg"}, 7: {"x.ogg"}}.Collect(ctx, Env{}, m))
	require.NoError(t, Static{500: {"b.ogg", "A.OGG"}}.Collect(ctx, Env{}, m))

	assert.Equal(t, []string{"a.ogg", "b.ogg"}, m.Get(500))
	assert.Equal(t, 2, m.Len())
	assert.Equal(t, 3, m.Count())

	var ids []int32
	for id := range m.All() {
		ids = append(ids, id)
	}
	assert.Equal(t, []int32{7, 500, 500}, ids)
}

func TestSoundName(t *testing.T) {
	tests := []struct {
		name   string
		index  int
		many   bool
		withID bool
		typ    int
		want   string
	}{
		{"single ogg", 1, false, false, 1, `sound\Hit.ogg`},
		{"mp3", 1, false, false, 28, `sound\Hit.mp3`},
		{"plural", 3, true, false, 1, `sound\Hit_03.ogg`},
		{"plural with id", 12, true, true, 1, `sound\Hit_12_777.ogg`},
		{"single with id", 1, false, true, 28, `sound\Hit_777.mp3`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, soundName("Hit", tt.index, tt.many, 777, tt.withID, tt.typ))
		})
	}
}

func soundEntriesRowValues(id, typ int32, name string, fids ...int32) []any {
	row := []any{id, typ, name}
	for i := 0; i < seNumFIDs; i++ {
		v := int32(0)
		if i < len(fids) {
			v = fids[i]
		}
		row = append(row, v)
	}
	return row
}

func TestSoundEntriesSource(t *testing.T) {
	data := tabletest.WDB2{
		Build:  15050,
		Schema: soundEntriesSchema,
		Rows: [][]any{
			soundEntriesRowValues(1, 28, "Music", 100),
			soundEntriesRowValues(2, 1, "Hit", 200, 201),
			soundEntriesRowValues(3, 1, "Gap", 300, 0, 302),
		},
	}.Bytes()

	b := memory.New()
	b.AddFile(catalog.HashPath(DefaultSoundEntriesPath), 9999, DefaultSoundEntriesPath, enUS, data)

	m := NewCandidateMap()
	require.NoError(t, SoundEntries{}.Collect(context.Background(), Env{Backend: b}, m))

	assert.Equal(t, []string{`sound\Music.mp3`}, m.Get(100))
	assert.Equal(t, []string{`sound\Hit_01.ogg`}, m.Get(200))
	assert.Equal(t, []string{`sound\Hit_02.ogg`}, m.Get(201))
	assert.Equal(t, []string{`sound\Gap_03.ogg`}, m.Get(302), "suffix is the column position")
	assert.Empty(t, m.Get(0))
}

func TestSoundEntriesMissingTable(t *testing.T) {
	m := NewCandidateMap()
	require.NoError(t, SoundEntries{}.Collect(context.Background(), Env{Backend: memory.New()}, m))
	assert.Zero(t, m.Len())
}

func TestSoundEntriesInvalidTable(t *testing.T) {
	b := memory.New()
	b.AddFile(catalog.HashPath(DefaultSoundEntriesPath), 9999, DefaultSoundEntriesPath, enUS, []byte("garbage!"))

	m := NewCandidateMap()
	require.NoError(t, SoundEntries{}.Collect(context.Background(), Env{Backend: b}, m))
	assert.Zero(t, m.Len())
}

func kitRow(typ byte) []any {
	return []any{int32(0), int32(0), int32(0), int32(0), int32(0), int32(0), typ}
}

func soundKitBackend() *memory.Backend {
	const secret = 0xFA505078126ACB3E

	entries := tabletest.WDC3{
		Schema: soundKitEntrySchema,
		Sections: []tabletest.WDC3Section{
			{Rows: []tabletest.WDC3Row{
				{ID: 1, Values: []any{int32(10), int32(500)}},
				{ID: 2, Values: []any{int32(10), int32(501)}},
				{ID: 3, Values: []any{int32(11), int32(600)}},
			}},
			{TactKey: secret, Rows: []tabletest.WDC3Row{
				{ID: 4, Values: []any{int32(12), int32(700)}},
			}},
		},
	}.Bytes()

	names := tabletest.WDC3{
		Schema: soundKitNameSchema,
		Sections: []tabletest.WDC3Section{{Rows: []tabletest.WDC3Row{
			{ID: 10, Values: []any{`Kit:One"x"`}},
			{ID: 11, Values: []any{"Solo"}},
			{ID: 12, Values: []any{"Secret"}},
		}}},
	}.Bytes()

	kits := tabletest.WDC3{
		Schema: soundKitSchema,
		Sections: []tabletest.WDC3Section{{Rows: []tabletest.WDC3Row{
			{ID: 10, Values: kitRow(28)},
			{ID: 11, Values: kitRow(1)},
			{ID: 12, Values: kitRow(1)},
			{ID: 13, Values: kitRow(1)}, // no name
		}}},
	}.Bytes()

	b := memory.New()
	b.AddFile(0x5001, DefaultSoundKitID, "", enUS, kits)
	b.AddFile(0x5002, DefaultSoundKitEntryID, "", enUS, entries)
	b.AddFile(0x5003, DefaultSoundKitNameID, "", enUS, names)
	return b
}

func TestSoundKitSource(t *testing.T) {
	b := soundKitBackend()

	m := NewCandidateMap()
	require.NoError(t, SoundKit{}.Collect(context.Background(), Env{Backend: b}, m))

	assert.Equal(t, []string{`sound\Kit_Onex_01.mp3`}, m.Get(500))
	assert.Equal(t, []string{`sound\Kit_Onex_02.mp3`}, m.Get(501))
	assert.Equal(t, []string{`sound\Solo.ogg`}, m.Get(600))
	assert.Empty(t, m.Get(700), "encrypted section without key")
}

func TestSoundKitWithFileIDAndKey(t *testing.T) {
	b := soundKitBackend()
	env := Env{Backend: b, HasKey: func(k uint64) bool { return k == 0xFA505078126ACB3E }}

	m := NewCandidateMap()
	require.NoError(t, SoundKit{WithFileID: true}.Collect(context.Background(), env, m))

	assert.Equal(t, []string{`sound\Kit_Onex_01_500.mp3`}, m.Get(500))
	assert.Equal(t, []string{`sound\Solo_600.ogg`}, m.Get(600))
	assert.Equal(t, []string{`sound\Secret_700.ogg`}, m.Get(700))
}

func TestSoundKitMissingTable(t *testing.T) {
	b := soundKitBackend()
	m := NewCandidateMap()
	require.NoError(t, SoundKit{NameID: 42}.Collect(context.Background(), Env{Backend: b}, m))
	assert.Zero(t, m.Len())
}

func TestSoundSourcesFeedThePass(t *testing.T) {
	f := newFixture(t, func(b *memory.Backend) {
		kits := soundKitBackend()
		for h, e := range kits.RootEntries() {
			id, _ := kits.IDOf(h)
			rc, err := kits.OpenFile(context.Background(), h)
			require.NoError(t, err)
			data, err := io.ReadAll(rc)
			require.NoError(t, err)
			_ = rc.Close()
			b.AddFile(h, id, "", e, data)
		}
		b.AddFile(0xAA, 500, "", enUS, []byte("OggS"))
		b.AddFile(0xAB, 600, "", enUS, []byte("OggS"))
	})

	res, err := f.resolver(t, SoundEntries{}, SoundKit{}).Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, catalog.Hash(0xAA), f.file(t, `unknown\sound\Kit_Onex_01.mp3`).Hash())
	assert.Equal(t, catalog.Hash(0xAB), f.file(t, `unknown\sound\Solo.ogg`).Hash())
	assert.Equal(t, 2, res.Renamed)
}
