package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/marmos91/cascview/pkg/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "objects/00/00000000000000AB", ObjectKey(0xAB))
	assert.Equal(t, "objects/FE/FEDCBA9876543210", ObjectKey(0xFEDCBA9876543210))
}

func TestParseRoot(t *testing.T) {
	m := NewManifest()
	err := m.ParseRoot(strings.NewReader(`
# hash;id;locale;content
00000000000000AA;100;2;0
00000000000000AA;;enUS|deDE;0x80
0BB;;0x10;1
`))
	require.NoError(t, err)

	entries := m.GetEntries(0xAA)
	require.Len(t, entries, 2)
	assert.Equal(t, catalog.LocaleEnUS, entries[0].LocaleFlags)
	assert.Equal(t, catalog.LocaleEnUS|catalog.LocaleDeDE, entries[1].LocaleFlags)
	assert.Equal(t, catalog.ContentLowViolence, entries[1].ContentFlags)

	h, ok := m.HashOf(100)
	require.True(t, ok)
	assert.Equal(t, catalog.Hash(0xAA), h)

	_, ok = m.IDOf(0xBB)
	assert.False(t, ok)
	assert.True(t, m.Contains(0xBB))
}

func TestParseRootErrors(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"field count", "AA;1;2"},
		{"bad hash", "XYZ;1;2;0"},
		{"bad id", "AA;one;2;0"},
		{"bad locale", "AA;1;xxXX;0"},
		{"bad content", "AA;1;2;-"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewManifest().ParseRoot(strings.NewReader(tt.line))
			assert.ErrorIs(t, err, ErrInvalidManifest)
		})
	}
}

func TestParseListfile(t *testing.T) {
	m := NewManifest()
	require.NoError(t, m.ParseRoot(strings.NewReader("AA;100;2;0\n")))
	require.NoError(t, m.ParseListfile(strings.NewReader(`
100;Interface\Icons\A.blp
999;ignored\missing.blp
World/Maps/Azeroth/Azeroth.wdt
`)))

	names := make(map[catalog.Hash]string)
	for h, n := range m.Names() {
		names[h] = n
	}
	assert.Len(t, names, 2)
	assert.Equal(t, `Interface\Icons\A.blp`, names[0xAA])
	assert.Equal(t, "World/Maps/Azeroth/Azeroth.wdt", names[catalog.HashPath(`world\maps\azeroth\azeroth.wdt`)])

	h, ok := m.HashOfPath("interface/icons/a.BLP")
	require.True(t, ok)
	assert.Equal(t, catalog.Hash(0xAA), h)
}

func TestParseInstall(t *testing.T) {
	m := NewManifest()
	require.NoError(t, m.ParseInstall(strings.NewReader(`
Wow.exe;DD;Windows, x86_64 ,US
readme.txt;EE
`)))

	assert.Len(t, m.InstallEntries(), 2)
	win := m.InstallEntries("WINDOWS", "us")
	require.Len(t, win, 1)
	assert.Equal(t, []string{"Windows", "x86_64", "US"}, win[0].Tags)
	assert.Empty(t, m.InstallEntries("OSX"))

	assert.ErrorIs(t, NewManifest().ParseInstall(strings.NewReader("only-one-field")), ErrInvalidManifest)
}

func openerFor(files map[string]string) OpenFunc {
	return func(_ context.Context, name string) (io.ReadCloser, error) {
		content, ok := files[name]
		if !ok {
			return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
		}
		return io.NopCloser(strings.NewReader(content)), nil
	}
}

func TestLoadManifest(t *testing.T) {
	m, err := LoadManifest(context.Background(), openerFor(map[string]string{
		RootFile:  "AA;1;2;0\n",
		ListFile:  "1;a.txt\n",
		BuildFile: "\nWOW-1234\nsecond line\n",
	}))
	require.NoError(t, err)
	assert.Equal(t, "WOW-1234", m.BuildName())
	assert.Empty(t, m.InstallEntries())

	_, err = LoadManifest(context.Background(), openerFor(map[string]string{ListFile: ""}))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = LoadManifest(context.Background(), openerFor(map[string]string{
		RootFile: "garbage",
		ListFile: "",
	}))
	assert.ErrorIs(t, err, ErrInvalidManifest)
}

func TestKeyString(t *testing.T) {
	assert.Equal(t, "hash 00000000000000AA", ByHash(0xAA).String())
	assert.Equal(t, "id 7", ByID(7).String())
	assert.Equal(t, `path "a\b"`, ByPath(`a\b`).String())
}

func TestResolvePathFallsBackToHashPath(t *testing.T) {
	b := &manifestOnly{NewManifest()}

	h, err := Resolve(b, ByPath("x/y.txt"))
	require.NoError(t, err)
	assert.Equal(t, catalog.HashPath(`X\Y.TXT`), h)
}

// manifestOnly is a Backend without object storage.
type manifestOnly struct{ *Manifest }

func (manifestOnly) OpenFile(context.Context, catalog.Hash) (io.ReadCloser, error) {
	return nil, ErrNotFound
}
func (manifestOnly) FileExists(context.Context, catalog.Hash) bool { return false }
func (manifestOnly) GetFileSize(context.Context, catalog.Hash) (uint64, error) {
	return 0, ErrNotFound
}
func (manifestOnly) Close() error { return nil }

func TestSaveToRejectsParentSegments(t *testing.T) {
	b := &manifestOnly{NewManifest()}
	err := SaveTo(context.Background(), b, 1, t.TempDir(), `..\evil.txt`)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}
