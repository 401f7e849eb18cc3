package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/marmos91/cascview/pkg/catalog"
	"github.com/marmos91/cascview/pkg/storage"
	"github.com/marmos91/cascview/pkg/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var enUS = catalog.RootEntry{LocaleFlags: catalog.LocaleEnUS}

// namesOnly hides the id capability of the wrapped backend.
type namesOnly struct {
	storage.Backend
}

// outage fails every size lookup as an unreachable store would.
type outage struct {
	storage.Backend
}

func (outage) GetFileSize(context.Context, catalog.Hash) (uint64, error) {
	return 0, fmt.Errorf("head object: %w", storage.ErrBackendUnavailable)
}

func newCatalog(t *testing.T) (*memory.Backend, *catalog.Catalog) {
	t.Helper()
	b := memory.New()
	b.AddFile(0x01, 10, `World\Maps\b.adt`, enUS, []byte("b"))
	b.AddFile(0x02, 20, `world\maps\A.adt`, enUS, []byte("a"))
	b.AddFile(0x03, 30, `Interface\Logo.blp`, enUS, []byte("logo"))
	b.AddFile(0x04, 40, `Interface\Missing.blp`, enUS, nil)
	b.AddFile(0x05, 50, "", enUS, []byte("unnamed"))
	b.AddFile(0x06, -1, `Readme.txt`, enUS, []byte("top"))
	return b, catalog.New(b, catalog.BuildOptions{Locales: catalog.LocaleEnUS})
}

func TestListingWithIDs(t *testing.T) {
	b, c := newCatalog(t)

	var buf bytes.Buffer
	n, err := Listing(context.Background(), &buf, c, b)
	require.NoError(t, err)

	assert.Equal(t, 4, n)
	assert.Equal(t,
		"30;Interface\\Logo.blp\n"+
			"Readme.txt\n"+
			"20;world\\maps\\A.adt\n"+
			"10;World\\Maps\\b.adt\n",
		buf.String())
	assert.Equal(t, ListingWithIDs, DefaultListingName(b))
}

func TestListingNamesOnly(t *testing.T) {
	b, c := newCatalog(t)
	plain := namesOnly{b}

	var buf bytes.Buffer
	n, err := Listing(context.Background(), &buf, c, plain)
	require.NoError(t, err)

	assert.Equal(t, 4, n)
	assert.Equal(t,
		"Interface\\Logo.blp\n"+
			"Readme.txt\n"+
			"world\\maps\\A.adt\n"+
			"World\\Maps\\b.adt\n",
		buf.String())
	assert.Equal(t, ListingNamesOnly, DefaultListingName(plain))
}

func TestListingIncludesRenamedFiles(t *testing.T) {
	b, c := newCatalog(t)

	e, err := c.Acquire()
	require.NoError(t, err)
	files := e.UnknownFiles()
	require.Len(t, files, 1)
	require.NoError(t, e.Rename(files[0], `unknown\sound\hit.ogg`, true))
	e.Release()

	var buf bytes.Buffer
	_, err = Listing(context.Background(), &buf, c, b)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "50;unknown\\sound\\hit.ogg\n")
}

func TestDirectories(t *testing.T) {
	b, c := newCatalog(t)

	var buf bytes.Buffer
	n, err := Directories(context.Background(), &buf, c, b)
	require.NoError(t, err)

	// world\maps and World\Maps collapse into the first one in listing order
	assert.Equal(t, 2, n)
	assert.Equal(t, "Interface\nworld\\maps\n", buf.String())
}

func TestExportWhileBusy(t *testing.T) {
	b, c := newCatalog(t)

	e, err := c.Acquire()
	require.NoError(t, err)
	defer e.Release()

	_, err = Listing(context.Background(), io.Discard, c, b)
	assert.True(t, catalog.IsBusy(err))

	_, err = Directories(context.Background(), io.Discard, c, b)
	assert.True(t, catalog.IsBusy(err))
}

func TestExportCancelled(t *testing.T) {
	b, c := newCatalog(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Listing(ctx, io.Discard, c, b)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExportBackendUnavailable(t *testing.T) {
	b, c := newCatalog(t)
	down := outage{b}

	var buf bytes.Buffer
	_, err := Listing(context.Background(), &buf, c, down)
	assert.ErrorIs(t, err, storage.ErrBackendUnavailable)
	assert.Empty(t, buf.String())

	_, err = Directories(context.Background(), io.Discard, c, down)
	assert.ErrorIs(t, err, storage.ErrBackendUnavailable)
}

func TestToFile(t *testing.T) {
	b, c := newCatalog(t)
	path := filepath.Join(t.TempDir(), "out", DirectoriesListing)

	n, err := ToFile(path, func(w io.Writer) (int, error) {
		return Directories(context.Background(), w, c, b)
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Interface\nworld\\maps\n", string(data))
}

func TestToFileRemovesPartialOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), ListingWithIDs)
	boom := errors.New("boom")

	_, err := ToFile(path, func(w io.Writer) (int, error) {
		_, _ = io.WriteString(w, "partial")
		return 0, boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
