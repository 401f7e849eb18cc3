// Package testing provides a conformance suite for storage.Backend
// implementations.
package testing

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/marmos91/cascview/pkg/catalog"
	"github.com/marmos91/cascview/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// BackendTestSuite tests the Backend contract, not implementation details,
// so one suite covers the memory, filesystem and S3 backends.
//
// Usage:
//
//	func TestMyBackend(t *testing.T) {
//	    suite := &storagetesting.BackendTestSuite{
//	        NewBackend: func(t *testing.T, d storagetesting.Dataset) storage.Backend {
//	            return mybackend.Load(t, d)
//	        },
//	    }
//	    suite.Run(t)
//	}
type BackendTestSuite struct {
	// NewBackend returns a fresh backend serving d. Each subtest gets its own.
	NewBackend func(t *testing.T, d Dataset) storage.Backend
}

// Run executes all tests in the suite.
func (suite *BackendTestSuite) Run(t *testing.T) {
	t.Run("Enumeration", suite.RunEnumerationTests)
	t.Run("Read", suite.RunReadTests)
	t.Run("Keys", suite.RunKeyTests)
	t.Run("Extract", suite.RunExtractTests)
}

func (suite *BackendTestSuite) newBackend(t *testing.T) storage.Backend {
	t.Helper()
	b := suite.NewBackend(t, Fixture())
	t.Cleanup(func() { _ = b.Close() })
	return b
}

// RunEnumerationTests checks the manifest half of the contract.
func (suite *BackendTestSuite) RunEnumerationTests(t *testing.T) {
	t.Run("RootEntries", func(t *testing.T) {
		b := suite.newBackend(t)

		count := 0
		for range b.RootEntries() {
			count++
		}
		assert.Equal(t, 5, count)
		assert.Len(t, b.GetEntries(0xAA), 2)
		assert.Empty(t, b.GetEntries(0x1234))
	})

	t.Run("Names", func(t *testing.T) {
		b := suite.newBackend(t)

		names := make(map[catalog.Hash]string)
		for h, n := range b.Names() {
			names[h] = n
		}
		assert.Equal(t, `Interface\Icons\Ability_Ambush.blp`, names[0xAA])
		assert.Equal(t, `Sound\Music\Theme.mp3`, names[0xBB])
		assert.NotContains(t, names, catalog.Hash(0xCC))
	})

	t.Run("InstallEntries", func(t *testing.T) {
		b := suite.newBackend(t)

		install, ok := b.(catalog.InstallSource)
		require.True(t, ok, "backend should expose the install manifest")

		entries := install.InstallEntries("windows", "X86_64", "US")
		require.Len(t, entries, 1)
		assert.Equal(t, "Wow.exe", entries[0].Name)
		assert.Len(t, install.InstallEntries(), 3)
	})

	t.Run("BuildName", func(t *testing.T) {
		b := suite.newBackend(t)

		info, ok := b.(storage.BuildInfo)
		require.True(t, ok)
		assert.Equal(t, "WOW-99999patch11.0.2_Retail", info.BuildName())
	})
}

// RunReadTests checks OpenFile, FileExists and GetFileSize.
func (suite *BackendTestSuite) RunReadTests(t *testing.T) {
	ctx := context.Background()

	t.Run("OpenFile", func(t *testing.T) {
		b := suite.newBackend(t)

		rc, err := b.OpenFile(ctx, 0xAA)
		require.NoError(t, err)
		defer rc.Close()

		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, "BLP2 icon bytes", string(data))
	})

	t.Run("PublishedWithoutBytes", func(t *testing.T) {
		b := suite.newBackend(t)

		_, err := b.OpenFile(ctx, 0xBB)
		assert.ErrorIs(t, err, storage.ErrNotFound)
		assert.False(t, b.FileExists(ctx, 0xBB))
	})

	t.Run("UnknownHash", func(t *testing.T) {
		b := suite.newBackend(t)

		_, err := b.OpenFile(ctx, 0x1234)
		assert.ErrorIs(t, err, storage.ErrNotFound)

		_, err = b.GetFileSize(ctx, 0x1234)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("FileSize", func(t *testing.T) {
		b := suite.newBackend(t)

		assert.True(t, b.FileExists(ctx, 0xCC))
		size, err := b.GetFileSize(ctx, 0xCC)
		require.NoError(t, err)
		assert.Equal(t, uint64(len("OggS unnamed")), size)
	})

	t.Run("CancelledContext", func(t *testing.T) {
		b := suite.newBackend(t)

		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := b.OpenFile(cancelled, 0xAA)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

// RunKeyTests checks id and path addressing.
func (suite *BackendTestSuite) RunKeyTests(t *testing.T) {
	ctx := context.Background()

	t.Run("ByID", func(t *testing.T) {
		b := suite.newBackend(t)

		h, err := storage.Resolve(b, storage.ByID(300))
		require.NoError(t, err)
		assert.Equal(t, catalog.Hash(0xCC), h)
		assert.True(t, storage.Exists(ctx, b, storage.ByID(300)))

		_, err = storage.Resolve(b, storage.ByID(999))
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("ByPath", func(t *testing.T) {
		b := suite.newBackend(t)

		rc, err := storage.Open(ctx, b, storage.ByPath("interface/icons/ability_ambush.BLP"))
		require.NoError(t, err)
		defer rc.Close()

		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, "BLP2 icon bytes", string(data))
	})

	t.Run("IDOf", func(t *testing.T) {
		b := suite.newBackend(t)

		ids, ok := b.(storage.IDResolver)
		require.True(t, ok)

		id, ok := ids.IDOf(0xAA)
		require.True(t, ok)
		assert.Equal(t, int32(100), id)

		_, ok = ids.IDOf(0xDD)
		assert.False(t, ok)
	})
}

// RunExtractTests checks file and install extraction against a temp dir.
func (suite *BackendTestSuite) RunExtractTests(t *testing.T) {
	ctx := context.Background()

	t.Run("ExtractFiles", func(t *testing.T) {
		b := suite.newBackend(t)
		c := catalog.New(b, catalog.BuildOptions{Locales: catalog.LocaleEnUS})

		entry, err := c.LookupPath(`Interface\Icons\Ability_Ambush.blp`)
		require.NoError(t, err)
		file, ok := entry.(*catalog.File)
		require.True(t, ok)

		dir := t.TempDir()
		var progress []int
		err = storage.ExtractFiles(ctx, b, []*catalog.File{file}, dir, func(p int) {
			progress = append(progress, p)
		})
		require.NoError(t, err)
		assert.Equal(t, []int{100}, progress)

		data, err := os.ReadFile(filepath.Join(dir, "Interface", "Icons", "Ability_Ambush.blp"))
		require.NoError(t, err)
		assert.Equal(t, "BLP2 icon bytes", string(data))
	})

	t.Run("ExtractMissingBytes", func(t *testing.T) {
		b := suite.newBackend(t)
		c := catalog.New(b, catalog.BuildOptions{Locales: catalog.LocaleEnUS})

		entry, err := c.LookupPath(`Sound\Music\Theme.mp3`)
		require.NoError(t, err)

		err = storage.ExtractFiles(ctx, b, []*catalog.File{entry.(*catalog.File)}, t.TempDir(), nil)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("ExtractInstallFiles", func(t *testing.T) {
		b := suite.newBackend(t)
		dir := t.TempDir()

		require.NoError(t, storage.ExtractInstallFiles(ctx, b, dir, nil))

		build := filepath.Join(dir, "WOW-99999patch11.0.2_Retail")
		data, err := os.ReadFile(filepath.Join(build, "Windows_install_files", "Wow.exe"))
		require.NoError(t, err)
		assert.Equal(t, "launcher", string(data))

		// x86_32 entries are not extracted
		_, err = os.Stat(filepath.Join(build, "Windows_install_files", "WowB.exe"))
		assert.True(t, os.IsNotExist(err))

		// the OSX entry has no bytes and is skipped
		_, err = os.Stat(filepath.Join(build, "OSX_install_files", "World of Warcraft.app", "Contents", "Info.plist"))
		assert.True(t, os.IsNotExist(err))
	})
}
