package memory

import (
	"context"
	"testing"

	"github.com/marmos91/cascview/pkg/storage"
	storagetesting "github.com/marmos91/cascview/pkg/storage/testing"
	"github.com/stretchr/testify/assert"
)

func load(d storagetesting.Dataset) *Backend {
	b := New()
	for _, o := range d.Objects {
		b.AddFile(o.Hash, o.ID, o.Path, o.Entry, o.Data)
	}
	for _, e := range d.Install {
		b.AddInstall(e)
	}
	b.SetBuild(d.Build)
	return b
}

// TestMemoryBackend runs the complete Backend test suite against the
// in-memory implementation.
func TestMemoryBackend(t *testing.T) {
	suite := &storagetesting.BackendTestSuite{
		NewBackend: func(t *testing.T, d storagetesting.Dataset) storage.Backend {
			return load(d)
		},
	}

	suite.Run(t)
}

func TestClosedBackendUnavailable(t *testing.T) {
	b := load(storagetesting.Fixture())
	assert.NoError(t, b.Close())

	_, err := b.OpenFile(context.Background(), 0xAA)
	assert.ErrorIs(t, err, storage.ErrBackendUnavailable)
	assert.False(t, b.FileExists(context.Background(), 0xAA))
}

func TestPutCopiesData(t *testing.T) {
	b := New()
	data := []byte("abc")
	b.Put(1, data)
	data[0] = 'x'

	size, err := b.GetFileSize(context.Background(), 1)
	assert.NoError(t, err)
	assert.Equal(t, uint64(3), size)

	rc, err := b.OpenFile(context.Background(), 1)
	assert.NoError(t, err)
	buf := make([]byte, 3)
	_, _ = rc.Read(buf)
	assert.Equal(t, "abc", string(buf))
}
