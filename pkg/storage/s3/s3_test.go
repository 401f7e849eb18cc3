package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/marmos91/cascview/pkg/storage"
	storagetesting "github.com/marmos91/cascview/pkg/storage/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 serves objects from a map and counts requests.
type fakeS3 struct {
	mu       sync.Mutex
	bucket   string
	objects  map[string][]byte
	requests int
	fail     error
}

func newFakeS3(bucket, prefix string, files map[string][]byte) *fakeS3 {
	f := &fakeS3{bucket: bucket, objects: make(map[string][]byte)}
	for k, v := range files {
		f.objects[prefix+k] = v
	}
	return f
}

func (f *fakeS3) lookup(bucket, key *string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests++
	if f.fail != nil {
		return nil, f.fail
	}
	if aws.ToString(bucket) != f.bucket {
		return nil, &smithy.GenericAPIError{Code: "NoSuchBucket", Message: "bucket not found"}
	}
	data, ok := f.objects[aws.ToString(key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return data, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, err := f.lookup(in.Bucket, in.Key)
	if err != nil {
		return nil, err
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: aws.Int64(int64(len(data))),
	}, nil
}

func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	data, err := f.lookup(in.Bucket, in.Key)
	if err != nil {
		if errors.As(err, new(*types.NoSuchKey)) {
			// HeadObject has no body, so S3 reports a bare 404
			return nil, &types.NotFound{}
		}
		return nil, err
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(data)))}, nil
}

// TestS3Backend runs the complete Backend test suite against an in-process
// fake of the S3 API.
func TestS3Backend(t *testing.T) {
	suite := &storagetesting.BackendTestSuite{
		NewBackend: func(t *testing.T, d storagetesting.Dataset) storage.Backend {
			client := newFakeS3("datasets", "wow/", d.Files())
			b, err := Open(context.Background(), Config{
				Client:    client,
				Bucket:    "datasets",
				KeyPrefix: "wow/",
			})
			require.NoError(t, err)
			return b
		},
	}

	suite.Run(t)
}

func TestOpenValidation(t *testing.T) {
	ctx := context.Background()

	_, err := Open(ctx, Config{Bucket: "b"})
	assert.Error(t, err)

	_, err = Open(ctx, Config{Client: newFakeS3("b", "", nil)})
	assert.Error(t, err)
}

func TestWrongBucketUnavailable(t *testing.T) {
	client := newFakeS3("datasets", "", storagetesting.Fixture().Files())

	_, err := Open(context.Background(), Config{Client: client, Bucket: "other"})
	assert.ErrorIs(t, err, storage.ErrBackendUnavailable)
}

func TestTransportErrorUnavailable(t *testing.T) {
	client := newFakeS3("datasets", "", storagetesting.Fixture().Files())
	b, err := Open(context.Background(), Config{Client: client, Bucket: "datasets"})
	require.NoError(t, err)

	client.fail = errors.New("connection reset by peer")

	_, err = b.OpenFile(context.Background(), 0xAA)
	assert.ErrorIs(t, err, storage.ErrBackendUnavailable)
	assert.True(t, strings.Contains(err.Error(), "connection reset"))
	assert.False(t, b.FileExists(context.Background(), 0xAA))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(&types.NoSuchKey{}))
	assert.True(t, isNotFound(&types.NotFound{}))
	assert.True(t, isNotFound(&smithy.GenericAPIError{Code: "NotFound"}))
	assert.False(t, isNotFound(&smithy.GenericAPIError{Code: "AccessDenied"}))
	assert.False(t, isNotFound(errors.New("boom")))
}

func TestRequestsAreThrottled(t *testing.T) {
	client := newFakeS3("datasets", "", storagetesting.Fixture().Files())
	b, err := Open(context.Background(), Config{
		Client:            client,
		Bucket:            "datasets",
		RequestsPerSecond: 1,
		Burst:             100,
	})
	require.NoError(t, err)
	assert.True(t, b.limiter.Enabled())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = b.OpenFile(ctx, 0xAA)
	assert.Error(t, err)
}

type recordingMetrics struct {
	mu    sync.Mutex
	ops   map[string]int
	fails int
	bytes map[string]int64
}

func (m *recordingMetrics) ObserveOperation(op string, _ time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops[op]++
	if err != nil {
		m.fails++
	}
}

func (m *recordingMetrics) RecordBytes(op string, n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bytes[op] += n
}

func TestMetricsObserveRequests(t *testing.T) {
	ctx := context.Background()
	client := newFakeS3("datasets", "", storagetesting.Fixture().Files())
	m := &recordingMetrics{ops: make(map[string]int), bytes: make(map[string]int64)}

	b, err := Open(ctx, Config{Client: client, Bucket: "datasets", Metrics: m})
	require.NoError(t, err)
	loaded := m.ops["GetObject"]
	assert.Positive(t, loaded, "manifest files are fetched with GetObject")

	rc, err := b.OpenFile(ctx, 0xAA)
	require.NoError(t, err)
	_, err = io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())

	assert.False(t, b.FileExists(ctx, 0x1234))

	assert.Equal(t, loaded+1, m.ops["GetObject"])
	assert.Equal(t, 1, m.ops["HeadObject"])
	assert.GreaterOrEqual(t, m.fails, 1)
	assert.GreaterOrEqual(t, m.bytes["GetObject"], int64(len("BLP2 icon bytes")))
}
