// Package s3 serves an extracted dataset from Amazon S3 or an S3-compatible
// object store.
//
// The bucket mirrors the filesystem backend layout under an optional key
// prefix: manifest files at the top and raw bytes under
// objects/<first two hex digits>/<hash>.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/marmos91/cascview/internal/ratelimiter"
	"github.com/marmos91/cascview/pkg/catalog"
	"github.com/marmos91/cascview/pkg/storage"
)

// API is the subset of the S3 client the backend uses.
type API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// Config configures the S3 backend.
type Config struct {
	// Client is the configured S3 client
	Client API

	// Bucket is the bucket holding the dataset
	Bucket string

	// KeyPrefix is prepended to every object key
	// Example: "wow/11.0.2/" results in keys like "wow/11.0.2/root.txt"
	KeyPrefix string

	// RequestsPerSecond throttles requests; zero disables throttling
	RequestsPerSecond uint

	// Burst is the token bucket capacity
	Burst uint

	// Metrics is optional
	Metrics Metrics
}

// Backend reads objects from S3.
//
// Thread Safety:
// Safe for concurrent use. Every request first takes a token from the rate
// limiter, so a resolution pass sniffing thousands of files cannot exceed
// the configured request rate.
type Backend struct {
	*storage.Manifest

	client    API
	bucket    string
	keyPrefix string
	limiter   *ratelimiter.RateLimiter
	metrics   Metrics
}

var _ storage.Backend = (*Backend)(nil)

// Open validates cfg and loads the manifest from the bucket.
//
// Parameters:
//   - ctx: Context for cancellation and timeouts
//   - cfg: Backend configuration
//
// Returns:
//   - *Backend: Ready backend
//   - error: Invalid configuration, unreachable bucket or malformed manifest
func Open(ctx context.Context, cfg Config) (*Backend, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.Client == nil {
		return nil, fmt.Errorf("S3 client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	burst := cfg.Burst
	if burst == 0 {
		burst = cfg.RequestsPerSecond
	}

	b := &Backend{
		client:    cfg.Client,
		bucket:    cfg.Bucket,
		keyPrefix: cfg.KeyPrefix,
		limiter:   ratelimiter.New(cfg.RequestsPerSecond, burst),
		metrics:   cfg.Metrics,
	}
	if b.metrics == nil {
		b.metrics = noopMetrics{}
	}

	m, err := storage.LoadManifest(ctx, b.get)
	if err != nil {
		return nil, fmt.Errorf("bucket %q: %w", cfg.Bucket, err)
	}
	b.Manifest = m
	return b, nil
}

func (b *Backend) objectKey(name string) string {
	return b.keyPrefix + name
}

// isNotFound recognizes the missing-object errors of GetObject and HeadObject.
func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}

func mapError(what string, err error) error {
	if isNotFound(err) {
		return fmt.Errorf("%s: %w", what, storage.ErrNotFound)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%s: %v: %w", what, err, storage.ErrBackendUnavailable)
}

// get downloads name (relative to the key prefix).
func (b *Backend) get(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(name)),
	})
	if err != nil {
		err = mapError(name, err)
	}
	b.metrics.ObserveOperation("GetObject", time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return &metricsReadCloser{ReadCloser: out.Body, metrics: b.metrics, operation: "GetObject"}, nil
}

func (b *Backend) head(ctx context.Context, name string) (*s3.HeadObjectOutput, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	out, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(name)),
	})
	if err != nil {
		err = mapError(name, err)
	}
	b.metrics.ObserveOperation("HeadObject", time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *Backend) OpenFile(ctx context.Context, hash catalog.Hash) (io.ReadCloser, error) {
	return b.get(ctx, storage.ObjectKey(hash))
}

func (b *Backend) FileExists(ctx context.Context, hash catalog.Hash) bool {
	_, err := b.head(ctx, storage.ObjectKey(hash))
	return err == nil
}

func (b *Backend) GetFileSize(ctx context.Context, hash catalog.Hash) (uint64, error) {
	out, err := b.head(ctx, storage.ObjectKey(hash))
	if err != nil {
		return 0, err
	}
	if out.ContentLength == nil {
		return 0, fmt.Errorf("content length not available for %s", hash)
	}
	return uint64(*out.ContentLength), nil
}

// Close is a no-op; the S3 client owns no per-backend resources.
func (b *Backend) Close() error { return nil }
