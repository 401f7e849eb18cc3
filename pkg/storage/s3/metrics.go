package s3

import (
	"io"
	"time"
)

// Metrics observes S3 requests. It is optional; nil skips collection.
type Metrics interface {
	// ObserveOperation records one GetObject or HeadObject call. err wraps
	// storage.ErrNotFound for a missing object.
	ObserveOperation(operation string, duration time.Duration, err error)

	// RecordBytes records bytes read from an object body
	RecordBytes(operation string, bytes int64)
}

type noopMetrics struct{}

func (noopMetrics) ObserveOperation(string, time.Duration, error) {}
func (noopMetrics) RecordBytes(string, int64)                     {}

// metricsReadCloser counts the bytes read from an object body and reports
// them on Close.
type metricsReadCloser struct {
	io.ReadCloser
	metrics   Metrics
	operation string
	bytesRead int64
}

func (m *metricsReadCloser) Read(p []byte) (int, error) {
	n, err := m.ReadCloser.Read(p)
	m.bytesRead += int64(n)
	return n, err
}

func (m *metricsReadCloser) Close() error {
	err := m.ReadCloser.Close()
	if m.bytesRead > 0 {
		m.metrics.RecordBytes(m.operation, m.bytesRead)
	}
	return err
}
