// Package memory keeps audit records in process memory.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/marmos91/cascview/pkg/audit"
)

// Log is an in-memory audit.Log. Records are lost when the process exits.
type Log struct {
	mu     sync.Mutex
	passes []string
	byPass map[string][]audit.Record
	closed bool
}

var _ audit.Log = (*Log)(nil)

func New() *Log {
	return &Log{byPass: make(map[string][]audit.Record)}
}

func (l *Log) Append(ctx context.Context, rec audit.Record) (audit.Record, error) {
	if err := ctx.Err(); err != nil {
		return audit.Record{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return audit.Record{}, audit.ErrClosed
	}

	records, seen := l.byPass[rec.PassID]
	if !seen {
		l.passes = append(l.passes, rec.PassID)
	}
	rec = audit.Stamp(rec, uint64(len(records))+1, time.Now)
	l.byPass[rec.PassID] = append(records, rec)
	return rec, nil
}

func (l *Log) Records(ctx context.Context, passID string) ([]audit.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, audit.ErrClosed
	}
	return append([]audit.Record(nil), l.byPass[passID]...), nil
}

func (l *Log) Passes(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, audit.ErrClosed
	}
	return append([]string(nil), l.passes...), nil
}

func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}
