// Package badger persists audit records in a BadgerDB database so decisions
// of earlier sessions stay reviewable.
package badger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/marmos91/cascview/internal/logger"
	"github.com/marmos91/cascview/pkg/audit"
)

// Config configures the badger audit store.
type Config struct {
	// DBPath is the database directory
	DBPath string

	// InMemory keeps the database in memory (tests)
	InMemory bool
}

// Log is a persistent audit.Log.
//
// Thread Safety:
// Appends are serialized by mu so sequence numbers stay dense. Reads run
// in badger read transactions without taking mu.
type Log struct {
	mu sync.Mutex
	db *badger.DB
}

var _ audit.Log = (*Log)(nil)

// Open opens (or creates) the database described by cfg.
func Open(ctx context.Context, cfg Config) (*Log, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.DBPath == "" && !cfg.InMemory {
		return nil, fmt.Errorf("badger audit log: db path is required")
	}

	opts := badger.DefaultOptions(cfg.DBPath)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithLoggingLevel(badger.WARNING)
	opts = opts.WithCompression(options.None) // records are small

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", cfg.DBPath, err)
	}

	logger.Debug("Audit log opened at %s", cfg.DBPath)
	return &Log{db: db}, nil
}

func (l *Log) Append(ctx context.Context, rec audit.Record) (audit.Record, error) {
	if err := ctx.Err(); err != nil {
		return audit.Record{}, err
	}
	if rec.PassID == "" {
		return audit.Record{}, fmt.Errorf("audit record without pass id")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var stored audit.Record
	err := l.db.Update(func(txn *badger.Txn) error {
		// Step 1: Load or start the pass header
		pass := passValue{Started: time.Now().UnixNano()}
		item, err := txn.Get(keyPass(rec.PassID))
		switch {
		case err == nil:
			if err := item.Value(func(val []byte) error {
				pass, err = decodePass(val)
				return err
			}); err != nil {
				return fmt.Errorf("decode pass %s: %w", rec.PassID, err)
			}
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		// Step 2: Store the record under the next sequence number
		pass.Count++
		stored = audit.Stamp(rec, pass.Count, time.Now)
		value, err := encodeRecord(stored)
		if err != nil {
			return err
		}
		if err := txn.Set(keyRecord(rec.PassID, pass.Count), value); err != nil {
			return err
		}

		// Step 3: Persist the updated header
		header, err := encode(&pass)
		if err != nil {
			return err
		}
		return txn.Set(keyPass(rec.PassID), header)
	})
	if err != nil {
		return audit.Record{}, mapError(err)
	}
	return stored, nil
}

func (l *Log) Records(ctx context.Context, passID string) ([]audit.Record, error) {
	var records []audit.Record
	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = keyRecordPrefix(passID)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			item := it.Item()
			id, seq, err := parseRecordKey(item.KeyCopy(nil))
			if err != nil {
				return err
			}
			err = item.Value(func(val []byte) error {
				rec, err := decodeRecord(id, seq, val)
				if err != nil {
					return fmt.Errorf("decode record %s/%d: %w", id, seq, err)
				}
				records = append(records, rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, mapError(err)
	}
	return records, nil
}

func (l *Log) Passes(ctx context.Context) ([]string, error) {
	type started struct {
		id string
		at int64
	}
	var passes []started

	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(passPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			id := string(item.Key()[len(passPrefix):])
			err := item.Value(func(val []byte) error {
				v, err := decodePass(val)
				if err != nil {
					return fmt.Errorf("decode pass %s: %w", id, err)
				}
				passes = append(passes, started{id: id, at: v.Started})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, mapError(err)
	}

	sort.SliceStable(passes, func(i, j int) bool { return passes[i].at < passes[j].at })
	ids := make([]string, len(passes))
	for i, p := range passes {
		ids[i] = p.id
	}
	return ids, nil
}

func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.db.Close()
}

func mapError(err error) error {
	if errors.Is(err, badger.ErrDBClosed) {
		return audit.ErrClosed
	}
	return err
}
