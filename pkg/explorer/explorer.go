// Package explorer is the session facade the CLI (or any other front end)
// drives: it owns one storage backend, the catalog built over it, the
// resolver and the audit log, and exposes the browse, resolve, export and
// extract operations over them.
package explorer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/cascview/internal/logger"
	"github.com/marmos91/cascview/pkg/audit"
	"github.com/marmos91/cascview/pkg/catalog"
	"github.com/marmos91/cascview/pkg/preview"
	"github.com/marmos91/cascview/pkg/resolver"
	"github.com/marmos91/cascview/pkg/storage"
	"github.com/marmos91/cascview/pkg/table"
)

// Metrics observes the catalog side of a session. Nil uses a no-op
// implementation.
type Metrics interface {
	// SetCounts publishes the status counters after a build or a pass
	SetCounts(files, unknown int)

	// ObserveRebuild records the duration of a (re)build
	ObserveRebuild(duration time.Duration)

	// ObserveExport records one export ("listing" or "directories")
	ObserveExport(kind string, lines int, err error)
}

type noopMetrics struct{}

func (noopMetrics) SetCounts(int, int)               {}
func (noopMetrics) ObserveRebuild(time.Duration)     {}
func (noopMetrics) ObserveExport(string, int, error) {}

// Config wires a Session.
type Config struct {
	// Backend serves bytes and manifests; the session closes it
	Backend storage.Backend

	// Audit records resolver decisions; the session closes it
	Audit audit.Log

	// Options of the initial build
	Options catalog.BuildOptions

	// Sources feed the resolver's candidate map, in order
	Sources []resolver.CandidateSource

	// HasKey gates encrypted table sections
	HasKey table.KeyCheck

	// ResolverMetrics and Metrics are optional
	ResolverMetrics resolver.Metrics
	Metrics         Metrics

	// Previews dispatches file previews; nil uses preview.DefaultRegistry
	Previews *preview.Registry
}

// Session is one open dataset.
//
// Thread Safety:
// All methods are safe for concurrent use. A resolution pass runs in the
// background and holds the catalog's exclusive lock; queries issued
// meanwhile fail with catalog.ErrBusy and a rebuild fails with
// catalog.ErrReadOnly.
type Session struct {
	backend  storage.Backend
	catalog  *catalog.Catalog
	resolver *resolver.Resolver
	audit    audit.Log
	previews *preview.Registry
	metrics  Metrics

	mu      sync.Mutex
	running *Pass
	closed  bool
}

// Open builds the catalog and returns a ready session.
//
// Parameters:
//   - cfg: Session wiring; Backend and Audit are required
//
// Returns:
//   - *Session: Ready session
//   - error: Missing dependency or invalid build options
func Open(cfg Config) (*Session, error) {
	if cfg.Backend == nil {
		return nil, errors.New("explorer: backend is required")
	}
	if cfg.Audit == nil {
		return nil, errors.New("explorer: audit log is required")
	}
	if cfg.Options.Locales == catalog.LocaleNone {
		return nil, &catalog.Error{Code: catalog.ErrInvalidArgument, Message: "no locale selected"}
	}

	s := &Session{
		backend:  cfg.Backend,
		audit:    cfg.Audit,
		previews: cfg.Previews,
		metrics:  cfg.Metrics,
	}
	if s.previews == nil {
		s.previews = preview.DefaultRegistry()
	}
	if s.metrics == nil {
		s.metrics = noopMetrics{}
	}

	start := time.Now()
	s.catalog = catalog.New(cfg.Backend, cfg.Options)
	s.metrics.ObserveRebuild(time.Since(start))

	r, err := resolver.New(resolver.Config{
		Backend: cfg.Backend,
		Catalog: s.catalog,
		Audit:   cfg.Audit,
		Sources: cfg.Sources,
		HasKey:  cfg.HasKey,
		Metrics: cfg.ResolverMetrics,
	})
	if err != nil {
		return nil, err
	}
	s.resolver = r

	status, err := s.Status()
	if err != nil {
		return nil, err
	}
	logger.Info("Loaded %d files (%d names missing) for %s", status.Files, status.Unknown, cfg.Options.Locales)
	return s, nil
}

// Catalog returns the session's catalog.
func (s *Session) Catalog() *catalog.Catalog { return s.catalog }

// Backend returns the session's backend.
func (s *Session) Backend() storage.Backend { return s.backend }

// Close waits for a running pass, then closes the audit log and the
// backend.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	running := s.running
	s.mu.Unlock()

	if running != nil {
		<-running.done
	}

	return errors.Join(s.audit.Close(), s.backend.Close())
}

// ============================================================================
// Browsing
// ============================================================================

// Root returns the root folder of the current tree.
func (s *Session) Root() (*catalog.Folder, error) {
	return s.catalog.Root()
}

// Folder looks up the folder at path. The empty path is the root.
func (s *Session) Folder(path string) (*catalog.Folder, error) {
	if catalog.NormalizePath(path) == "" {
		return s.catalog.Root()
	}
	e, err := s.catalog.LookupPath(path)
	if err != nil {
		return nil, err
	}
	f, ok := e.(*catalog.Folder)
	if !ok {
		return nil, &catalog.Error{Code: catalog.ErrInvalidArgument, Message: "not a folder", Path: path}
	}
	return f, nil
}

// ListChildren returns the subfolders of folder in name order.
func (s *Session) ListChildren(folder *catalog.Folder) ([]*catalog.Folder, error) {
	return s.catalog.ListChildren(folder)
}

// FilteredSortedView lists folder filtered by a wildcard pattern and
// ordered by sorter.
func (s *Session) FilteredSortedView(ctx context.Context, folder *catalog.Folder, pattern string, sorter catalog.Sorter) (*catalog.View, error) {
	return s.catalog.FilteredSortedView(ctx, folder, pattern, sorter)
}

// ResolveEntries maps view positions to files, expanding folders unless
// filesOnly is set.
func (s *Session) ResolveEntries(view *catalog.View, positions []int, filesOnly bool) ([]*catalog.File, error) {
	return s.catalog.ResolveEntries(view, positions, filesOnly)
}

// Search returns the position of the next row of view whose name contains
// text, or -1.
func (s *Session) Search(view *catalog.View, text string, from int, backwards bool) int {
	return catalog.Search(view, text, from, backwards)
}

// TotalSize sums the backend sizes of files.
func (s *Session) TotalSize(ctx context.Context, files []*catalog.File) (uint64, error) {
	return s.catalog.TotalSize(ctx, files)
}

// Describe renders entry for a listing.
func (s *Session) Describe(ctx context.Context, entry catalog.Entry) catalog.Description {
	return s.catalog.Describe(ctx, entry)
}

// IDOf returns the numeric file id of entry when the backend has ids.
func (s *Session) IDOf(entry catalog.Entry) (int32, bool) {
	ids, ok := s.backend.(storage.IDResolver)
	if !ok || entry.Kind() != catalog.KindFile {
		return 0, false
	}
	return ids.IDOf(entry.Hash())
}

// Status is the session's status line.
type Status struct {
	Files   int
	Unknown int
	Build   string
	Options catalog.BuildOptions
}

func (st Status) String() string {
	return fmt.Sprintf("Loaded %d files (%d names missing)", st.Files, st.Unknown)
}

// Status returns the current counters. It fails with ErrBusy during a pass.
func (s *Session) Status() (Status, error) {
	counts, err := s.catalog.Counts()
	if err != nil {
		return Status{}, err
	}
	st := Status{Files: counts.Files, Unknown: counts.Unknown, Options: s.catalog.Options()}
	if info, ok := s.backend.(storage.BuildInfo); ok {
		st.Build = info.BuildName()
	}
	s.metrics.SetCounts(st.Files, st.Unknown)
	return st, nil
}

// ChangeLocale rebuilds the tree for locales, keeping the other build
// options. Folders and views of the previous tree become stale.
func (s *Session) ChangeLocale(ctx context.Context, locales catalog.LocaleFlags) error {
	opts := s.catalog.Options()
	opts.Locales = locales
	return s.Rebuild(ctx, opts)
}

// Rebuild derives a new tree for opts. It fails with ErrReadOnly while a
// pass is running.
func (s *Session) Rebuild(ctx context.Context, opts catalog.BuildOptions) error {
	if opts.Locales == catalog.LocaleNone {
		return &catalog.Error{Code: catalog.ErrInvalidArgument, Message: "no locale selected"}
	}

	start := time.Now()
	if err := s.catalog.Rebuild(ctx, opts); err != nil {
		return err
	}
	s.metrics.ObserveRebuild(time.Since(start))

	st, err := s.Status()
	if err != nil {
		return err
	}
	logger.Info("%s for %s", st, opts.Locales)
	return nil
}

// Preview renders a short preview of f.
func (s *Session) Preview(ctx context.Context, f *catalog.File) (preview.Preview, error) {
	return s.previews.Render(ctx, s.backend, f)
}

// AuditTrail returns the decisions recorded by one pass.
func (s *Session) AuditTrail(ctx context.Context, passID string) ([]audit.Record, error) {
	return s.audit.Records(ctx, passID)
}

// Passes returns the ids of recorded passes, oldest first.
func (s *Session) Passes(ctx context.Context) ([]string, error) {
	return s.audit.Passes(ctx)
}
