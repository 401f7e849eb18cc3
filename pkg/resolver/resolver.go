// Package resolver assigns names to the files of the catalog's unknown
// folder.
//
// A pass runs in three phases while holding the catalog's exclusive lock:
//
//  1. Candidate sources (sound tables, static lists) fill a CandidateMap
//     keyed by numeric file id.
//  2. Every unknown file is looked up by id. One candidate renames the file,
//     several split it into one file per candidate sharing the hash, none
//     falls back to sniffing the file's header.
//  3. The catalog is verified and the lock released.
//
// Every decision is appended to the audit log.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/cascview/internal/logger"
	"github.com/marmos91/cascview/pkg/audit"
	"github.com/marmos91/cascview/pkg/catalog"
	"github.com/marmos91/cascview/pkg/sniff"
	"github.com/marmos91/cascview/pkg/storage"
	"github.com/marmos91/cascview/pkg/table"
)

// Progress receives the completion percentage of the application pass.
type Progress func(percent int)

// Metrics observes resolution passes. Nil uses a no-op implementation.
type Metrics interface {
	// ObservePass records a finished pass and its outcome ("ok" or "aborted")
	ObservePass(duration time.Duration, outcome string)

	// RecordDecision counts one decision of the application pass
	RecordDecision(kind audit.Kind)

	// SetUnknown publishes the number of files still unknown
	SetUnknown(n int)
}

type noopMetrics struct{}

func (noopMetrics) ObservePass(time.Duration, string) {}
func (noopMetrics) RecordDecision(audit.Kind)         {}
func (noopMetrics) SetUnknown(int)                    {}

// Config wires a Resolver.
type Config struct {
	Backend storage.Backend
	Catalog *catalog.Catalog

	// Audit receives every decision; required
	Audit audit.Log

	// Sources run in order before the application pass
	Sources []CandidateSource

	// HasKey gates encrypted table sections; nil skips them all
	HasKey table.KeyCheck

	// Metrics is optional
	Metrics Metrics
}

// Resolver runs resolution passes over one catalog.
type Resolver struct {
	backend storage.Backend
	ids     storage.IDResolver
	catalog *catalog.Catalog
	audit   audit.Log
	sources []CandidateSource
	hasKey  table.KeyCheck
	metrics Metrics
}

// New validates cfg and returns a Resolver.
func New(cfg Config) (*Resolver, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("resolver: backend is required")
	}
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("resolver: catalog is required")
	}
	if cfg.Audit == nil {
		return nil, fmt.Errorf("resolver: audit log is required")
	}

	r := &Resolver{
		backend: cfg.Backend,
		catalog: cfg.Catalog,
		audit:   cfg.Audit,
		sources: cfg.Sources,
		hasKey:  cfg.HasKey,
		metrics: cfg.Metrics,
	}
	if r.metrics == nil {
		r.metrics = noopMetrics{}
	}
	if ids, ok := cfg.Backend.(storage.IDResolver); ok {
		r.ids = ids
	} else {
		logger.Warn("Backend has no numeric file ids; only header sniffing will name files")
	}
	return r, nil
}

// Result summarizes a pass.
type Result struct {
	PassID string

	// Candidates is the number of ids with at least one candidate name
	Candidates int

	// Processed is the number of unknown files visited
	Processed int

	Renamed   int
	Split     int
	Created   int // files materialized by splits
	Sniffed   int
	Conflicts int

	// Unresolved is the number of files still unknown after the pass
	Unresolved int

	Duration time.Duration
	Report   catalog.DumpReport
}

// PassError is the single failure an aborted pass reports. Renames and
// splits committed before the failure stay in effect.
type PassError struct {
	PassID    string
	Processed int
	Total     int
	Err       error
}

func (e *PassError) Error() string {
	return fmt.Sprintf("resolution pass %s aborted after %d of %d files: %v",
		e.PassID, e.Processed, e.Total, e.Err)
}

func (e *PassError) Unwrap() error { return e.Err }

// Run executes one resolution pass.
//
// The catalog's exclusive lock is held from the first table read until the
// consistency check at the end; concurrent queries fail with ErrBusy and a
// second Run fails with ErrBusy immediately.
//
// Parameters:
//   - ctx: Checked between files; cancellation aborts the pass
//   - progress: Called after each file with the percentage done (may be nil)
//
// Returns:
//   - Result: Counters of the pass, also on failure
//   - error: ErrBusy, or a *PassError wrapping the storage or audit failure
func (r *Resolver) Run(ctx context.Context, progress Progress) (Result, error) {
	editor, err := r.catalog.Acquire()
	if err != nil {
		return Result{}, err
	}
	defer editor.Release()

	start := time.Now()
	p := &pass{
		Resolver: r,
		ctx:      ctx,
		editor:   editor,
		result:   Result{PassID: uuid.NewString()},
	}
	logger.Info("Resolution pass %s started", p.result.PassID)

	err = p.run(progress)
	p.result.Duration = time.Since(start)

	if err != nil {
		r.metrics.ObservePass(p.result.Duration, "aborted")
		logger.Error("%v", err)
		return p.result, err
	}

	r.metrics.ObservePass(p.result.Duration, "ok")
	r.metrics.SetUnknown(p.result.Unresolved)
	logger.Info("Resolution pass %s done in %s: %d renamed, %d split into %d, %d sniffed, %d conflicts, %d still unknown",
		p.result.PassID, p.result.Duration.Round(time.Millisecond), p.result.Renamed, p.result.Split,
		p.result.Created, p.result.Sniffed, p.result.Conflicts, p.result.Unresolved)
	return p.result, nil
}

// pass is the state of one Run.
type pass struct {
	*Resolver
	ctx    context.Context
	editor *catalog.Editor
	result Result
	total  int
}

func (p *pass) abort(err error) error {
	return &PassError{
		PassID:    p.result.PassID,
		Processed: p.result.Processed,
		Total:     p.total,
		Err:       err,
	}
}

func (p *pass) run(progress Progress) error {
	// Step 1: collect candidates
	cands := NewCandidateMap()
	env := Env{Backend: p.backend, HasKey: p.hasKey}
	for _, src := range p.sources {
		if err := src.Collect(p.ctx, env, cands); err != nil {
			return p.abort(fmt.Errorf("%s: %w", src.Name(), err))
		}
	}
	p.result.Candidates = cands.Len()

	for id, name := range cands.All() {
		logger.Debug("%d;%s", id, name)
		if err := p.record(audit.KindCandidate, id, 0, name); err != nil {
			return p.abort(err)
		}
	}

	// Step 2: apply them to every unknown file
	files := p.editor.UnknownFiles()
	p.total = len(files)
	logger.Info("Resolving %d unknown files with %d candidate names for %d ids",
		p.total, cands.Count(), cands.Len())

	for _, f := range files {
		if err := p.ctx.Err(); err != nil {
			return p.abort(err)
		}
		if err := p.apply(f, cands); err != nil {
			return p.abort(err)
		}
		p.result.Processed++
		if progress != nil {
			progress(p.result.Processed * 100 / p.total)
		}
	}
	if p.total == 0 && progress != nil {
		progress(100)
	}

	// Step 3: consistency pass
	report, err := p.editor.Verify(p.ctx)
	if err != nil {
		return p.abort(err)
	}
	p.result.Report = report
	p.result.Unresolved = report.Unknown
	return nil
}

func (p *pass) idOf(hash catalog.Hash) (int32, bool) {
	if p.ids == nil {
		return audit.NoID, false
	}
	id, ok := p.ids.IDOf(hash)
	if !ok {
		return audit.NoID, false
	}
	return id, true
}

func (p *pass) record(kind audit.Kind, id int32, hash catalog.Hash, name string) error {
	_, err := p.audit.Append(p.ctx, audit.Record{
		PassID: p.result.PassID,
		Kind:   kind,
		ID:     id,
		Hash:   hash,
		Name:   name,
	})
	if err != nil {
		return fmt.Errorf("audit: %w", err)
	}
	if kind != audit.KindCandidate {
		p.metrics.RecordDecision(kind)
	}
	return nil
}

func unknownPath(name string) string {
	return catalog.UnknownFolderName + catalog.PathSeparator + name
}

// apply resolves one file. Naming conflicts are recorded and skipped; only
// storage and audit failures are returned.
func (p *pass) apply(f *catalog.File, cands *CandidateMap) error {
	hash := f.Hash()
	id, hasID := p.idOf(hash)

	var names []string
	if hasID {
		names = cands.Get(id)
	}

	switch len(names) {
	case 0:
		return p.sniff(f, id, hasID)

	case 1:
		path := unknownPath(names[0])
		if err := p.rename(f, path, true); err != nil {
			return p.conflict(id, hash, path, err)
		}
		logger.Debug("Renamed %d (%s) to %s", id, hash, path)
		p.result.Renamed++
		return p.record(audit.KindRename, id, hash, path)

	default:
		paths := make([]string, len(names))
		for i, n := range names {
			paths[i] = unknownPath(n)
		}
		created, dropped, err := p.editor.Split(f, paths)
		if err != nil && !catalog.IsNamingConflict(err) {
			return err
		}
		for _, path := range dropped {
			if err := p.recordConflict(id, hash, path); err != nil {
				return err
			}
		}
		if len(created) == 0 {
			return nil
		}
		logger.Debug("Split %d (%s) into %d files", id, hash, len(created))
		p.result.Split++
		p.result.Created += len(created)
		for _, nf := range created {
			if err := p.record(audit.KindSplit, id, hash, nf.FullPath()); err != nil {
				return err
			}
		}
		return nil
	}
}

// rename moves f to path unless another file already lives there.
func (p *pass) rename(f *catalog.File, path string, resolved bool) error {
	if e, err := p.editor.LookupPath(path); err == nil && e != catalog.Entry(f) {
		return &catalog.Error{Code: catalog.ErrNamingConflict, Message: "path already taken", Path: path}
	}
	return p.editor.Rename(f, path, resolved)
}

func (p *pass) conflict(id int32, hash catalog.Hash, path string, err error) error {
	if !catalog.IsNamingConflict(err) {
		return err
	}
	return p.recordConflict(id, hash, path)
}

func (p *pass) recordConflict(id int32, hash catalog.Hash, path string) error {
	p.result.Conflicts++
	return p.record(audit.KindConflict, id, hash, path)
}

// sniff names f after its own bytes: the synthetic name plus the detected
// extension, or for models the name embedded in the header.
func (p *pass) sniff(f *catalog.File, id int32, hasID bool) error {
	hash := f.Hash()

	rc, err := p.backend.OpenFile(p.ctx, hash)
	if errors.Is(err, storage.ErrNotFound) {
		logger.Debug("Sniff: no bytes for %s, leaving it unknown", hash)
		return nil
	}
	if err != nil {
		return err
	}
	defer rc.Close()

	ext, header, err := sniff.Detect(rc)
	if err != nil {
		return fmt.Errorf("sniff %s: %w", hash, err)
	}
	if ext == "" {
		return nil
	}

	path := unknownPath(hash.String() + ext)
	resolved := false

	if ext == sniff.ExtM2 {
		rest, err := io.ReadAll(rc)
		if err != nil {
			return fmt.Errorf("read model %s: %w", hash, err)
		}
		name, found, err := sniff.M2Name(append(header, rest...))
		switch {
		case err != nil:
			logger.Debug("Sniff: %s: %v", hash, err)
		case found:
			path = unknownPath(name + sniff.ExtM2)
			resolved = true
		case hasID:
			path = unknownPath(strconv.Itoa(int(id)) + sniff.ExtM2)
		}
	}

	if err := p.rename(f, path, resolved); err != nil {
		return p.conflict(id, hash, path, err)
	}
	p.result.Sniffed++
	return p.record(audit.KindSniff, id, hash, path)
}
