package catalog

import (
	"context"

	"github.com/marmos91/cascview/internal/logger"
)

// DumpReport is the result of a consistency pass over the tree.
type DumpReport struct {
	// Files is the number of files reachable from the root
	Files int

	// Unknown is the number of reachable files still carrying a synthetic name
	Unknown int

	// Unreachable counts registry files no folder references
	Unreachable int

	// Detached counts reachable files the registry does not own
	Detached int

	// Missing counts reachable files whose hash has no backend entry
	Missing int

	// Lost counts hashes the tree held after its build (or gained since)
	// that no longer own any file
	Lost int

	// CounterMismatch is set when the stored unknown counter disagreed with
	// the walk. The counter is corrected before returning.
	CounterMismatch bool
}

// Consistent reports whether the walk found no defect.
func (r DumpReport) Consistent() bool {
	return r.Unreachable == 0 && r.Detached == 0 && r.Missing == 0 && r.Lost == 0 && !r.CounterMismatch
}

// Verify walks the whole tree and cross-checks it against the registry and
// the backend. It runs at the end of a resolution pass, while the editor
// still holds the lock.
func (e *Editor) Verify(ctx context.Context) (DumpReport, error) {
	c := e.c
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := e.check(); err != nil {
		return DumpReport{}, err
	}

	var (
		report    DumpReport
		reachable = make(map[*File]bool, c.registry.Len())
		walkErr   error
	)

	c.root.walkFiles(func(_ *Folder, f *File) bool {
		if err := ctx.Err(); err != nil {
			walkErr = err
			return false
		}
		if reachable[f] {
			return true
		}
		reachable[f] = true
		report.Files++

		if f.unknown {
			report.Unknown++
		}
		if !c.ownsLocked(f) {
			report.Detached++
			logger.Warn("Dump: %s (%s) is not owned by the registry", f.fullPath, f.hash)
		}
		if len(c.source.GetEntries(f.hash)) == 0 {
			report.Missing++
			logger.Debug("Dump: %s (%s) has no backend entry", f.fullPath, f.hash)
		}
		return true
	})
	if walkErr != nil {
		return report, walkErr
	}

	for f := range c.registry.Files() {
		if !reachable[f] {
			report.Unreachable++
			logger.Debug("Dump: %s (%s) is not reachable", f.fullPath, f.hash)
		}
	}

	for h := range c.built {
		if len(c.registry.files[h]) == 0 {
			report.Lost++
			logger.Warn("Dump: %s no longer owns a file", h)
		}
	}

	if report.Unknown != c.unknownCount {
		report.CounterMismatch = true
		logger.Warn("Dump: unknown counter %d disagrees with walk %d, correcting", c.unknownCount, report.Unknown)
		c.unknownCount = report.Unknown
	}

	logger.Info("Dump: %d files, %d unknown, %d unreachable, %d detached, %d missing, %d lost",
		report.Files, report.Unknown, report.Unreachable, report.Detached, report.Missing, report.Lost)
	return report, nil
}
