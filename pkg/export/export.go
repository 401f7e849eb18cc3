// Package export writes the resolved catalog as flat text listings.
//
// Both listings are sorted by full path ignoring case, hold one entry per
// line and skip files that are still unknown or whose bytes the backend
// does not hold. Exporting never mutates the catalog.
package export

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/marmos91/cascview/internal/logger"
	"github.com/marmos91/cascview/pkg/catalog"
	"github.com/marmos91/cascview/pkg/storage"
)

// Default file names, matching what the listing format carries.
const (
	ListingWithIDs     = "listfile_export.csv"
	ListingNamesOnly   = "listfile_export.txt"
	DirectoriesListing = "dirs.txt"
)

// DefaultListingName returns the listing file name for b: .csv when lines
// carry numeric ids, .txt otherwise.
func DefaultListingName(b storage.Backend) string {
	if _, ok := b.(storage.IDResolver); ok {
		return ListingWithIDs
	}
	return ListingNamesOnly
}

// exportable returns the files that belong in a listing, sorted. A file the
// backend reports missing is skipped; any other backend error aborts.
func exportable(ctx context.Context, c *catalog.Catalog, b storage.Backend) ([]*catalog.File, error) {
	files, err := c.Snapshot()
	if err != nil {
		return nil, err
	}

	out := files[:0]
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if f.Unknown() {
			continue
		}
		if _, err := b.GetFileSize(ctx, f.Hash()); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("export %s: %w", f.FullPath(), err)
		}
		out = append(out, f)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return comparePaths(out[i].FullPath(), out[j].FullPath()) < 0
	})
	return out, nil
}

// comparePaths orders case-insensitively, falling back to byte order so
// the result is total.
func comparePaths(a, b string) int {
	if c := strings.Compare(strings.ToUpper(a), strings.ToUpper(b)); c != 0 {
		return c
	}
	return strings.Compare(a, b)
}

// Listing writes one line per exportable file: "id;path" when the backend
// knows the file's numeric id, the bare path otherwise.
//
// Returns the number of lines written.
func Listing(ctx context.Context, w io.Writer, c *catalog.Catalog, b storage.Backend) (int, error) {
	files, err := exportable(ctx, c, b)
	if err != nil {
		return 0, err
	}
	ids, _ := b.(storage.IDResolver)

	bw := bufio.NewWriter(w)
	for _, f := range files {
		if ids != nil {
			if id, ok := ids.IDOf(f.Hash()); ok {
				fmt.Fprintf(bw, "%d;%s\n", id, f.FullPath())
				continue
			}
		}
		fmt.Fprintln(bw, f.FullPath())
	}
	if err := bw.Flush(); err != nil {
		return 0, fmt.Errorf("write listing: %w", err)
	}
	return len(files), nil
}

// Directories writes the parent directory of every exportable file, once
// each (compared ignoring case), in listing order.
//
// Returns the number of lines written.
func Directories(ctx context.Context, w io.Writer, c *catalog.Catalog, b storage.Backend) (int, error) {
	files, err := exportable(ctx, c, b)
	if err != nil {
		return 0, err
	}

	seen := make(map[string]struct{})
	bw := bufio.NewWriter(w)
	n := 0
	for _, f := range files {
		path := f.FullPath()
		i := strings.LastIndex(path, catalog.PathSeparator)
		if i < 0 {
			continue
		}
		dir := path[:i]
		key := strings.ToUpper(dir)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		fmt.Fprintln(bw, dir)
		n++
	}
	if err := bw.Flush(); err != nil {
		return 0, fmt.Errorf("write directories: %w", err)
	}
	return n, nil
}

// ToFile runs write against a new file at path, creating parent
// directories. The file is removed again if write fails.
func ToFile(path string, write func(io.Writer) (int, error)) (int, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", path, err)
	}

	n, err := write(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return 0, err
	}

	logger.Info("Exported %d lines to %s", n, path)
	return n, nil
}
