package catalog

import (
	"context"
	"path"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/marmos91/cascview/internal/logger"
	"github.com/marmos91/cascview/pkg/wildcard"
)

// View is a materialized, filtered and sorted listing of one folder.
// Positions index Rows; they stay valid until the tree is rebuilt.
type View struct {
	Folder  *Folder
	Pattern string
	Sorter  Sorter
	Rows    []Row

	generation uint64
}

// Len returns the number of rows.
func (v *View) Len() int { return len(v.Rows) }

// ListChildren materializes the subfolders of folder in name order. The
// first call expands the folder; later calls return the same list.
func (c *Catalog) ListChildren(folder *Folder) ([]*Folder, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.readableLocked(); err != nil {
		return nil, err
	}
	if err := c.checkFolderLocked(folder); err != nil {
		return nil, err
	}

	if !folder.expanded {
		folder.children = folder.subfolders()
		folder.expanded = true
	}
	return append([]*Folder(nil), folder.children...), nil
}

// FilteredSortedView lists folder: every subfolder, plus the files whose
// name matches pattern case-insensitively, ordered by sorter.
//
// Parameters:
//   - ctx: Context for size lookups
//   - folder: Folder to list (must belong to the current tree)
//   - pattern: Wildcard pattern, empty matches everything
//   - sorter: Column and direction
//
// Returns:
//   - *View: Materialized rows
//   - error: ErrBusy, ErrStaleView or ErrInvalidArgument
func (c *Catalog) FilteredSortedView(ctx context.Context, folder *Folder, pattern string, sorter Sorter) (*View, error) {
	match, err := wildcard.Compile(pattern, true)
	if err != nil {
		return nil, newError(ErrInvalidArgument, "invalid pattern", pattern)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.readableLocked(); err != nil {
		return nil, err
	}
	if err := c.checkFolderLocked(folder); err != nil {
		return nil, err
	}

	rows := make([]Row, 0, len(folder.folders)+len(folder.files))
	for _, sub := range folder.folders {
		rows = append(rows, Row{Entry: sub})
	}

	withSize := sorter.Column == SortBySize
	for _, f := range folder.files {
		if !match.Match(f.Name()) {
			continue
		}
		row := c.fileRowLocked(ctx, f, withSize)
		rows = append(rows, row)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return sorter.Compare(rows[i], rows[j]) < 0
	})

	return &View{
		Folder:     folder,
		Pattern:    pattern,
		Sorter:     sorter,
		Rows:       rows,
		generation: c.generation,
	}, nil
}

func (c *Catalog) fileRowLocked(ctx context.Context, f *File, withSize bool) Row {
	merged := MergeEntries(c.source.GetEntries(f.hash))
	row := Row{Entry: f, Locale: merged.LocaleFlags, Content: merged.ContentFlags}
	if withSize {
		size, err := c.source.GetFileSize(ctx, f.hash)
		if err != nil {
			logger.Debug("Size of %s unavailable: %v", f.fullPath, err)
		}
		row.Size = size
	}
	return row
}

// ResolveEntries maps view positions back to files.
//
// A folder position contributes every file below it, recursively, unless
// filesOnly is set, in which case folders are skipped.
func (c *Catalog) ResolveEntries(view *View, positions []int, filesOnly bool) ([]*File, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.readableLocked(); err != nil {
		return nil, err
	}
	if view == nil {
		return nil, newError(ErrInvalidArgument, "nil view", "")
	}
	if view.generation != c.generation {
		return nil, newError(ErrStaleView, "view belongs to a discarded tree", view.Folder.fullPath)
	}

	var out []*File
	for _, pos := range positions {
		if pos < 0 || pos >= len(view.Rows) {
			return nil, newError(ErrInvalidArgument, "position out of range", view.Folder.fullPath)
		}

		switch e := view.Rows[pos].Entry.(type) {
		case *File:
			out = append(out, e)
		case *Folder:
			if filesOnly {
				continue
			}
			e.walkFiles(func(_ *Folder, f *File) bool {
				out = append(out, f)
				return true
			})
		}
	}
	return out, nil
}

// ResolveHashes maps content hashes to every File sharing each of them.
func (c *Catalog) ResolveHashes(hashes []Hash) ([]*File, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.readableLocked(); err != nil {
		return nil, err
	}

	var out []*File
	for _, h := range hashes {
		files := c.registry.files[h]
		if len(files) == 0 {
			return nil, newError(ErrNotFound, "no file for hash", h.String())
		}
		out = append(out, files...)
	}
	return out, nil
}

// Search returns the position of the next row after from (or before it
// when backwards) whose name contains text, ignoring case, or -1.
func Search(view *View, text string, from int, backwards bool) int {
	if view == nil {
		return -1
	}
	needle := strings.ToLower(text)
	hit := func(i int) bool {
		return strings.Contains(strings.ToLower(view.Rows[i].Entry.Name()), needle)
	}

	if backwards {
		if from > len(view.Rows) {
			from = len(view.Rows)
		}
		for i := from - 1; i >= 0; i-- {
			if hit(i) {
				return i
			}
		}
		return -1
	}

	if from < -1 {
		from = -1
	}
	for i := from + 1; i < len(view.Rows); i++ {
		if hit(i) {
			return i
		}
	}
	return -1
}

// TotalSize sums the content sizes of files.
func (c *Catalog) TotalSize(ctx context.Context, files []*File) (uint64, error) {
	var total uint64
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		size, err := c.source.GetFileSize(ctx, f.hash)
		if err != nil {
			return total, err
		}
		total += size
	}
	return total, nil
}

// Description is the display form of a row.
type Description struct {
	Name    string
	Type    string
	Locale  string
	Content string
	Size    string
}

// Describe renders entry for a listing: folders show "Folder" and "<DIR>",
// files show their extension, merged flags and grouped size.
func (c *Catalog) Describe(ctx context.Context, entry Entry) Description {
	if entry.Kind() == KindFolder {
		return Description{
			Name:    entry.Name(),
			Type:    "Folder",
			Locale:  LocaleNone.String(),
			Content: ContentNone.String(),
			Size:    "<DIR>",
		}
	}

	merged := MergeEntries(c.source.GetEntries(entry.Hash()))
	size, err := c.source.GetFileSize(ctx, entry.Hash())
	if err != nil {
		logger.Debug("Size of %s unavailable: %v", entry.FullPath(), err)
	}

	return Description{
		Name:    entry.Name(),
		Type:    path.Ext(entry.Name()),
		Locale:  merged.LocaleFlags.String(),
		Content: merged.ContentFlags.String(),
		Size:    strings.ReplaceAll(humanize.Comma(int64(size)), ",", " "),
	}
}
