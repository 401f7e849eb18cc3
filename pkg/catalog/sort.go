package catalog

import (
	"cmp"
	"path"
	"strings"
)

// SortColumn selects the attribute a view is ordered by.
type SortColumn int

const (
	SortByName SortColumn = iota
	SortByType
	SortByLocale
	SortByContent
	SortBySize
)

func (c SortColumn) String() string {
	switch c {
	case SortByName:
		return "name"
	case SortByType:
		return "type"
	case SortByLocale:
		return "locale"
	case SortByContent:
		return "content"
	case SortBySize:
		return "size"
	default:
		return "unknown"
	}
}

// ParseSortColumn maps a column name back to its SortColumn.
func ParseSortColumn(s string) (SortColumn, error) {
	for c := SortByName; c <= SortBySize; c++ {
		if strings.EqualFold(c.String(), s) {
			return c, nil
		}
	}
	return SortByName, newError(ErrInvalidArgument, "unknown sort column", s)
}

// Sorter holds the active column and direction of a listing.
type Sorter struct {
	Column    SortColumn
	Ascending bool
}

// DefaultSorter orders by name, ascending.
func DefaultSorter() Sorter {
	return Sorter{Column: SortByName, Ascending: true}
}

// Toggle applies a click on column: the active column flips direction, a
// new column starts ascending.
func (s *Sorter) Toggle(column SortColumn) {
	if s.Column == column {
		s.Ascending = !s.Ascending
		return
	}
	s.Column = column
	s.Ascending = true
}

// Row is an entry together with the attributes the sorter compares.
// Folders carry zero flags and zero size.
type Row struct {
	Entry   Entry
	Locale  LocaleFlags
	Content ContentFlags
	Size    uint64
}

// Extension returns the lower-cased extension of a file row, or "" for
// folders and extensionless files.
func (r Row) Extension() string {
	if r.Entry.Kind() == KindFolder {
		return ""
	}
	return strings.ToLower(path.Ext(r.Entry.Name()))
}

// Compare orders a and b for display.
//
// Folders precede files in both directions. Rows of the same kind compare
// by the selected column, then by name; the direction inverts that result.
func (s Sorter) Compare(a, b Row) int {
	ak, bk := a.Entry.Kind(), b.Entry.Kind()
	if ak != bk {
		if ak == KindFolder {
			return -1
		}
		return 1
	}

	var r int
	switch s.Column {
	case SortByType:
		r = strings.Compare(a.Extension(), b.Extension())
	case SortByLocale:
		r = cmp.Compare(a.Locale, b.Locale)
	case SortByContent:
		r = cmp.Compare(a.Content, b.Content)
	case SortBySize:
		r = cmp.Compare(a.Size, b.Size)
	}
	if r == 0 {
		r = compareNames(a.Entry.Name(), b.Entry.Name())
	}
	if r == 0 {
		r = strings.Compare(a.Entry.FullPath(), b.Entry.FullPath())
	}

	if !s.Ascending {
		r = -r
	}
	return r
}
