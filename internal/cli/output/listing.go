package output

import (
	"strconv"

	"github.com/marmos91/cascview/pkg/catalog"
)

// ListingRow is one described entry of a folder listing.
type ListingRow struct {
	ID      *int32 `json:"id,omitempty" yaml:"id,omitempty"`
	Name    string `json:"name" yaml:"name"`
	Type    string `json:"type" yaml:"type"`
	Locale  string `json:"locale" yaml:"locale"`
	Content string `json:"content" yaml:"content"`
	Size    string `json:"size" yaml:"size"`
}

// Listing is a folder view ready for printing. It implements TableRenderer;
// the ID column only appears when WithIDs is set.
type Listing struct {
	Folder  string       `json:"folder" yaml:"folder"`
	Pattern string       `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Entries []ListingRow `json:"entries" yaml:"entries"`
	WithIDs bool         `json:"-" yaml:"-"`
}

// Add appends a described entry. A nil id leaves the ID cell empty.
func (l *Listing) Add(d catalog.Description, id *int32) {
	l.Entries = append(l.Entries, ListingRow{
		ID:      id,
		Name:    d.Name,
		Type:    d.Type,
		Locale:  d.Locale,
		Content: d.Content,
		Size:    d.Size,
	})
}

// Headers implements TableRenderer.
func (l *Listing) Headers() []string {
	headers := []string{"Name", "Type", "Locale", "Content", "Size"}
	if l.WithIDs {
		headers = append([]string{"ID"}, headers...)
	}
	return headers
}

// Rows implements TableRenderer.
func (l *Listing) Rows() [][]string {
	rows := make([][]string, 0, len(l.Entries))
	for _, e := range l.Entries {
		row := []string{e.Name, e.Type, e.Locale, e.Content, e.Size}
		if l.WithIDs {
			id := ""
			if e.ID != nil {
				id = strconv.Itoa(int(*e.ID))
			}
			row = append([]string{id}, row...)
		}
		rows = append(rows, row)
	}
	return rows
}
