package commands

import (
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/marmos91/cascview/internal/cli/output"
	"github.com/marmos91/cascview/pkg/catalog"
)

var (
	lsPattern string
	lsSort    string
	lsDesc    bool
	lsIDs     bool
	lsTotal   bool
	lsFind    string
)

var lsCmd = &cobra.Command{
	Use:   "ls [folder]",
	Short: "List a folder of the virtual tree",
	Long: `List the subfolders and files of a folder. Folders always come first.

Examples:
  # List the root
  cascview ls

  # List textures of a folder, largest first
  cascview ls 'Interface\Icons' --pattern '*.blp' --sort size --desc

  # List the files the resolver could not name yet
  cascview ls unknown --ids`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLs,
}

func init() {
	lsCmd.Flags().StringVarP(&lsPattern, "pattern", "p", "*", "wildcard filter on file names (* and ?)")
	lsCmd.Flags().StringVarP(&lsSort, "sort", "s", "name", "sort column (name, type, locale, content, size)")
	lsCmd.Flags().BoolVar(&lsDesc, "desc", false, "sort descending")
	lsCmd.Flags().BoolVar(&lsIDs, "ids", false, "show numeric file ids")
	lsCmd.Flags().BoolVar(&lsTotal, "total", false, "print the total size of the listed files")
	lsCmd.Flags().StringVar(&lsFind, "find", "", "only show the first row whose name contains this text")
}

func runLs(cmd *cobra.Command, args []string) error {
	column, err := catalog.ParseSortColumn(lsSort)
	if err != nil {
		return err
	}
	sorter := catalog.Sorter{Column: column, Ascending: !lsDesc}

	path := ""
	if len(args) == 1 {
		path = args[0]
	}

	return withSession(cmd, nil, func(e *env) error {
		folder, err := e.session.Folder(path)
		if err != nil {
			return err
		}

		view, err := e.session.FilteredSortedView(e.ctx, folder, lsPattern, sorter)
		if err != nil {
			return err
		}

		positions := make([]int, view.Len())
		for i := range positions {
			positions[i] = i
		}
		if lsFind != "" {
			pos := e.session.Search(view, lsFind, -1, false)
			if pos < 0 {
				return &catalog.Error{Code: catalog.ErrNotFound, Message: "no entry matches", Path: lsFind}
			}
			positions = []int{pos}
		}

		listing := &output.Listing{Folder: folder.FullPath(), Pattern: lsPattern, WithIDs: lsIDs}
		for _, pos := range positions {
			entry := view.Rows[pos].Entry
			var id *int32
			if v, ok := e.session.IDOf(entry); ok && lsIDs {
				id = &v
			}
			listing.Add(e.session.Describe(e.ctx, entry), id)
		}
		if err := e.printer.Print(listing); err != nil {
			return err
		}

		if lsTotal {
			files, err := e.session.ResolveEntries(view, positions, false)
			if err != nil {
				return err
			}
			total, err := e.session.TotalSize(e.ctx, files)
			if err != nil {
				return err
			}
			e.printer.Printf("\n%d files, %s\n", len(files), humanize.IBytes(total))
		}
		return nil
	})
}
