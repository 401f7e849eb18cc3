package commands

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/marmos91/cascview/pkg/catalog"
)

var (
	extractPattern string
	extractInstall bool
)

var extractCmd = &cobra.Command{
	Use:   "extract <dest> [path...]",
	Short: "Save files of the virtual tree to disk",
	Long: `Save files under <dest> at their catalog paths. A folder path extracts
everything below it; --pattern filters the files of each folder argument.
Without a path the whole root is extracted.

With --install, the install files of every platform are saved under
<dest>/<build>/<platform>_install_files instead.

Examples:
  cascview extract ./out 'Interface\Icons'
  cascview extract ./out sound --pattern '*.ogg'
  cascview extract ./out --install`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().StringVarP(&extractPattern, "pattern", "p", "*", "wildcard filter for folder arguments")
	extractCmd.Flags().BoolVar(&extractInstall, "install", false, "extract the install files instead")
}

func runExtract(cmd *cobra.Command, args []string) error {
	dest, paths := args[0], args[1:]

	return withSession(cmd, nil, func(e *env) error {
		progress := func(percent int) {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "\rExtracting... %3d%%", percent)
		}
		defer func() { _, _ = fmt.Fprintln(cmd.ErrOrStderr()) }()

		if extractInstall {
			return e.session.ExtractInstallFiles(e.ctx, dest, progress)
		}

		if len(paths) == 0 {
			paths = []string{""}
		}

		var files []*catalog.File
		for _, p := range paths {
			selected, err := selectFiles(e, p)
			if err != nil {
				return err
			}
			files = append(files, selected...)
		}

		total, err := e.session.TotalSize(e.ctx, files)
		if err != nil {
			return err
		}
		e.printer.Printf("Extracting %d files (%s) to %s\n", len(files), humanize.IBytes(total), dest)

		return e.session.Extract(e.ctx, files, dest, progress)
	})
}

// selectFiles resolves one path argument: a file selects itself, a folder
// selects every file below it that matches the pattern.
func selectFiles(e *env, path string) ([]*catalog.File, error) {
	if catalog.NormalizePath(path) != "" {
		entry, err := e.session.Catalog().LookupPath(path)
		if err != nil {
			return nil, err
		}
		if f, ok := entry.(*catalog.File); ok {
			return []*catalog.File{f}, nil
		}
	}

	folder, err := e.session.Folder(path)
	if err != nil {
		return nil, err
	}
	view, err := e.session.FilteredSortedView(e.ctx, folder, extractPattern, catalog.DefaultSorter())
	if err != nil {
		return nil, err
	}
	positions := make([]int, view.Len())
	for i := range positions {
		positions[i] = i
	}
	return e.session.ResolveEntries(view, positions, false)
}
