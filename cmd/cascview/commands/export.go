package commands

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/cascview/internal/logger"
)

var (
	exportListing string
	exportDirs    string
	exportAnalyze bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the resolved file listing and directory list",
	Long: `Write every named file present in storage, sorted case-insensitively,
as "id;path" lines (or bare paths when the build has no file ids), and the
unique parent directories of those files.

Paths default to export.listing_path and export.directories_path, or to
listfile_export.csv / listfile_export.txt and dirs.txt in the working
directory.

Examples:
  cascview export
  cascview export --analyze --listing ./out/listfile.csv`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportListing, "listing", "", "listing output path")
	exportCmd.Flags().StringVar(&exportDirs, "dirs", "", "directory list output path")
	exportCmd.Flags().BoolVar(&exportAnalyze, "analyze", false, "run a resolution pass first")
}

func runExport(cmd *cobra.Command, args []string) error {
	return withSession(cmd, nil, func(e *env) error {
		if exportAnalyze {
			result, err := e.session.Analyze(e.ctx, nil)
			if err != nil {
				return err
			}
			logger.Info("Pass %s renamed %d files, %d still unknown", result.PassID, result.Renamed, result.Unresolved)
		}
		return exportAll(e)
	})
}

// exportAll writes both exports, flag paths first, then configured paths.
func exportAll(e *env) error {
	listing := firstNonEmpty(exportListing, e.cfg.Export.ListingPath)
	n, err := e.session.ExportListing(e.ctx, listing)
	if err != nil {
		return err
	}
	e.printer.Printf("Exported %d files\n", n)

	dirs := firstNonEmpty(exportDirs, e.cfg.Export.DirectoriesPath)
	n, err = e.session.ExportDirectories(e.ctx, dirs)
	if err != nil {
		return err
	}
	e.printer.Printf("Exported %d directories\n", n)
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
