package commands

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/cascview/internal/cli/output"
	"github.com/marmos91/cascview/pkg/catalog"
)

var previewCmd = &cobra.Command{
	Use:   "preview <path>",
	Short: "Print a short preview of a file",
	Long: `Print a preview of one file: text files show their first lines, models
their embedded name, anything else a detected type and a hex dump.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, nil, func(e *env) error {
			entry, err := e.session.Catalog().LookupPath(args[0])
			if err != nil {
				return err
			}
			f, ok := entry.(*catalog.File)
			if !ok {
				return &catalog.Error{Code: catalog.ErrInvalidArgument, Message: "not a file", Path: args[0]}
			}

			p, err := e.session.Preview(e.ctx, f)
			if err != nil {
				return err
			}
			if e.printer.Format() != output.FormatTable {
				return e.printer.Print(p)
			}

			e.printer.Printf("%s (%s)\n\n", f.FullPath(), p.Handler)
			for _, line := range p.Lines {
				e.printer.Printf("%s\n", line)
			}
			if p.Truncated {
				e.printer.Printf("...\n")
			}
			return nil
		})
	},
}
