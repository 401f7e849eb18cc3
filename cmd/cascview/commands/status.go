package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/cascview/internal/cli/output"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the loaded build and its file counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, nil, func(e *env) error {
			st, err := e.session.Status()
			if err != nil {
				return err
			}
			if e.printer.Format() != output.FormatTable {
				return e.printer.Print(st)
			}
			return output.PrintKeyValues(e.printer.Writer(), output.KeyValues{
				{"Build", st.Build},
				{"Locales", st.Options.Locales.String()},
				{"Files", fmt.Sprint(st.Files)},
				{"Names missing", fmt.Sprint(st.Unknown)},
			})
		})
	},
}
