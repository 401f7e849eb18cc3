package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/cascview/internal/cli/output"
)

var auditCmd = &cobra.Command{
	Use:   "audit [pass-id]",
	Short: "Show recorded resolution passes or the decisions of one pass",
	Long: `Without arguments, list the ids of recorded passes, oldest first. With a
pass id, print its decisions in order. Use a badger audit log
(audit.type: badger) to keep passes across runs.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, nil, func(e *env) error {
			if len(args) == 0 {
				passes, err := e.session.Passes(e.ctx)
				if err != nil {
					return err
				}
				if e.printer.Format() != output.FormatTable {
					return e.printer.Print(passes)
				}
				table := output.NewTableData("Pass")
				for _, id := range passes {
					table.AddRow(id)
				}
				return e.printer.Print(table)
			}

			records, err := e.session.AuditTrail(e.ctx, args[0])
			if err != nil {
				return err
			}
			if e.printer.Format() != output.FormatTable {
				return e.printer.Print(records)
			}
			table := output.NewTableData("Seq", "Kind", "Decision")
			for _, rec := range records {
				table.AddRow(fmt.Sprint(rec.Seq), rec.Kind.String(), rec.Line())
			}
			return e.printer.Print(table)
		})
	},
}
