package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/cascview/internal/cli/output"
	"github.com/marmos91/cascview/internal/logger"
	"github.com/marmos91/cascview/pkg/config"
	"github.com/marmos91/cascview/pkg/resolver"
)

var (
	analyzeSound  bool
	analyzeExport bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run a resolution pass over the unnamed files",
	Long: `Run a resolution pass: collect candidate names from the configured data
tables, rename or split every unnamed file that has candidates and sniff
the content of the rest. Every decision is recorded in the audit log.

While the pass runs, /metrics and /progress are served on metrics.port
when metrics are enabled.

Examples:
  # Sniff content only
  cascview analyze

  # Also read the sound tables, then export the listing
  cascview analyze --sound --export`,
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeSound, "sound", false, "read the sound tables (overrides resolver.analyze_sound_files)")
	analyzeCmd.Flags().BoolVar(&analyzeExport, "export", false, "export the listing and directories after the pass")
}

// passSummary is the printable form of a resolver.Result.
type passSummary struct {
	PassID     string        `json:"pass_id" yaml:"pass_id"`
	Candidates int           `json:"candidates" yaml:"candidates"`
	Processed  int           `json:"processed" yaml:"processed"`
	Renamed    int           `json:"renamed" yaml:"renamed"`
	Split      int           `json:"split" yaml:"split"`
	Created    int           `json:"created" yaml:"created"`
	Sniffed    int           `json:"sniffed" yaml:"sniffed"`
	Conflicts  int           `json:"conflicts" yaml:"conflicts"`
	Unresolved int           `json:"unresolved" yaml:"unresolved"`
	Duration   time.Duration `json:"duration" yaml:"duration"`
	Consistent bool          `json:"consistent" yaml:"consistent"`
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	var override func(*config.Config)
	if cmd.Flags().Changed("sound") {
		override = func(cfg *config.Config) { cfg.Resolver.AnalyzeSoundFiles = analyzeSound }
	}

	return withSession(cmd, override, func(e *env) error {
		srv := e.metrics.Server
		if srv != nil {
			metricsCtx, stopMetrics := context.WithCancel(e.ctx)
			defer stopMetrics()
			go func() {
				if err := srv.Start(metricsCtx); err != nil {
					logger.Error("%v", err)
				}
			}()
		}

		last := -1
		result, err := e.session.Analyze(e.ctx, func(percent int) {
			if percent == last {
				return
			}
			last = percent
			if srv != nil {
				srv.SetProgress(percent, true)
			}
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "\rAnalyzing... %3d%%", percent)
		})
		_, _ = fmt.Fprintln(cmd.ErrOrStderr())
		if srv != nil {
			srv.SetProgress(max(last, 0), false)
		}

		var passErr *resolver.PassError
		if errors.As(err, &passErr) {
			return fmt.Errorf("pass %s aborted: %w", passErr.PassID, passErr.Err)
		}
		if err != nil {
			return err
		}

		summary := passSummary{
			PassID:     result.PassID,
			Candidates: result.Candidates,
			Processed:  result.Processed,
			Renamed:    result.Renamed,
			Split:      result.Split,
			Created:    result.Created,
			Sniffed:    result.Sniffed,
			Conflicts:  result.Conflicts,
			Unresolved: result.Unresolved,
			Duration:   result.Duration,
			Consistent: result.Report.Consistent(),
		}
		if e.printer.Format() != output.FormatTable {
			if err := e.printer.Print(summary); err != nil {
				return err
			}
		} else if err := output.PrintKeyValues(e.printer.Writer(), output.KeyValues{
			{"Pass", summary.PassID},
			{"Candidates", fmt.Sprint(summary.Candidates)},
			{"Processed", fmt.Sprint(summary.Processed)},
			{"Renamed", fmt.Sprint(summary.Renamed)},
			{"Split", fmt.Sprintf("%d (%d files created)", summary.Split, summary.Created)},
			{"Sniffed", fmt.Sprint(summary.Sniffed)},
			{"Conflicts", fmt.Sprint(summary.Conflicts)},
			{"Still unknown", fmt.Sprint(summary.Unresolved)},
			{"Duration", summary.Duration.Round(time.Millisecond).String()},
		}); err != nil {
			return err
		}

		if !summary.Consistent {
			logger.Warn("Tree check after pass %s found defects: %+v", result.PassID, result.Report)
		}

		if analyzeExport {
			return exportAll(e)
		}
		return nil
	})
}
