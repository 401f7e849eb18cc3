// Package commands implements the cascview command line.
package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marmos91/cascview/internal/cli/output"
	"github.com/marmos91/cascview/internal/logger"
	"github.com/marmos91/cascview/pkg/config"
	"github.com/marmos91/cascview/pkg/explorer"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile      string
	logLevel     string
	outputFormat string
	locale       string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "cascview",
	Short: "cascview - browse and name the files of an extracted game build",
	Long: `cascview exposes the files of an extracted game build as a virtual
folder tree, recovers the names of unnamed files from the game's own data
tables and content signatures, and exports the resolved listing.

Configuration is read from $XDG_CONFIG_HOME/cascview/config.yaml (see
"cascview init") and can be overridden with CASCVIEW_* environment variables.

Use "cascview [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/cascview/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level (DEBUG, INFO, WARN, ERROR)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "output format (table, json, yaml)")
	rootCmd.PersistentFlags().StringVar(&locale, "locale", "", "override catalog.locale (e.g. enUS,deDE or All)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(auditCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("cascview %s (commit: %s, built: %s)\n", Version, Commit, Date)
	},
}

// PrintErr prints an error message to stderr.
func PrintErr(format string, args ...any) {
	rootCmd.PrintErrf(format+"\n", args...)
}

// loadConfig loads the configuration, applies the global flag overrides
// and override, then initializes the logger. The returned closer releases
// the log file, if any.
func loadConfig(override func(*config.Config)) (*config.Config, io.Closer, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}

	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if locale != "" {
		cfg.Catalog.Locale = locale
	}
	if override != nil {
		override(cfg)
	}
	config.ApplyDefaults(cfg)
	if err := config.Validate(cfg); err != nil {
		return nil, nil, err
	}

	closer, err := logger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, closer, nil
}

// env is what a session command runs against.
type env struct {
	ctx     context.Context
	cfg     *config.Config
	metrics *config.MetricsResult
	session *explorer.Session
	printer *output.Printer
}

// withSession loads the configuration, opens a session and runs fn. The
// context is cancelled on SIGINT or SIGTERM. override, when set, adjusts
// the loaded configuration before validation.
func withSession(cmd *cobra.Command, override func(*config.Config), fn func(e *env) error) error {
	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		return err
	}

	cfg, logCloser, err := loadConfig(override)
	if err != nil {
		return err
	}
	defer func() { _ = logCloser.Close() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := config.InitializeMetrics(cfg)

	session, err := config.OpenSession(ctx, cfg, m)
	if err != nil {
		return err
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Error("Failed to close session: %v", err)
		}
	}()

	return fn(&env{
		ctx:     ctx,
		cfg:     cfg,
		metrics: m,
		session: session,
		printer: output.NewPrinter(cmd.OutOrStdout(), format),
	})
}
