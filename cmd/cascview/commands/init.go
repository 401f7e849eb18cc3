package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/cascview/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample cascview configuration file.

By default, the configuration file is created at $XDG_CONFIG_HOME/cascview/config.yaml.
Use --config to specify a custom path.

Examples:
  # Initialize with default location
  cascview init

  # Initialize with custom path
  cascview init --config ./cascview.yaml

  # Force overwrite existing config
  cascview init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	var configPath string
	var err error

	if cfgFile != "" {
		err = config.InitConfigToPath(cfgFile, initForce)
		configPath = cfgFile
	} else {
		configPath, err = config.InitConfig(initForce)
	}

	if err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file created at: %s\n", configPath)
	_, _ = fmt.Fprintln(out, "\nNext steps:")
	_, _ = fmt.Fprintln(out, "  1. Point storage.filesystem.path (or storage.s3) at an extracted build")
	_, _ = fmt.Fprintln(out, "  2. Check the tree with: cascview status")
	_, _ = fmt.Fprintln(out, "  3. Recover missing names with: cascview analyze")
	return nil
}
