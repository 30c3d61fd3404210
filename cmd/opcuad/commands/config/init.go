package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/opcuad/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long: `Write a default opcuad configuration file.

By default, the file is created at $XDG_CONFIG_HOME/opcuad/config.yaml.
Use --config to specify a custom path. A random issued token secret is
generated so admin tokens can be minted right away.

Examples:
  opcuad config init
  opcuad config init --config /etc/opcuad/config.yaml --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	path := configPath()

	var err error
	if path != "" {
		err = config.InitConfigToPath(path, initForce)
	} else {
		path, err = config.InitConfig(initForce)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	w := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(w, "Configuration file created at: %s\n", path)
	_, _ = fmt.Fprintln(w, "\nNext steps:")
	_, _ = fmt.Fprintln(w, "  1. Add users with: opcuad user hash-password <name>")
	_, _ = fmt.Fprintf(w, "  2. Start the server with: opcuad start --config %s\n", path)
	return nil
}
