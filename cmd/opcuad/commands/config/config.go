// Package config implements configuration management subcommands.
package config

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/opcuad/cmd/opcuad/cmdutil"
)

// Cmd is the config subcommand.
var Cmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
	Long: `Manage opcuad configuration files.

Subcommands:
  init      Write a default configuration file
  validate  Validate configuration file
  show      Display the effective configuration
  schema    Generate JSON schema for IDE/validation`,
}

func init() {
	Cmd.AddCommand(initCmd)
	Cmd.AddCommand(validateCmd)
	Cmd.AddCommand(showCmd)
	Cmd.AddCommand(schemaCmd)
}

func configPath() string {
	return cmdutil.Flags.ConfigFile
}
