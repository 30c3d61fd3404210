// Package commands implements the opcuad command line.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/opcuad/cmd/opcuad/cmdutil"
	"github.com/marmos91/opcuad/cmd/opcuad/commands/config"
	"github.com/marmos91/opcuad/cmd/opcuad/commands/sessions"
	"github.com/marmos91/opcuad/internal/cli/output"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "opcuad",
	Short: "opcuad - OPC UA server",
	Long: `opcuad is an OPC UA server exposing an address space through the
session, attribute, view and subscription service sets.

The same binary runs the server ("opcuad start") and inspects a running
one through its diagnostics API ("opcuad sessions list").

Use "opcuad [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cmdutil.Flags.ConfigFile, _ = cmd.Flags().GetString("config")
		cmdutil.Flags.ServerURL, _ = cmd.Flags().GetString("server")
		cmdutil.Flags.Token, _ = cmd.Flags().GetString("token")
		cmdutil.Flags.Output, _ = cmd.Flags().GetString("output")
		cmdutil.Flags.NoColor, _ = cmd.Flags().GetBool("no-color")
		if cmdutil.Flags.NoColor {
			output.DisableColor()
		}
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (default: $XDG_CONFIG_HOME/opcuad/config.yaml)")
	rootCmd.PersistentFlags().String("server", "", "Diagnostics API URL (default: http://localhost:<api.port>)")
	rootCmd.PersistentFlags().String("token", "", "Bearer token for admin operations (env: OPCUAD_TOKEN)")
	rootCmd.PersistentFlags().StringP("output", "o", "table", "Output format (table|json|yaml)")
	rootCmd.PersistentFlags().Bool("no-color", false, "Disable colored output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(config.Cmd)
	rootCmd.AddCommand(sessions.Cmd)
	rootCmd.AddCommand(completionCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
