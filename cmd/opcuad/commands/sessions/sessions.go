// Package sessions implements the session diagnostics subcommands.
package sessions

import (
	"github.com/spf13/cobra"
)

// Cmd is the parent command for session diagnostics.
var Cmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect and terminate OPC UA sessions",
	Long: `Inspect the sessions of a running opcuad server through its
diagnostics API.

Session ids are node ids such as "ns=1;i=7"; the bare number "7" is
accepted as shorthand.

Examples:
  # List sessions
  opcuad sessions list

  # Show one session as YAML
  opcuad sessions show 7 -o yaml

  # Terminate a session (requires an admin token)
  opcuad sessions close 7 --token $(opcuad user token ops --role admin)`,
}

func init() {
	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(showCmd)
	Cmd.AddCommand(closeCmd)
}
