package sessions

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/opcuad/cmd/opcuad/cmdutil"
	"github.com/marmos91/opcuad/internal/cli/output"
	"github.com/marmos91/opcuad/internal/cli/prompt"
)

var forceClose bool

var closeCmd = &cobra.Command{
	Use:   "close <session-id>",
	Short: "Terminate a session",
	Long: `Terminate a session as an administrator. Its queued publish requests
are answered with BadSessionClosed and its subscriptions are deleted.

The API requires a bearer token carrying the configured admin role.

Examples:
  opcuad sessions close 7 --token "$TOKEN"
  OPCUAD_TOKEN="$TOKEN" opcuad sessions close "ns=1;i=7" --force`,
	Args: cobra.ExactArgs(1),
	RunE: runClose,
}

func init() {
	closeCmd.Flags().BoolVarP(&forceClose, "force", "f", false, "Skip confirmation prompt")
}

func runClose(cmd *cobra.Command, args []string) error {
	id := args[0]
	w := cmd.OutOrStdout()

	confirmed, err := prompt.ConfirmWithForce(fmt.Sprintf("Terminate session %s?", id), forceClose)
	if err != nil {
		return cmdutil.HandleAbort(w, err)
	}
	if !confirmed {
		_, _ = fmt.Fprintln(w, "Aborted.")
		return nil
	}

	d, err := cmdutil.GetClient().CloseSession(cmd.Context(), id)
	if err != nil {
		return cmdutil.DescribeAPIError("close session", err)
	}

	format, err := cmdutil.OutputFormat()
	if err != nil {
		return err
	}
	if format != output.FormatTable {
		return output.Print(w, format, d, nil, "")
	}
	output.Success(w, "Session %s terminated", d.SessionID)
	return nil
}
