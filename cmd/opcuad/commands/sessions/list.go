package sessions

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/opcuad/cmd/opcuad/cmdutil"
	"github.com/marmos91/opcuad/internal/cli/timeutil"
	"github.com/marmos91/opcuad/pkg/session"
)

var listAll bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions",
	Long: `List the sessions of the server. Terminated sessions still retained
for diagnostics are hidden unless --all is given.

Examples:
  opcuad sessions list
  opcuad sessions list --all -o json`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	listCmd.Flags().BoolVarP(&listAll, "all", "a", false, "Include terminated sessions")
}

// SessionList renders session diagnostics as a table.
type SessionList struct {
	Sessions []session.Diagnostics
	Now      time.Time
}

// Headers implements output.TableRenderer.
func (l SessionList) Headers() []string {
	return []string{"SESSION_ID", "NAME", "STATE", "USER", "CLIENT", "SUBS", "REQUESTS", "ERRORS", "LAST_ACTIVITY"}
}

// Rows implements output.TableRenderer.
func (l SessionList) Rows() [][]string {
	rows := make([][]string, 0, len(l.Sessions))
	for _, d := range l.Sessions {
		rows = append(rows, []string{
			d.SessionID,
			cmdutil.EmptyOr(d.Name, "-"),
			d.State,
			cmdutil.EmptyOr(d.User, "-"),
			cmdutil.EmptyOr(d.ClientAddr, "-"),
			fmt.Sprintf("%d", d.Subscriptions.Subscriptions),
			fmt.Sprintf("%d", d.Requests),
			fmt.Sprintf("%d", d.Errors),
			timeutil.FormatAgo(d.LastActivity, l.Now),
		})
	}
	return rows
}

// filterLive drops terminated sessions unless all is set.
func filterLive(list []session.Diagnostics, all bool) []session.Diagnostics {
	if all {
		return list
	}
	live := make([]session.Diagnostics, 0, len(list))
	for _, d := range list {
		if d.State != "terminated" {
			live = append(live, d)
		}
	}
	return live
}

func runList(cmd *cobra.Command, args []string) error {
	list, err := cmdutil.GetClient().ListSessions(cmd.Context())
	if err != nil {
		return cmdutil.DescribeAPIError("list sessions", err)
	}

	list = filterLive(list, listAll)
	return cmdutil.PrintOutput(cmd.OutOrStdout(), list,
		SessionList{Sessions: list, Now: time.Now()}, "No sessions.")
}
