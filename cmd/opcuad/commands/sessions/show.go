package sessions

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/marmos91/opcuad/cmd/opcuad/cmdutil"
	"github.com/marmos91/opcuad/internal/bytesize"
	"github.com/marmos91/opcuad/internal/cli/output"
	"github.com/marmos91/opcuad/internal/cli/timeutil"
	"github.com/marmos91/opcuad/pkg/session"
)

var showCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show one session",
	Long: `Show the diagnostics of one session: negotiated limits, subscription
counts and per-service request counters.

Examples:
  opcuad sessions show "ns=1;i=7"
  opcuad sessions show 7 -o json`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

// detail renders one session as key/value pairs followed by a service table.
func detail(d *session.Diagnostics) output.KeyValues {
	var kv output.KeyValues
	kv.Add("Session ID", d.SessionID)
	kv.Add("Name", cmdutil.EmptyOr(d.Name, "-"))
	kv.Add("State", d.State)
	kv.Add("User", cmdutil.EmptyOr(d.User, "-"))
	kv.Add("Client", cmdutil.EmptyOr(d.ClientAddr, "-"))
	kv.Add("Client URI", cmdutil.EmptyOr(d.ClientURI, "-"))
	kv.Add("Endpoint", cmdutil.EmptyOr(d.EndpointURL, "-"))
	kv.Add("Security policy", cmdutil.EmptyOr(d.SecurityPolicy, "-"))
	kv.Add("Created", timeutil.FormatTime(d.CreatedAt))
	kv.Add("Last activity", timeutil.FormatTime(d.LastActivity))
	if d.TerminatedAt != nil {
		kv.Add("Terminated", timeutil.FormatTime(*d.TerminatedAt))
	}
	kv.Add("Timeout", timeutil.FormatDuration(d.Timeout))
	kv.Add("Max request size", bytesize.ByteSize(d.MaxRequestMessageSize).String())
	kv.Add("Max response size", bytesize.ByteSize(d.MaxResponseMessageSize).String())
	kv.Add("Subscriptions", fmt.Sprintf("%d", d.Subscriptions.Subscriptions))
	kv.Add("Monitored items", fmt.Sprintf("%d", d.Subscriptions.MonitoredItems))
	kv.Add("Queued publish requests", fmt.Sprintf("%d", d.Subscriptions.QueuedPublishRequests))
	kv.Add("Continuation points", fmt.Sprintf("%d (evicted %d)", d.ContinuationPoints, d.EvictedPoints))
	kv.Add("Requests", fmt.Sprintf("%d (errors %d, unauthorized %d)", d.Requests, d.Errors, d.UnauthorizedRequests))
	return kv
}

// ServiceTable lists per-service counters sorted by service name.
type ServiceTable map[string]session.ServiceCounter

// Headers implements output.TableRenderer.
func (t ServiceTable) Headers() []string {
	return []string{"SERVICE", "TOTAL", "ERRORS"}
}

// Rows implements output.TableRenderer.
func (t ServiceTable) Rows() [][]string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([][]string, 0, len(names))
	for _, name := range names {
		c := t[name]
		rows = append(rows, []string{name, fmt.Sprintf("%d", c.Total), fmt.Sprintf("%d", c.Errors)})
	}
	return rows
}

func runShow(cmd *cobra.Command, args []string) error {
	d, err := cmdutil.GetClient().GetSession(cmd.Context(), args[0])
	if err != nil {
		return cmdutil.DescribeAPIError("get session", err)
	}

	format, err := cmdutil.OutputFormat()
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if format != output.FormatTable {
		return output.Print(w, format, d, nil, "")
	}

	if err := output.PrintKeyValues(w, detail(d)); err != nil {
		return err
	}
	if len(d.Services) == 0 {
		return nil
	}
	_, _ = fmt.Fprintln(w)
	return output.PrintTable(w, ServiceTable(d.Services))
}
