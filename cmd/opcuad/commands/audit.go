package commands

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gopcua/opcua/ua"
	"github.com/spf13/cobra"

	"github.com/marmos91/opcuad/cmd/opcuad/cmdutil"
	"github.com/marmos91/opcuad/internal/cli/timeutil"
	"github.com/marmos91/opcuad/pkg/audit"
	"github.com/marmos91/opcuad/pkg/config"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the audit log",
}

var (
	auditFile    string
	auditKind    string
	auditSession string
	auditUser    string
	auditSince   time.Duration
)

var auditShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print audit events",
	Long: `Print events from the audit log. The file defaults to audit.path of
the configuration.

Examples:
  opcuad audit show
  opcuad audit show --kind write --since 1h
  opcuad audit show --user operator -o json`,
	Args: cobra.NoArgs,
	RunE: runAuditShow,
}

func init() {
	auditShowCmd.Flags().StringVar(&auditFile, "file", "", "Audit log file (overrides audit.path)")
	auditShowCmd.Flags().StringVar(&auditKind, "kind", "", "Event kind (create_session, activate_session, close_session, write)")
	auditShowCmd.Flags().StringVar(&auditSession, "session", "", "Session id")
	auditShowCmd.Flags().StringVar(&auditUser, "user", "", "User name")
	auditShowCmd.Flags().DurationVar(&auditSince, "since", 0, "Only events newer than this")

	auditCmd.AddCommand(auditShowCmd)
}

// EventList renders audit events as a table.
type EventList []audit.Event

// Headers implements output.TableRenderer.
func (l EventList) Headers() []string {
	return []string{"TIME", "KIND", "SESSION", "USER", "NODE", "STATUS"}
}

// Rows implements output.TableRenderer.
func (l EventList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, ev := range l {
		rows = append(rows, []string{
			timeutil.FormatTime(ev.Time),
			string(ev.Kind),
			cmdutil.EmptyOr(ev.SessionID, "-"),
			cmdutil.EmptyOr(ev.User, "-"),
			cmdutil.EmptyOr(ev.NodeID, "-"),
			statusName(ev.Status),
		})
	}
	return rows
}

func statusName(code uint32) string {
	if s, ok := ua.StatusCodes[ua.StatusCode(code)]; ok {
		return strings.TrimPrefix(s.Name, "Status")
	}
	return fmt.Sprintf("0x%08X", code)
}

func parseKind(s string) (audit.Kind, error) {
	switch k := audit.Kind(s); k {
	case "", audit.KindCreateSession, audit.KindActivateSession, audit.KindCloseSession, audit.KindWrite:
		return k, nil
	}
	return "", fmt.Errorf("unknown event kind %q", s)
}

func runAuditShow(cmd *cobra.Command, args []string) error {
	kind, err := parseKind(auditKind)
	if err != nil {
		return err
	}

	path := auditFile
	if path == "" {
		cfg, err := config.Load(cmdutil.Flags.ConfigFile)
		if err != nil {
			return err
		}
		path = cfg.Audit.Path
	}

	filter := audit.Filter{Kind: kind, SessionID: auditSession, User: auditUser}
	if auditSince > 0 {
		filter.Since = time.Now().Add(-auditSince)
	}

	r, err := audit.OpenReader(path, filter)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("no audit log at %s; is audit.enabled set?", path)
		}
		return err
	}
	defer func() { _ = r.Close() }()

	events, err := r.ReadAll()
	if err != nil {
		return fmt.Errorf("failed to read audit log: %w", err)
	}
	return cmdutil.PrintOutput(cmd.OutOrStdout(), events, EventList(events), "No audit events.")
}
