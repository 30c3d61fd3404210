// Package cmdutil holds flag state and helpers shared by opcuad commands.
package cmdutil

import (
	"fmt"
	"io"
	"os"

	"github.com/marmos91/opcuad/internal/cli/output"
	"github.com/marmos91/opcuad/internal/cli/prompt"
	"github.com/marmos91/opcuad/pkg/apiclient"
	"github.com/marmos91/opcuad/pkg/config"
)

// EnvToken supplies the bearer token when --token is not given.
const EnvToken = "OPCUAD_TOKEN"

// Flags stores global flag values accessible by subcommands.
var Flags = &GlobalFlags{}

// GlobalFlags holds the global flag values.
type GlobalFlags struct {
	ConfigFile string
	ServerURL  string
	Token      string
	Output     string
	NoColor    bool
}

// ServerURL resolves the diagnostics API address: the --server flag, or
// localhost on the API port of the local configuration.
func ServerURL() string {
	if Flags.ServerURL != "" {
		return Flags.ServerURL
	}
	port := 8081
	if cfg, err := config.Load(Flags.ConfigFile); err == nil {
		port = cfg.API.Port
	}
	return fmt.Sprintf("http://localhost:%d", port)
}

// Token returns the bearer token from --token or OPCUAD_TOKEN.
func Token() string {
	if Flags.Token != "" {
		return Flags.Token
	}
	return os.Getenv(EnvToken)
}

// GetClient returns an API client for the resolved server, carrying the
// bearer token when one is configured.
func GetClient() *apiclient.Client {
	c := apiclient.New(ServerURL())
	if tok := Token(); tok != "" {
		return c.WithToken(tok)
	}
	return c
}

// OutputFormat returns the parsed --output flag.
func OutputFormat() (output.Format, error) {
	return output.ParseFormat(Flags.Output)
}

// PrintOutput renders data in the selected format.
func PrintOutput(w io.Writer, data any, table output.TableRenderer, emptyMsg string) error {
	format, err := OutputFormat()
	if err != nil {
		return err
	}
	return output.Print(w, format, data, table, emptyMsg)
}

// PrintSuccess prints a status line in table mode only, so JSON and YAML
// output stays machine readable.
func PrintSuccess(w io.Writer, format string, args ...any) {
	if f, err := OutputFormat(); err == nil && f == output.FormatTable {
		output.Success(w, format, args...)
	}
}

// HandleAbort turns a cancelled prompt into a clean exit.
func HandleAbort(w io.Writer, err error) error {
	if prompt.IsAborted(err) {
		_, _ = fmt.Fprintln(w, "\nAborted.")
		return nil
	}
	return err
}

// EmptyOr returns value, or fallback when value is empty.
func EmptyOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

// DescribeAPIError adds a hint to common diagnostics API failures.
func DescribeAPIError(action string, err error) error {
	apiErr, ok := apiclient.AsAPIError(err)
	if !ok {
		return fmt.Errorf("failed to %s: %w\n\nIs the server running with the diagnostics API enabled? (--server %s)", action, err, ServerURL())
	}
	switch {
	case apiErr.IsAuthError():
		return fmt.Errorf("failed to %s: %s\n\nProvide an admin token with --token or %s (see 'opcuad user token')", action, apiErr.Message, EnvToken)
	case apiErr.IsNotFound():
		return fmt.Errorf("failed to %s: session not found", action)
	case apiErr.IsConflict():
		return fmt.Errorf("failed to %s: session already terminated", action)
	}
	return fmt.Errorf("failed to %s: %w", action, err)
}
