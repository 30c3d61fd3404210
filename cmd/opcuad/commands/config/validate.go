package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/opcuad/pkg/config"
	"github.com/marmos91/opcuad/pkg/identity"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the opcuad configuration file.

Checks for syntax errors, missing required fields, and invalid values.

Examples:
  opcuad config validate
  opcuad config validate --config /etc/opcuad/config.yaml`,
	RunE: runConfigValidate,
}

// warnings lists settings that are valid but probably unintended.
func warnings(cfg *config.Config) []string {
	var out []string
	if cfg.Identity.AllowAnonymous {
		out = append(out, "anonymous logins are allowed")
	}
	if !cfg.Identity.Issued.Enabled {
		out = append(out, "issued tokens are disabled - sessions cannot be terminated through the API")
	}
	if cfg.Server.Certificate == "" {
		out = append(out, "no application certificate - only SecurityPolicy None is offered")
	}
	for _, u := range cfg.Identity.Users {
		if identity.NeedsRehash(u.PasswordHash) {
			out = append(out, fmt.Sprintf("user %q has a weak or unreadable password hash - regenerate it with \"opcuad user hash-password\"", u.Name))
		}
	}
	return out
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(configPath())
	if err != nil {
		return err
	}

	displayPath := configPath()
	if displayPath == "" {
		displayPath = config.GetDefaultConfigPath()
	}

	w := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(w, "Configuration file: %s\n", displayPath)
	_, _ = fmt.Fprintln(w, "Validation: OK")

	if ws := warnings(cfg); len(ws) > 0 {
		_, _ = fmt.Fprintln(w, "\nWarnings:")
		for _, warning := range ws {
			_, _ = fmt.Fprintf(w, "  - %s\n", warning)
		}
	}

	_, _ = fmt.Fprintf(w, "\nConfiguration summary:\n")
	_, _ = fmt.Fprintf(w, "  Endpoint:      %s\n", cfg.Server.EndpointURL)
	_, _ = fmt.Fprintf(w, "  Max sessions:  %d\n", cfg.Session.MaxSessions)
	_, _ = fmt.Fprintf(w, "  Users:         %d\n", len(cfg.Identity.Users))
	_, _ = fmt.Fprintf(w, "  API port:      %d\n", cfg.API.Port)
	_, _ = fmt.Fprintf(w, "  Log level:     %s\n", cfg.Logging.Level)
	return nil
}
