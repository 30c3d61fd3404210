package config

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/opcuad/internal/cli/output"
	"github.com/marmos91/opcuad/pkg/config"
)

var showOutput string

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the effective configuration",
	Long: `Display the configuration after defaults and OPCUAD_* environment
overrides are applied.

Examples:
  opcuad config show
  opcuad config show --format json`,
	RunE: runConfigShow,
}

func init() {
	showCmd.Flags().StringVar(&showOutput, "format", "yaml", "Output format (yaml|json)")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(configPath())
	if err != nil {
		return err
	}

	format, err := output.ParseFormat(showOutput)
	if err != nil {
		return err
	}

	if format == output.FormatJSON {
		return output.PrintJSON(cmd.OutOrStdout(), cfg)
	}
	return output.PrintYAML(cmd.OutOrStdout(), cfg)
}
