package cmd

import (
	"github.com/spf13/cobra"

	"goldpipe/internal/metabase"
	"goldpipe/internal/ui"
	"goldpipe/pkg/models"
)

var mbPrintOnly bool

var metabaseCmd = &cobra.Command{
	Use:   "metabase",
	Short: "Manage the Metabase BI layer",
}

var mbResetSeedCmd = &cobra.Command{
	Use:   "reset-seed",
	Short: "Recreate the Metabase container and seed a reproducible configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		agent, err := buildAgent()
		if err != nil {
			return err
		}
		return agent.ResetSeed(cmd.Context())
	},
}

var mbRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Narrow the datasource to the target schema and re-sync its metadata",
	RunE: func(cmd *cobra.Command, args []string) error {
		agent, _, err := loginAgent(cmd)
		if err != nil {
			return err
		}
		return agent.Refresh(cmd.Context())
	},
}

var mbExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export collections, cards and dashboards as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		agent, cfg, err := loginAgent(cmd)
		if err != nil {
			return err
		}
		if err := agent.ExportContent(cmd.Context(), cfg.Metabase.ExportDir); err != nil {
			return err
		}
		ui.ShowSuccess("exported to " + cfg.Metabase.ExportDir + "/")
		return nil
	},
}

var mbImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Replay an exported content tree onto this instance",
	RunE: func(cmd *cobra.Command, args []string) error {
		agent, cfg, err := loginAgent(cmd)
		if err != nil {
			return err
		}
		if err := agent.ImportContent(cmd.Context(), cfg.Metabase.ExportDir); err != nil {
			return err
		}
		ui.ShowSuccess("imported collections, cards and dashboards")
		return nil
	},
}

var mbLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Open an authenticated Metabase session in the browser",
	RunE: func(cmd *cobra.Command, args []string) error {
		agent, err := buildAgent()
		if err != nil {
			return err
		}
		return agent.OneClickLogin(cmd.Context(), mbPrintOnly)
	},
}

func init() {
	mbLoginCmd.Flags().BoolVar(&mbPrintOnly, "print-only", false, "print the session id instead of opening a browser")

	metabaseCmd.AddCommand(mbResetSeedCmd, mbRefreshCmd, mbExportCmd, mbImportCmd, mbLoginCmd)
	rootCmd.AddCommand(metabaseCmd)
}

func buildAgent() (*metabase.Agent, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return newAgent(cfg), nil
}

func newAgent(cfg *models.Config) *metabase.Agent {
	return metabase.NewAgent(metabase.NewClient(cfg.Metabase), cfg.Metabase, cfg.Warehouse)
}

// loginAgent builds an agent with an authenticated session, for subcommands
// that require an initialized instance.
func loginAgent(cmd *cobra.Command) (*metabase.Agent, *models.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	agent := newAgent(cfg)
	if err := agent.Client().Login(cmd.Context(), cfg.Metabase.Email, cfg.Metabase.Password); err != nil {
		return nil, nil, err
	}
	return agent, cfg, nil
}
