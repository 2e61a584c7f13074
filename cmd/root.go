package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"goldpipe/internal/config"
	"goldpipe/internal/ui"
	"goldpipe/pkg/models"
)

var rootCmd = &cobra.Command{
	Use:   "goldpipe",
	Short: "Sync gold datasets into the Postgres warehouse and run the BI layer",
	Long: `Goldpipe moves curated Yelp gold parquet snapshots into a Postgres
warehouse, exports the warehouse for archival, and keeps a Metabase
instance reproducibly configured on top of it.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		ui.ShowError(err)
		os.Exit(1)
	}
}

// loadConfig is the shared entry point for all commands needing settings.
func loadConfig() (*models.Config, error) {
	return config.Load()
}
