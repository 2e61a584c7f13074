package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"goldpipe/internal/gold"
	"goldpipe/internal/pipeline"
	"goldpipe/internal/ui"
	"goldpipe/internal/warehouse"
)

var (
	syncMonth string
	syncAll   bool
	syncOnly  []string
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync gold datasets into the warehouse",
	Long: `Read gold parquet snapshots and replace the matching scope of each
target table inside one transaction per dataset. Without flags the
full-replace datasets are synced; add --month to also sync the
month-partitioned ones.`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().StringVar(&syncMonth, "month", "", "review month to sync, YYYY-MM")
	syncCmd.Flags().BoolVar(&syncAll, "all", false, "sync every dataset")
	syncCmd.Flags().StringSliceVar(&syncOnly, "only", nil, "sync only the named datasets")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	names, err := pipeline.SelectDatasets(syncOnly, syncAll, syncMonth)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		ui.ShowInfo("nothing to sync for this selection")
		return nil
	}

	reader := gold.NewReader(cfg.Gold)
	if err := reader.Open(); err != nil {
		return err
	}
	defer reader.Close()

	spinner := ui.NewSpinner(fmt.Sprintf("Connecting to %s:%d", cfg.Warehouse.Host, cfg.Warehouse.Port))
	spinner.Start()
	service, err := warehouse.Connect(ctx, cfg.Warehouse, cfg.Sync)
	if err != nil {
		spinner.Stop(false, "warehouse connection failed")
		return err
	}
	spinner.Stop(true, "connected")
	defer service.Close()

	ui.ShowHeader("Sync gold -> warehouse")
	orchestrator := pipeline.NewOrchestrator(reader, pipeline.NewWarehouseWriter(service))
	results, err := orchestrator.Run(ctx, names, syncMonth)
	if err != nil {
		return err
	}

	rows := make([]ui.SyncResultRow, len(results))
	for i, r := range results {
		rows[i] = ui.SyncResultRow{Dataset: r.Dataset, Scope: r.Scope, Rows: r.Rows, Duration: r.Duration, Err: r.Err}
		if r.Err != nil {
			ui.ShowWarning(fmt.Sprintf("%s: %v", r.Dataset, r.Err))
		}
	}
	ui.ShowSyncSummary(rows)

	if pipeline.Failed(results) {
		return fmt.Errorf("one or more datasets failed to sync")
	}
	return nil
}
