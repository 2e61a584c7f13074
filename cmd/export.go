package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"goldpipe/internal/export"
	"goldpipe/internal/metabase"
	"goldpipe/internal/ui"
	"goldpipe/internal/warehouse"
)

var (
	exportCSV             bool
	exportSQL             bool
	exportGzip            bool
	exportOutDir          string
	exportSchema          string
	exportInclude         []string
	exportExclude         []string
	exportNoDDL           bool
	exportForceDockerDump bool
	exportMetabaseRefresh bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the warehouse schema as CSV files and SQL dumps",
	Long: `Export every base table of the target schema as CSV, plus pg_dump
archives (schema-only, data-only, full) with per-object DDL files. By
default both CSV and SQL are produced; --csv or --sql narrows the run.`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().BoolVar(&exportCSV, "csv", false, "only export CSV (skip SQL)")
	exportCmd.Flags().BoolVar(&exportSQL, "sql", false, "only export SQL (skip CSV)")
	exportCmd.Flags().BoolVar(&exportGzip, "gzip", false, "compress CSV files to .csv.gz")
	exportCmd.Flags().StringVar(&exportOutDir, "outdir", "", "output base directory (default from config)")
	exportCmd.Flags().StringVar(&exportSchema, "schema", "", "override the target schema")
	exportCmd.Flags().StringSliceVar(&exportInclude, "include", nil, "only export these tables (name or schema.table)")
	exportCmd.Flags().StringSliceVar(&exportExclude, "exclude", nil, "exclude these tables (name or schema.table)")
	exportCmd.Flags().BoolVar(&exportNoDDL, "no-ddl", false, "skip per-object DDL files")
	exportCmd.Flags().BoolVar(&exportForceDockerDump, "force-docker-pgdump", false, "always run pg_dump inside the warehouse container")
	exportCmd.Flags().BoolVar(&exportMetabaseRefresh, "metabase-refresh", false, "refresh the Metabase datasource before exporting")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if exportCSV && exportSQL {
		return fmt.Errorf("--csv and --sql are mutually exclusive, omit both to export everything")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if exportMetabaseRefresh {
		// Best effort: a down Metabase must not block an archive run.
		agent := metabase.NewAgent(metabase.NewClient(cfg.Metabase), cfg.Metabase, cfg.Warehouse)
		if err := agent.Client().Login(ctx, cfg.Metabase.Email, cfg.Metabase.Password); err != nil {
			ui.ShowWarning(fmt.Sprintf("Metabase refresh skipped: %v", err))
		} else if err := agent.Refresh(ctx); err != nil {
			ui.ShowWarning(fmt.Sprintf("Metabase refresh failed (ignored): %v", err))
		}
	}

	service, err := warehouse.Connect(ctx, cfg.Warehouse, cfg.Sync)
	if err != nil {
		return err
	}
	defer service.Close()

	outDir := exportOutDir
	if outDir == "" {
		outDir = cfg.Export.OutDir
	}

	opts := export.Options{
		CSVOnly:         exportCSV,
		SQLOnly:         exportSQL,
		Gzip:            exportGzip,
		OutDir:          outDir,
		Schema:          exportSchema,
		Include:         exportInclude,
		Exclude:         exportExclude,
		NoDDL:           exportNoDDL,
		ForceDockerDump: exportForceDockerDump,
	}

	ui.ShowHeader("Export warehouse")
	summary, err := export.NewService(service.DB(), cfg.Warehouse).Run(ctx, opts)
	if err != nil {
		return err
	}

	rows := make([]ui.ExportResultRow, len(summary.Files))
	for i, f := range summary.Files {
		rows[i] = ui.ExportResultRow{Object: f.Object, File: f.File, Err: f.Err}
		if f.Err != nil {
			ui.ShowWarning(fmt.Sprintf("%s: %v", f.Object, f.Err))
		}
	}
	ui.ShowExportSummary(rows)

	if summary.CSVDir != "" {
		ui.ShowInfo("CSV  -> " + summary.CSVDir)
	}
	if summary.SQLDir != "" {
		ui.ShowInfo("SQL  -> " + summary.SQLDir)
	}

	if summary.Failed() {
		return fmt.Errorf("one or more objects failed to export")
	}
	ui.ShowSuccess("export complete")
	return nil
}
