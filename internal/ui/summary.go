package ui

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
)

// SyncResultRow is one dataset's outcome in the sync summary table.
type SyncResultRow struct {
	Dataset  string
	Scope    string
	Rows     int
	Duration time.Duration
	Err      error
}

// ShowSyncSummary renders the per-dataset outcome table after a sync run.
func ShowSyncSummary(rows []SyncResultRow) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Dataset", "Scope", "Rows", "Duration", "Status"})
	table.SetBorder(false)
	table.SetColumnSeparator(" ")

	for _, r := range rows {
		status := color.GreenString("ok")
		rowCount := fmt.Sprintf("%d", r.Rows)
		if r.Err != nil {
			status = color.RedString("failed")
			rowCount = "-"
		}
		table.Append([]string{r.Dataset, r.Scope, rowCount, FormatDuration(r.Duration), status})
	}

	fmt.Println()
	table.Render()
}

// ExportResultRow is one artifact's outcome in the export summary table.
type ExportResultRow struct {
	Object string
	File   string
	Err    error
}

// ShowExportSummary renders the exported-artifact table after an export run.
func ShowExportSummary(rows []ExportResultRow) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Object", "File", "Status"})
	table.SetBorder(false)
	table.SetColumnSeparator(" ")

	for _, r := range rows {
		status := color.GreenString("ok")
		if r.Err != nil {
			status = color.RedString("failed")
		}
		table.Append([]string{r.Object, r.File, status})
	}

	fmt.Println()
	table.Render()
}
