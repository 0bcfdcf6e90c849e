package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/openwpsec/guard/pkg/domain/report"
)

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printScanReport(rep *report.ScanReport) {
	fmt.Printf("Scanned %d files in %s, %d flagged\n",
		rep.FilesScanned, rep.FinishedAt.Sub(rep.StartedAt).Round(1e6), rep.FilesFlagged)

	for _, f := range rep.FlaggedFiles() {
		fmt.Printf("  FILE  %-60s %s: %s\n", f.Path, f.Result.Stage, f.Result.Reason)
	}
	for _, f := range rep.Files {
		if f.Err != "" {
			fmt.Printf("  ERROR %-60s %s\n", f.Path, f.Err)
		}
	}

	if len(rep.Issues) > 0 {
		fmt.Printf("Database issues: %d\n", len(rep.Issues))
		for _, issue := range rep.Issues {
			loc := issue.Table
			if issue.Column != "" {
				loc += "." + issue.Column
			}
			if issue.RowID > 0 {
				loc += fmt.Sprintf("[%d]", issue.RowID)
			}
			fmt.Printf("  DB    %-10s %-60s %s\n", issue.Severity, loc, issue.Message)
		}
	}

	if rep.FilesFlagged == 0 && len(rep.Issues) == 0 {
		fmt.Println("No findings.")
	}
}

func printCleanResult(result *report.CleanResult) {
	status := "OK"
	if !result.Success {
		status = "FAILED"
	}
	fmt.Printf("Clean %s: %d rows deleted, %d skipped, %d failed, %d files quarantined (%d failed)\n",
		status, result.RowsDeleted, result.RowsSkipped, result.RowsFailed,
		result.Quarantined, result.QuarantineFailed)
	if result.RolledBack {
		fmt.Println("Transaction rolled back; no rows were removed.")
	}
	if result.BackupID != "" {
		fmt.Printf("Row backup ID: %s (restorable with 'guard restore %s')\n",
			result.BackupID, result.BackupID)
	}
	for _, msg := range result.Messages {
		fmt.Printf("  %s\n", msg)
	}
}
