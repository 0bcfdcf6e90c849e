package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var flagReportOut string

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan the site tree and database for malicious content",
	Long: `Scan walks every file under the site root through the security policy
and runs the database integrity, content, and metadata checks. The
resulting report can be written to a file and fed to 'guard clean'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := buildEngine(!flagSkipDB)
		if err != nil {
			return err
		}
		defer e.close()

		ctx, cancel := signalContext()
		defer cancel()

		rep, err := e.orch.Scan(ctx)
		if err != nil {
			return err
		}

		if flagReportOut != "" {
			data, err := json.MarshalIndent(rep, "", "  ")
			if err != nil {
				return fmt.Errorf("encode report: %w", err)
			}
			if err := os.WriteFile(flagReportOut, data, 0o600); err != nil {
				return fmt.Errorf("write report: %w", err)
			}
			fmt.Printf("Report written to %s\n", flagReportOut)
		}

		if flagOutput == "json" {
			return printJSON(rep)
		}
		printScanReport(rep)
		return nil
	},
}

func init() {
	scanCmd.Flags().StringVar(&flagReportOut, "report", "", "Write the full report as JSON to this file")
}
