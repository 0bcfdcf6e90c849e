package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/openwpsec/guard/internal/app/policy"
	"github.com/openwpsec/guard/pkg/domain/report"
)

var (
	flagReportIn string
	flagToken    string
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remediate the findings of a prior scan",
	Long: `Clean deletes malicious database rows (with backup-before-delete and
rollback on partial failure) and quarantines flagged files. It consumes
a report produced by 'guard scan --report'; without one it runs a fresh
scan first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := buildEngine(true)
		if err != nil {
			return err
		}
		defer e.close()

		if e.remediator == nil {
			return fmt.Errorf("row backup store unavailable; refusing to delete rows without restorability")
		}

		gate := policy.NewTokenGate(e.cfg.Policy.TokenSecret, e.cfg.Policy.TokenTTL)
		if err := gate.Verify(flagToken, "clean"); err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()

		var rep *report.ScanReport
		if flagReportIn != "" {
			data, err := os.ReadFile(flagReportIn)
			if err != nil {
				return fmt.Errorf("read report: %w", err)
			}
			rep = &report.ScanReport{}
			if err := json.Unmarshal(data, rep); err != nil {
				return fmt.Errorf("parse report: %w", err)
			}
		} else {
			rep, err = e.orch.Scan(ctx)
			if err != nil {
				return err
			}
		}

		result := e.orch.Clean(ctx, rep)

		if flagOutput == "json" {
			return printJSON(result)
		}
		printCleanResult(result)
		if !result.Success {
			return fmt.Errorf("clean finished with failures")
		}
		return nil
	},
}

func init() {
	cleanCmd.Flags().StringVar(&flagReportIn, "report", "", "Remediate the findings in this report file")
	cleanCmd.Flags().StringVar(&flagToken, "token", "", "Action token (required when POLICY_TOKEN_SECRET is set)")
}
