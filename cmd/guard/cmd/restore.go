package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openwpsec/guard/internal/app/policy"
)

var restoreCmd = &cobra.Command{
	Use:   "restore <row-backup-id>",
	Short: "Re-insert the rows deleted by a remediation run",
	Long: `Restore re-inserts every row of a row-backup set produced by
'guard clean'. Backups expire after their TTL; an unknown or expired ID
reports not-found without touching the database.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := buildEngine(true)
		if err != nil {
			return err
		}
		defer e.close()

		if e.remediator == nil {
			return fmt.Errorf("row backup store unavailable")
		}

		gate := policy.NewTokenGate(e.cfg.Policy.TokenSecret, e.cfg.Policy.TokenTTL)
		if err := gate.Verify(flagToken, "restore"); err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()

		result := e.remediator.RestoreFromBackup(ctx, args[0])

		if flagOutput == "json" {
			return printJSON(result)
		}
		fmt.Println(result.Message)
		for _, msg := range result.Messages {
			fmt.Printf("  %s\n", msg)
		}
		if !result.Success {
			return fmt.Errorf("restore finished with failures")
		}
		return nil
	},
}

func init() {
	restoreCmd.Flags().StringVar(&flagToken, "token", "", "Action token (required when POLICY_TOKEN_SECRET is set)")
}
