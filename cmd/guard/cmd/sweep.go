package cmd

import (
	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run retention cleanup once",
	Long: `Sweep expires quarantined files and whole-table backups past their
retention windows. The same work runs on the configured cron schedule
when the sweeper is enabled; this command triggers one pass now.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := buildEngine(false)
		if err != nil {
			return err
		}
		defer e.close()

		ctx, cancel := signalContext()
		defer cancel()

		return e.sweeper.RunOnce(ctx)
	},
}
