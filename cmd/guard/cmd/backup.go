package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var flagLatest bool

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Manage whole-table backups",
}

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Dump every critical table to the backup directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := buildEngine(true)
		if err != nil {
			return err
		}
		defer e.close()

		ctx, cancel := signalContext()
		defer cancel()

		manifest, err := e.tableBackup.Backup(ctx)
		if err != nil {
			return err
		}

		if flagOutput == "json" {
			return printJSON(manifest)
		}
		fmt.Printf("Backup %s: %d tables dumped to %s\n",
			manifest.BackupID, len(manifest.TableFiles), e.cfg.Backup.Dir)
		return nil
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore [backup-id]",
	Short: "Restore a whole-table backup (truncates the target tables)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 && !flagLatest {
			return fmt.Errorf("a backup ID or --latest is required")
		}

		e, err := buildEngine(true)
		if err != nil {
			return err
		}
		defer e.close()

		ctx, cancel := signalContext()
		defer cancel()

		if flagLatest {
			if err := e.tableBackup.RestoreMostRecent(ctx); err != nil {
				return err
			}
		} else if err := e.tableBackup.Restore(ctx, args[0]); err != nil {
			return err
		}

		fmt.Println("Restore complete.")
		return nil
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List restorable row-backup IDs from recent remediation runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := buildEngine(true)
		if err != nil {
			return err
		}
		defer e.close()

		if e.remediator == nil {
			return fmt.Errorf("row backup store unavailable")
		}

		ctx, cancel := signalContext()
		defer cancel()

		ids, err := e.remediator.RecentBackups(ctx)
		if err != nil {
			return err
		}

		if flagOutput == "json" {
			return printJSON(ids)
		}
		if len(ids) == 0 {
			fmt.Println("No row backups.")
			return nil
		}
		for _, id := range ids {
			fmt.Println(id)
		}
		return nil
	},
}

func init() {
	backupRestoreCmd.Flags().BoolVar(&flagLatest, "latest", false, "Restore the most recent backup")

	backupCmd.AddCommand(backupCreateCmd)
	backupCmd.AddCommand(backupRestoreCmd)
	backupCmd.AddCommand(backupListCmd)
}
