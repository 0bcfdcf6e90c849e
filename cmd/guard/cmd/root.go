package cmd

import (
	"github.com/spf13/cobra"
)

var (
	version string

	// Global flags
	flagRules    string
	flagSiteRoot string
	flagOutput   string
	flagSkipDB   bool
)

var rootCmd = &cobra.Command{
	Use:   "guard",
	Short: "CMS malware detection and remediation engine",
	Long: `guard scans a CMS installation for known malicious code signatures:
filesystem content through a staged security policy, and database rows
through batched pattern matching with schema integrity checks.

Confirmed findings can be remediated with rollback safety: row deletes
are backed up before execution and restorable for a limited window, and
malicious files are quarantined with a layered fallback strategy.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the CLI version from build flags.
func SetVersion(v string) {
	version = v
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagRules, "rules", "", "Path to a YAML rules file (default: built-in signature set)")
	rootCmd.PersistentFlags().StringVar(&flagSiteRoot, "site-root", "", "Override the site root (env: GUARD_SITE_ROOT)")
	rootCmd.PersistentFlags().StringVarP(&flagOutput, "output", "o", "text", "Output format: text, json")
	rootCmd.PersistentFlags().BoolVar(&flagSkipDB, "skip-db", false, "Skip database checks, scan the filesystem only")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(sweepCmd)
}
