package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openwpsec/guard/internal/app/policy"
	"github.com/openwpsec/guard/internal/config"
)

var flagTokenAction string

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an action token for clean or restore",
	Long: `Token issues a short-lived signed token authorizing one destructive
action. Tokens are only meaningful when POLICY_TOKEN_SECRET is set;
without it the gate is disabled and no token is required.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		gate := policy.NewTokenGate(cfg.Policy.TokenSecret, cfg.Policy.TokenTTL)
		if gate == nil {
			return fmt.Errorf("token gate is disabled; set POLICY_TOKEN_SECRET to enable it")
		}

		token, err := gate.Issue(flagTokenAction)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&flagTokenAction, "action", "clean", "Action the token authorizes: clean, restore")

	rootCmd.AddCommand(tokenCmd)
}
