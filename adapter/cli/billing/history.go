package billing

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/saffron/adapter/cli"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show billing history",
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.BillingService == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "Billing history requires database connection.")
			return nil
		}
		userID, err := targetUser(app)
		if err != nil {
			return err
		}

		entries, err := app.BillingService.ListHistory(cmd.Context(), userID, historyLimit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No billing history.")
			return nil
		}

		for _, e := range entries {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %-18s %s %s",
				e.OccurredAt.Local().Format(time.DateTime),
				e.Kind,
				e.Amount.StringFixed(2),
				e.Currency,
			)
			if e.ExternalReference != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s", e.ExternalReference)
			}
			fmt.Fprintln(cmd.OutOrStdout())
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum entries to show")
}
