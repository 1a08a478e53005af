package billing

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/saffron/adapter/cli"
)

var entitlementsCmd = &cobra.Command{
	Use:   "entitlements",
	Short: "List standalone entitlements",
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.BillingService == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "Entitlement listing requires database connection.")
			return nil
		}
		userID, err := targetUser(app)
		if err != nil {
			return err
		}

		entitlements, err := app.BillingService.ListEntitlements(cmd.Context(), userID)
		if err != nil {
			return err
		}
		if len(entitlements) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No entitlements granted.")
			return nil
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Entitlements (%d):\n", len(entitlements))
		for _, ent := range entitlements {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s: expires %s (%s", ent.Feature, formatTime(ent.ExpiresAt), ent.Provenance.Strategy())
			if id := ent.Provenance.SourceEventID(); id != "" {
				fmt.Fprintf(cmd.OutOrStdout(), ", event %s", id)
			}
			fmt.Fprintln(cmd.OutOrStdout(), ")")
		}

		return nil
	},
}
