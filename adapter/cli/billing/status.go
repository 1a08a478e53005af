package billing

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/saffron/adapter/cli"
	"github.com/felixgeelhaar/saffron/internal/billing/domain"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show subscription status",
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.BillingService == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "Billing status requires database connection.")
			return nil
		}
		userID, err := targetUser(app)
		if err != nil {
			return err
		}

		subscription, err := app.BillingService.GetSubscription(cmd.Context(), userID)
		if errors.Is(err, domain.ErrSubscriptionNotFound) {
			fmt.Fprintln(cmd.OutOrStdout(), "No subscription found.")
			return nil
		}
		if err != nil {
			return err
		}

		statusLine := fmt.Sprintf("%s (%s)", subscription.PlanID, subscription.Status)
		if !subscription.IsActive() {
			statusLine += ", no access"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Subscription: %s\n", statusLine)
		fmt.Fprintf(cmd.OutOrStdout(), "Period: %s - %s\n",
			subscription.CurrentPeriodStart.Local().Format(time.DateOnly),
			subscription.CurrentPeriodEnd.Local().Format(time.DateOnly),
		)
		if subscription.TrialEnd != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "Trial ends: %s\n", formatTime(subscription.TrialEnd))
		}
		if subscription.CancelAtPeriodEnd {
			fmt.Fprintln(cmd.OutOrStdout(), "Cancels at period end.")
		}
		if subscription.CanceledAt != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "Canceled: %s\n", formatTime(subscription.CanceledAt))
		}
		if subscription.ExternalCustomerID != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "Stripe customer: %s\n", subscription.ExternalCustomerID)
		}
		if subscription.ExternalSubscriptionID != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "Stripe subscription: %s\n", subscription.ExternalSubscriptionID)
		}

		return nil
	},
}
