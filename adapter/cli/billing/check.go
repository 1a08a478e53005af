package billing

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/saffron/adapter/cli"
	"github.com/felixgeelhaar/saffron/internal/billing/domain"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Answer entitlement questions the way the query API does",
}

var checkFeatureCmd = &cobra.Command{
	Use:   "feature <feature>",
	Short: "Check whether a user may use a feature",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.QueryService == nil {
			return errors.New("entitlement checks require database connection")
		}
		feature, err := domain.ParseFeature(args[0])
		if err != nil {
			return err
		}
		userID, err := targetUser(app)
		if err != nil {
			return err
		}

		decision, err := app.QueryService.HasFeature(cmd.Context(), userID, feature)
		printDecision(cmd, string(feature), decision.Allowed, decision.Reason)
		return err
	},
}

var checkQuotaCmd = &cobra.Command{
	Use:   "quota <limit>",
	Short: "Check a monthly limit such as recipeViewsPerMonth",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.QueryService == nil {
			return errors.New("entitlement checks require database connection")
		}
		userID, err := targetUser(app)
		if err != nil {
			return err
		}

		quota, err := app.QueryService.CheckQuota(cmd.Context(), userID, args[0])
		printDecision(cmd, args[0], quota.Allowed, quota.Reason)
		if quota.PlanID != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "Plan: %s, period %s\n", quota.PlanID, quota.Period)
		}
		if quota.Limit == nil {
			fmt.Fprintf(cmd.OutOrStdout(), "Used: %d (unlimited)\n", quota.Used)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Used: %d of %d, %d remaining\n", quota.Used, *quota.Limit, *quota.Remaining)
		}
		return err
	},
}

func printDecision(cmd *cobra.Command, subject string, allowed bool, reason string) {
	verdict := "denied"
	if allowed {
		verdict = "allowed"
	}
	if reason == "" {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", subject, verdict)
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (%s)\n", subject, verdict, reason)
}

func init() {
	checkCmd.AddCommand(checkFeatureCmd)
	checkCmd.AddCommand(checkQuotaCmd)
}
