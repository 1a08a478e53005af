package billing

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/saffron/adapter/cli"
	"github.com/felixgeelhaar/saffron/internal/billing/domain"
)

var (
	usagePeriod string
	usageAmount int64
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show monthly usage counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.UsageRecorder == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "Usage listing requires database connection.")
			return nil
		}
		userID, err := targetUser(app)
		if err != nil {
			return err
		}
		period := domain.PeriodOf(time.Now())
		if usagePeriod != "" {
			if period, err = domain.ParsePeriod(usagePeriod); err != nil {
				return err
			}
		}

		entry, err := app.UsageRecorder.Usage(cmd.Context(), userID, period)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Usage for %s:\n", period)
		for _, counter := range domain.Counters {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s: %d\n", counter, entry.Get(counter))
		}
		return nil
	},
}

var usageRecordCmd = &cobra.Command{
	Use:   "record <counter>",
	Short: "Increment a usage counter for the current month",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.UsageRecorder == nil {
			return errors.New("usage recording requires database connection")
		}
		counter, err := domain.ParseCounter(args[0])
		if err != nil {
			return err
		}
		userID, err := targetUser(app)
		if err != nil {
			return err
		}

		value, err := app.UsageRecorder.IncrementBy(cmd.Context(), userID, counter, usageAmount)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d\n", counter, value)
		return nil
	},
}

func init() {
	usageCmd.AddCommand(usageRecordCmd)
	usageCmd.Flags().StringVar(&usagePeriod, "period", "", "month as YYYY-MM (defaults to the current month)")
	usageRecordCmd.Flags().Int64Var(&usageAmount, "amount", 1, "amount to add")
}
