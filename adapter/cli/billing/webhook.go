package billing

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/saffron/adapter/cli"
	"github.com/felixgeelhaar/saffron/internal/billing/infrastructure/stripe"
	"github.com/felixgeelhaar/saffron/internal/shared/infrastructure/security"
)

var webhookEventPath string

var webhookCmd = &cobra.Command{
	Use:   "webhook",
	Short: "Replay a stored webhook event through the processor",
	Long: `Apply a webhook event JSON file exactly as the ingress would, without
signature verification. Already handled events are reported as duplicates.

Examples:
  saffron billing webhook --event ./evt_1Nx.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if webhookEventPath == "" {
			return errors.New("event path is required")
		}

		payload, err := security.ReadFileLimit(webhookEventPath, stripe.MaxPayloadBytes)
		if err != nil {
			return err
		}

		evt, err := stripe.ParseEvent(payload)
		if err != nil {
			return fmt.Errorf("invalid webhook payload: %w", err)
		}

		app := cli.GetApp()
		if app == nil || app.Processor == nil {
			return errors.New("webhook replay requires database connection")
		}

		result, err := app.Processor.Process(cmd.Context(), evt)
		if err != nil {
			return fmt.Errorf("process %s: %w", evt.ID, err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Event %s (%s): %s", evt.ID, evt.Type, result.Outcome)
		if result.Duplicate {
			fmt.Fprint(cmd.OutOrStdout(), ", duplicate")
		}
		if result.Reason != "" {
			fmt.Fprintf(cmd.OutOrStdout(), " - %s", result.Reason)
		}
		fmt.Fprintln(cmd.OutOrStdout())
		return nil
	},
}

func init() {
	webhookCmd.Flags().StringVar(&webhookEventPath, "event", "", "path to webhook event JSON")
}
