package billing

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/saffron/adapter/cli"
	"github.com/felixgeelhaar/saffron/internal/billing/application"
	"github.com/felixgeelhaar/saffron/internal/billing/domain"
)

var (
	grantFeature string
	grantExpires string
	grantNote    string

	revokeFeature string
	revokeReason  string
)

var grantCmd = &cobra.Command{
	Use:   "grant",
	Short: "Grant a feature to a user",
	Long: `Grant a standalone feature entitlement, replacing any existing grant.

Examples:
  saffron billing grant --user 6f1c... --feature recipe_access
  saffron billing grant --feature pdf_downloads --expires 720h --note "support goodwill"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.BillingService == nil {
			return errors.New("entitlement updates require database connection")
		}
		feature, err := domain.ParseFeature(grantFeature)
		if err != nil {
			return errors.New("feature is required")
		}
		userID, err := targetUser(app)
		if err != nil {
			return err
		}
		expiresAt, err := parseExpiry(grantExpires, time.Now())
		if err != nil {
			return err
		}

		ent, err := app.BillingService.Grant(cmd.Context(), application.GrantCommand{
			UserID:    userID,
			Feature:   feature,
			ExpiresAt: expiresAt,
			Operator:  operatorName(),
			Note:      grantNote,
		})
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Entitlement granted: %s (expires %s)\n", ent.Feature, formatTime(ent.ExpiresAt))
		return nil
	},
}

var revokeCmd = &cobra.Command{
	Use:   "revoke",
	Short: "Revoke a feature from a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.BillingService == nil {
			return errors.New("entitlement updates require database connection")
		}
		feature, err := domain.ParseFeature(revokeFeature)
		if err != nil {
			return errors.New("feature is required")
		}
		userID, err := targetUser(app)
		if err != nil {
			return err
		}

		removed, err := app.BillingService.Revoke(cmd.Context(), userID, feature, revokeReason)
		if err != nil {
			return err
		}
		if !removed {
			fmt.Fprintf(cmd.OutOrStdout(), "No entitlement to revoke: %s\n", feature)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Entitlement revoked: %s\n", feature)
		return nil
	},
}

func operatorName() string {
	if name := os.Getenv("USER"); name != "" {
		return "cli:" + name
	}
	return "cli"
}

func init() {
	grantCmd.Flags().StringVar(&grantFeature, "feature", "", "feature to grant (recipe_access, pdf_downloads)")
	grantCmd.Flags().StringVar(&grantExpires, "expires", "", "expiry as RFC 3339 time or duration; empty never expires")
	grantCmd.Flags().StringVar(&grantNote, "note", "", "note stored with the grant")

	revokeCmd.Flags().StringVar(&revokeFeature, "feature", "", "feature to revoke")
	revokeCmd.Flags().StringVar(&revokeReason, "reason", "manual", "reason recorded on the revocation event")
}
