package billing

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/saffron/adapter/cli"
)

// Cmd is the billing command group.
var Cmd = &cobra.Command{
	Use:   "billing",
	Short: "Manage billing and entitlements",
	Long: `Inspect and adjust a user's subscription, entitlements, usage and
billing history, and replay processor webhooks by hand.

Commands act on SAFFRON_USER_ID unless --user is given.`,
}

// userFlag is shared by every command that targets a user.
var userFlag string

func init() {
	Cmd.AddCommand(statusCmd)
	Cmd.AddCommand(entitlementsCmd)
	Cmd.AddCommand(grantCmd)
	Cmd.AddCommand(revokeCmd)
	Cmd.AddCommand(checkCmd)
	Cmd.AddCommand(usageCmd)
	Cmd.AddCommand(historyCmd)
	Cmd.AddCommand(webhookCmd)

	for _, c := range []*cobra.Command{statusCmd, entitlementsCmd, grantCmd, revokeCmd, checkFeatureCmd, checkQuotaCmd, usageCmd, usageRecordCmd, historyCmd} {
		c.Flags().StringVar(&userFlag, "user", "", "user id (defaults to SAFFRON_USER_ID)")
	}
}

func targetUser(app *cli.App) (uuid.UUID, error) {
	if userFlag != "" {
		id, err := uuid.Parse(userFlag)
		if err != nil {
			return uuid.Nil, fmt.Errorf("invalid user id %q: %w", userFlag, err)
		}
		return id, nil
	}
	if app.CurrentUserID == uuid.Nil {
		return uuid.Nil, errors.New("user is required: pass --user or set SAFFRON_USER_ID")
	}
	return app.CurrentUserID, nil
}

// parseExpiry accepts an RFC 3339 timestamp or a duration from now. Empty means never.
func parseExpiry(value string, now time.Time) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		t = t.UTC()
		return &t, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return nil, fmt.Errorf("invalid expiry %q: use RFC 3339 or a duration such as 720h", value)
	}
	if d <= 0 {
		return nil, fmt.Errorf("expiry duration must be positive")
	}
	t := now.Add(d).UTC()
	return &t, nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Local().Format(time.RFC1123)
}
