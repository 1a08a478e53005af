package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/saffron/pkg/observability"
)

var logger *slog.Logger

type startedAtKey struct{}

var rootCmd = &cobra.Command{
	Use:   "saffron",
	Short: "Saffron - entitlement and billing reconciliation engine",
	Long: `Saffron turns payment processor webhooks into feature entitlements,
subscription state, usage quotas, and an auditable billing history.

Run "saffron serve" for the webhook and query API, or use the billing
commands to inspect and adjust a user's access by hand.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Same request_id field the API logs carry.
		ctx := observability.WithRequestID(cmd.Context(), "")
		ctx = context.WithValue(ctx, startedAtKey{}, time.Now())
		cmd.SetContext(ctx)
		cliLogger().DebugContext(ctx, "command start", "command", cmd.CommandPath())
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		started, ok := ctx.Value(startedAtKey{}).(time.Time)
		if !ok {
			return
		}
		cliLogger().DebugContext(ctx, "command end",
			"command", cmd.CommandPath(),
			"duration_ms", time.Since(started).Milliseconds(),
		)
	},
}

func cliLogger() *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}

// Execute runs the root command with a background context.
func Execute() {
	ExecuteContext(context.Background())
}

// ExecuteContext runs the root command; long-running commands stop when ctx is cancelled.
func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// AddCommand registers a subcommand on the root command.
func AddCommand(cmd *cobra.Command) {
	rootCmd.AddCommand(cmd)
}

// SetLogger sets the logger used for command tracing.
func SetLogger(l *slog.Logger) {
	logger = l
}
