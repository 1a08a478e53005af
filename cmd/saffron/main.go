// Command saffron is the operator CLI and, via "saffron serve", the
// webhook and entitlement query API.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/saffron/adapter/cli"
	cliBilling "github.com/felixgeelhaar/saffron/adapter/cli/billing"
	cliMCP "github.com/felixgeelhaar/saffron/adapter/cli/mcp"
	"github.com/felixgeelhaar/saffron/adapter/cli/serve"
	cliUser "github.com/felixgeelhaar/saffron/adapter/cli/user"
	"github.com/felixgeelhaar/saffron/internal/app"
	mcpinternal "github.com/felixgeelhaar/saffron/internal/mcp"
	"github.com/felixgeelhaar/saffron/pkg/config"
	"github.com/felixgeelhaar/saffron/pkg/observability"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Warn("config unavailable, using development defaults", "error", err)
		cfg = &config.Config{AppEnv: "development", DefaultPlanID: "free"}
	}
	logger := observability.NewLogger(observability.ConfigForEnvironment(cfg.AppEnv, cfg.LogLevel))
	cli.SetLogger(logger)

	// serve and mcp serve build their own containers; the other commands
	// share this one. Development tolerates a missing database so that
	// help and version still work.
	container, err := app.NewContainer(ctx, cfg, logger)
	switch {
	case err == nil:
		defer container.Close()
		cli.SetApp(mcpinternal.NewCLIApp(container, operatorUser(cfg, logger)))
	case cfg.IsDevelopment():
		logger.Warn("running in limited mode", "error", err)
	default:
		logger.Error("initialize container", "error", err)
		os.Exit(1)
	}

	cli.AddCommand(cliBilling.Cmd)
	cli.AddCommand(cliUser.Cmd)
	cli.AddCommand(serve.Cmd)
	cli.AddCommand(cliMCP.Cmd)

	cli.ExecuteContext(ctx)
}

func operatorUser(cfg *config.Config, logger *slog.Logger) uuid.UUID {
	id, err := mcpinternal.ParseOperatorUser(cfg.UserID)
	if err != nil {
		logger.Warn("ignoring SAFFRON_USER_ID", "error", err)
	}
	return id
}
