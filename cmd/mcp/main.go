// Command mcp serves the billing operator tools over MCP without the rest
// of the CLI.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	mcpinternal "github.com/felixgeelhaar/saffron/internal/mcp"
	"github.com/felixgeelhaar/saffron/pkg/config"
	"github.com/felixgeelhaar/saffron/pkg/observability"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(observability.ConfigForEnvironment(cfg.AppEnv, cfg.LogLevel))

	if err := mcpinternal.Run(ctx, cfg, logger); err != nil {
		logger.Error("mcp server exited", "error", err)
		os.Exit(1)
	}
}
