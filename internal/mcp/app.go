package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/saffron/adapter/cli"
	"github.com/felixgeelhaar/saffron/internal/app"
	"github.com/felixgeelhaar/saffron/pkg/config"
)

// NewCLIApp exposes container's billing services to the MCP tools.
// currentUser may be uuid.Nil; tools then require an explicit user id.
func NewCLIApp(container *app.Container, currentUser uuid.UUID) *cli.App {
	a := cli.NewApp(
		container.Processor,
		container.QueryService,
		container.UsageRecorder,
		container.BillingService,
		container.UserRepo,
	)
	a.SetCurrentUserID(currentUser)
	return a
}

// ParseOperatorUser reads SAFFRON_USER_ID. Empty is allowed.
func ParseOperatorUser(value string) (uuid.UUID, error) {
	if value == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid SAFFRON_USER_ID: %w", err)
	}
	return id, nil
}

// Run wires a container from cfg and serves MCP until ctx is cancelled.
// Cancellation is a clean exit.
func Run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	currentUser, err := ParseOperatorUser(cfg.UserID)
	if err != nil {
		return err
	}

	container, err := app.NewContainer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer container.Close()

	err = Serve(ctx, cfg, NewCLIApp(container, currentUser), logger)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
