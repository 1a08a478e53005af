// Package serve runs the webhook ingress and entitlement query API.
package serve

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/saffron/adapter/api"
	"github.com/felixgeelhaar/saffron/internal/app"
	"github.com/felixgeelhaar/saffron/pkg/config"
	"github.com/felixgeelhaar/saffron/pkg/observability"
)

const shutdownTimeout = 10 * time.Second

var addr string

// Cmd starts the HTTP server.
var Cmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the webhook ingress and entitlement query API",
	Long: `Serve POST /webhooks/stripe and the read-only entitlement API.

The outbox processor runs alongside the server unless
OUTBOX_PROCESSOR_ENABLED=false, for deployments that run cmd/worker.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if addr != "" {
			cfg.HTTPAddr = addr
		}

		logCfg := observability.ConfigForEnvironment(cfg.AppEnv, cfg.LogLevel)
		logCfg.Output = cmd.ErrOrStderr()
		logger := observability.NewLogger(logCfg)

		container, err := app.NewContainer(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer container.Close()

		if cfg.OutboxProcessorEnabled {
			if err := container.OutboxProcessor.Start(ctx); err != nil {
				return err
			}
		}

		return run(ctx, NewServer(container))
	},
}

func init() {
	Cmd.Flags().StringVar(&addr, "addr", "", "listen address (default HTTP_ADDR)")
}

// NewServer builds the API server over the container's billing services.
func NewServer(c *app.Container) *api.Server {
	webhooks := api.NewWebhookHandler(api.WebhookHandlerConfig{
		Verifier:  c.Verifier,
		Processor: c.Processor,
		Timeout:   c.Config.WebhookTimeout,
		Metrics:   c.Metrics,
		Logger:    c.Logger,
	})
	queries := api.NewQueryHandler(c.QueryService, c.Logger)

	serverCfg := api.DefaultServerConfig()
	if c.Config.HTTPAddr != "" {
		serverCfg.Addr = c.Config.HTTPAddr
	}
	serverCfg.Metrics = c.Metrics

	return api.NewServer(serverCfg, webhooks, queries, c.Ready, c.Logger)
}

// run serves until ctx is cancelled, then drains in-flight requests.
func run(ctx context.Context, srv *api.Server) error {
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
