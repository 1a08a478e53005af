package mcp

import (
	"github.com/spf13/cobra"

	mcpinternal "github.com/felixgeelhaar/saffron/internal/mcp"
	"github.com/felixgeelhaar/saffron/pkg/config"
	"github.com/felixgeelhaar/saffron/pkg/observability"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve billing operator tools over MCP (HTTP on MCP_ADDR)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logCfg := observability.ConfigForEnvironment(cfg.AppEnv, cfg.LogLevel)
		logCfg.Output = cmd.ErrOrStderr()

		return mcpinternal.Run(cmd.Context(), cfg, observability.NewLogger(logCfg))
	},
}
