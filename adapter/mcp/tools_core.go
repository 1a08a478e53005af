package mcp

import (
	"context"

	"github.com/felixgeelhaar/mcp-go"

	"github.com/felixgeelhaar/saffron/adapter/cli"
)

type healthOutput struct {
	Status     string          `json:"status"`
	Components map[string]bool `json:"components"`
}

func registerCoreTools(srv *mcp.Server, deps ToolDependencies) error {
	app := deps.App

	srv.Tool("cli.health").
		Description("Report which billing components are wired; status is degraded in limited mode").
		Handler(func(ctx context.Context, input struct{}) (healthOutput, error) {
			out := healthOutput{Status: "ok", Components: app.Wiring()}
			for _, wired := range out.Components {
				if !wired {
					out.Status = "degraded"
				}
			}
			return out, nil
		})

	srv.Tool("cli.version").
		Description("Get build information").
		Handler(func(ctx context.Context, input struct{}) (cli.BuildInfo, error) {
			return cli.Build(), nil
		})

	return nil
}
