package mcp

import (
	"context"
	"errors"
	"log/slog"

	mcpgo "github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/mcp-go/middleware"

	"github.com/felixgeelhaar/saffron/adapter/cli"
	mcplocal "github.com/felixgeelhaar/saffron/adapter/mcp"
	"github.com/felixgeelhaar/saffron/pkg/config"
)

// NewServer builds the operator MCP server with billing tools, resources
// and prompts registered. Only tool registration failures are fatal.
func NewServer(cliApp *cli.App, logger *slog.Logger) (*mcpgo.Server, error) {
	if cliApp == nil {
		return nil, errors.New("CLI app is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	srv := mcpgo.NewServer(mcpgo.ServerInfo{
		Name:         "saffron-billing",
		Version:      cli.Build().Version,
		Capabilities: mcpgo.Capabilities{Tools: true, Resources: true, Prompts: true},
	})

	deps := mcplocal.ToolDependencies{App: cliApp}
	if err := mcplocal.RegisterCLITools(srv, deps); err != nil {
		return nil, err
	}
	if err := mcplocal.RegisterResources(srv, deps); err != nil {
		logger.Warn("mcp resources unavailable", "error", err)
	}
	if err := mcplocal.RegisterPrompts(srv, deps); err != nil {
		logger.Warn("mcp prompts unavailable", "error", err)
	}
	return srv, nil
}

// Middleware returns the request stack. With a token configured, bearer
// auth runs ahead of the default logging and recovery layers.
func Middleware(token string, logger *slog.Logger) []middleware.Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	log := slogAdapter{logger}
	stack := middleware.DefaultStack(log)
	if token == "" {
		return stack
	}
	auth := middleware.BearerTokenAuthenticator(middleware.StaticTokens(map[string]*middleware.Identity{
		token: {ID: "operator", Name: "billing operator"},
	}))
	return append([]middleware.Middleware{middleware.Auth(auth, middleware.WithAuthLogger(log))}, stack...)
}

// Serve runs the MCP server over HTTP on cfg.MCPAddr until ctx is done.
func Serve(ctx context.Context, cfg *config.Config, cliApp *cli.App, logger *slog.Logger) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	srv, err := NewServer(cliApp, logger)
	if err != nil {
		return err
	}
	if cfg.MCPAuthToken == "" {
		logger.Warn("MCP_AUTH_TOKEN not set; operator tools are unauthenticated")
	}

	logger.Info("mcp server listening", "addr", cfg.MCPAddr)
	return mcpgo.ServeHTTPWithMiddleware(ctx, srv, cfg.MCPAddr, nil,
		mcpgo.WithMiddleware(Middleware(cfg.MCPAuthToken, logger)...))
}

// slogAdapter satisfies the middleware logger with slog.
type slogAdapter struct{ *slog.Logger }

func (l slogAdapter) Debug(msg string, fields ...middleware.Field) { l.Logger.Debug(msg, args(fields)...) }
func (l slogAdapter) Info(msg string, fields ...middleware.Field)  { l.Logger.Info(msg, args(fields)...) }
func (l slogAdapter) Warn(msg string, fields ...middleware.Field)  { l.Logger.Warn(msg, args(fields)...) }
func (l slogAdapter) Error(msg string, fields ...middleware.Field) { l.Logger.Error(msg, args(fields)...) }

func args(fields []middleware.Field) []any {
	out := make([]any, 0, 2*len(fields))
	for _, f := range fields {
		out = append(out, f.Key, f.Value)
	}
	return out
}
