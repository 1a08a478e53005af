package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/felixgeelhaar/mcp-go"
)

// RegisterResources registers MCP resources that expose the current user's billing state.
func RegisterResources(srv *mcp.Server, deps ToolDependencies) error {
	if srv == nil {
		return fmt.Errorf("server is required")
	}
	app := deps.App

	resources := []struct {
		uri         string
		name        string
		description string
		load        func(ctx context.Context) (any, error)
	}{
		{
			uri:         "saffron://billing/subscription",
			name:        "Subscription",
			description: "Current user's subscription row",
			load: func(ctx context.Context) (any, error) {
				return subscriptionStatus(ctx, app, userInput{})
			},
		},
		{
			uri:         "saffron://billing/entitlements",
			name:        "Entitlements",
			description: "Current user's standalone feature grants",
			load: func(ctx context.Context) (any, error) {
				return listEntitlements(ctx, app, userInput{})
			},
		},
		{
			uri:         "saffron://billing/usage",
			name:        "Usage",
			description: "Current user's usage counters for this month",
			load: func(ctx context.Context) (any, error) {
				return usage(ctx, app, usageInput{})
			},
		},
		{
			uri:         "saffron://billing/history",
			name:        "Billing History",
			description: "Current user's recent payments, failures and refunds",
			load: func(ctx context.Context) (any, error) {
				return history(ctx, app, historyInput{Limit: 50})
			},
		},
	}

	for _, r := range resources {
		load := r.load
		srv.Resource(r.uri).
			Name(r.name).
			Description(r.description).
			MimeType("application/json").
			Handler(func(ctx context.Context, uri string, params map[string]string) (*mcp.ResourceContent, error) {
				value, err := load(ctx)
				if err != nil {
					return nil, err
				}
				data, err := json.MarshalIndent(value, "", "  ")
				if err != nil {
					return nil, err
				}
				return &mcp.ResourceContent{
					URI:      uri,
					MimeType: "application/json",
					Text:     string(data),
				}, nil
			})
	}

	return nil
}
