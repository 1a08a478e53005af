package mcp

import (
	"context"
	"errors"

	"github.com/felixgeelhaar/mcp-go"

	"github.com/felixgeelhaar/saffron/adapter/cli"
	identity "github.com/felixgeelhaar/saffron/internal/identity/domain"
)

type userLookupInput struct {
	Email string `json:"email" jsonschema:"required"`
}

type userView struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

func registerUserTools(srv *mcp.Server, deps ToolDependencies) error {
	app := deps.App

	srv.Tool("user.find").
		Description("Find directory users by email; several matches block email-based webhook resolution").
		Handler(func(ctx context.Context, input userLookupInput) ([]userView, error) {
			return findUsers(ctx, app, input)
		})

	return nil
}

func findUsers(ctx context.Context, app *cli.App, input userLookupInput) ([]userView, error) {
	if app == nil || app.Users == nil {
		return nil, errors.New("user lookup requires database connection")
	}
	email, err := identity.NewEmail(input.Email)
	if err != nil {
		return nil, err
	}
	users, err := app.Users.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	views := make([]userView, 0, len(users))
	for _, u := range users {
		views = append(views, userView{ID: u.ID().String(), Email: u.Email().String(), Name: u.Name().String()})
	}
	return views, nil
}
