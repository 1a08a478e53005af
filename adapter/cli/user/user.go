// Package user holds commands for the local user directory the resolver
// matches webhook events against.
package user

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/saffron/adapter/cli"
	identity "github.com/felixgeelhaar/saffron/internal/identity/domain"
)

// Cmd is the user command group.
var Cmd = &cobra.Command{
	Use:   "user",
	Short: "Manage the user directory",
}

var (
	addEmail string
	addName  string
)

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a user to the directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.Users == nil {
			return errors.New("user management requires database connection")
		}
		email, err := identity.NewEmail(addEmail)
		if err != nil {
			return err
		}
		name, err := identity.NewName(addName)
		if err != nil {
			return err
		}

		u := identity.NewUser(email, name)
		if err := app.Users.Save(cmd.Context(), u); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "User added: %s <%s>\n", u.ID(), u.Email())
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show <id|email>",
	Short: "Look up users by id or email",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.Users == nil {
			return errors.New("user management requires database connection")
		}

		var users []*identity.User
		if id, err := uuid.Parse(args[0]); err == nil {
			u, err := app.Users.FindByID(cmd.Context(), id)
			if err != nil {
				return err
			}
			users = append(users, u)
		} else {
			email, err := identity.NewEmail(args[0])
			if err != nil {
				return err
			}
			if users, err = app.Users.FindByEmail(cmd.Context(), email); err != nil {
				return err
			}
		}

		if len(users) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No users found.")
			return nil
		}
		for _, u := range users {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %s\n", u.ID(), u.Email(), u.Name())
		}
		return nil
	},
}

func init() {
	Cmd.AddCommand(addCmd)
	Cmd.AddCommand(showCmd)

	addCmd.Flags().StringVar(&addEmail, "email", "", "email address")
	addCmd.Flags().StringVar(&addName, "name", "", "display name")
}
