package cli

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

// Wiring reports which billing components the App was built with.
// A false entry means the CLI is running in limited mode.
func (a *App) Wiring() map[string]bool {
	return map[string]bool{
		"processor": a.Processor != nil,
		"queries":   a.QueryService != nil,
		"usage":     a.UsageRecorder != nil,
		"billing":   a.BillingService != nil,
		"users":     a.Users != nil,
	}
}

var errNotWired = errors.New("billing services not wired")

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Report which billing components are wired",
	RunE: func(cmd *cobra.Command, args []string) error {
		app := GetApp()
		if app == nil {
			return errors.New("app not initialized")
		}
		wiring := app.Wiring()
		names := make([]string, 0, len(wiring))
		for name := range wiring {
			names = append(names, name)
		}
		sort.Strings(names)

		healthy := true
		for _, name := range names {
			state := "ok"
			if !wiring[name] {
				state, healthy = "missing", false
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%-10s %s\n", name, state)
		}
		if !healthy {
			return errNotWired
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
