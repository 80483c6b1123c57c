package commands

import (
	"errors"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/pricedash/pricedash/internal/apiclient"
	"github.com/pricedash/pricedash/internal/session"
)

// NewLogoutCmd creates the logout command
func NewLogoutCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored token",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := app.run(cmd.Context(), session.Interaction{Logout: true}, session.Options{ShowControls: true}, nil)

			halt, ok := session.AsHalt(err)
			switch {
			case ok && halt.Rerun:
				app.printf("Signed out.\n")
				return nil
			case errors.Is(err, ErrNotSignedIn):
				app.printf("Not signed in.\n")
				return nil
			}
			return err
		},
	}
}

// NewStatusCmd creates the status command
func NewStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current session",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := app.run(cmd.Context(), session.Interaction{}, session.Options{Debug: true},
				func(auth *session.Authenticated, _ *apiclient.Client) error {
					printStatus(app, auth.Debug)
					return nil
				})
			if errors.Is(err, ErrNotSignedIn) {
				app.printf("Not signed in.\n")
				return nil
			}
			return err
		},
	}
}

func printStatus(app *App, info *session.DebugInfo) {
	app.printf("Backend:    %s\n", app.Config.API.BaseURL)

	if info.Subject != "" {
		app.printf("Signed in:  %s\n", info.Subject)
	} else {
		app.printf("Signed in:  yes\n")
	}

	switch {
	case info.ExpiresAt != nil:
		app.printf("Expires:    %s (%s)\n", humanize.Time(*info.ExpiresAt), info.ExpiresAt.Local().Format("2006-01-02 15:04"))
	case info.ClaimsError != "":
		app.printf("Expires:    unknown (%s)\n", info.ClaimsError)
	}

	stored := "no"
	switch {
	case app.Config.API.Token != "":
		stored = "bypassed (API_TOKEN)"
	case info.CookieToken != "":
		stored = "yes"
	}
	app.printf("Keyring:    %s\n", stored)
}
