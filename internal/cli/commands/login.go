package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pricedash/pricedash/internal/session"
)

// NewLoginCmd creates the login command
func NewLoginCmd(app *App) *cobra.Command {
	var email, password string
	var noRemember bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to the pricing backend",
		Long: `Sign in with your email and password.

The token is kept in the OS keyring so later commands stay signed in.
Use --no-remember to check the credentials without storing anything.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(cmd, app, email, password, !noRemember)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Email address (or PRICEDASH_EMAIL)")
	cmd.Flags().StringVar(&password, "password", "", "Password (or PRICEDASH_PASSWORD, prompted when omitted)")
	cmd.Flags().BoolVar(&noRemember, "no-remember", false, "Do not keep the token in the OS keyring")

	return cmd
}

func runLogin(cmd *cobra.Command, app *App, email, password string, remember bool) error {
	if email == "" {
		email = os.Getenv("PRICEDASH_EMAIL")
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("email is required (use --email flag or PRICEDASH_EMAIL env var)")
	}

	if password == "" {
		password = os.Getenv("PRICEDASH_PASSWORD")
	}
	if password == "" {
		var err error
		password, err = app.ReadPassword("Password: ")
		if err != nil {
			return err
		}
	}

	// A new sign-in replaces whatever was stored before
	app.signOut()

	creds := &session.Credentials{Email: email, Password: password, Remember: remember}
	err := app.run(cmd.Context(), session.Interaction{Credentials: creds}, session.Options{}, nil)
	if err != nil {
		return err
	}

	app.printf("Signed in as %s.\n", email)
	if remember {
		app.printf("Token stored in the OS keyring.\n")
	} else {
		app.printf("Token was not stored; later commands will ask you to sign in again.\n")
	}
	return nil
}
