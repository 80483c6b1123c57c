package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pricedash/pricedash/internal/cli/commands"
	"github.com/pricedash/pricedash/internal/config"
	"github.com/pricedash/pricedash/internal/logger"
)

var version = "dev" // Will be set during build

// NewRootCmd builds the command tree around app
func NewRootCmd(app *commands.App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "pricedash",
		Short: "Pricedash - catalog access from the terminal",
		Long: `Pricedash CLI - Browse the pricing catalog from your terminal.

Sign in once with 'pricedash login'; the token is kept in the OS keyring
and reused by every other command until it expires or you sign out.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(app.Out, "pricedash version %s\n", version)
		},
	})

	rootCmd.AddCommand(commands.NewLoginCmd(app))
	rootCmd.AddCommand(commands.NewLogoutCmd(app))
	rootCmd.AddCommand(commands.NewStatusCmd(app))
	rootCmd.AddCommand(commands.NewSKUsCmd(app))
	rootCmd.AddCommand(commands.NewSuppliersCmd(app))
	rootCmd.AddCommand(commands.NewCategoriesCmd(app))

	return rootCmd
}

// Execute runs the root command
func Execute() error {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}

	// Diagnostics go to stderr and stay quiet unless LOG_LEVEL asks for more
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "warn"
	}
	log := logger.New(os.Stderr, level, "console")

	app := commands.NewApp(cfg, commands.JarFor(cfg), os.Stdout, log)

	if err := NewRootCmd(app).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
