package cli

import (
	"fmt"
	"log/slog"

	"github.com/coffeeshop/shop/internal/config"
	"github.com/spf13/cobra"
)

// RootOptions is shared by every subcommand. Config and Logger are filled in
// before any subcommand runs.
type RootOptions struct {
	Verbose bool
	Config  *config.Config
	Logger  *slog.Logger
}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "shop",
		Short: "Coffee shop storefront backend",
		Long:  "Serves the coffee shop catalog, accounts and carts over HTTP, and manages its database.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			opts.Config = config.Load()
			if opts.Verbose {
				opts.Config.LogLevel = "debug"
			}
			opts.Logger = opts.Config.NewLogger()
			slog.SetDefault(opts.Logger)
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))

	return cmd
}

func wrap(step string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", step, err)
}
