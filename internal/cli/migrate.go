package cli

import (
	"github.com/coffeeshop/shop/internal/repository"
	"github.com/spf13/cobra"
)

func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage MongoDB indexes",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := rootOpts.Config
			db, err := repository.ConnectMongoDB(cmd.Context(), cfg.MongoURI, cfg.MongoDBName)
			if err != nil {
				return wrap("connect mongodb", err)
			}
			defer db.Client().Disconnect(cmd.Context())

			if err := repository.RunMigrations(db); err != nil {
				return wrap("migrate up", err)
			}
			rootOpts.Logger.Info("migrations applied", "database", cfg.MongoDBName)
			return nil
		},
	})

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back applied migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := rootOpts.Config
			db, err := repository.ConnectMongoDB(cmd.Context(), cfg.MongoURI, cfg.MongoDBName)
			if err != nil {
				return wrap("connect mongodb", err)
			}
			defer db.Client().Disconnect(cmd.Context())

			if err := repository.RollbackMigrations(db, steps); err != nil {
				return wrap("migrate down", err)
			}
			rootOpts.Logger.Info("migrations rolled back", "steps", steps)
			return nil
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	cmd.AddCommand(down)

	return cmd
}
