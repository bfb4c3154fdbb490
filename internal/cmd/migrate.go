package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/betengine/internal/app"
)

// MigrateCommand returns the migrate command for registration.
func MigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := app.Migrate(background(cmd), cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrations applied (%s)\n", cfg.Store.Backend)
			return nil
		},
	}
}
