// Command betengine is the backend entry point for the betting points,
// price and contract service.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/betengine/internal/app"
	"github.com/alanyoungcy/betengine/internal/cmd"
)

var rootCmd = &cobra.Command{
	Use:          "betengine",
	Short:        "Points, leaderboard, prices and contract calls for on-chain betting",
	Version:      app.Version,
	SilenceUsage: true,
}

func init() {
	cmd.RegisterFlags(rootCmd)

	rootCmd.AddCommand(cmd.ServeCommand())
	rootCmd.AddCommand(cmd.MigrateCommand())
	rootCmd.AddCommand(cmd.PointsCommand())
	rootCmd.AddCommand(cmd.ExportCommand())
	rootCmd.AddCommand(cmd.AuditCommand())
	rootCmd.AddCommand(cmd.ConfigCommand())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
