package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/betengine/internal/app"
)

// ExportCommand returns the export command for registration.
func ExportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Write one leaderboard and ledger snapshot to S3",
		Long: `Export every ledger entry committed since the previous export, then the
current leaderboard. The export cursor is stored next to the snapshots, so an
interrupted run is repeated by the next one. Requires s3.enabled.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !cfg.S3.Enabled {
				return fmt.Errorf("export: s3.enabled is false")
			}
			ctx := background(cmd)
			logger := newLogger(os.Stderr, cfg.LogLevel)

			// One-shot runs never start the poll loops, so chain and redis
			// are not needed.
			cfg.Chain.RPCURL = ""
			cfg.Redis.Enabled = false
			deps, cleanup, err := app.Wire(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			res, err := app.ExportOnce(ctx, app.BuildServices(cfg, deps, logger))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "leaderboard: %s (%d records)\n", res.LeaderboardPath, res.Records)
			if res.LedgerPath != "" {
				fmt.Fprintf(out, "ledger:      %s (%d entries)\n", res.LedgerPath, res.Entries)
			}
			fmt.Fprintf(out, "cursor:      %d -> %d\n", res.FromSeq, res.Cursor)
			return nil
		},
	}
}
