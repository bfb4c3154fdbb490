package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/betengine/internal/app"
	"github.com/alanyoungcy/betengine/internal/domain"
)

// AuditCommand returns the audit command for registration.
func AuditCommand() *cobra.Command {
	var (
		event  string
		limit  int
		since  time.Duration
		asJSON bool
	)
	auditCmd := &cobra.Command{
		Use:   "audit",
		Short: "Show the audit trail of awards and exports",
		Example: `  betengine audit --event points_awarded --limit 20
  betengine audit --since 24h --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit < 1 {
				return fmt.Errorf("audit: --limit must be >= 1")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := background(cmd)
			logger := newLogger(os.Stderr, cfg.LogLevel)

			// Only the store is read.
			cfg.Chain.RPCURL = ""
			cfg.Redis.Enabled = false
			cfg.S3.Enabled = false
			deps, cleanup, err := app.Wire(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			opts := domain.ListOpts{Limit: limit}
			if since > 0 {
				from := time.Now().UTC().Add(-since)
				opts.Since = &from
			}
			entries, err := deps.Audit.List(ctx, event, opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}
			if len(entries) == 0 {
				fmt.Fprintln(out, "no audit entries")
				return nil
			}
			for _, e := range entries {
				detail, _ := json.Marshal(e.Detail)
				fmt.Fprintf(out, "%s  %-16s  %s\n", e.CreatedAt.UTC().Format(time.RFC3339), e.Event, detail)
			}
			return nil
		},
	}
	auditCmd.Flags().StringVar(&event, "event", "", "only show this event (points_awarded, export_completed)")
	auditCmd.Flags().IntVar(&limit, "limit", 50, "maximum entries to show")
	auditCmd.Flags().DurationVar(&since, "since", 0, "only show entries newer than this")
	auditCmd.Flags().BoolVar(&asJSON, "json", false, "print entries as JSON")
	return auditCmd
}
