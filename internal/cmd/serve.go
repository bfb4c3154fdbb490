package cmd

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/betengine/internal/app"
)

var serveMode string

// ServeCommand returns the serve command for registration.
func ServeCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "serve",
		Short: "Run the service in the configured mode",
		Long: `Run betengine until SIGINT or SIGTERM.

Modes: api (HTTP API and live prices), tracker (bet settlement and snapshot
export), full (everything).`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
	c.Flags().StringVar(&serveMode, "mode", "", "override the configured mode (api, tracker, full)")
	return c
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveMode != "" {
		cfg.Mode = serveMode
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	logger := newLogger(os.Stdout, cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("betengine starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", configPath),
		slog.String("version", app.Version),
	)

	ctx, stop := signal.NotifyContext(background(cmd), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application := app.New(cfg, logger)
	defer application.Close()

	if err := application.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("betengine stopped")
	return nil
}
