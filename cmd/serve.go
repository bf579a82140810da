package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/roastd/internal/config"
	"github.com/JakeFAU/roastd/internal/server"
)

// runner is what serve needs from the built application.
type runner interface {
	Run(ctx context.Context) error
}

// buildApp is a variable so tests can swap in a fake application.
var buildApp = func(ctx context.Context, cfg config.Config) (runner, error) {
	return server.Build(ctx, cfg, version)
}

func newServeCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and roast pipeline",
		Long: `Loads configuration, wires the configured backends and serves the API
until SIGINT or SIGTERM, then drains in-flight roasts.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			app, err := buildApp(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("build application: %w", err)
			}
			return app.Run(cmd.Context())
		},
	}
}
