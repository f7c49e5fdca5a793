package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/trakrf/action-spec-sub003/src/internal/server"
	"github.com/trakrf/action-spec-sub003/src/pkg/trace"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			shutdown, err := trace.Init("actionspec", cfg.Trace.Enabled, cfg.Trace.ReportPath)
			if err != nil {
				return fmt.Errorf("failed to initialize tracing: %w", err)
			}
			defer shutdown()

			a, client, parser, err := buildApplier(ctx, cfg)
			if err != nil {
				return err
			}

			srv := server.New(a, parser, client, cfg.Server)
			return srv.Run(ctx)
		},
	}
}
