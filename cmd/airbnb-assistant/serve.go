package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/szaher/airbnb-assistant/internal/runtime"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the assistant until interrupted",
		Long: `Connect to the Airbnb tool server and accept envelopes on the configured port.
A failed tool connection is logged and reported by /healthz; the server
still starts. SIGINT or SIGTERM triggers a graceful shutdown.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}

			rt, err := runtime.New(cfg, runtime.Options{Logger: logger})
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			return rt.Run(ctx)
		},
	}
}
