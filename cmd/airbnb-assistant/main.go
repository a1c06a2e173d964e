// Package main is the entry point for the airbnb-assistant service.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/szaher/airbnb-assistant/internal/config"
	"github.com/szaher/airbnb-assistant/internal/telemetry"
)

// Version information set at build time.
var version = "0.1.0"

// Global flags.
var (
	logLevel  string
	logFormat string
	envFile   string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "airbnb-assistant",
		Short: "Chat assistant for Airbnb listing search",
		Long: `airbnb-assistant answers chat messages about Airbnb lodging. Each message
is turned into a structured request by an extraction agent and served by
the Airbnb MCP tool server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (overrides LOG_LEVEL)")
	root.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: json or text (overrides LOG_FORMAT)")
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "Load environment from this file instead of .env")

	root.AddCommand(newServeCmd())
	root.AddCommand(newSearchCmd())
	root.AddCommand(newDetailsCmd())
	root.AddCommand(newVersionCmd())

	return root
}

// loadConfig reads configuration and builds the logger, letting flags win
// over the environment.
func loadConfig() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return config.Config{}, nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.LogFormat = logFormat
	}

	level, err := telemetry.ParseLevel(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, err
	}
	logger := telemetry.NewLoggerWithFormat(os.Stderr, level, cfg.LogFormat)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
