package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/szaher/airbnb-assistant/internal/config"
	"github.com/szaher/airbnb-assistant/internal/mcp"
)

// connectTools opens a tool server connection for a one-shot command.
func connectTools(ctx context.Context, cfg config.Config, logger *slog.Logger) (*mcp.ToolClient, error) {
	conn := mcp.NewClient(cfg.ToolServer(),
		mcp.WithCallTimeout(cfg.ToolTimeout),
		mcp.WithLogger(logger),
	)
	tools := mcp.NewToolClient(conn, mcp.WithToolLogger(logger))
	if !tools.Connect(ctx) {
		return nil, errors.New("could not connect to the Airbnb MCP server")
	}
	return tools, nil
}

// stayFlags are the filters shared by search and details.
type stayFlags struct {
	checkin  string
	checkout string
	adults   int
	children int
	infants  int
	pets     int
}

func (f *stayFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.checkin, "checkin", "", "Check-in date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.checkout, "checkout", "", "Check-out date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&f.adults, "adults", 0, "Number of adults")
	cmd.Flags().IntVar(&f.children, "children", 0, "Number of children")
	cmd.Flags().IntVar(&f.infants, "infants", 0, "Number of infants")
	cmd.Flags().IntVar(&f.pets, "pets", 0, "Number of pets")
}

// filters returns only the flags that were set.
func (f *stayFlags) filters(cmd *cobra.Command) map[string]any {
	out := make(map[string]any)
	for name, v := range map[string]any{
		"checkin":  f.checkin,
		"checkout": f.checkout,
		"adults":   f.adults,
		"children": f.children,
		"infants":  f.infants,
		"pets":     f.pets,
	} {
		if cmd.Flags().Changed(name) {
			out[name] = v
		}
	}
	return out
}

func newSearchCmd() *cobra.Command {
	var (
		limit    int
		minPrice int
		maxPrice int
		stay     stayFlags
	)

	cmd := &cobra.Command{
		Use:   "search <location>",
		Short: "Search listings once and print the results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			tools, err := connectTools(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer tools.Close()

			filters := stay.filters(cmd)
			if cmd.Flags().Changed("min-price") {
				filters["minPrice"] = minPrice
			}
			if cmd.Flags().Changed("max-price") {
				filters["maxPrice"] = maxPrice
			}

			outcome := tools.Search(ctx, args[0], limit, filters)
			if !outcome.Success {
				return fmt.Errorf("search failed: %s", outcome.Message)
			}
			fmt.Fprint(cmd.OutOrStdout(), outcome.FormattedOutput)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", mcp.DefaultSearchLimit, "Maximum listings to show")
	cmd.Flags().IntVar(&minPrice, "min-price", 0, "Minimum nightly price")
	cmd.Flags().IntVar(&maxPrice, "max-price", 0, "Maximum nightly price")
	stay.register(cmd)

	return cmd
}

func newDetailsCmd() *cobra.Command {
	var stay stayFlags

	cmd := &cobra.Command{
		Use:   "details <id>",
		Short: "Show the details of one listing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			tools, err := connectTools(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer tools.Close()

			outcome := tools.GetDetails(ctx, args[0], stay.filters(cmd))
			if !outcome.Success {
				return fmt.Errorf("details failed: %s", outcome.Message)
			}
			fmt.Fprint(cmd.OutOrStdout(), outcome.FormattedOutput)
			return nil
		},
	}

	stay.register(cmd)
	return cmd
}
