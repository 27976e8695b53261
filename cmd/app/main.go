package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"PriceBand/internal/di"
	"PriceBand/pkg/config"
	"PriceBand/pkg/server"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "priceband",
	Short: "Forward price target bands for a basket of equities",
	Long: `priceband fetches daily bars, derives lagged returns, the rolling low and
forward price target bands per instrument, and writes cross-instrument
summary tables.`,
	SilenceUsage: true,
}

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Recompute every instrument from its full history",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, app *server.App) error {
			return app.Build(ctx)
		})
	},
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Extend stored series with the latest minute bar",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, app *server.App) error {
			return app.Update(ctx)
		})
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve bands over HTTP and websocket, refreshing on a timer",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, app *server.App) error {
			return app.Serve(ctx)
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/config.yaml", "config file path")
	rootCmd.AddCommand(buildCmd, updateCmd, serveCmd)
}

func withApp(ctx context.Context, run func(context.Context, *server.App) error) error {
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}
	app, err := di.InitializeApp(cfg)
	if err != nil {
		return fmt.Errorf("app initialization failed: %w", err)
	}
	return run(ctx, app)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
