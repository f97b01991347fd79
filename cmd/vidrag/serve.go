package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/yungbote/vidrag-backend/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			return a.Serve(ctx)
		})
	},
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the Temporal ingestion worker",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if a.Temporal == nil {
				return errors.New("worker requires TEMPORAL_ADDRESS")
			}
			return a.RunWorker(ctx)
		})
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, workerCmd)
}
