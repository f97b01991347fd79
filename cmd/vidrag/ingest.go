package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/yungbote/vidrag-backend/internal/app"
	"github.com/yungbote/vidrag-backend/internal/domain/video"
	"github.com/yungbote/vidrag-backend/internal/pkg/dbctx"
)

var ingestVideoID string

// ingestCmd runs ingestion for one stored video in the foreground, which is
// handy for re-driving a FAILED video without a worker.
var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest one video in the foreground",
	Args:  cobra.NoArgs,
	RunE:  runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestVideoID, "video", "", "video id (uuid)")
	_ = ingestCmd.MarkFlagRequired("video")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, _ []string) error {
	id, err := uuid.Parse(ingestVideoID)
	if err != nil {
		return fmt.Errorf("invalid --video: %w", err)
	}
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		v, err := a.Videos.GetByID(dbctx.Context{Ctx: ctx}, id)
		if err != nil {
			return err
		}
		switch v.Status {
		case video.StatusFailed:
			if _, err := a.Coordinator.Requeue(ctx, id); err != nil {
				return err
			}
		case video.StatusQueued:
		default:
			return fmt.Errorf("video %s is %s; only QUEUED or FAILED videos can be ingested", id, v.Status)
		}
		if err := a.Coordinator.Ingest(ctx, id, v.SourceID); err != nil {
			return err
		}
		cmd.Printf("video %s is READY\n", id)
		return nil
	})
}
