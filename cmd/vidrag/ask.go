package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/yungbote/vidrag-backend/internal/app"
	"github.com/yungbote/vidrag-backend/internal/modules/chat"
	"github.com/yungbote/vidrag-backend/internal/modules/retrieval"
)

var (
	askProfile string
	askVideos  []string
	askMode    string
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question about ingested videos",
	Long: `Streams an answer to stdout, then prints it again with citations
rendered as numbered links and a list of the cited moments.`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askProfile, "profile", "", "profile id that owns the videos")
	askCmd.Flags().StringSliceVar(&askVideos, "videos", nil, "video ids to search")
	askCmd.Flags().StringVar(&askMode, "mode", string(retrieval.ModeChat), "chat or compose")
	_ = askCmd.MarkFlagRequired("profile")
	_ = askCmd.MarkFlagRequired("videos")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	profileID, err := uuid.Parse(askProfile)
	if err != nil {
		return fmt.Errorf("invalid --profile: %w", err)
	}
	req := chat.Request{
		ProfileID: profileID,
		Message:   args[0],
		Mode:      retrieval.Mode(strings.ToLower(askMode)),
	}
	for _, raw := range askVideos {
		id, err := uuid.Parse(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("invalid video id %q", raw)
		}
		req.VideoIDs = append(req.VideoIDs, id)
	}

	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		out := cmd.OutOrStdout()
		reply, err := a.Chat.Stream(ctx, req, func(delta string) {
			fmt.Fprint(out, delta)
		})
		fmt.Fprintln(out)
		if err != nil {
			return err
		}
		cmd.Println()
		cmd.Println(reply.Rendered.Markdown())
		citations := reply.Rendered.Citations()
		if len(citations) > 0 {
			cmd.Println()
			for _, c := range citations {
				cmd.Printf("[%d] %s @ %s %s\n", c.Number, c.Title, c.Timestamp, c.URL)
			}
		}
		cmd.Printf("\nconversation %s\n", reply.ConversationID)
		return nil
	})
}
