package main

import (
	"encoding/json"
	"errors"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/soiltales/soiltales-cli/internal/store"
)

var videoID string

var videoCmd = &cobra.Command{
	Use:   "video",
	Short: "Generate a story video for a stored analysis",
	Long:  "Asks the backend to render the story video for a record in the history. When the backend is unreachable, a placeholder video is attached instead.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initSession()
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Session.GenerateVideo(ctx, videoID)
		if errors.Is(err, store.ErrStorageUnavailable) {
			zap.L().Error("video could not be attached to the stored record", zap.Error(err))
			err = nil
		}
		if err != nil {
			return err
		}

		if result.IsSynthetic {
			zap.L().Info("backend unreachable, attached placeholder video")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	videoCmd.Flags().StringVar(&videoID, "id", "", "record id from the local history (required)")
	_ = videoCmd.MarkFlagRequired("id")
	rootCmd.AddCommand(videoCmd)
}
