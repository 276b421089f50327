package main

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/soiltales/soiltales-cli/internal/model"
	"github.com/soiltales/soiltales-cli/internal/session"
	"github.com/soiltales/soiltales-cli/internal/store"
)

var (
	analyzePhoto string
	analyzeLat   float64
	analyzeLon   float64
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze a soil photo",
	Long:  "Uploads the photo to the backend when it is reachable; otherwise produces a locally synthesized result flagged as such. The result is saved to the local history either way.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initSession()
		if err != nil {
			return err
		}
		defer env.Close()

		image, err := os.ReadFile(analyzePhoto)
		if err != nil {
			return eris.Wrapf(err, "read photo %s", analyzePhoto)
		}

		var loc *model.Location
		if cmd.Flags().Changed("lat") && cmd.Flags().Changed("lon") {
			loc = &model.Location{Lat: analyzeLat, Lon: analyzeLon}
		}

		rec, err := env.Session.Analyze(ctx, session.AnalyzeRequest{
			Filename: filepath.Base(analyzePhoto),
			Image:    image,
			Location: loc,
		})
		if errors.Is(err, store.ErrStorageUnavailable) {
			// The analysis itself succeeded; show it and flag the storage
			// problem instead of discarding the result.
			zap.L().Error("result could not be saved to local history", zap.Error(err))
			err = nil
		}
		if err != nil {
			return err
		}

		if rec.IsSynthetic {
			zap.L().Info("backend unreachable, showing synthesized demo result")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzePhoto, "photo", "", "path to the soil photo (required)")
	analyzeCmd.Flags().Float64Var(&analyzeLat, "lat", 0, "latitude of the sample site")
	analyzeCmd.Flags().Float64Var(&analyzeLon, "lon", 0, "longitude of the sample site")
	_ = analyzeCmd.MarkFlagRequired("photo")
	rootCmd.AddCommand(analyzeCmd)
}
