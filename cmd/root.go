package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/soiltales/soiltales-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "soiltales",
	Short: "Offline-capable client for the SoilTales soil analysis service",
	Long:  "Submits soil photos for analysis, generates story videos, and keeps a bounded local history. Falls back to locally synthesized results whenever the backend is unreachable.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
