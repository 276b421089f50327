package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var configInitOut string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the effective configuration to a starter config.yaml",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(configInitOut); err == nil {
			return eris.Errorf("%s already exists", configInitOut)
		}

		out, err := yaml.Marshal(cfg)
		if err != nil {
			return eris.Wrap(err, "marshal config")
		}
		if err := os.WriteFile(configInitOut, out, 0o644); err != nil {
			return eris.Wrapf(err, "write %s", configInitOut)
		}

		zap.L().Info("wrote configuration", zap.String("path", configInitOut))
		return nil
	},
}

func init() {
	configInitCmd.Flags().StringVar(&configInitOut, "out", "config.yaml", "output path")
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}
