package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/soiltales/soiltales-cli/internal/store"
)

// statusReport is what the status command prints.
type statusReport struct {
	BackendReachable bool        `json:"backendReachable"`
	BackendURL       string      `json:"backendUrl"`
	Storage          store.Usage `json:"storage"`
	Records          int         `json:"records"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show backend reachability and local storage usage",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initSession()
		if err != nil {
			return err
		}
		defer env.Close()

		report := statusReport{BackendURL: cfg.Backend.BaseURL}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			report.BackendReachable = env.Gateway.Probe(gctx)
			return nil
		})
		g.Go(func() error {
			report.Storage = env.Store.Usage(gctx)
			report.Records = len(env.Store.List(gctx))
			return nil
		})
		if err := g.Wait(); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
