package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/soiltales/soiltales-cli/internal/model"
)

var (
	historyQuery    string
	historyPage     int
	historyPageSize int
	historyLocal    bool
	historyDeleteID string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Browse prior analyses",
	Long:  "Lists the analysis history: the backend's when reachable, the local collection otherwise. Search and pagination always run against the local collection.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initSession()
		if err != nil {
			return err
		}
		defer env.Close()

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		if historyQuery != "" {
			return enc.Encode(env.Session.Search(ctx, historyQuery))
		}
		if cmd.Flags().Changed("page") {
			return enc.Encode(env.Session.Paginate(ctx, historyPage, historyPageSize))
		}

		var records []model.AnalysisRecord
		if historyLocal {
			records = env.Store.List(ctx)
		} else {
			records = env.Session.ListHistory(ctx)
		}
		return enc.Encode(records)
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete one record from the local history",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initSession()
		if err != nil {
			return err
		}
		defer env.Close()

		return env.Session.DeleteRecord(cmd.Context(), historyDeleteID)
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the entire local history",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initSession()
		if err != nil {
			return err
		}
		defer env.Close()

		return env.Session.ClearHistory(cmd.Context())
	},
}

func init() {
	historyCmd.Flags().StringVar(&historyQuery, "query", "", "filter records by substring match")
	historyCmd.Flags().IntVar(&historyPage, "page", 1, "page number (1-based)")
	historyCmd.Flags().IntVar(&historyPageSize, "page-size", 10, "records per page")
	historyCmd.Flags().BoolVar(&historyLocal, "local", false, "skip the backend and list local records only")

	historyDeleteCmd.Flags().StringVar(&historyDeleteID, "id", "", "record id (required)")
	_ = historyDeleteCmd.MarkFlagRequired("id")

	historyCmd.AddCommand(historyDeleteCmd)
	historyCmd.AddCommand(historyClearCmd)
	rootCmd.AddCommand(historyCmd)
}
