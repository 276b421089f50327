package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"

	"github.com/soiltales/soiltales-cli/internal/model"
)

var (
	exportID   string
	exportOut  string
	exportXLSX bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export analyses from the local history",
	Long:  "Exports one record as a JSON blob, or the whole history as a spreadsheet with --xlsx.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initSession()
		if err != nil {
			return err
		}
		defer env.Close()

		if exportXLSX {
			if exportOut == "" {
				return eris.New("--out is required with --xlsx")
			}
			return exportSpreadsheet(env.Store.List(ctx), exportOut)
		}

		if exportID == "" {
			return eris.New("--id is required (or use --xlsx for the whole history)")
		}

		blob, err := env.Session.ExportRecord(ctx, exportID)
		if err != nil {
			return err
		}
		if exportOut == "" {
			_, err := os.Stdout.Write(append(blob, '\n'))
			return err
		}
		return os.WriteFile(exportOut, blob, 0o644)
	},
}

// exportSpreadsheet writes the history as one sheet, one row per record,
// with the five metrics in fixed columns.
func exportSpreadsheet(records []model.AnalysisRecord, path string) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("History")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, h := range append([]string{"ID", "Timestamp", "Image"}, model.MetricKeys...) {
		header.AddCell().Value = h
	}
	for _, h := range []string{"Location", "Story", "Video URL", "Synthetic"} {
		header.AddCell().Value = h
	}

	for _, rec := range records {
		row := sheet.AddRow()
		row.AddCell().Value = rec.ID
		row.AddCell().Value = rec.Timestamp.Format(time.RFC3339)
		row.AddCell().Value = rec.ImageRef
		for _, key := range model.MetricKeys {
			cell := row.AddCell()
			if v, ok := rec.SoilMetrics[key]; ok {
				cell.SetFloat(v)
			} else {
				cell.Value = "unavailable"
			}
		}
		if rec.Location != nil {
			row.AddCell().Value = rec.Location.String()
		} else {
			row.AddCell().Value = ""
		}
		row.AddCell().Value = rec.Story
		row.AddCell().Value = rec.VideoURL
		row.AddCell().Value = fmt.Sprintf("%t", rec.IsSynthetic)
	}

	return eris.Wrapf(file.Save(path), "export: save %s", path)
}

func init() {
	exportCmd.Flags().StringVar(&exportID, "id", "", "record id to export as JSON")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output file (stdout for JSON when omitted)")
	exportCmd.Flags().BoolVar(&exportXLSX, "xlsx", false, "export the whole history as a spreadsheet")
	rootCmd.AddCommand(exportCmd)
}
