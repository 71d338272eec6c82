package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/vandy-research/roster-cli/internal/model"
	"github.com/vandy-research/roster-cli/internal/report"
	"github.com/vandy-research/roster-cli/internal/roster"
)

var (
	reportStage  string
	reportFormat string
	reportOut    string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print coverage statistics for a roster snapshot",
	RunE: func(cmd *cobra.Command, _ []string) error {
		var ds *model.Dataset
		var err error

		if reportStage != "" {
			stage := model.Stage(reportStage)
			if stage.Ord() == 0 {
				return eris.Errorf("unknown stage %q", reportStage)
			}
			ds, err = roster.Load(roster.StagePath(cfg.Data.Dir, stage))
		} else {
			ds, _, err = roster.LoadLatest(cfg.Data.Dir)
		}
		if err != nil {
			return err
		}

		cov := report.Compute(ds)

		var out string
		switch reportFormat {
		case "json":
			data, err := json.MarshalIndent(cov, "", "  ")
			if err != nil {
				return eris.Wrap(err, "marshal report")
			}
			out = string(data) + "\n"
		case "table":
			out = report.RenderTable(cov) + "\n"
		case "text", "":
			out = report.FormatText(cov)
		default:
			return eris.Errorf("unknown format %q (want text, table, or json)", reportFormat)
		}

		if reportOut != "" {
			if err := os.WriteFile(reportOut, []byte(out), 0o644); err != nil {
				return eris.Wrapf(err, "write report %s", reportOut)
			}
			return nil
		}
		fmt.Print(out)
		return nil
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportStage, "stage", "", "report on a specific stage snapshot (default: most advanced present)")
	reportCmd.Flags().StringVar(&reportFormat, "format", "text", "output format: text, table, or json")
	reportCmd.Flags().StringVar(&reportOut, "out", "", "write the report to a file instead of stdout")
	rootCmd.AddCommand(reportCmd)
}
