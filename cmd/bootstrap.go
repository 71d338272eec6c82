package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vandy-research/roster-cli/internal/model"
	"github.com/vandy-research/roster-cli/internal/pass"
	"github.com/vandy-research/roster-cli/internal/report"
	"github.com/vandy-research/roster-cli/internal/roster"
)

var (
	bootstrapFIS      string
	bootstrapSheet    string
	bootstrapSkipRows int
)

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Build the initial roster from the FIS export",
	Long:  "Ingests the faculty information system spreadsheet (local path, https URL, or ftp drop) and writes the bootstrapped stage snapshot. Re-running against the same export is a no-op.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		location := bootstrapFIS
		if location == "" {
			location = cfg.FIS.Path
		}
		if location == "" {
			return eris.New("fis export location is required (--fis or ROSTER_FIS_PATH)")
		}
		sheet := bootstrapSheet
		if sheet == "" {
			sheet = cfg.FIS.SheetName
		}
		skipRows := bootstrapSkipRows
		if skipRows == 0 {
			skipRows = cfg.FIS.SkipRows
		}

		// Re-runs merge into the existing snapshot rather than starting over.
		path := roster.StagePath(cfg.Data.Dir, model.StageBootstrapped)
		ds := &model.Dataset{}
		if _, err := os.Stat(path); err == nil {
			loaded, err := roster.Load(path)
			if err != nil {
				return err
			}
			ds = loaded
		}

		raws, err := roster.LoadFIS(ctx, location, roster.FISOptions{SheetName: sheet, SkipRows: skipRows})
		if err != nil {
			return err
		}

		ctrl := pass.NewController(ds, cfg.Match.FuzzyThreshold)
		summary, err := runAudited(ctx, model.StageBootstrapped, func(ctx context.Context) (*model.PassSummary, []model.MergeEvent, error) {
			s, err := ctrl.Apply(model.SourceFIS, raws)
			return s, ctrl.Events(), err
		})
		if err != nil {
			return err
		}

		if err := roster.Save(path, ds); err != nil {
			return err
		}

		zap.L().Info("bootstrap complete",
			zap.String("snapshot", path),
			zap.Int("total_faculty", len(ds.Faculty)),
			zap.Int("created", summary.Created),
			zap.Int("matched", summary.Matched),
		)
		fmt.Print(report.FormatText(report.Compute(ds)))
		return nil
	},
}

func init() {
	bootstrapCmd.Flags().StringVar(&bootstrapFIS, "fis", "", "FIS export location: local path, https URL, or ftp URL (default from config)")
	bootstrapCmd.Flags().StringVar(&bootstrapSheet, "sheet", "", "workbook sheet name (default: first sheet)")
	bootstrapCmd.Flags().IntVar(&bootstrapSkipRows, "skip-rows", 0, "header rows to skip before the column row")
	rootCmd.AddCommand(bootstrapCmd)
}
