package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vandy-research/roster-cli/internal/model"
	"github.com/vandy-research/roster-cli/internal/pass"
	"github.com/vandy-research/roster-cli/internal/report"
	"github.com/vandy-research/roster-cli/internal/roster"
	"github.com/vandy-research/roster-cli/pkg/agent"
)

var (
	enrichFromJSON string
	enrichRefresh  bool
	enrichRate     float64
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Enrich roster records from individual faculty websites",
	Long:  "Walks every record with a website URL, extracts research content via the browser agent (or a pre-extracted JSON export), and writes the enriched stage snapshot. Resumes by default; --refresh reprocesses everything.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		ds, err := loadStageOrEarlier(model.StageEnriched)
		if err != nil {
			return err
		}
		ctrl := pass.NewController(ds, cfg.Match.FuzzyThreshold)

		summary, err := runAudited(ctx, model.StageEnriched, func(ctx context.Context) (*model.PassSummary, []model.MergeEvent, error) {
			if enrichFromJSON != "" {
				raws, err := roster.LoadRawRecords(enrichFromJSON, model.SourceWebsite)
				if err != nil {
					return nil, nil, err
				}
				s, err := ctrl.Apply(model.SourceWebsite, raws)
				return s, ctrl.Events(), err
			}

			if cfg.Agent.BaseURL == "" {
				return nil, nil, eris.New("agent base URL is required for live extraction (ROSTER_AGENT_BASE_URL), or use --from-json")
			}
			rps := enrichRate
			if rps <= 0 {
				rps = cfg.Extract.RatePerSec
			}
			client := agent.NewClient(cfg.Agent.BaseURL, cfg.Agent.Key,
				agent.WithTimeout(time.Duration(cfg.Agent.TimeoutSecs)*time.Second))
			s, err := ctrl.RunWebsitePass(ctx, pass.NewAgentExtractor(client), pass.WebsitePassOptions{
				Refresh:    enrichRefresh || cfg.Extract.Refresh,
				RatePerSec: rps,
			})
			return s, ctrl.Events(), err
		})
		if err != nil {
			return err
		}

		path := roster.StagePath(cfg.Data.Dir, model.StageEnriched)
		if err := roster.Save(path, ctrl.Dataset()); err != nil {
			return err
		}

		zap.L().Info("enrich pass complete",
			zap.String("snapshot", path),
			zap.Int("attempted", summary.RecordsIn),
			zap.Int("succeeded", summary.Matched),
			zap.Int("failed", summary.Failed),
			zap.Int("skipped", summary.Skipped),
		)
		fmt.Print(report.FormatText(report.Compute(ds)))
		return nil
	},
}

func init() {
	enrichCmd.Flags().StringVar(&enrichFromJSON, "from-json", "", "pre-extracted website export instead of live extraction")
	enrichCmd.Flags().BoolVar(&enrichRefresh, "refresh", false, "reprocess records that already have website data")
	enrichCmd.Flags().Float64Var(&enrichRate, "rate", 0, "extraction requests per second (default from config)")
	rootCmd.AddCommand(enrichCmd)
}
