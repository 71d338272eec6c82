package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vandy-research/roster-cli/internal/dept"
	"github.com/vandy-research/roster-cli/internal/model"
	"github.com/vandy-research/roster-cli/internal/normalize"
	"github.com/vandy-research/roster-cli/internal/pass"
	"github.com/vandy-research/roster-cli/internal/report"
	"github.com/vandy-research/roster-cli/internal/roster"
	"github.com/vandy-research/roster-cli/pkg/agent"
)

var (
	listingsFromJSON string
	listingsDepts    []string
	listingsMaxConc  int
)

var listingsCmd = &cobra.Command{
	Use:   "listings",
	Short: "Merge department listing pages into the roster",
	Long:  "Scrapes every department faculty-listing page in the inventory (or reads a pre-extracted JSON export) and merges the entries into the bootstrapped roster, writing the listed stage snapshot.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		ds, err := loadStageOrEarlier(model.StageListed)
		if err != nil {
			return err
		}
		ctrl := pass.NewController(ds, cfg.Match.FuzzyThreshold)

		var raws []normalize.Raw
		if listingsFromJSON != "" {
			raws, err = roster.LoadRawRecords(listingsFromJSON, model.SourceListing)
			if err != nil {
				return err
			}
		} else {
			if cfg.Agent.BaseURL == "" {
				return eris.New("agent base URL is required for live extraction (ROSTER_AGENT_BASE_URL), or use --from-json")
			}
			inv, err := dept.LoadInventory(cfg.Inventory.Path)
			if err != nil {
				return err
			}
			departments, err := selectDepartments(inv, listingsDepts)
			if err != nil {
				return err
			}

			maxConc := listingsMaxConc
			if maxConc <= 0 {
				maxConc = cfg.Extract.MaxConcurrent
			}
			ex := pass.NewAgentExtractor(agent.NewClient(cfg.Agent.BaseURL, cfg.Agent.Key))
			raws = ctrl.CollectListings(ctx, ex, departments, maxConc)
		}

		summary, err := runAudited(ctx, model.StageListed, func(ctx context.Context) (*model.PassSummary, []model.MergeEvent, error) {
			s, err := ctrl.Apply(model.SourceListing, raws)
			return s, ctrl.Events(), err
		})
		if err != nil {
			return err
		}

		path := roster.StagePath(cfg.Data.Dir, model.StageListed)
		if err := roster.Save(path, ds); err != nil {
			return err
		}

		zap.L().Info("listings pass complete",
			zap.String("snapshot", path),
			zap.Int("total_faculty", len(ds.Faculty)),
			zap.Int("matched", summary.Matched),
			zap.Int("created", summary.Created),
			zap.Int("orphans", summary.Orphans),
		)
		fmt.Print(report.FormatText(report.Compute(ds)))
		return nil
	},
}

// loadStageOrEarlier loads the snapshot for a stage, falling back to earlier
// stages so a pass can be re-run or applied for the first time.
func loadStageOrEarlier(stage model.Stage) (*model.Dataset, error) {
	order := []model.Stage{model.StageEnriched, model.StageListed, model.StageBootstrapped}
	for _, s := range order {
		if s.Ord() > stage.Ord() {
			continue
		}
		path := roster.StagePath(cfg.Data.Dir, s)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		return roster.Load(path)
	}
	return nil, eris.Errorf("no snapshot found in %s; run bootstrap first", cfg.Data.Dir)
}

// selectDepartments filters the inventory down to the requested codes, or all
// departments with listing URLs when none are named.
func selectDepartments(inv *dept.Inventory, codes []string) ([]dept.Department, error) {
	if len(codes) == 0 {
		return inv.WithListings(), nil
	}
	var out []dept.Department
	for _, code := range codes {
		d := inv.ByCode(code)
		if d == nil {
			return nil, eris.Errorf("department %q not in inventory", code)
		}
		out = append(out, *d)
	}
	return out, nil
}

func init() {
	listingsCmd.Flags().StringVar(&listingsFromJSON, "from-json", "", "pre-extracted listing export instead of live scraping")
	listingsCmd.Flags().StringSliceVar(&listingsDepts, "dept", nil, "restrict to these department codes (repeatable)")
	listingsCmd.Flags().IntVar(&listingsMaxConc, "max-concurrent", 0, "concurrent department extractions (default from config)")
	rootCmd.AddCommand(listingsCmd)
}
