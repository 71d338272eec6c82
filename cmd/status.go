package main

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/vandy-research/roster-cli/internal/model"
	"github.com/vandy-research/roster-cli/internal/roster"
	"github.com/vandy-research/roster-cli/internal/store"
)

var (
	statusLimit int
	statusStage string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current snapshot stage and recent pass runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		ds, stage, err := roster.LoadLatest(cfg.Data.Dir)
		if err != nil {
			fmt.Println("No snapshot found; run bootstrap first.")
		} else {
			fmt.Printf("Stage: %s\n", stage)
			fmt.Printf("Faculty: %d\n", len(ds.Faculty))
			fmt.Printf("Sources: %s\n", strings.Join(ds.Metadata.DataSources, ", "))
			fmt.Printf("Unmatched: %d\n", len(ds.Unmatched))
			fmt.Printf("Failures: %d\n", len(ds.Failures))
			fmt.Printf("Updated: %s\n", ds.Metadata.CreatedDate.Format("2006-01-02 15:04:05 MST"))
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Stage: model.Stage(statusStage),
			Limit: statusLimit,
		})
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("\nNo recorded pass runs.")
			return nil
		}

		t := table.NewWriter()
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"Run", "Stage", "Status", "In", "Matched", "Created", "Failed", "Started"})
		for _, run := range runs {
			var in, matched, created, failed int
			if run.Summary != nil {
				in = run.Summary.RecordsIn
				matched = run.Summary.Matched
				created = run.Summary.Created
				failed = run.Summary.Failed
			}
			t.AppendRow(table.Row{
				run.ID[:8], run.Stage, run.Status,
				in, matched, created, failed,
				run.CreatedAt.Format("2006-01-02 15:04"),
			})
		}
		fmt.Println()
		fmt.Println(t.Render())
		return nil
	},
}

func init() {
	statusCmd.Flags().IntVar(&statusLimit, "limit", 20, "number of runs to show")
	statusCmd.Flags().StringVar(&statusStage, "stage", "", "filter runs by stage")
	rootCmd.AddCommand(statusCmd)
}
