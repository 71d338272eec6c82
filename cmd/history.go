package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/vandy-research/roster-cli/internal/roster"
)

var historyCmd = &cobra.Command{
	Use:   "history <record-id>",
	Short: "Show the merge-audit trail for one faculty record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		recordID := args[0]

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		events, err := st.ListEvents(ctx, recordID)
		if err != nil {
			return err
		}

		if ds, _, err := roster.LoadLatest(cfg.Data.Dir); err == nil {
			if rec := ds.ByID(recordID); rec != nil {
				fmt.Printf("%s — %s (%s)\n", rec.ID, rec.Name, rec.DepartmentCode)
				for _, note := range rec.MatchNotes {
					fmt.Printf("  note: %s\n", note)
				}
			}
		}

		if len(events) == 0 {
			fmt.Println("No recorded merge events.")
			return nil
		}

		t := table.NewWriter()
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"Field", "Source", "Action", "Previous", "Value", "When"})
		for _, ev := range events {
			t.AppendRow(table.Row{
				ev.Field, ev.Source, ev.Action,
				truncate(ev.Previous, 40), truncate(ev.Value, 40),
				ev.CreatedAt.Format("2006-01-02 15:04"),
			})
		}
		fmt.Println(t.Render())
		return nil
	},
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

func init() {
	rootCmd.AddCommand(historyCmd)
}
