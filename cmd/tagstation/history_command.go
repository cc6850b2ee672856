package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"tagstation/internal/catalog"
	"tagstation/internal/config"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent station cycles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive")
			}
			return ctx.withCatalog(cmd, func(_ *config.Config, store *catalog.Store) error {
				runs, err := store.ListRuns(cmd.Context(), limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(runs) == 0 {
					fmt.Fprintln(out, "No station runs recorded")
					return nil
				}
				rows := make([][]string, 0, len(runs))
				for _, run := range runs {
					rows = append(rows, []string{
						formatLocalTime(run.StartedAt),
						run.Station,
						run.Mode,
						orDash(run.CardUID),
						formatBottle(run.BottleID),
						run.FinalState,
						run.Duration().Round(time.Millisecond).String(),
						orDash(run.Error),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Started", "Station", "Mode", "Card", "Bottle", "State", "Duration", "Error"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show")
	return cmd
}
