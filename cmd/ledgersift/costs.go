package main

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

func costsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "costs",
		Short: "Report external classification spend",
		RunE: func(cmd *cobra.Command, _ []string) error {
			jobID, _ := cmd.Flags().GetString("job")
			day, _ := cmd.Flags().GetString("day")

			store, err := openStorage()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			ctx := cmd.Context()
			if err := store.Migrate(ctx); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))

			if jobID != "" {
				summary, err := store.SumCostsByJob(ctx, jobID)
				if err != nil {
					return err
				}
				fmt.Println(headerStyle.Render("Job " + jobID))
				fmt.Printf("  Tokens in:  %d\n", summary.TokensIn)
				fmt.Printf("  Tokens out: %d\n", summary.TokensOut)
				fmt.Printf("  Total cost: $%.4f\n", summary.EstimatedCost)
				return nil
			}

			when := time.Now().UTC()
			if day != "" {
				when, err = time.Parse("2006-01-02", day)
				if err != nil {
					return fmt.Errorf("invalid day %q, want YYYY-MM-DD", day)
				}
			}

			total, err := store.SumCostsByDay(ctx, when)
			if err != nil {
				return err
			}
			fmt.Println(headerStyle.Render("Daily spend " + when.Format("2006-01-02")))
			fmt.Printf("  Total cost: $%.4f\n", total)
			return nil
		},
	}

	cmd.Flags().String("job", "", "report spend for one job")
	cmd.Flags().String("day", "", "report spend for a UTC day (YYYY-MM-DD, default today)")
	return cmd
}
