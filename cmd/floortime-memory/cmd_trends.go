package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func trendsCmd() *cobra.Command {
	var (
		groupID   string
		dimension string
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "trends",
		Short: "Show engagement trends per interest dimension",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if dimension != "" {
					t, err := a.facade.Trend(ctx, groupID, dimension)
					if err != nil {
						return fmt.Errorf("trends: %w", err)
					}
					return printJSON(t)
				}

				trends, err := a.facade.Trends(ctx, groupID)
				if err != nil {
					return fmt.Errorf("trends: %w", err)
				}
				if asJSON {
					return printJSON(trends)
				}
				for i := range trends {
					t := &trends[i]
					fmt.Printf("%-13s %-10s slope=%+.4f rate=%+.2f/30d confidence=%.2f points=%d\n",
						t.Dimension, t.Trend, t.Slope, t.Rate, t.Confidence, t.DataPoints)
				}
				if len(trends) == 0 {
					fmt.Println("No engagement data.")
				}

				summary, err := a.facade.Summary(ctx, groupID)
				if err != nil {
					return fmt.Errorf("trends: summary: %w", err)
				}
				fmt.Println(summary)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&groupID, "group", "", "child namespace (required)")
	cmd.Flags().StringVar(&dimension, "dimension", "", "show one dimension with its data points")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	_ = cmd.MarkFlagRequired("group")
	return cmd
}
