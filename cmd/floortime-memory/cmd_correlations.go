package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/floortime-memory/internal/trend"
)

func correlationsCmd() *cobra.Command {
	var (
		groupID string
		minCorr float64
		refresh bool
	)

	cmd := &cobra.Command{
		Use:   "correlations",
		Short: "List correlated interest dimensions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				var (
					cs  []trend.Correlation
					err error
				)
				if refresh {
					cs, err = a.facade.RefreshCorrelations(ctx, groupID)
				} else {
					if !cmd.Flags().Changed("min") {
						minCorr = cfg.Trend.MinCorrelation
					}
					cs, err = a.facade.Correlations(ctx, groupID, minCorr)
				}
				if err != nil {
					return fmt.Errorf("correlations: %w", err)
				}
				for i := range cs {
					c := &cs[i]
					fmt.Printf("%-13s ~ %-13s r=%+.4f overlap=%dd\n", c.DimensionA, c.DimensionB, c.R, c.OverlapDays)
				}
				if len(cs) == 0 {
					fmt.Println("No correlations found.")
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&groupID, "group", "", "child namespace (required)")
	cmd.Flags().Float64Var(&minCorr, "min", 0.3, "minimum absolute correlation")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "recompute instead of reading the cache")
	_ = cmd.MarkFlagRequired("group")
	return cmd
}
