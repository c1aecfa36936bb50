package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func milestonesCmd() *cobra.Command {
	var (
		groupID   string
		days      int
		dimension string
	)

	cmd := &cobra.Command{
		Use:   "milestones",
		Short: "List strongly positive engagement milestones",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				ms, err := a.facade.Milestones(ctx, groupID, days, dimension)
				if err != nil {
					return fmt.Errorf("milestones: %w", err)
				}
				for i := range ms {
					m := &ms[i]
					fmt.Printf("%s  %-13s %s\n", m.ValidAt, m.Dimension, truncate(m.Fact, 100))
				}
				if len(ms) == 0 {
					fmt.Println("No milestones found.")
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&groupID, "group", "", "child namespace (required)")
	cmd.Flags().IntVar(&days, "days", 0, "only the last N days (0 = all)")
	cmd.Flags().StringVar(&dimension, "dimension", "", "restrict to one interest dimension")
	_ = cmd.MarkFlagRequired("group")
	return cmd
}
