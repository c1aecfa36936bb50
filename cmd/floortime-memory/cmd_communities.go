package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func communitiesCmd() *cobra.Command {
	var (
		groupID string
		rebuild bool
	)

	cmd := &cobra.Command{
		Use:   "communities",
		Short: "List or rebuild interest-dimension communities",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if rebuild {
					report, err := a.facade.RebuildCommunities(ctx, groupID)
					if err != nil {
						return fmt.Errorf("communities: rebuild: %w", err)
					}
					fmt.Printf("Rebuilt %d communities (%d members, %d summarized by model)\n",
						report.Communities, report.Members, report.Summarized)
				}

				cs, err := a.facade.Communities(ctx, groupID)
				if err != nil {
					return fmt.Errorf("communities: %w", err)
				}
				for i := range cs {
					c := &cs[i]
					fmt.Printf("%-13s members=%d  %s\n", c.Name, len(c.MemberUUIDs), truncate(c.Summary, 100))
				}
				if len(cs) == 0 {
					fmt.Println("No communities. Run with --rebuild to build them.")
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&groupID, "group", "", "child namespace (required)")
	cmd.Flags().BoolVar(&rebuild, "rebuild", false, "rebuild before listing")
	_ = cmd.MarkFlagRequired("group")
	return cmd
}
