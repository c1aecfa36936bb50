package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/floortime-memory/internal/ingest"
)

func searchCmd() *cobra.Command {
	var (
		groupID string
		limit   int
		history bool
	)

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search a child's facts",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := ""
			if len(args) == 1 {
				query = args[0]
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				facts, err := a.facade.Search(ctx, ingest.SearchRequest{
					GroupID:        groupID,
					Query:          query,
					NumResults:     limit,
					IncludeHistory: history,
				})
				if err != nil {
					return fmt.Errorf("search: %w", err)
				}

				for i := range facts {
					f := &facts[i]
					state := "active"
					switch {
					case f.Pending:
						state = "pending"
					case f.InvalidAt != nil:
						state = "ended " + *f.InvalidAt
					}
					fmt.Printf("[%d] (%s) %s\n", i+1, state, truncate(f.Text, 120))
					fmt.Printf("    ID: %s | Valid at: %s\n", f.ID, f.ValidAt)
				}

				if len(facts) == 0 {
					fmt.Println("No results found.")
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&groupID, "group", "", "child namespace (required)")
	cmd.Flags().IntVar(&limit, "limit", 10, "max graph facts")
	cmd.Flags().BoolVar(&history, "history", false, "include superseded facts")
	_ = cmd.MarkFlagRequired("group")
	return cmd
}
