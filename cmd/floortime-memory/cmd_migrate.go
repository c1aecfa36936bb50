package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create graph constraints and indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			st, err := newStore(ctx, logger)
			if err != nil {
				return fmt.Errorf("migrate: connecting to graph: %w", err)
			}
			defer func() { _ = st.Close(ctx) }()

			if schemaErr := st.EnsureIndices(ctx); schemaErr != nil {
				return fmt.Errorf("migrate: %w", schemaErr)
			}
			fmt.Println("Graph schema is up to date.")
			return nil
		},
	}
}
