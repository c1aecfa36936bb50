package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func clearCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear [group_id]",
		Short: "Delete every observation and fact of a namespace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("clear: refusing to delete without --yes")
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.facade.Clear(ctx, args[0]); err != nil {
					return fmt.Errorf("clear: %w", err)
				}
				fmt.Printf("Cleared %s\n", args[0])
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	return cmd
}
