package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/floortime-memory/internal/ingest"
)

func writeCmd() *cobra.Command {
	var (
		groupID  string
		refTime  string
		kind     string
		name     string
		mediaRef string
		noWait   bool
	)

	cmd := &cobra.Command{
		Use:   "write [content]",
		Short: "Record an observation and extract it into the graph",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				res, err := a.facade.Write(ctx, ingest.WriteRequest{
					GroupID:        groupID,
					Content:        strings.Join(args, " "),
					ReferenceTime:  refTime,
					Kind:           kind,
					EpisodeName:    name,
					SourceMediaRef: mediaRef,
				})
				if err != nil {
					return fmt.Errorf("write: %w", err)
				}
				fmt.Printf("Queued observation %s (namespace %s, position %d)\n", res.ObservationID, res.Namespace, res.QueuePosition)
				if noWait {
					return nil
				}
				if drainErr := a.facade.Drain(ctx); drainErr != nil {
					return fmt.Errorf("write: waiting for extraction: %w", drainErr)
				}
				fmt.Println("Extraction finished.")
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&groupID, "group", "", "child namespace (required)")
	cmd.Flags().StringVar(&refTime, "at", "", "reference time, ISO-8601 (default: now)")
	cmd.Flags().StringVar(&kind, "kind", "text", "observation kind (text|quick_tap|voice_transcript|video_caption|image_caption)")
	cmd.Flags().StringVar(&name, "name", "", "episode name")
	cmd.Flags().StringVar(&mediaRef, "media", "", "source media reference")
	cmd.Flags().BoolVar(&noWait, "no-wait", false, "return once queued instead of waiting for extraction")
	_ = cmd.MarkFlagRequired("group")
	return cmd
}
