package main

import (
	"fmt"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check connectivity to required services",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			var (
				mu    sync.Mutex
				lines = map[string]string{}
			)
			report := func(name string, err error) error {
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					lines[name] = fmt.Sprintf("%s: FAIL (%v)", name, err)
					return fmt.Errorf("%s: %w", name, err)
				}
				lines[name] = name + ": OK"
				return nil
			}

			// Every check runs to completion; the first failure is reported at the end.
			var g errgroup.Group
			g.Go(func() error {
				st, err := newStore(ctx, logger)
				if err != nil {
					return report("Graph", err)
				}
				defer func() { _ = st.Close(ctx) }()
				return report("Graph", st.Ping(ctx))
			})
			g.Go(func() error {
				emb, err := newEmbedder(logger)
				if err == nil {
					_, err = emb.Embed(ctx, "health check")
				}
				return report("Embedder", err)
			})
			g.Go(func() error {
				var err error
				if cfg.LLM.APIKey == "" {
					err = fmt.Errorf("no API key configured")
				}
				return report("LLM API", err)
			})
			err := g.Wait()

			for _, name := range []string{"Graph", "Embedder", "LLM API"} {
				fmt.Println(lines[name])
			}
			if err != nil {
				return fmt.Errorf("one or more health checks failed")
			}
			return nil
		},
	}
}
