package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	mcpserver "github.com/mark3labs/mcp-go/server"

	ftmcp "github.com/ajitpratap0/floortime-memory/internal/mcp"
)

func mcpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP (Model Context Protocol) server over stdio",
		Long: `Starts an MCP JSON-RPC 2.0 server that reads from stdin and writes to stdout.
All diagnostic logs go to stderr so that stdout remains exclusively MCP protocol traffic.

Tools exposed:
  write_observation  queue an observation for extraction
  search_memory      pending observations plus graph facts
  get_trends         engagement trend per interest dimension
  get_milestones     strongly positive peaks
  get_correlations   correlated dimension pairs
  queue_status       observations waiting for extraction
  clear_memory       delete a namespace

If the graph is unavailable at startup the server still starts;
individual tool calls will return MCP error responses.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := newLogger()

			var mem ftmcp.Memory
			a, err := openApp(cmd.Context(), logger)
			if err != nil {
				// Tool calls will return per-call errors rather than crashing.
				logger.Error("mcp: failed to open memory; tool calls will fail", "error", err)
			} else {
				defer a.close(context.Background())
				mem = a.facade
			}

			srv := ftmcp.NewServer(mem, logger, cfg.Trend.MinCorrelation)

			// Use a standard log.Logger pointing at stderr for the mcp-go error logger.
			errLogger := log.New(os.Stderr, "mcp: ", log.LstdFlags)

			logger.Info("mcp: floortime-memory MCP server starting", "transport", "stdio")

			if serveErr := mcpserver.ServeStdio(srv.MCPServer(), mcpserver.WithErrorLogger(errLogger)); serveErr != nil {
				return fmt.Errorf("mcp: %w", serveErr)
			}
			return nil
		},
	}

	return cmd
}
