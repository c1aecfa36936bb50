// Package mcp implements the Model Context Protocol server for floortime-memory.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ajitpratap0/floortime-memory/internal/graph"
	"github.com/ajitpratap0/floortime-memory/internal/ingest"
	"github.com/ajitpratap0/floortime-memory/internal/models"
	"github.com/ajitpratap0/floortime-memory/internal/trend"
)

const (
	// defaultSearchLimit is the default number of facts for search_memory.
	defaultSearchLimit = 10

	serverName    = "floortime-memory"
	serverVersion = "1.0.0"
)

// Memory is the subset of the ingest façade the tools call.
type Memory interface {
	Write(ctx context.Context, req ingest.WriteRequest) (*ingest.WriteResult, error)
	Search(ctx context.Context, req ingest.SearchRequest) ([]models.FactResult, error)
	Trends(ctx context.Context, groupID string) ([]trend.DimensionTrend, error)
	Milestones(ctx context.Context, groupID string, days int, dimension string) ([]trend.Milestone, error)
	Correlations(ctx context.Context, groupID string, minCorr float64) ([]trend.Correlation, error)
	Clear(ctx context.Context, groupID string) error
	QueueStatus() models.QueueStatus
}

// Server wraps an MCPServer around the memory façade.
type Server struct {
	mcp            *mcpserver.MCPServer
	memory         Memory
	logger         *slog.Logger
	minCorrelation float64
}

// NewServer creates a new MCP server. A nil memory makes every tool call
// return an error result instead of panicking.
func NewServer(mem Memory, logger *slog.Logger, minCorrelation float64) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		memory:         mem,
		logger:         logger,
		minCorrelation: minCorrelation,
	}

	mcpSrv := mcpserver.NewMCPServer(
		serverName,
		serverVersion,
		mcpserver.WithToolCapabilities(true),
	)

	mcpSrv.AddTool(buildWriteTool(), s.handleWrite)
	mcpSrv.AddTool(buildSearchTool(), s.handleSearch)
	mcpSrv.AddTool(buildTrendsTool(), s.handleTrends)
	mcpSrv.AddTool(buildMilestonesTool(), s.handleMilestones)
	mcpSrv.AddTool(buildCorrelationsTool(), s.handleCorrelations)
	mcpSrv.AddTool(buildQueueStatusTool(), s.handleQueueStatus)
	mcpSrv.AddTool(buildClearTool(), s.handleClear)

	s.mcp = mcpSrv
	return s
}

// MCPServer returns the underlying mcp-go MCPServer for use with ServeStdio.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcp
}

// HandleWrite is the exported handler for the "write_observation" tool.
// It is exposed for direct testing without the mcp-go transport layer.
func (s *Server) HandleWrite(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleWrite(ctx, req)
}

// HandleSearch is the exported handler for the "search_memory" tool.
func (s *Server) HandleSearch(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleSearch(ctx, req)
}

// HandleTrends is the exported handler for the "get_trends" tool.
func (s *Server) HandleTrends(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleTrends(ctx, req)
}

// HandleMilestones is the exported handler for the "get_milestones" tool.
func (s *Server) HandleMilestones(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleMilestones(ctx, req)
}

// HandleCorrelations is the exported handler for the "get_correlations" tool.
func (s *Server) HandleCorrelations(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleCorrelations(ctx, req)
}

// HandleQueueStatus is the exported handler for the "queue_status" tool.
func (s *Server) HandleQueueStatus(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleQueueStatus(ctx, req)
}

// HandleClear is the exported handler for the "clear_memory" tool.
func (s *Server) HandleClear(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleClear(ctx, req)
}

// --- helpers ---

// toolResultJSON marshals v to JSON and returns it as a tool text result.
func toolResultJSON(v any) (*mcpgo.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("mcp: marshaling result: %w", err)
	}
	return mcpgo.NewToolResultText(string(b)), nil
}

// toolError turns a façade error into a tool error result.
func toolError(op string, err error) *mcpgo.CallToolResult {
	switch {
	case errors.Is(err, ingest.ErrNotReady):
		return mcpgo.NewToolResultError("memory engine not ready")
	case errors.Is(err, graph.ErrGraphUnavailable):
		return mcpgo.NewToolResultErrorf("%s failed: graph unavailable, retry later", op)
	default:
		return mcpgo.NewToolResultErrorf("%s failed: %s", op, err.Error())
	}
}

// groupID reads the required group_id argument.
func groupID(req mcpgo.CallToolRequest) (string, *mcpgo.CallToolResult) {
	id := req.GetString("group_id", "")
	if strings.TrimSpace(id) == "" {
		return "", mcpgo.NewToolResultError("group_id is required and must not be empty")
	}
	return id, nil
}

func withGroupID() mcpgo.ToolOption {
	return mcpgo.WithString("group_id",
		mcpgo.Required(),
		mcpgo.Description("Child namespace the memory belongs to"),
	)
}

// --- tool definitions ---

func buildWriteTool() mcpgo.Tool {
	return mcpgo.NewTool("write_observation",
		mcpgo.WithDescription("Record an observation of a child. It is searchable immediately and turned into graph facts in the background."),
		withGroupID(),
		mcpgo.WithString("content",
			mcpgo.Required(),
			mcpgo.Description("What was observed"),
		),
		mcpgo.WithString("reference_time",
			mcpgo.Description("When it happened, ISO-8601 (default: now)"),
		),
		mcpgo.WithString("kind",
			mcpgo.Description("Observation kind: text, quick_tap, voice_transcript, video_caption, or image_caption (default: text)"),
		),
		mcpgo.WithString("episode_name",
			mcpgo.Description("Optional episode label"),
		),
		mcpgo.WithString("source_media_ref",
			mcpgo.Description("Optional reference to photo or video media"),
		),
	)
}

func buildSearchTool() mcpgo.Tool {
	return mcpgo.NewTool("search_memory",
		mcpgo.WithDescription("Search a child's memory. Pending observations come first, then graph facts."),
		withGroupID(),
		mcpgo.WithString("query",
			mcpgo.Description("Search text; empty returns the most recent facts"),
		),
		mcpgo.WithNumber("num_results",
			mcpgo.Description("Maximum number of graph facts (default: 10)"),
		),
		mcpgo.WithBoolean("include_history",
			mcpgo.Description("Include superseded facts"),
		),
	)
}

func buildTrendsTool() mcpgo.Tool {
	return mcpgo.NewTool("get_trends",
		mcpgo.WithDescription("Engagement trend per interest dimension, with a one-line summary."),
		withGroupID(),
	)
}

func buildMilestonesTool() mcpgo.Tool {
	return mcpgo.NewTool("get_milestones",
		mcpgo.WithDescription("Strongly positive engagement peaks not preceded by another peak in the prior 30 days."),
		withGroupID(),
		mcpgo.WithNumber("days",
			mcpgo.Description("Only milestones from the last N days (default: all)"),
		),
		mcpgo.WithString("dimension",
			mcpgo.Description("Restrict to one interest dimension"),
		),
	)
}

func buildCorrelationsTool() mcpgo.Tool {
	return mcpgo.NewTool("get_correlations",
		mcpgo.WithDescription("Pearson correlations between daily engagement series of interest dimensions."),
		withGroupID(),
		mcpgo.WithNumber("min_correlation",
			mcpgo.Description("Minimum absolute r, 0.0-1.0 (default: 0.3)"),
		),
	)
}

func buildQueueStatusTool() mcpgo.Tool {
	return mcpgo.NewTool("queue_status",
		mcpgo.WithDescription("Observations waiting for extraction."),
	)
}

func buildClearTool() mcpgo.Tool {
	return mcpgo.NewTool("clear_memory",
		mcpgo.WithDescription("Delete every observation and fact for a namespace."),
		withGroupID(),
	)
}

// --- tool handlers ---

func (s *Server) handleWrite(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.memory == nil {
		return mcpgo.NewToolResultError("memory is unavailable"), nil
	}
	ns, bad := groupID(req)
	if bad != nil {
		return bad, nil
	}
	content := req.GetString("content", "")
	if strings.TrimSpace(content) == "" {
		return mcpgo.NewToolResultError("content is required and must not be empty"), nil
	}

	res, err := s.memory.Write(ctx, ingest.WriteRequest{
		GroupID:        ns,
		Content:        content,
		ReferenceTime:  req.GetString("reference_time", ""),
		Kind:           req.GetString("kind", ""),
		EpisodeName:    req.GetString("episode_name", ""),
		SourceMediaRef: req.GetString("source_media_ref", ""),
	})
	if err != nil {
		return toolError("write", err), nil
	}
	s.logger.Info("mcp: observation queued", "observation_id", res.ObservationID, "namespace", res.Namespace)

	return toolResultJSON(map[string]any{
		"accepted":       res.Accepted,
		"status":         "queued",
		"observation_id": res.ObservationID,
		"queue_position": res.QueuePosition,
	})
}

func (s *Server) handleSearch(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.memory == nil {
		return mcpgo.NewToolResultError("memory is unavailable"), nil
	}
	ns, bad := groupID(req)
	if bad != nil {
		return bad, nil
	}
	limit := req.GetInt("num_results", defaultSearchLimit)
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	facts, err := s.memory.Search(ctx, ingest.SearchRequest{
		GroupID:        ns,
		Query:          req.GetString("query", ""),
		NumResults:     limit,
		IncludeHistory: req.GetBool("include_history", false),
	})
	if err != nil && !errors.Is(err, ingest.ErrCancelled) {
		return toolError("search", err), nil
	}
	if facts == nil {
		facts = []models.FactResult{}
	}
	return toolResultJSON(map[string]any{"facts": facts})
}

func (s *Server) handleTrends(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.memory == nil {
		return mcpgo.NewToolResultError("memory is unavailable"), nil
	}
	ns, bad := groupID(req)
	if bad != nil {
		return bad, nil
	}
	trends, err := s.memory.Trends(ctx, ns)
	if err != nil {
		return toolError("trends", err), nil
	}
	return toolResultJSON(map[string]any{
		"group_id": ns,
		"trends":   trends,
		"summary":  trend.Summarize(trends),
	})
}

func (s *Server) handleMilestones(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.memory == nil {
		return mcpgo.NewToolResultError("memory is unavailable"), nil
	}
	ns, bad := groupID(req)
	if bad != nil {
		return bad, nil
	}
	days := req.GetInt("days", 0)
	if days < 0 {
		return mcpgo.NewToolResultError("days must not be negative"), nil
	}
	ms, err := s.memory.Milestones(ctx, ns, days, req.GetString("dimension", ""))
	if err != nil {
		return toolError("milestones", err), nil
	}
	return toolResultJSON(map[string]any{"group_id": ns, "milestones": ms})
}

func (s *Server) handleCorrelations(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.memory == nil {
		return mcpgo.NewToolResultError("memory is unavailable"), nil
	}
	ns, bad := groupID(req)
	if bad != nil {
		return bad, nil
	}
	minCorr := req.GetFloat("min_correlation", s.minCorrelation)
	if minCorr < 0.0 || minCorr > 1.0 {
		return mcpgo.NewToolResultError("min_correlation must be between 0.0 and 1.0"), nil
	}
	cs, err := s.memory.Correlations(ctx, ns, minCorr)
	if err != nil {
		return toolError("correlations", err), nil
	}
	return toolResultJSON(map[string]any{"group_id": ns, "correlations": cs})
}

func (s *Server) handleQueueStatus(_ context.Context, _ mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.memory == nil {
		return mcpgo.NewToolResultError("memory is unavailable"), nil
	}
	return toolResultJSON(s.memory.QueueStatus())
}

func (s *Server) handleClear(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.memory == nil {
		return mcpgo.NewToolResultError("memory is unavailable"), nil
	}
	ns, bad := groupID(req)
	if bad != nil {
		return bad, nil
	}
	if err := s.memory.Clear(ctx, ns); err != nil {
		return toolError("clear", err), nil
	}
	s.logger.Info("mcp: namespace cleared", "namespace", ns)
	return toolResultJSON(map[string]any{"group_id": ns, "cleared": true})
}
