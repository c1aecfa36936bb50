package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/floortime-memory/internal/classifier"
	"github.com/ajitpratap0/floortime-memory/internal/community"
	"github.com/ajitpratap0/floortime-memory/internal/config"
	"github.com/ajitpratap0/floortime-memory/internal/embedder"
	"github.com/ajitpratap0/floortime-memory/internal/extract"
	"github.com/ajitpratap0/floortime-memory/internal/graph"
	"github.com/ajitpratap0/floortime-memory/internal/ingest"
	"github.com/ajitpratap0/floortime-memory/internal/llm"
	"github.com/ajitpratap0/floortime-memory/internal/rerank"
	"github.com/ajitpratap0/floortime-memory/internal/trend"
)

var cfg *config.Config

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	rootCmd := &cobra.Command{
		Use:   "floortime-memory",
		Short: "Temporal knowledge-graph memory for Floortime child observations",
		Long:  "floortime-memory turns caregiver observations into a bi-temporal fact graph and reports engagement trends, milestones and correlations per child.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return nil
		},
	}

	rootCmd.AddCommand(
		serveCmd(),
		mcpCmd(),
		writeCmd(),
		searchCmd(),
		trendsCmd(),
		milestonesCmd(),
		correlationsCmd(),
		communitiesCmd(),
		clearCmd(),
		healthCmd(),
		migrateCmd(),
	)

	rootCmd.SetContext(ctx)

	err := rootCmd.Execute()
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if cfg != nil {
		switch cfg.Logging.Level {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg != nil && cfg.Logging.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func newStore(ctx context.Context, logger *slog.Logger) (graph.Store, error) {
	if cfg.Graph.Backend == "memory" {
		logger.Warn("using in-memory graph; facts are lost on exit")
		return graph.NewMemStore(), nil
	}
	return graph.NewNeo4jStore(ctx,
		cfg.Neo4j.URI,
		cfg.Neo4j.User,
		cfg.Neo4j.Password,
		cfg.Neo4j.Database,
		cfg.Embedding.Dimension,
		logger,
	)
}

func newEmbedder(logger *slog.Logger) (embedder.Embedder, error) {
	var inner embedder.Embedder
	switch cfg.Embedding.Provider {
	case "ollama":
		inner = embedder.NewOllamaEmbedder(cfg.Embedding.BaseURL, cfg.Embedding.Model, cfg.Embedding.Dimension, logger)
	case "hash":
		inner = embedder.NewHashEmbedder(cfg.Embedding.Dimension)
	default:
		inner = embedder.NewOpenAIEmbedder(cfg.Embedding.BaseURL, cfg.Embedding.APIKey, cfg.Embedding.Model, cfg.Embedding.Dimension, logger)
	}
	return embedder.NewCachedEmbedder(inner, cfg.Embedding.CacheSize)
}

// newCompleter returns nil when no LLM key is configured.
func newCompleter(logger *slog.Logger) llm.Completer {
	if cfg.LLM.APIKey == "" {
		return nil
	}
	return llm.NewAnthropicCompleter(llm.AnthropicConfig{
		APIKey:            cfg.LLM.APIKey,
		BaseURL:           cfg.LLM.BaseURL,
		Model:             cfg.LLM.Model,
		SmallModel:        cfg.LLM.SmallModel,
		MaxTokens:         cfg.LLM.MaxTokens,
		RequestsPerSecond: cfg.LLM.RequestsPerSecond,
		Burst:             cfg.LLM.Burst,
	}, logger)
}

// app holds the process-wide singletons shared by every command.
type app struct {
	store    graph.Store
	engine   *extract.Engine
	analyzer *trend.Analyzer
	facade   *ingest.Facade
	logger   *slog.Logger
}

// openApp connects to the graph and wires the façade. Without an LLM key the
// façade still serves analytics but rejects writes and searches as not ready.
func openApp(ctx context.Context, logger *slog.Logger) (*app, error) {
	st, err := newStore(ctx, logger)
	if err != nil {
		return nil, fmt.Errorf("connecting to graph: %w", err)
	}
	emb, err := newEmbedder(logger)
	if err != nil {
		_ = st.Close(ctx)
		return nil, err
	}

	analyzer := trend.NewAnalyzer(st, trend.Config{
		CacheSize:      cfg.Trend.CorrelationCacheSize,
		CacheTTL:       cfg.Trend.CorrelationCacheTTL,
		MinCorrelation: cfg.Trend.MinCorrelation,
	}, logger)
	a := &app{store: st, analyzer: analyzer, logger: logger}

	completer := newCompleter(logger)
	var summaries llm.Completer
	opts := ingest.Options{
		Store:         st,
		Analyzer:      a.analyzer,
		ShutdownGrace: cfg.Queue.ShutdownGrace,
		Logger:        logger,
	}
	if completer != nil {
		var rr rerank.Reranker
		if cfg.LLM.RerankEnabled {
			rr = rerank.NewLLMReranker(completer, 0, logger)
		}
		a.engine = extract.NewEngine(st, completer, emb, rr, classifier.NewClassifier(logger), extract.Config{
			ContextEpisodes: cfg.LLM.ContextEpisodes,
			MaxTokens:       cfg.LLM.MaxTokens,
		}, logger)
		opts.Engine = a.engine
		if cfg.LLM.CommunitySummaries {
			summaries = completer
		}
	} else {
		logger.Warn("llm.api_key is not set; writes and searches will report not ready")
	}
	opts.Communities = community.NewManager(st, summaries, logger)
	a.facade = ingest.New(opts)
	return a, nil
}

// close stops the worker, then the graph driver.
func (a *app) close(ctx context.Context) {
	a.facade.Close()
	if err := a.store.Close(ctx); err != nil {
		a.logger.Warn("closing graph", "error", err)
	}
}

// withApp runs fn against a freshly opened app and closes it afterwards.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, newLogger())
	if err != nil {
		return fmt.Errorf("%s: %w", cmd.Name(), err)
	}
	defer a.close(context.WithoutCancel(ctx))
	return fn(ctx, a)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	runes := []rune(s)
	if len(runes) > maxLen {
		return string(runes[:maxLen]) + "..."
	}
	return s
}
