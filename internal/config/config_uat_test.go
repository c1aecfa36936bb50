package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validCfg returns a fully-valid Config for mutation testing.
func validCfg() *Config {
	return &Config{
		Neo4j: Neo4jConfig{URI: "bolt://localhost:7687", User: "neo4j", Password: "secret", Database: "neo4j"},
		LLM: LLMConfig{
			APIKey:            "sk-ant-test-key-12345",
			Model:             "claude-sonnet-4-5",
			SmallModel:        "claude-haiku-4-5-20251001",
			RequestsPerSecond: 2,
			Burst:             2,
			MaxTokens:         4096,
			ContextEpisodes:   3,
		},
		Embedding: EmbeddingConfig{
			Provider:  "openai",
			BaseURL:   "https://api.openai.com/v1",
			Model:     "text-embedding-3-small",
			Dimension: 1024,
			CacheSize: 16,
		},
		Graph: GraphConfig{Backend: "neo4j"},
		Queue: QueueConfig{ShutdownGrace: 5 * time.Second},
		Trend: TrendConfig{CorrelationCacheTTL: time.Hour, CorrelationCacheSize: 8, MinCorrelation: 0.3},
	}
}

func TestUAT_Validate_OK(t *testing.T) {
	require.NoError(t, validCfg().Validate())
}

func TestUAT_Validate_Failures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"empty neo4j uri", func(c *Config) { c.Neo4j.URI = "" }, "neo4j.uri"},
		{"unknown backend", func(c *Config) { c.Graph.Backend = "sqlite" }, "graph.backend"},
		{"empty model", func(c *Config) { c.LLM.Model = "" }, "llm.model"},
		{"negative rps", func(c *Config) { c.LLM.RequestsPerSecond = -1 }, "requests_per_second"},
		{"zero max tokens", func(c *Config) { c.LLM.MaxTokens = 0 }, "max_tokens"},
		{"unknown embedder", func(c *Config) { c.Embedding.Provider = "cohere" }, "embedding.provider"},
		{"zero dimension", func(c *Config) { c.Embedding.Dimension = 0 }, "embedding.dimension"},
		{"correlation above 1", func(c *Config) { c.Trend.MinCorrelation = 1.5 }, "min_correlation"},
		{"zero cache size", func(c *Config) { c.Trend.CorrelationCacheSize = 0 }, "correlation_cache_size"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validCfg()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestUAT_Validate_MemoryBackendSkipsNeo4j(t *testing.T) {
	cfg := validCfg()
	cfg.Graph.Backend = "memory"
	cfg.Neo4j.URI = ""
	assert.NoError(t, cfg.Validate())
}

func TestUAT_LLMConfig_StringMasksKey(t *testing.T) {
	s := validCfg().LLM.String()
	assert.NotContains(t, s, "sk-ant-test-key-12345")
	assert.True(t, strings.Contains(s, "sk-a****2345"), s)
}

func TestUAT_Neo4jConfig_StringMasksShortPassword(t *testing.T) {
	s := validCfg().Neo4j.String()
	assert.NotContains(t, s, "secret")
	assert.Contains(t, s, "***")
}

func TestLoad_BindsDeploymentEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("NEO4J_URI", "neo4j://graph:7687")
	t.Setenv("NEO4J_USER", "floortime")
	t.Setenv("NEO4J_PASSWORD", "pw")
	t.Setenv("LLM_API_KEY", "llm-key-abcdefgh")
	t.Setenv("LLM_BASE_URL", "https://gateway.example")
	t.Setenv("LLM_MODEL", "claude-test")
	t.Setenv("LLM_SMALL_MODEL", "claude-test-small")
	t.Setenv("LLM_EMBEDDING_MODEL", "embed-test")
	t.Setenv("LLM_EMBEDDING_DIM", "256")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "neo4j://graph:7687", cfg.Neo4j.URI)
	assert.Equal(t, "floortime", cfg.Neo4j.User)
	assert.Equal(t, "pw", cfg.Neo4j.Password)
	assert.Equal(t, "llm-key-abcdefgh", cfg.LLM.APIKey)
	assert.Equal(t, "https://gateway.example", cfg.LLM.BaseURL)
	assert.Equal(t, "claude-test", cfg.LLM.Model)
	assert.Equal(t, "claude-test-small", cfg.LLM.SmallModel)
	assert.Equal(t, "embed-test", cfg.Embedding.Model)
	assert.Equal(t, 256, cfg.Embedding.Dimension)
	assert.Equal(t, "llm-key-abcdefgh", cfg.Embedding.APIKey, "embedder falls back to the LLM key")
}

func TestLoad_PrefixedNestedEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("FLOORTIME_QUEUE_SHUTDOWN_GRACE", "9s")
	t.Setenv("FLOORTIME_LLM_RERANK_ENABLED", "false")
	t.Setenv("FLOORTIME_LOGGING_LEVEL", "debug")
	t.Setenv("FLOORTIME_TREND_MIN_CORRELATION", "0.5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9*time.Second, cfg.Queue.ShutdownGrace)
	assert.False(t, cfg.LLM.RerankEnabled)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.InDelta(t, 0.5, cfg.Trend.MinCorrelation, 1e-9)
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "neo4j", cfg.Graph.Backend)
	assert.Equal(t, DefaultEmbeddingDim, cfg.Embedding.Dimension)
	assert.Equal(t, 5*time.Second, cfg.Queue.ShutdownGrace)
	assert.InDelta(t, DefaultMinCorrelation, cfg.Trend.MinCorrelation, 1e-9)
}
