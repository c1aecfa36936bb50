package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// DefaultEmbeddingDim is the default embedding vector dimension.
	DefaultEmbeddingDim = 1024

	// DefaultMinCorrelation is the |r| threshold applied when a correlation
	// request does not specify one.
	DefaultMinCorrelation = 0.3
)

// Config holds all configuration for floortime-memory.
type Config struct {
	Neo4j     Neo4jConfig     `mapstructure:"neo4j"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Graph     GraphConfig     `mapstructure:"graph"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Trend     TrendConfig     `mapstructure:"trend"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	API       APIConfig       `mapstructure:"api"`
}

// APIConfig holds HTTP API server settings.
type APIConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
	AuthToken  string `mapstructure:"auth_token"`
}

// Neo4jConfig holds graph database connection settings.
type Neo4jConfig struct {
	URI      string `mapstructure:"uri"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// String returns a safe representation of Neo4jConfig with the password masked.
func (c Neo4jConfig) String() string {
	return fmt.Sprintf("Neo4jConfig{URI:%s, User:%s, Password:%s, Database:%s}", c.URI, c.User, maskAPIKey(c.Password), c.Database)
}

// LLMConfig holds the extraction LLM settings. The provider speaks the
// Anthropic Messages API; BaseURL may point at a compatible gateway.
type LLMConfig struct {
	APIKey             string  `mapstructure:"api_key"`
	BaseURL            string  `mapstructure:"base_url"`
	Model              string  `mapstructure:"model"`
	SmallModel         string  `mapstructure:"small_model"`
	RequestsPerSecond  float64 `mapstructure:"requests_per_second"`
	Burst              int     `mapstructure:"burst"`
	MaxTokens          int64   `mapstructure:"max_tokens"`
	RerankEnabled      bool    `mapstructure:"rerank_enabled"`
	ContextEpisodes    int     `mapstructure:"context_episodes"`
	CommunitySummaries bool    `mapstructure:"community_summaries"`
}

// String returns a safe representation of LLMConfig with the API key masked.
func (c LLMConfig) String() string {
	masked := maskAPIKey(c.APIKey)
	return fmt.Sprintf("LLMConfig{APIKey:%s, BaseURL:%s, Model:%s, SmallModel:%s}", masked, c.BaseURL, c.Model, c.SmallModel)
}

// maskAPIKey shows first 4 + last 4 chars, replacing the middle with asterisks.
func maskAPIKey(key string) string {
	const visible = 4
	if len(key) <= visible*2 {
		return "***"
	}
	return key[:visible] + "****" + key[len(key)-visible:]
}

// EmbeddingConfig holds embedding service settings.
type EmbeddingConfig struct {
	Provider  string `mapstructure:"provider"` // openai | ollama | hash
	APIKey    string `mapstructure:"api_key"`
	BaseURL   string `mapstructure:"base_url"`
	Model     string `mapstructure:"model"`
	Dimension int    `mapstructure:"dimension"`
	CacheSize int    `mapstructure:"cache_size"`
}

// GraphConfig selects the graph backend.
type GraphConfig struct {
	Backend string `mapstructure:"backend"` // neo4j | memory
}

// QueueConfig holds write-queue settings.
type QueueConfig struct {
	ShutdownGrace time.Duration `mapstructure:"shutdown_grace"`
}

// TrendConfig holds analyzer settings.
type TrendConfig struct {
	CorrelationCacheTTL  time.Duration `mapstructure:"correlation_cache_ttl"`
	CorrelationCacheSize int           `mapstructure:"correlation_cache_size"`
	MinCorrelation       float64       `mapstructure:"min_correlation"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(filepath.Join(homeDir(), ".floortime-memory"))
	v.AddConfigPath(".")

	// Environment variables
	v.SetEnvPrefix("FLOORTIME")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindEnv(v); err != nil {
		return nil, fmt.Errorf("binding env: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// A missing config file is fine; defaults and env vars apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	// The embedder shares the LLM credentials unless configured separately.
	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = cfg.LLM.APIKey
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("neo4j.uri", "bolt://localhost:7687")
	v.SetDefault("neo4j.user", "neo4j")
	v.SetDefault("neo4j.password", "")
	v.SetDefault("neo4j.database", "neo4j")

	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.model", "claude-sonnet-4-5")
	v.SetDefault("llm.small_model", "claude-haiku-4-5-20251001")
	v.SetDefault("llm.requests_per_second", 2.0)
	v.SetDefault("llm.burst", 2)
	v.SetDefault("llm.max_tokens", 4096)
	v.SetDefault("llm.rerank_enabled", true)
	v.SetDefault("llm.context_episodes", 3)
	v.SetDefault("llm.community_summaries", true)

	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.base_url", "https://api.openai.com/v1")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.dimension", DefaultEmbeddingDim)
	v.SetDefault("embedding.cache_size", 4096)

	v.SetDefault("graph.backend", "neo4j")

	v.SetDefault("queue.shutdown_grace", 5*time.Second)

	v.SetDefault("trend.correlation_cache_ttl", 6*time.Hour)
	v.SetDefault("trend.correlation_cache_size", 1024)
	v.SetDefault("trend.min_correlation", DefaultMinCorrelation)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("api.listen_addr", ":8000")
	v.SetDefault("api.auth_token", "")
}

// bindEnv maps the deployment's bare environment keys onto config paths.
func bindEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"neo4j.uri":           {"NEO4J_URI"},
		"neo4j.user":          {"NEO4J_USER"},
		"neo4j.password":      {"NEO4J_PASSWORD"},
		"neo4j.database":      {"NEO4J_DATABASE"},
		"llm.api_key":         {"LLM_API_KEY", "ANTHROPIC_API_KEY"},
		"llm.base_url":        {"LLM_BASE_URL"},
		"llm.model":           {"LLM_MODEL"},
		"llm.small_model":     {"LLM_SMALL_MODEL"},
		"embedding.model":     {"LLM_EMBEDDING_MODEL"},
		"embedding.dimension": {"LLM_EMBEDDING_DIM"},
		"embedding.api_key":   {"EMBEDDING_API_KEY"},
		"embedding.base_url":  {"EMBEDDING_BASE_URL"},
		"graph.backend":       {"FLOORTIME_GRAPH_BACKEND"},
		"api.listen_addr":     {"FLOORTIME_API_LISTEN_ADDR"},
		"api.auth_token":      {"FLOORTIME_API_AUTH_TOKEN"},
	}
	for key, envs := range bindings {
		args := append([]string{key}, envs...)
		if err := v.BindEnv(args...); err != nil {
			return fmt.Errorf("binding %s: %w", key, err)
		}
	}
	return nil
}

// Validate checks that required configuration fields are set and consistent.
func (c *Config) Validate() error {
	switch c.Graph.Backend {
	case "neo4j":
		if c.Neo4j.URI == "" {
			return fmt.Errorf("neo4j.uri must not be empty")
		}
	case "memory":
	default:
		return fmt.Errorf("graph.backend must be one of neo4j, memory (got %q)", c.Graph.Backend)
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model must not be empty")
	}
	if c.LLM.RequestsPerSecond < 0 {
		return fmt.Errorf("llm.requests_per_second must be >= 0")
	}
	if c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("llm.max_tokens must be greater than 0")
	}
	if c.LLM.ContextEpisodes < 0 {
		return fmt.Errorf("llm.context_episodes must be >= 0")
	}
	switch c.Embedding.Provider {
	case "openai", "ollama", "hash":
	default:
		return fmt.Errorf("embedding.provider must be one of openai, ollama, hash (got %q)", c.Embedding.Provider)
	}
	if c.Embedding.BaseURL == "" && c.Embedding.Provider != "hash" {
		return fmt.Errorf("embedding.base_url must not be empty")
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding.dimension must be greater than 0")
	}
	if c.Embedding.CacheSize < 0 {
		return fmt.Errorf("embedding.cache_size must be >= 0")
	}
	if c.Queue.ShutdownGrace < 0 {
		return fmt.Errorf("queue.shutdown_grace must be >= 0")
	}
	if c.Trend.MinCorrelation < 0 || c.Trend.MinCorrelation > 1 {
		return fmt.Errorf("trend.min_correlation must be between 0 and 1")
	}
	if c.Trend.CorrelationCacheSize <= 0 {
		return fmt.Errorf("trend.correlation_cache_size must be greater than 0")
	}
	return nil
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
