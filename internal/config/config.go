// Package config loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"

	"github.com/dshills/hybridrank/internal/embedder"
	"github.com/dshills/hybridrank/internal/quality"
	"github.com/dshills/hybridrank/internal/reranker"
)

// EnvPrefix is prepended to every variable name
const EnvPrefix = "HYBRIDRANK_"

// Config holds all configuration for the hybridrank server
type Config struct {
	// Storage
	DBPath string `env:"DB_PATH" envDefault:"~/.hybridrank/hybridrank.db"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"` // json or console

	// Metrics; empty disables the listener
	MetricsAddr string `env:"METRICS_ADDR"`

	// Embeddings
	EmbeddingProvider  string        `env:"EMBEDDING_PROVIDER"` // jina, openai, local; empty auto-detects
	EmbeddingAPIKey    string        `env:"EMBEDDING_API_KEY"`
	EmbeddingModel     string        `env:"EMBEDDING_MODEL"`
	EmbeddingEndpoint  string        `env:"EMBEDDING_ENDPOINT"`
	EmbeddingDimension int           `env:"EMBEDDING_DIMENSION"`
	EmbeddingTimeout   time.Duration `env:"EMBEDDING_TIMEOUT" envDefault:"30s"`
	EmbeddingCacheSize int           `env:"EMBEDDING_CACHE_SIZE" envDefault:"10000"`

	// Indexing
	IndexWorkers   int `env:"INDEX_WORKERS" envDefault:"4"`
	IndexBatchSize int `env:"INDEX_BATCH_SIZE" envDefault:"20"`

	// Search defaults
	SearchLimit        int           `env:"SEARCH_LIMIT" envDefault:"10"`
	SearchDenseWeight  float64       `env:"SEARCH_DENSE_WEIGHT" envDefault:"0.7"`
	SearchSparseWeight float64       `env:"SEARCH_SPARSE_WEIGHT" envDefault:"0.3"`
	SearchRRFK         int           `env:"SEARCH_RRF_K" envDefault:"60"`
	SearchCacheSize    int           `env:"SEARCH_CACHE_SIZE" envDefault:"1000"`
	SearchCacheTTL     time.Duration `env:"SEARCH_CACHE_TTL" envDefault:"1h"`
	Reranker           string        `env:"RERANKER" envDefault:"identity"`
	MinWordCount       int           `env:"MIN_WORD_COUNT" envDefault:"30"`
	MaxContextHops     int           `env:"MAX_CONTEXT_EXPANSION" envDefault:"1"`

	// Sessions idle longer than this are pruned
	SessionIdleTimeout time.Duration `env:"SESSION_IDLE_TIMEOUT" envDefault:"30m"`
}

// Load loads configuration from .env file (if present) and environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	return parse(env.Options{Prefix: EnvPrefix})
}

// LoadFrom parses configuration from an explicit environment map, without
// consulting the process environment or .env files
func LoadFrom(environment map[string]string) (*Config, error) {
	return parse(env.Options{Prefix: EnvPrefix, Environment: environment})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges that struct tags cannot express
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("%sDB_PATH must not be empty", EnvPrefix)
	}
	if c.SearchDenseWeight < 0 || c.SearchSparseWeight < 0 {
		return fmt.Errorf("search weights must be >= 0")
	}
	if c.IndexWorkers < 1 {
		return fmt.Errorf("%sINDEX_WORKERS must be >= 1", EnvPrefix)
	}
	if _, err := reranker.New(reranker.Kind(c.Reranker), reranker.DefaultConfig()); err != nil {
		return fmt.Errorf("%sRERANKER: %w", EnvPrefix, err)
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("%sLOG_FORMAT must be json or console, got %q", EnvPrefix, c.LogFormat)
	}
	return nil
}

// ResolvedDBPath expands a leading ~ to the user's home directory
func (c *Config) ResolvedDBPath() (string, error) {
	if c.DBPath != "~" && !strings.HasPrefix(c.DBPath, "~/") {
		return c.DBPath, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(c.DBPath, "~")), nil
}

// Embedder returns the embedder configuration
func (c *Config) Embedder() embedder.Config {
	return embedder.Config{
		Provider:  c.EmbeddingProvider,
		APIKey:    c.EmbeddingAPIKey,
		Model:     c.EmbeddingModel,
		Endpoint:  c.EmbeddingEndpoint,
		Dimension: c.EmbeddingDimension,
		Timeout:   c.EmbeddingTimeout,
		CacheSize: c.EmbeddingCacheSize,
	}
}

// QualityOptions returns the default quality gate settings
func (c *Config) QualityOptions() quality.GateOptions {
	minWords := c.MinWordCount
	return quality.GateOptions{
		Options:             quality.Options{MinWordCount: &minWords},
		MaxContextExpansion: c.MaxContextHops,
	}
}
