package embedder

import (
	"fmt"
	"strings"
	"time"
)

// Config holds embedder configuration
type Config struct {
	Provider  string // jina, openai, local; empty auto-detects from APIKey
	APIKey    string
	Model     string
	Endpoint  string
	Dimension int
	Timeout   time.Duration
	CacheSize int // 0 disables the cache
}

// DetectProvider returns the provider New would build for cfg
func DetectProvider(cfg Config) string {
	if cfg.Provider != "" {
		return strings.ToLower(cfg.Provider)
	}
	if cfg.APIKey != "" {
		return ProviderOpenAI
	}
	return ProviderLocal
}

// New creates an embedder with explicit configuration, wrapped in an LRU
// cache when CacheSize > 0
func New(cfg Config) (Embedder, error) {
	var (
		e   Embedder
		err error
	)

	opts := APIOptions{
		Endpoint:  cfg.Endpoint,
		Model:     cfg.Model,
		Dimension: cfg.Dimension,
		Timeout:   cfg.Timeout,
	}

	switch provider := DetectProvider(cfg); provider {
	case ProviderJina:
		e, err = NewJinaProvider(cfg.APIKey, opts)
	case ProviderOpenAI:
		e, err = NewOpenAIProvider(cfg.APIKey, opts)
	case ProviderLocal:
		e = NewLocalProvider(cfg.Dimension)
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	if cfg.CacheSize > 0 {
		e = WithCache(e, NewCache(cfg.CacheSize))
	}
	return e, nil
}
