package embedder

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Environment variables read by NewFromEnv
const (
	EnvProvider     = "VECSTORE_EMBEDDING_PROVIDER"
	EnvModel        = "VECSTORE_EMBEDDING_MODEL"
	EnvDimension    = "VECSTORE_EMBEDDING_DIMENSION"
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
)

// Config selects and configures a provider
type Config struct {
	Provider  string
	Model     string
	APIKey    string
	BaseURL   string
	Dimension int
	CacheSize int // 0 disables the cache
}

// NewFromConfig creates the embedder described by cfg.
// An empty provider is resolved with DetectProvider.
func NewFromConfig(cfg Config) (Embedder, error) {
	var cache *Cache
	if cfg.CacheSize > 0 {
		cache = NewCache(cfg.CacheSize)
	}

	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = DetectProvider()
	}

	switch provider {
	case ProviderOpenAI:
		return NewOpenAIProvider(OpenAIOptions{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			BaseURL:   cfg.BaseURL,
			Dimension: cfg.Dimension,
		}, cache)
	case ProviderLocal:
		return NewLocalProvider(cfg.Dimension, cache)
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.Provider)
	}
}

// NewFromEnv creates an embedder from environment variables:
//  1. VECSTORE_EMBEDDING_PROVIDER (openai, local) if set
//  2. openai when OPENAI_API_KEY is set
//  3. local otherwise
func NewFromEnv() (Embedder, error) {
	cfg := Config{
		Provider:  os.Getenv(EnvProvider),
		Model:     os.Getenv(EnvModel),
		APIKey:    os.Getenv(EnvOpenAIAPIKey),
		CacheSize: 10000,
	}
	if raw := os.Getenv(EnvDimension); raw != "" {
		dim, err := strconv.Atoi(raw)
		if err != nil || dim <= 0 {
			return nil, fmt.Errorf("%w: %s=%q", ErrInvalidInput, EnvDimension, raw)
		}
		cfg.Dimension = dim
	}
	return NewFromConfig(cfg)
}

// DetectProvider returns the provider NewFromEnv would pick
func DetectProvider() string {
	if provider := os.Getenv(EnvProvider); provider != "" {
		return strings.ToLower(provider)
	}
	if os.Getenv(EnvOpenAIAPIKey) != "" {
		return ProviderOpenAI
	}
	return ProviderLocal
}

// IsKnownProvider reports whether name selects a provider
func IsKnownProvider(name string) bool {
	switch strings.ToLower(name) {
	case "", ProviderOpenAI, ProviderLocal:
		return true
	}
	return false
}
