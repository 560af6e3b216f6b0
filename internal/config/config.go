// Package config loads vecstore settings from defaults, an optional YAML
// file and environment overrides, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dshills/gocontext-vecstore/internal/embedder"
	"github.com/dshills/gocontext-vecstore/internal/hnsw"
	"github.com/dshills/gocontext-vecstore/internal/logging"
	"github.com/dshills/gocontext-vecstore/internal/searcher"
)

// Environment overrides
const (
	EnvConfig             = "VECSTORE_CONFIG"
	EnvDataDir            = "VECSTORE_DATA_DIR"
	EnvLogLevel           = "VECSTORE_LOG_LEVEL"
	EnvEmbeddingProvider  = embedder.EnvProvider
	EnvEmbeddingModel     = embedder.EnvModel
	EnvEmbeddingDimension = embedder.EnvDimension
	EnvOpenAIAPIKey       = embedder.EnvOpenAIAPIKey
)

// ErrInvalidConfig is wrapped by every validation failure
var ErrInvalidConfig = errors.New("invalid config")

// HNSWConfig holds index construction parameters
type HNSWConfig struct {
	M               int `yaml:"m"`
	EfConstruction  int `yaml:"ef_construction"`
	EfSearch        int `yaml:"ef_search"`
	InitialCapacity int `yaml:"initial_capacity"`
}

// EmbeddingConfig selects the query embedding provider
type EmbeddingConfig struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model,omitempty"`
	BaseURL   string `yaml:"base_url,omitempty"`
	Dimension int    `yaml:"dimension,omitempty"`
	CacheSize int    `yaml:"cache_size"`

	// APIKey only comes from the environment
	APIKey string `yaml:"-"`
}

// SearchConfig bounds search requests
type SearchConfig struct {
	DefaultLimit    int `yaml:"default_limit"`
	MaxLimit        int `yaml:"max_limit"`
	HandleCacheSize int `yaml:"handle_cache_size"`
}

// Config is the complete vecstore configuration
type Config struct {
	DataDir   string          `yaml:"data_dir"`
	LogLevel  string          `yaml:"log_level"`
	HNSW      HNSWConfig      `yaml:"hnsw"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		DataDir:  DefaultDataDir(),
		LogLevel: "info",
		HNSW: HNSWConfig{
			M:               hnsw.DefaultM,
			EfConstruction:  hnsw.DefaultEfConstruction,
			EfSearch:        hnsw.DefaultEfSearch,
			InitialCapacity: hnsw.DefaultInitialCapacity,
		},
		Embedding: EmbeddingConfig{
			CacheSize: 1000,
		},
		Search: SearchConfig{
			DefaultLimit:    searcher.DefaultLimit,
			MaxLimit:        searcher.MaxLimit,
			HandleCacheSize: 16,
		},
	}
}

// DefaultDataDir returns ~/.vecstore, or .vecstore when there is no home
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".vecstore"
	}
	return filepath.Join(home, ".vecstore")
}

// Load builds the configuration. An empty path skips the file; a path that
// does not exist is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvDataDir); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvEmbeddingProvider); v != "" {
		c.Embedding.Provider = v
	}
	if v := os.Getenv(EnvEmbeddingModel); v != "" {
		c.Embedding.Model = v
	}
	if v := os.Getenv(EnvEmbeddingDimension); v != "" {
		dim, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a number", ErrInvalidConfig, EnvEmbeddingDimension, v)
		}
		c.Embedding.Dimension = dim
	}
	if v := os.Getenv(EnvOpenAIAPIKey); v != "" {
		c.Embedding.APIKey = v
	}
	return nil
}

// Validate checks that every setting is usable
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("%w: data_dir is required", ErrInvalidConfig)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: log_level: %v", ErrInvalidConfig, err)
	}

	h := c.HNSW
	switch {
	case h.M < 2:
		return fmt.Errorf("%w: hnsw.m must be at least 2, got %d", ErrInvalidConfig, h.M)
	case h.EfConstruction <= 0:
		return fmt.Errorf("%w: hnsw.ef_construction must be positive, got %d", ErrInvalidConfig, h.EfConstruction)
	case h.EfSearch <= 0:
		return fmt.Errorf("%w: hnsw.ef_search must be positive, got %d", ErrInvalidConfig, h.EfSearch)
	case h.InitialCapacity <= 0:
		return fmt.Errorf("%w: hnsw.initial_capacity must be positive, got %d", ErrInvalidConfig, h.InitialCapacity)
	}

	if !embedder.IsKnownProvider(c.Embedding.Provider) {
		return fmt.Errorf("%w: unknown embedding provider %q", ErrInvalidConfig, c.Embedding.Provider)
	}
	if c.Embedding.Dimension < 0 {
		return fmt.Errorf("%w: embedding.dimension must not be negative", ErrInvalidConfig)
	}
	if c.Embedding.CacheSize < 0 {
		return fmt.Errorf("%w: embedding.cache_size must not be negative", ErrInvalidConfig)
	}

	s := c.Search
	if s.DefaultLimit <= 0 || s.MaxLimit <= 0 || s.DefaultLimit > s.MaxLimit {
		return fmt.Errorf("%w: search limits must satisfy 0 < default_limit <= max_limit", ErrInvalidConfig)
	}
	if s.HandleCacheSize <= 0 {
		return fmt.Errorf("%w: search.handle_cache_size must be positive", ErrInvalidConfig)
	}
	return nil
}

// EmbedderConfig converts the embedding section for embedder.NewFromConfig
func (c *Config) EmbedderConfig() embedder.Config {
	return embedder.Config{
		Provider:  c.Embedding.Provider,
		Model:     c.Embedding.Model,
		APIKey:    c.Embedding.APIKey,
		BaseURL:   c.Embedding.BaseURL,
		Dimension: c.Embedding.Dimension,
		CacheSize: c.Embedding.CacheSize,
	}
}
