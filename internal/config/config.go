package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// CorpusConfig controls chunking and corpus walking.
type CorpusConfig struct {
	MaxTokens     int      `mapstructure:"max_tokens"`
	OverlapTokens int      `mapstructure:"overlap_tokens"`
	HardMaxBytes  int      `mapstructure:"hard_max_bytes"`
	Concurrency   int      `mapstructure:"concurrency"`
	ExcludeDirs   []string `mapstructure:"exclude_dirs"`
	Extensions    []string `mapstructure:"extensions"`
}

// EmbeddingConfig selects and configures the embedding collaborator.
type EmbeddingConfig struct {
	Provider   string `mapstructure:"provider"` // "openai" or "local"
	Model      string `mapstructure:"model"`
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Dimensions int    `mapstructure:"dimensions"`
	CacheSize  int    `mapstructure:"cache_size"`
}

// IndexConfig selects the vector index backend.
type IndexConfig struct {
	Backend     string `mapstructure:"backend"` // "memory" or "chromem"
	PersistPath string `mapstructure:"persist_path"`
	Collection  string `mapstructure:"collection"`
}

// RetrievalConfig controls the retriever.
type RetrievalConfig struct {
	TopK       int `mapstructure:"top_k"`
	MaxRetries int `mapstructure:"max_retries"`
}

// ReasonConfig configures the reasoning collaborator.
type ReasonConfig struct {
	Model   string `mapstructure:"model"`
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// RunConfig bounds one analysis run.
type RunConfig struct {
	MaxIterations int           `mapstructure:"max_iterations"`
	MaxTasks      int           `mapstructure:"max_tasks"`
	Budget        time.Duration `mapstructure:"budget"`
	SeedQueries   []string      `mapstructure:"seed_queries"`
}

// Config is the full application configuration.
type Config struct {
	Corpus    CorpusConfig    `mapstructure:"corpus"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Index     IndexConfig     `mapstructure:"index"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Reason    ReasonConfig    `mapstructure:"reason"`
	Run       RunConfig       `mapstructure:"run"`
}

// Load reads configuration from sift.yaml (working directory, then
// ~/.sift/), layered under SIFT_* environment variables, all on top of
// defaults. A missing config file is fine; defaults carry the run.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("sift")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".sift"))
	}

	setDefaults(v)

	v.SetEnvPrefix("SIFT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Reason.APIKey == "" {
		cfg.Reason.APIKey = cfg.Embedding.APIKey
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("corpus.max_tokens", 512)
	v.SetDefault("corpus.overlap_tokens", 50)
	v.SetDefault("corpus.hard_max_bytes", 32*1024)
	v.SetDefault("corpus.concurrency", 8)

	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.dimensions", 1536)
	v.SetDefault("embedding.cache_size", 10000)

	v.SetDefault("index.backend", "memory")
	v.SetDefault("index.collection", "default")

	v.SetDefault("retrieval.top_k", 5)
	v.SetDefault("retrieval.max_retries", 3)

	v.SetDefault("reason.model", "gpt-4o-mini")

	v.SetDefault("run.max_iterations", 16)
	v.SetDefault("run.max_tasks", 8)
	v.SetDefault("run.budget", 5*time.Minute)
}
