package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func loadFrom(t *testing.T, dir string) *Config {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load()
	require.NoError(t, err)
	return cfg
}

func TestLoad_Defaults(t *testing.T) {
	cfg := loadFrom(t, t.TempDir())

	require.Equal(t, 512, cfg.Corpus.MaxTokens)
	require.Equal(t, 50, cfg.Corpus.OverlapTokens)
	require.Equal(t, "openai", cfg.Embedding.Provider)
	require.Equal(t, 1536, cfg.Embedding.Dimensions)
	require.Equal(t, "memory", cfg.Index.Backend)
	require.Equal(t, 5, cfg.Retrieval.TopK)
	require.Equal(t, 16, cfg.Run.MaxIterations)
	require.Equal(t, 8, cfg.Run.MaxTasks)
	require.Equal(t, 5*time.Minute, cfg.Run.Budget)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	yaml := `
corpus:
  max_tokens: 128
index:
  backend: chromem
  persist_path: /tmp/sift-index
run:
  budget: 30s
  seed_queries:
    - retry
    - backoff
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sift.yaml"), []byte(yaml), 0o644))

	cfg := loadFrom(t, dir)
	require.Equal(t, 128, cfg.Corpus.MaxTokens)
	require.Equal(t, "chromem", cfg.Index.Backend)
	require.Equal(t, "/tmp/sift-index", cfg.Index.PersistPath)
	require.Equal(t, 30*time.Second, cfg.Run.Budget)
	require.Equal(t, []string{"retry", "backoff"}, cfg.Run.SeedQueries)

	// Untouched sections keep their defaults.
	require.Equal(t, 1536, cfg.Embedding.Dimensions)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SIFT_INDEX_BACKEND", "chromem")
	t.Setenv("SIFT_EMBEDDING_PROVIDER", "local")

	cfg := loadFrom(t, t.TempDir())
	require.Equal(t, "chromem", cfg.Index.Backend)
	require.Equal(t, "local", cfg.Embedding.Provider)
}

func TestLoad_APIKeyFallback(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-fallback")

	cfg := loadFrom(t, t.TempDir())
	require.Equal(t, "sk-fallback", cfg.Embedding.APIKey)
	require.Equal(t, "sk-fallback", cfg.Reason.APIKey, "reason key inherits the embedding key")
}
