package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "ollama", cfg.Embeddings.Provider)
	assert.Equal(t, 1000, cfg.Import.BatchSize)
	assert.Equal(t, 60, cfg.Search.MinScore)
	assert.True(t, cfg.Import.SkipEmpty)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
embeddings:
  provider: static
import:
  batch_size: 50
search:
  min_score: 75
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "static", cfg.Embeddings.Provider)
	assert.Equal(t, 50, cfg.Import.BatchSize)
	assert.Equal(t, 75, cfg.Search.MinScore)
	// Untouched sections keep their defaults.
	assert.Equal(t, "http://localhost:11434", cfg.Embeddings.OllamaHost)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("embeddings:\n  provider: ollama\n"), 0o644))

	t.Setenv("HYBRIDTM_EMBED_PROVIDER", "static")
	t.Setenv("HYBRIDTM_BATCH_SIZE", "7")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "static", cfg.Embeddings.Provider)
	assert.Equal(t, 7, cfg.Import.BatchSize)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("embeddings: [broken"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	cfg := New()
	cfg.Search.MinScore = 42
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 42, loaded.Search.MinScore)
}
