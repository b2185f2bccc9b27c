// Package config loads HybridTM configuration: hardcoded defaults,
// overlaid by an optional YAML file, overlaid by environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the complete HybridTM configuration.
type Config struct {
	Version    int              `yaml:"version"`
	Storage    StorageConfig    `yaml:"storage"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Import     ImportConfig     `yaml:"import"`
	Search     SearchConfig     `yaml:"search"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// StorageConfig locates the vector store.
type StorageConfig struct {
	// Path is the store directory. Empty means ~/.hybridtm/stores/<name>.
	Path string `yaml:"path"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider is "ollama" (default) or "static" (offline fallback).
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	// OllamaHost is the Ollama API endpoint.
	OllamaHost string `yaml:"ollama_host"`
	BatchSize  int    `yaml:"batch_size"`
	CacheSize  int    `yaml:"cache_size"`
}

// ImportConfig holds ingest options. The import command reads only
// BatchSize (as the --batch-size default); the other fields are loaded but
// not applied, and the command's flags keep their own defaults.
type ImportConfig struct {
	BatchSize       int    `yaml:"batch_size"`
	SkipEmpty       bool   `yaml:"skip_empty"`
	SkipUnconfirmed bool   `yaml:"skip_unconfirmed"`
	MinState        string `yaml:"min_state"`
	ExtractMetadata bool   `yaml:"extract_metadata"`
}

// SearchConfig holds the default search parameters.
type SearchConfig struct {
	// MinScore is the hybrid-score threshold for translation search.
	MinScore int `yaml:"min_score"`
	// MaxResults caps the number of returned matches.
	MaxResults int `yaml:"max_results"`
}

// LoggingConfig holds the logging level from the file or
// HYBRIDTM_LOG_LEVEL. The CLI does not apply it; its log level is set by
// the --debug flag.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// New returns the hardcoded defaults.
func New() *Config {
	return &Config{
		Version: 1,
		Embeddings: EmbeddingsConfig{
			Provider:   "ollama",
			Model:      "nomic-embed-text",
			OllamaHost: "http://localhost:11434",
			BatchSize:  32,
			CacheSize:  1000,
		},
		Import: ImportConfig{
			BatchSize:       1000,
			SkipEmpty:       true,
			ExtractMetadata: true,
		},
		Search: SearchConfig{
			MinScore:   60,
			MaxResults: 10,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Dir returns the platform-appropriate configuration directory.
func Dir() string {
	if base, err := os.UserConfigDir(); err == nil {
		return filepath.Join(base, "hybridtm")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "hybridtm")
	}
	return filepath.Join(home, ".hybridtm")
}

// DefaultPath returns the default config file path.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// DefaultStoreDir returns the default store directory for an instance name.
func DefaultStoreDir(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".hybridtm", "stores", name)
	}
	return filepath.Join(home, ".hybridtm", "stores", name)
}

// Load reads the configuration: defaults, then the YAML file at path
// (DefaultPath when empty; a missing file is not an error), then
// environment variables.
func Load(path string) (*Config, error) {
	cfg := New()

	if path == "" {
		path = DefaultPath()
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg.applyEnv()
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if path == "" {
		path = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// applyEnv overlays HYBRIDTM_* environment variables, the highest
// priority configuration source.
func (c *Config) applyEnv() {
	if v := os.Getenv("HYBRIDTM_EMBED_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("HYBRIDTM_EMBED_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("HYBRIDTM_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("HYBRIDTM_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Import.BatchSize = n
		}
	}
	if v := os.Getenv("HYBRIDTM_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}
