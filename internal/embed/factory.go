package embed

import (
	"context"

	tmerr "github.com/rmraya/hybridtm/internal/errors"
)

// Provider identifies an embedding backend.
type Provider string

const (
	ProviderOllama Provider = "ollama"
	ProviderStatic Provider = "static"
)

// Config selects and configures an embedding backend.
type Config struct {
	Provider  Provider
	Model     string
	Host      string
	BatchSize int
	CacheSize int
}

// DefaultConfig returns the default embedder configuration.
func DefaultConfig() Config {
	return Config{
		Provider:  ProviderOllama,
		Model:     DefaultOllamaModel,
		Host:      DefaultOllamaHost,
		BatchSize: DefaultBatchSize,
		CacheSize: DefaultEmbeddingCacheSize,
	}
}

// New builds the configured embedder, wrapped with an LRU cache.
// Unknown providers and backend initialization failures surface as
// ModelUnavailable.
func New(ctx context.Context, cfg Config) (Embedder, error) {
	var inner Embedder
	switch cfg.Provider {
	case ProviderStatic:
		inner = NewStaticEmbedder()
	case ProviderOllama, "":
		e, err := NewOllamaEmbedder(ctx, OllamaConfig{
			Host:      cfg.Host,
			Model:     cfg.Model,
			BatchSize: cfg.BatchSize,
		})
		if err != nil {
			return nil, err
		}
		inner = e
	default:
		return nil, tmerr.Newf(tmerr.KindModelUnavailable, "unknown embedding provider %q", cfg.Provider)
	}

	return NewCachedEmbedder(inner, cfg.CacheSize), nil
}
