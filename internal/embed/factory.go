package embed

import (
	"log/slog"
	"time"
)

// FactoryConfig selects and tunes the embedder implementation.
type FactoryConfig struct {
	// Endpoint is the embedding service URL. Empty selects the static
	// embedder (tests, offline development).
	Endpoint string

	// Model is the model identifier for the HTTP embedder.
	Model string

	// Dimensions is the expected embedding dimension.
	Dimensions int

	// Timeout bounds a single HTTP request.
	Timeout time.Duration

	// BatchSize caps texts per HTTP request.
	BatchSize int

	// CacheSize is the embedding LRU capacity. Zero uses the default.
	CacheSize int
}

// New builds the embedder stack for the given configuration: the
// concrete embedder wrapped in an LRU cache.
func New(cfg FactoryConfig) (Embedder, error) {
	var inner Embedder

	if cfg.Endpoint == "" {
		slog.Info("using static embedder", slog.Int("dimensions", cfg.Dimensions))
		inner = NewStaticEmbedder(cfg.Dimensions)
	} else {
		httpEmbedder, err := NewHTTPEmbedder(HTTPConfig{
			Endpoint:   cfg.Endpoint,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Timeout:    cfg.Timeout,
			BatchSize:  cfg.BatchSize,
		})
		if err != nil {
			return nil, err
		}
		slog.Info("using http embedder",
			slog.String("endpoint", cfg.Endpoint),
			slog.String("model", httpEmbedder.ModelName()))
		inner = httpEmbedder
	}

	return NewCachedEmbedder(inner, cfg.CacheSize), nil
}
