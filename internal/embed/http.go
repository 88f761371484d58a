package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/resync-ops/resync/internal/errors"
)

// HTTP embedder defaults.
const (
	// DefaultHTTPTimeout bounds a single embedding request.
	DefaultHTTPTimeout = 30 * time.Second

	// httpPoolSize is the connection pool size for the model endpoint.
	httpPoolSize = 4
)

// HTTPConfig configures the HTTP embedder.
type HTTPConfig struct {
	// Endpoint is the base URL of the embedding service.
	Endpoint string

	// Model is the model identifier sent with each request.
	Model string

	// Dimensions is the expected embedding dimension. Zero means
	// detect from the first response.
	Dimensions int

	// Timeout bounds a single request. Zero uses the default.
	Timeout time.Duration

	// BatchSize caps texts per request. Zero uses the default.
	BatchSize int
}

// HTTPEmbedder calls an out-of-core embedding model over HTTP.
// Requests retry on transient failures; a circuit breaker sheds load
// when the endpoint degrades.
type HTTPEmbedder struct {
	client    *http.Client
	transport *http.Transport
	config    HTTPConfig
	breaker   *gobreaker.CircuitBreaker
	retry     errors.RetryConfig

	mu     sync.RWMutex
	dims   int
	closed bool
}

// Verify interface implementation at compile time.
var _ Embedder = (*HTTPEmbedder)(nil)

// embedRequest is the wire format sent to the embedding service.
type embedRequest struct {
	Model string   `json:"model,omitempty"`
	Texts []string `json:"texts"`
}

// embedResponse is the wire format returned by the embedding service.
type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// NewHTTPEmbedder creates an embedder backed by an HTTP model endpoint.
func NewHTTPEmbedder(cfg HTTPConfig) (*HTTPEmbedder, error) {
	if cfg.Endpoint == "" {
		return nil, errors.NewEmptyKeyError("embedding endpoint")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultHTTPTimeout
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = MaxBatchSize
	}

	transport := &http.Transport{
		MaxIdleConns:        httpPoolSize,
		MaxIdleConnsPerHost: httpPoolSize,
		MaxConnsPerHost:     httpPoolSize * 2,
		IdleConnTimeout:     10 * time.Second,
	}

	// No client-level timeout: per-request contexts carry the deadline.
	return &HTTPEmbedder{
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
		breaker:   errors.NewBreaker("embedder"),
		retry:     errors.IntegrationRetryConfig(),
		dims:      cfg.Dimensions,
	}, nil
}

// Embed generates an embedding for a single text.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, errors.NewDataParsingError("embedding response", fmt.Errorf("expected 1 vector, got %d", len(vectors)))
	}
	return vectors[0], nil
}

// EmbedBatch generates embeddings for multiple texts, splitting into
// endpoint-sized requests when needed.
func (e *HTTPEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.config.BatchSize {
		end := start + e.config.BatchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch, err := e.embedOnce(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		results = append(results, batch...)
	}

	e.rememberDims(results)
	return results, nil
}

// embedOnce sends one request through retry and circuit breaker.
func (e *HTTPEmbedder) embedOnce(ctx context.Context, texts []string) ([][]float32, error) {
	return errors.RetryWithResult(ctx, e.retry, func() ([][]float32, error) {
		return errors.ExecuteWithBreaker(e.breaker, "embedder", func() ([][]float32, error) {
			return e.doRequest(ctx, texts)
		})
	})
}

func (e *HTTPEmbedder) doRequest(ctx context.Context, texts []string) ([][]float32, error) {
	reqCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	body, err := json.Marshal(embedRequest{Model: e.config.Model, Texts: texts})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err)
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, e.config.Endpoint+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		if reqCtx.Err() == context.DeadlineExceeded {
			return nil, errors.NewTimeoutError("embed", e.config.Timeout)
		}
		return nil, errors.NewIntegrationError("embedder", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, errors.NewIntegrationError("embedder",
			fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody)))
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, errors.NewDataParsingError("embedding response", err)
	}

	if len(parsed.Embeddings) != len(texts) {
		return nil, errors.NewDataParsingError("embedding response",
			fmt.Errorf("expected %d vectors, got %d", len(texts), len(parsed.Embeddings)))
	}

	return parsed.Embeddings, nil
}

// rememberDims records the dimension from the first successful response.
func (e *HTTPEmbedder) rememberDims(vectors [][]float32) {
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return
	}
	e.mu.Lock()
	if e.dims == 0 {
		e.dims = len(vectors[0])
	}
	e.mu.Unlock()
}

// Dimensions returns the embedding dimension.
func (e *HTTPEmbedder) Dimensions() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dims
}

// ModelName returns the model identifier.
func (e *HTTPEmbedder) ModelName() string {
	if e.config.Model != "" {
		return e.config.Model
	}
	return "http"
}

// Available probes the endpoint health.
func (e *HTTPEmbedder) Available(ctx context.Context) bool {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return false
	}
	e.mu.RUnlock()

	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, e.config.Endpoint+"/health", nil)
	if err != nil {
		return false
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	return resp.StatusCode == http.StatusOK
}

// Close releases pooled connections.
func (e *HTTPEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.transport.CloseIdleConnections()
	return nil
}
