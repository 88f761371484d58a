package preflight

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/resync-ops/resync/internal/logging"
)

// CheckConfig validates the configuration itself.
func (c *Checker) CheckConfig() CheckResult {
	result := CheckResult{Name: "configuration", Required: true}

	if err := c.cfg.Validate(); err != nil {
		result.Status = StatusFail
		result.Message = err.Error()
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("valid (collections %s/%s, %d dims)",
		c.cfg.Storage.CollectionRead, c.cfg.Storage.CollectionWrite, c.cfg.Storage.EmbedDim)
	return result
}

// CheckRedis probes the configured Redis. An empty URL is a warning:
// the embedded fallback works but is not durable.
func (c *Checker) CheckRedis(ctx context.Context) CheckResult {
	result := CheckResult{Name: "redis", Required: true}

	if c.cfg.Storage.RedisURL == "" {
		result.Status = StatusWarn
		result.Required = false
		result.Message = "not configured; embedded redis will be used (sessions, audit queue, and locks are not durable)"
		return result
	}

	opts, err := redis.ParseURL(c.cfg.Storage.RedisURL)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("invalid url: %v", err)
		return result
	}

	client := redis.NewClient(opts)
	defer func() { _ = client.Close() }()

	pingCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("unreachable: %v", err)
		return result
	}

	result.Status = StatusPass
	result.Message = "reachable"
	return result
}

// CheckDatabase probes PostgreSQL. An empty or mem:// URL is a
// warning: the in-memory vector store loses data on exit.
func (c *Checker) CheckDatabase(ctx context.Context) CheckResult {
	result := CheckResult{Name: "database", Required: true}

	if c.cfg.UseMemoryVectorStore() {
		result.Status = StatusWarn
		result.Required = false
		result.Message = "not configured; in-memory vector store will be used (data is not persisted)"
		return result
	}

	probeCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	pool, err := pgxpool.New(probeCtx, c.cfg.Storage.DatabaseURL)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("invalid url: %v", err)
		return result
	}
	defer pool.Close()

	if err := pool.Ping(probeCtx); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("unreachable: %v", err)
		return result
	}

	result.Status = StatusPass
	result.Message = "reachable"
	return result
}

// CheckEmbedEndpoint reports whether a real embedding service is
// configured. The static fallback keeps retrieval working but its
// vectors carry no meaning.
func (c *Checker) CheckEmbedEndpoint() CheckResult {
	result := CheckResult{Name: "embed_endpoint"}

	if c.cfg.Capabilities.EmbedEndpoint == "" {
		result.Status = StatusWarn
		result.Message = "not configured; static embedder will be used (semantic search is degraded)"
		return result
	}

	result.Status = StatusPass
	result.Message = c.cfg.Capabilities.EmbedEndpoint
	result.Details = "model: " + c.cfg.Capabilities.EmbedModel
	return result
}

// CheckLLMEndpoint reports whether a language model is configured.
// Without one, intent classification is rule-only and the agent,
// diagnostic engine, and reranker are unavailable.
func (c *Checker) CheckLLMEndpoint() CheckResult {
	result := CheckResult{Name: "llm_endpoint"}

	if c.cfg.Capabilities.LLMEndpoint == "" {
		result.Status = StatusWarn
		result.Message = "not configured; agent, diagnostics, and reranking are unavailable"
		return result
	}

	result.Status = StatusPass
	result.Message = c.cfg.Capabilities.LLMEndpoint
	result.Details = "model: " + c.cfg.Capabilities.LLMModel
	return result
}

// CheckTWSEndpoint reports whether the TWS master is configured.
// Without it, plan graph queries return empty results.
func (c *Checker) CheckTWSEndpoint() CheckResult {
	result := CheckResult{Name: "tws_endpoint"}

	if c.cfg.Capabilities.TWSEndpoint == "" {
		result.Status = StatusWarn
		result.Message = "not configured; plan graph queries return empty results"
		return result
	}

	result.Status = StatusPass
	result.Message = c.cfg.Capabilities.TWSEndpoint
	return result
}

// CheckLogDir verifies the log directory is writable.
func (c *Checker) CheckLogDir() CheckResult {
	result := CheckResult{Name: "log_dir", Required: true}

	dir := logging.DefaultLogDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot create %s: %v", dir, err)
		return result
	}

	probe := filepath.Join(dir, ".preflight")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("not writable: %v", err)
		return result
	}
	_ = os.Remove(probe)

	result.Status = StatusPass
	result.Message = dir
	return result
}
