// Package config loads and validates Resync configuration.
//
// Configuration is applied in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/resync/config.yaml)
//  3. Project config (.resync.yaml in the working directory)
//  4. Environment variables (RESYNC_*)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete Resync configuration.
type Config struct {
	Version      int                `yaml:"version" json:"version"`
	Storage      StorageConfig      `yaml:"storage" json:"storage"`
	Retrieval    RetrievalConfig    `yaml:"retrieval" json:"retrieval"`
	Cache        CacheConfig        `yaml:"cache" json:"cache"`
	Diagnostic   DiagnosticConfig   `yaml:"diagnostic" json:"diagnostic"`
	Audit        AuditConfig        `yaml:"audit" json:"audit"`
	Memory       MemoryConfig       `yaml:"memory" json:"memory"`
	Agent        AgentConfig        `yaml:"agent" json:"agent"`
	Capabilities CapabilitiesConfig `yaml:"capabilities" json:"capabilities"`
	Timeouts     TimeoutsConfig     `yaml:"timeouts" json:"timeouts"`
	Logging      LoggingConfig      `yaml:"logging" json:"logging"`
}

// StorageConfig configures the Redis and vector store connections.
type StorageConfig struct {
	// RedisURL is the Redis connection string (redis://host:port/db).
	// Empty starts an embedded in-process Redis; sessions, the audit
	// queue, and locks then work but do not survive the process.
	RedisURL string `yaml:"redis_url" json:"redis_url"`

	// DatabaseURL is the PostgreSQL connection string. Empty or "mem://"
	// selects the in-memory vector store (tests, local development).
	DatabaseURL string `yaml:"database_url" json:"database_url"`

	RedisPoolMinSize int `yaml:"redis_pool_min_size" json:"redis_pool_min_size"`
	RedisPoolMaxSize int `yaml:"redis_pool_max_size" json:"redis_pool_max_size"`

	// RedisHealthCheckInterval is in seconds.
	RedisHealthCheckInterval int `yaml:"redis_health_check_interval" json:"redis_health_check_interval"`

	// CollectionRead and CollectionWrite allow blue/green reindexing:
	// readers keep the old collection while a reindex fills the new one.
	CollectionRead  string `yaml:"collection_read" json:"collection_read"`
	CollectionWrite string `yaml:"collection_write" json:"collection_write"`

	// EmbedDim is the embedding dimension D for the collection.
	EmbedDim int `yaml:"embed_dim" json:"embed_dim"`
}

// RetrievalConfig configures hybrid retrieval parameters.
type RetrievalConfig struct {
	VectorTopK      int     `yaml:"vector_top_k" json:"vector_top_k"`
	VectorThreshold float64 `yaml:"vector_threshold" json:"vector_threshold"`

	// Reranking gate. Rerank triggers when the top fused score is below
	// the low threshold or the top-two margin is below the margin
	// threshold; input is always capped to RerankMaxCandidates.
	EnableReranking         bool    `yaml:"enable_reranking" json:"enable_reranking"`
	RerankTopK              int     `yaml:"rerank_top_k" json:"rerank_top_k"`
	RerankScoreLowThreshold float64 `yaml:"rerank_score_low_threshold" json:"rerank_score_low_threshold"`
	RerankMarginThreshold   float64 `yaml:"rerank_margin_threshold" json:"rerank_margin_threshold"`
	RerankMaxCandidates     int     `yaml:"rerank_max_candidates" json:"rerank_max_candidates"`

	// Default fusion weights, used for the DEFAULT query class.
	// Must sum to 1.0.
	VectorWeight  float64 `yaml:"vector_weight" json:"vector_weight"`
	KeywordWeight float64 `yaml:"keyword_weight" json:"keyword_weight"`

	HNSWEfSearchBase int `yaml:"hnsw_ef_search_base" json:"hnsw_ef_search_base"`
	HNSWEfSearchMax  int `yaml:"hnsw_ef_search_max" json:"hnsw_ef_search_max"`
}

// CacheConfig configures the query classification cache.
type CacheConfig struct {
	QueryCacheEnabled    bool `yaml:"query_cache_enabled" json:"query_cache_enabled"`
	QueryCacheMaxSize    int  `yaml:"query_cache_max_size" json:"query_cache_max_size"`
	QueryCacheTTLSeconds int  `yaml:"query_cache_ttl_seconds" json:"query_cache_ttl_seconds"`
}

// DiagnosticConfig configures the diagnostic state machine.
type DiagnosticConfig struct {
	MaxIterations             int     `yaml:"max_iterations" json:"max_iterations"`
	MinConfidenceForProposal  float64 `yaml:"min_confidence_for_proposal" json:"min_confidence_for_proposal"`
	RequireApprovalForActions bool    `yaml:"require_approval_for_actions" json:"require_approval_for_actions"`
}

// AuditConfig configures the audit queue and distributed locks.
type AuditConfig struct {
	RetentionDays            int `yaml:"audit_retention_days" json:"audit_retention_days"`
	LockTimeoutSeconds       int `yaml:"lock_timeout_seconds" json:"lock_timeout_seconds"`
	LockCleanupMaxAgeSeconds int `yaml:"lock_cleanup_max_age_seconds" json:"lock_cleanup_max_age_seconds"`
}

// MemoryConfig configures conversation and long-term memory.
type MemoryConfig struct {
	SessionTTLSeconds       int     `yaml:"session_ttl_seconds" json:"session_ttl_seconds"`
	MaxContextMessages      int     `yaml:"max_context_messages" json:"max_context_messages"`
	ExtractionMinConfidence float64 `yaml:"extraction_min_confidence" json:"extraction_min_confidence"`
	PushSimilarityThreshold float64 `yaml:"push_similarity_threshold" json:"push_similarity_threshold"`
}

// AgentConfig configures the agent router.
type AgentConfig struct {
	MaxToolSteps        int     `yaml:"max_tool_steps" json:"max_tool_steps"`
	QuarantineThreshold float64 `yaml:"quarantine_threshold" json:"quarantine_threshold"`
}

// CapabilitiesConfig points at the out-of-core model and TWS endpoints.
// Empty endpoints select offline fallbacks: the static embedder and no
// TWS connectivity (graph queries return empty sets).
type CapabilitiesConfig struct {
	EmbedEndpoint string `yaml:"embed_endpoint" json:"embed_endpoint"`
	EmbedModel    string `yaml:"embed_model" json:"embed_model"`
	LLMEndpoint   string `yaml:"llm_endpoint" json:"llm_endpoint"`
	LLMModel      string `yaml:"llm_model" json:"llm_model"`
	TWSEndpoint   string `yaml:"tws_endpoint" json:"tws_endpoint"`
}

// TimeoutsConfig holds per-dependency deadlines, in seconds.
type TimeoutsConfig struct {
	RedisSeconds               int `yaml:"redis_seconds" json:"redis_seconds"`
	VectorSearchSeconds        int `yaml:"vector_search_seconds" json:"vector_search_seconds"`
	LLMSeconds                 int `yaml:"llm_seconds" json:"llm_seconds"`
	ToolSeconds                int `yaml:"tool_seconds" json:"tool_seconds"`
	DiagnosticIterationSeconds int `yaml:"diagnostic_iteration_seconds" json:"diagnostic_iteration_seconds"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	File   string `yaml:"file" json:"file"`
	Stderr bool   `yaml:"stderr" json:"stderr"`
}

// NewConfig creates a new Config with the documented defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Storage: StorageConfig{
			RedisURL:                 "",
			DatabaseURL:              "",
			RedisPoolMinSize:         2,
			RedisPoolMaxSize:         10,
			RedisHealthCheckInterval: 30,
			CollectionRead:           "tws_docs",
			CollectionWrite:          "tws_docs",
			EmbedDim:                 1536,
		},
		Retrieval: RetrievalConfig{
			VectorTopK:              20,
			VectorThreshold:         0.7,
			EnableReranking:         true,
			RerankTopK:              5,
			RerankScoreLowThreshold: 0.35,
			RerankMarginThreshold:   0.05,
			RerankMaxCandidates:     10,
			VectorWeight:            0.6,
			KeywordWeight:           0.4,
			HNSWEfSearchBase:        64,
			HNSWEfSearchMax:         128,
		},
		Cache: CacheConfig{
			QueryCacheEnabled:    true,
			QueryCacheMaxSize:    1000,
			QueryCacheTTLSeconds: 1800,
		},
		Diagnostic: DiagnosticConfig{
			MaxIterations:             5,
			MinConfidenceForProposal:  0.7,
			RequireApprovalForActions: true,
		},
		Audit: AuditConfig{
			RetentionDays:            30,
			LockTimeoutSeconds:       30,
			LockCleanupMaxAgeSeconds: 60,
		},
		Memory: MemoryConfig{
			SessionTTLSeconds:       3600,
			MaxContextMessages:      10,
			ExtractionMinConfidence: 0.5,
			PushSimilarityThreshold: 0.75,
		},
		Agent: AgentConfig{
			MaxToolSteps:        8,
			QuarantineThreshold: 0.5,
		},
		Timeouts: TimeoutsConfig{
			RedisSeconds:               5,
			VectorSearchSeconds:        10,
			LLMSeconds:                 30,
			ToolSeconds:                30,
			DiagnosticIterationSeconds: 60,
		},
		Logging: LoggingConfig{
			Level:  "info",
			File:   "",
			Stderr: true,
		},
	}
}

// GetUserConfigPath returns the path to the user/global configuration file.
// It follows XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/resync/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/resync/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "resync", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "resync", "config.yaml")
	}
	return filepath.Join(home, ".config", "resync", "config.yaml")
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	_, err := os.Stat(GetUserConfigPath())
	return err == nil
}

// loadUserConfig loads the user/global configuration file if it exists.
// Returns nil config and nil error if the file doesn't exist.
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()

	if _, err := os.Stat(configPath); err != nil {
		return nil, nil // No user config is fine
	}

	cfg := NewConfig()
	if err := cfg.loadYAML(configPath); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}

	return cfg, nil
}

// Load loads configuration from the specified directory.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	// Step 1: Load user/global config (if exists)
	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	// Step 2: Load project config (overrides user config)
	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	// Step 3: Apply environment variable overrides (highest precedence)
	cfg.applyEnvOverrides()

	// Step 4: Validate the final configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile attempts to load configuration from .resync.yaml or .resync.yml.
func (c *Config) loadFromFile(dir string) error {
	// Try .yaml first (takes precedence)
	yamlPath := filepath.Join(dir, ".resync.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return c.loadYAML(yamlPath)
	}

	// Try .yml as fallback
	ymlPath := filepath.Join(dir, ".resync.yml")
	if _, err := os.Stat(ymlPath); err == nil {
		return c.loadYAML(ymlPath)
	}

	// No config file is fine - use defaults
	return nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	// Use a temporary struct for parsing to detect type errors
	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	// Merge parsed values with defaults (only non-zero values)
	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
// Booleans that default to true (enable_reranking, query_cache_enabled,
// require_approval_for_actions) are adopted only when a sibling option in
// the same section is also set; explicit false without siblings must come
// through an environment variable.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	// Storage
	if other.Storage.RedisURL != "" {
		c.Storage.RedisURL = other.Storage.RedisURL
	}
	if other.Storage.DatabaseURL != "" {
		c.Storage.DatabaseURL = other.Storage.DatabaseURL
	}
	if other.Storage.RedisPoolMinSize != 0 {
		c.Storage.RedisPoolMinSize = other.Storage.RedisPoolMinSize
	}
	if other.Storage.RedisPoolMaxSize != 0 {
		c.Storage.RedisPoolMaxSize = other.Storage.RedisPoolMaxSize
	}
	if other.Storage.RedisHealthCheckInterval != 0 {
		c.Storage.RedisHealthCheckInterval = other.Storage.RedisHealthCheckInterval
	}
	if other.Storage.CollectionRead != "" {
		c.Storage.CollectionRead = other.Storage.CollectionRead
	}
	if other.Storage.CollectionWrite != "" {
		c.Storage.CollectionWrite = other.Storage.CollectionWrite
	}
	if other.Storage.EmbedDim != 0 {
		c.Storage.EmbedDim = other.Storage.EmbedDim
	}

	// Retrieval
	if other.Retrieval.VectorTopK != 0 {
		c.Retrieval.VectorTopK = other.Retrieval.VectorTopK
	}
	if other.Retrieval.VectorThreshold != 0 {
		c.Retrieval.VectorThreshold = other.Retrieval.VectorThreshold
	}
	rerankTouched := other.Retrieval.RerankTopK != 0 ||
		other.Retrieval.RerankScoreLowThreshold != 0 ||
		other.Retrieval.RerankMarginThreshold != 0 ||
		other.Retrieval.RerankMaxCandidates != 0
	if rerankTouched {
		c.Retrieval.EnableReranking = other.Retrieval.EnableReranking
	}
	if other.Retrieval.RerankTopK != 0 {
		c.Retrieval.RerankTopK = other.Retrieval.RerankTopK
	}
	if other.Retrieval.RerankScoreLowThreshold != 0 {
		c.Retrieval.RerankScoreLowThreshold = other.Retrieval.RerankScoreLowThreshold
	}
	if other.Retrieval.RerankMarginThreshold != 0 {
		c.Retrieval.RerankMarginThreshold = other.Retrieval.RerankMarginThreshold
	}
	if other.Retrieval.RerankMaxCandidates != 0 {
		c.Retrieval.RerankMaxCandidates = other.Retrieval.RerankMaxCandidates
	}
	if other.Retrieval.VectorWeight != 0 {
		c.Retrieval.VectorWeight = other.Retrieval.VectorWeight
	}
	if other.Retrieval.KeywordWeight != 0 {
		c.Retrieval.KeywordWeight = other.Retrieval.KeywordWeight
	}
	if other.Retrieval.HNSWEfSearchBase != 0 {
		c.Retrieval.HNSWEfSearchBase = other.Retrieval.HNSWEfSearchBase
	}
	if other.Retrieval.HNSWEfSearchMax != 0 {
		c.Retrieval.HNSWEfSearchMax = other.Retrieval.HNSWEfSearchMax
	}

	// Cache
	cacheTouched := other.Cache.QueryCacheMaxSize != 0 || other.Cache.QueryCacheTTLSeconds != 0
	if cacheTouched {
		c.Cache.QueryCacheEnabled = other.Cache.QueryCacheEnabled
	}
	if other.Cache.QueryCacheMaxSize != 0 {
		c.Cache.QueryCacheMaxSize = other.Cache.QueryCacheMaxSize
	}
	if other.Cache.QueryCacheTTLSeconds != 0 {
		c.Cache.QueryCacheTTLSeconds = other.Cache.QueryCacheTTLSeconds
	}

	// Diagnostic
	diagTouched := other.Diagnostic.MaxIterations != 0 || other.Diagnostic.MinConfidenceForProposal != 0
	if diagTouched {
		c.Diagnostic.RequireApprovalForActions = other.Diagnostic.RequireApprovalForActions
	}
	if other.Diagnostic.MaxIterations != 0 {
		c.Diagnostic.MaxIterations = other.Diagnostic.MaxIterations
	}
	if other.Diagnostic.MinConfidenceForProposal != 0 {
		c.Diagnostic.MinConfidenceForProposal = other.Diagnostic.MinConfidenceForProposal
	}

	// Audit
	if other.Audit.RetentionDays != 0 {
		c.Audit.RetentionDays = other.Audit.RetentionDays
	}
	if other.Audit.LockTimeoutSeconds != 0 {
		c.Audit.LockTimeoutSeconds = other.Audit.LockTimeoutSeconds
	}
	if other.Audit.LockCleanupMaxAgeSeconds != 0 {
		c.Audit.LockCleanupMaxAgeSeconds = other.Audit.LockCleanupMaxAgeSeconds
	}

	// Memory
	if other.Memory.SessionTTLSeconds != 0 {
		c.Memory.SessionTTLSeconds = other.Memory.SessionTTLSeconds
	}
	if other.Memory.MaxContextMessages != 0 {
		c.Memory.MaxContextMessages = other.Memory.MaxContextMessages
	}
	if other.Memory.ExtractionMinConfidence != 0 {
		c.Memory.ExtractionMinConfidence = other.Memory.ExtractionMinConfidence
	}
	if other.Memory.PushSimilarityThreshold != 0 {
		c.Memory.PushSimilarityThreshold = other.Memory.PushSimilarityThreshold
	}

	// Agent
	if other.Agent.MaxToolSteps != 0 {
		c.Agent.MaxToolSteps = other.Agent.MaxToolSteps
	}
	if other.Agent.QuarantineThreshold != 0 {
		c.Agent.QuarantineThreshold = other.Agent.QuarantineThreshold
	}

	// Capabilities
	if other.Capabilities.EmbedEndpoint != "" {
		c.Capabilities.EmbedEndpoint = other.Capabilities.EmbedEndpoint
	}
	if other.Capabilities.EmbedModel != "" {
		c.Capabilities.EmbedModel = other.Capabilities.EmbedModel
	}
	if other.Capabilities.LLMEndpoint != "" {
		c.Capabilities.LLMEndpoint = other.Capabilities.LLMEndpoint
	}
	if other.Capabilities.LLMModel != "" {
		c.Capabilities.LLMModel = other.Capabilities.LLMModel
	}
	if other.Capabilities.TWSEndpoint != "" {
		c.Capabilities.TWSEndpoint = other.Capabilities.TWSEndpoint
	}

	// Timeouts
	if other.Timeouts.RedisSeconds != 0 {
		c.Timeouts.RedisSeconds = other.Timeouts.RedisSeconds
	}
	if other.Timeouts.VectorSearchSeconds != 0 {
		c.Timeouts.VectorSearchSeconds = other.Timeouts.VectorSearchSeconds
	}
	if other.Timeouts.LLMSeconds != 0 {
		c.Timeouts.LLMSeconds = other.Timeouts.LLMSeconds
	}
	if other.Timeouts.ToolSeconds != 0 {
		c.Timeouts.ToolSeconds = other.Timeouts.ToolSeconds
	}
	if other.Timeouts.DiagnosticIterationSeconds != 0 {
		c.Timeouts.DiagnosticIterationSeconds = other.Timeouts.DiagnosticIterationSeconds
	}

	// Logging
	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.File != "" {
		c.Logging.File = other.Logging.File
		c.Logging.Stderr = other.Logging.Stderr
	}
}

// applyEnvOverrides applies RESYNC_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("RESYNC_REDIS_URL"); v != "" {
		c.Storage.RedisURL = v
	}
	if v := os.Getenv("RESYNC_DATABASE_URL"); v != "" {
		c.Storage.DatabaseURL = v
	}
	if v := os.Getenv("RESYNC_COLLECTION_READ"); v != "" {
		c.Storage.CollectionRead = v
	}
	if v := os.Getenv("RESYNC_COLLECTION_WRITE"); v != "" {
		c.Storage.CollectionWrite = v
	}
	if v := os.Getenv("RESYNC_EMBED_DIM"); v != "" {
		if d, err := strconv.Atoi(v); err == nil && d > 0 {
			c.Storage.EmbedDim = d
		}
	}

	if v := os.Getenv("RESYNC_VECTOR_WEIGHT"); v != "" {
		if w, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && w >= 0 && w <= 1 {
			c.Retrieval.VectorWeight = w
		}
	}
	if v := os.Getenv("RESYNC_KEYWORD_WEIGHT"); v != "" {
		if w, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && w >= 0 && w <= 1 {
			c.Retrieval.KeywordWeight = w
		}
	}
	if v := os.Getenv("RESYNC_ENABLE_RERANKING"); v != "" {
		c.Retrieval.EnableReranking = parseBool(v)
	}
	if v := os.Getenv("RESYNC_QUERY_CACHE_ENABLED"); v != "" {
		c.Cache.QueryCacheEnabled = parseBool(v)
	}
	if v := os.Getenv("RESYNC_REQUIRE_APPROVAL_FOR_ACTIONS"); v != "" {
		c.Diagnostic.RequireApprovalForActions = parseBool(v)
	}
	if v := os.Getenv("RESYNC_EMBED_ENDPOINT"); v != "" {
		c.Capabilities.EmbedEndpoint = v
	}
	if v := os.Getenv("RESYNC_LLM_ENDPOINT"); v != "" {
		c.Capabilities.LLMEndpoint = v
	}
	if v := os.Getenv("RESYNC_TWS_ENDPOINT"); v != "" {
		c.Capabilities.TWSEndpoint = v
	}
	if v := os.Getenv("RESYNC_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("RESYNC_LOG_FILE"); v != "" {
		c.Logging.File = v
	}
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "on":
		return true
	default:
		return false
	}
}

// Validate checks the final configuration for consistency.
func (c *Config) Validate() error {
	if c.Storage.EmbedDim <= 0 {
		return fmt.Errorf("storage.embed_dim must be positive, got %d", c.Storage.EmbedDim)
	}
	if c.Storage.RedisPoolMinSize < 0 {
		return fmt.Errorf("storage.redis_pool_min_size must not be negative, got %d", c.Storage.RedisPoolMinSize)
	}
	if c.Storage.RedisPoolMaxSize < c.Storage.RedisPoolMinSize {
		return fmt.Errorf("storage.redis_pool_max_size (%d) must be >= redis_pool_min_size (%d)",
			c.Storage.RedisPoolMaxSize, c.Storage.RedisPoolMinSize)
	}
	if c.Storage.CollectionRead == "" {
		return fmt.Errorf("storage.collection_read must not be empty")
	}
	if c.Storage.CollectionWrite == "" {
		return fmt.Errorf("storage.collection_write must not be empty")
	}

	sum := c.Retrieval.VectorWeight + c.Retrieval.KeywordWeight
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("retrieval.vector_weight + retrieval.keyword_weight must sum to 1.0, got %.3f", sum)
	}
	if c.Retrieval.VectorTopK <= 0 {
		return fmt.Errorf("retrieval.vector_top_k must be positive, got %d", c.Retrieval.VectorTopK)
	}
	if c.Retrieval.VectorThreshold < 0 || c.Retrieval.VectorThreshold > 1 {
		return fmt.Errorf("retrieval.vector_threshold must be in [0,1], got %.3f", c.Retrieval.VectorThreshold)
	}
	if c.Retrieval.RerankScoreLowThreshold < 0 || c.Retrieval.RerankScoreLowThreshold > 1 {
		return fmt.Errorf("retrieval.rerank_score_low_threshold must be in [0,1], got %.3f",
			c.Retrieval.RerankScoreLowThreshold)
	}
	if c.Retrieval.RerankMaxCandidates <= 0 {
		return fmt.Errorf("retrieval.rerank_max_candidates must be positive, got %d", c.Retrieval.RerankMaxCandidates)
	}

	if c.Cache.QueryCacheMaxSize <= 0 {
		return fmt.Errorf("cache.query_cache_max_size must be positive, got %d", c.Cache.QueryCacheMaxSize)
	}
	if c.Cache.QueryCacheTTLSeconds <= 0 {
		return fmt.Errorf("cache.query_cache_ttl_seconds must be positive, got %d", c.Cache.QueryCacheTTLSeconds)
	}

	if c.Diagnostic.MaxIterations <= 0 {
		return fmt.Errorf("diagnostic.max_iterations must be positive, got %d", c.Diagnostic.MaxIterations)
	}
	if c.Diagnostic.MinConfidenceForProposal < 0 || c.Diagnostic.MinConfidenceForProposal > 1 {
		return fmt.Errorf("diagnostic.min_confidence_for_proposal must be in [0,1], got %.3f",
			c.Diagnostic.MinConfidenceForProposal)
	}

	if c.Audit.RetentionDays <= 0 {
		return fmt.Errorf("audit.audit_retention_days must be positive, got %d", c.Audit.RetentionDays)
	}
	if c.Audit.LockTimeoutSeconds <= 0 {
		return fmt.Errorf("audit.lock_timeout_seconds must be positive, got %d", c.Audit.LockTimeoutSeconds)
	}

	if c.Memory.SessionTTLSeconds <= 0 {
		return fmt.Errorf("memory.session_ttl_seconds must be positive, got %d", c.Memory.SessionTTLSeconds)
	}
	if c.Agent.MaxToolSteps <= 0 {
		return fmt.Errorf("agent.max_tool_steps must be positive, got %d", c.Agent.MaxToolSteps)
	}
	if c.Agent.QuarantineThreshold < 0 || c.Agent.QuarantineThreshold > 1 {
		return fmt.Errorf("agent.quarantine_threshold must be in [0,1], got %.3f", c.Agent.QuarantineThreshold)
	}

	return nil
}

// Duration accessors. YAML carries plain seconds; callers want time.Duration.

// RedisTimeout returns the per-operation Redis deadline.
func (c *Config) RedisTimeout() time.Duration {
	return time.Duration(c.Timeouts.RedisSeconds) * time.Second
}

// VectorSearchTimeout returns the vector search deadline.
func (c *Config) VectorSearchTimeout() time.Duration {
	return time.Duration(c.Timeouts.VectorSearchSeconds) * time.Second
}

// LLMTimeout returns the LLM call deadline.
func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.Timeouts.LLMSeconds) * time.Second
}

// ToolTimeout returns the tool invocation deadline.
func (c *Config) ToolTimeout() time.Duration {
	return time.Duration(c.Timeouts.ToolSeconds) * time.Second
}

// DiagnosticIterationTimeout returns the per-iteration diagnostic deadline.
func (c *Config) DiagnosticIterationTimeout() time.Duration {
	return time.Duration(c.Timeouts.DiagnosticIterationSeconds) * time.Second
}

// LockTTL returns the distributed lock TTL.
func (c *Config) LockTTL() time.Duration {
	return time.Duration(c.Audit.LockTimeoutSeconds) * time.Second
}

// LockCleanupMaxAge returns the expired-lock cleanup threshold.
func (c *Config) LockCleanupMaxAge() time.Duration {
	return time.Duration(c.Audit.LockCleanupMaxAgeSeconds) * time.Second
}

// SessionTTL returns the conversation session idle TTL.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Memory.SessionTTLSeconds) * time.Second
}

// QueryCacheTTL returns the classification cache entry TTL.
func (c *Config) QueryCacheTTL() time.Duration {
	return time.Duration(c.Cache.QueryCacheTTLSeconds) * time.Second
}

// RedisHealthCheckInterval returns the pool health check cadence.
func (c *Config) RedisHealthCheckInterval() time.Duration {
	return time.Duration(c.Storage.RedisHealthCheckInterval) * time.Second
}

// UseMemoryVectorStore reports whether the in-memory vector store
// should be used instead of PostgreSQL.
func (c *Config) UseMemoryVectorStore() bool {
	return c.Storage.DatabaseURL == "" || c.Storage.DatabaseURL == "mem://"
}
