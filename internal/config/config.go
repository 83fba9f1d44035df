// Package config assembles the memory engine's configuration surface
// (spec §6): HNSW, cache, batch, promotion, and circuit-breaker
// settings, with YAML load/save and named profiles.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cortexmem/cortex/internal/types"
)

// HNSWConfig tunes the per-layer approximate nearest-neighbour graphs.
type HNSWConfig struct {
	Dimension      int `yaml:"dimension"`
	MaxConnections int `yaml:"max_connections"`
	EFConstruction int `yaml:"ef_construction"`
	EFSearch       int `yaml:"ef_search"`
	MaxElements    int `yaml:"max_elements"`
}

// CacheConfig tunes the Embedding Cache.
type CacheConfig struct {
	MaxSizeMB  int    `yaml:"max_size_mb"`
	TTLSeconds int    `yaml:"ttl_seconds"` // 0 = no expiry
	CachePath  string `yaml:"cache_path"`  // empty disables persistence
}

// BatchConfig tunes the adaptive Batch Processor.
type BatchConfig struct {
	MinBatchSize   int  `yaml:"min_batch_size"`
	MaxBatchSize   int  `yaml:"max_batch_size"`
	WorkerThreads  int  `yaml:"worker_threads"`
	QueueCapacity  int  `yaml:"queue_capacity"`
	BatchTimeoutUS int  `yaml:"batch_timeout_us"`
	Adaptive       bool `yaml:"adaptive"`
	Prefetch       bool `yaml:"prefetch"`
	AlignedMemory  bool `yaml:"aligned_memory"`
}

// PromotionLayerConfig holds per-layer promotion thresholds.
type PromotionLayerConfig struct {
	MinAccessCount     int           `yaml:"min_access_count"`
	MinConfidenceScore float64       `yaml:"min_confidence_score"`
	MaxAgeHours        float64       `yaml:"max_age_hours"`
	MinResidence       time.Duration `yaml:"min_residence"` // 0 = no residence floor

	// Keywords is the vocabulary KeywordDensity scores a record's
	// payload against (spec §4.7 per-layer special conditions).
	Keywords          []string `yaml:"keywords"`
	RequiredKeywords  []string `yaml:"required_keywords"`  // payload must contain at least one
	BlacklistKeywords []string `yaml:"blacklist_keywords"` // payload must contain none
}

// PromotionConfig tunes the Promotion Engine.
type PromotionConfig struct {
	Algorithm             string                          `yaml:"algorithm"` // frequency|semantic|hybrid
	PromotionThreshold    float64                         `yaml:"promotion_threshold"`
	PerLayer              map[string]PromotionLayerConfig `yaml:"per_layer"`
	TrainingIntervalHours float64                         `yaml:"training_interval_hours"`
	StrictValidation      bool                            `yaml:"strict_validation"`
	TickInterval          time.Duration                   `yaml:"tick_interval"`
	MaxRecordsPerRun      int                             `yaml:"max_records_per_run"`
	HybridFrequencyWeight float64                         `yaml:"hybrid_frequency_weight"`
	HybridSemanticWeight  float64                         `yaml:"hybrid_semantic_weight"`
}

// Config is the full configuration surface of the memory engine.
type Config struct {
	Profile  string                          `yaml:"profile"`
	DataDir  string                          `yaml:"data_dir"`
	HNSW     HNSWConfig                      `yaml:"hnsw"`
	Cache    CacheConfig                     `yaml:"cache"`
	Batch    BatchConfig                     `yaml:"batch"`
	Promotion PromotionConfig                `yaml:"promotion"`
	CircuitBreaker types.CircuitBreakerConfig `yaml:"circuit_breaker"`
	RequestDeadline time.Duration            `yaml:"request_deadline"`
}

// DefaultConfig returns the "prod" profile: strict limits, large
// capacity, conservative circuit breaker.
func DefaultConfig() *Config {
	return &Config{
		Profile: "prod",
		DataDir: "./data",
		HNSW: HNSWConfig{
			Dimension:      1024,
			MaxConnections: 16,
			EFConstruction: 200,
			EFSearch:       64,
			MaxElements:    1_000_000,
		},
		Cache: CacheConfig{
			MaxSizeMB:  256,
			TTLSeconds: 3600,
			CachePath:  "",
		},
		Batch: BatchConfig{
			MinBatchSize:   1,
			MaxBatchSize:   64,
			WorkerThreads:  4,
			QueueCapacity:  4096,
			BatchTimeoutUS: 50,
			Adaptive:       true,
			Prefetch:       true,
			AlignedMemory:  true,
		},
		Promotion: PromotionConfig{
			Algorithm:          "hybrid",
			PromotionThreshold: 0.7,
			PerLayer: map[string]PromotionLayerConfig{
				"interact": {MinAccessCount: 3, MinConfidenceScore: 0.7, MaxAgeHours: 24 * 30, MinResidence: time.Minute},
				"insights": {MinAccessCount: 5, MinConfidenceScore: 0.8, MaxAgeHours: 24 * 365, MinResidence: time.Minute},
			},
			TrainingIntervalHours: 24,
			StrictValidation:      true,
			TickInterval:          5 * time.Minute,
			MaxRecordsPerRun:      1000,
			HybridFrequencyWeight: 0.75,
			HybridSemanticWeight:  0.25,
		},
		CircuitBreaker: types.CircuitBreakerConfig{
			FailureThreshold:    5,
			RecoveryTimeout:     30 * time.Second,
			MinRequestThreshold: 10,
			ErrorRateThreshold:  0.5,
		},
		RequestDeadline: 5 * time.Second,
	}
}

// DevProfile is permissive with small limits, suited to local work.
func DevProfile() *Config {
	c := DefaultConfig()
	c.Profile = "dev"
	c.HNSW.MaxElements = 10_000
	c.Batch.WorkerThreads = 2
	c.Batch.QueueCapacity = 256
	c.CircuitBreaker.FailureThreshold = 10
	c.CircuitBreaker.MinRequestThreshold = 20
	return c
}

// MinimalProfile is sized for tests: tiny limits, fast timeouts.
func MinimalProfile() *Config {
	c := DefaultConfig()
	c.Profile = "minimal"
	c.HNSW.Dimension = 8
	c.HNSW.MaxElements = 1000
	c.HNSW.MaxConnections = 8
	c.HNSW.EFConstruction = 32
	c.HNSW.EFSearch = 16
	c.Cache.MaxSizeMB = 1
	c.Cache.TTLSeconds = 0
	c.Batch.MaxBatchSize = 8
	c.Batch.WorkerThreads = 1
	c.Batch.QueueCapacity = 32
	c.Promotion.TickInterval = time.Second
	for name, lc := range c.Promotion.PerLayer {
		lc.MinResidence = 0
		c.Promotion.PerLayer[name] = lc
	}
	c.CircuitBreaker.FailureThreshold = 3
	c.CircuitBreaker.MinRequestThreshold = 3
	c.CircuitBreaker.RecoveryTimeout = 100 * time.Millisecond
	c.RequestDeadline = time.Second
	return c
}

// Load reads and parses a YAML config file, starting from defaults so
// unset fields keep sane values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	c := DefaultConfig()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Save writes c as YAML to path.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// Validate rejects impossible configurations eagerly, supplementing
// spec.md with the original implementation's config-validation pass
// (see DESIGN.md).
func (c *Config) Validate() error {
	if c.HNSW.Dimension <= 0 {
		return fmt.Errorf("config: hnsw.dimension must be positive")
	}
	if c.HNSW.EFSearch < 1 {
		return fmt.Errorf("config: hnsw.ef_search must be >= 1")
	}
	if c.HNSW.MaxConnections < 2 {
		return fmt.Errorf("config: hnsw.max_connections must be >= 2")
	}
	if c.Batch.MinBatchSize < 1 || c.Batch.MaxBatchSize < c.Batch.MinBatchSize {
		return fmt.Errorf("config: batch.max_batch_size must be >= min_batch_size >= 1")
	}
	if c.Batch.WorkerThreads < 1 {
		return fmt.Errorf("config: batch.worker_threads must be >= 1")
	}
	if c.Cache.MaxSizeMB <= 0 && c.Cache.CachePath != "" {
		return fmt.Errorf("config: cache.max_size_mb must be positive when cache_path is set")
	}
	switch c.Promotion.Algorithm {
	case "frequency", "semantic", "hybrid":
	default:
		return fmt.Errorf("config: promotion.algorithm must be frequency|semantic|hybrid, got %q", c.Promotion.Algorithm)
	}
	if c.CircuitBreaker.FailureThreshold < 1 {
		return fmt.Errorf("config: circuit_breaker.failure_threshold must be >= 1")
	}
	if c.CircuitBreaker.ErrorRateThreshold <= 0 || c.CircuitBreaker.ErrorRateThreshold > 1 {
		return fmt.Errorf("config: circuit_breaker.error_rate_threshold must be in (0,1]")
	}
	return nil
}
