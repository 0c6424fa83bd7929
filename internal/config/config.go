// Package config loads run configuration from environment variables and an
// optional YAML file, following the recognized options of the external
// interface contract: chunking bounds, OCR acceptance threshold, aggregation
// strictness, signal cache parameters, executor memory caps, and the base
// seed used for deterministic tie-breaking.
package config

import "time"

// ExecutorMemoryCaps holds the per-class argument size ceilings enforced by
// the executor dispatcher before an argument is handed to a method.
type ExecutorMemoryCaps struct {
	EntityBytes       int64 `yaml:"entity_bytes"`
	DAGBytes          int64 `yaml:"dag_bytes"`
	CausalEffectBytes int64 `yaml:"causal_effect_bytes"`
	SemanticBytes     int64 `yaml:"semantic_bytes"`
	FinancialBytes    int64 `yaml:"financial_bytes"`
	GenericBytes      int64 `yaml:"generic_bytes"`
}

// DefaultExecutorMemoryCaps returns the defaults named in the external
// interface contract.
func DefaultExecutorMemoryCaps() ExecutorMemoryCaps {
	const mb = 1 << 20
	return ExecutorMemoryCaps{
		EntityBytes:       1 * mb,
		DAGBytes:          5 * mb,
		CausalEffectBytes: 10 * mb,
		SemanticBytes:     2 * mb,
		FinancialBytes:    2 * mb,
		GenericBytes:      5 * mb,
	}
}

// S3SSEConfig configures server-side encryption for the S3 object store
// backend.
type S3SSEConfig struct {
	Mode     string `yaml:"mode"`
	KMSKeyID string `yaml:"kms_key_id"`
}

// S3Config configures the S3 object store backend used by the content
// store.
type S3Config struct {
	Bucket                string      `yaml:"bucket"`
	Prefix                string      `yaml:"prefix"`
	Region                string      `yaml:"region"`
	Endpoint              string      `yaml:"endpoint"`
	AccessKey             string      `yaml:"access_key"`
	SecretKey             string      `yaml:"secret_key"`
	UsePathStyle          bool        `yaml:"use_path_style"`
	TLSInsecureSkipVerify bool        `yaml:"tls_insecure_skip_verify"`
	SSE                   S3SSEConfig `yaml:"sse"`
}

// PostgresConfig configures the manifest/plan audit store.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// RedisConfig configures the optional distributed signal-pack cache.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// KafkaConfig configures the event bus used to publish run summaries.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// ClickHouseConfig configures the columnar content-stream/provenance-map
// store.
type ClickHouseConfig struct {
	Addr     string `yaml:"addr"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// QdrantConfig configures the optional chunk-embedding sink.
type QdrantConfig struct {
	Addr       string `yaml:"addr"`
	Collection string `yaml:"collection"`
}

// OTelConfig configures tracing/metrics export.
type OTelConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	Insecure    bool   `yaml:"insecure"`
	ServiceName string `yaml:"service_name"`
}

// SignalHTTPConfig configures the optional distributed signal-pack fetch
// interface.
type SignalHTTPConfig struct {
	BaseURL        string        `yaml:"base_url"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxResponse    int64         `yaml:"max_response_bytes"`
	BreakerFailN   int           `yaml:"breaker_fail_n"`
	BreakerOpenFor time.Duration `yaml:"breaker_open_for"`
}

// Config is the full set of recognized run options.
type Config struct {
	MinChunkSize               int    `yaml:"min_chunk_size"`
	MaxChunkSize               int    `yaml:"max_chunk_size"`
	OverlapCap                 float64 `yaml:"overlap_cap"`
	OCRConfidenceThreshold     float64 `yaml:"ocr_confidence_threshold"`
	OCRLayoutTriggerThreshold  float64 `yaml:"ocr_layout_trigger_threshold"`
	OCRDensityTriggerThreshold float64 `yaml:"ocr_density_trigger_threshold"`
	AbortOnInsufficientCoverage bool   `yaml:"abort_on_insufficient_coverage"`
	SignalCacheTTL             time.Duration `yaml:"signal_cache_ttl_s"`
	SignalCacheSize            int    `yaml:"signal_cache_size"`
	ExecutorMemoryCaps         ExecutorMemoryCaps `yaml:"executor_memory_caps"`
	Seed                       int64  `yaml:"seed"`
	LogLevel                   string `yaml:"log_level"`
	LogPath                    string `yaml:"log_path"`

	S3         S3Config         `yaml:"s3"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Redis      RedisConfig      `yaml:"redis"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	Qdrant     QdrantConfig     `yaml:"qdrant"`
	OTel       OTelConfig       `yaml:"otel"`
	SignalHTTP SignalHTTPConfig `yaml:"signal_http"`
}

// Default returns the configuration with every documented default applied.
func Default() Config {
	return Config{
		MinChunkSize:               128,
		MaxChunkSize:               2048,
		OverlapCap:                 0.15,
		OCRConfidenceThreshold:     0.85,
		OCRLayoutTriggerThreshold:  0.70,
		OCRDensityTriggerThreshold: 0.30,
		AbortOnInsufficientCoverage: true,
		SignalCacheTTL:             5 * time.Minute,
		SignalCacheSize:            256,
		ExecutorMemoryCaps:         DefaultExecutorMemoryCaps(),
		Seed:                       0,
		LogLevel:                   "info",
		SignalHTTP: SignalHTTPConfig{
			Timeout:        5 * time.Second,
			MaxResponse:    1_500_000,
			BreakerFailN:   5,
			BreakerOpenFor: 60 * time.Second,
		},
	}
}
