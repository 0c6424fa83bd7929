package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load builds a Config by starting from Default, layering a YAML file (if
// yamlPath is non-empty and exists), then applying environment variable
// overrides. godotenv.Overload is called first so a local .env file takes
// effect without requiring the caller to export variables.
func Load(yamlPath string) (Config, error) {
	_ = godotenv.Overload()

	cfg := Default()

	if yamlPath != "" {
		if data, err := os.ReadFile(yamlPath); err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, err
			}
		} else if !os.IsNotExist(err) {
			return Config{}, err
		}
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("MIN_CHUNK_SIZE")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MinChunkSize = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("MAX_CHUNK_SIZE")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxChunkSize = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("OVERLAP_CAP")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.OverlapCap = f
		}
	}
	if v := strings.TrimSpace(os.Getenv("OCR_CONFIDENCE_THRESHOLD")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.OCRConfidenceThreshold = f
		}
	}
	if v := strings.TrimSpace(os.Getenv("ABORT_ON_INSUFFICIENT_COVERAGE")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.AbortOnInsufficientCoverage = b
		}
	}
	if v := strings.TrimSpace(os.Getenv("SIGNAL_CACHE_TTL_S")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SignalCacheTTL = time.Duration(n) * time.Second
		}
	}
	if v := strings.TrimSpace(os.Getenv("SIGNAL_CACHE_SIZE")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SignalCacheSize = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("SEED")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Seed = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		cfg.LogLevel = v
	}
	if v := strings.TrimSpace(os.Getenv("LOG_PATH")); v != "" {
		cfg.LogPath = v
	}

	if v := strings.TrimSpace(os.Getenv("S3_BUCKET")); v != "" {
		cfg.S3.Bucket = v
	}
	if v := strings.TrimSpace(os.Getenv("S3_PREFIX")); v != "" {
		cfg.S3.Prefix = v
	}
	if v := strings.TrimSpace(os.Getenv("S3_REGION")); v != "" {
		cfg.S3.Region = v
	}
	if v := strings.TrimSpace(os.Getenv("S3_ENDPOINT")); v != "" {
		cfg.S3.Endpoint = v
	}
	if v := strings.TrimSpace(os.Getenv("S3_ACCESS_KEY")); v != "" {
		cfg.S3.AccessKey = v
	}
	if v := strings.TrimSpace(os.Getenv("S3_SECRET_KEY")); v != "" {
		cfg.S3.SecretKey = v
	}
	if v := strings.TrimSpace(os.Getenv("S3_USE_PATH_STYLE")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.S3.UsePathStyle = b
		}
	}

	if v := strings.TrimSpace(os.Getenv("POSTGRES_DSN")); v != "" {
		cfg.Postgres.DSN = v
	}

	if v := strings.TrimSpace(os.Getenv("REDIS_ADDR")); v != "" {
		cfg.Redis.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_PASSWORD")); v != "" {
		cfg.Redis.Password = v
	}

	if v := strings.TrimSpace(os.Getenv("KAFKA_BROKERS")); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := strings.TrimSpace(os.Getenv("KAFKA_TOPIC")); v != "" {
		cfg.Kafka.Topic = v
	}

	if v := strings.TrimSpace(os.Getenv("CLICKHOUSE_ADDR")); v != "" {
		cfg.ClickHouse.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv("CLICKHOUSE_DATABASE")); v != "" {
		cfg.ClickHouse.Database = v
	}
	if v := strings.TrimSpace(os.Getenv("CLICKHOUSE_USERNAME")); v != "" {
		cfg.ClickHouse.Username = v
	}
	if v := strings.TrimSpace(os.Getenv("CLICKHOUSE_PASSWORD")); v != "" {
		cfg.ClickHouse.Password = v
	}

	if v := strings.TrimSpace(os.Getenv("QDRANT_ADDR")); v != "" {
		cfg.Qdrant.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv("QDRANT_COLLECTION")); v != "" {
		cfg.Qdrant.Collection = v
	}

	if v := strings.TrimSpace(os.Getenv("OTEL_ENABLED")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.OTel.Enabled = b
		}
	}
	if v := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")); v != "" {
		cfg.OTel.Endpoint = v
	}
	if v := strings.TrimSpace(os.Getenv("OTEL_SERVICE_NAME")); v != "" {
		cfg.OTel.ServiceName = v
	}

	if v := strings.TrimSpace(os.Getenv("SIGNAL_HTTP_BASE_URL")); v != "" {
		cfg.SignalHTTP.BaseURL = v
	}
}
