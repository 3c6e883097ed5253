package config

import (
	"strings"
	"time"
)

// ApplyDefaults sets default values for any unspecified configuration
// fields. Zero values are replaced with defaults; explicit values are
// preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyStoreDefaults(&cfg.Store)
	applyIngestionDefaults(&cfg.Ingestion)
	applyLocalDefaults(&cfg.Local)
	applyS3Defaults(&cfg.S3)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyStoreDefaults(cfg *StoreConfig) {
	if cfg.ShardWidth == 0 {
		cfg.ShardWidth = 1000
	}
	if cfg.IndexRewriteInterval == 0 {
		cfg.IndexRewriteInterval = 100
	}
	if cfg.WALFsyncInterval == 0 {
		cfg.WALFsyncInterval = 1
	}
	if cfg.CompactionInterval == 0 {
		cfg.CompactionInterval = 10000
	}
	if cfg.CacheCapacity == 0 {
		cfg.CacheCapacity = 5000
	}
	if cfg.LockTimeout == 0 {
		cfg.LockTimeout = 30 * time.Second
	}
}

func applyIngestionDefaults(cfg *IngestionConfig) {
	if cfg.WorkerMin == 0 {
		cfg.WorkerMin = 5
	}
	if cfg.WorkerMax == 0 {
		cfg.WorkerMax = 1000
	}
	if cfg.QueueHighWaterMark == 0 {
		cfg.QueueHighWaterMark = 10000
	}
	if len(cfg.RetryDelays) == 0 {
		cfg.RetryDelays = []int{1, 2, 4, 8}
	}
	if cfg.MaxCreateRetries == 0 {
		cfg.MaxCreateRetries = 1
	}
}

func applyLocalDefaults(cfg *LocalBackendConfig) {
	if cfg.BasePath == "" {
		cfg.BasePath = "/var/lib/docstore/payloads"
	}
}

func applyS3Defaults(cfg *S3BackendConfig) {
	if cfg.MaxParallelUploads == 0 {
		cfg.MaxParallelUploads = 8
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
func GetDefaultConfig() *Config {
	cfg := &Config{
		ObjectBackend: "local",
		Store: StoreConfig{
			Root: "/var/lib/docstore/data",
		},
	}
	ApplyDefaults(cfg)
	return cfg
}
