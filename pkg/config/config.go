// Package config loads docstore's runtime configuration: CLI flags,
// environment variables (DOCSTORE_*), a YAML file, and finally defaults, in
// that order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the top-level docstore configuration, mirroring the recognized
// options of the record store, the ingestion pipeline, and their shared
// ambient stack.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Store controls the record store's on-disk layout and durability
	// trade-offs.
	Store StoreConfig `mapstructure:"store" yaml:"store"`

	// Ingestion controls the worker pool and retry policy.
	Ingestion IngestionConfig `mapstructure:"ingestion" yaml:"ingestion"`

	// ObjectBackend selects which object storage backend is active: one of
	// "local", "s3_compatible", "hosted".
	ObjectBackend string `mapstructure:"object_backend" validate:"required,oneof=local s3_compatible hosted" yaml:"object_backend"`

	Local   LocalBackendConfig   `mapstructure:"local" yaml:"local,omitempty"`
	S3      S3BackendConfig      `mapstructure:"s3_compatible" yaml:"s3_compatible,omitempty"`
	Hosted  HostedBackendConfig  `mapstructure:"hosted" yaml:"hosted,omitempty"`
	Metrics MetricsConfig        `mapstructure:"metrics" yaml:"metrics"`
}

// LoggingConfig controls logging behavior, mirrored from internal/logger's
// Config field names.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// StoreConfig controls the record store's shard layout and durability
// trade-offs.
type StoreConfig struct {
	// Root is the on-disk directory the store owns.
	Root string `mapstructure:"root" validate:"required" yaml:"root"`

	// ShardWidth is the shard bucket size; changes the shard-coordinate
	// function. Default 1000.
	ShardWidth int64 `mapstructure:"shard_width" validate:"omitempty,gt=0" yaml:"shard_width"`

	// IndexRewriteInterval is the number of mutations between index
	// rewrites (durability/throughput trade-off).
	IndexRewriteInterval int `mapstructure:"index_rewrite_interval" validate:"omitempty,gt=0" yaml:"index_rewrite_interval"`

	// WALFsyncInterval is the number of mutations per fsync (crash window).
	WALFsyncInterval int `mapstructure:"wal_fsync_interval" validate:"omitempty,gt=0" yaml:"wal_fsync_interval"`

	// CompactionInterval is the number of mutations between compactions.
	CompactionInterval int `mapstructure:"compaction_interval" validate:"omitempty,gt=0" yaml:"compaction_interval"`

	// CacheCapacity bounds the decoded-record LRU cache. Default 5000.
	CacheCapacity int `mapstructure:"cache_capacity" validate:"omitempty,gt=0" yaml:"cache_capacity"`

	// LockTimeout bounds how long Open waits to acquire the advisory lock.
	LockTimeout time.Duration `mapstructure:"lock_timeout" yaml:"lock_timeout"`

	// EmbeddingDim optionally pins the embedding dimensionality before the
	// first record is written. Zero means "infer from the first embedding".
	EmbeddingDim int `mapstructure:"embedding_dim" validate:"omitempty,gt=0" yaml:"embedding_dim,omitempty"`
}

// IngestionConfig controls the worker pool sizing and retry policy.
type IngestionConfig struct {
	// WorkerMin, WorkerMax bound the adaptive worker pool. Defaults 5, 1000.
	WorkerMin int `mapstructure:"worker_min" validate:"omitempty,gt=0" yaml:"worker_min"`
	WorkerMax int `mapstructure:"worker_max" validate:"omitempty,gtefield=WorkerMin" yaml:"worker_max"`

	// QueueHighWaterMark bounds the ingestion queue's channel capacity.
	QueueHighWaterMark int `mapstructure:"queue_high_water_mark" validate:"omitempty,gt=0" yaml:"queue_high_water_mark"`

	// RetryDelays is the exponential-backoff delay sequence, in seconds.
	// Default [1, 2, 4, 8].
	RetryDelays []int `mapstructure:"retry_delays" yaml:"retry_delays,omitempty"`

	// MaxCreateRetries bounds the upload processor's id-collision retry.
	MaxCreateRetries int `mapstructure:"max_create_retries" validate:"omitempty,gt=0" yaml:"max_create_retries"`
}

// LocalBackendConfig configures the filesystem object storage backend.
type LocalBackendConfig struct {
	BasePath  string `mapstructure:"base_path" yaml:"base_path"`
	URLPrefix string `mapstructure:"url_prefix" yaml:"url_prefix,omitempty"`
}

// S3BackendConfig configures the S3-compatible object storage backend.
type S3BackendConfig struct {
	Bucket             string `mapstructure:"bucket" yaml:"bucket"`
	KeyPrefix          string `mapstructure:"key_prefix" yaml:"key_prefix,omitempty"`
	Region             string `mapstructure:"region" yaml:"region,omitempty"`
	Endpoint           string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	AccessKeyID        string `mapstructure:"access_key_id" yaml:"access_key_id,omitempty"`
	SecretAccessKey    string `mapstructure:"secret_access_key" yaml:"secret_access_key,omitempty"`
	UsePathStyle       bool   `mapstructure:"use_path_style" yaml:"use_path_style,omitempty"`
	MaxParallelUploads int    `mapstructure:"max_parallel_uploads" yaml:"max_parallel_uploads,omitempty"`
}

// HostedBackendConfig configures the GCS-backed hosted object store.
type HostedBackendConfig struct {
	BucketName       string `mapstructure:"bucket_name" yaml:"bucket_name"`
	KeyPrefix        string `mapstructure:"key_prefix" yaml:"key_prefix,omitempty"`
	SignerEmail      string `mapstructure:"signer_email" yaml:"signer_email,omitempty"`
	SignerPrivateKey string `mapstructure:"signer_private_key" yaml:"signer_private_key,omitempty"`
}

// MetricsConfig configures the Prometheus metrics registry.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest): environment variables
// (DOCSTORE_*), configuration file, default values. Environment variables
// override only keys the configuration file sets; when no file is found,
// the defaults are returned and the environment is not consulted.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}
	if !found {
		cfg := GetDefaultConfig()
		return cfg, nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// SaveConfig saves the configuration to the specified file path in YAML
// format.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("DOCSTORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(getConfigDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

func getConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "docstore")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "docstore")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// Validate runs struct-tag validation over cfg.
func Validate(cfg *Config) error {
	return validator.New().Struct(cfg)
}
