// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Ingest  IngestConfig  `mapstructure:"ingest"`
	Source  SourceConfig  `mapstructure:"source"`
	Proxy   ProxyConfig   `mapstructure:"proxy"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Media   MediaConfig   `mapstructure:"media"`
	Storage StorageConfig `mapstructure:"storage"`
	DB      DBConfig      `mapstructure:"db"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// IngestConfig governs worker pool and queue-level retry behavior.
type IngestConfig struct {
	Concurrency         int `mapstructure:"concurrency"`
	QueueDepth          int `mapstructure:"queue_depth"`
	TaskMaxAttempts     int `mapstructure:"task_max_attempts"`
	TaskBackoffSeconds  int `mapstructure:"task_backoff_seconds"`
	ProfilePostsDefault int `mapstructure:"profile_posts_default"`
}

// SourceConfig identifies the upstream profile API.
type SourceConfig struct {
	BaseURL string `mapstructure:"base_url"`
	AppID   string `mapstructure:"app_id"`
}

// ProxyConfig holds the outbound proxy credential. All source traffic is
// routed through it when Endpoint is set.
type ProxyConfig struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Endpoint string `mapstructure:"endpoint"`
}

// URL assembles the proxy URL, or "" when no endpoint is configured.
func (p ProxyConfig) URL() string {
	if p.Endpoint == "" {
		return ""
	}
	if p.Username == "" {
		return fmt.Sprintf("http://%s", p.Endpoint)
	}
	return fmt.Sprintf("http://%s:%s@%s", p.Username, p.Password, p.Endpoint)
}

// HTTPConfig configures fetch client retry behavior.
type HTTPConfig struct {
	TimeoutSeconds       int     `mapstructure:"timeout_seconds"`
	MaxRetries           int     `mapstructure:"max_retries"`
	BackoffBaseMs        int     `mapstructure:"backoff_base_ms"`
	RateLimitPerSecond   float64 `mapstructure:"rate_limit_per_second"`
	RateLimitBurst       int     `mapstructure:"rate_limit_burst"`
	StreamTimeoutSeconds int     `mapstructure:"stream_timeout_seconds"`
}

// MediaConfig sets the staging directory and key prefix for media blobs.
type MediaConfig struct {
	StagingDir string `mapstructure:"staging_dir"`
	KeyPrefix  string `mapstructure:"key_prefix"`
}

// StorageConfig selects and parameterizes the blob store backend.
type StorageConfig struct {
	Provider  string `mapstructure:"provider"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	S3Bucket  string `mapstructure:"s3_bucket"`
	S3Region  string `mapstructure:"s3_region"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// PubSubConfig holds metadata for completion event notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("INGEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("ingest.concurrency", 4)
	v.SetDefault("ingest.queue_depth", 64)
	v.SetDefault("ingest.task_max_attempts", 3)
	v.SetDefault("ingest.task_backoff_seconds", 60)
	v.SetDefault("ingest.profile_posts_default", 20)
	v.SetDefault("source.base_url", "https://www.instagram.com")
	v.SetDefault("source.app_id", "936619743392459")
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.max_retries", 20)
	v.SetDefault("http.backoff_base_ms", 1000)
	v.SetDefault("http.rate_limit_per_second", 1)
	v.SetDefault("http.rate_limit_burst", 2)
	v.SetDefault("http.stream_timeout_seconds", 300)
	v.SetDefault("media.staging_dir", "media")
	v.SetDefault("media.key_prefix", "media")
	v.SetDefault("storage.provider", "memory")
	v.SetDefault("storage.s3_region", "us-east-1")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Ingest.Concurrency <= 0 {
		return fmt.Errorf("ingest.concurrency must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxRetries <= 0 {
		return fmt.Errorf("http.max_retries must be > 0")
	}
	switch c.Storage.Provider {
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set when provider is gcs")
		}
	case "s3":
		if c.Storage.S3Bucket == "" {
			return fmt.Errorf("storage.s3_bucket must be set when provider is s3")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown storage provider %q", c.Storage.Provider)
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// FetchTimeout converts the HTTP timeout config into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// StreamTimeout is the long per-call timeout used for media downloads.
func (c Config) StreamTimeout() time.Duration {
	return time.Duration(c.HTTP.StreamTimeoutSeconds) * time.Second
}

// TaskBackoff is the fixed delay between queue-level retries.
func (c Config) TaskBackoff() time.Duration {
	return time.Duration(c.Ingest.TaskBackoffSeconds) * time.Second
}
