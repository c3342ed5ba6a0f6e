package config

import (
	"encoding/json"
	"os"
	"strconv"
	"time"
)

// CacheConfig holds the offline cache settings. Version names the active
// cache namespace; bumping it on redeploy is what triggers the wholesale
// invalidation of previous generations at activate time.
type CacheConfig struct {
	Version      string `json:"version"`
	ManifestPath string `json:"manifest_path"`
}

// RedisConfig holds Redis connection settings. When Addr is empty the
// daemon runs with the in-memory cache store only.
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// EdgeConfig holds the edge gateway settings.
type EdgeConfig struct {
	ListenAddr string `json:"listen_addr"`
	OriginURL  string `json:"origin_url"`
	APIPrefix  string `json:"api_prefix"`
}

// RealtimeConfig holds the realtime delivery client settings.
type RealtimeConfig struct {
	Enabled              bool          `json:"enabled"`
	Endpoint             string        `json:"endpoint"`
	Token                string        `json:"token"`
	TokenFile            string        `json:"token_file"`
	MaxReconnectAttempts int           `json:"max_reconnect_attempts"`
	BackoffBase          time.Duration `json:"backoff_base"`
}

// TracingConfig holds OpenTelemetry tracing settings.
type TracingConfig struct {
	Enabled     bool    `json:"enabled"`
	Exporter    string  `json:"exporter"`
	Endpoint    string  `json:"endpoint"`
	ServiceName string  `json:"service_name"`
	SampleRate  float64 `json:"sample_rate"`
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Enabled   bool   `json:"enabled"`
	Namespace string `json:"namespace"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Format string `json:"format"`
	Level  string `json:"level"`
}

// Config is the central configuration struct embedding all component configs.
type Config struct {
	Cache    CacheConfig    `json:"cache"`
	Redis    RedisConfig    `json:"redis"`
	Edge     EdgeConfig     `json:"edge"`
	Realtime RealtimeConfig `json:"realtime"`
	Tracing  TracingConfig  `json:"tracing"`
	Metrics  MetricsConfig  `json:"metrics"`
	Logging  LoggingConfig  `json:"logging"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Cache: CacheConfig{
			Version: "app-cache-v1",
		},
		Edge: EdgeConfig{
			ListenAddr: ":8090",
			APIPrefix:  "/api/",
		},
		Realtime: RealtimeConfig{
			MaxReconnectAttempts: 5,
			BackoffBase:          time.Second,
		},
		Tracing: TracingConfig{
			Exporter:    "otlp-http",
			Endpoint:    "localhost:4318",
			ServiceName: "pulsar",
			SampleRate:  1.0,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "pulsar",
		},
		Logging: LoggingConfig{
			Format: "text",
			Level:  "info",
		},
	}
}

// LoadFromFile loads configuration from a JSON file on top of the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromEnv applies environment variable overrides to the config.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("PULSAR_CACHE_VERSION"); v != "" {
		cfg.Cache.Version = v
	}
	if v := os.Getenv("PULSAR_MANIFEST_PATH"); v != "" {
		cfg.Cache.ManifestPath = v
	}
	if v := os.Getenv("PULSAR_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("PULSAR_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("PULSAR_LISTEN_ADDR"); v != "" {
		cfg.Edge.ListenAddr = v
	}
	if v := os.Getenv("PULSAR_ORIGIN_URL"); v != "" {
		cfg.Edge.OriginURL = v
	}
	if v := os.Getenv("PULSAR_API_PREFIX"); v != "" {
		cfg.Edge.APIPrefix = v
	}
	if v := os.Getenv("PULSAR_REALTIME_ENDPOINT"); v != "" {
		cfg.Realtime.Endpoint = v
		cfg.Realtime.Enabled = true
	}
	if v := os.Getenv("PULSAR_REALTIME_TOKEN"); v != "" {
		cfg.Realtime.Token = v
	}
	if v := os.Getenv("PULSAR_REALTIME_TOKEN_FILE"); v != "" {
		cfg.Realtime.TokenFile = v
	}
	if v := os.Getenv("PULSAR_REALTIME_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Realtime.MaxReconnectAttempts = n
		}
	}
	if v := os.Getenv("PULSAR_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PULSAR_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("PULSAR_TRACING_ENDPOINT"); v != "" {
		cfg.Tracing.Endpoint = v
		cfg.Tracing.Enabled = true
	}
}
