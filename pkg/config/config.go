// Package config loads collector configuration from a YAML file and
// TIMELINE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Sternrassler/timeline-collector/pkg/client"
	"github.com/Sternrassler/timeline-collector/pkg/collector"
	"github.com/Sternrassler/timeline-collector/pkg/logging"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g.
// TIMELINE_CREDENTIALS_CONSUMER_KEY.
const EnvPrefix = "TIMELINE"

var (
	ErrConfigInvalid = errors.New("invalid configuration")
	ErrConfigMissing = errors.New("missing configuration")
)

type Config struct {
	Credentials CredentialsConfig `mapstructure:"credentials"`
	API         APIConfig         `mapstructure:"api"`
	Retry       RetryConfig       `mapstructure:"retry"`
	Quota       QuotaConfig       `mapstructure:"quota"`
	Collection  CollectionConfig  `mapstructure:"collection"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Log         LogConfig         `mapstructure:"log"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
}

// CredentialsConfig holds the OAuth1 user-context credentials.
type CredentialsConfig struct {
	ConsumerKey    string `mapstructure:"consumer_key"`
	ConsumerSecret string `mapstructure:"consumer_secret"`
	AccessToken    string `mapstructure:"access_token"`
	AccessSecret   string `mapstructure:"access_secret"`
}

type APIConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
}

// RetryConfig is the 503 policy.
type RetryConfig struct {
	MaxRetries int           `mapstructure:"max_retries"`
	Backoff    time.Duration `mapstructure:"backoff"`
}

type QuotaConfig struct {
	Margin time.Duration `mapstructure:"margin"`
}

type CollectionConfig struct {
	ProgressEvery int `mapstructure:"progress_every"`
}

// RedisConfig enables the shared quota store when Addr is set.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// MetricsConfig enables the /metrics endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Defaults returns a config with sensible defaults
func Defaults() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:   client.DefaultBaseURL,
			Timeout:   30 * time.Second,
			UserAgent: "timeline-collector/0.1.0",
		},
		Retry: RetryConfig{
			MaxRetries: 10,
			Backoff:    30 * time.Second,
		},
		Quota: QuotaConfig{
			Margin: 10 * time.Second,
		},
		Collection: CollectionConfig{
			ProgressEvery: collector.DefaultProgressEvery,
		},
		Log: LogConfig{
			Level: string(logging.LevelInfo),
		},
	}
}

// Load reads configuration from path and the environment. An empty path
// loads defaults and environment overrides only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Defaults())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// Expand ${VAR} references in string values
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envKey := strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}")
			v.Set(key, os.Getenv(envKey))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override keys that are
// absent from the file.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("credentials.consumer_key", d.Credentials.ConsumerKey)
	v.SetDefault("credentials.consumer_secret", d.Credentials.ConsumerSecret)
	v.SetDefault("credentials.access_token", d.Credentials.AccessToken)
	v.SetDefault("credentials.access_secret", d.Credentials.AccessSecret)
	v.SetDefault("api.base_url", d.API.BaseURL)
	v.SetDefault("api.timeout", d.API.Timeout)
	v.SetDefault("api.user_agent", d.API.UserAgent)
	v.SetDefault("retry.max_retries", d.Retry.MaxRetries)
	v.SetDefault("retry.backoff", d.Retry.Backoff)
	v.SetDefault("quota.margin", d.Quota.Margin)
	v.SetDefault("collection.progress_every", d.Collection.ProgressEvery)
	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.pretty", d.Log.Pretty)
	v.SetDefault("metrics.addr", d.Metrics.Addr)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	creds := []struct{ key, value string }{
		{"credentials.consumer_key", c.Credentials.ConsumerKey},
		{"credentials.consumer_secret", c.Credentials.ConsumerSecret},
		{"credentials.access_token", c.Credentials.AccessToken},
		{"credentials.access_secret", c.Credentials.AccessSecret},
	}
	for _, cred := range creds {
		if cred.value == "" {
			return fmt.Errorf("%w: %s", ErrConfigMissing, cred.key)
		}
	}

	if c.API.BaseURL == "" {
		return fmt.Errorf("%w: api.base_url", ErrConfigMissing)
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("%w: api.timeout must be positive, got %v", ErrConfigInvalid, c.API.Timeout)
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("%w: retry.max_retries cannot be negative, got %d", ErrConfigInvalid, c.Retry.MaxRetries)
	}
	if c.Retry.Backoff < 0 {
		return fmt.Errorf("%w: retry.backoff cannot be negative, got %v", ErrConfigInvalid, c.Retry.Backoff)
	}
	if c.Quota.Margin < 0 {
		return fmt.Errorf("%w: quota.margin cannot be negative, got %v", ErrConfigInvalid, c.Quota.Margin)
	}
	if c.Collection.ProgressEvery < 0 {
		return fmt.Errorf("%w: collection.progress_every cannot be negative, got %d", ErrConfigInvalid, c.Collection.ProgressEvery)
	}
	if !logging.ValidLevel(c.Log.Level) {
		return fmt.Errorf("%w: unknown log.level %q", ErrConfigInvalid, c.Log.Level)
	}

	return nil
}

// ClientConfig returns the session configuration.
func (c *Config) ClientConfig() client.Config {
	cfg := client.DefaultConfig(client.Credentials{
		ConsumerKey:    c.Credentials.ConsumerKey,
		ConsumerSecret: c.Credentials.ConsumerSecret,
		AccessToken:    c.Credentials.AccessToken,
		AccessSecret:   c.Credentials.AccessSecret,
	})
	cfg.Timeout = c.API.Timeout
	cfg.UserAgent = c.API.UserAgent
	return cfg
}

// LoggingConfig returns the logger configuration writing to stderr.
func (c *Config) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(c.Log.Level)
	cfg.Pretty = c.Log.Pretty
	return cfg
}

// CollectorConfig returns the collector configuration without a quota store.
func (c *Config) CollectorConfig() collector.Config {
	cfg := collector.DefaultConfig()
	cfg.BaseURL = c.API.BaseURL
	cfg.Retry.MaxRetries = c.Retry.MaxRetries
	cfg.Retry.Backoff = c.Retry.Backoff
	cfg.Margin = c.Quota.Margin
	cfg.ProgressEvery = c.Collection.ProgressEvery
	return cfg
}
