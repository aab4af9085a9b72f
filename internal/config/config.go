package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Mailing   MailingConfig   `yaml:"mailing"`
	Postmark  PostmarkConfig  `yaml:"postmark"`
	Mailgun   MailgunConfig   `yaml:"mailgun"`
	SparkPost SparkPostConfig `yaml:"sparkpost"`
	SES       SESConfig       `yaml:"ses"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Archive   ArchiveConfig   `yaml:"archive"`
}

// ServerConfig holds HTTP server configuration for the admin API
type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// LogConfig controls the structured logger
type LogConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// MailingConfig holds outbound sending configuration
type MailingConfig struct {
	// Provider selects the adapter used for sending ("postmark", "mailgun", "sparkpost", "ses").
	Provider string `yaml:"provider"`
	// TagPrefix is the product prefix of the correlation tag "<prefix>|<message-id>".
	TagPrefix string `yaml:"tag_prefix"`
}

// PostmarkConfig holds Postmark API configuration
type PostmarkConfig struct {
	APIToken       string `yaml:"api_token"`
	StreamID       string `yaml:"stream_id"`
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Enabled        bool   `yaml:"enabled"`
}

// Timeout returns the configured timeout as a duration
func (c PostmarkConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// MailgunConfig holds Mailgun API configuration
type MailgunConfig struct {
	APIKey         string `yaml:"api_key"`
	Domain         string `yaml:"domain"`
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Enabled        bool   `yaml:"enabled"`
}

// Timeout returns the configured timeout as a duration
func (c MailgunConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SparkPostConfig holds SparkPost API configuration
type SparkPostConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Enabled        bool   `yaml:"enabled"`
}

// Timeout returns the configured timeout as a duration
func (c SparkPostConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SESConfig holds AWS SES API configuration
type SESConfig struct {
	Region           string `yaml:"region"`
	AccessKey        string `yaml:"access_key"`
	SecretKey        string `yaml:"secret_key"`
	ConfigurationSet string `yaml:"configuration_set"`
	TimeoutSeconds   int    `yaml:"timeout_seconds"`
	Enabled          bool   `yaml:"enabled"`
}

// Timeout returns the configured timeout as a duration
func (c SESConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// AnalyticsConfig holds the event polling configuration
type AnalyticsConfig struct {
	IntervalSeconds       int `yaml:"interval_seconds"`
	TrustThresholdMinutes int `yaml:"trust_threshold_minutes"`
	InitialLookbackHours  int `yaml:"initial_lookback_hours"`
	MaxEvents             int `yaml:"max_events"`
	LockTTLMinutes        int `yaml:"lock_ttl_minutes"`
}

// Interval returns the polling interval as a duration
func (c AnalyticsConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// TrustThreshold returns the re-fetch overlap window as a duration
func (c AnalyticsConfig) TrustThreshold() time.Duration {
	return time.Duration(c.TrustThresholdMinutes) * time.Minute
}

// LockTTL returns how long a provider's poll lock is held before it expires
func (c AnalyticsConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLMinutes) * time.Minute
}

// InitialLookback returns how far back the first cycle of a provider reaches
func (c AnalyticsConfig) InitialLookback() time.Duration {
	return time.Duration(c.InitialLookbackHours) * time.Hour
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// RedisConfig holds Redis connection settings for cursors and locks
type RedisConfig struct {
	URL string `yaml:"url"`
}

// ArchiveConfig selects where raw analytics pages and cycle history go.
// Blank fields disable the corresponding destination.
type ArchiveConfig struct {
	Dir         string `yaml:"dir"`
	S3Bucket    string `yaml:"s3_bucket"`
	S3Prefix    string `yaml:"s3_prefix"`
	DynamoTable string `yaml:"dynamo_table"`
	Region      string `yaml:"region"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Mailing.TagPrefix == "" {
		cfg.Mailing.TagPrefix = "bulkmail"
	}
	cfg.Mailing.Provider = strings.ToLower(strings.TrimSpace(cfg.Mailing.Provider))

	if cfg.Postmark.BaseURL == "" {
		cfg.Postmark.BaseURL = "https://api.postmarkapp.com"
	}
	if cfg.Postmark.TimeoutSeconds == 0 {
		cfg.Postmark.TimeoutSeconds = 30
	}
	if cfg.Mailgun.BaseURL == "" {
		cfg.Mailgun.BaseURL = "https://api.mailgun.net"
	}
	if cfg.Mailgun.TimeoutSeconds == 0 {
		cfg.Mailgun.TimeoutSeconds = 30
	}
	if cfg.SparkPost.BaseURL == "" {
		cfg.SparkPost.BaseURL = "https://api.sparkpost.com/api/v1"
	}
	if cfg.SparkPost.TimeoutSeconds == 0 {
		cfg.SparkPost.TimeoutSeconds = 30
	}
	if cfg.SES.TimeoutSeconds == 0 {
		cfg.SES.TimeoutSeconds = 30
	}

	if cfg.Analytics.IntervalSeconds == 0 {
		cfg.Analytics.IntervalSeconds = 300
	}
	if cfg.Analytics.TrustThresholdMinutes == 0 {
		cfg.Analytics.TrustThresholdMinutes = 30
	}
	if cfg.Analytics.InitialLookbackHours == 0 {
		cfg.Analytics.InitialLookbackHours = 24
	}
	if cfg.Analytics.MaxEvents == 0 {
		cfg.Analytics.MaxEvents = 300
	}
	if cfg.Analytics.LockTTLMinutes == 0 {
		cfg.Analytics.LockTTLMinutes = 10
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	overrides := []struct {
		env string
		dst *string
	}{
		{"POSTMARK_API_TOKEN", &cfg.Postmark.APIToken},
		{"POSTMARK_STREAM_ID", &cfg.Postmark.StreamID},
		{"MAILGUN_API_KEY", &cfg.Mailgun.APIKey},
		{"MAILGUN_DOMAIN", &cfg.Mailgun.Domain},
		{"MAILGUN_BASE_URL", &cfg.Mailgun.BaseURL},
		{"SPARKPOST_API_KEY", &cfg.SparkPost.APIKey},
		{"SPARKPOST_BASE_URL", &cfg.SparkPost.BaseURL},
		{"AWS_SES_ACCESS_KEY", &cfg.SES.AccessKey},
		{"AWS_SES_SECRET_KEY", &cfg.SES.SecretKey},
		{"AWS_SES_REGION", &cfg.SES.Region},
		{"DATABASE_URL", &cfg.Database.URL},
		{"REDIS_URL", &cfg.Redis.URL},
		{"MAIL_PROVIDER", &cfg.Mailing.Provider},
		{"LOG_LEVEL", &cfg.Log.Level},
		{"ARCHIVE_DIR", &cfg.Archive.Dir},
		{"ARCHIVE_S3_BUCKET", &cfg.Archive.S3Bucket},
		{"ARCHIVE_DYNAMO_TABLE", &cfg.Archive.DynamoTable},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.dst = v
		}
	}
	cfg.Mailing.Provider = strings.ToLower(strings.TrimSpace(cfg.Mailing.Provider))

	return cfg, nil
}
