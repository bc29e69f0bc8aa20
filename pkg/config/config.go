package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the X media fetcher
type Config struct {
	// Auth token used for extractor invocations
	Auth AuthConfig `yaml:"auth" json:"auth"`

	// Fetch loop settings
	Fetch FetchConfig `yaml:"fetch" json:"fetch"`

	// Batch (multi-account) scheduler settings
	Batch BatchConfig `yaml:"batch" json:"batch"`

	// Rate limiting and retry configuration
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Local archive database
	Archive ArchiveConfig `yaml:"archive" json:"archive"`

	// Metrics endpoint
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// AuthConfig holds the X credential used by the extractor
type AuthConfig struct {
	Token   string `yaml:"token" json:"token"`
	Profile string `yaml:"profile" json:"profile"`
}

// FetchConfig holds single-session fetch settings
type FetchConfig struct {
	// BatchSize is items requested per extractor call; 0 asks for
	// everything in one call.
	BatchSize int `yaml:"batch_size" json:"batch_size"`
	// Timeout is the wall-clock budget for one session.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	// MaxEmptyBatches bounds consecutive zero-new-item batches that
	// still report more data before the session fails.
	MaxEmptyBatches int    `yaml:"max_empty_batches" json:"max_empty_batches"`
	MediaType       string `yaml:"media_type" json:"media_type"` // all, image, video, gif, text
	TimelineKind    string `yaml:"timeline_kind" json:"timeline_kind"`
	IncludeRetweets bool   `yaml:"include_retweets" json:"include_retweets"`
}

// BatchConfig holds multi-account scheduler settings
type BatchConfig struct {
	// AccountTimeout is the per-account wall-clock budget.
	AccountTimeout time.Duration `yaml:"account_timeout" json:"account_timeout"`
	// TickInterval drives elapsed/remaining recomputation for all tasks.
	TickInterval time.Duration `yaml:"tick_interval" json:"tick_interval"`
}

// RateLimitConfig holds rate limiting and retry configuration
type RateLimitConfig struct {
	RequestsPerMinute int           `yaml:"requests_per_minute" json:"requests_per_minute"`
	MaxRetries        int           `yaml:"max_retries" json:"max_retries"`
	RetryDelay        time.Duration `yaml:"retry_delay" json:"retry_delay"`
}

// ArchiveConfig holds the local snapshot database settings
type ArchiveConfig struct {
	Path string `yaml:"path" json:"path"`
}

// MetricsConfig holds the optional Prometheus listener settings
type MetricsConfig struct {
	Addr string `yaml:"addr" json:"addr"` // empty disables the listener
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Fetch: FetchConfig{
			BatchSize:       200,
			Timeout:         10 * time.Minute,
			MaxEmptyBatches: 3,
			MediaType:       "all",
			TimelineKind:    "media",
			IncludeRetweets: false,
		},
		Batch: BatchConfig{
			AccountTimeout: 5 * time.Minute,
			TickInterval:   time.Second,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 30,
			MaxRetries:        3,
			RetryDelay:        5 * time.Second,
		},
		Archive: ArchiveConfig{
			Path: "", // resolved to the data directory when empty
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	if token := os.Getenv("XSCRAPER_AUTH_TOKEN"); token != "" {
		c.Auth.Token = token
	}
	if profile := os.Getenv("XSCRAPER_AUTH_PROFILE"); profile != "" {
		c.Auth.Profile = profile
	}
	if rpm := os.Getenv("XSCRAPER_REQUESTS_PER_MINUTE"); rpm != "" {
		var val int
		fmt.Sscanf(rpm, "%d", &val)
		if val > 0 {
			c.RateLimit.RequestsPerMinute = val
		}
	}
	if batch := os.Getenv("XSCRAPER_BATCH_SIZE"); batch != "" {
		var val int
		if _, err := fmt.Sscanf(batch, "%d", &val); err == nil && val >= 0 {
			c.Fetch.BatchSize = val
		}
	}
	if timeout := os.Getenv("XSCRAPER_FETCH_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil && d > 0 {
			c.Fetch.Timeout = d
		}
	}
	if dbPath := os.Getenv("XSCRAPER_ARCHIVE_PATH"); dbPath != "" {
		c.Archive.Path = dbPath
	}
	if addr := os.Getenv("XSCRAPER_METRICS_ADDR"); addr != "" {
		c.Metrics.Addr = addr
	}
	if logLevel := os.Getenv("XSCRAPER_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	locations := []string{
		".xscraper.yaml",
		".xscraper.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "xscraper", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".config", "xscraper", "config.yml"),
		filepath.Join(os.Getenv("HOME"), ".xscraper.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Fetch.BatchSize < 0 {
		errs = append(errs, errors.New("batch size cannot be negative"))
	}
	if c.Fetch.Timeout <= 0 {
		errs = append(errs, errors.New("fetch timeout must be positive"))
	}
	if c.Fetch.MaxEmptyBatches <= 0 {
		errs = append(errs, errors.New("max empty batches must be positive"))
	}

	validMediaTypes := map[string]bool{
		"all": true, "image": true, "video": true, "gif": true, "text": true,
	}
	if !validMediaTypes[strings.ToLower(c.Fetch.MediaType)] {
		errs = append(errs, errors.New("invalid media type"))
	}

	validKinds := map[string]bool{
		"media": true, "timeline": true, "tweets": true,
		"with_replies": true, "likes": true, "bookmarks": true,
	}
	if !validKinds[strings.ToLower(c.Fetch.TimelineKind)] {
		errs = append(errs, errors.New("invalid timeline kind"))
	}

	if c.Batch.AccountTimeout <= 0 {
		errs = append(errs, errors.New("account timeout must be positive"))
	}
	if c.Batch.TickInterval <= 0 {
		errs = append(errs, errors.New("tick interval must be positive"))
	}

	if c.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("requests per minute must be positive"))
	}
	if c.RateLimit.MaxRetries < 0 {
		errs = append(errs, errors.New("max retries cannot be negative"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if token, ok := flags["auth-token"].(string); ok && token != "" {
		c.Auth.Token = token
	}
	if batchSize, ok := flags["batch-size"].(int); ok && batchSize >= 0 {
		c.Fetch.BatchSize = batchSize
	}
	if timeout, ok := flags["timeout"].(time.Duration); ok && timeout > 0 {
		c.Fetch.Timeout = timeout
	}
	if mediaType, ok := flags["media-type"].(string); ok && mediaType != "" {
		c.Fetch.MediaType = mediaType
	}
	if kind, ok := flags["timeline-kind"].(string); ok && kind != "" {
		c.Fetch.TimelineKind = kind
	}
	if retweets, ok := flags["retweets"].(bool); ok {
		c.Fetch.IncludeRetweets = retweets
	}
	if rpm, ok := flags["requests-per-minute"].(int); ok && rpm > 0 {
		c.RateLimit.RequestsPerMinute = rpm
	}
	if accountTimeout, ok := flags["account-timeout"].(time.Duration); ok && accountTimeout > 0 {
		c.Batch.AccountTimeout = accountTimeout
	}
	if dbPath, ok := flags["archive-path"].(string); ok && dbPath != "" {
		c.Archive.Path = dbPath
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".xscraper.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
