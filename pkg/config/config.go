// Package config loads the engine's runtime settings from a layered
// precedence chain: CLI flags override environment variables, which
// override a .env file, which overrides a YAML config file, which
// overrides hardcoded defaults.
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

// AppName names the per-user config/session directory: "<home>/.<AppName>".
const AppName = "twharvest"

// BearerTokenEnvVar overrides the scraper's built-in default bearer
// token.
const BearerTokenEnvVar = "TWMD_WEB_BEARER_TOKEN"

// Config holds all configuration options for the harvesting engine.
type Config struct {
	Engine    EngineConfig    `yaml:"engine" json:"engine"`
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
	Output    OutputConfig    `yaml:"output" json:"output"`
	Download  DownloadConfig  `yaml:"download" json:"download"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
}

// EngineConfig selects and parameterizes the scraping strategy.
type EngineConfig struct {
	// Name is "graphql" (structured API, the default) or "playwright"
	// (headless browser).
	Name        string `yaml:"name" json:"name"`
	BearerToken string `yaml:"bearer_token" json:"bearer_token"`
}

// RateLimitConfig controls per-request pacing.
type RateLimitConfig struct {
	RequestsPerMinute int     `yaml:"requests_per_minute" json:"requests_per_minute"`
	BurstSize         int     `yaml:"burst_size" json:"burst_size"`
	BackoffMultiplier float64 `yaml:"backoff_multiplier" json:"backoff_multiplier"`
}

// OutputConfig controls the on-disk output layout.
type OutputConfig struct {
	BaseDirectory     string `yaml:"base_directory" json:"base_directory"`
	OverwriteExisting bool   `yaml:"overwrite_existing" json:"overwrite_existing"`
}

// DownloadConfig controls the downloader and batch orchestrator.
type DownloadConfig struct {
	Concurrency       int           `yaml:"concurrency" json:"concurrency"`
	RetryCount        int           `yaml:"retry_count" json:"retry_count"`
	UserRetryCount    int           `yaml:"user_retry_count" json:"user_retry_count"`
	UserDelayMs       int           `yaml:"user_delay_ms" json:"user_delay_ms"`
	PerRequestDelayMs int           `yaml:"per_request_delay_ms" json:"per_request_delay_ms"`
	MaxTweetsPerUser  int           `yaml:"max_tweets_per_user" json:"max_tweets_per_user"`
	DownloadTimeout   time.Duration `yaml:"download_timeout" json:"download_timeout"`
}

// LoggingConfig controls the global logger.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			Name: "graphql",
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 60,
			BurstSize:         10,
			BackoffMultiplier: 2.0,
		},
		Output: OutputConfig{
			BaseDirectory:     "./downloads",
			OverwriteExisting: false,
		},
		Download: DownloadConfig{
			Concurrency:       4,
			RetryCount:        2,
			UserRetryCount:    1,
			UserDelayMs:       0,
			PerRequestDelayMs: 0,
			MaxTweetsPerUser:  0,
			DownloadTimeout:   30 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// LoadFromEnv loads configuration from environment variables.
func (c *Config) LoadFromEnv() error {
	if token := os.Getenv(BearerTokenEnvVar); token != "" {
		c.Engine.BearerToken = token
	}
	if engine := os.Getenv("TWHARVEST_ENGINE"); engine != "" {
		c.Engine.Name = engine
	}
	if rpm := os.Getenv("TWHARVEST_REQUESTS_PER_MINUTE"); rpm != "" {
		var val int
		fmt.Sscanf(rpm, "%d", &val)
		if val > 0 {
			c.RateLimit.RequestsPerMinute = val
		}
	}
	if outputDir := os.Getenv("TWHARVEST_OUTPUT_DIR"); outputDir != "" {
		c.Output.BaseDirectory = outputDir
	}
	if concurrent := os.Getenv("TWHARVEST_CONCURRENCY"); concurrent != "" {
		var val int
		fmt.Sscanf(concurrent, "%d", &val)
		if val > 0 {
			c.Download.Concurrency = val
		}
	}
	if logLevel := os.Getenv("TWHARVEST_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file. An empty path
// triggers a search of standard locations; finding nothing is not an
// error.
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil
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

func (c *Config) findConfigFile() string {
	locations := []string{
		".twharvest.yaml",
		".twharvest.yml",
		filepath.Join(os.Getenv("HOME"), ".config", AppName, "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".config", AppName, "config.yml"),
		filepath.Join(os.Getenv("HOME"), "."+AppName+".yaml"),
		filepath.Join(os.Getenv("HOME"), "."+AppName+".yml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid, joining all field
// errors with errors.Join so the caller sees every problem at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Engine.Name != "graphql" && c.Engine.Name != "playwright" {
		errs = append(errs, errors.New("engine must be \"graphql\" or \"playwright\""))
	}

	if c.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("requests per minute must be positive"))
	}
	if c.RateLimit.BurstSize <= 0 {
		errs = append(errs, errors.New("burst size must be positive"))
	}

	if c.Download.Concurrency <= 0 {
		errs = append(errs, errors.New("concurrency must be positive"))
	}
	if c.Download.RetryCount < 0 {
		errs = append(errs, errors.New("retry count cannot be negative"))
	}
	if c.Download.UserRetryCount < 0 {
		errs = append(errs, errors.New("user retry count cannot be negative"))
	}
	if c.Download.DownloadTimeout <= 0 {
		errs = append(errs, errors.New("download timeout must be positive"))
	}

	if c.Output.BaseDirectory == "" {
		errs = append(errs, errors.New("output directory is required"))
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

// Save saves the configuration to a file.
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

// MergeCommandLineFlags merges command line flags into the
// configuration. Flags win over every other source.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if engine, ok := flags["engine"].(string); ok && engine != "" {
		c.Engine.Name = engine
	}
	if outputDir, ok := flags["out"].(string); ok && outputDir != "" {
		c.Output.BaseDirectory = outputDir
	}
	if concurrency, ok := flags["concurrency"].(int); ok && concurrency > 0 {
		c.Download.Concurrency = concurrency
	}
	if retry, ok := flags["retry"].(int); ok && retry >= 0 {
		c.Download.RetryCount = retry
	}
	if userRetry, ok := flags["user-retry"].(int); ok && userRetry >= 0 {
		c.Download.UserRetryCount = userRetry
	}
	if userDelay, ok := flags["user-delay-ms"].(int); ok && userDelay >= 0 {
		c.Download.UserDelayMs = userDelay
	}
	if reqDelay, ok := flags["request-delay-ms"].(int); ok && reqDelay >= 0 {
		c.Download.PerRequestDelayMs = reqDelay
	}
	if maxTweets, ok := flags["max-tweets"].(int); ok && maxTweets > 0 {
		c.Download.MaxTweetsPerUser = maxTweets
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
}

// Load loads configuration from all sources with proper precedence:
// CLI flags > environment variables > .env file > config file > defaults.
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".env"))
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), "."+AppName+".env"))

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
