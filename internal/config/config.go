// Package config loads the salesdash configuration from a YAML file, an optional .env file
// and SALESDASH_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SALESDASH_"

// Config is the root configuration.
type Config struct {
	Host      string          `yaml:"host"`
	Port      int             `yaml:"port"`
	Dataset   string          `yaml:"dataset"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Logging   LoggingConfig   `yaml:"logging"`
	S3        S3Config        `yaml:"s3"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Watch     WatchConfig     `yaml:"watch"`
}

// DashboardConfig controls the HTTP API surface.
type DashboardConfig struct {
	AllowRemote    bool  `yaml:"allow-remote"`
	MaxConnections int   `yaml:"max-connections"`
	MaxUploadBytes int64 `yaml:"max-upload-bytes"`
	OpenBrowser    bool  `yaml:"open-browser"`
}

// LoggingConfig controls the logrus setup.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max-size-mb"`
	MaxBackups int    `yaml:"max-backups"`
	MaxAgeDays int    `yaml:"max-age-days"`
}

// S3Config holds credentials for s3:// dataset sources.
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access-key"`
	SecretKey string `yaml:"secret-key"`
	UseSSL    bool   `yaml:"use-ssl"`
}

// PostgresConfig controls postgres:// dataset sources.
type PostgresConfig struct {
	ConnectTimeout string `yaml:"connect-timeout"`
}

// WatchConfig controls reloading of local dataset files.
type WatchConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Debounce string `yaml:"debounce"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Host: "127.0.0.1",
		Port: 8501,
		Dashboard: DashboardConfig{
			MaxConnections: 64,
			MaxUploadBytes: 256 << 20,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		S3: S3Config{
			Endpoint: "s3.amazonaws.com",
			UseSSL:   true,
		},
		Postgres: PostgresConfig{ConnectTimeout: "10s"},
		Watch:    WatchConfig{Debounce: "500ms"},
	}
}

// LoadDotEnv loads environment files into the process environment without overriding
// variables that are already set. A missing default .env is not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		if _, err := os.Stat(".env"); errors.Is(err, os.ErrNotExist) {
			log.Debug("No .env file found, using environment variables")
			return nil
		}
	}
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// LoadConfig reads the YAML file at path (defaults only when path is empty), applies
// environment overrides and validates the result.
//
// Parameters:
//   - path: YAML config file path, may be empty
//
// Returns:
//   - *Config: The effective configuration
//   - error: Any read, parse or validation error
func LoadConfig(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	var errs []error
	boolean := func(name string, dst *bool) {
		if v, ok := lookup(EnvPrefix + name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = b
		}
	}

	str("HOST", &c.Host)
	if v, ok := lookup(EnvPrefix + "PORT"); ok {
		p, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sPORT: %w", EnvPrefix, err))
		} else {
			c.Port = p
		}
	}
	str("DATASET", &c.Dataset)
	boolean("ALLOW_REMOTE", &c.Dashboard.AllowRemote)
	str("LOG_LEVEL", &c.Logging.Level)
	str("LOG_FORMAT", &c.Logging.Format)
	str("LOG_FILE", &c.Logging.File)
	str("S3_ENDPOINT", &c.S3.Endpoint)
	str("S3_REGION", &c.S3.Region)
	str("S3_ACCESS_KEY", &c.S3.AccessKey)
	str("S3_SECRET_KEY", &c.S3.SecretKey)
	boolean("S3_USE_SSL", &c.S3.UseSSL)
	boolean("WATCH", &c.Watch.Enabled)
	return errors.Join(errs...)
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port out of range: %d", c.Port))
	}
	if _, err := log.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format))
	}
	if c.Dashboard.MaxConnections < 0 {
		errs = append(errs, fmt.Errorf("dashboard.max-connections must not be negative"))
	}
	if _, err := c.DebounceInterval(); err != nil {
		errs = append(errs, fmt.Errorf("watch.debounce: %w", err))
	}
	if _, err := c.ConnectTimeout(); err != nil {
		errs = append(errs, fmt.Errorf("postgres.connect-timeout: %w", err))
	}
	return errors.Join(errs...)
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// DebounceInterval parses the watch debounce, defaulting to 500ms when unset.
func (c *Config) DebounceInterval() (time.Duration, error) {
	if c.Watch.Debounce == "" {
		return 500 * time.Millisecond, nil
	}
	return time.ParseDuration(c.Watch.Debounce)
}

// ConnectTimeout parses the Postgres connect timeout, defaulting to 10s when unset.
func (c *Config) ConnectTimeout() (time.Duration, error) {
	if c.Postgres.ConnectTimeout == "" {
		return 10 * time.Second, nil
	}
	return time.ParseDuration(c.Postgres.ConnectTimeout)
}
