package shared

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

//go:embed config.example.toml
var exampleConf []byte

// Environment variables that override secrets from the config file.
const (
	EnvAPIToken      = "CANVAS_API_TOKEN"
	EnvEmailUsername = "EMAIL_USERNAME"
	EnvEmailPassword = "EMAIL_APP_PASSWORD"
)

// Config represents the application configuration loaded from a TOML file.
//
// Legacy YAML files (config.yaml) use the same section and key names.
type Config struct {
	Canvas       CanvasConfig       `toml:"canvas" yaml:"canvas"`
	Download     DownloadConfig     `toml:"download" yaml:"download"`
	Filters      FiltersConfig      `toml:"filters" yaml:"filters"`
	Courses      CoursesConfig      `toml:"courses" yaml:"courses"`
	Notification NotificationConfig `toml:"notification" yaml:"notification"`
	Scheduling   SchedulingConfig   `toml:"scheduling" yaml:"scheduling"`
	Database     DatabaseConfig     `toml:"database" yaml:"database"`
}

// CanvasConfig contains the remote API location and credentials.
type CanvasConfig struct {
	BaseURL   string  `toml:"base_url" yaml:"base_url"`
	APIToken  string  `toml:"api_token" yaml:"api_token"`
	RateLimit float64 `toml:"rate_limit" yaml:"rate_limit"` // requests per second
}

// DownloadConfig contains download destination and worker settings.
type DownloadConfig struct {
	BasePath            string  `toml:"base_path" yaml:"base_path"`
	MaxFileSizeMB       float64 `toml:"max_file_size_mb" yaml:"max_file_size_mb"`
	ConcurrentDownloads int     `toml:"concurrent_downloads" yaml:"concurrent_downloads"`
	MaxRetries          int     `toml:"max_retries" yaml:"max_retries"`
	RetryDelaySeconds   float64 `toml:"retry_delay_seconds" yaml:"retry_delay_seconds"`
}

// FiltersConfig contains admission rules for course files.
type FiltersConfig struct {
	ExtensionBlacklist []string `toml:"extension_blacklist" yaml:"extension_blacklist"`
	NamePatternsToSkip []string `toml:"name_patterns_to_skip" yaml:"name_patterns_to_skip"`
	PDFMaxSizeMB       float64  `toml:"pdf_max_size_mb" yaml:"pdf_max_size_mb"`
}

// CoursesConfig lists the tracked courses.
type CoursesConfig struct {
	SyncMode  string   `toml:"sync_mode" yaml:"sync_mode"`
	Whitelist []string `toml:"whitelist" yaml:"whitelist"`
}

// NotificationConfig contains report delivery settings.
type NotificationConfig struct {
	Email EmailConfig `toml:"email" yaml:"email"`
}

// EmailConfig contains SMTP settings.
type EmailConfig struct {
	Enabled    bool   `toml:"enabled" yaml:"enabled"`
	Recipient  string `toml:"recipient" yaml:"recipient"`
	SMTPServer string `toml:"smtp_server" yaml:"smtp_server"`
	SMTPPort   int    `toml:"smtp_port" yaml:"smtp_port"`
	FromName   string `toml:"from_name" yaml:"from_name"`
	Username   string `toml:"username" yaml:"username"`
	Password   string `toml:"password" yaml:"password"`
}

// SchedulingConfig contains the daily run time shown in reports.
type SchedulingConfig struct {
	Enabled  bool   `toml:"enabled" yaml:"enabled"`
	CronTime string `toml:"cron_time" yaml:"cron_time"` // HH:MM, local time
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path" yaml:"path"`
	MaxOpenConns int    `toml:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns" yaml:"max_idle_conns"`
}

// LoadConfig reads and parses a configuration file from the specified path.
//
// Values missing from the file keep their defaults. Files ending in .yaml or .yml are parsed as YAML, everything else as TOML.
// Secrets found in the environment override the file.
func LoadConfig(path string) (*Config, error) {
	config, err := ReadConfig(path)
	if err != nil {
		return nil, err
	}
	config.ApplyEnv(os.LookupEnv)
	return config, nil
}

// ReadConfig parses the file at path without environment overrides, for rewriting it with [SaveConfig].
func ReadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	default:
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// SaveConfig writes the configuration to path, replacing any existing file. The format follows the extension as in
// [LoadConfig].
func SaveConfig(config *Config, path string) error {
	var buf bytes.Buffer
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(config); err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
		enc.Close()
	default:
		if err := toml.NewEncoder(&buf).Encode(config); err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
	}

	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv overrides secrets with values from lookup, typically [os.LookupEnv].
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvAPIToken); ok && v != "" {
		c.Canvas.APIToken = v
	}
	if v, ok := lookup(EnvEmailUsername); ok && v != "" {
		c.Notification.Email.Username = v
	}
	if v, ok := lookup(EnvEmailPassword); ok && v != "" {
		c.Notification.Email.Password = v
	}
}

// Validate reports every problem that would make a sync pass fail before it starts.
//
// Each returned error matches [ErrInvalidConfig] or [ErrMissingCredentials] with [errors.Is].
func (c *Config) Validate() error {
	var errs []error

	if c.Canvas.APIToken == "" {
		errs = append(errs, fmt.Errorf("%w: canvas api token (set %s)", ErrMissingCredentials, EnvAPIToken))
	}
	if c.Canvas.BaseURL == "" {
		errs = append(errs, fmt.Errorf("%w: canvas.base_url is required", ErrInvalidConfig))
	}
	if c.Download.BasePath == "" {
		errs = append(errs, fmt.Errorf("%w: download.base_path is required", ErrInvalidConfig))
	}
	if len(c.Courses.Whitelist) == 0 {
		errs = append(errs, fmt.Errorf("%w: courses.whitelist is empty", ErrInvalidConfig))
	}

	if email := c.Notification.Email; email.Enabled {
		if email.Recipient == "" {
			errs = append(errs, fmt.Errorf("%w: notification.email.recipient is required", ErrInvalidConfig))
		}
		if email.Username == "" || email.Password == "" {
			errs = append(errs, fmt.Errorf("%w: email username/password (set %s and %s)", ErrMissingCredentials, EnvEmailUsername, EnvEmailPassword))
		}
	}

	if _, err := c.Scheduling.NextRun(time.Now()); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// RetryDelay returns the base backoff delay.
func (d DownloadConfig) RetryDelay() time.Duration {
	return time.Duration(d.RetryDelaySeconds * float64(time.Second))
}

// NextRun returns the next occurrence of the configured daily run time after now.
// An empty cron time means noon.
func (s SchedulingConfig) NextRun(now time.Time) (time.Time, error) {
	hhmm := s.CronTime
	if hhmm == "" {
		hhmm = "12:00"
	}

	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: scheduling.cron_time %q must be HH:MM", ErrInvalidConfig, s.CronTime)
	}

	next := time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next, nil
}
