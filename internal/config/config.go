package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/teambition/rrule-go"
	"gopkg.in/yaml.v3"
)

// Defaults applied when a field is omitted
const (
	DefaultTimezone                  = "UTC"
	DefaultHistoryMonths             = 3
	DefaultPeriod                    = "month"
	DefaultMaxAssignmentsPerPeriod   = 4
	DefaultMinDaysBetweenAssignments = 3
	DefaultLogDir                    = "logs"
	DefaultLogLevel                  = "info"
)

// SlotOverride changes slot-instances on dates matching an rrule
type SlotOverride struct {
	RRule     string `yaml:"rrule" validate:"required"`
	SlotLabel string `yaml:"slotLabel,omitempty"`
	Capacity  *int   `yaml:"capacity,omitempty" validate:"omitempty,min=1"`
	Closed    bool   `yaml:"closed,omitempty"`
}

// EmailConfig configures the Gmail notification channel
type EmailConfig struct {
	Enabled     bool   `yaml:"enabled"`
	GmailUserID string `yaml:"gmailUserID,omitempty" validate:"required_if=Enabled true"`
	Sender      string `yaml:"sender,omitempty"`
}

// NotificationsConfig configures notification channels
type NotificationsConfig struct {
	Email EmailConfig `yaml:"email"`
}

// LogConfig configures the file and console loggers
type LogConfig struct {
	Dir   string `yaml:"dir,omitempty"`
	Level string `yaml:"level,omitempty" validate:"omitempty,oneof=debug info warn error"`
}

// Config represents the application configuration
type Config struct {
	DatabaseURL                      string              `yaml:"databaseURL" validate:"required"`
	Timezone                         string              `yaml:"timezone,omitempty"`
	HistoryMonths                    int                 `yaml:"historyMonths,omitempty" validate:"min=0"`
	Period                           string              `yaml:"period,omitempty" validate:"omitempty,oneof=month week"`
	DefaultMaxAssignmentsPerPeriod   int                 `yaml:"defaultMaxAssignmentsPerPeriod,omitempty" validate:"min=0"`
	DefaultMinDaysBetweenAssignments int                 `yaml:"defaultMinDaysBetweenAssignments,omitempty" validate:"min=0"`
	SlotOverrides                    []SlotOverride      `yaml:"slotOverrides,omitempty" validate:"dive"`
	Notifications                    NotificationsConfig `yaml:"notifications,omitempty"`
	Log                              LogConfig           `yaml:"log,omitempty"`
}

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Load loads and validates the configuration from rota_config.yaml
// It looks for the config file in the current directory first, then in the user's home directory
func Load() (*Config, error) {
	return LoadWithEnv("")
}

// LoadWithEnv loads the configuration with an environment suffix
// For example, env="test" will look for "rota_config.test.yaml"
func LoadWithEnv(env string) (*Config, error) {
	configPath, err := findConfigFile(env)
	if err != nil {
		return nil, fmt.Errorf("failed to find config file: %w", err)
	}

	return LoadFromPath(configPath)
}

// LoadFromPath loads and validates the configuration from a specific path
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// Validate validates the configuration struct, timezone and rrule syntax
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	if cfg.Timezone != "" {
		if _, err := time.LoadLocation(cfg.Timezone); err != nil {
			return fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
		}
	}

	for i, override := range cfg.SlotOverrides {
		if _, err := rrule.StrToRRule(override.RRule); err != nil {
			return fmt.Errorf("invalid rrule in slotOverrides[%d]: %w", i, err)
		}
	}

	return nil
}

// ApplyDefaults fills omitted fields with their defaults
func (c *Config) ApplyDefaults() {
	if c.Timezone == "" {
		c.Timezone = DefaultTimezone
	}
	if c.HistoryMonths == 0 {
		c.HistoryMonths = DefaultHistoryMonths
	}
	if c.Period == "" {
		c.Period = DefaultPeriod
	}
	if c.DefaultMaxAssignmentsPerPeriod == 0 {
		c.DefaultMaxAssignmentsPerPeriod = DefaultMaxAssignmentsPerPeriod
	}
	if c.DefaultMinDaysBetweenAssignments == 0 {
		c.DefaultMinDaysBetweenAssignments = DefaultMinDaysBetweenAssignments
	}
	if c.Log.Dir == "" {
		c.Log.Dir = DefaultLogDir
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
}

// Location returns the configured timezone
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Timezone)
}

// findConfigFile searches for rota_config.yaml in current directory and home directory
// If env is provided, it adds it as an extension (e.g., "rota_config.test.yaml")
func findConfigFile(env string) (string, error) {
	return findFile(fileNameForEnv("rota_config", env, "yaml"))
}

func fileNameForEnv(base, env, ext string) string {
	if env == "" {
		return base + "." + ext
	}
	return base + "." + env + "." + ext
}

// findFile returns name if it exists in the current directory, else the same name in the home directory
func findFile(name string) (string, error) {
	if _, err := os.Stat(name); err == nil {
		return name, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	homePath := filepath.Join(homeDir, name)
	if _, err := os.Stat(homePath); err == nil {
		return homePath, nil
	}

	return "", fmt.Errorf("%s not found in current directory or home directory", name)
}
