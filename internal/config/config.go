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

// RoundSeries defines a recurring round template expanded by createSeries
type RoundSeries struct {
	Name            string `yaml:"name" validate:"required"`
	RRule           string `yaml:"rrule" validate:"required"`
	Title           string `yaml:"title" validate:"required"`
	Description     string `yaml:"description,omitempty"`
	Location        string `yaml:"location" validate:"required"`
	DurationMinutes int    `yaml:"durationMinutes" validate:"required,min=1"`
	MaxParticipants int    `yaml:"maxParticipants" validate:"required,min=1"`
}

// Config represents the application configuration
type Config struct {
	// DatabaseURL selects the Postgres store; empty runs on the in-memory store
	DatabaseURL string `yaml:"databaseURL,omitempty"`

	UserSheetID string `yaml:"userSheetID" validate:"required"`
	UsersTab    string `yaml:"usersTab" validate:"required"`

	EmailEnabled bool   `yaml:"emailEnabled"`
	GmailUserID  string `yaml:"gmailUserID,omitempty" validate:"required_if=EmailEnabled true"`
	GmailSender  string `yaml:"gmailSender,omitempty"`

	ListenAddr            string `yaml:"listenAddr,omitempty"`
	RequestWorkers        int    `yaml:"requestWorkers,omitempty" validate:"omitempty,min=1,max=16"`
	RequestQueueSize      int    `yaml:"requestQueueSize,omitempty" validate:"omitempty,min=0"`
	NotificationWorkers   int    `yaml:"notificationWorkers,omitempty" validate:"omitempty,min=1"`
	NotificationQueueSize int    `yaml:"notificationQueueSize,omitempty" validate:"omitempty,min=1"`

	CancellationCutoffHours int    `yaml:"cancellationCutoffHours,omitempty" validate:"omitempty,min=1"`
	IdentityCacheTTL        string `yaml:"identityCacheTTL,omitempty"`

	RoundSeries []RoundSeries `yaml:"roundSeries,omitempty" validate:"dive"`
}

const (
	DefaultListenAddr              = ":8080"
	DefaultRequestWorkers          = 4
	DefaultRequestQueueSize        = 50
	DefaultNotificationWorkers     = 2
	DefaultNotificationQueueSize   = 50
	DefaultCancellationCutoffHours = 24
	DefaultIdentityCacheTTL        = 5 * time.Minute
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Load loads and validates the configuration from rounds_config.yaml
// It looks for the config file in the current directory first, then in the user's home directory
func Load() (*Config, error) {
	return LoadWithEnv("")
}

// LoadWithEnv loads the configuration for an environment.
// For example, env="test" will look for "rounds_config.test.yaml"
func LoadWithEnv(env string) (*Config, error) {
	configPath, err := locate(envFileName("rounds_config", env, "yaml"))
	if err != nil {
		return nil, fmt.Errorf("failed to find config file: %w", err)
	}

	return LoadFromPath(configPath)
}

// LoadFromPath loads and validates the configuration from a specific path
func LoadFromPath(path string) (*Config, error) {
	data, err := readFile(path, "config")
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Validate validates the configuration struct, rrule syntax and durations
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	seen := make(map[string]bool)
	for i, series := range cfg.RoundSeries {
		if _, err := rrule.StrToRRule(series.RRule); err != nil {
			return fmt.Errorf("invalid rrule in roundSeries[%d]: %w", i, err)
		}
		if seen[series.Name] {
			return fmt.Errorf("duplicate series name in roundSeries[%d]: %s", i, series.Name)
		}
		seen[series.Name] = true
	}

	if cfg.IdentityCacheTTL != "" {
		if _, err := time.ParseDuration(cfg.IdentityCacheTTL); err != nil {
			return fmt.Errorf("invalid identityCacheTTL: %w", err)
		}
	}

	return nil
}

func (cfg *Config) applyDefaults() {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultListenAddr
	}
	if cfg.RequestWorkers == 0 {
		cfg.RequestWorkers = DefaultRequestWorkers
	}
	if cfg.RequestQueueSize == 0 {
		cfg.RequestQueueSize = DefaultRequestQueueSize
	}
	if cfg.NotificationWorkers == 0 {
		cfg.NotificationWorkers = DefaultNotificationWorkers
	}
	if cfg.NotificationQueueSize == 0 {
		cfg.NotificationQueueSize = DefaultNotificationQueueSize
	}
	if cfg.CancellationCutoffHours == 0 {
		cfg.CancellationCutoffHours = DefaultCancellationCutoffHours
	}
}

// CancellationCutoff is the minimum notice a volunteer must give to cancel a signup
func (cfg *Config) CancellationCutoff() time.Duration {
	return time.Duration(cfg.CancellationCutoffHours) * time.Hour
}

// IdentityTTL returns how long identity lookups are cached
func (cfg *Config) IdentityTTL() time.Duration {
	if cfg.IdentityCacheTTL == "" {
		return DefaultIdentityCacheTTL
	}
	ttl, err := time.ParseDuration(cfg.IdentityCacheTTL)
	if err != nil {
		return DefaultIdentityCacheTTL
	}
	return ttl
}

// Series finds a configured round series by name
func (cfg *Config) Series(name string) (*RoundSeries, error) {
	for i := range cfg.RoundSeries {
		if cfg.RoundSeries[i].Name == name {
			return &cfg.RoundSeries[i], nil
		}
	}
	return nil, fmt.Errorf("round series %q not found in config", name)
}

// envFileName builds "<base>.<ext>" or "<base>.<env>.<ext>"
func envFileName(base, env, ext string) string {
	if env == "" {
		return base + "." + ext
	}
	return base + "." + env + "." + ext
}

// locate searches for fileName in the current directory then the home directory
func locate(fileName string) (string, error) {
	if _, err := os.Stat(fileName); err == nil {
		return fileName, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	homePath := filepath.Join(homeDir, fileName)
	if _, err := os.Stat(homePath); err == nil {
		return homePath, nil
	}

	return "", fmt.Errorf("%s not found in current directory or home directory", fileName)
}

func readFile(path, what string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s file: %w", what, err)
	}
	return data, nil
}
