package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/flight-geotag/internal/telemetry"
	"github.com/roman-kulish/flight-geotag/internal/trigger"
)

const (
	defaultDatabase       = "geotag_session.sqlite"
	defaultParallelism    = 4
	defaultMaxBiasDays    = 1
	defaultMinInvalidDays = 10
	defaultMaxDuration    = 1
)

// Config represents the main application configuration
type Config struct {
	Settings  Settings        `yaml:"settings"`
	Logs      []string        `yaml:"logs"`
	Images    ImagesConfig    `yaml:"images"`
	Storage   StorageConfig   `yaml:"storage"`
	Trigger   TriggerConfig   `yaml:"trigger"`
	Alignment AlignmentConfig `yaml:"alignment"`
	Fusion    FusionConfig    `yaml:"fusion"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel    string `yaml:"logLevel"`
	Unit        string `yaml:"unit"`
	Parallelism int    `yaml:"parallelism"`
}

// Level returns the configured log level, info when unset or unknown
func (s Settings) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// ImagesConfig points to the image manifest. When Manifest is empty the images already
// stored in the session database are used.
type ImagesConfig struct {
	Manifest string `yaml:"manifest"`
	Unit     string `yaml:"unit"`
}

// StorageConfig represents storage settings
type StorageConfig struct {
	DataDirectory string `yaml:"dataDirectory"`
	Database      string `yaml:"database"`
}

// TriggerConfig selects the RC input channel carrying the shutter pulse
type TriggerConfig struct {
	Channel int `yaml:"channel"`
}

// AlignmentConfig holds the clock alignment thresholds in days
type AlignmentConfig struct {
	MaxBiasDays     int64  `yaml:"maxBiasDays"`
	MinInvalidDays  int64  `yaml:"minInvalidDays"`
	MaxDurationDays int64  `yaml:"maxDurationDays"`
	ManualOffset    *int64 `yaml:"manualOffset"`
}

// FusionConfig represents fusion settings
type FusionConfig struct {
	GPS bool `yaml:"gps"`
}

// LoadConfig reads the YAML configuration at path and applies defaults
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	config := Config{
		Settings: Settings{
			LogLevel:    "info",
			Unit:        telemetry.Seconds.String(),
			Parallelism: defaultParallelism,
		},
		Storage: StorageConfig{
			Database: defaultDatabase,
		},
		Trigger: TriggerConfig{
			Channel: trigger.DefaultChannel,
		},
		Alignment: AlignmentConfig{
			MaxBiasDays:     defaultMaxBiasDays,
			MinInvalidDays:  defaultMinInvalidDays,
			MaxDurationDays: defaultMaxDuration,
		},
	}
	if err = yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err = config.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &config, nil
}

func (c *Config) validate() error {
	if len(c.Logs) == 0 {
		return errors.New("no logs specified")
	}
	if _, err := telemetry.ParseUnit(c.Settings.Unit); err != nil {
		return fmt.Errorf("settings.unit: %w", err)
	}
	if _, err := telemetry.ParseUnit(c.Images.Unit); err != nil {
		return fmt.Errorf("images.unit: %w", err)
	}
	if c.Trigger.Channel < 1 || c.Trigger.Channel > 14 {
		return fmt.Errorf("trigger.channel %d out of range [1, 14]", c.Trigger.Channel)
	}
	if c.Alignment.MaxBiasDays <= 0 || c.Alignment.MinInvalidDays <= c.Alignment.MaxBiasDays {
		return fmt.Errorf("alignment thresholds must satisfy 0 < maxBiasDays (%d) < minInvalidDays (%d)",
			c.Alignment.MaxBiasDays, c.Alignment.MinInvalidDays)
	}
	if c.Alignment.MaxDurationDays <= 0 {
		return fmt.Errorf("alignment.maxDurationDays must be positive, got %d", c.Alignment.MaxDurationDays)
	}
	return nil
}
