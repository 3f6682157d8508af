package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

//go:generate go run ../../cmd/schema/main.go schema.json

// Config holds the application configuration
type Config struct {
	File struct {
		Path         string `yaml:"path" json:"path" jsonschema:"default=KillFeed.json,description=Managed JSON file"`
		BackupSuffix string `yaml:"backup_suffix" json:"backup_suffix" jsonschema:"default=.backup,description=Suffix appended to the file name for the backup copy"`
	} `yaml:"file" json:"file" jsonschema:"description=Managed file configuration"`

	Schedule struct {
		Interval time.Duration `yaml:"interval" json:"interval" jsonschema:"default=1m,description=Check interval"`
		Location string        `yaml:"location" json:"location" jsonschema:"default=Local,description=Time zone used to evaluate the schedule (IANA name or Local)"`
	} `yaml:"schedule" json:"schedule" jsonschema:"description=Scheduler configuration"`

	Log struct {
		File string `yaml:"file" json:"file" jsonschema:"default=kftoggle.log,description=Log file (empty to log to stdout only)"`
	} `yaml:"log" json:"log" jsonschema:"description=Logging configuration"`

	Journal struct {
		Path string `yaml:"path" json:"path" jsonschema:"description=SQLite journal of performed changes (empty to disable)"`
	} `yaml:"journal" json:"journal" jsonschema:"description=Transition journal configuration"`
}

// Default returns configuration with all defaults set
func Default() *Config {
	cfg := &Config{}
	cfg.File.Path = "KillFeed.json"
	cfg.File.BackupSuffix = ".backup"
	cfg.Schedule.Interval = time.Minute
	cfg.Schedule.Location = "Local"
	cfg.Log.File = "kftoggle.log"
	return cfg
}

// Load reads configuration from a YAML file. Keys missing in the file keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // file path comes from CLI flag
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Validate checks configuration for correctness
func (c *Config) Validate() error {
	if c.File.Path == "" {
		return fmt.Errorf("file.path is required")
	}
	if c.File.BackupSuffix == "" {
		return fmt.Errorf("file.backup_suffix is required")
	}
	if c.Schedule.Interval < time.Second {
		return fmt.Errorf("schedule.interval must be at least 1 second")
	}
	if _, err := c.GetLocation(); err != nil {
		return fmt.Errorf("schedule.location: %w", err)
	}
	return nil
}

// GetLocation returns time zone used for the schedule
func (c *Config) GetLocation() (*time.Location, error) {
	if c.Schedule.Location == "" || c.Schedule.Location == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Schedule.Location)
	if err != nil {
		return nil, fmt.Errorf("load location %q: %w", c.Schedule.Location, err)
	}
	return loc, nil
}
