// Package config provides configuration management for the taskgraph CLI
// and services.
package config

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Allocator AllocatorConfig `mapstructure:"allocator"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Report    ReportConfig    `mapstructure:"report"`
	Log       LogConfig       `mapstructure:"log"`
}

// SchedulerConfig holds macro-scheduler configuration.
type SchedulerConfig struct {
	// Policy selects the scheduling policy: central_queue, dynamic, or
	// critical_node.
	Policy string `mapstructure:"policy"`

	// Resources describes the compute resources to create.
	Resources []ResourceConfig `mapstructure:"resources"`

	// Iterations is the number of times the run command executes the
	// schedule.
	Iterations int `mapstructure:"iterations"`
}

// ResourceConfig describes one compute resource.
type ResourceConfig struct {
	// Workers is the resource's worker count.
	Workers int `mapstructure:"workers"`

	// NormalizationFactor is the resource's relative slowness; 1.0 is the
	// reference.
	NormalizationFactor float64 `mapstructure:"normalization_factor"`
}

// AllocatorConfig holds binned-allocator configuration.
type AllocatorConfig struct {
	// SlabSizeMiB is the slab size and alignment in MiB. Must be a power
	// of two.
	SlabSizeMiB int `mapstructure:"slab_size_mib"`
}

// DatabaseConfig holds run-history database configuration.
type DatabaseConfig struct {
	Type     string `mapstructure:"type"` // sqlite, postgres, or mysql
	Path     string `mapstructure:"path"` // for sqlite
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	MaxConns int    `mapstructure:"max_conns"`
}

// ReportConfig holds run-report storage configuration.
type ReportConfig struct {
	Type      string `mapstructure:"type"` // cos or local
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	SecretID  string `mapstructure:"secret_id"`
	SecretKey string `mapstructure:"secret_key"`
	Scheme    string `mapstructure:"scheme"`
	LocalPath string `mapstructure:"local_path"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
}

// Load reads configuration from the specified file path.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/taskgraph")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			fmt.Println("Config file not found, using defaults")
		} else if os.IsNotExist(err) {
			fmt.Printf("Config file %s not found, using defaults\n", configPath)
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadFromReader loads configuration from raw bytes (useful for testing).
func LoadFromReader(configType string, content []byte) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType(configType)
	if err := v.ReadConfig(bytes.NewReader(content)); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Scheduler defaults
	v.SetDefault("scheduler.policy", "central_queue")
	v.SetDefault("scheduler.iterations", 1)

	// Allocator defaults
	v.SetDefault("allocator.slab_size_mib", 4)

	// Database defaults
	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.path", "./taskgraph.db")
	v.SetDefault("database.max_conns", 10)

	// Report defaults
	v.SetDefault("report.type", "local")
	v.SetDefault("report.local_path", "./reports")
	v.SetDefault("report.scheme", "https")

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.output_path", "./logs")
}

// validPolicies enumerates the scheduling policies the CLI accepts.
var validPolicies = map[string]bool{
	"central_queue": true,
	"dynamic":       true,
	"critical_node": true,
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if !validPolicies[c.Scheduler.Policy] {
		return fmt.Errorf("unknown scheduler policy: %s", c.Scheduler.Policy)
	}
	for i, r := range c.Scheduler.Resources {
		if r.Workers < 1 {
			return fmt.Errorf("resource %d: workers must be at least 1", i)
		}
		if r.NormalizationFactor < 0 {
			return fmt.Errorf("resource %d: normalization factor must not be negative", i)
		}
	}

	switch c.Database.Type {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("sqlite database path is required")
		}
	case "postgres", "mysql":
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
	default:
		return fmt.Errorf("unsupported database type: %s", c.Database.Type)
	}

	slab := c.Allocator.SlabSizeMiB
	if slab <= 0 || slab&(slab-1) != 0 {
		return fmt.Errorf("allocator slab size must be a positive power of two, got %d MiB", slab)
	}

	return nil
}
