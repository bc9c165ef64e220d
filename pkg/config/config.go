// Package config provides configuration management for the partri engine.
package config

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Config holds all configuration for a single triangulation run.
type Config struct {
	Run      RunConfig      `mapstructure:"run"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Log      LogConfig      `mapstructure:"log"`
}

// RunConfig holds the parameters of a single triangulation run.
type RunConfig struct {
	// Dimension is the number of spatial axes: 2 or 3.
	Dimension int `mapstructure:"dimension"`
	// ProcessCount is the number of Exchange Coordinators (P in spec terms).
	ProcessCount int `mapstructure:"process_count"`
	// LeafCount is the number of partitions the decomposition tree should
	// produce (L in spec terms). Must be >= ProcessCount.
	LeafCount int `mapstructure:"leaf_count"`
	// Periodic marks which axes wrap; length must equal Dimension once
	// loaded, checked in Validate.
	Periodic []bool `mapstructure:"periodic"`
	// InputPath is the point-set file read via internal/storage.
	InputPath string `mapstructure:"input_path"`
	// OutputPath is the local file the run's JSON result (consolidated
	// triangulation or volume array) is written to.
	OutputPath string `mapstructure:"output_path"`
	// Mode selects what the run produces: "triangulation" or "volumes".
	Mode string `mapstructure:"mode"`
	// MaxPointsPerLeaf is an advisory per-leaf point budget; 0 means
	// unlimited. Validate only rejects negative values and the run logs it;
	// no leaf's size is checked against it.
	MaxPointsPerLeaf int `mapstructure:"max_points_per_leaf"`
	// Distributed selects a gRPC cross-host mailbox transport instead of
	// in-process channels. Reserved for a future internal/transport
	// package; rejected by Validate until one exists.
	Distributed bool `mapstructure:"distributed"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Type     string `mapstructure:"type"` // postgres, mysql or sqlite
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	MaxConns int    `mapstructure:"max_conns"`
}

// StorageConfig holds object storage configuration.
type StorageConfig struct {
	Type      string `mapstructure:"type"` // cos or local
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	SecretID  string `mapstructure:"secret_id"`
	SecretKey string `mapstructure:"secret_key"`
	Domain    string `mapstructure:"domain"`     // e.g., "myqcloud.com"
	Scheme    string `mapstructure:"scheme"`     // e.g., "https" or "http"
	LocalPath string `mapstructure:"local_path"` // for local storage
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"` // json or text
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
		v.AddConfigPath("/etc/partri")
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
	v.SetDefault("run.dimension", 3)
	v.SetDefault("run.process_count", 1)
	v.SetDefault("run.leaf_count", 1)
	v.SetDefault("run.mode", "triangulation")
	v.SetDefault("run.max_points_per_leaf", 0)
	v.SetDefault("run.distributed", false)

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.max_conns", 10)

	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local_path", "./storage")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.output_path", "./logs")
	v.SetDefault("log.format", "text")
}

// Validate validates the configuration, enforcing spec.md §7's
// configuration-error kind: invalid dimension, non-positive process count,
// or a leaf count smaller than the process count are all rejected here,
// synchronously, before any worker starts.
func (c *Config) Validate() error {
	if c.Run.Dimension != 2 && c.Run.Dimension != 3 {
		return fmt.Errorf("run.dimension must be 2 or 3, got %d", c.Run.Dimension)
	}
	if c.Run.ProcessCount < 1 {
		return fmt.Errorf("run.process_count must be at least 1")
	}
	if c.Run.LeafCount < c.Run.ProcessCount {
		return fmt.Errorf("run.leaf_count (%d) must be >= run.process_count (%d)", c.Run.LeafCount, c.Run.ProcessCount)
	}
	if len(c.Run.Periodic) != 0 && len(c.Run.Periodic) != c.Run.Dimension {
		return fmt.Errorf("run.periodic must have length %d, got %d", c.Run.Dimension, len(c.Run.Periodic))
	}
	if c.Run.MaxPointsPerLeaf < 0 {
		return fmt.Errorf("run.max_points_per_leaf must not be negative")
	}
	if c.Run.Mode != "triangulation" && c.Run.Mode != "volumes" {
		return fmt.Errorf("run.mode must be \"triangulation\" or \"volumes\", got %q", c.Run.Mode)
	}
	if c.Run.Distributed {
		return fmt.Errorf("run.distributed: cross-host transport is not implemented yet")
	}

	switch c.Database.Type {
	case "postgres", "mysql", "sqlite":
	default:
		return fmt.Errorf("unsupported database type: %s", c.Database.Type)
	}

	return nil
}
