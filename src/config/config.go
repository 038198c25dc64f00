package config

import (
	"fmt"
	"os"

	"range-meter/src/models"

	"gopkg.in/yaml.v3"
)

// -----------------------------------------------------------------------------

// Config wraps models.MConfig and provides business logic methods
type Config struct {
	*models.MConfig
}

// -----------------------------------------------------------------------------

// NewConfig creates a new MConfig instance from YAML file
func NewConfig(configPath string) (*Config, error) {
	// 1. Read the YAML file content
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", configPath, err)
	}

	return Parse(data)
}

// -----------------------------------------------------------------------------

// Parse builds a validated Config from raw YAML with defaults applied
func Parse(data []byte) (*Config, error) {
	var modelConfig models.MConfig
	if err := yaml.Unmarshal(data, &modelConfig); err != nil {
		return nil, fmt.Errorf("failed to parse config from YAML: %w", err)
	}

	config := &Config{MConfig: &modelConfig}
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// -----------------------------------------------------------------------------

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "INFO"
	}
	if c.Upstream.Type == "" {
		c.Upstream.Type = "simulated"
	}
	if c.Upstream.LookbackDays == 0 {
		c.Upstream.LookbackDays = 20
	}
	if c.Upstream.DayRollCheckSeconds == 0 {
		c.Upstream.DayRollCheckSeconds = 30
	}
	if c.Upstream.Simulated.TickIntervalMs == 0 {
		c.Upstream.Simulated.TickIntervalMs = 250
	}
	if c.Network.RequestTimeout == 0 {
		c.Network.RequestTimeout = 10
	}
	if c.Storage.DBType == "" {
		c.Storage.DBType = "sqlite"
	}
	if c.Storage.RetentionDays == 0 {
		c.Storage.RetentionDays = 90
	}
	if c.Server.ClientQueueSize == 0 {
		c.Server.ClientQueueSize = 64
	}
	if c.Mirror.Channel == "" {
		c.Mirror.Channel = "range-meter.ticks"
	}
}

// -----------------------------------------------------------------------------

// Validate performs basic configuration validation
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("application name cannot be empty")
	}

	if c.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Port <= 1024 || c.Port > 65535 {
		return fmt.Errorf("invalid server port number: %d (must be between 1025 and 65535)", c.Port)
	}
	if c.GrpcPort != 0 && (c.GrpcPort <= 1024 || c.GrpcPort > 65535) {
		return fmt.Errorf("invalid grpc port number: %d (must be between 1025 and 65535)", c.GrpcPort)
	}

	// Validate Storage configuration
	switch c.Storage.DBType {
	case "sqlite":
		if c.Storage.DBPath == "" {
			return fmt.Errorf("database path cannot be empty for sqlite")
		}
	case "postgres":
		if c.Storage.DBConnectionString == "" {
			return fmt.Errorf("connection string cannot be empty for postgres")
		}
	case "none":
	default:
		return fmt.Errorf("unsupported database type: %q", c.Storage.DBType)
	}

	// Validate Network configuration
	if c.Network.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be greater than 0")
	}
	if c.Network.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}

	// Validate Upstream configuration
	if c.Upstream.LookbackDays <= 0 {
		return fmt.Errorf("lookback days must be greater than 0")
	}
	switch c.Upstream.Type {
	case "feed":
		if c.Upstream.StreamURL == "" || c.Upstream.RestURL == "" {
			return fmt.Errorf("feed upstream requires stream_url and rest_url")
		}
	case "simulated":
		if len(c.Upstream.Simulated.Symbols) == 0 {
			return fmt.Errorf("simulated upstream must have at least one symbol")
		}
		for i, s := range c.Upstream.Simulated.Symbols {
			if s.ID == "" {
				return fmt.Errorf("simulated symbol %d must have an id", i)
			}
			if s.PipSize <= 0 {
				return fmt.Errorf("simulated symbol '%s' must have a positive pip_size", s.ID)
			}
		}
	default:
		return fmt.Errorf("unsupported upstream type: %q", c.Upstream.Type)
	}

	if c.Mirror.Enabled && c.Mirror.Addr == "" {
		return fmt.Errorf("mirror is enabled but has no address")
	}

	return nil
}

// -----------------------------------------------------------------------------

// RequiresAskAboveBid reports whether the instrument class opted into the ask>bid check
func (c *Config) RequiresAskAboveBid(class string) bool {
	for _, cl := range c.Upstream.AskAboveBidClasses {
		if cl == class {
			return true
		}
	}
	return false
}

// -----------------------------------------------------------------------------

// Save persists the current configuration to the specified YAML file path
func (c *Config) Save(configPath string) error {
	// 1. Marshal the struct to YAML
	data, err := yaml.Marshal(c.MConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	// 2. Write to file (0644 permissions)
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config to file '%s': %w", configPath, err)
	}

	return nil
}
