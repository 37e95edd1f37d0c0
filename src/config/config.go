package config

import (
	"fmt"
	"os"
	"strings"

	"multisig-observer/src/models"

	"gopkg.in/yaml.v3"
)

// Defaults applied before validation
const (
	DefaultReconnectDelayMs        = 500
	DefaultErrorLogIntervalSeconds = 10
	DefaultEventBuffer             = 64
	DefaultProbeIntervalSeconds    = 5
	DefaultRetentionDays           = 7
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

// Parse builds a validated Config from YAML bytes.
func Parse(data []byte) (*Config, error) {
	var modelConfig models.MConfig
	if err := yaml.Unmarshal(data, &modelConfig); err != nil {
		return nil, fmt.Errorf("failed to parse config from YAML: %w", err)
	}

	config := &Config{MConfig: &modelConfig}
	config.ApplyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// -----------------------------------------------------------------------------

// ApplyDefaults fills optional settings left empty in the file.
func (c *Config) ApplyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "INFO"
	}
	if c.Storage.DBType == "" {
		c.Storage.DBType = "sqlite"
	}
	if c.Storage.RetentionDays == 0 {
		c.Storage.RetentionDays = DefaultRetentionDays
	}
	if c.Network.DiscoveryScheme == "" {
		c.Network.DiscoveryScheme = "https"
	}
	if c.Network.ProbeIntervalSeconds == 0 {
		c.Network.ProbeIntervalSeconds = DefaultProbeIntervalSeconds
	}
	if c.Stream.ReconnectDelayMs == 0 {
		c.Stream.ReconnectDelayMs = DefaultReconnectDelayMs
	}
	if c.Stream.Backoff == "" {
		c.Stream.Backoff = "fixed"
	}
	if c.Stream.ErrorLogIntervalSeconds == 0 {
		c.Stream.ErrorLogIntervalSeconds = DefaultErrorLogIntervalSeconds
	}
	if c.Stream.EventBuffer == 0 {
		c.Stream.EventBuffer = DefaultEventBuffer
	}
}

// -----------------------------------------------------------------------------

// Validate performs basic configuration validation
func (c *Config) Validate() error {
	// Validate App configuration (Flattened)
	if c.Name == "" {
		return fmt.Errorf("application name cannot be empty")
	}

	// Validate Server configuration (Flattened)
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
	case "none":
	case "sqlite":
		if c.Storage.DBPath == "" {
			return fmt.Errorf("database path cannot be empty for sqlite")
		}
	case "postgres":
		if c.Storage.DBConnectionString == "" {
			return fmt.Errorf("database connection string cannot be empty for postgres")
		}
	default:
		return fmt.Errorf("unknown database type: %s", c.Storage.DBType)
	}
	if c.Storage.RetentionDays < 0 {
		return fmt.Errorf("retention days cannot be negative")
	}

	// Validate Network configuration
	if c.Network.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be greater than 0")
	}
	if c.Network.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.Network.DiscoveryScheme != "https" && c.Network.DiscoveryScheme != "http" {
		return fmt.Errorf("discovery scheme must be http or https, got %q", c.Network.DiscoveryScheme)
	}
	if c.Network.ProbeIntervalSeconds < 0 {
		return fmt.Errorf("probe interval cannot be negative")
	}

	// Validate Stream configuration
	if c.Stream.ReconnectDelayMs < 0 {
		return fmt.Errorf("reconnect delay cannot be negative")
	}
	switch c.Stream.Backoff {
	case "fixed":
	case "exponential":
		if c.Stream.MaxReconnectDelayMs < c.Stream.ReconnectDelayMs {
			return fmt.Errorf("max reconnect delay must be at least the reconnect delay")
		}
	default:
		return fmt.Errorf("unknown backoff policy: %s", c.Stream.Backoff)
	}
	if c.Stream.ErrorLogIntervalSeconds < 0 {
		return fmt.Errorf("error log interval cannot be negative")
	}
	if c.Stream.EventBuffer < 0 {
		return fmt.Errorf("event buffer cannot be negative")
	}

	// Validate watches
	seen := make(map[string]bool)
	for i, w := range c.Watches {
		if err := ValidateWatch(w); err != nil {
			return fmt.Errorf("watch %d: %w", i, err)
		}
		if seen[w.Name] {
			return fmt.Errorf("duplicate watch name '%s'", w.Name)
		}
		seen[w.Name] = true
	}

	return nil
}

// -----------------------------------------------------------------------------

// ValidateWatch checks a single watch definition.
func ValidateWatch(w models.MWatchConfig) error {
	if strings.TrimSpace(w.Name) == "" {
		return fmt.Errorf("watch must have a name")
	}
	if w.Domain == "" && w.ServiceURL == "" {
		return fmt.Errorf("watch '%s' needs a domain or a service_url", w.Name)
	}
	return nil
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
