package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ishanjain/ift/pkg/template"
)

// Config represents the iftd daemon configuration
type Config struct {
	// Server settings (socket, logging, output)
	Server ServerConfig `yaml:"server"`

	// Resolve controls how and how often bindings are evaluated
	Resolve ResolveConfig `yaml:"resolve"`

	// Health check configuration
	Health HealthConfig `yaml:"health,omitempty"`

	// Bindings to resolve
	Bindings []BindingConfig `yaml:"bindings"`
}

// ServerConfig holds daemon-level settings
type ServerConfig struct {
	// SocketPath for the control socket
	SocketPath string `yaml:"socket_path,omitempty"`

	// LogLevel: info, debug, error
	LogLevel string `yaml:"log_level,omitempty"`

	// LogFormat: text, json
	LogFormat string `yaml:"log_format,omitempty"`

	// OutputFile receives resolved bindings as JSON after every resolve.
	// Empty disables it.
	OutputFile string `yaml:"output_file,omitempty"`
}

// ResolveConfig holds evaluation settings
type ResolveConfig struct {
	// PollInterval in seconds between interface enumerations
	PollInterval int `yaml:"poll_interval,omitempty"`

	// StrictSelection makes FilterFirst/FilterLast fail on an empty selection
	StrictSelection bool `yaml:"strict_selection,omitempty"`

	// CacheSize bounds the parsed template cache
	CacheSize int `yaml:"cache_size,omitempty"`
}

// HealthConfig holds health check settings
type HealthConfig struct {
	// Enabled controls whether health check server runs
	Enabled bool `yaml:"enabled,omitempty"`

	// Port for health check server (default: 8081)
	Port int `yaml:"port,omitempty"`

	// Address to bind (default: 127.0.0.1)
	Address string `yaml:"address,omitempty"`
}

// BindingConfig defines one named address selection
type BindingConfig struct {
	// Name identifies the binding in status output and over the socket
	Name string `yaml:"name"`

	// Template selecting the addresses, e.g. `GetPrivateInterfaces | FilterIPv4`
	Template string `yaml:"template"`

	// Port the caller intends to bind (informational, 0 for none)
	Port int `yaml:"port,omitempty"`

	// Required bindings make the daemon unhealthy when they select nothing
	Required bool `yaml:"required,omitempty"`

	// Enabled flag (allows disabling without removing from config)
	Enabled *bool `yaml:"enabled,omitempty"`
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes, defaults and validates a YAML configuration
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for unspecified fields
func (c *Config) setDefaults() {
	if c.Server.SocketPath == "" {
		c.Server.SocketPath = getDefaultSocketPath()
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Server.LogFormat == "" {
		c.Server.LogFormat = "text"
	}

	if c.Resolve.PollInterval == 0 {
		c.Resolve.PollInterval = 30
	}
	if c.Resolve.CacheSize == 0 {
		c.Resolve.CacheSize = template.DefaultCacheSize
	}

	if c.Health.Port == 0 {
		c.Health.Port = 8081
	}
	if c.Health.Address == "" {
		c.Health.Address = "127.0.0.1"
	}

	for i := range c.Bindings {
		b := &c.Bindings[i]
		if b.Enabled == nil {
			enabled := true
			b.Enabled = &enabled
		}
	}
}

// Validate validates the configuration, including every binding template
func (c *Config) Validate() error {
	validLevels := map[string]bool{"info": true, "debug": true, "error": true}
	if !validLevels[c.Server.LogLevel] {
		return fmt.Errorf("invalid log_level: %s (must be one of: info, debug, error)", c.Server.LogLevel)
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Server.LogFormat] {
		return fmt.Errorf("invalid log_format: %s (must be one of: text, json)", c.Server.LogFormat)
	}

	if c.Resolve.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be > 0")
	}
	if c.Resolve.CacheSize < 0 {
		return fmt.Errorf("cache_size must be >= 0")
	}

	if c.Health.Port <= 0 || c.Health.Port > 65535 {
		return fmt.Errorf("invalid health port %d", c.Health.Port)
	}

	seen := make(map[string]bool)
	for i, b := range c.Bindings {
		if b.Name == "" {
			return fmt.Errorf("binding[%d]: name is required", i)
		}
		if seen[b.Name] {
			return fmt.Errorf("binding[%d]: duplicate name %q", i, b.Name)
		}
		seen[b.Name] = true

		if b.Port < 0 || b.Port > 65535 {
			return fmt.Errorf("binding[%d] (%s): invalid port %d", i, b.Name, b.Port)
		}
		if _, err := template.Parse(b.Template); err != nil {
			return fmt.Errorf("binding[%d] (%s): invalid template: %w", i, b.Name, err)
		}
	}

	return nil
}

// GetEnabledBindings returns only the enabled bindings
func (c *Config) GetEnabledBindings() []BindingConfig {
	var enabled []BindingConfig
	for _, b := range c.Bindings {
		if b.Enabled != nil && *b.Enabled {
			enabled = append(enabled, b)
		}
	}
	return enabled
}

// Binding returns the binding called name
func (c *Config) Binding(name string) (BindingConfig, bool) {
	for _, b := range c.Bindings {
		if b.Name == name {
			return b, true
		}
	}
	return BindingConfig{}, false
}

// MergeWithFlags merges CLI flags with config file (flags take precedence)
func (c *Config) MergeWithFlags(flags map[string]interface{}) {
	if socketPath, ok := flags["socket"].(string); ok && socketPath != "" {
		c.Server.SocketPath = socketPath
	}
	if output, ok := flags["output"].(string); ok && output != "" {
		c.Server.OutputFile = output
	}
	if verbose, ok := flags["v"].(bool); ok && verbose {
		c.Server.LogLevel = "debug"
	}
}

// DefaultSocketPath is the control socket iftd listens on when none is configured
func DefaultSocketPath() string {
	return getDefaultSocketPath()
}
