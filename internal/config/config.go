// Package config handles Amadeus configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./amadeus.yaml, ~/.config/amadeus/amadeus.yaml, /config/amadeus.yaml,
// /etc/amadeus/amadeus.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"amadeus.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "amadeus", "amadeus.yaml"))
	}

	paths = append(paths, "/config/amadeus.yaml") // Container convention
	paths = append(paths, "/etc/amadeus/amadeus.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Amadeus configuration.
type Config struct {
	Listen   ListenConfig  `yaml:"listen"`
	Bridge   BridgeConfig  `yaml:"bridge"`
	Memo     MemoConfig    `yaml:"memo"`
	DataDir  string        `yaml:"data_dir"`
	LogLevel string        `yaml:"log_level"`
	Plugins  PluginsConfig `yaml:"plugins"`
}

// ListenConfig defines the admin HTTP/WebSocket server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// BridgeConfig defines the IPC bridge plugin's transport and crypto settings.
type BridgeConfig struct {
	// Enabled controls whether the IPC bridge plugin is registered at all.
	Enabled bool `yaml:"enabled"`
	// NodeName identifies this host to peers on the transport.
	NodeName string `yaml:"node_name"`
	// ServiceName is the transport service/topic namespace both ends open.
	ServiceName string `yaml:"service_name"`
	// Broker is the MQTT broker URL backing the frame transport
	// (e.g. "tcp://localhost:1883").
	Broker string `yaml:"broker"`
	// ExternalPublicKeyFile, if set, points to a PEM-encoded RSA public
	// key used to hybrid-encrypt every outgoing broadcast (§4.6).
	ExternalPublicKeyFile string `yaml:"external_public_key_file"`
}

// MemoConfig defines the persistence+scheduler plugin's settings.
type MemoConfig struct {
	Enabled bool   `yaml:"enabled"`
	DBPath  string `yaml:"db_path"`
}

// PluginsConfig lists which optional plugins are active by name,
// mirroring PluginRegistry.RegisterByNames.
type PluginsConfig struct {
	Enabled []string `yaml:"enabled"`
}

// Configured reports whether the bridge has enough information to open
// a transport connection.
func (c BridgeConfig) Configured() bool {
	return c.Enabled && c.NodeName != "" && c.ServiceName != "" && c.Broker != ""
}

// Load reads configuration from a YAML file, expands environment
// variables, applies defaults for any unset fields, and validates
// the result. After Load returns successfully, all fields are usable
// without additional nil/empty checks.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g., ${HOME}, ${AMADEUS_DATA_DIR}).
	// This is a convenience for container deployments; the recommended
	// approach is to put values directly in the config file.
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// applyDefaults fills in zero-value fields with sensible defaults.
// Called automatically by Load. After this, callers can read any field
// without checking for empty strings or zero values.
func (c *Config) applyDefaults() {
	if c.Listen.Port == 0 {
		c.Listen.Port = 8080
	}
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.Bridge.ServiceName == "" {
		c.Bridge.ServiceName = "Amadeus/Message/Service"
	}
	if c.Bridge.NodeName == "" {
		c.Bridge.NodeName = "amadeus"
	}
	if c.Memo.DBPath == "" {
		c.Memo.DBPath = filepath.Join(c.DataDir, "memo.db")
	}
}

// Validate checks that the configuration is internally consistent.
// It runs after applyDefaults, so it can assume defaults are populated.
// Returns an error describing the first problem found, or nil.
func (c *Config) Validate() error {
	if c.Listen.Port < 1 || c.Listen.Port > 65535 {
		return fmt.Errorf("listen.port %d out of range (1-65535)", c.Listen.Port)
	}
	if c.Bridge.Enabled && c.Bridge.Broker == "" {
		return fmt.Errorf("bridge.broker must be set when bridge.enabled is true")
	}
	if c.LogLevel != "" {
		if _, err := ParseLogLevel(c.LogLevel); err != nil {
			return err
		}
	}
	return nil
}

// Default returns a default configuration suitable for local development,
// with no bridge or memo plugin enabled. All defaults are already applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}
