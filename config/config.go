// Package config loads run configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultBufferItems      = 8192
	DefaultMetricsNamespace = "flow"
)

type (
	// Config is the run configuration.
	Config struct {
		// BufferItems is the minimal capacity of stream buffers in items.
		BufferItems int `yaml:"buffer_items"`
		// LogLevel is a logrus level name.
		LogLevel string `yaml:"log_level"`
		// MetricsNamespace prefixes prometheus metric names.
		MetricsNamespace string `yaml:"metrics_namespace"`
		// MetricsAddr enables the metrics endpoint in the CLI when set.
		MetricsAddr string   `yaml:"metrics_addr"`
		Throttle    Throttle `yaml:"throttle"`
		Head        Head     `yaml:"head"`
	}

	// Throttle configures rate limiting block.
	Throttle struct {
		SampleRate float64 `yaml:"sample_rate"`
		IgnoreTags bool    `yaml:"ignore_tags"`
	}

	// Head configures item limit block. Zero means no limit.
	Head struct {
		Items uint64 `yaml:"items"`
	}
)

// Default returns configuration with default values.
func Default() Config {
	return Config{
		BufferItems:      DefaultBufferItems,
		LogLevel:         "info",
		MetricsNamespace: DefaultMetricsNamespace,
	}
}

// Validate checks configuration values.
func (c Config) Validate() error {
	if c.BufferItems < 1 {
		return errors.New("buffer_items must be positive")
	}
	if c.MetricsNamespace == "" {
		return errors.New("metrics_namespace is required")
	}
	if c.Throttle.SampleRate < 0 {
		return errors.New("throttle.sample_rate must not be negative")
	}
	return nil
}

// Load reads YAML configuration on top of defaults.
func Load(r io.Reader) (Config, error) {
	c := Default()
	if err := yaml.NewDecoder(r).Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return c, nil
}

// LoadFile reads YAML configuration from path.
func LoadFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to open config: %w", err)
	}
	defer f.Close()
	return Load(f)
}
