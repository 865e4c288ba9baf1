// Package config loads raknet-ping's YAML configuration file, in the
// same shape CG-8663-shadowmesh's pkg/config package uses: a struct of
// nested sections with yaml tags, loaded with os.ReadFile +
// yaml.Unmarshal, defaults applied after parsing, then validated.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level raknet-ping configuration file.
type Config struct {
	Target   TargetConfig   `yaml:"target"`
	Transport TransportConfig `yaml:"transport"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// TargetConfig names the RakNet server to connect to.
type TargetConfig struct {
	Address string        `yaml:"address"`
	Timeout time.Duration `yaml:"timeout"`
}

// TransportConfig tunes the Framer/handshake knobs that are safe to
// expose without touching the wire protocol itself.
type TransportConfig struct {
	InitialMTU           int `yaml:"initial_mtu"`
	OrderingQueueLimit   int `yaml:"ordering_queue_limit"`
	FragmentsPerSplitMax int `yaml:"fragments_per_split_max"`
}

// LoggingConfig controls the logrus-backed logger in pkg/logger.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	JSON  bool   `yaml:"json"`
}

// MetricsConfig controls the Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Load reads and validates a Config from a YAML file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	c.setDefaults()
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &c, nil
}

// ApplyDefaults fills any unset field with its default, the same pass
// Load runs after parsing. Exported so callers that build a Config by
// hand (e.g. a bare --target flag with no config file) still get
// sensible transport/logging/metrics defaults.
func (c *Config) ApplyDefaults() { c.setDefaults() }

func (c *Config) setDefaults() {
	if c.Target.Timeout == 0 {
		c.Target.Timeout = 10 * time.Second
	}
	if c.Transport.InitialMTU == 0 {
		c.Transport.InitialMTU = 1492
	}
	if c.Transport.OrderingQueueLimit == 0 {
		c.Transport.OrderingQueueLimit = 1000
	}
	if c.Transport.FragmentsPerSplitMax == 0 {
		c.Transport.FragmentsPerSplitMax = 1024
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9110"
	}
}

func (c *Config) validate() error {
	if c.Target.Address == "" {
		return fmt.Errorf("target.address must be set")
	}
	if c.Transport.InitialMTU < 576 || c.Transport.InitialMTU > 1500 {
		return fmt.Errorf("transport.initial_mtu %d out of range [576, 1500]", c.Transport.InitialMTU)
	}
	return nil
}
