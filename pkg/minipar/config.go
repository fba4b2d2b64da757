package minipar

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Channel framing modes
const (
	// FramingLength prefixes every message with its length as a 4-byte
	// big-endian integer.
	FramingLength = "length"
	// FramingRaw treats whatever a single read returns as one message.
	FramingRaw = "raw"
)

// Config holds the interpreter configuration
type Config struct {
	Channel ChannelConfig `toml:"channel" yaml:"channel"`
	Runtime RuntimeConfig `toml:"runtime" yaml:"runtime"`
	Log     LogConfig     `toml:"log" yaml:"log"`
}

// ChannelConfig holds settings for c_channel and s_channel sockets
type ChannelConfig struct {
	Framing        string `toml:"framing" yaml:"framing"`
	MaxMessageSize int    `toml:"max_message_size" yaml:"max_message_size"`
	ReadBufferSize int    `toml:"read_buffer_size" yaml:"read_buffer_size"`
	// MaxConnections is how many clients a server channel serves, one
	// after another. A negative value serves clients forever.
	MaxConnections    int      `toml:"max_connections" yaml:"max_connections"`
	DialTimeout       Duration `toml:"dial_timeout" yaml:"dial_timeout"`
	DialRetryInterval Duration `toml:"dial_retry_interval" yaml:"dial_retry_interval"`
}

// RuntimeConfig holds executor limits
type RuntimeConfig struct {
	// MaxParallel bounds the PAR branches running at once; 0 is unbounded.
	MaxParallel  int `toml:"max_parallel" yaml:"max_parallel"`
	MaxCallDepth int `toml:"max_call_depth" yaml:"max_call_depth"`
}

// LogConfig holds diagnostic output settings
type LogConfig struct {
	// Color is one of auto, always or never
	Color string `toml:"color" yaml:"color"`
	Debug bool   `toml:"debug" yaml:"debug"`
}

// Duration wraps time.Duration for config parsing
type Duration struct {
	time.Duration
}

// UnmarshalText parses a duration string
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText formats the duration as a string
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// UnmarshalYAML parses a duration scalar
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadConfig loads configuration from a TOML or YAML file, chosen by
// the file extension.
func LoadConfig(path string) (*Config, error) {
	path = os.ExpandEnv(path)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	var cfg Config
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q, use .toml or .yaml", ext)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadConfigFromEnv loads configuration from the MINIPAR_CONFIG environment
// variable, then from the default locations. Without any config file it
// returns the defaults.
func LoadConfigFromEnv() (*Config, error) {
	path := os.Getenv("MINIPAR_CONFIG")
	if path == "" {
		defaultPaths := []string{
			"./minipar.toml",
			"./minipar.yaml",
			filepath.Join(os.Getenv("HOME"), ".config/minipar/config.toml"),
		}
		for _, p := range defaultPaths {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}

	if path == "" {
		return DefaultConfig(), nil
	}
	return LoadConfig(path)
}

// applyDefaults sets default values for missing configuration
func (c *Config) applyDefaults() {
	// Channel
	if c.Channel.Framing == "" {
		c.Channel.Framing = FramingLength
	}
	if c.Channel.MaxMessageSize == 0 {
		c.Channel.MaxMessageSize = 1 << 20
	}
	if c.Channel.ReadBufferSize == 0 {
		c.Channel.ReadBufferSize = 2048
	}
	if c.Channel.MaxConnections == 0 {
		c.Channel.MaxConnections = 1
	}
	if c.Channel.DialTimeout.Duration == 0 {
		c.Channel.DialTimeout.Duration = 5 * time.Second
	}
	if c.Channel.DialRetryInterval.Duration == 0 {
		c.Channel.DialRetryInterval.Duration = 50 * time.Millisecond
	}

	// Runtime
	if c.Runtime.MaxCallDepth == 0 {
		c.Runtime.MaxCallDepth = 1000
	}

	// Log
	if c.Log.Color == "" {
		c.Log.Color = "auto"
	}
}

// Validate reports settings that cannot be used.
func (c *Config) Validate() error {
	switch c.Channel.Framing {
	case FramingLength, FramingRaw:
	default:
		return fmt.Errorf("invalid channel.framing %q, must be %q or %q",
			c.Channel.Framing, FramingLength, FramingRaw)
	}
	if c.Channel.MaxMessageSize < 0 || c.Channel.ReadBufferSize < 0 {
		return fmt.Errorf("channel message sizes must be positive")
	}
	if c.Runtime.MaxParallel < 0 {
		return fmt.Errorf("runtime.max_parallel must not be negative")
	}
	switch c.Log.Color {
	case "auto", "always", "never":
	default:
		return fmt.Errorf("invalid log.color %q, must be auto, always or never", c.Log.Color)
	}
	return nil
}
