// Package config handles configuration loading and validation for mqchat.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/hay-kot/criterio"
	"gopkg.in/yaml.v3"

	"github.com/hay-kot/mqchat/internal/core/topic"
)

// Broker URL schemes accepted by Validate.
var brokerSchemes = map[string]bool{
	"tcp":      true,
	"mqtt":     true,
	"ssl":      true,
	"tls":      true,
	"mqtts":    true,
	"ws":       true,
	"wss":      true,
	"loopback": true,
}

// Config holds the application configuration.
type Config struct {
	Broker            string   `yaml:"broker"`
	Channel           string   `yaml:"channel"`
	Username          string   `yaml:"username"`
	BroadcastLabel    string   `yaml:"broadcast_label"`
	ChatDir           string   `yaml:"chat_dir"`
	ConnectTimeout    Duration `yaml:"connect_timeout"`
	QoS               byte     `yaml:"qos"`
	Retain            bool     `yaml:"retain"`
	SerializeHandlers bool     `yaml:"serialize_handlers"`
	DispatchBuffer    int      `yaml:"dispatch_buffer"`
	DataDir           string   `yaml:"-"` // set by caller, not from config file
}

// Duration is a time.Duration written as a Go duration string ("5s").
type Duration time.Duration

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	v, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(v)
	return nil
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Broker:            "tcp://localhost:1883",
		Channel:           "chat",
		BroadcastLabel:    "todos",
		ConnectTimeout:    Duration(5 * time.Second),
		QoS:               0,
		Retain:            true,
		SerializeHandlers: true,
		DispatchBuffer:    64,
	}
}

// Load reads configuration from the given path and sets the data directory.
// If configPath is empty or doesn't exist, returns defaults with the provided dataDir.
func Load(configPath, dataDir string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.DataDir = dataDir

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			data, err := os.ReadFile(configPath)
			if err != nil {
				return nil, fmt.Errorf("read config file: %w", err)
			}

			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}

			// Re-set dataDir since Unmarshal may have cleared it
			cfg.DataDir = dataDir
		}
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Save writes the configuration to path as YAML, creating parent directories.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// applyDefaults sets default values for any unset configuration options.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()
	if c.Broker == "" {
		c.Broker = defaults.Broker
	}
	if c.Channel == "" {
		c.Channel = defaults.Channel
	}
	if c.BroadcastLabel == "" {
		c.BroadcastLabel = defaults.BroadcastLabel
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = defaults.ConnectTimeout
	}
	if c.DispatchBuffer == 0 {
		c.DispatchBuffer = defaults.DispatchBuffer
	}
	if c.ChatDir == "" && c.DataDir != "" {
		c.ChatDir = filepath.Join(c.DataDir, "chats")
	}
}

// Validate checks that the configuration is valid. An empty username is
// allowed here; commands that connect call RequireUsername.
func (c *Config) Validate() error {
	return c.fieldErrors().ToError()
}

// RequireUsername reports an error when no username is configured.
func (c *Config) RequireUsername() error {
	if c.Username == "" {
		return criterio.NewFieldErrors("username", errors.New("is required (set it in the config file or pass --user)"))
	}
	return nil
}

// Timeout returns the connect timeout as a time.Duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.ConnectTimeout)
}

func (c *Config) fieldErrors() criterio.FieldErrorsBuilder {
	var errs criterio.FieldErrorsBuilder

	if err := validateBroker(c.Broker); err != nil {
		errs = errs.Append("broker", err)
	}

	if err := topic.ValidateIdentity(c.Channel); err != nil {
		errs = errs.Append("channel", err)
	}

	if err := topic.ValidateIdentity(c.BroadcastLabel); err != nil {
		errs = errs.Append("broadcast_label", err)
	}

	if c.Username != "" {
		if err := topic.ValidateIdentity(c.Username); err != nil {
			errs = errs.Append("username", err)
		} else if c.Username == c.BroadcastLabel {
			errs = errs.Append("username", fmt.Errorf("cannot be the broadcast label %q", c.BroadcastLabel))
		}
	}

	if c.ChatDir == "" {
		errs = errs.Append("chat_dir", errors.New("cannot be empty"))
	}

	if c.ConnectTimeout <= 0 {
		errs = errs.Append("connect_timeout", errors.New("must be positive"))
	}

	if c.QoS > 2 {
		errs = errs.Append("qos", fmt.Errorf("must be 0, 1 or 2, got %d", c.QoS))
	}

	if c.DispatchBuffer < 1 {
		errs = errs.Append("dispatch_buffer", errors.New("must be at least 1"))
	}

	return errs
}

func validateBroker(raw string) error {
	if raw == "" {
		return errors.New("cannot be empty")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}

	if !brokerSchemes[u.Scheme] {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	if u.Scheme != "loopback" && u.Host == "" {
		return errors.New("missing host")
	}

	return nil
}
