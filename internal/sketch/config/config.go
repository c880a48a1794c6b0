// Package config loads the sketch client settings from a YAML file with
// environment overrides.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigFileName = "sketch.yaml"
	DefaultServer         = "http://localhost:8081"
	DefaultCallTimeout    = 30 * time.Second
)

type Config struct {
	// Server is the gateway base URL used by the HTTP fallback.
	Server string `yaml:"server"`
	// Socket overrides the websocket URL derived from Server.
	Socket      string        `yaml:"socket,omitempty"`
	ClientID    string        `yaml:"client_id,omitempty"`
	Token       string        `yaml:"token,omitempty"`
	CallTimeout time.Duration `yaml:"call_timeout,omitempty"`
	// NoSocket forces every call over HTTP.
	NoSocket bool `yaml:"no_socket,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Server:      DefaultServer,
		CallTimeout: DefaultCallTimeout,
	}
}

// DefaultPath is sketchbook/sketch.yaml under the user config directory.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return DefaultConfigFileName
	}
	return filepath.Join(dir, "sketchbook", DefaultConfigFileName)
}

// Loader reads and writes one config file.
type Loader struct {
	configPath string
}

func NewLoader(configPath string) *Loader {
	return &Loader{configPath: configPath}
}

func (l *Loader) GetPath() string { return l.configPath }

// Load returns the defaults when the file does not exist.
func (l *Loader) Load() (*Config, error) {
	data, err := os.ReadFile(l.configPath)
	if os.IsNotExist(err) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if cfg.Server == "" {
		cfg.Server = DefaultServer
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	return cfg, nil
}

func (l *Loader) Save(cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(l.configPath), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(l.configPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// EnsureClientID assigns a client id on first use and persists it.
func (l *Loader) EnsureClientID(cfg *Config) error {
	if cfg.ClientID != "" {
		return nil
	}
	cfg.ClientID = uuid.NewString()
	return l.Save(cfg)
}

// ApplyEnv overrides file values with SKETCH_SERVER, SKETCH_SOCKET and
// SKETCH_TOKEN.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := strings.TrimSpace(getenv("SKETCH_SERVER")); v != "" {
		c.Server = v
	}
	if v := strings.TrimSpace(getenv("SKETCH_SOCKET")); v != "" {
		c.Socket = v
	}
	if v := strings.TrimSpace(getenv("SKETCH_TOKEN")); v != "" {
		c.Token = v
	}
}

// SocketURL returns Socket, or Server with a ws scheme and the /ws path.
func (c *Config) SocketURL() (string, error) {
	if c.Socket != "" {
		return c.Socket, nil
	}
	u, err := url.Parse(c.Server)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("server url %q must be http or https", c.Server)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}
