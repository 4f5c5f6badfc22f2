// Package config loads the stream bindings and runtime settings.
//
// Precedence, lowest first: built-in defaults, the YAML file, environment
// variables, then command-line flags (applied by cmd).
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/andresmejia3/framewall/internal/types"
	"gopkg.in/yaml.v2"
)

// Config is the full runtime configuration
type Config struct {
	Scheme  string          `yaml:"scheme"`
	Host    string          `yaml:"host"`
	Streams []types.Binding `yaml:"streams"`

	Listen           string `yaml:"listen"`
	HandshakeTimeout string `yaml:"handshake_timeout"`
	ReadLimit        int64  `yaml:"read_limit"`
	DropStale        bool   `yaml:"drop_stale"`

	DB       string         `yaml:"db"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
}

// SnapshotConfig controls periodic surface snapshots
type SnapshotConfig struct {
	Interval string `yaml:"interval"`
	Dir      string `yaml:"dir"`
	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
}

// DefaultStreams are the four dashboard streams
func DefaultStreams() []types.Binding {
	return []types.Binding{
		{Surface: "videoCanvas", Path: "/ws/video"},
		{Surface: "poseCanvas", Path: "/ws/poses"},
		{Surface: "objectCanvas", Path: "/ws/objects"},
		{Surface: "faceCanvas", Path: "/ws/faces"},
	}
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Scheme:           "ws",
		Host:             "localhost:8000",
		Streams:          DefaultStreams(),
		Listen:           ":8090",
		HandshakeTimeout: "10s",
		Snapshot: SnapshotConfig{
			Interval: "5s",
			Region:   "us-east-1",
		},
	}
}

// Load reads path over the defaults (an empty path skips the file) and applies the environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.ApplyEnv(os.Getenv)
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables looked up with getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if host := getenv("FRAMEWALL_HOST"); host != "" {
		c.Host = host
	}
	// Same connection-string assembly the compose setup uses for Postgres
	if c.DB == "" {
		if host := getenv("POSTGRES_HOST"); host != "" {
			port := getenv("POSTGRES_PORT")
			if port == "" {
				port = "5432"
			}
			c.DB = fmt.Sprintf("postgres://%s:%s@%s:%s/%s",
				getenv("POSTGRES_USER"), getenv("POSTGRES_PASSWORD"), host, port, getenv("POSTGRES_DB"))
		}
	}
}

// URL builds the stream address for a binding. A path that is already a
// ws:// or wss:// URL is returned as is.
func (c Config) URL(b types.Binding) string {
	if strings.HasPrefix(b.Path, "ws://") || strings.HasPrefix(b.Path, "wss://") {
		return b.Path
	}
	path := b.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return fmt.Sprintf("%s://%s%s", c.Scheme, c.Host, path)
}

// HandshakeTimeoutDuration parses HandshakeTimeout; Validate guarantees it parses.
func (c Config) HandshakeTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.HandshakeTimeout)
	return d
}

// SnapshotInterval parses Snapshot.Interval.
func (c Config) SnapshotInterval() time.Duration {
	d, _ := time.ParseDuration(c.Snapshot.Interval)
	return d
}

// Validate ensures the configuration is usable before anything connects.
func (c Config) Validate() error {
	if c.Scheme != "ws" && c.Scheme != "wss" {
		return fmt.Errorf("scheme must be ws or wss, got %q", c.Scheme)
	}
	if c.Host == "" {
		return fmt.Errorf("host must not be empty")
	}
	if len(c.Streams) == 0 {
		return fmt.Errorf("at least one stream binding is required")
	}

	seen := make(map[string]bool)
	for _, b := range c.Streams {
		if b.Surface == "" || b.Path == "" {
			return fmt.Errorf("stream binding needs both surface and path, got %+v", b)
		}
		if seen[b.Surface] {
			return fmt.Errorf("surface %q is bound twice", b.Surface)
		}
		seen[b.Surface] = true
	}

	if _, err := time.ParseDuration(c.HandshakeTimeout); err != nil {
		return fmt.Errorf("invalid handshake_timeout (use '10s', '500ms'): %w", err)
	}
	if c.ReadLimit < 0 {
		return fmt.Errorf("read_limit must be >= 0, got %d", c.ReadLimit)
	}

	if c.Snapshot.Dir != "" || c.Snapshot.Bucket != "" {
		d, err := time.ParseDuration(c.Snapshot.Interval)
		if err != nil {
			return fmt.Errorf("invalid snapshot interval: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("snapshot interval must be positive, got %s", d)
		}
	}
	return nil
}

// ParseBinding parses a "surface=path" flag value.
func ParseBinding(s string) (types.Binding, error) {
	surface, path, ok := strings.Cut(s, "=")
	surface, path = strings.TrimSpace(surface), strings.TrimSpace(path)
	if !ok || surface == "" || path == "" {
		return types.Binding{}, fmt.Errorf("stream %q must look like surface=/ws/path", s)
	}
	return types.Binding{Surface: surface, Path: path}, nil
}
