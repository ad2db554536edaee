package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/cuemby/foreman/pkg/registry"
	"github.com/cuemby/foreman/pkg/types"
	"gopkg.in/yaml.v3"
)

// Defaults for the coordinator section
const (
	DefaultAPIAddr         = "127.0.0.1:7070"
	DefaultHealthInterval  = 30 * time.Second
	DefaultRestartDelay    = time.Second
	DefaultShutdownTimeout = 10 * time.Second
	DefaultStopGracePeriod = 10 * time.Second
	DefaultLogLevel        = "info"
	DefaultLogLines        = 500
	DefaultMaxEvents       = 1000
)

// Config is a fleet file
type Config struct {
	Coordinator Coordinator               `yaml:"coordinator" toml:"coordinator"`
	Workers     []*types.WorkerDefinition `yaml:"workers" toml:"workers"`
}

// Coordinator holds coordinator-wide settings
type Coordinator struct {
	APIAddr         string        `yaml:"api_addr" toml:"api_addr"`
	APIReadOnly     bool          `yaml:"api_read_only" toml:"api_read_only"`
	DataDir         string        `yaml:"data_dir" toml:"data_dir"`
	HealthInterval  time.Duration `yaml:"health_interval" toml:"health_interval"`
	RestartDelay    time.Duration `yaml:"restart_delay" toml:"restart_delay"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
	StopGracePeriod time.Duration `yaml:"stop_grace_period" toml:"stop_grace_period"`
	LogLevel        string        `yaml:"log_level" toml:"log_level"`
	LogJSON         bool          `yaml:"log_json" toml:"log_json"`
	LogLines        int           `yaml:"log_lines" toml:"log_lines"`
	MaxEvents       int           `yaml:"max_events" toml:"max_events"`

	// Autostart starts every worker once the coordinator is up
	Autostart bool `yaml:"autostart" toml:"autostart"`
}

// Load reads, expands, decodes, defaults and validates a fleet file.
// The format is chosen by extension: .yaml/.yml or .toml.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := Parse(data, formatOf(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Format is a fleet file encoding
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

func formatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML
	default:
		return FormatYAML
	}
}

// envRef matches the braced ${VAR} form only. Bare $name, $$ and $1 belong
// to worker scripts and are left alone.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv replaces ${VAR} references with host environment values
func expandEnv(data []byte) []byte {
	return envRef.ReplaceAllFunc(data, func(ref []byte) []byte {
		return []byte(os.Getenv(string(ref[2 : len(ref)-1])))
	})
}

// Parse decodes a fleet file held in memory. ${VAR} references are
// expanded from the host environment before decoding.
func Parse(data []byte, format Format) (*Config, error) {
	expanded := expandEnv(data)

	var cfg Config
	switch format {
	case FormatTOML:
		md, err := toml.Decode(string(expanded), &cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to parse TOML: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
		}
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(expanded))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills unset coordinator fields
func (c *Config) ApplyDefaults() {
	co := &c.Coordinator
	if co.APIAddr == "" {
		co.APIAddr = DefaultAPIAddr
	}
	if co.HealthInterval == 0 {
		co.HealthInterval = DefaultHealthInterval
	}
	if co.RestartDelay == 0 {
		co.RestartDelay = DefaultRestartDelay
	}
	if co.ShutdownTimeout == 0 {
		co.ShutdownTimeout = DefaultShutdownTimeout
	}
	if co.StopGracePeriod == 0 {
		co.StopGracePeriod = DefaultStopGracePeriod
	}
	if co.LogLevel == "" {
		co.LogLevel = DefaultLogLevel
	}
	if co.LogLines == 0 {
		co.LogLines = DefaultLogLines
	}
	if co.MaxEvents == 0 {
		co.MaxEvents = DefaultMaxEvents
	}
}

// Validate reports every problem in the file at once
func (c *Config) Validate() error {
	var errs []error

	co := c.Coordinator
	for _, d := range []struct {
		key string
		val time.Duration
	}{
		{"health_interval", co.HealthInterval},
		{"restart_delay", co.RestartDelay},
		{"shutdown_timeout", co.ShutdownTimeout},
		{"stop_grace_period", co.StopGracePeriod},
	} {
		if d.val < 0 {
			errs = append(errs, fmt.Errorf("coordinator.%s must not be negative", d.key))
		}
	}
	if co.LogLines < 0 {
		errs = append(errs, fmt.Errorf("coordinator.log_lines must not be negative"))
	}
	if co.MaxEvents < 0 {
		errs = append(errs, fmt.Errorf("coordinator.max_events must not be negative"))
	}
	switch strings.ToLower(co.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("coordinator.log_level %q is not one of debug, info, warn, error", co.LogLevel))
	}

	seen := make(map[string]bool, len(c.Workers))
	for i, w := range c.Workers {
		if w == nil {
			errs = append(errs, fmt.Errorf("workers[%d]: empty entry", i))
			continue
		}
		if w.Name != "" && seen[w.Name] {
			errs = append(errs, fmt.Errorf("workers[%d]: duplicate name %q", i, w.Name))
		}
		seen[w.Name] = true
		if err := registry.Validate(w); err != nil {
			errs = append(errs, fmt.Errorf("workers[%d] (%s): %w", i, w.Name, err))
		}
	}

	return errors.Join(errs...)
}
