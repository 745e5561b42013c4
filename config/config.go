// Package config loads and validates the node configuration. A YAML
// file provides the base layer, environment variables override
// individual fields, and defaults fill the rest.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/catcatai/hsp/learning"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "600s" as well as plain nanosecond integers.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if parsed, err := time.ParseDuration(value.Value); err == nil {
		*d = Duration(parsed)
		return nil
	}
	n, err := strconv.ParseInt(value.Value, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid duration %q", value.Value)
	}
	*d = Duration(n)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Transport kind constants.
const (
	TransportMQTT = "mqtt"
	TransportNATS = "nats"
)

// Memory backend constants.
const (
	MemoryBackendInMem  = "inmem"
	MemoryBackendSQLite = "sqlite"
)

// Config is the complete node configuration.
type Config struct {
	AIID      string          `yaml:"ai_id"`
	Transport TransportConfig `yaml:"transport"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Learning  learning.Config `yaml:"learning"`
	Memory    MemoryConfig    `yaml:"memory"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// TransportConfig selects and parameterizes the external broker
// connection.
type TransportConfig struct {
	Kind     string `yaml:"kind"` // "mqtt" or "nats"
	URL      string `yaml:"url"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// DiscoveryConfig parameterizes the capability registry.
type DiscoveryConfig struct {
	StalenessThreshold Duration `yaml:"staleness_threshold"`
	SweepInterval      Duration `yaml:"sweep_interval"`
	// ReadvertiseInterval controls how often this node re-announces
	// its own capabilities. Zero disables re-advertisement.
	ReadvertiseInterval Duration `yaml:"readvertise_interval"`
}

// MemoryConfig selects the experience-store backend.
type MemoryConfig struct {
	Backend string `yaml:"backend"` // "inmem" or "sqlite"
	Path    string `yaml:"path"`    // sqlite database file
}

// MetricsConfig parameterizes the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Default returns a configuration with every field at its stock value.
// The AIID still has to be set by the caller or the file.
func Default() *Config {
	return &Config{
		Transport: TransportConfig{
			Kind: TransportMQTT,
			URL:  "tcp://localhost:1883",
		},
		Discovery: DiscoveryConfig{
			StalenessThreshold:  Duration(600 * time.Second),
			SweepInterval:       Duration(60 * time.Second),
			ReadvertiseInterval: Duration(300 * time.Second),
		},
		Learning: learning.DefaultConfig(),
		Memory: MemoryConfig{
			Backend: MemoryBackendInMem,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    ":9102",
		},
	}
}

// Validate checks the configuration for startup-blocking problems.
func (c *Config) Validate() error {
	if c.AIID == "" {
		return fmt.Errorf("ai_id is required")
	}
	switch c.Transport.Kind {
	case TransportMQTT, TransportNATS:
	default:
		return fmt.Errorf("transport.kind must be %q or %q, got %q", TransportMQTT, TransportNATS, c.Transport.Kind)
	}
	if c.Transport.URL == "" {
		return fmt.Errorf("transport.url is required")
	}
	if c.Discovery.StalenessThreshold <= 0 {
		return fmt.Errorf("discovery.staleness_threshold must be positive")
	}
	if c.Discovery.SweepInterval <= 0 {
		return fmt.Errorf("discovery.sweep_interval must be positive")
	}
	switch c.Memory.Backend {
	case MemoryBackendInMem:
	case MemoryBackendSQLite:
		if c.Memory.Path == "" {
			return fmt.Errorf("memory.path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("memory.backend must be %q or %q, got %q", MemoryBackendInMem, MemoryBackendSQLite, c.Memory.Backend)
	}
	for name, v := range map[string]float64{
		"learning.min_fact_confidence_to_store":     c.Learning.MinFactConfidenceToStore,
		"learning.min_fact_confidence_to_share":     c.Learning.MinFactConfidenceToShare,
		"learning.min_hsp_fact_confidence_to_store": c.Learning.MinHSPFactConfidenceToStore,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be in [0, 1], got %v", name, v)
		}
	}
	return nil
}

// Loader reads a config file and applies environment overrides.
type Loader struct {
	path      string
	envPrefix string
}

// NewLoader creates a loader. An empty path skips the file layer.
func NewLoader(path string) *Loader {
	return &Loader{path: path, envPrefix: "HSP"}
}

// WithEnvPrefix changes the prefix used for override variables.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// Load builds the effective configuration: defaults, then file, then
// environment, then validation.
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	if l.path != "" {
		data, err := os.ReadFile(l.path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	l.applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (l *Loader) applyEnvOverrides(cfg *Config) {
	if val := os.Getenv(l.envPrefix + "_AI_ID"); val != "" {
		cfg.AIID = val
	}
	if val := os.Getenv(l.envPrefix + "_TRANSPORT_KIND"); val != "" {
		cfg.Transport.Kind = val
	}
	if val := os.Getenv(l.envPrefix + "_TRANSPORT_URL"); val != "" {
		cfg.Transport.URL = val
	}
	if val := os.Getenv(l.envPrefix + "_TRANSPORT_USERNAME"); val != "" {
		cfg.Transport.Username = val
	}
	if val := os.Getenv(l.envPrefix + "_TRANSPORT_PASSWORD"); val != "" {
		cfg.Transport.Password = val
	}
	if val := os.Getenv(l.envPrefix + "_MEMORY_BACKEND"); val != "" {
		cfg.Memory.Backend = val
	}
	if val := os.Getenv(l.envPrefix + "_MEMORY_PATH"); val != "" {
		cfg.Memory.Path = val
	}
	if val := os.Getenv(l.envPrefix + "_METRICS_ADDR"); val != "" {
		cfg.Metrics.Addr = val
		cfg.Metrics.Enabled = true
	}
	if val := os.Getenv(l.envPrefix + "_STALENESS_THRESHOLD"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Discovery.StalenessThreshold = Duration(d)
		}
	}
	if val := os.Getenv(l.envPrefix + "_MIN_HSP_FACT_CONFIDENCE"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Learning.MinHSPFactConfidenceToStore = f
		}
	}
}

// Redacted returns a copy safe for logging, with credentials masked.
func (c *Config) Redacted() Config {
	out := *c
	if out.Transport.Password != "" {
		out.Transport.Password = "****"
	}
	return out
}

// String renders the redacted configuration for log lines.
func (c *Config) String() string {
	red := c.Redacted()
	data, err := yaml.Marshal(&red)
	if err != nil {
		return "<unprintable config>"
	}
	return strings.TrimSpace(string(data))
}

// SafeConfig provides thread-safe access to a live configuration.
type SafeConfig struct {
	mu  sync.RWMutex
	cfg *Config
}

// NewSafeConfig wraps a configuration for shared access.
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = Default()
	}
	return &SafeConfig{cfg: cfg}
}

// Get returns a copy of the current configuration.
func (sc *SafeConfig) Get() Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return *sc.cfg
}

// Update swaps in a new configuration after validating it.
func (sc *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	sc.mu.Lock()
	sc.cfg = cfg
	sc.mu.Unlock()
	return nil
}
