package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/lnrelay/errors"
	"github.com/c360/lnrelay/node"
	"github.com/c360/lnrelay/pkg/security"
	"github.com/c360/lnrelay/relay"
)

// Registry modes
const (
	RegistryStatic = "static" // Nodes come from the nodes section
	RegistryKV     = "kv"     // Nodes come from a JetStream KV bucket
)

// Config represents the complete relay configuration
type Config struct {
	Relay    relay.Config      `json:"relay"`
	NATS     NATSConfig        `json:"nats"`
	Registry RegistryConfig    `json:"registry"`
	Nodes    []node.Descriptor `json:"nodes,omitempty"`
	Control  ControlConfig     `json:"control"`
	Security security.Config   `json:"security,omitempty"`
	Metrics  MetricsConfig     `json:"metrics"`
}

// NATSConfig defines NATS connection settings
type NATSConfig struct {
	// Enabled turns on NATS dispatch and the NATS control channel.
	// Without NATS events are logged and only in-process control works.
	Enabled       bool          `json:"enabled"`
	URLs          []string      `json:"urls,omitempty"`
	MaxReconnects int           `json:"max_reconnects,omitempty"`
	ReconnectWait time.Duration `json:"reconnect_wait,omitempty"`
	Username      string        `json:"username,omitempty"`
	Password      string        `json:"password,omitempty"`
	Token         string        `json:"token,omitempty"`
	SubjectPrefix string        `json:"subject_prefix,omitempty"`
	Name          string        `json:"name,omitempty"`
}

// RegistryConfig selects where node descriptors come from
type RegistryConfig struct {
	Mode   string `json:"mode"`
	Bucket string `json:"bucket,omitempty"`
	// Seed writes the nodes section into the KV bucket on startup
	Seed bool `json:"seed,omitempty"`
}

// ControlConfig throttles connect/disconnect commands.
// A zero RateLimit disables throttling.
type ControlConfig struct {
	RateLimit float64 `json:"rate_limit"` // commands per second
	Burst     int     `json:"burst,omitempty"`
}

// MetricsConfig configures the Prometheus and health endpoint
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Port    int    `json:"port"`
	Path    string `json:"path,omitempty"`
}

// Validate checks if the config is valid
func (c *Config) Validate() error {
	if err := c.Relay.Validate(); err != nil {
		return err
	}

	switch c.Registry.Mode {
	case RegistryStatic:
	case RegistryKV:
		if !c.NATS.Enabled {
			return errors.WrapInvalid(fmt.Errorf("registry mode %q requires nats.enabled", RegistryKV),
				"Config", "Validate", "check registry")
		}
		if c.Registry.Bucket == "" {
			return errors.WrapInvalid(fmt.Errorf("registry.bucket is required in kv mode"),
				"Config", "Validate", "check registry")
		}
	default:
		return errors.WrapInvalid(fmt.Errorf("unknown registry mode %q", c.Registry.Mode),
			"Config", "Validate", "check registry")
	}

	seen := make(map[int]bool, len(c.Nodes))
	for i := range c.Nodes {
		if err := c.Nodes[i].Validate(); err != nil {
			return err
		}
		if seen[c.Nodes[i].Index] {
			return errors.WrapInvalid(fmt.Errorf("duplicate node index %d", c.Nodes[i].Index),
				"Config", "Validate", "check nodes")
		}
		seen[c.Nodes[i].Index] = true
	}

	if c.NATS.Enabled {
		if len(c.NATS.URLs) == 0 {
			return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "check nats.urls")
		}
		if c.NATS.SubjectPrefix == "" || !isValidSubjectPrefix(c.NATS.SubjectPrefix) {
			return errors.WrapInvalid(fmt.Errorf("invalid nats.subject_prefix %q", c.NATS.SubjectPrefix),
				"Config", "Validate", "check nats")
		}
	}

	if c.Control.RateLimit < 0 || (c.Control.RateLimit > 0 && c.Control.Burst < 1) {
		return errors.WrapInvalid(
			fmt.Errorf("control.rate_limit %v needs a positive burst, got %d", c.Control.RateLimit, c.Control.Burst),
			"Config", "Validate", "check control")
	}

	if c.Metrics.Enabled && (c.Metrics.Port < 0 || c.Metrics.Port > 65535) {
		return errors.WrapInvalid(fmt.Errorf("metrics.port %d out of range", c.Metrics.Port),
			"Config", "Validate", "check metrics")
	}

	return nil
}

// isValidSubjectPrefix accepts dot-separated NATS tokens without wildcards
func isValidSubjectPrefix(s string) bool {
	for _, part := range strings.Split(s, ".") {
		if part == "" || strings.ContainsAny(part, "*> \t\r\n") {
			return false
		}
	}
	return true
}

// String returns a JSON representation of the config with secrets masked
func (c *Config) String() string {
	masked := *c
	if masked.NATS.Password != "" {
		masked.NATS.Password = "****"
	}
	if masked.NATS.Token != "" {
		masked.NATS.Token = "****"
	}
	masked.Nodes = make([]node.Descriptor, len(c.Nodes))
	for i, n := range c.Nodes {
		if n.APIPassword != "" {
			n.APIPassword = "****"
		}
		masked.Nodes[i] = n
	}

	data, _ := json.MarshalIndent(&masked, "", "  ")
	return string(data)
}

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		layers:     []string{},
		validation: true,
		envPrefix:  "LNRELAY",
	}
}

// AddLayer adds a configuration file layer. Later layers win.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables configuration validation
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// LoadFile loads configuration from a single file
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load loads and merges all configuration layers
func (l *Loader) Load() (*Config, error) {
	cfg := Defaults()

	for _, path := range l.layers {
		raw, err := l.loadRaw(path)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Loader", "Load", "load "+path)
		}
		cfg, err = l.mergeFromMap(cfg, raw)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Loader", "Load", "merge "+path)
		}
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Defaults returns the default configuration
func Defaults() *Config {
	return &Config{
		Relay: relay.DefaultConfig(),
		NATS: NATSConfig{
			URLs:          []string{"nats://localhost:4222"},
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
			SubjectPrefix: "lnrelay",
			Name:          "lnrelay",
		},
		Registry: RegistryConfig{
			Mode:   RegistryStatic,
			Bucket: node.DefaultBucket,
		},
		Control: ControlConfig{
			RateLimit: 20,
			Burst:     40,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
	}
}

// loadRaw loads a JSON or YAML file as a map
func (l *Loader) loadRaw(path string) (map[string]any, error) {
	data, err := safeReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: %w", errors.ErrParsingFailed, err)
		}
	default:
		if err := validateJSONDepth(data); err != nil {
			return nil, fmt.Errorf("invalid JSON structure: %w", err)
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: %w", errors.ErrParsingFailed, err)
		}
	}

	if err := l.parseDurations(raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// mergeFromMap merges configuration from a raw map, only overriding fields present in the map
func (l *Loader) mergeFromMap(base *Config, override map[string]any) (*Config, error) {
	if override == nil {
		return base, nil
	}

	baseJSON, err := json.Marshal(base)
	if err != nil {
		return nil, err
	}
	var baseMap map[string]any
	if err := json.Unmarshal(baseJSON, &baseMap); err != nil {
		return nil, err
	}

	mergedJSON, err := json.Marshal(l.deepMergeMaps(baseMap, override))
	if err != nil {
		return nil, err
	}

	var merged Config
	if err := json.Unmarshal(mergedJSON, &merged); err != nil {
		return nil, err
	}
	return &merged, nil
}

// deepMergeMaps recursively merges two maps, with override taking precedence.
// Lists such as nodes are replaced, not merged.
func (l *Loader) deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base))
	for k, v := range base {
		result[k] = v
	}

	for k, v := range override {
		if v == nil {
			continue
		}
		if baseMap, ok := base[k].(map[string]any); ok {
			if overrideMap, ok := v.(map[string]any); ok {
				result[k] = l.deepMergeMaps(baseMap, overrideMap)
				continue
			}
		}
		result[k] = v
	}

	return result
}

// durationKeys lists the settings that accept duration strings
var durationKeys = [][]string{
	{"relay", "backoff", "floor"},
	{"relay", "backoff", "ceiling"},
	{"relay", "handshake_timeout"},
	{"nats", "reconnect_wait"},
}

// parseDurations converts duration strings to nanoseconds for json unmarshaling
func (l *Loader) parseDurations(data map[string]any) error {
	for _, keys := range durationKeys {
		parent := data
		for _, k := range keys[:len(keys)-1] {
			next, ok := parent[k].(map[string]any)
			if !ok {
				parent = nil
				break
			}
			parent = next
		}
		if parent == nil {
			continue
		}

		last := keys[len(keys)-1]
		s, ok := parent[last].(string)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return errors.WrapInvalid(err, "Loader", "parseDurations", strings.Join(keys, "."))
		}
		parent[last] = d.Nanoseconds()
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	get := func(suffix string) (string, error) {
		key := l.envPrefix + "_" + suffix
		val := os.Getenv(key)
		if err := validateEnvVar(key, val); err != nil {
			return "", errors.WrapInvalid(err, "Loader", "applyEnvOverrides", "read "+key)
		}
		return val, nil
	}

	overrides := []struct {
		suffix string
		apply  func(string) error
	}{
		{"RELAY_IMPLEMENTATION", func(v string) error {
			impl, err := node.ParseImplementation(v)
			if err != nil {
				return err
			}
			cfg.Relay.Implementation = impl
			return nil
		}},
		{"NATS_ENABLED", func(v string) error {
			b, err := strconv.ParseBool(v)
			cfg.NATS.Enabled = b
			return err
		}},
		{"NATS_URLS", func(v string) error {
			cfg.NATS.URLs = strings.Split(v, ",")
			return nil
		}},
		{"NATS_USERNAME", func(v string) error { cfg.NATS.Username = v; return nil }},
		{"NATS_PASSWORD", func(v string) error { cfg.NATS.Password = v; return nil }},
		{"NATS_TOKEN", func(v string) error { cfg.NATS.Token = v; return nil }},
		{"REGISTRY_MODE", func(v string) error { cfg.Registry.Mode = v; return nil }},
		{"METRICS_PORT", func(v string) error {
			port, err := strconv.Atoi(v)
			cfg.Metrics.Port = port
			return err
		}},
	}

	for _, o := range overrides {
		val, err := get(o.suffix)
		if err != nil {
			return err
		}
		if val == "" {
			continue
		}
		if err := o.apply(val); err != nil {
			return errors.WrapInvalid(err, "Loader", "applyEnvOverrides", l.envPrefix+"_"+o.suffix)
		}
	}
	return nil
}
