// Package config loads the runtime configuration and the admission policy
// profiles from YAML.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"cogman/internal/gate"
	"cogman/internal/wm"
)

// Config holds all cogman configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Phase sequencer
	Runtime RuntimeConfig `yaml:"runtime"`

	// Admission gate
	Gate GateConfig `yaml:"gate"`

	// Working-memory router
	WorkingMemory WMConfig `yaml:"working_memory"`

	// Trace persistence
	Storage StorageConfig `yaml:"storage"`

	// Async post-processing
	PostProcessing PostConfig `yaml:"post_processing"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// RuntimeConfig configures the phase sequencer.
type RuntimeConfig struct {
	Mode         string `yaml:"mode"` // normal, degraded
	QueueSize    int    `yaml:"queue_size"`
	IdlePoll     string `yaml:"idle_poll"`
	HistoryDepth int    `yaml:"history_depth"`
}

// GateConfig configures the admission gate.
type GateConfig struct {
	// Path to the policy profiles file; empty means built-in defaults only.
	ProfilesPath string `yaml:"profiles_path"`

	// Profile selected at startup.
	ActiveProfile string `yaml:"active_profile"`

	// Reload the active profile when the profiles file changes on disk.
	WatchProfiles bool `yaml:"watch_profiles"`
}

// WMConfig configures the working-memory router thresholds.
type WMConfig struct {
	EntropyCeiling  float64 `yaml:"entropy_ceiling"`
	StabilityFloor  float64 `yaml:"stability_floor"`
	EpisodicTrigger float64 `yaml:"episodic_trigger"`
	SemanticTrigger float64 `yaml:"semantic_trigger"`
}

// StorageConfig configures trace persistence.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// PostConfig configures the post-processing worker.
type PostConfig struct {
	BufferSize int `yaml:"buffer_size"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "cogman",
		Version: "1.0.0",

		Runtime: RuntimeConfig{
			Mode:         "normal",
			QueueSize:    128,
			IdlePoll:     "10ms",
			HistoryDepth: 16,
		},

		Gate: GateConfig{
			ActiveProfile: "default",
			WatchProfiles: false,
		},

		WorkingMemory: WMConfig{
			EntropyCeiling:  0.62,
			StabilityFloor:  0.5,
			EpisodicTrigger: 0.7,
			SemanticTrigger: 0.8,
		},

		Storage: StorageConfig{
			DatabasePath: filepath.Join(".cogman", "traces.db"),
		},

		PostProcessing: PostConfig{
			BufferSize: 64,
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads the config file at path, layered over defaults. A missing file
// is not an error: the defaults apply unchanged.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the loaded values.
func (c *Config) Validate() error {
	if c.Runtime.QueueSize <= 0 {
		return fmt.Errorf("config: runtime.queue_size must be positive, got %d", c.Runtime.QueueSize)
	}
	if c.Runtime.HistoryDepth <= 0 {
		return fmt.Errorf("config: runtime.history_depth must be positive, got %d", c.Runtime.HistoryDepth)
	}
	if _, err := c.IdlePoll(); err != nil {
		return fmt.Errorf("config: runtime.idle_poll: %w", err)
	}
	if c.WorkingMemory.EntropyCeiling <= 0 || c.WorkingMemory.EntropyCeiling > 1 {
		return fmt.Errorf("config: working_memory.entropy_ceiling must be in (0, 1], got %v", c.WorkingMemory.EntropyCeiling)
	}
	if c.WorkingMemory.StabilityFloor < 0 || c.WorkingMemory.StabilityFloor > 1 {
		return fmt.Errorf("config: working_memory.stability_floor must be in [0, 1], got %v", c.WorkingMemory.StabilityFloor)
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: logging.level %q not recognized", c.Logging.Level)
	}
	return nil
}

// IdlePoll parses the idle poll interval.
func (c *Config) IdlePoll() (time.Duration, error) {
	if c.Runtime.IdlePoll == "" {
		return 10 * time.Millisecond, nil
	}
	return time.ParseDuration(c.Runtime.IdlePoll)
}

// WMRouterConfig converts the YAML thresholds into the router config,
// filling the fields the file does not expose with router defaults.
func (c *Config) WMRouterConfig() wm.Config {
	out := wm.DefaultConfig()
	out.HMax = c.WorkingMemory.EntropyCeiling
	out.SMin = c.WorkingMemory.StabilityFloor
	out.EpisodicTrigger = c.WorkingMemory.EpisodicTrigger
	out.SemanticTrigger = c.WorkingMemory.SemanticTrigger
	return out
}

// =============================================================================
// GATE POLICY PROFILES
// =============================================================================

// ProfilesFile is the on-disk shape of the gate policy profiles.
type ProfilesFile struct {
	Meta     ProfilesMeta           `yaml:"meta"`
	Profiles map[string]ProfileSpec `yaml:"profiles"`
}

// ProfilesMeta identifies the profile set.
type ProfilesMeta struct {
	Protocol string `yaml:"protocol"`
	Version  string `yaml:"version"`
}

// ProfileSpec is one named admission policy. Zero-valued fields inherit the
// built-in defaults so a profile only has to name what it tightens.
type ProfileSpec struct {
	FailClosed *bool       `yaml:"fail_closed"`
	SMin       *float64    `yaml:"s_min"`
	Bands      *gate.Bands `yaml:"bands"`
}

// LoadProfiles reads the profiles file. A missing file yields an empty set;
// callers fall back to gate.DefaultPolicy.
func LoadProfiles(path string) (*ProfilesFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &ProfilesFile{Profiles: map[string]ProfileSpec{}}, nil
		}
		return nil, fmt.Errorf("config: read profiles %s: %w", path, err)
	}

	var pf ProfilesFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("config: parse profiles %s: %w", path, err)
	}
	if pf.Profiles == nil {
		pf.Profiles = map[string]ProfileSpec{}
	}
	return &pf, nil
}

// Policy resolves one named profile into a full gate policy. An unknown name
// is an error rather than a silent fallback: admission thresholds are not
// something to guess at.
func (pf *ProfilesFile) Policy(name string) (gate.Policy, error) {
	if name == "" || name == "default" {
		if _, ok := pf.Profiles[name]; !ok {
			return gate.DefaultPolicy(), nil
		}
	}

	spec, ok := pf.Profiles[name]
	if !ok {
		return gate.Policy{}, fmt.Errorf("config: gate profile %q not found", name)
	}

	policy := gate.DefaultPolicy()
	policy.Name = name
	if pf.Meta.Version != "" {
		policy.Version = pf.Meta.Version
	}
	if spec.FailClosed != nil {
		policy.FailClosed = *spec.FailClosed
	}
	if spec.SMin != nil {
		policy.SMin = *spec.SMin
	}
	if spec.Bands != nil {
		policy.Bands = *spec.Bands
	}

	if err := policy.Bands.Validate(); err != nil {
		return gate.Policy{}, fmt.Errorf("config: gate profile %q: %w", name, err)
	}
	return policy, nil
}

// ResolvePolicy loads the profiles file (if configured) and resolves the
// active profile in one step.
func (gc GateConfig) ResolvePolicy() (gate.Policy, error) {
	if gc.ProfilesPath == "" {
		return gate.DefaultPolicy(), nil
	}
	pf, err := LoadProfiles(gc.ProfilesPath)
	if err != nil {
		return gate.Policy{}, err
	}
	return pf.Policy(gc.ActiveProfile)
}
