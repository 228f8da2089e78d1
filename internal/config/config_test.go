package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cogman/internal/gate"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "cogman", cfg.Name)
	assert.Equal(t, 128, cfg.Runtime.QueueSize)
	assert.Equal(t, "default", cfg.Gate.ActiveProfile)
	assert.Equal(t, 0.62, cfg.WorkingMemory.EntropyCeiling)

	poll, err := cfg.IdlePoll()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Millisecond, poll)
}

func TestLoadLayersOverDefaults(t *testing.T) {
	path := writeFile(t, "cogman.yaml", `
runtime:
  queue_size: 16
  idle_poll: 50ms
gate:
  active_profile: strict
logging:
  level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 16, cfg.Runtime.QueueSize)
	assert.Equal(t, "strict", cfg.Gate.ActiveProfile)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// untouched sections keep their defaults
	assert.Equal(t, 16, cfg.Runtime.HistoryDepth)
	assert.Equal(t, 0.62, cfg.WorkingMemory.EntropyCeiling)

	poll, err := cfg.IdlePoll()
	require.NoError(t, err)
	assert.Equal(t, 50*time.Millisecond, poll)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"zero queue", "runtime:\n  queue_size: -1\n"},
		{"bad idle poll", "runtime:\n  idle_poll: soon\n"},
		{"entropy ceiling above one", "working_memory:\n  entropy_ceiling: 1.5\n"},
		{"unknown log level", "logging:\n  level: loud\n"},
		{"not yaml", "{{{"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "cogman.yaml", tt.yaml)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestWMRouterConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WorkingMemory.EntropyCeiling = 0.5
	cfg.WorkingMemory.StabilityFloor = 0.6

	rc := cfg.WMRouterConfig()
	assert.Equal(t, 0.5, rc.HMax)
	assert.Equal(t, 0.6, rc.SMin)
	// fields not exposed in YAML keep router defaults
	assert.Equal(t, 0.8, rc.ActionIntensity)
	assert.NoError(t, rc.Validate())
}

const profilesYAML = `
meta:
  protocol: CORE9_v1.0
  version: "2.1"
profiles:
  strict:
    fail_closed: true
    s_min: 0.7
    bands:
      h_max: 0.5
      d_max: 0.7
      v_max: 4.0
      e_mu_restrict_max: 20
      e_mu_caution_min: 20
      e_mu_caution_max: 40
      e_mu_accept_min: 40
      e_mu_accept_max: 80
  legacy:
    fail_closed: false
  broken:
    bands:
      e_mu_restrict_max: 50
      e_mu_caution_min: 20
      e_mu_caution_max: 40
      e_mu_accept_min: 40
      e_mu_accept_max: 80
`

func TestLoadProfiles(t *testing.T) {
	path := writeFile(t, "profiles.yaml", profilesYAML)
	pf, err := LoadProfiles(path)
	require.NoError(t, err)
	assert.Equal(t, "CORE9_v1.0", pf.Meta.Protocol)
	assert.Len(t, pf.Profiles, 3)
}

func TestProfileResolution(t *testing.T) {
	path := writeFile(t, "profiles.yaml", profilesYAML)
	pf, err := LoadProfiles(path)
	require.NoError(t, err)

	t.Run("named profile overrides", func(t *testing.T) {
		p, err := pf.Policy("strict")
		require.NoError(t, err)
		assert.Equal(t, "strict", p.Name)
		assert.Equal(t, "2.1", p.Version)
		assert.True(t, p.FailClosed)
		assert.Equal(t, 0.7, p.SMin)
		assert.Equal(t, 0.5, p.Bands.HMax)
	})

	t.Run("sparse profile inherits defaults", func(t *testing.T) {
		p, err := pf.Policy("legacy")
		require.NoError(t, err)
		assert.False(t, p.FailClosed)
		assert.Equal(t, gate.DefaultPolicy().SMin, p.SMin)
		assert.Equal(t, gate.DefaultBands(), p.Bands)
	})

	t.Run("absent default falls back to built-in", func(t *testing.T) {
		p, err := pf.Policy("default")
		require.NoError(t, err)
		assert.Equal(t, gate.DefaultPolicy(), p)
	})

	t.Run("unknown profile errors", func(t *testing.T) {
		_, err := pf.Policy("no-such-profile")
		assert.Error(t, err)
	})

	t.Run("overlapping bands rejected", func(t *testing.T) {
		_, err := pf.Policy("broken")
		assert.Error(t, err)
	})
}

func TestLoadProfilesMissingFile(t *testing.T) {
	pf, err := LoadProfiles(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	p, err := pf.Policy("default")
	require.NoError(t, err)
	assert.Equal(t, gate.DefaultPolicy(), p)
}

func TestResolvePolicy(t *testing.T) {
	t.Run("no profiles path", func(t *testing.T) {
		p, err := GateConfig{}.ResolvePolicy()
		require.NoError(t, err)
		assert.Equal(t, gate.DefaultPolicy(), p)
	})

	t.Run("active profile from file", func(t *testing.T) {
		path := writeFile(t, "profiles.yaml", profilesYAML)
		p, err := GateConfig{ProfilesPath: path, ActiveProfile: "strict"}.ResolvePolicy()
		require.NoError(t, err)
		assert.Equal(t, "strict", p.Name)
	})
}
