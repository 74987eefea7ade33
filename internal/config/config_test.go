package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fairfight.hcl")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.hcl"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	require.NoError(t, cfg.Validate())
}

func TestLoadFullConfig(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, `
server {
  address   = "0.0.0.0"
  port      = 9090
  log_level = "debug"
}

database {
  url = "postgres://localhost/fairfight"
}

pool {
  agents = ["ws://agent1:7000", "ws://agent2:7000"]
}

fight {
  acceptance_timeout  = 15
  max_fight_duration  = 120
  monitoring_interval = 2
  sweep_interval      = 30

  timing_draw_threshold    = 3
  activity_draw_threshold  = 0.2
  activity_amplitude_scale = 5000
}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "0.0.0.0:9090", cfg.ListenAddress())
	assert.Equal(t, "postgres://localhost/fairfight", cfg.Database.URL)
	assert.Equal(t, []string{"ws://agent1:7000", "ws://agent2:7000"}, cfg.Pool.AgentURLs)

	assert.Equal(t, 15*time.Second, cfg.Fight.AcceptanceTimeout())
	assert.Equal(t, 2*time.Minute, cfg.Fight.MaxFightDuration())
	assert.Equal(t, 2*time.Second, cfg.Fight.MonitoringInterval())
	assert.Equal(t, 30*time.Second, cfg.Fight.SweepInterval())
	assert.Equal(t, 3.0, cfg.Fight.TimingDrawThreshold)
	assert.Equal(t, 0.2, cfg.Fight.ActivityDrawThreshold)
	assert.Equal(t, 5000.0, cfg.Fight.ActivityAmplitudeScale)
}

func TestLoadPartialConfigAppliesDefaults(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, `
server {
  port = 9999
}

database {}

pool {}

fight {
  acceptance_timeout = 10
}
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Server.Address)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Server.LogLevel)
	assert.Empty(t, cfg.Database.URL)
	assert.Equal(t, 10*time.Second, cfg.Fight.AcceptanceTimeout())
	assert.Equal(t, 300*time.Second, cfg.Fight.MaxFightDuration())
	assert.Equal(t, 0.1, cfg.Fight.ActivityDrawThreshold)
}

func TestLoadInvalidHCL(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, `server { port = `)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = -1 }},
		{"zero acceptance timeout", func(c *Config) { c.Fight.AcceptanceTimeoutSec = -5 }},
		{"zero max duration", func(c *Config) { c.Fight.MaxFightDurationSec = -1 }},
		{"interval exceeds duration", func(c *Config) {
			c.Fight.MonitoringIntervalSec = 500
			c.Fight.MaxFightDurationSec = 100
		}},
		{"negative sweep", func(c *Config) { c.Fight.SweepIntervalSec = -1 }},
		{"negative timing threshold", func(c *Config) { c.Fight.TimingDrawThreshold = -1 }},
		{"negative activity threshold", func(c *Config) { c.Fight.ActivityDrawThreshold = -0.5 }},
		{"zero amplitude scale", func(c *Config) { c.Fight.ActivityAmplitudeScale = -100 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, Default().Validate())
}
