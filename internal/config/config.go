// Package config loads the arbiter's HCL configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// Config is the complete service configuration.
type Config struct {
	Server   ServerSettings   `hcl:"server,block"`
	Database DatabaseSettings `hcl:"database,block"`
	Pool     PoolSettings     `hcl:"pool,block"`
	Fight    FightSettings    `hcl:"fight,block"`
}

// ServerSettings contains the front-end gateway settings.
type ServerSettings struct {
	Address  string `hcl:"address,optional"`
	Port     int    `hcl:"port,optional"`
	LogLevel string `hcl:"log_level,optional"`
}

// DatabaseSettings selects the persistence backend. An empty URL runs the
// service on the in-memory store.
type DatabaseSettings struct {
	URL string `hcl:"url,optional"`
}

// PoolSettings lists the session-agent daemons to lease workers from.
type PoolSettings struct {
	AgentURLs []string `hcl:"agents,optional"`
}

// FightSettings holds the orchestration timings and decision thresholds.
// Durations are expressed in seconds.
type FightSettings struct {
	AcceptanceTimeoutSec  int `hcl:"acceptance_timeout,optional"`
	MaxFightDurationSec   int `hcl:"max_fight_duration,optional"`
	MonitoringIntervalSec int `hcl:"monitoring_interval,optional"`
	SweepIntervalSec      int `hcl:"sweep_interval,optional"`

	TimingDrawThreshold    float64 `hcl:"timing_draw_threshold,optional"`
	ActivityDrawThreshold  float64 `hcl:"activity_draw_threshold,optional"`
	ActivityAmplitudeScale float64 `hcl:"activity_amplitude_scale,optional"`
}

// Default returns the stock configuration.
func Default() *Config {
	return &Config{
		Server: ServerSettings{
			Address:  "localhost",
			Port:     8080,
			LogLevel: "info",
		},
		Fight: FightSettings{
			AcceptanceTimeoutSec:   30,
			MaxFightDurationSec:    300,
			MonitoringIntervalSec:  5,
			SweepIntervalSec:       60,
			TimingDrawThreshold:    5,
			ActivityDrawThreshold:  0.1,
			ActivityAmplitudeScale: 10000,
		},
	}
}

// Load reads configuration from an HCL file, falling back to defaults when
// the file does not exist.
func Load(filename string) (*Config, error) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return Default(), nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var cfg Config
	diags = gohcl.DecodeBody(file.Body, nil, &cfg)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	def := Default()
	if c.Server.Address == "" {
		c.Server.Address = def.Server.Address
	}
	if c.Server.Port == 0 {
		c.Server.Port = def.Server.Port
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = def.Server.LogLevel
	}
	if c.Fight.AcceptanceTimeoutSec == 0 {
		c.Fight.AcceptanceTimeoutSec = def.Fight.AcceptanceTimeoutSec
	}
	if c.Fight.MaxFightDurationSec == 0 {
		c.Fight.MaxFightDurationSec = def.Fight.MaxFightDurationSec
	}
	if c.Fight.MonitoringIntervalSec == 0 {
		c.Fight.MonitoringIntervalSec = def.Fight.MonitoringIntervalSec
	}
	if c.Fight.SweepIntervalSec == 0 {
		c.Fight.SweepIntervalSec = def.Fight.SweepIntervalSec
	}
	if c.Fight.TimingDrawThreshold == 0 {
		c.Fight.TimingDrawThreshold = def.Fight.TimingDrawThreshold
	}
	if c.Fight.ActivityDrawThreshold == 0 {
		c.Fight.ActivityDrawThreshold = def.Fight.ActivityDrawThreshold
	}
	if c.Fight.ActivityAmplitudeScale == 0 {
		c.Fight.ActivityAmplitudeScale = def.Fight.ActivityAmplitudeScale
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Fight.AcceptanceTimeoutSec <= 0 {
		return fmt.Errorf("acceptance_timeout must be positive")
	}
	if c.Fight.MaxFightDurationSec <= 0 {
		return fmt.Errorf("max_fight_duration must be positive")
	}
	if c.Fight.MonitoringIntervalSec <= 0 {
		return fmt.Errorf("monitoring_interval must be positive")
	}
	if c.Fight.MonitoringIntervalSec > c.Fight.MaxFightDurationSec {
		return fmt.Errorf("monitoring_interval must not exceed max_fight_duration")
	}
	if c.Fight.SweepIntervalSec <= 0 {
		return fmt.Errorf("sweep_interval must be positive")
	}
	if c.Fight.TimingDrawThreshold < 0 {
		return fmt.Errorf("timing_draw_threshold must not be negative")
	}
	if c.Fight.ActivityDrawThreshold < 0 {
		return fmt.Errorf("activity_draw_threshold must not be negative")
	}
	if c.Fight.ActivityAmplitudeScale <= 0 {
		return fmt.Errorf("activity_amplitude_scale must be positive")
	}
	return nil
}

// ListenAddress returns the gateway's host:port.
func (c *Config) ListenAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}

// AcceptanceTimeout returns the join/acceptance deadline as a duration.
func (f FightSettings) AcceptanceTimeout() time.Duration {
	return time.Duration(f.AcceptanceTimeoutSec) * time.Second
}

// MaxFightDuration returns the hard fight ceiling as a duration.
func (f FightSettings) MaxFightDuration() time.Duration {
	return time.Duration(f.MaxFightDurationSec) * time.Second
}

// MonitoringInterval returns the metric sampling period as a duration.
func (f FightSettings) MonitoringInterval() time.Duration {
	return time.Duration(f.MonitoringIntervalSec) * time.Second
}

// SweepInterval returns the expiry sweep period as a duration.
func (f FightSettings) SweepInterval() time.Duration {
	return time.Duration(f.SweepIntervalSec) * time.Second
}
