package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default() does not validate: %v", err)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rush.toml")
	// Durations are integer nanoseconds on the wire.
	content := `
[server]
bind_address = "127.0.0.1:9090"
tick_rate = 50000000

[facilities]
urinal_count = 7

[session]
starting_lives = 5
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.BindAddress != "127.0.0.1:9090" {
		t.Errorf("BindAddress = %q", cfg.Server.BindAddress)
	}
	if cfg.Server.TickRate != 50*time.Millisecond {
		t.Errorf("TickRate = %v", cfg.Server.TickRate)
	}
	if cfg.Facilities.UrinalCount != 7 {
		t.Errorf("UrinalCount = %d", cfg.Facilities.UrinalCount)
	}
	if cfg.Session.StartingLives != 5 {
		t.Errorf("StartingLives = %d", cfg.Session.StartingLives)
	}
	// Untouched sections keep their defaults.
	if cfg.Facilities.CubicleCount != 3 {
		t.Errorf("CubicleCount = %d, want default 3", cfg.Facilities.CubicleCount)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no urinals", func(c *Config) { c.Facilities.UrinalCount = 0 }},
		{"negative cubicles", func(c *Config) { c.Facilities.CubicleCount = -1 }},
		{"zero lives", func(c *Config) { c.Session.StartingLives = 0 }},
		{"zero difficulty", func(c *Config) { c.Session.StartDifficulty = 0 }},
		{"zero milestone", func(c *Config) { c.Session.MilestoneInterval = 0 }},
		{"min above base spawn rate", func(c *Config) { c.Session.MinSpawnRate = c.Session.BaseSpawnRate + time.Second }},
		{"restore max below min", func(c *Config) { c.Disruption.RestoreMax = c.Disruption.RestoreMin - time.Second }},
		{"reward probability above one", func(c *Config) { c.Disruption.RewardProbability = 1.5 }},
		{"zero row size", func(c *Config) { c.Queue.RowSize = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
