// Package config holds every tunable for the Stall Rush server in one
// explicit struct. Components receive it (or a section of it) at
// construction; there is no ambient lookup.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server     ServerConfig     `toml:"server"`
	Database   DatabaseConfig   `toml:"database"`
	Session    SessionConfig    `toml:"session"`
	Facilities FacilitiesConfig `toml:"facilities"`
	Queue      QueueConfig      `toml:"queue"`
	Disruption DisruptionConfig `toml:"disruption"`
	Logging    LoggingConfig    `toml:"logging"`
}

type ServerConfig struct {
	BindAddress string        `toml:"bind_address"`
	TickRate    time.Duration `toml:"tick_rate"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type SessionConfig struct {
	StartingLives     int           `toml:"starting_lives"`
	StartDifficulty   int           `toml:"start_difficulty"`
	MilestoneInterval int           `toml:"milestone_interval"` // score multiple that bumps difficulty
	BaseSpawnRate     time.Duration `toml:"base_spawn_rate"`
	MinSpawnRate      time.Duration `toml:"min_spawn_rate"`
	SpawnRateStep     time.Duration `toml:"spawn_rate_step"`
	AdjacencyDelay    time.Duration `toml:"adjacency_delay"` // penalty lands after the illegal placement is visible
}

type FacilitiesConfig struct {
	UrinalCount  int           `toml:"urinal_count"`
	CubicleCount int           `toml:"cubicle_count"`
	UrinalUsage  time.Duration `toml:"urinal_usage"`
	CubicleUsage time.Duration `toml:"cubicle_usage"`
}

type QueueConfig struct {
	WaitBudget time.Duration `toml:"wait_budget"`
	RowSize    int           `toml:"row_size"` // patrons per display row
}

type DisruptionConfig struct {
	OutageCheckInterval time.Duration `toml:"outage_check_interval"`
	OutageMinDifficulty int           `toml:"outage_min_difficulty"`
	OutageMaxActive     int           `toml:"outage_max_active"`
	RestoreMin          time.Duration `toml:"restore_min"`
	RestoreMax          time.Duration `toml:"restore_max"`
	RewardCheckInterval time.Duration `toml:"reward_check_interval"`
	RewardProbability   float64       `toml:"reward_probability"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
}

// Load reads a TOML config file over the package defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns the stock arcade tuning.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			BindAddress: "0.0.0.0:8080",
			TickRate:    100 * time.Millisecond,
		},
		Database: DatabaseConfig{
			Path: "rush.db",
		},
		Session: SessionConfig{
			StartingLives:     3,
			StartDifficulty:   1,
			MilestoneInterval: 10,
			BaseSpawnRate:     4 * time.Second,
			MinSpawnRate:      1200 * time.Millisecond,
			SpawnRateStep:     350 * time.Millisecond,
			AdjacencyDelay:    500 * time.Millisecond,
		},
		Facilities: FacilitiesConfig{
			UrinalCount:  5,
			CubicleCount: 3,
			UrinalUsage:  5 * time.Second,
			CubicleUsage: 8 * time.Second,
		},
		Queue: QueueConfig{
			WaitBudget: 10 * time.Second,
			RowSize:    6,
		},
		Disruption: DisruptionConfig{
			OutageCheckInterval: 8 * time.Second,
			OutageMinDifficulty: 2,
			OutageMaxActive:     2,
			RestoreMin:          20 * time.Second,
			RestoreMax:          40 * time.Second,
			RewardCheckInterval: 10 * time.Second,
			RewardProbability:   0.2,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Facilities.UrinalCount < 1 {
		return fmt.Errorf("facilities.urinal_count must be >= 1, got %d", c.Facilities.UrinalCount)
	}
	if c.Facilities.CubicleCount < 0 {
		return fmt.Errorf("facilities.cubicle_count must be >= 0, got %d", c.Facilities.CubicleCount)
	}
	if c.Session.StartingLives < 1 {
		return fmt.Errorf("session.starting_lives must be >= 1, got %d", c.Session.StartingLives)
	}
	if c.Session.StartDifficulty < 1 {
		return fmt.Errorf("session.start_difficulty must be >= 1, got %d", c.Session.StartDifficulty)
	}
	if c.Session.MilestoneInterval < 1 {
		return fmt.Errorf("session.milestone_interval must be >= 1, got %d", c.Session.MilestoneInterval)
	}
	if c.Session.MinSpawnRate > c.Session.BaseSpawnRate {
		return fmt.Errorf("session.min_spawn_rate %v exceeds base_spawn_rate %v", c.Session.MinSpawnRate, c.Session.BaseSpawnRate)
	}
	if c.Disruption.RestoreMax < c.Disruption.RestoreMin {
		return fmt.Errorf("disruption.restore_max %v is below restore_min %v", c.Disruption.RestoreMax, c.Disruption.RestoreMin)
	}
	if c.Disruption.RewardProbability < 0 || c.Disruption.RewardProbability > 1 {
		return fmt.Errorf("disruption.reward_probability must be in [0,1], got %v", c.Disruption.RewardProbability)
	}
	if c.Queue.RowSize < 1 {
		return fmt.Errorf("queue.row_size must be >= 1, got %d", c.Queue.RowSize)
	}
	return nil
}
