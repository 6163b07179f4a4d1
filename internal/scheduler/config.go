package scheduler

import (
	"time"

	"github.com/haoran127/costix-sub001/internal/config"
)

// Config controls the scheduled sync loop.
type Config struct {
	RunInterval  time.Duration
	SyncInterval time.Duration
	BatchSize    int
	StaggerDelay time.Duration
	LockTTL      time.Duration
}

func (c Config) withDefaults() Config {
	if c.RunInterval <= 0 {
		c.RunInterval = time.Hour
	}
	if c.SyncInterval <= 0 {
		c.SyncInterval = time.Hour
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 3
	}
	if c.StaggerDelay < 0 {
		c.StaggerDelay = 10 * time.Second
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 10 * time.Minute
	}
	return c
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval:  cfg.Sync.Interval,
		SyncInterval: cfg.Sync.Interval,
		BatchSize:    cfg.Sync.BatchSize,
		StaggerDelay: cfg.Sync.StaggerDelay,
	}.withDefaults()
}
