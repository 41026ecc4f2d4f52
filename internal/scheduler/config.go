package scheduler

import (
	"time"

	"github.com/smallbiznis/placementpay/internal/config"
)

// Config controls sweep cadence and per-job limits.
type Config struct {
	RunInterval time.Duration
	BatchSize   int
	JobTimeout  time.Duration
	LockTTL     time.Duration
	// RecoveryThreshold is how long a schedule may sit in processing before
	// the recovery job fails it.
	RecoveryThreshold time.Duration
}

func DefaultConfig() Config {
	return Config{
		RunInterval: time.Minute,
		BatchSize:   100,
		JobTimeout:  2 * time.Minute,
		LockTTL:     5 * time.Minute,

		RecoveryThreshold: 15 * time.Minute,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval: cfg.Sweep.RunInterval,
		BatchSize:   cfg.Sweep.BatchSize,
		JobTimeout:  cfg.Sweep.JobTimeout,
		LockTTL:     cfg.Sweep.LockTTL,

		RecoveryThreshold: cfg.Sweep.RecoveryThreshold,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	if c.RecoveryThreshold <= 0 {
		c.RecoveryThreshold = defaults.RecoveryThreshold
	}
	return c
}
