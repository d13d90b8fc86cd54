package scheduler

import (
	"time"

	"github.com/smallbiznis/fieldbooks/internal/config"
)

// Config controls job schedules and run bounds.
type Config struct {
	Enabled        bool
	SyncRetrySpec  string
	CertExpirySpec string
	CertExpiryDays int
	JobTimeout     time.Duration
	LockTTL        time.Duration
}

func DefaultConfig() Config {
	return Config{
		Enabled:        true,
		SyncRetrySpec:  "@every 5m",
		CertExpirySpec: "0 7 * * *",
		CertExpiryDays: 30,
		JobTimeout:     2 * time.Minute,
		LockTTL:        5 * time.Minute,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		Enabled:        cfg.Scheduler.Enabled,
		SyncRetrySpec:  cfg.Scheduler.SyncRetrySpec,
		CertExpirySpec: cfg.Scheduler.CertExpirySpec,
		CertExpiryDays: cfg.Scheduler.CertExpiryDays,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.SyncRetrySpec == "" {
		c.SyncRetrySpec = defaults.SyncRetrySpec
	}
	if c.CertExpirySpec == "" {
		c.CertExpirySpec = defaults.CertExpirySpec
	}
	if c.CertExpiryDays <= 0 {
		c.CertExpiryDays = defaults.CertExpiryDays
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	// The lease must outlive the job so a slow run is not picked up twice.
	if c.LockTTL <= c.JobTimeout {
		c.LockTTL = c.JobTimeout + time.Minute
	}
	return c
}
