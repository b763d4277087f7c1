package scheduler

import "time"

// Config controls scheduler intervals, per-job deadlines and which jobs a
// deployment runs.
type Config struct {
	RunInterval time.Duration
	JobTimeout  time.Duration
	// LeaseTTL bounds how long a crashed instance keeps the sweep lease.
	LeaseTTL time.Duration
	// EnabledJobs empty means all jobs run (monolith mode).
	EnabledJobs []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval: time.Minute,
		JobTimeout:  30 * time.Second,
		LeaseTTL:    5 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = defaults.LeaseTTL
	}
	return c
}

func ProvideConfig() Config {
	return DefaultConfig()
}
