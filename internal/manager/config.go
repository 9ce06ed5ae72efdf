package manager

import "time"

// Defaults applied when corresponding Config fields are unset.
const (
	defaultMaxConcurrentModels = 3
	defaultWarningPercent      = 80.0
	defaultCriticalPercent     = 95.0
	defaultOverheadMultiplier  = 1.3
	defaultAutoUnloadTimeout   = 30 * time.Minute
	defaultSweepInterval       = time.Minute
	defaultRetryDelay          = 5 * time.Second
)

// Config encapsulates all tunables for Manager construction.
type Config struct {
	MaxConcurrentModels      int
	WarningThresholdPercent  float64
	CriticalThresholdPercent float64
	// OverheadMultiplier inflates a model's declared size to account for
	// runtime overhead (KV cache, scratch buffers).
	OverheadMultiplier float64
	AutoUnloadTimeout  time.Duration
	SweepInterval      time.Duration
	// RetryDelay is the fixed delay before the single scheduled retry of a
	// recoverable load failure.
	RetryDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrentModels <= 0 {
		c.MaxConcurrentModels = defaultMaxConcurrentModels
	}
	if c.WarningThresholdPercent <= 0 {
		c.WarningThresholdPercent = defaultWarningPercent
	}
	if c.CriticalThresholdPercent <= 0 {
		c.CriticalThresholdPercent = defaultCriticalPercent
	}
	if c.OverheadMultiplier <= 0 {
		c.OverheadMultiplier = defaultOverheadMultiplier
	}
	if c.AutoUnloadTimeout <= 0 {
		c.AutoUnloadTimeout = defaultAutoUnloadTimeout
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = defaultSweepInterval
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = defaultRetryDelay
	}
	return c
}
