package poll

import (
	"fmt"
	"time"
)

// Strategy is a backoff factor preset.
type Strategy float64

// Backoff factor presets.
const (
	Fixed       Strategy = 1
	Exponential Strategy = 1.5
	Aggressive  Strategy = 2
)

// Defaults of Config.
const (
	DefaultMaxWait          = 2 * time.Hour
	DefaultCheckInterval    = time.Second
	DefaultMaxCheckInterval = 5 * time.Second
	DefaultBackoffFactor    = float64(Exponential)
)

// Config bounds how long and how often a job status is queried.
type Config struct {
	// MaxWait is the total time budget of one wait.
	MaxWait time.Duration
	// CheckInterval is the first sleep between two queries.
	CheckInterval time.Duration
	// MaxCheckInterval is the ceiling of the sleep.
	MaxCheckInterval time.Duration
	// BackoffFactor multiplies the sleep after every query, 1 keeps it fixed.
	BackoffFactor float64
}

// DefaultConfig ...
func DefaultConfig() Config {
	return Config{
		MaxWait:          DefaultMaxWait,
		CheckInterval:    DefaultCheckInterval,
		MaxCheckInterval: DefaultMaxCheckInterval,
		BackoffFactor:    DefaultBackoffFactor,
	}
}

// WithStrategy returns a copy of the config using the factor of a preset.
func (c Config) WithStrategy(s Strategy) Config {
	c.BackoffFactor = float64(s)
	return c
}

// Validate ...
func (c Config) Validate() error {
	if c.MaxWait <= 0 {
		return fmt.Errorf("max wait must be positive, got %s", c.MaxWait)
	}
	if c.CheckInterval <= 0 {
		return fmt.Errorf("check interval must be positive, got %s", c.CheckInterval)
	}
	if c.MaxCheckInterval <= 0 {
		return fmt.Errorf("max check interval must be positive, got %s", c.MaxCheckInterval)
	}
	if c.MaxCheckInterval < c.CheckInterval {
		return fmt.Errorf("max check interval (%s) must not be less than the check interval (%s)", c.MaxCheckInterval, c.CheckInterval)
	}
	if c.BackoffFactor < 1 {
		return fmt.Errorf("backoff factor must be at least 1, got %g", c.BackoffFactor)
	}
	return nil
}

// Normalize fills the zero fields with defaults and validates the result.
func (c Config) Normalize() (Config, error) {
	c = c.withDefaults()
	if err := c.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid polling config: %w", err)
	}
	return c, nil
}

// withDefaults fills the zero fields. Explicitly invalid values are left for Validate.
func (c Config) withDefaults() Config {
	if c.MaxWait == 0 {
		c.MaxWait = DefaultMaxWait
	}
	if c.CheckInterval == 0 {
		c.CheckInterval = DefaultCheckInterval
	}
	if c.MaxCheckInterval == 0 {
		c.MaxCheckInterval = max(DefaultMaxCheckInterval, c.CheckInterval)
	}
	if c.BackoffFactor == 0 {
		c.BackoffFactor = DefaultBackoffFactor
	}
	return c
}

// NextInterval returns the sleep that follows current: current*factor, clamped to ceiling.
func NextInterval(current time.Duration, factor float64, ceiling time.Duration) time.Duration {
	next := time.Duration(float64(current) * factor)
	if next > ceiling || next < 0 {
		return ceiling
	}
	return next
}
