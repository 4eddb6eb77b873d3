package watch

import (
	"fmt"
	"time"
)

// Config holds the watch module configuration.
type Config struct {
	PassInterval         time.Duration   `mapstructure:"pass_interval"`
	MinSamples           int             `mapstructure:"min_samples"`
	MaxWorkers           int             `mapstructure:"max_workers"`
	MinDaysBetweenAlerts int             `mapstructure:"min_days_between_alerts"`
	Gate                 GateConfig      `mapstructure:"gate"`
	Aggregate            AggregateConfig `mapstructure:"aggregate"`
	Season               SeasonConfig    `mapstructure:"season"`
}

// SeasonConfig restricts scheduled passes to a day-of-year window.
// Both bounds zero disables the window; forced and HTTP-triggered runs
// ignore it either way.
type SeasonConfig struct {
	StartDOY int `mapstructure:"start_doy"`
	EndDOY   int `mapstructure:"end_doy"`
}

// Enabled reports whether a season window is configured.
func (s SeasonConfig) Enabled() bool {
	return s.StartDOY != 0 || s.EndDOY != 0
}

// Contains reports whether the given day falls inside the window.
func (s SeasonConfig) Contains(day time.Time) bool {
	if !s.Enabled() {
		return true
	}
	doy := day.YearDay()
	return doy >= s.StartDOY && doy <= s.EndDOY
}

// Validate checks the configuration for values the pass cannot run with.
func (c Config) Validate() error {
	if c.PassInterval < time.Minute {
		return fmt.Errorf("pass_interval %v is below the 1m minimum", c.PassInterval)
	}
	if c.MinSamples < 2 {
		return fmt.Errorf("min_samples %d must be at least 2", c.MinSamples)
	}
	if c.MaxWorkers < 1 {
		return fmt.Errorf("max_workers %d must be at least 1", c.MaxWorkers)
	}
	if c.MinDaysBetweenAlerts < 0 {
		return fmt.Errorf("min_days_between_alerts %d must not be negative", c.MinDaysBetweenAlerts)
	}
	if c.Season.Enabled() {
		if c.Season.StartDOY < 1 || c.Season.EndDOY > 366 || c.Season.StartDOY > c.Season.EndDOY {
			return fmt.Errorf("season window [%d, %d] is not a valid day-of-year range",
				c.Season.StartDOY, c.Season.EndDOY)
		}
	}
	return nil
}
