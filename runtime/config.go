// Package runtime assembles the automation runtime: one explicit
// instance each of the conversion table, state registry, supervisor,
// event bus and scheduler, wired through a samber/do injector and run
// under a shared lifecycle.
package runtime

import (
	"time"

	"github.com/openhaus/automate/logger"
)

// BusConfig configures the event bus.
type BusConfig struct {
	PoolSize       int  `mapstructure:"pool_size"`
	MetricsEnabled bool `mapstructure:"metrics_enabled"`
}

// SchedConfig configures the scheduler.
type SchedConfig struct {
	HistorySize int `mapstructure:"history_size"`
}

// Config is the root runtime configuration.
type Config struct {
	Logger          logger.ManagerConfig `mapstructure:"logger"`
	Bus             BusConfig            `mapstructure:"bus"`
	Sched           SchedConfig          `mapstructure:"sched"`
	ShutdownTimeout time.Duration        `mapstructure:"shutdown_timeout"`
}

// ApplyDefaults fills zero-valued fields in place.
func (c *Config) ApplyDefaults() {
	c.Logger.ApplyDefaults()
	if c.Bus.PoolSize == 0 {
		c.Bus.PoolSize = 100
	}
	if c.Sched.HistorySize == 0 {
		c.Sched.HistorySize = 16
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
}
