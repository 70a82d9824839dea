// Package config defines the engine's tunables and how they are loaded
// from flags and environment: pflag carries the flag definitions and
// defaults, viper resolves precedence across flag, env, and config file.
package config

import (
	"errors"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds the engine's tunables.
type Config struct {
	ThreadCount          int `mapstructure:"thread_count"`
	GCIntervalMS         int `mapstructure:"gc_interval_ms"`
	ClockSyncIntervalMS  int `mapstructure:"clock_sync_interval_ms"`
	InitialIndexCapacity int `mapstructure:"initial_index_capacity"`
	RetryCap             int `mapstructure:"retry_cap"`
}

const (
	defaultGCIntervalMS        = 20
	defaultClockSyncIntervalMS = 200
	defaultInitialIndexCap     = 1024
	defaultRetryCap            = 8
)

// ErrInvalidThreadCount is returned by Validate when ThreadCount is not
// positive.
var ErrInvalidThreadCount = errors.New("config: thread_count must be positive")

// Default returns a Config with every field defaulted except
// ThreadCount, which callers must set explicitly (there is no sane
// default for worker parallelism independent of the host machine).
func Default(threadCount int) Config {
	return Config{
		ThreadCount:          threadCount,
		GCIntervalMS:         defaultGCIntervalMS,
		ClockSyncIntervalMS:  defaultClockSyncIntervalMS,
		InitialIndexCapacity: defaultInitialIndexCap,
		RetryCap:             defaultRetryCap,
	}
}

// Validate checks the fields Engine.New cannot safely default around.
func (c Config) Validate() error {
	if c.ThreadCount <= 0 {
		return ErrInvalidThreadCount
	}
	return nil
}

func (c Config) GCInterval() time.Duration {
	return time.Duration(c.GCIntervalMS) * time.Millisecond
}

func (c Config) ClockSyncInterval() time.Duration {
	return time.Duration(c.ClockSyncIntervalMS) * time.Millisecond
}

// BindFlags registers every Config field onto fs and binds them through
// v, following the pack's cobra+viper+pflag config idiom: flags carry
// the description and default, viper resolves precedence across flag,
// env, and config file.
func BindFlags(fs *pflag.FlagSet, v *viper.Viper) {
	fs.Int("thread-count", 0, "number of worker threads (0 = runtime.NumCPU())")
	fs.Int("gc-interval-ms", defaultGCIntervalMS, "garbage collection sweep interval, in milliseconds")
	fs.Int("clock-sync-interval-ms", defaultClockSyncIntervalMS, "clock epoch sync interval, in milliseconds")
	fs.Int("initial-index-capacity", defaultInitialIndexCap, "initial per-shard map capacity hint for the record store (index construction does not use it)")
	fs.Int("retry-cap", defaultRetryCap, "maximum transaction retry attempts before giving up")

	_ = v.BindPFlag("thread_count", fs.Lookup("thread-count"))
	_ = v.BindPFlag("gc_interval_ms", fs.Lookup("gc-interval-ms"))
	_ = v.BindPFlag("clock_sync_interval_ms", fs.Lookup("clock-sync-interval-ms"))
	_ = v.BindPFlag("initial_index_capacity", fs.Lookup("initial-index-capacity"))
	_ = v.BindPFlag("retry_cap", fs.Lookup("retry-cap"))

	v.SetEnvPrefix("maemio")
	v.AutomaticEnv()
}

// Load reads a Config out of v after BindFlags and any config-file
// merging the caller has done.
func Load(v *viper.Viper) (Config, error) {
	cfg := Default(v.GetInt("thread_count"))
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
