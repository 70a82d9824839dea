package config

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestDefaultFillsSpecDefaults(t *testing.T) {
	cfg := Default(4)
	require.Equal(t, 4, cfg.ThreadCount)
	require.Equal(t, defaultGCIntervalMS, cfg.GCIntervalMS)
	require.Equal(t, defaultClockSyncIntervalMS, cfg.ClockSyncIntervalMS)
}

func TestValidateRejectsNonPositiveThreadCount(t *testing.T) {
	cfg := Default(0)
	require.ErrorIs(t, cfg.Validate(), ErrInvalidThreadCount)
}

func TestBindFlagsRoundTripsThroughViper(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	v := viper.New()
	BindFlags(fs, v)

	require.NoError(t, fs.Parse([]string{"--thread-count=8", "--retry-cap=3"}))

	cfg, err := Load(v)
	require.NoError(t, err)
	require.Equal(t, 8, cfg.ThreadCount)
	require.Equal(t, 3, cfg.RetryCap)
	require.Equal(t, defaultGCIntervalMS, cfg.GCIntervalMS)
}
