// Package telemetry holds the engine's structured logging and metrics,
// kept optional and injectable rather than global so the engine stays
// embeddable.
package telemetry

import "github.com/rs/zerolog"

// Log wraps a zerolog.Logger, defaulting to zerolog.Nop() so components
// never need a nil check before logging.
type Log struct {
	logger zerolog.Logger
}

// NewLog wraps logger. Passing the zero value of zerolog.Logger also
// works (it logs nowhere), but NewNopLog is clearer at call sites that
// want logging off on purpose.
func NewLog(logger zerolog.Logger) Log {
	return Log{logger: logger}
}

// NewNopLog returns a Log that discards everything.
func NewNopLog() Log {
	return Log{logger: zerolog.Nop()}
}

func (l Log) Debug() *zerolog.Event { return l.logger.Debug() }
func (l Log) Info() *zerolog.Event  { return l.logger.Info() }
func (l Log) Warn() *zerolog.Event  { return l.logger.Warn() }
func (l Log) Error() *zerolog.Event { return l.logger.Error() }

// Fatal logs at Fatal level without calling os.Exit: the invariant
// violation panic path is what actually terminates the engine, this just
// gets the structured record out first.
func (l Log) Fatal() *zerolog.Event {
	return l.logger.WithLevel(zerolog.FatalLevel)
}
