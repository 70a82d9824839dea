package engine

import (
	"errors"
	"fmt"
)

// Sentinel errors callers should test with errors.Is. Each public sentinel
// is backed by a private error type that carries context and implements Is.

// ErrNotFound is returned by a read against a record that does not exist,
// or whose visible version is a tombstone.
var ErrNotFound = errors.New("record not found")

// ErrWriteConflict is returned when staging a write against a record that
// already has a pending write from a different transaction. Recovered
// internally by the executor's retry loop; not normally surfaced to user
// code.
var ErrWriteConflict = errors.New("write conflicts with a pending transaction")

// ErrInvisible is returned when a read encounters a pending version written
// by a different transaction. Recovered internally, same as
// ErrWriteConflict.
var ErrInvisible = errors.New("record has an invisible pending version")

// ErrValidationFailed is returned when a transaction's read set was
// invalidated by a concurrent committed writer. Recovered internally.
var ErrValidationFailed = errors.New("transaction validation failed")

// ErrRetryExhausted is returned by Engine.Execute once the configured retry
// cap is reached without a successful commit.
var ErrRetryExhausted = errors.New("retry cap exhausted")

// ErrInvalidState is returned for API misuse: writing after abort,
// committing twice, and similar sequencing errors.
var ErrInvalidState = errors.New("transaction used in an invalid state")

// ErrShutdown is returned when a new transaction is requested after the
// engine has begun shutting down.
var ErrShutdown = errors.New("engine is shutting down")

// ErrInvariantViolation marks a guard tripping on a condition that should
// be unreachable, such as a staged version no longer sitting at its chain
// head when finalize runs. Seeing it means an actual invariant was
// violated somewhere upstream, so recovering and retrying is never
// correct; Engine.Execute logs it at Fatal and re-panics to terminate the
// process.
var ErrInvariantViolation = errors.New("engine invariant violation")

type recordNotFoundError RecordID

func (e recordNotFoundError) Error() string {
	return fmt.Sprintf("record %d not found", RecordID(e))
}

func (e recordNotFoundError) Is(target error) bool { return target == ErrNotFound }

type writeConflictError RecordID

func (e writeConflictError) Error() string {
	return fmt.Sprintf("record %d has a pending write from another transaction", RecordID(e))
}

func (e writeConflictError) Is(target error) bool { return target == ErrWriteConflict }

type invalidStateError string

func (e invalidStateError) Error() string { return string(e) }

func (e invalidStateError) Is(target error) bool { return target == ErrInvalidState }

type invariantViolationError string

func (e invariantViolationError) Error() string { return string(e) }

func (e invariantViolationError) Is(target error) bool { return target == ErrInvariantViolation }
