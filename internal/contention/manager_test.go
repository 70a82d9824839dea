package contention

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewManagerRejectsShortWindow(t *testing.T) {
	_, err := NewManager(2, 5*time.Millisecond, 5*time.Millisecond)
	require.ErrorIs(t, err, ErrWindowTooShort)
}

func TestBackoffRespectsContextCancellation(t *testing.T) {
	m, err := NewManager(1, 100*time.Millisecond, time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = m.Backoff(ctx, 0)
	require.ErrorIs(t, err, context.Canceled)
}

func TestClimbIncreasesStepOnSustainedImprovement(t *testing.T) {
	m, err := NewManager(1, 100*time.Millisecond, time.Millisecond)
	require.NoError(t, err)

	w := &m.workers[0]
	w.lastStepUp.Store(true)
	w.lastWindowCommits.Store(10)
	w.windowCommits.Store(20)
	stepBefore := w.stepMicros.Load()

	m.climb(w)

	require.Greater(t, w.stepMicros.Load(), stepBefore)
	require.True(t, w.lastStepUp.Load())
}

func TestClimbHalvesStepOnReversal(t *testing.T) {
	m, err := NewManager(1, 100*time.Millisecond, time.Millisecond)
	require.NoError(t, err)

	w := &m.workers[0]
	w.lastStepUp.Store(true)
	w.stepMicros.Store(64)
	w.lastWindowCommits.Store(20)
	w.windowCommits.Store(10) // throughput dropped: reversal

	m.climb(w)

	require.Equal(t, uint64(32), w.stepMicros.Load())
	require.False(t, w.lastStepUp.Load())
}

func TestClimbDoublesStepOnSustainedDecrease(t *testing.T) {
	m, err := NewManager(1, 100*time.Millisecond, time.Millisecond)
	require.NoError(t, err)

	w := &m.workers[0]
	w.lastStepUp.Store(false) // last round decreased the mean
	w.stepMicros.Store(8)
	w.lastWindowCommits.Store(10)
	w.windowCommits.Store(20) // throughput improved: continue decreasing

	m.climb(w)

	require.Equal(t, uint64(16), w.stepMicros.Load())
	require.False(t, w.lastStepUp.Load())
}

func TestClimbHalvesStepOnReversalFromDecreaseToIncrease(t *testing.T) {
	m, err := NewManager(1, 100*time.Millisecond, time.Millisecond)
	require.NoError(t, err)

	w := &m.workers[0]
	w.lastStepUp.Store(false) // last round decreased the mean
	w.stepMicros.Store(64)
	w.lastWindowCommits.Store(20)
	w.windowCommits.Store(10) // throughput dropped: reverse to increasing

	m.climb(w)

	require.Equal(t, uint64(32), w.stepMicros.Load())
	require.True(t, w.lastStepUp.Load())
}

func TestBackoffMeanStaysWithinConfiguredRange(t *testing.T) {
	m, err := NewManager(1, 100*time.Millisecond, time.Millisecond,
		WithBackoffRange(2*time.Microsecond, 50*time.Microsecond))
	require.NoError(t, err)

	w := &m.workers[0]
	for i := 0; i < 50; i++ {
		w.windowCommits.Store(uint64(i) * 2)
		m.climb(w)
		mean := w.backoffMeanMicros.Load()
		require.GreaterOrEqual(t, mean, uint64(2))
		require.LessOrEqual(t, mean, uint64(50))
	}
}

func TestStartHillClimbingStopsOnCancel(t *testing.T) {
	m, err := NewManager(1, 5*time.Millisecond, time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := m.StartHillClimbing(ctx)
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("hill climbing goroutine did not stop")
	}
}
