package clock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNowStrictlyMonotonic(t *testing.T) {
	c := newClock(3)
	var prev Timestamp
	for i := 0; i < 10_000; i++ {
		ts := c.Now(0)
		require.Greater(t, ts, prev)
		prev = ts
	}
}

func TestNowEncodesWorkerID(t *testing.T) {
	c := newClock(7)
	ts := c.Now(0)
	require.Equal(t, uint64(7), uint64(ts)&workerMask)
}

func TestNowDisambiguatesTies(t *testing.T) {
	a := newClock(1)
	b := newClock(2)
	tsA := a.Now(0)
	tsB := b.Now(0)
	require.NotEqual(t, tsA, tsB)
}

func TestManagerRejectsNonPositiveThreadCount(t *testing.T) {
	_, err := NewManager(0, time.Millisecond)
	require.Error(t, err)
}

func TestManagerPerWorkerClocksAreIndependent(t *testing.T) {
	m, err := NewManager(4, time.Hour)
	require.NoError(t, err)

	ts0 := m.Now(0)
	ts1 := m.Now(1)
	require.NotEqual(t, ts0, ts1)
}

func TestStartSyncAdvancesEpoch(t *testing.T) {
	m, err := NewManager(2, 5*time.Millisecond)
	require.NoError(t, err)

	before := m.Now(0)

	ctx, cancel := context.WithCancel(context.Background())
	done := m.StartSync(ctx)
	time.Sleep(40 * time.Millisecond)
	cancel()
	<-done

	after := m.Now(0)
	require.Greater(t, after, before)
}

func TestMinReadTSWithNoActiveUsesNow(t *testing.T) {
	m, err := NewManager(1, time.Hour)
	require.NoError(t, err)

	before := m.Now(0)
	safe := m.MinReadTS(nil, 0)
	require.GreaterOrEqual(t, safe, before)
}

func TestMinReadTSPicksMinimum(t *testing.T) {
	m, err := NewManager(1, time.Hour)
	require.NoError(t, err)

	active := []Timestamp{50, 10, 30}
	require.Equal(t, Timestamp(10), m.MinReadTS(active, 0))
}
