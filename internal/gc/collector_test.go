package gc

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/maemio/maemio/internal/clock"
)

// fakeStore fans out over fakeShardCount shards, the same shape the real
// engine.Store presents, so tests exercise sweepOnce's concurrent
// per-shard fan-out rather than a single-call stand-in.
const fakeShardCount = 4

type fakeStore struct {
	mu         sync.Mutex
	lastSafeTS clock.Timestamp
	calls      int
	perShard   PruneStats // returned by every shard's PruneShard call
}

func (f *fakeStore) ShardCount() int { return fakeShardCount }

func (f *fakeStore) PruneShard(i int, safeTS clock.Timestamp) PruneStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastSafeTS = safeTS
	f.calls++
	return f.perShard
}

type fakeActiveSet struct{ snapshot []clock.Timestamp }

func (f *fakeActiveSet) Snapshot() []clock.Timestamp { return f.snapshot }

type fakeClock struct{ now clock.Timestamp }

func (f *fakeClock) MinReadTS(active []clock.Timestamp, syncWorker int) clock.Timestamp {
	if len(active) == 0 {
		return f.now
	}
	min := active[0]
	for _, ts := range active[1:] {
		if ts < min {
			min = ts
		}
	}
	return min
}

func TestSafeTSUsesActiveMinimum(t *testing.T) {
	st := &fakeStore{}
	active := &fakeActiveSet{snapshot: []clock.Timestamp{50, 10, 30}}
	c := New(st, &fakeClock{now: 999}, active, 0)

	require.Equal(t, clock.Timestamp(10), c.safeTS())
}

func TestSafeTSFallsBackToNowWhenIdle(t *testing.T) {
	st := &fakeStore{}
	active := &fakeActiveSet{}
	c := New(st, &fakeClock{now: 42}, active, 0)

	require.Equal(t, clock.Timestamp(42), c.safeTS())
}

func TestRunSweepsPeriodically(t *testing.T) {
	st := &fakeStore{perShard: PruneStats{RecordsVisited: 3, VersionsFreed: 1}}
	active := &fakeActiveSet{}
	c := New(st, &fakeClock{now: 7}, active, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := c.Run(ctx, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	cancel()
	<-done

	require.GreaterOrEqual(t, st.calls, fakeShardCount)
	require.Equal(t, PruneStats{
		RecordsVisited: fakeShardCount * 3,
		VersionsFreed:  fakeShardCount * 1,
	}, c.LastSweep())
}

func TestSweepOnceVisitsEveryShardConcurrently(t *testing.T) {
	st := &fakeStore{perShard: PruneStats{RecordsVisited: 1}}
	active := &fakeActiveSet{}
	c := New(st, &fakeClock{now: 7}, active, 0)

	c.sweepOnce(context.Background())

	require.Equal(t, fakeShardCount, st.calls)
	require.Equal(t, fakeShardCount, c.LastSweep().RecordsVisited)
}
