// Package gc implements background version reclamation: compute safe_ts
// as the oldest active transaction's begin_ts, then prune any version
// chain entry that ended at or before that horizon.
package gc

import (
	"context"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/maemio/maemio/internal/clock"
)

// store is the narrow slice of engine.Store the collector needs. Kept as
// an interface so gc does not need to import engine's full surface, and
// so tests can exercise Collector against a fake. ShardCount/PruneShard
// (rather than a single Prune call) are what let sweepOnce fan the sweep
// out across shards instead of walking the whole store on one goroutine.
type store interface {
	ShardCount() int
	PruneShard(i int, safeTS clock.Timestamp) PruneStats
}

// PruneStats mirrors engine.PruneStats and is passed back by the store
// interface above. gc does not import engine; engine's adapter converts
// its own PruneStats into this shape.
type PruneStats struct {
	RecordsVisited int
	VersionsFreed  int
}

// activeSet is the narrow slice of engine.ActiveSet the collector needs.
type activeSet interface {
	Snapshot() []clock.Timestamp
}

// clockSource is the narrow slice of clock.Manager the collector needs.
type clockSource interface {
	MinReadTS(active []clock.Timestamp, syncWorker int) clock.Timestamp
}

// Collector runs the periodic GC sweep against a record store.
type Collector struct {
	store      store
	clock      clockSource
	active     activeSet
	syncWorker int
	maxWorkers int
	onSweep    func(PruneStats)

	mu        sync.Mutex
	lastSweep PruneStats
}

// Option configures a Collector at construction.
type Option func(*Collector)

// WithOnSweep registers fn to be called with each completed sweep's
// totals, from the sweep goroutine. The engine wires its metrics
// counters through this.
func WithOnSweep(fn func(PruneStats)) Option {
	return func(c *Collector) { c.onSweep = fn }
}

// New builds a Collector. syncWorker names which worker's clock to fall
// back to when no transaction is active (same role as
// clock.Manager.MinReadTS's own syncWorker parameter). The sweep itself
// fans out across at most GOMAXPROCS shard-pruning goroutines at a time.
func New(st store, clk clockSource, active activeSet, syncWorker int, opts ...Option) *Collector {
	c := &Collector{store: st, clock: clk, active: active, syncWorker: syncWorker, maxWorkers: runtime.GOMAXPROCS(0)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run launches the periodic sweep goroutine, returning a channel closed
// once ctx is canceled and the goroutine has exited.
func (c *Collector) Run(ctx context.Context, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.sweepOnce(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
	return done
}

// sweepOnce computes safe_ts, then walks each store shard's records
// concurrently across a worker pool bounded by maxWorkers, since shards
// share no state and pruning one never needs to see another. The sweep is
// best-effort: a shard skipped because ctx fired just means its prune
// happens next cycle.
func (c *Collector) sweepOnce(ctx context.Context) {
	safeTS := c.safeTS()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxWorkers)

	var mu sync.Mutex
	var total PruneStats
	for i := 0; i < c.store.ShardCount(); i++ {
		shard := i
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			stats := c.store.PruneShard(shard, safeTS)
			mu.Lock()
			total.RecordsVisited += stats.RecordsVisited
			total.VersionsFreed += stats.VersionsFreed
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	c.mu.Lock()
	c.lastSweep = total
	c.mu.Unlock()
	if c.onSweep != nil {
		c.onSweep(total)
	}
}

// safeTS is the reclamation horizon: the minimum begin_ts across every
// active transaction, or the current time if none are active.
func (c *Collector) safeTS() clock.Timestamp {
	return c.clock.MinReadTS(c.active.Snapshot(), c.syncWorker)
}

// LastSweep reports the outcome of the most recently completed sweep,
// for telemetry.
func (c *Collector) LastSweep() PruneStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSweep
}
