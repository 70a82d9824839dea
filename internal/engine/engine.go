package engine

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/maemio/maemio/internal/clock"
	"github.com/maemio/maemio/internal/config"
	"github.com/maemio/maemio/internal/contention"
	"github.com/maemio/maemio/internal/gc"
	"github.com/maemio/maemio/internal/index"
	"github.com/maemio/maemio/internal/telemetry"
)

// hillClimbWindowFactor sets the contention manager's hill-climb window
// as a multiple of the clock sync interval, comfortably clearing the
// >= 2x minimum contention.NewManager enforces.
const hillClimbWindowFactor = 10

// gcStoreAdapter satisfies gc's narrow store interface by forwarding to
// *Store and converting engine.PruneStats to gc.PruneStats. It exists so
// package gc never has to import package engine: the dependency only
// runs engine -> gc, never the reverse. ShardCount/PruneShard (rather
// than the single-call Prune) are what let gc's collector fan the sweep
// out across shards concurrently instead of walking the whole store on
// one goroutine.
type gcStoreAdapter struct{ store *Store }

func (a gcStoreAdapter) ShardCount() int { return a.store.ShardCount() }

func (a gcStoreAdapter) PruneShard(i int, safeTS clock.Timestamp) gc.PruneStats {
	stats := a.store.PruneShard(i, safeTS)
	return gc.PruneStats{RecordsVisited: stats.RecordsVisited, VersionsFreed: stats.VersionsFreed}
}

// Option configures an Engine at construction.
type Option func(*Engine)

// WithLogger injects a structured logger, replacing the default no-op.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) { e.log = telemetry.NewLog(logger) }
}

// WithMetrics injects a metrics registry. Without this option, Engine
// records nothing.
func WithMetrics(reg *telemetry.Registry) Option {
	return func(e *Engine) { e.metrics = reg }
}

// Engine wires the clock manager, contention manager, record store, GC
// collector, and index manager together; Execute is the only entry point
// transaction bodies run through.
type Engine struct {
	cfg config.Config
	log telemetry.Log

	store      *Store
	clockMgr   *clock.Manager
	contention *contention.Manager
	gcCollect  *gc.Collector
	indexes    *index.Manager
	exec       *executor
	metrics    *telemetry.Registry

	ctx    context.Context
	cancel context.CancelFunc
	done   []<-chan struct{}
}

// syncWorker is the worker slot whose clock background maintenance reads
// (GC's idle-horizon fallback). It is slot 0, the same slot a caller's
// worker 0 runs transactions on; Clock.Now's compare-and-swap keeps the
// shared use safe.
const syncWorker = 0

// New builds an Engine from cfg. It does not start any background
// goroutines; call StartMaintenance for that.
func New(cfg config.Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	clockMgr, err := clock.NewManager(cfg.ThreadCount, cfg.ClockSyncInterval())
	if err != nil {
		return nil, err
	}

	contentionMgr, err := contention.NewManager(
		cfg.ThreadCount,
		hillClimbWindowFactor*cfg.ClockSyncInterval(),
		cfg.ClockSyncInterval(),
	)
	if err != nil {
		return nil, err
	}

	store := NewStore(cfg.InitialIndexCapacity)
	active := newActiveSet()

	e := &Engine{
		cfg:        cfg,
		log:        telemetry.NewNopLog(),
		store:      store,
		clockMgr:   clockMgr,
		contention: contentionMgr,
		indexes:    index.NewManager(),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.exec = &executor{
		store:      store,
		clock:      clockMgr,
		contention: contentionMgr,
		active:     active,
		retryCap:   cfg.RetryCap,
	}
	var gcOpts []gc.Option
	if e.metrics != nil {
		gcOpts = append(gcOpts, gc.WithOnSweep(func(stats gc.PruneStats) {
			e.metrics.GCSweeps.Inc()
			e.metrics.GCFreed.Add(float64(stats.VersionsFreed))
		}))
	}
	e.gcCollect = gc.New(gcStoreAdapter{store: store}, clockMgr, active, syncWorker, gcOpts...)
	e.ctx, e.cancel = context.WithCancel(context.Background())
	return e, nil
}

// StartMaintenance launches the clock-sync, hill-climbing, and GC
// background goroutines. ctx's cancellation additionally stops them
// alongside Shutdown, but Shutdown is the normal way to stop an Engine.
func (e *Engine) StartMaintenance(ctx context.Context) error {
	maintCtx, cancel := mergedContext(e.ctx, ctx)
	_ = cancel // maintCtx is canceled by whichever parent fires first; nothing else to clean up here

	e.done = append(e.done,
		e.clockMgr.StartSync(maintCtx),
		e.contention.StartHillClimbing(maintCtx),
		e.gcCollect.Run(maintCtx, e.cfg.GCInterval()),
	)
	if e.metrics != nil {
		e.done = append(e.done, e.startBackoffGauges(maintCtx))
	}
	e.log.Info().Int("thread_count", e.cfg.ThreadCount).Msg("maemio engine maintenance started")
	return nil
}

// startBackoffGauges mirrors each worker's current mean backoff into the
// metrics registry's per-worker gauge, sampled at the clock-sync cadence
// (plenty fine-grained: the hill climber only moves the mean once per
// window, which is several sync intervals long).
func (e *Engine) startBackoffGauges(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(e.cfg.ClockSyncInterval())
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for w := 0; w < e.cfg.ThreadCount; w++ {
					e.metrics.Backoff.WithLabelValues(strconv.Itoa(w)).
						Set(float64(e.contention.BackoffMeanMicros(w)))
				}
			}
		}
	}()
	return done
}

// mergedContext returns a context canceled when either parent is, without
// pulling in an extra dependency for what is a five-line pattern.
func mergedContext(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(a)
	go func() {
		select {
		case <-b.Done():
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// Execute runs body as a transaction on workerID's behalf, retrying on
// internal conflict up to cfg.RetryCap times. Commit is implicit in body
// returning nil. A conflict error (ErrWriteConflict, ErrInvisible) that
// body passes back is retried like any other conflict; any other error
// body returns is propagated without retry.
func (e *Engine) Execute(workerID int, body func(*Tx) error) error {
	select {
	case <-e.ctx.Done():
		return ErrShutdown
	default:
	}
	defer func() {
		// A tripped ErrInvariantViolation guard means chain state is
		// corrupt; get the structured record out, then let the panic
		// terminate the process.
		if r := recover(); r != nil {
			if err, ok := r.(error); ok && errors.Is(err, ErrInvariantViolation) {
				e.log.Fatal().Err(err).Int("worker_id", workerID).Msg("engine invariant violated")
			}
			panic(r)
		}
	}()
	if err := e.exec.run(e.ctx, workerID, body); err != nil {
		if e.metrics != nil && errors.Is(err, ErrRetryExhausted) {
			e.metrics.Aborts.WithLabelValues("retry_exhausted").Inc()
		}
		return err
	}
	if e.metrics != nil {
		e.metrics.Commits.Inc()
	}
	return nil
}

// CreateIndex registers a new secondary index under id.
func (e *Engine) CreateIndex(id uint64, name string, kind index.Kind) error {
	return e.indexes.Create(id, name, kind)
}

// Index returns a previously created index.
func (e *Engine) Index(id uint64) (index.Index, bool) {
	return e.indexes.Get(id)
}

// Timestamp returns the engine's current timestamp as observed by
// workerID, for callers that need a snapshot read outside of a
// transaction (e.g. the index layer's own as-of reads).
func (e *Engine) Timestamp(workerID int) Timestamp {
	return e.clockMgr.Now(workerID)
}

// Shutdown stops every background goroutine and waits for them to exit,
// or for ctx to expire first. There is no forceful cancellation: in-flight
// Execute calls are allowed to finish, only new ones are rejected once
// shutdown begins.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.cancel()
	for _, done := range e.done {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
