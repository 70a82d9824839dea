package telemetry

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles the counters and gauges the engine updates. Callers
// scrape it through whatever promhttp handler they register it against
// (cmd/maemiobench's run subcommand does this).
type Registry struct {
	Commits  prometheus.Counter
	Aborts   *prometheus.CounterVec // labeled by abort reason
	GCSweeps prometheus.Counter
	GCFreed  prometheus.Counter
	Backoff  *prometheus.GaugeVec // labeled by worker_id
}

// NewRegistry builds a Registry and registers every metric against reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		Commits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "maemio",
			Name:      "commits_total",
			Help:      "Total committed transactions.",
		}),
		Aborts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "maemio",
			Name:      "aborts_total",
			Help:      "Total transactions given up after exhausting the retry cap, by reason.",
		}, []string{"reason"}),
		GCSweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "maemio",
			Name:      "gc_sweeps_total",
			Help:      "Total completed garbage collection sweeps.",
		}),
		GCFreed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "maemio",
			Name:      "gc_versions_freed_total",
			Help:      "Total version chain entries reclaimed by garbage collection.",
		}),
		Backoff: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "maemio",
			Name:      "worker_backoff_mean_micros",
			Help:      "Current mean backoff, in microseconds, per worker.",
		}, []string{"worker_id"}),
	}
	reg.MustRegister(r.Commits, r.Aborts, r.GCSweeps, r.GCFreed, r.Backoff)
	return r
}
