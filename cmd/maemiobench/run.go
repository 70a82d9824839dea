package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/maemio/maemio/internal/config"
	"github.com/maemio/maemio/internal/engine"
	"github.com/maemio/maemio/internal/telemetry"
)

var (
	benchRecords     int
	benchDuration    time.Duration
	benchWriteRatio  float64
	benchMetricsAddr string
)

var runCmd = &cobra.Command{
	Use:     "run",
	Short:   "run a randomized read/write workload against an in-process maemio engine",
	PreRunE: processRunConfig,
	RunE:    runBenchmark,
}

func init() {
	fs := runCmd.Flags()
	config.BindFlags(fs, viper.GetViper())
	fs.IntVar(&benchRecords, "records", 10_000, "number of records to pre-populate and hammer")
	fs.DurationVar(&benchDuration, "duration", 10*time.Second, "how long to run the workload")
	fs.Float64Var(&benchWriteRatio, "write-ratio", 0.2, "fraction of operations that are writes (0.0-1.0)")
	fs.StringVar(&benchMetricsAddr, "metrics-addr", "", "if set, serve Prometheus metrics at this address (e.g. :9090)")
}

func processRunConfig(cmd *cobra.Command, _ []string) error {
	return viper.BindPFlags(cmd.Flags())
}

func runBenchmark(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.ThreadCount <= 0 {
		cfg.ThreadCount = runtime.NumCPU()
	}

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	registry := prometheus.NewRegistry()
	metrics := telemetry.NewRegistry(registry)

	e, err := engine.New(cfg, engine.WithLogger(logger), engine.WithMetrics(metrics))
	if err != nil {
		return fmt.Errorf("constructing engine: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := e.StartMaintenance(ctx); err != nil {
		return fmt.Errorf("starting maintenance: %w", err)
	}

	if benchMetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		server := &http.Server{Addr: benchMetricsAddr, Handler: mux}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error().Err(err).Msg("metrics server exited")
			}
		}()
		defer server.Close()
	}

	ids := seedRecords(e, benchRecords)

	var commits, aborts atomic.Uint64
	var wg sync.WaitGroup
	runCtx, cancelRun := context.WithTimeout(ctx, benchDuration)
	defer cancelRun()

	start := time.Now()
	for worker := 0; worker < cfg.ThreadCount; worker++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			rng := rand.New(rand.NewPCG(uint64(workerID), uint64(time.Now().UnixNano())))
			for runCtx.Err() == nil {
				id := ids[rng.IntN(len(ids))]
				var txErr error
				if rng.Float64() < benchWriteRatio {
					txErr = e.Execute(workerID, func(tx *engine.Tx) error {
						return tx.Write(id, []byte("bench-payload"))
					})
				} else {
					txErr = e.Execute(workerID, func(tx *engine.Tx) error {
						_, err := tx.Read(id)
						return err
					})
				}
				if txErr != nil {
					aborts.Add(1)
				} else {
					commits.Add(1)
				}
			}
		}(worker)
	}
	wg.Wait()
	elapsed := time.Since(start)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("engine shutdown did not complete cleanly")
	}

	total := commits.Load() + aborts.Load()
	fmt.Printf("workers=%d records=%d duration=%s\n", cfg.ThreadCount, benchRecords, elapsed)
	fmt.Printf("commits=%d aborts=%d throughput=%.0f tx/s abort_rate=%.2f%%\n",
		commits.Load(), aborts.Load(),
		float64(commits.Load())/elapsed.Seconds(),
		100*float64(aborts.Load())/float64(max(total, 1)))
	return nil
}

func seedRecords(e *engine.Engine, count int) []engine.RecordID {
	ids := make([]engine.RecordID, 0, count)
	const batch = 256
	for start := 0; start < count; start += batch {
		end := start + batch
		if end > count {
			end = count
		}
		batchIDs := make([]engine.RecordID, 0, end-start)
		_ = e.Execute(0, func(tx *engine.Tx) error {
			for i := start; i < end; i++ {
				id, err := tx.Create([]byte("seed"))
				if err != nil {
					return err
				}
				batchIDs = append(batchIDs, id)
			}
			return nil
		})
		ids = append(ids, batchIDs...)
	}
	return ids
}
