package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ddash/internal/logging"
)

const namespace = "ddash"

// Recorder holds the run and file instruments.
type Recorder struct {
	registry *prometheus.Registry

	filesTotal      *prometheus.CounterVec   // by collection_system and outcome
	runsTotal       *prometheus.CounterVec   // by task and state
	runDuration     *prometheus.HistogramVec // by task
	manifestEntries prometheus.Gauge
}

// New creates a Recorder with its instruments registered on a fresh registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		filesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "files_total",
			Help:      "Raw files handled by reconciliation runs",
		}, []string{"collection_system", "outcome"}), // outcome: new, updated, removed, failed, skipped, unrecognized
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "runs_total",
			Help:      "Reconciliation runs by terminal state",
		}, []string{"task", "state"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "run_duration_seconds",
			Help:      "Wall time of reconciliation runs",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
		}, []string{"task"}),
		manifestEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "manifest",
			Name:      "entries",
			Help:      "Entries in the dashboard manifest after the latest run",
		}),
	}
	r.registry.MustRegister(
		r.filesTotal,
		r.runsTotal,
		r.runDuration,
		r.manifestEntries,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Registry returns the private Prometheus registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// FileProcessed counts one raw file outcome.
func (r *Recorder) FileProcessed(collectionSystem, outcome string) {
	if r == nil {
		return
	}
	r.filesTotal.WithLabelValues(collectionSystem, outcome).Inc()
}

// RunFinished counts a terminal run and observes its duration.
func (r *Recorder) RunFinished(task, state string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.runsTotal.WithLabelValues(task, state).Inc()
	r.runDuration.WithLabelValues(task).Observe(elapsed.Seconds())
}

// ManifestEntries records the manifest size.
func (r *Recorder) ManifestEntries(n int) {
	if r == nil {
		return
	}
	r.manifestEntries.Set(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	return mux
}

// Serve exposes Handler on addr until ctx is cancelled.
func (r *Recorder) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	if logger == nil {
		logger = logging.NewNop()
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	logger.Info("metrics endpoint listening", logging.String("addr", addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
