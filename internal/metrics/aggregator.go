// internal/metrics/aggregator.go
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mwiater/stochprobe/internal/logging"
)

// Aggregator collects call metrics into a private Prometheus registry and a
// per-model running summary.
type Aggregator struct {
	mutex    sync.Mutex
	metrics  map[string]*ModelMetrics
	registry *prometheus.Registry
	calls    *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	runInfo  *prometheus.GaugeVec
}

// NewAggregator creates and initializes a new Aggregator.
func NewAggregator() *Aggregator {
	agg := &Aggregator{
		metrics:  make(map[string]*ModelMetrics),
		registry: prometheus.NewRegistry(),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stochprobe",
			Name:      "calls_total",
			Help:      "Inference calls by model and outcome.",
		}, []string{"model", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "stochprobe",
			Name:      "call_latency_seconds",
			Help:      "Wall-clock latency of inference calls.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"model"}),
		runInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "stochprobe",
			Name:      "run_info",
			Help:      "Experiment and model of the current run.",
		}, []string{"experiment", "model", "run_id"}),
	}
	agg.registry.MustRegister(agg.calls, agg.latency, agg.runInfo)
	return agg
}

// Registry exposes the underlying registry, mainly for tests.
func (a *Aggregator) Registry() *prometheus.Registry { return a.registry }

// SetRunInfo labels the run so textfile snapshots are self-describing.
func (a *Aggregator) SetRunInfo(experiment, model, runID string) {
	a.runInfo.WithLabelValues(experiment, model, runID).Set(1)
}

// Record updates the metrics for a given model with one call.
func (a *Aggregator) Record(model, outcome string, latency time.Duration) {
	a.calls.WithLabelValues(model, outcome).Inc()
	a.latency.WithLabelValues(model).Observe(latency.Seconds())

	a.mutex.Lock()
	defer a.mutex.Unlock()

	modelMetrics, exists := a.metrics[model]
	if !exists {
		modelMetrics = &ModelMetrics{ModelName: model, Outcomes: make(map[string]int64)}
		a.metrics[model] = modelMetrics
	}
	modelMetrics.LastUpdatedUTC = time.Now().UTC()
	modelMetrics.Outcomes[outcome]++
	if outcome == OutcomeSuccess {
		modelMetrics.LatencySeconds.Add(latency.Seconds())
	}
}

// Snapshot returns a copy of the per-model summaries sorted by model name.
func (a *Aggregator) Snapshot() []ModelMetrics {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	out := make([]ModelMetrics, 0, len(a.metrics))
	for _, m := range a.metrics {
		cp := *m
		cp.Outcomes = make(map[string]int64, len(m.Outcomes))
		for k, v := range m.Outcomes {
			cp.Outcomes[k] = v
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModelName < out[j].ModelName })
	return out
}

// WriteTextfile saves the registry in the node-exporter textfile format.
func (a *Aggregator) WriteTextfile(path string) error {
	logging.LogEvent("[METRICS] Saving metrics to %s", path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, a.registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
