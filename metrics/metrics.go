// Package metrics provides Prometheus metrics for the batch generators.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the counters and histograms updated while batches are
// produced. A nil *Metrics is valid and records nothing.
type Metrics struct {
	BatchesServed      *prometheus.CounterVec
	BatchBuildSeconds  prometheus.Histogram
	DecodeErrors       prometheus.Counter
	MappingCacheHits   prometheus.Counter
	MappingCacheMisses prometheus.Counter
	SwappedSamples     prometheus.Counter
	TruncatedSamples   prometheus.Counter
	Reshuffles         prometheus.Counter
	registry           *prometheus.Registry
}

// New creates the metrics and registers them with registry.
func New(registry *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register batch metrics: %w", err)
	}
	return m, nil
}

func (m *Metrics) initMetrics() {
	m.BatchesServed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "posebatch_batches_served_total",
		Help: "Total number of batches returned to the training loop",
	}, []string{"subset"})

	m.BatchBuildSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "posebatch_batch_build_seconds",
		Help:    "Time spent resolving, decoding and padding one batch",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
	})

	m.DecodeErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "posebatch_decode_errors_total",
		Help: "Total number of decoder failures",
	})

	m.MappingCacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "posebatch_mapping_cache_hits_total",
		Help: "Sequence mappings loaded from a persisted cache file",
	})

	m.MappingCacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "posebatch_mapping_cache_misses_total",
		Help: "Sequence mappings rebuilt by decoding every clip",
	})

	m.SwappedSamples = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "posebatch_swapped_samples_total",
		Help: "Samples whose person order was swapped by augmentation",
	})

	m.TruncatedSamples = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "posebatch_truncated_samples_total",
		Help: "Samples that lost timesteps when normalized to the target length",
	})

	m.Reshuffles = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "posebatch_reshuffles_total",
		Help: "Epoch permutations replaced at epoch end",
	})
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.BatchesServed.Describe(ch)
	m.BatchBuildSeconds.Describe(ch)
	m.DecodeErrors.Describe(ch)
	m.MappingCacheHits.Describe(ch)
	m.MappingCacheMisses.Describe(ch)
	m.SwappedSamples.Describe(ch)
	m.TruncatedSamples.Describe(ch)
	m.Reshuffles.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.BatchesServed.Collect(ch)
	m.BatchBuildSeconds.Collect(ch)
	m.DecodeErrors.Collect(ch)
	m.MappingCacheHits.Collect(ch)
	m.MappingCacheMisses.Collect(ch)
	m.SwappedSamples.Collect(ch)
	m.TruncatedSamples.Collect(ch)
	m.Reshuffles.Collect(ch)
}

// ObserveBatch records a served batch and how long it took to build.
func (m *Metrics) ObserveBatch(subset string, took time.Duration) {
	if m == nil {
		return
	}
	m.BatchesServed.WithLabelValues(subset).Inc()
	m.BatchBuildSeconds.Observe(took.Seconds())
}

// DecodeFailed counts a decoder failure.
func (m *Metrics) DecodeFailed() {
	if m == nil {
		return
	}
	m.DecodeErrors.Inc()
}

// MappingCache records whether a sequence mapping came from disk.
func (m *Metrics) MappingCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.MappingCacheHits.Inc()
	} else {
		m.MappingCacheMisses.Inc()
	}
}

// Swapped counts samples altered by individual order augmentation.
func (m *Metrics) Swapped(n int) {
	if m == nil {
		return
	}
	m.SwappedSamples.Add(float64(n))
}

// Truncated counts samples that were cut to the target length.
func (m *Metrics) Truncated(n int) {
	if m == nil {
		return
	}
	m.TruncatedSamples.Add(float64(n))
}

// Reshuffled counts an epoch permutation replacement.
func (m *Metrics) Reshuffled() {
	if m == nil {
		return
	}
	m.Reshuffles.Inc()
}
