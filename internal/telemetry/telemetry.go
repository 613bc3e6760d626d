package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roman-kulish/sdrcap/internal/storage"
)

const namespace = "sdrcap"

// Metrics exports recording events to Prometheus. It implements the
// recorder observer.
type Metrics struct {
	batchesAcquired *prometheus.CounterVec
	samplesAppended *prometheus.CounterVec
	acquireLatency  *prometheus.HistogramVec
	appendLatency   *prometheus.HistogramVec
	warmUpSkipped   *prometheus.CounterVec
	errors          *prometheus.CounterVec
}

// NewMetrics creates the recorder metrics and registers them on reg
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := Metrics{
		batchesAcquired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_acquired_total",
			Help:      "Batches read from the sample source.",
		}, []string{"device"}),
		samplesAppended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_appended_total",
			Help:      "Samples persisted to destinations.",
		}, []string{"format"}),
		acquireLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "acquire_latency_seconds",
			Help:      "Time spent waiting for one batch from the source.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"device"}),
		appendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "append_latency_seconds",
			Help:      "Time spent appending one batch to its destination.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"format"}),
		warmUpSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "warm_up_skipped_total",
			Help:      "Record calls which initialized the source instead of recording.",
		}, []string{"device"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Recording failures by kind.",
		}, []string{"kind"}),
	}

	collectors := []prometheus.Collector{
		m.batchesAcquired,
		m.samplesAppended,
		m.acquireLatency,
		m.appendLatency,
		m.warmUpSkipped,
		m.errors,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return &m, nil
}

func (m *Metrics) BatchAcquired(device string, _ int, elapsed time.Duration) {
	m.batchesAcquired.WithLabelValues(device).Inc()
	m.acquireLatency.WithLabelValues(device).Observe(elapsed.Seconds())
}

func (m *Metrics) BatchAppended(format storage.Format, samples int, elapsed time.Duration) {
	m.samplesAppended.WithLabelValues(format.String()).Add(float64(samples))
	m.appendLatency.WithLabelValues(format.String()).Observe(elapsed.Seconds())
}

func (m *Metrics) WarmUpSkipped(device string) {
	m.warmUpSkipped.WithLabelValues(device).Inc()
}

func (m *Metrics) Failed(kind string) {
	m.errors.WithLabelValues(kind).Inc()
}
