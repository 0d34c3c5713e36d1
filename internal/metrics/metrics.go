package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pipeline instruments the sampling pipeline. A nil *Pipeline is valid and
// records nothing, so callers never need to branch on whether metrics are
// enabled.
type Pipeline struct {
	registry *prometheus.Registry

	samples  *prometheus.CounterVec
	bytes    *prometheus.CounterVec
	failures *prometheus.CounterVec
	pollTime *prometheus.HistogramVec
}

// NewPipeline builds a pipeline metrics set on its own registry.
func NewPipeline() *Pipeline {
	p := &Pipeline{
		registry: prometheus.NewRegistry(),
		samples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "osdprof",
			Name:      "samples_total",
			Help:      "Samples collected, by source tag.",
		}, []string{"tag"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "osdprof",
			Name:      "sample_bytes_total",
			Help:      "Raw payload bytes collected, by source tag.",
		}, []string{"tag"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "osdprof",
			Name:      "poller_failures_total",
			Help:      "Pollers stopped by a sampling error, by source tag.",
		}, []string{"tag"}),
		pollTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "osdprof",
			Name:      "poll_duration_seconds",
			Help:      "Round-trip time of one sampling call.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"tag"}),
	}
	p.registry.MustRegister(p.samples, p.bytes, p.failures, p.pollTime)
	return p
}

// ObserveSample records one collected sample.
func (p *Pipeline) ObserveSample(tag string, payloadBytes int) {
	if p == nil {
		return
	}
	p.samples.WithLabelValues(tag).Inc()
	p.bytes.WithLabelValues(tag).Add(float64(payloadBytes))
}

// ObservePoll records the duration of one sampling call.
func (p *Pipeline) ObservePoll(tag string, d time.Duration) {
	if p == nil {
		return
	}
	p.pollTime.WithLabelValues(tag).Observe(d.Seconds())
}

// PollerFailed records a poller stopping on a sampling error.
func (p *Pipeline) PollerFailed(tag string) {
	if p == nil {
		return
	}
	p.failures.WithLabelValues(tag).Inc()
}

// Handler exposes the registry in the Prometheus text format.
func (p *Pipeline) Handler() http.Handler {
	if p == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
