// Package metrics exposes limitly's counters to Prometheus.
package metrics

import (
	"github.com/emmanueltaiwo/limitly/ratelimiter"
	"github.com/emmanueltaiwo/limitly/registry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder holds all Prometheus metrics for limitly. It satisfies both
// ratelimiter.MetricsRecorder and registry.Recorder.
type Recorder struct {
	ChecksTotal         *prometheus.CounterVec
	CheckDuration       *prometheus.HistogramVec
	RegistryEventsTotal *prometheus.CounterVec
	RequestsTotal       *prometheus.CounterVec
}

var (
	_ ratelimiter.MetricsRecorder = (*Recorder)(nil)
	_ registry.Recorder           = (*Recorder)(nil)
)

// New creates and registers all metrics with the given registry.
func New(reg prometheus.Registerer) *Recorder {
	return &Recorder{
		ChecksTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "limitly",
				Name:      "checks_total",
				Help:      "Total rate limit checks",
			},
			[]string{"algorithm", "outcome"}, // outcome=allowed/denied/fail_open/fail_closed
		),
		CheckDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "limitly",
				Name:      "check_duration_seconds",
				Help:      "Store round trip of a rate limit check in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"algorithm"},
		),
		RegistryEventsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "limitly",
				Name:      "registry_events_total",
				Help:      "Service registry outcomes",
			},
			[]string{"event"},
		),
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "limitly",
				Name:      "http_requests_total",
				Help:      "HTTP requests served",
			},
			[]string{"route", "status"},
		),
	}
}

// Add implements ratelimiter.MetricsRecorder and registry.Recorder.
// Unknown names are ignored.
func (r *Recorder) Add(name string, value float64, tags map[string]string) {
	switch name {
	case ratelimiter.MetricCheck:
		r.ChecksTotal.WithLabelValues(tags["algorithm"], tags["outcome"]).Add(value)
	case registry.MetricEvent:
		r.RegistryEventsTotal.WithLabelValues(tags["event"]).Add(value)
	}
}

// Observe implements ratelimiter.MetricsRecorder.
func (r *Recorder) Observe(name string, value float64, tags map[string]string) {
	if name == ratelimiter.MetricLatency {
		r.CheckDuration.WithLabelValues(tags["algorithm"]).Observe(value)
	}
}
