// Package metrics holds the Prometheus instruments for the build pipeline.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Build results.
const (
	ResultSucceeded     = "succeeded"
	ResultBuildFailed   = "build_failed"
	ResultReleaseFailed = "release_failed"
	ResultUnexpected    = "unexpected"
)

// Image cache lookups.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheStale = "stale"
)

// Webhook outcomes.
const (
	WebhookAccepted     = "accepted"
	WebhookIgnored      = "ignored"
	WebhookUnauthorized = "unauthorized"
	WebhookInvalid      = "invalid"
	WebhookAuthFailed   = "auth_failed"
)

type Metrics struct {
	builds        *prometheus.CounterVec
	buildDuration prometheus.Histogram
	imageCache    *prometheus.CounterVec
	webhooks      *prometheus.CounterVec
}

// New registers the instruments on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		builds: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snap_builder_builds_total",
				Help: "Pipeline runs by terminal result",
			},
			[]string{"result"},
		),
		buildDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "snap_builder_build_duration_seconds",
				Help:    "Wall time of a pipeline run",
				Buckets: prometheus.ExponentialBuckets(10, 2, 10),
			},
		),
		imageCache: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snap_builder_image_cache_total",
				Help: "Build image lookups by result",
			},
			[]string{"result"},
		),
		webhooks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snap_builder_webhooks_total",
				Help: "Webhook deliveries by outcome",
			},
			[]string{"outcome"},
		),
	}
}

func (m *Metrics) BuildFinished(result string, took time.Duration) {
	if m == nil {
		return
	}
	m.builds.WithLabelValues(result).Inc()
	m.buildDuration.Observe(took.Seconds())
}

func (m *Metrics) ImageLookup(result string) {
	if m == nil {
		return
	}
	m.imageCache.WithLabelValues(result).Inc()
}

func (m *Metrics) Webhook(outcome string) {
	if m == nil {
		return
	}
	m.webhooks.WithLabelValues(outcome).Inc()
}
