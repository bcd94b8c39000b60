package poller

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles the daemon's prometheus metrics on a private registry.
type Collector struct {
	reg *prometheus.Registry

	PollsTotal      prometheus.Counter
	PollErrors      *prometheus.CounterVec // kind label: auth|network|api
	PollDuration    prometheus.Histogram
	LastSuccess     prometheus.Gauge
	TokenExpiry     prometheus.Gauge
	StudentsTracked prometheus.Gauge
	Relogins        prometheus.Counter

	Published   prometheus.Counter
	PublishErrs prometheus.Counter
}

// NewCollector creates and registers the metric set.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		PollsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smarttag_polls_total",
			Help: "Total poll attempts.",
		}),
		PollErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smarttag_poll_errors_total",
			Help: "Total failed polls by error kind.",
		}, []string{"kind"}),
		PollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "smarttag_poll_duration_seconds",
			Help:    "Duration of a full poll cycle.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "smarttag_last_success_timestamp_seconds",
			Help: "Unix time of the last successful poll.",
		}),
		TokenExpiry: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "smarttag_token_expiry_timestamp_seconds",
			Help: "Unix time at which the current access token expires.",
		}),
		StudentsTracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "smarttag_students_tracked",
			Help: "Number of students included in the last snapshot.",
		}),
		Relogins: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smarttag_relogins_total",
			Help: "Total full re-logins after an expired session.",
		}),
		Published: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smarttag_snapshots_published_total",
			Help: "Total snapshots published to the sink.",
		}),
		PublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smarttag_snapshot_publish_errors_total",
			Help: "Total sink publish errors.",
		}),
	}

	reg.MustRegister(
		c.PollsTotal, c.PollErrors, c.PollDuration,
		c.LastSuccess, c.TokenExpiry, c.StudentsTracked, c.Relogins,
		c.Published, c.PublishErrs,
	)
	return c
}

// Handler serves the registry for a /metrics route.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}
