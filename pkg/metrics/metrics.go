package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector provides the advisory service metrics. A nil *Collector is valid
// and records nothing, so library code never has to guard the calls.
type Collector struct {
	// Upstream
	UpstreamRequestsTotal   *prometheus.CounterVec
	UpstreamRequestDuration *prometheus.HistogramVec
	UpstreamRetriesTotal    *prometheus.CounterVec
	TokenRefreshTotal       *prometheus.CounterVec

	// Gateway
	CacheLookupsTotal       *prometheus.CounterVec
	RateLimitedTotal        prometheus.Counter
	SyntheticFallbacksTotal *prometheus.CounterVec

	// Engine
	RecommendationsTotal *prometheus.CounterVec
	RecommendDuration    prometheus.Histogram

	// Transports
	RequestsTotal          *prometheus.CounterVec
	DuplicatesDroppedTotal prometheus.Counter
}

// NewCollector registers the metrics on reg; pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		UpstreamRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_requests_total",
				Help:      "Upstream provider calls by provider, endpoint and outcome",
			},
			[]string{"provider", "endpoint", "outcome"},
		),
		UpstreamRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upstream_request_duration_seconds",
				Help:      "Upstream provider call latency in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
			},
			[]string{"provider", "endpoint"},
		),
		UpstreamRetriesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_retries_total",
				Help:      "Retries issued by the retry executor",
			},
			[]string{"operation"},
		),
		TokenRefreshTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "token_refresh_total",
				Help:      "Client-credentials token exchanges by outcome",
			},
			[]string{"provider", "outcome"},
		),
		CacheLookupsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Response cache lookups by data class and result",
			},
			[]string{"class", "result"},
		),
		RateLimitedTotal: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limited_total",
				Help:      "Upstream fetches rejected by the rate limiter",
			},
		),
		SyntheticFallbacksTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "synthetic_fallbacks_total",
				Help:      "Accessor calls answered with synthetic data",
			},
			[]string{"class"},
		),
		RecommendationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "recommendations_total",
				Help:      "Recommendations produced by status",
			},
			[]string{"status", "degraded"},
		),
		RecommendDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "recommend_duration_seconds",
				Help:      "End-to-end recommendation latency in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
		),
		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Recommendation requests by transport and outcome",
			},
			[]string{"transport", "outcome"},
		),
		DuplicatesDroppedTotal: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "duplicates_dropped_total",
				Help:      "Redelivered MQTT requests dropped by the deduplicator",
			},
		),
	}
}

func (c *Collector) ObserveUpstream(provider, endpoint, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.UpstreamRequestsTotal.WithLabelValues(provider, endpoint, outcome).Inc()
	c.UpstreamRequestDuration.WithLabelValues(provider, endpoint).Observe(d.Seconds())
}

func (c *Collector) RecordRetry(operation string) {
	if c == nil {
		return
	}
	c.UpstreamRetriesTotal.WithLabelValues(operation).Inc()
}

func (c *Collector) RecordTokenRefresh(provider, outcome string) {
	if c == nil {
		return
	}
	c.TokenRefreshTotal.WithLabelValues(provider, outcome).Inc()
}

func (c *Collector) RecordCacheLookup(class string, hit bool) {
	if c == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	c.CacheLookupsTotal.WithLabelValues(class, result).Inc()
}

func (c *Collector) RecordRateLimited() {
	if c == nil {
		return
	}
	c.RateLimitedTotal.Inc()
}

func (c *Collector) RecordSyntheticFallback(class string) {
	if c == nil {
		return
	}
	c.SyntheticFallbacksTotal.WithLabelValues(class).Inc()
}

func (c *Collector) RecordRecommendation(status string, degraded bool, d time.Duration) {
	if c == nil {
		return
	}
	deg := "false"
	if degraded {
		deg = "true"
	}
	c.RecommendationsTotal.WithLabelValues(status, deg).Inc()
	c.RecommendDuration.Observe(d.Seconds())
}

// RecordRequest counts a transport request; outcome is "ok" or an apperr kind.
func (c *Collector) RecordRequest(transport, outcome string) {
	if c == nil {
		return
	}
	c.RequestsTotal.WithLabelValues(transport, outcome).Inc()
}

func (c *Collector) RecordDuplicate() {
	if c == nil {
		return
	}
	c.DuplicatesDroppedTotal.Inc()
}
