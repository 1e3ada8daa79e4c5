// Package metrics exposes the bot's Prometheus metrics. A nil *Collector is
// valid and records nothing.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "igdmbot"

// Collector owns a private registry so several instances can coexist in tests.
type Collector struct {
	registry *prometheus.Registry

	commentsProcessed *prometheus.CounterVec
	authAttempts      *prometheus.CounterVec
	cycles            *prometheus.CounterVec
	cycleDuration     prometheus.Histogram
	webhookEvents     *prometheus.CounterVec
	rateLimitSignals  prometheus.Counter
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	buildInfo         *prometheus.GaugeVec
}

// New creates and registers all metrics.
func New(version string) *Collector {
	c := &Collector{registry: prometheus.NewRegistry()}

	c.commentsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "comments_processed_total",
			Help:      "Comments recorded, by action taken",
		},
		[]string{"action"},
	)
	c.authAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_attempts_total",
			Help:      "Authentication attempts, by result and failure reason",
		},
		[]string{"result", "reason"},
	)
	c.cycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "monitor_cycles_total",
			Help:      "Polling cycles, by result",
		},
		[]string{"result"},
	)
	c.cycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "monitor_cycle_duration_seconds",
			Help:      "Duration of polling cycles in seconds",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~8.5m
		},
	)
	c.webhookEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Webhook comment events, by result",
		},
		[]string{"result"}, // "queued", "dropped", "ignored", "rejected"
	)
	c.rateLimitSignals = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_signals_total",
			Help:      "Rate limit signals received from the gateway",
		},
	)
	c.httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)
	c.httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
	c.buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build information",
		},
		[]string{"version"},
	)

	c.registry.MustRegister(
		c.commentsProcessed,
		c.authAttempts,
		c.cycles,
		c.cycleDuration,
		c.webhookEvents,
		c.rateLimitSignals,
		c.httpRequests,
		c.httpDuration,
		c.buildInfo,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	c.buildInfo.WithLabelValues(version).Set(1)
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// CommentProcessed counts one recorded comment.
func (c *Collector) CommentProcessed(action string) {
	if c == nil {
		return
	}
	c.commentsProcessed.WithLabelValues(action).Inc()
}

// AuthAttempt counts one Authenticate call. reason is empty on success.
func (c *Collector) AuthAttempt(ok bool, reason string) {
	if c == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	c.authAttempts.WithLabelValues(result, reason).Inc()
}

// Cycle records one polling cycle.
func (c *Collector) Cycle(result string, d time.Duration) {
	if c == nil {
		return
	}
	c.cycles.WithLabelValues(result).Inc()
	c.cycleDuration.Observe(d.Seconds())
}

// WebhookEvent counts one normalized webhook event.
func (c *Collector) WebhookEvent(result string) {
	if c == nil {
		return
	}
	c.webhookEvents.WithLabelValues(result).Inc()
}

// RateLimited counts one rate limit signal.
func (c *Collector) RateLimited() {
	if c == nil {
		return
	}
	c.rateLimitSignals.Inc()
}

// Middleware returns gin middleware that records HTTP metrics.
func (c *Collector) Middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if c == nil {
			ctx.Next()
			return
		}
		start := time.Now()
		ctx.Next()

		endpoint := ctx.FullPath()
		if endpoint == "" {
			endpoint = "unknown"
		}
		method := ctx.Request.Method
		c.httpRequests.WithLabelValues(method, endpoint, strconv.Itoa(ctx.Writer.Status())).Inc()
		c.httpDuration.WithLabelValues(method, endpoint).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() gin.HandlerFunc {
	if c == nil {
		return func(ctx *gin.Context) { ctx.Status(404) }
	}
	handler := promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
	return func(ctx *gin.Context) {
		handler.ServeHTTP(ctx.Writer, ctx.Request)
	}
}
