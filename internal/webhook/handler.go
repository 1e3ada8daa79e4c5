// Package webhook receives comment notifications pushed by the Graph API and
// queues them for dispatch.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"igdmbot/internal/metrics"
	"igdmbot/internal/worker"
	"igdmbot/pkg/config"
	"igdmbot/pkg/logger"
	"igdmbot/pkg/ratelimit"
)

const maxWebhookBodyBytes int64 = 1 << 20

const signatureHeader = "X-Hub-Signature-256"

// Sink accepts normalized comments without blocking.
type Sink interface {
	TrySubmit(job worker.Job) error
}

// Stats summarizes deliveries since start.
type Stats struct {
	Active            bool       `json:"active"`
	Deliveries        int64      `json:"deliveries"`
	EventsQueued      int64      `json:"events_queued"`
	EventsDropped     int64      `json:"events_dropped"`
	EventsIgnored     int64      `json:"events_ignored"`
	QueueRejections   int64      `json:"queue_rejections"`
	InvalidSignatures int64      `json:"invalid_signatures"`
	LastReceived      *time.Time `json:"last_received,omitempty"`
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// WithMetrics records event counts on m.
func WithMetrics(m *metrics.Collector) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

// Handler serves the verification handshake and comment deliveries.
type Handler struct {
	verifyToken string
	appSecret   string
	sink        Sink
	limiter     *ratelimit.KeyedLimiter
	metrics     *metrics.Collector
	logger      logger.Logger
	now         func() time.Time

	active atomic.Bool

	deliveries        atomic.Int64
	queued            atomic.Int64
	dropped           atomic.Int64
	ignored           atomic.Int64
	rejected          atomic.Int64
	invalidSignatures atomic.Int64

	mu           sync.Mutex
	lastReceived time.Time
}

// New returns an active handler queueing onto sink.
func New(cfg config.WebhookConfig, sink Sink, opts ...Option) *Handler {
	h := &Handler{
		verifyToken: cfg.VerifyToken,
		appSecret:   cfg.AppSecret,
		sink:        sink,
		logger:      logger.GetLogger(),
		now:         time.Now,
	}
	if cfg.RateLimitPerMin > 0 {
		h.limiter = ratelimit.NewKeyedLimiter(cfg.RateLimitPerMin, time.Minute, 10*time.Minute)
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.WithField("component", "webhook")
	h.active.Store(true)
	return h
}

// Register mounts the handshake and delivery routes on r at path.
func (h *Handler) Register(r gin.IRouter, path string) {
	r.GET(path, h.Verify)
	r.POST(path, h.Receive)
}

// Activate resumes queueing deliveries.
func (h *Handler) Activate() {
	if !h.active.Swap(true) {
		h.logger.Info("Webhook processing activated")
	}
}

// Deactivate keeps acknowledging deliveries but drops their events.
func (h *Handler) Deactivate() {
	if h.active.Swap(false) {
		h.logger.Warn("Webhook processing deactivated")
	}
}

// Active reports whether deliveries are queued.
func (h *Handler) Active() bool { return h.active.Load() }

// Stats returns delivery counters.
func (h *Handler) Stats() Stats {
	s := Stats{
		Active:            h.active.Load(),
		Deliveries:        h.deliveries.Load(),
		EventsQueued:      h.queued.Load(),
		EventsDropped:     h.dropped.Load(),
		EventsIgnored:     h.ignored.Load(),
		QueueRejections:   h.rejected.Load(),
		InvalidSignatures: h.invalidSignatures.Load(),
	}
	h.mu.Lock()
	if !h.lastReceived.IsZero() {
		t := h.lastReceived
		s.LastReceived = &t
	}
	h.mu.Unlock()
	return s
}

// Verify answers the subscription handshake.
// Route: GET <path>?hub.mode=subscribe&hub.verify_token=...&hub.challenge=...
func (h *Handler) Verify(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode != "subscribe" || h.verifyToken == "" ||
		subtle.ConstantTimeCompare([]byte(token), []byte(h.verifyToken)) != 1 {
		h.logger.WithField("mode", mode).Warn("Webhook verification failed")
		c.String(http.StatusForbidden, "forbidden")
		return
	}

	h.logger.Info("Webhook verified")
	c.String(http.StatusOK, challenge)
}

// Receive handles one delivery.
func (h *Handler) Receive(c *gin.Context) {
	if h.limiter != nil && !h.limiter.Allow(c.ClientIP()) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
		return
	}

	if c.Request.ContentLength > maxWebhookBodyBytes {
		h.logger.WithField("size", c.Request.ContentLength).Warn("Webhook payload too large")
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload too large"})
		return
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodyBytes+1))
	if err != nil {
		h.logger.WithError(err).Error("Failed to read webhook body")
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}
	if int64(len(body)) > maxWebhookBodyBytes {
		h.logger.WithField("size", len(body)).Warn("Webhook payload too large")
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload too large"})
		return
	}

	if h.appSecret != "" && !validSignature(h.appSecret, body, c.GetHeader(signatureHeader)) {
		h.invalidSignatures.Add(1)
		h.logger.WithField("ip", c.ClientIP()).Warn("Webhook signature verification failed")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	now := h.now()
	comments, ignored, err := Parse(body, now)
	if err != nil {
		h.logger.WithError(err).Warn("Malformed webhook payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	h.deliveries.Add(1)
	h.ignored.Add(int64(ignored))
	h.mu.Lock()
	h.lastReceived = now
	h.mu.Unlock()
	for i := 0; i < ignored; i++ {
		h.metrics.WebhookEvent("ignored")
	}

	if !h.active.Load() {
		h.dropped.Add(int64(len(comments)))
		for range comments {
			h.metrics.WebhookEvent("dropped")
		}
		h.logger.WithField("events", len(comments)).Warn("Webhook received but processing is deactivated")
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "queued": 0})
		return
	}

	queued, full := 0, false
	for _, cm := range comments {
		err := h.sink.TrySubmit(worker.Job{Comment: cm, Source: "webhook", Received: now})
		if err != nil {
			full = true
			h.rejected.Add(1)
			h.metrics.WebhookEvent("rejected")
			if !errors.Is(err, worker.ErrQueueFull) {
				h.logger.WithError(err).Warn("Failed to queue webhook event")
			}
			continue
		}
		queued++
		h.queued.Add(1)
		h.metrics.WebhookEvent("queued")
	}

	h.logger.DebugWithFields("Webhook delivery queued", map[string]interface{}{
		"queued":  queued,
		"ignored": ignored,
	})

	if full {
		// Redelivery is safe: the dispatcher drops comments it already recorded.
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "queue full", "queued": queued})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "queued": queued})
}

// validSignature checks header against "sha256=" + hex(HMAC-SHA256(secret, body)).
func validSignature(secret string, body []byte, header string) bool {
	got, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	sig, err := hex.DecodeString(got)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(sig, mac.Sum(nil))
}
