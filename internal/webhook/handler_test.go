package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igdmbot/internal/worker"
	"igdmbot/pkg/config"
	"igdmbot/pkg/logger"
)

type fakeSink struct {
	mu   sync.Mutex
	jobs []worker.Job
	full bool
}

func (s *fakeSink) TrySubmit(job worker.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.full {
		return worker.ErrQueueFull
	}
	s.jobs = append(s.jobs, job)
	return nil
}

const delivery = `{
  "object": "instagram",
  "entry": [{
    "id": "17841400000000000",
    "time": 1767225600,
    "changes": [
      {"field": "comments", "value": {"id": "c1", "text": "send link", "verb": "add",
        "from": {"id": "42", "username": "alice"}, "media": {"id": "p1"}}},
      {"field": "comments", "value": {"id": "c2", "text": "dm me",
        "from": {"id": "43", "username": "bob"}, "media": {"id": "p1"}}},
      {"field": "comments", "value": {"id": "c3", "text": "gone", "verb": "remove",
        "from": {"id": "44", "username": "carol"}, "media": {"id": "p1"}}},
      {"field": "comments", "value": {"id": "c4", "text": "thanks!",
        "from": {"id": "17841400000000000", "username": "me"}, "media": {"id": "p1"}}},
      {"field": "mentions", "value": {"id": "m1"}}
    ]
  }]
}`

func newRouter(t *testing.T, cfg config.WebhookConfig, sink Sink) (*gin.Engine, *Handler) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h := New(cfg, sink, WithLogger(logger.NewNopLogger()))
	r := gin.New()
	h.Register(r, "/webhook")
	return r, h
}

func post(r http.Handler, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func sign(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyHandshake(t *testing.T) {
	r, _ := newRouter(t, config.WebhookConfig{VerifyToken: "s3cret"}, &fakeSink{})

	tests := []struct {
		name  string
		query string
		code  int
		body  string
	}{
		{"valid", "hub.mode=subscribe&hub.verify_token=s3cret&hub.challenge=12345", http.StatusOK, "12345"},
		{"wrong token", "hub.mode=subscribe&hub.verify_token=nope&hub.challenge=12345", http.StatusForbidden, "forbidden"},
		{"wrong mode", "hub.mode=unsubscribe&hub.verify_token=s3cret&hub.challenge=12345", http.StatusForbidden, "forbidden"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/webhook?"+tt.query, nil)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.code, w.Code)
			assert.Equal(t, tt.body, w.Body.String())
		})
	}
}

func TestVerifyRejectsWhenTokenUnset(t *testing.T) {
	r, _ := newRouter(t, config.WebhookConfig{}, &fakeSink{})
	req := httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=&hub.challenge=1", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestReceiveQueuesNewComments(t *testing.T) {
	sink := &fakeSink{}
	r, h := newRouter(t, config.WebhookConfig{}, sink)

	w := post(r, delivery, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","queued":2}`, w.Body.String())

	require.Len(t, sink.jobs, 2)
	first := sink.jobs[0].Comment
	assert.Equal(t, "c1", first.ID)
	assert.Equal(t, "p1", first.PostID)
	assert.Equal(t, "42", first.AuthorID)
	assert.Equal(t, "alice", first.AuthorUsername)
	assert.Equal(t, time.Unix(1767225600, 0), first.Timestamp)
	assert.Equal(t, "webhook", sink.jobs[0].Source)
	assert.Equal(t, "c2", sink.jobs[1].Comment.ID)

	stats := h.Stats()
	assert.Equal(t, int64(1), stats.Deliveries)
	assert.Equal(t, int64(2), stats.EventsQueued)
	assert.Equal(t, int64(3), stats.EventsIgnored)
	assert.NotNil(t, stats.LastReceived)
}

func TestReceiveWhileDeactivated(t *testing.T) {
	sink := &fakeSink{}
	r, h := newRouter(t, config.WebhookConfig{}, sink)
	h.Deactivate()
	assert.False(t, h.Active())

	w := post(r, delivery, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, sink.jobs)
	assert.Equal(t, int64(2), h.Stats().EventsDropped)

	h.Activate()
	post(r, delivery, nil)
	assert.Len(t, sink.jobs, 2)
}

func TestReceiveSignature(t *testing.T) {
	sink := &fakeSink{}
	r, h := newRouter(t, config.WebhookConfig{AppSecret: "app-secret"}, sink)

	w := post(r, delivery, map[string]string{signatureHeader: "sha256=deadbeef"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = post(r, delivery, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, int64(2), h.Stats().InvalidSignatures)
	assert.Empty(t, sink.jobs)

	w = post(r, delivery, map[string]string{signatureHeader: sign("app-secret", delivery)})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, sink.jobs, 2)
}

func TestReceiveRejectsOversizedBody(t *testing.T) {
	r, _ := newRouter(t, config.WebhookConfig{}, &fakeSink{})
	big := `{"entry":[],"pad":"` + strings.Repeat("x", int(maxWebhookBodyBytes)) + `"}`

	w := post(r, big, nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestReceiveRejectsMalformedBody(t *testing.T) {
	r, _ := newRouter(t, config.WebhookConfig{}, &fakeSink{})
	w := post(r, "{not json", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReceiveQueueFull(t *testing.T) {
	r, h := newRouter(t, config.WebhookConfig{}, &fakeSink{full: true})
	w := post(r, delivery, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, int64(2), h.Stats().QueueRejections)
}

func TestReceiveRateLimited(t *testing.T) {
	r, _ := newRouter(t, config.WebhookConfig{RateLimitPerMin: 2}, &fakeSink{})
	assert.Equal(t, http.StatusOK, post(r, delivery, nil).Code)
	assert.Equal(t, http.StatusOK, post(r, delivery, nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, post(r, delivery, nil).Code)
}

func TestParseWithoutEntryTime(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	comments, ignored, err := Parse([]byte(`{"entry":[{"changes":[{"field":"comments","value":{"id":"c9","text":"info","from":{"id":"7"},"media":{"id":"p2"}}}]}]}`), now)
	require.NoError(t, err)
	assert.Zero(t, ignored)
	require.Len(t, comments, 1)
	assert.Equal(t, now, comments[0].Timestamp)
}
