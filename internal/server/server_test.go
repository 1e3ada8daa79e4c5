package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igdmbot/internal/metrics"
	"igdmbot/internal/webhook"
	"igdmbot/internal/worker"
	"igdmbot/pkg/auth"
	"igdmbot/pkg/config"
	"igdmbot/pkg/logger"
	"igdmbot/pkg/models"
	"igdmbot/pkg/ratelimit"
	"igdmbot/pkg/storage"
)

type staticAuth struct{}

func (staticAuth) Status() auth.Status {
	return auth.Status{State: auth.StateAuthenticated.String(), Method: auth.MethodSessionID, Username: "shop"}
}

type staticGovernor struct{}

func (staticGovernor) Status() ratelimit.GovernorStatus {
	return ratelimit.GovernorStatus{MaxDMsPerHour: 40}
}

type fakePool struct {
	jobs []worker.Job
}

func (p *fakePool) TrySubmit(job worker.Job) error {
	p.jobs = append(p.jobs, job)
	return nil
}

func (p *fakePool) Stats() worker.Stats { return worker.Stats{Workers: 1, Queued: len(p.jobs)} }

type fixture struct {
	server *Server
	holder *config.Holder
	store  *storage.MemoryStore
	hook   *webhook.Handler
	pool   *fakePool
}

func newFixture(t *testing.T, mutate func(*config.Config)) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.DefaultConfig()
	cfg.SetDataDir(t.TempDir())
	cfg.Webhook.VerifyToken = "hook-verify-secret"
	if mutate != nil {
		mutate(cfg)
	}
	holder := config.NewHolder(cfg, true)
	store := storage.NewMemoryStore()
	pool := &fakePool{}
	nop := logger.NewNopLogger()
	hook := webhook.New(cfg.Webhook, pool, webhook.WithLogger(nop))

	s := New(":0", Deps{
		Config:   holder,
		Store:    store,
		Auth:     staticAuth{},
		Governor: staticGovernor{},
		Webhook:  hook,
		Pool:     pool,
		Metrics:  metrics.New("test"),
		Logger:   nop,
		Version:  "test",
	})
	return &fixture{server: s, holder: holder, store: store, hook: hook, pool: pool}
}

func (f *fixture) do(method, path, body string, headers ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t, nil)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/healthz", "").Code)

	w := f.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "igdmbot_build_info")
}

func TestConfigHidesSecrets(t *testing.T) {
	f := newFixture(t, func(c *config.Config) {
		c.Instagram.Password = "hunter2"
		c.Instagram.SessionID = "sess-123"
	})
	w := f.do(http.MethodGet, "/api/config", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "hunter2")
	assert.NotContains(t, w.Body.String(), "sess-123")
	assert.NotContains(t, w.Body.String(), "hook-verify-secret")
}

func TestBearerToken(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.Admin.Token = "admin-token" })

	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/api/stats", "").Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/api/stats", "", "Authorization", "Basic x").Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/api/stats", "", "Authorization", "Bearer wrong").Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/stats", "", "Authorization", "Bearer admin-token").Code)
	// Health stays open.
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/healthz", "").Code)
}

func TestAdminDisabled(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.Admin.Enabled = false })
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/status", "").Code)
}

func TestUpdateKeywordsPersists(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodPost, "/api/keywords", `{"general": [" Price ", "price", "LINK"]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	snap := f.holder.Snapshot()
	assert.Equal(t, []string{"price", "link"}, snap.Keywords.General)
	assert.NotEmpty(t, snap.Keywords.Consent)

	reloaded := config.DefaultConfig()
	reloaded.Storage.RuntimeFile = snap.Storage.RuntimeFile
	require.NoError(t, reloaded.LoadRuntimeOverrides())
	assert.Equal(t, []string{"price", "link"}, reloaded.Keywords.General)
}

func TestUpdateKeywordsRejectsEmptyGeneral(t *testing.T) {
	f := newFixture(t, nil)
	before := f.holder.Snapshot().Keywords.General

	w := f.do(http.MethodPost, "/api/keywords", `{"general": ["  "]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, before, f.holder.Snapshot().Keywords.General)
}

func TestUpdateStrategy(t *testing.T) {
	f := newFixture(t, nil)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/strategy", `{"strategy":"yolo"}`).Code)

	w := f.do(http.MethodPost, "/api/strategy", `{"strategy":"any_keyword"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, config.StrategyAnyKeyword, f.holder.Snapshot().Keywords.Strategy)
}

func TestUpdateMonitoring(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodPost, "/api/monitoring", `{"monitor_all_posts": true, "post_ids": ["p1", " "], "check_interval": "90s"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	m := f.holder.Snapshot().Monitoring
	assert.True(t, m.MonitorAllPosts)
	assert.Equal(t, []string{"p1"}, m.PostIDs)
	assert.Equal(t, 90*time.Second, m.CheckInterval)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/monitoring", `{"check_interval": "soon"}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/monitoring", `{"max_posts_to_check": 0}`).Code)
}

func TestUpdateMessages(t *testing.T) {
	f := newFixture(t, nil)
	w := f.do(http.MethodPost, "/api/messages", `{"default_link": "https://shop.example", "enable_direct_dm": false}`)
	require.Equal(t, http.StatusOK, w.Code)

	msgs := f.holder.Snapshot().Messages
	assert.Equal(t, "https://shop.example", msgs.DefaultLink)
	assert.False(t, msgs.EnableDirectDM)
}

func TestStatsAndProcessed(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	kw := "info"
	_, err := f.store.RecordProcessed(ctx, models.ProcessedComment{CommentID: "c1", Action: models.ActionEncouragedToDM, MatchedKeyword: &kw})
	require.NoError(t, err)
	require.NoError(t, f.store.LogSentMessage(ctx, models.SentMessage{CommentID: "c1", Kind: models.MessageKindReply, Success: true}))

	w := f.do(http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	var stats storage.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.TotalProcessed)
	assert.Equal(t, 1, stats.PublicReplies)

	w = f.do(http.MethodGet, "/api/processed?limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"comment_id":"c1"`)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/processed?limit=abc", "").Code)

	w = f.do(http.MethodGet, "/api/processed/c1/messages", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":1`)

	w = f.do(http.MethodGet, "/api/processed/none/messages", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"items":[]`)
}

func TestStatus(t *testing.T) {
	f := newFixture(t, nil)
	w := f.do(http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "test", resp["version"])
	assert.Equal(t, "web", resp["mode"])
	assert.Contains(t, resp, "auth")
	assert.Contains(t, resp, "webhook")
	assert.NotContains(t, resp, "last_cycle")
}

func TestWebhookToggleAndTest(t *testing.T) {
	f := newFixture(t, nil)

	require.Equal(t, http.StatusOK, f.do(http.MethodPost, "/api/webhook/deactivate", "").Code)
	assert.False(t, f.hook.Active())
	require.Equal(t, http.StatusOK, f.do(http.MethodPost, "/api/webhook/activate", "").Code)
	assert.True(t, f.hook.Active())

	w := f.do(http.MethodGet, "/api/webhook/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"active":true`)

	w = f.do(http.MethodPost, "/api/webhook/test", `{"text": "dm me please", "username": "alice"}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, f.pool.jobs, 1)
	assert.Equal(t, "alice", f.pool.jobs[0].Comment.AuthorUsername)
	assert.Equal(t, "admin_test", f.pool.jobs[0].Source)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/webhook/test", `{}`).Code)
}

func TestWebhookRoutesMounted(t *testing.T) {
	f := newFixture(t, nil)
	w := f.do(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=hook-verify-secret&hub.challenge=abc", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "abc", w.Body.String())
}

func TestRunShutsDownOnCancel(t *testing.T) {
	f := newFixture(t, nil)
	f.server.http.Addr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.server.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}

