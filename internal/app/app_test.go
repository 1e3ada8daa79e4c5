package app

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igdmbot/internal/worker"
	"igdmbot/pkg/auth"
	"igdmbot/pkg/config"
	igerrors "igdmbot/pkg/errors"
	"igdmbot/pkg/logger"
	"igdmbot/pkg/models"
	"igdmbot/pkg/session"
	"igdmbot/pkg/storage"
	"igdmbot/pkg/ui"
)

type fakeBackend struct {
	mu        sync.Mutex
	posts     []models.Post
	comments  map[string][]models.Comment
	verifyErr error
	dms       []string
	replies   []string
}

func (b *fakeBackend) FetchRecentPosts(_ context.Context, limit int) ([]models.Post, error) {
	if limit < len(b.posts) {
		return b.posts[:limit], nil
	}
	return b.posts, nil
}

func (b *fakeBackend) FetchComments(_ context.Context, postID string) ([]models.Comment, error) {
	return b.comments[postID], nil
}

func (b *fakeBackend) SendDirectMessage(_ context.Context, recipientID, _ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dms = append(b.dms, recipientID)
	return nil
}

func (b *fakeBackend) PostPublicReply(_ context.Context, _, commentID, _ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.replies = append(b.replies, commentID)
	return nil
}

func (b *fakeBackend) VerifySession(context.Context, *session.Session) error { return b.verifyErr }

func (b *fakeBackend) sent() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.dms...)
}

type recordingSender struct {
	titles []string
}

func (s *recordingSender) Send(title, _ string) error {
	s.titles = append(s.titles, title)
	return nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.SetDataDir(t.TempDir())
	cfg.Instagram.Username = "shop"
	cfg.Monitoring.MonitorAllPosts = true
	cfg.RateLimit.RequestsPerMinute = 6000
	cfg.RateLimit.BurstSize = 100
	cfg.RateLimit.MinDelay = 0
	cfg.RateLimit.MaxDelay = 0
	cfg.RateLimit.ItemMinDelay = 0
	cfg.RateLimit.ItemMaxDelay = 0
	return cfg
}

type fixture struct {
	app      *App
	backend  *fakeBackend
	store    *storage.MemoryStore
	sessions *session.MemoryStore
	stderr   *bytes.Buffer
	sender   *recordingSender
}

func newFixture(t *testing.T, cfg *config.Config, backend *fakeBackend) *fixture {
	t.Helper()
	f := &fixture{
		backend:  backend,
		store:    storage.NewMemoryStore(),
		sessions: session.NewMemoryStore(),
		stderr:   &bytes.Buffer{},
		sender:   &recordingSender{},
	}
	sess := session.New(cfg.Instagram.Mode, "shop", []byte("{}"))
	sess.AccountID = "1000"
	require.NoError(t, f.sessions.Save(sess))

	a, err := New(context.Background(), cfg, Options{
		Version:  "test",
		Logger:   logger.NewNopLogger(),
		Secrets:  auth.NewMemorySecretStore(),
		Backend:  backend,
		Sessions: f.sessions,
		Store:    f.store,
		Notifier: ui.NewNotifierWithSender(f.sender, false),
		Stderr:   f.stderr,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	f.app = a
	return f
}

func TestRunOnceDispatchesMatchingComments(t *testing.T) {
	backend := &fakeBackend{
		posts: []models.Post{{ID: "p1", TakenAt: time.Now()}},
		comments: map[string][]models.Comment{
			"p1": {
				{ID: "c1", PostID: "p1", AuthorID: "u-alice", AuthorUsername: "alice", Text: "please send link"},
				{ID: "c2", PostID: "p1", AuthorID: "u-bob", AuthorUsername: "bob", Text: "nice photo"},
				{ID: "c3", PostID: "p1", AuthorID: "1000", AuthorUsername: "shop", Text: "send link"},
			},
		},
	}
	f := newFixture(t, testConfig(t), backend)

	report, err := f.app.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.PostsMonitored)
	assert.Equal(t, []string{"u-alice"}, backend.sent())

	processed, err := f.store.IsProcessed(context.Background(), "c1")
	require.NoError(t, err)
	assert.True(t, processed)

	stats, err := f.store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.DirectMessages)

	// second cycle sees the same comments and sends nothing new
	_, err = f.app.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Len(t, backend.sent(), 1)
}

func TestAuthFailurePrintsGuidanceAndNotifies(t *testing.T) {
	cfg := testConfig(t)
	cfg.Notifications.Enabled = true
	backend := &fakeBackend{
		verifyErr: igerrors.New(igerrors.ErrorTypeChallengeRequired, "challenge_required"),
	}
	f := newFixture(t, cfg, backend)

	report, err := f.app.RunOnce(context.Background())
	require.Error(t, err)
	assert.True(t, report.AuthFailed)
	assert.Contains(t, f.stderr.String(), "Authentication failed")
	assert.Contains(t, f.stderr.String(), "sessionid")
	assert.Equal(t, []string{"igdmbot authentication failed"}, f.sender.titles)
	assert.Equal(t, auth.StateFailed, f.app.Authenticator().State())
}

func TestLockRejectsSecondInstance(t *testing.T) {
	cfg := testConfig(t)
	first := newFixture(t, cfg, &fakeBackend{})
	second := newFixture(t, cfg, &fakeBackend{})

	require.NoError(t, first.app.Lock())
	assert.ErrorIs(t, second.app.Lock(), ErrAlreadyRunning)

	require.NoError(t, first.app.Close())
	assert.NoError(t, second.app.Lock())
}

func TestRecentPostsReportsMonitoring(t *testing.T) {
	cfg := testConfig(t)
	cfg.Monitoring.MonitorAllPosts = false
	cfg.Monitoring.PostIDs = []string{"p2"}
	backend := &fakeBackend{
		posts: []models.Post{{ID: "p1", TakenAt: time.Now()}, {ID: "p2", TakenAt: time.Now()}},
	}
	f := newFixture(t, cfg, backend)

	views, err := f.app.RecentPosts(context.Background())
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.False(t, views[0].Monitored)
	assert.True(t, views[1].Monitored)
	assert.NotEmpty(t, views[0].Reason)
}

func TestHandleJobDispatchesWebhookComment(t *testing.T) {
	cfg := testConfig(t)
	cfg.Webhook.Enabled = true
	backend := &fakeBackend{}
	f := newFixture(t, cfg, backend)

	job := worker.Job{
		Comment: models.Comment{ID: "w1", PostID: "p9", AuthorID: "u-carol", AuthorUsername: "carol", Text: "dm me"},
		Source:  "webhook",
	}
	require.NoError(t, f.app.handleJob(context.Background(), job))
	assert.Equal(t, []string{"u-carol"}, backend.sent())
}

func TestHandleJobFailsWithoutSession(t *testing.T) {
	cfg := testConfig(t)
	cfg.Webhook.Enabled = true
	f := newFixture(t, cfg, &fakeBackend{})
	require.NoError(t, f.sessions.Clear())

	err := f.app.handleJob(context.Background(), worker.Job{Comment: models.Comment{ID: "w2", Text: "dm me"}})
	assert.Error(t, err)
	assert.Empty(t, f.backend.sent())
}

func TestHandleJobHoldsCommentUntilAuthRecovers(t *testing.T) {
	cfg := testConfig(t)
	cfg.Webhook.Enabled = true
	cfg.Auth.RetryDelay = 0
	f := newFixture(t, cfg, &fakeBackend{})
	saved, err := f.sessions.Load()
	require.NoError(t, err)
	require.NoError(t, f.sessions.Clear())

	job := worker.Job{
		Comment: models.Comment{ID: "w3", PostID: "p9", AuthorID: "u-dave", AuthorUsername: "dave", Text: "dm me"},
		Source:  "webhook",
	}
	require.Error(t, f.app.handleJob(context.Background(), job))
	assert.Equal(t, 1, f.app.Deferred())
	assert.Zero(t, f.app.redeliverDeferred(context.Background()), "still failing, nothing resubmitted")
	assert.Equal(t, 1, f.app.Deferred())

	require.NoError(t, f.sessions.Save(saved))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.app.pool.Start(ctx)

	assert.Equal(t, 1, f.app.redeliverDeferred(ctx))
	assert.Zero(t, f.app.Deferred())
	assert.Eventually(t, func() bool { return len(f.backend.sent()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"u-dave"}, f.backend.sent())
}

func TestServeStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Webhook.Enabled = true
	cfg.Webhook.ListenAddr = "127.0.0.1:0"
	f := newFixture(t, cfg, &fakeBackend{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.app.Serve(ctx, true) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
