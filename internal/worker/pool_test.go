package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igdmbot/pkg/logger"
	"igdmbot/pkg/models"
)

func job(id string) Job {
	return Job{Comment: models.Comment{ID: id}, Source: "test", Received: time.Now()}
}

func TestPoolProcessesAllJobs(t *testing.T) {
	var handled atomic.Int32
	pool := NewPool(3, 10, func(ctx context.Context, j Job) error {
		handled.Add(1)
		return nil
	}, logger.NewNopLogger())
	pool.Start(context.Background())

	for i := 0; i < 10; i++ {
		require.NoError(t, pool.Submit(context.Background(), job(fmt.Sprintf("c%d", i))))
	}
	pool.Stop()

	assert.Equal(t, int32(10), handled.Load())
	stats := pool.Stats()
	assert.Equal(t, int64(10), stats.Submitted)
	assert.Equal(t, int64(10), stats.Completed)
	assert.Zero(t, stats.Failed)
}

func TestPoolReportsFailuresAndPanics(t *testing.T) {
	var (
		mu      sync.Mutex
		results []Result
	)
	pool := NewPool(1, 4, func(ctx context.Context, j Job) error {
		switch j.Comment.ID {
		case "bad":
			return errors.New("dispatch failed")
		case "panic":
			panic("boom")
		}
		return nil
	}, logger.NewNopLogger())
	pool.OnResult(func(r Result) {
		mu.Lock()
		defer mu.Unlock()
		results = append(results, r)
	})
	pool.Start(context.Background())

	for _, id := range []string{"ok", "bad", "panic"} {
		require.NoError(t, pool.Submit(context.Background(), job(id)))
	}
	pool.Stop()

	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.EqualError(t, results[1].Err, "dispatch failed")
	assert.Error(t, results[2].Err)
	assert.Equal(t, int64(2), pool.Stats().Failed)
}

func TestTrySubmitWhenFull(t *testing.T) {
	release := make(chan struct{})
	pool := NewPool(1, 1, func(ctx context.Context, j Job) error {
		<-release
		return nil
	}, logger.NewNopLogger())
	pool.Start(context.Background())

	require.NoError(t, pool.TrySubmit(job("a")))
	// Wait for the worker to pick up the first job so the queue slot frees.
	require.Eventually(t, func() bool { return pool.Stats().Queued == 0 }, time.Second, time.Millisecond)
	require.NoError(t, pool.TrySubmit(job("b")))
	assert.ErrorIs(t, pool.TrySubmit(job("c")), ErrQueueFull)
	assert.Equal(t, int64(1), pool.Stats().Rejected)

	close(release)
	pool.Stop()
}

func TestSubmitAfterStop(t *testing.T) {
	pool := NewPool(1, 1, func(ctx context.Context, j Job) error { return nil }, logger.NewNopLogger())
	pool.Start(context.Background())
	pool.Stop()
	pool.Stop()

	assert.ErrorIs(t, pool.Submit(context.Background(), job("late")), ErrStopped)
	assert.ErrorIs(t, pool.TrySubmit(job("late")), ErrStopped)
}

func TestSubmitHonoursContext(t *testing.T) {
	release := make(chan struct{})
	pool := NewPool(1, 1, func(ctx context.Context, j Job) error {
		<-release
		return nil
	}, logger.NewNopLogger())
	pool.Start(context.Background())
	defer func() {
		close(release)
		pool.Stop()
	}()

	require.NoError(t, pool.Submit(context.Background(), job("a")))
	require.Eventually(t, func() bool { return pool.Stats().Queued == 0 }, time.Second, time.Millisecond)
	require.NoError(t, pool.Submit(context.Background(), job("b")))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, pool.Submit(ctx, job("c")), context.DeadlineExceeded)
}
