package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	mu       sync.Mutex
	released []string
	err      error
}

func (f *fakeBackend) Release(ctx context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.released = append(f.released, url)
	return nil
}

func (f *fakeBackend) urls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.released...)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func newTestWorker(client *redis.Client) *Worker {
	return NewWorker(WorkerConfig{
		RedisClient:  client,
		PollInterval: 10 * time.Millisecond,
		BlockTimeout: 50 * time.Millisecond,
		RetryBase:    time.Hour,
		Logger:       quietLogger(),
	})
}

func TestJobQueue_Enqueue(t *testing.T) {
	client, _ := setupRedis(t)
	q := NewJobQueue(client, 4)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, QueueAttachments, JobReleaseAttachment, map[string]interface{}{"url": "/uploads/a.png"}))

	size, err := q.Size(ctx, QueueAttachments)
	require.NoError(t, err)
	assert.Equal(t, int64(1), size)

	raw, err := client.LIndex(ctx, QueueAttachments, 0).Result()
	require.NoError(t, err)

	var job Job
	require.NoError(t, json.Unmarshal([]byte(raw), &job))
	assert.Equal(t, JobReleaseAttachment, job.Type)
	assert.Equal(t, 4, job.MaxTries)
	assert.Equal(t, "/uploads/a.png", job.String("url"))
	assert.NotEmpty(t, job.ID)
}

func TestWorker_ProcessesReleaseJob(t *testing.T) {
	client, _ := setupRedis(t)
	backend := &fakeBackend{}

	w := newTestWorker(client)
	w.RegisterHandler(JobReleaseAttachment, ReleaseHandler(backend))

	q := NewJobQueue(client, 3)
	require.NoError(t, q.Enqueue(context.Background(), QueueAttachments, JobReleaseAttachment, map[string]interface{}{"url": "/uploads/old.pdf"}))

	w.Start(1)
	defer w.Stop()

	assert.Eventually(t, func() bool {
		return len(backend.urls()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"/uploads/old.pdf"}, backend.urls())
}

func TestWorker_RetriesThenDeadLetters(t *testing.T) {
	client, _ := setupRedis(t)
	backend := &fakeBackend{err: errors.New("bucket unreachable")}
	ctx := context.Background()

	w := newTestWorker(client)
	w.RegisterHandler(JobReleaseAttachment, ReleaseHandler(backend))

	job := &Job{ID: "j1", Type: JobReleaseAttachment, Payload: map[string]interface{}{"url": "/uploads/x"}, MaxTries: 2}

	require.NoError(t, w.execute(ctx, job))
	retried, err := client.LLen(ctx, QueueRetry).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), retried)
	assert.Equal(t, 1, job.Attempts)
	assert.True(t, job.ProcessAt.After(time.Now()))

	require.NoError(t, w.execute(ctx, job))
	dead, err := client.LLen(ctx, QueueDead).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), dead)
}

func TestWorker_NotDueJobIsRequeued(t *testing.T) {
	client, _ := setupRedis(t)
	backend := &fakeBackend{}
	ctx := context.Background()

	w := newTestWorker(client)
	w.RegisterHandler(JobReleaseAttachment, ReleaseHandler(backend))

	q := NewJobQueue(client, 3)
	require.NoError(t, q.EnqueueAt(ctx, QueueRetry, JobReleaseAttachment, map[string]interface{}{"url": "/uploads/later"}, time.Now().Add(time.Hour)))

	err := w.processNext(ctx)
	assert.ErrorIs(t, err, errNotDue)
	assert.Empty(t, backend.urls())

	size, err := q.Size(ctx, QueueRetry)
	require.NoError(t, err)
	assert.Equal(t, int64(1), size)
}

func TestWorker_UnknownJobTypeIsDeadLettered(t *testing.T) {
	client, _ := setupRedis(t)
	ctx := context.Background()
	w := newTestWorker(client)

	require.NoError(t, w.execute(ctx, &Job{ID: "j2", Type: "mystery", MaxTries: 3}))

	dead, err := client.LLen(ctx, QueueDead).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), dead)
}

func TestReleaseHandler_RequiresURL(t *testing.T) {
	handler := ReleaseHandler(&fakeBackend{})
	assert.Error(t, handler(context.Background(), &Job{Payload: map[string]interface{}{}}))
}

func TestQueueReleaser_Enqueues(t *testing.T) {
	client, _ := setupRedis(t)
	backend := &fakeBackend{}
	q := NewJobQueue(client, 3)
	r := NewQueueReleaser(q, NewInlineReleaser(backend, quietLogger()), quietLogger())

	r.ReleaseAttachment(context.Background(), "/uploads/queued.png")

	size, err := q.Size(context.Background(), QueueAttachments)
	require.NoError(t, err)
	assert.Equal(t, int64(1), size)
	assert.Empty(t, backend.urls(), "release happens in the worker, not inline")
}

func TestQueueReleaser_FallsBackInline(t *testing.T) {
	client, mr := setupRedis(t)
	backend := &fakeBackend{}
	r := NewQueueReleaser(NewJobQueue(client, 3), NewInlineReleaser(backend, quietLogger()), quietLogger())

	mr.Close()
	r.ReleaseAttachment(context.Background(), "/uploads/inline.png")

	assert.Equal(t, []string{"/uploads/inline.png"}, backend.urls())
}

func TestInlineReleaser_SwallowsErrors(t *testing.T) {
	backend := &fakeBackend{err: errors.New("gone")}
	r := NewInlineReleaser(backend, quietLogger())

	assert.NotPanics(t, func() {
		r.ReleaseAttachment(context.Background(), "/uploads/x")
	})
}
