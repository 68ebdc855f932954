package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Releaser deletes a stored object. storage.Backend satisfies it.
type Releaser interface {
	Release(ctx context.Context, url string) error
}

// ReleaseHandler runs release_attachment jobs against the storage backend.
func ReleaseHandler(backend Releaser) JobHandler {
	return func(ctx context.Context, job *Job) error {
		url := job.String("url")
		if url == "" {
			return errors.New("release_attachment job without url")
		}
		return backend.Release(ctx, url)
	}
}

// InlineReleaser releases objects in the calling goroutine. Failures are
// logged and otherwise ignored.
type InlineReleaser struct {
	backend Releaser
	log     *slog.Logger
}

func NewInlineReleaser(backend Releaser, log *slog.Logger) *InlineReleaser {
	return &InlineReleaser{backend: backend, log: log}
}

func (r *InlineReleaser) ReleaseAttachment(ctx context.Context, url string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := r.backend.Release(ctx, url); err != nil {
		r.log.Warn("attachment not released", "url", url, "error", err)
	}
}

// QueueReleaser hands releases to the worker. If the queue is unreachable it
// falls back to releasing inline.
type QueueReleaser struct {
	queue    *JobQueue
	fallback *InlineReleaser
	log      *slog.Logger
}

func NewQueueReleaser(queue *JobQueue, fallback *InlineReleaser, log *slog.Logger) *QueueReleaser {
	return &QueueReleaser{queue: queue, fallback: fallback, log: log}
}

func (r *QueueReleaser) ReleaseAttachment(ctx context.Context, url string) {
	err := r.queue.Enqueue(context.WithoutCancel(ctx), QueueAttachments, JobReleaseAttachment, map[string]interface{}{"url": url})
	if err == nil {
		return
	}

	r.log.Warn("release job not queued, releasing inline", "url", url, "error", err)
	r.fallback.ReleaseAttachment(ctx, url)
}
