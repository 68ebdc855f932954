package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/redis/go-redis/v9"
)

type JobType string

const (
	JobReleaseAttachment JobType = "release_attachment"
)

const (
	QueueAttachments = "attachments"
	QueueRetry       = "retry_queue"
	QueueDead        = "dead_queue"
)

type Job struct {
	ID        string                 `json:"id"`
	Type      JobType                `json:"type"`
	Payload   map[string]interface{} `json:"payload"`
	Attempts  int                    `json:"attempts"`
	MaxTries  int                    `json:"max_tries"`
	CreatedAt time.Time              `json:"created_at"`
	ProcessAt time.Time              `json:"process_at"`
}

func (j *Job) String(key string) string {
	v, _ := j.Payload[key].(string)
	return v
}

type JobHandler func(ctx context.Context, job *Job) error

var errNotDue = errors.New("job not due yet")

type Worker struct {
	client       *redis.Client
	handlers     map[JobType]JobHandler
	queues       []string
	pollInterval time.Duration
	blockTimeout time.Duration
	retryBase    time.Duration
	jobTimeout   time.Duration
	log          *slog.Logger
	mu           sync.RWMutex
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

type WorkerConfig struct {
	RedisClient  *redis.Client
	Queues       []string
	PollInterval time.Duration
	BlockTimeout time.Duration
	RetryBase    time.Duration
	JobTimeout   time.Duration
	Logger       *slog.Logger
}

func NewWorker(config WorkerConfig) *Worker {
	ctx, cancel := context.WithCancel(context.Background())

	queues := config.Queues
	if len(queues) == 0 {
		queues = []string{QueueAttachments, QueueRetry}
	}

	w := &Worker{
		client:       config.RedisClient,
		handlers:     make(map[JobType]JobHandler),
		queues:       queues,
		pollInterval: config.PollInterval,
		blockTimeout: config.BlockTimeout,
		retryBase:    config.RetryBase,
		jobTimeout:   config.JobTimeout,
		log:          config.Logger,
		ctx:          ctx,
		cancel:       cancel,
	}
	if w.pollInterval <= 0 {
		w.pollInterval = 5 * time.Second
	}
	if w.blockTimeout <= 0 {
		w.blockTimeout = 5 * time.Second
	}
	if w.retryBase <= 0 {
		w.retryBase = time.Minute
	}
	if w.jobTimeout <= 0 {
		w.jobTimeout = 30 * time.Second
	}
	if w.log == nil {
		w.log = slog.Default()
	}
	return w
}

func (w *Worker) RegisterHandler(jobType JobType, handler JobHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[jobType] = handler
}

func (w *Worker) Start(concurrency int) {
	if concurrency < 1 {
		concurrency = 1
	}
	w.log.Info("starting worker", "goroutines", concurrency, "queues", w.queues)

	for i := 0; i < concurrency; i++ {
		w.wg.Add(1)
		go w.loop()
	}
}

func (w *Worker) Stop() {
	w.log.Info("stopping worker")
	w.cancel()
	w.wg.Wait()
	w.log.Info("worker stopped")
}

func (w *Worker) loop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
		}

		err := w.processNext(w.ctx)
		if err == nil || w.ctx.Err() != nil {
			continue
		}
		if !errors.Is(err, errNotDue) {
			w.log.Error("processing job", "error", err)
		}

		select {
		case <-w.ctx.Done():
		case <-time.After(w.pollInterval):
		}
	}
}

func (w *Worker) processNext(ctx context.Context) error {
	result, err := w.client.BLPop(ctx, w.blockTimeout, w.queues...).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("pop job: %w", err)
	}

	if len(result) < 2 {
		return fmt.Errorf("invalid job result")
	}

	queue := result[0]
	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return fmt.Errorf("unmarshal job: %w", err)
	}

	if time.Now().Before(job.ProcessAt) {
		if err := w.enqueue(ctx, queue, &job); err != nil {
			return err
		}
		return errNotDue
	}

	return w.execute(ctx, &job)
}

func (w *Worker) execute(ctx context.Context, job *Job) error {
	w.mu.RLock()
	handler, exists := w.handlers[job.Type]
	w.mu.RUnlock()

	if !exists {
		return w.moveToDeadQueue(ctx, job, fmt.Errorf("no handler registered for job type %s", job.Type))
	}

	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	err := handler(jobCtx, job)
	if err == nil {
		w.log.Debug("job completed", "job_id", job.ID, "type", job.Type)
		return nil
	}

	job.Attempts++
	if job.Attempts < job.MaxTries {
		w.log.Warn("job failed, retrying", "job_id", job.ID, "attempt", job.Attempts, "max_tries", job.MaxTries, "error", err)
		return w.retry(ctx, job)
	}

	w.log.Error("job failed permanently", "job_id", job.ID, "attempts", job.Attempts, "error", err)
	return w.moveToDeadQueue(ctx, job, err)
}

func (w *Worker) retry(ctx context.Context, job *Job) error {
	job.ProcessAt = time.Now().Add(w.retryBase << job.Attempts)
	return w.enqueue(ctx, QueueRetry, job)
}

func (w *Worker) enqueue(ctx context.Context, queue string, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	return w.client.RPush(ctx, queue, data).Err()
}

func (w *Worker) moveToDeadQueue(ctx context.Context, job *Job, jobErr error) error {
	dead := map[string]interface{}{
		"original_job": job,
		"error":        jobErr.Error(),
		"failed_at":    time.Now(),
	}

	data, err := json.Marshal(dead)
	if err != nil {
		return fmt.Errorf("marshal dead job: %w", err)
	}
	return w.client.RPush(ctx, QueueDead, data).Err()
}

type JobQueue struct {
	client   *redis.Client
	maxTries int
}

func NewJobQueue(client *redis.Client, maxTries int) *JobQueue {
	if maxTries < 1 {
		maxTries = 3
	}
	return &JobQueue{client: client, maxTries: maxTries}
}

func (q *JobQueue) Enqueue(ctx context.Context, queue string, jobType JobType, payload map[string]interface{}) error {
	return q.EnqueueAt(ctx, queue, jobType, payload, time.Now())
}

func (q *JobQueue) EnqueueAt(ctx context.Context, queue string, jobType JobType, payload map[string]interface{}, processAt time.Time) error {
	id, err := uuid.NewV4()
	if err != nil {
		return err
	}

	job := &Job{
		ID:        id.String(),
		Type:      jobType,
		Payload:   payload,
		MaxTries:  q.maxTries,
		CreatedAt: time.Now(),
		ProcessAt: processAt,
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return q.client.RPush(ctx, queue, data).Err()
}

func (q *JobQueue) Size(ctx context.Context, queue string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	return q.client.LLen(ctx, queue).Result()
}
