// Package worker runs background jobs from Redis lists.
//
// Jobs due now are pushed onto their queue. Jobs with a future ProcessAt wait
// in a sorted set scored by due time until a worker promotes them.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"flowtrack/backend/internal/logging"
	"flowtrack/backend/internal/monitoring"

	"github.com/goccy/go-json"
	"github.com/gofrs/uuid"
	"github.com/redis/go-redis/v9"
)

type JobType string

const (
	JobTypeDeadlineReminder JobType = "deadline_reminder"
)

const (
	QueueReminders = "reminders"
	QueueRetry     = "retry_queue"
	QueueDead      = "dead_queue"

	scheduledKey = "scheduled_jobs"
	maxTries     = 3
)

type Job struct {
	ID        string                 `json:"id"`
	Type      JobType                `json:"type"`
	Queue     string                 `json:"queue"`
	Payload   map[string]interface{} `json:"payload"`
	Attempts  int                    `json:"attempts"`
	MaxTries  int                    `json:"max_tries"`
	CreatedAt time.Time              `json:"created_at"`
	ProcessAt time.Time              `json:"process_at"`
}

type JobHandler func(ctx context.Context, job *Job) error

// ErrNoHandler marks jobs of an unregistered type. They go straight to the
// dead queue.
var ErrNoHandler = errors.New("no handler registered")

type Worker struct {
	client       *redis.Client
	queue        *JobQueue
	handlers     map[JobType]JobHandler
	queues       []string
	pollInterval time.Duration
	mu           sync.RWMutex
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

type WorkerConfig struct {
	RedisClient  *redis.Client
	Concurrency  int
	PollInterval time.Duration
	Queues       []string
}

func NewWorker(config WorkerConfig) *Worker {
	queues := config.Queues
	if len(queues) == 0 {
		queues = []string{QueueReminders, QueueRetry}
	}
	poll := config.PollInterval
	if poll <= 0 {
		poll = 5 * time.Second
	}
	return &Worker{
		client:       config.RedisClient,
		queue:        NewJobQueue(config.RedisClient),
		handlers:     make(map[JobType]JobHandler),
		queues:       queues,
		pollInterval: poll,
	}
}

func (w *Worker) RegisterHandler(jobType JobType, handler JobHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[jobType] = handler
}

// Start launches concurrency loops that run until ctx ends or Stop is called.
func (w *Worker) Start(ctx context.Context, concurrency int) {
	if concurrency <= 0 {
		concurrency = 1
	}
	ctx, w.cancel = context.WithCancel(ctx)

	logging.Info().Int("concurrency", concurrency).Strs("queues", w.queues).Msg("Starting worker")
	for i := 0; i < concurrency; i++ {
		w.wg.Add(1)
		go w.loop(ctx)
	}
}

func (w *Worker) Stop() {
	if w.cancel == nil {
		return
	}
	logging.Info().Msg("Stopping worker")
	w.cancel()
	w.wg.Wait()
	logging.Info().Msg("Worker stopped")
}

func (w *Worker) loop(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if _, err := w.queue.Promote(ctx, time.Now()); err != nil && ctx.Err() == nil {
			logging.Error().Err(err).Msg("Failed to promote scheduled jobs")
		}
		if err := w.processNextJob(ctx); err != nil && ctx.Err() == nil {
			logging.Error().Err(err).Msg("Error processing job")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
		}
	}
}

func (w *Worker) processNextJob(ctx context.Context) error {
	result, err := w.client.BLPop(ctx, w.pollInterval, w.queues...).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("failed to pop job: %w", err)
	}
	if len(result) < 2 {
		return fmt.Errorf("invalid job result")
	}

	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return w.executeJob(ctx, &job)
}

func (w *Worker) executeJob(ctx context.Context, job *Job) error {
	w.mu.RLock()
	handler, exists := w.handlers[job.Type]
	w.mu.RUnlock()

	if !exists {
		monitoring.JobsProcessed.WithLabelValues(string(job.Type), "dead").Inc()
		return w.moveToDeadQueue(ctx, job, fmt.Errorf("%w for job type %s", ErrNoHandler, job.Type))
	}

	log := logging.Logger().With().Str("job_id", job.ID).Str("job_type", string(job.Type)).Logger()
	log.Debug().Int("attempt", job.Attempts+1).Msg("Processing job")

	jobCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := handler(jobCtx, job); err != nil {
		job.Attempts++
		if job.Attempts < job.MaxTries {
			log.Warn().Err(err).Int("attempt", job.Attempts).Int("max_tries", job.MaxTries).Msg("Job failed, retrying")
			monitoring.JobsProcessed.WithLabelValues(string(job.Type), "retry").Inc()
			return w.retryJob(ctx, job)
		}

		log.Error().Err(err).Int("attempts", job.Attempts).Msg("Job failed permanently")
		monitoring.JobsProcessed.WithLabelValues(string(job.Type), "dead").Inc()
		return w.moveToDeadQueue(ctx, job, err)
	}

	monitoring.JobsProcessed.WithLabelValues(string(job.Type), "success").Inc()
	log.Debug().Msg("Job completed")
	return nil
}

func (w *Worker) retryJob(ctx context.Context, job *Job) error {
	delay := time.Duration(1<<job.Attempts) * time.Minute
	job.Queue = QueueRetry
	job.ProcessAt = time.Now().Add(delay)
	return w.queue.push(ctx, job)
}

func (w *Worker) moveToDeadQueue(ctx context.Context, job *Job, jobErr error) error {
	deadJob := map[string]interface{}{
		"original_job": job,
		"error":        jobErr.Error(),
		"failed_at":    time.Now(),
	}
	data, err := json.Marshal(deadJob)
	if err != nil {
		return fmt.Errorf("failed to marshal dead job: %w", err)
	}
	return w.client.RPush(ctx, QueueDead, data).Err()
}

type JobQueue struct {
	client *redis.Client
}

func NewJobQueue(client *redis.Client) *JobQueue {
	return &JobQueue{client: client}
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
		Queue:     queue,
		Payload:   payload,
		MaxTries:  maxTries,
		CreatedAt: time.Now(),
		ProcessAt: processAt,
	}
	return q.push(ctx, job)
}

func (q *JobQueue) push(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if job.ProcessAt.After(time.Now()) {
		return q.client.ZAdd(ctx, scheduledKey, redis.Z{
			Score:  float64(job.ProcessAt.UnixMilli()),
			Member: data,
		}).Err()
	}
	return q.client.RPush(ctx, job.Queue, data).Err()
}

// Promote moves scheduled jobs due at or before now onto their queues and
// returns how many it moved. Concurrent promoters never move a job twice.
func (q *JobQueue) Promote(ctx context.Context, now time.Time) (int, error) {
	due, err := q.client.ZRangeByScore(ctx, scheduledKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", now.UnixMilli()),
	}).Result()
	if err != nil {
		return 0, err
	}

	moved := 0
	for _, data := range due {
		removed, err := q.client.ZRem(ctx, scheduledKey, data).Result()
		if err != nil {
			return moved, err
		}
		if removed == 0 {
			continue
		}

		var job Job
		if err := json.Unmarshal([]byte(data), &job); err != nil {
			logging.Error().Err(err).Msg("Dropping malformed scheduled job")
			continue
		}
		if err := q.client.RPush(ctx, job.Queue, data).Err(); err != nil {
			return moved, err
		}
		moved++
	}
	return moved, nil
}

func (q *JobQueue) GetQueueSize(ctx context.Context, queue string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	return q.client.LLen(ctx, queue).Result()
}

func (q *JobQueue) ScheduledCount(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, scheduledKey).Result()
}
