package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/CourseFox/internal/pkg/metrics"
)

// Redis layout: every job is a JSON string under KeyJobPrefix+id. Ids move
// from KeyPending to KeyProcessing while a worker runs them; failed attempts
// wait in the KeyDelayed sorted set, scored by their retry time.
const (
	KeyJobPrefix  = "coursefox:job:"
	KeyPending    = "coursefox:jobs:pending"
	KeyProcessing = "coursefox:jobs:processing"
	KeyDelayed    = "coursefox:jobs:delayed"
	KeyStats      = "coursefox:jobs:stats"

	DefaultMaxAttempts = 4
	JobTTL             = 24 * time.Hour

	stuckAfter    = 10 * time.Minute
	sweepInterval = time.Minute
)

var errUnknownJobType = errors.New("no handler registered")

// Handler runs one job. A returned error schedules another attempt.
type Handler func(ctx context.Context, job *Job) error

// Queue is a Redis backed job queue with a fixed number of workers.
type Queue struct {
	client     *redis.Client
	workers    int
	handlers   map[JobType]Handler
	retryDelay time.Duration
	metrics    *metrics.Metrics
	now        func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewQueue(client *redis.Client, workers int) *Queue {
	if workers <= 0 {
		workers = 3
	}
	return &Queue{
		client:     client,
		workers:    workers,
		handlers:   make(map[JobType]Handler),
		retryDelay: 30 * time.Second,
		metrics:    metrics.DefaultMetrics,
		now:        time.Now,
	}
}

// RegisterHandler binds a handler to a job type. Call before Start.
func (q *Queue) RegisterHandler(jobType JobType, h Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[jobType] = h
}

// SetRetryDelay sets the backoff unit; attempt n is retried after n*d.
func (q *Queue) SetRetryDelay(d time.Duration) {
	q.retryDelay = d
}

func (q *Queue) SetMetrics(m *metrics.Metrics) {
	q.metrics = m
}

// Start launches the workers and the scheduler. It is a no-op when running.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	q.running = true

	log.Infof("[JobQueue] Starting %d workers", q.workers)
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}
	q.wg.Add(1)
	go q.scheduler(ctx)
}

// Stop cancels the workers and waits for running jobs to finish.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	q.cancel()
	q.mu.Unlock()

	q.wg.Wait()
	log.Info("[JobQueue] All workers stopped")
}

func (q *Queue) worker(ctx context.Context, id int) {
	defer q.wg.Done()
	for ctx.Err() == nil {
		job, err := q.next(ctx)
		switch {
		case err == nil:
			// Handlers finish even when Stop was called meanwhile.
			q.run(context.WithoutCancel(ctx), job)
		case errors.Is(err, redis.Nil), ctx.Err() != nil:
		default:
			log.Errorf("[JobQueue] Worker %d: %v", id, err)
			sleep(ctx, time.Second)
		}
	}
}

// scheduler promotes due retries and recovers jobs whose worker died.
func (q *Queue) scheduler(ctx context.Context) {
	defer q.wg.Done()

	poll := q.retryDelay
	if poll <= 0 || poll > time.Second {
		poll = time.Second
	}
	promote := time.NewTicker(poll)
	defer promote.Stop()
	sweep := time.NewTicker(sweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-promote.C:
			if err := q.promoteDue(ctx); err != nil && ctx.Err() == nil {
				log.Errorf("[JobQueue] Promoting retries: %v", err)
			}
		case <-sweep.C:
			if err := q.recoverStuck(ctx, stuckAfter); err != nil && ctx.Err() == nil {
				log.Errorf("[JobQueue] Recovering stuck jobs: %v", err)
			}
		}
	}
}

// EnqueueJob is Enqueue with a background context.
func (q *Queue) EnqueueJob(jobType JobType, payload map[string]interface{}) (*Job, error) {
	return q.Enqueue(context.Background(), jobType, payload)
}

func (q *Queue) Enqueue(ctx context.Context, jobType JobType, payload map[string]interface{}) (*Job, error) {
	job := newJob(uuid.New().String(), jobType, payload, q.now())
	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("marshal job: %w", err)
	}

	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, KeyJobPrefix+job.ID, data, JobTTL)
		pipe.LPush(ctx, KeyPending, job.ID)
		pipe.HIncrBy(ctx, KeyStats, string(JobStatusPending), 1)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", jobType, err)
	}
	log.Debugf("[JobQueue] Enqueued %s job %s", job.Type, job.ID)
	return job, nil
}

// ScheduleReceipt queues the confirmation email for a completed purchase.
func (q *Queue) ScheduleReceipt(ctx context.Context, purchaseSessionID string) error {
	_, err := q.Enqueue(ctx, JobTypeSendReceipt, SendReceiptJobPayload{PurchaseSessionID: purchaseSessionID}.ToMap())
	return err
}

// next blocks up to a second for a pending job and claims it.
func (q *Queue) next(ctx context.Context) (*Job, error) {
	id, err := q.client.BRPopLPush(ctx, KeyPending, KeyProcessing, time.Second).Result()
	if err != nil {
		return nil, err
	}
	job, err := q.GetJob(ctx, id)
	if err != nil {
		q.client.LRem(ctx, KeyProcessing, 1, id)
		return nil, fmt.Errorf("claim job %s: %w", id, err)
	}
	return job, nil
}

func (q *Queue) run(ctx context.Context, job *Job) {
	job.begin(q.now())
	q.save(ctx, job)

	q.mu.Lock()
	handler, ok := q.handlers[job.Type]
	q.mu.Unlock()

	var err error
	if ok {
		err = handler(ctx, job)
	} else {
		err = fmt.Errorf("%w for %q", errUnknownJobType, job.Type)
		job.MaxAttempts = job.Attempts
	}

	outcome := q.finish(ctx, job, err)
	q.metrics.JobsProcessed.WithLabelValues(string(job.Type), string(outcome)).Inc()
}

// finish stores the result of an attempt and releases the processing slot.
func (q *Queue) finish(ctx context.Context, job *Job, err error) JobStatus {
	now := q.now()
	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, KeyProcessing, 1, job.ID)

	switch {
	case err == nil:
		job.succeed(now)
		pipe.Del(ctx, KeyJobPrefix+job.ID)
		pipe.HIncrBy(ctx, KeyStats, string(JobStatusCompleted), 1)
		log.Infof("[JobQueue] %s job %s completed", job.Type, job.ID)
	case job.fail(err, now, q.retryDelay):
		pipe.ZAdd(ctx, KeyDelayed, redis.Z{Score: float64(job.RetryAt.UnixMilli()), Member: job.ID})
		q.queueSave(ctx, pipe, job)
		log.Warnf("[JobQueue] %s job %s attempt %d/%d failed, retry at %s: %v",
			job.Type, job.ID, job.Attempts, job.MaxAttempts, job.RetryAt.Format(time.RFC3339), err)
	default:
		pipe.HIncrBy(ctx, KeyStats, string(JobStatusFailed), 1)
		q.queueSave(ctx, pipe, job)
		log.Errorf("[JobQueue] %s job %s failed permanently after %d attempts: %v", job.Type, job.ID, job.Attempts, err)
	}

	if _, perr := pipe.Exec(ctx); perr != nil {
		log.Errorf("[JobQueue] Storing result of job %s: %v", job.ID, perr)
	}
	return job.Status
}

// promoteDue moves retries whose time has come back to the pending list.
func (q *Queue) promoteDue(ctx context.Context) error {
	until := strconv.FormatInt(q.now().UnixMilli(), 10)
	ids, err := q.client.ZRangeByScore(ctx, KeyDelayed, &redis.ZRangeBy{Min: "-inf", Max: until}).Result()
	if err != nil {
		return err
	}
	for _, id := range ids {
		removed, err := q.client.ZRem(ctx, KeyDelayed, id).Result()
		if err != nil {
			return err
		}
		// Another instance promoted it first.
		if removed == 0 {
			continue
		}
		if err := q.client.LPush(ctx, KeyPending, id).Err(); err != nil {
			return err
		}
	}
	return nil
}

// recoverStuck requeues jobs that have been processing longer than maxAge.
func (q *Queue) recoverStuck(ctx context.Context, maxAge time.Duration) error {
	ids, err := q.client.LRange(ctx, KeyProcessing, 0, -1).Result()
	if err != nil {
		return err
	}
	now := q.now()
	for _, id := range ids {
		job, err := q.GetJob(ctx, id)
		if err != nil || job.Status != JobStatusProcessing {
			q.client.LRem(ctx, KeyProcessing, 1, id)
			continue
		}
		if job.StartedAt == nil || now.Sub(*job.StartedAt) < maxAge {
			continue
		}
		log.Warnf("[JobQueue] Requeueing %s job %s, processing since %s", job.Type, job.ID, job.StartedAt.Format(time.RFC3339))
		job.Status = JobStatusPending
		job.LastError = "worker lost"
		job.UpdatedAt = now
		pipe := q.client.TxPipeline()
		q.queueSave(ctx, pipe, job)
		pipe.LRem(ctx, KeyProcessing, 1, id)
		pipe.RPush(ctx, KeyPending, id)
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (q *Queue) save(ctx context.Context, job *Job) {
	data, err := json.Marshal(job)
	if err == nil {
		err = q.client.Set(ctx, KeyJobPrefix+job.ID, data, JobTTL).Err()
	}
	if err != nil {
		log.Errorf("[JobQueue] Saving job %s: %v", job.ID, err)
	}
}

func (q *Queue) queueSave(ctx context.Context, pipe redis.Pipeliner, job *Job) {
	data, err := json.Marshal(job)
	if err != nil {
		log.Errorf("[JobQueue] Marshal job %s: %v", job.ID, err)
		return
	}
	pipe.Set(ctx, KeyJobPrefix+job.ID, data, JobTTL)
}

// GetJob loads a job. Completed jobs are deleted and return redis.Nil.
func (q *Queue) GetJob(ctx context.Context, id string) (*Job, error) {
	data, err := q.client.Get(ctx, KeyJobPrefix+id).Bytes()
	if err != nil {
		return nil, err
	}
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	return &job, nil
}

// GetJobStats returns the counters per status since the stats key was created.
func (q *Queue) GetJobStats(ctx context.Context) (map[JobStatus]int64, error) {
	raw, err := q.client.HGetAll(ctx, KeyStats).Result()
	if err != nil {
		return nil, err
	}
	stats := make(map[JobStatus]int64, len(raw))
	for status, v := range raw {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			stats[JobStatus(status)] = n
		}
	}
	return stats, nil
}

func (q *Queue) GetQueueSize(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, KeyPending).Result()
}

func (q *Queue) GetProcessingSize(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, KeyProcessing).Result()
}

func (q *Queue) GetDelayedSize(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, KeyDelayed).Result()
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
