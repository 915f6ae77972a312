package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"docproc/internal/util"
)

// Job status values stored in the per-job hash.
const (
	statusQueued     = "queued"
	statusProcessing = "processing"
	statusCompleted  = "completed"
	statusFailed     = "failed"
)

// JobStatus mirrors the per-job hash kept alongside the stream so callers
// can inspect a job after the fact.
type JobStatus struct {
	ID           string    `json:"id"`
	DocumentID   string    `json:"documentId"`
	FilePath     string    `json:"filePath"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	Attempts     int       `json:"attempts"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// RedisJobQueue implements JobQueue on a Redis stream with a consumer
// group. Stalled deliveries are reclaimed via XAUTOCLAIM and count against
// the same attempt budget; exhausted jobs are dead-lettered into a trimmed
// failure history.
type RedisJobQueue struct {
	client           *redis.Client
	stream           string
	group            string
	consumerBase     string
	jobTTL           time.Duration
	maxAttempts      int
	block            time.Duration
	claimIdle        time.Duration
	backoffBase      time.Duration
	maxLen           int64
	readCount        int64
	claimCount       int64
	historyCompleted int64
	historyFailed    int64

	mu     sync.Mutex
	events Events
	once   sync.Once
}

// RedisQueueConfig configures the queue. Zero values fall back to the
// deployed defaults (3 attempts, 2s exponential backoff base, history of 10
// completed / 5 failed jobs).
type RedisQueueConfig struct {
	Addr             string
	Password         string
	Stream           string
	Group            string
	Consumer         string
	JobTTL           time.Duration
	MaxAttempts      int
	Block            time.Duration
	ClaimIdle        time.Duration
	BackoffBase      time.Duration
	MaxLen           int64
	ReadCount        int64
	ClaimCount       int64
	HistoryCompleted int64
	HistoryFailed    int64
}

// NewRedisJobQueue validates the config and connects the client.
func NewRedisJobQueue(cfg RedisQueueConfig) (*RedisJobQueue, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("redis addr required")
	}
	stream := strings.TrimSpace(cfg.Stream)
	if stream == "" {
		return nil, errors.New("queue stream required")
	}
	group := strings.TrimSpace(cfg.Group)
	if group == "" {
		group = "default"
	}
	consumer := strings.TrimSpace(cfg.Consumer)
	if consumer == "" {
		consumer = util.NewID()
	}
	jobTTL := cfg.JobTTL
	if jobTTL <= 0 {
		jobTTL = 24 * time.Hour
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	block := cfg.Block
	if block <= 0 {
		block = 5 * time.Second
	}
	claimIdle := cfg.ClaimIdle
	if claimIdle <= 0 {
		claimIdle = 30 * time.Second
	}
	backoffBase := cfg.BackoffBase
	if backoffBase <= 0 {
		backoffBase = 2 * time.Second
	}
	maxLen := cfg.MaxLen
	if maxLen <= 0 {
		maxLen = 10000
	}
	readCount := cfg.ReadCount
	if readCount <= 0 {
		readCount = 10
	}
	claimCount := cfg.ClaimCount
	if claimCount <= 0 {
		claimCount = 10
	}
	historyCompleted := cfg.HistoryCompleted
	if historyCompleted <= 0 {
		historyCompleted = DefaultHistoryCompleted
	}
	historyFailed := cfg.HistoryFailed
	if historyFailed <= 0 {
		historyFailed = DefaultHistoryFailed
	}

	return &RedisJobQueue{
		client:           redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Password}),
		stream:           stream,
		group:            group,
		consumerBase:     consumer,
		jobTTL:           jobTTL,
		maxAttempts:      maxAttempts,
		block:            block,
		claimIdle:        claimIdle,
		backoffBase:      backoffBase,
		maxLen:           maxLen,
		readCount:        readCount,
		claimCount:       claimCount,
		historyCompleted: historyCompleted,
		historyFailed:    historyFailed,
	}, nil
}

// Subscribe registers observability callbacks.
func (q *RedisJobQueue) Subscribe(events Events) {
	q.mu.Lock()
	q.events = events
	q.mu.Unlock()
}

// Enqueue submits a processing job for a document.
func (q *RedisJobQueue) Enqueue(ctx context.Context, documentID, filePath string) (Job, error) {
	documentID = strings.TrimSpace(documentID)
	if documentID == "" {
		return Job{}, errors.New("documentId required")
	}
	filePath = strings.TrimSpace(filePath)
	if filePath == "" {
		return Job{}, errors.New("filePath required")
	}
	status := JobStatus{
		ID:         util.NewID(),
		DocumentID: documentID,
		FilePath:   filePath,
		Status:     statusQueued,
		Attempts:   0,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
	// The producer and consumer are separate binaries, so the group must
	// exist before the first XADD or jobs enqueued ahead of the first
	// worker startup would never be delivered.
	q.ensureGroup(ctx)
	if err := q.writeStatus(ctx, status); err != nil {
		return Job{}, err
	}
	if err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		MaxLen: q.maxLen,
		Approx: true,
		Values: map[string]any{
			"job_id":      status.ID,
			"document_id": status.DocumentID,
			"file_path":   status.FilePath,
		},
	}).Err(); err != nil {
		return Job{}, err
	}
	return Job{ID: status.ID, DocumentID: status.DocumentID, FilePath: status.FilePath}, nil
}

// GetJob returns the tracked status of a job, if it is still within TTL.
func (q *RedisJobQueue) GetJob(ctx context.Context, jobID string) (JobStatus, bool, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return JobStatus{}, false, nil
	}
	data, err := q.client.HGetAll(ctx, q.jobKey(jobID)).Result()
	if err != nil {
		return JobStatus{}, false, err
	}
	if len(data) == 0 {
		return JobStatus{}, false, nil
	}
	return decodeJobStatus(jobID, data), true, nil
}

// Start launches consumer goroutines.
func (q *RedisJobQueue) Start(ctx context.Context, concurrency int, handler Handler) {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	q.ensureGroup(ctx)
	for i := 0; i < concurrency; i++ {
		consumer := fmt.Sprintf("%s-%d", q.consumerBase, i)
		go q.consumeLoop(ctx, consumer, handler)
	}
}

// Stats returns a snapshot of queue counters.
func (q *RedisJobQueue) Stats(ctx context.Context) (Stats, error) {
	length, err := q.client.XLen(ctx, q.stream).Result()
	if err != nil && err != redis.Nil {
		return Stats{}, fmt.Errorf("stream length: %w", err)
	}
	var active int64
	pending, err := q.client.XPending(ctx, q.stream, q.group).Result()
	if err == nil {
		active = pending.Count
	} else if err != redis.Nil && !strings.Contains(err.Error(), "NOGROUP") {
		return Stats{}, fmt.Errorf("pending entries: %w", err)
	}
	waiting := length - active
	if waiting < 0 {
		waiting = 0
	}
	completed, err := q.client.LLen(ctx, q.historyKey(statusCompleted)).Result()
	if err != nil && err != redis.Nil {
		return Stats{}, fmt.Errorf("completed history: %w", err)
	}
	failed, err := q.client.LLen(ctx, q.historyKey(statusFailed)).Result()
	if err != nil && err != redis.Nil {
		return Stats{}, fmt.Errorf("failed history: %w", err)
	}
	return Stats{Waiting: waiting, Active: active, Completed: completed, Failed: failed}, nil
}

// Close releases the Redis connection.
func (q *RedisJobQueue) Close() error {
	return q.client.Close()
}

func (q *RedisJobQueue) ensureGroup(ctx context.Context) {
	q.once.Do(func() {
		// The group starts at "0" so entries added before it existed are
		// still delivered. BUSYGROUP means another instance created the
		// group first; anything else surfaces on the first consume.
		_ = q.client.XGroupCreateMkStream(ctx, q.stream, q.group, "0").Err()
	})
}

func (q *RedisJobQueue) consumeLoop(ctx context.Context, consumer string, handler Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if msgs, err := q.claimPending(ctx, consumer); err == nil {
			for _, msg := range msgs {
				q.notifyStalled(ctx, msg)
				q.handleMessage(ctx, msg, handler)
			}
		}

		streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.group,
			Consumer: consumer,
			Streams:  []string{q.stream, ">"},
			Count:    q.readCount,
			Block:    q.block,
		}).Result()
		if err != nil {
			continue
		}
		for _, stream := range streams {
			for _, msg := range stream.Messages {
				q.handleMessage(ctx, msg, handler)
			}
		}
	}
}

func (q *RedisJobQueue) claimPending(ctx context.Context, consumer string) ([]redis.XMessage, error) {
	res, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   q.stream,
		Group:    q.group,
		Consumer: consumer,
		MinIdle:  q.claimIdle,
		Start:    "0-0",
		Count:    q.claimCount,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (q *RedisJobQueue) handleMessage(ctx context.Context, msg redis.XMessage, handler Handler) {
	jobID, _ := msg.Values["job_id"].(string)
	documentID, _ := msg.Values["document_id"].(string)
	filePath, _ := msg.Values["file_path"].(string)
	if jobID == "" || documentID == "" {
		q.ackAndDel(ctx, msg.ID)
		return
	}
	status, err := q.markProcessing(ctx, jobID, documentID, filePath)
	if err != nil {
		q.ackAndDel(ctx, msg.ID)
		return
	}
	job := Job{ID: jobID, DocumentID: documentID, FilePath: filePath, Attempt: status.Attempts}

	if err := handler(ctx, job); err == nil {
		_ = q.markCompleted(ctx, jobID)
		q.recordHistory(ctx, statusCompleted, jobID, q.historyCompleted)
		q.ackAndDel(ctx, msg.ID)
		q.emitCompleted(job)
		return
	} else if status.Attempts >= q.maxAttempts {
		// Attempt budget exhausted: dead-letter the job. The document stays
		// in whatever state the last attempt left it.
		_ = q.markFailed(ctx, jobID, err.Error())
		q.recordHistory(ctx, statusFailed, jobID, q.historyFailed)
		q.ackAndDel(ctx, msg.ID)
		q.emitFailed(job, err, true)
		return
	} else {
		_ = q.markQueued(ctx, jobID, err.Error())
		q.emitFailed(job, err, false)
		if delay := q.backoff(status.Attempts); delay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
		}
		_ = q.requeueAndAck(ctx, msg.ID, jobID, documentID, filePath)
	}
}

// backoff returns the exponential delay before the next attempt: base after
// the first failure, doubling per attempt.
func (q *RedisJobQueue) backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	delay := q.backoffBase
	for i := 1; i < attempts; i++ {
		delay *= 2
	}
	return delay
}

func (q *RedisJobQueue) ackAndDel(ctx context.Context, msgID string) {
	_, _ = q.client.XAck(ctx, q.stream, q.group, msgID).Result()
	_, _ = q.client.XDel(ctx, q.stream, msgID).Result()
}

func (q *RedisJobQueue) requeueAndAck(ctx context.Context, msgID, jobID, documentID, filePath string) error {
	pipe := q.client.TxPipeline()
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		MaxLen: q.maxLen,
		Approx: true,
		Values: map[string]any{
			"job_id":      jobID,
			"document_id": documentID,
			"file_path":   filePath,
		},
	})
	pipe.XAck(ctx, q.stream, q.group, msgID)
	pipe.XDel(ctx, q.stream, msgID)
	_, err := pipe.Exec(ctx)
	return err
}

func (q *RedisJobQueue) recordHistory(ctx context.Context, kind, jobID string, keep int64) {
	key := q.historyKey(kind)
	pipe := q.client.TxPipeline()
	pipe.LPush(ctx, key, jobID)
	pipe.LTrim(ctx, key, 0, keep-1)
	_, _ = pipe.Exec(ctx)
}

func (q *RedisJobQueue) notifyStalled(ctx context.Context, msg redis.XMessage) {
	jobID, _ := msg.Values["job_id"].(string)
	documentID, _ := msg.Values["document_id"].(string)
	filePath, _ := msg.Values["file_path"].(string)
	if jobID == "" {
		return
	}
	job := Job{ID: jobID, DocumentID: documentID, FilePath: filePath}
	if status, ok, err := q.GetJob(ctx, jobID); err == nil && ok {
		job.Attempt = status.Attempts
	}
	q.mu.Lock()
	onStalled := q.events.OnStalled
	q.mu.Unlock()
	if onStalled != nil {
		onStalled(job)
	}
}

func (q *RedisJobQueue) emitCompleted(job Job) {
	q.mu.Lock()
	onCompleted := q.events.OnCompleted
	q.mu.Unlock()
	if onCompleted != nil {
		onCompleted(job)
	}
}

func (q *RedisJobQueue) emitFailed(job Job, err error, dead bool) {
	q.mu.Lock()
	onFailed := q.events.OnFailed
	q.mu.Unlock()
	if onFailed != nil {
		onFailed(job, err, dead)
	}
}

func (q *RedisJobQueue) markProcessing(ctx context.Context, jobID, documentID, filePath string) (JobStatus, error) {
	status, _, err := q.GetJob(ctx, jobID)
	if err != nil {
		return JobStatus{}, err
	}
	if status.ID == "" {
		status = JobStatus{ID: jobID}
	}
	if documentID != "" {
		status.DocumentID = documentID
	}
	if filePath != "" {
		status.FilePath = filePath
	}
	status.Attempts++
	status.Status = statusProcessing
	status.UpdatedAt = time.Now().UTC()
	if status.CreatedAt.IsZero() {
		status.CreatedAt = status.UpdatedAt
	}
	if err := q.writeStatus(ctx, status); err != nil {
		return JobStatus{}, err
	}
	return status, nil
}

func (q *RedisJobQueue) markQueued(ctx context.Context, jobID, errMsg string) error {
	return q.transition(ctx, jobID, statusQueued, errMsg)
}

func (q *RedisJobQueue) markCompleted(ctx context.Context, jobID string) error {
	return q.transition(ctx, jobID, statusCompleted, "")
}

func (q *RedisJobQueue) markFailed(ctx context.Context, jobID, errMsg string) error {
	return q.transition(ctx, jobID, statusFailed, errMsg)
}

func (q *RedisJobQueue) transition(ctx context.Context, jobID, to, errMsg string) error {
	status, _, err := q.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	status.ID = jobID
	status.Status = to
	status.ErrorMessage = errMsg
	status.UpdatedAt = time.Now().UTC()
	return q.writeStatus(ctx, status)
}

func (q *RedisJobQueue) writeStatus(ctx context.Context, status JobStatus) error {
	payload := map[string]any{
		"id":          status.ID,
		"document_id": status.DocumentID,
		"file_path":   status.FilePath,
		"status":      status.Status,
		"error":       status.ErrorMessage,
		"attempts":    strconv.Itoa(status.Attempts),
		"created_at":  status.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":  status.UpdatedAt.Format(time.RFC3339Nano),
	}
	key := q.jobKey(status.ID)
	if err := q.client.HSet(ctx, key, payload).Err(); err != nil {
		return err
	}
	_ = q.client.Expire(ctx, key, q.jobTTL).Err()
	return nil
}

func (q *RedisJobQueue) jobKey(jobID string) string {
	return fmt.Sprintf("job:%s:%s", q.stream, jobID)
}

func (q *RedisJobQueue) historyKey(kind string) string {
	return fmt.Sprintf("history:%s:%s", q.stream, kind)
}

func decodeJobStatus(jobID string, data map[string]string) JobStatus {
	status := JobStatus{ID: jobID}
	status.DocumentID = data["document_id"]
	status.FilePath = data["file_path"]
	status.Status = data["status"]
	status.ErrorMessage = data["error"]
	if v := data["attempts"]; v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			status.Attempts = n
		}
	}
	if v := data["created_at"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			status.CreatedAt = t
		}
	}
	if v := data["updated_at"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			status.UpdatedAt = t
		}
	}
	return status
}
