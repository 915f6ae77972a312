package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"docproc/internal/util"
)

// AMQPJobQueue implements JobQueue on RabbitMQ for deployments that already
// run a broker instead of Redis. Retry works the same way as the Redis
// backend: failed deliveries are republished with an incremented attempt
// header after the backoff delay, and dead-lettered once the budget is
// spent. Completed/failed tallies are process-local, so Stats is only
// meaningful on the consuming worker.
type AMQPJobQueue struct {
	conn        *amqp.Connection
	queueName   string
	maxAttempts int
	backoffBase time.Duration

	pubMu  sync.Mutex
	pubCh  *amqp.Channel
	mu     sync.Mutex
	events Events

	active    atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

// AMQPQueueConfig configures the RabbitMQ backend.
type AMQPQueueConfig struct {
	URL         string
	Queue       string
	MaxAttempts int
	BackoffBase time.Duration
}

// NewAMQPJobQueue dials the broker and declares the durable queue.
func NewAMQPJobQueue(cfg AMQPQueueConfig) (*AMQPJobQueue, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, errors.New("amqp url required")
	}
	queueName := strings.TrimSpace(cfg.Queue)
	if queueName == "" {
		return nil, errors.New("queue name required")
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	backoffBase := cfg.BackoffBase
	if backoffBase <= 0 {
		backoffBase = 2 * time.Second
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	pubCh, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := pubCh.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	return &AMQPJobQueue{
		conn:        conn,
		queueName:   queueName,
		maxAttempts: maxAttempts,
		backoffBase: backoffBase,
		pubCh:       pubCh,
	}, nil
}

// Subscribe registers observability callbacks.
func (q *AMQPJobQueue) Subscribe(events Events) {
	q.mu.Lock()
	q.events = events
	q.mu.Unlock()
}

// Enqueue publishes a persistent processing job.
func (q *AMQPJobQueue) Enqueue(ctx context.Context, documentID, filePath string) (Job, error) {
	documentID = strings.TrimSpace(documentID)
	if documentID == "" {
		return Job{}, errors.New("documentId required")
	}
	filePath = strings.TrimSpace(filePath)
	if filePath == "" {
		return Job{}, errors.New("filePath required")
	}
	job := Job{ID: util.NewID(), DocumentID: documentID, FilePath: filePath}
	if err := q.publish(ctx, job, 0); err != nil {
		return Job{}, err
	}
	return job, nil
}

// Start launches concurrency consumers, each on its own channel with a
// prefetch of one.
func (q *AMQPJobQueue) Start(ctx context.Context, concurrency int, handler Handler) {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	for i := 0; i < concurrency; i++ {
		go q.consumeLoop(ctx, fmt.Sprintf("consumer-%d", i), handler)
	}
}

// Stats reports the broker backlog plus process-local counters.
func (q *AMQPJobQueue) Stats(ctx context.Context) (Stats, error) {
	q.pubMu.Lock()
	state, err := q.pubCh.QueueDeclarePassive(q.queueName, true, false, false, false, nil)
	q.pubMu.Unlock()
	if err != nil {
		return Stats{}, fmt.Errorf("inspect queue: %w", err)
	}
	return Stats{
		Waiting:   int64(state.Messages),
		Active:    q.active.Load(),
		Completed: q.completed.Load(),
		Failed:    q.failed.Load(),
	}, nil
}

// Close shuts down the connection and all channels.
func (q *AMQPJobQueue) Close() error {
	return q.conn.Close()
}

func (q *AMQPJobQueue) consumeLoop(ctx context.Context, consumer string, handler Handler) {
	ch, err := q.conn.Channel()
	if err != nil {
		return
	}
	defer ch.Close()
	if err := ch.Qos(1, 0, false); err != nil {
		return
	}
	deliveries, err := ch.Consume(q.queueName, consumer, false, false, false, false, nil)
	if err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case delivery, ok := <-deliveries:
			if !ok {
				return
			}
			q.handleDelivery(ctx, delivery, handler)
		}
	}
}

func (q *AMQPJobQueue) handleDelivery(ctx context.Context, delivery amqp.Delivery, handler Handler) {
	var job Job
	if err := json.Unmarshal(delivery.Body, &job); err != nil {
		_ = delivery.Ack(false)
		return
	}
	attempt := attemptFromHeaders(delivery.Headers) + 1
	job.Attempt = attempt

	q.active.Add(1)
	err := handler(ctx, job)
	q.active.Add(-1)

	if err == nil {
		q.completed.Add(1)
		_ = delivery.Ack(false)
		q.emitCompleted(job)
		return
	}
	if attempt >= q.maxAttempts {
		q.failed.Add(1)
		_ = delivery.Ack(false)
		q.emitFailed(job, err, true)
		return
	}
	q.emitFailed(job, err, false)
	if delay := q.backoff(attempt); delay > 0 {
		select {
		case <-ctx.Done():
			// Leave the delivery unacked so the broker redelivers it.
			return
		case <-time.After(delay):
		}
	}
	if pubErr := q.publish(ctx, job, attempt); pubErr != nil {
		// Republish failed; let the broker redeliver the original.
		_ = delivery.Nack(false, true)
		return
	}
	_ = delivery.Ack(false)
}

func (q *AMQPJobQueue) publish(ctx context.Context, job Job, attempts int) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	q.pubMu.Lock()
	defer q.pubMu.Unlock()
	return q.pubCh.PublishWithContext(ctx, "", q.queueName, false, false, amqp.Publishing{
		MessageId:    job.ID,
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Headers:      amqp.Table{"x-attempts": int32(attempts)},
		Body:         body,
	})
}

func (q *AMQPJobQueue) backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	delay := q.backoffBase
	for i := 1; i < attempts; i++ {
		delay *= 2
	}
	return delay
}

func (q *AMQPJobQueue) emitCompleted(job Job) {
	q.mu.Lock()
	onCompleted := q.events.OnCompleted
	q.mu.Unlock()
	if onCompleted != nil {
		onCompleted(job)
	}
}

func (q *AMQPJobQueue) emitFailed(job Job, err error, dead bool) {
	q.mu.Lock()
	onFailed := q.events.OnFailed
	q.mu.Unlock()
	if onFailed != nil {
		onFailed(job, err, dead)
	}
}

func attemptFromHeaders(headers amqp.Table) int {
	if headers == nil {
		return 0
	}
	switch v := headers["x-attempts"].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
