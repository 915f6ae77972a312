// Package queue provides the durable work queue that decouples document
// upload from processing. Delivery is at-least-once: a handler may see the
// same document twice (stall reclaim, retry), and every attempt re-runs the
// whole pipeline.
package queue

import "context"

// Default processing policy, matching the deployed queue configuration.
const (
	DefaultMaxAttempts      = 3
	DefaultConcurrency      = 5
	DefaultHistoryCompleted = 10
	DefaultHistoryFailed    = 5
)

// Job is one dequeued unit of work. Attempt is 1-based and owned by the
// queue; producers never set it.
type Job struct {
	ID         string `json:"id"`
	DocumentID string `json:"documentId"`
	FilePath   string `json:"filePath"`
	Attempt    int    `json:"attempt"`
}

// Handler processes one job. A nil return marks the job completed; an error
// triggers the retry policy (exponential backoff up to the attempt ceiling).
type Handler func(ctx context.Context, job Job) error

// Stats is a point-in-time snapshot of queue counters. It is not
// transactionally consistent with the document store.
type Stats struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// Events carries observability callbacks. They are never used for control
// flow: the pipeline's behavior is identical with no subscribers.
type Events struct {
	// OnCompleted fires after a job's handler returned nil.
	OnCompleted func(job Job)
	// OnFailed fires after a failed attempt. dead reports that the attempt
	// budget is exhausted and the job has been abandoned for manual
	// inspection.
	OnFailed func(job Job, err error, dead bool)
	// OnStalled fires when a job lost by another worker is reclaimed.
	OnStalled func(job Job)
}

// JobQueue is the contract consumed by the api (producer) and worker
// (consumer) services.
type JobQueue interface {
	// Enqueue submits a processing job for a document. The design assumes
	// exactly one enqueue per document; the queue does not deduplicate.
	Enqueue(ctx context.Context, documentID, filePath string) (Job, error)
	// Start launches concurrency consumer goroutines that run until ctx is
	// canceled.
	Start(ctx context.Context, concurrency int, handler Handler)
	// Subscribe registers observability callbacks. Call before Start.
	Subscribe(events Events)
	// Stats returns a snapshot of queue counters.
	Stats(ctx context.Context) (Stats, error)
	// Close releases the underlying connection.
	Close() error
}
