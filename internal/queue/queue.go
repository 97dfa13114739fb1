// Package queue provides the durable balance-check task queue. Tasks
// are deduplicated at enqueue time: while a task with the same dedup
// key is pending, processing or delayed, re-enqueueing it is a no-op.
package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/networth-tracker/internal/types"
)

// Task is one balance-check unit of work
type Task struct {
	ID         string          `json:"id"`
	Type       types.TaskType  `json:"type"`
	DedupKey   string          `json:"dedup_key"`
	Payload    json.RawMessage `json:"payload"`
	Attempts   int             `json:"attempts"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	LastError  string          `json:"last_error,omitempty"`
}

// NewTask creates a task with a fresh id and the payload serialized
func NewTask(taskType types.TaskType, dedupKey string, payload interface{}) (*Task, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Task{
		ID:         uuid.New().String(),
		Type:       taskType,
		DedupKey:   dedupKey,
		Payload:    raw,
		EnqueuedAt: time.Now().UTC(),
	}, nil
}

// Counts reports queue depth per state
type Counts struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Delayed    int64 `json:"delayed"`
	Dead       int64 `json:"dead"`
}

// InProgress is the number of tasks still owed a completion: pending,
// claimed, or waiting out a retry backoff. Dead tasks are excluded.
func (c Counts) InProgress() int64 {
	return c.Pending + c.Processing + c.Delayed
}

// Queue is the durable task queue contract
type Queue interface {
	// Enqueue adds the task unless its dedup key is already in
	// flight. Returns true when the task was actually added.
	Enqueue(ctx context.Context, task *Task) (bool, error)

	// Dequeue claims the next pending task, or returns nil when the
	// queue is empty. Claimed tasks must be Acked or Failed before
	// the visibility timeout or they are requeued by Reap.
	Dequeue(ctx context.Context) (*Task, error)

	// Ack completes the task and releases its dedup key
	Ack(ctx context.Context, task *Task) error

	// Fail records a failed attempt: the task is delayed for a
	// backoff retry, or moved to the dead list once its attempts
	// are exhausted. Dead tasks release their dedup key.
	Fail(ctx context.Context, task *Task, taskErr error) error

	// Reap requeues tasks whose visibility timeout expired and
	// promotes delayed tasks whose backoff has elapsed
	Reap(ctx context.Context) error

	// Counts reports the queue depth per state
	Counts(ctx context.Context) (Counts, error)
}

// Options configures a queue instance
type Options struct {
	// Name namespaces the queue's keys so the native and erc20
	// queues can share one Redis
	Name string

	// MaxAttempts is the total tries before a task goes to the dead
	// list
	MaxAttempts int

	// BackoffBase and BackoffMax bound the exponential retry delay
	BackoffBase time.Duration
	BackoffMax  time.Duration

	// VisibilityTimeout is how long a claimed task may run before
	// Reap assumes its worker died
	VisibilityTimeout time.Duration
}

// backoffDelay returns the exponential delay before the given retry
// attempt (1-based), capped at BackoffMax
func (o Options) backoffDelay(attempt int) time.Duration {
	delay := o.BackoffBase
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= o.BackoffMax {
			return o.BackoffMax
		}
	}
	if delay > o.BackoffMax {
		return o.BackoffMax
	}
	return delay
}
