package queue

import (
	"context"
	"sync"
	"time"
)

// MemoryQueue is an in-process queue with the same semantics as
// RedisQueue. Used in tests and single-binary development runs.
type MemoryQueue struct {
	opts Options

	mu         sync.Mutex
	pending    []*Task
	processing map[string]*claim
	delayed    map[string]*delayedTask
	dead       []*Task
	inflight   map[string]bool
}

type claim struct {
	task     *Task
	deadline time.Time
}

type delayedTask struct {
	task    *Task
	readyAt time.Time
}

// NewMemoryQueue creates an in-process queue
func NewMemoryQueue(opts Options) *MemoryQueue {
	return &MemoryQueue{
		opts:       opts,
		processing: make(map[string]*claim),
		delayed:    make(map[string]*delayedTask),
		inflight:   make(map[string]bool),
	}
}

// Enqueue adds the task unless its dedup key is already in flight
func (q *MemoryQueue) Enqueue(ctx context.Context, task *Task) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.inflight[task.DedupKey] {
		return false, nil
	}

	q.inflight[task.DedupKey] = true
	q.pending = append(q.pending, task)
	return true, nil
}

// Dequeue claims the oldest pending task, or returns nil when none is
// ready
func (q *MemoryQueue) Dequeue(ctx context.Context) (*Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return nil, nil
	}

	task := q.pending[0]
	q.pending = q.pending[1:]
	q.processing[task.ID] = &claim{
		task:     task,
		deadline: time.Now().Add(q.opts.VisibilityTimeout),
	}

	return task, nil
}

// Ack completes the task and releases its dedup key
func (q *MemoryQueue) Ack(ctx context.Context, task *Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.processing, task.ID)
	delete(q.inflight, task.DedupKey)
	return nil
}

// Fail records a failed attempt, delaying a retry or dead-lettering
// the task
func (q *MemoryQueue) Fail(ctx context.Context, task *Task, taskErr error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.processing, task.ID)

	task.Attempts++
	if taskErr != nil {
		task.LastError = taskErr.Error()
	}

	if task.Attempts >= q.opts.MaxAttempts {
		q.dead = append(q.dead, task)
		delete(q.inflight, task.DedupKey)
		return nil
	}

	q.delayed[task.ID] = &delayedTask{
		task:    task,
		readyAt: time.Now().Add(q.opts.backoffDelay(task.Attempts)),
	}
	return nil
}

// Reap requeues expired claims and promotes due delayed tasks
func (q *MemoryQueue) Reap(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()

	for id, c := range q.processing {
		if c.deadline.After(now) {
			continue
		}
		delete(q.processing, id)

		c.task.Attempts++
		c.task.LastError = "visibility timeout exceeded"

		if c.task.Attempts >= q.opts.MaxAttempts {
			q.dead = append(q.dead, c.task)
			delete(q.inflight, c.task.DedupKey)
		} else {
			q.pending = append(q.pending, c.task)
		}
	}

	for id, d := range q.delayed {
		if d.readyAt.After(now) {
			continue
		}
		delete(q.delayed, id)
		q.pending = append(q.pending, d.task)
	}

	return nil
}

// Counts reports the queue depth per state
func (q *MemoryQueue) Counts(ctx context.Context) (Counts, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	return Counts{
		Pending:    int64(len(q.pending)),
		Processing: int64(len(q.processing)),
		Delayed:    int64(len(q.delayed)),
		Dead:       int64(len(q.dead)),
	}, nil
}
