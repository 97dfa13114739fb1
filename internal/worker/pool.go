// Package worker runs the balance-check task consumers. Each pool
// drains one queue with a bounded number of concurrent handlers,
// acking successes and feeding failures back through the queue's
// retry machinery.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/networth-tracker/internal/errors"
	"github.com/networth-tracker/internal/logging"
	"github.com/networth-tracker/internal/queue"
)

// Handler processes one claimed task. A nil return acks the task; a
// retryable error schedules a backoff retry; a non-retryable error
// drops the task after logging.
type Handler interface {
	Handle(ctx context.Context, task *queue.Task) error
}

// Pool consumes one queue with bounded concurrency
type Pool struct {
	name         string
	queue        queue.Queue
	handler      Handler
	concurrency  int
	pollInterval time.Duration
	reapInterval time.Duration
	logger       *logging.Logger

	running bool
	mu      sync.Mutex
	stopCh  chan struct{}
	doneCh  chan struct{}
	wg      sync.WaitGroup
	sem     chan struct{}
}

// PoolConfig holds configuration for a worker pool
type PoolConfig struct {
	Name         string
	Queue        queue.Queue
	Handler      Handler
	Concurrency  int
	PollInterval time.Duration
	ReapInterval time.Duration
}

// NewPool creates a worker pool
func NewPool(cfg *PoolConfig, logger *logging.Logger) (*Pool, error) {
	if cfg.Queue == nil {
		return nil, fmt.Errorf("queue cannot be nil")
	}
	if cfg.Handler == nil {
		return nil, fmt.Errorf("handler cannot be nil")
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	pollInterval := cfg.PollInterval
	if pollInterval == 0 {
		pollInterval = time.Second
	}

	reapInterval := cfg.ReapInterval
	if reapInterval == 0 {
		reapInterval = 30 * time.Second
	}

	return &Pool{
		name:         cfg.Name,
		queue:        cfg.Queue,
		handler:      cfg.Handler,
		concurrency:  concurrency,
		pollInterval: pollInterval,
		reapInterval: reapInterval,
		logger:       logger.WithField("pool", cfg.Name),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
		sem:          make(chan struct{}, concurrency),
	}, nil
}

// Start begins the pool's polling loop
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("worker pool %s is already running", p.name)
	}
	p.running = true
	p.mu.Unlock()

	p.logger.WithFields(map[string]interface{}{
		"concurrency":   p.concurrency,
		"poll_interval": p.pollInterval.String(),
	}).Info("Starting worker pool")

	go p.pollLoop(ctx)

	return nil
}

// Stop gracefully stops the pool, waiting for in-flight tasks
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return fmt.Errorf("worker pool %s is not running", p.name)
	}
	p.mu.Unlock()

	close(p.stopCh)

	select {
	case <-p.doneCh:
		p.logger.Info("Worker pool stopped gracefully")
	case <-ctx.Done():
		p.logger.Warn("Worker pool stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	return nil
}

func (p *Pool) pollLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	reapTicker := time.NewTicker(p.reapInterval)
	defer reapTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.wg.Wait()
			return
		case <-p.stopCh:
			p.wg.Wait()
			return
		case <-reapTicker.C:
			if err := p.queue.Reap(ctx); err != nil {
				p.logger.WithError(err).Error("Failed to reap queue")
			}
		case <-ticker.C:
			p.drain(ctx)
		}
	}
}

// drain claims tasks until the queue is empty or all handler slots are
// busy
func (p *Pool) drain(ctx context.Context) {
	for {
		select {
		case p.sem <- struct{}{}:
		default:
			return
		}

		task, err := p.queue.Dequeue(ctx)
		if err != nil {
			<-p.sem
			p.logger.WithError(err).Error("Failed to dequeue task")
			return
		}
		if task == nil {
			<-p.sem
			return
		}

		p.wg.Add(1)
		go func(task *queue.Task) {
			defer p.wg.Done()
			defer func() { <-p.sem }()
			p.process(ctx, task)
		}(task)
	}
}

func (p *Pool) process(ctx context.Context, task *queue.Task) {
	logger := p.logger.WithFields(map[string]interface{}{
		"task_id":   task.ID,
		"task_type": string(task.Type),
		"dedup_key": task.DedupKey,
	})

	err := p.handler.Handle(ctx, task)
	if err == nil {
		if ackErr := p.queue.Ack(ctx, task); ackErr != nil {
			logger.WithError(ackErr).Error("Failed to ack task")
		}
		return
	}

	if !errors.IsRetryable(err) {
		logger.WithError(err).Error("Dropping task with non-retryable error")
		if ackErr := p.queue.Ack(ctx, task); ackErr != nil {
			logger.WithError(ackErr).Error("Failed to ack dropped task")
		}
		return
	}

	logger.WithError(err).WithField("attempts", task.Attempts+1).Warn("Task failed, scheduling retry")
	if failErr := p.queue.Fail(ctx, task, err); failErr != nil {
		logger.WithError(failErr).Error("Failed to record task failure")
	}
}
