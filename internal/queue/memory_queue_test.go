package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemoryQueue(opts Options) *MemoryQueue {
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = 3
	}
	if opts.BackoffBase == 0 {
		opts.BackoffBase = time.Millisecond
	}
	if opts.BackoffMax == 0 {
		opts.BackoffMax = 10 * time.Millisecond
	}
	if opts.VisibilityTimeout == 0 {
		opts.VisibilityTimeout = time.Minute
	}
	return NewMemoryQueue(opts)
}

func TestMemoryQueue_CoalescesByDedupKey(t *testing.T) {
	q := newMemoryQueue(Options{})
	ctx := context.Background()

	added, err := q.Enqueue(ctx, newTestTask(t, "erc20:1:1"))
	require.NoError(t, err)
	assert.True(t, added)

	added, err = q.Enqueue(ctx, newTestTask(t, "erc20:1:1"))
	require.NoError(t, err)
	assert.False(t, added)

	task, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, task)

	// claimed but not completed still coalesces
	added, err = q.Enqueue(ctx, newTestTask(t, "erc20:1:1"))
	require.NoError(t, err)
	assert.False(t, added)

	require.NoError(t, q.Ack(ctx, task))

	added, err = q.Enqueue(ctx, newTestTask(t, "erc20:1:1"))
	require.NoError(t, err)
	assert.True(t, added)
}

func TestMemoryQueue_FIFOOrder(t *testing.T) {
	q := newMemoryQueue(Options{})
	ctx := context.Background()

	first := newTestTask(t, "native:1:1")
	second := newTestTask(t, "native:2:1")
	_, err := q.Enqueue(ctx, first)
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, second)
	require.NoError(t, err)

	task, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, task.ID)

	task, err = q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, task.ID)
}

func TestMemoryQueue_RetryThenDeadLetter(t *testing.T) {
	q := newMemoryQueue(Options{MaxAttempts: 2})
	ctx := context.Background()

	_, err := q.Enqueue(ctx, newTestTask(t, "native:1:1"))
	require.NoError(t, err)

	task, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NoError(t, q.Fail(ctx, task, assert.AnError))

	counts, err := q.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.Delayed)

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, q.Reap(ctx))

	task, err = q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, 1, task.Attempts)

	require.NoError(t, q.Fail(ctx, task, assert.AnError))

	counts, err = q.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.Dead)
	assert.Equal(t, int64(0), counts.InProgress())

	// the key frees up once the task is dead
	added, err := q.Enqueue(ctx, newTestTask(t, "native:1:1"))
	require.NoError(t, err)
	assert.True(t, added)
}

func TestMemoryQueue_ReapReclaimsExpiredClaims(t *testing.T) {
	q := newMemoryQueue(Options{VisibilityTimeout: -time.Second})
	ctx := context.Background()

	_, err := q.Enqueue(ctx, newTestTask(t, "native:1:1"))
	require.NoError(t, err)

	task, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, task)

	require.NoError(t, q.Reap(ctx))

	reclaimed, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, reclaimed)
	assert.Equal(t, task.ID, reclaimed.ID)
	assert.Equal(t, 1, reclaimed.Attempts)
}

func TestBackoffDelayCapped(t *testing.T) {
	opts := Options{BackoffBase: 2 * time.Second, BackoffMax: 10 * time.Second}

	assert.Equal(t, 2*time.Second, opts.backoffDelay(1))
	assert.Equal(t, 4*time.Second, opts.backoffDelay(2))
	assert.Equal(t, 8*time.Second, opts.backoffDelay(3))
	assert.Equal(t, 10*time.Second, opts.backoffDelay(4))
	assert.Equal(t, 10*time.Second, opts.backoffDelay(10))
}
