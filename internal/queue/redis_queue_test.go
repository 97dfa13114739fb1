package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/networth-tracker/internal/logging"
	"github.com/networth-tracker/internal/types"
)

func setupRedisQueue(t *testing.T, opts Options) (*RedisQueue, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err, "failed to start miniredis")
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	if opts.Name == "" {
		opts.Name = "test"
	}
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = 3
	}
	if opts.BackoffBase == 0 {
		opts.BackoffBase = time.Second
	}
	if opts.BackoffMax == 0 {
		opts.BackoffMax = 10 * time.Second
	}
	if opts.VisibilityTimeout == 0 {
		opts.VisibilityTimeout = time.Minute
	}

	logger := logging.NewLogger(logging.LevelError, logging.FormatText)
	return NewRedisQueue(client, opts, logger), mr
}

func newTestTask(t *testing.T, dedupKey string) *Task {
	t.Helper()

	task, err := NewTask(types.TaskNativeCheck, dedupKey, types.NativeCheckPayload{
		AccountID: 1,
		ChainID:   types.ChainMainnet,
	})
	require.NoError(t, err)
	return task
}

func TestRedisQueue_EnqueueDedup(t *testing.T) {
	q, _ := setupRedisQueue(t, Options{})
	ctx := context.Background()

	added, err := q.Enqueue(ctx, newTestTask(t, "native:1:1"))
	require.NoError(t, err)
	assert.True(t, added)

	// same dedup key coalesces while the first task is in flight
	added, err = q.Enqueue(ctx, newTestTask(t, "native:1:1"))
	require.NoError(t, err)
	assert.False(t, added)

	// a different key is independent
	added, err = q.Enqueue(ctx, newTestTask(t, "native:2:1"))
	require.NoError(t, err)
	assert.True(t, added)

	counts, err := q.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts.Pending)
}

func TestRedisQueue_DequeueAckReleasesDedup(t *testing.T) {
	q, _ := setupRedisQueue(t, Options{})
	ctx := context.Background()

	original := newTestTask(t, "native:1:1")
	_, err := q.Enqueue(ctx, original)
	require.NoError(t, err)

	task, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, original.ID, task.ID)
	assert.Equal(t, "native:1:1", task.DedupKey)

	counts, err := q.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), counts.Pending)
	assert.Equal(t, int64(1), counts.Processing)

	// still claimed: the dedup key stays held
	added, err := q.Enqueue(ctx, newTestTask(t, "native:1:1"))
	require.NoError(t, err)
	assert.False(t, added)

	require.NoError(t, q.Ack(ctx, task))

	counts, err = q.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), counts.InProgress())

	// completion releases the key for the next refresh
	added, err = q.Enqueue(ctx, newTestTask(t, "native:1:1"))
	require.NoError(t, err)
	assert.True(t, added)
}

func TestRedisQueue_DequeueEmpty(t *testing.T) {
	q, _ := setupRedisQueue(t, Options{})

	task, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Nil(t, task)
}

func TestRedisQueue_FailSchedulesRetry(t *testing.T) {
	q, _ := setupRedisQueue(t, Options{BackoffBase: time.Millisecond, BackoffMax: time.Millisecond})
	ctx := context.Background()

	_, err := q.Enqueue(ctx, newTestTask(t, "native:1:1"))
	require.NoError(t, err)

	task, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, task)

	require.NoError(t, q.Fail(ctx, task, assert.AnError))

	counts, err := q.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.Delayed)

	// the key stays held through the backoff window
	added, err := q.Enqueue(ctx, newTestTask(t, "native:1:1"))
	require.NoError(t, err)
	assert.False(t, added)

	time.Sleep(1100 * time.Millisecond) // scores have second precision
	require.NoError(t, q.Reap(ctx))

	counts, err = q.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.Pending)
	assert.Equal(t, int64(0), counts.Delayed)

	retried, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, retried)
	assert.Equal(t, task.ID, retried.ID)
	assert.Equal(t, 1, retried.Attempts)
	assert.NotEmpty(t, retried.LastError)
}

func TestRedisQueue_ExhaustedAttemptsDeadLetter(t *testing.T) {
	q, _ := setupRedisQueue(t, Options{MaxAttempts: 2, BackoffBase: time.Millisecond, BackoffMax: time.Millisecond})
	ctx := context.Background()

	_, err := q.Enqueue(ctx, newTestTask(t, "native:1:1"))
	require.NoError(t, err)

	task, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NoError(t, q.Fail(ctx, task, assert.AnError))

	time.Sleep(1100 * time.Millisecond)
	require.NoError(t, q.Reap(ctx))

	task, err = q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, task)
	require.NoError(t, q.Fail(ctx, task, assert.AnError))

	counts, err := q.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.Dead)
	assert.Equal(t, int64(0), counts.InProgress())

	// dead-lettering releases the dedup key
	added, err := q.Enqueue(ctx, newTestTask(t, "native:1:1"))
	require.NoError(t, err)
	assert.True(t, added)
}

func TestRedisQueue_ReapReclaimsExpiredClaims(t *testing.T) {
	q, _ := setupRedisQueue(t, Options{VisibilityTimeout: -time.Second})
	ctx := context.Background()

	_, err := q.Enqueue(ctx, newTestTask(t, "native:1:1"))
	require.NoError(t, err)

	// claim expires immediately with the negative timeout
	task, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, task)

	require.NoError(t, q.Reap(ctx))

	counts, err := q.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.Pending)
	assert.Equal(t, int64(0), counts.Processing)

	reclaimed, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, reclaimed)
	assert.Equal(t, task.ID, reclaimed.ID)
	assert.Equal(t, 1, reclaimed.Attempts)
	assert.Equal(t, "visibility timeout exceeded", reclaimed.LastError)
}

func TestRedisQueue_QueuesAreNamespaced(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := logging.NewLogger(logging.LevelError, logging.FormatText)
	base := Options{MaxAttempts: 3, BackoffBase: time.Second, BackoffMax: time.Second, VisibilityTimeout: time.Minute}

	nativeOpts := base
	nativeOpts.Name = "native"
	native := NewRedisQueue(client, nativeOpts, logger)

	erc20Opts := base
	erc20Opts.Name = "erc20"
	erc20 := NewRedisQueue(client, erc20Opts, logger)

	ctx := context.Background()
	_, err = native.Enqueue(ctx, newTestTask(t, "native:1:1"))
	require.NoError(t, err)

	counts, err := erc20.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), counts.Pending)

	task, err := erc20.Dequeue(ctx)
	require.NoError(t, err)
	assert.Nil(t, task)
}
