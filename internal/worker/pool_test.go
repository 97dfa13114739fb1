package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/networth-tracker/internal/errors"
	"github.com/networth-tracker/internal/queue"
	"github.com/networth-tracker/internal/types"
)

type recordingHandler struct {
	mu      sync.Mutex
	handled []string
	err     error
}

func (h *recordingHandler) Handle(ctx context.Context, task *queue.Task) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handled = append(h.handled, task.DedupKey)
	return h.err
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.handled)
}

func poolFixture(t *testing.T, handler Handler) (*Pool, *queue.MemoryQueue) {
	t.Helper()

	q := queue.NewMemoryQueue(queue.Options{
		Name:              "test",
		MaxAttempts:       3,
		BackoffBase:       time.Millisecond,
		BackoffMax:        time.Millisecond,
		VisibilityTimeout: time.Minute,
	})

	pool, err := NewPool(&PoolConfig{
		Name:         "test",
		Queue:        q,
		Handler:      handler,
		Concurrency:  2,
		PollInterval: 5 * time.Millisecond,
		ReapInterval: 5 * time.Millisecond,
	}, testLogger())
	require.NoError(t, err)

	return pool, q
}

func TestPool_AcksSuccessfulTasks(t *testing.T) {
	handler := &recordingHandler{}
	pool, q := poolFixture(t, handler)

	ctx := context.Background()
	_, err := q.Enqueue(ctx, nativeTask(t, 1))
	require.NoError(t, err)

	require.NoError(t, pool.Start(ctx))
	defer pool.Stop(context.Background())

	require.Eventually(t, func() bool {
		counts, err := q.Counts(ctx)
		return err == nil && counts.InProgress() == 0 && handler.count() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestPool_RetryableErrorSchedulesRetry(t *testing.T) {
	handler := &recordingHandler{err: errors.NewConnectionError(types.ChainMainnet, assert.AnError)}
	pool, q := poolFixture(t, handler)

	ctx := context.Background()
	_, err := q.Enqueue(ctx, nativeTask(t, 1))
	require.NoError(t, err)

	require.NoError(t, pool.Start(ctx))
	defer pool.Stop(context.Background())

	// the task keeps cycling until its attempts run out
	require.Eventually(t, func() bool {
		counts, err := q.Counts(ctx)
		return err == nil && counts.Dead == 1
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, 3, handler.count())
}

func TestPool_NonRetryableErrorDropsTask(t *testing.T) {
	handler := &recordingHandler{err: errors.NewValidationError("payload", "garbled")}
	pool, q := poolFixture(t, handler)

	ctx := context.Background()
	_, err := q.Enqueue(ctx, nativeTask(t, 1))
	require.NoError(t, err)

	require.NoError(t, pool.Start(ctx))
	defer pool.Stop(context.Background())

	require.Eventually(t, func() bool {
		counts, err := q.Counts(ctx)
		return err == nil && counts.InProgress() == 0 && counts.Dead == 0
	}, time.Second, 5*time.Millisecond)

	// dropped after a single attempt, not retried
	assert.Equal(t, 1, handler.count())
}
