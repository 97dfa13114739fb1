package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/networth-tracker/internal/errors"
	"github.com/networth-tracker/internal/logging"
)

// RedisQueue is the production queue. Layout per queue name:
//
//	queue:{name}:tasks      hash  id -> task json
//	queue:{name}:pending    list  ids, LPUSH in / RPOP out
//	queue:{name}:processing zset  id scored by visibility deadline
//	queue:{name}:delayed    zset  id scored by retry ready time
//	queue:{name}:dead       list  exhausted task ids
//	queue:{name}:inflight   set   dedup keys
//
// Dedup membership and the pending push happen in one Lua script so a
// concurrent enqueue of the same key can never double-add.
type RedisQueue struct {
	client *redis.Client
	opts   Options
	logger *logging.Logger
}

// NewRedisQueue creates a Redis-backed queue
func NewRedisQueue(client *redis.Client, opts Options, logger *logging.Logger) *RedisQueue {
	return &RedisQueue{
		client: client,
		opts:   opts,
		logger: logger.WithField("queue", opts.Name),
	}
}

var enqueueScript = redis.NewScript(`
if redis.call('SADD', KEYS[1], ARGV[1]) == 1 then
	redis.call('HSET', KEYS[2], ARGV[2], ARGV[3])
	redis.call('LPUSH', KEYS[3], ARGV[2])
	return 1
end
return 0
`)

var dequeueScript = redis.NewScript(`
local id = redis.call('RPOP', KEYS[1])
if not id then
	return false
end
redis.call('ZADD', KEYS[2], ARGV[1], id)
return redis.call('HGET', KEYS[3], id)
`)

// Enqueue adds the task unless its dedup key is already in flight
func (q *RedisQueue) Enqueue(ctx context.Context, task *Task) (bool, error) {
	raw, err := json.Marshal(task)
	if err != nil {
		return false, errors.NewQueueError("enqueue", err)
	}

	added, err := enqueueScript.Run(ctx, q.client,
		[]string{q.key("inflight"), q.key("tasks"), q.key("pending")},
		task.DedupKey, task.ID, raw,
	).Int()
	if err != nil {
		return false, errors.NewQueueError("enqueue", err)
	}

	if added == 0 {
		q.logger.WithField("dedup_key", task.DedupKey).Debug("Task already in flight, coalesced")
		return false, nil
	}

	return true, nil
}

// Dequeue claims the next pending task, or returns nil when none is
// ready
func (q *RedisQueue) Dequeue(ctx context.Context) (*Task, error) {
	deadline := time.Now().Add(q.opts.VisibilityTimeout).Unix()

	raw, err := dequeueScript.Run(ctx, q.client,
		[]string{q.key("pending"), q.key("processing"), q.key("tasks")},
		deadline,
	).Text()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewQueueError("dequeue", err)
	}

	var task Task
	if err := json.Unmarshal([]byte(raw), &task); err != nil {
		return nil, errors.NewQueueError("dequeue", err)
	}

	return &task, nil
}

// Ack completes the task and releases its dedup key
func (q *RedisQueue) Ack(ctx context.Context, task *Task) error {
	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, q.key("processing"), task.ID)
	pipe.HDel(ctx, q.key("tasks"), task.ID)
	pipe.SRem(ctx, q.key("inflight"), task.DedupKey)

	if _, err := pipe.Exec(ctx); err != nil {
		return errors.NewQueueError("ack", err)
	}

	return nil
}

// Fail records a failed attempt. The task is delayed for a backoff
// retry, or moved to the dead list once attempts are exhausted.
func (q *RedisQueue) Fail(ctx context.Context, task *Task, taskErr error) error {
	task.Attempts++
	if taskErr != nil {
		task.LastError = taskErr.Error()
	}

	raw, err := json.Marshal(task)
	if err != nil {
		return errors.NewQueueError("fail", err)
	}

	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, q.key("processing"), task.ID)
	pipe.HSet(ctx, q.key("tasks"), task.ID, raw)

	if task.Attempts >= q.opts.MaxAttempts {
		pipe.LPush(ctx, q.key("dead"), task.ID)
		pipe.SRem(ctx, q.key("inflight"), task.DedupKey)
		q.logger.WithFields(map[string]interface{}{
			"task_id":   task.ID,
			"dedup_key": task.DedupKey,
			"attempts":  task.Attempts,
			"error":     task.LastError,
		}).Error("Task exhausted retries, moved to dead list")
	} else {
		readyAt := time.Now().Add(q.opts.backoffDelay(task.Attempts)).Unix()
		pipe.ZAdd(ctx, q.key("delayed"), redis.Z{Score: float64(readyAt), Member: task.ID})
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return errors.NewQueueError("fail", err)
	}

	return nil
}

// Reap requeues expired claims and promotes due delayed tasks
func (q *RedisQueue) Reap(ctx context.Context) error {
	now := fmt.Sprintf("%d", time.Now().Unix())

	expired, err := q.client.ZRangeByScore(ctx, q.key("processing"), &redis.ZRangeBy{
		Min: "-inf",
		Max: now,
	}).Result()
	if err != nil {
		return errors.NewQueueError("reap", err)
	}

	for _, id := range expired {
		if err := q.requeueExpired(ctx, id); err != nil {
			return err
		}
	}

	due, err := q.client.ZRangeByScore(ctx, q.key("delayed"), &redis.ZRangeBy{
		Min: "-inf",
		Max: now,
	}).Result()
	if err != nil {
		return errors.NewQueueError("reap", err)
	}

	for _, id := range due {
		pipe := q.client.TxPipeline()
		pipe.ZRem(ctx, q.key("delayed"), id)
		pipe.LPush(ctx, q.key("pending"), id)
		if _, err := pipe.Exec(ctx); err != nil {
			return errors.NewQueueError("reap", err)
		}
	}

	return nil
}

// requeueExpired treats a blown visibility deadline as a failed
// attempt, so a task whose worker keeps dying still reaches the dead
// list
func (q *RedisQueue) requeueExpired(ctx context.Context, id string) error {
	raw, err := q.client.HGet(ctx, q.key("tasks"), id).Result()
	if err == redis.Nil {
		// task data lost; drop the stale claim
		if err := q.client.ZRem(ctx, q.key("processing"), id).Err(); err != nil {
			return errors.NewQueueError("reap", err)
		}
		return nil
	}
	if err != nil {
		return errors.NewQueueError("reap", err)
	}

	var task Task
	if err := json.Unmarshal([]byte(raw), &task); err != nil {
		return errors.NewQueueError("reap", err)
	}

	task.Attempts++
	task.LastError = "visibility timeout exceeded"

	updated, err := json.Marshal(&task)
	if err != nil {
		return errors.NewQueueError("reap", err)
	}

	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, q.key("processing"), id)
	pipe.HSet(ctx, q.key("tasks"), id, updated)

	if task.Attempts >= q.opts.MaxAttempts {
		pipe.LPush(ctx, q.key("dead"), id)
		pipe.SRem(ctx, q.key("inflight"), task.DedupKey)
	} else {
		pipe.LPush(ctx, q.key("pending"), id)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return errors.NewQueueError("reap", err)
	}

	q.logger.WithFields(map[string]interface{}{
		"task_id":  id,
		"attempts": task.Attempts,
	}).Warn("Reclaimed task with expired visibility deadline")

	return nil
}

// Counts reports the queue depth per state
func (q *RedisQueue) Counts(ctx context.Context) (Counts, error) {
	pipe := q.client.Pipeline()
	pending := pipe.LLen(ctx, q.key("pending"))
	processing := pipe.ZCard(ctx, q.key("processing"))
	delayed := pipe.ZCard(ctx, q.key("delayed"))
	dead := pipe.LLen(ctx, q.key("dead"))

	if _, err := pipe.Exec(ctx); err != nil {
		return Counts{}, errors.NewQueueError("counts", err)
	}

	return Counts{
		Pending:    pending.Val(),
		Processing: processing.Val(),
		Delayed:    delayed.Val(),
		Dead:       dead.Val(),
	}, nil
}

func (q *RedisQueue) key(suffix string) string {
	return fmt.Sprintf("queue:%s:%s", q.opts.Name, suffix)
}
