package repository

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ricirt/job-harvester/internal/domain"
	"github.com/ricirt/job-harvester/internal/queue"
)

// failedScoreOffset keeps items that have failed behind every fresh item:
// fresh scores are unix microseconds, failed ones are offset + unix micros.
// Both stay below 2^53 so float64 scores are exact.
//
// Enqueue scores a call's urls now+0, now+1, ... so order within one call is
// kept. Across calls order is only approximate: a large call made just before
// another can interleave with it.
const failedScoreOffset = 4e15

// RedisQueue keeps work items in a sorted set (member = url, score = order)
// plus hashes for enqueue time, failure counts and last errors. Multi-key
// changes run in MULTI/EXEC or Lua so they are applied atomically.
type RedisQueue struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisQueue returns a queue whose keys all start with prefix.
func NewRedisQueue(rdb *redis.Client, prefix string) *RedisQueue {
	if prefix == "" {
		prefix = "harvest"
	}
	return &RedisQueue{rdb: rdb, prefix: prefix}
}

// Key helpers
func (r *RedisQueue) queueKey() string    { return r.prefix + ":work_items" }
func (r *RedisQueue) enqueuedKey() string { return r.prefix + ":enqueued_at" }
func (r *RedisQueue) failuresKey() string { return r.prefix + ":failures" }
func (r *RedisQueue) errorsKey() string   { return r.prefix + ":last_error" }
func (r *RedisQueue) deadKey() string     { return r.prefix + ":dead_letters" }

func (r *RedisQueue) Enqueue(ctx context.Context, urls []string) (int, error) {
	urls = queue.Dedupe(urls)
	if len(urls) == 0 {
		return 0, nil
	}
	now := time.Now().UnixMicro()
	members := make([]redis.Z, len(urls))
	for i, u := range urls {
		members[i] = redis.Z{Score: float64(now + int64(i)), Member: u}
	}

	var added *redis.IntCmd
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		added = pipe.ZAddNX(ctx, r.queueKey(), members...)
		for _, u := range urls {
			pipe.HSetNX(ctx, r.enqueuedKey(), u, now)
		}
		return nil
	})
	if err != nil {
		return 0, domain.StorageFailure("zadd work items", err)
	}
	return int(added.Val()), nil
}

func (r *RedisQueue) Dequeue(ctx context.Context, limit int) ([]domain.WorkItem, error) {
	if limit <= 0 {
		return nil, domain.ErrInvalidLimit
	}
	members, err := r.rdb.ZRange(ctx, r.queueKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, domain.StorageFailure("zrange work items", err)
	}
	if len(members) == 0 {
		return []domain.WorkItem{}, nil
	}

	var enqueued, failures *redis.SliceCmd
	_, err = r.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		enqueued = pipe.HMGet(ctx, r.enqueuedKey(), members...)
		failures = pipe.HMGet(ctx, r.failuresKey(), members...)
		return nil
	})
	if err != nil {
		return nil, domain.StorageFailure("hmget work item state", err)
	}

	items := make([]domain.WorkItem, len(members))
	for i, u := range members {
		items[i] = domain.WorkItem{URL: u}
		if n, ok := asInt64(enqueued.Val()[i]); ok {
			items[i].EnqueuedAt = time.UnixMicro(n).UTC()
		}
		if n, ok := asInt64(failures.Val()[i]); ok {
			items[i].Failures = int(n)
		}
	}
	return items, nil
}

func (r *RedisQueue) Remove(ctx context.Context, urls []string) error {
	urls = queue.Dedupe(urls)
	if len(urls) == 0 {
		return nil
	}
	members := make([]any, len(urls))
	for i, u := range urls {
		members[i] = u
	}
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, r.queueKey(), members...)
		pipe.HDel(ctx, r.enqueuedKey(), urls...)
		pipe.HDel(ctx, r.failuresKey(), urls...)
		pipe.HDel(ctx, r.errorsKey(), urls...)
		return nil
	})
	if err != nil {
		return domain.StorageFailure("zrem work items", err)
	}
	return nil
}

var markFailedScript = redis.NewScript(`
if redis.call('ZSCORE', KEYS[1], ARGV[1]) == false then
	return 0
end
redis.call('ZADD', KEYS[1], 'XX', ARGV[3], ARGV[1])
redis.call('HSET', KEYS[3], ARGV[1], ARGV[2])
return redis.call('HINCRBY', KEYS[2], ARGV[1], 1)
`)

func (r *RedisQueue) MarkFailed(ctx context.Context, url, reason string) (int, error) {
	score := strconv.FormatFloat(failedScoreOffset+float64(time.Now().UnixMicro()), 'f', 0, 64)
	n, err := markFailedScript.Run(ctx, r.rdb,
		[]string{r.queueKey(), r.failuresKey(), r.errorsKey()},
		url, reason, score,
	).Int()
	if err != nil {
		return 0, domain.StorageFailure("mark work item failed", err)
	}
	return n, nil
}

var deadLetterScript = redis.NewScript(`
if redis.call('ZREM', KEYS[1], ARGV[1]) == 0 then
	return 0
end
redis.call('HSET', KEYS[4], ARGV[1], ARGV[2])
redis.call('HDEL', KEYS[2], ARGV[1])
redis.call('HDEL', KEYS[3], ARGV[1])
redis.call('HDEL', KEYS[5], ARGV[1])
return 1
`)

func (r *RedisQueue) DeadLetter(ctx context.Context, url, reason string) error {
	err := deadLetterScript.Run(ctx, r.rdb,
		[]string{r.queueKey(), r.failuresKey(), r.errorsKey(), r.deadKey(), r.enqueuedKey()},
		url, reason,
	).Err()
	if err != nil {
		return domain.StorageFailure("dead-letter work item", err)
	}
	return nil
}

func (r *RedisQueue) Len(ctx context.Context) (int, error) {
	n, err := r.rdb.ZCard(ctx, r.queueKey()).Result()
	if err != nil {
		return 0, domain.StorageFailure("zcard work items", err)
	}
	return int(n), nil
}

func asInt64(v any) (int64, bool) {
	s, ok := v.(string)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

var (
	_ queue.Queue          = (*RedisQueue)(nil)
	_ queue.FailureTracker = (*RedisQueue)(nil)
	_ queue.Counter        = (*RedisQueue)(nil)
)
