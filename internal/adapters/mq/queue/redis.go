package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/frameit/pkg/logger"
	"github.com/okian/frameit/pkg/metrics"
)

const defaultRedisKey = "frameit:xp-events"

// pollInterval bounds how long a blocking pop waits before rechecking shutdown.
const pollInterval = time.Second

// pushIfRoom pushes ARGV[2] when the list is shorter than ARGV[1].
// Returns the new length, or -1 when the list is full.
var pushIfRoom = redis.NewScript(`
if redis.call("LLEN", KEYS[1]) >= tonumber(ARGV[1]) then
	return -1
end
return redis.call("LPUSH", KEYS[1], ARGV[2])
`)

// RedisQueue implements Queue on a Redis list. Producers LPUSH JSON
// payloads, consumers BRPOP them, so the list is FIFO.
type RedisQueue struct {
	rdb      redis.Cmdable
	key      string
	capacity int
	log      logger.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewRedisQueue creates a queue on the given client. The client is owned by
// the caller and is not closed by Close.
func NewRedisQueue(rdb redis.Cmdable, opts ...RedisOption) *RedisQueue {
	q := &RedisQueue{
		rdb:      rdb,
		key:      defaultRedisKey,
		capacity: defaultQueueCapacity,
		log:      logger.Get().Named("redis-queue"),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	metrics.UpdateQueueCapacity(q.capacity)
	return q
}

// Enqueue pushes e when the list has room.
func (q *RedisQueue) Enqueue(ctx context.Context, e Event) bool { //nolint:gocritic // hugeParam: matches Queue
	if q.IsClosed() {
		enqueueFailed("closed")
		return false
	}

	payload, err := json.Marshal(e)
	if err != nil {
		enqueueFailed("encode")
		return false
	}

	n, err := pushIfRoom.Run(ctx, q.rdb, []string{q.key}, q.capacity, payload).Int64()
	if err != nil {
		q.log.Error(ctx, "redis enqueue failed", logger.String("key", q.key), logger.Error(err))
		enqueueFailed("redis")
		return false
	}
	if n < 0 {
		enqueueFailed("capacity_exceeded")
		return false
	}

	metrics.RecordQueueEnqueue()
	observeSize(int(n), q.capacity)
	return true
}

// Dequeue starts a BRPOP loop that feeds the returned channel until ctx is
// cancelled or the queue is closed.
func (q *RedisQueue) Dequeue(ctx context.Context) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case <-q.done:
				return
			default:
			}

			res, err := q.rdb.BRPop(ctx, pollInterval, q.key).Result()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					continue
				}
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return
				}
				q.log.Error(ctx, "redis dequeue failed", logger.String("key", q.key), logger.Error(err))
				metrics.RecordErrorByComponent("queue", "redis")
				if !sleepCtx(ctx, q.done, pollInterval) {
					return
				}
				continue
			}

			// BRPOP replies with [key, value].
			if len(res) < 2 {
				continue
			}
			var e Event
			if err := json.Unmarshal([]byte(res[1]), &e); err != nil {
				q.log.Warn(ctx, "dropping undecodable event", logger.Error(err))
				metrics.RecordErrorByComponent("queue", "decode")
				continue
			}

			select {
			case out <- e:
				metrics.RecordQueueDequeue()
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len returns the list length, or 0 when Redis is unreachable.
func (q *RedisQueue) Len(ctx context.Context) int {
	n, err := q.rdb.LLen(ctx, q.key).Result()
	if err != nil {
		q.log.Warn(ctx, "redis length failed", logger.Error(err))
		return 0
	}
	observeSize(int(n), q.capacity)
	return int(n)
}

// Close stops consumers. Queued events stay in Redis.
func (q *RedisQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	close(q.done)
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *RedisQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

func sleepCtx(ctx context.Context, done <-chan struct{}, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-done:
		return false
	case <-t.C:
		return true
	}
}
