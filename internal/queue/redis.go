package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "rebit:queue:"

// RedisQueue stores each queue as a Redis list: LPUSH to enqueue, BRPOP to
// dequeue, so delivery is FIFO per queue.
type RedisQueue struct {
	client *redis.Client
}

func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client}
}

func (q *RedisQueue) key(name string) string {
	return redisKeyPrefix + name
}

func (q *RedisQueue) Enqueue(ctx context.Context, queue string, msg Message) error {
	name, err := validName(queue)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if err := q.client.LPush(ctx, q.key(name), raw).Err(); err != nil {
		return fmt.Errorf("lpush %s: %w", name, err)
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context, queue string, wait time.Duration) (Message, bool, error) {
	name, err := validName(queue)
	if err != nil {
		return Message{}, false, err
	}
	if wait <= 0 {
		wait = time.Second
	}
	res, err := q.client.BRPop(ctx, wait, q.key(name)).Result()
	if errors.Is(err, redis.Nil) {
		return Message{}, false, nil
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Message{}, false, ctxErr
		}
		return Message{}, false, fmt.Errorf("brpop %s: %w", name, err)
	}
	// BRPOP replies [key, value].
	if len(res) != 2 {
		return Message{}, false, fmt.Errorf("%w: brpop reply of %d items", ErrMalformedRecord, len(res))
	}
	var msg Message
	if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
		return Message{}, false, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	return msg, true, nil
}

func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}
