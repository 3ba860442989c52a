package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"social-orchestrator/internal/domain"
	"social-orchestrator/internal/infra/metrics"
)

// RedisDispatchQueue реализует очередь задач публикации на базе Redis lists.
// Задача удаляется из списка при чтении, поэтому Nack возвращает её обратно в голову очереди.
type RedisDispatchQueue struct {
	client *redis.Client
	key    string
}

// NewRedisDispatchQueue создаёт очередь по указанному ключу.
func NewRedisDispatchQueue(client *redis.Client, key string) *RedisDispatchQueue {
	return &RedisDispatchQueue{client: client, key: key}
}

// Enqueue публикует задачу в очередь.
func (q *RedisDispatchQueue) Enqueue(ctx context.Context, job domain.DispatchJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	start := time.Now()
	err = q.client.LPush(ctx, q.key, payload).Err()
	metrics.ObserveNetworkRequest("redis", "lpush", q.key, start, err)
	if err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	return nil
}

// Receive блокирующе читает задачу из очереди.
func (q *RedisDispatchQueue) Receive(ctx context.Context) (domain.DispatchJob, domain.DispatchAckFunc, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.DispatchJob{}, nil, err
		}

		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return domain.DispatchJob{}, nil, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return domain.DispatchJob{}, nil, err
		}
		if len(res) != 2 {
			return domain.DispatchJob{}, nil, errors.New("redis queue: unexpected response")
		}
		raw := res[1]
		var job domain.DispatchJob
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			return domain.DispatchJob{}, nil, fmt.Errorf("decode job: %w", err)
		}
		ack := func(success bool) error {
			if success {
				return nil
			}
			return q.client.RPush(context.Background(), q.key, raw).Err()
		}
		return job, ack, nil
	}
}
