package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"agentpay/internal/core/ports"

	goredis "github.com/redis/go-redis/v9"
)

// RedisQueue is a Redis list fed with LPUSH and drained with BRPOP.
type RedisQueue struct {
	client *goredis.Client
	key    string
	wait   time.Duration
}

// NewRedisQueue uses an already connected client. name becomes the list key.
func NewRedisQueue(client *goredis.Client, name string, blockWait time.Duration) *RedisQueue {
	if name == "" {
		name = "agentpay.payments"
	}
	if blockWait <= 0 {
		blockWait = 5 * time.Second
	}
	return &RedisQueue{client: client, key: "agentpay:queue:" + name, wait: blockWait}
}

// Publish pushes paymentID onto the list.
func (q *RedisQueue) Publish(ctx context.Context, paymentID string) error {
	if err := q.client.LPush(ctx, q.key, paymentID).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Consume pops IDs with BRPOP until ctx is done or a worker hits a
// connection error.
func (q *RedisQueue) Consume(ctx context.Context, workerCount int, handler ports.PaymentHandler) error {
	if workerCount <= 0 {
		workerCount = 1
	}
	errCh := make(chan error, workerCount)
	for i := 0; i < workerCount; i++ {
		go func() {
			for {
				if ctx.Err() != nil {
					errCh <- ctx.Err()
					return
				}
				values, err := q.client.BRPop(ctx, q.wait, q.key).Result()
				if err != nil {
					if errors.Is(err, goredis.Nil) {
						continue
					}
					if ctx.Err() != nil {
						errCh <- ctx.Err()
						return
					}
					errCh <- fmt.Errorf("redis consume: %w", err)
					return
				}
				if len(values) != 2 {
					continue
				}
				_ = handler(ctx, values[1])
			}
		}()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Close is a no-op; the client belongs to the caller.
func (q *RedisQueue) Close() error {
	return nil
}
