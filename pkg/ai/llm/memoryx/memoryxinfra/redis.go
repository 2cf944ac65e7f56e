package memoryxinfra

import (
	"context"
	"fmt"
	"time"

	"github.com/break1145/GraphDo/pkg/ai/llm"
	"github.com/break1145/GraphDo/pkg/ai/llm/memoryx"
	"github.com/break1145/GraphDo/pkg/errx"
	"github.com/break1145/GraphDo/pkg/kernel"
	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// RedisLedger stores each thread as a Redis list of JSON messages
type RedisLedger struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisLedger creates a ledger. ttl is refreshed on every append; zero disables expiry.
func NewRedisLedger(client *redis.Client, ttl time.Duration) *RedisLedger {
	return &RedisLedger{
		client: client,
		ttl:    ttl,
	}
}

func (l *RedisLedger) key(thread kernel.ThreadID) string {
	return fmt.Sprintf("ledger:%s", thread.String())
}

func (l *RedisLedger) Messages(ctx context.Context, thread kernel.ThreadID) ([]llm.Message, error) {
	raw, err := l.client.LRange(ctx, l.key(thread), 0, -1).Result()
	if err != nil {
		return nil, memoryx.ErrUnavailable().WithError(err).WithDetail("thread_id", thread.String())
	}

	msgs := make([]llm.Message, len(raw))
	for i, r := range raw {
		if err := json.Unmarshal([]byte(r), &msgs[i]); err != nil {
			return nil, errx.Wrap(err, "failed to decode ledger message", errx.TypeInternal).
				WithDetail("thread_id", thread.String()).
				WithDetail("index", i)
		}
	}
	return msgs, nil
}

func (l *RedisLedger) Append(ctx context.Context, thread kernel.ThreadID, msgs ...llm.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	values := make([]any, len(msgs))
	for i, m := range msgs {
		b, err := json.Marshal(m)
		if err != nil {
			return errx.Wrap(err, "failed to encode ledger message", errx.TypeInternal)
		}
		values[i] = b
	}

	key := l.key(thread)
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, values...)
		if l.ttl > 0 {
			pipe.Expire(ctx, key, l.ttl)
		}
		return nil
	})
	if err != nil {
		return memoryx.ErrUnavailable().WithError(err).WithDetail("thread_id", thread.String())
	}
	return nil
}

func (l *RedisLedger) Checkpoint(ctx context.Context, thread kernel.ThreadID) (memoryx.Checkpoint, error) {
	n, err := l.client.LLen(ctx, l.key(thread)).Result()
	if err != nil {
		return memoryx.Checkpoint{}, memoryx.ErrUnavailable().WithError(err).WithDetail("thread_id", thread.String())
	}
	return memoryx.Checkpoint{Length: int(n)}, nil
}

func (l *RedisLedger) Restore(ctx context.Context, thread kernel.ThreadID, cp memoryx.Checkpoint) error {
	key := l.key(thread)
	n, err := l.client.LLen(ctx, key).Result()
	if err != nil {
		return memoryx.ErrUnavailable().WithError(err).WithDetail("thread_id", thread.String())
	}
	if cp.Length < 0 || int64(cp.Length) > n {
		return memoryx.ErrInvalidCheckpoint().
			WithDetail("thread_id", thread.String()).
			WithDetail("checkpoint", cp.Length).
			WithDetail("length", n)
	}

	if cp.Length == 0 {
		err = l.client.Del(ctx, key).Err()
	} else {
		err = l.client.LTrim(ctx, key, 0, int64(cp.Length-1)).Err()
	}
	if err != nil {
		return memoryx.ErrUnavailable().WithError(err).WithDetail("thread_id", thread.String())
	}
	return nil
}

func (l *RedisLedger) Clear(ctx context.Context, thread kernel.ThreadID) error {
	if err := l.client.Del(ctx, l.key(thread)).Err(); err != nil {
		return memoryx.ErrUnavailable().WithError(err).WithDetail("thread_id", thread.String())
	}
	return nil
}

func (l *RedisLedger) Ping(ctx context.Context) error {
	if err := l.client.Ping(ctx).Err(); err != nil {
		return memoryx.ErrUnavailable().WithError(err)
	}
	return nil
}
