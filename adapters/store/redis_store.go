package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clearmesh/agentgate/ports"
)

// RedisStore is the durable implementation of the Store port. Single-key
// writes rely on Redis's own atomicity; Batch uses a MULTI/EXEC pipeline so
// multi-key writes are all-or-nothing. Indexes are sorted sets scored by
// insertion time.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// DialRedis parses a redis:// URL, connects, and verifies the connection.
func DialRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get: %w", err)
	}
	return value, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Del(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis del: %w", err)
	}
	return n > 0, nil
}

func (s *RedisStore) Batch(ctx context.Context, ops []ports.WriteOp) error {
	pipe := s.client.TxPipeline()
	for _, op := range ops {
		switch op.Kind {
		case ports.WriteSet:
			pipe.Set(ctx, op.Key, op.Value, op.TTL)
		case ports.WriteIndexAdd:
			pipe.ZAdd(ctx, op.Index, redis.Z{Score: op.Score, Member: op.Member})
			if op.TTL > 0 {
				pipe.Expire(ctx, op.Index, op.TTL)
			}
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis batch: %w", err)
	}
	return nil
}

func (s *RedisStore) IndexAdd(ctx context.Context, index, member string, score float64, ttl time.Duration) error {
	return s.Batch(ctx, []ports.WriteOp{{
		Kind:   ports.WriteIndexAdd,
		Index:  index,
		Member: member,
		Score:  score,
		TTL:    ttl,
	}})
}

func (s *RedisStore) IndexRange(ctx context.Context, index string) ([]string, error) {
	members, err := s.client.ZRevRange(ctx, index, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrevrange: %w", err)
	}
	return members, nil
}

func (s *RedisStore) IndexRemove(ctx context.Context, index string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	if err := s.client.ZRem(ctx, index, args...).Err(); err != nil {
		return fmt.Errorf("redis zrem: %w", err)
	}
	return nil
}

func (s *RedisStore) IndexTrimBelow(ctx context.Context, index string, min float64) (int, error) {
	n, err := s.client.ZRemRangeByScore(ctx, index, "-inf", fmt.Sprintf("(%f", min)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis zremrangebyscore: %w", err)
	}
	return int(n), nil
}

func (s *RedisStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}
	return keys, nil
}

// Sweep is a no-op: Redis expires keys natively.
func (s *RedisStore) Sweep(ctx context.Context) (int, error) {
	return 0, nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
