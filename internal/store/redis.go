package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore 使用 Redis list 保存交易历史和收益序列
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore 与总线共用同一个客户端，Close 不会关闭客户端
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Append(ctx context.Context, key, value string) error {
	if err := s.client.RPush(ctx, key, value).Err(); err != nil {
		return fmt.Errorf("%w: rpush %s: %v", ErrStore, key, err)
	}
	return nil
}

// AppendTrimmed 在同一个 MULTI/EXEC 中执行 RPUSH 和 LTRIM
func (s *RedisStore) AppendTrimmed(ctx context.Context, key, value string, keep int) error {
	if keep <= 0 {
		return s.Append(ctx, key, value)
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, value)
		pipe.LTrim(ctx, key, int64(-keep), -1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: append %s: %v", ErrStore, key, err)
	}
	return nil
}

func (s *RedisStore) Range(ctx context.Context, key string, start, stop int) ([]string, error) {
	values, err := s.client.LRange(ctx, key, int64(start), int64(stop)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: lrange %s: %v", ErrStore, key, err)
	}
	return values, nil
}

func (s *RedisStore) Close() error { return nil }
