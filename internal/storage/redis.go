package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisStore Redis 键值存储，用于跨进程共享签名/公钥缓存
type RedisStore struct {
	client *redis.Client
}

// NewRedisClient 创建并探活 Redis 客户端
func NewRedisClient(endpoint string) (*redis.Client, error) {
	if endpoint == "" {
		return nil, errors.New("redis endpoint is not configured")
	}

	client := redis.NewClient(&redis.Options{
		Addr: endpoint,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "failed to ping redis")
	}

	return client, nil
}

// NewRedisStore 创建 Redis 键值存储
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Get 读取键值；键不存在时返回 (nil, nil)
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get key %s from redis", key)
	}
	return value, nil
}

// Set 写入键值（不设 TTL，过期由上层的有效期校验负责）
func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, key, value, 0).Err(); err != nil {
		return errors.Wrapf(err, "failed to set key %s in redis", key)
	}
	return nil
}
