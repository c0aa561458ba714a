package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"merchantpay/internal/infrastructure/lock"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const redisKeyPrefix = "idempotency:"

// RedisStore 多实例共享的存储，处理中的键用分布式锁互斥
type RedisStore struct {
	client  *redis.Client
	ttl     time.Duration
	lockTTL time.Duration
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(client *redis.Client, ttl, lockTTL time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if lockTTL <= 0 {
		lockTTL = 30 * time.Second
	}
	return &RedisStore{client: client, ttl: ttl, lockTTL: lockTTL}
}

func (s *RedisStore) Lookup(ctx context.Context, key string) (*CachedResponse, error) {
	raw, err := s.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("读取幂等记录失败: %w", err)
	}

	var resp CachedResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("解析幂等记录失败: %w", err)
	}
	return &resp, nil
}

func (s *RedisStore) Store(ctx context.Context, key string, resp *CachedResponse) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("序列化幂等记录失败: %w", err)
	}
	if err := s.client.Set(ctx, redisKeyPrefix+key, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("保存幂等记录失败: %w", err)
	}
	return nil
}

func (s *RedisStore) Acquire(ctx context.Context, key string) (func(), error) {
	l := lock.NewIdempotencyLock(s.client, key, uuid.NewString(), s.lockTTL)
	ok, err := l.TryLock(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取幂等锁失败: %w", err)
	}
	if !ok {
		return nil, ErrInFlight
	}

	return func() {
		// 请求 ctx 可能已经取消，释放锁用独立的超时
		unlockCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := l.Unlock(unlockCtx); err != nil {
			log.Printf("[Idempotency] 释放幂等锁失败: key=%s, err=%v", key, err)
		}
	}, nil
}
