package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ============================================================================
// 分布式锁
// ============================================================================
//
// 同一个幂等键的两个请求可能落在不同实例上，进程内的锁挡不住，
// 所以处理中的请求用 Redis 锁互斥：
//
//   请求1: 获取锁成功 -> 执行业务 -> 保存响应 -> 释放锁
//   请求2: 获取锁失败 -> 直接返回 409，不等待
//
// 加锁：SET key value NX EX timeout
//   - value 是持有者标识，释放时校验，避免锁过期后删掉别人的锁
//
// 释放：Lua 脚本里先 GET 比较再 DEL，保证原子性
//
// ============================================================================

const unlockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`

// DistributedLock 分布式锁
type DistributedLock struct {
	client     *redis.Client
	key        string
	value      string // 持有者标识
	expiration time.Duration
}

func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock 非阻塞获取锁
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
}

// Unlock 只删除自己持有的锁
func (l *DistributedLock) Unlock(ctx context.Context) error {
	return l.client.Eval(ctx, unlockScript, []string{l.key}, l.value).Err()
}

// NewIdempotencyLock 幂等键处理中的互斥锁
//
// 过期时间要长于一次请求的最长处理时间，进程崩溃时锁自动释放
func NewIdempotencyLock(client *redis.Client, idempotencyKey, owner string, expiration time.Duration) *DistributedLock {
	key := fmt.Sprintf("idempotency:lock:%s", idempotencyKey)
	return NewDistributedLock(client, key, owner, expiration)
}
