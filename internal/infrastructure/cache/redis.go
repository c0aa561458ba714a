package cache

import (
	"context"
	"fmt"
	"log"
	"time"

	"merchantpay/internal/config"

	"github.com/go-redis/redis/v8"
)

// NewRedisClient 创建客户端并 Ping 一次
func NewRedisClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return client, nil
}

func InitRedis(cfg *config.RedisConfig) *redis.Client {
	client, err := NewRedisClient(context.Background(), cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}
	log.Println("Redis 连接成功")
	return client
}
