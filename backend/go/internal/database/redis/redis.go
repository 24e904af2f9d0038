package redis

import (
	"context"
	"fmt"

	"DocQA/backend/go/internal/config"
	"DocQA/backend/go/pkg/logger"

	"github.com/go-redis/redis/v8"
)

// NewClient 创建 Redis 客户端并用 Ping 检查连接。由调用方负责 Close。
func NewClient(ctx context.Context, cfg *config.RedisConfig, log *logger.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("无法连接到 Redis %s: %w", cfg.Address, err)
	}
	log.With("address", cfg.Address).Info("✅ 成功连接到 Redis!")
	return rdb, nil
}
