package setup

import (
	"context"
	"fmt"
	"time"

	"github.com/3Eeeecho/go-drive/internal/config"
	"github.com/3Eeeecho/go-drive/internal/pkg/cache"
	"github.com/3Eeeecho/go-drive/internal/pkg/logger"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

func InitRedis(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     10,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		DialTimeout:  5 * time.Second,
	})

	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	logger.Info("Connected to Redis successfully!")
	return client, nil
}

// InitListingCache 未启用 Redis 时退回进程内缓存
func InitListingCache(ctx context.Context, cfg *config.RedisConfig) (cache.Cache, *redis.Client, error) {
	if !cfg.Enabled {
		logger.Info("Redis disabled, using in-memory listing cache")
		return cache.NewMemoryCache(), nil, nil
	}
	client, err := InitRedis(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return cache.NewRedisCache(client), client, nil
}

func CloseRedis(client *redis.Client) {
	if client == nil {
		return
	}
	if err := client.Close(); err != nil {
		logger.Error("Error closing Redis connection", zap.Error(err))
	} else {
		logger.Info("Redis connection closed.")
	}
}
