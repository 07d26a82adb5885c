package setup

import (
	"context"
	"fmt"
	"time"

	"github.com/3Eeeecho/go-drive/internal/config"
	"github.com/3Eeeecho/go-drive/internal/pkg/logger"
	"github.com/3Eeeecho/go-drive/internal/pkg/storage"
	"go.uber.org/zap"
)

// InitStorage 按 storage.type 创建 blob 后端并确保存储桶存在
func InitStorage(cfg *config.Config) (storage.BlobStore, error) {
	store, err := storage.NewBlobStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("初始化存储服务失败: %w", err)
	}
	logger.Info("存储服务已选择并初始化", zap.String("type", cfg.Storage.Type))

	if bi, ok := store.(storage.BucketInitializer); ok {
		// 为外部调用使用带超时的上下文
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := bi.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("检查或创建存储桶失败: %w", err)
		}
	}
	return store, nil
}
