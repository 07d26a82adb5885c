package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrCacheMiss = errors.New("缓存未命中,key不存在")

// Cache 是目录列表缓存使用的最小接口
type Cache interface {
	// Set 在缓存中设置一个值，value 需要能被 JSON 序列化
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	// Get 把缓存值反序列化到 target，未命中返回 ErrCacheMiss
	Get(ctx context.Context, key string, target any) error
	// Del 删除一个或多个 key
	Del(ctx context.Context, keys ...string) error
}

// ListingKey 是目录直接子节点列表的缓存 key
func ListingKey(folderID string, includeTrashed bool) string {
	if includeTrashed {
		return fmt.Sprintf("drive:listing:%s:all", folderID)
	}
	return fmt.Sprintf("drive:listing:%s:active", folderID)
}

// ListingKeys 返回某个目录所有列表变体的 key，失效时一起删除
func ListingKeys(folderIDs ...string) []string {
	keys := make([]string, 0, len(folderIDs)*2)
	for _, id := range folderIDs {
		if id == "" {
			continue
		}
		keys = append(keys, ListingKey(id, false), ListingKey(id, true))
	}
	return keys
}
