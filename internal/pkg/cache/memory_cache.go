package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// MemoryCache 是进程内实现，用于未启用 Redis 的单实例部署和测试
type MemoryCache struct {
	mu    sync.Mutex
	items map[string]memoryItem
	now   func() time.Time
}

type memoryItem struct {
	data      []byte
	expiresAt time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{items: make(map[string]memoryItem), now: time.Now}
}

func (m *MemoryCache) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	item := memoryItem{data: data}
	if expiration > 0 {
		item.expiresAt = m.now().Add(expiration)
	}
	m.mu.Lock()
	m.items[key] = item
	m.mu.Unlock()
	return nil
}

func (m *MemoryCache) Get(ctx context.Context, key string, target any) error {
	m.mu.Lock()
	item, ok := m.items[key]
	if ok && !item.expiresAt.IsZero() && m.now().After(item.expiresAt) {
		delete(m.items, key)
		ok = false
	}
	m.mu.Unlock()
	if !ok {
		return ErrCacheMiss
	}
	return json.Unmarshal(item.data, target)
}

func (m *MemoryCache) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	for _, k := range keys {
		delete(m.items, k)
	}
	m.mu.Unlock()
	return nil
}
