// Package cachestore 提供元数据缓存的存储后端：进程内 (go-cache) 与持久化 (SQLite)。
// file: internal/adapter/cachestore/memory.go
package cachestore

import (
	"PluginLens/internal/core/domain"
	"PluginLens/internal/core/port"
	"bytes"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// 断言 *MemoryStore 实现 port.CacheBackend 接口，编译期校验
var _ port.CacheBackend = (*MemoryStore)(nil)

const keySep = "\x00"

// MemoryStore 是基于 go-cache 的进程内缓存后端。
// 条目在 go-cache 中保留 TTL + retention 的时长，过期但仍在保留期内的条目可以作为降级数据读取。
type MemoryStore struct {
	items     *gocache.Cache
	retention time.Duration
}

// NewMemoryStore 创建进程内缓存后端。
// retention: 条目过期后继续保留的时长（供降级读取）。
// cleanupInterval: go-cache 后台清理的周期。
func NewMemoryStore(retention, cleanupInterval time.Duration) *MemoryStore {
	if retention < 0 {
		retention = 0
	}
	if cleanupInterval <= 0 {
		cleanupInterval = 10 * time.Minute
	}
	return &MemoryStore{
		items:     gocache.New(gocache.NoExpiration, cleanupInterval),
		retention: retention,
	}
}

// Name 实现 port.CacheBackend
func (m *MemoryStore) Name() string { return "memory" }

// Load 读取条目，不判断新鲜度
func (m *MemoryStore) Load(kind domain.CacheKind, key string) (domain.CacheEntry, bool, error) {
	v, ok := m.items.Get(compositeKey(kind, key))
	if !ok {
		return domain.CacheEntry{}, false, nil
	}
	entry, ok := v.(domain.CacheEntry)
	if !ok {
		return domain.CacheEntry{}, false, nil
	}
	entry.Value = bytes.Clone(entry.Value)
	return entry, true, nil
}

// Store 写入条目，同一 (kind, key) 覆盖旧值
func (m *MemoryStore) Store(entry domain.CacheEntry) error {
	entry.Value = bytes.Clone(entry.Value)
	keep := entry.TTL() + m.retention
	if keep <= 0 {
		// go-cache 中 0 表示默认过期时间，这里用最小正值代替
		keep = time.Nanosecond
	}
	m.items.Set(compositeKey(entry.Kind, entry.Key), entry, keep)
	return nil
}

// Delete 删除所有命中选择器的条目，返回删除数量
func (m *MemoryStore) Delete(sel domain.CacheSelector) (int, error) {
	removed := 0
	for ck := range m.items.Items() {
		kind, key, ok := splitKey(ck)
		if !ok || !sel.Matches(kind, key) {
			continue
		}
		m.items.Delete(ck)
		removed++
	}
	return removed, nil
}

// Len 当前保存的条目数（含已过期但仍在保留期内的）
func (m *MemoryStore) Len() int {
	return m.items.ItemCount()
}

func compositeKey(kind domain.CacheKind, key string) string {
	return string(kind) + keySep + key
}

func splitKey(ck string) (domain.CacheKind, string, bool) {
	kind, key, ok := strings.Cut(ck, keySep)
	if !ok {
		return "", "", false
	}
	return domain.CacheKind(kind), key, true
}
