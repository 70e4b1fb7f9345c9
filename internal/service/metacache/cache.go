// Package metacache 是插件元数据、评分与搜索结果的分级 TTL 缓存。
// file: internal/service/metacache/cache.go
package metacache

import (
	"PluginLens/internal/core/domain"
	"PluginLens/internal/core/port"
	"PluginLens/internal/observe"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
)

// TTLFunc 返回某一类缓存当前的有效期，通常来自评分配置快照
type TTLFunc func(kind domain.CacheKind) time.Duration

type kindCounters struct {
	hits, misses, staleHits, writes atomic.Uint64
}

// Cache 在任意 port.CacheBackend 之上实现“读时判断过期”的缓存语义。
// 后端出错时一律按未命中处理，缓存永远不是正确性的前提。
type Cache struct {
	backend port.CacheBackend
	ttl     TTLFunc
	now     func() time.Time
	stats   map[domain.CacheKind]*kindCounters
	logger  *slog.Logger
}

// Option 构造选项
type Option func(*Cache)

// WithClock 替换时钟，测试用
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithTTL 指定 TTL 来源；未指定时使用各类别的默认 TTL
func WithTTL(fn TTLFunc) Option {
	return func(c *Cache) { c.ttl = fn }
}

// New 创建缓存
func New(backend port.CacheBackend, opts ...Option) *Cache {
	c := &Cache{
		backend: backend,
		ttl:     func(kind domain.CacheKind) time.Duration { return kind.DefaultTTL() },
		now:     time.Now,
		stats:   make(map[domain.CacheKind]*kindCounters, 3),
		logger:  observe.Component("metacache"),
	}
	for _, k := range domain.AllCacheKinds() {
		c.stats[k] = &kindCounters{}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get 只返回仍然有效的值 (now < storedAt + ttl)
func (c *Cache) Get(key string, kind domain.CacheKind) ([]byte, bool) {
	entry, ok := c.load(kind, key)
	if !ok {
		c.record(kind, "miss")
		return nil, false
	}
	if !entry.FreshAt(c.now()) {
		c.record(kind, "miss")
		return nil, false
	}
	c.record(kind, "hit")
	return entry.Value, true
}

// GetStale 忽略过期时间，返回后端仍保留的值以及它是否已过期。
// 只用于上游不可用时的降级展示。
func (c *Cache) GetStale(key string, kind domain.CacheKind) (value []byte, expired bool, ok bool) {
	entry, found := c.load(kind, key)
	if !found {
		return nil, false, false
	}
	expired = !entry.FreshAt(c.now())
	if expired {
		c.record(kind, "stale")
	}
	return entry.Value, expired, true
}

// Set 使用该类别当前的 TTL 写入
func (c *Cache) Set(key string, kind domain.CacheKind, value []byte) {
	c.SetWithTTL(key, kind, value, c.ttl(kind))
}

// SetWithTTL 覆盖写入，storedAt 取当前时间
func (c *Cache) SetWithTTL(key string, kind domain.CacheKind, value []byte, ttl time.Duration) {
	if ttl < 0 {
		ttl = 0
	}
	entry := domain.CacheEntry{
		Key:        key,
		Kind:       kind,
		Value:      value,
		StoredAt:   c.now(),
		TTLSeconds: int64(ttl / time.Second),
	}
	if err := c.backend.Store(entry); err != nil {
		c.logger.Warn("写入缓存失败，已忽略", "kind", kind, "key", key, "error", err)
		return
	}
	c.counters(kind).writes.Add(1)
	observe.CacheWrites.WithLabelValues(string(kind)).Inc()
}

// Invalidate 接受类别名或 key 前缀；空字符串清空全部缓存
func (c *Cache) Invalidate(target string) int {
	target = strings.TrimSpace(target)
	if target == "" {
		return c.remove(domain.CacheSelector{})
	}
	if kind, ok := domain.ParseCacheKind(target); ok {
		return c.InvalidateKind(kind)
	}
	return c.InvalidatePrefix(target)
}

// InvalidateKind 清除某一类别的全部条目
func (c *Cache) InvalidateKind(kind domain.CacheKind) int {
	return c.remove(domain.CacheSelector{Kind: kind})
}

// InvalidatePrefix 清除所有类别中 key 以 prefix 开头的条目
func (c *Cache) InvalidatePrefix(prefix string) int {
	return c.remove(domain.CacheSelector{Prefix: prefix})
}

// Stats 返回命中统计快照
func (c *Cache) Stats() domain.CacheStats {
	out := domain.CacheStats{
		Backend: c.backend.Name(),
		Kinds:   make(map[domain.CacheKind]domain.KindStats, len(c.stats)),
	}
	for kind, ctr := range c.stats {
		out.Kinds[kind] = domain.KindStats{
			Hits:      ctr.hits.Load(),
			Misses:    ctr.misses.Load(),
			StaleHits: ctr.staleHits.Load(),
			Writes:    ctr.writes.Load(),
		}
	}
	return out
}

func (c *Cache) load(kind domain.CacheKind, key string) (domain.CacheEntry, bool) {
	entry, ok, err := c.backend.Load(kind, key)
	if err != nil {
		c.logger.Warn("读取缓存失败，按未命中处理", "kind", kind, "key", key, "error", err)
		observe.CacheLookups.WithLabelValues(string(kind), "error").Inc()
		return domain.CacheEntry{}, false
	}
	return entry, ok
}

func (c *Cache) remove(sel domain.CacheSelector) int {
	n, err := c.backend.Delete(sel)
	if err != nil {
		c.logger.Warn("清除缓存失败", "kind", sel.Kind, "prefix", sel.Prefix, "error", err)
		return 0
	}
	observe.CacheInvalidated.Add(float64(n))
	c.logger.Info("缓存已清除", "kind", sel.Kind, "prefix", sel.Prefix, "removed", n)
	return n
}

func (c *Cache) record(kind domain.CacheKind, result string) {
	ctr := c.counters(kind)
	switch result {
	case "hit":
		ctr.hits.Add(1)
	case "miss":
		ctr.misses.Add(1)
	case "stale":
		ctr.staleHits.Add(1)
	}
	observe.CacheLookups.WithLabelValues(string(kind), result).Inc()
}

// counters 未知类别归入 search-results，避免并发写 map
func (c *Cache) counters(kind domain.CacheKind) *kindCounters {
	if ctr, ok := c.stats[kind]; ok {
		return ctr
	}
	return c.stats[domain.KindSearchResults]
}

// Load 读取并解码一个有效值
func Load[T any](c *Cache, key string, kind domain.CacheKind) (T, bool) {
	var zero T
	raw, ok := c.Get(key, kind)
	if !ok {
		return zero, false
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		c.logger.Warn("缓存值无法解码，按未命中处理", "kind", kind, "key", key, "error", err)
		return zero, false
	}
	return v, true
}

// LoadStale 读取并解码一个可能已过期的值
func LoadStale[T any](c *Cache, key string, kind domain.CacheKind) (v T, expired bool, ok bool) {
	raw, expired, found := c.GetStale(key, kind)
	if !found {
		return v, false, false
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		c.logger.Warn("过期缓存值无法解码", "kind", kind, "key", key, "error", err)
		var zero T
		return zero, false, false
	}
	return v, expired, true
}

// Save 编码并写入
func Save[T any](c *Cache, key string, kind domain.CacheKind, v T) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("编码缓存值 '%s/%s' 失败: %w", kind, key, err)
	}
	c.Set(key, kind, raw)
	return nil
}
