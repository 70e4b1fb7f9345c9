// Package domain file: internal/core/domain/cache_models.go
package domain

import (
	"strings"
	"time"
)

// CacheKind 缓存条目的类别，每一类有自己的默认 TTL
type CacheKind string

const (
	KindPluginMetadata   CacheKind = "plugin-metadata"
	KindCalculatedScores CacheKind = "calculated-scores"
	KindSearchResults    CacheKind = "search-results"
)

// AllCacheKinds 全部缓存类别
func AllCacheKinds() []CacheKind {
	return []CacheKind{KindPluginMetadata, KindCalculatedScores, KindSearchResults}
}

// ParseCacheKind 解析类别名
func ParseCacheKind(s string) (CacheKind, bool) {
	k := CacheKind(strings.TrimSpace(strings.ToLower(s)))
	for _, known := range AllCacheKinds() {
		if k == known {
			return k, true
		}
	}
	return "", false
}

// DefaultTTL 各类别的默认有效期
func (k CacheKind) DefaultTTL() time.Duration {
	switch k {
	case KindPluginMetadata:
		return 6 * time.Hour
	case KindCalculatedScores:
		return time.Hour
	case KindSearchResults:
		return time.Hour
	default:
		return 15 * time.Minute
	}
}

// CacheEntry 一条缓存记录。Value 是 JSON 编码后的值。
// 过期时间总是由 StoredAt + TTLSeconds 现场计算，不单独保存截止时间。
type CacheEntry struct {
	Key        string    `json:"key"`
	Kind       CacheKind `json:"kind"`
	Value      []byte    `json:"value"`
	StoredAt   time.Time `json:"stored_at"`
	TTLSeconds int64     `json:"ttl_seconds"`
}

// TTL 有效期
func (e CacheEntry) TTL() time.Duration {
	return time.Duration(e.TTLSeconds) * time.Second
}

// ExpiresAt 计算过期时刻
func (e CacheEntry) ExpiresAt() time.Time {
	return e.StoredAt.Add(e.TTL())
}

// FreshAt 判断在 now 时刻条目是否仍然有效 (now < storedAt + ttl)
func (e CacheEntry) FreshAt(now time.Time) bool {
	return now.Before(e.ExpiresAt())
}

// CacheSelector 失效操作的匹配条件。零值匹配全部条目。
type CacheSelector struct {
	Kind   CacheKind
	Prefix string
}

// Matches 判断条目是否命中
func (s CacheSelector) Matches(kind CacheKind, key string) bool {
	if s.Kind != "" && s.Kind != kind {
		return false
	}
	return strings.HasPrefix(key, s.Prefix)
}

// KindStats 单一类别的命中统计
type KindStats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	StaleHits uint64 `json:"stale_hits"`
	Writes    uint64 `json:"writes"`
}

// CacheStats 缓存统计快照
type CacheStats struct {
	Backend string                  `json:"backend"`
	Kinds   map[CacheKind]KindStats `json:"kinds"`
}
