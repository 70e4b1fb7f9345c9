// Package port file: internal/core/port/directory.go
package port

import (
	"PluginLens/internal/core/domain"
	"context"
)

// DirectoryClient 是远程插件目录的只读边界：只负责拉取与校验，不做任何缓存。
type DirectoryClient interface {
	// Search 执行一次搜索，返回一页经过校验的记录
	Search(ctx context.Context, req domain.SearchRequest) (*domain.SearchPage, error)

	// FetchDetails 拉取单个插件的完整记录
	FetchDetails(ctx context.Context, slug string) (*domain.PluginRecord, error)
}

// CacheBackend 是元数据缓存的存储后端。后端只负责存取，过期判断由上层完成。
type CacheBackend interface {
	Load(kind domain.CacheKind, key string) (domain.CacheEntry, bool, error)
	Store(entry domain.CacheEntry) error
	Delete(sel domain.CacheSelector) (int, error)
	Name() string
}
