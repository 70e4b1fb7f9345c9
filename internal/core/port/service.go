// Package port file: internal/core/port/service.go
package port

import (
	"PluginLens/internal/core/domain"
	"context"
)

// AlgorithmConfigStore 持有当前评分配置
type AlgorithmConfigStore interface {
	// Snapshot 返回当前配置的独立拷贝，一次计算应只取一次快照
	Snapshot() domain.AlgorithmConfig
	Replace(ctx context.Context, cfg domain.AlgorithmConfig) error
	UpdateWeights(ctx context.Context, update domain.WeightsUpdate) error
}

// PluginQueryService 是外部调用方（HTTP、CLI、定时任务）使用的唯一入口
type PluginQueryService interface {
	QueryPlugins(ctx context.Context, req domain.QueryRequest) (*domain.QueryResult, error)

	// InvalidateCache 清除某一类缓存；kind 为空时清除全部
	InvalidateCache(kind string) (int, error)
	InvalidateCachePrefix(prefix string) int
	CacheStats() domain.CacheStats

	AlgorithmConfig() domain.AlgorithmConfig
	UpdateAlgorithmConfig(ctx context.Context, update domain.WeightsUpdate) error
}
