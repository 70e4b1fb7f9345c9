// Package plugin_query internal/service/plugin_query/admin.go
package plugin_query

import (
	"PluginLens/internal/core/domain"
	"PluginLens/internal/core/port"
	"context"
	"fmt"
	"strings"
)

// InvalidateCache 清除一类缓存，kind 为空时清除全部。未知类别返回校验错误。
func (s *Service) InvalidateCache(kind string) (int, error) {
	kind = strings.TrimSpace(kind)
	if kind == "" {
		n := s.cache.Invalidate("")
		s.logger.Info("已清空全部缓存", "removed", n)
		return n, nil
	}
	k, ok := domain.ParseCacheKind(kind)
	if !ok {
		return 0, port.NewValidationError("kind", fmt.Sprintf("未知的缓存类别 '%s'", kind))
	}
	n := s.cache.InvalidateKind(k)
	s.logger.Info("已清除缓存类别", "kind", k, "removed", n)
	return n, nil
}

// InvalidateCachePrefix 清除 key 以 prefix 开头的条目（跨所有类别）
func (s *Service) InvalidateCachePrefix(prefix string) int {
	n := s.cache.InvalidatePrefix(prefix)
	s.logger.Info("已按前缀清除缓存", "prefix", prefix, "removed", n)
	return n
}

func (s *Service) CacheStats() domain.CacheStats {
	return s.cache.Stats()
}

func (s *Service) AlgorithmConfig() domain.AlgorithmConfig {
	return s.config.Snapshot()
}

// UpdateAlgorithmConfig 替换权重。新版本号会进入结果与评分缓存的 key，旧条目不再被读取，
// 这里额外清掉它们以释放空间。
func (s *Service) UpdateAlgorithmConfig(ctx context.Context, update domain.WeightsUpdate) error {
	if err := s.config.UpdateWeights(ctx, update); err != nil {
		return err
	}
	s.dropDerived()
	return nil
}

// ReplaceAlgorithmConfig 整体替换配置，用于配置文件热加载
func (s *Service) ReplaceAlgorithmConfig(ctx context.Context, cfg domain.AlgorithmConfig) error {
	if err := s.config.Replace(ctx, cfg); err != nil {
		return err
	}
	s.dropDerived()
	return nil
}

func (s *Service) dropDerived() {
	scores := s.cache.InvalidateKind(domain.KindCalculatedScores)
	results := s.cache.InvalidatePrefix(prefixResult)
	s.logger.Info("配置已更新，清除派生缓存", "revision", s.config.Snapshot().Revision, "scores", scores, "results", results)
}
