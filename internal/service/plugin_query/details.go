// Package plugin_query internal/service/plugin_query/details.go
package plugin_query

import (
	"PluginLens/internal/core/domain"
	"PluginLens/internal/service/metacache"
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

// needsDetails 搜索接口不总是返回支持论坛与评分分布，缺任意一项就值得补全
func needsDetails(rec domain.PluginRecord) bool {
	return rec.Support == nil || rec.RatingDistribution == nil
}

// enrich 为缺少数据的记录补全详情。单条失败只记日志，保留原记录。
// 返回的切片与输入等长且顺序一致，输入本身不会被修改。
func (s *Service) enrich(ctx context.Context, records []domain.PluginRecord) []domain.PluginRecord {
	out := make([]domain.PluginRecord, len(records))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, rec := range records {
		out[i] = rec
		if !needsDetails(rec) {
			continue
		}
		g.Go(func() error {
			detail, err := s.details(gctx, rec.Slug)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				s.logger.Warn("补全插件详情失败，使用搜索结果中的数据", "slug", rec.Slug, "error", err)
				return nil
			}
			out[i] = mergeDetails(rec, *detail)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.Warn("补全插件详情被中断", "error", err)
	}
	return out
}

// details 读取单个插件详情，优先使用 plugin-metadata 缓存
func (s *Service) details(ctx context.Context, slug string) (*domain.PluginRecord, error) {
	key := pluginKey(slug)
	if rec, ok := metacache.Load[domain.PluginRecord](s.cache, key, domain.KindPluginMetadata); ok {
		return &rec, nil
	}
	v, err := s.shared(ctx, key, func(fctx context.Context) (any, error) {
		rec, err := s.directory.FetchDetails(fctx, slug)
		if err != nil {
			return nil, err
		}
		if err := metacache.Save(s.cache, key, domain.KindPluginMetadata, rec); err != nil {
			s.logger.Warn("缓存插件详情失败", "slug", slug, "error", err)
		}
		return rec, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.PluginRecord), nil
}

// mergeDetails 只填补搜索记录里缺失的字段，已有的值不覆盖
func mergeDetails(base, detail domain.PluginRecord) domain.PluginRecord {
	out := base.Clone()
	d := detail.Clone()
	if out.Support == nil {
		out.Support = d.Support
	}
	if out.RatingDistribution == nil {
		out.RatingDistribution = d.RatingDistribution
	}
	if out.LastUpdated == nil {
		out.LastUpdated = d.LastUpdated
	}
	if out.Added == nil {
		out.Added = d.Added
	}
	if out.TestedUpTo == "" {
		out.TestedUpTo = d.TestedUpTo
	}
	if out.RequiresVersion == "" {
		out.RequiresVersion = d.RequiresVersion
	}
	if out.Version == "" {
		out.Version = d.Version
	}
	if len(out.Tags) == 0 {
		out.Tags = d.Tags
	}
	return out
}
