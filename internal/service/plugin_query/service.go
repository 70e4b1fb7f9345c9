// Package plugin_query 是查询流水线：缓存查找 → 未命中时拉取 → 评分 → 过滤/排序 → 写回缓存。
// internal/service/plugin_query/service.go
package plugin_query

import (
	"PluginLens/internal/core/domain"
	"PluginLens/internal/core/port"
	"PluginLens/internal/observe"
	"PluginLens/internal/service/catalog"
	"PluginLens/internal/service/metacache"
	"PluginLens/internal/service/scoring"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	DefaultPageSize = 24
	MaxPageSize     = 250

	defaultDetailConcurrency = 4
)

// Dependencies 服务依赖
type Dependencies struct {
	Directory port.DirectoryClient
	Cache     *metacache.Cache
	Config    port.AlgorithmConfigStore
	Engine    *catalog.Engine
	// Now 时钟，nil 时使用 time.Now
	Now func() time.Time
	// DetailConcurrency WithDetails 时并发拉取详情的上限
	DetailConcurrency int
}

// Service 是 port.PluginQueryService 的实现
type Service struct {
	directory   port.DirectoryClient
	cache       *metacache.Cache
	config      port.AlgorithmConfigStore
	engine      *catalog.Engine
	now         func() time.Time
	concurrency int
	group       singleflight.Group
	logger      *slog.Logger
}

var _ port.PluginQueryService = (*Service)(nil)

// New 创建查询服务
func New(deps Dependencies) (*Service, error) {
	if deps.Directory == nil || deps.Cache == nil || deps.Config == nil {
		return nil, fmt.Errorf("PluginQueryService 初始化失败: Directory、Cache、Config 均不能为 nil")
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Engine == nil {
		deps.Engine = catalog.NewEngine(deps.Now)
	}
	if deps.DetailConcurrency <= 0 {
		deps.DetailConcurrency = defaultDetailConcurrency
	}
	return &Service{
		directory:   deps.Directory,
		cache:       deps.Cache,
		config:      deps.Config,
		engine:      deps.Engine,
		now:         deps.Now,
		concurrency: deps.DetailConcurrency,
		logger:      observe.Component("plugin_query"),
	}, nil
}

// QueryPlugins 实现 port.PluginQueryService。
// 上游不可用 (Network / Protocol) 时返回降级结果和对应的错误，两者同时非 nil。
func (s *Service) QueryPlugins(ctx context.Context, req domain.QueryRequest) (*domain.QueryResult, error) {
	req, err := normalizeRequest(req)
	if err != nil {
		observe.QueryOutcomes.WithLabelValues("invalid").Inc()
		return nil, err
	}

	// 整个请求只取一次配置快照
	cfg := s.config.Snapshot()
	scorer := scoring.NewScorer(cfg, s.now())
	rKey := resultKey(req, cfg.Revision)

	if cached, ok := metacache.Load[domain.QueryResult](s.cache, rKey, domain.KindSearchResults); ok {
		cached.FromCache = true
		observe.QueryOutcomes.WithLabelValues("cached").Inc()
		return &cached, nil
	}

	page, err := s.loadPage(ctx, req)
	if err != nil {
		if errors.Is(err, port.ErrNetwork) || errors.Is(err, port.ErrProtocol) {
			observe.QueryOutcomes.WithLabelValues("degraded").Inc()
			s.logger.Warn("上游目录不可用，返回降级结果", "search", req.Search, "page", req.Page, "error", err)
			return s.degraded(req, rKey, scorer), err
		}
		return nil, err
	}

	records := page.Plugins
	if req.WithDetails {
		records = s.enrich(ctx, records)
	}

	result := s.build(req, page.Pagination, records, scorer)
	if err := metacache.Save(s.cache, rKey, domain.KindSearchResults, result); err != nil {
		s.logger.Warn("缓存查询结果失败", "error", err)
	}
	observe.QueryOutcomes.WithLabelValues("fresh").Inc()
	return result, nil
}

// normalizeRequest 填充分页与排序的默认值并校验参数
func normalizeRequest(req domain.QueryRequest) (domain.QueryRequest, error) {
	verr := &port.ValidationError{}
	if req.Page == 0 {
		req.Page = 1
	}
	if req.PageSize == 0 {
		req.PageSize = DefaultPageSize
	}
	if req.Page < 1 {
		verr.Add("page", "必须大于 0")
	}
	if req.PageSize < 1 || req.PageSize > MaxPageSize {
		verr.Add("page_size", fmt.Sprintf("必须在 1 到 %d 之间", MaxPageSize))
	}
	var fe, se *port.ValidationError
	if err := catalog.ValidateFilter(req.Filter); errors.As(err, &fe) {
		verr.Violations = append(verr.Violations, fe.Violations...)
	}
	if err := catalog.ValidateSort(req.Sort); errors.As(err, &se) {
		verr.Violations = append(verr.Violations, se.Violations...)
	}
	req.Sort = catalog.NormalizeSort(req.Sort)
	return req, verr.OrNil()
}

// loadPage 读取上游原始页：先查缓存，未命中时拉取。同一页的并发未命中只发一次请求。
func (s *Service) loadPage(ctx context.Context, req domain.QueryRequest) (*domain.SearchPage, error) {
	key := rawKey(req)
	if page, ok := metacache.Load[domain.SearchPage](s.cache, key, domain.KindSearchResults); ok {
		return &page, nil
	}

	v, err := s.shared(ctx, key, func(fctx context.Context) (any, error) {
		page, err := s.directory.Search(fctx, domain.SearchRequest{Search: req.Search, Page: req.Page, PageSize: req.PageSize})
		if err != nil {
			return nil, err
		}
		if err := metacache.Save(s.cache, key, domain.KindSearchResults, page); err != nil {
			s.logger.Warn("缓存上游结果失败", "error", err)
		}
		return page, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.SearchPage), nil
}

// shared 让同一 key 的并发未命中共用一次上游请求。
// 上游请求脱离发起者的取消信号，只受目录客户端自身的超时约束；
// 每个调用方按自己的 ctx 放弃等待，不影响其它调用方。
func (s *Service) shared(ctx context.Context, key string, fetch func(context.Context) (any, error)) (any, error) {
	ch := s.group.DoChan(key, func() (any, error) {
		return fetch(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return nil, &port.NetworkError{Op: "等待上游响应", Err: ctx.Err()}
	case r := <-ch:
		if r.Shared {
			s.logger.Debug("合并了并发的上游请求", "key", key)
		}
		return r.Val, r.Err
	}
}

// build 评分、过滤、排序，组装最终结果
func (s *Service) build(req domain.QueryRequest, pg domain.Pagination, records []domain.PluginRecord, scorer *scoring.Scorer) *domain.QueryResult {
	annotated := make([]domain.AnnotatedPlugin, 0, len(records))
	for i, rec := range records {
		annotated = append(annotated, s.annotate(scorer, rec, i))
	}
	plugins := s.engine.Apply(annotated, req.Filter, req.Sort)
	return &domain.QueryResult{
		Plugins:        plugins,
		Pagination:     pg,
		Fetched:        len(records),
		ConfigRevision: scorer.Revision(),
		GeneratedAt:    s.now(),
	}
}

// scoreEntry 评分缓存的值
type scoreEntry struct {
	Usability domain.ScoreBreakdown `json:"usability"`
	Health    domain.ScoreBreakdown `json:"health"`
}

// annotate 优先使用缓存的评分；评分 key 含配置版本、评分日期与记录摘要，命中即说明输入完全相同
func (s *Service) annotate(scorer *scoring.Scorer, rec domain.PluginRecord, rank int) domain.AnnotatedPlugin {
	key := scoreKey(scorer.Revision(), scorer.Day(), rec)
	if cached, ok := metacache.Load[scoreEntry](s.cache, key, domain.KindCalculatedScores); ok {
		return domain.AnnotatedPlugin{
			PluginRecord: rec.Clone(),
			Rank:         rank,
			Usability:    cached.Usability,
			Health:       cached.Health,
		}
	}
	a := scorer.Annotate(rec, rank)
	if err := metacache.Save(s.cache, key, domain.KindCalculatedScores, scoreEntry{Usability: a.Usability, Health: a.Health}); err != nil {
		s.logger.Warn("缓存评分失败", "slug", rec.Slug, "error", err)
	}
	return a
}

// degraded 依次尝试：过期的最终结果 → 过期的原始页重新评分 → 空结果
func (s *Service) degraded(req domain.QueryRequest, rKey string, scorer *scoring.Scorer) *domain.QueryResult {
	if res, _, ok := metacache.LoadStale[domain.QueryResult](s.cache, rKey, domain.KindSearchResults); ok {
		res.FromCache = true
		res.Degraded = true
		res.Stale = true
		return &res
	}
	if page, _, ok := metacache.LoadStale[domain.SearchPage](s.cache, rawKey(req), domain.KindSearchResults); ok {
		res := s.build(req, page.Pagination, page.Plugins, scorer)
		res.FromCache = true
		res.Degraded = true
		res.Stale = true
		return res
	}
	return &domain.QueryResult{
		Plugins:        []domain.AnnotatedPlugin{},
		Pagination:     domain.Pagination{Page: req.Page},
		Degraded:       true,
		ConfigRevision: scorer.Revision(),
		GeneratedAt:    s.now(),
	}
}
