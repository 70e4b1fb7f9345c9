// file: internal/service/plugin_query/service_test.go

package plugin_query

import (
	"PluginLens/internal/adapter/cachestore"
	"PluginLens/internal/core/domain"
	"PluginLens/internal/core/port"
	"PluginLens/internal/service/algorithm_config"
	"PluginLens/internal/service/metacache"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

// fakeDirectory 记录调用次数的目录客户端
type fakeDirectory struct {
	mu        sync.Mutex
	page      *domain.SearchPage
	searchErr error
	details   map[string]*domain.PluginRecord
	searches  int
	fetches   int
	// gate 非 nil 时 Search 阻塞到 gate 关闭
	gate chan struct{}
}

func (f *fakeDirectory) Search(ctx context.Context, req domain.SearchRequest) (*domain.SearchPage, error) {
	f.mu.Lock()
	f.searches++
	gate := f.gate
	page, err := f.page, f.searchErr
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, &port.NetworkError{Op: "search", Err: ctx.Err()}
		}
	}
	if err != nil {
		return nil, err
	}
	return page, nil
}

func (f *fakeDirectory) FetchDetails(ctx context.Context, slug string) (*domain.PluginRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	rec, ok := f.details[slug]
	if !ok {
		return nil, &port.NotFoundError{Slug: slug}
	}
	return rec, nil
}

func (f *fakeDirectory) setSearchErr(err error) {
	f.mu.Lock()
	f.searchErr = err
	f.mu.Unlock()
}

func (f *fakeDirectory) counts() (searches, fetches int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.searches, f.fetches
}

func f64(v float64) *float64 { return &v }
func i64(v int64) *int64     { return &v }
func intp(v int) *int        { return &v }

func record(slug string, rating float64, numRatings, installs int64, daysAgo int) domain.PluginRecord {
	updated := baseTime.AddDate(0, 0, -daysAgo)
	r := domain.PluginRecord{
		Slug:           slug,
		Name:           slug,
		NumRatings:     numRatings,
		ActiveInstalls: installs,
		LastUpdated:    &updated,
		Version:        "2.1.0",
		TestedUpTo:     "6.6",
		Support:        &domain.SupportStats{Total: 10, Resolved: 9},
		RatingDistribution: map[int]int64{
			5: 80, 4: 10, 3: 5, 2: 3, 1: 2,
		},
	}
	if numRatings > 0 {
		r.Rating = f64(rating)
	}
	return r
}

func samplePage() *domain.SearchPage {
	return &domain.SearchPage{
		Plugins: []domain.PluginRecord{
			record("alpha-seo", 4.8, 2400, 2_000_000, 3),
			record("beta-forms", 3.9, 120, 50_000, 200),
			record("gamma-cache", 0, 0, 800, 500),
		},
		Pagination: domain.Pagination{Page: 1, Pages: 4, Results: 12},
	}
}

func newTestService(t *testing.T, dir *fakeDirectory) (*Service, *fakeClock, *algorithm_config.Store) {
	t.Helper()
	clock := &fakeClock{now: baseTime}
	store, err := algorithm_config.NewStore(nil, domain.DefaultAlgorithmConfig())
	require.NoError(t, err)
	cache := metacache.New(cachestore.NewMemoryStore(24*time.Hour, time.Minute),
		metacache.WithClock(clock.Now), metacache.WithTTL(store.TTL))
	svc, err := New(Dependencies{Directory: dir, Cache: cache, Config: store, Now: clock.Now})
	require.NoError(t, err)
	return svc, clock, store
}

func slugs(res *domain.QueryResult) []string {
	out := make([]string, 0, len(res.Plugins))
	for _, p := range res.Plugins {
		out = append(out, p.Slug)
	}
	return out
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(Dependencies{})
	assert.Error(t, err)
}

func TestQueryPlugins_FreshThenCached(t *testing.T) {
	dir := &fakeDirectory{page: samplePage()}
	svc, _, _ := newTestService(t, dir)
	ctx := context.Background()

	first, err := svc.QueryPlugins(ctx, domain.QueryRequest{Search: "seo"})
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	assert.Equal(t, []string{"alpha-seo", "beta-forms", "gamma-cache"}, slugs(first))
	assert.Equal(t, 3, first.Fetched)
	assert.Equal(t, 4, first.Pagination.Pages)

	second, err := svc.QueryPlugins(ctx, domain.QueryRequest{Search: "  SEO "})
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, slugs(first), slugs(second))

	searches, _ := dir.counts()
	assert.Equal(t, 1, searches)
}

func TestQueryPlugins_ScoresAreAttached(t *testing.T) {
	dir := &fakeDirectory{page: samplePage()}
	svc, _, _ := newTestService(t, dir)

	res, err := svc.QueryPlugins(context.Background(), domain.QueryRequest{Search: "seo"})
	require.NoError(t, err)
	require.Len(t, res.Plugins, 3)

	top := res.Plugins[0]
	u, ok := top.UsabilityRating()
	require.True(t, ok)
	assert.GreaterOrEqual(t, u, 1.0)
	assert.LessOrEqual(t, u, 5.0)
	h, ok := top.HealthScore()
	require.True(t, ok)
	assert.GreaterOrEqual(t, h, 0)
	assert.LessOrEqual(t, h, 100)

	// 未评分的插件没有 user_rating 分项，但仍有综合分
	unrated := res.Plugins[2]
	_, ok = unrated.Usability.Component(domain.ComponentUserRating)
	assert.False(t, ok)
	assert.False(t, unrated.Usability.Insufficient())
}

func TestQueryPlugins_DifferentFiltersShareUpstreamPage(t *testing.T) {
	dir := &fakeDirectory{page: samplePage()}
	svc, _, _ := newTestService(t, dir)
	ctx := context.Background()

	all, err := svc.QueryPlugins(ctx, domain.QueryRequest{Search: "forms"})
	require.NoError(t, err)
	require.Len(t, all.Plugins, 3)

	filtered, err := svc.QueryPlugins(ctx, domain.QueryRequest{
		Search: "forms",
		Filter: domain.FilterSpec{MinInstalls: i64(10_000)},
		Sort:   domain.SortSpec{Field: domain.SortInstalls, Direction: domain.SortAsc},
	})
	require.NoError(t, err)
	assert.False(t, filtered.FromCache)
	assert.Equal(t, []string{"beta-forms", "alpha-seo"}, slugs(filtered))
	assert.Equal(t, 3, filtered.Fetched)

	searches, _ := dir.counts()
	assert.Equal(t, 1, searches)
}

func TestQueryPlugins_FilterAndSortByScores(t *testing.T) {
	dir := &fakeDirectory{page: samplePage()}
	svc, _, _ := newTestService(t, dir)

	res, err := svc.QueryPlugins(context.Background(), domain.QueryRequest{
		Filter: domain.FilterSpec{MinHealth: intp(50)},
		Sort:   domain.SortSpec{Field: domain.SortHealth},
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.Plugins)
	assert.Equal(t, "alpha-seo", res.Plugins[0].Slug)
	prev := 101
	for _, p := range res.Plugins {
		h, ok := p.HealthScore()
		require.True(t, ok)
		assert.GreaterOrEqual(t, h, 50)
		assert.LessOrEqual(t, h, prev)
		prev = h
	}
}

func TestQueryPlugins_UnratedFilter(t *testing.T) {
	dir := &fakeDirectory{page: samplePage()}
	svc, _, _ := newTestService(t, dir)

	res, err := svc.QueryPlugins(context.Background(), domain.QueryRequest{
		Filter: domain.FilterSpec{Unrated: true},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"gamma-cache"}, slugs(res))
}

func TestQueryPlugins_InvalidRequest(t *testing.T) {
	dir := &fakeDirectory{page: samplePage()}
	svc, _, _ := newTestService(t, dir)
	ctx := context.Background()

	cases := map[string]domain.QueryRequest{
		"page_size":  {PageSize: 500},
		"page":       {Page: -1},
		"installs":   {Filter: domain.FilterSpec{MinInstalls: i64(100), MaxInstalls: i64(10)}},
		"usability":  {Filter: domain.FilterSpec{MinUsability: f64(7)}},
		"sort_field": {Sort: domain.SortSpec{Field: "popularity"}},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			res, err := svc.QueryPlugins(ctx, req)
			assert.Nil(t, res)
			assert.ErrorIs(t, err, port.ErrValidation)
		})
	}

	searches, _ := dir.counts()
	assert.Zero(t, searches, "参数无效时不应访问上游")
}

func TestQueryPlugins_DegradedFromStaleResult(t *testing.T) {
	dir := &fakeDirectory{page: samplePage()}
	svc, clock, _ := newTestService(t, dir)
	ctx := context.Background()
	req := domain.QueryRequest{Search: "seo"}

	fresh, err := svc.QueryPlugins(ctx, req)
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)
	dir.setSearchErr(&port.NetworkError{Op: "search", StatusCode: 503})

	res, err := svc.QueryPlugins(ctx, req)
	require.Error(t, err)
	assert.ErrorIs(t, err, port.ErrNetwork)
	require.NotNil(t, res)
	assert.True(t, res.Degraded)
	assert.True(t, res.Stale)
	assert.True(t, res.FromCache)
	assert.Equal(t, slugs(fresh), slugs(res))
}

func TestQueryPlugins_DegradedRescoresStalePage(t *testing.T) {
	dir := &fakeDirectory{page: samplePage()}
	svc, clock, _ := newTestService(t, dir)
	ctx := context.Background()

	_, err := svc.QueryPlugins(ctx, domain.QueryRequest{Search: "seo"})
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)
	dir.setSearchErr(&port.ProtocolError{Op: "search", Detail: "bad json"})

	// 过滤条件不同，没有对应的旧结果，只能从旧的原始页重新计算
	res, err := svc.QueryPlugins(ctx, domain.QueryRequest{Search: "seo", Filter: domain.FilterSpec{Unrated: true}})
	assert.ErrorIs(t, err, port.ErrProtocol)
	require.NotNil(t, res)
	assert.True(t, res.Degraded)
	assert.True(t, res.Stale)
	assert.Equal(t, []string{"gamma-cache"}, slugs(res))
}

func TestQueryPlugins_DegradedWithoutCache(t *testing.T) {
	dir := &fakeDirectory{searchErr: &port.NetworkError{Op: "search", Err: errors.New("connection refused")}}
	svc, _, _ := newTestService(t, dir)

	res, err := svc.QueryPlugins(context.Background(), domain.QueryRequest{Search: "seo", Page: 2})
	assert.ErrorIs(t, err, port.ErrNetwork)
	require.NotNil(t, res)
	assert.True(t, res.Degraded)
	assert.False(t, res.Stale)
	assert.Empty(t, res.Plugins)
	assert.Equal(t, 2, res.Pagination.Page)
}

func TestQueryPlugins_OtherErrorsAreNotDegraded(t *testing.T) {
	dir := &fakeDirectory{searchErr: port.NewValidationError("page_size", "too large")}
	svc, _, _ := newTestService(t, dir)

	res, err := svc.QueryPlugins(context.Background(), domain.QueryRequest{Search: "seo"})
	assert.Nil(t, res)
	assert.ErrorIs(t, err, port.ErrValidation)
}

func TestQueryPlugins_ExpiredEntryRefetches(t *testing.T) {
	dir := &fakeDirectory{page: samplePage()}
	svc, clock, _ := newTestService(t, dir)
	ctx := context.Background()

	_, err := svc.QueryPlugins(ctx, domain.QueryRequest{Search: "seo"})
	require.NoError(t, err)
	clock.Advance(time.Hour + time.Second)

	res, err := svc.QueryPlugins(ctx, domain.QueryRequest{Search: "seo"})
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	searches, _ := dir.counts()
	assert.Equal(t, 2, searches)
}

func TestQueryPlugins_WeightUpdateRecomputes(t *testing.T) {
	dir := &fakeDirectory{page: samplePage()}
	svc, _, _ := newTestService(t, dir)
	ctx := context.Background()
	req := domain.QueryRequest{Search: "seo"}

	before, err := svc.QueryPlugins(ctx, req)
	require.NoError(t, err)

	err = svc.UpdateAlgorithmConfig(ctx, domain.WeightsUpdate{
		Usability: domain.WeightMap{
			domain.ComponentUserRating:  0,
			domain.ComponentRatingCount: 0,
			domain.ComponentInstalls:    100,
			domain.ComponentSupport:     0,
		},
	})
	require.NoError(t, err)

	after, err := svc.QueryPlugins(ctx, req)
	require.NoError(t, err)
	assert.False(t, after.FromCache)
	assert.Equal(t, before.ConfigRevision+1, after.ConfigRevision)
	assert.Equal(t, 100, after.Plugins[0].Usability.WeightUsed)
	// 只有 installs 参与，alpha-seo 的安装量 >= 1,000,000，得满分 5.0
	u, ok := after.Plugins[0].UsabilityRating()
	require.True(t, ok)
	assert.InDelta(t, 5.0, u, 1e-9)

	searches, _ := dir.counts()
	assert.Equal(t, 1, searches, "原始页缓存不受权重变化影响")
}

func TestQueryPlugins_RejectedWeightUpdateKeepsConfig(t *testing.T) {
	dir := &fakeDirectory{page: samplePage()}
	svc, _, _ := newTestService(t, dir)
	ctx := context.Background()
	before := svc.AlgorithmConfig()

	err := svc.UpdateAlgorithmConfig(ctx, domain.WeightsUpdate{
		Usability: domain.WeightMap{
			domain.ComponentUserRating:  40,
			domain.ComponentRatingCount: 20,
			domain.ComponentInstalls:    20,
			domain.ComponentSupport:     15,
		},
	})
	var verr *port.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, before.Revision, svc.AlgorithmConfig().Revision)
	assert.Equal(t, before.UsabilityWeights, svc.AlgorithmConfig().UsabilityWeights)
}

func TestQueryPlugins_WithDetailsEnrichesMissingData(t *testing.T) {
	page := samplePage()
	page.Plugins[1].Support = nil
	page.Plugins[2].Support = nil
	detail := page.Plugins[1].Clone()
	detail.Support = &domain.SupportStats{Total: 40, Resolved: 10}
	dir := &fakeDirectory{
		page:    page,
		details: map[string]*domain.PluginRecord{"beta-forms": &detail},
	}
	svc, _, _ := newTestService(t, dir)
	ctx := context.Background()

	res, err := svc.QueryPlugins(ctx, domain.QueryRequest{WithDetails: true})
	require.NoError(t, err)
	require.Len(t, res.Plugins, 3)

	bySlug := map[string]domain.AnnotatedPlugin{}
	for _, p := range res.Plugins {
		bySlug[p.Slug] = p
	}
	require.NotNil(t, bySlug["beta-forms"].Support)
	assert.EqualValues(t, 40, bySlug["beta-forms"].Support.Total)
	// gamma-cache 详情拉取失败，保留原记录
	assert.Nil(t, bySlug["gamma-cache"].Support)
	// 上游页本身没有被修改
	assert.Nil(t, page.Plugins[1].Support)

	_, fetches := dir.counts()
	assert.Equal(t, 2, fetches)

	// 换一个排序再查，详情走 plugin-metadata 缓存；gamma-cache 不存在，会再试一次
	_, err = svc.QueryPlugins(ctx, domain.QueryRequest{WithDetails: true, Sort: domain.SortSpec{Field: domain.SortName}})
	require.NoError(t, err)
	_, fetches = dir.counts()
	assert.Equal(t, 3, fetches)
}

func TestQueryPlugins_ConcurrentMissesCollapse(t *testing.T) {
	gate := make(chan struct{})
	dir := &fakeDirectory{page: samplePage(), gate: gate}
	svc, _, _ := newTestService(t, dir)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]*domain.QueryResult, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.QueryPlugins(ctx, domain.QueryRequest{Search: "cache"})
			assert.NoError(t, err)
			results[i] = res
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	searches, _ := dir.counts()
	assert.Equal(t, 1, searches)
	for _, r := range results {
		require.NotNil(t, r)
		assert.Len(t, r.Plugins, 3)
	}
}

func TestQueryPlugins_CanceledCallerDoesNotFailSharedFetch(t *testing.T) {
	gate := make(chan struct{})
	dir := &fakeDirectory{page: samplePage(), gate: gate}
	svc, _, _ := newTestService(t, dir)

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		res, err := svc.QueryPlugins(leaderCtx, domain.QueryRequest{Search: "cache"})
		if res != nil {
			assert.True(t, res.Degraded)
		}
		leaderErr <- err
	}()
	time.Sleep(30 * time.Millisecond)

	type outcome struct {
		res *domain.QueryResult
		err error
	}
	follower := make(chan outcome, 1)
	go func() {
		res, err := svc.QueryPlugins(context.Background(), domain.QueryRequest{Search: "cache"})
		follower <- outcome{res, err}
	}()
	time.Sleep(30 * time.Millisecond)

	// 发起请求的调用方离开后，只有它自己收到错误
	cancel()
	err := <-leaderErr
	require.Error(t, err)
	assert.ErrorIs(t, err, port.ErrNetwork)
	assert.ErrorIs(t, err, context.Canceled)

	close(gate)
	got := <-follower
	require.NoError(t, got.err)
	require.NotNil(t, got.res)
	assert.False(t, got.res.Degraded)
	assert.Len(t, got.res.Plugins, 3)

	searches, _ := dir.counts()
	assert.Equal(t, 1, searches)
}

func TestQueryPlugins_ScoreCacheFollowsEvaluationDay(t *testing.T) {
	dir := &fakeDirectory{page: samplePage()}
	svc, clock, _ := newTestService(t, dir)
	ctx := context.Background()
	req := domain.QueryRequest{Search: "seo"}

	_, err := svc.QueryPlugins(ctx, req)
	require.NoError(t, err)

	// 同一天内结果过期后重新拉取，评分仍写在同一批 key 上
	clock.Advance(2 * time.Hour)
	_, err = svc.QueryPlugins(ctx, req)
	require.NoError(t, err)

	// 跨天后 recency 的基准变了，评分重新计算
	clock.Advance(22 * time.Hour)
	res, err := svc.QueryPlugins(ctx, req)
	require.NoError(t, err)
	assert.False(t, res.FromCache)

	searches, _ := dir.counts()
	assert.Equal(t, 3, searches)
	n, err := svc.InvalidateCache("calculated-scores")
	require.NoError(t, err)
	assert.Equal(t, 6, n)
}

func TestInvalidateCache(t *testing.T) {
	dir := &fakeDirectory{page: samplePage()}
	svc, _, _ := newTestService(t, dir)
	ctx := context.Background()

	_, err := svc.QueryPlugins(ctx, domain.QueryRequest{Search: "seo"})
	require.NoError(t, err)

	_, err = svc.InvalidateCache("thumbnails")
	assert.ErrorIs(t, err, port.ErrValidation)

	n, err := svc.InvalidateCache("calculated-scores")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	assert.Equal(t, 1, svc.InvalidateCachePrefix(prefixRaw))

	n, err = svc.InvalidateCache("")
	require.NoError(t, err)
	assert.Equal(t, 1, n, "只剩下最终结果")

	_, err = svc.QueryPlugins(ctx, domain.QueryRequest{Search: "seo"})
	require.NoError(t, err)
	searches, _ := dir.counts()
	assert.Equal(t, 2, searches)

	stats := svc.CacheStats()
	assert.Equal(t, "memory", stats.Backend)
	assert.NotZero(t, stats.Kinds[domain.KindSearchResults].Writes)
}

func TestKeys(t *testing.T) {
	a := domain.QueryRequest{Search: "SEO  tools", Page: 1, PageSize: 24}
	b := domain.QueryRequest{Search: "seo tools", Page: 1, PageSize: 24}
	assert.Equal(t, rawKey(a), rawKey(b))
	assert.Equal(t, resultKey(a, 1), resultKey(b, 1))
	assert.NotEqual(t, resultKey(a, 1), resultKey(a, 2))

	c := b
	c.Filter.MinRating = f64(4)
	assert.Equal(t, rawKey(b), rawKey(c))
	assert.NotEqual(t, resultKey(b, 1), resultKey(c, 1))

	r := record("alpha-seo", 4.8, 2400, 2_000_000, 3)
	r2 := r.Clone()
	r2.ActiveInstalls++
	assert.NotEqual(t, scoreKey(1, "2025-06-01", r), scoreKey(1, "2025-06-01", r2))
	assert.NotEqual(t, scoreKey(1, "2025-06-01", r), scoreKey(1, "2025-06-02", r))
	assert.Contains(t, scoreKey(7, "2025-06-01", r), "score:7:2025-06-01:alpha-seo:")
}

func TestMergeDetails_KeepsExistingValues(t *testing.T) {
	base := record("alpha-seo", 4.8, 2400, 2_000_000, 3)
	base.RatingDistribution = nil
	detail := base.Clone()
	detail.Support = &domain.SupportStats{Total: 1, Resolved: 0}
	detail.RatingDistribution = map[int]int64{5: 1}

	merged := mergeDetails(base, detail)
	assert.EqualValues(t, 10, merged.Support.Total)
	assert.Equal(t, map[int]int64{5: 1}, merged.RatingDistribution)
	assert.Nil(t, base.RatingDistribution)
}
