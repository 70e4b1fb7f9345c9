// file: internal/service/scoring/scoring_test.go

package scoring

import (
	"PluginLens/internal/core/domain"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func f64(v float64) *float64 { return &v }

func daysAgo(n int) *time.Time {
	t := testNow.Add(-time.Duration(n) * 24 * time.Hour)
	return &t
}

func fullRecord() domain.PluginRecord {
	return domain.PluginRecord{
		Slug:               "contact-form-7",
		Name:               "Contact Form 7",
		Version:            "6.0.1",
		Rating:             f64(4.0),
		NumRatings:         2000,
		ActiveInstalls:     5_000_000,
		LastUpdated:        daysAgo(10),
		TestedUpTo:         "6.6",
		Support:            &domain.SupportStats{Total: 10, Resolved: 8},
		RatingDistribution: map[int]int64{5: 80, 4: 10, 3: 0, 2: 5, 1: 5},
	}
}

// ---------------------------------------------------------------------------
// 易用性评分
// ---------------------------------------------------------------------------

func TestUsability_AllComponents(t *testing.T) {
	b := Usability(fullRecord(), domain.DefaultUsabilityWeights(), domain.DefaultThresholds())

	v, ok := b.Component(domain.ComponentUserRating)
	require.True(t, ok)
	assert.InDelta(t, 0.8, v, 1e-9)
	v, _ = b.Component(domain.ComponentRatingCount)
	assert.InDelta(t, 1.0, v, 1e-9)
	v, _ = b.Component(domain.ComponentInstalls)
	assert.InDelta(t, 1.0, v, 1e-9)
	v, _ = b.Component(domain.ComponentSupport)
	assert.InDelta(t, 0.8, v, 1e-9)

	// (40*0.8 + 20*1 + 25*1 + 15*0.8) / 100 = 0.89 -> 1 + 4*0.89
	score, ok := b.Value()
	require.True(t, ok)
	assert.InDelta(t, 4.56, score, 1e-9)
	assert.Equal(t, 100, b.WeightUsed)
}

func TestUsability_UnratedPluginRenormalizes(t *testing.T) {
	rec := domain.PluginRecord{Slug: "new-plugin", NumRatings: 0, ActiveInstalls: 50_000}

	b := Usability(rec, domain.WeightMap{
		domain.ComponentUserRating:  40,
		domain.ComponentRatingCount: 20,
		domain.ComponentInstalls:    25,
		domain.ComponentSupport:     15,
	}, domain.DefaultThresholds())

	_, ok := b.Component(domain.ComponentUserRating)
	assert.False(t, ok)
	_, ok = b.Component(domain.ComponentRatingCount)
	assert.False(t, ok)
	_, ok = b.Component(domain.ComponentSupport)
	assert.False(t, ok, "两项支持数据都缺失时为 nil")

	score, ok := b.Value()
	require.True(t, ok, "部分数据缺失不是错误")
	assert.InDelta(t, 3.4, score, 1e-9)
	assert.Equal(t, 25, b.WeightUsed)
}

func TestUsability_ZeroSupportThreadsIsNeutral(t *testing.T) {
	rec := domain.PluginRecord{Slug: "quiet", Support: &domain.SupportStats{Total: 0, Resolved: 0}}
	b := Usability(rec, domain.DefaultUsabilityWeights(), domain.DefaultThresholds())

	v, ok := b.Component(domain.ComponentSupport)
	require.True(t, ok)
	assert.InDelta(t, 0.5, v, 1e-9)
	score, _ := b.Value()
	assert.InDelta(t, 3.0, score, 1e-9)
}

func TestUsability_InsufficientData(t *testing.T) {
	b := Usability(domain.PluginRecord{Slug: "empty"}, domain.DefaultUsabilityWeights(), domain.DefaultThresholds())

	assert.True(t, b.Insufficient())
	_, ok := b.Value()
	assert.False(t, ok, "数据不足不能被当作 1.0")
	assert.Zero(t, b.WeightUsed)
}

func TestUsability_StepBoundaries(t *testing.T) {
	th := domain.DefaultThresholds()
	cases := []struct {
		installs int64
		want     float64
	}{
		{1, 0.2}, {999, 0.2}, {1_000, 0.4}, {9_999, 0.4}, {10_000, 0.6},
		{100_000, 0.8}, {999_999, 0.8}, {1_000_000, 1.0},
	}
	for _, tc := range cases {
		b := Usability(domain.PluginRecord{ActiveInstalls: tc.installs}, domain.DefaultUsabilityWeights(), th)
		v, ok := b.Component(domain.ComponentInstalls)
		require.True(t, ok)
		assert.InDelta(t, tc.want, v, 1e-9, "installs=%d", tc.installs)
	}
}

func TestUsability_ClampRange(t *testing.T) {
	th := domain.DefaultThresholds()
	w := domain.DefaultUsabilityWeights()
	records := []domain.PluginRecord{
		{Rating: f64(5), NumRatings: 5000, ActiveInstalls: 10_000_000, Support: &domain.SupportStats{Total: 3, Resolved: 3}},
		{Rating: f64(0.1), NumRatings: 1, ActiveInstalls: 1, Support: &domain.SupportStats{Total: 50, Resolved: 0}},
		// resolved > total 的脏数据也要落在区间内
		{Rating: f64(7), NumRatings: 1, Support: &domain.SupportStats{Total: 1, Resolved: 9}},
	}
	for _, rec := range records {
		score, ok := Usability(rec, w, th).Value()
		require.True(t, ok)
		assert.GreaterOrEqual(t, score, 1.0)
		assert.LessOrEqual(t, score, 5.0)
	}
}

// 缺失一个分项时，结果等于把其权重按比例分配给其余分项后的结果
func TestUsability_RenormalizationProperty(t *testing.T) {
	th := domain.DefaultThresholds()
	weightSets := []domain.WeightMap{
		domain.DefaultUsabilityWeights(),
		{domain.ComponentUserRating: 10, domain.ComponentRatingCount: 30, domain.ComponentInstalls: 30, domain.ComponentSupport: 30},
		{domain.ComponentUserRating: 70, domain.ComponentRatingCount: 10, domain.ComponentInstalls: 10, domain.ComponentSupport: 10},
	}
	// support 缺失
	rec := domain.PluginRecord{Rating: f64(3.5), NumRatings: 150, ActiveInstalls: 20_000}

	for _, w := range weightSets {
		got, ok := Usability(rec, w, th).Value()
		require.True(t, ok)

		remaining := w[domain.ComponentUserRating] + w[domain.ComponentRatingCount] + w[domain.ComponentInstalls]
		scale := 100.0 / float64(remaining)
		expectedAvg := (float64(w[domain.ComponentUserRating])*scale*0.7 +
			float64(w[domain.ComponentRatingCount])*scale*0.8 +
			float64(w[domain.ComponentInstalls])*scale*0.6) / 100
		assert.InDelta(t, 1+4*expectedAvg, got, 1e-9, "weights=%v", w)
	}
}

func TestUsability_ZeroWeightComponentsOnly(t *testing.T) {
	w := domain.WeightMap{domain.ComponentUserRating: 0, domain.ComponentRatingCount: 0, domain.ComponentInstalls: 100, domain.ComponentSupport: 0}
	rec := domain.PluginRecord{Rating: f64(4), NumRatings: 10}

	b := Usability(rec, w, domain.DefaultThresholds())
	assert.True(t, b.Insufficient(), "唯一有权重的分项缺失时视为数据不足")
}

// ---------------------------------------------------------------------------
// 健康分
// ---------------------------------------------------------------------------

func TestHealth_AllComponents(t *testing.T) {
	env := HealthEnv{Now: testNow, PlatformVersion: "6.6"}
	b := Health(fullRecord(), domain.DefaultHealthWeights(), domain.DefaultThresholds(), env)

	expect := map[string]float64{
		domain.ComponentUpdateFrequency: 1.0,
		domain.ComponentCompatibility:   1.0,
		domain.ComponentSupport:         0.8,
		domain.ComponentRecency:         1.0,
		domain.ComponentIssues:          0.9,
	}
	for name, want := range expect {
		v, ok := b.Component(name)
		require.True(t, ok, name)
		assert.InDelta(t, want, v, 1e-9, name)
	}

	// 15 + 25 + 16 + 30 + 9 = 95
	score, ok := b.Value()
	require.True(t, ok)
	assert.Equal(t, 95.0, score)
}

func TestHealth_UpdateFrequency(t *testing.T) {
	cases := map[string]*float64{
		"":           nil,
		"2.3.1":      f64(1.0),
		"2.3":        f64(0.75),
		"3":          f64(0.5),
		"3.0.0":      f64(0.5),
		"not-semver": f64(0.5),
	}
	for version, want := range cases {
		got := updateFrequencyComponent(version)
		if want == nil {
			assert.Nil(t, got, "version=%q", version)
			continue
		}
		require.NotNil(t, got, "version=%q", version)
		assert.InDelta(t, *want, *got, 1e-9, "version=%q", version)
	}
}

func TestHealth_Compatibility(t *testing.T) {
	lastMinor := domain.DefaultThresholds().PrevMajorLastMinor
	cases := []struct {
		tested, platform string
		lastMinor        int64
		want             *float64
	}{
		{"6.6", "6.6", lastMinor, f64(1.0)},
		{"6.7", "6.6", lastMinor, f64(1.0)},
		{"6.6.2", "6.6", lastMinor, f64(1.0)},
		{"6.5", "6.6", lastMinor, f64(0.8)},
		{"6.4", "6.6", lastMinor, f64(0.4)},
		{"5.9", "6.0", lastMinor, f64(0.8)},
		{"5.9.3", "6.0", lastMinor, f64(0.8)},
		{"5.8", "6.0", lastMinor, f64(0.4)},
		{"5.3", "6.0", lastMinor, f64(0.4)},
		{"5.0", "6.0", lastMinor, f64(0.4)},
		{"4.9", "6.0", lastMinor, f64(0.4)},
		{"4.9", "6.6", lastMinor, f64(0.4)},
		// 未配置上一大版本的末尾小版本时，跨大版本一律视为落后较多
		{"5.9", "6.0", 0, f64(0.4)},
		{"", "6.6", lastMinor, nil},
		{"garbage", "6.6", lastMinor, nil},
	}
	for _, tc := range cases {
		got := compatibilityComponent(tc.tested, tc.platform, tc.lastMinor)
		if tc.want == nil {
			assert.Nil(t, got, "tested=%q", tc.tested)
			continue
		}
		require.NotNil(t, got, "tested=%q", tc.tested)
		assert.InDelta(t, *tc.want, *got, 1e-9, "tested=%q platform=%q lastMinor=%d", tc.tested, tc.platform, tc.lastMinor)
	}
}

func TestHealth_Recency(t *testing.T) {
	th := domain.DefaultThresholds()
	cases := []struct {
		days int
		want float64
	}{
		{0, 1.0}, {30, 1.0}, {31, 0.8}, {90, 0.8}, {180, 0.6}, {365, 0.4}, {366, 0.2}, {3000, 0.2},
	}
	for _, tc := range cases {
		got := recencyComponent(daysAgo(tc.days), testNow, th)
		require.NotNil(t, got)
		assert.InDelta(t, tc.want, *got, 1e-9, "days=%d", tc.days)
	}
	assert.Nil(t, recencyComponent(nil, testNow, th))

	future := testNow.Add(48 * time.Hour)
	got := recencyComponent(&future, testNow, th)
	require.NotNil(t, got)
	assert.InDelta(t, 1.0, *got, 1e-9, "时钟偏差导致的未来时间按 0 天处理")
}

func TestHealth_IssuesNeutralWithoutDistribution(t *testing.T) {
	th := domain.DefaultThresholds()
	got := issuesComponent(domain.PluginRecord{}, th)
	require.NotNil(t, got)
	assert.InDelta(t, 0.5, *got, 1e-9)

	got = issuesComponent(domain.PluginRecord{RatingDistribution: map[int]int64{1: 3, 2: 1}}, th)
	require.NotNil(t, got)
	assert.InDelta(t, 0.0, *got, 1e-9)
}

func TestHealth_RoundedIntegerInRange(t *testing.T) {
	env := HealthEnv{Now: testNow, PlatformVersion: "6.6"}
	th := domain.DefaultThresholds()
	records := []domain.PluginRecord{
		fullRecord(),
		{Version: "1", TestedUpTo: "3.0", LastUpdated: daysAgo(4000), Support: &domain.SupportStats{Total: 100}, RatingDistribution: map[int]int64{1: 10}},
		{Version: "1.2", LastUpdated: daysAgo(100)},
	}
	for _, rec := range records {
		score, ok := Health(rec, domain.DefaultHealthWeights(), th, env).Value()
		require.True(t, ok)
		assert.Equal(t, float64(int(score)), score, "健康分必须是整数")
		assert.GreaterOrEqual(t, score, 0.0)
		assert.LessOrEqual(t, score, 100.0)
	}
}

func TestHealth_InsufficientData(t *testing.T) {
	env := HealthEnv{Now: testNow, PlatformVersion: "6.6"}
	// issues 分项总有中性值，把它的权重置 0 才会出现全部缺失
	w := domain.WeightMap{
		domain.ComponentUpdateFrequency: 25,
		domain.ComponentCompatibility:   25,
		domain.ComponentSupport:         25,
		domain.ComponentRecency:         25,
		domain.ComponentIssues:          0,
	}
	b := Health(domain.PluginRecord{Slug: "ghost"}, w, domain.DefaultThresholds(), env)
	assert.True(t, b.Insufficient())
}

// ---------------------------------------------------------------------------
// Scorer
// ---------------------------------------------------------------------------

func TestScorer_UsesSnapshot(t *testing.T) {
	cfg := domain.DefaultAlgorithmConfig()
	cfg.Revision = 7
	s := NewScorer(cfg, testNow)

	// 修改原配置不影响已创建的 Scorer
	cfg.UsabilityWeights[domain.ComponentUserRating] = 0
	cfg.UsabilityWeights[domain.ComponentInstalls] = 65

	rec := fullRecord()
	a := s.Annotate(rec, 3)
	assert.Equal(t, uint64(7), s.Revision())
	assert.Equal(t, testNow.UTC().Format("2006-01-02"), s.Day())
	assert.Equal(t, 3, a.Rank)
	assert.Equal(t, 40, a.Usability.Weights[domain.ComponentUserRating])

	usability, ok := a.UsabilityRating()
	require.True(t, ok)
	assert.InDelta(t, 4.56, usability, 1e-9)
	health, ok := a.HealthScore()
	require.True(t, ok)
	assert.Equal(t, 95, health)
	assert.Equal(t, domain.BandExcellent, a.HealthBand())
}

func TestScorer_AnnotateDoesNotAlias(t *testing.T) {
	s := NewScorer(domain.DefaultAlgorithmConfig(), testNow)
	rec := fullRecord()
	a := s.Annotate(rec, 0)

	*a.Rating = 1
	a.Support.Total = 999
	assert.Equal(t, 4.0, *rec.Rating)
	assert.Equal(t, int64(10), rec.Support.Total)
}

func TestScorer_AnnotateAllKeepsOrder(t *testing.T) {
	s := NewScorer(domain.DefaultAlgorithmConfig(), testNow)
	recs := []domain.PluginRecord{{Slug: "b"}, {Slug: "a"}, {Slug: "c"}}
	out := s.AnnotateAll(recs)
	require.Len(t, out, 3)
	for i, a := range out {
		assert.Equal(t, recs[i].Slug, a.Slug)
		assert.Equal(t, i, a.Rank)
	}
}
