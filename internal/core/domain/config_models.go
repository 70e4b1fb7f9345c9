// Package domain file: internal/core/domain/config_models.go
package domain

import (
	"maps"
	"slices"
	"time"
)

// WeightMap 分项名 -> 整数百分比权重
type WeightMap map[string]int

// Sum 权重之和
func (w WeightMap) Sum() int {
	total := 0
	for _, v := range w {
		total += v
	}
	return total
}

// Clone 拷贝一份权重表
func (w WeightMap) Clone() WeightMap {
	if w == nil {
		return nil
	}
	return maps.Clone(w)
}

// StepThreshold 阶梯函数的一级：取值 >= Min 时得分 Score
type StepThreshold struct {
	Min   int64   `json:"min" mapstructure:"min" validate:"gte=0"`
	Score float64 `json:"score" mapstructure:"score" validate:"gte=0,lte=1"`
}

// RecencyStep 距上次更新天数 <= MaxDays 时得分 Score
type RecencyStep struct {
	MaxDays int     `json:"max_days" mapstructure:"max_days" validate:"gte=0"`
	Score   float64 `json:"score" mapstructure:"score" validate:"gte=0,lte=1"`
}

// Thresholds 评分阶梯。断点属于可配置策略而不是推导出的常量。
type Thresholds struct {
	RatingCount []StepThreshold `json:"rating_count" mapstructure:"rating_count" validate:"required,min=1,dive"`
	Installs    []StepThreshold `json:"installs" mapstructure:"installs" validate:"required,min=1,dive"`
	RecencyDays []RecencyStep   `json:"recency_days" mapstructure:"recency_days" validate:"required,min=1,dive"`
	// FloorScore 低于所有阶梯时的得分
	FloorScore float64 `json:"floor_score" mapstructure:"floor_score" validate:"gte=0,lte=1"`
	// NeutralScore 数据为空但并非缺失时使用的中性分（如支持线程数为 0）
	NeutralScore float64 `json:"neutral_score" mapstructure:"neutral_score" validate:"gte=0,lte=1"`
	// PrevMajorLastMinor 上一个大版本的最后一个小版本号 (WordPress 为 9)，
	// 平台处于 x.0 时只有 (x-1).PrevMajorLastMinor 算“落后一步”。0 表示跨大版本一律视为落后较多。
	PrevMajorLastMinor int64 `json:"prev_major_last_minor" mapstructure:"prev_major_last_minor" validate:"gte=0,lte=99"`
}

// Clone 深拷贝
func (t Thresholds) Clone() Thresholds {
	out := t
	out.RatingCount = slices.Clone(t.RatingCount)
	out.Installs = slices.Clone(t.Installs)
	out.RecencyDays = slices.Clone(t.RecencyDays)
	return out
}

// AlgorithmConfig 是评分权重与缓存 TTL 的全局配置。
// 只能通过校验后的整体替换更新；读取方拿到的总是一份独立快照。
type AlgorithmConfig struct {
	Revision         uint64              `json:"revision" mapstructure:"-"`
	UsabilityWeights WeightMap           `json:"usability_weights" mapstructure:"usability_weights" validate:"required,dive,keys,oneof=user_rating rating_count installs support,endkeys,gte=0,lte=100"`
	HealthWeights    WeightMap           `json:"health_weights" mapstructure:"health_weights" validate:"required,dive,keys,oneof=update_frequency compatibility support recency issues,endkeys,gte=0,lte=100"`
	CacheTTLSeconds  map[CacheKind]int64 `json:"cache_ttl_seconds" mapstructure:"cache_ttl_seconds" validate:"omitempty,dive,keys,oneof=plugin-metadata calculated-scores search-results,endkeys,gt=0"`
	PlatformVersion  string              `json:"platform_version" mapstructure:"platform_version" validate:"required,semver"`
	Thresholds       Thresholds          `json:"thresholds" mapstructure:"thresholds"`
	UpdatedAt        time.Time           `json:"updated_at" mapstructure:"-"`
}

// Clone 深拷贝
func (c AlgorithmConfig) Clone() AlgorithmConfig {
	out := c
	out.UsabilityWeights = c.UsabilityWeights.Clone()
	out.HealthWeights = c.HealthWeights.Clone()
	if c.CacheTTLSeconds != nil {
		out.CacheTTLSeconds = maps.Clone(c.CacheTTLSeconds)
	}
	out.Thresholds = c.Thresholds.Clone()
	return out
}

// TTL 返回某类缓存的有效期，未配置时使用该类的默认值
func (c AlgorithmConfig) TTL(kind CacheKind) time.Duration {
	if s, ok := c.CacheTTLSeconds[kind]; ok && s > 0 {
		return time.Duration(s) * time.Second
	}
	return kind.DefaultTTL()
}

// DefaultUsabilityWeights 易用性默认权重
func DefaultUsabilityWeights() WeightMap {
	return WeightMap{
		ComponentUserRating:  40,
		ComponentRatingCount: 20,
		ComponentInstalls:    25,
		ComponentSupport:     15,
	}
}

// DefaultHealthWeights 健康分默认权重
func DefaultHealthWeights() WeightMap {
	return WeightMap{
		ComponentUpdateFrequency: 15,
		ComponentCompatibility:   25,
		ComponentSupport:         20,
		ComponentRecency:         30,
		ComponentIssues:          10,
	}
}

// DefaultThresholds 默认阶梯
func DefaultThresholds() Thresholds {
	return Thresholds{
		RatingCount: []StepThreshold{
			{Min: 1000, Score: 1.0},
			{Min: 100, Score: 0.8},
			{Min: 20, Score: 0.6},
			{Min: 5, Score: 0.4},
		},
		Installs: []StepThreshold{
			{Min: 1_000_000, Score: 1.0},
			{Min: 100_000, Score: 0.8},
			{Min: 10_000, Score: 0.6},
			{Min: 1_000, Score: 0.4},
		},
		RecencyDays: []RecencyStep{
			{MaxDays: 30, Score: 1.0},
			{MaxDays: 90, Score: 0.8},
			{MaxDays: 180, Score: 0.6},
			{MaxDays: 365, Score: 0.4},
		},
		FloorScore:         0.2,
		NeutralScore:       0.5,
		PrevMajorLastMinor: 9,
	}
}

// DefaultAlgorithmConfig 返回出厂配置
func DefaultAlgorithmConfig() AlgorithmConfig {
	ttls := make(map[CacheKind]int64, 3)
	for _, k := range AllCacheKinds() {
		ttls[k] = int64(k.DefaultTTL() / time.Second)
	}
	return AlgorithmConfig{
		UsabilityWeights: DefaultUsabilityWeights(),
		HealthWeights:    DefaultHealthWeights(),
		CacheTTLSeconds:  ttls,
		PlatformVersion:  "6.6",
		Thresholds:       DefaultThresholds(),
	}
}

// WeightsUpdate 权重更新请求。非 nil 的一组会整体替换对应评分类型的权重。
type WeightsUpdate struct {
	Usability WeightMap `json:"usability,omitempty"`
	Health    WeightMap `json:"health,omitempty"`
}
