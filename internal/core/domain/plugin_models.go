// Package domain file: internal/core/domain/plugin_models.go
package domain

import (
	"encoding/json"
	"slices"
	"time"
)

// SupportStats 是支持论坛的线程统计。两个字段总是成对出现，
// 上游缺少任意一个时整个结构为 nil（视为未知）。
type SupportStats struct {
	Total    int64 `json:"total"`
	Resolved int64 `json:"resolved"`
}

// ResolvedRatio 返回已解决比例。total 为 0 时 known=false，调用方自行决定中性值。
func (s *SupportStats) ResolvedRatio() (ratio float64, known bool) {
	if s == nil || s.Total <= 0 {
		return 0, false
	}
	r := float64(s.Resolved) / float64(s.Total)
	if r > 1 {
		r = 1
	}
	return r, true
}

// PluginRecord 代表目录 API 返回的单个插件的原始元数据。
// 记录在目录客户端边界完成校验后即视为不可变；派生数据通过 AnnotatedPlugin 承载，
// 任何需要修改的地方都应先 Clone。
type PluginRecord struct {
	Slug            string        `json:"slug"`
	Name            string        `json:"name"`
	Author          string        `json:"author"`
	Version         string        `json:"version,omitempty"`
	Rating          *float64      `json:"rating"` // 0-5，nil 表示无评分
	NumRatings      int64         `json:"num_ratings"`
	ActiveInstalls  int64         `json:"active_installs"`
	LastUpdated     *time.Time    `json:"last_updated"`
	Added           *time.Time    `json:"added,omitempty"`
	TestedUpTo      string        `json:"tested_up_to,omitempty"`
	RequiresVersion string        `json:"requires_version,omitempty"`
	Support         *SupportStats `json:"support"`

	// RatingDistribution 按星级 (1-5) 统计的评分数量，上游未提供时为 nil
	RatingDistribution map[int]int64 `json:"rating_distribution,omitempty"`
	ShortDescription   string        `json:"short_description,omitempty"`
	Tags               []string      `json:"tags"`
	Homepage           string        `json:"homepage,omitempty"`
	DownloadLink       string        `json:"download_link,omitempty"`
}

// Clone 返回一份深拷贝
func (p PluginRecord) Clone() PluginRecord {
	out := p
	if p.Rating != nil {
		r := *p.Rating
		out.Rating = &r
	}
	if p.LastUpdated != nil {
		t := *p.LastUpdated
		out.LastUpdated = &t
	}
	if p.Added != nil {
		t := *p.Added
		out.Added = &t
	}
	if p.Support != nil {
		s := *p.Support
		out.Support = &s
	}
	if p.RatingDistribution != nil {
		out.RatingDistribution = make(map[int]int64, len(p.RatingDistribution))
		for k, v := range p.RatingDistribution {
			out.RatingDistribution[k] = v
		}
	}
	out.Tags = slices.Clone(p.Tags)
	return out
}

// HasRating 判断插件是否有真实的用户评分（0 条评分与缺失评分等价于“未评分”）
func (p PluginRecord) HasRating() bool {
	return p.Rating != nil && p.NumRatings > 0
}

// LowRatingShare 返回 1-2 星评分占比，没有分布数据时 known=false
func (p PluginRecord) LowRatingShare() (share float64, known bool) {
	if len(p.RatingDistribution) == 0 {
		return 0, false
	}
	var total, low int64
	for star, n := range p.RatingDistribution {
		if n <= 0 {
			continue
		}
		total += n
		if star == 1 || star == 2 {
			low += n
		}
	}
	if total == 0 {
		return 0, false
	}
	return float64(low) / float64(total), true
}

// ScoreBreakdown 记录一次综合评分的全部输入：每个分项的归一化子分 (nil 表示无法计算)、
// 配置的权重、实际参与计算的权重之和，以及综合结果 (nil 表示数据不足)。
type ScoreBreakdown struct {
	Components map[string]*float64 `json:"components"`
	Weights    map[string]int      `json:"weights"`
	Composite  *float64            `json:"composite"`
	WeightUsed int                 `json:"weight_used"`
}

// Value 返回综合分；数据不足时 ok=false，调用方必须区别渲染，不能当作最低分。
func (b ScoreBreakdown) Value() (float64, bool) {
	if b.Composite == nil {
		return 0, false
	}
	return *b.Composite, true
}

// Insufficient 表示所有分项都缺失
func (b ScoreBreakdown) Insufficient() bool {
	return b.Composite == nil
}

// Component 返回单个分项子分
func (b ScoreBreakdown) Component(name string) (float64, bool) {
	v, ok := b.Components[name]
	if !ok || v == nil {
		return 0, false
	}
	return *v, true
}

// AnnotatedPlugin 是附带两项综合评分的插件记录
type AnnotatedPlugin struct {
	PluginRecord
	// Rank 是该记录在上游结果中的位置，用于 relevance 排序
	Rank      int            `json:"rank"`
	Usability ScoreBreakdown `json:"usability"`
	Health    ScoreBreakdown `json:"health"`
}

// MarshalJSON 在输出中附带派生的 health_band，解码时忽略该字段
func (a AnnotatedPlugin) MarshalJSON() ([]byte, error) {
	type plain AnnotatedPlugin
	return json.Marshal(struct {
		plain
		HealthBand HealthBand `json:"health_band"`
	}{plain: plain(a), HealthBand: a.HealthBand()})
}

// UsabilityRating 返回 1.0-5.0 的易用性评分
func (a AnnotatedPlugin) UsabilityRating() (float64, bool) {
	return a.Usability.Value()
}

// HealthScore 返回 0-100 的健康分
func (a AnnotatedPlugin) HealthScore() (int, bool) {
	v, ok := a.Health.Value()
	if !ok {
		return 0, false
	}
	return int(v), true
}

// HealthBand 返回健康分所在的区间，数据不足时返回 BandUnknown
func (a AnnotatedPlugin) HealthBand() HealthBand {
	score, ok := a.HealthScore()
	if !ok {
		return BandUnknown
	}
	return BandFor(score)
}

// HealthBand 是 UI 渲染颜色所用的健康分区间
type HealthBand string

const (
	BandUnknown   HealthBand = "unknown"
	BandPoor      HealthBand = "poor"
	BandFair      HealthBand = "fair"
	BandGood      HealthBand = "good"
	BandExcellent HealthBand = "excellent"
)

// BandFor 0-40 poor, 41-70 fair, 71-85 good, 86-100 excellent
func BandFor(score int) HealthBand {
	switch {
	case score <= 40:
		return BandPoor
	case score <= 70:
		return BandFair
	case score <= 85:
		return BandGood
	default:
		return BandExcellent
	}
}

// 易用性评分分项
const (
	ComponentUserRating  = "user_rating"
	ComponentRatingCount = "rating_count"
	ComponentInstalls    = "installs"
	ComponentSupport     = "support"
)

// 健康分分项（support 与易用性共用同一名称）
const (
	ComponentUpdateFrequency = "update_frequency"
	ComponentCompatibility   = "compatibility"
	ComponentRecency         = "recency"
	ComponentIssues          = "issues"
)

// UsabilityComponents 易用性评分的全部分项
func UsabilityComponents() []string {
	return []string{ComponentUserRating, ComponentRatingCount, ComponentInstalls, ComponentSupport}
}

// HealthComponents 健康分的全部分项
func HealthComponents() []string {
	return []string{ComponentUpdateFrequency, ComponentCompatibility, ComponentSupport, ComponentRecency, ComponentIssues}
}
