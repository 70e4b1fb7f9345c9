// Package catalog 对已评分的插件集合执行组合过滤与确定性排序。
// file: internal/service/catalog/engine.go
package catalog

import (
	"PluginLens/internal/core/domain"
	"cmp"
	"slices"
	"strings"
	"time"
)

// Engine 过滤/排序引擎。无状态，只依赖时钟来判断“最近更新”。
type Engine struct {
	now func() time.Time
}

// NewEngine 创建引擎；now 为 nil 时使用 time.Now
func NewEngine(now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{now: now}
}

// Apply 先按 filter 过滤再按 sort 排序，返回新切片，不修改输入。
// 调用方应先用 ValidateFilter / NormalizeSort 校验参数。
func (e *Engine) Apply(records []domain.AnnotatedPlugin, filter domain.FilterSpec, sort domain.SortSpec) []domain.AnnotatedPlugin {
	var out []domain.AnnotatedPlugin
	if filter.IsEmpty() {
		out = append(make([]domain.AnnotatedPlugin, 0, len(records)), records...)
	} else {
		now := e.now()
		out = make([]domain.AnnotatedPlugin, 0, len(records))
		for _, rec := range records {
			if Matches(rec, filter, now) {
				out = append(out, rec)
			}
		}
	}
	sort = NormalizeSort(sort)
	slices.SortStableFunc(out, func(a, b domain.AnnotatedPlugin) int {
		return compareRecords(a, b, sort)
	})
	return out
}

// Matches 判断单条记录是否满足全部谓词。
// 谓词依赖的数据缺失时视为不满足，只有 Unrated 谓词专门匹配缺失评分的记录。
func Matches(rec domain.AnnotatedPlugin, f domain.FilterSpec, now time.Time) bool {
	if f.MinInstalls != nil && rec.ActiveInstalls < *f.MinInstalls {
		return false
	}
	if f.MaxInstalls != nil && rec.ActiveInstalls > *f.MaxInstalls {
		return false
	}
	if maxAge, ok := f.UpdatedWithin.MaxAge(); ok {
		if rec.LastUpdated == nil || now.Sub(*rec.LastUpdated) > maxAge {
			return false
		}
	}
	if f.MinUsability != nil {
		v, ok := rec.UsabilityRating()
		if !ok || v < *f.MinUsability {
			return false
		}
	}
	if f.MinHealth != nil {
		v, ok := rec.HealthScore()
		if !ok || v < *f.MinHealth {
			return false
		}
	}
	if f.MinRating != nil {
		if !rec.HasRating() || *rec.Rating < *f.MinRating {
			return false
		}
	}
	if f.Unrated && rec.HasRating() {
		return false
	}
	return true
}

// compareRecords 主排序键比较后按 slug 升序打破平局。缺失值总是排在最后。
func compareRecords(a, b domain.AnnotatedPlugin, s domain.SortSpec) int {
	if c := compareField(a, b, s); c != 0 {
		return c
	}
	return strings.Compare(a.Slug, b.Slug)
}

func compareField(a, b domain.AnnotatedPlugin, s domain.SortSpec) int {
	if s.Field == domain.SortName {
		c := strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
		if s.Direction == domain.SortDesc {
			c = -c
		}
		return c
	}

	av, aok := sortKey(a, s.Field)
	bv, bok := sortKey(b, s.Field)
	switch {
	case !aok && !bok:
		return 0
	case !aok:
		return 1
	case !bok:
		return -1
	}
	c := cmp.Compare(av, bv)
	if s.Direction == domain.SortDesc {
		c = -c
	}
	return c
}

// sortKey 提取数值排序键；ok=false 表示该记录缺少此字段
func sortKey(rec domain.AnnotatedPlugin, field domain.SortField) (float64, bool) {
	switch field {
	case domain.SortRelevance:
		// rank 越小越相关，取负后 desc 即“最相关在前”
		return -float64(rec.Rank), true
	case domain.SortInstalls:
		return float64(rec.ActiveInstalls), true
	case domain.SortRating:
		if !rec.HasRating() {
			return 0, false
		}
		return *rec.Rating, true
	case domain.SortUpdated:
		if rec.LastUpdated == nil {
			return 0, false
		}
		return float64(rec.LastUpdated.Unix()), true
	case domain.SortUsability:
		return rec.UsabilityRating()
	case domain.SortHealth:
		v, ok := rec.Health.Value()
		return v, ok
	default:
		return 0, false
	}
}
