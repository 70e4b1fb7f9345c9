// file: internal/service/catalog/validate.go
package catalog

import (
	"PluginLens/internal/core/domain"
	"PluginLens/internal/core/port"
	"fmt"
	"strings"
)

// ValidateFilter 检查过滤条件本身是否自洽
func ValidateFilter(f domain.FilterSpec) error {
	verr := &port.ValidationError{}
	if f.MinInstalls != nil && *f.MinInstalls < 0 {
		verr.Add("filter.min_installs", "不能为负数")
	}
	if f.MaxInstalls != nil && *f.MaxInstalls < 0 {
		verr.Add("filter.max_installs", "不能为负数")
	}
	if f.MinInstalls != nil && f.MaxInstalls != nil && *f.MinInstalls > *f.MaxInstalls {
		verr.Add("filter.max_installs", fmt.Sprintf("必须不小于 min_installs (%d)", *f.MinInstalls))
	}
	if f.UpdatedWithin != domain.RecencyAny {
		if _, ok := f.UpdatedWithin.MaxAge(); !ok {
			verr.Add("filter.updated_within", fmt.Sprintf("未知的区间 '%s'", f.UpdatedWithin))
		}
	}
	if f.MinUsability != nil && (*f.MinUsability < 1 || *f.MinUsability > 5) {
		verr.Add("filter.min_usability", "必须在 1 到 5 之间")
	}
	if f.MinHealth != nil && (*f.MinHealth < 0 || *f.MinHealth > 100) {
		verr.Add("filter.min_health", "必须在 0 到 100 之间")
	}
	if f.MinRating != nil && (*f.MinRating < 0 || *f.MinRating > 5) {
		verr.Add("filter.min_rating", "必须在 0 到 5 之间")
	}
	if f.Unrated && f.MinRating != nil {
		verr.Add("filter.unrated", "不能与 min_rating 同时使用")
	}
	return verr.OrNil()
}

// NormalizeSort 填充默认值：字段默认 relevance，方向默认 desc（name 默认 asc）
func NormalizeSort(s domain.SortSpec) domain.SortSpec {
	s.Field = domain.SortField(strings.ToLower(strings.TrimSpace(string(s.Field))))
	s.Direction = domain.SortDirection(strings.ToLower(strings.TrimSpace(string(s.Direction))))
	if s.Field == "" {
		s.Field = domain.SortRelevance
	}
	if s.Direction == "" {
		if s.Field == domain.SortName {
			s.Direction = domain.SortAsc
		} else {
			s.Direction = domain.SortDesc
		}
	}
	return s
}

// ValidateSort 检查排序字段与方向
func ValidateSort(s domain.SortSpec) error {
	s = NormalizeSort(s)
	verr := &port.ValidationError{}
	switch s.Field {
	case domain.SortRelevance, domain.SortInstalls, domain.SortRating, domain.SortUpdated,
		domain.SortUsability, domain.SortHealth, domain.SortName:
	default:
		verr.Add("sort.field", fmt.Sprintf("不支持的排序字段 '%s'", s.Field))
	}
	if s.Direction != domain.SortAsc && s.Direction != domain.SortDesc {
		verr.Add("sort.direction", fmt.Sprintf("排序方向只能是 asc 或 desc，得到 '%s'", s.Direction))
	}
	return verr.OrNil()
}
