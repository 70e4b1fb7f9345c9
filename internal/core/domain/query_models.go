// Package domain file: internal/core/domain/query_models.go
package domain

import "time"

// RecencyBucket 是“最近更新”过滤器的时间区间
type RecencyBucket string

const (
	RecencyAny      RecencyBucket = ""
	RecencyWeek     RecencyBucket = "week"
	RecencyMonth    RecencyBucket = "month"
	RecencyQuarter  RecencyBucket = "quarter"
	RecencyHalfYear RecencyBucket = "half-year"
	RecencyYear     RecencyBucket = "year"
)

// MaxAge 返回区间允许的最大更新间隔；RecencyAny 或未知值返回 ok=false
func (b RecencyBucket) MaxAge() (time.Duration, bool) {
	const day = 24 * time.Hour
	switch b {
	case RecencyWeek:
		return 7 * day, true
	case RecencyMonth:
		return 30 * day, true
	case RecencyQuarter:
		return 90 * day, true
	case RecencyHalfYear:
		return 180 * day, true
	case RecencyYear:
		return 365 * day, true
	default:
		return 0, false
	}
}

// FilterSpec 描述一组可选的过滤谓词。
// 所有出现的谓词按 AND 组合；nil / 零值谓词不施加任何约束。
type FilterSpec struct {
	MinInstalls   *int64        `json:"min_installs,omitempty"`
	MaxInstalls   *int64        `json:"max_installs,omitempty"`
	UpdatedWithin RecencyBucket `json:"updated_within,omitempty"`
	MinUsability  *float64      `json:"min_usability,omitempty"`
	MinHealth     *int          `json:"min_health,omitempty"`
	MinRating     *float64      `json:"min_rating,omitempty"`
	// Unrated 只匹配没有任何用户评分的插件
	Unrated bool `json:"unrated,omitempty"`
}

// IsEmpty 没有任何谓词
func (f FilterSpec) IsEmpty() bool {
	return f.MinInstalls == nil && f.MaxInstalls == nil && f.UpdatedWithin == RecencyAny &&
		f.MinUsability == nil && f.MinHealth == nil && f.MinRating == nil && !f.Unrated
}

// And 把两组过滤条件合并为一组，每个谓词取更严格的一侧
func (f FilterSpec) And(other FilterSpec) FilterSpec {
	out := f
	out.MinInstalls = maxPtr(f.MinInstalls, other.MinInstalls)
	out.MaxInstalls = minPtr(f.MaxInstalls, other.MaxInstalls)
	out.MinUsability = maxPtr(f.MinUsability, other.MinUsability)
	out.MinHealth = maxPtr(f.MinHealth, other.MinHealth)
	out.MinRating = maxPtr(f.MinRating, other.MinRating)
	out.Unrated = f.Unrated || other.Unrated

	a, okA := f.UpdatedWithin.MaxAge()
	b, okB := other.UpdatedWithin.MaxAge()
	switch {
	case !okA:
		out.UpdatedWithin = other.UpdatedWithin
	case okB && b < a:
		out.UpdatedWithin = other.UpdatedWithin
	}
	return out
}

type ordered interface {
	~int | ~int64 | ~float64
}

func maxPtr[T ordered](a, b *T) *T {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case *b > *a:
		return b
	default:
		return a
	}
}

func minPtr[T ordered](a, b *T) *T {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case *b < *a:
		return b
	default:
		return a
	}
}

// SortField 排序字段
type SortField string

const (
	SortRelevance SortField = "relevance"
	SortInstalls  SortField = "installs"
	SortRating    SortField = "rating"
	SortUpdated   SortField = "updated"
	SortUsability SortField = "usability"
	SortHealth    SortField = "health"
	SortName      SortField = "name"
)

// SortDirection 排序方向
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// SortSpec 排序描述。无论方向如何，平局总是按 slug 升序决定。
type SortSpec struct {
	Field     SortField     `json:"field"`
	Direction SortDirection `json:"direction"`
}

// DefaultSort 按上游相关度，最相关的在前
func DefaultSort() SortSpec {
	return SortSpec{Field: SortRelevance, Direction: SortDesc}
}

// SearchRequest 发往目录 API 的一次搜索
type SearchRequest struct {
	Search   string
	Page     int
	PageSize int
}

// Pagination 上游返回的分页信息
type Pagination struct {
	Page    int `json:"page"`
	Pages   int `json:"pages"`
	Results int `json:"results"`
}

// SearchPage 目录 API 的一页搜索结果
type SearchPage struct {
	Plugins    []PluginRecord `json:"plugins"`
	Pagination Pagination     `json:"pagination"`
}

// QueryRequest 是外部调用方发起的一次“过滤 + 排序”查询
type QueryRequest struct {
	Search   string     `json:"search"`
	Filter   FilterSpec `json:"filter"`
	Sort     SortSpec   `json:"sort"`
	Page     int        `json:"page"`
	PageSize int        `json:"page_size"`
	// WithDetails 为缺少支持论坛数据的记录额外拉取详情
	WithDetails bool `json:"with_details,omitempty"`
}

// QueryResult 查询结果。Degraded=true 表示上游不可用，Stale=true 表示数据来自已过期的缓存。
type QueryResult struct {
	Plugins        []AnnotatedPlugin `json:"plugins"`
	Pagination     Pagination        `json:"pagination"`
	Fetched        int               `json:"fetched"`
	FromCache      bool              `json:"from_cache"`
	Degraded       bool              `json:"degraded"`
	Stale          bool              `json:"stale"`
	ConfigRevision uint64            `json:"config_revision"`
	GeneratedAt    time.Time         `json:"generated_at"`
}
