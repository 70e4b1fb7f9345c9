// file: internal/adapter/directory/response.go
package directory

import (
	"PluginLens/internal/core/domain"
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// wordpress.org 返回的时间格式，例如 "2024-05-01 3:04pm GMT"
const lastUpdatedLayout = "2006-01-02 3:04pm MST"

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// rawInfo query_plugins 的分页信息
type rawInfo struct {
	Page    flexInt `json:"page"`
	Pages   flexInt `json:"pages"`
	Results flexInt `json:"results"`
}

// rawQueryResponse query_plugins 的顶层结构。plugins 用指针区分“缺失”与“空列表”。
type rawQueryResponse struct {
	Info    *rawInfo     `json:"info"`
	Plugins *[]rawPlugin `json:"plugins"`
	Error   string       `json:"error"`
}

// rawPlugin 单个插件的原始字段。上游同一字段在不同插件上类型可能不同
// (false / 数字 / 字符串，空对象写成 [])，统一由 flex* 类型吸收。
type rawPlugin struct {
	Name                   string      `json:"name"`
	Slug                   string      `json:"slug"`
	Version                flexString  `json:"version"`
	Author                 string      `json:"author"`
	Rating                 *flexFloat  `json:"rating"`
	NumRatings             flexInt     `json:"num_ratings"`
	Ratings                flexRatings `json:"ratings"`
	SupportThreads         *flexInt    `json:"support_threads"`
	SupportThreadsResolved *flexInt    `json:"support_threads_resolved"`
	ActiveInstalls         flexInt     `json:"active_installs"`
	LastUpdated            flexString  `json:"last_updated"`
	Added                  flexString  `json:"added"`
	Tested                 flexString  `json:"tested"`
	Requires               flexString  `json:"requires"`
	ShortDescription       string      `json:"short_description"`
	Homepage               string      `json:"homepage"`
	DownloadLink           string      `json:"download_link"`
	Tags                   flexTags    `json:"tags"`
	Error                  string      `json:"error"`
}

// toRecord 把原始字段转换为经过校验的 PluginRecord
func (p rawPlugin) toRecord() (domain.PluginRecord, error) {
	slug := strings.TrimSpace(p.Slug)
	if slug == "" {
		return domain.PluginRecord{}, fmt.Errorf("插件记录缺少 slug (name=%q)", p.Name)
	}

	rec := domain.PluginRecord{
		Slug:               slug,
		Name:               html.UnescapeString(strings.TrimSpace(p.Name)),
		Author:             stripTags(p.Author),
		Version:            strings.TrimSpace(string(p.Version)),
		NumRatings:         nonNegative(slug, "num_ratings", int64(p.NumRatings)),
		ActiveInstalls:     nonNegative(slug, "active_installs", int64(p.ActiveInstalls)),
		TestedUpTo:         strings.TrimSpace(string(p.Tested)),
		RequiresVersion:    strings.TrimSpace(string(p.Requires)),
		ShortDescription:   html.UnescapeString(strings.TrimSpace(p.ShortDescription)),
		Homepage:           p.Homepage,
		DownloadLink:       p.DownloadLink,
		Tags:               p.Tags.slugs(),
		RatingDistribution: p.Ratings.distribution(),
		LastUpdated:        parseTimestamp(slug, string(p.LastUpdated)),
		Added:              parseTimestamp(slug, string(p.Added)),
	}

	// 上游评分是 0-100，这里归一化到 0-5；没有评分数时评分视为缺失
	if p.Rating != nil && rec.NumRatings > 0 {
		r := float64(*p.Rating) / 20
		if r < 0 {
			r = 0
		}
		if r > 5 {
			r = 5
		}
		rec.Rating = &r
	}

	switch {
	case p.SupportThreads != nil && p.SupportThreadsResolved != nil:
		total := nonNegative(slug, "support_threads", int64(*p.SupportThreads))
		resolved := nonNegative(slug, "support_threads_resolved", int64(*p.SupportThreadsResolved))
		if resolved > total {
			resolved = total
		}
		rec.Support = &domain.SupportStats{Total: total, Resolved: resolved}
	case p.SupportThreads != nil || p.SupportThreadsResolved != nil:
		slog.Debug("支持线程数据只有一半，按缺失处理", "slug", slug)
	}
	return rec, nil
}

func nonNegative(slug, field string, v int64) int64 {
	if v < 0 {
		slog.Warn("上游返回了负数，已按 0 处理", "slug", slug, "field", field, "value", v)
		return 0
	}
	return v
}

func stripTags(s string) string {
	return strings.TrimSpace(html.UnescapeString(tagPattern.ReplaceAllString(s, "")))
}

// parseTimestamp 先按 wordpress.org 的固定格式解析，失败再交给 dateparse
func parseTimestamp(slug, s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if t, err := time.Parse(lastUpdatedLayout, s); err == nil {
		t = t.UTC()
		return &t
	}
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		slog.Debug("无法解析时间字段，按缺失处理", "slug", slug, "value", s, "error", err)
		return nil
	}
	t = t.UTC()
	return &t
}

// ---------------------------------------------------------------------------
// 宽松解码类型
// ---------------------------------------------------------------------------

// flexString 接受字符串、数字、false 与 null
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0, bytes.Equal(b, []byte("null")), bytes.Equal(b, []byte("false")), bytes.Equal(b, []byte("true")):
		*f = ""
		return nil
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("无法解析为字符串: %s", b)
		}
		*f = flexString(n.String())
		return nil
	}
}

// flexInt 接受数字与数字字符串，null / false / 空串视为 0
type flexInt int64

func (f *flexInt) UnmarshalJSON(b []byte) error {
	var s flexString
	if err := s.UnmarshalJSON(b); err != nil {
		return err
	}
	str := strings.TrimSpace(string(s))
	if str == "" {
		*f = 0
		return nil
	}
	if n, err := strconv.ParseInt(str, 10, 64); err == nil {
		*f = flexInt(n)
		return nil
	}
	v, err := strconv.ParseFloat(str, 64)
	if err != nil {
		return fmt.Errorf("无法解析为整数: %s", b)
	}
	*f = flexInt(int64(v))
	return nil
}

// flexFloat 接受数字与数字字符串
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	var s flexString
	if err := s.UnmarshalJSON(b); err != nil {
		return err
	}
	str := strings.TrimSpace(string(s))
	if str == "" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(str, 64)
	if err != nil {
		return fmt.Errorf("无法解析为数字: %s", b)
	}
	*f = flexFloat(v)
	return nil
}

// flexRatings 星级分布，对象 {"5": 10, ...}，为空时上游写成 []
type flexRatings map[string]flexInt

func (f *flexRatings) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] != '{' {
		*f = nil
		return nil
	}
	m := map[string]flexInt{}
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	*f = m
	return nil
}

func (f flexRatings) distribution() map[int]int64 {
	if len(f) == 0 {
		return nil
	}
	out := make(map[int]int64, len(f))
	for k, v := range f {
		star, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil || star < 1 || star > 5 || v < 0 {
			continue
		}
		out[star] = int64(v)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// flexTags 标签，对象 {"slug": "Name"} 或字符串数组
type flexTags []string

func (f *flexTags) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil
	}
	switch b[0] {
	case '{':
		m := map[string]string{}
		if err := json.Unmarshal(b, &m); err != nil {
			return err
		}
		tags := make([]string, 0, len(m))
		for k := range m {
			tags = append(tags, k)
		}
		*f = tags
	case '[':
		var tags []string
		if err := json.Unmarshal(b, &tags); err != nil {
			return err
		}
		*f = tags
	default:
		*f = nil
	}
	return nil
}

// slugs 去重并排序后的标签集合
func (f flexTags) slugs() []string {
	seen := make(map[string]struct{}, len(f))
	out := make([]string, 0, len(f))
	for _, t := range f {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
