// Package plugin_query internal/service/plugin_query/keys.go
package plugin_query

import (
	"PluginLens/internal/core/domain"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// 缓存 key 前缀
const (
	prefixResult = "result:"
	prefixRaw    = "raw:"
	prefixPlugin = "plugin:"
	prefixScore  = "score:"
)

// fingerprint 对任意可 JSON 编码的值求 64 位摘要。
// 结构体字段顺序固定，map 按 key 排序编码，因此结果稳定。
func fingerprint(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		// 查询参数都是普通值类型，不会走到这里
		return "invalid"
	}
	return strconv.FormatUint(xxhash.Sum64(b), 16)
}

type rawKeyParts struct {
	Search   string `json:"q"`
	Page     int    `json:"p"`
	PageSize int    `json:"n"`
}

type resultKeyParts struct {
	Raw         rawKeyParts       `json:"raw"`
	Filter      domain.FilterSpec `json:"f"`
	Sort        domain.SortSpec   `json:"s"`
	WithDetails bool              `json:"d"`
	Revision    uint64            `json:"r"`
}

// normalizeSearch 搜索词不区分大小写，多余空白折叠
func normalizeSearch(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// rawKey 上游原始页的缓存 key，与过滤/排序/配置无关
func rawKey(req domain.QueryRequest) string {
	return prefixRaw + fingerprint(rawKeyParts{Search: normalizeSearch(req.Search), Page: req.Page, PageSize: req.PageSize})
}

// resultKey 最终结果的缓存 key。包含配置版本号，权重变化后旧结果自然失效。
func resultKey(req domain.QueryRequest, revision uint64) string {
	return prefixResult + fingerprint(resultKeyParts{
		Raw:         rawKeyParts{Search: normalizeSearch(req.Search), Page: req.Page, PageSize: req.PageSize},
		Filter:      req.Filter,
		Sort:        req.Sort,
		WithDetails: req.WithDetails,
		Revision:    revision,
	})
}

func pluginKey(slug string) string {
	return prefixPlugin + slug
}

// scoreKey 评分缓存 key：配置版本 + 评分日期 + slug + 记录内容摘要
func scoreKey(revision uint64, day string, rec domain.PluginRecord) string {
	return prefixScore + strconv.FormatUint(revision, 10) + ":" + day + ":" + rec.Slug + ":" + fingerprint(rec)
}
