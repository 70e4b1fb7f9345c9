// Package directory 是 wordpress.org 插件目录 API 的客户端：只负责拉取与校验，不做缓存。
// file: internal/adapter/directory/client.go
package directory

import (
	"PluginLens/internal/core/domain"
	"PluginLens/internal/core/port"
	"PluginLens/internal/observe"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"golang.org/x/time/rate"
)

// 断言 *Client 实现 port.DirectoryClient 接口，编译期校验
var _ port.DirectoryClient = (*Client)(nil)

const (
	DefaultBaseURL   = "https://api.wordpress.org/plugins/info/1.2/"
	DefaultUserAgent = "PluginLens/1.0 (+https://wordpress.org/plugins/)"
	MaxPageSize      = 250

	maxBodyBytes = 8 << 20
)

// DefaultFields 搜索时请求的字段，避免拉取用不到的大字段（description、sections 等）
var DefaultFields = []string{
	"short_description", "icons", "active_installs", "last_updated", "added",
	"rating", "ratings", "num_ratings", "support_threads", "support_threads_resolved",
	"tested", "requires", "tags", "homepage", "download_link",
}

// Options 客户端参数，零值字段使用默认值
type Options struct {
	BaseURL string
	// Timeout 单次 Search / FetchDetails 的总时长上限（包括重试）
	Timeout time.Duration
	// MaxRetries NetworkError 的最大重试次数，0 表示不重试
	MaxRetries     uint64
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// RequestsPerSecond 出站限速，<=0 表示不限速
	RequestsPerSecond float64
	Burst             int
	UserAgent         string
	Fields            []string
	HTTPClient        *http.Client
}

// Client 目录 API 客户端
type Client struct {
	opts    Options
	base    *url.URL
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewClient 创建客户端
func NewClient(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	base, err := url.Parse(opts.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("目录 API 地址无效 '%s': %v", opts.BaseURL, err)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 250 * time.Millisecond
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 2 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if len(opts.Fields) == 0 {
		opts.Fields = DefaultFields
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	return &Client{
		opts:    opts,
		base:    base,
		http:    httpClient,
		limiter: limiter,
		logger:  observe.Component("directory"),
	}, nil
}

// Search 实现 port.DirectoryClient。空搜索词按热门插件浏览。
func (c *Client) Search(ctx context.Context, req domain.SearchRequest) (*domain.SearchPage, error) {
	if req.Page <= 0 {
		req.Page = 1
	}
	if req.PageSize <= 0 || req.PageSize > MaxPageSize {
		return nil, port.NewValidationError("page_size", fmt.Sprintf("必须在 1 到 %d 之间", MaxPageSize))
	}

	params := url.Values{}
	params.Set("action", "query_plugins")
	if term := strings.TrimSpace(req.Search); term != "" {
		params.Set("request[search]", term)
	} else {
		params.Set("request[browse]", "popular")
	}
	params.Set("request[page]", strconv.Itoa(req.Page))
	params.Set("request[per_page]", strconv.Itoa(req.PageSize))
	for _, f := range c.opts.Fields {
		params.Set("request[fields]["+f+"]", "1")
	}

	body, err := c.fetch(ctx, "search", params)
	if err != nil {
		return nil, err
	}
	return parseSearch(body)
}

// FetchDetails 实现 port.DirectoryClient
func (c *Client) FetchDetails(ctx context.Context, slug string) (*domain.PluginRecord, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return nil, port.NewValidationError("slug", "不能为空")
	}

	params := url.Values{}
	params.Set("action", "plugin_information")
	params.Set("request[slug]", slug)
	for _, f := range []string{"active_installs", "ratings", "support_threads", "support_threads_resolved", "tested", "requires", "last_updated", "added"} {
		params.Set("request[fields]["+f+"]", "1")
	}
	// 详情接口默认返回完整 sections，这里不需要
	params.Set("request[fields][sections]", "0")
	params.Set("request[fields][description]", "0")

	body, err := c.fetch(ctx, "details", params)
	if err != nil {
		var nf *port.NotFoundError
		if errors.As(err, &nf) {
			nf.Slug = slug
		}
		return nil, err
	}
	return parseDetails(slug, body)
}

// fetch 在总时长预算内带重试地执行请求。只有 NetworkError 会被重试。
func (c *Client) fetch(ctx context.Context, op string, params url.Values) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	u := *c.base
	u.RawQuery = params.Encode()

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.opts.InitialBackoff
	eb.MaxInterval = c.opts.MaxBackoff
	eb.MaxElapsedTime = c.opts.Timeout
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, c.opts.MaxRetries), ctx)

	var (
		body     []byte
		attempts int
	)
	operation := func() error {
		attempts++
		data, err := c.once(ctx, op, u.String())
		if err == nil {
			body = data
			return nil
		}
		var ne *port.NetworkError
		if errors.As(err, &ne) {
			return err
		}
		return backoff.Permanent(err)
	}
	notify := func(err error, wait time.Duration) {
		observe.UpstreamRetries.WithLabelValues(op).Inc()
		c.logger.Warn("目录 API 请求失败，准备重试", "op", op, "attempt", attempts, "wait", wait, "error", err)
	}

	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		var ne *port.NetworkError
		if errors.As(err, &ne) {
			ne.Attempts = attempts
		}
		return nil, err
	}
	return body, nil
}

// once 执行一次 HTTP 请求并把失败归类为 NetworkError / NotFoundError / ProtocolError
func (c *Client) once(ctx context.Context, op, target string) (body []byte, err error) {
	start := time.Now()
	defer func() {
		observe.UpstreamRequestDuration.WithLabelValues(op, outcomeOf(err)).Observe(time.Since(start).Seconds())
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &port.NetworkError{Op: op, Err: fmt.Errorf("等待出站限速失败: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &port.ProtocolError{Op: op, Detail: "构造请求失败", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.opts.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &port.NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return nil, &port.NotFoundError{}
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return nil, &port.NetworkError{Op: op, StatusCode: resp.StatusCode}
	default:
		return nil, &port.ProtocolError{Op: op, Detail: fmt.Sprintf("意外的 HTTP 状态码 %d", resp.StatusCode)}
	}
	if readErr != nil {
		return nil, &port.NetworkError{Op: op, Err: fmt.Errorf("读取响应失败: %w", readErr)}
	}
	return data, nil
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, port.ErrNetwork):
		return "network"
	case errors.Is(err, port.ErrNotFound):
		return "not_found"
	default:
		return "protocol"
	}
}

func parseSearch(body []byte) (*domain.SearchPage, error) {
	var raw rawQueryResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &port.ProtocolError{Op: "search", Detail: "响应不是合法的 JSON", Err: err}
	}
	if raw.Error != "" {
		return nil, &port.ProtocolError{Op: "search", Detail: "上游返回错误: " + raw.Error}
	}
	if raw.Info == nil || raw.Plugins == nil {
		return nil, &port.ProtocolError{Op: "search", Detail: "缺少 info 或 plugins 字段"}
	}

	page := &domain.SearchPage{
		Plugins: make([]domain.PluginRecord, 0, len(*raw.Plugins)),
		Pagination: domain.Pagination{
			Page:    int(raw.Info.Page),
			Pages:   int(raw.Info.Pages),
			Results: int(raw.Info.Results),
		},
	}
	seen := make(map[string]struct{}, len(*raw.Plugins))
	for i, p := range *raw.Plugins {
		rec, err := p.toRecord()
		if err != nil {
			return nil, &port.ProtocolError{Op: "search", Detail: fmt.Sprintf("第 %d 条记录无效", i), Err: err}
		}
		if _, dup := seen[rec.Slug]; dup {
			return nil, &port.ProtocolError{Op: "search", Detail: fmt.Sprintf("结果中出现重复的 slug '%s'", rec.Slug)}
		}
		seen[rec.Slug] = struct{}{}
		page.Plugins = append(page.Plugins, rec)
	}
	return page, nil
}

func parseDetails(slug string, body []byte) (*domain.PluginRecord, error) {
	var raw rawPlugin
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &port.ProtocolError{Op: "details", Detail: "响应不是合法的 JSON", Err: err}
	}
	if raw.Error != "" {
		if strings.Contains(strings.ToLower(raw.Error), "not found") {
			return nil, &port.NotFoundError{Slug: slug}
		}
		return nil, &port.ProtocolError{Op: "details", Detail: "上游返回错误: " + raw.Error}
	}
	rec, err := raw.toRecord()
	if err != nil {
		return nil, &port.ProtocolError{Op: "details", Detail: "记录无效", Err: err}
	}
	return &rec, nil
}
