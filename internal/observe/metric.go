// Package observe 暴露 Prometheus 指标
package observe

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 指标定义
var (
	httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pluginlens_http_request_duration_seconds",
		Help:    "HTTP 请求耗时",
		Buckets: prometheus.DefBuckets,
	}, []string{"path", "method", "code"})

	// CacheLookups 元数据缓存查询次数，result: hit / miss / stale / error
	CacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pluginlens_cache_lookups_total",
		Help: "元数据缓存查询次数",
	}, []string{"kind", "result"})

	// CacheWrites 元数据缓存写入次数
	CacheWrites = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pluginlens_cache_writes_total",
		Help: "元数据缓存写入次数",
	}, []string{"kind"})

	// CacheInvalidated 被手动失效的条目数
	CacheInvalidated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pluginlens_cache_invalidated_entries_total",
		Help: "被手动失效的缓存条目数",
	})

	// UpstreamRequestDuration 目录 API 单次请求耗时，outcome: ok / network / protocol / not_found
	UpstreamRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pluginlens_upstream_request_duration_seconds",
		Help:    "目录 API 请求耗时",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"op", "outcome"})

	// UpstreamRetries 目录 API 重试次数
	UpstreamRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pluginlens_upstream_retries_total",
		Help: "目录 API 重试次数",
	}, []string{"op"})

	// QueryOutcomes 查询流水线结果，outcome: cached / fresh / degraded / invalid
	QueryOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pluginlens_query_outcomes_total",
		Help: "查询流水线结果计数",
	}, []string{"outcome"})

	// ConfigRevision 当前生效的评分配置版本
	ConfigRevision = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pluginlens_algorithm_config_revision",
		Help: "当前生效的评分配置版本号",
	})
)

// Register 必须在 main 调用一次
func Register() {
	prometheus.MustRegister(
		httpRequestDuration,
		CacheLookups,
		CacheWrites,
		CacheInvalidated,
		UpstreamRequestDuration,
		UpstreamRetries,
		QueryOutcomes,
		ConfigRevision,
	)
}

// Handler 返回 HTTP 处理器
func Handler() http.Handler { return promhttp.Handler() }

// PrometheusMiddleware 记录每个请求的耗时，path 使用路由模板避免标签爆炸
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		httpRequestDuration.
			WithLabelValues(path, c.Request.Method, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
