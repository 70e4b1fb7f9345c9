// file: internal/transport/http/router/router.go
package router

import (
	"PluginLens/internal/core/port"
	"PluginLens/internal/observe"
	"PluginLens/internal/transport/http/middleware"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
)

// Dependencies 结构体用于将所有依赖项注入到路由器中
type Dependencies struct {
	Service port.PluginQueryService
	// Limiter 为 nil 时不限流
	Limiter *middleware.IPRateLimiter
	// AllowOrigins 为空时允许任意来源
	AllowOrigins []string
	// AccessLog 是否输出访问日志
	AccessLog bool
	// Admin 校验控制平面写操作的令牌，为 nil 时不鉴权
	Admin middleware.TokenVerifier
}

// New 创建并配置基于 Gin 的 HTTP 路由器 (V1 版本)
func New(deps Dependencies) http.Handler {
	router := gin.New()

	// --- 配置全局中间件 ---
	router.Use(gin.Recovery(), middleware.RequestID(), observe.PrometheusMiddleware())
	if deps.AccessLog {
		router.Use(middleware.AccessLog(observe.Component("http")))
	}
	router.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	origins := deps.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:  origins,
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", middleware.HeaderRequestID},
		ExposeHeaders: []string{"Content-Length", middleware.HeaderRequestID},
		MaxAge:        12 * time.Hour,
	}))

	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(observe.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(middleware.ErrorHandlingMiddleware())
	if deps.Limiter != nil {
		v1.Use(deps.Limiter.Middleware())
	}
	{
		// --- 查询平面 ---
		pluginGroup := v1.Group("/plugins")
		{
			pluginGroup.GET("", listPluginsHandler(deps.Service))
			pluginGroup.POST("/query", queryPluginsHandler(deps.Service))
		}

		// --- 控制平面 (读操作公开，写操作需要管理令牌) ---
		requireAdmin := middleware.RequireAdmin(deps.Admin)
		cacheGroup := v1.Group("/cache")
		{
			cacheGroup.GET("/stats", cacheStatsHandler(deps.Service))
			cacheGroup.DELETE("", requireAdmin, invalidateCacheHandler(deps.Service))
		}
		configGroup := v1.Group("/config")
		{
			configGroup.GET("", getConfigHandler(deps.Service))
			configGroup.PUT("/weights", requireAdmin, updateWeightsHandler(deps.Service))
		}
	}

	return router
}
