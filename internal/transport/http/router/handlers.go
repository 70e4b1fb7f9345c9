// file: internal/transport/http/router/handlers.go
package router

import (
	"PluginLens/internal/core/domain"
	"PluginLens/internal/core/port"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// pluginListParams GET /plugins 的查询参数
type pluginListParams struct {
	Search        string   `form:"search"`
	Page          int      `form:"page" binding:"omitempty,gte=1"`
	PageSize      int      `form:"page_size" binding:"omitempty,gte=1,lte=250"`
	MinInstalls   *int64   `form:"min_installs" binding:"omitempty,gte=0"`
	MaxInstalls   *int64   `form:"max_installs" binding:"omitempty,gte=0"`
	UpdatedWithin string   `form:"updated_within" binding:"omitempty,oneof=week month quarter half-year year"`
	MinUsability  *float64 `form:"min_usability"`
	MinHealth     *int     `form:"min_health"`
	MinRating     *float64 `form:"min_rating"`
	Unrated       bool     `form:"unrated"`
	Sort          string   `form:"sort"`
	Order         string   `form:"order"`
	Details       bool     `form:"details"`
}

func (p pluginListParams) toRequest() domain.QueryRequest {
	return domain.QueryRequest{
		Search:   p.Search,
		Page:     p.Page,
		PageSize: p.PageSize,
		Filter: domain.FilterSpec{
			MinInstalls:   p.MinInstalls,
			MaxInstalls:   p.MaxInstalls,
			UpdatedWithin: domain.RecencyBucket(p.UpdatedWithin),
			MinUsability:  p.MinUsability,
			MinHealth:     p.MinHealth,
			MinRating:     p.MinRating,
			Unrated:       p.Unrated,
		},
		Sort:        domain.SortSpec{Field: domain.SortField(p.Sort), Direction: domain.SortDirection(p.Order)},
		WithDetails: p.Details,
	}
}

// bindError 校验错误原样交给错误中间件，类型转换失败（如 page=abc）转为参数错误
func bindError(err error) error {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		return err
	}
	return port.NewValidationError("query", err.Error())
}

// listPluginsHandler GET /api/v1/plugins
func listPluginsHandler(svc port.PluginQueryService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var params pluginListParams
		if err := c.ShouldBindQuery(&params); err != nil {
			_ = c.Error(bindError(err))
			return
		}
		respondQuery(c, svc, params.toRequest())
	}
}

// queryPluginsHandler POST /api/v1/plugins/query，请求体即 domain.QueryRequest
func queryPluginsHandler(svc port.PluginQueryService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req domain.QueryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			_ = c.Error(port.NewValidationError("body", "无效的请求体: "+err.Error()))
			return
		}
		respondQuery(c, svc, req)
	}
}

// respondQuery 降级结果仍以 200 返回，并附带 warning 说明上游故障
func respondQuery(c *gin.Context, svc port.PluginQueryService, req domain.QueryRequest) {
	result, err := svc.QueryPlugins(c.Request.Context(), req)
	if err != nil && result == nil {
		_ = c.Error(err)
		return
	}
	body := gin.H{"data": result}
	if err != nil {
		body["warning"] = err.Error()
		c.Header("Warning", `110 - "Response is Stale"`)
	}
	c.JSON(http.StatusOK, body)
}

func cacheStatsHandler(svc port.PluginQueryService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"data": svc.CacheStats()})
	}
}

// invalidateCacheHandler DELETE /api/v1/cache?kind=... 或 ?prefix=...，都不带时清空全部
func invalidateCacheHandler(svc port.PluginQueryService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if prefix := c.Query("prefix"); prefix != "" {
			c.JSON(http.StatusOK, gin.H{"removed": svc.InvalidateCachePrefix(prefix)})
			return
		}
		n, err := svc.InvalidateCache(c.Query("kind"))
		if err != nil {
			_ = c.Error(err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"removed": n})
	}
}

func getConfigHandler(svc port.PluginQueryService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"data": svc.AlgorithmConfig()})
	}
}

// updateWeightsHandler PUT /api/v1/config/weights
func updateWeightsHandler(svc port.PluginQueryService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var update domain.WeightsUpdate
		if err := c.ShouldBindJSON(&update); err != nil {
			_ = c.Error(port.NewValidationError("body", "无效的请求体: "+err.Error()))
			return
		}
		if err := svc.UpdateAlgorithmConfig(c.Request.Context(), update); err != nil {
			_ = c.Error(err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": svc.AlgorithmConfig()})
	}
}
