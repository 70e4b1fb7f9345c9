// Package middleware file: internal/transport/http/middleware/error_handler.go
package middleware

import (
	"PluginLens/internal/core/port"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// StatusFor 把业务错误映射为 HTTP 状态码
func StatusFor(err error) int {
	var ve validator.ValidationErrors
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &ve), errors.Is(err, port.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, port.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, port.ErrNetwork):
		return http.StatusServiceUnavailable
	case errors.Is(err, port.ErrProtocol):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ErrorHandlingMiddleware 是一个Gin中间件，用于集中处理错误。
// 处理器通过 c.Error(err) 附加错误后直接返回，由这里统一输出 JSON。
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		// 只处理最后一个错误，它通常是根本原因
		err := c.Errors.Last().Err
		status := StatusFor(err)

		// 参数绑定阶段的校验错误
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			details := make([]port.FieldViolation, 0, len(ve))
			for _, fe := range ve {
				details = append(details, port.FieldViolation{Field: fe.Field(), Reason: fe.Tag() + " " + fe.Param()})
			}
			c.JSON(status, gin.H{"error": "请求参数验证失败", "details": details})
			return
		}

		var verr *port.ValidationError
		switch {
		case errors.As(err, &verr):
			c.JSON(status, gin.H{"error": port.ErrValidation.Error(), "details": verr.Violations})
		case status == http.StatusInternalServerError:
			slog.Error("请求处理失败", "path", c.FullPath(), "request_id", RequestIDFrom(c), "error", err)
			c.JSON(status, gin.H{"error": "服务器内部错误"})
		default:
			c.JSON(status, gin.H{"error": err.Error()})
		}
	}
}
