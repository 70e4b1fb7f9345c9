// Package middleware file: internal/transport/http/middleware/limiter.go
package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// IPRateLimiter 按客户端 IP 限流。每个 IP 一个令牌桶，15 分钟不活跃后回收。
type IPRateLimiter struct {
	limiters *gocache.Cache
	global   *rate.Limiter
	rate     rate.Limit
	burst    int
}

// NewIPRateLimiter perIP 为每秒请求数；globalRate <= 0 时不设全局限制
func NewIPRateLimiter(perIP float64, burst int, globalRate float64, globalBurst int) *IPRateLimiter {
	l := &IPRateLimiter{
		limiters: gocache.New(15*time.Minute, 10*time.Minute),
		rate:     rate.Limit(perIP),
		burst:    burst,
	}
	if globalRate > 0 {
		l.global = rate.NewLimiter(rate.Limit(globalRate), globalBurst)
	}
	return l
}

// limiterFor 返回或创建指定IP的速率限制器，每次访问都会续期
func (l *IPRateLimiter) limiterFor(ip string) *rate.Limiter {
	if v, ok := l.limiters.Get(ip); ok {
		lim := v.(*rate.Limiter)
		l.limiters.SetDefault(ip, lim)
		return lim
	}
	lim := rate.NewLimiter(l.rate, l.burst)
	// 并发首次访问时以先写入者为准
	if err := l.limiters.Add(ip, lim, gocache.DefaultExpiration); err != nil {
		if v, ok := l.limiters.Get(ip); ok {
			return v.(*rate.Limiter)
		}
	}
	return lim
}

// Allow 判断该 IP 此刻能否继续请求
func (l *IPRateLimiter) Allow(ip string) bool {
	if l.global != nil && !l.global.Allow() {
		return false
	}
	return l.limiterFor(ip).Allow()
}

// Middleware 返回 gin 中间件
func (l *IPRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(c.ClientIP()) {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "请求过于频繁，请稍后再试。"})
			return
		}
		c.Next()
	}
}
