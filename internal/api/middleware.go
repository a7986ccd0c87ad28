package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/DrJLabs/Forgetful-sub001/internal/identity"
	"github.com/DrJLabs/Forgetful-sub001/internal/models"
	"github.com/DrJLabs/Forgetful-sub001/pkg/logger"
	"github.com/DrJLabs/Forgetful-sub001/pkg/ratelimiter"
)

// clientNameKey 是认证中间件写入 Gin 上下文的调用方客户端名。
const clientNameKey = "clientName"

// AuthMiddleware 创建一个 Gin 中间件，用于验证 JWT。
// 令牌的 subject 是注册应用名，即会话描述符中声明的客户端名。
func AuthMiddleware(tokens *identity.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "请求未包含授权标头"})
			c.Abort()
			return
		}

		// 我们期望的格式是 "Bearer <token>"
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "授权标头格式不正确"})
			c.Abort()
			return
		}

		appName, err := tokens.Verify(parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "无效的 token"})
			c.Abort()
			return
		}

		// 将声明的客户端名存入上下文，供会话描述符组装使用
		c.Set(clientNameKey, appName)
		c.Next()
	}
}

// RateLimitMiddleware 创建一个限流中间件。
// 限流 key 优先使用已认证的客户端名，未认证时退回客户端地址。
func RateLimitMiddleware(limiter ratelimiter.RateLimiter, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if name, ok := c.Get(clientNameKey); ok {
			key = name.(string)
		}

		allowed, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			// 限流器故障时放行请求：可用性优先于精确限流。
			log.WithError(models.ErrorInfo{Message: err.Error()}).Warn("限流器检查失败，请求放行")
			c.Next()
			return
		}
		if !allowed {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "请求过于频繁，请稍后再试"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequestLogger 创建一个结构化请求日志中间件。
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.WithRequest(models.RequestInfo{
			Method:     c.Request.Method,
			Path:       c.Request.URL.Path,
			RemoteAddr: c.ClientIP(),
			UserAgent:  c.Request.UserAgent(),
		}).WithPayload(map[string]interface{}{
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
		}).Info("request completed")
	}
}
