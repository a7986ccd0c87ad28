package api

import (
	"github.com/gin-gonic/gin"

	"github.com/DrJLabs/Forgetful-sub001/internal/identity"
	"github.com/DrJLabs/Forgetful-sub001/pkg/logger"
	"github.com/DrJLabs/Forgetful-sub001/pkg/ratelimiter"
)

// SetupRouter 配置并返回 Gin 引擎。
// 健康检查不经过限流，记忆路由要求 Bearer token。
func SetupRouter(h *Handler, tokens *identity.TokenService, limiter ratelimiter.RateLimiter, log *logger.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log))

	r.GET("/healthz", h.Healthz)

	apiV1 := r.Group("/api/v1")
	{
		// 公开路由：应用注册与登录，按客户端地址限流
		apps := apiV1.Group("/apps")
		if limiter != nil {
			apps.Use(RateLimitMiddleware(limiter, log))
		}
		{
			apps.POST("", h.RegisterApp)
			apps.POST("/login", h.LoginApp)
		}

		// 受保护的路由：全部记忆操作，认证之后按应用名限流
		memories := apiV1.Group("/memories")
		memories.Use(AuthMiddleware(tokens))
		if limiter != nil {
			memories.Use(RateLimitMiddleware(limiter, log))
		}
		{
			memories.POST("", h.CreateMemories)
			memories.POST("/search", h.SearchMemories)
			memories.GET("", h.ListMemories)
			memories.GET("/history", h.GetHistory)
			memories.GET("/:id", h.GetMemory)
			memories.DELETE("", h.DeleteAllMemories)
		}
	}

	return r
}
