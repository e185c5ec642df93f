package app

import (
	"time"

	"pdf-chat-go/internal/config"
	"pdf-chat-go/internal/handler"
	"pdf-chat-go/internal/middleware"
	"pdf-chat-go/internal/service"
	"pdf-chat-go/pkg/metrics"

	"github.com/gin-gonic/gin"
)

// NewRouter 创建 gin 引擎并注册所有路由。
func NewRouter(cfg *config.Config, docs service.DocumentService, chat service.ChatService, caps handler.Capabilities) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), gin.Recovery())
	if cfg.Server.RateLimit > 0 {
		r.Use(middleware.RateLimit(middleware.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst)))
	}

	maxUpload := int64(cfg.Server.MaxUploadMB) << 20
	if maxUpload > 0 {
		r.MaxMultipartMemory = maxUpload
	}
	timeout := time.Duration(cfg.Server.RequestTimeout) * time.Second

	documentHandler := handler.NewDocumentHandler(docs, maxUpload)
	chatHandler := handler.NewChatHandler(chat, timeout)
	sessionHandler := handler.NewSessionHandler(chat)
	healthHandler := handler.NewHealthHandler(caps)

	apiV1 := r.Group("/api/v1")
	apiV1.Use(middleware.RequestTimeout(timeout))
	{
		apiV1.GET("/health", healthHandler.Health)
		apiV1.GET("/ping", healthHandler.Ping)

		documents := apiV1.Group("/documents")
		{
			documents.POST("", documentHandler.Upload)
			documents.GET("", documentHandler.List)
			documents.DELETE("/:id", documentHandler.Delete)
			documents.POST("/:id/process", documentHandler.Process)
		}

		apiV1.POST("/chat", chatHandler.Chat)

		sessions := apiV1.Group("/sessions")
		{
			sessions.GET("", sessionHandler.List)
			sessions.GET("/:id/history", sessionHandler.History)
		}
	}

	// WebSocket 连接是长连接，每个问题单独限时
	r.GET("/chat/:sessionId", chatHandler.Handle)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	return r
}
