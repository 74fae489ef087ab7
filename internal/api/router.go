// internal/api/router.go
package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/MedVisage/IVAStudioMCP/internal/config"
	"github.com/MedVisage/IVAStudioMCP/internal/di"
	"github.com/MedVisage/IVAStudioMCP/internal/services"
)

// SetupRouter 配置HTTP路由
func SetupRouter() (*gin.Engine, error) {
	// 获取配置
	cfg := config.GetCurrentConfig()

	// 获取依赖注入容器
	container := di.GetContainer()

	// 只从容器获取服务，不再创建新实例
	ivaService, ok := container.Get("iva").(*services.IVAService)
	if !ok {
		return nil, fmt.Errorf("IVA服务未正确初始化")
	}

	builderService, ok := container.Get("builder").(*services.BuilderService)
	if !ok {
		return nil, fmt.Errorf("构建器服务未正确初始化")
	}

	chatService, ok := container.Get("chat").(*services.ChatService)
	if !ok {
		return nil, fmt.Errorf("对话服务未正确初始化")
	}

	exportService, ok := container.Get("export").(*services.ExportService)
	if !ok {
		return nil, fmt.Errorf("导出服务未正确初始化")
	}

	configService, ok := container.Get("config").(*services.ConfigService)
	if !ok {
		return nil, fmt.Errorf("配置服务未正确初始化")
	}

	llmService, ok := container.Get("llm").(*services.LLMService)
	if !ok {
		return nil, fmt.Errorf("LLM服务未正确初始化")
	}

	// 创建API处理器 - 只传递从容器获取的服务
	handler := NewHandler(
		ivaService,
		builderService,
		chatService,
		exportService,
		configService,
		llmService,
	)

	wsHandler := NewWebSocketHandler(builderService)

	// 创建路由
	r := gin.Default()

	// 中间件
	r.Use(corsMiddleware())
	r.Use(requestIDMiddleware())

	// HTTPS重定向（生产环境）
	if !cfg.DebugMode {
		r.Use(func(c *gin.Context) {
			if c.Request.Header.Get("X-Forwarded-Proto") != "https" {
				c.Redirect(http.StatusPermanentRedirect,
					"https://"+c.Request.Host+c.Request.URL.Path)
				return
			}
			c.Next()
		})
	}

	// 静态文件服务
	if cfg.StaticDir != "" {
		r.Static("/static", cfg.StaticDir)
	}

	// WebSocket 支持
	r.GET("/ws/builder/:id", wsHandler.BuilderWebSocket)

	// ===============================
	// API路由组
	// ===============================
	api := r.Group("/api")
	{
		// ===============================
		// 模板目录
		// ===============================
		templatesGroup := api.Group("/templates")
		{
			templatesGroup.GET("", handler.GetTemplates)
			templatesGroup.GET("/:id", handler.GetTemplate)
		}

		// ===============================
		// IVA文档相关路由
		// ===============================
		ivasGroup := api.Group("/ivas")
		{
			ivasGroup.GET("", handler.GetIVAs)
			ivasGroup.POST("", handler.SaveIVA)
			ivasGroup.GET("/recent", handler.GetRecentIVAs)
			ivasGroup.GET("/favorites", handler.GetFavoriteIVAs)
			ivasGroup.GET("/:id", handler.GetIVA)
			ivasGroup.PUT("/:id", handler.SaveIVA)
			ivasGroup.DELETE("/:id", handler.DeleteIVA)
			ivasGroup.POST("/:id/favorite", handler.ToggleFavorite)
			ivasGroup.GET("/:id/export", handler.ExportIVA)
		}

		// ===============================
		// 无状态对话
		// ===============================
		api.POST("/chat", handler.PostChat)

		// ===============================
		// 构建器会话相关路由
		// ===============================
		builderGroup := api.Group("/builder/sessions")
		{
			builderGroup.POST("", handler.CreateBuilderSession)
			builderGroup.GET("", handler.ListBuilderSessions)
			builderGroup.GET("/:id", handler.GetBuilderSession)
			builderGroup.DELETE("/:id", handler.CloseBuilderSession)
			builderGroup.POST("/:id/messages", handler.PostBuilderMessage)
			builderGroup.POST("/:id/actions", handler.PostBuilderAction)
			builderGroup.PUT("/:id/slides/:index/slots/:slot", handler.UpdateBuilderSlot)
			builderGroup.POST("/:id/transition", handler.TransitionBuilderSession)
		}

		// ===============================
		// LLM配置相关路由
		// ===============================
		llmGroup := api.Group("/llm")
		{
			llmGroup.GET("/status", handler.GetLLMStatus)
			llmGroup.GET("/models", handler.GetLLMModels)
			llmGroup.GET("/providers", handler.GetLLMProviders)
			llmGroup.PUT("/config", handler.UpdateLLMConfig)
		}

		// ===============================
		// 配置健康检查
		// ===============================
		configGroup := api.Group("/config")
		{
			configGroup.GET("/health", handler.GetConfigHealth)
		}
	}

	return r, nil
}
