// internal/app/app.go
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/MedVisage/IVAStudioMCP/internal/api"
	"github.com/MedVisage/IVAStudioMCP/internal/config"
	"github.com/MedVisage/IVAStudioMCP/internal/di"
	"github.com/MedVisage/IVAStudioMCP/internal/services"
	"github.com/MedVisage/IVAStudioMCP/internal/storage"
	"github.com/MedVisage/IVAStudioMCP/internal/utils"
)

// App 应用程序单例
type App struct {
	config   *config.AppConfig
	router   *gin.Engine
	server   *http.Server
	stopChan chan struct{}
}

var instance *App

// GetApp 获取应用实例（单例）
func GetApp() *App {
	if instance == nil {
		instance = &App{
			stopChan: make(chan struct{}),
		}
	}
	return instance
}

// Initialize 初始化应用：配置、日志、服务、路由
func (a *App) Initialize() error {
	// 1. 配置系统
	baseConfig, err := config.Load()
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}

	if err := config.InitConfig(baseConfig.DataDir); err != nil {
		return fmt.Errorf("初始化配置系统失败: %w", err)
	}
	a.config = config.GetCurrentConfig()

	// 2. 日志系统
	if err := a.initLogger(); err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}

	// 3. 服务（按依赖顺序注册到容器）
	if err := InitServices(); err != nil {
		return fmt.Errorf("初始化服务失败: %w", err)
	}

	// 4. 路由
	router, err := api.SetupRouter()
	if err != nil {
		return fmt.Errorf("设置路由失败: %w", err)
	}
	a.router = router

	return nil
}

// initLogger 初始化日志输出到文件
func (a *App) initLogger() error {
	logDir := a.config.LogDir
	if logDir == "" {
		logDir = "logs"
	}

	if err := os.MkdirAll(logDir, 0755); err != nil {
		return err
	}

	logFile := filepath.Join(logDir, "app.log")
	return utils.InitLogger(logFile)
}

// InitServices 按依赖顺序初始化所有服务并注册到DI容器
func InitServices() error {
	container := di.GetContainer()
	cfg := config.GetCurrentConfig()

	// 1. 存储层
	fileStorage, err := storage.NewFileStorage(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("初始化文件存储失败: %w", err)
	}
	container.Register("storage", fileStorage)

	// 2. LLM服务（未配置时返回未就绪实例，不阻塞启动）
	llmService, err := services.NewLLMService()
	if err != nil {
		utils.GetLogger().Warn("LLM service starting in not-ready state", map[string]interface{}{
			"error": err.Error(),
		})
		llmService = services.NewEmptyLLMService()
	}
	container.Register("llm", llmService)

	// 3. IVA文档服务
	ivaService := services.NewIVAService(fileStorage)
	container.Register("iva", ivaService)

	// 4. 对话服务依赖LLM
	chatService := services.NewChatService(llmService)
	container.Register("chat", chatService)

	// 5. 导出服务依赖IVA
	exportDir := cfg.ExportDir
	if exportDir == "" {
		exportDir = filepath.Join(cfg.DataDir, "exports")
	}
	exportService := services.NewExportService(ivaService, exportDir)
	container.Register("export", exportService)

	// 6. 构建器服务编排以上全部
	transitionDelay := time.Duration(cfg.TransitionDelayMs) * time.Millisecond
	builderService := services.NewBuilderService(ivaService, chatService, exportService, transitionDelay)
	container.Register("builder", builderService)

	// 7. 配置服务
	container.Register("config", services.NewConfigService())

	return nil
}

// Run 启动HTTP服务器，阻塞直到Stop被调用
func (a *App) Run() error {
	if a.router == nil {
		return fmt.Errorf("应用未初始化，请先调用Initialize")
	}

	a.server = &http.Server{
		Addr:    ":" + a.config.Port,
		Handler: a.router,
	}

	errChan := make(chan error, 1)
	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	utils.GetLogger().Info("Server started", map[string]interface{}{
		"port": a.config.Port,
	})

	select {
	case err := <-errChan:
		return err
	case <-a.stopChan:
		return a.cleanup()
	}
}

// Stop 触发优雅关闭
func (a *App) Stop() {
	select {
	case <-a.stopChan:
		// 已经关闭
	default:
		close(a.stopChan)
	}
}

// cleanup 优雅关闭HTTP服务器并释放资源
func (a *App) cleanup() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("服务器关闭失败: %w", err)
		}
	}

	utils.GetLogger().Info("Server stopped", nil)
	return nil
}

// GetConfig 返回当前应用配置
func (a *App) GetConfig() *config.AppConfig {
	return a.config
}

// GetDIContainer 返回依赖注入容器
func (a *App) GetDIContainer() *di.Container {
	return di.GetContainer()
}

// IsDebugMode 返回是否处于调试模式
func (a *App) IsDebugMode() bool {
	if a.config == nil {
		return false
	}
	return a.config.DebugMode
}
