// internal/api/handlers.go
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/MedVisage/IVAStudioMCP/internal/errors"
	"github.com/MedVisage/IVAStudioMCP/internal/llm"
	"github.com/MedVisage/IVAStudioMCP/internal/models"
	"github.com/MedVisage/IVAStudioMCP/internal/services"
	"github.com/MedVisage/IVAStudioMCP/internal/templates"
)

// Handler 处理API请求
type Handler struct {
	// 核心服务
	IVAService     *services.IVAService     // IVA文档服务
	BuilderService *services.BuilderService // 构建器服务
	ChatService    *services.ChatService    // 对话服务
	ExportService  *services.ExportService  // 导出服务
	ConfigService  *services.ConfigService  // 配置服务
	LLMService     *services.LLMService     // LLM服务
	Response       *ResponseHelper          // 响应助手
}

// NewHandler 创建API处理器
func NewHandler(
	ivaService *services.IVAService,
	builderService *services.BuilderService,
	chatService *services.ChatService,
	exportService *services.ExportService,
	configService *services.ConfigService,
	llmService *services.LLMService,
) *Handler {
	return &Handler{
		IVAService:     ivaService,
		BuilderService: builderService,
		ChatService:    chatService,
		ExportService:  exportService,
		ConfigService:  configService,
		LLMService:     llmService,
		Response:       NewResponseHelper(),
	}
}

// APIResponse 标准API响应格式
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Message   string      `json:"message,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id,omitempty"` // 用于调试和追踪
}

// APIError 标准错误格式
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// ChatTurnRequest 对话回合请求
type ChatTurnRequest struct {
	Message string `json:"message"`
}

// SlotUpdateRequest 槽位写入请求
type SlotUpdateRequest struct {
	Value string `json:"value"`
}

// TransitionRequest 视图切换请求
type TransitionRequest struct {
	State models.AppState `json:"state"`
}

// UpdateLLMConfigRequest LLM配置更新请求
type UpdateLLMConfigRequest struct {
	Provider string            `json:"provider"`
	Config   map[string]string `json:"config"`
}

// ========================================
// 模板目录
// ========================================

// GetTemplates 返回全部幻灯片布局
func (h *Handler) GetTemplates(c *gin.Context) {
	h.Response.Success(c, templates.SlideTemplates)
}

// GetTemplate 按ID返回单个布局
func (h *Handler) GetTemplate(c *gin.Context) {
	id := c.Param("id")

	tpl, ok := templates.GetTemplateByID(id)
	if !ok {
		h.Response.NotFound(c, "模板", id)
		return
	}

	h.Response.Success(c, tpl)
}

// ========================================
// IVA文档
// ========================================

// GetIVAs 返回所有IVA，支持status查询参数过滤
func (h *Handler) GetIVAs(c *gin.Context) {
	status := c.Query("status")
	if status != "" {
		h.Response.Success(c, h.IVAService.GetByStatus(models.IVAStatus(status)))
		return
	}
	h.Response.Success(c, h.IVAService.GetAll())
}

// GetRecentIVAs 返回最近访问的IVA
func (h *Handler) GetRecentIVAs(c *gin.Context) {
	h.Response.Success(c, h.IVAService.GetRecent())
}

// GetFavoriteIVAs 返回收藏的IVA
func (h *Handler) GetFavoriteIVAs(c *gin.Context) {
	h.Response.Success(c, h.IVAService.GetFavorites())
}

// GetIVA 按ID返回单个IVA
func (h *Handler) GetIVA(c *gin.Context) {
	id := c.Param("id")

	iva, err := h.IVAService.GetByID(id)
	if err != nil {
		if apperrors.IsNotFoundError(err) {
			h.Response.NotFound(c, "IVA", id)
			return
		}
		h.Response.InternalError(c, "读取IVA失败", err.Error())
		return
	}

	h.Response.Success(c, iva)
}

// SaveIVA 保存IVA（新建或覆盖）
// POST /api/ivas 新建，PUT /api/ivas/:id 按路径ID覆盖
func (h *Handler) SaveIVA(c *gin.Context) {
	var iva models.IVA
	if err := c.ShouldBindJSON(&iva); err != nil {
		h.Response.BadRequest(c, "请求体不是有效的IVA文档", err.Error())
		return
	}

	// PUT路径上的ID优先于请求体
	if pathID := c.Param("id"); pathID != "" {
		iva.Metadata.ID = pathID
	}

	// 没有ID视为新建
	created := false
	if iva.Metadata.ID == "" {
		iva.Metadata.ID = services.GenerateID()
		created = true
	}
	if iva.Metadata.Status == "" {
		iva.Metadata.Status = models.StatusDraft
	}

	if err := h.IVAService.Save(&iva); err != nil {
		h.Response.Error(c, http.StatusInternalServerError, ErrorIVASaveFailed, "保存IVA失败", err.Error())
		return
	}

	if created {
		h.Response.Created(c, iva)
		return
	}
	h.Response.Success(c, iva, "保存成功")
}

// DeleteIVA 删除IVA
func (h *Handler) DeleteIVA(c *gin.Context) {
	id := c.Param("id")

	if err := h.IVAService.Delete(id); err != nil {
		if apperrors.IsNotFoundError(err) {
			h.Response.NotFound(c, "IVA", id)
			return
		}
		h.Response.InternalError(c, "删除IVA失败", err.Error())
		return
	}

	h.Response.Success(c, gin.H{"id": id}, "删除成功")
}

// ToggleFavorite 切换收藏状态
func (h *Handler) ToggleFavorite(c *gin.Context) {
	id := c.Param("id")

	favorite, err := h.IVAService.ToggleFavorite(id)
	if err != nil {
		h.Response.InternalError(c, "切换收藏状态失败", err.Error())
		return
	}

	h.Response.Success(c, gin.H{"id": id, "is_favorite": favorite})
}

// ExportIVA 导出IVA为静态站点压缩包
// 默认直接下载zip，format=json时返回导出摘要
func (h *Handler) ExportIVA(c *gin.Context) {
	id := c.Param("id")
	format := c.DefaultQuery("format", "zip")

	if h.ExportService == nil {
		h.Response.Error(c, http.StatusServiceUnavailable, ErrorExportServiceUnavailable,
			"导出服务未初始化", "无法获取导出服务实例")
		return
	}

	result, err := h.ExportService.ExportIVA(id)
	if err != nil {
		if apperrors.IsNotFoundError(err) {
			h.Response.NotFound(c, "IVA", id)
			return
		}
		h.Response.Error(c, http.StatusInternalServerError, ErrorExportFailed,
			"导出IVA失败", err.Error())
		return
	}

	if format == "json" {
		h.Response.Success(c, result, "导出成功")
		return
	}

	h.Response.DownloadResponse(c, result.Data, result.FileName, "application/zip")
}

// ========================================
// 无状态对话
// ========================================

// PostChat 执行一次无状态对话回合：调用方自带完整上下文快照
func (h *Handler) PostChat(c *gin.Context) {
	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Message == "" {
		h.Response.BadRequest(c, "缺少message字段")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 60*time.Second)
	defer cancel()

	response, err := h.ChatService.ProcessTurn(ctx, req)
	if err != nil {
		h.Response.Error(c, http.StatusServiceUnavailable, ErrorLLMServiceUnavailable,
			"对话服务不可用", err.Error())
		return
	}

	h.Response.Success(c, response)
}

// ========================================
// 构建器会话
// ========================================

// CreateBuilderSession 创建新的构建器会话
func (h *Handler) CreateBuilderSession(c *gin.Context) {
	session := h.BuilderService.CreateSession()

	h.Response.Created(c, gin.H{
		"session_id": session.ID,
		"created_at": session.CreatedAt,
		"state":      session.State(),
	})
}

// ListBuilderSessions 返回所有活跃会话的摘要
func (h *Handler) ListBuilderSessions(c *gin.Context) {
	sessions := h.BuilderService.ListSessions()

	summaries := make([]gin.H, 0, len(sessions))
	for _, session := range sessions {
		summaries = append(summaries, gin.H{
			"session_id": session.ID,
			"created_at": session.CreatedAt,
			"updated_at": session.UpdatedAt,
		})
	}

	h.Response.Success(c, gin.H{"sessions": summaries, "count": len(summaries)})
}

// GetBuilderSession 返回会话当前状态
func (h *Handler) GetBuilderSession(c *gin.Context) {
	id := c.Param("id")

	session, err := h.BuilderService.GetSession(id)
	if err != nil {
		h.Response.NotFound(c, "会话", id)
		return
	}

	h.Response.Success(c, gin.H{
		"session_id": session.ID,
		"state":      session.State(),
	})
}

// CloseBuilderSession 关闭会话
func (h *Handler) CloseBuilderSession(c *gin.Context) {
	id := c.Param("id")

	if _, err := h.BuilderService.GetSession(id); err != nil {
		h.Response.NotFound(c, "会话", id)
		return
	}

	h.BuilderService.CloseSession(id)
	h.Response.Success(c, gin.H{"session_id": id}, "会话已关闭")
}

// PostBuilderMessage 向会话提交一条用户消息，执行完整对话回合
func (h *Handler) PostBuilderMessage(c *gin.Context) {
	id := c.Param("id")

	var req ChatTurnRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Message == "" {
		h.Response.BadRequest(c, "缺少message字段")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 60*time.Second)
	defer cancel()

	state, err := h.BuilderService.ProcessMessage(ctx, id, req.Message)
	if err != nil {
		if apperrors.IsNotFoundError(err) {
			h.Response.NotFound(c, "会话", id)
			return
		}
		h.Response.Error(c, http.StatusInternalServerError, ErrorChatTurnFailed,
			"对话回合处理失败", err.Error())
		return
	}

	h.Response.Success(c, state)
}

// UpdateBuilderSlot 直接写入会话当前文档的单个槽位
func (h *Handler) UpdateBuilderSlot(c *gin.Context) {
	id := c.Param("id")

	slideIndex, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		h.Response.BadRequest(c, "幻灯片索引必须是整数", c.Param("index"))
		return
	}
	slotID := c.Param("slot")

	var req SlotUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "请求体格式错误", err.Error())
		return
	}

	state, err := h.BuilderService.UpdateSlot(id, slideIndex, slotID, req.Value)
	if err != nil {
		if apperrors.IsNotFoundError(err) {
			h.Response.NotFound(c, "会话", id)
			return
		}
		if apperrors.IsValidationError(err) {
			h.Response.BadRequest(c, err.Error())
			return
		}
		h.Response.Error(c, http.StatusInternalServerError, ErrorSlotUpdateFailed,
			"槽位写入失败", err.Error())
		return
	}

	h.Response.Success(c, state)
}

// directActionTypes UI侧允许直接下发的意图集合（不经过对话）
var directActionTypes = map[models.IntentType]bool{
	models.IntentSelectSlide:  true,
	models.IntentNextSlide:    true,
	models.IntentPrevSlide:    true,
	models.IntentSelectLayout: true,
	models.IntentSetContent:   true,
	models.IntentConfigureISI: true,
	models.IntentEditIVA:      true,
	models.IntentPreviewIVA:   true,
	models.IntentShowArchive:  true,
	models.IntentSaveIVA:      true,
	models.IntentExportIVA:    true,
	models.IntentGoBack:       true,
}

// PostBuilderAction 对会话直接应用一个UI动作（点击布局、翻页等）
func (h *Handler) PostBuilderAction(c *gin.Context) {
	id := c.Param("id")

	var intent models.Intent
	if err := c.ShouldBindJSON(&intent); err != nil {
		h.Response.BadRequest(c, "请求体格式错误", err.Error())
		return
	}

	if !directActionTypes[intent.Type] {
		h.Response.BadRequest(c, "不支持的动作类型", string(intent.Type))
		return
	}

	state, err := h.BuilderService.ApplyUIIntent(id, intent)
	if err != nil {
		h.Response.NotFound(c, "会话", id)
		return
	}

	h.Response.Success(c, state)
}

// TransitionBuilderSession 带稳定延迟的视图切换
func (h *Handler) TransitionBuilderSession(c *gin.Context) {
	id := c.Param("id")

	var req TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "请求体格式错误", err.Error())
		return
	}

	switch req.State {
	case models.StateLanding, models.StateBuild, models.StateEdit, models.StatePreview, models.StateArchive:
	default:
		h.Response.Error(c, http.StatusBadRequest, ErrorTransitionInvalid,
			"未知的目标视图", string(req.State))
		return
	}

	state, err := h.BuilderService.TransitionTo(id, req.State)
	if err != nil {
		h.Response.NotFound(c, "会话", id)
		return
	}

	h.Response.Success(c, state)
}

// ========================================
// LLM与配置
// ========================================

// GetLLMStatus 返回LLM服务就绪状态
func (h *Handler) GetLLMStatus(c *gin.Context) {
	ready, description := h.LLMService.GetProviderStatus()

	h.Response.Success(c, gin.H{
		"ready":       ready,
		"description": description,
		"provider":    h.LLMService.GetProviderName(),
		"model":       h.LLMService.GetDefaultModel(),
	})
}

// GetLLMModels 返回当前提供商支持的模型列表
func (h *Handler) GetLLMModels(c *gin.Context) {
	provider := h.LLMService.GetProvider()
	if provider == nil {
		h.Response.Error(c, http.StatusServiceUnavailable, ErrorLLMServiceUnavailable,
			"LLM服务未就绪", h.LLMService.GetReadyState())
		return
	}

	h.Response.Success(c, gin.H{
		"provider": provider.GetName(),
		"models":   provider.GetSupportedModels(),
	})
}

// GetLLMProviders 返回所有已注册的提供商
func (h *Handler) GetLLMProviders(c *gin.Context) {
	h.Response.Success(c, gin.H{
		"providers": llm.ListProviders(),
		"current":   h.LLMService.GetProviderName(),
	})
}

// UpdateLLMConfig 更新LLM提供商配置
func (h *Handler) UpdateLLMConfig(c *gin.Context) {
	var req UpdateLLMConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "请求体格式错误", err.Error())
		return
	}

	if req.Provider == "" {
		h.Response.Error(c, http.StatusBadRequest, ErrorLLMProviderMissing, "缺少provider字段")
		return
	}
	if req.Config == nil || req.Config["api_key"] == "" {
		h.Response.Error(c, http.StatusBadRequest, ErrorAPIKeyMissing, "缺少api_key配置")
		return
	}

	if err := h.ConfigService.UpdateLLMConfig(req.Provider, req.Config); err != nil {
		h.Response.Error(c, http.StatusInternalServerError, ErrorLLMConfigInvalid,
			"更新LLM配置失败", err.Error())
		return
	}

	// 让运行中的LLM服务立即切换到新提供商
	if err := h.LLMService.UpdateProvider(req.Provider, req.Config); err != nil {
		h.Response.Error(c, http.StatusInternalServerError, ErrorConnectionFailed,
			"LLM提供商初始化失败", err.Error())
		return
	}

	h.Response.Success(c, gin.H{"provider": req.Provider}, "LLM配置已更新")
}

// GetConfigHealth 配置健康检查
func (h *Handler) GetConfigHealth(c *gin.Context) {
	cfg := h.ConfigService.GetCurrentConfig()
	if cfg == nil {
		h.Response.Error(c, http.StatusServiceUnavailable, ErrorConfigNotLoaded, "配置未加载")
		return
	}

	ready, description := h.LLMService.GetProviderStatus()

	h.Response.Success(c, gin.H{
		"status":       "ok",
		"llm_ready":    ready,
		"llm_status":   description,
		"llm_provider": cfg.LLMProvider,
		"data_dir":     cfg.DataDir,
		"debug_mode":   cfg.DebugMode,
	})
}
