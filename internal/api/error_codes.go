// internal/api/error_codes.go
package api

// API错误代码常量
const (
	// 通用错误
	ErrorBadRequest    = "BAD_REQUEST"
	ErrorNotFound      = "NOT_FOUND"
	ErrorInternalError = "INTERNAL_ERROR"
	ErrorConflict      = "CONFLICT"

	// IVA文档相关错误
	ErrorIVANotFound   = "IVA_NOT_FOUND"
	ErrorIVAInvalid    = "IVA_INVALID"
	ErrorIVASaveFailed = "IVA_SAVE_FAILED"

	// 模板相关错误
	ErrorTemplateNotFound = "TEMPLATE_NOT_FOUND"

	// 构建器会话相关错误
	ErrorSessionNotFound    = "SESSION_NOT_FOUND"
	ErrorChatTurnFailed     = "CHAT_TURN_FAILED"
	ErrorSlotUpdateFailed   = "SLOT_UPDATE_FAILED"
	ErrorTransitionInvalid  = "TRANSITION_INVALID"
	ErrorSessionStateFailed = "SESSION_STATE_FAILED"

	// LLM服务相关错误
	ErrorLLMServiceUnavailable = "LLM_SERVICE_UNAVAILABLE"
	ErrorLLMConfigInvalid      = "LLM_CONFIG_INVALID"
	ErrorConnectionFailed      = "CONNECTION_FAILED"

	// 导出相关错误
	ErrorExportFailed             = "EXPORT_FAILED"
	ErrorExportServiceUnavailable = "EXPORT_SERVICE_UNAVAILABLE"
	ErrorExportDataEmpty          = "EXPORT_DATA_EMPTY"
	ErrorExportTimeout            = "EXPORT_TIMEOUT"

	// 配置健康相关
	ErrorConfigUnhealthy    = "CONFIG_UNHEALTHY"
	ErrorConfigNotLoaded    = "CONFIG_NOT_LOADED"
	ErrorLLMProviderMissing = "LLM_PROVIDER_MISSING"
	ErrorAPIKeyMissing      = "API_KEY_MISSING"
)
