// internal/models/chat.go
package models

import "time"

// AppState 应用当前所处的界面模式
type AppState string

const (
	StateLanding AppState = "LANDING"
	StateBuild   AppState = "BUILD"
	StateEdit    AppState = "EDIT"
	StatePreview AppState = "PREVIEW"
	StateArchive AppState = "ARCHIVE"
)

// ConversationPhase 引导式对话所处的阶段
// 阶段构成一条松散的前进路径，外部协作方通过 next_phase 建议切换，
// 本系统不校验可达性
type ConversationPhase string

const (
	PhaseInitial           ConversationPhase = "initial"
	PhaseBrandSelection    ConversationPhase = "brand_selection"
	PhaseAudienceSelection ConversationPhase = "audience_selection"
	PhaseSlideStructure    ConversationPhase = "slide_structure"
	PhaseLayoutSelection   ConversationPhase = "layout_selection"
	PhaseContentPopulation ConversationPhase = "content_population"
	PhaseISIConfiguration  ConversationPhase = "isi_configuration"
	PhaseReview            ConversationPhase = "review"
	PhaseEditing           ConversationPhase = "editing"
)

// IsValidPhase 检查阶段标签是否属于已知词汇表
func IsValidPhase(p ConversationPhase) bool {
	switch p {
	case PhaseInitial, PhaseBrandSelection, PhaseAudienceSelection,
		PhaseSlideStructure, PhaseLayoutSelection, PhaseContentPopulation,
		PhaseISIConfiguration, PhaseReview, PhaseEditing:
		return true
	}
	return false
}

// MessageRole 消息角色
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Message 会话消息，仅存在于当前会话，不持久化
type Message struct {
	ID        string      `json:"id"`
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
	UIAction  *UIAction   `json:"ui_action,omitempty"`
}

// IntentType 意图类型（封闭集合）
type IntentType string

const (
	IntentCreateIVA          IntentType = "create_iva"
	IntentSetBrand           IntentType = "set_brand"
	IntentSetAudience        IntentType = "set_audience"
	IntentSetTherapeuticArea IntentType = "set_therapeutic_area"
	IntentSetSlideCount      IntentType = "set_slide_count"
	IntentSetIVAName         IntentType = "set_iva_name"
	IntentSetSlideIntent     IntentType = "set_slide_intent"
	IntentSelectLayout       IntentType = "select_layout"
	IntentSetContent         IntentType = "set_content"
	IntentSelectSlide        IntentType = "select_slide"
	IntentNextSlide          IntentType = "next_slide"
	IntentPrevSlide          IntentType = "prev_slide"
	IntentConfigureISI       IntentType = "configure_isi"
	IntentEditIVA            IntentType = "edit_iva"
	IntentPreviewIVA         IntentType = "preview_iva"
	IntentShowArchive        IntentType = "show_archive"
	IntentSaveIVA            IntentType = "save_iva"
	IntentExportIVA          IntentType = "export_iva"
	IntentGoBack             IntentType = "go_back"
	IntentUnknown            IntentType = "unknown"
)

// Intent 从用户自由文本中提取出的结构化指令
// Type 决定哪些附加字段有意义
type Intent struct {
	Type IntentType `json:"type"`

	Brand       Brand           `json:"brand,omitempty"`
	Audience    string          `json:"audience,omitempty"`
	Area        TherapeuticArea `json:"area,omitempty"`
	Count       int             `json:"count,omitempty"`
	Name        string          `json:"name,omitempty"`
	SlideIndex  int             `json:"slide_index,omitempty"`
	SlideIntent string          `json:"intent,omitempty"`
	LayoutID    string          `json:"layout_id,omitempty"`
	Field       string          `json:"field,omitempty"`
	Value       string          `json:"value,omitempty"`
	ISIConfig   *ISIConfig      `json:"config,omitempty"`
	IVAID       string          `json:"iva_id,omitempty"`
	RawInput    string          `json:"raw_input,omitempty"`
}

// UnknownIntent 构造兜底意图
func UnknownIntent(rawInput string) Intent {
	return Intent{Type: IntentUnknown, RawInput: rawInput}
}

// UIActionType UI指令类型（可选、建议性）
type UIActionType string

const (
	UIShowLayouts      UIActionType = "show_layouts"
	UIShowSlidePreview UIActionType = "show_slide_preview"
	UIHighlightSlot    UIActionType = "highlight_slot"
	UIShowEditOptions  UIActionType = "show_edit_options"
	UIShowISIOptions   UIActionType = "show_isi_options"
	UITriggerExport    UIActionType = "trigger_export"
	UINavigateTo       UIActionType = "navigate_to"
)

// UIAction 附加在协议应答上的UI指令
type UIAction struct {
	Type       UIActionType    `json:"type"`
	Layouts    []SlideTemplate `json:"layouts,omitempty"`
	SlideIndex int             `json:"slide_index,omitempty"`
	SlotID     string          `json:"slot_id,omitempty"`
	IVAID      string          `json:"iva_id,omitempty"`
	State      AppState        `json:"state,omitempty"`
}

// ChatContext 随每次对话请求转发的上下文快照
type ChatContext struct {
	CurrentState        AppState          `json:"current_state"`
	CurrentIVA          *IVA              `json:"current_iva,omitempty"`
	CurrentSlideIndex   int               `json:"current_slide_index"`
	ConversationHistory []Message         `json:"conversation_history"`
	ConversationPhase   ConversationPhase `json:"conversation_phase"`
}

// ChatRequest 一次对话回合的请求
type ChatRequest struct {
	Message string      `json:"message"`
	Context ChatContext `json:"context"`
}

// ChatResponse 外部协作方产出、经本系统校验与兜底后的应答
type ChatResponse struct {
	Reply     string            `json:"reply"`
	Intent    Intent            `json:"intent"`
	UIActions []UIAction        `json:"ui_actions,omitempty"`
	NextPhase ConversationPhase `json:"next_phase,omitempty"`
}

// BuilderState 构建器内存状态（单一事实来源，不持久化）
type BuilderState struct {
	AppState          AppState          `json:"app_state"`
	CurrentIVA        *IVA              `json:"current_iva,omitempty"`
	CurrentSlideIndex int               `json:"current_slide_index"`
	Messages          []Message         `json:"messages"`
	ConversationPhase ConversationPhase `json:"conversation_phase"`
	ISIConfig         *ISIConfig        `json:"isi_config,omitempty"`
	IsTransitioning   bool              `json:"is_transitioning"`
	IsLoading         bool              `json:"is_loading"`
	Error             string            `json:"error,omitempty"`
}

// MetadataPatch 元数据的部分更新，nil字段表示不修改
type MetadataPatch struct {
	Name            *string
	Brand           *Brand
	TherapeuticArea *TherapeuticArea
	TargetAudience  *string
	SlideCount      *int
	Status          *IVAStatus
}

// BuilderActionType 构建器归约动作类型
type BuilderActionType string

const (
	ActionSetAppState          BuilderActionType = "SET_APP_STATE"
	ActionSetCurrentIVA        BuilderActionType = "SET_CURRENT_IVA"
	ActionUpdateIVAMetadata    BuilderActionType = "UPDATE_IVA_METADATA"
	ActionSetSlide             BuilderActionType = "SET_SLIDE"
	ActionAddSlide             BuilderActionType = "ADD_SLIDE"
	ActionSetCurrentSlideIndex BuilderActionType = "SET_CURRENT_SLIDE_INDEX"
	ActionAddMessage           BuilderActionType = "ADD_MESSAGE"
	ActionSetPhase             BuilderActionType = "SET_CONVERSATION_PHASE"
	ActionSetISIConfig         BuilderActionType = "SET_ISI_CONFIG"
	ActionSetTransitioning     BuilderActionType = "SET_TRANSITIONING"
	ActionSetLoading           BuilderActionType = "SET_LOADING"
	ActionSetError             BuilderActionType = "SET_ERROR"
	ActionReset                BuilderActionType = "RESET"
)

// BuilderAction 驱动归约器的动作（封闭集合）
type BuilderAction struct {
	Type BuilderActionType

	AppState        AppState
	IVA             *IVA
	Metadata        MetadataPatch
	SlideIndex      int
	Slide           SlideData
	Message         Message
	Phase           ConversationPhase
	ISIConfig       *ISIConfig
	IsTransitioning bool
	IsLoading       bool
	Error           string
}
