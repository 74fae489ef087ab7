// internal/services/builder_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/MedVisage/IVAStudioMCP/internal/errors"
	"github.com/MedVisage/IVAStudioMCP/internal/models"
	"github.com/MedVisage/IVAStudioMCP/internal/templates"
	"github.com/MedVisage/IVAStudioMCP/internal/utils"
)

const (
	// 幻灯片数量的允许范围
	minSlideCount = 1
	maxSlideCount = 50
)

// BuilderService 管理构建器会话与状态归约
// 状态只存在内存中，对话驱动的修改通过归约器应用，持久化交给IVAService
type BuilderService struct {
	ivaService    *IVAService
	chatService   *ChatService
	exportService *ExportService

	// 视图切换的稳定延迟
	transitionDelay time.Duration

	sessionMutex sync.RWMutex
	sessions     map[string]*BuilderSession
}

// BuilderSession 单个构建器会话
type BuilderSession struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	mutex sync.Mutex
	state models.BuilderState
}

// NewBuilderService 创建构建器服务
func NewBuilderService(ivaService *IVAService, chatService *ChatService, exportService *ExportService, transitionDelay time.Duration) *BuilderService {
	return &BuilderService{
		ivaService:      ivaService,
		chatService:     chatService,
		exportService:   exportService,
		transitionDelay: transitionDelay,
		sessions:        make(map[string]*BuilderSession),
	}
}

// NewInitialState 返回构建器的初始状态
func NewInitialState() models.BuilderState {
	return models.BuilderState{
		AppState:          models.StateLanding,
		CurrentIVA:        nil,
		CurrentSlideIndex: 0,
		Messages:          []models.Message{},
		ConversationPhase: models.PhaseInitial,
	}
}

// CreateSession 创建新会话
func (s *BuilderService) CreateSession() *BuilderSession {
	session := &BuilderSession{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
		state:     NewInitialState(),
	}

	s.sessionMutex.Lock()
	s.sessions[session.ID] = session
	s.sessionMutex.Unlock()

	return session
}

// GetSession 按ID查找会话
func (s *BuilderService) GetSession(id string) (*BuilderSession, error) {
	s.sessionMutex.RLock()
	defer s.sessionMutex.RUnlock()

	session, exists := s.sessions[id]
	if !exists {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("会话不存在: %s", id), nil)
	}
	return session, nil
}

// CloseSession 关闭并移除会话
func (s *BuilderService) CloseSession(id string) {
	s.sessionMutex.Lock()
	defer s.sessionMutex.Unlock()
	delete(s.sessions, id)
}

// ListSessions 返回所有活跃会话
func (s *BuilderService) ListSessions() []*BuilderSession {
	s.sessionMutex.RLock()
	defer s.sessionMutex.RUnlock()

	result := make([]*BuilderSession, 0, len(s.sessions))
	for _, session := range s.sessions {
		result = append(result, session)
	}
	return result
}

// State 返回会话状态的副本
func (sess *BuilderSession) State() models.BuilderState {
	sess.mutex.Lock()
	defer sess.mutex.Unlock()
	return cloneState(sess.state)
}

// cloneState 复制状态，深拷贝当前文档，避免调用方持有内部引用
func cloneState(state models.BuilderState) models.BuilderState {
	out := state
	out.CurrentIVA = state.CurrentIVA.Clone()
	out.Messages = make([]models.Message, len(state.Messages))
	copy(out.Messages, state.Messages)
	if state.ISIConfig != nil {
		cfg := *state.ISIConfig
		out.ISIConfig = &cfg
	}
	return out
}

// Reduce 纯归约函数：旧状态 + 动作 = 新状态
// 对每个动作类型都是全函数，未知动作类型原样返回旧状态
func Reduce(state models.BuilderState, action models.BuilderAction) models.BuilderState {
	next := cloneState(state)

	switch action.Type {
	case models.ActionSetAppState:
		next.AppState = action.AppState

	case models.ActionSetCurrentIVA:
		next.CurrentIVA = action.IVA.Clone()
		next.CurrentSlideIndex = 0

	case models.ActionUpdateIVAMetadata:
		if next.CurrentIVA == nil {
			return next
		}
		applyMetadataPatch(&next.CurrentIVA.Metadata, action.Metadata)

	case models.ActionSetSlide:
		if next.CurrentIVA == nil {
			return next
		}
		if action.SlideIndex < 0 || action.SlideIndex >= len(next.CurrentIVA.Slides) {
			return next
		}
		next.CurrentIVA.Slides[action.SlideIndex] = action.Slide
		next.CurrentIVA.Metadata.SlideCount = len(next.CurrentIVA.Slides)

	case models.ActionAddSlide:
		if next.CurrentIVA == nil {
			return next
		}
		next.CurrentIVA.Slides = append(next.CurrentIVA.Slides, action.Slide)
		next.CurrentIVA.Metadata.SlideCount = len(next.CurrentIVA.Slides)

	case models.ActionSetCurrentSlideIndex:
		next.CurrentSlideIndex = clampSlideIndex(action.SlideIndex, next.CurrentIVA)

	case models.ActionAddMessage:
		next.Messages = append(next.Messages, action.Message)

	case models.ActionSetPhase:
		next.ConversationPhase = action.Phase

	case models.ActionSetISIConfig:
		if action.ISIConfig == nil {
			next.ISIConfig = nil
		} else {
			cfg := *action.ISIConfig
			next.ISIConfig = &cfg
		}

	case models.ActionSetTransitioning:
		next.IsTransitioning = action.IsTransitioning

	case models.ActionSetLoading:
		next.IsLoading = action.IsLoading

	case models.ActionSetError:
		next.Error = action.Error

	case models.ActionReset:
		return NewInitialState()
	}

	return next
}

// applyMetadataPatch 应用元数据的部分更新
func applyMetadataPatch(meta *models.IVAMetadata, patch models.MetadataPatch) {
	if patch.Name != nil {
		meta.Name = *patch.Name
	}
	if patch.Brand != nil {
		meta.Brand = *patch.Brand
	}
	if patch.TherapeuticArea != nil {
		meta.TherapeuticArea = *patch.TherapeuticArea
	}
	if patch.TargetAudience != nil {
		meta.TargetAudience = *patch.TargetAudience
	}
	if patch.SlideCount != nil {
		meta.SlideCount = *patch.SlideCount
	}
	if patch.Status != nil {
		meta.Status = *patch.Status
	}
}

// clampSlideIndex 把索引收敛到合法范围
func clampSlideIndex(index int, iva *models.IVA) int {
	if iva == nil || len(iva.Slides) == 0 {
		return 0
	}
	if index < 0 {
		return 0
	}
	if index >= len(iva.Slides) {
		return len(iva.Slides) - 1
	}
	return index
}

// newDraftIVA 创建带默认元数据的草稿文档
func newDraftIVA() *models.IVA {
	now := time.Now()
	return &models.IVA{
		Metadata: models.IVAMetadata{
			ID:              GenerateID(),
			Name:            "Untitled IVA",
			Brand:           models.BrandOpdivo,
			TherapeuticArea: models.AreaOncology,
			TargetAudience:  "",
			SlideCount:      0,
			Status:          models.StatusDraft,
			CreatedAt:       now,
			UpdatedAt:       now,
		},
		Slides: []models.SlideData{},
	}
}

// ensureIVA 元数据修改类意图在没有当前文档时先建一个草稿
func ensureIVA(state models.BuilderState) models.BuilderState {
	if state.CurrentIVA != nil {
		return state
	}
	return Reduce(state, models.BuilderAction{
		Type: models.ActionSetCurrentIVA,
		IVA:  newDraftIVA(),
	})
}

// ApplyIntent 把一条结构化意图翻译成一串归约动作并应用
// 意图参数越界时收敛到边界或静默忽略，绝不让状态进入非法形态
func (s *BuilderService) ApplyIntent(state models.BuilderState, intent models.Intent) models.BuilderState {
	switch intent.Type {
	case models.IntentCreateIVA:
		next := Reduce(state, models.BuilderAction{
			Type: models.ActionSetCurrentIVA,
			IVA:  newDraftIVA(),
		})
		next = Reduce(next, models.BuilderAction{
			Type:     models.ActionSetAppState,
			AppState: models.StateBuild,
		})
		// 新建文档从品牌选择阶段开始
		return Reduce(next, models.BuilderAction{
			Type:  models.ActionSetPhase,
			Phase: models.PhaseBrandSelection,
		})

	case models.IntentSetBrand:
		if !models.IsValidBrand(intent.Brand) {
			return state
		}
		next := ensureIVA(state)
		brand := intent.Brand
		patch := models.MetadataPatch{Brand: &brand}

		// 用户未曾显式设置治疗领域时，跟随品牌的惯例领域
		if area, ok := models.BrandTherapeuticAreas[brand]; ok {
			current := next.CurrentIVA.Metadata
			if conventional, hasOld := models.BrandTherapeuticAreas[current.Brand]; !hasOld || current.TherapeuticArea == conventional || current.TherapeuticArea == "" {
				areaCopy := area
				patch.TherapeuticArea = &areaCopy
			}
		}
		return Reduce(next, models.BuilderAction{
			Type:     models.ActionUpdateIVAMetadata,
			Metadata: patch,
		})

	case models.IntentSetAudience:
		next := ensureIVA(state)
		audience := intent.Audience
		return Reduce(next, models.BuilderAction{
			Type:     models.ActionUpdateIVAMetadata,
			Metadata: models.MetadataPatch{TargetAudience: &audience},
		})

	case models.IntentSetTherapeuticArea:
		if !models.IsValidTherapeuticArea(intent.Area) {
			return state
		}
		next := ensureIVA(state)
		area := intent.Area
		return Reduce(next, models.BuilderAction{
			Type:     models.ActionUpdateIVAMetadata,
			Metadata: models.MetadataPatch{TherapeuticArea: &area},
		})

	case models.IntentSetIVAName:
		if intent.Name == "" {
			return state
		}
		next := ensureIVA(state)
		name := intent.Name
		return Reduce(next, models.BuilderAction{
			Type:     models.ActionUpdateIVAMetadata,
			Metadata: models.MetadataPatch{Name: &name},
		})

	case models.IntentSetSlideCount:
		next := ensureIVA(state)
		count := intent.Count
		if count < minSlideCount {
			count = minSlideCount
		}
		if count > maxSlideCount {
			count = maxSlideCount
		}

		// 保留已有幻灯片，缺口用默认布局的空页补齐
		slides := make([]models.SlideData, count)
		for i := 0; i < count; i++ {
			if i < len(next.CurrentIVA.Slides) {
				slides[i] = next.CurrentIVA.Slides[i]
			} else {
				slides[i] = templates.CreateEmptySlideData(templates.DefaultTemplateID)
			}
		}

		updated := next.CurrentIVA.Clone()
		updated.Slides = slides
		updated.Metadata.SlideCount = count

		result := Reduce(next, models.BuilderAction{
			Type: models.ActionSetCurrentIVA,
			IVA:  updated,
		})
		return Reduce(result, models.BuilderAction{
			Type:       models.ActionSetCurrentSlideIndex,
			SlideIndex: 0,
		})

	case models.IntentSetSlideIntent:
		if state.CurrentIVA == nil {
			return state
		}
		index := clampSlideIndex(intent.SlideIndex, state.CurrentIVA)
		if len(state.CurrentIVA.Slides) == 0 {
			return state
		}
		slide := state.CurrentIVA.Slides[index]
		slide.Intent = intent.SlideIntent
		return Reduce(state, models.BuilderAction{
			Type:       models.ActionSetSlide,
			SlideIndex: index,
			Slide:      slide,
		})

	case models.IntentSelectLayout:
		if state.CurrentIVA == nil || len(state.CurrentIVA.Slides) == 0 {
			return state
		}
		index := clampSlideIndex(intent.SlideIndex, state.CurrentIVA)

		// 换布局意味着整页重建，旧槽位内容不迁移
		fresh := templates.CreateEmptySlideData(intent.LayoutID)
		fresh.Intent = state.CurrentIVA.Slides[index].Intent
		return Reduce(state, models.BuilderAction{
			Type:       models.ActionSetSlide,
			SlideIndex: index,
			Slide:      fresh,
		})

	case models.IntentSetContent:
		if state.CurrentIVA == nil || len(state.CurrentIVA.Slides) == 0 || intent.Field == "" {
			return state
		}
		index := clampSlideIndex(intent.SlideIndex, state.CurrentIVA)
		slide := state.CurrentIVA.Slides[index]

		updated := models.SlideData{
			TemplateID: slide.TemplateID,
			Slots:      make(map[string]*string, len(slide.Slots)),
			Intent:     slide.Intent,
		}
		for k, v := range slide.Slots {
			updated.Slots[k] = v
		}
		value := intent.Value
		updated.Slots[intent.Field] = &value

		return Reduce(state, models.BuilderAction{
			Type:       models.ActionSetSlide,
			SlideIndex: index,
			Slide:      updated,
		})

	case models.IntentSelectSlide:
		return Reduce(state, models.BuilderAction{
			Type:       models.ActionSetCurrentSlideIndex,
			SlideIndex: intent.SlideIndex,
		})

	case models.IntentNextSlide:
		return Reduce(state, models.BuilderAction{
			Type:       models.ActionSetCurrentSlideIndex,
			SlideIndex: state.CurrentSlideIndex + 1,
		})

	case models.IntentPrevSlide:
		return Reduce(state, models.BuilderAction{
			Type:       models.ActionSetCurrentSlideIndex,
			SlideIndex: state.CurrentSlideIndex - 1,
		})

	case models.IntentConfigureISI:
		return Reduce(state, models.BuilderAction{
			Type:      models.ActionSetISIConfig,
			ISIConfig: intent.ISIConfig,
		})

	case models.IntentEditIVA:
		iva, err := s.ivaService.GetByID(intent.IVAID)
		if err != nil {
			return Reduce(state, models.BuilderAction{
				Type:  models.ActionSetError,
				Error: fmt.Sprintf("找不到要编辑的IVA: %s", intent.IVAID),
			})
		}
		next := Reduce(state, models.BuilderAction{
			Type: models.ActionSetCurrentIVA,
			IVA:  iva,
		})
		next = Reduce(next, models.BuilderAction{
			Type:     models.ActionSetAppState,
			AppState: models.StateEdit,
		})
		// 继续编辑已有文档时进入editing阶段
		return Reduce(next, models.BuilderAction{
			Type:  models.ActionSetPhase,
			Phase: models.PhaseEditing,
		})

	case models.IntentPreviewIVA:
		iva, err := s.ivaService.GetByID(intent.IVAID)
		if err != nil {
			return Reduce(state, models.BuilderAction{
				Type:  models.ActionSetError,
				Error: fmt.Sprintf("找不到要预览的IVA: %s", intent.IVAID),
			})
		}
		next := Reduce(state, models.BuilderAction{
			Type: models.ActionSetCurrentIVA,
			IVA:  iva,
		})
		return Reduce(next, models.BuilderAction{
			Type:     models.ActionSetAppState,
			AppState: models.StatePreview,
		})

	case models.IntentShowArchive:
		return Reduce(state, models.BuilderAction{
			Type:     models.ActionSetAppState,
			AppState: models.StateArchive,
		})

	case models.IntentGoBack:
		return Reduce(state, models.BuilderAction{Type: models.ActionReset})

	case models.IntentSaveIVA, models.IntentExportIVA:
		// 持久化和导出属于副作用，由ProcessMessage统一处理
		return state

	case models.IntentUnknown:
		return state
	}

	return state
}

// ProcessMessage 执行一个完整的对话回合：
// 用户消息入列 → 调用对话服务 → 应用意图 → 助手消息入列 → 条件自动保存
func (s *BuilderService) ProcessMessage(ctx context.Context, sessionID string, text string) (models.BuilderState, error) {
	session, err := s.GetSession(sessionID)
	if err != nil {
		return models.BuilderState{}, err
	}

	session.mutex.Lock()
	defer session.mutex.Unlock()

	state := session.state

	// 1. 用户消息入列
	userMessage := models.Message{
		ID:        uuid.NewString(),
		Role:      models.RoleUser,
		Content:   text,
		Timestamp: time.Now(),
	}
	state = Reduce(state, models.BuilderAction{Type: models.ActionAddMessage, Message: userMessage})
	state = Reduce(state, models.BuilderAction{Type: models.ActionSetLoading, IsLoading: true})
	state = Reduce(state, models.BuilderAction{Type: models.ActionSetError, Error: ""})

	// 2. 调用对话服务
	response, err := s.chatService.ProcessTurn(ctx, models.ChatRequest{
		Message: text,
		Context: models.ChatContext{
			CurrentState:        state.AppState,
			CurrentIVA:          state.CurrentIVA,
			CurrentSlideIndex:   state.CurrentSlideIndex,
			ConversationHistory: state.Messages,
			ConversationPhase:   state.ConversationPhase,
		},
	})
	if err != nil {
		// 传输层失败：文档状态不动，只记录错误并解除加载态
		state = Reduce(state, models.BuilderAction{Type: models.ActionSetLoading, IsLoading: false})
		state = Reduce(state, models.BuilderAction{
			Type:  models.ActionSetError,
			Error: friendlyTurnError(err),
		})
		session.state = state
		session.UpdatedAt = time.Now()
		return cloneState(state), nil
	}

	// 3. 应用意图与阶段
	state = s.ApplyIntent(state, response.Intent)
	state = Reduce(state, models.BuilderAction{Type: models.ActionSetPhase, Phase: response.NextPhase})

	// 4. 保存/导出类意图的副作用
	state = s.performSideEffects(state, response.Intent)

	// 5. 助手消息入列，第一条UI指令随消息传递
	assistantMessage := models.Message{
		ID:        uuid.NewString(),
		Role:      models.RoleAssistant,
		Content:   response.Reply,
		Timestamp: time.Now(),
	}
	if len(response.UIActions) > 0 {
		action := response.UIActions[0]
		assistantMessage.UIAction = &action
	}
	state = Reduce(state, models.BuilderAction{Type: models.ActionAddMessage, Message: assistantMessage})
	state = Reduce(state, models.BuilderAction{Type: models.ActionSetLoading, IsLoading: false})

	// 6. 构建或编辑过程中每个回合自动保存
	s.autoSave(&state)

	session.state = state
	session.UpdatedAt = time.Now()

	return cloneState(state), nil
}

// performSideEffects 处理需要触达持久层的意图
func (s *BuilderService) performSideEffects(state models.BuilderState, intent models.Intent) models.BuilderState {
	switch intent.Type {
	case models.IntentSaveIVA:
		if state.CurrentIVA == nil {
			return state
		}
		if err := s.ivaService.Save(state.CurrentIVA); err != nil {
			utils.GetLogger().Error("保存IVA失败", map[string]interface{}{"err": err.Error()})
			return Reduce(state, models.BuilderAction{
				Type:  models.ActionSetError,
				Error: "保存失败，请稍后重试",
			})
		}

	case models.IntentExportIVA:
		if state.CurrentIVA == nil {
			return state
		}
		// 导出前先保证最新内容已落盘
		if err := s.ivaService.Save(state.CurrentIVA); err != nil {
			utils.GetLogger().Error("导出前保存失败", map[string]interface{}{"err": err.Error()})
			return Reduce(state, models.BuilderAction{
				Type:  models.ActionSetError,
				Error: "导出失败，请稍后重试",
			})
		}
		result, err := s.exportService.ExportIVA(state.CurrentIVA.Metadata.ID)
		if err != nil {
			utils.GetLogger().Error("导出IVA失败", map[string]interface{}{"err": err.Error()})
			return Reduce(state, models.BuilderAction{
				Type:  models.ActionSetError,
				Error: "导出失败，请稍后重试",
			})
		}
		utils.GetLogger().Info("IVA导出完成", map[string]interface{}{
			"iva_id": result.IVAID, "file": result.FileName, "size": result.FileSize,
		})

		// 导出成功后文档进入submitted状态
		status := models.StatusSubmitted
		state = Reduce(state, models.BuilderAction{
			Type:     models.ActionUpdateIVAMetadata,
			Metadata: models.MetadataPatch{Status: &status},
		})
	}

	return state
}

// autoSave 把带ID的文档落盘，失败只记日志不打断对话
// 落地页和预览态不落盘，其余视图下的变更都持久化
func (s *BuilderService) autoSave(state *models.BuilderState) {
	if state.CurrentIVA == nil || state.CurrentIVA.Metadata.ID == "" {
		return
	}
	if state.AppState == models.StateLanding || state.AppState == models.StatePreview {
		return
	}

	if err := s.ivaService.Save(state.CurrentIVA); err != nil {
		utils.GetLogger().Warn("自动保存失败", map[string]interface{}{"err": err.Error()})
	}
}

// ApplyUIIntent 对会话直接应用一个UI侧意图（按钮、点击等非对话操作）
// 与对话回合共用同一套意图语义与副作用，但不产生消息
func (s *BuilderService) ApplyUIIntent(sessionID string, intent models.Intent) (models.BuilderState, error) {
	session, err := s.GetSession(sessionID)
	if err != nil {
		return models.BuilderState{}, err
	}

	session.mutex.Lock()
	defer session.mutex.Unlock()

	state := s.ApplyIntent(session.state, intent)
	state = s.performSideEffects(state, intent)
	s.autoSave(&state)

	session.state = state
	session.UpdatedAt = time.Now()

	return cloneState(state), nil
}

// UpdateSlot 直接写入单个槽位（绕过对话的编辑路径），写入后立即落盘
func (s *BuilderService) UpdateSlot(sessionID string, slideIndex int, slotID, value string) (models.BuilderState, error) {
	session, err := s.GetSession(sessionID)
	if err != nil {
		return models.BuilderState{}, err
	}

	session.mutex.Lock()
	defer session.mutex.Unlock()

	state := session.state
	if state.CurrentIVA == nil || len(state.CurrentIVA.Slides) == 0 {
		return cloneState(state), apperrors.NewValidationError("当前没有可编辑的IVA", nil)
	}

	state = s.ApplyIntent(state, models.Intent{
		Type:       models.IntentSetContent,
		SlideIndex: slideIndex,
		Field:      slotID,
		Value:      value,
	})

	if err := s.ivaService.Save(state.CurrentIVA); err != nil {
		return cloneState(state), fmt.Errorf("槽位保存失败: %w", err)
	}

	session.state = state
	session.UpdatedAt = time.Now()

	return cloneState(state), nil
}

// TransitionTo 带稳定延迟的视图切换
// 先进入过渡态，等待动画时长，再落到目标视图
func (s *BuilderService) TransitionTo(sessionID string, target models.AppState) (models.BuilderState, error) {
	session, err := s.GetSession(sessionID)
	if err != nil {
		return models.BuilderState{}, err
	}

	session.mutex.Lock()
	session.state = Reduce(session.state, models.BuilderAction{
		Type:            models.ActionSetTransitioning,
		IsTransitioning: true,
	})
	session.mutex.Unlock()

	if s.transitionDelay > 0 {
		time.Sleep(s.transitionDelay)
	}

	session.mutex.Lock()
	defer session.mutex.Unlock()

	state := Reduce(session.state, models.BuilderAction{
		Type:     models.ActionSetAppState,
		AppState: target,
	})
	state = Reduce(state, models.BuilderAction{
		Type:            models.ActionSetTransitioning,
		IsTransitioning: false,
	})

	session.state = state
	session.UpdatedAt = time.Now()

	return cloneState(state), nil
}

// dispatch 对会话状态直接应用一个归约动作
func (s *BuilderService) dispatch(sessionID string, action models.BuilderAction) (models.BuilderState, error) {
	session, err := s.GetSession(sessionID)
	if err != nil {
		return models.BuilderState{}, err
	}

	session.mutex.Lock()
	defer session.mutex.Unlock()

	session.state = Reduce(session.state, action)
	session.UpdatedAt = time.Now()

	return cloneState(session.state), nil
}

// friendlyTurnError 把底层错误翻译为可展示的提示
func friendlyTurnError(err error) string {
	if errors.Is(err, ErrLLMNotReady) {
		return "AI服务尚未配置，请在设置中填写API密钥后重试"
	}
	return "对话服务暂时不可用，请稍后重试"
}
