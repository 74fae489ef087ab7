// internal/services/chat_service.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MedVisage/IVAStudioMCP/internal/llm"
	"github.com/MedVisage/IVAStudioMCP/internal/models"
	"github.com/MedVisage/IVAStudioMCP/internal/templates"
	"github.com/MedVisage/IVAStudioMCP/internal/utils"
)

const (
	// 随对话请求转发的历史轮数上限
	maxHistoryTurns = 4

	// 历史消息内容的截断长度
	historyTruncateLen = 100
)

// ChatService 负责与外部LLM的对话回合
// 把用户自由文本和当前构建上下文发给LLM，将其回答解析为结构化协议应答
type ChatService struct {
	llmService *LLMService
}

// NewChatService 创建对话服务
func NewChatService(llmService *LLMService) *ChatService {
	return &ChatService{
		llmService: llmService,
	}
}

// systemPrompt 定义LLM必须遵守的JSON协议
// 包含品牌词汇表、布局目录和意图的封闭集合
func buildSystemPrompt() string {
	var sb strings.Builder

	sb.WriteString(`You are the conversational assistant inside a pharmaceutical IVA (Interactive Visual Aid) slide deck builder.
Your job: read the user's message plus the current builder context, then answer with EXACTLY ONE JSON object and nothing else.

Response schema:
{
  "reply": "conversational text shown to the user",
  "intent": { "type": "<intent type>", ...intent fields },
  "ui_actions": [ { "type": "<ui action type>", ... } ],
  "next_phase": "<conversation phase>"
}

Intent types (closed set):
- create_iva
- set_brand        {"brand": "..."}
- set_audience     {"audience": "..."}
- set_therapeutic_area {"area": "..."}
- set_slide_count  {"count": N}
- set_iva_name     {"name": "..."}
- set_slide_intent {"slide_index": N, "intent": "..."}
- select_layout    {"slide_index": N, "layout_id": "..."}
- set_content      {"slide_index": N, "field": "<slot id>", "value": "..."}
- select_slide     {"slide_index": N}
- next_slide
- prev_slide
- configure_isi    {"config": {"enabled": true, "style": "scrolling|expandable", "placement": "bottom|right"}}
- edit_iva         {"iva_id": "..."}
- preview_iva      {"iva_id": "..."}
- show_archive
- save_iva
- export_iva
- go_back
- unknown          {"raw_input": "..."}

`)

	sb.WriteString("Available brands and their conventional therapeutic areas:\n")
	for _, brand := range models.AllBrands() {
		sb.WriteString(fmt.Sprintf("- %s (%s)\n", brand, models.BrandTherapeuticAreas[brand]))
	}

	sb.WriteString("\nAvailable slide layouts:\n")
	for _, tpl := range templates.SlideTemplates {
		slotIDs := make([]string, 0, len(tpl.Slots))
		for _, slot := range tpl.Slots {
			slotIDs = append(slotIDs, slot.ID)
		}
		sb.WriteString(fmt.Sprintf("- %s: %s (slots: %s)\n", tpl.ID, tpl.Description, strings.Join(slotIDs, ", ")))
	}

	sb.WriteString(`
Conversation phases (closed set): initial, brand_selection, audience_selection, slide_structure, layout_selection, content_population, isi_configuration, review, editing.
Set "next_phase" to whichever phase the conversation should continue in.

Rules:
1. Output exactly one JSON object. No Markdown fences, no prose outside the JSON.
2. If you cannot map the user's message to an intent, use {"type": "unknown", "raw_input": "<the user message>"} and ask a clarifying question in "reply".
3. Slide indexes are zero-based.
4. Keep "reply" short and guiding the user towards the next step of building their deck.`)

	return sb.String()
}

// buildContextInfo 把构建上下文序列化成提示词片段
func buildContextInfo(chatCtx models.ChatContext) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Current app state: %s\n", chatCtx.CurrentState))
	sb.WriteString(fmt.Sprintf("Conversation phase: %s\n", chatCtx.ConversationPhase))

	if chatCtx.CurrentIVA != nil {
		meta := chatCtx.CurrentIVA.Metadata
		sb.WriteString(fmt.Sprintf("Current IVA: name=%q brand=%s area=%s audience=%q slides=%d status=%s\n",
			meta.Name, meta.Brand, meta.TherapeuticArea, meta.TargetAudience,
			len(chatCtx.CurrentIVA.Slides), meta.Status))
		sb.WriteString(fmt.Sprintf("Current slide index: %d\n", chatCtx.CurrentSlideIndex))

		if chatCtx.CurrentSlideIndex >= 0 && chatCtx.CurrentSlideIndex < len(chatCtx.CurrentIVA.Slides) {
			slide := chatCtx.CurrentIVA.Slides[chatCtx.CurrentSlideIndex]
			filled := make([]string, 0, len(slide.Slots))
			for slotID := range slide.Slots {
				if slide.HasSlotContent(slotID) {
					filled = append(filled, slotID)
				}
			}
			sb.WriteString(fmt.Sprintf("Current slide layout: %s, filled slots: [%s]\n",
				slide.TemplateID, strings.Join(filled, ", ")))
		}
	} else {
		sb.WriteString("Current IVA: none\n")
	}

	// 仅带上最近几轮历史，每条截断
	history := chatCtx.ConversationHistory
	if len(history) > maxHistoryTurns {
		history = history[len(history)-maxHistoryTurns:]
	}
	if len(history) > 0 {
		sb.WriteString("Recent conversation:\n")
		for _, msg := range history {
			sb.WriteString(fmt.Sprintf("- %s: %s\n", msg.Role, truncateText(msg.Content, historyTruncateLen)))
		}
	}

	return sb.String()
}

// ProcessTurn 执行一个完整的对话回合
// LLM应答无法解析为协议格式时，降级为原始文本+unknown意图，会话不中断
func (s *ChatService) ProcessTurn(ctx context.Context, req models.ChatRequest) (*models.ChatResponse, error) {
	if s.llmService == nil || !s.llmService.IsReady() {
		return nil, ErrLLMNotReady
	}

	prompt := fmt.Sprintf("%s\nUser message: %s", buildContextInfo(req.Context), req.Message)

	completion, err := s.llmService.CompleteText(ctx, llm.CompletionRequest{
		Prompt:       prompt,
		SystemPrompt: buildSystemPrompt(),
		Temperature:  0.3,
		MaxTokens:    1024,
	})
	if err != nil {
		return nil, fmt.Errorf("对话请求失败: %w", err)
	}

	response := s.parseResponse(completion.Text, req)
	s.applyServerDirectives(response, req)

	return response, nil
}

// parseResponse 宽容解析LLM的应答
func (s *ChatService) parseResponse(raw string, req models.ChatRequest) *models.ChatResponse {
	cleaned := cleanJSONString(SanitizeLLMJSONResponse(raw))

	var response models.ChatResponse
	if err := json.Unmarshal([]byte(cleaned), &response); err != nil || response.Reply == "" {
		// 解析失败：原始文本作为回复，意图降级为unknown
		utils.GetLogger().Warn("LLM应答不符合协议格式，降级处理", map[string]interface{}{
			"raw_prefix": truncateText(raw, 80),
		})
		return &models.ChatResponse{
			Reply:     strings.TrimSpace(raw),
			Intent:    models.UnknownIntent(req.Message),
			NextPhase: req.Context.ConversationPhase,
		}
	}

	// 未知意图类型也降级为unknown
	if !isKnownIntentType(response.Intent.Type) {
		response.Intent = models.UnknownIntent(req.Message)
	}

	// 阶段标签不在词汇表中时保持当前阶段
	if response.NextPhase == "" || !models.IsValidPhase(response.NextPhase) {
		response.NextPhase = req.Context.ConversationPhase
	}

	return &response
}

// applyServerDirectives 附加服务端决定的UI指令
// 布局目录由服务端注入，LLM不需要携带完整模板数据
func (s *ChatService) applyServerDirectives(response *models.ChatResponse, req models.ChatRequest) {
	switch response.Intent.Type {
	case models.IntentSetSlideCount:
		response.UIActions = appendUIAction(response.UIActions, models.UIAction{
			Type:    models.UIShowLayouts,
			Layouts: templates.SlideTemplates,
		})
	case models.IntentShowArchive:
		response.UIActions = appendUIAction(response.UIActions, models.UIAction{
			Type:  models.UINavigateTo,
			State: models.StateArchive,
		})
	case models.IntentExportIVA:
		action := models.UIAction{Type: models.UITriggerExport}
		if req.Context.CurrentIVA != nil {
			action.IVAID = req.Context.CurrentIVA.Metadata.ID
		}
		response.UIActions = appendUIAction(response.UIActions, action)
	}

	// 进入布局选择阶段时确保目录可见
	if response.NextPhase == models.PhaseLayoutSelection {
		response.UIActions = appendUIAction(response.UIActions, models.UIAction{
			Type:    models.UIShowLayouts,
			Layouts: templates.SlideTemplates,
		})
	}
}

// appendUIAction 追加UI指令，同类型去重
func appendUIAction(actions []models.UIAction, action models.UIAction) []models.UIAction {
	for i := range actions {
		if actions[i].Type == action.Type {
			// 已有同类型指令时用服务端版本覆盖
			actions[i] = action
			return actions
		}
	}
	return append(actions, action)
}

func isKnownIntentType(t models.IntentType) bool {
	switch t {
	case models.IntentCreateIVA, models.IntentSetBrand, models.IntentSetAudience,
		models.IntentSetTherapeuticArea, models.IntentSetSlideCount, models.IntentSetIVAName,
		models.IntentSetSlideIntent, models.IntentSelectLayout, models.IntentSetContent,
		models.IntentSelectSlide, models.IntentNextSlide, models.IntentPrevSlide,
		models.IntentConfigureISI, models.IntentEditIVA, models.IntentPreviewIVA,
		models.IntentShowArchive, models.IntentSaveIVA, models.IntentExportIVA,
		models.IntentGoBack, models.IntentUnknown:
		return true
	}
	return false
}
