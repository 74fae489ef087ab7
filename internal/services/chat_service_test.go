// internal/services/chat_service_test.go
package services

import (
	"context"
	"errors"
	"testing"

	"github.com/MedVisage/IVAStudioMCP/internal/llm"
	"github.com/MedVisage/IVAStudioMCP/internal/models"
)

// cannedProvider 返回固定文本的测试提供者
type cannedProvider struct {
	response string
	err      error
}

func (p *cannedProvider) Initialize(config map[string]string) error      { return nil }
func (p *cannedProvider) GetName() string                                { return "canned" }
func (p *cannedProvider) GetSupportedModels() []string                   { return []string{"canned-model"} }
func (p *cannedProvider) FetchAvailableModels(ctx context.Context) error { return nil }
func (p *cannedProvider) SetCustomModels(models []string)                {}

func (p *cannedProvider) CompleteText(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &llm.CompletionResponse{Text: p.response, ProviderName: "canned"}, nil
}

func (p *cannedProvider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamResponse, error) {
	ch := make(chan llm.StreamResponse, 1)
	ch <- llm.StreamResponse{Text: p.response, Done: true}
	close(ch)
	return ch, nil
}

// newCannedChatService 用固定应答的提供者构造对话服务
func newCannedChatService(response string) *ChatService {
	llmService := createBaseLLMService()
	llmService.provider = &cannedProvider{response: response}
	llmService.providerName = "canned"
	llmService.isReady = true
	return NewChatService(llmService)
}

// defaultChatRequest 带空上下文的请求
func defaultChatRequest(message string) models.ChatRequest {
	return models.ChatRequest{
		Message: message,
		Context: models.ChatContext{
			CurrentState:      models.StateBuild,
			ConversationPhase: models.PhaseBrandSelection,
		},
	}
}

// TestProcessTurnParsesProtocolResponse 符合协议的应答被解析为结构化意图
func TestProcessTurnParsesProtocolResponse(t *testing.T) {
	service := newCannedChatService(
		`{"reply": "Opdivo it is.", "intent": {"type": "set_brand", "brand": "Opdivo"}, "next_phase": "audience_selection"}`)

	response, err := service.ProcessTurn(context.Background(), defaultChatRequest("use Opdivo"))
	if err != nil {
		t.Fatalf("对话回合失败: %v", err)
	}

	if response.Reply != "Opdivo it is." {
		t.Fatalf("回复内容不符: %q", response.Reply)
	}
	if response.Intent.Type != models.IntentSetBrand {
		t.Fatalf("意图类型应为set_brand，实际为 %s", response.Intent.Type)
	}
	if response.Intent.Brand != models.BrandOpdivo {
		t.Fatalf("意图品牌不符: %s", response.Intent.Brand)
	}
	if response.NextPhase != models.PhaseAudienceSelection {
		t.Fatalf("下一阶段不符: %s", response.NextPhase)
	}
}

// TestProcessTurnStripsCodeFences 带Markdown围栏的应答也能解析
func TestProcessTurnStripsCodeFences(t *testing.T) {
	service := newCannedChatService("```json\n" +
		`{"reply": "Three slides created.", "intent": {"type": "set_slide_count", "count": 3}, "next_phase": "layout_selection"}` +
		"\n```")

	response, err := service.ProcessTurn(context.Background(), defaultChatRequest("three slides"))
	if err != nil {
		t.Fatalf("对话回合失败: %v", err)
	}

	if response.Intent.Type != models.IntentSetSlideCount {
		t.Fatalf("意图类型应为set_slide_count，实际为 %s", response.Intent.Type)
	}
	if response.Intent.Count != 3 {
		t.Fatalf("页数不符: %d", response.Intent.Count)
	}
}

// TestProcessTurnMalformedResponseDegrades 不符合协议的应答降级为原文+unknown，会话不中断
func TestProcessTurnMalformedResponseDegrades(t *testing.T) {
	service := newCannedChatService("Sure! I'd be happy to help you build a deck.")

	request := defaultChatRequest("hello there")
	response, err := service.ProcessTurn(context.Background(), request)
	if err != nil {
		t.Fatalf("降级路径不应报错: %v", err)
	}

	if response.Reply != "Sure! I'd be happy to help you build a deck." {
		t.Fatalf("降级时应把原文作为回复，实际为 %q", response.Reply)
	}
	if response.Intent.Type != models.IntentUnknown {
		t.Fatalf("降级意图应为unknown，实际为 %s", response.Intent.Type)
	}
	if response.Intent.RawInput != "hello there" {
		t.Fatalf("unknown意图应携带用户原话，实际为 %q", response.Intent.RawInput)
	}
	if response.NextPhase != models.PhaseBrandSelection {
		t.Fatalf("降级时应保持当前阶段，实际为 %s", response.NextPhase)
	}
}

// TestProcessTurnUnknownIntentTypeDowngraded 协议外的意图类型被降级为unknown
func TestProcessTurnUnknownIntentTypeDowngraded(t *testing.T) {
	service := newCannedChatService(
		`{"reply": "Launching rockets.", "intent": {"type": "launch_rockets"}, "next_phase": "review"}`)

	response, err := service.ProcessTurn(context.Background(), defaultChatRequest("launch the rockets"))
	if err != nil {
		t.Fatalf("对话回合失败: %v", err)
	}

	if response.Intent.Type != models.IntentUnknown {
		t.Fatalf("未知意图类型应降级为unknown，实际为 %s", response.Intent.Type)
	}
	if response.Reply != "Launching rockets." {
		t.Fatalf("回复仍应保留: %q", response.Reply)
	}
}

// TestProcessTurnInvalidPhaseKeepsCurrent 无效阶段标签保持当前阶段
func TestProcessTurnInvalidPhaseKeepsCurrent(t *testing.T) {
	service := newCannedChatService(
		`{"reply": "Done.", "intent": {"type": "set_audience", "audience": "HCPs"}, "next_phase": "made_up_phase"}`)

	response, err := service.ProcessTurn(context.Background(), defaultChatRequest("for HCPs"))
	if err != nil {
		t.Fatalf("对话回合失败: %v", err)
	}

	if response.NextPhase != models.PhaseBrandSelection {
		t.Fatalf("无效阶段应保持当前阶段，实际为 %s", response.NextPhase)
	}
}

// TestProcessTurnNotReady LLM未配置时返回哨兵错误
func TestProcessTurnNotReady(t *testing.T) {
	service := NewChatService(createBaseLLMService())

	_, err := service.ProcessTurn(context.Background(), defaultChatRequest("hello"))
	if !errors.Is(err, ErrLLMNotReady) {
		t.Fatalf("未就绪时应返回ErrLLMNotReady，实际为: %v", err)
	}
}

// TestServerDirectiveShowLayouts set_slide_count意图附带服务端注入的布局目录
func TestServerDirectiveShowLayouts(t *testing.T) {
	service := newCannedChatService(
		`{"reply": "Pick a layout.", "intent": {"type": "set_slide_count", "count": 2}, "next_phase": "layout_selection"}`)

	response, err := service.ProcessTurn(context.Background(), defaultChatRequest("two slides"))
	if err != nil {
		t.Fatalf("对话回合失败: %v", err)
	}

	var layoutsAction *models.UIAction
	for i := range response.UIActions {
		if response.UIActions[i].Type == models.UIShowLayouts {
			layoutsAction = &response.UIActions[i]
			break
		}
	}
	if layoutsAction == nil {
		t.Fatal("应附带show_layouts指令")
	}
	if len(layoutsAction.Layouts) != 6 {
		t.Fatalf("布局目录应由服务端注入6个模板，实际为 %d", len(layoutsAction.Layouts))
	}
}

// TestServerDirectiveTriggerExport export_iva意图附带当前文档ID
func TestServerDirectiveTriggerExport(t *testing.T) {
	service := newCannedChatService(
		`{"reply": "Exporting.", "intent": {"type": "export_iva"}, "next_phase": "review"}`)

	request := defaultChatRequest("export it")
	request.Context.CurrentIVA = &models.IVA{
		Metadata: models.IVAMetadata{ID: "iva-export-me"},
	}

	response, err := service.ProcessTurn(context.Background(), request)
	if err != nil {
		t.Fatalf("对话回合失败: %v", err)
	}

	var exportAction *models.UIAction
	for i := range response.UIActions {
		if response.UIActions[i].Type == models.UITriggerExport {
			exportAction = &response.UIActions[i]
			break
		}
	}
	if exportAction == nil {
		t.Fatal("应附带trigger_export指令")
	}
	if exportAction.IVAID != "iva-export-me" {
		t.Fatalf("导出指令应携带文档ID，实际为 %q", exportAction.IVAID)
	}
}

// TestCleanJSONString 围栏剥离与括号配平
func TestCleanJSONString(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"纯JSON", `{"a": 1}`, `{"a": 1}`},
		{"带围栏", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"前置说明文字", `Here is the JSON: {"a": 1}`, `{"a": 1}`},
		{"后置说明文字", `{"a": 1} hope this helps`, `{"a": 1}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := cleanJSONString(tc.input)
			if got != tc.want {
				t.Fatalf("清洗结果不符: %q, 期望 %q", got, tc.want)
			}
		})
	}
}
