// internal/services/builder_service_test.go
package services

import (
	"context"
	"errors"
	"testing"

	apperrors "github.com/MedVisage/IVAStudioMCP/internal/errors"
	"github.com/MedVisage/IVAStudioMCP/internal/models"
	"github.com/MedVisage/IVAStudioMCP/internal/templates"
)

// newTestBuilderService 构造带真实存储、不带对话服务的构建器
func newTestBuilderService(t *testing.T) *BuilderService {
	t.Helper()

	ivaService := newTestIVAService(t)
	exportService := NewExportService(ivaService, t.TempDir())
	return NewBuilderService(ivaService, nil, exportService, 0)
}

// TestNewInitialState 初始状态：LANDING视图、initial阶段、无文档
func TestNewInitialState(t *testing.T) {
	state := NewInitialState()

	if state.AppState != models.StateLanding {
		t.Fatalf("初始视图应为LANDING，实际为 %s", state.AppState)
	}
	if state.ConversationPhase != models.PhaseInitial {
		t.Fatalf("初始阶段应为initial，实际为 %s", state.ConversationPhase)
	}
	if state.CurrentIVA != nil {
		t.Fatal("初始状态不应有当前文档")
	}
	if state.CurrentSlideIndex != 0 {
		t.Fatalf("初始幻灯片索引应为0，实际为 %d", state.CurrentSlideIndex)
	}
}

// TestReduceUnknownAction 未知动作类型原样返回旧状态
func TestReduceUnknownAction(t *testing.T) {
	state := NewInitialState()
	state.ConversationPhase = models.PhaseReview

	next := Reduce(state, models.BuilderAction{Type: "no_such_action"})

	if next.ConversationPhase != models.PhaseReview {
		t.Fatal("未知动作不应改变状态")
	}
	if next.AppState != state.AppState {
		t.Fatal("未知动作不应改变视图")
	}
}

// TestReduceDoesNotMutateInput 归约器不得修改输入状态
func TestReduceDoesNotMutateInput(t *testing.T) {
	state := NewInitialState()
	state.CurrentIVA = newTestIVA("iva-pure", "Pure")
	state.CurrentIVA.Slides = []models.SlideData{templates.CreateEmptySlideData("title-slide")}

	value := "changed"
	slide := templates.CreateEmptySlideData("title-slide")
	slide.Slots["headline"] = &value

	Reduce(state, models.BuilderAction{
		Type:       models.ActionSetSlide,
		SlideIndex: 0,
		Slide:      slide,
	})

	if state.CurrentIVA.Slides[0].SlotValue("headline") != "" {
		t.Fatal("归约器修改了输入状态的幻灯片")
	}
}

// TestCreateIVAIntent create_iva 建立带默认元数据的草稿并切到BUILD视图
func TestCreateIVAIntent(t *testing.T) {
	service := newTestBuilderService(t)

	state := service.ApplyIntent(NewInitialState(), models.Intent{Type: models.IntentCreateIVA})

	if state.CurrentIVA == nil {
		t.Fatal("create_iva后应有当前文档")
	}
	meta := state.CurrentIVA.Metadata
	if meta.ID == "" {
		t.Fatal("草稿文档应该有ID")
	}
	if meta.Name != "Untitled IVA" {
		t.Fatalf("默认名称不符: %s", meta.Name)
	}
	if meta.Brand != models.BrandOpdivo {
		t.Fatalf("默认品牌不符: %s", meta.Brand)
	}
	if meta.Status != models.StatusDraft {
		t.Fatalf("新文档状态应为draft，实际为 %s", meta.Status)
	}
	if state.AppState != models.StateBuild {
		t.Fatalf("create_iva后视图应为BUILD，实际为 %s", state.AppState)
	}
	if state.ConversationPhase != models.PhaseBrandSelection {
		t.Fatalf("create_iva后阶段应为brand_selection，实际为 %s", state.ConversationPhase)
	}
}

// TestSetBrandFollowsConventionalArea 用户没有显式改过领域时跟随品牌惯例
func TestSetBrandFollowsConventionalArea(t *testing.T) {
	service := newTestBuilderService(t)

	state := service.ApplyIntent(NewInitialState(), models.Intent{Type: models.IntentCreateIVA})

	// Opdivo/Oncology 是惯例组合，切到Camzyos应跟随到Cardiovascular
	state = service.ApplyIntent(state, models.Intent{Type: models.IntentSetBrand, Brand: models.BrandCamzyos})
	if state.CurrentIVA.Metadata.TherapeuticArea != models.AreaCardiovascular {
		t.Fatalf("切换品牌后领域应跟随惯例，实际为 %s", state.CurrentIVA.Metadata.TherapeuticArea)
	}

	// 用户显式设置了非惯例领域之后，切换品牌不再覆盖
	state = service.ApplyIntent(state, models.Intent{Type: models.IntentSetTherapeuticArea, Area: models.AreaImmunology})
	state = service.ApplyIntent(state, models.Intent{Type: models.IntentSetBrand, Brand: models.BrandYervoy})
	if state.CurrentIVA.Metadata.TherapeuticArea != models.AreaImmunology {
		t.Fatalf("显式设置的领域不应被品牌切换覆盖，实际为 %s", state.CurrentIVA.Metadata.TherapeuticArea)
	}
	if state.CurrentIVA.Metadata.Brand != models.BrandYervoy {
		t.Fatalf("品牌应为Yervoy，实际为 %s", state.CurrentIVA.Metadata.Brand)
	}
}

// TestSetBrandInvalid 无效品牌被忽略
func TestSetBrandInvalid(t *testing.T) {
	service := newTestBuilderService(t)

	state := service.ApplyIntent(NewInitialState(), models.Intent{Type: models.IntentCreateIVA})
	next := service.ApplyIntent(state, models.Intent{Type: models.IntentSetBrand, Brand: "NotABrand"})

	if next.CurrentIVA.Metadata.Brand != models.BrandOpdivo {
		t.Fatalf("无效品牌不应生效，实际为 %s", next.CurrentIVA.Metadata.Brand)
	}
}

// TestSetSlideCountPadsAndClamps 页数修改保留已有页，缺口补默认空页，越界收敛
func TestSetSlideCountPadsAndClamps(t *testing.T) {
	service := newTestBuilderService(t)

	state := service.ApplyIntent(NewInitialState(), models.Intent{Type: models.IntentCreateIVA})
	state = service.ApplyIntent(state, models.Intent{Type: models.IntentSetSlideCount, Count: 3})

	if len(state.CurrentIVA.Slides) != 3 {
		t.Fatalf("应有3页，实际为 %d", len(state.CurrentIVA.Slides))
	}
	if state.CurrentIVA.Metadata.SlideCount != 3 {
		t.Fatalf("元数据页数应为3，实际为 %d", state.CurrentIVA.Metadata.SlideCount)
	}
	for i, slide := range state.CurrentIVA.Slides {
		if slide.TemplateID != templates.DefaultTemplateID {
			t.Fatalf("第%d页应使用默认布局，实际为 %s", i, slide.TemplateID)
		}
	}

	// 在第一页写入内容后缩减页数，内容保留
	state = service.ApplyIntent(state, models.Intent{
		Type: models.IntentSetContent, SlideIndex: 0, Field: "headline", Value: "Keep me",
	})
	state = service.ApplyIntent(state, models.Intent{Type: models.IntentSetSlideCount, Count: 2})

	if len(state.CurrentIVA.Slides) != 2 {
		t.Fatalf("缩减后应有2页，实际为 %d", len(state.CurrentIVA.Slides))
	}
	if state.CurrentIVA.Slides[0].SlotValue("headline") != "Keep me" {
		t.Fatal("缩减页数不应丢失已有页的内容")
	}
	if state.CurrentSlideIndex != 0 {
		t.Fatalf("修改页数后当前页应回到0，实际为 %d", state.CurrentSlideIndex)
	}

	// 越界收敛
	state = service.ApplyIntent(state, models.Intent{Type: models.IntentSetSlideCount, Count: 0})
	if len(state.CurrentIVA.Slides) != 1 {
		t.Fatalf("页数0应收敛到1，实际为 %d", len(state.CurrentIVA.Slides))
	}
	state = service.ApplyIntent(state, models.Intent{Type: models.IntentSetSlideCount, Count: 999})
	if len(state.CurrentIVA.Slides) != 50 {
		t.Fatalf("页数999应收敛到50，实际为 %d", len(state.CurrentIVA.Slides))
	}
}

// TestSelectLayoutDiscardsOldSlots 换布局整页重建，旧槽位内容不迁移，页面意图保留
func TestSelectLayoutDiscardsOldSlots(t *testing.T) {
	service := newTestBuilderService(t)

	state := service.ApplyIntent(NewInitialState(), models.Intent{Type: models.IntentCreateIVA})
	state = service.ApplyIntent(state, models.Intent{Type: models.IntentSetSlideCount, Count: 1})
	state = service.ApplyIntent(state, models.Intent{
		Type: models.IntentSetSlideIntent, SlideIndex: 0, SlideIntent: "introduce efficacy data",
	})
	state = service.ApplyIntent(state, models.Intent{
		Type: models.IntentSetContent, SlideIndex: 0, Field: "headline", Value: "Old headline",
	})

	state = service.ApplyIntent(state, models.Intent{
		Type: models.IntentSelectLayout, SlideIndex: 0, LayoutID: "title-slide",
	})

	slide := state.CurrentIVA.Slides[0]
	if slide.TemplateID != "title-slide" {
		t.Fatalf("布局应为title-slide，实际为 %s", slide.TemplateID)
	}
	if slide.SlotValue("headline") != "" {
		t.Fatal("换布局后旧槽位内容不应迁移")
	}
	if slide.Intent != "introduce efficacy data" {
		t.Fatalf("页面意图应保留，实际为 %q", slide.Intent)
	}

	// 目录外的布局ID走目录的空页兜底：页面重建为无槽位的空页
	next := service.ApplyIntent(state, models.Intent{
		Type: models.IntentSelectLayout, SlideIndex: 0, LayoutID: "no-such-layout",
	})
	if next.CurrentIVA.Slides[0].TemplateID != "no-such-layout" {
		t.Fatalf("目录外布局应照常应用，实际为 %s", next.CurrentIVA.Slides[0].TemplateID)
	}
	if len(next.CurrentIVA.Slides[0].Slots) != 0 {
		t.Fatalf("目录外布局的兜底页不应有槽位，实际为 %d", len(next.CurrentIVA.Slides[0].Slots))
	}
}

// TestSlideNavigationClamps 翻页在边界处是no-op，索引越界收敛
func TestSlideNavigationClamps(t *testing.T) {
	service := newTestBuilderService(t)

	state := service.ApplyIntent(NewInitialState(), models.Intent{Type: models.IntentCreateIVA})
	state = service.ApplyIntent(state, models.Intent{Type: models.IntentSetSlideCount, Count: 3})

	// 第一页再往前翻保持不动
	state = service.ApplyIntent(state, models.Intent{Type: models.IntentPrevSlide})
	if state.CurrentSlideIndex != 0 {
		t.Fatalf("首页前翻应保持0，实际为 %d", state.CurrentSlideIndex)
	}

	state = service.ApplyIntent(state, models.Intent{Type: models.IntentNextSlide})
	state = service.ApplyIntent(state, models.Intent{Type: models.IntentNextSlide})
	if state.CurrentSlideIndex != 2 {
		t.Fatalf("两次后翻应到第2页，实际为 %d", state.CurrentSlideIndex)
	}

	// 末页再往后翻保持不动
	state = service.ApplyIntent(state, models.Intent{Type: models.IntentNextSlide})
	if state.CurrentSlideIndex != 2 {
		t.Fatalf("末页后翻应保持2，实际为 %d", state.CurrentSlideIndex)
	}

	// 直接选页越界收敛
	state = service.ApplyIntent(state, models.Intent{Type: models.IntentSelectSlide, SlideIndex: 99})
	if state.CurrentSlideIndex != 2 {
		t.Fatalf("越界选页应收敛到末页，实际为 %d", state.CurrentSlideIndex)
	}
	state = service.ApplyIntent(state, models.Intent{Type: models.IntentSelectSlide, SlideIndex: -5})
	if state.CurrentSlideIndex != 0 {
		t.Fatalf("负索引应收敛到0，实际为 %d", state.CurrentSlideIndex)
	}
}

// TestSetContentCopyOnWrite 内容写入只替换目标槽位，其他槽位保持
func TestSetContentCopyOnWrite(t *testing.T) {
	service := newTestBuilderService(t)

	state := service.ApplyIntent(NewInitialState(), models.Intent{Type: models.IntentCreateIVA})
	state = service.ApplyIntent(state, models.Intent{Type: models.IntentSetSlideCount, Count: 1})
	state = service.ApplyIntent(state, models.Intent{
		Type: models.IntentSetContent, SlideIndex: 0, Field: "headline", Value: "Headline",
	})
	state = service.ApplyIntent(state, models.Intent{
		Type: models.IntentSetContent, SlideIndex: 0, Field: "body", Value: "Body text",
	})

	slide := state.CurrentIVA.Slides[0]
	if slide.SlotValue("headline") != "Headline" {
		t.Fatalf("headline槽位内容不符: %q", slide.SlotValue("headline"))
	}
	if slide.SlotValue("body") != "Body text" {
		t.Fatalf("body槽位内容不符: %q", slide.SlotValue("body"))
	}

	// 空字段名忽略
	next := service.ApplyIntent(state, models.Intent{Type: models.IntentSetContent, Field: ""})
	if next.CurrentIVA.Slides[0].SlotValue("headline") != "Headline" {
		t.Fatal("空字段名的写入不应改变状态")
	}
}

// TestConfigureISI ISI配置写入状态
func TestConfigureISI(t *testing.T) {
	service := newTestBuilderService(t)

	state := service.ApplyIntent(NewInitialState(), models.Intent{
		Type:      models.IntentConfigureISI,
		ISIConfig: &models.ISIConfig{Enabled: true, Style: "scrolling", Placement: "bottom"},
	})

	if state.ISIConfig == nil || !state.ISIConfig.Enabled {
		t.Fatal("ISI配置应写入状态")
	}
	if state.ISIConfig.Style != "scrolling" {
		t.Fatalf("ISI样式不符: %s", state.ISIConfig.Style)
	}
}

// TestGoBackResets go_back 回到初始状态
func TestGoBackResets(t *testing.T) {
	service := newTestBuilderService(t)

	state := service.ApplyIntent(NewInitialState(), models.Intent{Type: models.IntentCreateIVA})
	state = service.ApplyIntent(state, models.Intent{Type: models.IntentGoBack})

	if state.CurrentIVA != nil {
		t.Fatal("go_back后不应有当前文档")
	}
	if state.AppState != models.StateLanding {
		t.Fatalf("go_back后视图应为LANDING，实际为 %s", state.AppState)
	}
	if state.ConversationPhase != models.PhaseInitial {
		t.Fatalf("go_back后阶段应为initial，实际为 %s", state.ConversationPhase)
	}
}

// TestEditIVAIntent edit_iva 从存储加载文档并切到EDIT视图
func TestEditIVAIntent(t *testing.T) {
	service := newTestBuilderService(t)

	saved := newTestIVA("iva-edit-me", "Editable")
	if err := service.ivaService.Save(saved); err != nil {
		t.Fatalf("预置文档失败: %v", err)
	}

	state := service.ApplyIntent(NewInitialState(), models.Intent{
		Type: models.IntentEditIVA, IVAID: "iva-edit-me",
	})

	if state.CurrentIVA == nil || state.CurrentIVA.Metadata.ID != "iva-edit-me" {
		t.Fatal("edit_iva应加载指定文档")
	}
	if state.AppState != models.StateEdit {
		t.Fatalf("edit_iva后视图应为EDIT，实际为 %s", state.AppState)
	}
	if state.ConversationPhase != models.PhaseEditing {
		t.Fatalf("edit_iva后阶段应为editing，实际为 %s", state.ConversationPhase)
	}

	// 未知ID记录错误，不崩溃
	missing := service.ApplyIntent(NewInitialState(), models.Intent{
		Type: models.IntentEditIVA, IVAID: "no-such-iva",
	})
	if missing.Error == "" {
		t.Fatal("加载未知文档应记录错误")
	}
	if missing.CurrentIVA != nil {
		t.Fatal("加载失败不应产生当前文档")
	}
}

// TestSessionLifecycle 会话的创建、查找与关闭
func TestSessionLifecycle(t *testing.T) {
	service := newTestBuilderService(t)

	session := service.CreateSession()
	if session.ID == "" {
		t.Fatal("会话应有ID")
	}

	found, err := service.GetSession(session.ID)
	if err != nil {
		t.Fatalf("查找会话失败: %v", err)
	}
	if found.ID != session.ID {
		t.Fatal("查找到的会话不符")
	}

	service.CloseSession(session.ID)
	if _, err := service.GetSession(session.ID); !apperrors.IsNotFoundError(err) {
		t.Fatalf("关闭后的会话应返回NotFound，实际为: %v", err)
	}
}

// TestUpdateSlotWithoutIVA 没有当前文档时直接写槽位报验证错误
func TestUpdateSlotWithoutIVA(t *testing.T) {
	service := newTestBuilderService(t)
	session := service.CreateSession()

	_, err := service.UpdateSlot(session.ID, 0, "headline", "value")
	if !apperrors.IsValidationError(err) {
		t.Fatalf("无文档写槽位应返回验证错误，实际为: %v", err)
	}
}

// TestUpdateSlotPersists 直接写槽位立即落盘
func TestUpdateSlotPersists(t *testing.T) {
	service := newTestBuilderService(t)
	session := service.CreateSession()

	state := service.ApplyIntent(session.State(), models.Intent{Type: models.IntentCreateIVA})
	state = service.ApplyIntent(state, models.Intent{Type: models.IntentSetSlideCount, Count: 1})
	if _, err := service.dispatch(session.ID, models.BuilderAction{
		Type: models.ActionSetCurrentIVA, IVA: state.CurrentIVA,
	}); err != nil {
		t.Fatalf("写入会话状态失败: %v", err)
	}

	updated, err := service.UpdateSlot(session.ID, 0, "headline", "Persisted")
	if err != nil {
		t.Fatalf("写槽位失败: %v", err)
	}
	if updated.CurrentIVA.Slides[0].SlotValue("headline") != "Persisted" {
		t.Fatal("会话状态中的槽位未更新")
	}

	stored, err := service.ivaService.GetByID(updated.CurrentIVA.Metadata.ID)
	if err != nil {
		t.Fatalf("读取落盘文档失败: %v", err)
	}
	if stored.Slides[0].SlotValue("headline") != "Persisted" {
		t.Fatal("槽位写入未落盘")
	}
}

// TestTransitionTo 切换视图后过渡标志复位
func TestTransitionTo(t *testing.T) {
	service := newTestBuilderService(t)
	session := service.CreateSession()

	state, err := service.TransitionTo(session.ID, models.StateArchive)
	if err != nil {
		t.Fatalf("视图切换失败: %v", err)
	}
	if state.AppState != models.StateArchive {
		t.Fatalf("切换后视图应为ARCHIVE，实际为 %s", state.AppState)
	}
	if state.IsTransitioning {
		t.Fatal("切换完成后过渡标志应复位")
	}
}

// TestProcessMessageFullTurn 完整回合：消息入列、意图应用、阶段推进、自动保存
func TestProcessMessageFullTurn(t *testing.T) {
	ivaService := newTestIVAService(t)
	chatService := newCannedChatService(
		`{"reply": "Deck created. Which brand?", "intent": {"type": "create_iva"}, "next_phase": "brand_selection"}`)
	service := NewBuilderService(ivaService, chatService, NewExportService(ivaService, t.TempDir()), 0)

	session := service.CreateSession()

	state, err := service.ProcessMessage(context.Background(), session.ID, "build me a deck")
	if err != nil {
		t.Fatalf("对话回合失败: %v", err)
	}

	if len(state.Messages) != 2 {
		t.Fatalf("回合后应有用户+助手两条消息，实际为 %d", len(state.Messages))
	}
	if state.Messages[0].Role != models.RoleUser || state.Messages[0].Content != "build me a deck" {
		t.Fatal("第一条应为用户消息")
	}
	if state.Messages[1].Role != models.RoleAssistant || state.Messages[1].Content != "Deck created. Which brand?" {
		t.Fatal("第二条应为助手回复")
	}
	if state.CurrentIVA == nil {
		t.Fatal("create_iva意图应建立文档")
	}
	if state.ConversationPhase != models.PhaseBrandSelection {
		t.Fatalf("阶段应推进到brand_selection，实际为 %s", state.ConversationPhase)
	}
	if state.IsLoading {
		t.Fatal("回合结束后加载标志应复位")
	}

	// BUILD态下自动保存
	if _, err := ivaService.GetByID(state.CurrentIVA.Metadata.ID); err != nil {
		t.Fatalf("回合后文档应已自动保存: %v", err)
	}
}

// TestProcessMessageTransportFailure 传输层失败：文档状态不动，只记录错误
func TestProcessMessageTransportFailure(t *testing.T) {
	ivaService := newTestIVAService(t)

	llmService := createBaseLLMService()
	llmService.provider = &cannedProvider{err: errors.New("connection refused")}
	llmService.isReady = true
	chatService := NewChatService(llmService)

	service := NewBuilderService(ivaService, chatService, NewExportService(ivaService, t.TempDir()), 0)
	session := service.CreateSession()

	state, err := service.ProcessMessage(context.Background(), session.ID, "hello")
	if err != nil {
		t.Fatalf("传输失败不应返回Go错误: %v", err)
	}

	if state.Error == "" {
		t.Fatal("传输失败应记录可展示的错误")
	}
	if state.IsLoading {
		t.Fatal("传输失败后加载标志应复位")
	}
	if state.CurrentIVA != nil {
		t.Fatal("传输失败不应改变文档状态")
	}
	if len(state.Messages) != 1 {
		t.Fatalf("传输失败时只有用户消息入列，实际为 %d", len(state.Messages))
	}
}

// TestProcessMessageUnknownSession 未知会话返回NotFound
func TestProcessMessageUnknownSession(t *testing.T) {
	service := newTestBuilderService(t)

	_, err := service.ProcessMessage(context.Background(), "no-such-session", "hello")
	if !apperrors.IsNotFoundError(err) {
		t.Fatalf("未知会话应返回NotFound，实际为: %v", err)
	}
}

// TestStateSnapshotIsolation State()返回的快照与内部状态隔离
func TestStateSnapshotIsolation(t *testing.T) {
	service := newTestBuilderService(t)
	session := service.CreateSession()

	state := service.ApplyIntent(session.State(), models.Intent{Type: models.IntentCreateIVA})
	state = service.ApplyIntent(state, models.Intent{Type: models.IntentSetSlideCount, Count: 1})
	if _, err := service.dispatch(session.ID, models.BuilderAction{
		Type: models.ActionSetCurrentIVA, IVA: state.CurrentIVA,
	}); err != nil {
		t.Fatalf("写入会话状态失败: %v", err)
	}

	snapshot := session.State()
	value := "mutated from outside"
	snapshot.CurrentIVA.Slides[0].Slots["headline"] = &value

	fresh := session.State()
	if fresh.CurrentIVA.Slides[0].SlotValue("headline") != "" {
		t.Fatal("外部修改快照不应影响会话内部状态")
	}
}

// TestApplyUIIntentDirect UI直达动作与对话意图共用同一套语义
func TestApplyUIIntentDirect(t *testing.T) {
	service := newTestBuilderService(t)
	session := service.CreateSession()

	state, err := service.ApplyUIIntent(session.ID, models.Intent{Type: models.IntentCreateIVA})
	if err != nil {
		t.Fatalf("应用create_iva失败: %v", err)
	}
	if state.CurrentIVA == nil {
		t.Fatal("create_iva之后应存在当前文档")
	}

	state, err = service.ApplyUIIntent(session.ID, models.Intent{Type: models.IntentSetSlideCount, Count: 2})
	if err != nil {
		t.Fatalf("应用set_slide_count失败: %v", err)
	}

	state, err = service.ApplyUIIntent(session.ID, models.Intent{Type: models.IntentNextSlide})
	if err != nil {
		t.Fatalf("应用next_slide失败: %v", err)
	}
	if state.CurrentSlideIndex != 1 {
		t.Fatalf("翻页后索引应为1，实际为 %d", state.CurrentSlideIndex)
	}

	// 会话内部状态同步更新
	if session.State().CurrentSlideIndex != 1 {
		t.Fatal("会话内部状态应与返回的快照一致")
	}

	if _, err := service.ApplyUIIntent("no-such-session", models.Intent{Type: models.IntentNextSlide}); !apperrors.IsNotFoundError(err) {
		t.Fatalf("未知会话应返回NotFound，实际为: %v", err)
	}
}

// TestAutoSaveInArchiveView 归档视图下的文档变更同样自动落盘
func TestAutoSaveInArchiveView(t *testing.T) {
	service := newTestBuilderService(t)
	session := service.CreateSession()

	if _, err := service.ApplyUIIntent(session.ID, models.Intent{Type: models.IntentCreateIVA}); err != nil {
		t.Fatalf("应用create_iva失败: %v", err)
	}
	state, err := service.ApplyUIIntent(session.ID, models.Intent{Type: models.IntentSetSlideCount, Count: 1})
	if err != nil {
		t.Fatalf("应用set_slide_count失败: %v", err)
	}
	id := state.CurrentIVA.Metadata.ID

	// 切到归档视图后继续修改
	if _, err := service.ApplyUIIntent(session.ID, models.Intent{Type: models.IntentShowArchive}); err != nil {
		t.Fatalf("应用show_archive失败: %v", err)
	}
	if _, err := service.ApplyUIIntent(session.ID, models.Intent{
		Type: models.IntentSetContent, SlideIndex: 0, Field: "headline", Value: "Archived edit",
	}); err != nil {
		t.Fatalf("应用set_content失败: %v", err)
	}

	saved, err := service.ivaService.GetByID(id)
	if err != nil {
		t.Fatalf("读取落盘文档失败: %v", err)
	}
	if saved.Slides[0].SlotValue("headline") != "Archived edit" {
		t.Fatalf("归档视图下的修改应已落盘，实际为 %q", saved.Slides[0].SlotValue("headline"))
	}
}
