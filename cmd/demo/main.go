// cmd/demo/main.go
// 离线演示：用脚本化的LLM提供者走完一次完整的构建流程
// 创建IVA → 选择品牌 → 设定页数 → 挑选布局 → 填充内容 → 导出静态站点
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/MedVisage/IVAStudioMCP/internal/app"
	"github.com/MedVisage/IVAStudioMCP/internal/config"
	"github.com/MedVisage/IVAStudioMCP/internal/di"
	"github.com/MedVisage/IVAStudioMCP/internal/llm"
	"github.com/MedVisage/IVAStudioMCP/internal/services"
	"github.com/MedVisage/IVAStudioMCP/internal/utils"
)

// scriptedProvider 按预设剧本逐条返回协议JSON，替代真实LLM
type scriptedProvider struct {
	responses []string
	cursor    int
}

func (p *scriptedProvider) Initialize(config map[string]string) error { return nil }
func (p *scriptedProvider) GetName() string                           { return "scripted" }
func (p *scriptedProvider) GetSupportedModels() []string              { return []string{"scripted-demo"} }
func (p *scriptedProvider) FetchAvailableModels(ctx context.Context) error { return nil }
func (p *scriptedProvider) SetCustomModels(models []string)                {}

func (p *scriptedProvider) CompleteText(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if p.cursor >= len(p.responses) {
		return &llm.CompletionResponse{
			Text: `{"reply": "剧本已经演完了。", "intent": {"type": "unknown", "raw_input": ""}, "next_phase": "review"}`,
		}, nil
	}

	text := p.responses[p.cursor]
	p.cursor++

	return &llm.CompletionResponse{
		Text:         text,
		ModelName:    "scripted-demo",
		ProviderName: "scripted",
	}, nil
}

func (p *scriptedProvider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamResponse, error) {
	ch := make(chan llm.StreamResponse, 1)
	resp, _ := p.CompleteText(ctx, req)
	ch <- llm.StreamResponse{Text: resp.Text, Done: true}
	close(ch)
	return ch, nil
}

// demoTurn 一轮对话：用户输入 + LLM的剧本应答
type demoTurn struct {
	userMessage string
	llmResponse string
}

// demoScript 完整的构建剧本
var demoScript = []demoTurn{
	{
		userMessage: "I want to build a new IVA for oncologists",
		llmResponse: `{"reply": "Great, let's build a new IVA. Which brand is this deck for?", "intent": {"type": "create_iva"}, "next_phase": "brand_selection"}`,
	},
	{
		userMessage: "It's for Opdivo",
		llmResponse: `{"reply": "Opdivo it is. Who is the target audience?", "intent": {"type": "set_brand", "brand": "Opdivo"}, "next_phase": "audience_selection"}`,
	},
	{
		userMessage: "Medical oncologists in community practice",
		llmResponse: `{"reply": "Noted. How many slides should the deck have?", "intent": {"type": "set_audience", "audience": "Medical oncologists in community practice"}, "next_phase": "slide_structure"}`,
	},
	{
		userMessage: "Three slides please",
		llmResponse: `{"reply": "Three slides created. Pick a layout for the first slide.", "intent": {"type": "set_slide_count", "count": 3}, "next_phase": "layout_selection"}`,
	},
	{
		userMessage: "Start with a title slide",
		llmResponse: `{"reply": "Title slide layout applied. What should the headline say?", "intent": {"type": "select_layout", "slide_index": 0, "layout_id": "title-slide"}, "next_phase": "content_population"}`,
	},
	{
		userMessage: "Headline: Advancing outcomes in first-line NSCLC",
		llmResponse: `{"reply": "Headline set. Anything else for this slide, or shall we move on?", "intent": {"type": "set_content", "slide_index": 0, "field": "title", "value": "Advancing outcomes in first-line NSCLC"}, "next_phase": "content_population"}`,
	},
	{
		userMessage: "Call the deck Opdivo NSCLC Launch Deck and save it",
		llmResponse: `{"reply": "Saved as \"Opdivo NSCLC Launch Deck\".", "intent": {"type": "set_iva_name", "name": "Opdivo NSCLC Launch Deck"}, "next_phase": "review"}`,
	},
	{
		userMessage: "Looks good, export it",
		llmResponse: `{"reply": "Exporting your deck as a static site now.", "intent": {"type": "export_iva"}, "next_phase": "review"}`,
	},
}

func main() {
	fmt.Println("🚀 IVAStudioMCP 离线构建演示")
	fmt.Println("=================================")

	// 初始化配置
	baseConfig, err := config.Load()
	if err != nil {
		log.Fatalf("❌ 加载基础配置失败: %v", err)
	}

	// 初始化日志系统
	logFile := fmt.Sprintf("logs/demo_%s.log", time.Now().Format("2006-01-02"))
	if err := utils.InitLogger(logFile); err != nil {
		log.Printf("⚠️ 无法初始化结构化日志: %v", err)
	}

	// 初始化环境
	initializeEnvironment(baseConfig)

	// 用脚本化提供者替换真实LLM
	script := &scriptedProvider{}
	for _, turn := range demoScript {
		script.responses = append(script.responses, turn.llmResponse)
	}
	llm.Register("scripted", func() llm.Provider { return script })

	container := di.GetContainer()
	llmService := container.Get("llm").(*services.LLMService)
	if err := llmService.UpdateProvider("scripted", map[string]string{"api_key": "demo"}); err != nil {
		log.Fatalf("❌ 切换脚本化提供者失败: %v", err)
	}

	builderService := container.Get("builder").(*services.BuilderService)
	session := builderService.CreateSession()
	fmt.Printf("✅ 会话已创建: %s\n\n", session.ID)

	// 逐轮执行剧本
	ctx := context.Background()
	for i, turn := range demoScript {
		fmt.Printf("👤 用户: %s\n", turn.userMessage)

		state, err := builderService.ProcessMessage(ctx, session.ID, turn.userMessage)
		if err != nil {
			log.Fatalf("❌ 第%d轮对话失败: %v", i+1, err)
		}

		// 最后一条助手消息就是本轮回复
		if len(state.Messages) > 0 {
			last := state.Messages[len(state.Messages)-1]
			fmt.Printf("🤖 助手: %s\n", last.Content)
		}

		if state.Error != "" {
			fmt.Printf("⚠️ 状态错误: %s\n", state.Error)
		}

		printStateSummary(state.AppState, state.ConversationPhase, state.CurrentSlideIndex, state.CurrentIVA != nil)
		fmt.Println()
	}

	// 展示导出产物
	showExports(baseConfig.ExportDir)
	fmt.Println("✅ 演示完成")
}

// initializeEnvironment 创建目录并初始化服务
func initializeEnvironment(cfg *config.Config) {
	fmt.Println("🔧 正在初始化项目环境...")

	dirs := []string{
		cfg.DataDir,
		filepath.Join(cfg.DataDir, "ivas"),
		cfg.ExportDir,
		cfg.LogDir,
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("❌ 创建目录失败 %s: %v", dir, err)
		}
	}

	if err := config.InitConfig(cfg.DataDir); err != nil {
		log.Fatalf("❌ 初始化配置系统失败: %v", err)
	}

	if err := app.InitServices(); err != nil {
		log.Fatalf("❌ 初始化服务失败: %v", err)
	}

	fmt.Println("✅ 项目环境初始化成功！")
}

// printStateSummary 打印一行状态摘要
func printStateSummary(appState, phase interface{}, slideIndex int, hasIVA bool) {
	fmt.Printf("   [视图=%v 阶段=%v 当前页=%d 文档=%v]\n", appState, phase, slideIndex, hasIVA)
}

// showExports 列出导出目录中的压缩包
func showExports(exportDir string) {
	entries, err := os.ReadDir(exportDir)
	if err != nil {
		fmt.Printf("⚠️ 无法读取导出目录: %v\n", err)
		return
	}

	fmt.Println("📦 导出产物:")
	found := false
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		fmt.Printf("   %s (%d bytes)\n", filepath.Join(exportDir, entry.Name()), info.Size())
		found = true
	}
	if !found {
		fmt.Println("   (无)")
	}
}
