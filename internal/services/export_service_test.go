// internal/services/export_service_test.go
package services

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	apperrors "github.com/MedVisage/IVAStudioMCP/internal/errors"
	"github.com/MedVisage/IVAStudioMCP/internal/models"
	"github.com/MedVisage/IVAStudioMCP/internal/templates"
)

// slideWithContent 构造填了内容的幻灯片
func slideWithContent(templateID string, slots map[string]string) models.SlideData {
	slide := templates.CreateEmptySlideData(templateID)
	for k, v := range slots {
		value := v
		slide.Slots[k] = &value
	}
	return slide
}

// readZipEntry 从zip数据中读取单个成员内容
func readZipEntry(t *testing.T, data []byte, name string) []byte {
	t.Helper()

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("打开zip失败: %v", err)
	}
	for _, f := range zr.File {
		if f.Name == name {
			rc, err := f.Open()
			if err != nil {
				t.Fatalf("打开zip成员 %s 失败: %v", name, err)
			}
			defer rc.Close()
			content, err := io.ReadAll(rc)
			if err != nil {
				t.Fatalf("读取zip成员 %s 失败: %v", name, err)
			}
			return content
		}
	}
	t.Fatalf("zip中找不到成员: %s", name)
	return nil
}

// zipMemberNames 列出zip的全部成员路径
func zipMemberNames(t *testing.T, data []byte) []string {
	t.Helper()

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("打开zip失败: %v", err)
	}
	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return names
}

// TestSlugify 文件名slug转换
func TestSlugify(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{"My IVA Deck!", "my-iva-deck"},
		{"  Opdivo NSCLC 2026  ", "opdivo-nsclc-2026"},
		{"___", "iva"},
		{"", "iva"},
		{"中文名称！", "iva"},
	}

	for _, tc := range cases {
		if got := slugify(tc.input); got != tc.want {
			t.Fatalf("slugify(%q) = %q, 期望 %q", tc.input, got, tc.want)
		}
	}
}

// TestEscapeHTML 五个特殊字符全部转义
func TestEscapeHTML(t *testing.T) {
	got := escapeHTML(`<b>Hi & "you" 'there'</b>`)
	want := "&lt;b&gt;Hi &amp; &quot;you&quot; &#039;there&#039;&lt;/b&gt;"
	if got != want {
		t.Fatalf("转义结果不符: %q", got)
	}
}

// TestSplitBullets 按行拆分并过滤空白行
func TestSplitBullets(t *testing.T) {
	bullets := splitBullets("First point\n\n  \nSecond point\nThird point\n")
	if len(bullets) != 3 {
		t.Fatalf("应得到3个要点，实际为 %d: %v", len(bullets), bullets)
	}
	if bullets[0] != "First point" || bullets[2] != "Third point" {
		t.Fatalf("要点内容不符: %v", bullets)
	}
}

// TestRenderSlideContentEscapes 槽位内容进入HTML前必须转义
func TestRenderSlideContentEscapes(t *testing.T) {
	slide := slideWithContent("title-slide", map[string]string{
		"headline": "<b>Hi</b>",
	})

	html := renderSlideContent(slide)
	if strings.Contains(html, "<b>Hi</b>") {
		t.Fatal("槽位内容未转义就进入了HTML")
	}
	if !strings.Contains(html, "&lt;b&gt;Hi&lt;/b&gt;") {
		t.Fatalf("找不到转义后的内容: %s", html)
	}
}

// TestRenderSlideContentPlaceholders 图像/图表槽位为空时输出占位块
func TestRenderSlideContentPlaceholders(t *testing.T) {
	split := renderSlideContent(slideWithContent("content-image-split", map[string]string{
		"headline": "H", "body": "B",
	}))
	if !strings.Contains(split, `<div class="placeholder">Image</div>`) {
		t.Fatal("content-image-split缺少Image占位块")
	}

	chart := renderSlideContent(slideWithContent("data-chart-focus", map[string]string{
		"headline": "H",
	}))
	if !strings.Contains(chart, `<div class="placeholder">Chart</div>`) {
		t.Fatal("data-chart-focus缺少Chart占位块")
	}
}

// TestRenderSlideContentUnknownTemplate 未知布局降级为键值对渲染
func TestRenderSlideContentUnknownTemplate(t *testing.T) {
	slide := models.SlideData{
		TemplateID: "no-such-layout",
		Slots:      map[string]*string{},
	}
	value := "fallback content"
	slide.Slots["anything"] = &value

	html := renderSlideContent(slide)
	if !strings.Contains(html, "default-slide") {
		t.Fatal("未知布局应走通用兜底渲染")
	}
	if !strings.Contains(html, "fallback content") {
		t.Fatal("兜底渲染应包含槽位内容")
	}
}

// TestBuildArchiveMemberPaths zip结构：manifest、slides、assets、index、条件性的shared/isi.html
func TestBuildArchiveMemberPaths(t *testing.T) {
	service := &ExportService{}

	iva := newTestIVA("iva-zip", "Zip Deck")
	iva.Slides = []models.SlideData{
		slideWithContent("title-slide", map[string]string{"headline": "Title"}),
		slideWithContent("bullet-list", map[string]string{
			"headline": "Points",
			"bullets":  "One\nTwo",
			"isi":      "Important safety information text",
		}),
	}

	data, hasISI, err := service.buildArchive(iva)
	if err != nil {
		t.Fatalf("构建导出包失败: %v", err)
	}
	if !hasISI {
		t.Fatal("第二页有ISI内容，hasISI应为true")
	}

	want := []string{
		"assets/css/styles.css",
		"assets/js/navigation.js",
		"index.html",
		"manifest.json",
		"shared/isi.html",
		"slides/slide-1.html",
		"slides/slide-2.html",
	}
	got := zipMemberNames(t, data)
	if len(got) != len(want) {
		t.Fatalf("zip成员数量不符: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("zip成员不符: got %v, want %v", got, want)
		}
	}
}

// TestBuildArchiveOmitsISIWhenEmpty 没有任何ISI内容时不生成shared/isi.html
func TestBuildArchiveOmitsISIWhenEmpty(t *testing.T) {
	service := &ExportService{}

	iva := newTestIVA("iva-no-isi", "No ISI Deck")
	iva.Slides = []models.SlideData{
		slideWithContent("title-slide", map[string]string{"headline": "Title"}),
	}

	data, hasISI, err := service.buildArchive(iva)
	if err != nil {
		t.Fatalf("构建导出包失败: %v", err)
	}
	if hasISI {
		t.Fatal("没有ISI内容时hasISI应为false")
	}

	for _, name := range zipMemberNames(t, data) {
		if name == "shared/isi.html" {
			t.Fatal("没有ISI内容时不应生成shared/isi.html")
		}
	}
}

// TestManifestFields manifest.json 的字段与文档元数据一致
func TestManifestFields(t *testing.T) {
	service := &ExportService{}

	iva := newTestIVA("iva-manifest", "Manifest Deck")
	iva.Metadata.Brand = models.BrandCamzyos
	iva.Slides = []models.SlideData{
		slideWithContent("title-slide", map[string]string{"headline": "T"}),
		slideWithContent("three-column", map[string]string{"headline": "C"}),
	}

	data, _, err := service.buildArchive(iva)
	if err != nil {
		t.Fatalf("构建导出包失败: %v", err)
	}

	var manifest models.ExportManifest
	if err := json.Unmarshal(readZipEntry(t, data, "manifest.json"), &manifest); err != nil {
		t.Fatalf("解析manifest失败: %v", err)
	}

	if manifest.Name != "Manifest Deck" {
		t.Fatalf("manifest名称不符: %s", manifest.Name)
	}
	if manifest.Brand != models.BrandCamzyos {
		t.Fatalf("manifest品牌不符: %s", manifest.Brand)
	}
	if manifest.SlideCount != 2 {
		t.Fatalf("manifest页数不符: %d", manifest.SlideCount)
	}
	if manifest.Version != "1.0" {
		t.Fatalf("manifest版本不符: %s", manifest.Version)
	}
	if manifest.CreatedBy != "IVA Studio" {
		t.Fatalf("manifest创建者不符: %s", manifest.CreatedBy)
	}
}

// TestIndexHTMLFirstSlideActive 入口页第一页激活，计数器与总页数一致
func TestIndexHTMLFirstSlideActive(t *testing.T) {
	iva := newTestIVA("iva-index", "Index Deck")
	iva.Slides = []models.SlideData{
		slideWithContent("title-slide", map[string]string{"headline": "One"}),
		slideWithContent("title-slide", map[string]string{"headline": "Two"}),
		slideWithContent("title-slide", map[string]string{"headline": "Three"}),
	}

	html := renderIndexHTML(iva)

	if !strings.Contains(html, `<div class="slide active" id="slide-1">`) {
		t.Fatal("第一页应带active类")
	}
	if strings.Contains(html, `<div class="slide active" id="slide-2">`) {
		t.Fatal("只有第一页应带active类")
	}
	if !strings.Contains(html, `<span id="total-slides">3</span>`) {
		t.Fatal("总页数计数器不符")
	}
	if !strings.Contains(html, `data-brand="Opdivo"`) {
		t.Fatal("入口页应携带品牌标记")
	}
}

// TestExportFlipsStatusAfterSuccess 导出成功后文档状态才翻到submitted
func TestExportFlipsStatusAfterSuccess(t *testing.T) {
	ivaService := newTestIVAService(t)
	exportDir := t.TempDir()
	service := NewExportService(ivaService, exportDir)

	iva := newTestIVA("iva-export", "Export Deck")
	iva.Slides = []models.SlideData{
		slideWithContent("title-slide", map[string]string{"headline": "Go"}),
	}
	if err := ivaService.Save(iva); err != nil {
		t.Fatalf("预置文档失败: %v", err)
	}

	result, err := service.ExportIVA("iva-export")
	if err != nil {
		t.Fatalf("导出失败: %v", err)
	}

	if result.FileName == "" || !strings.HasSuffix(result.FileName, ".zip") {
		t.Fatalf("导出文件名不符: %s", result.FileName)
	}
	if !strings.HasPrefix(result.FileName, "export-deck-") {
		t.Fatalf("导出文件名应以slug开头: %s", result.FileName)
	}
	if result.FileSize != int64(len(result.Data)) {
		t.Fatal("FileSize与数据长度不符")
	}
	if result.SlideCount != 1 {
		t.Fatalf("导出页数不符: %d", result.SlideCount)
	}

	// 本地留档
	if _, err := os.Stat(filepath.Join(exportDir, result.FileName)); err != nil {
		t.Fatalf("导出目录应有留档副本: %v", err)
	}

	// 状态翻转
	loaded, err := ivaService.GetByID("iva-export")
	if err != nil {
		t.Fatalf("读取文档失败: %v", err)
	}
	if loaded.Metadata.Status != models.StatusSubmitted {
		t.Fatalf("导出成功后状态应为submitted，实际为 %s", loaded.Metadata.Status)
	}
}

// TestExportUnknownIDLeavesNothing 导出未知文档报NotFound，不产生任何副作用
func TestExportUnknownIDLeavesNothing(t *testing.T) {
	ivaService := newTestIVAService(t)
	exportDir := t.TempDir()
	service := NewExportService(ivaService, exportDir)

	_, err := service.ExportIVA("no-such-iva")
	if !apperrors.IsNotFoundError(err) {
		t.Fatalf("未知文档导出应返回NotFound，实际为: %v", err)
	}

	entries, err := os.ReadDir(exportDir)
	if err != nil {
		t.Fatalf("读取导出目录失败: %v", err)
	}
	if len(entries) != 0 {
		t.Fatal("导出失败不应留下文件")
	}
}
