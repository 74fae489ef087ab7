// internal/services/export_service.go
package services

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/MedVisage/IVAStudioMCP/internal/models"
	"github.com/MedVisage/IVAStudioMCP/internal/templates"
	"github.com/MedVisage/IVAStudioMCP/internal/utils"
)

// ExportService 把IVA文档渲染为自包含的静态站点压缩包
// 压缩包结构：manifest.json、index.html、slides/、assets/css、assets/js、shared/isi.html（可选）
type ExportService struct {
	ivaService *IVAService
	exportDir  string
}

// NewExportService 创建导出服务
func NewExportService(ivaService *IVAService, exportDir string) *ExportService {
	return &ExportService{
		ivaService: ivaService,
		exportDir:  exportDir,
	}
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// slugify 把名称转为文件名安全的slug，无有效字符时回退为"iva"
func slugify(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = slugPattern.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		return "iva"
	}
	return slug
}

// ExportIVA 导出指定ID的IVA
// 压缩包完整构建成功之后才把文档状态翻到submitted，构建失败时状态不变
func (s *ExportService) ExportIVA(id string) (*models.ExportResult, error) {
	iva, err := s.ivaService.GetByID(id)
	if err != nil {
		return nil, err
	}

	// 1. 先构建压缩包
	data, hasISI, err := s.buildArchive(iva)
	if err != nil {
		return nil, fmt.Errorf("构建导出包失败: %w", err)
	}

	fileName := fmt.Sprintf("%s-%d.zip", slugify(iva.Metadata.Name), time.Now().Unix())

	// 2. 保存一份到导出目录
	if s.exportDir != "" {
		if err := s.saveToExportDir(fileName, data); err != nil {
			// 本地留档失败不阻断导出
			utils.GetLogger().Warn("导出包本地留档失败", map[string]interface{}{"err": err.Error()})
		}
	}

	// 3. 构建成功后才更新状态
	if err := s.ivaService.UpdateStatus(id, models.StatusSubmitted); err != nil {
		return nil, fmt.Errorf("更新导出状态失败: %w", err)
	}

	return &models.ExportResult{
		IVAID:       id,
		FileName:    fileName,
		Data:        data,
		FileSize:    int64(len(data)),
		SlideCount:  len(iva.Slides),
		HasISI:      hasISI,
		GeneratedAt: time.Now(),
	}, nil
}

// buildArchive 在内存中构建完整的zip包
func (s *ExportService) buildArchive(iva *models.IVA) ([]byte, bool, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	writeFile := func(name string, content []byte) error {
		w, err := zw.Create(name)
		if err != nil {
			return err
		}
		_, err = w.Write(content)
		return err
	}

	// manifest.json
	manifest := models.ExportManifest{
		Name:       displayName(iva),
		Brand:      iva.Metadata.Brand,
		Version:    "1.0",
		SlideCount: len(iva.Slides),
		CreatedAt:  time.Now(),
		CreatedBy:  "IVA Studio",
	}
	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, false, fmt.Errorf("序列化manifest失败: %w", err)
	}
	if err := writeFile("manifest.json", manifestJSON); err != nil {
		return nil, false, err
	}

	// slides/slide-N.html（序号从1开始）
	for i, slide := range iva.Slides {
		name := fmt.Sprintf("slides/slide-%d.html", i+1)
		if err := writeFile(name, []byte(renderSlideHTML(slide, i+1))); err != nil {
			return nil, false, err
		}
	}

	// 样式与导航脚本
	if err := writeFile("assets/css/styles.css", []byte(baseStyles())); err != nil {
		return nil, false, err
	}
	if err := writeFile("assets/js/navigation.js", []byte(navigationJS(len(iva.Slides)))); err != nil {
		return nil, false, err
	}

	// index.html
	if err := writeFile("index.html", []byte(renderIndexHTML(iva))); err != nil {
		return nil, false, err
	}

	// shared/isi.html 仅在任意一页有ISI内容时生成
	hasISI := false
	for _, slide := range iva.Slides {
		if slide.HasSlotContent("isi") {
			hasISI = true
			break
		}
	}
	if hasISI {
		if err := writeFile("shared/isi.html", []byte(renderISIHTML(iva.Metadata.Brand))); err != nil {
			return nil, false, err
		}
	}

	if err := zw.Close(); err != nil {
		return nil, false, fmt.Errorf("关闭zip写入器失败: %w", err)
	}

	return buf.Bytes(), hasISI, nil
}

// saveToExportDir 把导出包写到本地导出目录留档
func (s *ExportService) saveToExportDir(fileName string, data []byte) error {
	if err := os.MkdirAll(s.exportDir, 0755); err != nil {
		return fmt.Errorf("创建导出目录失败: %w", err)
	}
	path := filepath.Join(s.exportDir, fileName)
	return os.WriteFile(path, data, 0644)
}

func displayName(iva *models.IVA) string {
	if iva.Metadata.Name != "" {
		return iva.Metadata.Name
	}
	return "Untitled IVA"
}

// escapeHTML 转义HTML特殊字符：& < > " '
func escapeHTML(unsafe string) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&#039;",
	)
	return replacer.Replace(unsafe)
}

// renderSlideHTML 渲染单页的独立HTML文件
func renderSlideHTML(slide models.SlideData, slideNumber int) string {
	templateName := "Slide"
	if tpl, ok := templates.GetTemplateByID(slide.TemplateID); ok {
		templateName = tpl.Name
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>Slide %d - %s</title>
  <link rel="stylesheet" href="../assets/css/styles.css">
</head>
<body>
  <div class="slide" id="slide-%d" data-template="%s">
    %s
  </div>
</body>
</html>`, slideNumber, templateName, slideNumber, slide.TemplateID, renderSlideContent(slide))
}

// renderSlideContent 按布局渲染幻灯片主体
// 未知布局降级为槽位键值对的通用渲染
func renderSlideContent(slide models.SlideData) string {
	get := slide.SlotValue

	switch slide.TemplateID {
	case "title-slide":
		var sb strings.Builder
		sb.WriteString("\n    <div class=\"title-slide\">\n")
		sb.WriteString(fmt.Sprintf("      <h1 class=\"headline\">%s</h1>\n", escapeHTML(get("headline"))))
		if get("subhead") != "" {
			sb.WriteString(fmt.Sprintf("      <h2 class=\"subhead\">%s</h2>\n", escapeHTML(get("subhead"))))
		}
		sb.WriteString("    </div>")
		return sb.String()

	case "content-image-split":
		var sb strings.Builder
		sb.WriteString("\n    <div class=\"content-image-split\">\n")
		sb.WriteString("      <div class=\"content-side\">\n")
		sb.WriteString(fmt.Sprintf("        <h2 class=\"headline\">%s</h2>\n", escapeHTML(get("headline"))))
		sb.WriteString(fmt.Sprintf("        <div class=\"body\">%s</div>\n", escapeHTML(get("body"))))
		sb.WriteString("      </div>\n")
		sb.WriteString("      <div class=\"image-side\">\n")
		if get("image") != "" {
			sb.WriteString(fmt.Sprintf("        <img src=\"%s\" alt=\"Slide content\">\n", escapeHTML(get("image"))))
		} else {
			sb.WriteString("        <div class=\"placeholder\">Image</div>\n")
		}
		sb.WriteString("      </div>\n")
		sb.WriteString(renderISIBlock(get("isi")))
		sb.WriteString("    </div>")
		return sb.String()

	case "full-image-overlay":
		var sb strings.Builder
		if get("image") != "" {
			sb.WriteString(fmt.Sprintf("\n    <div class=\"full-image-overlay\" style=\"background-image: url('%s')\">\n", escapeHTML(get("image"))))
		} else {
			sb.WriteString("\n    <div class=\"full-image-overlay\">\n")
		}
		sb.WriteString("      <div class=\"overlay-box\">\n")
		sb.WriteString(fmt.Sprintf("        <h2 class=\"headline\">%s</h2>\n", escapeHTML(get("headline"))))
		if get("body") != "" {
			sb.WriteString(fmt.Sprintf("        <div class=\"body\">%s</div>\n", escapeHTML(get("body"))))
		}
		sb.WriteString("      </div>\n")
		sb.WriteString(renderISIBlock(get("isi")))
		sb.WriteString("    </div>")
		return sb.String()

	case "three-column":
		var sb strings.Builder
		sb.WriteString("\n    <div class=\"three-column\">\n")
		sb.WriteString(fmt.Sprintf("      <h2 class=\"headline\">%s</h2>\n", escapeHTML(get("headline"))))
		sb.WriteString("      <div class=\"columns\">\n")
		for col := 1; col <= 3; col++ {
			sb.WriteString("        <div class=\"column\">\n")
			sb.WriteString(fmt.Sprintf("          <h3>%s</h3>\n", escapeHTML(get(fmt.Sprintf("column%d-title", col)))))
			sb.WriteString(fmt.Sprintf("          <p>%s</p>\n", escapeHTML(get(fmt.Sprintf("column%d-body", col)))))
			sb.WriteString("        </div>\n")
		}
		sb.WriteString("      </div>\n")
		sb.WriteString(renderISIBlock(get("isi")))
		sb.WriteString("    </div>")
		return sb.String()

	case "data-chart-focus":
		var sb strings.Builder
		sb.WriteString("\n    <div class=\"data-chart-focus\">\n")
		sb.WriteString(fmt.Sprintf("      <h2 class=\"headline\">%s</h2>\n", escapeHTML(get("headline"))))
		sb.WriteString("      <div class=\"chart-area\">\n")
		if get("chart") != "" {
			sb.WriteString(fmt.Sprintf("        <img src=\"%s\" alt=\"Chart\">\n", escapeHTML(get("chart"))))
		} else {
			sb.WriteString("        <div class=\"placeholder\">Chart</div>\n")
		}
		sb.WriteString("      </div>\n")
		if get("caption") != "" {
			sb.WriteString(fmt.Sprintf("      <p class=\"caption\">%s</p>\n", escapeHTML(get("caption"))))
		}
		sb.WriteString(renderISIBlock(get("isi")))
		sb.WriteString("    </div>")
		return sb.String()

	case "bullet-list":
		var sb strings.Builder
		sb.WriteString("\n    <div class=\"bullet-list\">\n")
		sb.WriteString(fmt.Sprintf("      <h2 class=\"headline\">%s</h2>\n", escapeHTML(get("headline"))))
		sb.WriteString("      <div class=\"content-area\">\n")
		sb.WriteString("        <ul class=\"bullets\">\n")
		for _, bullet := range splitBullets(get("bullets")) {
			sb.WriteString(fmt.Sprintf("          <li>%s</li>\n", escapeHTML(bullet)))
		}
		sb.WriteString("        </ul>\n")
		if get("image") != "" {
			sb.WriteString(fmt.Sprintf("        <div class=\"image-area\"><img src=\"%s\" alt=\"Supporting image\"></div>\n", escapeHTML(get("image"))))
		}
		sb.WriteString("      </div>\n")
		sb.WriteString(renderISIBlock(get("isi")))
		sb.WriteString("    </div>")
		return sb.String()

	default:
		// 通用兜底：所有槽位按键值对输出
		var sb strings.Builder
		sb.WriteString("<div class=\"default-slide\">\n")
		for key, value := range slide.Slots {
			content := ""
			if value != nil {
				content = *value
			}
			sb.WriteString(fmt.Sprintf("      <div class=\"%s\">%s</div>\n", key, escapeHTML(content)))
		}
		sb.WriteString("    </div>")
		return sb.String()
	}
}

// renderISIBlock ISI槽位有内容时渲染页内ISI区块
func renderISIBlock(isi string) string {
	if isi == "" {
		return ""
	}
	return fmt.Sprintf("      <div class=\"isi\">%s</div>\n", escapeHTML(isi))
}

// splitBullets 按换行拆分要点文本，过滤空白行
func splitBullets(text string) []string {
	lines := strings.Split(text, "\n")
	result := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			result = append(result, line)
		}
	}
	return result
}

// renderIndexHTML 渲染入口页，所有幻灯片内联，第一页激活
func renderIndexHTML(iva *models.IVA) string {
	var slideDivs strings.Builder
	for i, slide := range iva.Slides {
		active := ""
		if i == 0 {
			active = " active"
		}
		slideDivs.WriteString(fmt.Sprintf("\n    <div class=\"slide%s\" id=\"slide-%d\">\n      %s\n    </div>", active, i+1, renderSlideContent(slide)))
	}

	title := displayName(iva)

	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>%s</title>
  <link rel="stylesheet" href="assets/css/styles.css">
</head>
<body>
  <div class="presentation" data-brand="%s">%s
  </div>

  <div class="navigation">
    <button class="nav-btn prev" onclick="prevSlide()" aria-label="Previous slide">
      <svg width="24" height="24" viewBox="0 0 24 24" fill="currentColor">
        <path d="M15.41 7.41L14 6l-6 6 6 6 1.41-1.41L10.83 12z"/>
      </svg>
    </button>
    <span class="slide-counter">
      <span id="current-slide">1</span> / <span id="total-slides">%d</span>
    </span>
    <button class="nav-btn next" onclick="nextSlide()" aria-label="Next slide">
      <svg width="24" height="24" viewBox="0 0 24 24" fill="currentColor">
        <path d="M8.59 16.59L10 18l6-6-6-6-1.41 1.41L13.17 12z"/>
      </svg>
    </button>
  </div>

  <script src="assets/js/navigation.js"></script>
</body>
</html>`, escapeHTML(title), iva.Metadata.Brand, slideDivs.String(), len(iva.Slides))
}

// baseStyles 导出包的基础样式表
func baseStyles() string {
	return `/* IVA Studio - Generated Styles */
:root {
  --bms-blue: #0033a0;
  --bms-light-blue: #0072ce;
  --bms-orange: #ff6600;
  --primary: var(--bms-blue);
  --secondary: var(--bms-light-blue);
}

* {
  margin: 0;
  padding: 0;
  box-sizing: border-box;
}

body {
  font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif;
  background: #1a1a1a;
  color: #333;
  min-height: 100vh;
  display: flex;
  flex-direction: column;
}

.presentation {
  flex: 1;
  display: flex;
  align-items: center;
  justify-content: center;
  padding: 2rem;
}

.slide {
  display: none;
  width: 100%;
  max-width: 1200px;
  aspect-ratio: 16 / 9;
  background: white;
  border-radius: 8px;
  box-shadow: 0 10px 40px rgba(0,0,0,0.3);
  overflow: hidden;
}

.slide.active {
  display: block;
}

/* Title Slide */
.title-slide {
  height: 100%;
  display: flex;
  flex-direction: column;
  align-items: center;
  justify-content: center;
  background: linear-gradient(135deg, var(--primary), var(--secondary));
  color: white;
  padding: 2rem;
  text-align: center;
}

.title-slide .headline {
  font-size: 3rem;
  font-weight: 700;
  margin-bottom: 1rem;
}

.title-slide .subhead {
  font-size: 1.5rem;
  font-weight: 400;
  opacity: 0.9;
}

/* Content + Image Split */
.content-image-split {
  height: 100%;
  display: grid;
  grid-template-columns: 1fr 1fr;
  grid-template-rows: 1fr auto;
}

.content-image-split .content-side {
  padding: 2rem;
}

.content-image-split .image-side {
  background: #f5f5f5;
}

.content-image-split .image-side img {
  width: 100%;
  height: 100%;
  object-fit: cover;
}

.content-image-split .headline {
  color: var(--primary);
  font-size: 1.75rem;
  margin-bottom: 1rem;
}

.content-image-split .body {
  font-size: 1rem;
  line-height: 1.6;
  color: #555;
}

/* Full Image Overlay */
.full-image-overlay {
  height: 100%;
  background-size: cover;
  background-position: center;
  background-color: #333;
  position: relative;
}

.full-image-overlay .overlay-box {
  position: absolute;
  bottom: 4rem;
  left: 2rem;
  max-width: 50%;
  background: rgba(255,255,255,0.95);
  padding: 1.5rem;
  border-radius: 8px;
}

.full-image-overlay .headline {
  color: var(--primary);
  font-size: 1.5rem;
  margin-bottom: 0.5rem;
}

/* Three Column */
.three-column {
  height: 100%;
  display: flex;
  flex-direction: column;
  padding: 2rem;
}

.three-column .headline {
  text-align: center;
  color: var(--primary);
  font-size: 2rem;
  margin-bottom: 2rem;
}

.three-column .columns {
  flex: 1;
  display: grid;
  grid-template-columns: repeat(3, 1fr);
  gap: 2rem;
}

.three-column .column {
  text-align: center;
}

.three-column .column h3 {
  color: var(--primary);
  margin-bottom: 0.5rem;
}

/* Data Chart Focus */
.data-chart-focus {
  height: 100%;
  display: flex;
  flex-direction: column;
  padding: 2rem;
}

.data-chart-focus .headline {
  color: var(--primary);
  font-size: 1.5rem;
  margin-bottom: 1rem;
}

.data-chart-focus .chart-area {
  flex: 1;
  background: #f9f9f9;
  border-radius: 8px;
  display: flex;
  align-items: center;
  justify-content: center;
}

.data-chart-focus .chart-area img {
  max-width: 100%;
  max-height: 100%;
  object-fit: contain;
}

.data-chart-focus .caption {
  font-size: 0.875rem;
  color: #666;
  font-style: italic;
  margin-top: 1rem;
}

/* Bullet List */
.bullet-list {
  height: 100%;
  display: flex;
  flex-direction: column;
  padding: 2rem;
}

.bullet-list .headline {
  color: var(--primary);
  font-size: 2rem;
  margin-bottom: 1.5rem;
}

.bullet-list .content-area {
  flex: 1;
  display: flex;
  gap: 2rem;
}

.bullet-list .bullets {
  flex: 1;
  list-style: none;
}

.bullet-list .bullets li {
  display: flex;
  align-items: flex-start;
  gap: 0.75rem;
  margin-bottom: 1rem;
  font-size: 1rem;
  line-height: 1.5;
}

.bullet-list .bullets li::before {
  content: '';
  width: 8px;
  height: 8px;
  background: var(--primary);
  border-radius: 50%;
  margin-top: 0.5rem;
  flex-shrink: 0;
}

.bullet-list .image-area {
  width: 33%;
  background: #f5f5f5;
  border-radius: 8px;
  overflow: hidden;
}

.bullet-list .image-area img {
  width: 100%;
  height: 100%;
  object-fit: cover;
}

/* ISI Section */
.isi {
  grid-column: 1 / -1;
  background: #f5f5f5;
  padding: 1rem;
  font-size: 0.75rem;
  color: #666;
  border-top: 1px solid #ddd;
  max-height: 100px;
  overflow-y: auto;
}

/* Navigation */
.navigation {
  display: flex;
  align-items: center;
  justify-content: center;
  gap: 2rem;
  padding: 1rem;
  background: rgba(0,0,0,0.8);
}

.nav-btn {
  background: rgba(255,255,255,0.1);
  border: none;
  color: white;
  width: 48px;
  height: 48px;
  border-radius: 50%;
  cursor: pointer;
  display: flex;
  align-items: center;
  justify-content: center;
  transition: background 0.2s;
}

.nav-btn:hover {
  background: rgba(255,255,255,0.2);
}

.nav-btn:disabled {
  opacity: 0.3;
  cursor: not-allowed;
}

.slide-counter {
  color: white;
  font-size: 1rem;
}

/* Placeholder */
.placeholder {
  width: 100%;
  height: 100%;
  display: flex;
  align-items: center;
  justify-content: center;
  background: #eee;
  color: #999;
}
`
}

// navigationJS 导出包的翻页脚本，越界调用是no-op
func navigationJS(slideCount int) string {
	return fmt.Sprintf(`// IVA Studio - Navigation Script
let currentSlide = 1;
const totalSlides = %d;

function goToSlide(n) {
  if (n < 1 || n > totalSlides) return;

  document.querySelectorAll('.slide').forEach(s => s.classList.remove('active'));
  document.querySelector('#slide-' + n).classList.add('active');

  currentSlide = n;
  document.getElementById('current-slide').textContent = currentSlide;

  // Update button states
  document.querySelector('.nav-btn.prev').disabled = currentSlide === 1;
  document.querySelector('.nav-btn.next').disabled = currentSlide === totalSlides;
}

function nextSlide() {
  goToSlide(currentSlide + 1);
}

function prevSlide() {
  goToSlide(currentSlide - 1);
}

// Keyboard navigation
document.addEventListener('keydown', function(e) {
  if (e.key === 'ArrowRight' || e.key === ' ') {
    e.preventDefault();
    nextSlide();
  } else if (e.key === 'ArrowLeft') {
    e.preventDefault();
    prevSlide();
  }
});

// Touch/swipe support
let touchStartX = 0;
document.addEventListener('touchstart', function(e) {
  touchStartX = e.touches[0].clientX;
});

document.addEventListener('touchend', function(e) {
  const diff = e.changedTouches[0].clientX - touchStartX;
  if (Math.abs(diff) > 50) {
    if (diff > 0) {
      prevSlide();
    } else {
      nextSlide();
    }
  }
});

// Initialize
goToSlide(1);
`, slideCount)
}

// renderISIHTML 共享ISI页面的占位内容
func renderISIHTML(brand models.Brand) string {
	return fmt.Sprintf(`<div class="isi-content">
  <h4>IMPORTANT SAFETY INFORMATION</h4>
  <p>Please see full Prescribing Information for %s.</p>
  <p>This is placeholder ISI content. In production, this would contain the actual Important Safety Information for %s.</p>
</div>`, brand, brand)
}
