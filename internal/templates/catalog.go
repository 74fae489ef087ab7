// internal/templates/catalog.go
package templates

import (
	"github.com/MedVisage/IVAStudioMCP/internal/models"
)

// SlideTemplates 固定的幻灯片布局目录
// 除标题页外，每个布局都带有ISI（重要安全信息）槽位
var SlideTemplates = []models.SlideTemplate{
	{
		ID:          "title-slide",
		Name:        "Title Slide",
		Description: "Large centered headline with subhead and brand logo area",
		Thumbnail:   "/templates/title-slide.png",
		Slots: []models.SlotDefinition{
			{
				ID:          "headline",
				Type:        models.SlotHeadline,
				Label:       "Main Headline",
				Required:    true,
				Position:    models.SlotPosition{X: 10, Y: 30, Width: 80, Height: 20},
				Placeholder: "Enter your main title...",
			},
			{
				ID:          "subhead",
				Type:        models.SlotSubhead,
				Label:       "Subheadline",
				Required:    false,
				Position:    models.SlotPosition{X: 15, Y: 52, Width: 70, Height: 10},
				Placeholder: "Enter a subtitle...",
			},
		},
	},
	{
		ID:          "content-image-split",
		Name:        "Content + Image",
		Description: "Split layout with text on left and image/chart on right",
		Thumbnail:   "/templates/content-image.png",
		Slots: []models.SlotDefinition{
			{
				ID:          "headline",
				Type:        models.SlotHeadline,
				Label:       "Headline",
				Required:    true,
				Position:    models.SlotPosition{X: 5, Y: 5, Width: 45, Height: 10},
				Placeholder: "Section headline...",
			},
			{
				ID:          "body",
				Type:        models.SlotBody,
				Label:       "Body Text",
				Required:    true,
				Position:    models.SlotPosition{X: 5, Y: 18, Width: 45, Height: 55},
				Placeholder: "Enter your main content here...",
			},
			{
				ID:          "image",
				Type:        models.SlotImage,
				Label:       "Image/Chart",
				Required:    false,
				Position:    models.SlotPosition{X: 52, Y: 5, Width: 43, Height: 68},
				Placeholder: "Upload or paste image URL...",
			},
			{
				ID:       "isi",
				Type:     models.SlotISI,
				Label:    "ISI Section",
				Required: false,
				Position: models.SlotPosition{X: 0, Y: 85, Width: 100, Height: 15},
			},
		},
	},
	{
		ID:          "full-image-overlay",
		Name:        "Full Image with Overlay",
		Description: "Full-bleed image with text overlay box",
		Thumbnail:   "/templates/full-image.png",
		Slots: []models.SlotDefinition{
			{
				ID:          "image",
				Type:        models.SlotImage,
				Label:       "Background Image",
				Required:    true,
				Position:    models.SlotPosition{X: 0, Y: 0, Width: 100, Height: 100},
				Placeholder: "Upload full-bleed background image...",
			},
			{
				ID:          "headline",
				Type:        models.SlotHeadline,
				Label:       "Overlay Headline",
				Required:    true,
				Position:    models.SlotPosition{X: 5, Y: 60, Width: 40, Height: 10},
				Placeholder: "Headline text...",
			},
			{
				ID:          "body",
				Type:        models.SlotBody,
				Label:       "Overlay Body",
				Required:    false,
				Position:    models.SlotPosition{X: 5, Y: 72, Width: 40, Height: 15},
				Placeholder: "Additional text...",
			},
			{
				ID:       "isi",
				Type:     models.SlotISI,
				Label:    "ISI Section",
				Required: false,
				Position: models.SlotPosition{X: 0, Y: 88, Width: 100, Height: 12},
			},
		},
	},
	{
		ID:          "three-column",
		Name:        "Three Column",
		Description: "Headline with three equal columns below for features or comparison",
		Thumbnail:   "/templates/three-column.png",
		Slots: []models.SlotDefinition{
			{
				ID:          "headline",
				Type:        models.SlotHeadline,
				Label:       "Main Headline",
				Required:    true,
				Position:    models.SlotPosition{X: 10, Y: 5, Width: 80, Height: 10},
				Placeholder: "Section headline...",
			},
			{
				ID:          "column1-title",
				Type:        models.SlotSubhead,
				Label:       "Column 1 Title",
				Required:    true,
				Position:    models.SlotPosition{X: 5, Y: 20, Width: 28, Height: 8},
				Placeholder: "Column 1 title...",
			},
			{
				ID:          "column1-body",
				Type:        models.SlotBody,
				Label:       "Column 1 Content",
				Required:    true,
				Position:    models.SlotPosition{X: 5, Y: 30, Width: 28, Height: 45},
				Placeholder: "Column 1 content...",
			},
			{
				ID:          "column2-title",
				Type:        models.SlotSubhead,
				Label:       "Column 2 Title",
				Required:    true,
				Position:    models.SlotPosition{X: 36, Y: 20, Width: 28, Height: 8},
				Placeholder: "Column 2 title...",
			},
			{
				ID:          "column2-body",
				Type:        models.SlotBody,
				Label:       "Column 2 Content",
				Required:    true,
				Position:    models.SlotPosition{X: 36, Y: 30, Width: 28, Height: 45},
				Placeholder: "Column 2 content...",
			},
			{
				ID:          "column3-title",
				Type:        models.SlotSubhead,
				Label:       "Column 3 Title",
				Required:    true,
				Position:    models.SlotPosition{X: 67, Y: 20, Width: 28, Height: 8},
				Placeholder: "Column 3 title...",
			},
			{
				ID:          "column3-body",
				Type:        models.SlotBody,
				Label:       "Column 3 Content",
				Required:    true,
				Position:    models.SlotPosition{X: 67, Y: 30, Width: 28, Height: 45},
				Placeholder: "Column 3 content...",
			},
			{
				ID:       "isi",
				Type:     models.SlotISI,
				Label:    "ISI Section",
				Required: false,
				Position: models.SlotPosition{X: 0, Y: 85, Width: 100, Height: 15},
			},
		},
	},
	{
		ID:          "data-chart-focus",
		Name:        "Data/Chart Focus",
		Description: "Large chart area with small headline and caption",
		Thumbnail:   "/templates/data-chart.png",
		Slots: []models.SlotDefinition{
			{
				ID:          "headline",
				Type:        models.SlotHeadline,
				Label:       "Chart Title",
				Required:    true,
				Position:    models.SlotPosition{X: 5, Y: 3, Width: 90, Height: 8},
				Placeholder: "Chart/data title...",
			},
			{
				ID:          "chart",
				Type:        models.SlotChart,
				Label:       "Chart/Data Visualization",
				Required:    true,
				Position:    models.SlotPosition{X: 5, Y: 13, Width: 90, Height: 55},
				Placeholder: "Upload chart image or data...",
			},
			{
				ID:          "caption",
				Type:        models.SlotBody,
				Label:       "Caption/Source",
				Required:    false,
				Position:    models.SlotPosition{X: 5, Y: 70, Width: 90, Height: 10},
				Placeholder: "Source: ...",
			},
			{
				ID:       "isi",
				Type:     models.SlotISI,
				Label:    "ISI Section",
				Required: false,
				Position: models.SlotPosition{X: 0, Y: 85, Width: 100, Height: 15},
			},
		},
	},
	{
		ID:          "bullet-list",
		Name:        "Bullet List",
		Description: "Headline with bullet points and optional image",
		Thumbnail:   "/templates/bullet-list.png",
		Slots: []models.SlotDefinition{
			{
				ID:          "headline",
				Type:        models.SlotHeadline,
				Label:       "Headline",
				Required:    true,
				Position:    models.SlotPosition{X: 5, Y: 5, Width: 90, Height: 10},
				Placeholder: "Section headline...",
			},
			{
				ID:          "bullets",
				Type:        models.SlotBulletList,
				Label:       "Bullet Points",
				Required:    true,
				Position:    models.SlotPosition{X: 5, Y: 18, Width: 55, Height: 55},
				Placeholder: "Enter bullet points (one per line)...",
			},
			{
				ID:          "image",
				Type:        models.SlotImage,
				Label:       "Supporting Image",
				Required:    false,
				Position:    models.SlotPosition{X: 62, Y: 18, Width: 33, Height: 55},
				Placeholder: "Optional supporting image...",
			},
			{
				ID:       "isi",
				Type:     models.SlotISI,
				Label:    "ISI Section",
				Required: false,
				Position: models.SlotPosition{X: 0, Y: 85, Width: 100, Height: 15},
			},
		},
	},
}

// GetTemplateByID 按ID查找模板
func GetTemplateByID(id string) (models.SlideTemplate, bool) {
	for _, t := range SlideTemplates {
		if t.ID == id {
			return t, true
		}
	}
	return models.SlideTemplate{}, false
}

// GetTemplateSlots 返回模板的槽位定义，未知ID返回空列表
func GetTemplateSlots(templateID string) []models.SlotDefinition {
	t, ok := GetTemplateByID(templateID)
	if !ok {
		return nil
	}
	return t.Slots
}

// CreateEmptySlideData 为模板创建空的幻灯片数据，所有槽位预置为nil
// 未知模板ID返回带空槽位映射的SlideData（宽容兜底，不报错）
func CreateEmptySlideData(templateID string) models.SlideData {
	slide := models.SlideData{
		TemplateID: templateID,
		Slots:      make(map[string]*string),
	}

	t, ok := GetTemplateByID(templateID)
	if !ok {
		return slide
	}

	for _, slot := range t.Slots {
		slide.Slots[slot.ID] = nil
	}

	return slide
}

// DefaultTemplateID 新建幻灯片占位时使用的默认布局
const DefaultTemplateID = "content-image-split"
