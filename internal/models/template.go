// internal/models/template.go
package models

// SlotType 模板槽位的内容类型
type SlotType string

const (
	SlotHeadline   SlotType = "headline"
	SlotSubhead    SlotType = "subhead"
	SlotBody       SlotType = "body"
	SlotImage      SlotType = "image"
	SlotChart      SlotType = "chart"
	SlotBulletList SlotType = "bullet-list"
	SlotISI        SlotType = "isi"
)

// SlotPosition 槽位在幻灯片上的位置（百分比坐标）
type SlotPosition struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// SlotDefinition 模板接受内容的槽位定义，每个模板固定不变
type SlotDefinition struct {
	ID          string       `json:"id"`
	Type        SlotType     `json:"type"`
	Label       string       `json:"label"`
	Required    bool         `json:"required"`
	Position    SlotPosition `json:"position"`
	Placeholder string       `json:"placeholder,omitempty"`
}

// SlideTemplate 幻灯片布局模板（目录条目，不可变）
// 不变量：同一模板内的槽位ID唯一
type SlideTemplate struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Thumbnail   string           `json:"thumbnail"`
	Slots       []SlotDefinition `json:"slots"`
}
