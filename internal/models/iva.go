// internal/models/iva.go
package models

import "time"

// Brand 企业品牌枚举
type Brand string

const (
	BrandOpdivo   Brand = "Opdivo"
	BrandYervoy   Brand = "Yervoy"
	BrandReblozyl Brand = "Reblozyl"
	BrandBreyanzi Brand = "Breyanzi"
	BrandCamzyos  Brand = "Camzyos"
	BrandSotyktu  Brand = "Sotyktu"
)

// TherapeuticArea 治疗领域枚举
type TherapeuticArea string

const (
	AreaOncology       TherapeuticArea = "Oncology"
	AreaImmunology     TherapeuticArea = "Immunology"
	AreaCardiovascular TherapeuticArea = "Cardiovascular"
	AreaDermatology    TherapeuticArea = "Dermatology"
	AreaHematology     TherapeuticArea = "Hematology"
)

// BrandTherapeuticAreas 品牌到治疗领域的惯例映射（不强制）
var BrandTherapeuticAreas = map[Brand]TherapeuticArea{
	BrandOpdivo:   AreaOncology,
	BrandYervoy:   AreaOncology,
	BrandReblozyl: AreaHematology,
	BrandBreyanzi: AreaOncology,
	BrandCamzyos:  AreaCardiovascular,
	BrandSotyktu:  AreaDermatology,
}

// AllBrands 返回所有可用品牌
func AllBrands() []Brand {
	return []Brand{
		BrandOpdivo, BrandYervoy, BrandReblozyl,
		BrandBreyanzi, BrandCamzyos, BrandSotyktu,
	}
}

// IsValidBrand 检查品牌是否有效
func IsValidBrand(b Brand) bool {
	_, ok := BrandTherapeuticAreas[b]
	return ok
}

// IsValidTherapeuticArea 检查治疗领域是否有效
func IsValidTherapeuticArea(a TherapeuticArea) bool {
	switch a {
	case AreaOncology, AreaImmunology, AreaCardiovascular, AreaDermatology, AreaHematology:
		return true
	}
	return false
}

// IVAStatus IVA状态
type IVAStatus string

const (
	StatusDraft     IVAStatus = "draft"
	StatusSubmitted IVAStatus = "submitted"
)

// IVAMetadata IVA元数据
type IVAMetadata struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Brand           Brand           `json:"brand"`
	TherapeuticArea TherapeuticArea `json:"therapeutic_area"`
	TargetAudience  string          `json:"target_audience"`
	SlideCount      int             `json:"slide_count"`
	Status          IVAStatus       `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	IsFavorite      bool            `json:"is_favorite"`
}

// SlideData 单页幻灯片的可变内容
// TemplateID 为空表示尚未选择布局；Slots 的值为 nil 表示槽位未填写
type SlideData struct {
	TemplateID string             `json:"template_id"`
	Slots      map[string]*string `json:"slots"`

	// Intent 记录这一页要传达什么，由对话过程中采集，仅作提示用途
	Intent string `json:"intent,omitempty"`
}

// SlotValue 读取槽位内容，未填写返回空字符串
func (s SlideData) SlotValue(slotID string) string {
	if v, ok := s.Slots[slotID]; ok && v != nil {
		return *v
	}
	return ""
}

// HasSlotContent 检查槽位是否有非空内容
func (s SlideData) HasSlotContent(slotID string) bool {
	return s.SlotValue(slotID) != ""
}

// IVA 完整的交互式视觉辅助文档（根聚合）
type IVA struct {
	Metadata IVAMetadata `json:"metadata"`
	Slides   []SlideData `json:"slides"`
}

// Clone 返回IVA的深拷贝
func (iva *IVA) Clone() *IVA {
	if iva == nil {
		return nil
	}
	out := &IVA{
		Metadata: iva.Metadata,
		Slides:   make([]SlideData, len(iva.Slides)),
	}
	for i, slide := range iva.Slides {
		cloned := SlideData{
			TemplateID: slide.TemplateID,
			Slots:      make(map[string]*string, len(slide.Slots)),
			Intent:     slide.Intent,
		}
		for k, v := range slide.Slots {
			if v == nil {
				cloned.Slots[k] = nil
				continue
			}
			value := *v
			cloned.Slots[k] = &value
		}
		out.Slides[i] = cloned
	}
	return out
}

// UserSettings 用户设置（最近访问与收藏）
type UserSettings struct {
	RecentIDs   []string `json:"recent_ids"`
	FavoriteIDs []string `json:"favorite_ids"`
}

// StoredData 持久化的完整数据块，整体读写
type StoredData struct {
	UserID   string       `json:"user_id"`
	IVAs     []IVA        `json:"ivas"`
	Settings UserSettings `json:"settings"`
}

// ISIConfig 重要安全信息（ISI）展示配置
type ISIConfig struct {
	Enabled   bool   `json:"enabled"`
	Style     string `json:"style"`     // "scrolling" 或 "expandable"
	Placement string `json:"placement"` // "bottom" 或 "right"
}
