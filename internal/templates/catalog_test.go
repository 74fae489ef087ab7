// internal/templates/catalog_test.go
package templates

import (
	"testing"
)

// TestCatalogHasSixLayouts 布局目录是固定的六个
func TestCatalogHasSixLayouts(t *testing.T) {
	if len(SlideTemplates) != 6 {
		t.Fatalf("布局目录应该包含6个模板，实际为 %d", len(SlideTemplates))
	}

	seen := make(map[string]bool)
	for _, tpl := range SlideTemplates {
		if tpl.ID == "" {
			t.Fatal("模板ID不能为空")
		}
		if seen[tpl.ID] {
			t.Fatalf("模板ID重复: %s", tpl.ID)
		}
		seen[tpl.ID] = true

		if len(tpl.Slots) == 0 {
			t.Fatalf("模板 %s 没有任何槽位定义", tpl.ID)
		}
	}
}

// TestGetTemplateByID 按ID查找
func TestGetTemplateByID(t *testing.T) {
	tpl, ok := GetTemplateByID("title-slide")
	if !ok {
		t.Fatal("应该能找到 title-slide 模板")
	}
	if tpl.Name != "Title Slide" {
		t.Fatalf("title-slide 的名称不符: %s", tpl.Name)
	}

	if _, ok := GetTemplateByID("no-such-layout"); ok {
		t.Fatal("未知模板ID不应该返回结果")
	}
}

// TestTitleSlideHasNoISISlot 标题页是唯一没有ISI槽位的布局
func TestTitleSlideHasNoISISlot(t *testing.T) {
	for _, tpl := range SlideTemplates {
		hasISI := false
		for _, slot := range tpl.Slots {
			if slot.ID == "isi" {
				hasISI = true
				break
			}
		}

		if tpl.ID == "title-slide" {
			if hasISI {
				t.Fatal("title-slide 不应该有ISI槽位")
			}
		} else if !hasISI {
			t.Fatalf("模板 %s 缺少ISI槽位", tpl.ID)
		}
	}
}

// TestCreateEmptySlideData 空白页的槽位键集合与模板定义一致，值全部为nil
func TestCreateEmptySlideData(t *testing.T) {
	for _, tpl := range SlideTemplates {
		slide := CreateEmptySlideData(tpl.ID)

		if slide.TemplateID != tpl.ID {
			t.Fatalf("TemplateID应为 %s，实际为 %s", tpl.ID, slide.TemplateID)
		}
		if len(slide.Slots) != len(tpl.Slots) {
			t.Fatalf("模板 %s 应有 %d 个槽位，实际为 %d", tpl.ID, len(tpl.Slots), len(slide.Slots))
		}

		for _, def := range tpl.Slots {
			value, exists := slide.Slots[def.ID]
			if !exists {
				t.Fatalf("模板 %s 缺少槽位 %s", tpl.ID, def.ID)
			}
			if value != nil {
				t.Fatalf("模板 %s 的槽位 %s 初始值应为nil", tpl.ID, def.ID)
			}
		}
	}
}

// TestCreateEmptySlideDataUnknownTemplate 未知模板ID宽容兜底，不报错
func TestCreateEmptySlideDataUnknownTemplate(t *testing.T) {
	slide := CreateEmptySlideData("no-such-layout")

	if slide.TemplateID != "no-such-layout" {
		t.Fatalf("TemplateID应保留原始输入，实际为 %s", slide.TemplateID)
	}
	if slide.Slots == nil {
		t.Fatal("槽位映射不能为nil")
	}
	if len(slide.Slots) != 0 {
		t.Fatalf("未知模板的槽位映射应为空，实际有 %d 个", len(slide.Slots))
	}
}

// TestDefaultTemplateExists 默认布局必须在目录中
func TestDefaultTemplateExists(t *testing.T) {
	if _, ok := GetTemplateByID(DefaultTemplateID); !ok {
		t.Fatalf("默认布局 %s 不在目录中", DefaultTemplateID)
	}
}

// TestGetTemplateSlots 槽位定义查询
func TestGetTemplateSlots(t *testing.T) {
	slots := GetTemplateSlots("bullet-list")
	if len(slots) == 0 {
		t.Fatal("bullet-list 应该有槽位定义")
	}

	if slots := GetTemplateSlots("no-such-layout"); len(slots) != 0 {
		t.Fatal("未知模板应返回空槽位列表")
	}
}
