// internal/models/export.go
package models

import "time"

// ExportManifest 导出包中 manifest.json 的结构
type ExportManifest struct {
	Name       string    `json:"name"`
	Brand      Brand     `json:"brand"`
	Version    string    `json:"version"`
	SlideCount int       `json:"slideCount"`
	CreatedAt  time.Time `json:"createdAt"`
	CreatedBy  string    `json:"createdBy"`
}

// ExportResult 导出操作的结果
type ExportResult struct {
	IVAID       string    `json:"iva_id"`
	FileName    string    `json:"file_name"`
	Data        []byte    `json:"-"`
	FileSize    int64     `json:"file_size"`
	SlideCount  int       `json:"slide_count"`
	HasISI      bool      `json:"has_isi"`
	GeneratedAt time.Time `json:"generated_at"`
}
