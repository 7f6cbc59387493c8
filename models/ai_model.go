package models

import (
	"time"

	"gorm.io/gorm"
)

// AIModel 推理端点配置（Ollama 兼容服务）
// 工作流按 sort_order 选择第一个可用端点
type AIModel struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	Name      string         `json:"name" gorm:"size:100;not null;uniqueIndex"` // 端点名称
	BaseURL   string         `json:"base_url" gorm:"size:255;not null"`         // 调用地址
	APIKey    string         `json:"-" gorm:"size:255"`                         // API密钥，本地 Ollama 可为空（不返回给前端）
	SortOrder int            `json:"sort_order" gorm:"default:0;index"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// TableName 设置表名
func (AIModel) TableName() string {
	return "ai_models"
}
