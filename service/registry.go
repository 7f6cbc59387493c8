package service

import (
	"fmt"
	"time"

	"biomech/models"

	"gorm.io/gorm"
)

// 端点注册表：推理服务端点存在数据库里由管理员维护，
// 流水线每次拿排序最靠前的端点建客户端

// EndpointRegistry 推理端点注册表
type EndpointRegistry struct {
	db              *gorm.DB
	probeTimeout    time.Duration
	generateTimeout time.Duration
}

// NewEndpointRegistry 创建注册表
func NewEndpointRegistry(db *gorm.DB, probeTimeout, generateTimeout time.Duration) *EndpointRegistry {
	return &EndpointRegistry{db: db, probeTimeout: probeTimeout, generateTimeout: generateTimeout}
}

// ActiveClient 取当前首选端点的客户端，无端点时返回 ErrInferenceUnavailable
func (r *EndpointRegistry) ActiveClient() (InferenceClient, error) {
	var m models.AIModel
	if err := r.db.Order("sort_order ASC, id ASC").First(&m).Error; err != nil {
		return nil, fmt.Errorf("%w: 未配置推理端点", ErrInferenceUnavailable)
	}
	return NewOllamaClient(m.BaseURL, m.APIKey, r.probeTimeout, r.generateTimeout), nil
}
