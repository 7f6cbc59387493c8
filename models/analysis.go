package models

import (
	"time"

	"gorm.io/gorm"
)

// Analysis 生命周期状态
// pending_ai → processing → ai_analyzed → {pending_review, revision_needed} → {approved, rejected}
// 任一流水线阶段不可恢复失败时进入 error（终态，排除在工作队列之外）
const (
	AnalysisStatusPendingAI      = "pending_ai"
	AnalysisStatusProcessing     = "processing"
	AnalysisStatusAIAnalyzed     = "ai_analyzed"
	AnalysisStatusPendingReview  = "pending_review"
	AnalysisStatusRevisionNeeded = "revision_needed"
	AnalysisStatusApproved       = "approved"
	AnalysisStatusRejected       = "rejected"
	AnalysisStatusError          = "error"
)

// ReviewableStatuses 允许审核操作的来源状态
func ReviewableStatuses() []string {
	return []string{AnalysisStatusAIAnalyzed, AnalysisStatusPendingReview}
}

// IsTerminalStatus approved/rejected 为终态，不允许再次流转
func IsTerminalStatus(status string) bool {
	return status == AnalysisStatusApproved || status == AnalysisStatusRejected
}

// Analysis 一次视频提交及其完整生命周期记录
type Analysis struct {
	ID                  uint           `json:"id" gorm:"primaryKey"`
	UserID              uint           `json:"user_id" gorm:"index;not null"`
	MovementPattern     string         `json:"movement_pattern" gorm:"size:50;not null;index"`
	MediaRef            string         `json:"media_ref" gorm:"size:512;not null"` // 视频地址（URL 或本地路径）
	DurationSeconds     float64        `json:"duration_seconds"`
	UserDescription     string         `json:"user_description" gorm:"size:255"`
	EquipmentConstraint string         `json:"equipment_constraint" gorm:"size:30"` // none/safety_bars/machine_guided/...
	FPCost              int            `json:"fp_cost"`
	PaidWithEntitlement bool           `json:"paid_with_entitlement"`
	Status              string         `json:"status" gorm:"size:20;not null;default:pending_ai;index"`
	AIResult            string         `json:"ai_result,omitempty" gorm:"type:longtext"` // 分类/比对结果 JSON
	AIReport            string         `json:"ai_report,omitempty" gorm:"type:longtext"` // 合成报告 JSON
	AIAnalyzedAt        *time.Time     `json:"ai_analyzed_at,omitempty"`
	FramesUsed          int            `json:"frames_used"`
	Method              string         `json:"method" gorm:"size:40"` // classification / comparative
	Score               float64        `json:"score"`
	ReviewerID          *uint          `json:"reviewer_id,omitempty" gorm:"index"`
	ReviewNotes         string         `json:"review_notes,omitempty" gorm:"size:1000"`
	PublishedReport     string         `json:"published_report,omitempty" gorm:"type:longtext"` // 审核通过后对外发布的版本
	ReviewedAt          *time.Time     `json:"reviewed_at,omitempty"`
	PublishedAt         *time.Time     `json:"published_at,omitempty"`
	RejectionReason     string         `json:"rejection_reason,omitempty" gorm:"size:500"`
	ErrorMessage        string         `json:"error_message,omitempty" gorm:"size:1000"`
	HelpfulVotes        int            `json:"helpful_votes" gorm:"default:0"`
	ViewCount           int            `json:"view_count" gorm:"default:0"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
	DeletedAt           gorm.DeletedAt `json:"-" gorm:"index"`

	User User `json:"-" gorm:"foreignKey:UserID"`
}

// TableName 设置表名
func (Analysis) TableName() string {
	return "analyses"
}
