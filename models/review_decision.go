package models

import "time"

// 审核决定
const (
	DecisionApprove         = "approve"
	DecisionReject          = "reject"
	DecisionRequestRevision = "request_revision"
)

// ReviewDecision 审核决定流水，分析每次离开 AI 完成态时追加一条
type ReviewDecision struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	AnalysisID   uint      `json:"analysis_id" gorm:"index;not null"`
	ReviewerID   uint      `json:"reviewer_id" gorm:"index;not null"`
	Decision     string    `json:"decision" gorm:"size:20;not null"` // approve/reject/request_revision
	Notes        string    `json:"notes" gorm:"size:1000"`
	EditedReport string    `json:"edited_report,omitempty" gorm:"type:longtext"` // 审核员编辑后的报告
	CreatedAt    time.Time `json:"created_at"`

	Analysis Analysis `json:"-" gorm:"foreignKey:AnalysisID"`
}

// TableName 设置表名
func (ReviewDecision) TableName() string {
	return "review_decisions"
}
