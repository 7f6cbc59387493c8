package models

import "time"

// 投票类型
const (
	VoteHelpful    = "helpful"
	VoteNotHelpful = "not_helpful"
)

// AnalysisVote 分析报告的有用性投票，(analysis_id, user_id) 唯一，可覆盖
type AnalysisVote struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	AnalysisID uint      `json:"analysis_id" gorm:"uniqueIndex:idx_analysis_voter;not null"`
	UserID     uint      `json:"user_id" gorm:"uniqueIndex:idx_analysis_voter;not null"`
	VoteType   string    `json:"vote_type" gorm:"size:20;not null"` // helpful / not_helpful
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName 设置表名
func (AnalysisVote) TableName() string {
	return "analysis_votes"
}
