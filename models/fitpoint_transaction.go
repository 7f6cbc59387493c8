package models

import "time"

// FitPointTransaction 积分流水，扣费与提交创建在同一事务内写入
type FitPointTransaction struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	UserID       uint      `json:"user_id" gorm:"index;not null"`
	Amount       int       `json:"amount" gorm:"not null"` // 负数为扣费
	BalanceAfter int       `json:"balance_after"`
	Reason       string    `json:"reason" gorm:"size:100;not null"`
	Reference    string    `json:"reference" gorm:"size:100"` // 关联对象，如 analysis:123
	CreatedAt    time.Time `json:"created_at"`
}

// TableName 设置表名
func (FitPointTransaction) TableName() string {
	return "fitpoint_transactions"
}
