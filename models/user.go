package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	// UserStatusLocked 锁定：不可登录
	UserStatusLocked = "locked"
	// UserStatusActive 正常：可登录
	UserStatusActive = "active"
)

// 订阅等级
const (
	TierFree        = "free"
	TierPremium     = "premium"
	TierPremiumPlus = "premium_plus"
)

// 订阅状态
const (
	SubscriptionActive  = "active"
	SubscriptionExpired = "expired"
)

// User 用户模型
type User struct {
	ID                 uint           `json:"id" gorm:"primaryKey"`
	Username           string         `json:"username" gorm:"uniqueIndex;size:50;not null"`
	Password           string         `json:"-" gorm:"size:255;not null"`
	Email              string         `json:"email" gorm:"size:100"`
	IsAdmin            bool           `json:"is_admin" gorm:"default:false;index"` // 管理员可审核分析
	Status             string         `json:"status" gorm:"size:20;default:active;index"`
	SubscriptionTier   string         `json:"subscription_tier" gorm:"size:20;default:free"`    // free/premium/premium_plus
	SubscriptionStatus string         `json:"subscription_status" gorm:"size:20;default:expired"` // active/expired
	FitPointsBalance   int            `json:"fitpoints_balance" gorm:"default:0"`
	FitPointsLifetime  int            `json:"fitpoints_lifetime" gorm:"default:0"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	DeletedAt          gorm.DeletedAt `json:"-" gorm:"index"`
}

// TableName 设置表名
func (User) TableName() string {
	return "users"
}

// HasActiveEntitlement 是否持有生效中的订阅权益（提交分析免扣积分）
func (u *User) HasActiveEntitlement() bool {
	return (u.SubscriptionTier == TierPremium || u.SubscriptionTier == TierPremiumPlus) &&
		u.SubscriptionStatus == SubscriptionActive
}
