package service

import (
	"errors"
	"fmt"

	"biomech/models"

	"gorm.io/gorm"
)

// 提交闸门：会员权益与积分余额的准入判定，以及扣费与分析单创建的原子提交

// ErrInsufficientBalance 余额不足（并发扣费竞争时也会出现）
var ErrInsufficientBalance = errors.New("积分余额不足")

// 准入原因
const (
	GateReasonEntitlement         = "entitlement"          // 有效会员权益，免积分
	GateReasonBalanceSufficient   = "balance-sufficient"   // 余额足够，按次扣费
	GateReasonBalanceInsufficient = "balance-insufficient" // 余额不足，拒绝
)

// GateDecision 准入判定结果
type GateDecision struct {
	Allowed   bool   `json:"allowed"`
	Cost      int    `json:"cost"`      // 本次将扣除的积分，权益通道为 0
	Reason    string `json:"reason"`
	Shortfall int    `json:"shortfall"` // 缺口积分，仅余额不足时非零
}

// CostTable 动作模式到积分费用的映射
type CostTable interface {
	CostFor(pattern string) int
}

// Gate 提交闸门
type Gate struct {
	db    *gorm.DB
	costs CostTable
}

// NewGate 创建闸门
func NewGate(db *gorm.DB, costs CostTable) *Gate {
	return &Gate{db: db, costs: costs}
}

// Check 判定用户能否提交指定动作模式的分析
// 有效会员权益优先于积分余额，两者都不满足时给出缺口
func (g *Gate) Check(user *models.User, pattern string) GateDecision {
	cost := g.costs.CostFor(pattern)

	if user.HasActiveEntitlement() {
		return GateDecision{Allowed: true, Cost: 0, Reason: GateReasonEntitlement}
	}
	if user.FitPointsBalance >= cost {
		return GateDecision{Allowed: true, Cost: cost, Reason: GateReasonBalanceSufficient}
	}
	return GateDecision{
		Allowed:   false,
		Cost:      cost,
		Reason:    GateReasonBalanceInsufficient,
		Shortfall: cost - user.FitPointsBalance,
	}
}

// SubmitRequest 提交参数
type SubmitRequest struct {
	Pattern             string
	MediaRef            string
	DurationSeconds     float64
	UserDescription     string
	EquipmentConstraint string
}

// Submit 扣费并创建分析单，单事务内完成
// 扣费用条件更新防止并发透支，竞争失败返回 ErrInsufficientBalance
func (g *Gate) Submit(userID uint, req SubmitRequest) (*models.Analysis, error) {
	var analysis *models.Analysis

	err := g.db.Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.First(&user, userID).Error; err != nil {
			return fmt.Errorf("查询用户失败: %w", err)
		}

		decision := g.Check(&user, req.Pattern)
		if !decision.Allowed {
			return ErrInsufficientBalance
		}

		a := &models.Analysis{
			UserID:              userID,
			MovementPattern:     req.Pattern,
			MediaRef:            req.MediaRef,
			DurationSeconds:     req.DurationSeconds,
			UserDescription:     req.UserDescription,
			EquipmentConstraint: req.EquipmentConstraint,
			FPCost:              decision.Cost,
			PaidWithEntitlement: decision.Reason == GateReasonEntitlement,
			Status:              models.AnalysisStatusPendingAI,
		}
		if err := tx.Create(a).Error; err != nil {
			return fmt.Errorf("创建分析记录失败: %w", err)
		}

		if decision.Cost > 0 {
			res := tx.Model(&models.User{}).
				Where("id = ? AND fitpoints_balance >= ?", userID, decision.Cost).
				Update("fitpoints_balance", gorm.Expr("fitpoints_balance - ?", decision.Cost))
			if res.Error != nil {
				return fmt.Errorf("扣除积分失败: %w", res.Error)
			}
			if res.RowsAffected == 0 {
				return ErrInsufficientBalance
			}

			var after models.User
			if err := tx.Select("fitpoints_balance").First(&after, userID).Error; err != nil {
				return fmt.Errorf("查询扣费后余额失败: %w", err)
			}

			txn := &models.FitPointTransaction{
				UserID:       userID,
				Amount:       -decision.Cost,
				BalanceAfter: after.FitPointsBalance,
				Reason:       "动作分析",
				Reference:    fmt.Sprintf("analysis:%d", a.ID),
			}
			if err := tx.Create(txn).Error; err != nil {
				return fmt.Errorf("记录积分流水失败: %w", err)
			}
		}

		analysis = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return analysis, nil
}

// Refund 分析失败时退还扣除的积分，权益通道无需退款
func (g *Gate) Refund(analysis *models.Analysis) error {
	if analysis.FPCost <= 0 || analysis.PaidWithEntitlement {
		return nil
	}
	return g.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.User{}).
			Where("id = ?", analysis.UserID).
			Update("fitpoints_balance", gorm.Expr("fitpoints_balance + ?", analysis.FPCost)).Error; err != nil {
			return fmt.Errorf("退还积分失败: %w", err)
		}
		var after models.User
		if err := tx.Select("fitpoints_balance").First(&after, analysis.UserID).Error; err != nil {
			return fmt.Errorf("查询退款后余额失败: %w", err)
		}
		txn := &models.FitPointTransaction{
			UserID:       analysis.UserID,
			Amount:       analysis.FPCost,
			BalanceAfter: after.FitPointsBalance,
			Reason:       "分析失败退款",
			Reference:    fmt.Sprintf("analysis:%d", analysis.ID),
		}
		return tx.Create(txn).Error
	})
}
