package service

import (
	"fmt"
	"log"
	"time"

	"biomech/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// 审核：教练对 AI 分析结果的审核状态机与用户投票

// ReviewNotifier 审核结果通知，空实现表示不通知
type ReviewNotifier interface {
	NotifyReviewOutcome(user *models.User, analysis *models.Analysis, decision string) error
}

// ReviewService 审核服务
type ReviewService struct {
	db       *gorm.DB
	notifier ReviewNotifier
}

// NewReviewService 创建审核服务，notifier 可为 nil
func NewReviewService(db *gorm.DB, notifier ReviewNotifier) *ReviewService {
	return &ReviewService{db: db, notifier: notifier}
}

// transition 可审核状态到目标状态的条件迁移
// 条件更新保证并发审核互斥，未命中行说明状态已被他人改走
func (s *ReviewService) transition(analysisID, reviewerID uint, decision string, updates map[string]interface{}, notes, editedReport string) (*models.Analysis, error) {
	var out *models.Analysis

	err := s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Analysis{}).
			Where("id = ? AND status IN ?", analysisID, models.ReviewableStatuses()).
			Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("更新审核状态失败: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			var a models.Analysis
			if err := tx.First(&a, analysisID).Error; err != nil {
				return ErrAnalysisNotFound
			}
			return fmt.Errorf("%w: 当前状态 %s", ErrReviewConflict, a.Status)
		}

		rec := &models.ReviewDecision{
			AnalysisID:   analysisID,
			ReviewerID:   reviewerID,
			Decision:     decision,
			Notes:        notes,
			EditedReport: editedReport,
		}
		if err := tx.Create(rec).Error; err != nil {
			return fmt.Errorf("记录审核决定失败: %w", err)
		}

		var a models.Analysis
		if err := tx.First(&a, analysisID).Error; err != nil {
			return err
		}
		out = &a
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(out, decision)
	return out, nil
}

func (s *ReviewService) notify(analysis *models.Analysis, decision string) {
	if s.notifier == nil || analysis == nil {
		return
	}
	var user models.User
	if err := s.db.First(&user, analysis.UserID).Error; err != nil {
		log.Printf("查询用户失败，跳过审核通知: %v", err)
		return
	}
	if err := s.notifier.NotifyReviewOutcome(&user, analysis, decision); err != nil {
		log.Printf("发送审核通知失败 analysis=%d: %v", analysis.ID, err)
	}
}

// Approve 通过审核并发布报告
// editedReport 非空时发布教练修改稿，否则发布 AI 原稿
func (s *ReviewService) Approve(analysisID, reviewerID uint, editedReport, notes string) (*models.Analysis, error) {
	var a models.Analysis
	if err := s.db.First(&a, analysisID).Error; err != nil {
		return nil, ErrAnalysisNotFound
	}
	published := a.AIReport
	if editedReport != "" {
		published = editedReport
	}

	now := time.Now()
	return s.transition(analysisID, reviewerID, models.DecisionApprove, map[string]interface{}{
		"status":           models.AnalysisStatusApproved,
		"reviewer_id":      reviewerID,
		"review_notes":     notes,
		"published_report": published,
		"reviewed_at":      now,
		"published_at":     now,
	}, notes, editedReport)
}

// Reject 驳回分析
func (s *ReviewService) Reject(analysisID, reviewerID uint, reason, notes string) (*models.Analysis, error) {
	if reason == "" {
		return nil, fmt.Errorf("驳回必须填写原因: %w", ErrValidation)
	}
	now := time.Now()
	return s.transition(analysisID, reviewerID, models.DecisionReject, map[string]interface{}{
		"status":           models.AnalysisStatusRejected,
		"reviewer_id":      reviewerID,
		"review_notes":     notes,
		"rejection_reason": reason,
		"reviewed_at":      now,
	}, notes, "")
}

// RequestRevision 要求修改，分析回到用户侧
func (s *ReviewService) RequestRevision(analysisID, reviewerID uint, notes string) (*models.Analysis, error) {
	if notes == "" {
		return nil, fmt.Errorf("要求修改必须说明原因: %w", ErrValidation)
	}
	now := time.Now()
	return s.transition(analysisID, reviewerID, models.DecisionRequestRevision, map[string]interface{}{
		"status":       models.AnalysisStatusRevisionNeeded,
		"reviewer_id":  reviewerID,
		"review_notes": notes,
		"reviewed_at":  now,
	}, notes, "")
}

// ResubmitRevision 用户按修改意见重新提交，回到待分析队列，不再扣费
func (s *ReviewService) ResubmitRevision(analysisID, userID uint, description string) (*models.Analysis, error) {
	updates := map[string]interface{}{
		"status":        models.AnalysisStatusPendingAI,
		"error_message": "",
	}
	if description != "" {
		updates["user_description"] = description
	}

	res := s.db.Model(&models.Analysis{}).
		Where("id = ? AND user_id = ? AND status = ?", analysisID, userID, models.AnalysisStatusRevisionNeeded).
		Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("重新提交失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		var a models.Analysis
		if err := s.db.Where("id = ? AND user_id = ?", analysisID, userID).First(&a).Error; err != nil {
			return nil, ErrAnalysisNotFound
		}
		return nil, fmt.Errorf("%w: 当前状态 %s 不允许重新提交", ErrReviewConflict, a.Status)
	}

	var a models.Analysis
	if err := s.db.First(&a, analysisID).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// Vote 对已发布的分析投票，同一用户重复投票覆盖旧值
func (s *ReviewService) Vote(analysisID, userID uint, voteType string) (helpful int64, total int64, err error) {
	if voteType != models.VoteHelpful && voteType != models.VoteNotHelpful {
		return 0, 0, fmt.Errorf("无效的投票类型 %q: %w", voteType, ErrValidation)
	}

	var a models.Analysis
	if err := s.db.First(&a, analysisID).Error; err != nil {
		return 0, 0, ErrAnalysisNotFound
	}
	if a.Status != models.AnalysisStatusApproved {
		return 0, 0, fmt.Errorf("%w: 仅已发布的分析可投票", ErrReviewConflict)
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		vote := &models.AnalysisVote{
			AnalysisID: analysisID,
			UserID:     userID,
			VoteType:   voteType,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "analysis_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"vote_type", "updated_at"}),
		}).Create(vote).Error; err != nil {
			return fmt.Errorf("保存投票失败: %w", err)
		}

		// 聚合值从投票表重算，不做增量维护
		if err := tx.Model(&models.AnalysisVote{}).
			Where("analysis_id = ? AND vote_type = ?", analysisID, models.VoteHelpful).
			Count(&helpful).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.AnalysisVote{}).
			Where("analysis_id = ?", analysisID).
			Count(&total).Error; err != nil {
			return err
		}
		return tx.Model(&models.Analysis{}).
			Where("id = ?", analysisID).
			Update("helpful_votes", helpful).Error
	})
	if err != nil {
		return 0, 0, err
	}
	return helpful, total, nil
}

// Queue 审核队列，按提交时间升序；status 为空时取可审核状态
func (s *ReviewService) Queue(status string, page, pageSize int) ([]models.Analysis, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	// 默认只列可审核状态；指定 status 时按状态过滤，error 单也由此入口查看
	q := s.db.Model(&models.Analysis{})
	if status == "" {
		q = q.Where("status IN ?", models.ReviewableStatuses())
	} else {
		q = q.Where("status = ?", status)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var list []models.Analysis
	if err := q.Order("created_at ASC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&list).Error; err != nil {
		return nil, 0, err
	}
	return list, total, nil
}
