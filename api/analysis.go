package api

import (
	"errors"
	"net/http"
	"strconv"

	"biomech/database"
	"biomech/middleware"
	"biomech/models"
	"biomech/service"

	"github.com/gin-gonic/gin"
)

// AnalysisHandler 动作分析处理器
type AnalysisHandler struct {
	gate      *service.Gate
	review    *service.ReviewService
	templates *service.TemplateSet
}

// NewAnalysisHandler 创建动作分析处理器
func NewAnalysisHandler(gate *service.Gate, review *service.ReviewService, templates *service.TemplateSet) *AnalysisHandler {
	return &AnalysisHandler{gate: gate, review: review, templates: templates}
}

// SubmitAnalysisRequest 提交分析请求
type SubmitAnalysisRequest struct {
	Pattern             string  `json:"pattern" binding:"required" example:"squat"`
	MediaRef            string  `json:"media_ref" binding:"required" example:"https://cdn.example.com/v/abc.mp4"`
	DurationSeconds     float64 `json:"duration_seconds" example:"28.5"`
	UserDescription     string  `json:"user_description" binding:"max=2000" example:"最近深蹲膝盖不舒服"`
	EquipmentConstraint string  `json:"equipment_constraint" binding:"max=30" example:"safety_bars"`
}

// GetQuote 提交前询价
// @Summary 提交前询价
// @Description 判定当前用户能否提交指定动作模式的分析：会员权益免积分，否则按次扣积分，余额不足时给出缺口。
// @Tags 分析
// @Produce json
// @Security BearerAuth
// @Param pattern query string true "动作模式" example(squat)
// @Success 200 {object} Response{data=service.GateDecision} "判定结果"
// @Failure 400 {object} Response "未知动作模式"
// @Failure 401 {object} Response "未授权"
// @Router /api/v1/analyses/quote [get]
func (h *AnalysisHandler) GetQuote(c *gin.Context) {
	pattern := c.Query("pattern")
	if !h.templates.Has(pattern) {
		BadRequest(c, "未知动作模式: "+pattern)
		return
	}

	var user models.User
	if err := database.DB.First(&user, middleware.GetCurrentUserID(c)).Error; err != nil {
		Unauthorized(c, "用户不存在")
		return
	}

	Success(c, h.gate.Check(&user, pattern))
}

// SubmitAnalysis 提交动作分析
// @Summary 提交动作分析
// @Description 提交训练视频进入分析队列。按次扣除积分（会员权益免扣），扣费与建单在同一事务内完成。
// @Tags 分析
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body SubmitAnalysisRequest true "提交信息"
// @Success 200 {object} Response{data=models.Analysis} "提交成功"
// @Failure 400 {object} Response "参数错误"
// @Failure 401 {object} Response "未授权"
// @Failure 402 {object} Response "积分余额不足"
// @Router /api/v1/analyses [post]
func (h *AnalysisHandler) SubmitAnalysis(c *gin.Context) {
	var req SubmitAnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	if !h.templates.Has(req.Pattern) {
		BadRequest(c, "未知动作模式: "+req.Pattern)
		return
	}
	if !service.ValidConstraint(req.EquipmentConstraint) {
		BadRequest(c, "无效的装备限制类型: "+req.EquipmentConstraint)
		return
	}

	userID := middleware.GetCurrentUserID(c)
	analysis, err := h.gate.Submit(userID, service.SubmitRequest{
		Pattern:             req.Pattern,
		MediaRef:            req.MediaRef,
		DurationSeconds:     req.DurationSeconds,
		UserDescription:     req.UserDescription,
		EquipmentConstraint: req.EquipmentConstraint,
	})
	if err != nil {
		if errors.Is(err, service.ErrInsufficientBalance) {
			Error(c, http.StatusPaymentRequired, "积分余额不足，请充值或开通会员")
			return
		}
		InternalError(c, SafeErrorMessage(err, "提交失败"))
		return
	}

	SuccessWithMessage(c, "提交成功，分析将在后台进行", analysis)
}

// ListMyAnalyses 获取我的分析列表
// @Summary 获取我的分析列表
// @Description 获取当前用户提交的分析，可按状态过滤，按提交时间倒序分页。
// @Tags 分析
// @Produce json
// @Security BearerAuth
// @Param status query string false "状态过滤" example(approved)
// @Param page query int false "页码，默认1"
// @Param page_size query int false "每页条数，默认20，最大100"
// @Success 200 {object} Response{data=PageResponse} "获取成功"
// @Failure 401 {object} Response "未授权"
// @Router /api/v1/analyses [get]
func (h *AnalysisHandler) ListMyAnalyses(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)
	page, pageSize := parsePagination(c)

	q := database.DB.Model(&models.Analysis{}).Where("user_id = ?", userID)
	if status := c.Query("status"); status != "" {
		q = q.Where("status = ?", status)
	}

	var total int64
	q.Count(&total)

	var list []models.Analysis
	if err := q.Order("created_at DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&list).Error; err != nil {
		InternalError(c, "查询失败: "+err.Error())
		return
	}

	Success(c, PageResponse{Total: total, Page: page, PageSize: pageSize, List: list})
}

// GetAnalysis 获取分析详情
// @Summary 获取分析详情
// @Description 获取单条分析的详情，仅本人可见。已发布的分析返回发布报告并累计浏览次数。
// @Tags 分析
// @Produce json
// @Security BearerAuth
// @Param id path int true "分析ID"
// @Success 200 {object} Response{data=models.Analysis} "获取成功"
// @Failure 401 {object} Response "未授权"
// @Failure 404 {object} Response "记录不存在"
// @Router /api/v1/analyses/{id} [get]
func (h *AnalysisHandler) GetAnalysis(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var analysis models.Analysis
	if err := database.DB.Where("id = ? AND user_id = ?", id, userID).First(&analysis).Error; err != nil {
		NotFound(c, "记录不存在")
		return
	}

	if analysis.Status == models.AnalysisStatusApproved {
		database.DB.Model(&analysis).UpdateColumn("view_count", analysis.ViewCount+1)
		analysis.ViewCount++
	} else {
		// 未发布前不向用户暴露 AI 原始产出
		analysis.AIResult = ""
		analysis.AIReport = ""
	}

	Success(c, analysis)
}

// VoteRequest 投票请求
type VoteRequest struct {
	VoteType string `json:"vote_type" binding:"required,oneof=helpful not_helpful" example:"helpful"`
}

// VoteAnalysis 报告有用性投票
// @Summary 报告有用性投票
// @Description 对已发布的分析报告投票，同一用户重复投票覆盖旧值。
// @Tags 分析
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "分析ID"
// @Param request body VoteRequest true "投票"
// @Success 200 {object} Response "投票成功"
// @Failure 400 {object} Response "参数错误"
// @Failure 404 {object} Response "记录不存在"
// @Failure 409 {object} Response "分析未发布"
// @Router /api/v1/analyses/{id}/vote [post]
func (h *AnalysisHandler) VoteAnalysis(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req VoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	helpful, total, err := h.review.Vote(id, userID, req.VoteType)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAnalysisNotFound):
			NotFound(c, "记录不存在")
		case errors.Is(err, service.ErrReviewConflict):
			Error(c, http.StatusConflict, "仅已发布的分析可投票")
		default:
			InternalError(c, SafeErrorMessage(err, "投票失败"))
		}
		return
	}

	SuccessWithMessage(c, "投票成功", gin.H{
		"helpful_votes": helpful,
		"total_votes":   total,
	})
}

// ResubmitRequest 重新提交请求
type ResubmitRequest struct {
	UserDescription string `json:"user_description" binding:"max=2000" example:"补充：使用安全杠，下蹲受限"`
}

// ResubmitAnalysis 按教练意见重新提交
// @Summary 重新提交分析
// @Description 教练要求修改后，补充说明并把分析送回队列重新分析，不再扣费。
// @Tags 分析
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "分析ID"
// @Param request body ResubmitRequest true "补充信息"
// @Success 200 {object} Response{data=models.Analysis} "已重新提交"
// @Failure 404 {object} Response "记录不存在"
// @Failure 409 {object} Response "当前状态不允许重新提交"
// @Router /api/v1/analyses/{id}/resubmit [post]
func (h *AnalysisHandler) ResubmitAnalysis(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req ResubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	analysis, err := h.review.ResubmitRevision(id, userID, req.UserDescription)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAnalysisNotFound):
			NotFound(c, "记录不存在")
		case errors.Is(err, service.ErrReviewConflict):
			Error(c, http.StatusConflict, SafeErrorMessage(err, "当前状态不允许重新提交"))
		default:
			InternalError(c, SafeErrorMessage(err, "重新提交失败"))
		}
		return
	}

	SuccessWithMessage(c, "已重新提交", analysis)
}

// ListPatterns 获取支持的动作模式列表
// @Summary 获取动作模式列表
// @Description 返回系统支持的动作模式及各模式的评估标准概览。
// @Tags 分析
// @Produce json
// @Success 200 {object} Response "获取成功"
// @Router /api/v1/patterns [get]
func (h *AnalysisHandler) ListPatterns(c *gin.Context) {
	type criterionView struct {
		Name           string `json:"name"`
		Label          string `json:"label"`
		Unit           string `json:"unit"`
		SafetyCritical bool   `json:"safety_critical"`
	}
	type patternView struct {
		Pattern  string          `json:"pattern"`
		Label    string          `json:"label"`
		Criteria []criterionView `json:"criteria"`
	}

	var out []patternView
	for _, p := range h.templates.Patterns() {
		tpl := h.templates.Get(p)
		pv := patternView{Pattern: tpl.Pattern, Label: tpl.Label}
		for _, cr := range tpl.Criteria {
			pv.Criteria = append(pv.Criteria, criterionView{
				Name:           cr.Name,
				Label:          cr.Label,
				Unit:           cr.Unit,
				SafetyCritical: cr.SafetyCritical,
			})
		}
		out = append(out, pv)
	}
	Success(c, out)
}

// parseIDParam 解析路径中的数字ID，失败时直接响应 400
func parseIDParam(c *gin.Context) (uint, bool) {
	id64, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		BadRequest(c, "无效的ID")
		return 0, false
	}
	return uint(id64), true
}
