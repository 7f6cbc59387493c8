package api

import (
	"errors"
	"net/http"

	"biomech/database"
	"biomech/middleware"
	"biomech/models"
	"biomech/service"

	"github.com/gin-gonic/gin"
)

// ReviewHandler 审核处理器（后台）
type ReviewHandler struct {
	review *service.ReviewService
}

// NewReviewHandler 创建审核处理器
func NewReviewHandler(review *service.ReviewService) *ReviewHandler {
	return &ReviewHandler{review: review}
}

// ListReviewQueue 获取审核队列
// @Summary 获取审核队列
// @Description 返回等待教练审核的分析（AI 已完成），按提交时间先进先出。传 status 可按状态过滤，如 status=error 查看失败单。
// @Tags 审核
// @Produce json
// @Param status query string false "按状态过滤，如 error；默认只列可审核状态"
// @Param page query int false "页码，默认1"
// @Param page_size query int false "每页条数，默认20"
// @Success 200 {object} map[string]interface{} "获取成功"
// @Failure 401 {object} map[string]interface{} "未登录"
// @Router /admin/review/queue [get]
func (h *ReviewHandler) ListReviewQueue(c *gin.Context) {
	page, pageSize := parsePagination(c)

	list, total, err := h.review.Queue(c.Query("status"), page, pageSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "查询失败: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"total":     total,
			"page":      page,
			"page_size": pageSize,
			"list":      list,
		},
	})
}

// GetReviewDetail 获取待审分析详情
// @Summary 获取待审分析详情
// @Description 返回分析的完整内容，含 AI 结构化结果、报告与历史审核决定。
// @Tags 审核
// @Produce json
// @Param id path int true "分析ID"
// @Success 200 {object} map[string]interface{} "获取成功"
// @Failure 404 {object} map[string]interface{} "记录不存在"
// @Router /admin/review/{id} [get]
func (h *ReviewHandler) GetReviewDetail(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var analysis models.Analysis
	if err := database.DB.First(&analysis, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "记录不存在"})
		return
	}

	var user models.User
	database.DB.Select("id, username, subscription_tier").First(&user, analysis.UserID)

	var decisions []models.ReviewDecision
	database.DB.Where("analysis_id = ?", id).Order("created_at DESC").Find(&decisions)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"analysis":  analysis,
			"username":  user.Username,
			"decisions": decisions,
		},
	})
}

// ApproveRequest 审核通过请求
type ApproveRequest struct {
	EditedReport string `json:"edited_report"` // 为空则发布 AI 原稿
	Notes        string `json:"notes" binding:"max=1000"`
}

// ApproveAnalysis 审核通过并发布
// @Summary 审核通过并发布
// @Description 通过审核，发布教练修改稿或 AI 原稿。并发审核时状态已变更的请求返回 409。
// @Tags 审核
// @Accept json
// @Produce json
// @Param id path int true "分析ID"
// @Param request body ApproveRequest true "审核信息"
// @Success 200 {object} map[string]interface{} "已发布"
// @Failure 404 {object} map[string]interface{} "记录不存在"
// @Failure 409 {object} map[string]interface{} "状态冲突"
// @Router /admin/review/{id}/approve [post]
func (h *ReviewHandler) ApproveAnalysis(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req ApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "参数错误: " + err.Error()})
		return
	}

	analysis, err := h.review.Approve(id, middleware.GetAdminUserID(c), req.EditedReport, req.Notes)
	if err != nil {
		h.writeReviewError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "已发布", "data": analysis})
}

// RejectRequest 驳回请求
type RejectRequest struct {
	Reason string `json:"reason" binding:"required,max=500"`
	Notes  string `json:"notes" binding:"max=1000"`
}

// RejectAnalysis 驳回分析
// @Summary 驳回分析
// @Description 驳回分析并说明原因，用户侧可见驳回原因。
// @Tags 审核
// @Accept json
// @Produce json
// @Param id path int true "分析ID"
// @Param request body RejectRequest true "驳回信息"
// @Success 200 {object} map[string]interface{} "已驳回"
// @Failure 404 {object} map[string]interface{} "记录不存在"
// @Failure 409 {object} map[string]interface{} "状态冲突"
// @Router /admin/review/{id}/reject [post]
func (h *ReviewHandler) RejectAnalysis(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req RejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "参数错误: " + err.Error()})
		return
	}

	analysis, err := h.review.Reject(id, middleware.GetAdminUserID(c), req.Reason, req.Notes)
	if err != nil {
		h.writeReviewError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "已驳回", "data": analysis})
}

// RevisionRequest 要求修改请求
type RevisionRequest struct {
	Notes string `json:"notes" binding:"required,max=1000"`
}

// RequestRevision 要求用户补充后重新提交
// @Summary 要求修改
// @Description 把分析退回用户侧补充信息，用户重新提交后不再扣费。
// @Tags 审核
// @Accept json
// @Produce json
// @Param id path int true "分析ID"
// @Param request body RevisionRequest true "修改意见"
// @Success 200 {object} map[string]interface{} "已退回"
// @Failure 404 {object} map[string]interface{} "记录不存在"
// @Failure 409 {object} map[string]interface{} "状态冲突"
// @Router /admin/review/{id}/request-revision [post]
func (h *ReviewHandler) RequestRevision(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req RevisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "参数错误: " + err.Error()})
		return
	}

	analysis, err := h.review.RequestRevision(id, middleware.GetAdminUserID(c), req.Notes)
	if err != nil {
		h.writeReviewError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "已退回用户补充", "data": analysis})
}

func (h *ReviewHandler) writeReviewError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrAnalysisNotFound):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "记录不存在"})
	case errors.Is(err, service.ErrReviewConflict):
		c.JSON(http.StatusConflict, gin.H{"success": false, "message": SafeErrorMessage(err, "分析状态已变更，请刷新后重试")})
	case errors.Is(err, service.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": SafeErrorMessage(err, "参数错误")})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": SafeErrorMessage(err, "操作失败")})
	}
}
