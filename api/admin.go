package api

import (
	"fmt"
	"net/http"
	"time"

	"biomech/adminauth"
	"biomech/database"
	"biomech/models"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func setAdminCookie(c *gin.Context, name, value string, maxAge int, httpOnly bool) {
	secure, sameSite := getCookieOptions()
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		Secure:   secure,
		HttpOnly: httpOnly,
		SameSite: sameSite,
	})
}

// setSignedAdminCookie 设置签名后的敏感 Cookie，防止客户端篡改
func setSignedAdminCookie(c *gin.Context, name, value string, maxAge int, httpOnly bool) {
	setAdminCookie(c, name, adminauth.SignCookieValue(value), maxAge, httpOnly)
}

// AdminHandler 后台管理处理器
type AdminHandler struct{}

// NewAdminHandler 创建后台管理处理器
func NewAdminHandler() *AdminHandler {
	return &AdminHandler{}
}

// getCurrentUser 获取当前登录用户信息（校验 Cookie 签名，防止篡改越权）
func getCurrentUser(c *gin.Context) (*models.User, error) {
	userID, err := adminauth.GetVerifiedAdminUserID(c)
	if err != nil {
		return nil, err
	}
	var user models.User
	if err := database.DB.First(&user, userID).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// AdminLoginRequest 管理员登录请求（支持用户名或邮箱）
type AdminLoginRequest struct {
	Username string `json:"username" binding:"required"` // 可为用户名或邮箱
	Password string `json:"password" binding:"required"`
}

// AdminLogin 管理员登录（使用 session/cookie 方式）
// @Summary 管理员登录
// @Description 教练/管理员使用用户名和密码登录，登录成功后设置签名 Cookie。
// @Tags 后台管理
// @Accept json
// @Produce json
// @Param request body AdminLoginRequest true "登录信息"
// @Success 200 {object} map[string]interface{} "登录成功"
// @Failure 401 {object} map[string]interface{} "用户名或密码错误"
// @Failure 403 {object} map[string]interface{} "账号已锁定"
// @Router /admin/login [post]
func (h *AdminHandler) AdminLogin(c *gin.Context) {
	var req AdminLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "参数错误"})
		return
	}

	// 查找用户（支持用户名或邮箱）
	var user models.User
	if err := database.DB.Where("username = ? OR email = ?", req.Username, req.Username).First(&user).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "用户名或密码错误"})
		return
	}

	// 仅正常用户可登录
	if user.Status != models.UserStatusActive {
		c.JSON(http.StatusForbidden, gin.H{"success": false, "message": "账号已锁定，请联系管理员解锁"})
		return
	}

	// 验证密码
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "用户名或密码错误"})
		return
	}

	// 设置 Cookie（admin_user_id 使用签名防篡改）
	setSignedAdminCookie(c, "admin_user_id", fmt.Sprintf("%d", user.ID), 86400, true)
	setAdminCookie(c, "admin_username", user.Username, 86400, false)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "登录成功",
		"data": gin.H{
			"user_id":  user.ID,
			"username": user.Username,
			"is_admin": user.IsAdmin,
		},
	})
}

// AdminLogout 管理员登出
// @Summary 管理员登出
// @Tags 后台管理
// @Produce json
// @Success 200 {object} map[string]interface{} "登出成功"
// @Router /admin/logout [post]
func (h *AdminHandler) AdminLogout(c *gin.Context) {
	setAdminCookie(c, "admin_user_id", "", -1, true)
	setAdminCookie(c, "admin_username", "", -1, false)
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "已登出"})
}

// GetCurrentUserInfo 获取当前登录管理员信息
// @Summary 获取当前登录管理员信息
// @Tags 后台管理
// @Produce json
// @Success 200 {object} map[string]interface{} "获取成功"
// @Failure 401 {object} map[string]interface{} "未登录"
// @Router /admin/current-user [get]
func (h *AdminHandler) GetCurrentUserInfo(c *gin.Context) {
	user, err := getCurrentUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "未登录"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"user_id":           user.ID,
			"username":          user.Username,
			"email":             user.Email,
			"is_admin":          user.IsAdmin,
			"subscription_tier": user.SubscriptionTier,
		},
	})
}

// ListUsers 获取用户列表
// @Summary 获取用户列表
// @Description 分页获取用户列表，支持按用户名/邮箱模糊搜索。
// @Tags 后台管理
// @Produce json
// @Param keyword query string false "搜索关键词"
// @Param page query int false "页码，默认1"
// @Param page_size query int false "每页条数，默认20"
// @Success 200 {object} map[string]interface{} "获取成功"
// @Router /admin/users [get]
func (h *AdminHandler) ListUsers(c *gin.Context) {
	page, pageSize := parsePagination(c)

	q := database.DB.Model(&models.User{})
	if keyword := c.Query("keyword"); keyword != "" {
		like := "%" + escapeLikeValue(keyword) + "%"
		q = q.Where("username LIKE ? OR email LIKE ?", like, like)
	}

	var total int64
	q.Count(&total)

	var users []models.User
	if err := q.Order("id ASC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&users).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "查询失败: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"total":     total,
			"page":      page,
			"page_size": pageSize,
			"list":      users,
		},
	})
}

// UpdateUserRequest 更新用户请求
type UpdateUserRequest struct {
	Status             string `json:"status" binding:"omitempty,oneof=active locked"`
	IsAdmin            *bool  `json:"is_admin"`
	SubscriptionTier   string `json:"subscription_tier" binding:"omitempty,oneof=free premium premium_plus"`
	SubscriptionStatus string `json:"subscription_status" binding:"omitempty,oneof=active expired"`
}

// UpdateUser 更新用户状态/权限/会员档位
// @Summary 更新用户
// @Description 更新用户的锁定状态、管理员权限和会员订阅档位。
// @Tags 后台管理
// @Accept json
// @Produce json
// @Param id path int true "用户ID"
// @Param request body UpdateUserRequest true "更新信息"
// @Success 200 {object} map[string]interface{} "更新成功"
// @Failure 404 {object} map[string]interface{} "用户不存在"
// @Router /admin/users/{id} [put]
func (h *AdminHandler) UpdateUser(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var user models.User
	if err := database.DB.First(&user, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "用户不存在"})
		return
	}

	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": SafeErrorMessage(err, "参数错误")})
		return
	}

	updates := make(map[string]interface{})
	if req.Status != "" {
		updates["status"] = req.Status
	}
	if req.IsAdmin != nil {
		updates["is_admin"] = *req.IsAdmin
	}
	if req.SubscriptionTier != "" {
		updates["subscription_tier"] = req.SubscriptionTier
	}
	if req.SubscriptionStatus != "" {
		updates["subscription_status"] = req.SubscriptionStatus
	}
	if len(updates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "没有要更新的字段"})
		return
	}

	if err := database.DB.Model(&user).Updates(updates).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": SafeErrorMessage(err, "更新失败")})
		return
	}

	database.DB.First(&user, id)
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "更新成功", "data": user})
}

// GrantFitPointsRequest 积分调整请求
type GrantFitPointsRequest struct {
	Amount int    `json:"amount" binding:"required"` // 正数发放，负数扣减
	Reason string `json:"reason" binding:"required,max=200"`
}

// GrantFitPoints 调整用户积分
// @Summary 调整用户积分
// @Description 给用户发放或扣减积分，调整与流水记录在同一事务内完成。
// @Tags 后台管理
// @Accept json
// @Produce json
// @Param id path int true "用户ID"
// @Param request body GrantFitPointsRequest true "调整信息"
// @Success 200 {object} map[string]interface{} "调整成功"
// @Failure 400 {object} map[string]interface{} "余额不足以扣减"
// @Failure 404 {object} map[string]interface{} "用户不存在"
// @Router /admin/users/{id}/fitpoints [post]
func (h *AdminHandler) GrantFitPoints(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req GrantFitPointsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": SafeErrorMessage(err, "参数错误")})
		return
	}

	var balanceAfter int
	err := database.DB.Transaction(func(tx *gorm.DB) error {
		q := tx.Model(&models.User{}).Where("id = ?", id)
		if req.Amount < 0 {
			q = q.Where("fitpoints_balance >= ?", -req.Amount)
		}
		res := q.Update("fitpoints_balance", gorm.Expr("fitpoints_balance + ?", req.Amount))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("用户不存在或余额不足")
		}
		if req.Amount > 0 {
			tx.Model(&models.User{}).Where("id = ?", id).
				Update("fitpoints_lifetime", gorm.Expr("fitpoints_lifetime + ?", req.Amount))
		}

		var user models.User
		if err := tx.Select("fitpoints_balance").First(&user, id).Error; err != nil {
			return err
		}
		balanceAfter = user.FitPointsBalance

		return tx.Create(&models.FitPointTransaction{
			UserID:       id,
			Amount:       req.Amount,
			BalanceAfter: balanceAfter,
			Reason:       req.Reason,
			Reference:    "admin",
		}).Error
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": SafeErrorMessage(err, "调整失败")})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "调整成功",
		"data":    gin.H{"balance_after": balanceAfter},
	})
}

// GetDashboardStats 后台总览统计
// @Summary 后台总览统计
// @Description 返回用户数、各状态分析数量、平均分和投票情况。
// @Tags 后台管理
// @Produce json
// @Success 200 {object} map[string]interface{} "获取成功"
// @Router /admin/stats [get]
func (h *AdminHandler) GetDashboardStats(c *gin.Context) {
	var userCount int64
	database.DB.Model(&models.User{}).Count(&userCount)

	type statusCount struct {
		Status string `json:"status"`
		Count  int64  `json:"count"`
	}
	var byStatus []statusCount
	database.DB.Model(&models.Analysis{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&byStatus)

	var avgScore float64
	database.DB.Model(&models.Analysis{}).
		Where("status = ?", models.AnalysisStatusApproved).
		Select("COALESCE(AVG(score), 0)").
		Scan(&avgScore)

	var helpfulVotes, totalVotes int64
	database.DB.Model(&models.AnalysisVote{}).Where("vote_type = ?", models.VoteHelpful).Count(&helpfulVotes)
	database.DB.Model(&models.AnalysisVote{}).Count(&totalVotes)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"user_count":         userCount,
			"analyses_by_status": byStatus,
			"avg_approved_score": avgScore,
			"helpful_votes":      helpfulVotes,
			"total_votes":        totalVotes,
		},
	})
}

// ExportAnalysesExcel 导出分析记录为 Excel
// @Summary 导出分析记录
// @Description 按时间范围把分析记录导出为 xlsx 文件。
// @Tags 后台管理
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param start_time query string true "开始日期 (2025-01-01)"
// @Param end_time query string true "结束日期 (2025-12-31)"
// @Success 200 {file} file "xlsx 文件"
// @Failure 400 {object} map[string]interface{} "参数错误"
// @Router /admin/analyses/export [get]
func (h *AdminHandler) ExportAnalysesExcel(c *gin.Context) {
	startStr := c.Query("start_time")
	endStr := c.Query("end_time")
	if startStr == "" || endStr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "请提供开始时间和结束时间"})
		return
	}
	startTime, err := time.ParseInLocation("2006-01-02", startStr, time.Local)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "开始时间格式错误，应为: 2006-01-02"})
		return
	}
	endTime, err := time.ParseInLocation("2006-01-02", endStr, time.Local)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "结束时间格式错误，应为: 2006-01-02"})
		return
	}
	endTime = endTime.Add(24*time.Hour - time.Second)

	type analysisRow struct {
		models.Analysis
		Username string `json:"username"`
	}
	var rows []analysisRow
	if err := database.DB.Model(&models.Analysis{}).
		Select("analyses.*, users.username").
		Joins("LEFT JOIN users ON analyses.user_id = users.id").
		Where("analyses.created_at >= ? AND analyses.created_at <= ?", startTime, endTime).
		Order("analyses.created_at DESC").
		Scan(&rows).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "查询失败: " + err.Error()})
		return
	}

	f := excelize.NewFile()
	defer f.Close()
	sheet := "分析记录"
	f.SetSheetName("Sheet1", sheet)

	headers := []string{"ID", "用户", "动作模式", "状态", "评分", "分析方式", "积分费用", "权益支付", "有用票数", "提交时间", "审核时间"}
	for i, head := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, head)
	}

	for i, r := range rows {
		rowNum := i + 2
		values := []interface{}{
			r.ID, r.Username, r.MovementPattern, r.Status, r.Score, r.Method,
			r.FPCost, r.PaidWithEntitlement, r.HelpfulVotes,
			r.CreatedAt.Format("2006-01-02 15:04:05"),
		}
		if r.ReviewedAt != nil {
			values = append(values, r.ReviewedAt.Format("2006-01-02 15:04:05"))
		} else {
			values = append(values, "")
		}
		for j, v := range values {
			cell, _ := excelize.CoordinatesToCellName(j+1, rowNum)
			f.SetCellValue(sheet, cell, v)
		}
	}

	filename := fmt.Sprintf("analyses_%s_%s.xlsx", startStr, endStr)
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	if err := f.Write(c.Writer); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "生成文件失败"})
	}
}
