package api

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"net/http"
	"time"

	"biomech/database"
	"biomech/middleware"
	"biomech/models"

	"github.com/gin-gonic/gin"
)

// ExportHandler 导出处理器
type ExportHandler struct{}

// NewExportHandler 创建导出处理器
func NewExportHandler() *ExportHandler {
	return &ExportHandler{}
}

// parseExportRange 解析导出时间范围参数
func parseExportRange(c *gin.Context) (start, end time.Time, startStr, endStr string, ok bool) {
	startStr = c.Query("start_time")
	endStr = c.Query("end_time")

	if startStr == "" || endStr == "" {
		BadRequest(c, "请提供开始时间和结束时间")
		return
	}

	start, err := time.ParseInLocation("2006-01-02", startStr, time.Local)
	if err != nil {
		BadRequest(c, "开始时间格式错误，应为: 2006-01-02")
		return
	}
	end, err = time.ParseInLocation("2006-01-02", endStr, time.Local)
	if err != nil {
		BadRequest(c, "结束时间格式错误，应为: 2006-01-02")
		return
	}
	end = end.Add(24*time.Hour - time.Second)
	ok = true
	return
}

// ExportCSV 导出我的分析记录为 CSV
// @Summary 导出分析记录
// @Description 根据时间范围导出当前用户的分析记录为 CSV 文件
// @Tags 导出
// @Produce text/csv
// @Security BearerAuth
// @Param start_time query string true "开始时间 (2025-01-01)"
// @Param end_time query string true "结束时间 (2025-12-31)"
// @Success 200 {file} file "CSV 文件"
// @Failure 400 {object} Response "请求参数错误"
// @Failure 401 {object} Response "未授权"
// @Router /api/v1/export/csv [get]
func (h *ExportHandler) ExportCSV(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)

	startTime, endTime, startStr, endStr, ok := parseExportRange(c)
	if !ok {
		return
	}

	// 查询数据
	var analyses []models.Analysis
	if err := database.DB.Where("user_id = ? AND created_at >= ? AND created_at <= ?", userID, startTime, endTime).
		Order("created_at DESC").
		Find(&analyses).Error; err != nil {
		InternalError(c, "查询数据失败: "+err.Error())
		return
	}

	// 生成 CSV
	buf := new(bytes.Buffer)
	// 添加 BOM 以支持 Excel 中文显示
	buf.WriteString("\xEF\xBB\xBF")

	writer := csv.NewWriter(buf)

	// 写入表头
	headers := []string{"ID", "动作模式", "状态", "评分", "分析方式", "积分费用", "有用票数", "提交时间"}
	if err := writer.Write(headers); err != nil {
		InternalError(c, "生成 CSV 失败")
		return
	}

	// 写入数据
	for _, a := range analyses {
		row := []string{
			fmt.Sprintf("%d", a.ID),
			a.MovementPattern,
			a.Status,
			fmt.Sprintf("%.1f", a.Score),
			a.Method,
			fmt.Sprintf("%d", a.FPCost),
			fmt.Sprintf("%d", a.HelpfulVotes),
			a.CreatedAt.Format("2006-01-02 15:04:05"),
		}
		if err := writer.Write(row); err != nil {
			InternalError(c, "生成 CSV 失败")
			return
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		InternalError(c, "生成 CSV 失败")
		return
	}

	// 设置响应头
	filename := fmt.Sprintf("analyses_%s_%s.csv", startStr, endStr)
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	c.Header("Content-Length", fmt.Sprintf("%d", buf.Len()))

	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

// ExportJSON 导出我的分析记录为 JSON
// @Summary 导出分析记录为 JSON
// @Description 根据时间范围导出当前用户的分析记录为 JSON 格式
// @Tags 导出
// @Produce json
// @Security BearerAuth
// @Param start_time query string true "开始时间 (2025-01-01)"
// @Param end_time query string true "结束时间 (2025-12-31)"
// @Success 200 {object} Response{data=[]models.Analysis} "导出成功"
// @Failure 400 {object} Response "请求参数错误"
// @Failure 401 {object} Response "未授权"
// @Router /api/v1/export/json [get]
func (h *ExportHandler) ExportJSON(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)

	startTime, endTime, startStr, endStr, ok := parseExportRange(c)
	if !ok {
		return
	}

	// 查询数据
	var analyses []models.Analysis
	if err := database.DB.Where("user_id = ? AND created_at >= ? AND created_at <= ?", userID, startTime, endTime).
		Order("created_at DESC").
		Find(&analyses).Error; err != nil {
		InternalError(c, "查询数据失败: "+err.Error())
		return
	}

	// 计算汇总信息
	var scoreSum float64
	approved := 0
	for _, a := range analyses {
		if a.Status == models.AnalysisStatusApproved {
			scoreSum += a.Score
			approved++
		}
	}
	avgScore := 0.0
	if approved > 0 {
		avgScore = scoreSum / float64(approved)
	}

	Success(c, gin.H{
		"start_time":  startStr,
		"end_time":    endStr,
		"total_count": len(analyses),
		"avg_score":   avgScore,
		"analyses":    analyses,
	})
}
