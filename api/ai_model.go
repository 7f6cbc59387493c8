package api

import (
	"net/http"
	"time"

	"biomech/config"
	"biomech/database"
	"biomech/models"
	"biomech/service"

	"github.com/gin-gonic/gin"
)

// AIModelHandler 推理端点管理处理器
type AIModelHandler struct {
	cfg *config.Config
}

// NewAIModelHandler 创建推理端点管理处理器
func NewAIModelHandler(cfg *config.Config) *AIModelHandler {
	return &AIModelHandler{cfg: cfg}
}

// CreateAIModelRequest 创建推理端点请求
type CreateAIModelRequest struct {
	Name    string `json:"name" binding:"required,min=1,max=100" example:"本地 Ollama"`
	BaseURL string `json:"base_url" binding:"required,url" example:"http://localhost:11434"`
	APIKey  string `json:"api_key" binding:"omitempty,min=1" example:""`
}

// UpdateAIModelRequest 更新推理端点请求
type UpdateAIModelRequest struct {
	Name    string `json:"name" binding:"omitempty,min=1,max=100"`
	BaseURL string `json:"base_url" binding:"omitempty,url"`
	APIKey  string `json:"api_key" binding:"omitempty,min=1"`
}

// CreateAIModel 创建推理端点配置
// @Summary 创建推理端点
// @Description 注册新的 Ollama 兼容推理服务端点，分析流水线使用排序最靠前的端点。
// @Tags 后台管理-推理端点
// @Accept json
// @Produce json
// @Param request body CreateAIModelRequest true "端点信息"
// @Success 200 {object} map[string]interface{} "创建成功"
// @Failure 400 {object} map[string]interface{} "参数错误或名称已存在"
// @Router /admin/ai-models [post]
func (h *AIModelHandler) CreateAIModel(c *gin.Context) {
	var req CreateAIModelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": SafeErrorMessage(err, "参数错误")})
		return
	}

	// 检查名称是否已存在
	var existing models.AIModel
	if err := database.DB.Where("name = ?", req.Name).First(&existing).Error; err == nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "端点名称已存在"})
		return
	}

	// 新端点排在最后
	var maxOrder int
	database.DB.Model(&models.AIModel{}).Select("COALESCE(MAX(sort_order), -1)").Scan(&maxOrder)

	aiModel := models.AIModel{
		Name:      req.Name,
		BaseURL:   req.BaseURL,
		APIKey:    req.APIKey,
		SortOrder: maxOrder + 1,
	}

	if err := database.DB.Create(&aiModel).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": SafeErrorMessage(err, "创建失败")})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "创建成功",
		"data":    aiModel,
	})
}

// GetAllAIModels 获取推理端点列表
// @Summary 获取推理端点列表
// @Description 获取系统中所有推理端点配置（不包含APIKey）
// @Tags 后台管理-推理端点
// @Produce json
// @Success 200 {object} map[string]interface{} "获取成功"
// @Router /admin/ai-models [get]
func (h *AIModelHandler) GetAllAIModels(c *gin.Context) {
	var list []models.AIModel
	if err := database.DB.Order("sort_order ASC, id ASC").Find(&list).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": SafeErrorMessage(err, "查询失败")})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    list,
	})
}

// UpdateAIModel 更新推理端点配置
// @Summary 更新推理端点
// @Description 更新指定推理端点的配置信息
// @Tags 后台管理-推理端点
// @Accept json
// @Produce json
// @Param id path int true "端点ID"
// @Param request body UpdateAIModelRequest true "更新的端点信息"
// @Success 200 {object} map[string]interface{} "更新成功"
// @Failure 400 {object} map[string]interface{} "参数错误或名称已存在"
// @Failure 404 {object} map[string]interface{} "端点不存在"
// @Router /admin/ai-models/{id} [put]
func (h *AIModelHandler) UpdateAIModel(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var aiModel models.AIModel
	if err := database.DB.First(&aiModel, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "端点不存在"})
		return
	}

	var req UpdateAIModelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": SafeErrorMessage(err, "参数错误")})
		return
	}

	// 如果更新名称，检查是否与其他端点冲突
	if req.Name != "" && req.Name != aiModel.Name {
		var existing models.AIModel
		if err := database.DB.Where("name = ? AND id != ?", req.Name, id).First(&existing).Error; err == nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "端点名称已存在"})
			return
		}
	}

	updates := make(map[string]interface{})
	if req.Name != "" {
		updates["name"] = req.Name
	}
	if req.BaseURL != "" {
		updates["base_url"] = req.BaseURL
	}
	if req.APIKey != "" {
		updates["api_key"] = req.APIKey
	}

	if err := database.DB.Model(&aiModel).Updates(updates).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": SafeErrorMessage(err, "更新失败")})
		return
	}

	database.DB.First(&aiModel, aiModel.ID)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "更新成功",
		"data":    aiModel,
	})
}

// TestAIModel 检测推理端点可用性
// @Summary 检测推理端点可用性
// @Description 请求端点的模型列表，并检查流水线配置的文本/视觉模型是否已加载。
// @Tags 后台管理-推理端点
// @Produce json
// @Param id path int true "端点ID"
// @Success 200 {object} map[string]interface{} "检测成功"
// @Failure 404 {object} map[string]interface{} "端点不存在"
// @Failure 502 {object} map[string]interface{} "端点不可用"
// @Router /admin/ai-models/{id}/test [post]
func (h *AIModelHandler) TestAIModel(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var aiModel models.AIModel
	if err := database.DB.First(&aiModel, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "端点不存在"})
		return
	}

	client := service.NewOllamaClient(aiModel.BaseURL, aiModel.APIKey,
		time.Duration(h.cfg.Inference.ProbeTimeoutSeconds)*time.Second,
		time.Duration(h.cfg.Inference.GenerateTimeoutSeconds)*time.Second)

	loaded, err := client.ListModels(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "message": SafeErrorMessage(err, "端点不可用")})
		return
	}

	hasText, _ := client.HasModel(c.Request.Context(), h.cfg.Inference.TextModel)
	hasVision, _ := client.HasModel(c.Request.Context(), h.cfg.Inference.VisionModel)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "端点可用",
		"data": gin.H{
			"loaded_models":    loaded,
			"has_text_model":   hasText,
			"has_vision_model": hasVision,
		},
	})
}

// ReorderAIModelsRequest 排序请求
type ReorderAIModelsRequest struct {
	ModelIDs []uint `json:"model_ids" binding:"required,min=1"` // 按新顺序排列的端点 ID 列表
}

// ReorderAIModels 排序推理端点
// @Summary 排序推理端点
// @Description 根据传入的ID顺序更新排序，流水线总是使用排序最靠前的端点。
// @Tags 后台管理-推理端点
// @Accept json
// @Produce json
// @Param request body ReorderAIModelsRequest true "端点ID顺序"
// @Success 200 {object} map[string]interface{} "排序成功"
// @Failure 400 {object} map[string]interface{} "参数错误"
// @Router /admin/ai-models/reorder [put]
func (h *AIModelHandler) ReorderAIModels(c *gin.Context) {
	var req ReorderAIModelsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": SafeErrorMessage(err, "参数错误")})
		return
	}

	for i, id := range req.ModelIDs {
		if err := database.DB.Model(&models.AIModel{}).Where("id = ?", id).Update("sort_order", i).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "排序保存失败"})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "排序已保存",
	})
}

// DeleteAIModel 删除推理端点配置
// @Summary 删除推理端点
// @Description 删除指定的推理端点配置
// @Tags 后台管理-推理端点
// @Produce json
// @Param id path int true "端点ID"
// @Success 200 {object} map[string]interface{} "删除成功"
// @Failure 404 {object} map[string]interface{} "端点不存在"
// @Router /admin/ai-models/{id} [delete]
func (h *AIModelHandler) DeleteAIModel(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var aiModel models.AIModel
	if err := database.DB.First(&aiModel, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "端点不存在"})
		return
	}

	if err := database.DB.Delete(&aiModel).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": SafeErrorMessage(err, "删除失败")})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "删除成功",
	})
}
