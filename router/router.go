package router

import (
	"time"

	"biomech/api"
	"biomech/config"
	_ "biomech/docs"
	"biomech/middleware"
	"biomech/service"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Deps 路由依赖的业务服务
type Deps struct {
	Gate      *service.Gate
	Review    *service.ReviewService
	Templates *service.TemplateSet
}

// SetupRouter 设置路由
func SetupRouter(cfg *config.Config, deps Deps) *gin.Engine {
	// 设置运行模式
	gin.SetMode(cfg.Server.Mode)

	r := gin.Default()

	// CORS 中间件
	r.Use(CORSMiddleware())

	// 后台管理 API（Cookie 认证）
	adminHandler := api.NewAdminHandler()
	reviewHandler := api.NewReviewHandler(deps.Review)
	aiModelHandler := api.NewAIModelHandler(cfg)
	admin := r.Group("/admin")
	{
		admin.POST("/login", middleware.LoginRateLimit(5, time.Minute), adminHandler.AdminLogin)
		admin.POST("/logout", adminHandler.AdminLogout)

		adminAuth := admin.Group("")
		adminAuth.Use(middleware.AdminAuthMiddleware())
		{
			adminAuth.GET("/me", adminHandler.GetCurrentUserInfo)

			// 用户管理
			adminAuth.GET("/users", adminHandler.ListUsers)
			adminAuth.PUT("/users/:id", adminHandler.UpdateUser)
			adminAuth.POST("/users/:id/fitpoints", adminHandler.GrantFitPoints)

			// 统计与导出
			adminAuth.GET("/statistics", adminHandler.GetDashboardStats)
			adminAuth.GET("/export/excel", adminHandler.ExportAnalysesExcel)

			// 人工审核
			adminAuth.GET("/review/queue", reviewHandler.ListReviewQueue)
			adminAuth.GET("/review/:id", reviewHandler.GetReviewDetail)
			adminAuth.POST("/review/:id/approve", reviewHandler.ApproveAnalysis)
			adminAuth.POST("/review/:id/reject", reviewHandler.RejectAnalysis)
			adminAuth.POST("/review/:id/request-revision", reviewHandler.RequestRevision)

			// 推理端点管理
			adminAuth.GET("/ai-models", aiModelHandler.GetAllAIModels)
			adminAuth.POST("/ai-models", aiModelHandler.CreateAIModel)
			adminAuth.PUT("/ai-models/:id", aiModelHandler.UpdateAIModel)
			adminAuth.DELETE("/ai-models/:id", aiModelHandler.DeleteAIModel)
			adminAuth.POST("/ai-models/:id/test", aiModelHandler.TestAIModel)
			adminAuth.POST("/ai-models/reorder", aiModelHandler.ReorderAIModels)
		}
	}

	// Swagger 文档
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// API v1 路由组（供移动端使用）
	v1 := r.Group("/api/v1")
	{
		// 认证相关路由（无需登录）
		authHandler := api.NewAuthHandler(cfg)
		auth := v1.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", middleware.LoginRateLimit(10, time.Minute), authHandler.Login)
		}

		analysisHandler := api.NewAnalysisHandler(deps.Gate, deps.Review, deps.Templates)

		// 动作模式列表（无需登录）
		v1.GET("/patterns", analysisHandler.ListPatterns)

		// 需要 JWT 认证的路由
		authorized := v1.Group("")
		authorized.Use(middleware.JWTAuth())
		{
			// 用户相关
			authorized.GET("/auth/profile", authHandler.GetProfile)
			authorized.PUT("/auth/password", authHandler.ChangePassword)
			authorized.GET("/auth/transactions", authHandler.ListTransactions)

			// 动作分析相关
			analyses := authorized.Group("/analyses")
			{
				analyses.GET("/quote", analysisHandler.GetQuote)
				analyses.POST("", middleware.SubmitRateLimit(10, time.Minute), analysisHandler.SubmitAnalysis)
				analyses.GET("", analysisHandler.ListMyAnalyses)
				analyses.GET("/:id", analysisHandler.GetAnalysis)
				analyses.POST("/:id/vote", analysisHandler.VoteAnalysis)
				analyses.POST("/:id/resubmit", analysisHandler.ResubmitAnalysis)
			}

			// 导出相关
			exportHandler := api.NewExportHandler()
			export := authorized.Group("/export")
			{
				export.GET("/csv", exportHandler.ExportCSV)
				export.GET("/json", exportHandler.ExportJSON)
			}
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})

	return r
}

// CORSMiddleware CORS 跨域中间件
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
