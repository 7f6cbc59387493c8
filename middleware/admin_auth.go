package middleware

import (
	"net/http"

	"biomech/adminauth"
	"biomech/database"
	"biomech/models"

	"github.com/gin-gonic/gin"
)

// AdminAuthMiddleware 后台管理接口鉴权中间件
// 校验签名 Cookie 并要求 is_admin=true，审核与后台管理接口都挂在它后面
func AdminAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := adminauth.GetVerifiedAdminUserID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "请先登录"})
			c.Abort()
			return
		}

		var user models.User
		if err := database.DB.First(&user, userID).Error; err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "用户不存在"})
			c.Abort()
			return
		}
		if user.Status != models.UserStatusActive {
			c.JSON(http.StatusForbidden, gin.H{"success": false, "message": "账号已被锁定"})
			c.Abort()
			return
		}
		if !user.IsAdmin {
			c.JSON(http.StatusForbidden, gin.H{"success": false, "message": "权限不足"})
			c.Abort()
			return
		}

		c.Set("adminUserID", user.ID)
		c.Next()
	}
}

// GetAdminUserID 从上下文获取后台管理员ID
func GetAdminUserID(c *gin.Context) uint {
	if v, ok := c.Get("adminUserID"); ok {
		if id, ok := v.(uint); ok {
			return id
		}
	}
	return 0
}
