// Package adminauth 后台管理登录态的签名 Cookie 校验
// 独立成包避免 api 与 middleware 互相引用
package adminauth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"

	"biomech/config"

	"github.com/gin-gonic/gin"
)

// defaultCookieSecret JWT secret 未配置时的兜底签名密钥（仅开发环境）
const defaultCookieSecret = "biomech-admin-cookie-secret"

func cookieSecret() []byte {
	if config.GlobalConfig != nil && config.GlobalConfig.JWT.Secret != "" {
		return []byte(config.GlobalConfig.JWT.Secret)
	}
	return []byte(defaultCookieSecret)
}

// SignCookieValue 对值做 HMAC-SHA256 签名，格式 value.hexsig
func SignCookieValue(value string) string {
	mac := hmac.New(sha256.New, cookieSecret())
	mac.Write([]byte(value))
	return value + "." + hex.EncodeToString(mac.Sum(nil))
}

// VerifyCookieValue 校验签名并返回原始值
func VerifyCookieValue(signed string) (string, error) {
	if signed == "" {
		return "", errors.New("cookie value is empty")
	}
	idx := strings.LastIndex(signed, ".")
	if idx <= 0 {
		return "", errors.New("cookie format is invalid")
	}
	value, sig := signed[:idx], signed[idx+1:]

	mac := hmac.New(sha256.New, cookieSecret())
	mac.Write([]byte(value))
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(sig), []byte(expected)) {
		return "", errors.New("cookie signature mismatch")
	}
	return value, nil
}

func verifiedUserIDFromCookie(c *gin.Context, name string) (uint, error) {
	raw, err := c.Cookie(name)
	if err != nil {
		return 0, err
	}
	value, err := VerifyCookieValue(raw)
	if err != nil {
		return 0, err
	}
	id64, err := strconv.ParseUint(value, 10, 32)
	if err != nil {
		return 0, errors.New("cookie value is invalid")
	}
	return uint(id64), nil
}

// GetVerifiedAdminUserID 验证 admin_user_id cookie 签名并返回用户 ID
func GetVerifiedAdminUserID(c *gin.Context) (uint, error) {
	return verifiedUserIDFromCookie(c, "admin_user_id")
}

// GetVerifiedOriginalAdminID 验证 original_admin_id cookie 签名并返回用户 ID
// 用于“切换用户视角”后找回原管理员身份
func GetVerifiedOriginalAdminID(c *gin.Context) (uint, error) {
	return verifiedUserIDFromCookie(c, "original_admin_id")
}
