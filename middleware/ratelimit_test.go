package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func rateLimitedRouter(limit gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(limit)
	r.POST("/login", func(c *gin.Context) {
		c.String(200, "ok")
	})
	return r
}

func doRateLimitReq(r *gin.Engine, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/login", nil)
	req.RemoteAddr = ip + ":12345"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestLoginRateLimit(t *testing.T) {
	r := rateLimitedRouter(LoginRateLimit(2, 200*time.Millisecond))

	// 同一 IP 连续 3 次，第 3 次应返回 429
	w1 := doRateLimitReq(r, "192.168.1.1")
	w2 := doRateLimitReq(r, "192.168.1.1")
	w3 := doRateLimitReq(r, "192.168.1.1")

	assert.Equal(t, 200, w1.Code)
	assert.Equal(t, 200, w2.Code)
	assert.Equal(t, http.StatusTooManyRequests, w3.Code)
	assert.Contains(t, w3.Body.String(), "频繁")
	assert.NotEmpty(t, w3.Header().Get("Retry-After"))

	// 其他 IP 不受影响
	w4 := doRateLimitReq(r, "192.168.1.2")
	assert.Equal(t, 200, w4.Code)
}

func TestLoginRateLimit_WindowExpires(t *testing.T) {
	r := rateLimitedRouter(LoginRateLimit(1, 50*time.Millisecond))

	w1 := doRateLimitReq(r, "10.0.0.1")
	assert.Equal(t, 200, w1.Code)
	w2 := doRateLimitReq(r, "10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, w2.Code)

	// 窗口滑出后恢复放行
	time.Sleep(60 * time.Millisecond)
	w3 := doRateLimitReq(r, "10.0.0.1")
	assert.Equal(t, 200, w3.Code)
}

func TestSubmitRateLimit(t *testing.T) {
	r := rateLimitedRouter(SubmitRateLimit(1, time.Minute))

	w1 := doRateLimitReq(r, "10.0.0.2")
	w2 := doRateLimitReq(r, "10.0.0.2")
	assert.Equal(t, 200, w1.Code)
	assert.Equal(t, http.StatusTooManyRequests, w2.Code)
	assert.Contains(t, w2.Body.String(), "提交")
}
