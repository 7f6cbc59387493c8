package middleware

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// rateWindow 单个 IP 的滑动窗口计数
type rateWindow struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	max     int
	size    time.Duration
}

func newRateWindow(max int, size time.Duration) *rateWindow {
	rw := &rateWindow{
		windows: make(map[string][]time.Time),
		max:     max,
		size:    size,
	}
	go rw.sweep()
	return rw
}

// allow 记录一次请求，窗口内超过上限时拒绝并返回建议等待时间
func (rw *rateWindow) allow(key string, now time.Time) (bool, time.Duration) {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	cutoff := now.Add(-rw.size)
	kept := rw.windows[key][:0]
	for _, t := range rw.windows[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	rw.windows[key] = kept

	if len(kept) >= rw.max {
		return false, kept[0].Add(rw.size).Sub(now)
	}
	rw.windows[key] = append(kept, now)
	return true, 0
}

func (rw *rateWindow) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		rw.mu.Lock()
		cutoff := time.Now().Add(-rw.size)
		for key, ts := range rw.windows {
			alive := false
			for _, t := range ts {
				if t.After(cutoff) {
					alive = true
					break
				}
			}
			if !alive {
				delete(rw.windows, key)
			}
		}
		rw.mu.Unlock()
	}
}

func rateLimitByIP(rw *rateWindow, message string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, wait := rw.allow(c.ClientIP(), time.Now())
		if !ok {
			c.Header("Retry-After", fmt.Sprintf("%d", int(wait.Seconds())+1))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"message": message,
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// LoginRateLimit 登录接口限流，每 IP 窗口内最多 maxAttempts 次尝试
func LoginRateLimit(maxAttempts int, window time.Duration) gin.HandlerFunc {
	return rateLimitByIP(newRateWindow(maxAttempts, window), "登录尝试过于频繁，请稍后再试")
}

// SubmitRateLimit 视频提交限流，拦在扣费闸门之前避免刷量
func SubmitRateLimit(maxAttempts int, window time.Duration) gin.HandlerFunc {
	return rateLimitByIP(newRateWindow(maxAttempts, window), "提交过于频繁，请稍后再试")
}
