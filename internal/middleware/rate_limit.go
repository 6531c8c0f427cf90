package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	limiterIdleTTL = 5 * time.Minute
	// limiterSweepInterval 两次清理过期访客之间的最小间隔
	limiterSweepInterval = time.Minute
)

type visitor struct {
	limiter *rate.Limiter
	expires time.Time
}

// RateLimiter 按用户（未认证时按 IP）做令牌桶限流
type RateLimiter struct {
	limit rate.Limit
	burst int

	mu        sync.Mutex
	visitors  map[string]*visitor
	lastSweep time.Time
	now       func() time.Time
}

// NewRateLimiter perMinute 为每分钟允许的请求数，<=0 表示不限流
func NewRateLimiter(perMinute int) *RateLimiter {
	rl := &RateLimiter{
		visitors: make(map[string]*visitor),
		now:      time.Now,
	}
	if perMinute <= 0 {
		rl.limit = rate.Inf
		rl.burst = 1
		return rl
	}
	rl.limit = rate.Every(time.Minute / time.Duration(perMinute))
	rl.burst = max(perMinute/2, 1)
	return rl
}

// Middleware 返回 gin 中间件
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := UserID(c)
		if key == "" {
			key = "ip:" + c.ClientIP()
		}

		if !rl.allow(key) {
			abortJSON(c, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		c.Next()
	}
}

func (rl *RateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastSweep) >= limiterSweepInterval {
		rl.sweep(now)
	}

	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[key] = v
	}
	v.expires = now.Add(limiterIdleTTL)
	return v.limiter.AllowN(now, 1)
}

func (rl *RateLimiter) sweep(now time.Time) {
	for k, v := range rl.visitors {
		if now.After(v.expires) {
			delete(rl.visitors, k)
		}
	}
	rl.lastSweep = now
}
