package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"tempiemail/backend/internal/cache"
	"tempiemail/backend/internal/monitoring"
)

const (
	// limiterIdleTTL 空闲限流器的保留时间
	limiterIdleTTL = 10 * time.Minute
	// maxTrackedClients 同时跟踪的客户端上限
	maxTrackedClients = 100000
)

// IPRateLimiter 按客户端 IP 的令牌桶限流，用于地址生成接口。
type IPRateLimiter struct {
	limiters *cache.LocalCache[*rate.Limiter]
	limit    rate.Limit
	burst    int
	metrics  *monitoring.Metrics
	log      *zap.Logger
}

// NewIPRateLimiter 创建限流器，perMinute 为每分钟补充的令牌数。
func NewIPRateLimiter(perMinute, burst int, log *zap.Logger) *IPRateLimiter {
	if log == nil {
		log = zap.NewNop()
	}
	return &IPRateLimiter{
		limiters: cache.NewLocalCache[*rate.Limiter](maxTrackedClients, limiterIdleTTL, time.Minute),
		limit:    rate.Limit(float64(perMinute) / 60),
		burst:    burst,
		log:      log,
	}
}

// SetMetrics 设置监控指标
func (l *IPRateLimiter) SetMetrics(m *monitoring.Metrics) {
	l.metrics = m
}

// Allow 消耗 key 的一个令牌
func (l *IPRateLimiter) Allow(key string) bool {
	return l.limiter(key).Allow()
}

// Close 停止后台清理
func (l *IPRateLimiter) Close() {
	l.limiters.Close()
}

func (l *IPRateLimiter) limiter(key string) *rate.Limiter {
	return l.limiters.GetOrCreate(key, func() *rate.Limiter {
		return rate.NewLimiter(l.limit, l.burst)
	})
}

// Middleware 超过限制时返回 429 并给出 Retry-After
func (l *IPRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		limiter := l.limiter(ip)

		c.Header("X-RateLimit-Limit", strconv.Itoa(l.burst))
		if limiter.Allow() {
			c.Header("X-RateLimit-Remaining", strconv.Itoa(int(math.Max(0, limiter.Tokens()))))
			c.Next()
			return
		}

		l.metrics.RecordRateLimitBlock("provision")
		l.log.Warn("provision rate limit exceeded", zap.String("ip", ip))

		retryAfter := 60
		if l.limit > 0 {
			retryAfter = int(math.Ceil(1 / float64(l.limit)))
		}
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		c.Header("X-RateLimit-Remaining", "0")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"code": http.StatusTooManyRequests,
			"msg":  "请求过于频繁，请稍后再试",
		})
	}
}
