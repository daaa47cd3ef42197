package httptransport

import (
	"net/http"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tempiemail/backend/internal/config"
	"tempiemail/backend/internal/health"
	"tempiemail/backend/internal/logger"
	"tempiemail/backend/internal/middleware"
	"tempiemail/backend/internal/monitoring"
	"tempiemail/backend/internal/security"
	"tempiemail/backend/internal/service"
	"tempiemail/backend/internal/websocket"
)

// Handler 聚合所有 HTTP 处理逻辑。
type Handler struct {
	mailboxes *service.MailboxService
	messages  *service.MessageService
	filter    *security.Filter
	log       *zap.Logger
}

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config         *config.Config
	MailboxService *service.MailboxService
	MessageService *service.MessageService
	Filter         *security.Filter
	WebSocketHub   *websocket.Hub            // 为 nil 时不注册 /ws
	Health         *health.HealthChecker     // 为 nil 时只提供 /health
	Metrics        *monitoring.Metrics       // 为 nil 时不采集指标
	RateLimiter    *middleware.IPRateLimiter // 地址生成限流，为 nil 时不限流
	Logger         *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	log := logger.OrNop(deps.Logger)

	router := gin.New()
	router.Use(middleware.RecoveryHandler(log, deps.Metrics))
	router.Use(middleware.RequestLogger(log))
	if deps.Metrics != nil {
		router.Use(middleware.NewMonitoringMiddleware(deps.Metrics).HTTPMetrics())
	}
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.BodySizeLimit(middleware.APIBodyLimit))
	router.Use(gincors.New(corsConfig(deps.Config.CORS.AllowedOrigins)))

	handler := &Handler{
		mailboxes: deps.MailboxService,
		messages:  deps.MessageService,
		filter:    deps.Filter,
		log:       log,
	}

	router.GET("/health", handler.health(deps.Health))
	if deps.Health != nil {
		router.GET("/health/live", gin.WrapH(deps.Health.LiveHandler()))
		router.GET("/health/ready", gin.WrapH(deps.Health.ReadyHandler()))
	}
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))
	}
	if deps.WebSocketHub != nil {
		router.GET("/ws", websocket.HandleWebSocket(deps.WebSocketHub))
	}

	provisionLimit := func(c *gin.Context) { c.Next() }
	if deps.RateLimiter != nil {
		provisionLimit = deps.RateLimiter.Middleware()
	}

	api := router.Group("/api")
	{
		addresses := api.Group("/addresses")
		{
			addresses.POST("/generate", provisionLimit, handler.generateAddress)
			addresses.POST("/generate-multiple", provisionLimit, handler.generateMultiple)
			addresses.POST("/validate", handler.validateAddress)

			addresses.GET("/domains/available", handler.listDomains)
			addresses.POST("/domains", handler.addDomain)
			addresses.DELETE("/domains/:domain", handler.removeDomain)
			addresses.GET("/patterns/available", handler.listPatterns)
			addresses.GET("/stats/overview", handler.statsOverview)

			addresses.GET("/:address", handler.getAddress)
			addresses.DELETE("/:address", handler.deleteAddress)
			addresses.PATCH("/:address/extend", handler.extendAddress)
		}

		emails := api.Group("/emails")
		{
			emails.GET("/:address", handler.listEmails)
			emails.DELETE("/:address", handler.clearEmails)
			emails.GET("/:address/search", handler.searchEmails)
			emails.GET("/:address/:id", handler.getEmail)
			emails.DELETE("/:address/:id", handler.deleteEmail)
			emails.PATCH("/:address/:id/read", handler.markEmailRead)
		}

		if deps.Filter != nil {
			abuse := api.Group("/abuse")
			{
				abuse.GET("/stats", handler.abuseStats)
				abuse.POST("/domains", handler.blockDomain)
				abuse.DELETE("/domains/:domain", handler.unblockDomain)
				abuse.GET("/patterns", handler.listAbusePatterns)
				abuse.POST("/patterns", handler.addAbusePattern)
				abuse.DELETE("/patterns", handler.removeAbusePattern)
			}
		}
	}

	return router
}

// corsConfig 构造跨域配置，允许所有来源时关闭凭证支持
func corsConfig(origins []string) gincors.Config {
	cfg := gincors.Config{
		AllowOrigins:  origins,
		AllowMethods:  []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length", "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowOrigins = nil
		cfg.AllowAllOrigins = true
		return cfg
	}

	cfg.AllowCredentials = true
	for _, origin := range origins {
		if origin == "*" {
			cfg.AllowOrigins = nil
			cfg.AllowAllOrigins = true
			cfg.AllowCredentials = false
			break
		}
	}
	return cfg
}

// health 汇总健康状态
func (h *Handler) health(checker *health.HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		if checker == nil {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		}

		checks, healthy := checker.CheckHealth()
		status, code := "ok", http.StatusOK
		if !healthy {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{"status": status, "checks": checks})
	}
}
