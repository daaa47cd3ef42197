package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tempiemail/backend/internal/config"
	"tempiemail/backend/internal/health"
	"tempiemail/backend/internal/logger"
	"tempiemail/backend/internal/middleware"
	"tempiemail/backend/internal/monitoring"
	"tempiemail/backend/internal/pool"
	"tempiemail/backend/internal/security"
	"tempiemail/backend/internal/service"
	"tempiemail/backend/internal/smtp"
	"tempiemail/backend/internal/storage/memory"
	httptransport "tempiemail/backend/internal/transport/http"
	"tempiemail/backend/internal/websocket"
)

const (
	shutdownTimeout = 10 * time.Second
	healthTimeout   = time.Second
)

// main 启动同时包含 HTTP API 与 SMTP 收信的服务。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	if cfg.Log.Development {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	log, err := logger.NewLogger(logger.FromConfig(cfg.Log))
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting tempiemail server",
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
		zap.Strings("domains", cfg.Mailbox.Domains),
	)

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited with error", zap.Error(err))
	}
	log.Info("server stopped gracefully")
}

func run(cfg *config.Config, log *zap.Logger) error {
	metrics := monitoring.NewMetrics()

	// 存储层：地址登记表和邮件存储共用地址锁
	registry := memory.NewRegistry(cfg.Mailbox.AddressTTL)
	store := memory.NewStore(registry, cfg.Mailbox.MessageTTL, cfg.Mailbox.Retention)

	filter := security.NewFilter(security.Config{
		MaxMessageBytes: cfg.Abuse.MaxMessageBytes,
		MaxPerHour:      cfg.Abuse.MaxPerHour,
		MaxLinks:        cfg.Abuse.MaxLinks,
		BlockedDomains:  cfg.Abuse.BlockedDomains,
	}, log.Named("filter"))

	generator, err := service.NewGenerator(cfg.Mailbox.Domains)
	if err != nil {
		return fmt.Errorf("address generator: %w", err)
	}

	mailboxService := service.NewMailboxService(registry, store, generator, cfg, log.Named("mailbox"))
	mailboxService.SetMetrics(metrics)
	messageService := service.NewMessageService(store, log.Named("message"))
	messageService.SetMetrics(metrics)

	// 实时推送
	workers := pool.NewWorkerPool(cfg.Notify.Workers, cfg.Notify.QueueSize, log.Named("notify"))
	wsHub := websocket.NewHub(cfg.CORS.AllowedOrigins, workers, log.Named("websocket"))
	wsHub.SetMetrics(metrics)

	delivery := service.NewDeliveryService(registry, store, filter, wsHub, log.Named("delivery"))
	delivery.SetMetrics(metrics)

	sweeper := service.NewSweeper(registry, store, filter, cfg.Mailbox.SweepInterval, log.Named("sweeper"))
	sweeper.SetMetrics(metrics)

	// SMTP 收信
	limiter := smtp.NewConnectionLimiter(cfg.SMTP.MaxConnections, cfg.SMTP.MaxConnectionRate)
	smtpBackend := smtp.NewBackend(delivery, limiter, int64(cfg.Abuse.MaxMessageBytes), log.Named("smtp"))
	smtpBackend.SetMetrics(metrics)
	smtpServer := smtp.NewServer(smtpBackend, cfg.SMTP)

	// 告警
	alertManager := monitoring.NewAlertManager(log.Named("alert"))
	alertManager.AddReceiver(monitoring.NewLogAlertReceiver(log.Named("alert")))
	alertManager.AddRule(monitoring.HighMemoryUsageRule(cfg.Monitoring.MemoryThresholdMB, metrics))
	alertManager.AddRule(monitoring.RejectionSpikeRule(filter.RejectedTotal, cfg.Monitoring.RejectionThreshold))

	// 健康检查
	healthChecker := health.NewHealthChecker(log.Named("health"))
	healthChecker.AddReadinessCheck("smtp", health.ListenerCheck(cfg.SMTP.BindAddr, healthTimeout))
	healthChecker.AddReadinessCheck("sweeper", health.FreshnessCheck(sweeper.LastRun, 2*cfg.Mailbox.SweepInterval))

	provisionLimiter := middleware.NewIPRateLimiter(cfg.Provision.PerMinute, cfg.Provision.Burst, log.Named("ratelimit"))
	provisionLimiter.SetMetrics(metrics)
	defer provisionLimiter.Close()

	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:         cfg,
		MailboxService: mailboxService,
		MessageService: messageService,
		Filter:         filter,
		WebSocketHub:   wsHub,
		Health:         healthChecker,
		Metrics:        metrics,
		RateLimiter:    provisionLimiter,
		Logger:         log.Named("http"),
	})

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	workers.Start(groupCtx)
	sweeper.Start(groupCtx)

	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		log.Info("starting SMTP server",
			zap.String("address", cfg.SMTP.BindAddr),
			zap.String("domain", cfg.SMTP.Domain),
			zap.Int("max_connections", cfg.SMTP.MaxConnections),
		)
		if err := smtpServer.ListenAndServe(); err != nil && !errors.Is(err, gosmtp.ErrServerClosed) {
			return fmt.Errorf("smtp server: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		wsHub.Run(groupCtx)
		return nil
	})

	group.Go(func() error {
		alertManager.StartMonitoring(groupCtx, cfg.Monitoring.AlertInterval)
		return nil
	})

	// 优雅关闭
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}
		if err := smtpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("SMTP server shutdown error", zap.Error(err))
		}

		sweeper.Stop()
		workers.Stop()
		return nil
	})

	return group.Wait()
}
